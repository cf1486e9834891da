package plan

import (
	"errors"
	"fmt"

	"minidb/index"
	"minidb/metadata"
	"minidb/parse"
	"minidb/query"
	"minidb/record"
	"minidb/transaction"
)

func (pl *Planner) executeInsert(data *parse.InsertData, tx *transaction.Transaction) (int, error) {
	layout, err := pl.layout(data.Table, tx)
	if err != nil {
		return 0, err
	}
	if err := checkValues(layout.Schema(), data.Fields, data.Values); err != nil {
		return 0, err
	}

	scan, err := query.NewTableScan(tx, data.Table, layout)
	if err != nil {
		return 0, err
	}
	defer scan.Close()

	if err := scan.Insert(); err != nil {
		return 0, err
	}
	for i, fieldName := range data.Fields {
		if err := scan.SetVal(fieldName, data.Values[i]); err != nil {
			return 0, err
		}
	}

	indexes, err := pl.openIndexes(data.Table, tx)
	if err != nil {
		return 0, err
	}
	defer indexes.close()
	for fieldName, idx := range indexes {
		val, err := scan.GetVal(fieldName)
		if err != nil {
			return 0, err
		}
		if err := idx.Insert(val, scan.RID()); err != nil {
			return 0, err
		}
	}

	pl.md.TableModified(data.Table)
	return 1, nil
}

func (pl *Planner) executeDelete(data *parse.DeleteData, tx *transaction.Transaction) (int, error) {
	scan, err := pl.openUpdate(data.Table, data.Pred, nil, tx)
	if err != nil {
		return 0, err
	}
	defer scan.Close()

	indexes, err := pl.openIndexes(data.Table, tx)
	if err != nil {
		return 0, err
	}
	defer indexes.close()

	count := 0
	for {
		ok, err := scan.Next()
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}
		for fieldName, idx := range indexes {
			val, err := scan.GetVal(fieldName)
			if err != nil {
				return count, err
			}
			if err := idx.Delete(val, scan.RID()); err != nil {
				return count, err
			}
		}
		if err := scan.Delete(); err != nil {
			return count, err
		}
		count++
	}

	pl.md.TableModified(data.Table)
	return count, nil
}

func (pl *Planner) executeModify(data *parse.ModifyData, tx *transaction.Transaction) (int, error) {
	fields := []string{data.Field}
	if data.Value.IsFieldName() {
		fields = append(fields, data.Value.AsFieldName())
	}
	scan, err := pl.openUpdate(data.Table, data.Pred, fields, tx)
	if err != nil {
		return 0, err
	}
	defer scan.Close()

	indexes, err := pl.openIndexes(data.Table, tx)
	if err != nil {
		return 0, err
	}
	defer indexes.close()
	idx := indexes[data.Field]

	count := 0
	for {
		ok, err := scan.Next()
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}
		val, err := data.Value.Evaluate(scan)
		if err != nil {
			return count, err
		}
		old, err := scan.GetVal(data.Field)
		if err != nil {
			return count, err
		}
		if err := scan.SetVal(data.Field, val); err != nil {
			return count, err
		}
		if idx != nil && old != val {
			if err := idx.Delete(old, scan.RID()); err != nil {
				return count, err
			}
			if err := idx.Insert(val, scan.RID()); err != nil {
				return count, err
			}
		}
		count++
	}

	pl.md.TableModified(data.Table)
	return count, nil
}

func (pl *Planner) executeCreateTable(data *parse.CreateTableData, tx *transaction.Transaction) (int, error) {
	return 0, pl.md.CreateTable(data.Table, data.Schema, tx)
}

func (pl *Planner) executeCreateView(data *parse.CreateViewData, tx *transaction.Transaction) (int, error) {
	if _, err := pl.createQueryPlan(data.Query, tx, 1); err != nil {
		return 0, err
	}
	return 0, pl.md.CreateView(data.View, data.ViewDef(), tx)
}

// executeCreateIndex records the index and fills it with the records the
// table already holds.
func (pl *Planner) executeCreateIndex(data *parse.CreateIndexData, tx *transaction.Transaction) (int, error) {
	if err := pl.md.CreateIndex(data.Index, data.Table, data.Field, tx); err != nil {
		if errors.Is(err, metadata.ErrTableNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownTable, data.Table)
		}
		if errors.Is(err, metadata.ErrFieldNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownField, data.Field)
		}
		return 0, err
	}

	layout, err := pl.layout(data.Table, tx)
	if err != nil {
		return 0, err
	}
	infos, err := pl.md.IndexInfo(data.Table, tx)
	if err != nil {
		return 0, err
	}
	idx := infos[data.Field].Open(tx)
	defer idx.Close()

	scan, err := query.NewTableScan(tx, data.Table, layout)
	if err != nil {
		return 0, err
	}
	defer scan.Close()

	count := 0
	for {
		ok, err := scan.Next()
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		val, err := scan.GetVal(data.Field)
		if err != nil {
			return count, err
		}
		if err := idx.Insert(val, scan.RID()); err != nil {
			return count, err
		}
		count++
	}
}

// openedIndexes maps an indexed field to its open index.
type openedIndexes map[string]index.Index

func (pl *Planner) openIndexes(tableName string, tx *transaction.Transaction) (openedIndexes, error) {
	infos, err := pl.md.IndexInfo(tableName, tx)
	if err != nil {
		return nil, err
	}
	indexes := make(openedIndexes, len(infos))
	for fieldName, ii := range infos {
		indexes[fieldName] = ii.Open(tx)
	}
	return indexes, nil
}

func (o openedIndexes) close() {
	for _, idx := range o {
		idx.Close()
	}
}

// openUpdate opens an updatable scan over the records of a table that
// satisfy pred, after checking that the table has the fields the statement
// uses.
func (pl *Planner) openUpdate(tableName string, pred *query.Predicate, fields []string, tx *transaction.Transaction) (*query.SelectScan, error) {
	layout, err := pl.layout(tableName, tx)
	if err != nil {
		return nil, err
	}
	if err := checkFields(layout.Schema(), append(fields, pred.FieldNames()...)); err != nil {
		return nil, err
	}

	scan, err := query.NewTableScan(tx, tableName, layout)
	if err != nil {
		return nil, err
	}
	return query.NewSelectScan(scan, pred), nil
}

func checkValues(schema *record.Schema, fields []string, values []query.Constant) error {
	if err := checkFields(schema, fields); err != nil {
		return err
	}
	for i, fieldName := range fields {
		wantString := schema.FieldType(fieldName) == record.Varchar
		if values[i].IsString() != wantString {
			return fmt.Errorf("%w: field %s is %s, got %s", query.ErrTypeMismatch, fieldName, schema.FieldType(fieldName), values[i])
		}
		if wantString && int32(len(values[i].AsString())) > schema.FieldLength(fieldName) {
			return fmt.Errorf("%w: field %s holds %d bytes", record.ErrFieldTooLong, fieldName, schema.FieldLength(fieldName))
		}
	}
	return nil
}
