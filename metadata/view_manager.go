package metadata

import (
	"fmt"

	"minidb/record"
	"minidb/transaction"
)

// View definitions are stored as varchar strings, so a definition longer
// than maxViewDef bytes cannot be saved.
const maxViewDef int32 = 200

const viewCatalog = "viewcat"

type ViewManager struct {
	tableManager *TableManager
}

func NewViewManager(isNew bool, tableManager *TableManager, tx *transaction.Transaction) (*ViewManager, error) {
	if isNew {
		schema := record.NewSchema()
		schema.AddStringField("viewname", MaxName)
		schema.AddStringField("viewdef", maxViewDef)
		if err := tableManager.CreateTable(viewCatalog, schema, tx); err != nil {
			return nil, err
		}
	}
	return &ViewManager{tableManager: tableManager}, nil
}

func (vm *ViewManager) CreateView(viewName string, viewDef string, tx *transaction.Transaction) error {
	if err := checkName(viewName); err != nil {
		return err
	}
	if _, ok, err := vm.ViewDef(viewName, tx); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrTableExists, viewName)
	}

	layout, err := vm.tableManager.Layout(viewCatalog, tx)
	if err != nil {
		return err
	}
	tableScan, err := record.NewTableScan(tx, viewCatalog, layout)
	if err != nil {
		return err
	}
	defer tableScan.Close()

	if err := tableScan.Insert(); err != nil {
		return err
	}
	if err := tableScan.SetString("viewname", viewName); err != nil {
		return err
	}
	return tableScan.SetString("viewdef", viewDef)
}

// ViewDef returns the query text of a view. ok is false if no view has that
// name.
func (vm *ViewManager) ViewDef(viewName string, tx *transaction.Transaction) (def string, ok bool, err error) {
	layout, err := vm.tableManager.Layout(viewCatalog, tx)
	if err != nil {
		return "", false, err
	}
	tableScan, err := record.NewTableScan(tx, viewCatalog, layout)
	if err != nil {
		return "", false, err
	}
	defer tableScan.Close()

	for {
		next, err := tableScan.Next()
		if err != nil {
			return "", false, err
		}
		if !next {
			return "", false, nil
		}

		name, err := tableScan.GetString("viewname")
		if err != nil {
			return "", false, err
		}
		if name == viewName {
			def, err := tableScan.GetString("viewdef")
			if err != nil {
				return "", false, err
			}
			return def, true, nil
		}
	}
}
