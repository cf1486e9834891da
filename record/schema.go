package record

import "fmt"

type FieldType int32

const (
	Integer FieldType = iota
	Varchar
)

func (t FieldType) String() string {
	switch t {
	case Integer:
		return "INT"
	case Varchar:
		return "VARCHAR"
	default:
		return fmt.Sprintf("FieldType(%d)", int32(t))
	}
}

type fieldInfo struct {
	fieldType FieldType
	length    int32
}

// Schema is the record schema of a table: the name and type of each field,
// plus the declared length of each varchar field.
type Schema struct {
	fields []string
	info   map[string]fieldInfo
}

func NewSchema() *Schema {
	return &Schema{
		info: make(map[string]fieldInfo),
	}
}

// AddField adds a field to the schema. Adding a field that already exists
// keeps its first definition.
func (s *Schema) AddField(fieldName string, fieldType FieldType, length int32) {
	if s.HasField(fieldName) {
		return
	}
	s.fields = append(s.fields, fieldName)
	s.info[fieldName] = fieldInfo{
		fieldType: fieldType,
		length:    length,
	}
}

func (s *Schema) AddIntField(fieldName string) {
	s.AddField(fieldName, Integer, 0)
}

func (s *Schema) AddStringField(fieldName string, length int32) {
	s.AddField(fieldName, Varchar, length)
}

// Add copies one field definition from another schema.
func (s *Schema) Add(fieldName string, schema *Schema) {
	fieldType := schema.FieldType(fieldName)
	length := schema.FieldLength(fieldName)
	s.AddField(fieldName, fieldType, length)
}

// AddAll copies every field of another schema.
func (s *Schema) AddAll(schema *Schema) {
	for _, fieldName := range schema.fields {
		s.Add(fieldName, schema)
	}
}

// Fields returns the field names in the order they were added.
func (s *Schema) Fields() []string {
	return s.fields
}

func (s *Schema) HasField(fieldName string) bool {
	_, exist := s.info[fieldName]
	return exist
}

func (s *Schema) FieldType(fieldName string) FieldType {
	return s.info[fieldName].fieldType
}

func (s *Schema) FieldLength(fieldName string) int32 {
	return s.info[fieldName].length
}
