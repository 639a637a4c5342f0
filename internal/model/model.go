// Package model holds the read-only descriptions of registered models.
//
// A Model is created once at registration time and is referenced (never
// copied) by every query operation afterwards. The Registry is an explicit
// object built at startup and passed to every component that needs model
// lookups; there is no process-wide registry.
package model

import (
	"fmt"
	"strings"
)

// Type is the logical type of an attribute.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeJSON    Type = "json"
	// TypeRef covers everything without a dedicated coercion rule, notably
	// dates and timestamps.
	TypeRef Type = "ref"
)

// Valid reports whether t is one of the known logical types.
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeJSON, TypeRef:
		return true
	}
	return false
}

// Attribute describes a single attribute of a model and the column that
// stores it.
type Attribute struct {
	Name          string
	ColumnName    string
	Type          Type
	Unique        bool
	Required      bool
	ForeignKey    bool
	AutoIncrement bool

	// ColumnType overrides the SQL column type used by Define.
	// Empty means derive it from Type.
	ColumnType string
}

// Model is the descriptor for one registered model.
type Model struct {
	Identity   string
	TableName  string
	PrimaryKey string

	// CaseInsensitive selects case-insensitive pattern matching for
	// like/contains/startsWith/endsWith on this model.
	CaseInsensitive bool

	attrs    []*Attribute
	byName   map[string]*Attribute
	byColumn map[string]*Attribute
}

// New builds a Model from its attributes. Attribute order is preserved.
// ColumnName defaults to the attribute name.
func New(identity, tableName, primaryKey string, attrs ...Attribute) (*Model, error) {
	if identity == "" {
		return nil, fmt.Errorf("model identity is required")
	}
	if tableName == "" {
		tableName = identity
	}
	m := &Model{
		Identity:   identity,
		TableName:  tableName,
		PrimaryKey: primaryKey,
		byName:     make(map[string]*Attribute, len(attrs)),
		byColumn:   make(map[string]*Attribute, len(attrs)),
	}
	for i := range attrs {
		a := attrs[i]
		if a.Name == "" {
			return nil, fmt.Errorf("model %s: attribute %d has no name", identity, i)
		}
		if a.ColumnName == "" {
			a.ColumnName = a.Name
		}
		if a.Type == "" {
			a.Type = TypeString
		}
		if !a.Type.Valid() {
			return nil, fmt.Errorf("model %s: attribute %s: unknown type %q", identity, a.Name, a.Type)
		}
		if _, dup := m.byName[a.Name]; dup {
			return nil, fmt.Errorf("model %s: duplicate attribute %s", identity, a.Name)
		}
		if _, dup := m.byColumn[a.ColumnName]; dup {
			return nil, fmt.Errorf("model %s: duplicate column %s", identity, a.ColumnName)
		}
		m.attrs = append(m.attrs, &a)
		m.byName[a.Name] = &a
		m.byColumn[a.ColumnName] = &a
	}
	if primaryKey == "" {
		return nil, fmt.Errorf("model %s: primary key is required", identity)
	}
	if _, ok := m.byName[primaryKey]; !ok {
		return nil, fmt.Errorf("model %s: primary key %s is not an attribute", identity, primaryKey)
	}
	return m, nil
}

// Attributes returns the attributes in declaration order.
func (m *Model) Attributes() []*Attribute {
	return m.attrs
}

// Attribute looks up an attribute by name.
func (m *Model) Attribute(name string) (*Attribute, bool) {
	a, ok := m.byName[name]
	return a, ok
}

// AttributeByColumn looks up an attribute by its column name.
func (m *Model) AttributeByColumn(column string) (*Attribute, bool) {
	a, ok := m.byColumn[column]
	return a, ok
}

// ColumnFor resolves an attribute name to its column name. Names that are
// already column names, or unknown, are returned unchanged.
func (m *Model) ColumnFor(name string) string {
	if a, ok := m.byName[name]; ok {
		return a.ColumnName
	}
	return name
}

// PrimaryKeyColumn returns the column storing the primary key.
func (m *Model) PrimaryKeyColumn() string {
	return m.byName[m.PrimaryKey].ColumnName
}

// PrimaryKeyAttribute returns the primary key attribute.
func (m *Model) PrimaryKeyAttribute() *Attribute {
	return m.byName[m.PrimaryKey]
}

// Columns returns all column names in declaration order.
func (m *Model) Columns() []string {
	cols := make([]string, len(m.attrs))
	for i, a := range m.attrs {
		cols[i] = a.ColumnName
	}
	return cols
}

// ColumnSpec describes one column for table creation.
type ColumnSpec struct {
	Name          string
	Type          string
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	NotNull       bool
}

// ColumnSpecs derives the column specs used to define the model's table.
func (m *Model) ColumnSpecs() []ColumnSpec {
	specs := make([]ColumnSpec, 0, len(m.attrs))
	for _, a := range m.attrs {
		typ := sqlType(a)
		if a.Name == m.PrimaryKey && a.Type == TypeNumber && a.ColumnType == "" {
			typ = "INTEGER"
		}
		specs = append(specs, ColumnSpec{
			Name:          a.ColumnName,
			Type:          typ,
			PrimaryKey:    a.Name == m.PrimaryKey,
			AutoIncrement: a.AutoIncrement,
			Unique:        a.Unique,
			NotNull:       a.Required && a.Name != m.PrimaryKey,
		})
	}
	return specs
}

func sqlType(a *Attribute) string {
	if a.ColumnType != "" {
		return strings.ToUpper(a.ColumnType)
	}
	switch a.Type {
	case TypeNumber:
		if a.AutoIncrement || a.ForeignKey {
			return "INTEGER"
		}
		return "REAL"
	case TypeBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}
