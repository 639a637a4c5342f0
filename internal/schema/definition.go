package schema

import (
	"fmt"

	"github.com/roach88/litequery/internal/model"
)

// Definition is the file form of one model.
type Definition struct {
	Identity        string                `yaml:"identity" json:"identity"`
	TableName       string                `yaml:"tableName" json:"tableName"`
	PrimaryKey      string                `yaml:"primaryKey" json:"primaryKey"`
	CaseInsensitive *bool                 `yaml:"caseInsensitive" json:"caseInsensitive"`
	Attributes      []AttributeDefinition `yaml:"attributes" json:"-"`
}

// AttributeDefinition is the file form of one attribute.
type AttributeDefinition struct {
	Name          string `yaml:"name" json:"-"`
	ColumnName    string `yaml:"columnName" json:"columnName"`
	Type          string `yaml:"type" json:"type"`
	ColumnType    string `yaml:"columnType" json:"columnType"`
	Unique        bool   `yaml:"unique" json:"unique"`
	Required      bool   `yaml:"required" json:"required"`
	ForeignKey    bool   `yaml:"foreignKey" json:"foreignKey"`
	AutoIncrement bool   `yaml:"autoIncrement" json:"autoIncrement"`
}

// DefaultPrimaryKey is used when a definition names no primary key.
const DefaultPrimaryKey = "id"

// Build converts d into a Model. caseInsensitive applies when d does not
// set caseInsensitive itself.
func (d Definition) Build(caseInsensitive bool) (*model.Model, error) {
	attrs := make([]model.Attribute, len(d.Attributes))
	for i, a := range d.Attributes {
		attrs[i] = model.Attribute{
			Name:          a.Name,
			ColumnName:    a.ColumnName,
			Type:          model.Type(a.Type),
			ColumnType:    a.ColumnType,
			Unique:        a.Unique,
			Required:      a.Required,
			ForeignKey:    a.ForeignKey,
			AutoIncrement: a.AutoIncrement,
		}
	}
	pk := d.PrimaryKey
	if pk == "" {
		pk = DefaultPrimaryKey
	}
	m, err := model.New(d.Identity, d.TableName, pk, attrs...)
	if err != nil {
		return nil, err
	}
	m.CaseInsensitive = caseInsensitive
	if d.CaseInsensitive != nil {
		m.CaseInsensitive = *d.CaseInsensitive
	}
	return m, nil
}

// register builds every definition into reg, naming file in errors.
func register(reg *model.Registry, defs []Definition, file string, caseInsensitive bool) error {
	for _, d := range defs {
		m, err := d.Build(caseInsensitive)
		if err != nil {
			return &Error{Code: ErrCodeInvalidModel, Message: fmt.Sprintf("%s: %v", file, err)}
		}
		if err := reg.Register(m); err != nil {
			return &Error{Code: ErrCodeInvalidModel, Message: fmt.Sprintf("%s: %v", file, err)}
		}
	}
	return nil
}
