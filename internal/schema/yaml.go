package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// yamlFile is the top-level shape of a YAML model file.
type yamlFile struct {
	Models []Definition `yaml:"models"`
}

// ParseYAML reads the models listed in a YAML document. Unknown fields are
// rejected.
func ParseYAML(name string, data []byte) ([]Definition, error) {
	var f yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("%s: %v", name, err)}
	}
	for i, d := range f.Models {
		if d.Identity == "" {
			return nil, &Error{Code: ErrCodeInvalidModel, Message: fmt.Sprintf("%s: models[%d]: identity is required", name, i)}
		}
		if len(d.Attributes) == 0 {
			return nil, &Error{Code: ErrCodeInvalidModel, Message: fmt.Sprintf("%s: model %s: at least one attribute is required", name, d.Identity)}
		}
	}
	return f.Models, nil
}
