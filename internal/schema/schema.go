package schema

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ObservationIDField is the caller-assigned identifier key that every
// observation must carry in addition to the declared schema fields.
const ObservationIDField = "observation_id"

// Observation is a decoded request payload, one entry per field.
type Observation map[string]any

type Field struct {
	Name   string
	Values []string // allowed values for categorical fields, nil otherwise
}

func (f Field) Categorical() bool {
	return len(f.Values) > 0
}

// Schema is the fixed observation shape: the declared fields in order, plus a
// closed value set for each categorical field. Immutable after load.
type Schema struct {
	fields []Field
	index  map[string]int
}

//go:embed schema.yaml
var defaultSchemaYAML []byte

func Default() (*Schema, error) {
	return Parse(defaultSchemaYAML)
}

func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading schema file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Schema, error) {
	raw := struct {
		Fields []struct {
			Name   string   `yaml:"name"`
			Values []string `yaml:"values,omitempty"`
		} `yaml:"fields"`
	}{}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing schema: %w", err)
	}
	if len(raw.Fields) == 0 {
		return nil, fmt.Errorf("schema declares no fields")
	}

	schema := &Schema{index: make(map[string]int, len(raw.Fields))}
	for _, field := range raw.Fields {
		if field.Name == "" {
			return nil, fmt.Errorf("schema field is missing a name")
		}
		if field.Name == ObservationIDField {
			return nil, fmt.Errorf("field %q is implicit and cannot be declared in the schema", ObservationIDField)
		}
		if _, ok := schema.index[field.Name]; ok {
			return nil, fmt.Errorf("duplicate schema field %q", field.Name)
		}
		if field.Values != nil && len(field.Values) == 0 {
			return nil, fmt.Errorf("categorical field %q has no allowed values", field.Name)
		}
		schema.index[field.Name] = len(schema.fields)
		schema.fields = append(schema.fields, Field{Name: field.Name, Values: field.Values})
	}
	return schema, nil
}

// Fields returns the declared field names in declaration order.
func (s *Schema) Fields() []string {
	names := make([]string, len(s.fields))
	for i, field := range s.fields {
		names[i] = field.Name
	}
	return names
}
