package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of a schema.
//
//	name: contacts
//	columns:
//	  - key: email
//	    label: Email
//	    required: true
//	    default: true
//	    rules: [trim, email]
//	  - key: salary
//	    rules:
//	      - name: numeric
//	        message: Salary must be a number
type File struct {
	Name    string       `yaml:"name"`
	Columns []ColumnSpec `yaml:"columns"`
}

// ColumnSpec is one column entry in a schema file.
type ColumnSpec struct {
	Key      string     `yaml:"key"`
	Label    string     `yaml:"label"`
	Required bool       `yaml:"required"`
	Default  bool       `yaml:"default"`
	Rules    []RuleSpec `yaml:"rules"`
}

// UnmarshalYAML accepts a bare rule name as shorthand for {name: ...}.
func (r *RuleSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Name = node.Value
		return nil
	}
	type plain RuleSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = RuleSpec(p)
	return nil
}

// LoadFile reads and compiles a YAML schema.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return s, nil
}

// Parse compiles a YAML schema document. Unknown fields are rejected.
func Parse(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return f.Compile()
}

// Compile builds validators from the rule specs.
func (f File) Compile() (*Schema, error) {
	if len(f.Columns) == 0 {
		return nil, fmt.Errorf("schema %q has no columns", f.Name)
	}

	cols := make([]Column, 0, len(f.Columns))
	for _, spec := range f.Columns {
		col := Column{
			Key:      spec.Key,
			Label:    spec.Label,
			Required: spec.Required,
			Default:  spec.Default,
		}
		if col.Label == "" {
			col.Label = spec.Key
		}

		validators := make([]Validator, 0, len(spec.Rules))
		for _, rs := range spec.Rules {
			v, err := BuildRule(rs)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", spec.Key, err)
			}
			validators = append(validators, v)
			col.Rules = append(col.Rules, rs.Name)
		}
		col.Validator = Chain(validators...)
		cols = append(cols, col)
	}

	return New(f.Name, cols)
}
