// Package schema describes the target columns a file is mapped onto.
//
// A [Schema] is an ordered list of [Column] values with unique keys. Columns
// carry an optional [Validator] that checks and normalizes a cell. Schemas
// are built in code with [New] or loaded from YAML with [LoadFile], where
// validators are composed from named rules (see [RegisterRule]).
package schema

import (
	"fmt"
	"strings"
)

// Column is one target field.
type Column struct {
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	Required  bool      `json:"required"`
	Default   bool      `json:"default"`
	Validator Validator `json:"-"`
	Rules     []string  `json:"rules,omitempty"`
}

// DisplayName returns the label, falling back to the key.
func (c Column) DisplayName() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}

// Validate runs the column's validator. Without one, any value is accepted
// unchanged.
func (c Column) Validate(value string) (string, error) {
	if c.Validator == nil {
		return value, nil
	}
	return c.Validator.Validate(value)
}

// Schema is an ordered set of columns keyed by Column.Key.
type Schema struct {
	Name    string
	columns []Column
	index   map[string]int
}

// New builds a schema. Keys must be non-empty and unique.
func New(name string, columns []Column) (*Schema, error) {
	s := &Schema{
		Name:    name,
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		c.Key = strings.TrimSpace(c.Key)
		if c.Key == "" {
			return nil, fmt.Errorf("column %d: key is required", i)
		}
		if _, dup := s.index[c.Key]; dup {
			return nil, fmt.Errorf("duplicate column key %q", c.Key)
		}
		s.index[c.Key] = i
		s.columns[i] = c
	}
	return s, nil
}

// MustNew is like New but panics on error. Use it for schemas declared in code.
func MustNew(name string, columns []Column) *Schema {
	s, err := New(name, columns)
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return s
}

// Columns returns a copy of the columns in declaration order.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Column returns the column with the given key.
func (s *Schema) Column(key string) (Column, bool) {
	i, ok := s.index[key]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.columns)
}

// Keys returns the column keys in declaration order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.columns))
	for i, c := range s.columns {
		keys[i] = c.Key
	}
	return keys
}
