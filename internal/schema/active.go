package schema

import "fmt"

// ActiveSet is the subset of a schema's columns taking part in a session.
// The zero value is not usable; build one with NewActiveSet.
type ActiveSet struct {
	schema  *Schema
	active  map[string]bool
	toggled map[string]bool
}

// NewActiveSet starts from the columns flagged Default. When no column is
// flagged, every column is active.
func NewActiveSet(s *Schema) *ActiveSet {
	a := &ActiveSet{
		schema:  s,
		active:  make(map[string]bool),
		toggled: make(map[string]bool),
	}
	for _, c := range s.columns {
		if c.Default {
			a.active[c.Key] = true
		}
	}
	if len(a.active) == 0 {
		for _, c := range s.columns {
			a.active[c.Key] = true
		}
	}
	return a
}

// Schema returns the underlying schema.
func (a *ActiveSet) Schema() *Schema {
	return a.schema
}

// Toggle turns a column on or off. A column switched on by the user is
// treated as required from then on.
func (a *ActiveSet) Toggle(key string, on bool) error {
	if _, ok := a.schema.index[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, key)
	}
	if on {
		if !a.active[key] {
			a.toggled[key] = true
		}
		a.active[key] = true
		return nil
	}
	delete(a.active, key)
	delete(a.toggled, key)
	return nil
}

// IsActive reports whether key is active.
func (a *ActiveSet) IsActive(key string) bool {
	return a.active[key]
}

// Columns returns the active columns in schema order.
func (a *ActiveSet) Columns() []Column {
	out := make([]Column, 0, len(a.active))
	for _, c := range a.schema.columns {
		if !a.active[c.Key] {
			continue
		}
		if a.toggled[c.Key] {
			c.Required = true
		}
		out = append(out, c)
	}
	return out
}

// Clone returns an independent copy.
func (a *ActiveSet) Clone() *ActiveSet {
	b := &ActiveSet{
		schema:  a.schema,
		active:  make(map[string]bool, len(a.active)),
		toggled: make(map[string]bool, len(a.toggled)),
	}
	for k := range a.active {
		b.active[k] = true
	}
	for k := range a.toggled {
		b.toggled[k] = true
	}
	return b
}
