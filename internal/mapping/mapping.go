// Package mapping assigns schema columns to source columns of a file.
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/csvmapper/internal/schema"
)

// Unmapped marks a column with no source column.
const Unmapped = -1

// Mapping maps Column.Key to a zero-based source column index.
type Mapping map[string]int

// Index returns the source index for key, or Unmapped.
func (m Mapping) Index(key string) int {
	if i, ok := m[key]; ok && i >= 0 {
		return i
	}
	return Unmapped
}

// Assign points key at index. A source column belongs to at most one key,
// so any other key holding index becomes Unmapped.
func (m Mapping) Assign(key string, index int) {
	if index < 0 {
		m[key] = Unmapped
		return
	}
	for k, i := range m {
		if i == index && k != key {
			m[k] = Unmapped
		}
	}
	m[key] = index
}

// Unassign marks key as Unmapped while keeping it in the mapping.
func (m Mapping) Unassign(key string) {
	m[key] = Unmapped
}

// Clone returns an independent copy.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Missing returns the required columns whose mapping is Unmapped or points
// past the end of a header of headerLen cells. A negative headerLen skips
// the range check.
func (m Mapping) Missing(cols []schema.Column, headerLen int) []schema.Column {
	var missing []schema.Column
	for _, c := range cols {
		if !c.Required {
			continue
		}
		i := m.Index(c.Key)
		if i == Unmapped || (headerLen >= 0 && i >= headerLen) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Check returns a *MappingIncompleteError when any required column in cols
// is missing.
func (m Mapping) Check(cols []schema.Column, headerLen int) error {
	missing := m.Missing(cols, headerLen)
	if len(missing) == 0 {
		return nil
	}
	e := &MappingIncompleteError{}
	for _, c := range missing {
		e.Keys = append(e.Keys, c.Key)
		e.Labels = append(e.Labels, c.DisplayName())
	}
	return e
}

// MappingIncompleteError lists required columns without a source column.
type MappingIncompleteError struct {
	Keys   []string
	Labels []string
}

func (e *MappingIncompleteError) Error() string {
	return "mapping incomplete: unmapped fields: " + strings.Join(e.Labels, ", ")
}

// Validate checks that every index is within a header of headerLen cells
// and that every key names a column in cols.
func (m Mapping) Validate(cols []schema.Column, headerLen int) error {
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.Key] = true
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !known[k] {
			return fmt.Errorf("%w: %s", schema.ErrUnknownColumn, k)
		}
		if i := m[k]; i != Unmapped && (i < 0 || i >= headerLen) {
			return &IndexError{Key: k, Index: i, Columns: headerLen}
		}
	}
	return nil
}

// IndexError reports a source index outside the header row.
type IndexError struct {
	Key     string
	Index   int
	Columns int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("column %s: source index %d out of range (file has %d columns)", e.Key, e.Index, e.Columns)
}
