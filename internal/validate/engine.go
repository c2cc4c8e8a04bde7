// Package validate turns mapped rows into records and checks each field.
//
// An [Engine] is built from the active columns of a session. [Engine.ValidateAll]
// produces one [Result] per data row. After the user edits a cell or drops a
// row, [Engine.EditCell] and [RemoveRow] return a new result slice in which
// only the affected entry differs; every other *Result is the same pointer
// as before.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/schema"
)

// ErrRowOutOfRange is returned for a row index outside the result set.
var ErrRowOutOfRange = errors.New("row index out of range")

// Result is the outcome for one data row.
type Result struct {
	// Transformed holds the stored value per column key: the normalized
	// value when the field passed, the raw cell when it failed.
	Transformed map[string]string `json:"transformed"`

	// Errors holds a message per failed column key.
	Errors map[string]string `json:"errors,omitempty"`

	IsValid bool `json:"is_valid"`
}

// RowsInvalidError blocks submission while any row has errors.
type RowsInvalidError struct {
	Count int
}

func (e *RowsInvalidError) Error() string {
	return fmt.Sprintf("%d invalid row(s)", e.Count)
}

// Engine validates rows against a fixed list of columns.
type Engine struct {
	cols  []schema.Column
	byKey map[string]int
}

// New returns an engine for cols, typically ActiveSet.Columns().
func New(cols []schema.Column) *Engine {
	e := &Engine{
		cols:  append([]schema.Column(nil), cols...),
		byKey: make(map[string]int, len(cols)),
	}
	for i, c := range e.cols {
		e.byKey[c.Key] = i
	}
	return e
}

// Columns returns the engine's columns.
func (e *Engine) Columns() []schema.Column {
	return append([]schema.Column(nil), e.cols...)
}

// ValidateAll validates every row. If a required column is unmapped it
// returns *mapping.MappingIncompleteError and no results.
func (e *Engine) ValidateAll(rows [][]string, m mapping.Mapping) ([]*Result, error) {
	if err := m.Check(e.cols, -1); err != nil {
		return nil, err
	}

	results := make([]*Result, len(rows))
	for i, row := range rows {
		results[i] = e.ValidateRow(row, m)
	}
	return results, nil
}

// ValidateRow builds the result for a single row. Cells past the end of a
// short row read as empty.
func (e *Engine) ValidateRow(row []string, m mapping.Mapping) *Result {
	r := &Result{
		Transformed: make(map[string]string, len(e.cols)),
		Errors:      make(map[string]string),
	}
	for _, c := range e.cols {
		value := ""
		if i := m.Index(c.Key); i != mapping.Unmapped && i < len(row) {
			value = row[i]
		}
		r.Transformed[c.Key], r.Errors[c.Key] = validateField(c, value)
		if r.Errors[c.Key] == "" {
			delete(r.Errors, c.Key)
		}
	}
	r.IsValid = len(r.Errors) == 0
	return r
}

// validateField returns the value to store and an error message, empty
// when the field is valid.
func validateField(c schema.Column, value string) (string, string) {
	if strings.TrimSpace(value) == "" {
		if c.Required {
			return value, c.DisplayName() + " is required"
		}
		return value, ""
	}
	out, err := c.Validate(value)
	if err != nil {
		return value, err.Error()
	}
	return out, ""
}

// EditCell re-validates one field of one row with a new value. The returned
// slice shares every *Result with results except the one at rowIndex.
func (e *Engine) EditCell(results []*Result, rowIndex int, key, value string) ([]*Result, error) {
	if rowIndex < 0 || rowIndex >= len(results) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, rowIndex)
	}
	ci, ok := e.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownColumn, key)
	}

	prev := results[rowIndex]
	next := &Result{
		Transformed: make(map[string]string, len(prev.Transformed)+1),
		Errors:      make(map[string]string, len(prev.Errors)+1),
	}
	for k, v := range prev.Transformed {
		next.Transformed[k] = v
	}
	for k, v := range prev.Errors {
		next.Errors[k] = v
	}

	transformed, msg := validateField(e.cols[ci], value)
	next.Transformed[key] = transformed
	if msg != "" {
		next.Errors[key] = msg
	} else {
		delete(next.Errors, key)
	}
	next.IsValid = len(next.Errors) == 0

	out := make([]*Result, len(results))
	copy(out, results)
	out[rowIndex] = next
	return out, nil
}

// RemoveRow drops the result at rowIndex. Later rows shift down by one and
// are not re-validated.
func RemoveRow(results []*Result, rowIndex int) ([]*Result, error) {
	if rowIndex < 0 || rowIndex >= len(results) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, rowIndex)
	}
	out := make([]*Result, 0, len(results)-1)
	out = append(out, results[:rowIndex]...)
	return append(out, results[rowIndex+1:]...), nil
}
