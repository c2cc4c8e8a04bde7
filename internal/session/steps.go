package session

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/csvmapper/internal/logging"
	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/metrics"
	"github.com/JonMunkholm/csvmapper/internal/schema"
	"github.com/JonMunkholm/csvmapper/internal/validate"
)

// Page is a window onto a larger list.
type Page[T any] struct {
	Offset int `json:"offset"`
	Total  int `json:"total"`
	Items  []T `json:"items"`
}

func paginate[T any](items []T, offset, limit int) Page[T] {
	offset = min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 {
		end = min(offset+limit, len(items))
	}
	return Page[T]{Offset: offset, Total: len(items), Items: items[offset:end]}
}

func requireStep(op string, have Step, allowed ...Step) error {
	for _, a := range allowed {
		if have == a {
			return nil
		}
	}
	return wrongStep(op, have)
}

// Rows returns raw parsed rows for header selection.
func (svc *Service) Rows(id string, offset, limit int) (Page[[]string], error) {
	s, err := svc.lock(id)
	if err != nil {
		return Page[[]string]{}, err
	}
	defer s.mu.Unlock()

	if s.rows == nil {
		return Page[[]string]{}, wrongStep("rows", s.step)
	}
	return paginate(s.rows, offset, limit), nil
}

// MappingState is the mapping together with the columns it is checked
// against.
type MappingState struct {
	Header  []string        `json:"header"`
	Columns []schema.Column `json:"columns"`
	Mapping mapping.Mapping `json:"mapping"`
	Missing []string        `json:"missing,omitempty"`
}

// mappingState must be called with s.mu held.
func (s *Session) mappingState() MappingState {
	cols := s.active.Columns()
	st := MappingState{
		Header:  append([]string(nil), s.header...),
		Columns: cols,
		Mapping: s.mapping.Clone(),
	}
	for _, c := range s.mapping.Missing(cols, len(s.header)) {
		st.Missing = append(st.Missing, c.DisplayName())
	}
	return st
}

// SelectHeader picks the header row and proposes an initial mapping. Rows
// after it become the data rows. Picking again from a later step discards
// the mapping and results.
func (svc *Service) SelectHeader(id string, row int) (MappingState, error) {
	s, err := svc.lock(id)
	if err != nil {
		return MappingState{}, err
	}
	defer s.mu.Unlock()

	if err := requireStep("select header", s.step, StepHeader, StepMapping, StepReview); err != nil {
		return MappingState{}, err
	}
	if row < 0 || row >= len(s.rows) {
		return MappingState{}, fmt.Errorf("%w: %d", ErrHeaderRow, row)
	}

	s.headerRow = row
	s.header = append([]string(nil), s.rows[row]...)
	s.mapping = svc.mapper.Initial(s.header, s.active.Columns())
	s.resetResults()
	s.step = StepMapping
	return s.mappingState(), nil
}

// Mapping returns the current mapping.
func (svc *Service) Mapping(id string) (MappingState, error) {
	s, err := svc.lock(id)
	if err != nil {
		return MappingState{}, err
	}
	defer s.mu.Unlock()

	if err := requireStep("mapping", s.step, StepMapping, StepReview); err != nil {
		return MappingState{}, err
	}
	return s.mappingState(), nil
}

// SetMapping applies assignments in active column order. A source index
// claimed by two keys goes to the later one. Keys not in the map keep
// their current assignment.
func (svc *Service) SetMapping(id string, assign mapping.Mapping) (MappingState, error) {
	s, err := svc.lock(id)
	if err != nil {
		return MappingState{}, err
	}
	defer s.mu.Unlock()

	if err := requireStep("set mapping", s.step, StepMapping, StepReview); err != nil {
		return MappingState{}, err
	}
	cols := s.active.Columns()
	if err := assign.Validate(cols, len(s.header)); err != nil {
		return MappingState{}, err
	}

	next := s.mapping.Clone()
	for _, c := range cols {
		if i, ok := assign[c.Key]; ok {
			next.Assign(c.Key, i)
		}
	}
	s.mapping = next
	s.resetResults()
	s.step = StepMapping
	return s.mappingState(), nil
}

// ToggleColumn adds or removes a column from the active set. An added
// column is required and starts Unmapped; a removed one leaves the mapping.
func (svc *Service) ToggleColumn(id, key string, on bool) (MappingState, error) {
	s, err := svc.lock(id)
	if err != nil {
		return MappingState{}, err
	}
	defer s.mu.Unlock()

	if err := requireStep("toggle column", s.step, StepMapping, StepReview); err != nil {
		return MappingState{}, err
	}
	wasActive := s.active.IsActive(key)
	if err := s.active.Toggle(key, on); err != nil {
		return MappingState{}, err
	}
	switch {
	case on && !wasActive:
		s.mapping = s.mapping.Clone()
		s.mapping.Unassign(key)
	case !on:
		s.mapping = s.mapping.Clone()
		delete(s.mapping, key)
	}
	s.resetResults()
	s.step = StepMapping
	return s.mappingState(), nil
}

// Validate runs the mapping gate and validates every data row.
func (svc *Service) Validate(id string) (validate.Summary, error) {
	s, err := svc.lock(id)
	if err != nil {
		return validate.Summary{}, err
	}
	defer s.mu.Unlock()

	if err := requireStep("validate", s.step, StepMapping, StepReview); err != nil {
		return validate.Summary{}, err
	}
	cols := s.active.Columns()
	if err := s.mapping.Check(cols, len(s.header)); err != nil {
		return validate.Summary{}, err
	}

	start := svc.now()
	engine := validate.New(cols)
	results, err := engine.ValidateAll(s.dataRows(), s.mapping)
	if err != nil {
		return validate.Summary{}, err
	}
	s.engine, s.results = engine, results
	s.step = StepReview

	sum := engine.Summarize(results)
	metrics.RecordValidation(sum.Valid, sum.Invalid, svc.now().Sub(start))
	return sum, nil
}

func (svc *Service) lockReview(id, op string) (*Session, error) {
	s, err := svc.lock(id)
	if err != nil {
		return nil, err
	}
	if err := requireStep(op, s.step, StepReview); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// Results returns validation results. onlyInvalid filters to failing rows;
// the returned row numbers index the full result set.
func (svc *Service) Results(id string, offset, limit int, onlyInvalid bool) (Page[RowResult], error) {
	s, err := svc.lockReview(id, "results")
	if err != nil {
		return Page[RowResult]{}, err
	}
	defer s.mu.Unlock()

	rows := make([]RowResult, 0, len(s.results))
	for i, r := range s.results {
		if onlyInvalid && r.IsValid {
			continue
		}
		rows = append(rows, RowResult{Row: i, Result: r})
	}
	return paginate(rows, offset, limit), nil
}

// RowResult is a result tagged with its row number.
type RowResult struct {
	Row int `json:"row"`
	*validate.Result
}

// Summary counts the current results.
func (svc *Service) Summary(id string) (validate.Summary, error) {
	s, err := svc.lockReview(id, "summary")
	if err != nil {
		return validate.Summary{}, err
	}
	defer s.mu.Unlock()
	return s.engine.Summarize(s.results), nil
}

// EditCell sets one cell of a result row and re-validates that field.
func (svc *Service) EditCell(id string, row int, key, value string) (*validate.Result, error) {
	s, err := svc.lockReview(id, "edit cell")
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	results, err := s.engine.EditCell(s.results, row, key, value)
	if err != nil {
		return nil, err
	}
	s.results = results
	metrics.RecordRows("edited", 1)
	return results[row], nil
}

// RemoveRow drops a result row. Later rows shift down by one.
func (svc *Service) RemoveRow(id string, row int) error {
	s, err := svc.lockReview(id, "remove row")
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	results, err := validate.RemoveRow(s.results, row)
	if err != nil {
		return err
	}
	s.results = results
	metrics.RecordRows("removed", 1)
	return nil
}

// Submit returns the records once every row is valid and closes the flow.
func (svc *Service) Submit(ctx context.Context, id string) ([]map[string]string, error) {
	s, err := svc.lockReview(id, "submit")
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	records, err := validate.Records(s.results)
	if err != nil {
		return nil, err
	}
	s.step = StepSubmitted
	metrics.RecordRows("submitted", len(records))
	logging.FromContext(logging.WithSession(ctx, s.ID)).Info("import submitted", "rows", len(records))
	return records, nil
}

// ExportData is what an export writes: the active columns and each row's
// transformed record, valid or not.
type ExportData struct {
	Columns []schema.Column
	Records []map[string]string
	Created time.Time
}

// Export returns the data for an export of the current results.
func (svc *Service) Export(id string) (ExportData, error) {
	s, err := svc.lock(id)
	if err != nil {
		return ExportData{}, err
	}
	defer s.mu.Unlock()

	if err := requireStep("export", s.step, StepReview, StepSubmitted); err != nil {
		return ExportData{}, err
	}
	out := ExportData{
		Columns: s.engine.Columns(),
		Records: make([]map[string]string, len(s.results)),
		Created: svc.now(),
	}
	for i, r := range s.results {
		out.Records[i] = r.Transformed
	}
	return out, nil
}

// Back returns to the previous step. Going back from header selection
// drops the parsed rows.
func (svc *Service) Back(id string) (Step, error) {
	s, err := svc.lock(id)
	if err != nil {
		return "", err
	}
	defer s.mu.Unlock()

	switch s.step {
	case StepMapping:
		s.step = StepHeader
	case StepReview:
		s.step = StepMapping
	case StepHeader:
		s.step = StepUpload
		s.rows = nil
	default:
		return "", wrongStep("back", s.step)
	}
	return s.step, nil
}
