// Package session drives an import through its steps: parse the upload,
// pick the header row, map columns, review validation results and submit.
//
// A [Service] owns every open session. All state of a session is guarded by
// its mutex; the parser goroutine only touches it through the handlers
// installed by [Service.StartParse].
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/csvmapper/internal/apperr"
	"github.com/JonMunkholm/csvmapper/internal/csvparse"
	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/schema"
	"github.com/JonMunkholm/csvmapper/internal/validate"
)

// Step is where a session is in the import flow.
type Step string

const (
	StepUpload    Step = "upload"
	StepParsing   Step = "parsing"
	StepHeader    Step = "header"
	StepMapping   Step = "mapping"
	StepReview    Step = "review"
	StepSubmitted Step = "submitted"
)

var (
	ErrSessionNotFound = apperr.ErrSessionNotFound
	ErrWrongStep       = apperr.ErrWrongStep
	ErrEmptyInput      = apperr.ErrEmptyInput
	ErrHeaderRow       = fmt.Errorf("header row: %w", validate.ErrRowOutOfRange)
)

func wrongStep(op string, have Step) error {
	return fmt.Errorf("%s %w %s", op, ErrWrongStep, have)
}

// Event is sent to progress subscribers. The final event of a parse has
// Done set, and Err set when the parse failed.
type Event struct {
	Progress csvparse.Progress `json:"progress"`
	Step     Step              `json:"step"`
	Done     bool              `json:"done"`
	Err      error             `json:"-"`
}

// parseRun is one parse started on a session. settled is closed once its
// terminal handler has updated the session.
type parseRun struct {
	parse   *csvparse.Session
	settled chan struct{}
}

// Session is one import. Fields are guarded by mu.
type Session struct {
	ID string

	mu       sync.Mutex
	step     Step
	lastSeen time.Time

	// parse state
	run      *parseRun
	progress csvparse.Progress
	lastPub  time.Time
	parseErr error
	subs     map[int]chan Event
	nextSub  int

	rows      [][]string
	headerRow int
	header    []string

	active  *schema.ActiveSet
	mapping mapping.Mapping

	engine  *validate.Engine
	results []*validate.Result
}

func newSession(id string, s *schema.Schema, now time.Time) *Session {
	return &Session{
		ID:       id,
		step:     StepUpload,
		lastSeen: now,
		subs:     make(map[int]chan Event),
		active:   schema.NewActiveSet(s),
		mapping:  mapping.Mapping{},
	}
}

// publish sends ev to every subscriber without blocking. A slow subscriber
// misses intermediate events. Must hold s.mu.
func (s *Session) publish(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// finish sends the terminal event and closes every subscriber. Must hold s.mu.
func (s *Session) finish(ev Event) {
	ev.Done = true
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Make room so the terminal event is never lost.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
		close(ch)
		delete(s.subs, id)
	}
}

// complete stores parsed rows and moves to header selection. Input with no
// rows is reported as ErrEmptyInput. Must hold s.mu.
func (s *Session) complete(rows [][]string) {
	if len(rows) == 0 {
		s.fail(ErrEmptyInput)
		return
	}
	s.rows = rows
	s.step = StepHeader
	s.finish(Event{Progress: s.progress, Step: s.step})
}

// fail returns the session to the upload step without rows. Cancellation
// takes this path too. Must hold s.mu.
func (s *Session) fail(err error) {
	s.step = StepUpload
	s.parseErr = err
	s.finish(Event{Progress: s.progress, Step: s.step, Err: err})
}

// dataRows returns the rows after the header row. Must hold s.mu.
func (s *Session) dataRows() [][]string {
	if s.headerRow+1 >= len(s.rows) {
		return nil
	}
	return s.rows[s.headerRow+1:]
}

// resetResults drops validation output after an upstream change. Must hold s.mu.
func (s *Session) resetResults() {
	s.engine = nil
	s.results = nil
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID        string            `json:"id"`
	Step      Step              `json:"step"`
	Progress  csvparse.Progress `json:"progress"`
	Error     error             `json:"-"`
	RowCount  int               `json:"row_count"`
	HeaderRow int               `json:"header_row"`
	Header    []string          `json:"header,omitempty"`
	Columns   []schema.Column   `json:"columns"`
	Mapping   mapping.Mapping   `json:"mapping"`
	Missing   []string          `json:"missing,omitempty"`
	Results   int               `json:"results"`
}

// snapshot must be called with s.mu held.
func (s *Session) snapshot() Snapshot {
	cols := s.active.Columns()
	snap := Snapshot{
		ID:        s.ID,
		Step:      s.step,
		Progress:  s.progress,
		Error:     s.parseErr,
		RowCount:  len(s.rows),
		HeaderRow: s.headerRow,
		Header:    append([]string(nil), s.header...),
		Columns:   cols,
		Mapping:   s.mapping.Clone(),
		Results:   len(s.results),
	}
	if s.header != nil {
		for _, c := range s.mapping.Missing(cols, len(s.header)) {
			snap.Missing = append(snap.Missing, c.DisplayName())
		}
	}
	return snap
}
