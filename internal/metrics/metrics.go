// Package metrics records operational metrics for parse sessions.
//
// Callers use the Record* helpers. The backend defaults to a no-op, so
// metrics are always safe to record; cmd/server installs a Prometheus or
// DogStatsD backend with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names. Backends may add a namespace prefix.
const (
	ParseTotal      = "parse_total"
	ParseDuration   = "parse_duration_seconds"
	RowsTotal       = "rows_total"
	SessionsTotal   = "sessions_total"
	ValidateSeconds = "validate_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes buffered metrics.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordParse counts a finished parse and its duration. status is one of
// "complete", "cancelled" or "failed".
func RecordParse(status string, rows int, d time.Duration) {
	b := current()
	lbls := Labels{"status": status}
	b.IncCounter(ParseTotal, 1, lbls)
	b.ObserveHistogram(ParseDuration, d.Seconds(), lbls)
	if rows > 0 {
		b.IncCounter(RowsTotal, float64(rows), Labels{"kind": "parsed"})
	}
}

// RecordValidation counts validated rows by outcome.
func RecordValidation(valid, invalid int, d time.Duration) {
	b := current()
	if valid > 0 {
		b.IncCounter(RowsTotal, float64(valid), Labels{"kind": "valid"})
	}
	if invalid > 0 {
		b.IncCounter(RowsTotal, float64(invalid), Labels{"kind": "invalid"})
	}
	b.ObserveHistogram(ValidateSeconds, d.Seconds(), nil)
}

// RecordRows increments the row counter for kind, such as "edited",
// "removed" or "submitted".
func RecordRows(kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"kind": kind})
}

// RecordSession counts a session lifecycle event: "created", "closed",
// "expired" or "rejected".
func RecordSession(event string) {
	current().IncCounter(SessionsTotal, 1, Labels{"event": event})
}
