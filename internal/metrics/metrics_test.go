package metrics

import (
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushes    int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	t.Cleanup(func() { SetBackend(orig) })
	fb := &fakeBackend{}
	SetBackend(fb)
	return fb
}

func TestRecordParse(t *testing.T) {
	fb := install(t)

	RecordParse("complete", 10, 1500*time.Millisecond)
	RecordParse("cancelled", 0, time.Second)

	if len(fb.counters) != 3 {
		t.Fatalf("got %d counter calls, want 3", len(fb.counters))
	}
	if c := fb.counters[0]; c.name != ParseTotal || c.labels["status"] != "complete" {
		t.Errorf("counter[0] = %#v", c)
	}
	if c := fb.counters[1]; c.name != RowsTotal || c.delta != 10 || c.labels["kind"] != "parsed" {
		t.Errorf("counter[1] = %#v", c)
	}
	if c := fb.counters[2]; c.labels["status"] != "cancelled" {
		t.Errorf("counter[2] = %#v", c)
	}
	if len(fb.histograms) != 2 || fb.histograms[0].value != 1.5 {
		t.Errorf("histograms = %#v", fb.histograms)
	}
}

func TestRecordValidation(t *testing.T) {
	fb := install(t)

	RecordValidation(3, 0, time.Millisecond)

	if len(fb.counters) != 1 || fb.counters[0].labels["kind"] != "valid" || fb.counters[0].delta != 3 {
		t.Errorf("counters = %#v", fb.counters)
	}
	if len(fb.histograms) != 1 || fb.histograms[0].name != ValidateSeconds {
		t.Errorf("histograms = %#v", fb.histograms)
	}
}

func TestRecordRows_IgnoresNonPositive(t *testing.T) {
	fb := install(t)

	RecordRows("edited", 0)
	RecordRows("edited", -2)
	RecordRows("removed", 1)

	if len(fb.counters) != 1 || fb.counters[0].labels["kind"] != "removed" {
		t.Errorf("counters = %#v", fb.counters)
	}
}

func TestSetBackend_NilKeepsCurrent(t *testing.T) {
	fb := install(t)
	SetBackend(nil)

	RecordSession("created")
	if err := Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(fb.counters) != 1 || fb.flushes != 1 {
		t.Errorf("counters = %d, flushes = %d", len(fb.counters), fb.flushes)
	}
}
