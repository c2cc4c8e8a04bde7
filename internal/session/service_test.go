package session

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvmapper/internal/csvparse"
	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/schema"
	"github.com/JonMunkholm/csvmapper/internal/validate"
)

const contactsCSV = "Exported 2024-01-01\n" +
	"First Name,Last Name,E-mail,Phone\n" +
	"Ann,Lee,ann@x.io,555-123-4567\n" +
	"Bob,Ray,bob@,\n" +
	"Cy,Ng,cy@x.io,12\n"

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(schema.Contacts(), Config{
		Parse:               csvparse.Options{ChunkSize: 16},
		MaxConcurrentParses: 2,
		MaxWait:             time.Second,
	})
}

func openAndWait(t *testing.T, svc *Service, text string) string {
	t.Helper()
	ctx := context.Background()
	id, err := svc.Open(ctx, csvparse.TextInput(text), csvparse.Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Wait(waitCtx, id); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return id
}

func TestService_FullFlow(t *testing.T) {
	svc := newTestService(t)
	id := openAndWait(t, svc, contactsCSV)

	st, err := svc.State(id)
	if err != nil {
		t.Fatal(err)
	}
	if st.Step != StepHeader || st.RowCount != 5 || st.Progress.Percent != 100 {
		t.Fatalf("after parse: step=%s rows=%d progress=%d", st.Step, st.RowCount, st.Progress.Percent)
	}

	page, err := svc.Rows(id, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 5 || !reflect.DeepEqual(page.Items, [][]string{{"First Name", "Last Name", "E-mail", "Phone"}}) {
		t.Errorf("Rows(1,1) = %+v", page)
	}

	ms, err := svc.SelectHeader(id, 1)
	if err != nil {
		t.Fatalf("SelectHeader() error = %v", err)
	}
	want := mapping.Mapping{"firstName": 0, "lastName": 1, "email": 2}
	if !reflect.DeepEqual(ms.Mapping, want) {
		t.Errorf("initial mapping = %v, want %v", ms.Mapping, want)
	}
	if len(ms.Missing) != 0 {
		t.Errorf("Missing = %v", ms.Missing)
	}

	if _, err := svc.ToggleColumn(id, "phone", true); err != nil {
		t.Fatalf("ToggleColumn() error = %v", err)
	}
	if _, err := svc.Validate(id); err == nil {
		t.Fatal("Validate() with unmapped toggled column should fail")
	} else {
		var mie *mapping.MappingIncompleteError
		if !errors.As(err, &mie) || !reflect.DeepEqual(mie.Labels, []string{"Phone Number"}) {
			t.Fatalf("Validate() err = %v", err)
		}
	}

	if _, err := svc.SetMapping(id, mapping.Mapping{"phone": 3}); err != nil {
		t.Fatalf("SetMapping() error = %v", err)
	}
	sum, err := svc.Validate(id)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if sum.Total != 3 || sum.Valid != 1 || sum.Invalid != 2 {
		t.Errorf("summary = %+v", sum)
	}

	if _, err := svc.Submit(context.Background(), id); err == nil {
		t.Fatal("Submit() with invalid rows should fail")
	} else {
		var rie *validate.RowsInvalidError
		if !errors.As(err, &rie) || rie.Count != 2 {
			t.Fatalf("Submit() err = %v", err)
		}
	}

	invalid, err := svc.Results(id, 0, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if invalid.Total != 2 || invalid.Items[0].Row != 1 || invalid.Items[1].Row != 2 {
		t.Errorf("invalid results = %+v", invalid)
	}

	r, err := svc.EditCell(id, 1, "email", "bob@x.io")
	if err != nil {
		t.Fatalf("EditCell() error = %v", err)
	}
	if r.IsValid {
		t.Errorf("row 1 still has required phone missing, got valid")
	}
	if _, err := svc.EditCell(id, 1, "phone", "555 000 1111"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveRow(id, 2); err != nil {
		t.Fatalf("RemoveRow() error = %v", err)
	}

	records, err := svc.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(records) != 2 || records[1]["email"] != "bob@x.io" {
		t.Errorf("records = %v", records)
	}

	st, _ = svc.State(id)
	if st.Step != StepSubmitted {
		t.Errorf("step = %s, want submitted", st.Step)
	}
	if _, err := svc.EditCell(id, 0, "email", "x"); !errors.Is(err, ErrWrongStep) {
		t.Errorf("EditCell after submit err = %v, want ErrWrongStep", err)
	}
	exp, err := svc.Export(id)
	if err != nil || len(exp.Records) != 2 || len(exp.Columns) != 4 {
		t.Errorf("Export() = %+v, %v", exp, err)
	}
}

func TestService_WrongStep(t *testing.T) {
	svc := newTestService(t)
	id := svc.Create()

	if _, err := svc.SelectHeader(id, 0); !errors.Is(err, ErrWrongStep) {
		t.Errorf("SelectHeader at upload err = %v", err)
	}
	if _, err := svc.Validate(id); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Validate at upload err = %v", err)
	}
	if _, err := svc.Rows(id, 0, 10); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Rows at upload err = %v", err)
	}
	if _, err := svc.Back(id); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Back at upload err = %v", err)
	}
}

func TestService_SelectHeaderOutOfRange(t *testing.T) {
	svc := newTestService(t)
	id := openAndWait(t, svc, "a,b\n1,2\n")

	if _, err := svc.SelectHeader(id, 2); !errors.Is(err, validate.ErrRowOutOfRange) {
		t.Errorf("err = %v, want ErrRowOutOfRange", err)
	}
}

func TestService_SetMappingRejectsBadIndex(t *testing.T) {
	svc := newTestService(t)
	id := openAndWait(t, svc, "email,first,last\nx@y.io,a,b\n")
	if _, err := svc.SelectHeader(id, 0); err != nil {
		t.Fatal(err)
	}

	var ie *mapping.IndexError
	if _, err := svc.SetMapping(id, mapping.Mapping{"email": 3}); !errors.As(err, &ie) {
		t.Errorf("err = %v, want *IndexError", err)
	}
	if _, err := svc.SetMapping(id, mapping.Mapping{"salary": 0}); !errors.Is(err, schema.ErrUnknownColumn) {
		t.Errorf("inactive key err = %v, want ErrUnknownColumn", err)
	}

	ms, err := svc.SetMapping(id, mapping.Mapping{"firstName": 1, "lastName": 1})
	if err != nil {
		t.Fatal(err)
	}
	if ms.Mapping.Index("firstName") != mapping.Unmapped || ms.Mapping.Index("lastName") != 1 {
		t.Errorf("shared index mapping = %v", ms.Mapping)
	}
}

func TestService_ToggleOffDropsMapping(t *testing.T) {
	svc := newTestService(t)
	id := openAndWait(t, svc, "First Name,Last Name,Email\na,b,c@d.ef\n")
	if _, err := svc.SelectHeader(id, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(id); err != nil {
		t.Fatal(err)
	}

	ms, err := svc.ToggleColumn(id, "email", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ms.Mapping["email"]; ok {
		t.Errorf("email still in mapping: %v", ms.Mapping)
	}
	st, _ := svc.State(id)
	if st.Step != StepMapping || st.Results != 0 {
		t.Errorf("after toggle: step=%s results=%d", st.Step, st.Results)
	}
	if _, err := svc.ToggleColumn(id, "nope", true); !errors.Is(err, schema.ErrUnknownColumn) {
		t.Errorf("unknown toggle err = %v", err)
	}
}

func TestService_EmptyInput(t *testing.T) {
	svc := newTestService(t)
	id := openAndWait(t, svc, "")

	st, err := svc.State(id)
	if err != nil {
		t.Fatal(err)
	}
	if st.Step != StepUpload || !errors.Is(st.Error, ErrEmptyInput) {
		t.Errorf("step=%s err=%v", st.Step, st.Error)
	}
}

func TestService_CancelParse(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.Parse.ChunkSize = 1

	id, err := svc.Open(context.Background(), csvparse.TextInput(strings.Repeat("a,b,c\n", 200000)), csvparse.Options{})
	if err != nil {
		t.Fatal(err)
	}
	events, unsubscribe, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	if err := svc.CancelParse(id); err != nil {
		t.Fatal(err)
	}

	var last Event
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-events:
			if !ok {
				done = true
				break
			}
			last = ev
		case <-timeout:
			t.Fatal("no terminal event")
		}
	}
	if !last.Done || last.Step != StepUpload || !errors.Is(last.Err, csvparse.ErrParseCancelled) {
		t.Errorf("terminal event = %+v", last)
	}

	st, _ := svc.State(id)
	if st.RowCount != 0 {
		t.Errorf("cancelled parse left %d rows", st.RowCount)
	}
	if got := svc.Limiter().Active(); got != 0 {
		t.Errorf("limiter still holds %d slots", got)
	}
}

func TestService_RestartCancelsPrevious(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.Parse.ChunkSize = 1
	ctx := context.Background()

	id, err := svc.Open(ctx, csvparse.TextInput(strings.Repeat("x,y\n", 20000)), csvparse.Options{})
	if err != nil {
		t.Fatal(err)
	}
	svc.cfg.Parse.ChunkSize = 0
	if err := svc.StartParse(ctx, id, csvparse.TextInput("h1,h2\n1,2\n"), csvparse.Options{}); err != nil {
		t.Fatal(err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Wait(waitCtx, id); err != nil {
		t.Fatal(err)
	}

	st, _ := svc.State(id)
	if st.Step != StepHeader || st.RowCount != 2 {
		t.Errorf("step=%s rows=%d, want header with 2 rows", st.Step, st.RowCount)
	}
}

func TestService_RestartWithSingleSlot(t *testing.T) {
	svc := NewService(schema.Contacts(), Config{
		Parse:               csvparse.Options{ChunkSize: 1},
		MaxConcurrentParses: 1,
		MaxWait:             300 * time.Millisecond,
	})
	ctx := context.Background()

	id, err := svc.Open(ctx, csvparse.TextInput(strings.Repeat("x,y\n", 200000)), csvparse.Options{})
	if err != nil {
		t.Fatal(err)
	}
	svc.cfg.Parse.ChunkSize = 0

	start := time.Now()
	if err := svc.StartParse(ctx, id, csvparse.TextInput("h1,h2\n1,2\n"), csvparse.Options{}); err != nil {
		t.Fatalf("restart err = %v after %v", err, time.Since(start))
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Wait(waitCtx, id); err != nil {
		t.Fatal(err)
	}

	st, _ := svc.State(id)
	if st.Step != StepHeader || st.RowCount != 2 {
		t.Errorf("step=%s rows=%d, want header with 2 rows", st.Step, st.RowCount)
	}
	if got := svc.Limiter().Active(); got != 0 {
		t.Errorf("limiter still holds %d slots", got)
	}
}

func TestService_SubscribeAfterParse(t *testing.T) {
	svc := newTestService(t)
	id := openAndWait(t, svc, "a,b\n")

	events, _, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatal(err)
	}
	ev, ok := <-events
	if !ok || !ev.Done || ev.Step != StepHeader {
		t.Errorf("event = %+v, ok = %v", ev, ok)
	}
	if _, ok := <-events; ok {
		t.Error("channel not closed after terminal event")
	}
}

func TestService_Back(t *testing.T) {
	svc := newTestService(t)
	id := openAndWait(t, svc, "First Name,Last Name,Email\na,b,c@d.ef\n")
	if _, err := svc.SelectHeader(id, 0); err != nil {
		t.Fatal(err)
	}

	for _, want := range []Step{StepHeader, StepUpload} {
		got, err := svc.Back(id)
		if err != nil || got != want {
			t.Fatalf("Back() = %s, %v; want %s", got, err, want)
		}
	}
}

func TestService_CloseAndEvict(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	svc.cfg.TTL = time.Minute

	keep := svc.Create()
	stale := svc.Create()
	closed := svc.Create()

	if err := svc.Close(closed); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(closed); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close err = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.State(keep); err != nil {
		t.Fatal(err)
	}
	if n := svc.Evict(); n != 1 {
		t.Errorf("Evict() = %d, want 1", n)
	}
	if _, err := svc.State(stale); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale session err = %v", err)
	}
	if svc.Len() != 1 {
		t.Errorf("Len() = %d, want 1", svc.Len())
	}
}

func TestService_TooManySessions(t *testing.T) {
	svc := NewService(schema.Contacts(), Config{MaxConcurrentParses: 1, MaxWait: 20 * time.Millisecond})
	if !svc.Limiter().TryAcquire() {
		t.Fatal("TryAcquire failed")
	}
	defer svc.Limiter().Release()

	if _, err := svc.Open(context.Background(), csvparse.TextInput("a\n"), csvparse.Options{}); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("Open() err = %v, want ErrTooManySessions", err)
	}
	if svc.Len() != 0 {
		t.Errorf("rejected session kept, Len() = %d", svc.Len())
	}
}

func TestPaginate(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	tests := []struct {
		offset, limit int
		want          []int
	}{
		{0, 0, items},
		{1, 2, []int{1, 2}},
		{4, 10, []int{4}},
		{9, 1, []int{}},
		{-3, 1, []int{0}},
	}
	for _, tt := range tests {
		got := paginate(items, tt.offset, tt.limit)
		if !reflect.DeepEqual(got.Items, tt.want) || got.Total != 5 {
			t.Errorf("paginate(%d, %d) = %+v, want %v", tt.offset, tt.limit, got, tt.want)
		}
	}
}
