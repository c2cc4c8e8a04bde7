package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvmapper/internal/csvparse"
	"github.com/JonMunkholm/csvmapper/internal/logging"
	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/metrics"
	"github.com/JonMunkholm/csvmapper/internal/schema"
)

// Config tunes a Service.
type Config struct {
	Parse               csvparse.Options
	MaxConcurrentParses int
	MaxWait             time.Duration
	TTL                 time.Duration
	ProgressThrottle    time.Duration
	SimilarityThreshold float64
}

// Service holds the open sessions for one schema.
type Service struct {
	cfg     Config
	schema  *schema.Schema
	mapper  mapping.Mapper
	limiter *Limiter
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService returns a service importing into s.
func NewService(s *schema.Schema, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &Service{
		cfg:      cfg,
		schema:   s,
		mapper:   mapping.Mapper{Threshold: cfg.SimilarityThreshold},
		limiter:  NewLimiter(cfg.MaxConcurrentParses, cfg.MaxWait),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Schema returns the schema sessions import into.
func (svc *Service) Schema() *schema.Schema {
	return svc.schema
}

// Limiter exposes the parse limiter for health output and shutdown.
func (svc *Service) Limiter() *Limiter {
	return svc.limiter
}

// Create opens an empty session at the upload step.
func (svc *Service) Create() string {
	id := uuid.New().String()
	s := newSession(id, svc.schema, svc.now())

	svc.mu.Lock()
	svc.sessions[id] = s
	svc.mu.Unlock()

	metrics.RecordSession("created")
	return id
}

// Open creates a session and starts parsing in.
func (svc *Service) Open(ctx context.Context, in csvparse.Input, opts csvparse.Options) (string, error) {
	id := svc.Create()
	if err := svc.StartParse(ctx, id, in, opts); err != nil {
		svc.remove(id)
		return "", err
	}
	return id, nil
}

func (svc *Service) get(id string) (*Session, error) {
	svc.mu.RLock()
	s, ok := svc.sessions[id]
	svc.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// lock returns the session with its mutex held and lastSeen refreshed.
func (svc *Service) lock(id string) (*Session, error) {
	s, err := svc.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastSeen = svc.now()
	return s, nil
}

func (svc *Service) remove(id string) *Session {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	s := svc.sessions[id]
	delete(svc.sessions, id)
	return s
}

// parseOptions merges per-upload overrides into the service defaults.
func (svc *Service) parseOptions(o csvparse.Options) (csvparse.Options, error) {
	opts := svc.cfg.Parse
	if o.Delimiter != 0 {
		opts.Delimiter = o.Delimiter
	}
	if o.Quote != 0 {
		opts.Quote = o.Quote
	}
	if o.Encoding != "" {
		opts.Encoding = o.Encoding
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// StartParse parses in for session id. A parse already running on the
// session is cancelled and its slot released before a new slot is taken.
// It waits for a free parse slot and fails with ErrTooManySessions when
// none frees up in time.
func (svc *Service) StartParse(ctx context.Context, id string, in csvparse.Input, o csvparse.Options) error {
	opts, err := svc.parseOptions(o)
	if err != nil {
		return err
	}
	if err := svc.stopRun(ctx, id); err != nil {
		return err
	}

	if err := svc.limiter.Acquire(ctx); err != nil {
		metrics.RecordSession("rejected")
		return err
	}

	s, err := svc.lock(id)
	if err != nil {
		svc.limiter.Release()
		return err
	}
	defer s.mu.Unlock()

	// Another restart may have slipped in while the slot was acquired.
	if s.run != nil {
		s.run.parse.Cancel()
	}
	s.step = StepParsing
	s.progress = csvparse.Progress{}
	s.lastPub = time.Time{}
	s.parseErr = nil
	s.rows, s.header, s.headerRow = nil, nil, 0
	s.mapping = mapping.Mapping{}
	s.resetResults()

	// The parse outlives the request that started it.
	pctx := logging.WithSession(context.WithoutCancel(ctx), id)
	start := svc.now()
	run := &parseRun{settled: make(chan struct{})}
	s.run = run

	settle := func(status string, rows int, update func()) {
		svc.limiter.Release()
		metrics.RecordParse(status, rows, svc.now().Sub(start))
		s.mu.Lock()
		if s.run == run {
			s.run = nil
			update()
		}
		s.mu.Unlock()
		close(run.settled)
	}

	run.parse = csvparse.NewParser(opts).Start(pctx, in, csvparse.Handlers{
		OnProgress: func(p csvparse.Progress) {
			svc.onProgress(s, run, p)
		},
		OnComplete: func(rows [][]string) {
			settle("complete", len(rows), func() { s.complete(rows) })
		},
		OnError: func(err error) {
			settle("failed", 0, func() { s.fail(err) })
		},
		OnCancelled: func() {
			settle("cancelled", 0, func() { s.fail(csvparse.ErrParseCancelled) })
		},
	})
	return nil
}

// stopRun cancels the session's running parse and waits until it has
// released its parse slot.
func (svc *Service) stopRun(ctx context.Context, id string) error {
	s, err := svc.lock(id)
	if err != nil {
		return err
	}
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return nil
	}

	run.parse.Cancel()
	select {
	case <-run.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (svc *Service) onProgress(s *Session, run *parseRun, p csvparse.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != run {
		return
	}
	s.progress = p
	now := svc.now()
	if p.Percent < 100 && now.Sub(s.lastPub) < svc.cfg.ProgressThrottle {
		return
	}
	s.lastPub = now
	s.publish(Event{Progress: p, Step: s.step})
}

// SubscribeProgress returns a channel of parse events. It receives the
// current progress at once and is closed after the terminal event. When no
// parse is running the channel carries a single terminal event. Call the
// returned func to unsubscribe early.
func (svc *Service) SubscribeProgress(id string) (<-chan Event, func(), error) {
	s, err := svc.lock(id)
	if err != nil {
		return nil, nil, err
	}
	defer s.mu.Unlock()

	ch := make(chan Event, 10)
	if s.step != StepParsing {
		ch <- Event{Progress: s.progress, Step: s.step, Done: true, Err: s.parseErr}
		close(ch)
		return ch, func() {}, nil
	}

	subID := s.nextSub
	s.nextSub++
	s.subs[subID] = ch
	ch <- Event{Progress: s.progress, Step: s.step}

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[subID]; ok {
			delete(s.subs, subID)
			close(c)
		}
	}
	return ch, unsubscribe, nil
}

// CancelParse cancels the running parse. It is a no-op when nothing is
// running.
func (svc *Service) CancelParse(id string) error {
	s, err := svc.lock(id)
	if err != nil {
		return err
	}
	run := s.run
	s.mu.Unlock()

	if run != nil {
		run.parse.Cancel()
	}
	return nil
}

// Wait blocks until the session's current parse, if any, has finished and
// the session reflects its outcome.
func (svc *Service) Wait(ctx context.Context, id string) error {
	s, err := svc.lock(id)
	if err != nil {
		return err
	}
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return nil
	}
	select {
	case <-run.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the session.
func (svc *Service) State(id string) (Snapshot, error) {
	s, err := svc.lock(id)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Close cancels any parse and forgets the session.
func (svc *Service) Close(id string) error {
	s := svc.remove(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.mu.Lock()
	if s.run != nil {
		s.run.parse.Cancel()
	}
	s.mu.Unlock()
	metrics.RecordSession("closed")
	return nil
}

// Len returns the number of open sessions.
func (svc *Service) Len() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.sessions)
}

// Evict closes sessions idle for longer than the TTL. Sessions with a
// running parse are kept.
func (svc *Service) Evict() int {
	cutoff := svc.now().Add(-svc.cfg.TTL)

	svc.mu.Lock()
	var expired []string
	for id, s := range svc.sessions {
		s.mu.Lock()
		if s.step != StepParsing && s.lastSeen.Before(cutoff) {
			expired = append(expired, id)
		}
		s.mu.Unlock()
	}
	for _, id := range expired {
		delete(svc.sessions, id)
	}
	svc.mu.Unlock()

	for range expired {
		metrics.RecordSession("expired")
	}
	return len(expired)
}

// Run evicts idle sessions every interval until ctx is done.
func (svc *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := svc.Evict(); n > 0 {
				logger.Info("evicted idle sessions", "count", n)
			}
		}
	}
}
