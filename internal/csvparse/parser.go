package csvparse

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvmapper/internal/logging"
)

// Handlers receive session events. All fields are optional. OnProgress runs
// on the driver goroutine; the terminal callbacks run once after the
// session is done.
type Handlers struct {
	OnProgress  func(Progress)
	OnComplete  func(rows [][]string)
	OnError     func(err error)
	OnCancelled func()
}

// Parser starts parse sessions. At most one session per Parser is in
// flight; starting another cancels the previous one.
type Parser struct {
	opts Options

	mu      sync.Mutex
	current *Session
}

// NewParser returns a Parser using opts, with zero fields defaulted.
func NewParser(opts Options) *Parser {
	return &Parser{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (p *Parser) Options() Options {
	return p.opts
}

// Session is one run of the parser over one payload.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}

	rows [][]string
	err  error
}

// Cancel requests cancellation. It is a no-op once the session is done.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed when the session has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes and returns its rows or error.
func (s *Session) Wait() ([][]string, error) {
	<-s.done
	return s.rows, s.err
}

// Start launches a session over in. The returned Session is already running.
func (p *Parser) Start(ctx context.Context, in Input, h Handlers) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.current != nil {
		p.current.Cancel()
	}
	p.current = s
	p.mu.Unlock()

	go p.run(ctx, s, in, h)
	return s
}

// Parse runs a session to completion.
func (p *Parser) Parse(ctx context.Context, in Input, onProgress func(Progress)) ([][]string, error) {
	return p.Start(ctx, in, Handlers{OnProgress: onProgress}).Wait()
}

func (p *Parser) run(ctx context.Context, s *Session, in Input, h Handlers) {
	start := time.Now()
	logger := logging.FromContext(ctx)

	rows, chunks, err := p.execute(ctx, in, h)
	if err != nil && ctx.Err() != nil {
		err = ErrParseCancelled
	}
	if err != nil {
		rows = nil
	}
	s.rows, s.err = rows, err
	s.cancel()
	close(s.done)

	p.mu.Lock()
	if p.current == s {
		p.current = nil
	}
	p.mu.Unlock()

	switch {
	case err == nil:
		logger.Info("parse complete",
			"rows", len(rows),
			"chunks", chunks,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if h.OnComplete != nil {
			h.OnComplete(rows)
		}
	case errors.Is(err, ErrParseCancelled):
		logger.Info("parse cancelled", "duration_ms", time.Since(start).Milliseconds())
		if h.OnCancelled != nil {
			h.OnCancelled()
		}
	default:
		logger.Error("parse failed", "error", err)
		if h.OnError != nil {
			h.OnError(err)
		}
	}
}

func (p *Parser) execute(ctx context.Context, in Input, h Handlers) ([][]string, int, error) {
	text, err := in.load(p.opts)
	if err != nil {
		return nil, 0, err
	}
	if ctx.Err() != nil {
		return nil, 0, ErrParseCancelled
	}

	chunks := splitChunks(text, p.opts.ChunkSize)
	logging.FromContext(ctx).Debug("parse started", "bytes", len(text), "chunks", len(chunks))

	reqs := make(chan chunkRequest)
	msgs := make(chan workerMsg, 16)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runWorker(gctx, newTokenizer(p.opts), reqs, msgs)
	})

	var rows [][]string
	g.Go(func() error {
		defer close(reqs)
		var err error
		rows, err = drive(gctx, chunks, reqs, msgs, h.OnProgress)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, len(chunks), err
	}
	return rows, len(chunks), nil
}

// drive feeds chunks to the worker in order, threading State from each
// result into the next request.
func drive(ctx context.Context, chunks []string, reqs chan<- chunkRequest, msgs <-chan workerMsg, onProgress func(Progress)) ([][]string, error) {
	last := Progress{Percent: -1}
	// A repeated percentage is only reported when the row count changed.
	emit := func(pr Progress) {
		if pr.Percent < last.Percent || (pr.Percent == last.Percent && pr.RowsParsed == last.RowsParsed) {
			return
		}
		last = pr
		if onProgress != nil {
			onProgress(pr)
		}
	}

	var (
		state State
		rows  [][]string
	)
	for i, text := range chunks {
		req := chunkRequest{
			Index: i,
			Total: len(chunks),
			Text:  text,
			Final: i == len(chunks)-1,
			State: state,
		}
		select {
		case reqs <- req:
		case <-ctx.Done():
			return nil, ErrParseCancelled
		}

	wait:
		for {
			select {
			case m, ok := <-msgs:
				if !ok {
					return nil, &ParseError{Message: "worker exited before chunk result"}
				}
				if m.index != i {
					return nil, &ParseError{Message: "chunk result out of order"}
				}
				switch m.kind {
				case msgProgress:
					emit(m.progress)
				case msgError:
					return nil, m.err
				case msgResult:
					if ctx.Err() != nil {
						return nil, ErrParseCancelled
					}
					rows = append(rows, m.rows...)
					state = m.state
					break wait
				}
			case <-ctx.Done():
				return nil, ErrParseCancelled
			}
		}
	}

	rows = dropTrailingEmpty(rows)
	emit(Progress{Percent: 100, RowsParsed: len(rows), Chunk: max(len(chunks)-1, 0), Chunks: len(chunks)})
	return rows, nil
}
