package csvparse

import (
	"context"
	"fmt"
)

type msgKind int

const (
	msgProgress msgKind = iota
	msgResult
	msgError
)

// workerMsg is sent from the worker to the driver. A chunk produces any
// number of progress messages followed by one result or one error.
type workerMsg struct {
	kind     msgKind
	index    int
	progress Progress
	rows     [][]string
	state    State
	err      error
}

// runWorker tokenizes chunk requests until reqs is closed or ctx ends. It
// owns no state between requests; everything it needs arrives in the request.
func runWorker(ctx context.Context, t *tokenizer, reqs <-chan chunkRequest, out chan<- workerMsg) error {
	defer close(out)

	send := func(m workerMsg) error {
		select {
		case out <- m:
			return nil
		case <-ctx.Done():
			return ErrParseCancelled
		}
	}

	for {
		var req chunkRequest
		var ok bool
		select {
		case req, ok = <-reqs:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ErrParseCancelled
		}

		var sendErr error
		report := func(p Progress) {
			if sendErr == nil {
				sendErr = send(workerMsg{kind: msgProgress, index: req.Index, progress: p})
			}
		}

		rows, st, err := safeTokenize(ctx, t, req, report)
		if sendErr != nil {
			return sendErr
		}
		if err != nil {
			_ = send(workerMsg{kind: msgError, index: req.Index, err: err})
			return err
		}
		if err := send(workerMsg{kind: msgResult, index: req.Index, rows: rows, state: st}); err != nil {
			return err
		}
	}
}

// safeTokenize turns a panic in the tokenizer into a ParseError.
func safeTokenize(ctx context.Context, t *tokenizer, req chunkRequest, report func(Progress)) (rows [][]string, st State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ParseError{Message: fmt.Sprintf("chunk %d", req.Index), Err: fmt.Errorf("%v", r)}
		}
	}()
	return t.tokenize(ctx, req, report)
}
