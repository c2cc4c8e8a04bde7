package csvparse

import (
	"context"
	"math"
	"strings"
)

// tokenizer scans chunks of newline-normalized text.
type tokenizer struct {
	delim         rune
	quote         rune
	cancelEvery   int
	progressEvery int
}

func newTokenizer(opts Options) *tokenizer {
	return &tokenizer{
		delim:         opts.Delimiter,
		quote:         opts.Quote,
		cancelEvery:   opts.CancelCheckInterval,
		progressEvery: opts.ProgressInterval,
	}
}

// chunkRequest is the unit of work sent to the worker.
type chunkRequest struct {
	Index int
	Total int
	Text  string
	Final bool
	State State
}

// tokenize scans one chunk starting from req.State. It returns the rows
// completed within the chunk and the state to carry into the next one. On
// the final chunk the residual field and row are flushed and the returned
// state is empty apart from RowsParsed.
func (t *tokenizer) tokenize(ctx context.Context, req chunkRequest, report func(Progress)) ([][]string, State, error) {
	text := []rune(req.Text)
	n := len(text)

	var field strings.Builder
	field.WriteString(req.State.Field)
	row := append([]string(nil), req.State.Row...)
	inQuote := req.State.InQuote
	pending := req.State.QuotePending
	count := req.State.RowsParsed

	var rows [][]string

	i := 0
	if pending && n > 0 {
		pending = false
		if text[0] == t.quote {
			field.WriteRune(t.quote)
			i = 1
		} else {
			inQuote = false
		}
	}

	nextCheck, nextReport := 0, t.progressEvery
	for ; i < n; i++ {
		if i >= nextCheck {
			if ctx.Err() != nil {
				return nil, State{}, ErrParseCancelled
			}
			nextCheck = i + t.cancelEvery
		}
		if report != nil && i >= nextReport {
			report(chunkProgress(req, i, n, count))
			nextReport = i + t.progressEvery
		}

		c := text[i]
		switch {
		case c == t.quote && !inQuote:
			inQuote = true
		case c == t.quote:
			switch {
			case i+1 < n && text[i+1] == t.quote:
				field.WriteRune(t.quote)
				i++
			case i+1 < n || req.Final:
				inQuote = false
			default:
				pending = true
			}
		case c == t.delim && !inQuote:
			row = append(row, field.String())
			field.Reset()
		case c == '\n' && !inQuote:
			row = append(row, field.String())
			field.Reset()
			rows = append(rows, row)
			row = nil
			count++
		default:
			field.WriteRune(c)
		}
	}

	if ctx.Err() != nil {
		return nil, State{}, ErrParseCancelled
	}

	if !req.Final {
		st := State{
			Row:          row,
			Field:        field.String(),
			InQuote:      inQuote,
			QuotePending: pending,
			RowsParsed:   count,
		}
		if report != nil {
			report(chunkProgress(req, n, n, count))
		}
		return rows, st, nil
	}

	if field.Len() > 0 || len(row) > 0 {
		rows = append(rows, append(row, field.String()))
		count++
	}
	if report != nil {
		report(chunkProgress(req, n, n, count))
	}
	return rows, State{RowsParsed: count}, nil
}

func chunkProgress(req chunkRequest, consumed, length, rows int) Progress {
	frac := 1.0
	if length > 0 {
		frac = float64(consumed) / float64(length)
	}
	pct := 100
	if req.Total > 0 {
		pct = int(math.Round((float64(req.Index) + frac) / float64(req.Total) * 100))
	}
	return Progress{
		Percent:    clampPercent(pct),
		RowsParsed: rows,
		Chunk:      req.Index,
		Chunks:     req.Total,
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// dropTrailingEmpty removes a final row made of a single empty field, the
// artifact of a payload ending in a blank line.
func dropTrailingEmpty(rows [][]string) [][]string {
	if n := len(rows); n > 0 && len(rows[n-1]) == 1 && rows[n-1][0] == "" {
		return rows[:n-1]
	}
	return rows
}

// Tokenize splits text into rows in a single pass. It applies the same
// grammar as a chunked session and is meant for small inputs and tests.
func Tokenize(text string, opts Options) [][]string {
	opts = opts.withDefaults()
	t := newTokenizer(opts)
	rows, _, _ := t.tokenize(context.Background(), chunkRequest{
		Total: 1,
		Text:  normalizeNewlines(text),
		Final: true,
	}, nil)
	return dropTrailingEmpty(rows)
}
