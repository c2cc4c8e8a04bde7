package validate

import (
	"github.com/zeebo/xxh3"
)

// Summary counts results for the review step.
type Summary struct {
	Total          int            `json:"total"`
	Valid          int            `json:"valid"`
	Invalid        int            `json:"invalid"`
	DuplicateRows  int            `json:"duplicate_rows"`
	ErrorsByColumn map[string]int `json:"errors_by_column"`
}

// Summarize counts valid and invalid rows, errors per column and rows whose
// transformed record repeats an earlier one.
func (e *Engine) Summarize(results []*Result) Summary {
	s := Summary{
		Total:          len(results),
		ErrorsByColumn: make(map[string]int),
	}
	seen := make(map[uint64]struct{}, len(results))
	for _, r := range results {
		if r.IsValid {
			s.Valid++
		} else {
			s.Invalid++
		}
		for k := range r.Errors {
			s.ErrorsByColumn[k]++
		}

		h := e.fingerprint(r)
		if _, dup := seen[h]; dup {
			s.DuplicateRows++
		} else {
			seen[h] = struct{}{}
		}
	}
	return s
}

// fingerprint hashes the transformed values in column order. Fields are
// length-prefixed so ("ab","c") and ("a","bc") differ.
func (e *Engine) fingerprint(r *Result) uint64 {
	buf := make([]byte, 0, 64)
	for _, c := range e.cols {
		v := r.Transformed[c.Key]
		n := len(v)
		buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		buf = append(buf, v...)
	}
	return xxh3.Hash(buf)
}

// InvalidRows returns the indices of invalid results.
func InvalidRows(results []*Result) []int {
	var idx []int
	for i, r := range results {
		if !r.IsValid {
			idx = append(idx, i)
		}
	}
	return idx
}

// Records returns the transformed records for submission. It fails with
// *RowsInvalidError while any row is invalid.
func Records(results []*Result) ([]map[string]string, error) {
	if n := len(InvalidRows(results)); n > 0 {
		return nil, &RowsInvalidError{Count: n}
	}
	out := make([]map[string]string, len(results))
	for i, r := range results {
		rec := make(map[string]string, len(r.Transformed))
		for k, v := range r.Transformed {
			rec[k] = v
		}
		out[i] = rec
	}
	return out, nil
}
