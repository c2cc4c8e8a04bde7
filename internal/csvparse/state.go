package csvparse

// State is the tokenizer state carried across a chunk boundary.
type State struct {
	// Row holds the fields already closed on the in-progress row.
	Row []string

	// Field is the in-progress field text.
	Field string

	// InQuote is set when the chunk ended inside a quoted section.
	InQuote bool

	// QuotePending is set when the chunk ended on a quote character while
	// inside a quoted section. The next chunk's first character decides
	// whether it was an escaped quote or the closing one.
	QuotePending bool

	// RowsParsed counts rows completed so far in the session.
	RowsParsed int
}

// IsZero reports whether s is the initial state of a session.
func (s State) IsZero() bool {
	return len(s.Row) == 0 && s.Field == "" && !s.InQuote && !s.QuotePending && s.RowsParsed == 0
}

// Progress is a progress report for a parse session.
type Progress struct {
	Percent    int `json:"percent"`
	RowsParsed int `json:"rows_parsed"`
	Chunk      int `json:"chunk"`
	Chunks     int `json:"chunks"`
}
