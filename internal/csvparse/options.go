package csvparse

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults applied by [Options] when a field is left zero.
const (
	DefaultChunkSize           = 1 << 20
	DefaultProgressInterval    = 50000
	DefaultCancelCheckInterval = 1000
	DefaultMaxInputSize        = 100 << 20
	DefaultEncoding            = "utf-8"
)

// Options configures tokenization.
type Options struct {
	Delimiter           rune
	Quote               rune
	ChunkSize           int
	ProgressInterval    int
	CancelCheckInterval int
	MaxInputSize        int64
	Encoding            string
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Quote == 0 {
		o.Quote = '"'
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.CancelCheckInterval <= 0 {
		o.CancelCheckInterval = DefaultCancelCheckInterval
	}
	if o.MaxInputSize <= 0 {
		o.MaxInputSize = DefaultMaxInputSize
	}
	if o.Encoding == "" {
		o.Encoding = DefaultEncoding
	}
	return o
}

// Validate reports options that would make the grammar ambiguous.
func (o Options) Validate() error {
	o = o.withDefaults()
	switch {
	case o.Delimiter == o.Quote:
		return fmt.Errorf("delimiter and quote must differ (both %q)", o.Delimiter)
	case o.Delimiter == '\n' || o.Delimiter == '\r':
		return fmt.Errorf("delimiter cannot be a newline")
	case o.Quote == '\n' || o.Quote == '\r':
		return fmt.Errorf("quote cannot be a newline")
	case o.Delimiter == utf8.RuneError || o.Quote == utf8.RuneError:
		return fmt.Errorf("delimiter and quote must be valid characters")
	}
	return nil
}

// ParseDelimiter resolves a delimiter given by name or as a single character.
// Accepted names are comma, tab, semicolon, pipe and space; "\t" is
// accepted as an escaped tab.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "comma", ",":
		return ',', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	case "semicolon", ";":
		return ';', nil
	case "pipe", "|":
		return '|', nil
	case "space", " ":
		return ' ', nil
	}
	if utf8.RuneCountInString(s) == 1 {
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	}
	return 0, fmt.Errorf("unknown delimiter %q", s)
}
