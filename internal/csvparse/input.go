package csvparse

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Input is a payload handed to [Parser.Start].
type Input interface {
	load(opts Options) (string, error)
}

type textInput string

// TextInput wraps pasted text. The encoding option is ignored since the
// text is already decoded.
func TextInput(s string) Input { return textInput(s) }

func (t textInput) load(opts Options) (string, error) {
	if int64(len(t)) > opts.MaxInputSize {
		return "", &ParseError{Message: fmt.Sprintf("%d bytes", len(t)), Err: ErrInputTooLarge}
	}
	s := strings.TrimPrefix(string(t), "\ufeff")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return normalizeNewlines(s), nil
}

type readerInput struct{ r io.Reader }

// ReaderInput wraps an uploaded file. It is read to the end, decoded
// according to [Options.Encoding] and closed by the caller.
func ReaderInput(r io.Reader) Input { return readerInput{r: r} }

func (in readerInput) load(opts Options) (string, error) {
	dec, err := decoderFor(opts.Encoding)
	if err != nil {
		return "", &ParseError{Message: opts.Encoding, Err: err}
	}

	limited := &limitedReader{r: in.r, remaining: opts.MaxInputSize}
	b, err := io.ReadAll(transform.NewReader(limited, dec))
	if err != nil {
		if errors.Is(err, ErrInputTooLarge) {
			return "", &ParseError{Message: fmt.Sprintf("over %d bytes", opts.MaxInputSize), Err: ErrInputTooLarge}
		}
		return "", &ParseError{Message: "read input", Err: err}
	}
	return normalizeNewlines(string(b)), nil
}

// decoderFor returns a decoder producing valid UTF-8. UTF-8 input has its
// BOM stripped and invalid bytes replaced with U+FFFD.
func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder(), nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, name)
	}
	return enc.NewDecoder(), nil
}

// limitedReader fails once more than remaining bytes have been read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrInputTooLarge
	}
	return n, err
}

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// normalizeNewlines rewrites CRLF and bare CR to LF. It runs over the whole
// payload before chunking so a CRLF pair never straddles a boundary.
func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return newlineReplacer.Replace(s)
}

// splitChunks cuts s into near-equal pieces of at most about size bytes,
// never splitting a UTF-8 sequence.
func splitChunks(s string, size int) []string {
	if s == "" {
		return nil
	}
	n := (len(s) + size - 1) / size
	step := (len(s) + n - 1) / n

	chunks := make([]string, 0, n)
	for start := 0; start < len(s); {
		end := start + step
		if end >= len(s) {
			chunks = append(chunks, s[start:])
			break
		}
		for end < len(s) && !utf8.RuneStart(s[end]) {
			end++
		}
		chunks = append(chunks, s[start:end])
		start = end
	}
	return chunks
}
