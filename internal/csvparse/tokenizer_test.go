package csvparse

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
		want  [][]string
	}{
		{
			name:  "quoted delimiter newline and escaped quote",
			input: "a,\"b,c\nd\"\"e\",f",
			want:  [][]string{{"a", "b,c\nd\"e", "f"}},
		},
		{
			name:  "trailing blank line dropped",
			input: "x,y\n",
			want:  [][]string{{"x", "y"}},
		},
		{
			name:  "only last single empty row dropped",
			input: "x\n\n\n",
			want:  [][]string{{"x"}, {""}},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "lone newline",
			input: "\n",
			want:  [][]string{},
		},
		{
			name:  "trailing delimiter keeps empty field",
			input: "a,",
			want:  [][]string{{"a", ""}},
		},
		{
			name:  "ragged rows",
			input: "a,b,c\nd\ne,f",
			want:  [][]string{{"a", "b", "c"}, {"d"}, {"e", "f"}},
		},
		{
			name:  "crlf and bare cr",
			input: "a,b\r\nc,d\re,f\r\n",
			want:  [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}},
		},
		{
			name:  "semicolon delimiter",
			input: "a;\"b;c\"\n1;2",
			opts:  Options{Delimiter: ';'},
			want:  [][]string{{"a", "b;c"}, {"1", "2"}},
		},
		{
			name:  "tab delimiter with commas in data",
			input: "a,b\tc\n",
			opts:  Options{Delimiter: '\t'},
			want:  [][]string{{"a,b", "c"}},
		},
		{
			name:  "empty quoted field",
			input: "\"\",x",
			want:  [][]string{{"", "x"}},
		},
		{
			name:  "unterminated quote runs to end",
			input: "a,\"b\nc",
			want:  [][]string{{"a", "b\nc"}},
		},
		{
			name:  "multibyte content",
			input: "名前,メール\n山田,yamada@example.com",
			want:  [][]string{{"名前", "メール"}, {"山田", "yamada@example.com"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input, tt.opts)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenize_ChunkInvariance(t *testing.T) {
	inputs := []string{
		"a,\"b,c\nd\"\"e\",f",
		"name,email\n\"Smith, J\",j@x.io\n\"say \"\"hi\"\"\",\"\"\"\"\n",
		"a,b\r\nc,\"d\r\ne\"\r\n",
		"x\n\n\n",
		"\"\"\"\"\"\"\n,,\n\"a\"\"\",b",
		"é,ü\n\"ñ,ö\",ß\n",
	}

	for _, input := range inputs {
		want := Tokenize(input, Options{})
		for size := 1; size <= len(input)+1; size++ {
			got := tokenizeChunked(t, input, size)
			if len(got) == 0 && len(want) == 0 {
				continue
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("chunk size %d of %q:\n got  %q\n want %q", size, input, got, want)
			}
		}
	}
}

// tokenizeChunked drives the tokenizer directly over chunks, threading
// State by hand.
func tokenizeChunked(t *testing.T, input string, size int) [][]string {
	t.Helper()
	tok := newTokenizer(Options{}.withDefaults())
	chunks := splitChunks(normalizeNewlines(input), size)

	var rows [][]string
	var st State
	for i, c := range chunks {
		got, next, err := tok.tokenize(context.Background(), chunkRequest{
			Index: i,
			Total: len(chunks),
			Text:  c,
			Final: i == len(chunks)-1,
			State: st,
		}, nil)
		if err != nil {
			t.Fatalf("tokenize chunk %d: %v", i, err)
		}
		rows = append(rows, got...)
		st = next
	}
	return dropTrailingEmpty(rows)
}

func TestTokenize_EscapedQuoteAcrossBoundary(t *testing.T) {
	tok := newTokenizer(Options{}.withDefaults())

	rows, st, err := tok.tokenize(context.Background(), chunkRequest{Index: 0, Total: 2, Text: "\"a\""}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %q, want none", rows)
	}
	if !st.InQuote || !st.QuotePending || st.Field != "a" {
		t.Fatalf("state = %+v, want pending quote inside field \"a\"", st)
	}

	rows, _, err = tok.tokenize(context.Background(), chunkRequest{Index: 1, Total: 2, Text: "\"b\"", Final: true, State: st}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a\"b"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}
}

func TestTokenize_CarriedState(t *testing.T) {
	tok := newTokenizer(Options{}.withDefaults())

	_, st, err := tok.tokenize(context.Background(), chunkRequest{Index: 0, Total: 2, Text: "a,b\nc,\"d,"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := State{Row: []string{"c"}, Field: "d,", InQuote: true, RowsParsed: 1}
	if !reflect.DeepEqual(st, want) {
		t.Errorf("state = %+v, want %+v", st, want)
	}
}

func TestTokenize_Cancelled(t *testing.T) {
	tok := newTokenizer(Options{CancelCheckInterval: 10}.withDefaults())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, st, err := tok.tokenize(ctx, chunkRequest{Total: 1, Text: strings.Repeat("a,b\n", 100), Final: true}, nil)
	if err != ErrParseCancelled {
		t.Fatalf("err = %v, want ErrParseCancelled", err)
	}
	if rows != nil || !st.IsZero() {
		t.Errorf("cancelled tokenize leaked rows=%d state=%+v", len(rows), st)
	}
}

func TestTokenize_ProgressSampling(t *testing.T) {
	tok := newTokenizer(Options{ProgressInterval: 10}.withDefaults())
	var reports []Progress
	_, _, err := tok.tokenize(context.Background(), chunkRequest{Index: 1, Total: 2, Text: strings.Repeat("x", 35)}, func(p Progress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	// samples at 10, 20, 30 and the chunk end
	if len(reports) != 4 {
		t.Fatalf("reports = %d, want 4", len(reports))
	}
	if reports[0].Percent != 64 {
		t.Errorf("first percent = %d, want 64", reports[0].Percent)
	}
	if last := reports[len(reports)-1]; last.Percent != 100 {
		t.Errorf("last percent = %d, want 100", last.Percent)
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		size  int
		want  int
	}{
		{"empty", "", 4, 0},
		{"exact", "abcdefgh", 4, 2},
		{"remainder", "abcdefghi", 4, 3},
		{"single", "abc", 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitChunks(tt.input, tt.size)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d (%q)", len(got), tt.want, got)
			}
			if strings.Join(got, "") != tt.input {
				t.Errorf("chunks %q do not rejoin to %q", got, tt.input)
			}
		})
	}
}

func TestSplitChunks_RuneAligned(t *testing.T) {
	input := "ééééé"
	for size := 1; size <= len(input); size++ {
		for _, c := range splitChunks(input, size) {
			if !strings.HasPrefix(c, "é") {
				t.Fatalf("size %d produced chunk %q not starting on a rune", size, c)
			}
		}
	}
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{"comma", ',', false},
		{"tab", '\t', false},
		{`\t`, '\t', false},
		{"semicolon", ';', false},
		{"pipe", '|', false},
		{"space", ' ', false},
		{"#", '#', false},
		{"ab", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDelimiter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDelimiter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := (Options{}).Validate(); err != nil {
		t.Errorf("default options: %v", err)
	}
	if err := (Options{Delimiter: '"'}).Validate(); err == nil {
		t.Error("delimiter equal to quote should fail")
	}
	if err := (Options{Delimiter: '\n'}).Validate(); err == nil {
		t.Error("newline delimiter should fail")
	}
}
