package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvmapper/internal/apperr"
	"github.com/JonMunkholm/csvmapper/internal/csvparse"
	"github.com/JonMunkholm/csvmapper/internal/export"
	"github.com/JonMunkholm/csvmapper/internal/logging"
	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/schema"
	"github.com/JonMunkholm/csvmapper/internal/validate"
)

// maxReportedRows caps the invalid rows listed on stderr.
const maxReportedRows = 20

type mapOptions struct {
	schemaFile   string
	headerRow    int
	delimiter    string
	quote        string
	encoding     string
	chunkSize    int
	format       string
	out          string
	allowInvalid bool
	threshold    float64
	enable       []string
	assign       map[string]int
}

func newMapCmd(verbose *bool) *cobra.Command {
	var o mapOptions

	cmd := &cobra.Command{
		Use:   "map FILE",
		Short: "Map, validate and export a delimited file",
		Long: `map parses FILE, maps the columns of its header row onto the schema by name
and validates every data row. When all rows are valid the records are
written to --out (stdout by default). Invalid rows are listed on stderr and
the command fails unless --allow-invalid is set.

Columns are matched by normalized name, then by similarity. Use --map to
override a match and --enable to add a non-default column, which then
becomes required.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if *verbose {
				level = "debug"
			}
			logger := logging.New(cmd.ErrOrStderr(), level, "text")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runMap(ctx, logger, cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.schemaFile, "schema", "", "YAML schema file (default: built-in contacts schema)")
	f.IntVar(&o.headerRow, "header-row", 0, "Zero-based index of the header row")
	f.StringVar(&o.delimiter, "delimiter", ",", "Field delimiter: a character or comma, tab, semicolon, pipe, space")
	f.StringVar(&o.quote, "quote", `"`, "Quote character")
	f.StringVar(&o.encoding, "encoding", csvparse.DefaultEncoding, "Input encoding: utf-8, utf-16, utf-16le, utf-16be, windows-1252, latin1")
	f.IntVar(&o.chunkSize, "chunk-size", csvparse.DefaultChunkSize, "Bytes of text tokenized per chunk")
	f.StringVar(&o.format, "format", "", "Output format: json, csv or xlsx (default: from --out extension, else json)")
	f.StringVarP(&o.out, "out", "o", "", "Output path (default: stdout)")
	f.BoolVar(&o.allowInvalid, "allow-invalid", false, "Write records even when some rows are invalid")
	f.Float64Var(&o.threshold, "threshold", mapping.DefaultSimilarityThreshold, "Lowest name similarity accepted as a match")
	f.StringSliceVar(&o.enable, "enable", nil, "Non-default columns to include, by key")
	f.StringToIntVar(&o.assign, "map", nil, "Explicit mappings as key=columnIndex; -1 unmaps")
	return cmd
}

func (o mapOptions) parseOptions() (csvparse.Options, error) {
	delim, err := csvparse.ParseDelimiter(o.delimiter)
	if err != nil {
		return csvparse.Options{}, err
	}
	if utf8.RuneCountInString(o.quote) != 1 {
		return csvparse.Options{}, fmt.Errorf("quote must be a single character, got %q", o.quote)
	}
	q, _ := utf8.DecodeRuneInString(o.quote)

	opts := csvparse.Options{
		Delimiter: delim,
		Quote:     q,
		ChunkSize: o.chunkSize,
		Encoding:  o.encoding,
	}
	return opts, opts.Validate()
}

// outputFormat picks --format, else the extension of --out, else JSON.
func (o mapOptions) outputFormat() (export.Format, error) {
	if o.format == "" && o.out != "" {
		if ext := strings.TrimPrefix(filepath.Ext(o.out), "."); ext != "" {
			return export.ParseFormat(ext)
		}
	}
	return export.ParseFormat(o.format)
}

func loadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return schema.Contacts(), nil
	}
	return schema.LoadFile(path)
}

func runMap(ctx context.Context, logger *slog.Logger, stdout, stderr io.Writer, path string, o mapOptions) error {
	sc, err := loadSchema(o.schemaFile)
	if err != nil {
		return err
	}
	popts, err := o.parseOptions()
	if err != nil {
		return err
	}
	format, err := o.outputFormat()
	if err != nil {
		return err
	}

	active := schema.NewActiveSet(sc)
	for _, key := range o.enable {
		if err := active.Toggle(key, true); err != nil {
			return err
		}
	}
	cols := active.Columns()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	rows, err := csvparse.NewParser(popts).Parse(ctx, csvparse.ReaderInput(file), func(p csvparse.Progress) {
		logger.Debug("parse progress", "percent", p.Percent, "rows", p.RowsParsed, "chunk", p.Chunk, "chunks", p.Chunks)
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: %w", path, apperr.ErrEmptyInput)
	}
	if o.headerRow < 0 || o.headerRow >= len(rows) {
		return fmt.Errorf("header row %d: %w (file has %d rows)", o.headerRow, validate.ErrRowOutOfRange, len(rows))
	}
	header := rows[o.headerRow]
	data := rows[o.headerRow+1:]
	logger.Debug("parsed", "rows", len(rows), "header", header)

	m := mapping.Mapper{Threshold: o.threshold}.Initial(header, cols)
	if err := mapping.Mapping(o.assign).Validate(cols, len(header)); err != nil {
		return err
	}
	for _, c := range cols {
		if i, ok := o.assign[c.Key]; ok {
			m.Assign(c.Key, i)
		}
	}
	for _, c := range cols {
		if i := m.Index(c.Key); i != mapping.Unmapped {
			logger.Debug("mapped", "column", c.Key, "source", header[i])
		}
	}

	engine := validate.New(cols)
	results, err := engine.ValidateAll(data, m)
	if err != nil {
		return err
	}

	sum := engine.Summarize(results)
	fmt.Fprintf(stderr, "%d rows: %d valid, %d invalid, %d duplicate\n", sum.Total, sum.Valid, sum.Invalid, sum.DuplicateRows)
	if sum.Invalid > 0 {
		reportInvalid(stderr, cols, results, o.headerRow+2)
	}

	var records []map[string]string
	if o.allowInvalid {
		records = make([]map[string]string, len(results))
		for i, r := range results {
			records[i] = r.Transformed
		}
	} else if records, err = validate.Records(results); err != nil {
		return err
	}

	return writeOutput(stdout, o.out, format, cols, records)
}

// reportInvalid lists failing rows by their one-based row number in the
// file. firstRow is the number of the first data row.
func reportInvalid(w io.Writer, cols []schema.Column, results []*validate.Result, firstRow int) {
	invalid := validate.InvalidRows(results)
	for shown, i := range invalid {
		if shown == maxReportedRows {
			fmt.Fprintf(w, "... and %d more\n", len(invalid)-shown)
			return
		}
		var msgs []string
		for _, c := range cols {
			if msg, ok := results[i].Errors[c.Key]; ok {
				msgs = append(msgs, fmt.Sprintf("%s: %s", c.DisplayName(), msg))
			}
		}
		fmt.Fprintf(w, "row %d: %s\n", firstRow+i, strings.Join(msgs, "; "))
	}
}

func writeOutput(stdout io.Writer, path string, f export.Format, cols []schema.Column, records []map[string]string) error {
	if path == "" {
		return export.Write(stdout, f, cols, records)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(out, f, cols, records); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
