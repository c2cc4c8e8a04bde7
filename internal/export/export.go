// Package export writes reviewed records as JSON, CSV or XLSX.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/csvmapper/internal/schema"
)

// Format is an export file format.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat resolves a format name. An empty name means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return JSON, nil
	case JSON, CSV, XLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Filename returns the default download name for f.
func (f Format) Filename() string {
	return "export." + string(f)
}

// Write encodes records in format f. Columns fix the field order for CSV
// and XLSX; JSON writes each record as an object.
func Write(w io.Writer, f Format, cols []schema.Column, records []map[string]string) error {
	switch f {
	case JSON:
		return WriteJSON(w, records)
	case CSV:
		return WriteCSV(w, cols, records)
	case XLSX:
		return WriteXLSX(w, cols, records)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []map[string]string) error {
	if records == nil {
		records = []map[string]string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteCSV writes a header of column labels followed by one line per
// record. Every cell, header included, is quoted and lines end in "\n".
func WriteCSV(w io.Writer, cols []schema.Column, records []map[string]string) error {
	var b strings.Builder
	for i, c := range cols {
		writeCell(&b, i, c.DisplayName())
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	for _, rec := range records {
		b.Reset()
		b.WriteByte('\n')
		for i, c := range cols {
			writeCell(&b, i, rec[c.Key])
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

// writeCell appends v as the i-th quoted cell of a line.
func writeCell(b *strings.Builder, i int, v string) {
	if i > 0 {
		b.WriteByte(',')
	}
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(v, `"`, `""`))
	b.WriteByte('"')
}

const sheetName = "Records"

// WriteXLSX writes a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, cols []schema.Column, records []map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = excelize.Cell{StyleID: bold, Value: c.DisplayName()}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("header row: %w", err)
	}

	row := make([]any, len(cols))
	for r, rec := range records {
		for i, c := range cols {
			row[i] = rec[c.Key]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
