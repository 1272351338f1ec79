// Package tabular reads and writes the CSV and XLSX tables exchanged with users:
// historical request exports, batch sentiment uploads and forecast downloads.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies a file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for file extensions other than .csv/.tsv/.xlsx.
var ErrUnsupportedFormat = errors.New("unsupported table format")

// Table is a rectangular string table with a header row.
// Every record has exactly len(Columns) cells.
type Table struct {
	Columns []string
	Records [][]string
}

// ParseFormat maps "csv"/"xlsx" (any case) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return CSV, nil
	case "xlsx", "excel":
		return XLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// FormatOf infers the format from a file name.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return CSV, nil
	case ".xlsx":
		return XLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Base(name))
	}
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Read decodes a table from r, choosing the format from name's extension.
func Read(name string, r io.Reader) (*Table, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	if format == XLSX {
		return ReadXLSX(r, "")
	}
	return ReadCSV(r)
}

// ReadFile reads a CSV or XLSX file.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return Read(path, f)
}

// ReadCSV parses a CSV stream with a header row. The delimiter is sniffed
// from the header among ',', ';' and tab.
func ReadCSV(r io.Reader) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(b))
	cr.Comma = sniffDelimiter(b)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRows(rows)
}

// ReadXLSX reads the named sheet (first sheet when empty).
func ReadXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("xlsx has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, errors.New("table has no header row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Columns: header, Records: make([][]string, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make([]string, len(header))
		copy(rec, row)
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func sniffDelimiter(b []byte) rune {
	line := b
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		line = b[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has column name.
func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Column returns a copy of the values in column name.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]string, len(t.Records))
	for i, rec := range t.Records {
		out[i] = rec[idx]
	}
	return out, nil
}

// AppendColumn returns a new table with an extra column. values must have one
// entry per record. The receiver is not modified.
func (t *Table) AppendColumn(name string, values []string) (*Table, error) {
	if len(values) != len(t.Records) {
		return nil, fmt.Errorf("column %q has %d values, table has %d records", name, len(values), len(t.Records))
	}
	out := &Table{
		Columns: append(append([]string(nil), t.Columns...), name),
		Records: make([][]string, len(t.Records)),
	}
	for i, rec := range t.Records {
		row := make([]string, 0, len(rec)+1)
		row = append(row, rec...)
		out.Records[i] = append(row, values[i])
	}
	return out, nil
}

// Head returns a table with at most n records.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.Records) {
		n = len(t.Records)
	}
	return &Table{Columns: t.Columns, Records: t.Records[:n]}
}

// Write encodes t in the given format.
func Write(w io.Writer, t *Table, format Format) error {
	if format == XLSX {
		return WriteXLSX(w, t, "Sheet1")
	}
	return WriteCSV(w, t)
}

// WriteCSV writes the header and records as comma-separated values.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes t into a single-sheet workbook.
func WriteXLSX(w io.Writer, t *Table, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "" && sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else {
		sheet = "Sheet1"
	}

	if err := setRow(f, sheet, 1, t.Columns); err != nil {
		return err
	}
	for i, rec := range t.Records {
		if err := setRow(f, sheet, i+2, rec); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("set row %d: %w", row, err)
	}
	return nil
}
