package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/HatiCode/demandcast/pkg/tabular"
)

// FileAdapter reads raw records from a CSV or XLSX file. The format is chosen
// from the file extension.
type FileAdapter struct {
	// Path to the export file (required).
	Path string

	// Sheet selects an XLSX sheet; empty means the first sheet.
	Sheet string
}

func (f *FileAdapter) Name() string { return "file" }

// Collect implements Adapter.
func (f *FileAdapter) Collect(ctx context.Context) (*DataFrame, error) {
	if f.Path == "" {
		return &DataFrame{}, errors.New("file adapter: path is required")
	}
	if err := ctx.Err(); err != nil {
		return &DataFrame{}, err
	}

	format, err := tabular.FormatOf(f.Path)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("file adapter: %w", err)
	}

	var t *tabular.Table
	if format == tabular.XLSX && f.Sheet != "" {
		t, err = readSheet(f.Path, f.Sheet)
	} else {
		t, err = tabular.ReadFile(f.Path)
	}
	if err != nil {
		return &DataFrame{}, fmt.Errorf("file adapter: %w", err)
	}
	return FromTable(t), nil
}

func readSheet(path, sheet string) (*tabular.Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer fh.Close()
	return tabular.ReadXLSX(fh, sheet)
}
