package dataprep

import (
	"fmt"
	"slices"
	"strings"
)

// Layout is a known raw-record schema and its mapping to canonical fields.
type Layout struct {
	Name string

	// Source column names for the canonical timestamp, request count and
	// monetary value fields.
	Timestamp string
	Count     string
	Value     string

	// Drop lists columns ignored when present.
	Drop []string
}

// Columns returns the source columns the layout requires.
func (l Layout) Columns() []string {
	return []string{l.Timestamp, l.Count, l.Value}
}

var (
	// Current is the service export with an explicit per-record count.
	Current = Layout{
		Name:      "current",
		Timestamp: "tanggal_permohonan",
		Count:     "jumlah_permohonan",
		Value:     "total_harga",
		Drop:      []string{"status"},
	}

	// Legacy is the older export where each record carries a service type id
	// in place of the count. The column is summed as the count.
	Legacy = Layout{
		Name:      "legacy",
		Timestamp: "tanggal_permohonan",
		Count:     "id_jenis_layanan",
		Value:     "total_harga",
		Drop:      []string{"status"},
	}

	// English is emitted by the HTTP adapter and accepted from other sources.
	English = Layout{
		Name:      "english",
		Timestamp: "requested_at",
		Count:     "request_count",
		Value:     "total_value",
		Drop:      []string{"status"},
	}
)

// Layouts lists the accepted schemas in detection order.
var Layouts = []Layout{Current, Legacy, English}

// SchemaError reports that no known layout matches the input columns.
type SchemaError struct {
	// Columns present in the input.
	Columns []string
	// Missing lists the required columns absent for the closest layout.
	Missing []string
	// Layout is the closest layout's name.
	Layout string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("no known input layout matches: missing column(s) %s for layout %q",
		strings.Join(e.Missing, ", "), e.Layout)
}

// DetectLayout selects the first layout whose required columns are all present.
func DetectLayout(columns []string) (Layout, error) {
	var closest Layout
	var missing []string
	for _, l := range Layouts {
		var m []string
		for _, c := range l.Columns() {
			if !slices.Contains(columns, c) {
				m = append(m, c)
			}
		}
		if len(m) == 0 {
			return l, nil
		}
		if missing == nil || len(m) < len(missing) {
			closest, missing = l, m
		}
	}
	return Layout{}, &SchemaError{
		Columns: append([]string(nil), columns...),
		Missing: missing,
		Layout:  closest.Name,
	}
}
