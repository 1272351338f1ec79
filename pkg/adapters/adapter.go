// Package adapters provides demandcast data source connectors that retrieve
// raw service-request records from external systems and normalize them into a
// common DataFrame structure.
//
// Each adapter implements the Adapter interface. Available adapters:
//   - FileAdapter     reads a CSV or XLSX export from disk
//   - PostgresAdapter runs a query against a PostgreSQL database
//   - HTTPAdapter     calls any REST API returning JSON records
//
// Adapters only pull raw records and shape them into [DataFrame] objects.
// Aggregation to daily rows and feature building happen in pkg/dataprep.
package adapters

import (
	"context"

	"github.com/HatiCode/demandcast/pkg/tabular"
)

// Row represents a single raw record.
// Example: {"tanggal_permohonan": "2025-01-02 08:15:00", "id_jenis_layanan": 1, "total_harga": 50000}
type Row map[string]any

// DataFrame is a lightweight structure for tabular data returned by adapters.
// Columns preserves the source column order.
type DataFrame struct {
	Columns []string
	Rows    []Row
}

// Has reports whether the frame has column name.
func (df *DataFrame) Has(name string) bool {
	for _, c := range df.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Adapter is the interface that all demandcast adapters must implement.
//
// The Collect() call is synchronous and should respect context cancellation
// and deadlines.
type Adapter interface {
	// Collect fetches all available raw records and returns them as a DataFrame.
	Collect(ctx context.Context) (*DataFrame, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "file", "postgres", "http".
	Name() string
}

// FromTable converts a string table into a DataFrame. Cells stay strings;
// typing is left to the consumer.
func FromTable(t *tabular.Table) *DataFrame {
	df := &DataFrame{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, 0, len(t.Records)),
	}
	for _, rec := range t.Records {
		row := make(Row, len(t.Columns))
		for i, c := range t.Columns {
			row[c] = rec[i]
		}
		df.Rows = append(df.Rows, row)
	}
	return df
}
