package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresAdapter reads raw records with a SQL query.
//
// Example:
//
//	adapter := &PostgresAdapter{
//	    DSN:   "postgres://demandcast@db:5432/layanan?sslmode=disable",
//	    Query: "SELECT tanggal_permohonan, jumlah_permohonan, total_harga FROM permohonan",
//	}
type PostgresAdapter struct {
	// DSN is the connection URL (required unless DB is set).
	DSN string

	// Query returns one row per raw record (required).
	Query string

	// ConnectTimeout bounds the initial ping. Defaults to 10s.
	ConnectTimeout time.Duration

	// DB is optional; when nil a connection is opened per Collect.
	DB *sql.DB
}

func (p *PostgresAdapter) Name() string { return "postgres" }

// Collect implements Adapter.
func (p *PostgresAdapter) Collect(ctx context.Context) (*DataFrame, error) {
	if p.Query == "" {
		return &DataFrame{}, errors.New("postgres adapter: query is required")
	}

	db := p.DB
	if db == nil {
		var err error
		db, err = p.connect(ctx)
		if err != nil {
			return &DataFrame{}, err
		}
		defer db.Close()
	}

	rows, err := db.QueryContext(ctx, p.Query)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("postgres adapter: query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func (p *PostgresAdapter) connect(ctx context.Context) (*sql.DB, error) {
	if p.DSN == "" {
		return nil, errors.New("postgres adapter: dsn is required")
	}

	db, err := sql.Open("postgres", p.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres adapter: open: %w", err)
	}
	db.SetMaxOpenConns(2)

	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres adapter: ping: %w", err)
	}
	return db, nil
}

// sqlRows is the subset of *sql.Rows used by scanRows.
type sqlRows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRows(rows sqlRows) (*DataFrame, error) {
	cols, err := rows.Columns()
	if err != nil {
		return &DataFrame{}, fmt.Errorf("postgres adapter: columns: %w", err)
	}

	df := &DataFrame{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &DataFrame{}, fmt.Errorf("postgres adapter: scan row %d: %w", len(df.Rows)+1, err)
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			// text and numeric columns arrive as []byte from lib/pq
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		df.Rows = append(df.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return &DataFrame{}, fmt.Errorf("postgres adapter: %w", err)
	}
	return df, nil
}
