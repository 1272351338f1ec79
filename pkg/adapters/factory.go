package adapters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// New creates an adapter based on kind and generic configuration map.
// This is the central extension point for adding new adapter types.
//
// Supported kinds:
//   - "file": CSV/XLSX file adapter (config: path, sheet)
//   - "postgres": PostgreSQL adapter (config: dsn, query, table)
//   - "http": Generic HTTP adapter (config: url, timestampPath, countPath, ...)
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Adapter, error) {
	switch kind {
	case "file":
		return newFile(config)
	case "postgres":
		return newPostgres(config)
	case "http":
		return newHTTP(config)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be file, postgres, or http)", kind)
	}
}

func newFile(config map[string]string) (Adapter, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("file adapter requires 'path' config")
	}
	return &FileAdapter{Path: path, Sheet: config["sheet"]}, nil
}

// newPostgres builds a Postgres adapter. When only 'table' is given the query
// selects every column of that table.
func newPostgres(config map[string]string) (Adapter, error) {
	dsn := config["dsn"]
	if dsn == "" {
		return nil, fmt.Errorf("postgres adapter requires 'dsn' config")
	}

	query := config["query"]
	if query == "" {
		table := config["table"]
		if table == "" {
			return nil, fmt.Errorf("postgres adapter requires 'query' or 'table' config")
		}
		query = fmt.Sprintf("SELECT * FROM %s", quoteIdent(table))
	}

	var timeout time.Duration
	if v := config["connectTimeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid 'connectTimeout': %w", err)
		}
		timeout = d
	}

	return &PostgresAdapter{DSN: dsn, Query: query, ConnectTimeout: timeout}, nil
}

func newHTTP(config map[string]string) (Adapter, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}

	timestampPath := config["timestampPath"]
	countPath := config["countPath"]
	if timestampPath == "" || countPath == "" {
		return nil, fmt.Errorf("http adapter requires 'timestampPath' and 'countPath' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	timestampFormat := config["timestampFormat"]
	if timestampFormat == "" {
		timestampFormat = "rfc3339"
	}

	var lookback time.Duration
	if v := config["lookback"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid 'lookback': %w", err)
		}
		lookback = d
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	a := &HTTPAdapter{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		TimestampPath:   timestampPath,
		CountPath:       countPath,
		ValuePath:       config["valuePath"],
		TimestampFormat: timestampFormat,
		Lookback:        lookback,
		TemplateVars:    templateVars,
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}

// quoteIdent quotes a possibly schema-qualified identifier.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
