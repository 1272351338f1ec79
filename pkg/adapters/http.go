package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Column names emitted by HTTPAdapter. They match the "english" input layout
// understood by pkg/dataprep.
const (
	ColRequestedAt  = "requested_at"
	ColRequestCount = "request_count"
	ColTotalValue   = "total_value"
)

// HTTPAdapter is a generic HTTP adapter that can call any REST API endpoint
// and extract service-request records using JSON path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body and headers with variables: {{.Start}}, {{.End}},
//     {{.StartDate}}, {{.EndDate}}, {{.StartRFC3339}}, {{.EndRFC3339}}
//   - JSON path extraction for timestamps, counts and monetary values using gjson syntax
//   - Flexible timestamp parsing (RFC3339, date, Unix seconds, Unix milliseconds)
//
// Example configuration for a records API:
//
//	adapter := &HTTPAdapter{
//	    URL: "https://layanan.example.go.id/api/permohonan?from={{.StartDate}}",
//	    Headers: map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    TimestampPath: "data.#.tanggal",
//	    CountPath: "data.#.jumlah",
//	    ValuePath: "data.#.total_harga",
//	    TemplateVars: map[string]string{"Token": "..."},
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required). May contain template variables.
	URL string

	// Method is the HTTP method (GET, POST, etc.). Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	// Values can use template variables like {{.Token}}.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// TimestampPath is the gjson path to the record timestamps (required).
	TimestampPath string

	// CountPath is the gjson path to the per-record request counts (required).
	CountPath string

	// ValuePath is the gjson path to the per-record monetary values.
	// Optional; when empty every record has a value of 0.
	ValuePath string

	// TimestampFormat specifies how to parse timestamps:
	//   "rfc3339"    - RFC3339 strings (default)
	//   "date"       - YYYY-MM-DD strings
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	TimestampFormat string

	// Lookback sets the {{.Start}} template variable relative to now.
	// Defaults to 365 days.
	Lookback time.Duration

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in URL, Body and Headers templates.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter. It calls the configured HTTP endpoint and extracts
// one row per record using the configured JSON paths. Rows are sorted by time.
func (h *HTTPAdapter) Collect(ctx context.Context) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return &DataFrame{}, fmt.Errorf("http adapter: %w", err)
	}

	lookback := h.Lookback
	if lookback <= 0 {
		lookback = 365 * 24 * time.Hour
	}
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-lookback)

	templateData := map[string]any{
		"Start":        start.Unix(),
		"End":          now.Unix(),
		"StartDate":    start.Format(time.DateOnly),
		"EndDate":      now.Format(time.DateOnly),
		"StartRFC3339": start.Format(time.RFC3339),
		"EndRFC3339":   now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	url, err := renderTemplate(h.URL, templateData)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("render url template: %w", err)
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DataFrame{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read response: %w", err)
	}

	timestamps := gjson.GetBytes(respBody, h.TimestampPath)
	counts := gjson.GetBytes(respBody, h.CountPath)
	if !timestamps.Exists() {
		return &DataFrame{}, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}
	if !counts.Exists() {
		return &DataFrame{}, fmt.Errorf("count path %q not found in response", h.CountPath)
	}

	tsArray := timestamps.Array()
	countArray := counts.Array()
	if len(countArray) != len(tsArray) {
		return &DataFrame{}, fmt.Errorf("count entries (%d) != timestamp entries (%d)", len(countArray), len(tsArray))
	}

	var valArray []gjson.Result
	if h.ValuePath != "" {
		values := gjson.GetBytes(respBody, h.ValuePath)
		if !values.Exists() {
			return &DataFrame{}, fmt.Errorf("value path %q not found in response", h.ValuePath)
		}
		valArray = values.Array()
		if len(valArray) != len(tsArray) {
			return &DataFrame{}, fmt.Errorf("value entries (%d) != timestamp entries (%d)", len(valArray), len(tsArray))
		}
	}

	type record struct {
		ts    time.Time
		count float64
		value float64
	}
	records := make([]record, 0, len(tsArray))
	for i := range tsArray {
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return &DataFrame{}, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		r := record{ts: ts, count: countArray[i].Float()}
		if valArray != nil {
			r.value = valArray[i].Float()
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ts.Before(records[j].ts)
	})

	df := &DataFrame{
		Columns: []string{ColRequestedAt, ColRequestCount, ColTotalValue},
		Rows:    make([]Row, 0, len(records)),
	}
	for _, r := range records {
		df.Rows = append(df.Rows, Row{
			ColRequestedAt:  r.ts.UTC().Format(time.RFC3339),
			ColRequestCount: r.count,
			ColTotalValue:   r.value,
		})
	}
	return df, nil
}

// parseTimestamp parses a timestamp according to the configured format
func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	format := h.TimestampFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())

	case "date":
		return time.Parse(time.DateOnly, value.String())

	case "unix":
		// Unix seconds (supports both int and float)
		sec := value.Float()
		return time.Unix(int64(sec), 0).UTC(), nil

	case "unix_milli":
		ms := value.Float()
		return time.UnixMilli(int64(ms)).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ValidateConfig checks if the adapter configuration is valid
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	if h.CountPath == "" {
		return errors.New("countPath is required")
	}

	switch h.TimestampFormat {
	case "", "rfc3339", "date", "unix", "unix_milli":
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, date, unix, or unix_milli)", h.TimestampFormat)
	}

	return nil
}
