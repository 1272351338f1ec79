package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/demandcast/pkg/tabular"
	demandtls "github.com/HatiCode/demandcast/pkg/tls"
)

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusUnprocessableEntity, "missing column")

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":"missing column"}` {
		t.Errorf("body = %s", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestWriteTable(t *testing.T) {
	table := &tabular.Table{
		Columns: []string{"date", "predicted_count"},
		Records: [][]string{{"2025-07-01", "12.5"}},
	}
	w := httptest.NewRecorder()
	if err := WriteTable(w, table, tabular.CSV, "prediksi.csv"); err != nil {
		t.Fatal(err)
	}

	if got := w.Body.String(); got != "date,predicted_count\n2025-07-01,12.5\n" {
		t.Errorf("body = %q", got)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="prediksi.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestHealthHandlerWithCheck(t *testing.T) {
	failing := HealthHandlerWithCheck(func() error { return errors.New("history not loaded") })
	w := httptest.NewRecorder()
	failing(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	w = httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RecoveryMiddleware(logger)(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(demandtls.Config{}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}

	if _, err := NewClient(demandtls.Config{Enabled: true, CertFile: "/nonexistent"}, time.Second); err == nil {
		t.Error("expected error for missing certificate files")
	}
}
