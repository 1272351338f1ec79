package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/demandcast/cmd/dashboard/metrics"
	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/sentiment"
	"github.com/HatiCode/demandcast/pkg/storage"
)

type fakeHistory struct {
	records []dataprep.DailyRecord
	err     error
}

func (f *fakeHistory) History(context.Context) ([]dataprep.DailyRecord, error) {
	return f.records, f.err
}

type fakeForecaster struct {
	store   storage.Store
	err     error
	horizon int
}

func (f *fakeForecaster) Forecast(ctx context.Context, horizon int) (storage.ForecastSnapshot, error) {
	f.horizon = horizon
	if f.err != nil {
		return storage.ForecastSnapshot{}, f.err
	}
	res := forecast.Result{Requested: horizon}
	start := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < horizon; i++ {
		res.Rows = append(res.Rows, forecast.Row{Date: start.AddDate(0, 0, i), PredictedCount: float64(40 + i)})
	}
	snap := storage.NewSnapshot("default", start.AddDate(0, 0, -1), res, time.Now())
	return snap, f.store.Put(ctx, snap)
}

type wordClassifier struct{}

func (wordClassifier) Classify(_ context.Context, text string) (sentiment.Prediction, error) {
	switch {
	case strings.Contains(text, "panic"):
		panic("tokenizer exploded")
	case strings.Contains(text, "bagus"):
		return sentiment.Prediction{Label: sentiment.Positive, Confidence: 0.9}, nil
	case strings.Contains(text, "lambat"):
		return sentiment.Prediction{Label: sentiment.Negative, Confidence: 0.8}, nil
	case strings.Contains(text, "timeout"):
		return sentiment.Prediction{}, errors.New("inference server timeout")
	default:
		return sentiment.Prediction{Label: sentiment.Neutral, Confidence: 0.6}, nil
	}
}

type fakeSentiment struct {
	c   sentiment.Classifier
	err error
}

func (f fakeSentiment) Get(context.Context) (sentiment.Classifier, error) {
	return f.c, f.err
}

func history(n int) []dataprep.DailyRecord {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]dataprep.DailyRecord, n)
	for i := range out {
		out[i] = dataprep.DailyRecord{Date: start.AddDate(0, 0, i), RequestCount: float64(i + 1)}
	}
	return out
}

type fixture struct {
	handler    http.Handler
	store      *storage.MemoryStore
	forecaster *fakeForecaster
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	fc := &fakeForecaster{store: store}
	reg := prometheus.NewRegistry()
	d := Deps{
		Series:     "default",
		History:    &fakeHistory{records: history(60)},
		Forecaster: fc,
		Store:      store,
		Sentiment:  fakeSentiment{c: wordClassifier{}},
		Metrics:    metrics.New(reg, "default"),
		Gatherer:   reg,
		StaleAfter: time.Hour,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&d)
	}
	return &fixture{handler: SetupRoutes(d), store: store, forecaster: fc}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	f.do(t, http.MethodPost, "/api/forecast", `{"horizon":3}`)
	w = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "demandcast_forecast_rows")
}

func TestHealthWithReadyCheck(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Ready = func() error { return errors.New("history not loaded") }
	})
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 60, body["total"])
	rows := body["rows"].([]any)
	require.Len(t, rows, 10)
	assert.EqualValues(t, 60, rows[9].(map[string]any)["requestCount"])

	w = f.do(t, http.MethodGet, "/api/history?limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["rows"], 3)

	w = f.do(t, http.MethodGet, "/api/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/history/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)
	assert.EqualValues(t, 60, summary["count"])
	assert.InDelta(t, 30.5, summary["mean"], 1e-9)

	w = f.do(t, http.MethodGet, "/api/history/years", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{float64(2025)}, decode(t, w)["years"])

	w = f.do(t, http.MethodGet, "/api/history/monthly", "")
	require.Equal(t, http.StatusOK, w.Code)
	monthly := decode(t, w)
	assert.EqualValues(t, 2025, monthly["year"])
	assert.Len(t, monthly["months"], 3)

	w = f.do(t, http.MethodGet, "/api/history/trend?window=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	points := decode(t, w)["points"].([]any)
	require.Len(t, points, 60)
	assert.Nil(t, points[0].(map[string]any)["movingAvg"])
	assert.EqualValues(t, 4, points[6].(map[string]any)["movingAvg"])
}

func TestHistorySchemaErrorIs422(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.History = &fakeHistory{err: &dataprep.SchemaError{Missing: []string{"tanggal"}}}
	})

	w := f.do(t, http.MethodGet, "/api/history/summary", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["error"], "tanggal")
}

func TestForecastArtifactsMissingDoesNotAffectHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.forecaster.err = &models.ArtifactMissingError{Dir: "model", Missing: []string{models.RegressorFile}}

	w := f.do(t, http.MethodPost, "/api/forecast", `{"horizon":7}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode(t, w)["error"], models.RegressorFile)

	w = f.do(t, http.MethodGet, "/api/history/summary", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostForecast(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/forecast", `{"horizon":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode(t, w)
	assert.Len(t, snap["rows"], 3)
	assert.EqualValues(t, 3, snap["horizonRequested"])

	w = f.do(t, http.MethodPost, "/api/forecast", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, forecast.MaxHorizon, f.forecaster.horizon)

	w = f.do(t, http.MethodPost, "/api/forecast", `{"horizon":8}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "horizon must be <= 7", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/forecast", `{"horizon":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentForecast(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/forecast/current", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.do(t, http.MethodPost, "/api/forecast", `{"horizon":2}`)
	w = f.do(t, http.MethodGet, "/api/forecast/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(StaleHeader))
	assert.Len(t, decode(t, w)["rows"], 2)

	old := storage.NewSnapshot("default", time.Now(), forecast.Result{Requested: 1}, time.Now().Add(-2*time.Hour))
	require.NoError(t, f.store.Put(context.Background(), old))
	w = f.do(t, http.MethodGet, "/api/forecast/current", "")
	assert.Equal(t, "true", w.Header().Get(StaleHeader))
}

func TestDownloadCurrent(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/forecast", `{"horizon":2}`)

	w := f.do(t, http.MethodGet, "/api/forecast/current/download?format=csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "date,predicted_count\n2025-03-02,40\n2025-03-03,41\n", w.Body.String())
	assert.Equal(t, `attachment; filename="prediksi.csv"`, w.Header().Get("Content-Disposition"))

	w = f.do(t, http.MethodGet, "/api/forecast/current/download?format=xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	w = f.do(t, http.MethodGet, "/api/forecast/current/download?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChart(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/forecast/chart?days=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	chart := decode(t, w)
	assert.Len(t, chart["actual"], 11)
	assert.Empty(t, chart["forecast"])

	f.do(t, http.MethodPost, "/api/forecast", `{"horizon":7}`)
	w = f.do(t, http.MethodGet, "/api/forecast/chart?days=10", "")
	chart = decode(t, w)
	assert.Len(t, chart["forecast"], 7)
	assert.NotNil(t, chart["generatedAt"])
}

func TestPostSentiment(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/sentiment", `{"text":"pelayanan bagus"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Positive", decode(t, w)["label"])

	w = f.do(t, http.MethodPost, "/api/sentiment", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "text is required", decode(t, w)["error"])

	missing := newFixture(t, func(d *Deps) {
		d.Sentiment = fakeSentiment{err: &sentiment.ArtifactMissingError{Dir: "model_nlp", Missing: []string{"vocab.txt"}}}
	})
	w = missing.do(t, http.MethodPost, "/api/sentiment", `{"text":"pelayanan bagus"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = missing.do(t, http.MethodGet, "/api/history/summary", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func batchRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sentiment/batch", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const feedbackCSV = `id,ulasan
1,pelayanan bagus
2,antrian lambat
3,panic
4,
5,biasa saja
6,timeout
`

func TestSentimentBatchPreview(t *testing.T) {
	f := newFixture(t, nil)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, batchRequest(t, "ulasan.csv", feedbackCSV, map[string]string{"column": "ulasan"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp batchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 6, resp.Rows)
	assert.Equal(t, map[string]int{"Positive": 1, "Negative": 1, "Neutral": 2, "Error": 2}, resp.Counts)
	assert.Equal(t, []string{"id", "ulasan", "Sentimen"}, resp.Columns)
	require.Len(t, resp.Preview, 6)
	assert.Equal(t, []string{"3", "panic", "Error"}, resp.Preview[2])
	assert.Equal(t, []string{"4", "", "Neutral"}, resp.Preview[3])
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, 2, resp.Errors[0].Row)
}

func TestSentimentBatchDownload(t *testing.T) {
	f := newFixture(t, nil)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, batchRequest(t, "ulasan.csv", feedbackCSV, map[string]string{"column": "ulasan", "format": "csv"}))
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "id,ulasan,Sentimen", lines[0])
	assert.Equal(t, "1,pelayanan bagus,Positive", lines[1])
	assert.Equal(t, "6,timeout,Error", lines[6])
}

func TestSentimentBatchRejects(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		want     int
	}{
		{"missing column field", "ulasan.csv", map[string]string{}, http.StatusBadRequest},
		{"unknown column", "ulasan.csv", map[string]string{"column": "komentar"}, http.StatusBadRequest},
		{"bad format", "ulasan.csv", map[string]string{"column": "ulasan", "format": "pdf"}, http.StatusBadRequest},
		{"unsupported file", "ulasan.pdf", map[string]string{"column": "ulasan"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			f.handler.ServeHTTP(w, batchRequest(t, tt.filename, feedbackCSV, tt.fields))
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestSentimentBatchTooLarge(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.MaxUpload = 64 })

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, batchRequest(t, "ulasan.csv", strings.Repeat(feedbackCSV, 10), map[string]string{"column": "ulasan"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
