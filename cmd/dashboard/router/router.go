// Package router configures the dashboard HTTP API.
//
// Routes configured:
//   - GET  /healthz - Health check
//   - GET  /metrics - Prometheus metrics
//   - GET  /api/history?limit=N - Most recent prepared days (default 10)
//   - GET  /api/history/summary - Descriptive statistics of daily counts
//   - GET  /api/history/years - Years present in the history
//   - GET  /api/history/monthly?year=Y - Monthly totals (default latest year)
//   - GET  /api/history/trend?window=N - Daily counts with moving average (default 7)
//   - POST /api/forecast - Run and store a forecast: {"horizon": 1..7}
//   - GET  /api/forecast/current - Latest stored forecast
//   - GET  /api/forecast/current/download?format=csv|xlsx - Latest forecast as a file
//   - GET  /api/forecast/chart?days=N - Recent actual counts plus the latest forecast
//   - POST /api/sentiment - Classify one text: {"text": "..."}
//   - POST /api/sentiment/batch - Classify a column of an uploaded CSV/XLSX file
//
// Every view fails on its own: a missing model directory turns the forecast or
// sentiment endpoints into 503 while the history endpoints keep working.
// Errors are JSON {"error": "..."}.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/demandcast/cmd/dashboard/metrics"
	"github.com/HatiCode/demandcast/pkg/analytics"
	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/httpx"
	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/sentiment"
	"github.com/HatiCode/demandcast/pkg/storage"
	"github.com/HatiCode/demandcast/pkg/tabular"
)

// StaleHeader is set on forecast responses older than Deps.StaleAfter.
const StaleHeader = "X-Demandcast-Stale"

const (
	defaultHistoryLimit = 10
	defaultTrendWindow  = 7
	defaultChartDays    = 30
	batchPreviewRows    = 10
)

// History provides the prepared daily history.
type History interface {
	History(ctx context.Context) ([]dataprep.DailyRecord, error)
}

// Forecaster runs and stores a forecast.
type Forecaster interface {
	Forecast(ctx context.Context, horizon int) (storage.ForecastSnapshot, error)
}

// Sentiment resolves the shared classifier. *sentiment.Handle satisfies it.
type Sentiment interface {
	Get(ctx context.Context) (sentiment.Classifier, error)
}

// Deps are the handlers' collaborators.
type Deps struct {
	Series     string
	History    History
	Forecaster Forecaster
	Store      storage.Store
	Sentiment  Sentiment
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer   prometheus.Gatherer
	StaleAfter time.Duration
	MaxUpload  int64
	// Ready, when set, backs /healthz.
	Ready  func() error
	Logger *slog.Logger
}

type handlers struct {
	Deps
	validate *validator.Validate
	now      func() time.Time
}

// SetupRoutes builds the dashboard router.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = 32 << 20
	}
	h := &handlers{Deps: d, validate: newValidator(), now: time.Now}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(httpx.RecoveryMiddleware(d.Logger))
	r.Use(httpx.LoggingMiddleware(d.Logger))

	if d.Ready != nil {
		r.Get("/healthz", httpx.HealthHandlerWithCheck(d.Ready))
	} else {
		r.Get("/healthz", httpx.HealthHandler())
	}
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.getHistory)
			r.Get("/summary", h.getSummary)
			r.Get("/years", h.getYears)
			r.Get("/monthly", h.getMonthly)
			r.Get("/trend", h.getTrend)
		})
		r.Route("/forecast", func(r chi.Router) {
			r.Post("/", h.postForecast)
			r.Get("/current", h.getCurrent)
			r.Get("/current/download", h.downloadCurrent)
			r.Get("/chart", h.getChart)
		})
		r.Route("/sentiment", func(r chi.Router) {
			r.Post("/", h.postSentiment)
			r.Post("/batch", h.postSentimentBatch)
		})
	})
	return r
}

// requestID stores a UUID request ID for middleware.GetReqID, reusing an
// incoming X-Request-Id header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// history views

type historyResponse struct {
	Total int                    `json:"total"`
	Rows  []dataprep.DailyRecord `json:"rows"`
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultHistoryLimit)
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	history, err := h.History.History(r.Context())
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	render.JSON(w, r, historyResponse{Total: len(history), Rows: analytics.Tail(history, limit)})
}

func (h *handlers) getSummary(w http.ResponseWriter, r *http.Request) {
	history, err := h.History.History(r.Context())
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	render.JSON(w, r, analytics.Describe(history))
}

func (h *handlers) getYears(w http.ResponseWriter, r *http.Request) {
	history, err := h.History.History(r.Context())
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	render.JSON(w, r, map[string]any{"years": analytics.Years(history)})
}

func (h *handlers) getMonthly(w http.ResponseWriter, r *http.Request) {
	history, err := h.History.History(r.Context())
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	years := analytics.Years(history)
	latest := 0
	if len(years) > 0 {
		latest = years[len(years)-1]
	}
	year, err := intParam(r, "year", latest)
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	render.JSON(w, r, map[string]any{"year": year, "months": analytics.MonthlyTotals(history, year)})
}

func (h *handlers) getTrend(w http.ResponseWriter, r *http.Request) {
	window, err := intParam(r, "window", defaultTrendWindow)
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	history, err := h.History.History(r.Context())
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	render.JSON(w, r, map[string]any{"window": window, "points": analytics.MovingAverage(history, window)})
}

// forecast views

type forecastRequest struct {
	Horizon int `json:"horizon" validate:"min=1,max=7"`
}

func (h *handlers) postForecast(w http.ResponseWriter, r *http.Request) {
	req := forecastRequest{Horizon: forecast.MaxHorizon}
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, "forecast", badRequest("invalid JSON body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "forecast", err)
		return
	}

	snap, err := h.Forecaster.Forecast(r.Context(), req.Horizon)
	if err != nil {
		h.fail(w, r, "forecast", err)
		return
	}
	render.JSON(w, r, snap)
}

func (h *handlers) latest(ctx context.Context) (storage.ForecastSnapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.Store.GetLatest(ctx, h.Series)
}

func (h *handlers) getCurrent(w http.ResponseWriter, r *http.Request) {
	snap, found, err := h.latest(r.Context())
	if err != nil {
		h.fail(w, r, "store", err)
		return
	}
	if !found {
		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no forecast stored for series %q", h.Series))
		return
	}
	h.markStale(w, snap)
	render.JSON(w, r, snap)
}

func (h *handlers) downloadCurrent(w http.ResponseWriter, r *http.Request) {
	format, err := tabular.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, r, "forecast", badRequest("%v", err))
		return
	}
	snap, found, err := h.latest(r.Context())
	if err != nil {
		h.fail(w, r, "store", err)
		return
	}
	if !found {
		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no forecast stored for series %q", h.Series))
		return
	}
	h.markStale(w, snap)
	if err := httpx.WriteTable(w, forecast.Table(snap.Rows), format, "prediksi."+string(format)); err != nil {
		h.Logger.Error("failed to write forecast download", "error", err)
	}
}

type chartPoint struct {
	Date  time.Time `json:"date"`
	Count float64   `json:"count"`
}

type chartResponse struct {
	Actual      []chartPoint   `json:"actual"`
	Forecast    []forecast.Row `json:"forecast"`
	GeneratedAt *time.Time     `json:"generatedAt,omitempty"`
}

func (h *handlers) getChart(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultChartDays)
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	history, err := h.History.History(r.Context())
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}

	recent := analytics.RecentActual(history, days)
	resp := chartResponse{Actual: make([]chartPoint, len(recent)), Forecast: []forecast.Row{}}
	for i, rec := range recent {
		resp.Actual[i] = chartPoint{Date: rec.Date, Count: rec.RequestCount}
	}

	snap, found, err := h.latest(r.Context())
	if err != nil {
		h.fail(w, r, "store", err)
		return
	}
	if found {
		resp.Forecast = snap.Rows
		resp.GeneratedAt = &snap.GeneratedAt
		h.markStale(w, snap)
	}
	render.JSON(w, r, resp)
}

func (h *handlers) markStale(w http.ResponseWriter, snap storage.ForecastSnapshot) {
	if h.StaleAfter > 0 && snap.Age(h.now()) > h.StaleAfter {
		w.Header().Set(StaleHeader, "true")
	}
}

// sentiment views

type sentimentRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *handlers) postSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.fail(w, r, "sentiment", badRequest("invalid JSON body: %v", err))
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "sentiment", err)
		return
	}

	c, err := h.Sentiment.Get(r.Context())
	if err != nil {
		h.fail(w, r, "sentiment", err)
		return
	}
	p, err := c.Classify(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, "sentiment", err)
		return
	}
	h.Metrics.RecordClassifications(map[string]int{p.Label.String(): 1})
	render.JSON(w, r, p)
}

type batchForm struct {
	Column string `json:"column" validate:"required"`
	Format string `json:"format" validate:"omitempty,oneof=json csv xlsx"`
}

type batchResponse struct {
	Rows    int            `json:"rows"`
	Counts  map[string]int `json:"counts"`
	Columns []string       `json:"columns"`
	Preview [][]string     `json:"preview"`
	Errors  []batchError   `json:"errors,omitempty"`
}

type batchError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

func (h *handlers) postSentimentBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	if err := r.ParseMultipartForm(h.MaxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.MaxUpload))
			return
		}
		h.fail(w, r, "sentiment", badRequest("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := batchForm{
		Column: strings.TrimSpace(r.FormValue("column")),
		Format: strings.ToLower(strings.TrimSpace(r.FormValue("format"))),
	}
	if err := h.validate.Struct(form); err != nil {
		h.fail(w, r, "sentiment", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, "sentiment", badRequest("file is required"))
		return
	}
	defer file.Close()

	table, err := tabular.Read(header.Filename, file)
	if err != nil {
		h.fail(w, r, "sentiment", badRequest("read %s: %v", header.Filename, err))
		return
	}
	if !table.Has(form.Column) {
		h.fail(w, r, "sentiment", badRequest("column %q not found (available: %s)", form.Column, strings.Join(table.Columns, ", ")))
		return
	}

	c, err := h.Sentiment.Get(r.Context())
	if err != nil {
		h.fail(w, r, "sentiment", err)
		return
	}
	labeled, results, err := sentiment.ClassifyTable(r.Context(), c, table, form.Column)
	if err != nil {
		h.fail(w, r, "sentiment", err)
		return
	}
	counts := sentiment.Counts(results)
	h.Metrics.RecordClassifications(counts)
	h.Logger.Info("batch classified", "file", header.Filename, "rows", len(results), "errors", counts[sentiment.ErrorLabel])

	if form.Format == "csv" || form.Format == "xlsx" {
		format := tabular.Format(form.Format)
		if err := httpx.WriteTable(w, labeled, format, "sentiment."+form.Format); err != nil {
			h.Logger.Error("failed to write batch download", "error", err)
		}
		return
	}

	preview := labeled.Head(batchPreviewRows)
	resp := batchResponse{
		Rows:    len(results),
		Counts:  counts,
		Columns: preview.Columns,
		Preview: preview.Records,
	}
	for i, res := range results {
		if !res.OK() {
			resp.Errors = append(resp.Errors, batchError{Row: i, Error: res.Err.Error()})
		}
	}
	render.JSON(w, r, resp)
}

// errors

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor maps an error to the HTTP status of the failing view.
func statusFor(err error) int {
	var (
		reqErr       *requestError
		validation   validator.ValidationErrors
		schemaErr    *dataprep.SchemaError
		parseErr     *dataprep.ParseError
		modelErr     *models.ArtifactMissingError
		sentimentErr *sentiment.ArtifactMissingError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &validation), errors.Is(err, sentiment.ErrEmptyText):
		return http.StatusBadRequest
	case errors.As(err, &schemaErr), errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &modelErr), errors.As(err, &sentimentErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, component string, err error) {
	status := statusFor(err)
	msg := err.Error()
	var validation validator.ValidationErrors
	if errors.As(err, &validation) {
		msg = validationMessage(validation)
	}

	if status >= http.StatusInternalServerError {
		h.Metrics.RecordError(component, strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_"))
		h.Logger.Error("request failed", "component", component, "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.Logger.Warn("request rejected", "component", component, "path", r.URL.Path, "status", status, "error", err)
	}
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	httpx.WriteErrorMessage(w, status, msg)
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, badRequest("%s must be a positive integer", name)
	}
	return n, nil
}
