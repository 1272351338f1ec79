// Package forecast extends the daily history one day at a time with a
// pretrained regressor, feeding each prediction back as input for the next day.
package forecast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/demandcast/pkg/calendar"
	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/tabular"
)

// MaxHorizon is the largest horizon offered by the dashboard.
const MaxHorizon = 7

// Predictor maps a raw feature vector (features.Names order) to a raw
// predicted count. *models.Artifacts and *models.ArtifactHandle satisfy it.
type Predictor interface {
	Predict(ctx context.Context, x []float64) (float64, error)
}

// Row is one forecast day.
type Row struct {
	Date           time.Time `json:"date"`
	PredictedCount float64   `json:"predictedCount"`
}

// InsufficientHistoryError stops the loop when a feature is undefined for the
// next date. It is reported in Result, not returned.
type InsufficientHistoryError struct {
	Date    time.Time
	Missing []string
	History int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history to forecast %s (%d days): missing %s",
		e.Date.Format(time.DateOnly), e.History, strings.Join(e.Missing, ", "))
}

// Result holds the rows produced by one Forecast call, in ascending date order.
type Result struct {
	Rows      []Row `json:"rows"`
	Requested int   `json:"requested"`

	// Stop is set when the loop ended before Requested rows.
	Stop *InsufficientHistoryError `json:"-"`
}

// Truncated reports whether fewer rows than requested were produced.
func (r Result) Truncated() bool {
	return r.Stop != nil
}

// StopReason describes why the loop ended early, or "".
func (r Result) StopReason() string {
	if r.Stop == nil {
		return ""
	}
	return r.Stop.Error()
}

// Options configures a Forecaster.
type Options struct {
	// Holidays flags public holidays on forecast dates. Nil means the
	// Indonesian calendar for the years spanned by history and horizon.
	Holidays features.HolidayChecker

	// RollingExcludeCurrent shifts rolling windows back one day. The
	// deployed regressor expects the unshifted window, so the default is false.
	RollingExcludeCurrent bool

	// OutputPath, when set, receives the result as CSV after each call.
	// Write failures are logged and do not fail the forecast.
	OutputPath string

	Logger *slog.Logger
}

// Forecaster runs the recursive multi-step forecast.
type Forecaster struct {
	predictor Predictor
	opts      Options
	logger    *slog.Logger
}

// New creates a Forecaster.
func New(p Predictor, opts Options) *Forecaster {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Forecaster{predictor: p, opts: opts, logger: logger.With("component", "forecast")}
}

// Forecast predicts up to horizon days after the last history date. The
// history slice is never modified. horizon <= 0 yields an empty result.
func (f *Forecaster) Forecast(ctx context.Context, history []dataprep.DailyRecord, horizon int) (Result, error) {
	sorted := history
	if !sort.SliceIsSorted(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) }) {
		sorted = append([]dataprep.DailyRecord(nil), history...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	}
	dates, values := dataprep.Series(sorted)
	return f.ForecastSeries(ctx, dates, values, horizon)
}

// ForecastSeries is Forecast over parallel date-sorted slices.
func (f *Forecaster) ForecastSeries(ctx context.Context, dates []time.Time, values []float64, horizon int) (Result, error) {
	res := Result{Rows: []Row{}, Requested: horizon}
	if horizon <= 0 {
		return res, nil
	}
	if len(dates) != len(values) {
		return res, fmt.Errorf("forecast: %d dates for %d values", len(dates), len(values))
	}
	if len(dates) == 0 {
		res.Stop = &InsufficientHistoryError{Missing: features.NewBuilder(nil, f.opts.RollingExcludeCurrent).Missing(0)}
		f.logger.Warn("forecast stopped", "reason", "empty history")
		return res, nil
	}

	ws := NewWorkingSeries(dates, values, horizon)
	b := features.NewBuilder(f.holidays(dates[0], dates[len(dates)-1], horizon), f.opts.RollingExcludeCurrent)

	for step := 1; step <= horizon; step++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		i := ws.AppendProvisional()
		date := ws.At(i).Date

		vec, ok := b.At(ws.Dates(), ws.Values(), i)
		if !ok {
			ws.DropProvisional()
			res.Stop = &InsufficientHistoryError{Date: date, Missing: b.Missing(i), History: len(dates)}
			f.logger.Warn("forecast stopped early",
				"date", date.Format(time.DateOnly),
				"produced", len(res.Rows),
				"requested", horizon,
				"missing", res.Stop.Missing,
			)
			break
		}

		y, err := f.predictor.Predict(ctx, vec.Values())
		if err != nil {
			return Result{}, fmt.Errorf("forecast %s: %w", date.Format(time.DateOnly), err)
		}

		ws.Promote(i, y)
		res.Rows = append(res.Rows, Row{Date: date, PredictedCount: y})

		f.logger.Debug("forecast step", "step", step, "date", date.Format(time.DateOnly), "value", y)
	}

	if f.opts.OutputPath != "" {
		if err := WriteCSVFile(f.opts.OutputPath, res.Rows); err != nil {
			f.logger.Warn("failed to write forecast output", "path", f.opts.OutputPath, "error", err)
		}
	}
	return res, nil
}

func (f *Forecaster) holidays(first, last time.Time, horizon int) features.HolidayChecker {
	if f.opts.Holidays != nil {
		return f.opts.Holidays
	}
	end := last.AddDate(0, 0, horizon).Year()
	years := make([]int, 0, end-first.Year()+1)
	for y := first.Year(); y <= end; y++ {
		years = append(years, y)
	}
	return calendar.Indonesia(years...)
}

// Table renders rows as {date, predicted_count}.
func Table(rows []Row) *tabular.Table {
	t := &tabular.Table{
		Columns: []string{"date", "predicted_count"},
		Records: make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			r.Date.Format(time.DateOnly),
			strconv.FormatFloat(r.PredictedCount, 'f', -1, 64),
		})
	}
	return t
}

// WriteCSVFile writes rows to path, creating parent directories.
func WriteCSVFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".forecast-*.csv")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tabular.WriteCSV(tmp, Table(rows)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
