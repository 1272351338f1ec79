// Package main wires the dashboard: history loading, forecasting and the
// optional refresh loop that keeps the stored snapshot current.
//
// History is loaded lazily on first use and cached; a failed load is retried
// on the next request. Each forecast run is stored so the latest snapshot can
// be served and downloaded without recomputing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HatiCode/demandcast/cmd/dashboard/metrics"
	"github.com/HatiCode/demandcast/pkg/adapters"
	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/storage"
)

// App owns the cached history and produces forecasts for one series.
type App struct {
	series     string
	adapter    adapters.Adapter
	prep       dataprep.Options
	forecaster *forecast.Forecaster
	store      storage.Store
	horizon    int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	group    singleflight.Group
	mu       sync.RWMutex
	history  []dataprep.DailyRecord
	loadedAt time.Time

	// serializes forecast runs so the output file reflects one run
	runMu sync.Mutex
}

// NewApp creates an App. Nothing is loaded until History, Forecast or Tick.
func NewApp(
	series string,
	adapter adapters.Adapter,
	prep dataprep.Options,
	forecaster *forecast.Forecaster,
	store storage.Store,
	horizon int,
	logger *slog.Logger,
	m *metrics.Metrics,
) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		series:     series,
		adapter:    adapter,
		prep:       prep,
		forecaster: forecaster,
		store:      store,
		horizon:    horizon,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// History returns the prepared history, loading it on first use.
func (a *App) History(ctx context.Context) ([]dataprep.DailyRecord, error) {
	a.mu.RLock()
	history := a.history
	a.mu.RUnlock()
	if history != nil {
		return history, nil
	}
	return a.load(ctx)
}

// Reload discards the cached history and loads it again. The previous
// history stays in place if the load fails.
func (a *App) Reload(ctx context.Context) ([]dataprep.DailyRecord, error) {
	return a.load(ctx)
}

func (a *App) load(ctx context.Context) ([]dataprep.DailyRecord, error) {
	ch := a.group.DoChan("history", func() (any, error) {
		start := time.Now()
		records, err := dataprep.Load(context.WithoutCancel(ctx), a.adapter, a.prep)
		if err != nil {
			a.metrics.RecordError("history", "load_failed")
			return nil, err
		}
		duration := time.Since(start)

		a.mu.Lock()
		a.history = records
		a.loadedAt = a.now()
		a.mu.Unlock()

		a.metrics.RecordHistoryLoad(duration, len(records))
		a.logger.Info("history loaded",
			"adapter", a.adapter.Name(),
			"days", len(records),
			"duration_ms", duration.Milliseconds(),
		)
		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]dataprep.DailyRecord), nil
	}
}

// LoadedAt returns when history was last loaded, or the zero time.
func (a *App) LoadedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadedAt
}

// Forecast runs the forecaster over the cached history and stores the result.
func (a *App) Forecast(ctx context.Context, horizon int) (storage.ForecastSnapshot, error) {
	history, err := a.History(ctx)
	if err != nil {
		return storage.ForecastSnapshot{}, fmt.Errorf("history: %w", err)
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	start := time.Now()
	res, err := a.forecaster.Forecast(ctx, history, horizon)
	if err != nil {
		a.metrics.RecordError("forecast", "predict_failed")
		return storage.ForecastSnapshot{}, err
	}
	duration := time.Since(start)

	var historyEnd time.Time
	if n := len(history); n > 0 {
		historyEnd = history[n-1].Date
	}
	snap := storage.NewSnapshot(a.series, historyEnd, res, a.now())
	if err := a.store.Put(ctx, snap); err != nil {
		a.metrics.RecordError("store", "put_failed")
		return storage.ForecastSnapshot{}, fmt.Errorf("store: %w", err)
	}

	var first float64
	if len(res.Rows) > 0 {
		first = res.Rows[0].PredictedCount
	}
	a.metrics.RecordForecast(duration, len(res.Rows), res.Truncated(), first)

	a.logger.Info("forecast complete",
		"series", a.series,
		"requested", horizon,
		"produced", len(res.Rows),
		"truncated", res.Truncated(),
		"duration_ms", duration.Milliseconds(),
	)
	return snap, nil
}

// Run reloads history and refreshes the forecast at each interval.
// Blocks until ctx is canceled.
func (a *App) Run(ctx context.Context, interval time.Duration) error {
	a.logger.Info("starting refresh loop", "interval", interval, "horizon", a.horizon)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := a.Tick(ctx); err != nil {
		a.logger.Error("initial refresh failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Tick(ctx); err != nil {
				a.logger.Error("refresh failed", "error", err)
			}
		}
	}
}

// Tick reloads history and stores a fresh forecast at the configured horizon.
func (a *App) Tick(ctx context.Context) error {
	if _, err := a.Reload(ctx); err != nil {
		return fmt.Errorf("reload history: %w", err)
	}
	if _, err := a.Forecast(ctx, a.horizon); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	return nil
}
