// Package metrics provides Prometheus instrumentation for the dashboard.
//
// Metrics exposed:
//   - demandcast_history_load_seconds: Histogram of history load and preparation duration
//   - demandcast_history_days: Gauge of prepared history length in days
//   - demandcast_forecast_seconds: Histogram of forecast run duration
//   - demandcast_forecast_rows: Gauge of rows produced by the last forecast
//   - demandcast_forecast_truncated_total: Counter of forecasts that stopped early
//   - demandcast_predicted_value: Gauge of the first predicted daily count
//   - demandcast_sentiment_classifications_total: Counter of classified texts by label
//   - demandcast_errors_total: Counter of errors by component and reason
//
// All metrics carry the series label.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the dashboard. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HistoryLoadSeconds     prometheus.Histogram
	HistoryDays            prometheus.Gauge
	ForecastSeconds        prometheus.Histogram
	ForecastRows           prometheus.Gauge
	ForecastTruncatedTotal prometheus.Counter
	PredictedValue         prometheus.Gauge
	ClassificationsTotal   *prometheus.CounterVec
	ErrorsTotal            *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer, series string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"series": series}

	return &Metrics{
		HistoryLoadSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "demandcast_history_load_seconds",
			Help:        "Time spent loading and preparing request history",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		HistoryDays: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "demandcast_history_days",
			Help:        "Number of days in the prepared history",
			ConstLabels: labels,
		}),
		ForecastSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "demandcast_forecast_seconds",
			Help:        "Time spent producing a forecast",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		ForecastRows: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "demandcast_forecast_rows",
			Help:        "Rows produced by the most recent forecast",
			ConstLabels: labels,
		}),
		ForecastTruncatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "demandcast_forecast_truncated_total",
			Help:        "Forecasts that stopped before the requested horizon",
			ConstLabels: labels,
		}),
		PredictedValue: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "demandcast_predicted_value",
			Help:        "Predicted request count for the first forecast day",
			ConstLabels: labels,
		}),
		ClassificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "demandcast_sentiment_classifications_total",
			Help:        "Classified texts by resulting label",
			ConstLabels: labels,
		}, []string{"label"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "demandcast_errors_total",
			Help:        "Total errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordHistoryLoad records a successful history load.
func (m *Metrics) RecordHistoryLoad(d time.Duration, days int) {
	if m == nil {
		return
	}
	m.HistoryLoadSeconds.Observe(d.Seconds())
	m.HistoryDays.Set(float64(days))
}

// RecordForecast records a completed forecast run.
func (m *Metrics) RecordForecast(d time.Duration, rows int, truncated bool, first float64) {
	if m == nil {
		return
	}
	m.ForecastSeconds.Observe(d.Seconds())
	m.ForecastRows.Set(float64(rows))
	if truncated {
		m.ForecastTruncatedTotal.Inc()
	}
	if rows > 0 {
		m.PredictedValue.Set(first)
	}
}

// RecordClassifications adds per-label counts from a classification run.
func (m *Metrics) RecordClassifications(counts map[string]int) {
	if m == nil {
		return
	}
	for label, n := range counts {
		m.ClassificationsTotal.WithLabelValues(label).Add(float64(n))
	}
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
