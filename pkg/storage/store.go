// Package storage keeps the latest forecast snapshot per series so the
// dashboard can serve and download it without recomputing.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/demandcast/pkg/forecast"
)

// ForecastSnapshot is one stored forecast run.
type ForecastSnapshot struct {
	ID               uuid.UUID      `json:"id"`
	Series           string         `json:"series"`
	GeneratedAt      time.Time      `json:"generatedAt"`
	HorizonRequested int            `json:"horizonRequested"`
	HistoryEnd       time.Time      `json:"historyEnd"`
	Rows             []forecast.Row `json:"rows"`
	Truncated        bool           `json:"truncated"`
	StopReason       string         `json:"stopReason,omitempty"`
}

// NewSnapshot wraps a forecast result. historyEnd is the last observed date.
func NewSnapshot(series string, historyEnd time.Time, res forecast.Result, now time.Time) ForecastSnapshot {
	rows := res.Rows
	if rows == nil {
		rows = []forecast.Row{}
	}
	return ForecastSnapshot{
		ID:               uuid.New(),
		Series:           series,
		GeneratedAt:      now,
		HorizonRequested: res.Requested,
		HistoryEnd:       historyEnd,
		Rows:             rows,
		Truncated:        res.Truncated(),
		StopReason:       res.StopReason(),
	}
}

// Age returns how long ago the snapshot was generated.
func (s ForecastSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.GeneratedAt)
}

// Store holds the latest snapshot per series.
type Store interface {
	Put(ctx context.Context, snapshot ForecastSnapshot) error
	GetLatest(ctx context.Context, series string) (ForecastSnapshot, bool, error)
}

func validSeries(series string) error {
	if series == "" {
		return fmt.Errorf("snapshot series cannot be empty")
	}
	for _, c := range series {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid series name %q: only alphanumeric, hyphens, and underscores allowed", series)
		}
	}
	return nil
}
