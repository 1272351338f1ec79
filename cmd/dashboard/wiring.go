package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/demandcast/cmd/dashboard/config"
	"github.com/HatiCode/demandcast/pkg/calendar"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/sentiment"
	"github.com/HatiCode/demandcast/pkg/storage"
)

// newStore builds the configured snapshot store. The returned func releases it.
func newStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Storage {
	case "redis":
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis not reachable yet", "addr", cfg.RedisAddr, "error", err)
		}
		logger.Info("using redis store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		return rs, func() {
			if err := rs.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}, nil
	case "memory":
		var ms *storage.MemoryStore
		if cfg.StaleAfter > 0 {
			// keep snapshots a while past staleness so they can still be served flagged
			ms = storage.NewMemoryStoreWithTTL(2*cfg.StaleAfter, time.Hour)
		} else {
			ms = storage.NewMemoryStore()
		}
		logger.Info("using memory store")
		return ms, ms.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

func newSentimentLoader(cfg *config.Config) sentiment.Loader {
	if cfg.SentimentBackend == "openai" {
		return sentiment.OpenAILoader(sentiment.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.ModelTimeout,
		})
	}
	return sentiment.InferenceLoader(cfg.SentimentModelDir, cfg.SentimentURL, cfg.ModelTimeout)
}

// firstHolidayYear is the earliest year the merged calendar covers.
const firstHolidayYear = 2015

// loadHolidays returns nil when no file is configured, leaving each consumer
// to build the built-in calendar for the years it needs. With a file, its
// entries are merged over the built-in calendar.
func loadHolidays(path string) (features.HolidayChecker, error) {
	if path == "" {
		return nil, nil
	}
	return calendar.IndonesiaWithFile(path, calendar.YearRange(firstHolidayYear, time.Now().Year()+1)...)
}
