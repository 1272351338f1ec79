// Command dashboard serves the service-request demand dashboard API: history
// analytics, the 1-7 day forecast and sentiment classification of feedback.
//
// Configuration comes from flags, environment variables and an optional .env
// file (see package config).
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/demandcast/cmd/dashboard/config"
	"github.com/HatiCode/demandcast/cmd/dashboard/logger"
	"github.com/HatiCode/demandcast/cmd/dashboard/metrics"
	"github.com/HatiCode/demandcast/cmd/dashboard/router"
	"github.com/HatiCode/demandcast/pkg/adapters"
	"github.com/HatiCode/demandcast/pkg/assets"
	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/httpx"
	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/sentiment"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	logger := logger.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting demandcast dashboard",
		"version", version,
		"series", cfg.Series,
		"adapter", cfg.Adapter,
		"storage", cfg.Storage,
		"sentiment_backend", cfg.SentimentBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.AssetsManifest != "" {
		fetchAssets(ctx, cfg.AssetsManifest, logger)
	}

	m := metrics.New(prometheus.DefaultRegisterer, cfg.Series)

	adapter, err := adapters.New(cfg.Adapter, cfg.AdapterConfig)
	if err != nil {
		logger.Error("failed to create adapter", "error", err)
		os.Exit(1)
	}

	holidays, err := loadHolidays(cfg.HolidaysFile)
	if err != nil {
		logger.Error("failed to load holiday calendar", "error", err)
		os.Exit(1)
	}

	modelClient, err := httpx.NewClient(cfg.ClientTLS, cfg.ModelTimeout)
	if err != nil {
		logger.Error("failed to create model client", "error", err)
		os.Exit(1)
	}
	regressor := models.NewArtifactHandle(cfg.ModelDir, models.LoadOptions{
		Endpoint:   cfg.BYOMURL,
		Timeout:    cfg.ModelTimeout,
		HTTPClient: modelClient,
	})

	forecaster := forecast.New(regressor, forecast.Options{
		Holidays:              holidays,
		RollingExcludeCurrent: cfg.RollingExcludeCurrent,
		OutputPath:            cfg.OutputPath,
		Logger:                logger,
	})

	classifier := sentiment.NewHandle(newSentimentLoader(cfg))

	store, closeStore, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	app := NewApp(
		cfg.Series,
		adapter,
		dataprep.Options{Holidays: holidays, Location: cfg.Location()},
		forecaster,
		store,
		cfg.Horizon,
		logger,
		m,
	)

	// Startup checks are informative only; each view reports its own failure.
	if _, err := app.History(ctx); err != nil {
		logger.Warn("history unavailable", "error", err)
	}
	if _, err := regressor.Get(ctx); err != nil {
		logger.Warn("forecast model unavailable", "dir", cfg.ModelDir, "error", err)
	}
	if _, err := classifier.Get(ctx); err != nil {
		logger.Warn("sentiment model unavailable", "backend", cfg.SentimentBackend, "error", err)
	}

	handler := router.SetupRoutes(router.Deps{
		Series:     cfg.Series,
		History:    app,
		Forecaster: app,
		Store:      store,
		Sentiment:  classifier,
		Metrics:    m,
		StaleAfter: cfg.StaleAfter,
		MaxUpload:  cfg.MaxUploadBytes,
		Logger:     logger,
	})
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	if cfg.Interval > 0 {
		go func() {
			if err := app.Run(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("refresh loop failed", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		tlsConfig, err := cfg.TLS.ServerConfig()
		if err != nil {
			serverErr <- err
			return
		}
		if tlsConfig != nil {
			httpServer.SetTLSConfig(tlsConfig)
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// fetchAssets downloads missing model files. Failures are logged and the
// dashboard starts anyway.
func fetchAssets(ctx context.Context, path string, logger *slog.Logger) {
	manifest, err := assets.LoadManifest(path)
	if err != nil {
		logger.Warn("failed to read assets manifest", "path", path, "error", err)
		return
	}
	outcomes, err := assets.NewFetcher(0, logger).Ensure(ctx, manifest)
	for _, o := range outcomes {
		logger.Info("asset", "name", o.Name, "status", o.Status, "bytes", o.Bytes)
	}
	if err != nil {
		logger.Warn("some assets could not be downloaded", "error", err)
	}
}
