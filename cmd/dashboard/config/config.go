// Package config parses dashboard configuration from flags and environment
// variables. Flags take precedence over the environment, which takes
// precedence over defaults. A .env file in the working directory is loaded by
// main before ParseFlags runs.
//
// Adapter settings are read from ADAPTER_* variables, e.g. ADAPTER_PATH,
// ADAPTER_DSN or ADAPTER_URL, and passed to adapters.New with lowerCamelCase
// keys (ADAPTER_TIMESTAMP_PATH becomes timestampPath).
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/tls"
)

// Config holds all dashboard configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	TLS       tls.Config
	ClientTLS tls.Config

	Series        string
	Adapter       string
	AdapterConfig map[string]string
	DataFile      string
	Timezone      string
	HolidaysFile  string

	ModelDir              string
	BYOMURL               string
	ModelTimeout          time.Duration
	RollingExcludeCurrent bool
	Horizon               int
	OutputPath            string
	Interval              time.Duration
	StaleAfter            time.Duration

	SentimentBackend  string
	SentimentModelDir string
	SentimentURL      string
	OpenAIKey         string
	OpenAIModel       string
	OpenAIBaseURL     string

	AssetsManifest string
	MaxUploadBytes int64
}

// ParseFlags parses flags and environment variables into a Config and
// validates it.
func ParseFlags() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Snapshot storage: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 24*time.Hour), "Redis snapshot TTL")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Serve HTTPS with client certificate verification")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA file for client verification")
	flag.BoolVar(&cfg.ClientTLS.Enabled, "model-tls-enabled", getEnvBool("MODEL_TLS_ENABLED", false), "Use mTLS for the BYOM regressor endpoint")
	flag.StringVar(&cfg.ClientTLS.CertFile, "model-tls-cert-file", getEnv("MODEL_TLS_CERT_FILE", ""), "Client certificate for model calls")
	flag.StringVar(&cfg.ClientTLS.KeyFile, "model-tls-key-file", getEnv("MODEL_TLS_KEY_FILE", ""), "Client key for model calls")
	flag.StringVar(&cfg.ClientTLS.CAFile, "model-tls-ca-file", getEnv("MODEL_TLS_CA_FILE", ""), "CA for verifying the model server")

	flag.StringVar(&cfg.Series, "series", getEnv("SERIES", "default"), "Name under which forecasts are stored")
	flag.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", "file"), "History source: file, postgres or http")
	flag.StringVar(&cfg.DataFile, "data", getEnv("DATA_FILE", "data/data_permohonan.csv"), "History file for the file adapter")
	flag.StringVar(&cfg.Timezone, "timezone", getEnv("TIMEZONE", ""), "IANA zone used to bucket timestamps into days (empty keeps wall dates)")
	flag.StringVar(&cfg.HolidaysFile, "holidays", getEnv("HOLIDAYS_FILE", ""), "Optional YAML holiday calendar merged with the built-in one")

	flag.StringVar(&cfg.ModelDir, "model-dir", getEnv("MODEL_DIR", "model"), "Directory with svr_model.json, scaler_x.json and scaler_y.json")
	flag.StringVar(&cfg.BYOMURL, "byom-url", getEnv("BYOM_URL", ""), "Serve the regressor from this endpoint instead of svr_model.json")
	flag.DurationVar(&cfg.ModelTimeout, "model-timeout", getEnvDuration("MODEL_TIMEOUT", 30*time.Second), "Timeout for model server calls")
	flag.BoolVar(&cfg.RollingExcludeCurrent, "rolling-exclude-current", getEnvBool("ROLLING_EXCLUDE_CURRENT", false), "Exclude the forecast day from rolling windows")
	flag.IntVar(&cfg.Horizon, "horizon", getEnvInt("HORIZON", forecast.MaxHorizon), "Horizon in days for scheduled forecasts")
	flag.StringVar(&cfg.OutputPath, "output", getEnv("OUTPUT_PATH", "output/prediksi.csv"), "CSV file receiving each forecast (empty disables)")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 0), "Reload history and refresh the forecast at this interval (0 disables)")
	flag.DurationVar(&cfg.StaleAfter, "stale-after", getEnvDuration("STALE_AFTER", 24*time.Hour), "Mark stored forecasts older than this as stale")

	flag.StringVar(&cfg.SentimentBackend, "sentiment-backend", getEnv("SENTIMENT_BACKEND", "inference"), "Sentiment backend: inference or openai")
	flag.StringVar(&cfg.SentimentModelDir, "sentiment-model-dir", getEnv("SENTIMENT_MODEL_DIR", "model_nlp"), "Sequence-classification model directory")
	flag.StringVar(&cfg.SentimentURL, "sentiment-url", getEnv("SENTIMENT_URL", "http://localhost:8000/classify"), "Text-classification server URL")
	flag.StringVar(&cfg.OpenAIKey, "openai-api-key", getEnv("OPENAI_API_KEY", ""), "OpenAI API key (openai backend)")
	flag.StringVar(&cfg.OpenAIModel, "openai-model", getEnv("OPENAI_MODEL", ""), "OpenAI model (openai backend)")
	flag.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", getEnv("OPENAI_BASE_URL", ""), "OpenAI-compatible API base URL")

	flag.StringVar(&cfg.AssetsManifest, "assets", getEnv("ASSETS_MANIFEST", ""), "YAML manifest of model files to download at startup")
	flag.Int64Var(&cfg.MaxUploadBytes, "max-upload", int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)), "Maximum batch upload size in bytes")

	flag.Parse()

	cfg.AdapterConfig = parseAdapterConfig()
	if cfg.Adapter == "file" && cfg.AdapterConfig["path"] == "" {
		cfg.AdapterConfig["path"] = cfg.DataFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var seriesNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks values that flag parsing cannot.
func (c *Config) Validate() error {
	if !seriesNameRegex.MatchString(c.Series) {
		return fmt.Errorf("invalid series name %q (must be alphanumeric with dash/underscore, 1-253 chars)", c.Series)
	}
	switch c.Adapter {
	case "file", "postgres", "http":
	default:
		return fmt.Errorf("invalid adapter %q (must be file, postgres, or http)", c.Adapter)
	}
	switch c.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	switch c.SentimentBackend {
	case "inference":
		if c.SentimentURL == "" {
			return fmt.Errorf("sentiment-url is required for the inference backend")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("openai-api-key is required for the openai backend")
		}
	default:
		return fmt.Errorf("invalid sentiment backend %q (must be inference or openai)", c.SentimentBackend)
	}
	if c.Horizon < 1 || c.Horizon > forecast.MaxHorizon {
		return fmt.Errorf("horizon must be between 1 and %d, got %d", forecast.MaxHorizon, c.Horizon)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval cannot be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max-upload must be > 0")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := c.ClientTLS.Validate(); err != nil {
		return fmt.Errorf("model tls: %w", err)
	}
	return nil
}

// Location returns the configured zone, or nil for wall dates.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// parseAdapterConfig maps ADAPTER_FOO_BAR=v to {"fooBar": v}.
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, "ADAPTER_") || len(name) == len("ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(name[len("ADAPTER_"):])] = value
	}
	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			p = strings.ToUpper(p[:1]) + p[1:]
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
