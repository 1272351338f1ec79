package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/HatiCode/demandcast/cmd/dashboard/logger"
	"github.com/HatiCode/demandcast/pkg/adapters"
	"github.com/HatiCode/demandcast/pkg/calendar"
	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/sentiment"
	"github.com/HatiCode/demandcast/pkg/tabular"
)

// Config is the effective demandctl configuration.
// Precedence: flags > DEMANDCAST_* env > config file > defaults.
type Config struct {
	Adapter       string            `mapstructure:"adapter"`
	Data          string            `mapstructure:"data"`
	AdapterConfig map[string]string `mapstructure:"adapter_config"`
	Timezone      string            `mapstructure:"timezone"`
	Holidays      string            `mapstructure:"holidays"`

	ModelDir              string        `mapstructure:"model_dir"`
	BYOMURL               string        `mapstructure:"byom_url"`
	ModelTimeout          time.Duration `mapstructure:"model_timeout"`
	RollingExcludeCurrent bool          `mapstructure:"rolling_exclude_current"`

	SentimentBackend  string `mapstructure:"sentiment_backend"`
	SentimentModelDir string `mapstructure:"sentiment_model_dir"`
	SentimentURL      string `mapstructure:"sentiment_url"`
	OpenAIKey         string `mapstructure:"openai_api_key"`
	OpenAIModel       string `mapstructure:"openai_model"`
	OpenAIBaseURL     string `mapstructure:"openai_base_url"`

	Assets   string `mapstructure:"assets"`
	LogLevel string `mapstructure:"log_level"`
}

// app carries state shared by subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "demandctl",
		Short:         "Prepare request history, forecast demand and classify feedback offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default ./demandcast.yaml if present)")
	f.String("adapter", "file", "history source: file, postgres or http")
	f.String("data", "data/data_permohonan.csv", "history file for the file adapter")
	f.String("timezone", "", "IANA zone used to bucket timestamps into days")
	f.String("holidays", "", "YAML holiday file merged with the built-in calendar")
	f.String("model-dir", "model", "regression artifact directory")
	f.String("byom-url", "", "serve the regressor from this endpoint")
	f.Duration("model-timeout", 30*time.Second, "timeout for model server calls")
	f.Bool("rolling-exclude-current", false, "exclude the forecast day from rolling windows")
	f.String("sentiment-backend", "inference", "sentiment backend: inference or openai")
	f.String("sentiment-model-dir", "model_nlp", "sequence-classification model directory")
	f.String("sentiment-url", "http://localhost:8000/classify", "text-classification server URL")
	f.String("openai-model", "", "OpenAI model for the openai backend")
	f.String("openai-base-url", "", "OpenAI-compatible API base URL")
	f.String("assets", "assets.yaml", "asset manifest")
	f.String("log-level", "warn", "log level: debug, info, warn, error")

	f.VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "config" {
			return
		}
		_ = a.v.BindPFlag(strings.ReplaceAll(fl.Name, "-", "_"), fl)
	})

	root.AddCommand(
		newPrepareCmd(a),
		newDescribeCmd(a),
		newForecastCmd(a),
		newClassifyCmd(a),
		newClassifyBatchCmd(a),
		newAssetsCmd(a),
	)
	return root
}

func (a *app) load() error {
	v := a.v
	v.SetEnvPrefix("DEMANDCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai_api_key", "DEMANDCAST_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.SetDefault("adapter_config", map[string]string{})

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("demandcast")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	a.logger = logger.New("text", a.cfg.LogLevel)
	return nil
}

func (a *app) adapter() (adapters.Adapter, error) {
	config := make(map[string]string, len(a.cfg.AdapterConfig)+1)
	for k, v := range a.cfg.AdapterConfig {
		config[k] = v
	}
	if a.cfg.Adapter == "file" && config["path"] == "" {
		config["path"] = a.cfg.Data
	}
	return adapters.New(a.cfg.Adapter, config)
}

// firstHolidayYear is the earliest year a merged calendar covers.
const firstHolidayYear = 2015

func (a *app) holidays() (features.HolidayChecker, error) {
	if a.cfg.Holidays == "" {
		return nil, nil
	}
	return calendar.IndonesiaWithFile(a.cfg.Holidays, calendar.YearRange(firstHolidayYear, time.Now().Year()+1)...)
}

func (a *app) prepOptions() (dataprep.Options, error) {
	opts := dataprep.Options{}
	h, err := a.holidays()
	if err != nil {
		return opts, err
	}
	opts.Holidays = h
	if a.cfg.Timezone != "" {
		loc, err := time.LoadLocation(a.cfg.Timezone)
		if err != nil {
			return opts, fmt.Errorf("invalid timezone %q: %w", a.cfg.Timezone, err)
		}
		opts.Location = loc
	}
	return opts, nil
}

func (a *app) sentiment() *sentiment.Handle {
	if a.cfg.SentimentBackend == "openai" {
		return sentiment.NewHandle(sentiment.OpenAILoader(sentiment.OpenAIConfig{
			APIKey:  a.cfg.OpenAIKey,
			Model:   a.cfg.OpenAIModel,
			BaseURL: a.cfg.OpenAIBaseURL,
			Timeout: a.cfg.ModelTimeout,
		}))
	}
	return sentiment.NewHandle(sentiment.InferenceLoader(a.cfg.SentimentModelDir, a.cfg.SentimentURL, a.cfg.ModelTimeout))
}

// writeTableFile writes t to path as CSV or XLSX depending on the extension.
func writeTableFile(path string, t *tabular.Table) error {
	format, err := tabular.FormatOf(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := tabular.Write(f, t, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
