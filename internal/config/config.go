package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Serper SerperConfig `yaml:"serper" mapstructure:"serper"`
	Worker WorkerConfig `yaml:"worker" mapstructure:"worker"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SerperConfig configures the search provider client.
type SerperConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs int     `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// WorkerConfig configures the background job loop.
type WorkerConfig struct {
	PollIntervalSecs  int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PersistRetries    int `yaml:"persist_retries" mapstructure:"persist_retries"`
	PersistRetryDelay int `yaml:"persist_retry_delay_ms" mapstructure:"persist_retry_delay_ms"`
}

// PollInterval returns the idle sleep as a duration.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSecs) * time.Second
}

// EnrichConfig configures the enrichment waterfall and its providers.
type EnrichConfig struct {
	WaterfallPath      string                    `yaml:"waterfall_path" mapstructure:"waterfall_path"`
	MillionVerifierKey string                    `yaml:"millionverifier_key" mapstructure:"millionverifier_key"`
	AnthropicKey       string                    `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel     string                    `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	Providers          map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig holds credentials for one identity-resolution provider.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields a given run mode depends on. Modes: "serve",
// "worker", "enrich", "migrate".
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Serper.Key == "" {
			missing = append(missing, "serper.key is required")
		}
	case "worker":
		requireStore()
		if c.Serper.Key == "" {
			missing = append(missing, "serper.key is required")
		}
		if c.Worker.PollIntervalSecs <= 0 {
			missing = append(missing, "worker.poll_interval_secs must be > 0")
		}
	case "enrich":
		requireStore()
		if c.Enrich.MillionVerifierKey == "" && c.Enrich.AnthropicKey == "" && len(c.Enrich.Providers) == 0 {
			missing = append(missing, "enrich requires at least one provider key")
		}
	case "migrate":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.timeout_secs", 15)
	v.SetDefault("serper.max_retries", 3)
	v.SetDefault("serper.retry_delay_ms", 1000)
	v.SetDefault("serper.rate_per_sec", 5)
	v.SetDefault("worker.poll_interval_secs", 5)
	v.SetDefault("worker.persist_retries", 3)
	v.SetDefault("worker.persist_retry_delay_ms", 250)
	v.SetDefault("enrich.waterfall_path", "")
	v.SetDefault("enrich.anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
