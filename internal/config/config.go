// Package config loads CLI configuration from defaults, an optional
// config file, and environment variables, in ascending precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix. HISTVISION_DOWNLOAD_CONCURRENCY
// overrides download.concurrency, and so on.
const EnvPrefix = "HISTVISION"

// Config is the resolved CLI configuration.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Walk     WalkConfig     `mapstructure:"walk"`
	Download DownloadConfig `mapstructure:"download"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ProviderConfig configures the listing endpoint.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	DownloadPrefix string        `mapstructure:"download_prefix"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        int           `mapstructure:"retries"`
}

// WalkConfig configures listing traversal.
type WalkConfig struct {
	MaxEmptyRetries int     `mapstructure:"max_empty_retries"`
	RateLimit       float64 `mapstructure:"rate_limit"`
}

// DownloadConfig configures the download manager.
type DownloadConfig struct {
	Destination    string        `mapstructure:"destination"`
	Concurrency    int           `mapstructure:"concurrency"`
	Retries        int           `mapstructure:"retries"`
	VerifyChecksum bool          `mapstructure:"verify_checksum"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// Load builds the configuration. Overrides apply on top of defaults,
// config file, and environment, and are meant for flag values and
// tests.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("histvision")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/histvision")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("config: merge overrides: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.base_url", "https://s3-ap-northeast-1.amazonaws.com/data.binance.vision")
	v.SetDefault("provider.download_prefix", "https://data.binance.vision/")
	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("provider.retries", 3)

	v.SetDefault("walk.max_empty_retries", 3)
	v.SetDefault("walk.rate_limit", 0.0)

	v.SetDefault("download.destination", "downloads")
	v.SetDefault("download.concurrency", 5)
	v.SetDefault("download.retries", 3)
	v.SetDefault("download.verify_checksum", true)
	v.SetDefault("download.rate_limit", 0.0)
	v.SetDefault("download.timeout", 30*time.Second)

	v.SetDefault("logging.verbose", false)
}

func (c *Config) validate() error {
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("config: download.concurrency must be >= 1, got %d", c.Download.Concurrency)
	}
	if c.Provider.Retries < 0 {
		return fmt.Errorf("config: provider.retries must be >= 0, got %d", c.Provider.Retries)
	}
	if c.Download.Retries < 0 {
		return fmt.Errorf("config: download.retries must be >= 0, got %d", c.Download.Retries)
	}
	return nil
}
