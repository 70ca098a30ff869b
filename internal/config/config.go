// Package config loads the YAML configuration file and applies environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the data service.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Binance  Binance        `yaml:"binance"`
	Logging  Logging        `yaml:"logging"`
	Universe UniverseConfig `yaml:"universe"`
	Download DownloadConfig `yaml:"download"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Binance holds credentials and endpoint for the venue API. Market-data
// endpoints work without credentials.
type Binance struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UniverseConfig holds default parameters for universe construction.
type UniverseConfig struct {
	StartDate  string `yaml:"start_date"`
	EndDate    string `yaml:"end_date"`
	T1Months   int    `yaml:"t1_months"`
	T2Months   int    `yaml:"t2_months"`
	T3Months   int    `yaml:"t3_months"`
	DelayDays  int    `yaml:"delay_days"`
	TopK       int    `yaml:"top_k"`
	QuoteAsset string `yaml:"quote_asset"`
	OutputPath string `yaml:"output_path"`
}

// DownloadConfig holds parameters for the reconciling download engine.
type DownloadConfig struct {
	Freq                  string  `yaml:"freq"`
	MaxWorkers            int     `yaml:"max_workers"`
	MaxRetries            int     `yaml:"max_retries"`
	CompletenessThreshold float64 `yaml:"completeness_threshold"`
	BaseDelayMS           int     `yaml:"base_delay_ms"`
	MaxDelayMS            int     `yaml:"max_delay_ms"`
}

// BaseDelay returns the regulator base delay as a duration.
func (d DownloadConfig) BaseDelay() time.Duration {
	return time.Duration(d.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the regulator max delay as a duration.
func (d DownloadConfig) MaxDelay() time.Duration {
	return time.Duration(d.MaxDelayMS) * time.Millisecond
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/market.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Universe: UniverseConfig{
			T1Months:   1,
			T2Months:   1,
			T3Months:   3,
			DelayDays:  7,
			TopK:       10,
			QuoteAsset: "USDT",
			OutputPath: "data/universe",
		},
		Download: DownloadConfig{
			Freq:                  "1h",
			MaxWorkers:            5,
			MaxRetries:            3,
			CompletenessThreshold: 1.0,
			BaseDelayMS:           300,
			MaxDelayMS:            30000,
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides. A missing
// file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env overrides.
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Binance.APISecret = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Binance.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
