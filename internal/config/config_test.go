package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}

	if cfg.Storage.SQLitePath != "data/market.db" {
		t.Errorf("sqlite path = %s", cfg.Storage.SQLitePath)
	}
	if cfg.Download.MaxWorkers != 5 || cfg.Download.Freq != "1h" {
		t.Errorf("download defaults = %+v", cfg.Download)
	}
	if cfg.Universe.TopK != 10 || cfg.Universe.QuoteAsset != "USDT" {
		t.Errorf("universe defaults = %+v", cfg.Universe)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := `
storage:
  data_dir: /var/data
  sqlite_path: /var/data/x.db
logging:
  level: debug
universe:
  top_k: 25
  t1_months: 2
download:
  max_workers: 8
  base_delay_ms: 500
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.DataDir != "/var/data" {
		t.Errorf("data dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
	if cfg.Universe.TopK != 25 || cfg.Universe.T1Months != 2 {
		t.Errorf("universe = %+v", cfg.Universe)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Universe.QuoteAsset != "USDT" || cfg.Download.MaxRetries != 3 {
		t.Errorf("defaults lost: %+v %+v", cfg.Universe, cfg.Download)
	}
	if cfg.Download.BaseDelay() != 500*time.Millisecond {
		t.Errorf("base delay = %v", cfg.Download.BaseDelay())
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("storage: [not: a: map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SQLITE_PATH", "/tmp/override.db")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("BINANCE_API_KEY", "k123")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.SQLitePath != "/tmp/override.db" {
		t.Errorf("sqlite path = %s", cfg.Storage.SQLitePath)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
	if cfg.Binance.APIKey != "k123" {
		t.Errorf("api key = %s", cfg.Binance.APIKey)
	}
}
