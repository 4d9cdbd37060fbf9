package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORTFOLIO_CONFIG", "")
	cfg, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Cache.PriceTTLMinutes != 60 || cfg.Cache.SweepIntervalMinutes != 30 {
		t.Errorf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.Refresh.BatchSize != 3 || cfg.Refresh.BatchDelayMs != 500 || cfg.Refresh.MaxRetries != 2 {
		t.Errorf("refresh defaults = %+v", cfg.Refresh)
	}
	if cfg.DataSource.FallbackExchangeRate != 1.35 {
		t.Errorf("fallback rate = %v", cfg.DataSource.FallbackExchangeRate)
	}
	if cfg.Cache.HistoryRetentionDays != 7 || cfg.Cache.HousekeepingDelaySeconds != 5 {
		t.Errorf("housekeeping defaults = %+v", cfg.Cache)
	}
}

func TestNewConfigMalformedFile(t *testing.T) {
	t.Setenv("PORTFOLIO_CONFIG", "")
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [not, a, number"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\nstorage:\n  db_type: file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORTFOLIO_CONFIG", path)
	t.Setenv("PORTFOLIO_DB_TYPE", "SQLITE")
	t.Setenv("PORTFOLIO_DB_PATH", "/tmp/cache")
	t.Setenv("PORTFOLIO_PORT", "9100")

	cfg, err := NewConfig("ignored.yaml")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Storage.DBType != "sqlite" || cfg.Storage.DBPath != "/tmp/cache" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Port != 9100 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestValidateRejectsPostgresWithoutDSN(t *testing.T) {
	cfg := Default()
	cfg.Storage.DBType = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("PORTFOLIO_CONFIG", "")
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Refresh.BatchSize = 5
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if loaded.Refresh.BatchSize != 5 {
		t.Errorf("batch size = %d, want 5", loaded.Refresh.BatchSize)
	}
}

func TestNewConfigKeepsExplicitZeroRetries(t *testing.T) {
	t.Setenv("PORTFOLIO_CONFIG", "")
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "refresh:\n  max_retries: 0\n  batch_delay_ms: 0\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Refresh.MaxRetries != 0 || cfg.Refresh.BatchDelayMs != 0 {
		t.Errorf("explicit zeros overwritten: %+v", cfg.Refresh)
	}
	if cfg.Refresh.RetryDelayMs != 1000 || cfg.Refresh.BatchSize != 3 {
		t.Errorf("absent keys lost their defaults: %+v", cfg.Refresh)
	}
}
