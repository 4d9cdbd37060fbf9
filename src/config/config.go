package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig loads the YAML file at configPath. A missing file yields the
// defaults, a malformed one is an error. Environment overrides are applied last.
func NewConfig(configPath string) (*Config, error) {
	if env := os.Getenv("PORTFOLIO_CONFIG"); env != "" {
		configPath = env
	}

	modelConfig := newModelConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns a validated configuration built from defaults only.
func Default() *Config {
	modelConfig := newModelConfig()
	c := &Config{MConfig: &modelConfig}
	c.ApplyDefaults()
	return c
}

// -----------------------------------------------------------------------------

// newModelConfig presets the fields where zero is a valid setting. YAML keys
// that are present overwrite them, absent keys keep the default.
func newModelConfig() models.MConfig {
	var m models.MConfig
	m.Refresh.BatchDelayMs = utils.DefaultBatchDelayMs
	m.Refresh.MaxRetries = utils.DefaultMaxRetries
	m.Refresh.RetryDelayMs = utils.DefaultRetryDelayMs
	return m
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every zero-valued optional field. Retry and delay
// settings are preset by newModelConfig so an explicit 0 survives.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "portfolio-dashboard"
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = utils.DefaultHTTPPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.GrpcHost == "" {
		c.GrpcHost = "127.0.0.1"
	}
	if c.GrpcPort == 0 {
		c.GrpcPort = utils.DefaultGrpcPort
	}

	// Storage
	if c.Storage.DBType == "" {
		c.Storage.DBType = "file"
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data"
	}

	// Network
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = utils.DefaultRequestTimeoutSeconds
	}

	// Data source
	if len(c.DataSource.Sources) == 0 {
		c.DataSource.Sources = []models.MSourceConfig{{Name: "yahoo", BaseURL: utils.DefaultYahooBaseURL}}
	}
	for i := range c.DataSource.Sources {
		if c.DataSource.Sources[i].BaseURL == "" {
			c.DataSource.Sources[i].BaseURL = utils.DefaultYahooBaseURL
		}
	}
	if c.DataSource.CryptoSuffix == "" {
		c.DataSource.CryptoSuffix = "-USD"
	}
	if c.DataSource.DisplayCurrency == "" {
		c.DataSource.DisplayCurrency = "CAD"
	}
	if c.DataSource.ExchangeRateSymbol == "" {
		c.DataSource.ExchangeRateSymbol = "USDCAD=X"
	}
	if c.DataSource.FallbackExchangeRate == 0 {
		c.DataSource.FallbackExchangeRate = utils.DefaultFallbackExchangeRate
	}

	// Cache
	if c.Cache.PriceTTLMinutes == 0 {
		c.Cache.PriceTTLMinutes = utils.DefaultPriceTTLMinutes
	}
	if c.Cache.SweepIntervalMinutes == 0 {
		c.Cache.SweepIntervalMinutes = utils.DefaultSweepIntervalMinutes
	}
	if c.Cache.HistoryRetentionDays == 0 {
		c.Cache.HistoryRetentionDays = utils.DefaultRetentionDays
	}
	if c.Cache.HousekeepingDelaySeconds == 0 {
		c.Cache.HousekeepingDelaySeconds = utils.DefaultHousekeepingDelaySeconds
	}
	if c.Cache.Calendar == "" {
		c.Cache.Calendar = utils.WeekdayCalendarName
	}

	// Refresh
	if c.Refresh.BatchSize == 0 {
		c.Refresh.BatchSize = utils.DefaultBatchSize
	}
	if c.Refresh.FullBackfillRange == "" {
		c.Refresh.FullBackfillRange = "max"
	}
	if c.Refresh.HistoryPeriod == "" {
		c.Refresh.HistoryPeriod = "max"
	}
	if c.Refresh.HistoryResolution == "" {
		c.Refresh.HistoryResolution = "1d"
	}

	// Ledgers
	if len(c.Ledgers.Patterns) == 0 {
		c.Ledgers.Patterns = []string{"**/*.csv"}
	}
	for i := range c.Ledgers.Directories {
		if c.Ledgers.Directories[i].Folder == "" {
			c.Ledgers.Directories[i].Folder = c.Ledgers.Directories[i].Path
		}
	}

	// Portfolio
	if c.Portfolio.HoldingsPath == "" {
		c.Portfolio.HoldingsPath = c.Storage.DBPath + "/holdings.json"
	}
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() {
	if v := os.Getenv("PORTFOLIO_DB_TYPE"); v != "" {
		c.Storage.DBType = strings.ToLower(v)
	}
	if v := os.Getenv("PORTFOLIO_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("PORTFOLIO_DB_DSN"); v != "" {
		c.Storage.DBConnectionString = v
	}
	if v := os.Getenv("PORTFOLIO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Network.Enabled = true
		c.Network.Proxies = append([]string{v}, c.Network.Proxies...)
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Server
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Storage
	switch c.Storage.DBType {
	case "file", "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for %s", c.Storage.DBType)
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("db_connection_string is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database type: %q", c.Storage.DBType)
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// DataSource
	if len(c.DataSource.Sources) == 0 {
		return fmt.Errorf("at least one data source must be configured")
	}
	for i, src := range c.DataSource.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d must have a name", i)
		}
	}
	if c.DataSource.FallbackExchangeRate <= 0 {
		return fmt.Errorf("fallback exchange rate must be positive")
	}

	// Cache
	if c.Cache.PriceTTLMinutes <= 0 {
		return fmt.Errorf("price ttl must be greater than 0")
	}
	if c.Cache.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("sweep interval must be greater than 0")
	}
	if c.Cache.HistoryRetentionDays <= 0 {
		return fmt.Errorf("history retention days must be greater than 0")
	}

	// Refresh
	if c.Refresh.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than 0")
	}
	if c.Refresh.BatchDelayMs < 0 || c.Refresh.RetryDelayMs < 0 {
		return fmt.Errorf("refresh delays cannot be negative")
	}
	if c.Refresh.MaxRetries < 0 {
		return fmt.Errorf("refresh max retries cannot be negative")
	}

	for i, dir := range c.Ledgers.Directories {
		if dir.Path == "" {
			return fmt.Errorf("ledger directory %d must have a path", i)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
