package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	GrpcHost   string            `yaml:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port"`
	Timezone   string            `yaml:"timezone"`
	Storage    MStorageConfig    `yaml:"storage"`
	Network    MNetworkConfig    `yaml:"network"`
	DataSource MDataSourceConfig `yaml:"data_source"`
	Cache      MCacheConfig      `yaml:"cache"`
	Refresh    MRefreshConfig    `yaml:"refresh"`
	Ledgers    MLedgerConfig     `yaml:"ledgers"`
	Portfolio  MPortfolioConfig  `yaml:"portfolio"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // file, sqlite or postgres
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Proxies        []string `yaml:"proxies"`
	RequestTimeout int      `yaml:"timeout"`
	MaxRetries     int      `yaml:"retries"`
	UserAgent      string   `yaml:"user_agent"`
}

type MDataSourceConfig struct {
	Sources              []MSourceConfig `yaml:"sources"`
	CryptoSuffix         string          `yaml:"crypto_suffix"`
	DisplayCurrency      string          `yaml:"display_currency"`
	ExchangeRateSymbol   string          `yaml:"exchange_rate_symbol"`
	FallbackExchangeRate float64         `yaml:"fallback_exchange_rate"`
}

type MSourceConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

type MCacheConfig struct {
	PriceTTLMinutes          int    `yaml:"price_ttl_minutes"`
	SweepIntervalMinutes     int    `yaml:"sweep_interval_minutes"`
	HistoryRetentionDays     int    `yaml:"history_retention_days"`
	HousekeepingDelaySeconds int    `yaml:"housekeeping_delay_seconds"`
	Calendar                 string `yaml:"calendar"` // "weekdays" or an exchange MIC such as "xnys"
}

type MRefreshConfig struct {
	BatchSize         int    `yaml:"batch_size"`
	BatchDelayMs      int    `yaml:"batch_delay_ms"`
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelayMs      int    `yaml:"retry_delay_ms"`
	FullBackfillRange string `yaml:"full_backfill_range"`
	HistoryPeriod     string `yaml:"history_period"`
	HistoryResolution string `yaml:"history_resolution"`
	RefreshCron       string `yaml:"refresh_cron"`
	RefreshOnStart    bool   `yaml:"refresh_on_start"`
}

type MLedgerConfig struct {
	Directories []MLedgerDirectory `yaml:"directories"`
	Patterns    []string           `yaml:"patterns"`
}

// MLedgerDirectory is a source directory scanned for ledger files. Folder is the
// logical category reported with every file found below Path.
type MLedgerDirectory struct {
	Path   string `yaml:"path"`
	Folder string `yaml:"folder"`
}

type MPortfolioConfig struct {
	HoldingsPath string `yaml:"holdings_path"`
}
