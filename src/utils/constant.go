package utils

import "time"

// -----------------------------------------------------------------------------

// Defaults of the cache freshness policy.
const (
	DefaultRetentionDays            = 7
	DefaultPriceTTLMinutes          = 60
	DefaultSweepIntervalMinutes     = 30
	DefaultHousekeepingDelaySeconds = 5

	DefaultBatchSize    = 3
	DefaultBatchDelayMs = 500
	DefaultMaxRetries   = 2
	DefaultRetryDelayMs = 1000

	DefaultFallbackExchangeRate  = 1.35
	ExchangeRateTTL              = time.Hour
	DefaultRequestTimeoutSeconds = 10

	DefaultHTTPPort = 8000
	DefaultGrpcPort = 50051

	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"
	WeekdayCalendarName = "weekdays"
)

// Persistence namespaces, one per cache owner.
const (
	NamespacePriceCache      = "price_cache"
	NamespaceHistoricalCache = "historical_cache"
	NamespaceFileTracking    = "file_tracking"
)

// -----------------------------------------------------------------------------

// WindowForMissingDays picks the smallest standard fetch window that covers n
// missing business days.
func WindowForMissingDays(n int) string {
	switch {
	case n <= 30:
		return "1mo"
	case n <= 90:
		return "3mo"
	case n <= 180:
		return "6mo"
	default:
		return "1y"
	}
}

// -----------------------------------------------------------------------------

// Milliseconds converts a config millisecond value to a duration.
func Milliseconds(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
