package interfaces

import (
	"context"

	"portfolio-dashboard/src/models"
)

// -----------------------------------------------------------------------------
// IMarketDataProvider fetches prices and daily series from an upstream market-data API.
// -----------------------------------------------------------------------------

type IMarketDataProvider interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// FetchHistory retrieves a daily OHLCV series covering rangeStr (e.g. "1mo", "max").
	FetchHistory(ctx context.Context, symbol string, assetType models.MAssetType, rangeStr, interval string) (*models.MHistoricalEntry, error)

	// -----------------------------------------------------------------------------

	// FetchQuote retrieves the latest price and display metadata for a symbol.
	FetchQuote(ctx context.Context, symbol string, assetType models.MAssetType) (*models.MQuote, error)
}
