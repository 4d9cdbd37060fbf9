package interfaces

import (
	"context"

	"portfolio-dashboard/src/models"
)

// -----------------------------------------------------------------------------
// Collaborators owned outside the cache subsystem.
// -----------------------------------------------------------------------------

// IPortfolioStore exposes the computed holdings of the latest portfolio snapshot.
type IPortfolioStore interface {
	GetMostRecentHoldings(ctx context.Context) ([]models.MHolding, error)
}

// -----------------------------------------------------------------------------

// ISymbolDiscovery unions the symbols referenced by holdings and by raw ledger rows.
type ISymbolDiscovery interface {
	DiscoverSymbols(ctx context.Context) ([]models.MSymbolRef, error)
}

// -----------------------------------------------------------------------------

// ITradeProcessor turns ledger files into a new portfolio snapshot and returns its id.
type ITradeProcessor interface {
	ProcessLedgers(ctx context.Context, files []models.MSourceFile) (string, error)
}

// -----------------------------------------------------------------------------

// ICurrencyService provides the source-to-display currency rate.
type ICurrencyService interface {
	GetDisplayExchangeRate(ctx context.Context) float64
	DisplayCurrency() string
}
