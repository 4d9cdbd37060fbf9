package models

// MAssetType distinguishes the two instrument families the dashboard tracks.
type MAssetType string

const (
	AssetStock  MAssetType = "stock"
	AssetCrypto MAssetType = "crypto"
)

type MHolding struct {
	Symbol        string     `json:"symbol"`
	Type          MAssetType `json:"type"`
	Quantity      float64    `json:"quantity"`
	TotalInvested float64    `json:"total_invested"`
	RealizedPnL   float64    `json:"realized_pnl"`
	CompanyName   string     `json:"company_name"`
}

// MSymbolRef is a symbol together with its asset type, as needed by providers.
type MSymbolRef struct {
	Symbol string     `json:"symbol"`
	Type   MAssetType `json:"type"`
}

// MHoldingsSnapshot is the computed portfolio state written by the trade processor.
type MHoldingsSnapshot struct {
	ID        string     `json:"id"`
	CreatedAt int64      `json:"created_at"`
	Holdings  []MHolding `json:"holdings"`
}
