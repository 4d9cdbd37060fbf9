package models

import "time"

// MPriceEntry is the latest-price snapshot kept by the price cache.
type MPriceEntry struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`         // source currency
	DisplayPrice float64   `json:"display_price"` // display currency
	ExchangeRate float64   `json:"exchange_rate"` // rate used for DisplayPrice
	Currency     string    `json:"currency"`
	CompanyName  string    `json:"company_name"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// MQuote is a latest-price answer from an upstream provider.
type MQuote struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Name     string  `json:"name"`
}

type MPriceCacheStats struct {
	TotalEntries   int       `json:"total_entries"`
	ValidEntries   int       `json:"valid_entries"`
	ExpiredEntries int       `json:"expired_entries"`
	OldestFetch    time.Time `json:"oldest_fetch,omitempty"`
	NewestFetch    time.Time `json:"newest_fetch,omitempty"`
	TTLSeconds     int64     `json:"ttl_seconds"`
}

// MPriceSource tells where a resolved price came from.
type MPriceSource string

const (
	PriceSourceCache       MPriceSource = "cache"
	PriceSourceFallback    MPriceSource = "fallback"
	PriceSourceUnavailable MPriceSource = "unavailable"
)

// MHoldingValuation is a holding joined with whatever price is available for it.
type MHoldingValuation struct {
	Holding      MHolding     `json:"holding"`
	Source       MPriceSource `json:"source"`
	Price        float64      `json:"price,omitempty"`
	DisplayPrice float64      `json:"display_price,omitempty"`
	MarketValue  float64      `json:"market_value,omitempty"`
	DisplayValue string       `json:"display_value,omitempty"`
	FetchedAt    *time.Time   `json:"fetched_at,omitempty"`
}
