package models

import "time"

// MDailyPoint is one daily OHLCV bar. Date is the UTC midnight of the trading date.
type MDailyPoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type MHistoricalMeta struct {
	Name        string  `json:"name"`
	LatestClose float64 `json:"latest_close"`
	Currency    string  `json:"currency"`
}

type MDateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MHistoricalEntry is an ordered daily series for one (symbol, period, resolution).
type MHistoricalEntry struct {
	Symbol      string          `json:"symbol"`
	Period      string          `json:"period"`
	Resolution  string          `json:"resolution"`
	Data        []MDailyPoint   `json:"data"`
	Meta        MHistoricalMeta `json:"meta"`
	Range       MDateRange      `json:"range"`
	LastUpdated time.Time       `json:"last_updated"`
}

// LastDate returns the date of the newest point, or the zero time for an empty series.
func (e *MHistoricalEntry) LastDate() time.Time {
	if len(e.Data) == 0 {
		return time.Time{}
	}
	return e.Data[len(e.Data)-1].Date
}

// MHistoricalResult is a cache read annotated with the business-day staleness flag.
type MHistoricalResult struct {
	MHistoricalEntry
	NeedsUpdate bool `json:"needs_update"`
}

type MHistoricalCacheStats struct {
	Entries      int      `json:"entries"`
	StaleEntries int      `json:"stale_entries"`
	TotalPoints  int      `json:"total_points"`
	Symbols      []string `json:"symbols"`
}
