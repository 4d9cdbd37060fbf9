package coordinator

import (
	"context"

	"portfolio-dashboard/src/cache"
	"portfolio-dashboard/src/currency"
	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/models"
)

// CryptoFallbackPrices are approximate USD prices shown for crypto holdings
// when nothing is cached. Stocks have no equivalent table.
var CryptoFallbackPrices = map[string]float64{
	"BTC":  60000,
	"ETH":  3000,
	"SOL":  150,
	"ADA":  0.45,
	"XRP":  0.55,
	"DOGE": 0.12,
	"DOT":  7,
	"LTC":  80,
}

// RateSource provides a display exchange rate without an upstream lookup.
type RateSource interface {
	CachedRate() float64
	DisplayCurrency() string
}

// Pricer resolves holding prices for the read path. It only consults the
// price cache and the crypto fallback table.
type Pricer struct {
	Prices    *cache.PriceCache
	Rates     RateSource
	Portfolio interfaces.IPortfolioStore
	Fallback  map[string]float64
}

// -----------------------------------------------------------------------------

func NewPricer(prices *cache.PriceCache, rates RateSource, portfolio interfaces.IPortfolioStore) *Pricer {
	return &Pricer{
		Prices:    prices,
		Rates:     rates,
		Portfolio: portfolio,
		Fallback:  CryptoFallbackPrices,
	}
}

// -----------------------------------------------------------------------------

// Resolve joins holding with the best available price.
func (p *Pricer) Resolve(holding models.MHolding) models.MHoldingValuation {
	val := models.MHoldingValuation{Holding: holding, Source: models.PriceSourceUnavailable}

	sym, err := helpers.NormalizeSymbol(holding.Symbol)
	if err != nil {
		return val
	}

	if entry, ok, _ := p.Prices.Get(sym); ok {
		fetched := entry.FetchedAt
		val.Source = models.PriceSourceCache
		val.Price = entry.Price
		val.DisplayPrice = entry.DisplayPrice
		val.FetchedAt = &fetched
		val.MarketValue = currency.MarketValue(holding.Quantity, entry.DisplayPrice)
		p.format(&val)
		return val
	}

	if holding.Type != models.AssetCrypto {
		return val
	}
	price, ok := p.Fallback[sym]
	if !ok {
		return val
	}

	rate := 1.0
	if p.Rates != nil {
		rate = p.Rates.CachedRate()
	}
	val.Source = models.PriceSourceFallback
	val.Price = price
	val.DisplayPrice = currency.ToDisplay(price, rate)
	val.MarketValue = currency.MarketValue(holding.Quantity, val.DisplayPrice)
	p.format(&val)
	return val
}

func (p *Pricer) format(val *models.MHoldingValuation) {
	if p.Rates == nil || p.Rates.DisplayCurrency() == "" {
		return
	}
	val.DisplayValue = currency.Format(val.MarketValue, p.Rates.DisplayCurrency())
}

// -----------------------------------------------------------------------------

// Valuate resolves every holding of the most recent snapshot.
func (p *Pricer) Valuate(ctx context.Context) ([]models.MHoldingValuation, error) {
	holdings, err := p.Portfolio.GetMostRecentHoldings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.MHoldingValuation, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, p.Resolve(h))
	}
	return out, nil
}
