package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Service converts source-currency prices to the display currency. The rate is
// cached for TTL; a failed lookup returns the fallback rate without caching it.
type Service struct {
	Provider     interfaces.IMarketDataProvider
	Symbol       string
	Currency     string
	FallbackRate float64
	TTL          time.Duration
	Now          func() time.Time
	Logger       *logger.Logger

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
	inflight  *utils.Coalescer[float64]
}

// -----------------------------------------------------------------------------

func NewService(cfg *models.MConfig, provider interfaces.IMarketDataProvider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewLogger(cfg, "CurrencyService")
	}
	fallback := cfg.DataSource.FallbackExchangeRate
	if fallback <= 0 {
		fallback = utils.DefaultFallbackExchangeRate
	}
	return &Service{
		Provider:     provider,
		Symbol:       cfg.DataSource.ExchangeRateSymbol,
		Currency:     cfg.DataSource.DisplayCurrency,
		FallbackRate: fallback,
		TTL:          utils.ExchangeRateTTL,
		Now:          time.Now,
		Logger:       log,
		inflight:     utils.NewCoalescer[float64](),
	}
}

// -----------------------------------------------------------------------------

func (s *Service) DisplayCurrency() string {
	return s.Currency
}

// -----------------------------------------------------------------------------

// GetDisplayExchangeRate returns the cached rate while valid, otherwise fetches
// a new one. Concurrent misses share one lookup. It never fails.
func (s *Service) GetDisplayExchangeRate(ctx context.Context) float64 {
	now := s.Now()
	s.mu.Lock()
	if s.rate > 0 && now.Sub(s.fetchedAt) < s.TTL {
		rate := s.rate
		s.mu.Unlock()
		return rate
	}
	s.mu.Unlock()

	if s.Provider == nil || s.Symbol == "" {
		return s.FallbackRate
	}

	// The lookup is shared, so it must outlive the caller that started it.
	lookupCtx := context.WithoutCancel(ctx)
	rate, _, err := s.inflight.Do(ctx, s.Symbol, func() (float64, error) {
		quote, err := s.Provider.FetchQuote(lookupCtx, s.Symbol, models.AssetStock)
		if err != nil {
			return 0, err
		}
		if quote == nil || quote.Price <= 0 {
			return 0, fmt.Errorf("no positive quote for %s", s.Symbol)
		}
		return quote.Price, nil
	})
	if err != nil {
		s.Logger.Warning("Exchange rate %s unavailable, using fallback %.4f: %v", s.Symbol, s.FallbackRate, err)
		return s.FallbackRate
	}

	s.mu.Lock()
	s.rate = rate
	s.fetchedAt = now
	s.mu.Unlock()
	s.Logger.Debug("Exchange rate %s = %.4f", s.Symbol, rate)
	return rate
}

// -----------------------------------------------------------------------------

// CachedRate returns the last fetched rate, or the fallback when none was
// fetched yet. It never performs a lookup.
func (s *Service) CachedRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rate > 0 {
		return s.rate
	}
	return s.FallbackRate
}

// -----------------------------------------------------------------------------

// ToDisplay converts price with rate, rounded to four decimals.
func ToDisplay(price, rate float64) float64 {
	v, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(rate)).Round(4).Float64()
	return v
}

// -----------------------------------------------------------------------------

// MarketValue returns quantity * price rounded to two decimals.
func MarketValue(quantity, price float64) float64 {
	v, _ := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Round(2).Float64()
	return v
}

// -----------------------------------------------------------------------------

// Format renders amount with the symbol and separators of currency code.
// Unknown codes fall back to "<amount> <code>".
func Format(amount float64, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
