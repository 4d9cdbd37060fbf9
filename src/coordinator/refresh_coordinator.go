package coordinator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"portfolio-dashboard/src/cache"
	"portfolio-dashboard/src/currency"
	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/orchestrator"

	"golang.org/x/sync/errgroup"
)

const defaultPriceConcurrency = 3

// RefreshCoordinator drives a price refresh for the held symbols followed by a
// historical refresh cycle. Failures are logged and never escape.
type RefreshCoordinator struct {
	Portfolio    interfaces.IPortfolioStore
	Prices       *cache.PriceCache
	Orchestrator *orchestrator.BatchFetchOrchestrator
	Provider     interfaces.IMarketDataProvider
	Currency     interfaces.ICurrencyService
	Events       interfaces.IEventBroadcaster
	Logger       *logger.Logger

	PriceConcurrency int
	Now              func() time.Time

	errors  *helpers.ErrorHandler
	running atomic.Bool
}

// -----------------------------------------------------------------------------

func NewRefreshCoordinator(
	cfg *models.MConfig,
	portfolio interfaces.IPortfolioStore,
	prices *cache.PriceCache,
	orch *orchestrator.BatchFetchOrchestrator,
	provider interfaces.IMarketDataProvider,
	fx interfaces.ICurrencyService,
	log *logger.Logger,
) *RefreshCoordinator {
	if log == nil {
		log = logger.NewLogger(cfg, "RefreshCoordinator")
	}
	concurrency := defaultPriceConcurrency
	if cfg != nil && cfg.Refresh.BatchSize > 0 {
		concurrency = cfg.Refresh.BatchSize
	}
	return &RefreshCoordinator{
		Portfolio:        portfolio,
		Prices:           prices,
		Orchestrator:     orch,
		Provider:         provider,
		Currency:         fx,
		Logger:           log,
		PriceConcurrency: concurrency,
		Now:              time.Now,
		errors:           helpers.NewErrorHandler(log),
	}
}

// -----------------------------------------------------------------------------

func (c *RefreshCoordinator) IsRunning() bool {
	return c.running.Load()
}

// -----------------------------------------------------------------------------

// RefreshPortfolioCache refreshes missing or expired prices of the current
// holdings, then runs a historical refresh cycle. A call made while another
// pass runs returns at once with InProgress set.
func (c *RefreshCoordinator) RefreshPortfolioCache(ctx context.Context) models.MCoordinatorSummary {
	if !c.running.CompareAndSwap(false, true) {
		c.Logger.Info("Portfolio refresh already in progress")
		return models.MCoordinatorSummary{InProgress: true}
	}
	return c.runClaimed(ctx)
}

// -----------------------------------------------------------------------------

// StartRefresh claims the refresh guard synchronously and runs the pass in
// the background. It reports false without starting anything when a pass
// already runs.
func (c *RefreshCoordinator) StartRefresh(ctx context.Context) bool {
	if !c.running.CompareAndSwap(false, true) {
		c.Logger.Info("Portfolio refresh already in progress")
		return false
	}
	go c.runClaimed(ctx)
	return true
}

// -----------------------------------------------------------------------------

// runClaimed runs one pass. The caller must hold the guard.
func (c *RefreshCoordinator) runClaimed(ctx context.Context) (summary models.MCoordinatorSummary) {
	defer c.running.Store(false)

	c.broadcast(models.EventRefreshStarted, nil, nil)

	if c.errors.Guard("portfolio refresh", func() { summary = c.refresh(ctx) }) {
		summary.Error = "refresh aborted unexpectedly"
	}

	c.broadcast(models.EventRefreshCompleted, nil, summary)
	return summary
}

// -----------------------------------------------------------------------------

func (c *RefreshCoordinator) refresh(ctx context.Context) models.MCoordinatorSummary {
	var summary models.MCoordinatorSummary

	holdings, err := c.Portfolio.GetMostRecentHoldings(ctx)
	if err != nil {
		c.errors.Handle(err, "loading holdings")
		summary.Error = err.Error()
		return summary
	}
	summary.Holdings = len(holdings)

	updated, failed, skipped := c.refreshPrices(ctx, SymbolRefs(holdings))
	summary.PricesUpdated = len(updated)
	summary.PricesFailed = failed
	summary.PricesSkipped = skipped
	if len(updated) > 0 {
		c.broadcast(models.EventPricesUpdated, updated, nil)
	}

	if c.Orchestrator != nil {
		summary.History = c.Orchestrator.RefreshAll(ctx, models.MRefreshOptions{})
	}

	c.Logger.Info("Portfolio refresh: %d holdings, %d prices updated, %d failed, %d fresh",
		summary.Holdings, summary.PricesUpdated, summary.PricesFailed, summary.PricesSkipped)
	return summary
}

// -----------------------------------------------------------------------------

// refreshPrices fetches a quote for every ref without a valid cache entry.
// Fetches run with bounded concurrency and fail independently.
func (c *RefreshCoordinator) refreshPrices(ctx context.Context, refs []models.MSymbolRef) (updated []string, failed, skipped int) {
	var pending []models.MSymbolRef
	for _, ref := range refs {
		if _, ok, _ := c.Prices.Get(ref.Symbol); ok {
			skipped++
			continue
		}
		pending = append(pending, ref)
	}
	if len(pending) == 0 || c.Provider == nil {
		return nil, len(pending), skipped
	}

	rate := 1.0
	displayCurrency := ""
	if c.Currency != nil {
		rate = c.Currency.GetDisplayExchangeRate(ctx)
		displayCurrency = c.Currency.DisplayCurrency()
	}

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(c.PriceConcurrency)

	for _, ref := range pending {
		group.Go(func() error {
			ok := false
			c.errors.Guard("price refresh "+ref.Symbol, func() {
				ok = c.refreshPrice(ctx, ref, rate, displayCurrency)
			})

			mu.Lock()
			defer mu.Unlock()
			if ok {
				updated = append(updated, ref.Symbol)
			} else {
				failed++
			}
			return nil
		})
	}
	group.Wait()

	sort.Strings(updated)
	return updated, failed, skipped
}

// -----------------------------------------------------------------------------

func (c *RefreshCoordinator) refreshPrice(ctx context.Context, ref models.MSymbolRef, rate float64, displayCurrency string) bool {
	quote, err := c.Provider.FetchQuote(ctx, ref.Symbol, ref.Type)
	if err != nil {
		c.Logger.Warning("Price fetch failed for %s: %v", ref.Symbol, err)
		return false
	}
	if quote == nil {
		return false
	}

	// Quotes already in the display currency are not converted.
	if displayCurrency != "" && quote.Currency == displayCurrency {
		rate = 1
	}
	entry := models.MPriceEntry{
		Price:        quote.Price,
		DisplayPrice: currency.ToDisplay(quote.Price, rate),
		ExchangeRate: rate,
		Currency:     quote.Currency,
		CompanyName:  quote.Name,
	}
	if err := c.Prices.Update(ref.Symbol, entry); err != nil {
		// A persistence failure still leaves the fresh entry in memory.
		return helpers.IsStorageError(err)
	}
	return true
}

// -----------------------------------------------------------------------------

// InitializeHistoricalCache seeds the historical cache for every held symbol.
// Symbols whose series is already fresh are skipped by the orchestrator.
func (c *RefreshCoordinator) InitializeHistoricalCache(ctx context.Context, holdings []models.MHolding) (result models.MRefreshResult) {
	if c.Orchestrator == nil {
		return result
	}
	refs := SymbolRefs(holdings)
	if len(refs) == 0 {
		c.Logger.Info("No holdings to seed the historical cache with")
		return result
	}

	if c.errors.Guard("historical bootstrap", func() {
		result = c.Orchestrator.QuickUpdateSymbols(ctx, refs)
	}) {
		result.Error = "historical bootstrap aborted unexpectedly"
	}
	return result
}

// -----------------------------------------------------------------------------

// Bootstrap seeds the historical cache from the most recent snapshot.
func (c *RefreshCoordinator) Bootstrap(ctx context.Context) models.MRefreshResult {
	holdings, err := c.Portfolio.GetMostRecentHoldings(ctx)
	if err != nil {
		c.errors.Handle(err, "loading holdings for bootstrap")
		return models.MRefreshResult{Error: err.Error()}
	}
	return c.InitializeHistoricalCache(ctx, holdings)
}

// -----------------------------------------------------------------------------

func (c *RefreshCoordinator) broadcast(eventType string, symbols []string, payload interface{}) {
	if c.Events == nil {
		return
	}
	c.Events.Broadcast(models.MCacheEvent{
		Type:      eventType,
		Timestamp: c.Now().Unix(),
		Symbols:   symbols,
		Payload:   payload,
	})
}

// -----------------------------------------------------------------------------

// SymbolRefs returns the distinct valid symbols of holdings, sorted.
func SymbolRefs(holdings []models.MHolding) []models.MSymbolRef {
	seen := make(map[string]bool, len(holdings))
	refs := make([]models.MSymbolRef, 0, len(holdings))
	for _, h := range holdings {
		sym, err := helpers.NormalizeSymbol(h.Symbol)
		if err != nil || seen[sym] {
			continue
		}
		seen[sym] = true
		typ := h.Type
		if typ != models.AssetCrypto {
			typ = models.AssetStock
		}
		refs = append(refs, models.MSymbolRef{Symbol: sym, Type: typ})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Symbol < refs[j].Symbol })
	return refs
}
