package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"portfolio-dashboard/src/cache"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"
)

type fakeProvider struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       map[string]int
	ranges      map[string]string
	delay       time.Duration
	block       chan struct{}
	started     chan struct{}
	respond     func(symbol string, attempt int) (*models.MHistoricalEntry, error)
}

func newFakeProvider(respond func(symbol string, attempt int) (*models.MHistoricalEntry, error)) *fakeProvider {
	return &fakeProvider{calls: map[string]int{}, ranges: map[string]string{}, respond: respond}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) FetchHistory(ctx context.Context, symbol string, assetType models.MAssetType, rangeStr, interval string) (*models.MHistoricalEntry, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.calls[symbol]++
	attempt := f.calls[symbol]
	f.ranges[symbol] = rangeStr
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return f.respond(symbol, attempt)
}

func (f *fakeProvider) FetchQuote(ctx context.Context, symbol string, assetType models.MAssetType) (*models.MQuote, error) {
	return nil, errors.New("not used")
}

type staticDiscovery struct {
	refs []models.MSymbolRef
	err  error
}

func (d staticDiscovery) DiscoverSymbols(ctx context.Context) ([]models.MSymbolRef, error) {
	return d.refs, d.err
}

// -----------------------------------------------------------------------------

// Tuesday 2026-10-13 10:00 UTC.
var tuesday = time.Date(2026, time.October, 13, 10, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dailySeries returns one point per calendar day from start to end inclusive.
func dailySeries(start, end time.Time) []models.MDailyPoint {
	var points []models.MDailyPoint
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		points = append(points, models.MDailyPoint{Date: d, Open: 1, High: 2, Low: 1, Close: 100, Volume: 5})
	}
	return points
}

// businessSeries returns one point per weekday from start to end inclusive.
func businessSeries(start, end time.Time) []models.MDailyPoint {
	var points []models.MDailyPoint
	for _, p := range dailySeries(start, end) {
		if wd := p.Date.Weekday(); wd != time.Saturday && wd != time.Sunday {
			points = append(points, p)
		}
	}
	return points
}

type fixture struct {
	orch     *BatchFetchOrchestrator
	cache    *cache.HistoricalCache
	provider *fakeProvider
	now      *time.Time
	sleeps   int
}

func newFixture(provider *fakeProvider, refs ...models.MSymbolRef) *fixture {
	now := tuesday
	fx := &fixture{provider: provider, now: &now}
	clock := func() time.Time { return *fx.now }

	cal := utils.NewWeekdayCalendar(time.UTC)
	fx.cache = cache.NewHistoricalCache(nil, cal, nil)
	fx.cache.Now = clock

	cfg := &models.MConfig{Refresh: models.MRefreshConfig{
		BatchSize:         3,
		BatchDelayMs:      500,
		MaxRetries:        2,
		RetryDelayMs:      0,
		FullBackfillRange: "max",
		HistoryPeriod:     "max",
		HistoryResolution: "1d",
	}}
	fx.orch = NewBatchFetchOrchestrator(cfg, provider, staticDiscovery{refs: refs}, fx.cache, cal, nil)
	fx.orch.Now = clock
	fx.orch.Sleep = func(ctx context.Context, d time.Duration) error {
		fx.sleeps++
		return nil
	}
	return fx
}

func stock(symbols ...string) []models.MSymbolRef {
	var refs []models.MSymbolRef
	for _, s := range symbols {
		refs = append(refs, models.MSymbolRef{Symbol: s, Type: models.AssetStock})
	}
	return refs
}

// -----------------------------------------------------------------------------

func TestRefreshAllFullBackfill(t *testing.T) {
	points := dailySeries(date(2026, time.October, 13).AddDate(0, 0, -399), date(2026, time.October, 13))
	if len(points) != 400 {
		t.Fatalf("fixture has %d points", len(points))
	}
	provider := newFakeProvider(func(symbol string, attempt int) (*models.MHistoricalEntry, error) {
		return &models.MHistoricalEntry{Symbol: symbol, Data: points}, nil
	})
	fx := newFixture(provider, stock("AAPL")...)

	result := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{})
	if len(result.Successful) != 1 || result.Successful[0] != "AAPL" {
		t.Fatalf("result = %+v", result)
	}
	if provider.ranges["AAPL"] != "max" {
		t.Errorf("range = %q, want max", provider.ranges["AAPL"])
	}

	res, ok, _ := fx.cache.Get("AAPL", "max", "1d")
	if !ok || len(res.Data) != 400 {
		t.Fatalf("cached points = %v", res)
	}
	if res.NeedsUpdate {
		t.Error("needsUpdate should be false right after a full replace")
	}
	if result.CycleID == "" {
		t.Error("missing cycle id")
	}
}

func TestRefreshAllIncrementalMerge(t *testing.T) {
	provider := newFakeProvider(func(symbol string, attempt int) (*models.MHistoricalEntry, error) {
		return &models.MHistoricalEntry{Data: businessSeries(date(2026, time.September, 14), date(2026, time.October, 13))}, nil
	})
	fx := newFixture(provider, stock("AAPL")...)

	// Cached series ends Tuesday 2026-10-06, five business days ago.
	*fx.now = time.Date(2026, time.October, 6, 18, 0, 0, 0, time.UTC)
	old := businessSeries(date(2026, time.August, 3), date(2026, time.October, 6))
	if err := fx.cache.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: old}); err != nil {
		t.Fatal(err)
	}
	*fx.now = tuesday

	tasks, _, _ := fx.orch.PlanTasks(stock("AAPL"), models.MRefreshOptions{})
	if len(tasks) != 1 || len(tasks[0].MissingDays) != 5 || tasks[0].Range != "1mo" {
		t.Fatalf("tasks = %+v", tasks)
	}

	result := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{})
	if len(result.Successful) != 1 {
		t.Fatalf("result = %+v", result)
	}

	res, _, _ := fx.cache.Get("AAPL", "max", "1d")
	if len(res.Data) != len(old)+5 {
		t.Fatalf("points = %d, want %d", len(res.Data), len(old)+5)
	}
	for i := range old {
		if res.Data[i] != old[i] {
			t.Fatalf("old point %d changed: %+v", i, res.Data[i])
		}
	}
	if !res.LastDate().Equal(date(2026, time.October, 13)) || res.NeedsUpdate {
		t.Errorf("last = %v, needsUpdate = %v", res.LastDate(), res.NeedsUpdate)
	}
}

func TestRefreshAllFailureAfterRetries(t *testing.T) {
	provider := newFakeProvider(func(symbol string, attempt int) (*models.MHistoricalEntry, error) {
		return nil, fmt.Errorf("upstream timeout on attempt %d", attempt)
	})
	fx := newFixture(provider, models.MSymbolRef{Symbol: "BTC", Type: models.AssetCrypto})

	result := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{})
	if len(result.Failed) != 1 || result.Failed[0] != "BTC" {
		t.Fatalf("result = %+v", result)
	}
	if provider.calls["BTC"] != 3 {
		t.Errorf("attempts = %d, want 3", provider.calls["BTC"])
	}
	if result.Errors["BTC"] != "upstream timeout on attempt 3" {
		t.Errorf("error = %q", result.Errors["BTC"])
	}
	if _, ok, _ := fx.cache.Get("BTC", "max", "1d"); ok {
		t.Error("failed fetch created a cache entry")
	}
}

func TestRefreshAllRespectsBatchConcurrency(t *testing.T) {
	provider := newFakeProvider(func(symbol string, attempt int) (*models.MHistoricalEntry, error) {
		return &models.MHistoricalEntry{Data: dailySeries(date(2026, time.October, 1), date(2026, time.October, 13))}, nil
	})
	provider.delay = 10 * time.Millisecond

	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	fx := newFixture(provider, stock(symbols...)...)

	result := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{})
	if len(result.Successful) != len(symbols) {
		t.Fatalf("result = %+v", result)
	}
	if provider.maxInFlight > 3 {
		t.Errorf("max in flight = %d, want <= 3", provider.maxInFlight)
	}
	if fx.sleeps != 3 {
		t.Errorf("inter-batch sleeps = %d, want 3", fx.sleeps)
	}
}

func TestRefreshAllFailureIsolated(t *testing.T) {
	provider := newFakeProvider(func(symbol string, attempt int) (*models.MHistoricalEntry, error) {
		if symbol == "BAD" {
			return nil, errors.New("not found")
		}
		return &models.MHistoricalEntry{Data: dailySeries(date(2026, time.October, 1), date(2026, time.October, 13))}, nil
	})
	fx := newFixture(provider, stock("AAPL", "BAD", "MSFT")...)

	result := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{})
	if len(result.Successful) != 2 || len(result.Failed) != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestRefreshAllRejectsReentry(t *testing.T) {
	provider := newFakeProvider(func(symbol string, attempt int) (*models.MHistoricalEntry, error) {
		return &models.MHistoricalEntry{Data: dailySeries(date(2026, time.October, 1), date(2026, time.October, 13))}, nil
	})
	provider.block = make(chan struct{})
	provider.started = make(chan struct{}, 1)
	fx := newFixture(provider, stock("AAPL")...)

	done := make(chan models.MRefreshResult)
	go func() { done <- fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{}) }()
	<-provider.started

	if second := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{}); !second.InProgress {
		t.Errorf("second call = %+v, want InProgress", second)
	}
	if quick := fx.orch.QuickUpdateSymbols(context.Background(), stock("MSFT")); !quick.InProgress {
		t.Errorf("quick update = %+v, want InProgress", quick)
	}

	close(provider.block)
	if first := <-done; first.InProgress || len(first.Successful) != 1 {
		t.Errorf("first call = %+v", first)
	}
	if fx.orch.IsRunning() {
		t.Error("guard not released")
	}
}

func TestPlanTasksSkipsFreshAndTouchesWeekend(t *testing.T) {
	provider := newFakeProvider(func(symbol string, attempt int) (*models.MHistoricalEntry, error) {
		return nil, errors.New("should not be called")
	})
	fx := newFixture(provider, stock("AAPL", "MSFT")...)

	// Both series are written Friday morning and end Friday.
	*fx.now = time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)
	fx.cache.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: dailySeries(date(2026, time.October, 1), date(2026, time.October, 16))})

	result := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{})
	if len(result.Skipped) != 1 || result.Skipped[0] != "AAPL" {
		t.Fatalf("fresh entry: %+v", result)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "MSFT" {
		t.Fatalf("absent entry should be fetched: %+v", result)
	}

	// Saturday: AAPL is stale against the end-of-Friday cutoff but no business day is missing.
	*fx.now = time.Date(2026, time.October, 17, 10, 0, 0, 0, time.UTC)
	res, _, _ := fx.cache.Get("AAPL", "max", "1d")
	if !res.NeedsUpdate {
		t.Fatal("expected stale on Saturday")
	}
	result = fx.orch.QuickUpdateSymbols(context.Background(), stock("AAPL"))
	if len(result.Skipped) != 1 || provider.calls["AAPL"] != 0 {
		t.Fatalf("weekend refresh = %+v, calls = %d", result, provider.calls["AAPL"])
	}
	res, _, _ = fx.cache.Get("AAPL", "max", "1d")
	if res.NeedsUpdate {
		t.Error("series should be touched fresh")
	}
}

func TestRefreshAllDiscoveryError(t *testing.T) {
	fx := newFixture(newFakeProvider(nil))
	fx.orch.Discovery = staticDiscovery{err: errors.New("holdings unreadable")}
	result := fx.orch.RefreshAll(context.Background(), models.MRefreshOptions{})
	if result.Error != "holdings unreadable" || result.InProgress {
		t.Errorf("result = %+v", result)
	}
}
