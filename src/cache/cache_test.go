package cache

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"
)

// memStore is an in-memory IStore that counts saves.
type memStore struct {
	mu      sync.Mutex
	data    map[string]map[string]json.RawMessage
	saves   int
	loadErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]json.RawMessage)}
}

func (m *memStore) Load(ns string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]json.RawMessage)
	for k, v := range m.data[ns] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(ns string, records map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[ns] = records
	return nil
}

func (m *memStore) Close() error { return nil }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

// -----------------------------------------------------------------------------

func newPriceCache(store *memStore, clk *clock) *PriceCache {
	c := NewPriceCache(&models.MConfig{Cache: models.MCacheConfig{PriceTTLMinutes: 60}}, store, nil)
	c.Now = clk.Now
	return c
}

func TestPriceCacheExpiresAfterTTL(t *testing.T) {
	clk := &clock{now: time.Date(2026, time.October, 13, 10, 0, 0, 0, time.UTC)}
	c := newPriceCache(newMemStore(), clk)

	if err := c.Update("aapl", models.MPriceEntry{Price: 250}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	clk.now = clk.now.Add(59*time.Minute + 59*time.Second)
	if _, ok, _ := c.Get("AAPL"); !ok {
		t.Fatal("entry should be valid just under one hour")
	}

	clk.now = clk.now.Add(time.Second)
	if _, ok, _ := c.Get("AAPL"); ok {
		t.Fatal("entry should be absent at exactly one hour")
	}
	if stats := c.GetStats(); stats.TotalEntries != 0 {
		t.Errorf("expired entry not evicted on read: %+v", stats)
	}
}

func TestPriceCacheRejectsBadPrices(t *testing.T) {
	clk := &clock{now: time.Date(2026, time.October, 13, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	c := newPriceCache(store, clk)

	if err := c.Update("AAPL", models.MPriceEntry{Price: 250, CompanyName: "Apple"}); err != nil {
		t.Fatal(err)
	}
	savesBefore := store.saves

	for _, price := range []float64{0, -1} {
		err := c.Update("AAPL", models.MPriceEntry{Price: price})
		var ve *helpers.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("price %v: err = %v, want ValidationError", price, err)
		}
	}

	got, ok, _ := c.Get("AAPL")
	if !ok || got.Price != 250 || got.CompanyName != "Apple" {
		t.Errorf("entry changed by rejected update: %+v", got)
	}
	if store.saves != savesBefore {
		t.Errorf("rejected updates persisted (%d saves)", store.saves-savesBefore)
	}
}

func TestPriceCachePersistsEveryUpdate(t *testing.T) {
	clk := &clock{now: time.Date(2026, time.October, 13, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	c := newPriceCache(store, clk)

	c.Update("AAPL", models.MPriceEntry{Price: 1})
	c.Update("MSFT", models.MPriceEntry{Price: 2})
	if store.saves != 2 {
		t.Errorf("saves = %d, want 2", store.saves)
	}
	if len(store.data[utils.NamespacePriceCache]) != 2 {
		t.Errorf("persisted %d entries", len(store.data[utils.NamespacePriceCache]))
	}

	reloaded := newPriceCache(store, clk)
	reloaded.Load()
	if syms := reloaded.GetAllSymbols(); len(syms) != 2 || syms[0] != "AAPL" {
		t.Errorf("reloaded symbols = %v", syms)
	}
}

func TestPriceCacheReturnsCopies(t *testing.T) {
	clk := &clock{now: time.Date(2026, time.October, 13, 10, 0, 0, 0, time.UTC)}
	c := newPriceCache(newMemStore(), clk)
	c.Update("AAPL", models.MPriceEntry{Price: 10})

	got, _, _ := c.Get("AAPL")
	got.Price = 99
	again, _, _ := c.Get("AAPL")
	if again.Price != 10 {
		t.Errorf("caller mutation leaked into cache: %v", again.Price)
	}
}

func TestPriceCacheInvalidSymbol(t *testing.T) {
	c := newPriceCache(newMemStore(), &clock{now: time.Now()})
	if _, _, err := c.Get("bad symbol!"); !errors.Is(err, helpers.ErrInvalidSymbol) {
		t.Errorf("err = %v", err)
	}
}

func TestPriceCacheSweepPersistsOnce(t *testing.T) {
	clk := &clock{now: time.Date(2026, time.October, 13, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	c := newPriceCache(store, clk)
	c.Update("AAPL", models.MPriceEntry{Price: 1})
	c.Update("MSFT", models.MPriceEntry{Price: 1})

	clk.now = clk.now.Add(30 * time.Minute)
	c.Update("NVDA", models.MPriceEntry{Price: 1})

	clk.now = clk.now.Add(40 * time.Minute)
	saves := store.saves
	removed, err := c.Sweep()
	if err != nil || removed != 2 {
		t.Fatalf("Sweep = %d, %v", removed, err)
	}
	if store.saves != saves+1 {
		t.Errorf("sweep saved %d times", store.saves-saves)
	}
	if syms := c.GetAllSymbols(); len(syms) != 1 || syms[0] != "NVDA" {
		t.Errorf("remaining = %v", syms)
	}
}

func TestPriceCacheLoadSelfHeals(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, time.October, 13, 10, 0, 0, 0, time.UTC)
	good, _ := json.Marshal(models.MPriceEntry{Price: 5, FetchedAt: now.Add(-time.Minute)})
	old, _ := json.Marshal(models.MPriceEntry{Price: 5, FetchedAt: now.Add(-2 * time.Hour)})
	store.data[utils.NamespacePriceCache] = map[string]json.RawMessage{
		"AAPL": good,
		"MSFT": old,
		"NVDA": json.RawMessage(`"garbage"`),
	}

	c := newPriceCache(store, &clock{now: now})
	c.Load()
	if syms := c.GetAllSymbols(); len(syms) != 1 || syms[0] != "AAPL" {
		t.Errorf("symbols = %v", syms)
	}

	store.loadErr = errors.New("disk unreadable")
	broken := newPriceCache(store, &clock{now: now})
	broken.Load()
	if broken.GetStats().TotalEntries != 0 {
		t.Error("unreadable store should start empty")
	}
}

// -----------------------------------------------------------------------------

func day(d int) time.Time {
	return time.Date(2026, time.October, d, 0, 0, 0, 0, time.UTC)
}

func series(from, to int) []models.MDailyPoint {
	var points []models.MDailyPoint
	for d := from; d <= to; d++ {
		points = append(points, models.MDailyPoint{Date: day(d), Open: 1, High: 1, Low: 1, Close: float64(100 + d), Volume: 10})
	}
	return points
}

func newHistoricalCache(store *memStore, clk *clock) *HistoricalCache {
	c := NewHistoricalCache(store, utils.NewWeekdayCalendar(time.UTC), nil)
	c.Now = clk.Now
	return c
}

func TestHistoricalSetAndStaleness(t *testing.T) {
	clk := &clock{now: time.Date(2026, time.October, 12, 10, 0, 0, 0, time.UTC)} // Monday
	c := newHistoricalCache(newMemStore(), clk)

	if err := c.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: series(1, 9)}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	res, ok, err := c.Get("AAPL", "max", "1d")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if res.NeedsUpdate {
		t.Error("fresh entry flagged stale")
	}

	clk.now = time.Date(2026, time.October, 13, 9, 0, 0, 0, time.UTC) // Tuesday
	res, _, _ = c.Get("AAPL", "max", "1d")
	if !res.NeedsUpdate {
		t.Error("Monday update should be stale on Tuesday")
	}
	if len(res.Data) != 9 {
		t.Errorf("stale entry should still be served, got %d points", len(res.Data))
	}
}

func TestHistoricalSetRejectsMalformed(t *testing.T) {
	clk := &clock{now: day(13)}
	c := newHistoricalCache(newMemStore(), clk)
	c.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: series(1, 3)})

	bad := series(4, 5)
	bad[1].Close = 0
	if err := c.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: bad}); err == nil {
		t.Error("zero close accepted")
	}
	if err := c.Set("AAPL", "max", "1d", models.MHistoricalEntry{}); !errors.Is(err, helpers.ErrInvalidPayload) {
		t.Errorf("empty series err = %v", err)
	}

	res, _, _ := c.Get("AAPL", "max", "1d")
	if len(res.Data) != 3 {
		t.Errorf("existing entry modified: %d points", len(res.Data))
	}
}

func TestHistoricalSetSortsAndDedupes(t *testing.T) {
	c := newHistoricalCache(newMemStore(), &clock{now: day(13)})
	points := []models.MDailyPoint{
		{Date: day(3), Close: 3},
		{Date: day(1), Close: 1},
		{Date: day(3), Close: 33},
		{Date: day(2), Close: 2},
	}
	c.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: points})
	res, _, _ := c.Get("AAPL", "max", "1d")
	if len(res.Data) != 3 {
		t.Fatalf("points = %d", len(res.Data))
	}
	for i := 1; i < len(res.Data); i++ {
		if !res.Data[i].Date.After(res.Data[i-1].Date) {
			t.Fatalf("not strictly ascending at %d", i)
		}
	}
	if res.Data[2].Close != 33 || res.Meta.LatestClose != 33 {
		t.Errorf("last point = %+v, meta = %+v", res.Data[2], res.Meta)
	}
}

func TestHistoricalMergeAppendsOnlyNewer(t *testing.T) {
	clk := &clock{now: day(5)}
	c := newHistoricalCache(newMemStore(), clk)
	c.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: series(1, 5)})

	clk.now = day(12)
	incoming := series(3, 9) // overlaps 3..5
	incoming[0].Close = -1   // would be invalid, but it is old anyway
	n, err := c.MergeIncremental("AAPL", "max", "1d", models.MHistoricalEntry{Data: incoming, Meta: models.MHistoricalMeta{Name: "Apple"}})
	if err != nil {
		t.Fatalf("MergeIncremental: %v", err)
	}
	if n != 4 {
		t.Errorf("appended = %d, want 4", n)
	}

	res, _, _ := c.Get("AAPL", "max", "1d")
	if len(res.Data) != 9 {
		t.Fatalf("points = %d, want 9", len(res.Data))
	}
	if res.Data[2].Close != 103 {
		t.Errorf("old point overwritten: %+v", res.Data[2])
	}
	if res.Meta.Name != "Apple" || !res.Range.End.Equal(day(9)) || !res.LastUpdated.Equal(day(12)) {
		t.Errorf("meta/range not updated: %+v %+v %v", res.Meta, res.Range, res.LastUpdated)
	}
}

func TestHistoricalTouchDeleteClear(t *testing.T) {
	clk := &clock{now: day(1)}
	store := newMemStore()
	c := newHistoricalCache(store, clk)
	c.Set("AAPL", "max", "1d", models.MHistoricalEntry{Data: series(1, 1)})
	c.Set("AAPL", "1y", "1d", models.MHistoricalEntry{Data: series(1, 1)})
	c.Set("MSFT", "max", "1d", models.MHistoricalEntry{Data: series(1, 1)})

	clk.now = day(10)
	if ok, _ := c.Touch("MSFT", "max", "1d"); !ok {
		t.Fatal("Touch missed existing key")
	}

	removed, err := c.ClearOldEntries(7)
	if err != nil || removed != 2 {
		t.Fatalf("ClearOldEntries = %d, %v", removed, err)
	}
	if _, ok, _ := c.Get("MSFT", "max", "1d"); !ok {
		t.Error("touched entry was cleared")
	}

	if n, _ := c.Delete("msft"); n != 1 {
		t.Errorf("Delete removed %d", n)
	}
	if stats := c.GetStats(); stats.Entries != 0 {
		t.Errorf("stats after delete = %+v", stats)
	}
	if len(store.data[utils.NamespaceHistoricalCache]) != 0 {
		t.Error("persisted state not rewritten")
	}
}

func TestHistoricalLoadSkipsCorrupt(t *testing.T) {
	store := newMemStore()
	good, _ := json.Marshal(models.MHistoricalEntry{Symbol: "AAPL", Period: "max", Resolution: "1d", Data: series(1, 2), LastUpdated: day(2)})
	store.data[utils.NamespaceHistoricalCache] = map[string]json.RawMessage{
		Key("AAPL", "max", "1d"): good,
		Key("MSFT", "max", "1d"): json.RawMessage(`{"data":"nope"}`),
		Key("NVDA", "max", "1d"): json.RawMessage(`{"data":[]}`),
	}
	c := newHistoricalCache(store, &clock{now: day(2)})
	c.Load()
	if stats := c.GetStats(); stats.Entries != 1 || stats.TotalPoints != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
