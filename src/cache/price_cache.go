package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"
)

// PriceCache maps symbols to their latest price. An entry is served only while
// younger than TTL; once expired it is treated as absent.
type PriceCache struct {
	Store  interfaces.IStore
	TTL    time.Duration
	Now    func() time.Time
	Logger *logger.Logger

	mu      sync.RWMutex
	entries map[string]models.MPriceEntry

	// persistMu orders full-cache saves so the last save carries the newest state.
	persistMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewPriceCache(cfg *models.MConfig, store interfaces.IStore, log *logger.Logger) *PriceCache {
	ttl := time.Duration(utils.DefaultPriceTTLMinutes) * time.Minute
	if cfg != nil && cfg.Cache.PriceTTLMinutes > 0 {
		ttl = time.Duration(cfg.Cache.PriceTTLMinutes) * time.Minute
	}
	if log == nil {
		log = logger.NewLogger(cfg, "PriceCache")
	}
	c := &PriceCache{
		Store:   store,
		TTL:     ttl,
		Now:     time.Now,
		Logger:  log,
		entries: make(map[string]models.MPriceEntry),
	}
	return c
}

// -----------------------------------------------------------------------------

// Load replaces the in-memory state with the persisted one. Unreadable storage
// and corrupt or expired records are dropped so the cache starts clean.
func (c *PriceCache) Load() {
	if c.Store == nil {
		return
	}
	records, err := c.Store.Load(utils.NamespacePriceCache)
	if err != nil {
		c.Logger.Warning("Price cache unreadable, starting empty: %v", err)
		return
	}

	now := c.Now()
	loaded := make(map[string]models.MPriceEntry, len(records))
	dropped := 0
	for key, raw := range records {
		var entry models.MPriceEntry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.Price <= 0 {
			dropped++
			continue
		}
		if c.expired(entry, now) {
			dropped++
			continue
		}
		entry.Symbol = key
		loaded[key] = entry
	}

	c.mu.Lock()
	c.entries = loaded
	c.mu.Unlock()

	c.Logger.Info("Loaded %d cached prices (%d dropped)", len(loaded), dropped)
}

// -----------------------------------------------------------------------------

func (c *PriceCache) expired(entry models.MPriceEntry, now time.Time) bool {
	return now.Sub(entry.FetchedAt) >= c.TTL
}

// -----------------------------------------------------------------------------

// Get returns a copy of the entry for symbol. An expired entry is evicted and
// reported as absent. Only an invalid symbol yields an error.
func (c *PriceCache) Get(symbol string) (models.MPriceEntry, bool, error) {
	key, err := helpers.NormalizeSymbol(symbol)
	if err != nil {
		return models.MPriceEntry{}, false, err
	}

	now := c.Now()
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return models.MPriceEntry{}, false, nil
	}
	if !c.expired(entry, now) {
		return entry, true, nil
	}

	c.mu.Lock()
	// Another writer may have refreshed the entry meanwhile.
	if current, ok := c.entries[key]; ok && c.expired(current, now) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	c.Logger.Debug("Evicted expired price for %s", key)

	return models.MPriceEntry{}, false, nil
}

// -----------------------------------------------------------------------------

// Update stores data as the newest price for symbol and persists the cache.
// Data without a positive price is rejected and leaves any existing entry untouched.
func (c *PriceCache) Update(symbol string, data models.MPriceEntry) error {
	key, err := helpers.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if !(data.Price > 0) || math.IsInf(data.Price, 0) {
		err := helpers.NewValidationError(fmt.Sprintf("rejected price update for %s: price %v", key, data.Price), helpers.ErrInvalidPayload)
		c.Logger.Warning("%v", err)
		return err
	}

	data.Symbol = key
	data.FetchedAt = c.Now()
	if data.ExchangeRate > 0 && data.DisplayPrice <= 0 {
		data.DisplayPrice = data.Price * data.ExchangeRate
	}

	c.mu.Lock()
	c.entries[key] = data
	c.mu.Unlock()

	return c.persist()
}

// -----------------------------------------------------------------------------

// GetAllSymbols lists the symbols with a currently valid entry.
func (c *PriceCache) GetAllSymbols() []string {
	now := c.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbols := make([]string, 0, len(c.entries))
	for key, entry := range c.entries {
		if !c.expired(entry, now) {
			symbols = append(symbols, key)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// -----------------------------------------------------------------------------

func (c *PriceCache) GetStats() models.MPriceCacheStats {
	now := c.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := models.MPriceCacheStats{
		TotalEntries: len(c.entries),
		TTLSeconds:   int64(c.TTL / time.Second),
	}
	for _, entry := range c.entries {
		if c.expired(entry, now) {
			stats.ExpiredEntries++
		} else {
			stats.ValidEntries++
		}
		if stats.OldestFetch.IsZero() || entry.FetchedAt.Before(stats.OldestFetch) {
			stats.OldestFetch = entry.FetchedAt
		}
		if entry.FetchedAt.After(stats.NewestFetch) {
			stats.NewestFetch = entry.FetchedAt
		}
	}
	return stats
}

// -----------------------------------------------------------------------------

// Delete removes symbol and persists when something was removed.
func (c *PriceCache) Delete(symbol string) (bool, error) {
	key, err := helpers.NormalizeSymbol(symbol)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, c.persist()
}

// -----------------------------------------------------------------------------

// Clear drops every entry and returns how many were removed.
func (c *PriceCache) Clear() (int, error) {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]models.MPriceEntry)
	c.mu.Unlock()

	return n, c.persist()
}

// -----------------------------------------------------------------------------

// Sweep evicts every expired entry and persists once.
func (c *PriceCache) Sweep() (int, error) {
	now := c.Now()
	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	c.Logger.Info("Swept %d expired prices", removed)
	return removed, c.persist()
}

// -----------------------------------------------------------------------------

func (c *PriceCache) persist() error {
	if c.Store == nil {
		return nil
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	records := make(map[string]json.RawMessage, len(c.entries))
	var marshalErr error
	for key, entry := range c.entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			marshalErr = err
			continue
		}
		records[key] = raw
	}
	c.mu.RUnlock()

	if marshalErr != nil {
		c.Logger.Warning("Skipped unencodable price entry: %v", marshalErr)
	}
	if err := c.Store.Save(utils.NamespacePriceCache, records); err != nil {
		err = helpers.NewStorageError("failed to persist price cache", err)
		c.Logger.Error("%v", err)
		return err
	}
	return nil
}
