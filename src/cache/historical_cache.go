package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"
)

const keySeparator = "|"

// HistoricalCache keeps daily series per (symbol, period, resolution). Freshness
// follows the business-day cutoff of Calendar rather than a rolling TTL.
type HistoricalCache struct {
	Store    interfaces.IStore
	Calendar interfaces.IBusinessCalendar
	Now      func() time.Time
	Logger   *logger.Logger

	mu      sync.RWMutex
	entries map[string]*models.MHistoricalEntry

	persistMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewHistoricalCache(store interfaces.IStore, cal interfaces.IBusinessCalendar, log *logger.Logger) *HistoricalCache {
	if cal == nil {
		cal = utils.NewWeekdayCalendar(time.Local)
	}
	if log == nil {
		log = logger.NewLogger(nil, "HistoricalCache")
	}
	return &HistoricalCache{
		Store:    store,
		Calendar: cal,
		Now:      time.Now,
		Logger:   log,
		entries:  make(map[string]*models.MHistoricalEntry),
	}
}

// -----------------------------------------------------------------------------

// Key builds the composite cache key.
func Key(symbol, period, resolution string) string {
	return strings.Join([]string{symbol, period, resolution}, keySeparator)
}

// -----------------------------------------------------------------------------

func (c *HistoricalCache) key(symbol, period, resolution string) (string, string, error) {
	sym, err := helpers.NormalizeSymbol(symbol)
	if err != nil {
		return "", "", err
	}
	if period == "" || resolution == "" || strings.Contains(period+resolution, keySeparator) {
		return "", "", helpers.NewValidationError(fmt.Sprintf("invalid period/resolution %q/%q", period, resolution), nil)
	}
	return sym, Key(sym, period, resolution), nil
}

// -----------------------------------------------------------------------------

// Load replaces the in-memory state with the persisted one. Unreadable storage
// starts an empty cache, records that fail to decode are skipped.
func (c *HistoricalCache) Load() {
	if c.Store == nil {
		return
	}
	records, err := c.Store.Load(utils.NamespaceHistoricalCache)
	if err != nil {
		c.Logger.Warning("Historical cache unreadable, starting empty: %v", err)
		return
	}

	loaded := make(map[string]*models.MHistoricalEntry, len(records))
	for key, raw := range records {
		var entry models.MHistoricalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.Logger.Warning("Skipping corrupt record %s: %v", key, err)
			continue
		}
		points, err := sanitize(entry.Data)
		if err != nil {
			c.Logger.Warning("Skipping record %s: %v", key, err)
			continue
		}
		entry.Data = points
		loaded[key] = &entry
	}

	c.mu.Lock()
	c.entries = loaded
	c.mu.Unlock()

	c.Logger.Info("Loaded %d cached series", len(loaded))
}

// -----------------------------------------------------------------------------

// IsStale reports whether an entry updated at lastUpdated predates the last
// business-day cutoff.
func (c *HistoricalCache) IsStale(lastUpdated time.Time) bool {
	return utils.IsStale(c.Calendar, lastUpdated, c.Now())
}

// -----------------------------------------------------------------------------

// Get returns a copy of the series annotated with NeedsUpdate. Stale entries are
// still returned; the caller decides whether to serve or refetch them.
func (c *HistoricalCache) Get(symbol, period, resolution string) (*models.MHistoricalResult, bool, error) {
	_, key, err := c.key(symbol, period, resolution)
	if err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	var copied models.MHistoricalEntry
	if ok {
		copied = cloneEntry(entry)
	}
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	return &models.MHistoricalResult{
		MHistoricalEntry: copied,
		NeedsUpdate:      c.IsStale(copied.LastUpdated),
	}, true, nil
}

// -----------------------------------------------------------------------------

// Set replaces the whole series for the key. Empty series and series with
// non-positive closes are rejected; the existing entry stays untouched.
func (c *HistoricalCache) Set(symbol, period, resolution string, data models.MHistoricalEntry) error {
	sym, key, err := c.key(symbol, period, resolution)
	if err != nil {
		return err
	}

	points, err := sanitize(data.Data)
	if err != nil {
		err = helpers.NewValidationError(fmt.Sprintf("rejected series for %s", key), err)
		c.Logger.Warning("%v", err)
		return err
	}

	entry := &models.MHistoricalEntry{
		Symbol:      sym,
		Period:      period,
		Resolution:  resolution,
		Data:        points,
		Meta:        data.Meta,
		Range:       models.MDateRange{Start: points[0].Date, End: points[len(points)-1].Date},
		LastUpdated: c.Now(),
	}
	if entry.Meta.LatestClose <= 0 {
		entry.Meta.LatestClose = points[len(points)-1].Close
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.Logger.Info("Stored %d points for %s", len(points), key)
	return c.persist()
}

// -----------------------------------------------------------------------------

// MergeIncremental appends the points of data dated strictly after the cached
// last date, in the order given. Older cached points are never touched. A key
// without a cached series falls back to Set. It returns the appended count.
func (c *HistoricalCache) MergeIncremental(symbol, period, resolution string, data models.MHistoricalEntry) (int, error) {
	_, key, err := c.key(symbol, period, resolution)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		if err := c.Set(symbol, period, resolution, data); err != nil {
			return 0, err
		}
		c.mu.RLock()
		defer c.mu.RUnlock()
		if stored, ok := c.entries[key]; ok {
			return len(stored.Data), nil
		}
		return 0, nil
	}

	last := entry.LastDate()
	appended := 0
	for _, p := range data.Data {
		if !validPoint(p) || !p.Date.After(last) {
			continue
		}
		entry.Data = append(entry.Data, p)
		last = p.Date
		appended++
	}

	if data.Meta.Name != "" {
		entry.Meta.Name = data.Meta.Name
	}
	if data.Meta.Currency != "" {
		entry.Meta.Currency = data.Meta.Currency
	}
	if data.Meta.LatestClose > 0 {
		entry.Meta.LatestClose = data.Meta.LatestClose
	} else if appended > 0 {
		entry.Meta.LatestClose = entry.Data[len(entry.Data)-1].Close
	}
	entry.Range.End = entry.LastDate()
	entry.LastUpdated = c.Now()
	c.mu.Unlock()

	c.Logger.Info("Merged %d new points into %s", appended, key)
	return appended, c.persist()
}

// -----------------------------------------------------------------------------

// Touch marks the series as verified now without changing its data.
func (c *HistoricalCache) Touch(symbol, period, resolution string) (bool, error) {
	_, key, err := c.key(symbol, period, resolution)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		entry.LastUpdated = c.Now()
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, c.persist()
}

// -----------------------------------------------------------------------------

// Delete removes every series of symbol regardless of period and resolution.
func (c *HistoricalCache) Delete(symbol string) (int, error) {
	sym, err := helpers.NormalizeSymbol(symbol)
	if err != nil {
		return 0, err
	}

	prefix := sym + keySeparator
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	return removed, c.persist()
}

// -----------------------------------------------------------------------------

// ClearOldEntries removes series not updated within the last days days.
func (c *HistoricalCache) ClearOldEntries(days int) (int, error) {
	if days <= 0 {
		days = utils.DefaultRetentionDays
	}
	cutoff := c.Now().AddDate(0, 0, -days)

	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if entry.LastUpdated.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	c.Logger.Info("Cleared %d series older than %d days", removed, days)
	if removed == 0 {
		return 0, nil
	}
	return removed, c.persist()
}

// -----------------------------------------------------------------------------

func (c *HistoricalCache) ClearAll() (int, error) {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[string]*models.MHistoricalEntry)
	c.mu.Unlock()

	return removed, c.persist()
}

// -----------------------------------------------------------------------------

func (c *HistoricalCache) GetStats() models.MHistoricalCacheStats {
	now := c.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := models.MHistoricalCacheStats{Entries: len(c.entries)}
	seen := make(map[string]bool)
	for _, entry := range c.entries {
		stats.TotalPoints += len(entry.Data)
		if utils.IsStale(c.Calendar, entry.LastUpdated, now) {
			stats.StaleEntries++
		}
		if !seen[entry.Symbol] {
			seen[entry.Symbol] = true
			stats.Symbols = append(stats.Symbols, entry.Symbol)
		}
	}
	sort.Strings(stats.Symbols)
	return stats
}

// -----------------------------------------------------------------------------

func (c *HistoricalCache) persist() error {
	if c.Store == nil {
		return nil
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	records := make(map[string]json.RawMessage, len(c.entries))
	for key, entry := range c.entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			c.Logger.Warning("Skipped unencodable series %s: %v", key, err)
			continue
		}
		records[key] = raw
	}
	c.mu.RUnlock()

	if err := c.Store.Save(utils.NamespaceHistoricalCache, records); err != nil {
		err = helpers.NewStorageError("failed to persist historical cache", err)
		c.Logger.Error("%v", err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func validPoint(p models.MDailyPoint) bool {
	return !p.Date.IsZero() && p.Close > 0 && !math.IsInf(p.Close, 0)
}

// sanitize sorts a full series ascending and keeps the last point per date.
func sanitize(points []models.MDailyPoint) ([]models.MDailyPoint, error) {
	if len(points) == 0 {
		return nil, helpers.ErrInvalidPayload
	}
	out := make([]models.MDailyPoint, 0, len(points))
	for i, p := range points {
		if !validPoint(p) {
			return nil, fmt.Errorf("%w: point %d has close %v", helpers.ErrInvalidPayload, i, p.Close)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	deduped := out[:0]
	for _, p := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(p.Date) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped, nil
}

// -----------------------------------------------------------------------------

func cloneEntry(e *models.MHistoricalEntry) models.MHistoricalEntry {
	out := *e
	out.Data = make([]models.MDailyPoint, len(e.Data))
	copy(out.Data, e.Data)
	return out
}
