package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"portfolio-dashboard/src/cache"
	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"

	"github.com/google/uuid"
)

// BatchFetchOrchestrator refills the historical cache from the upstream
// provider in small sequential batches. Only one cycle runs at a time.
type BatchFetchOrchestrator struct {
	Config    models.MRefreshConfig
	Provider  interfaces.IMarketDataProvider
	Discovery interfaces.ISymbolDiscovery
	Cache     *cache.HistoricalCache
	Calendar  interfaces.IBusinessCalendar
	Logger    *logger.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	NewID func() string

	errors  *helpers.ErrorHandler
	running atomic.Bool
}

// -----------------------------------------------------------------------------

func NewBatchFetchOrchestrator(
	cfg *models.MConfig,
	provider interfaces.IMarketDataProvider,
	discovery interfaces.ISymbolDiscovery,
	historical *cache.HistoricalCache,
	cal interfaces.IBusinessCalendar,
	log *logger.Logger,
) *BatchFetchOrchestrator {
	if log == nil {
		log = logger.NewLogger(cfg, "BatchFetchOrchestrator")
	}
	if cal == nil {
		cal = historical.Calendar
	}
	return &BatchFetchOrchestrator{
		Config:    cfg.Refresh,
		Provider:  provider,
		Discovery: discovery,
		Cache:     historical,
		Calendar:  cal,
		Logger:    log,
		Now:       time.Now,
		Sleep:     helpers.Sleep,
		NewID:     func() string { return uuid.New().String() },
		errors:    helpers.NewErrorHandler(log),
	}
}

// -----------------------------------------------------------------------------

// IsRunning reports whether a cycle is in flight.
func (o *BatchFetchOrchestrator) IsRunning() bool {
	return o.running.Load()
}

// -----------------------------------------------------------------------------

// RefreshAll discovers every tracked symbol and refreshes the stale or missing
// series. A call made while a cycle runs returns at once with InProgress set.
func (o *BatchFetchOrchestrator) RefreshAll(ctx context.Context, opts models.MRefreshOptions) models.MRefreshResult {
	if !o.running.CompareAndSwap(false, true) {
		o.Logger.Info("Refresh already in progress, skipping")
		return models.MRefreshResult{InProgress: true}
	}
	defer o.running.Store(false)

	result := o.newResult()
	if o.Discovery == nil {
		result.Error = "no symbol discovery configured"
		return o.finish(result)
	}

	refs, err := o.Discovery.DiscoverSymbols(ctx)
	if err != nil {
		o.errors.Handle(err, "symbol discovery")
		result.Error = err.Error()
		return o.finish(result)
	}

	o.run(ctx, refs, opts, &result)
	return o.finish(result)
}

// -----------------------------------------------------------------------------

// QuickUpdateSymbols refreshes only refs, bypassing discovery. It shares the
// re-entrancy guard with RefreshAll.
func (o *BatchFetchOrchestrator) QuickUpdateSymbols(ctx context.Context, refs []models.MSymbolRef) models.MRefreshResult {
	if !o.running.CompareAndSwap(false, true) {
		o.Logger.Info("Refresh already in progress, skipping quick update")
		return models.MRefreshResult{InProgress: true}
	}
	defer o.running.Store(false)

	result := o.newResult()
	o.run(ctx, refs, models.MRefreshOptions{}, &result)
	return o.finish(result)
}

// -----------------------------------------------------------------------------

func (o *BatchFetchOrchestrator) newResult() models.MRefreshResult {
	return models.MRefreshResult{
		CycleID:    o.NewID(),
		Successful: []string{},
		Failed:     []string{},
		Skipped:    []string{},
		Errors:     map[string]string{},
		StartedAt:  o.Now(),
	}
}

// -----------------------------------------------------------------------------

func (o *BatchFetchOrchestrator) finish(result models.MRefreshResult) models.MRefreshResult {
	sort.Strings(result.Successful)
	sort.Strings(result.Failed)
	sort.Strings(result.Skipped)
	result.Duration = o.Now().Sub(result.StartedAt).Seconds()

	o.Logger.Info("Cycle %s done: %d ok, %d failed, %d skipped (%.1fs)",
		result.CycleID, len(result.Successful), len(result.Failed), len(result.Skipped), result.Duration)
	return result
}

// -----------------------------------------------------------------------------

// PlanTasks decides per symbol whether and how much history to fetch. Symbols
// without work are returned as skipped; a stale series with no missing
// business day is touched so it reads as fresh again.
func (o *BatchFetchOrchestrator) PlanTasks(refs []models.MSymbolRef, opts models.MRefreshOptions) ([]models.MSymbolFetchTask, []string, map[string]string) {
	period, resolution := o.Config.HistoryPeriod, o.Config.HistoryResolution
	now := o.Now()

	var tasks []models.MSymbolFetchTask
	var skipped []string
	invalid := map[string]string{}
	seen := map[string]bool{}

	for _, ref := range refs {
		sym, err := helpers.NormalizeSymbol(ref.Symbol)
		if err != nil {
			invalid[ref.Symbol] = err.Error()
			continue
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true

		assetType := ref.Type
		if assetType == "" {
			assetType = models.AssetStock
		}

		cached, ok, _ := o.Cache.Get(sym, period, resolution)
		if !ok {
			tasks = append(tasks, models.MSymbolFetchTask{
				Symbol: sym,
				Type:   assetType,
				Range:  o.Config.FullBackfillRange,
			})
			continue
		}

		if !cached.NeedsUpdate && !opts.Force {
			skipped = append(skipped, sym)
			continue
		}

		last := cached.LastDate()
		missing := utils.MissingBusinessDays(o.Calendar, last, now)
		if len(missing) == 0 {
			if cached.NeedsUpdate {
				o.Cache.Touch(sym, period, resolution)
			}
			skipped = append(skipped, sym)
			continue
		}

		tasks = append(tasks, models.MSymbolFetchTask{
			Symbol:         sym,
			Type:           assetType,
			LastCachedDate: &last,
			MissingDays:    missing,
			Range:          utils.WindowForMissingDays(len(missing)),
		})
	}
	return tasks, skipped, invalid
}

// -----------------------------------------------------------------------------

func (o *BatchFetchOrchestrator) run(ctx context.Context, refs []models.MSymbolRef, opts models.MRefreshOptions, result *models.MRefreshResult) {
	tasks, skipped, invalid := o.PlanTasks(refs, opts)
	result.Skipped = append(result.Skipped, skipped...)
	for sym, msg := range invalid {
		result.Failed = append(result.Failed, sym)
		result.Errors[sym] = msg
	}

	if len(tasks) == 0 {
		return
	}

	batchSize := o.Config.BatchSize
	if batchSize <= 0 {
		batchSize = utils.DefaultBatchSize
	}
	o.Logger.Info("Cycle %s: fetching %d symbols in batches of %d", result.CycleID, len(tasks), batchSize)

	var mu sync.Mutex
	record := func(sym string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed = append(result.Failed, sym)
			result.Errors[sym] = err.Error()
			return
		}
		result.Successful = append(result.Successful, sym)
	}

	for start := 0; start < len(tasks); start += batchSize {
		if start > 0 {
			if err := o.Sleep(ctx, utils.Milliseconds(o.Config.BatchDelayMs)); err != nil {
				for _, task := range tasks[start:] {
					record(task.Symbol, err)
				}
				return
			}
		}

		end := start + batchSize
		if end > len(tasks) {
			end = len(tasks)
		}

		var wg sync.WaitGroup
		for _, task := range tasks[start:end] {
			wg.Add(1)
			go func(task models.MSymbolFetchTask) {
				defer wg.Done()
				var err error
				if o.errors.Guard("fetch "+task.Symbol, func() { err = o.fetchTask(ctx, task) }) {
					err = fmt.Errorf("fetch for %s panicked", task.Symbol)
				}
				record(task.Symbol, err)
			}(task)
		}
		wg.Wait()
	}
}

// -----------------------------------------------------------------------------

// fetchTask downloads the task window with retries, then writes it: a full
// replace for a backfill, an append of newer points otherwise.
func (o *BatchFetchOrchestrator) fetchTask(ctx context.Context, task models.MSymbolFetchTask) error {
	period, resolution := o.Config.HistoryPeriod, o.Config.HistoryResolution
	attempts := 1 + o.Config.MaxRetries

	data, err := helpers.Retry(ctx, attempts, utils.Milliseconds(o.Config.RetryDelayMs), func(attempt int) (*models.MHistoricalEntry, error) {
		entry, err := o.Provider.FetchHistory(ctx, task.Symbol, task.Type, task.Range, resolution)
		if err != nil {
			o.Logger.Warning("Fetch %s (%s) attempt %d/%d failed: %v", task.Symbol, task.Range, attempt, attempts, err)
			return nil, err
		}
		if entry == nil || len(entry.Data) == 0 {
			return nil, helpers.NewDataSourceError("empty series for "+task.Symbol, helpers.ErrInvalidPayload)
		}
		return entry, nil
	})
	if err != nil {
		return err
	}

	var added int
	if task.IsFullBackfill() {
		err = o.Cache.Set(task.Symbol, period, resolution, *data)
		added = len(data.Data)
	} else {
		added, err = o.Cache.MergeIncremental(task.Symbol, period, resolution, *data)
	}

	if helpers.IsStorageError(err) {
		// The write is applied in memory; only the save failed.
		o.Logger.Warning("Cached %s but persisting failed: %v", task.Symbol, err)
		return nil
	}
	if err != nil {
		return err
	}

	o.Logger.Debug("%s: wrote %d points (%s window, %d missing days)", task.Symbol, added, task.Range, len(task.MissingDays))
	return nil
}
