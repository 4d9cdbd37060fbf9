package coordinator

import (
	"context"
	"sync/atomic"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"
)

// PortfolioScope is the request queue key shared by every operation that
// rewrites the portfolio snapshot.
const PortfolioScope = "portfolio"

// ChangeTracker is the part of the file tracker the pipeline drives.
type ChangeTracker interface {
	GetAllSourceFiles() ([]models.MSourceFile, error)
	CheckForChanges() (models.MFileChanges, error)
	UpdateTracking() error
	MarkAsProcessed(snapshotID string) error
}

// LedgerPipeline reruns the trade processor when ledgers changed and then
// refreshes the caches for the new snapshot.
type LedgerPipeline struct {
	Tracker     ChangeTracker
	Processor   interfaces.ITradeProcessor
	Portfolio   interfaces.IPortfolioStore
	Coordinator *RefreshCoordinator
	Queue       *utils.RequestQueue
	Logger      *logger.Logger

	uploads *utils.Coalescer[models.MReprocessResult]
	errors  *helpers.ErrorHandler
	running atomic.Bool
}

// -----------------------------------------------------------------------------

func NewLedgerPipeline(
	tracker ChangeTracker,
	processor interfaces.ITradeProcessor,
	portfolio interfaces.IPortfolioStore,
	coord *RefreshCoordinator,
	queue *utils.RequestQueue,
	log *logger.Logger,
) *LedgerPipeline {
	if log == nil {
		log = logger.NewLogger(nil, "LedgerPipeline")
	}
	if queue == nil {
		queue = utils.NewRequestQueue()
	}
	return &LedgerPipeline{
		Tracker:     tracker,
		Processor:   processor,
		Portfolio:   portfolio,
		Coordinator: coord,
		Queue:       queue,
		Logger:      log,
		uploads:     utils.NewCoalescer[models.MReprocessResult](),
		errors:      helpers.NewErrorHandler(log),
	}
}

// -----------------------------------------------------------------------------

func (p *LedgerPipeline) IsRunning() bool {
	return p.running.Load()
}

// -----------------------------------------------------------------------------

// Reprocess runs the pipeline if ledgers changed, or unconditionally with
// force. A second call while one runs returns InProgress instead of queueing.
func (p *LedgerPipeline) Reprocess(ctx context.Context, force bool) models.MReprocessResult {
	if !p.running.CompareAndSwap(false, true) {
		p.Logger.Info("Reprocess already in progress")
		return models.MReprocessResult{InProgress: true}
	}
	defer p.running.Store(false)

	return p.queued(ctx, force)
}

// -----------------------------------------------------------------------------

// ProcessUploads forces a reprocess for a batch of uploaded ledgers. Callers
// passing the same signature while a run is in flight share its result.
func (p *LedgerPipeline) ProcessUploads(ctx context.Context, signature string) (models.MReprocessResult, bool, error) {
	work := context.WithoutCancel(ctx)
	return p.uploads.Do(ctx, "uploads:"+signature, func() (models.MReprocessResult, error) {
		return p.queued(work, true), nil
	})
}

// -----------------------------------------------------------------------------

func (p *LedgerPipeline) queued(ctx context.Context, force bool) models.MReprocessResult {
	var result models.MReprocessResult
	err := p.Queue.Run(ctx, PortfolioScope, func(ctx context.Context) error {
		if p.errors.Guard("ledger reprocess", func() { result = p.run(ctx, force) }) {
			result.Error = "reprocess aborted unexpectedly"
		}
		return nil
	})
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// -----------------------------------------------------------------------------

func (p *LedgerPipeline) run(ctx context.Context, force bool) models.MReprocessResult {
	var result models.MReprocessResult

	changes, err := p.Tracker.CheckForChanges()
	if err != nil {
		p.errors.Handle(err, "checking ledger changes")
		result.Error = err.Error()
		return result
	}
	result.Changes = changes
	if !changes.HasChanges && !force {
		p.Logger.Debug("No ledger changes")
		return result
	}

	files, err := p.Tracker.GetAllSourceFiles()
	if err != nil {
		p.errors.Handle(err, "listing ledgers")
		result.Error = err.Error()
		return result
	}

	snapshotID, err := p.Processor.ProcessLedgers(ctx, files)
	if err != nil {
		p.errors.Handle(err, "processing ledgers")
		result.Error = err.Error()
		return result
	}
	result.Processed = true
	result.SnapshotID = snapshotID

	// The snapshot exists at this point; a tracking failure only means the
	// next check reports the same changes again.
	if err := p.Tracker.UpdateTracking(); err != nil {
		p.errors.Handle(err, "updating file tracking")
	} else if err := p.Tracker.MarkAsProcessed(snapshotID); err != nil {
		p.errors.Handle(err, "marking ledgers processed")
	}

	if p.Coordinator == nil {
		return result
	}
	if holdings, err := p.Portfolio.GetMostRecentHoldings(ctx); err != nil {
		p.errors.Handle(err, "loading new holdings")
	} else {
		p.Coordinator.InitializeHistoricalCache(ctx, holdings)
	}
	result.Refresh = p.Coordinator.RefreshPortfolioCache(ctx)

	p.Logger.Info("Snapshot %s built from %d ledgers (%d new, %d modified, %d deleted)",
		snapshotID, len(files), len(changes.NewFiles), len(changes.ModifiedFiles), len(changes.DeletedFiles))
	return result
}
