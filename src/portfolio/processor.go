package portfolio

import (
	"context"
	"time"

	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"

	"github.com/google/uuid"
)

// PassthroughProcessor stands in for the external trade processor. It keeps
// the current holdings and stamps them as a new snapshot.
type PassthroughProcessor struct {
	Store  *SnapshotStore
	Logger *logger.Logger
	Now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewPassthroughProcessor(store *SnapshotStore, log *logger.Logger) *PassthroughProcessor {
	if log == nil {
		log = logger.NewLogger(nil, "TradeProcessor")
	}
	return &PassthroughProcessor{Store: store, Logger: log, Now: time.Now}
}

// -----------------------------------------------------------------------------

func (p *PassthroughProcessor) ProcessLedgers(ctx context.Context, files []models.MSourceFile) (string, error) {
	snap, err := p.Store.GetSnapshot(ctx)
	if err != nil {
		return "", err
	}

	snap.ID = uuid.New().String()
	snap.CreatedAt = p.Now().Unix()
	if err := p.Store.Save(snap); err != nil {
		return "", err
	}

	p.Logger.Info("Snapshot %s written from %d ledger files (%d holdings)", snap.ID, len(files), len(snap.Holdings))
	return snap.ID, nil
}
