package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
)

// SnapshotStore reads and writes the holdings snapshot produced by the trade
// processor. A missing file means an empty portfolio.
type SnapshotStore struct {
	Path   string
	Logger *logger.Logger
	mu     sync.Mutex
}

// -----------------------------------------------------------------------------

func NewSnapshotStore(path string, log *logger.Logger) *SnapshotStore {
	if log == nil {
		log = logger.NewLogger(nil, "SnapshotStore")
	}
	return &SnapshotStore{Path: path, Logger: log}
}

// -----------------------------------------------------------------------------

// GetSnapshot returns the most recent snapshot.
func (s *SnapshotStore) GetSnapshot(ctx context.Context) (*models.MHoldingsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return &models.MHoldingsSnapshot{Holdings: []models.MHolding{}}, nil
	}
	if err != nil {
		return nil, helpers.NewStorageError("failed to read holdings snapshot", err)
	}

	var snap models.MHoldingsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, helpers.NewStorageError(fmt.Sprintf("corrupt holdings snapshot %s", s.Path), err)
	}
	if snap.Holdings == nil {
		snap.Holdings = []models.MHolding{}
	}
	return &snap, nil
}

// -----------------------------------------------------------------------------

func (s *SnapshotStore) GetMostRecentHoldings(ctx context.Context) ([]models.MHolding, error) {
	snap, err := s.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Holdings, nil
}

// -----------------------------------------------------------------------------

// Save replaces the snapshot file atomically.
func (s *SnapshotStore) Save(snap *models.MHoldingsSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return helpers.NewStorageError("failed to create snapshot directory", err)
	}
	tmp, err := os.CreateTemp(dir, "holdings.*.tmp")
	if err != nil {
		return helpers.NewStorageError("failed to write holdings snapshot", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return helpers.NewStorageError("failed to write holdings snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		return helpers.NewStorageError("failed to write holdings snapshot", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return helpers.NewStorageError("failed to write holdings snapshot", err)
	}
	return nil
}
