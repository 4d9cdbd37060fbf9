package models

import "time"

// MSymbolFetchTask is produced per symbol and refresh cycle, then discarded.
type MSymbolFetchTask struct {
	Symbol         string
	Type           MAssetType
	LastCachedDate *time.Time
	MissingDays    []time.Time
	Range          string
}

// IsFullBackfill reports whether the task replaces the series instead of appending to it.
func (t *MSymbolFetchTask) IsFullBackfill() bool {
	return t.LastCachedDate == nil
}

type MRefreshOptions struct {
	Force bool `json:"force"`
}

type MRefreshResult struct {
	CycleID    string            `json:"cycle_id"`
	InProgress bool              `json:"in_progress"`
	Successful []string          `json:"successful"`
	Failed     []string          `json:"failed"`
	Skipped    []string          `json:"skipped"`
	Errors     map[string]string `json:"errors"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   float64           `json:"duration_seconds"`
}

// MCoordinatorSummary reports one full pass of the refresh coordinator.
type MCoordinatorSummary struct {
	InProgress    bool           `json:"in_progress"`
	Holdings      int            `json:"holdings"`
	PricesUpdated int            `json:"prices_updated"`
	PricesFailed  int            `json:"prices_failed"`
	PricesSkipped int            `json:"prices_skipped"`
	History       MRefreshResult `json:"history"`
	Error         string         `json:"error,omitempty"`
}

// MReprocessResult reports one pass of the ledger reprocessing pipeline.
type MReprocessResult struct {
	InProgress bool                `json:"in_progress"`
	Changes    MFileChanges        `json:"changes"`
	Processed  bool                `json:"processed"`
	SnapshotID string              `json:"snapshot_id,omitempty"`
	Refresh    MCoordinatorSummary `json:"refresh"`
	Error      string              `json:"error,omitempty"`
}
