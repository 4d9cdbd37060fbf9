package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/storage"
)

func writeLedger(t *testing.T, path string, size int, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("x", size)), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func newTracker(t *testing.T, ledgerDir string) *FileChangeTracker {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := models.MLedgerConfig{
		Directories: []models.MLedgerDirectory{
			{Path: ledgerDir, Folder: "brokerage"},
			{Path: filepath.Join(ledgerDir, "missing"), Folder: "ignored"},
		},
		Patterns: []string{"**/*.csv"},
	}
	return NewFileChangeTracker(cfg, store, nil)
}

func TestCheckForChangesLifecycle(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	ledger := filepath.Join(dir, "2026", "trades.csv")
	writeLedger(t, ledger, 1024, base)
	writeLedger(t, filepath.Join(dir, "notes.txt"), 10, base)

	tr := newTracker(t, dir)

	changes, err := tr.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if len(changes.NewFiles) != 1 || !changes.HasChanges {
		t.Fatalf("first check = %+v", changes)
	}
	if changes.NewFiles[0].Folder != "brokerage" || changes.NewFiles[0].Size != 1024 {
		t.Errorf("new file = %+v", changes.NewFiles[0])
	}

	// Checking is read-only.
	again, _ := tr.CheckForChanges()
	if len(again.NewFiles) != 1 {
		t.Error("CheckForChanges mutated the baseline")
	}

	if err := tr.UpdateTracking(); err != nil {
		t.Fatal(err)
	}
	if c, _ := tr.CheckForChanges(); c.HasChanges {
		t.Fatalf("after UpdateTracking = %+v", c)
	}

	writeLedger(t, ledger, 1096, base.Add(time.Hour))
	changes, _ = tr.CheckForChanges()
	if len(changes.ModifiedFiles) != 1 || len(changes.NewFiles) != 0 {
		t.Fatalf("after edit = %+v", changes)
	}
	if changes.ModifiedFiles[0].Size != 1096 {
		t.Errorf("modified size = %d", changes.ModifiedFiles[0].Size)
	}

	if err := tr.UpdateTracking(); err != nil {
		t.Fatal(err)
	}
	if c, _ := tr.CheckForChanges(); c.HasChanges {
		t.Fatalf("second check after UpdateTracking = %+v", c)
	}

	if err := os.Remove(ledger); err != nil {
		t.Fatal(err)
	}
	changes, _ = tr.CheckForChanges()
	if len(changes.DeletedFiles) != 1 {
		t.Fatalf("after delete = %+v", changes)
	}
	tr.UpdateTracking()
	if len(tr.Tracked()) != 0 {
		t.Error("deleted record not removed by UpdateTracking")
	}
}

func TestMtimeOnlyChangeIsModified(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	ledger := filepath.Join(dir, "a.csv")
	writeLedger(t, ledger, 100, base)

	tr := newTracker(t, dir)
	tr.UpdateTracking()

	os.Chtimes(ledger, base.Add(time.Minute), base.Add(time.Minute))
	changes, _ := tr.CheckForChanges()
	if len(changes.ModifiedFiles) != 1 {
		t.Errorf("mtime change not detected: %+v", changes)
	}
}

func TestMarkAsProcessedAndUnprocessed(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	writeLedger(t, a, 10, base)
	writeLedger(t, b, 10, base)

	tr := newTracker(t, dir)
	tr.Now = func() time.Time { return base.Add(time.Hour) }

	if files, _ := tr.GetUnprocessedFiles(); len(files) != 2 {
		t.Fatalf("unprocessed before tracking = %d", len(files))
	}

	tr.UpdateTracking()
	if err := tr.MarkAsProcessed("snap-1"); err != nil {
		t.Fatal(err)
	}
	for _, rec := range tr.Tracked() {
		if rec.SnapshotID != "snap-1" || rec.ProcessedAt == nil {
			t.Errorf("record not stamped: %+v", rec)
		}
	}
	if files, _ := tr.GetUnprocessedFiles(); len(files) != 0 {
		t.Errorf("unprocessed after stamp = %v", files)
	}

	writeLedger(t, b, 20, base.Add(2*time.Hour))
	files, _ := tr.GetUnprocessedFiles()
	if len(files) != 1 || filepath.Base(files[0].Path) != "b.csv" {
		t.Errorf("unprocessed after edit = %v", files)
	}

	tr.UpdateTracking()
	for _, rec := range tr.Tracked() {
		if filepath.Base(rec.Path) == "a.csv" && rec.SnapshotID != "snap-1" {
			t.Error("unchanged file lost its processed stamp")
		}
		if filepath.Base(rec.Path) == "b.csv" && rec.ProcessedAt != nil {
			t.Error("changed file kept its processed stamp")
		}
	}
}

func TestBaselineSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	writeLedger(t, filepath.Join(dir, "a.csv"), 10, time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC))

	storeDir := t.TempDir()
	store, _ := storage.NewFileStore(storeDir, nil)
	cfg := models.MLedgerConfig{Directories: []models.MLedgerDirectory{{Path: dir, Folder: "x"}}}

	tr := NewFileChangeTracker(cfg, store, nil)
	tr.UpdateTracking()

	reloaded := NewFileChangeTracker(cfg, store, nil)
	reloaded.Load()
	if c, _ := reloaded.CheckForChanges(); c.HasChanges {
		t.Errorf("reloaded baseline reports changes: %+v", c)
	}
}
