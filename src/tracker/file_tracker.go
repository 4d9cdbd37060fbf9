package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"

	"github.com/bmatcuk/doublestar/v4"
)

// FileChangeTracker detects new, modified and deleted ledger files by comparing
// their mtime and size against a persisted baseline.
type FileChangeTracker struct {
	Directories []models.MLedgerDirectory
	Patterns    []string
	Store       interfaces.IStore
	Now         func() time.Time
	Logger      *logger.Logger

	mu       sync.RWMutex
	baseline map[string]models.MTrackedFile

	persistMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewFileChangeTracker(cfg models.MLedgerConfig, store interfaces.IStore, log *logger.Logger) *FileChangeTracker {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = []string{"**/*.csv"}
	}
	if log == nil {
		log = logger.NewLogger(nil, "FileChangeTracker")
	}
	return &FileChangeTracker{
		Directories: cfg.Directories,
		Patterns:    patterns,
		Store:       store,
		Now:         time.Now,
		Logger:      log,
		baseline:    make(map[string]models.MTrackedFile),
	}
}

// -----------------------------------------------------------------------------

// Load reads the persisted baseline. An unreadable baseline starts empty, which
// reports every file as new on the next check.
func (t *FileChangeTracker) Load() {
	if t.Store == nil {
		return
	}
	records, err := t.Store.Load(utils.NamespaceFileTracking)
	if err != nil {
		t.Logger.Warning("File tracking baseline unreadable, starting empty: %v", err)
		return
	}

	loaded := make(map[string]models.MTrackedFile, len(records))
	for path, raw := range records {
		var rec models.MTrackedFile
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.Logger.Warning("Skipping corrupt tracking record %s: %v", path, err)
			continue
		}
		rec.Path = path
		loaded[path] = rec
	}

	t.mu.Lock()
	t.baseline = loaded
	t.mu.Unlock()
}

// -----------------------------------------------------------------------------

// GetAllSourceFiles lists every ledger file matching the configured patterns,
// sorted by path. Missing directories are skipped.
func (t *FileChangeTracker) GetAllSourceFiles() ([]models.MSourceFile, error) {
	seen := make(map[string]bool)
	var files []models.MSourceFile

	for _, dir := range t.Directories {
		info, err := os.Stat(dir.Path)
		if err != nil || !info.IsDir() {
			t.Logger.Debug("Ledger directory %s not available: %v", dir.Path, err)
			continue
		}

		for _, pattern := range t.Patterns {
			matches, err := doublestar.FilepathGlob(filepath.Join(dir.Path, pattern))
			if err != nil {
				return nil, helpers.NewValidationError("bad ledger pattern "+pattern, err)
			}
			for _, path := range matches {
				abs, err := filepath.Abs(path)
				if err != nil {
					abs = path
				}
				if seen[abs] {
					continue
				}
				fi, err := os.Stat(abs)
				if err != nil || !fi.Mode().IsRegular() {
					continue
				}
				seen[abs] = true
				files = append(files, models.MSourceFile{
					Path:    abs,
					Folder:  dir.Folder,
					ModTime: fi.ModTime().UTC(),
					Size:    fi.Size(),
				})
			}
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// -----------------------------------------------------------------------------

// CheckForChanges compares the live file set against the baseline without
// modifying it.
func (t *FileChangeTracker) CheckForChanges() (models.MFileChanges, error) {
	files, err := t.GetAllSourceFiles()
	if err != nil {
		return models.MFileChanges{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	changes := models.MFileChanges{
		NewFiles:      []models.MSourceFile{},
		ModifiedFiles: []models.MSourceFile{},
		DeletedFiles:  []models.MTrackedFile{},
	}
	live := make(map[string]bool, len(files))

	for _, f := range files {
		live[f.Path] = true
		rec, ok := t.baseline[f.Path]
		switch {
		case !ok:
			changes.NewFiles = append(changes.NewFiles, f)
		case !rec.Matches(f):
			changes.ModifiedFiles = append(changes.ModifiedFiles, f)
		}
	}
	for path, rec := range t.baseline {
		if !live[path] {
			changes.DeletedFiles = append(changes.DeletedFiles, rec)
		}
	}
	sort.Slice(changes.DeletedFiles, func(i, j int) bool {
		return changes.DeletedFiles[i].Path < changes.DeletedFiles[j].Path
	})

	changes.HasChanges = len(changes.NewFiles)+len(changes.ModifiedFiles)+len(changes.DeletedFiles) > 0
	return changes, nil
}

// -----------------------------------------------------------------------------

// UpdateTracking rebuilds the baseline from the live files and persists it.
// Unchanged files keep their processed stamp; changed files lose it; records
// of deleted files are dropped.
func (t *FileChangeTracker) UpdateTracking() error {
	files, err := t.GetAllSourceFiles()
	if err != nil {
		return err
	}

	t.mu.Lock()
	next := make(map[string]models.MTrackedFile, len(files))
	for _, f := range files {
		rec := models.MTrackedFile{
			Path:    f.Path,
			Folder:  f.Folder,
			ModTime: f.ModTime,
			Size:    f.Size,
		}
		if prev, ok := t.baseline[f.Path]; ok && prev.Matches(f) {
			rec.ProcessedAt = prev.ProcessedAt
			rec.SnapshotID = prev.SnapshotID
		}
		next[f.Path] = rec
	}
	t.baseline = next
	t.mu.Unlock()

	t.Logger.Info("Tracking %d ledger files", len(next))
	return t.persist()
}

// -----------------------------------------------------------------------------

// MarkAsProcessed stamps every tracked file with now and the snapshot it fed.
func (t *FileChangeTracker) MarkAsProcessed(snapshotID string) error {
	now := t.Now().UTC()

	t.mu.Lock()
	for path, rec := range t.baseline {
		stamp := now
		rec.ProcessedAt = &stamp
		rec.SnapshotID = snapshotID
		t.baseline[path] = rec
	}
	t.mu.Unlock()

	return t.persist()
}

// -----------------------------------------------------------------------------

// GetUnprocessedFiles lists live files that were never processed in their
// current state.
func (t *FileChangeTracker) GetUnprocessedFiles() ([]models.MSourceFile, error) {
	files, err := t.GetAllSourceFiles()
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []models.MSourceFile
	for _, f := range files {
		rec, ok := t.baseline[f.Path]
		if !ok || rec.ProcessedAt == nil || !rec.Matches(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// Tracked returns a copy of the baseline sorted by path.
func (t *FileChangeTracker) Tracked() []models.MTrackedFile {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.MTrackedFile, 0, len(t.baseline))
	for _, rec := range t.baseline {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// -----------------------------------------------------------------------------

func (t *FileChangeTracker) persist() error {
	if t.Store == nil {
		return nil
	}
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.RLock()
	records := make(map[string]json.RawMessage, len(t.baseline))
	for path, rec := range t.baseline {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		records[path] = raw
	}
	t.mu.RUnlock()

	if err := t.Store.Save(utils.NamespaceFileTracking, records); err != nil {
		err = helpers.NewStorageError("failed to persist file tracking", err)
		t.Logger.Error("%v", err)
		return err
	}
	return nil
}
