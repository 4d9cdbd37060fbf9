package models

import "time"

// MSourceFile is a ledger file as currently found on disk.
type MSourceFile struct {
	Path    string    `json:"path"`
	Folder  string    `json:"folder"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// MTrackedFile is the persisted baseline row for one ledger file.
type MTrackedFile struct {
	Path        string     `json:"path"`
	Folder      string     `json:"folder"`
	ModTime     time.Time  `json:"mod_time"`
	Size        int64      `json:"size"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	SnapshotID  string     `json:"snapshot_id,omitempty"`
}

// Matches reports whether the live file still has the baseline mtime and size.
func (t *MTrackedFile) Matches(f MSourceFile) bool {
	return t.Size == f.Size && t.ModTime.Equal(f.ModTime)
}

type MFileChanges struct {
	NewFiles      []MSourceFile  `json:"new_files"`
	ModifiedFiles []MSourceFile  `json:"modified_files"`
	DeletedFiles  []MTrackedFile `json:"deleted_files"`
	HasChanges    bool           `json:"has_changes"`
}
