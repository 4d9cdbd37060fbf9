package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"portfolio-dashboard/src/logger"
)

// FileStore keeps each namespace as one JSON object file under Dir.
type FileStore struct {
	Dir    string
	Logger *logger.Logger
	mu     sync.Mutex
}

// -----------------------------------------------------------------------------

func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	if log == nil {
		log = logger.NewLogger(nil, "FileStore")
	}
	return &FileStore{Dir: dir, Logger: log}, nil
}

// -----------------------------------------------------------------------------

func (s *FileStore) path(namespace string) string {
	return filepath.Join(s.Dir, namespace+".json")
}

// -----------------------------------------------------------------------------

func (s *FileStore) Load(namespace string) (map[string]json.RawMessage, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(namespace))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	records := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corrupt namespace file %s: %w", s.path(namespace), err)
	}
	return records, nil
}

// -----------------------------------------------------------------------------

// Save rewrites the namespace file through a temporary file and rename, so a
// crash mid-write leaves the previous content intact.
func (s *FileStore) Save(namespace string, records map[string]json.RawMessage) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	if records == nil {
		records = map[string]json.RawMessage{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.Dir, namespace+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path(namespace))
}

// -----------------------------------------------------------------------------

func (s *FileStore) Close() error {
	return nil
}
