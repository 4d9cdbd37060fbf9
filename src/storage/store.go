package storage

import (
	"fmt"
	"regexp"

	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
)

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// -----------------------------------------------------------------------------

// NewStore opens the backend selected by storage.db_type and prepares its schema.
func NewStore(cfg *models.MConfig, log *logger.Logger) (interfaces.IStore, error) {
	if log == nil {
		log = logger.NewLogger(cfg, "Storage")
	}

	switch cfg.Storage.DBType {
	case "postgres":
		db, err := NewPostgresStore(cfg, log)
		if err != nil {
			return nil, err
		}
		if err := db.Initialize(); err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db := NewSQLiteStore(cfg, log)
		if err := db.Initialize(); err != nil {
			return nil, err
		}
		return db, nil
	case "file", "":
		return NewFileStore(cfg.Storage.DBPath, log)
	default:
		return nil, fmt.Errorf("unknown database type: %q", cfg.Storage.DBType)
	}
}

// -----------------------------------------------------------------------------

func checkNamespace(namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	return nil
}
