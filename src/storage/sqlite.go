package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"

	_ "modernc.org/sqlite"
)

const sqliteFileName = "portfolio_cache.db"

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) *SQLiteStore {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// dsn resolves db_path: a path ending in .db is used as is, anything else is
// treated as a directory holding the default database file.
func (d *SQLiteStore) dsn() (string, error) {
	path := d.Config.Storage.DBPath
	if !strings.HasSuffix(path, ".db") && path != ":memory:" {
		path = filepath.Join(path, sqliteFileName)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}
	}
	return path, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize() error {
	dsn, err := d.dsn()
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	// One writer at a time keeps SQLITE_BUSY away.
	db.SetMaxOpenConns(1)

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS cache_records (
			namespace TEXT NOT NULL,
			record_key TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, record_key)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create cache_records: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Load(namespace string) (map[string]json.RawMessage, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}

	rows, err := d.DB.Query("SELECT record_key, payload FROM cache_records WHERE namespace = ?", namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		records[key] = json.RawMessage(payload)
	}
	return records, rows.Err()
}

// -----------------------------------------------------------------------------

// Save replaces the whole namespace inside one transaction.
func (d *SQLiteStore) Save(namespace string, records map[string]json.RawMessage) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cache_records WHERE namespace = ?", namespace); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cache_records (namespace, record_key, payload, updated_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, key := range sortedKeys(records) {
		if _, err := stmt.Exec(namespace, key, string(records[key]), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

func sortedKeys(records map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
