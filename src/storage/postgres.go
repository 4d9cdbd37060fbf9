package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresStore names its schema after the running executable so several
// tools can share one database.
func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, `"`, "")

	return &PostgresStore{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize() error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."cache_records" (
			namespace TEXT NOT NULL,
			record_key TEXT NOT NULL,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (namespace, record_key)
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create cache_records: %w", err)
	}

	d.Logger.Info("PostgresStore initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Load(namespace string) (map[string]json.RawMessage, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT record_key, payload FROM "%s"."cache_records" WHERE namespace = $1`, d.Schema)
	rows, err := d.DB.Query(query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		records[key] = json.RawMessage(payload)
	}
	return records, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Save(namespace string, records map[string]json.RawMessage) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM "%s"."cache_records" WHERE namespace = $1`, d.Schema), namespace); err != nil {
		return err
	}

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO "%s"."cache_records" (namespace, record_key, payload, updated_at)
		VALUES ($1, $2, $3, $4)
	`, d.Schema))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, key := range sortedKeys(records) {
		if _, err := stmt.Exec(namespace, key, string(records[key]), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
