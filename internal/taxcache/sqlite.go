package taxcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the cache database was written by an
// incompatible version.
var ErrSchemaMismatch = errors.New("taxonomy cache schema version mismatch")

// SQLiteStorage persists taxonomy snapshots in a SQLite database.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &SQLiteStorage{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string { return s.path }

func (s *SQLiteStorage) initSchema(ctx context.Context) error {
	var tableExists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Get returns the snapshot stored under key.
func (s *SQLiteStorage) Get(ctx context.Context, key string) ([]Taxon, bool, error) {
	var fetched string
	err := s.db.QueryRowContext(ctx, "SELECT fetched_at FROM taxonomy_snapshots WHERE month_key = ?", key).Scan(&fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT species_code, sci_name, com_name FROM taxa WHERE month_key = ? ORDER BY rowid", key)
	if err != nil {
		return nil, false, fmt.Errorf("query taxa: %w", err)
	}
	defer rows.Close()
	var taxa []Taxon
	for rows.Next() {
		var t Taxon
		if err := rows.Scan(&t.SpeciesCode, &t.SciName, &t.ComName); err != nil {
			return nil, false, fmt.Errorf("scan taxon: %w", err)
		}
		taxa = append(taxa, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate taxa: %w", err)
	}
	return taxa, true, nil
}

// Put replaces the snapshot under key and drops snapshots for other months.
func (s *SQLiteStorage) Put(ctx context.Context, key string, taxa []Taxon) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM taxa"); err != nil {
		return fmt.Errorf("clear taxa: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM taxonomy_snapshots"); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO taxonomy_snapshots (month_key, fetched_at) VALUES (?, ?)",
		key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO taxa (month_key, species_code, sci_name, com_name) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range taxa {
		if t.SpeciesCode == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, key, t.SpeciesCode, t.SciName, t.ComName); err != nil {
			return fmt.Errorf("insert taxon %s: %w", t.SpeciesCode, err)
		}
	}
	return tx.Commit()
}
