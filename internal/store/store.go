// Package store implements the fingerprint backend: a key-value store
// mapping tracked-object key to the compare-sequence observed at the last
// successful run. It is the sole mechanism for incremental skipping.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

// Backend is the narrow fingerprint-store contract the DAG/change-tracker
// depends on. Callers may supply their own implementation in place of
// SQLiteBackend.
type Backend interface {
	// Save records the compare-sequence observed for each key. len(keys)
	// must equal len(compares).
	Save(ctx context.Context, keys []string, compares [][]any) error

	// Lookup returns the compare-sequence last saved for key, or ok=false
	// if nothing has ever been saved for it.
	Lookup(ctx context.Context, key string) (compare []any, ok bool, err error)

	Close() error
}

// SQLiteBackend implements Backend on top of modernc.org/sqlite, grounded
// on the teacher's persistence.SQLiteStore (WAL mode, busy timeout, shared
// in-memory mode for tests).
type SQLiteBackend struct {
	db *sql.DB
}

// EnvBackendDir is the environment variable that overrides the default
// on-disk fingerprint store directory (spec.md §6, "storage_backend").
const EnvBackendDir = "ANADAMA_BACKEND_DIR"

// DefaultDir resolves the platform-appropriate directory for the
// fingerprint store when ANADAMA_BACKEND_DIR is unset, using xdg's data
// home the way a well-behaved CLI tool picks a default cache location.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvBackendDir); dir != "" {
		return dir, nil
	}
	return filepath.Join(xdg.DataHome, "anadama"), nil
}

// NewSQLiteBackend opens (creating if needed) a fingerprint store at
// dbPath. Parent directories are created as needed.
func NewSQLiteBackend(ctx context.Context, dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating backend directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening fingerprint store: %w", err)
	}
	db.SetMaxOpenConns(2)

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewMemoryBackend opens an in-memory, shared-cache SQLite fingerprint
// store, intended for tests.
func NewMemoryBackend(ctx context.Context) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory fingerprint store: %w", err)
	}
	db.SetMaxOpenConns(2)

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fingerprints (
			key TEXT PRIMARY KEY,
			compare_json TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("initializing fingerprint schema: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Save(ctx context.Context, keys []string, compares [][]any) error {
	if len(keys) != len(compares) {
		return fmt.Errorf("store: %d keys but %d compare-sequences", len(keys), len(compares))
	}
	if len(keys) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning fingerprint transaction: %w", err)
	}
	defer tx.Rollback()

	for i, key := range keys {
		encoded, err := json.Marshal(compares[i])
		if err != nil {
			return fmt.Errorf("encoding compare-sequence for %s: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fingerprints (key, compare_json, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET
				compare_json = excluded.compare_json,
				updated_at = CURRENT_TIMESTAMP
		`, key, string(encoded))
		if err != nil {
			return fmt.Errorf("saving fingerprint for %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing fingerprint transaction: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Lookup(ctx context.Context, key string) ([]any, bool, error) {
	var encoded string
	err := b.db.QueryRowContext(ctx, `SELECT compare_json FROM fingerprints WHERE key = ?`, key).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up fingerprint for %s: %w", key, err)
	}

	// UseNumber keeps each element a json.Number (its original literal
	// digits) instead of decoding into float64, which loses precision past
	// 2^53 -- exactly the range a real int64 nanosecond mtime lives in.
	// Without it, Equal's marshal-and-compare would see a rounded
	// value here against the freshly computed exact int64 from the other
	// side and wrongly call an unchanged file "changed" on every run.
	dec := json.NewDecoder(strings.NewReader(encoded))
	dec.UseNumber()
	var compare []any
	if err := dec.Decode(&compare); err != nil {
		return nil, false, fmt.Errorf("decoding fingerprint for %s: %w", key, err)
	}
	return compare, true, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
