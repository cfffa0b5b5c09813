// Package store persists suggestions, command history and environment facts
// in a single SQLite database.
//
// Every process opens one connection. Transactions are started with
// BEGIN IMMEDIATE so the write lock is taken up front and concurrent
// invocations serialize instead of losing increments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

const (
	schemaVersion    = 2
	defaultBusyMilli = 5000
	// timeLayout is fixed width so lexical order matches chronological order.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Options configures Open.
type Options struct {
	Path          string
	BusyTimeoutMS int
	Clock         func() time.Time
	Logger        ports.Logger
}

// Store is the SQLite-backed persistent store.
type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger ports.Logger
}

// Open creates (or opens) the database and migrates it to the current schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, &domain.StoreError{Op: "open", Err: errors.New("database path is empty")}
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), domain.DirectoryPermissions); err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyMilli
	}

	db, err := sql.Open("sqlite", dsn(opts.Path, busy))
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: opts.Path, now: opts.Clock, logger: opts.Logger}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.StoreError{Op: "migrate", Err: err}
	}
	return s, nil
}

func dsn(path string, busyMS int) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the sqlite database path.
func (s *Store) Path() string {
	return s.path
}

// SchemaVersion reports the migrated schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, wrap("schema version", err)
	}
	return v, nil
}

func (s *Store) migrate(ctx context.Context) error {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS suggestions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			prompt_hash TEXT NOT NULL,
			prompt TEXT NOT NULL,
			suggestion TEXT NOT NULL,
			explanation TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_used TEXT NOT NULL,
			use_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command TEXT NOT NULL,
			prompt TEXT,
			success INTEGER NOT NULL DEFAULT 0,
			exit_code INTEGER,
			executed_at TEXT NOT NULL,
			context_snapshot TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS environment (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			detected_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}

	// Databases written by earlier releases lack some columns and store
	// timestamps as "YYYY-MM-DD HH:MM:SS".
	columns := []struct{ table, name, definition string }{
		{"suggestions", "explanation", "TEXT"},
		{"suggestions", "success_count", "INTEGER NOT NULL DEFAULT 0"},
		{"history", "prompt", "TEXT"},
		{"history", "executed_at", "TEXT NOT NULL DEFAULT ''"},
		{"history", "exit_code", "INTEGER"},
		{"history", "context_snapshot", "TEXT"},
		{"environment", "detected_at", "TEXT NOT NULL DEFAULT ''"},
		{"environment", "updated_at", "TEXT NOT NULL DEFAULT ''"},
	}
	added := make(map[string]bool)
	for _, c := range columns {
		ok, err := addColumnIfNotExists(ctx, tx, c.table, c.name, c.definition)
		if err != nil {
			return fmt.Errorf("add column %s.%s: %w", c.table, c.name, err)
		}
		added[c.table+"."+c.name] = ok
	}
	if added["suggestions.success_count"] {
		legacyRate, err := hasColumn(ctx, tx, "suggestions", "success_rate")
		if err != nil {
			return fmt.Errorf("inspect suggestions: %w", err)
		}
		if legacyRate {
			if _, err := tx.ExecContext(ctx, `UPDATE suggestions
				SET success_count = CAST(ROUND(COALESCE(success_rate, 0) * use_count) AS INTEGER)
				WHERE use_count > 0`); err != nil {
				return fmt.Errorf("derive success counts: %w", err)
			}
		}
	}

	for _, stmt := range []string{
		`UPDATE suggestions SET created_at = COALESCE(strftime('%Y-%m-%dT%H:%M:%S.000000000Z', created_at), strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now')) WHERE created_at NOT LIKE '%T%'`,
		`UPDATE suggestions SET last_used = COALESCE(strftime('%Y-%m-%dT%H:%M:%S.000000000Z', last_used), strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now')) WHERE last_used NOT LIKE '%T%'`,
		`UPDATE history SET executed_at = COALESCE(strftime('%Y-%m-%dT%H:%M:%S.000000000Z', executed_at), strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now')) WHERE executed_at NOT LIKE '%T%'`,
		`UPDATE environment SET updated_at = strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now') WHERE updated_at = ''`,
		`UPDATE environment SET detected_at = updated_at WHERE detected_at = ''`,
		`UPDATE suggestions SET success_count = use_count WHERE success_count > use_count`,
		`DELETE FROM suggestions WHERE id NOT IN (SELECT MAX(id) FROM suggestions GROUP BY prompt_hash, suggestion)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_suggestions_identity ON suggestions(prompt_hash, suggestion)`,
		`CREATE INDEX IF NOT EXISTS idx_history_executed_at ON history(executed_at)`,
		fmt.Sprintf("PRAGMA user_version = %d", schemaVersion),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue any
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// addColumnIfNotExists reports whether the column had to be added.
func addColumnIfNotExists(ctx context.Context, tx *sql.Tx, table, column, definition string) (bool, error) {
	exists, err := hasColumn(ctx, tx, table, column)
	if err != nil || exists {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}

func (s *Store) debug(msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, fields)
	}
}
