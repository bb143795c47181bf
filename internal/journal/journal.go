// Package journal records executed and rejected host actions in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultFileName is the SQLite filename under the state directory.
	DefaultFileName = "journal.db"
	// DefaultRetention bounds how long entries are kept before pruning.
	DefaultRetention = 90 * 24 * time.Hour
	// DefaultLimit is the history size returned when none is requested.
	DefaultLimit = 20
)

// Outcome classifies one journaled action.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Entry is one journaled action.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	Action    string    `json:"action" yaml:"action"`
	Transport string    `json:"transport" yaml:"transport"`
	Remote    string    `json:"remote,omitempty" yaml:"remote,omitempty"`
	Outcome   Outcome   `json:"outcome" yaml:"outcome"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS actions (
  id         TEXT PRIMARY KEY,
  action     TEXT NOT NULL,
  transport  TEXT NOT NULL,
  remote     TEXT NOT NULL DEFAULT '',
  outcome    TEXT NOT NULL CHECK(outcome IN ('success','rejected','failed')),
  message    TEXT NOT NULL DEFAULT '',
  timestamp  INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_actions_time
ON actions (timestamp DESC, id);
`,
}

// Store wraps the journal database.
type Store struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
	closeOnce sync.Once
}

// Open opens (or creates) journal.db under dir and runs migrations.
func Open(dir string) (*Store, string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create journal directory: %w", err)
	}

	path := filepath.Join(dir, DefaultFileName)
	store, err := OpenPath(path)
	if err != nil {
		return nil, "", err
	}
	return store, path, nil
}

// OpenPath opens SQLite at an explicit path and runs schema migrations.
func OpenPath(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	store := &Store{db: db, retention: DefaultRetention, now: time.Now}
	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
		closeErr = s.db.Close()
	})
	return closeErr
}

// SetRetention changes the pruning horizon applied on every Record.
// Non-positive values disable pruning.
func (s *Store) SetRetention(retention time.Duration) {
	s.retention = retention
}

// Record inserts entry, filling the id and timestamp when unset, and prunes
// entries older than the retention horizon.
func (s *Store) Record(ctx context.Context, entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return Entry{}, errors.New("journal: action is required")
	}
	switch entry.Outcome {
	case OutcomeSuccess, OutcomeRejected, OutcomeFailed:
	default:
		return Entry{}, fmt.Errorf("journal: invalid outcome %q", entry.Outcome)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (id, action, transport, remote, outcome, message, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Action,
		entry.Transport,
		entry.Remote,
		string(entry.Outcome),
		entry.Message,
		entry.Timestamp.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert journal entry %q: %w", entry.ID, err)
	}

	if s.retention > 0 {
		if _, err := s.Prune(ctx, s.now().Add(-s.retention)); err != nil {
			return Entry{}, fmt.Errorf("prune journal: %w", err)
		}
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, transport, remote, outcome, message, timestamp
		 FROM actions
		 ORDER BY timestamp DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry   Entry
			outcome string
			millis  int64
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Transport, &entry.Remote, &outcome, &entry.Message, &millis); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Outcome = Outcome(outcome)
		entry.Timestamp = time.UnixMilli(millis).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete journal entries: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}
	return nil
}

func (s *Store) enableWALMode() error {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", mode)
	}
	return nil
}
