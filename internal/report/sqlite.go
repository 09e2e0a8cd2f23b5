package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deixis/rcpt/internal/receipt"
	"github.com/deixis/rcpt/internal/runner"

	_ "modernc.org/sqlite"
)

// timeLayout has a fixed-width fraction so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps run history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and ensures the schema exists.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating history: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS receipts (
		run_id      TEXT PRIMARY KEY,
		digest      TEXT NOT NULL,
		path        TEXT NOT NULL,
		command     TEXT NOT NULL,
		exit_code   INTEGER NOT NULL,
		signal      INTEGER NOT NULL DEFAULT 0,
		start_time  TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		recorded_at TEXT NOT NULL,
		body        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS receipts_recorded_at ON receipts (recorded_at)`,
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts or replaces the entry for entry.RunID.
func (s *SQLiteStore) Save(ctx context.Context, entry *Entry) error {
	body, err := json.Marshal(entry.Receipt)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", entry.RunID, err)
	}
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	query := `INSERT OR REPLACE INTO receipts (
		run_id, digest, path, command, exit_code, signal, start_time, duration_ms, recorded_at, body
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		entry.RunID,
		entry.Digest,
		entry.Path,
		entry.Receipt.Command,
		entry.Receipt.ExitCode,
		entry.Signal(),
		entry.Receipt.StartTime.UTC().Format(timeLayout),
		entry.Receipt.DurationMS,
		recordedAt.UTC().Format(timeLayout),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", entry.RunID, err)
	}
	return nil
}

// Load returns the entry for runID, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, digest, path, signal, recorded_at, body
		FROM receipts
		WHERE run_id = ?`, runID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return entry, nil
}

// List returns up to limit entries, most recently recorded first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, digest, path, signal, recorded_at, body
		FROM receipts
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e          Entry
		signal     int
		recordedAt string
		body       string
	)
	if err := row.Scan(&e.RunID, &e.Digest, &e.Path, &signal, &recordedAt, &body); err != nil {
		return nil, err
	}

	var r receipt.Receipt
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", e.RunID, err)
	}
	if signal > 0 {
		r.Outcome = runner.Signaled{Signal: syscall.Signal(signal)}
	} else {
		r.Outcome = runner.Exited{Code: r.ExitCode}
	}
	e.Receipt = &r

	t, err := time.Parse(timeLayout, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", e.RunID, err)
	}
	e.RecordedAt = t
	return &e, nil
}
