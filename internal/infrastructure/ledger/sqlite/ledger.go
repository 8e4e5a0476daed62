package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEntryNotFound is returned by Get for an unknown item id.
var ErrEntryNotFound = errors.New("ledger entry not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is the uploader's record of one submitted file.
type Entry struct {
	ItemID       string    `json:"item_id"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	MediaType    string    `json:"media_type"`
	DocumentID   string    `json:"document_id,omitempty"`
	Status       string    `json:"status"`
	DocumentType string    `json:"document_type,omitempty"`
	Department   string    `json:"department,omitempty"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ledger stores upload history in a local SQLite database.
type Ledger struct {
	db   *sql.DB
	path string
}

func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory %q: %w", dir, err)
	}
	dbPath := filepath.Join(dir, "uploads.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Ledger{db: db, path: dbPath}
	if err := l.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS uploads (
    item_id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    media_type TEXT NOT NULL DEFAULT '',
    document_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    document_type TEXT NOT NULL DEFAULT '',
    department TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
CREATE INDEX IF NOT EXISTS idx_uploads_document ON uploads(document_id);`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// Record inserts or replaces the entry for e.ItemID.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.ItemID) == "" {
		return errors.New("record upload: item id is required")
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	const query = `
INSERT INTO uploads (item_id, filename, size, media_type, document_id, status, document_type, department, error, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(item_id) DO UPDATE SET
    filename = excluded.filename,
    size = excluded.size,
    media_type = excluded.media_type,
    document_id = excluded.document_id,
    status = excluded.status,
    document_type = excluded.document_type,
    department = excluded.department,
    error = excluded.error,
    updated_at = excluded.updated_at`
	err := retryOnBusy(ctx, func() error {
		_, execErr := l.db.ExecContext(ctx, query,
			e.ItemID, e.Filename, e.Size, e.MediaType, e.DocumentID, e.Status,
			e.DocumentType, e.Department, e.Error, e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("record upload %s: %w", e.ItemID, err)
	}
	return nil
}

// List returns entries newest first. limit <= 0 returns everything.
func (l *Ledger) List(ctx context.Context, failedOnly bool, limit int) ([]Entry, error) {
	query := `SELECT item_id, filename, size, media_type, document_id, status, document_type, department, error, updated_at FROM uploads`
	args := []any{}
	if failedOnly {
		query += ` WHERE status = ?`
		args = append(args, "failed")
	}
	query += ` ORDER BY updated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return entries, nil
}

func (l *Ledger) Get(ctx context.Context, itemID string) (Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT item_id, filename, size, media_type, document_id, status, document_type, department, error, updated_at FROM uploads WHERE item_id = ?`,
		itemID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		updated string
	)
	if err := s.Scan(&e.ItemID, &e.Filename, &e.Size, &e.MediaType, &e.DocumentID, &e.Status,
		&e.DocumentType, &e.Department, &e.Error, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan upload: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		e.UpdatedAt = ts
	}
	return e, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
