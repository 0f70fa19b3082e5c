package oracle

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/spf13/afero"

	"ptscheck/services/duration"
)

const (
	maxExportSize     = 100 * 1024 * 1024 // 100 MB max
	defaultRetryDelay = time.Second
)

//go:embed migrations/*.sql
var migrations embed.FS

// ImportResult summarises one import of the content database export.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Store persists reference durations keyed by content id.
type Store struct {
	db         *sql.DB
	fs         afero.Fs
	client     *http.Client
	retryDelay time.Duration
}

// Open opens (and migrates) the SQLite database at path. Use ":memory:" for
// a throwaway store. Export files are read from fsys.
func Open(ctx context.Context, path string, fsys afero.Fs) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		fs:         fsys,
		client:     &http.Client{},
		retryDelay: defaultRetryDelay,
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	for _, r := range results {
		log.Printf("[oracle] applied migration %s", r.Source.Path)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Import upserts records. A later import replaces the runtime of ids it
// carries and leaves other ids untouched.
func (s *Store) Import(ctx context.Context, records []Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO content_durations (content_id, title, filename, runtime_ms, imported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			title = excluded.title,
			filename = excluded.filename,
			runtime_ms = excluded.runtime_ms,
			imported_at = excluded.imported_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ContentID, rec.Title, rec.Filename, rec.Runtime.Milliseconds(), now); err != nil {
			return 0, fmt.Errorf("import %s: %w", rec.ContentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(records), nil
}

// ImportCSV parses an export and stores its records.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	records, skipped, err := ParseCSV(io.LimitReader(r, maxExportSize))
	if err != nil {
		return ImportResult{}, err
	}
	imported, err := s.Import(ctx, records)
	if err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{Imported: imported, Skipped: skipped}
	slog.Info("content durations imported", "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

// ImportFile imports the export at path.
func (s *Store) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()
	return s.ImportCSV(ctx, f)
}

// Fetch downloads the export from url and imports it, retrying transient
// failures with exponential backoff. Client errors are not retried.
func (s *Store) Fetch(ctx context.Context, url string, attempts uint) (ImportResult, error) {
	if attempts == 0 {
		attempts = 1
	}
	body, err := retry.DoWithData(
		func() ([]byte, error) { return s.download(ctx, url) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[oracle] fetch attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return ImportResult{}, fmt.Errorf("fetch content durations: %w", err)
	}
	return s.ImportCSV(ctx, bytes.NewReader(body))
}

func (s *Store) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("content database returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxExportSize))
}

// Lookup returns the reference duration of one content id.
func (s *Store) Lookup(ctx context.Context, contentID string) (time.Duration, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT runtime_ms FROM content_durations WHERE content_id = ?`, contentID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s: %w", contentID, err)
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

// Count returns the number of stored content ids.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_durations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content durations: %w", err)
	}
	return n, nil
}

// Snapshot loads the whole table into memory so validation never touches
// the database.
func (s *Store) Snapshot(ctx context.Context) (duration.Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content_id, runtime_ms FROM content_durations`)
	if err != nil {
		return nil, fmt.Errorf("snapshot content durations: %w", err)
	}
	defer rows.Close()

	table := make(duration.Table)
	for rows.Next() {
		var (
			id string
			ms int64
		)
		if err := rows.Scan(&id, &ms); err != nil {
			return nil, fmt.Errorf("scan content duration: %w", err)
		}
		table[id] = time.Duration(ms) * time.Millisecond
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot content durations: %w", err)
	}
	return table, nil
}

// Refresh fetches the export from url and publishes a fresh snapshot to
// live. The previous table stays in place when the fetch fails.
func (s *Store) Refresh(ctx context.Context, url string, attempts uint, live *duration.Live) (int, error) {
	result, err := s.Fetch(ctx, url, attempts)
	if err != nil {
		return 0, err
	}
	table, err := s.Snapshot(ctx)
	if err != nil {
		return result.Imported, err
	}
	live.Replace(table)
	slog.Info("duration oracle refreshed", "imported", result.Imported, "skipped", result.Skipped, "entries", len(table))
	return result.Imported, nil
}
