package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
)

const createRatioTable = `
CREATE TABLE IF NOT EXISTS filler_ratios (
	identity   TEXT PRIMARY KEY,
	ratio      REAL NOT NULL,
	samples    INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteRatioCache implements ports.RatioCache on a SQLite database file.
type SQLiteRatioCache struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

// Ensure SQLiteRatioCache implements ports.RatioCache.
var _ ports.RatioCache = (*SQLiteRatioCache)(nil)

// OpenSQLiteRatioCache opens (creating if needed) the database at path.
func OpenSQLiteRatioCache(path string) (*SQLiteRatioCache, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ratio cache: empty path")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with a single connection
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}

	if _, err := db.Exec(createRatioTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create filler_ratios table: %w", err)
	}

	return &SQLiteRatioCache{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteRatioCache) Path() string {
	return s.path
}

// Get returns the entry for identity.
func (s *SQLiteRatioCache) Get(ctx context.Context, identity string) (*ports.RatioEntry, bool) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, ratio, samples, updated_at
		FROM filler_ratios
		WHERE identity = ?
	`, identity)

	var e ports.RatioEntry
	if err := row.Scan(&e.Identity, &e.Ratio, &e.Samples, &e.UpdatedAt); err != nil {
		return nil, false
	}
	return &e, true
}

// Observe folds ratio into the running average for identity.
func (s *SQLiteRatioCache) Observe(ctx context.Context, identity string, ratio float64) error {
	if !validRatio(ratio) {
		return ErrInvalidRatio
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		mean    float64
		samples int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT ratio, samples FROM filler_ratios WHERE identity = ?`, identity,
	).Scan(&mean, &samples)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read ratio: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO filler_ratios (identity, ratio, samples, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			ratio = excluded.ratio,
			samples = excluded.samples,
			updated_at = excluded.updated_at
	`, identity, runningMean(mean, samples, ratio), samples+1, s.now().UTC())
	if err != nil {
		return fmt.Errorf("write ratio: %w", err)
	}

	return tx.Commit()
}

// List returns all entries ordered by identity.
func (s *SQLiteRatioCache) List(ctx context.Context) ([]ports.RatioEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, ratio, samples, updated_at
		FROM filler_ratios
		ORDER BY identity
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.RatioEntry
	for rows.Next() {
		var e ports.RatioEntry
		if err := rows.Scan(&e.Identity, &e.Ratio, &e.Samples, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes all entries.
func (s *SQLiteRatioCache) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filler_ratios`)
	return err
}

// Close closes the database.
func (s *SQLiteRatioCache) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
