// Package history keeps a SQLite ledger of rendered documents so operators
// can see what was produced, when, and why a render failed.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Outcome is the result of a render.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Kind says what a render produced.
type Kind string

const (
	KindPDF Kind = "pdf"
	KindCSV Kind = "csv"
)

// Record is one render attempt.
type Record struct {
	ID        string
	RenderID  string
	Template  string
	Output    string
	Kind      Kind
	Outcome   Outcome
	Error     string
	ErrorType string
	Pages     int
	Bytes     int64
	Figures   int
	Clipped   int
	Duration  time.Duration
	StartedAt time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Template string
	Outcome  Outcome
	Since    time.Time
	Limit    int
}

// Config holds configuration for the history store
type Config struct {
	DBPath    string
	Retention time.Duration // Records older than this are pruned on open
}

// DefaultConfig returns sensible defaults for the history store
func DefaultConfig(dataDir string) Config {
	return Config{
		DBPath:    filepath.Join(dataDir, "history.db"),
		Retention: 90 * 24 * time.Hour,
	}
}

// Store provides persistent render history
type Store struct {
	db     *sql.DB
	config Config

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the history database and applies retention.
func Open(ctx context.Context, config Config) (*Store, error) {
	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, config: config}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if config.Retention > 0 {
		if _, err := store.Prune(ctx, time.Now().Add(-config.Retention)); err != nil {
			log.Warn().Err(err).Msg("Failed to apply history retention")
		}
	}

	log.Debug().
		Str("path", config.DBPath).
		Dur("retention", config.Retention).
		Msg("History store opened")

	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS renders (
			id TEXT PRIMARY KEY,
			render_id TEXT NOT NULL,
			template TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'pdf',
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			error_type TEXT NOT NULL DEFAULT '',
			pages INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			figures INTEGER NOT NULL DEFAULT 0,
			clipped INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_renders_started
		ON renders(started_at);

		CREATE INDEX IF NOT EXISTS idx_renders_template
		ON renders(template, started_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Add stores rec, assigning an ID and start time when they are unset. It
// returns the record ID.
func (s *Store) Add(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.Kind == "" {
		rec.Kind = KindPDF
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO renders (id, render_id, template, output, kind, outcome, error, error_type,
			pages, bytes, figures, clipped, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RenderID, rec.Template, rec.Output, string(rec.Kind), string(rec.Outcome),
		rec.Error, rec.ErrorType, rec.Pages, rec.Bytes, rec.Figures, rec.Clipped,
		rec.Duration.Milliseconds(), rec.StartedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert history record: %w", err)
	}
	return rec.ID, nil
}

// List returns records matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Template != "" {
		where = append(where, "template = ?")
		args = append(args, f.Template)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if !f.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	query := `SELECT id, render_id, template, output, kind, outcome, error, error_type,
		pages, bytes, figures, clipped, duration_ms, started_at FROM renders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// ULIDs sort by creation time within the same millisecond.
	query += " ORDER BY started_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec              Record
			kind, outcome    string
			durationMs, tsMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.RenderID, &rec.Template, &rec.Output, &kind, &outcome,
			&rec.Error, &rec.ErrorType, &rec.Pages, &rec.Bytes, &rec.Figures, &rec.Clipped,
			&durationMs, &tsMs); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Kind = Kind(kind)
		rec.Outcome = Outcome(outcome)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.StartedAt = time.UnixMilli(tsMs)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM renders WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned render history")
	}
	return n, nil
}

// Stats holds history store statistics
type Stats struct {
	DBPath     string
	DBSize     int64
	Renders    int64
	Failures   int64
	Pages      int64
	Bytes      int64
	Oldest     time.Time
	LastRender time.Time
}

// GetStats returns storage statistics
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{DBPath: s.config.DBPath}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(pages), 0),
			COALESCE(SUM(bytes), 0),
			MIN(started_at),
			MAX(started_at)
		FROM renders`).Scan(&stats.Renders, &stats.Failures, &stats.Pages, &stats.Bytes, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("failed to read history stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		stats.LastRender = time.UnixMilli(newest.Int64)
	}

	if fi, err := os.Stat(s.config.DBPath); err == nil {
		stats.DBSize = fi.Size()
	}
	return stats, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
