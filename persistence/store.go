// Package persistence provides SQLite-based storage for search runs and the
// candidates they collected.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	DefaultDBPath = "data/resume_automation.db"
)

// Store handles all persistence operations using SQLite
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStore opens (and creates when needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the HTTP server read stats while a run is writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file the store was opened on.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS search_runs (
			id TEXT PRIMARY KEY,
			keywords TEXT NOT NULL,
			location TEXT NOT NULL,
			experience_years INTEGER DEFAULT 0,
			education_level TEXT,
			status TEXT DEFAULT 'running',
			pages INTEGER DEFAULT 0,
			cards INTEGER DEFAULT 0,
			emitted INTEGER DEFAULT 0,
			skipped INTEGER DEFAULT 0,
			missing_documents INTEGER DEFAULT 0,
			csv_path TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			error_message TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS candidates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES search_runs(id),
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			resume_path TEXT,
			extracted_at TEXT NOT NULL,
			UNIQUE(run_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS daily_stats (
			date TEXT PRIMARY KEY,
			searches INTEGER DEFAULT 0,
			candidates INTEGER DEFAULT 0,
			documents INTEGER DEFAULT 0
		)`,
	}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_search_runs_status ON search_runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_search_runs_started_at ON search_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_run ON candidates(run_id)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Transaction executes fn within a database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) today() string {
	return s.now().Format(time.DateOnly)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// addDailyStat adds n to one of today's counters. field is always one of the
// daily_stats column names below, never user input.
func (s *Store) addDailyStat(ctx context.Context, db execer, field string, n int) error {
	if n == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO daily_stats (date, %s) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET %s = daily_stats.%s + excluded.%s
	`, field, field, field, field)
	_, err := db.ExecContext(ctx, query, s.today(), n)
	return err
}

// DailyStats counts the work done on one day.
type DailyStats struct {
	Date       string `json:"date"`
	Searches   int    `json:"searches"`
	Candidates int    `json:"candidates"`
	Documents  int    `json:"documents"`
}

// DailyStats returns the counters for date (YYYY-MM-DD), or for today when
// date is empty. A day without activity yields zero counters.
func (s *Store) DailyStats(ctx context.Context, date string) (*DailyStats, error) {
	if date == "" {
		date = s.today()
	}
	stats := &DailyStats{Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT searches, candidates, documents
		FROM daily_stats
		WHERE date = ?
	`, date).Scan(&stats.Searches, &stats.Candidates, &stats.Documents)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daily stats: %w", err)
	}
	return stats, nil
}

// WeeklyStats returns the counters of the last seven days, newest first.
func (s *Store) WeeklyStats(ctx context.Context) ([]DailyStats, error) {
	since := s.now().AddDate(0, 0, -7).Format(time.DateOnly)
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, searches, candidates, documents
		FROM daily_stats
		WHERE date >= ?
		ORDER BY date DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []DailyStats
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Date, &d.Searches, &d.Candidates, &d.Documents); err != nil {
			return nil, err
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}
