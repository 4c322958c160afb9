package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nehilsa2/resume_automation/search"
)

// RunStatus constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("search run not found")

// Run is one search execution and its outcome.
type Run struct {
	ID               string         `json:"id"`
	Filters          search.Filters `json:"filters"`
	Status           string         `json:"status"`
	Pages            int            `json:"pages"`
	Cards            int            `json:"cards"`
	Emitted          int            `json:"emitted"`
	Skipped          int            `json:"skipped"`
	MissingDocuments int            `json:"missing_documents"`
	CSVPath          string         `json:"csv_path,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// StartRun records a new running search and counts it in today's stats.
func (s *Store) StartRun(ctx context.Context, id string, f search.Filters) (*Run, error) {
	run := &Run{ID: id, Filters: f, Status: RunStatusRunning, StartedAt: s.now()}
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO search_runs (
				id, keywords, location, experience_years, education_level,
				status, started_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, f.Keywords, f.Location, f.ExperienceYears, string(f.EducationLevel),
			run.Status, formatTime(run.StartedAt))
		if err != nil {
			return err
		}
		return s.addDailyStat(ctx, tx, "searches", 1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start run %s: %w", id, err)
	}
	return run, nil
}

// CompleteRun stores the report of a finished search.
func (s *Store) CompleteRun(ctx context.Context, id string, rep search.Report, csvPath string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE search_runs SET
			status = ?, pages = ?, cards = ?, emitted = ?, skipped = ?,
			missing_documents = ?, csv_path = ?, finished_at = ?
		WHERE id = ?
	`, RunStatusCompleted, rep.Pages, rep.Cards, rep.Emitted, rep.Skipped,
		rep.MissingDocuments, csvPath, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", id, err)
	}
	return expectOne(res, id)
}

// FailRun marks a run as failed with the error that stopped it.
func (s *Store) FailRun(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE search_runs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, RunStatusFailed, msg, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to fail run %s: %w", id, err)
	}
	return expectOne(res, id)
}

// FailInterrupted marks every run still "running" as failed. A process
// calls it on startup: runs left running belong to a process that died.
func (s *Store) FailInterrupted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE search_runs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE status = ?
	`, RunStatusFailed, "interrupted", formatTime(s.now()), RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to close interrupted runs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Run returns the run with id.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, runColumns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, runColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveCandidates stores the records of a run in one batch, in order, and
// adds them to today's stats.
func (s *Store) SaveCandidates(ctx context.Context, runID string, records []search.Candidate) error {
	if len(records) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candidates (
				run_id, position, name, email, phone, resume_path, extracted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, position) DO UPDATE SET
				name = excluded.name,
				email = excluded.email,
				phone = excluded.phone,
				resume_path = excluded.resume_path,
				extracted_at = excluded.extracted_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		documents := 0
		for i, c := range records {
			if c.DocumentPath != "" {
				documents++
			}
			_, err := stmt.ExecContext(ctx, runID, i, c.Name, c.Email, c.Phone,
				c.DocumentPath, formatTime(c.ExtractedAt))
			if err != nil {
				return fmt.Errorf("failed to save candidate %q: %w", c.Name, err)
			}
		}

		if err := s.addDailyStat(ctx, tx, "candidates", len(records)); err != nil {
			return err
		}
		return s.addDailyStat(ctx, tx, "documents", documents)
	})
}

// CandidatesForRun returns the records of a run in the order they were
// collected.
func (s *Store) CandidatesForRun(ctx context.Context, runID string) ([]search.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, email, phone, resume_path, extracted_at
		FROM candidates
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []search.Candidate
	for rows.Next() {
		var c search.Candidate
		var email, phone, resumePath sql.NullString
		var extractedAt string
		if err := rows.Scan(&c.Name, &email, &phone, &resumePath, &extractedAt); err != nil {
			return nil, err
		}
		c.Email, c.Phone, c.DocumentPath = email.String, phone.String, resumePath.String
		if c.ExtractedAt, err = parseTime(extractedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const runColumns = `
	SELECT id, keywords, location, experience_years, education_level, status,
		   pages, cards, emitted, skipped, missing_documents, csv_path,
		   started_at, finished_at, error_message
	FROM search_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var (
		education, csvPath, finishedAt, errorMessage sql.NullString
		startedAt                                    string
	)
	err := row.Scan(
		&run.ID, &run.Filters.Keywords, &run.Filters.Location, &run.Filters.ExperienceYears,
		&education, &run.Status, &run.Pages, &run.Cards, &run.Emitted, &run.Skipped,
		&run.MissingDocuments, &csvPath, &startedAt, &finishedAt, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	run.Filters.EducationLevel = search.Education(education.String)
	run.CSVPath = csvPath.String
	run.ErrorMessage = errorMessage.String
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return run, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
