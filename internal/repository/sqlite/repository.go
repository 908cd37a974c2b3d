package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianbeese/tennis_bot/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	dayLayout = "2006-01-02"

	// fixed width so text order is time order
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Repository stores the booking history
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite repository and runs migrations
func New(dbPath string) (*Repository, error) {
	if !strings.HasPrefix(dbPath, "file:") && dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection
	db.SetMaxOpenConns(1)

	// Enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	migration, err := migrationsFS.ReadFile("migrations/001_initial.sql")
	if err != nil {
		return err
	}
	_, err = r.db.Exec(string(migration))
	return err
}

// Run methods

// RecordRunStart inserts a run in the running state
func (r *Repository) RecordRunStart(ctx context.Context, run *domain.RunRecord) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, target_date, dry_run, status, attempts, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.RunID, run.TargetDate.Format(dayLayout), run.DryRun, run.Status, run.Attempts, run.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	id, _ := result.LastInsertId()
	run.ID = id
	return nil
}

// RecordRunEnd stores the final state of a run
func (r *Repository) RecordRunEnd(ctx context.Context, runID, status, reason string, attempts int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, reason = ?, attempts = ?, finished_at = ?
		WHERE run_id = ?
	`, status, nullableString(reason), attempts, r.now().UTC().Format(timeLayout), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, target_date, dry_run, status, reason, attempts, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var run domain.RunRecord
		var targetDate, startedAt string
		var reason, finishedAt sql.NullString

		if err := rows.Scan(
			&run.ID, &run.RunID, &targetDate, &run.DryRun, &run.Status,
			&reason, &run.Attempts, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}

		run.Reason = reason.String
		if run.TargetDate, err = time.ParseInLocation(dayLayout, targetDate, time.Local); err != nil {
			return nil, fmt.Errorf("run %s target date: %w", run.RunID, err)
		}
		if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("run %s start: %w", run.RunID, err)
		}
		if finishedAt.Valid {
			if run.FinishedAt, err = time.Parse(timeLayout, finishedAt.String); err != nil {
				return nil, fmt.Errorf("run %s end: %w", run.RunID, err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Booking methods

// RecordBooking stores a confirmed reservation
func (r *Repository) RecordBooking(ctx context.Context, b *domain.BookingRecord) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO bookings (run_id, location, hour, target_date, address, date_text, court_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, b.RunID, b.Location, b.Hour, b.TargetDate.Format(dayLayout),
		nullableString(b.Address), nullableString(b.DateText), nullableString(b.CourtText),
		b.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	id, _ := result.LastInsertId()
	b.ID = id
	return nil
}

// HasBookingFor reports whether a reservation already exists for day
func (r *Repository) HasBookingFor(ctx context.Context, day time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM bookings WHERE target_date = ?)", day.Format(dayLayout),
	).Scan(&exists)
	return exists, err
}

// LatestBooking returns the most recent reservation, or nil when there is none
func (r *Repository) LatestBooking(ctx context.Context) (*domain.BookingRecord, error) {
	var b domain.BookingRecord
	var targetDate, createdAt string
	var address, dateText, courtText sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, location, hour, target_date, address, date_text, court_text, created_at
		FROM bookings ORDER BY created_at DESC, id DESC LIMIT 1
	`).Scan(&b.ID, &b.RunID, &b.Location, &b.Hour, &targetDate, &address, &dateText, &courtText, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b.Address, b.DateText, b.CourtText = address.String, dateText.String, courtText.String
	if b.TargetDate, err = time.ParseInLocation(dayLayout, targetDate, time.Local); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// ActivityLog methods

// LogActivity appends one journal entry
func (r *Repository) LogActivity(ctx context.Context, log *domain.ActivityLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log (run_id, action, details, error_msg, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullableString(log.RunID), log.Action, nullableString(log.Details), nullableString(log.ErrorMsg),
		log.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return err
	}

	id, _ := result.LastInsertId()
	log.ID = id
	return nil
}

// Activity returns the journal of one run in insertion order
func (r *Repository) Activity(ctx context.Context, runID string) ([]domain.ActivityLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, action, details, error_msg, created_at
		FROM activity_log WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityLog
	for rows.Next() {
		var e domain.ActivityLog
		var run, details, errorMsg sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &run, &e.Action, &details, &errorMsg, &createdAt); err != nil {
			return nil, err
		}
		e.RunID, e.Details, e.ErrorMsg = run.String, details.String, errorMsg.String
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
