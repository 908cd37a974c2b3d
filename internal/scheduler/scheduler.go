package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

var (
	// ErrBusy is returned while another run is in progress
	ErrBusy = errors.New("a booking run is already in progress")
	// ErrAlreadyBooked means the history holds a reservation for the target date
	ErrAlreadyBooked = errors.New("already booked for target date")
)

// Booker performs one retried booking run
type Booker interface {
	Book(ctx context.Context, target time.Time, dryRun bool) domain.BookingResult
}

// History persists run outcomes
type History interface {
	RecordRunStart(ctx context.Context, run *domain.RunRecord) error
	RecordRunEnd(ctx context.Context, runID, status, reason string, attempts int) error
	RecordBooking(ctx context.Context, b *domain.BookingRecord) error
	HasBookingFor(ctx context.Context, day time.Time) (bool, error)
}

// FailureNotifier reports runs that ended without a booking
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, result domain.BookingResult) error
}

// Scheduler serialises booking runs coming from the CLI, the HTTP trigger and
// chat commands. At most one run is in progress at a time.
type Scheduler struct {
	cfg      *config.Config
	booker   Booker
	history  History
	failures FailureNotifier
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	started time.Time
	last    *domain.BookingResult
	wg      sync.WaitGroup
}

// NewScheduler creates a new scheduler. history and failures may be nil.
func NewScheduler(cfg *config.Config, booker Booker, history History, failures FailureNotifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		booker:   booker,
		history:  history,
		failures: failures,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce performs a single run in the caller's goroutine
func (s *Scheduler) RunOnce(ctx context.Context, dryRun bool) (domain.BookingResult, error) {
	if !s.acquire() {
		return domain.BookingResult{}, ErrBusy
	}
	defer s.release()
	return s.run(ctx, dryRun)
}

// Trigger starts a run in the background and reports false if one is in progress.
// ctx bounds the run, so pass a context that outlives the triggering request.
func (s *Scheduler) Trigger(ctx context.Context, dryRun bool) bool {
	if !s.acquire() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		if _, err := s.run(ctx, dryRun); err != nil {
			s.logger.Debug("triggered run ended", "error", err)
		}
	}()
	return true
}

// Wait blocks until triggered runs have finished
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Running reports whether a run is in progress and since when
func (s *Scheduler) Running() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.started
}

// LastResult returns the outcome of the most recent finished run
func (s *Scheduler) LastResult() (domain.BookingResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return domain.BookingResult{}, false
	}
	return *s.last, true
}

// Status renders the current state for chat replies
func (s *Scheduler) Status() string {
	var sb strings.Builder
	if running, since := s.Running(); running {
		sb.WriteString(fmt.Sprintf("<b>En cours</b> depuis %s\n", since.Format("15:04:05")))
	} else {
		sb.WriteString("<b>Inactif</b>\n")
	}

	last, ok := s.LastResult()
	switch {
	case !ok:
		sb.WriteString("Aucune tentative depuis le démarrage")
	case last.Success():
		c := last.Confirmation
		sb.WriteString(fmt.Sprintf("Dernier résultat: %s à %sh le %s", c.Location, c.Hour, last.TargetDate.Format("02/01/2006")))
		if c.DryRun {
			sb.WriteString(" (test)")
		}
	default:
		sb.WriteString(fmt.Sprintf("Dernier résultat: échec (%s) après %d tentative(s)", last.Reason, last.Attempts))
	}
	return sb.String()
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.started = s.now()
	return true
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// run fixes the target date once, then hands it to the booker for every attempt
func (s *Scheduler) run(ctx context.Context, dryRun bool) (domain.BookingResult, error) {
	start := s.now()
	target, err := s.cfg.TargetDate(start)
	if err != nil {
		return domain.BookingResult{}, fmt.Errorf("target date: %w", err)
	}
	logger := s.logger.With("target_date", target.Format("02/01/2006"), "dry_run", dryRun)

	if !dryRun && s.history != nil {
		booked, err := s.history.HasBookingFor(ctx, target)
		if err != nil {
			logger.Warn("history lookup failed", "error", err)
		} else if booked {
			logger.Info("reservation already recorded for target date, skipping")
			return domain.BookingResult{TargetDate: target, Reason: "already_booked"}, ErrAlreadyBooked
		}
	}

	logger.Info("starting booking run")
	result := s.booker.Book(ctx, target, dryRun)
	s.record(ctx, start, dryRun, result)

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()

	if result.Success() {
		logger.Info("booking run finished", "run_id", result.RunID, "location", result.Confirmation.Location,
			"hour", result.Confirmation.Hour, "attempts", result.Attempts)
		return result, nil
	}

	logger.Error("booking run failed", "run_id", result.RunID, "reason", result.Reason, "attempts", result.Attempts)
	if s.failures != nil && !errors.Is(result.Err, context.Canceled) {
		if err := s.failures.NotifyFailure(context.WithoutCancel(ctx), result); err != nil {
			logger.Error("failure notification failed", "error", err)
		}
	}
	return result, result.Err
}

// record writes the run and its booking; history errors are only logged
func (s *Scheduler) record(ctx context.Context, start time.Time, dryRun bool, result domain.BookingResult) {
	if s.history == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	run := &domain.RunRecord{
		RunID:      result.RunID,
		TargetDate: result.TargetDate,
		DryRun:     dryRun,
		Attempts:   result.Attempts,
		StartedAt:  start,
	}
	if err := s.history.RecordRunStart(ctx, run); err != nil {
		s.logger.Error("record run failed", "run_id", result.RunID, "error", err)
		return
	}

	status := domain.RunStatusFailed
	if result.Success() {
		status = domain.RunStatusBooked
		if result.Confirmation.DryRun {
			status = domain.RunStatusDryRun
		}
	}
	if err := s.history.RecordRunEnd(ctx, result.RunID, status, result.Reason, result.Attempts); err != nil {
		s.logger.Error("record run end failed", "run_id", result.RunID, "error", err)
	}

	if status != domain.RunStatusBooked {
		return
	}
	c := result.Confirmation
	if err := s.history.RecordBooking(ctx, &domain.BookingRecord{
		RunID:      result.RunID,
		Location:   c.Location,
		Hour:       c.Hour,
		TargetDate: result.TargetDate,
		Address:    c.Address,
		DateText:   c.DateText,
		CourtText:  c.CourtText,
	}); err != nil {
		s.logger.Error("record booking failed", "run_id", result.RunID, "error", err)
	}
}

// NextOccurrence returns the next time of day hhmm ("HH:MM") strictly after now
func NextOccurrence(now time.Time, hhmm string) (time.Time, error) {
	at, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", hhmm)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// WaitUntil sleeps until the next hhmm. The portal opens new dates at a fixed
// time, so runs are started on the minute.
func (s *Scheduler) WaitUntil(ctx context.Context, hhmm string) error {
	now := s.now()
	next, err := NextOccurrence(now, hhmm)
	if err != nil {
		return err
	}
	s.logger.Info("waiting for start time", "at", next.Format(time.RFC3339), "in", next.Sub(now).Round(time.Second))
	return antidetect.Sleep(ctx, next.Sub(now))
}
