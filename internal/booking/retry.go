package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Runner performs one attempt of a run
type Runner interface {
	Run(ctx context.Context, run Run) (*domain.Confirmation, error)
}

// RetryController re-runs failed attempts with a fixed backoff, up to a bound
type RetryController struct {
	runner     Runner
	maxRetries int
	backoff    time.Duration
	journal    Journal
	logger     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// NewRetryController creates a controller. journal may be nil.
func NewRetryController(runner Runner, cfg config.RetryConfig, journal Journal, logger *slog.Logger) *RetryController {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryController{
		runner:     runner,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		journal:    journal,
		logger:     logger,
		sleep:      antidetect.Sleep,
		newID:      uuid.NewString,
	}
}

// Book runs attempts for target until one succeeds, a failure is fatal, or
// maxRetries retries were spent. target is held fixed for every attempt.
func (c *RetryController) Book(ctx context.Context, target time.Time, dryRun bool) domain.BookingResult {
	result := domain.BookingResult{RunID: c.newID(), TargetDate: target}
	logger := c.logger.With("run_id", result.RunID)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff); err != nil {
				result.Err = err
				result.Reason = domain.Reason(err)
				return result
			}
		}
		result.Attempts = attempt + 1

		retryable := func(err error) bool {
			return domain.Classify(err) == domain.ClassRetryable && ctx.Err() == nil
		}
		willRetry := func(err error) bool {
			return retryable(err) && attempt < c.maxRetries
		}

		conf, err := c.runner.Run(ctx, Run{
			ID:      result.RunID,
			Attempt: attempt,
			Target:  target,
			DryRun:  dryRun,
			Capture: func(err error) bool { return !willRetry(err) },
		})
		if err == nil {
			result.Confirmation = conf
			return result
		}

		if willRetry(err) {
			logger.Warn("attempt failed, retrying",
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"reason", domain.Reason(err),
				"error", err,
			)
			c.note(ctx, result.RunID, fmt.Sprintf("retry %d/%d", attempt+1, c.maxRetries), err)
			continue
		}

		if retryable(err) {
			err = fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempt+1, err)
		}
		result.Err = err
		result.Reason = domain.Reason(err)
		logger.Error("booking failed",
			"attempts", result.Attempts,
			"reason", result.Reason,
			"class", domain.Classify(err).String(),
			"error", err,
		)
		return result
	}
}

func (c *RetryController) note(ctx context.Context, runID, details string, err error) {
	if c.journal == nil {
		return
	}
	entry := &domain.ActivityLog{RunID: runID, Action: domain.ActionRetry, Details: details, ErrorMsg: err.Error()}
	if jerr := c.journal.LogActivity(context.WithoutCancel(ctx), entry); jerr != nil {
		c.logger.Debug("journal write failed", "error", jerr)
	}
}
