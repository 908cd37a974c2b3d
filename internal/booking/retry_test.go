package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// scriptedRunner fails with errs in order, then succeeds
type scriptedRunner struct {
	errs []error
	runs []Run
	// captured holds Capture(err) for every failed run
	captured []bool
}

func (r *scriptedRunner) Run(ctx context.Context, run Run) (*domain.Confirmation, error) {
	r.runs = append(r.runs, run)
	if i := len(r.runs) - 1; i < len(r.errs) {
		err := r.errs[i]
		r.captured = append(r.captured, run.Capture(err))
		return nil, err
	}
	return &domain.Confirmation{Location: "Poliveau", TargetDate: run.Target}, nil
}

func newTestController(r Runner, retries int, journal Journal) (*RetryController, *[]time.Duration) {
	c := NewRetryController(r, config.RetryConfig{MaxRetries: retries, Backoff: 5 * time.Second}, journal, discardLogger())
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	c.newID = func() string { return "run-fixed" }
	return c, &slept
}

func repeat(err error, n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return errs
}

func TestRetryController(t *testing.T) {
	retryable := fmt.Errorf("scan: %w", domain.ErrAllLocationsExhausted)
	tests := []struct {
		name         string
		errs         []error
		wantRuns     int
		wantSuccess  bool
		wantIs       error
		wantReason   string
		wantCaptured []bool
	}{
		{
			name:        "first attempt books",
			wantRuns:    1,
			wantSuccess: true,
		},
		{
			name:         "books after two failures",
			errs:         repeat(retryable, 2),
			wantRuns:     3,
			wantSuccess:  true,
			wantCaptured: []bool{false, false},
		},
		{
			name:         "bounded to four runs",
			errs:         repeat(retryable, 10),
			wantRuns:     4,
			wantIs:       domain.ErrRetriesExhausted,
			wantReason:   "all_locations_exhausted",
			wantCaptured: []bool{false, false, false, true},
		},
		{
			name:         "auth is never retried",
			errs:         []error{fmt.Errorf("login: %w", domain.ErrAuth)},
			wantRuns:     1,
			wantIs:       domain.ErrAuth,
			wantReason:   "auth",
			wantCaptured: []bool{true},
		},
		{
			name:         "captcha then auth",
			errs:         []error{domain.ErrCaptchaExhausted, domain.ErrAuth},
			wantRuns:     2,
			wantIs:       domain.ErrAuth,
			wantReason:   "auth",
			wantCaptured: []bool{false, true},
		},
		{
			name:         "unclassified is fatal",
			errs:         []error{errors.New("boom")},
			wantRuns:     1,
			wantReason:   "unclassified",
			wantCaptured: []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{errs: tt.errs}
			c, slept := newTestController(runner, 3, nil)

			result := c.Book(context.Background(), testDay, false)

			if len(runner.runs) != tt.wantRuns || result.Attempts != tt.wantRuns {
				t.Fatalf("runs = %d, attempts = %d, want %d", len(runner.runs), result.Attempts, tt.wantRuns)
			}
			if result.Success() != tt.wantSuccess {
				t.Fatalf("success = %v, err = %v", result.Success(), result.Err)
			}
			if tt.wantIs != nil && !errors.Is(result.Err, tt.wantIs) {
				t.Errorf("error = %v, want %v", result.Err, tt.wantIs)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", result.Reason, tt.wantReason)
			}
			if len(*slept) != tt.wantRuns-1 {
				t.Errorf("slept %d times, want %d", len(*slept), tt.wantRuns-1)
			}
			for _, d := range *slept {
				if d != 5*time.Second {
					t.Errorf("backoff = %v, want 5s", d)
				}
			}
			if fmt.Sprint(runner.captured) != fmt.Sprint(tt.wantCaptured) && len(tt.wantCaptured) > 0 {
				t.Errorf("captured = %v, want %v", runner.captured, tt.wantCaptured)
			}
		})
	}
}

func TestRetryControllerHoldsTargetAndRunID(t *testing.T) {
	runner := &scriptedRunner{errs: repeat(domain.ErrNavigationTimeout, 3)}
	c, _ := newTestController(runner, 3, nil)

	result := c.Book(context.Background(), testDay, true)
	if !result.Success() {
		t.Fatalf("Book: %v", result.Err)
	}
	for i, run := range runner.runs {
		if !run.Target.Equal(testDay) {
			t.Errorf("run %d target = %v", i, run.Target)
		}
		if run.ID != "run-fixed" || run.Attempt != i || !run.DryRun {
			t.Errorf("run %d = %+v", i, run)
		}
	}
	if !result.Confirmation.TargetDate.Equal(testDay) {
		t.Errorf("confirmation target = %v", result.Confirmation.TargetDate)
	}
}

func TestRetryControllerJournalsRetries(t *testing.T) {
	journal := &memoryJournal{}
	runner := &scriptedRunner{errs: []error{domain.ErrNetwork}}
	c, _ := newTestController(runner, 3, journal)

	c.Book(context.Background(), testDay, false)
	if !journal.has(domain.ActionRetry) {
		t.Error("retry not journaled")
	}
}

func TestRetryControllerCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &scriptedRunner{errs: repeat(domain.ErrNetwork, 10)}
	c, _ := newTestController(runner, 3, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	result := c.Book(ctx, testDay, false)
	if len(runner.runs) != 1 {
		t.Errorf("runs = %d, want 1", len(runner.runs))
	}
	if !errors.Is(result.Err, context.Canceled) || result.Reason != "canceled" {
		t.Errorf("result = %v (%s)", result.Err, result.Reason)
	}
}

func TestRetryControllerZeroRetries(t *testing.T) {
	runner := &scriptedRunner{errs: []error{domain.ErrCaptchaExhausted}}
	c, slept := newTestController(runner, 0, nil)

	result := c.Book(context.Background(), testDay, false)
	if len(runner.runs) != 1 || len(*slept) != 0 {
		t.Errorf("runs = %d, sleeps = %d", len(runner.runs), len(*slept))
	}
	if !errors.Is(result.Err, domain.ErrRetriesExhausted) || !errors.Is(result.Err, domain.ErrCaptchaExhausted) {
		t.Errorf("error = %v", result.Err)
	}
}
