package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/browser"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Solver turns a challenge image into its best-guess text
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// ImageStore keeps the last challenge image for the operator
type ImageStore interface {
	SaveCaptcha(png []byte) (string, error)
}

// CaptchaLoop clears the anti-bot challenge on the reservation page
type CaptchaLoop struct {
	cfg    config.CaptchaConfig
	solver Solver
	images ImageStore
	logger *slog.Logger
}

// NewCaptchaLoop creates a loop bounded by cfg.MaxAttempts. images may be nil.
func NewCaptchaLoop(cfg config.CaptchaConfig, solver Solver, images ImageStore, logger *slog.Logger) *CaptchaLoop {
	return &CaptchaLoop{cfg: cfg, solver: solver, images: images, logger: logger}
}

// Clear returns nil when no challenge is shown or it was verified, and
// ErrCaptchaExhausted once MaxAttempts answers were rejected
func (c *CaptchaLoop) Clear(ctx context.Context, page browser.Page, timeouts config.BrowserConfig) error {
	var present int
	if err := within(ctx, timeouts.ShortTimeout, func(ctx context.Context) (err error) {
		present, err = page.Count(ctx, selCaptchaMarker)
		return err
	}); err != nil || present == 0 {
		return nil
	}

	c.logger.Info("solving captcha", "max_attempts", c.cfg.MaxAttempts)
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			// Give the widget time to swap in a fresh image
			if err := antidetect.Sleep(ctx, c.cfg.RefreshDelay); err != nil {
				return err
			}
		}

		err := c.attempt(ctx, page, timeouts)
		if err == nil {
			c.logger.Info("captcha solved", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A frame we cannot enter stays that way on every attempt
		if errors.Is(err, browser.ErrNoFrameDocument) {
			return fmt.Errorf("%w: %w", domain.ErrDriver, err)
		}
		c.logger.Warn("captcha attempt failed", "attempt", attempt, "error", err)
	}

	return fmt.Errorf("%w after %d attempts", domain.ErrCaptchaExhausted, c.cfg.MaxAttempts)
}

var errNotVerified = errors.New("answer rejected")

// attempt runs one challenge round. The frame is looked up again every round
// so a replaced challenge never reuses a stale verification note.
func (c *CaptchaLoop) attempt(ctx context.Context, page browser.Page, t config.BrowserConfig) error {
	var frame browser.Page
	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) (err error) {
		frame, err = page.Frame(ctx, selCaptchaFrame)
		return err
	}); err != nil {
		return fmt.Errorf("challenge frame: %w", err)
	}

	var image []byte
	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) (err error) {
		image, err = frame.Screenshot(ctx, selCaptchaImage)
		return err
	}); err != nil {
		return fmt.Errorf("capture challenge: %w", err)
	}
	if c.images != nil {
		if _, err := c.images.SaveCaptcha(image); err != nil {
			c.logger.Debug("keep captcha image", "error", err)
		}
	}

	answer, err := c.solver.Solve(ctx, image)
	if err != nil {
		return fmt.Errorf("solve: %w", err)
	}
	if answer == "" {
		return fmt.Errorf("solve: empty answer")
	}
	c.logger.Debug("captcha answer", "answer", answer)

	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		if err := frame.Fill(ctx, selCaptchaAnswer, answer); err != nil {
			return err
		}
		return frame.Click(ctx, selCaptchaValidate)
	}); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}

	if err := antidetect.Sleep(ctx, c.cfg.VerifyDelay); err != nil {
		return err
	}
	var note string
	if err := within(ctx, t.ShortTimeout, func(ctx context.Context) (err error) {
		note, err = frame.Text(ctx, selCaptchaNote)
		return err
	}); err != nil {
		return fmt.Errorf("read verification: %w", err)
	}
	if strings.TrimSpace(note) != captchaVerified {
		return fmt.Errorf("%w: %q", errNotVerified, note)
	}
	return nil
}
