package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/browser"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Authenticator logs a fresh page into the portal
type Authenticator struct {
	cfg      *config.Config
	behavior *antidetect.HumanBehavior
	logger   *slog.Logger
}

// NewAuthenticator creates an authenticator for the configured account
func NewAuthenticator(cfg *config.Config, behavior *antidetect.HumanBehavior, logger *slog.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, behavior: behavior, logger: logger}
}

// Login authenticates and leaves the page on the logged-in home view.
// A missing logged-in marker is ErrAuth; it is never retried here.
func (a *Authenticator) Login(ctx context.Context, page browser.Page) error {
	t := a.cfg.Browser
	start := time.Now()

	if err := within(ctx, t.NavigationTimeout, func(ctx context.Context) error {
		return page.Navigate(ctx, a.cfg.Portal.BaseURL+pathLogin)
	}); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		return page.Click(ctx, selLoginEntry)
	}); err != nil {
		return fmt.Errorf("open login form: %w", err)
	}

	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		if err := page.Fill(ctx, selUsername, a.cfg.Account.Email); err != nil {
			return err
		}
		if err := a.behavior.Pause(ctx); err != nil {
			return err
		}
		if err := page.Fill(ctx, selPassword, a.cfg.Account.Password); err != nil {
			return err
		}
		return page.Click(ctx, selLoginSubmit)
	}); err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}

	if err := within(ctx, t.NavigationTimeout, func(ctx context.Context) error {
		return page.WaitVisible(ctx, selLoggedIn)
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: logged-in marker %s not shown: %v", domain.ErrAuth, selLoggedIn, err)
	}

	a.logger.Info("logged in", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// within runs fn under a timeout derived from ctx
func within(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := bounded(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
