package booking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/browser"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Submitter fills the reservation form and either books or cancels
type Submitter struct {
	cfg      *config.Config
	behavior *antidetect.HumanBehavior
	logger   *slog.Logger
}

// NewSubmitter creates a reservation submitter
func NewSubmitter(cfg *config.Config, behavior *antidetect.HumanBehavior, logger *slog.Logger) *Submitter {
	return &Submitter{cfg: cfg, behavior: behavior, logger: logger}
}

// Submit enters the participants and the payment mode. In dry-run mode it walks
// back through the portal's cancel path instead of the final submit and returns
// a confirmation with DryRun set and no portal details.
func (s *Submitter) Submit(ctx context.Context, page browser.Page, dryRun bool) (*domain.Confirmation, error) {
	t := s.cfg.Browser

	if err := s.fillPlayers(ctx, page); err != nil {
		return nil, err
	}
	if err := within(ctx, t.ShortTimeout, func(ctx context.Context) error {
		return page.Press(ctx, browser.KeyEnter)
	}); err != nil {
		return nil, fmt.Errorf("confirm players: %w", err)
	}

	// The payment field ships readonly and hidden
	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		if err := page.WaitReady(ctx, selPaymentMode); err != nil {
			return err
		}
		if err := page.Unlock(ctx, selPaymentMode); err != nil {
			return err
		}
		return page.Fill(ctx, selPaymentMode, paymentSentinel)
	}); err != nil {
		return nil, fmt.Errorf("set payment mode: %w", err)
	}

	if dryRun {
		if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
			if err := page.Click(ctx, selPrevious); err != nil {
				return err
			}
			return page.Click(ctx, selCancel)
		}); err != nil {
			return nil, fmt.Errorf("cancel dry run: %w", err)
		}
		s.logger.Info("dry run: reservation cancelled before submit")
		return &domain.Confirmation{DryRun: true}, nil
	}

	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		if err := page.RemoveClass(ctx, selSubmit, "hide"); err != nil {
			return err
		}
		return page.Click(ctx, selSubmit)
	}); err != nil {
		return nil, fmt.Errorf("submit reservation: %w", err)
	}

	if err := within(ctx, t.NavigationTimeout, func(ctx context.Context) error {
		return page.WaitVisible(ctx, selConfirmation)
	}); err != nil {
		return nil, fmt.Errorf("await confirmation: %w", err)
	}

	return s.extract(ctx, page)
}

// fillPlayers adds a field group for every participant after the first and
// types last then first name into its two inputs
func (s *Submitter) fillPlayers(ctx context.Context, page browser.Page) error {
	t := s.cfg.Browser
	for i, p := range s.cfg.Players {
		fields := playerFields(i)
		if i > 0 {
			if err := within(ctx, t.ShortTimeout, func(ctx context.Context) error {
				return page.Click(ctx, selAddPlayer)
			}); err != nil {
				return fmt.Errorf("add player %d: %w", i+1, err)
			}
		}
		if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
			if err := page.WaitReady(ctx, fields); err != nil {
				return err
			}
			if err := page.FillNth(ctx, fields, 0, p.LastName); err != nil {
				return err
			}
			return page.FillNth(ctx, fields, 1, p.FirstName)
		}); err != nil {
			return fmt.Errorf("fill player %d: %w", i+1, err)
		}
		if err := s.behavior.Pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Submitter) extract(ctx context.Context, page browser.Page) (*domain.Confirmation, error) {
	fields := []struct {
		sel string
		dst *string
	}{
		{selAddress, new(string)},
		{selDate, new(string)},
		{selCourt, new(string)},
	}
	for _, f := range fields {
		if err := within(ctx, s.cfg.Browser.ShortTimeout, func(ctx context.Context) (err error) {
			*f.dst, err = page.Text(ctx, f.sel)
			return err
		}); err != nil {
			return nil, fmt.Errorf("read confirmation %s: %w", f.sel, err)
		}
	}
	return &domain.Confirmation{
		Address:   collapse(*fields[0].dst),
		DateText:  collapse(*fields[1].dst),
		CourtText: collapse(*fields[2].dst),
	}, nil
}
