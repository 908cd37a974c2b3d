package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/browser"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Scanner searches one location for the first qualifying slot
type Scanner struct {
	cfg      *config.Config
	filter   *Filter
	behavior *antidetect.HumanBehavior
	logger   *slog.Logger
}

// NewScanner creates a slot scanner
func NewScanner(cfg *config.Config, behavior *antidetect.HumanBehavior, logger *slog.Logger) *Scanner {
	return &Scanner{
		cfg:      cfg,
		filter:   NewFilter(cfg),
		behavior: behavior,
		logger:   logger,
	}
}

// Scan runs the search for loc on day and, when a slot qualifies, clicks it and
// checks the reservation page opened. Lookup failures end in NotFound; only
// navigation failures and cancellation are returned as errors.
func (s *Scanner) Scan(ctx context.Context, page browser.Page, loc domain.Location, day time.Time) (domain.SearchOutcome, error) {
	logger := s.logger.With("location", loc.Name)
	start := time.Now()
	notFound := domain.SearchOutcome{Status: domain.NotFound}

	if err := s.search(ctx, page, loc, day); err != nil {
		if ctx.Err() != nil || errors.Is(err, errNavigate) {
			return notFound, err
		}
		logger.Warn("search failed, skipping location", "error", err)
		return notFound, nil
	}

	for _, hour := range s.cfg.Hours {
		if err := ctx.Err(); err != nil {
			return notFound, err
		}
		slot, ok := s.selectSlot(ctx, page, loc, day, hour, logger)
		if !ok {
			continue
		}
		logger.Info("slot found",
			"hour", hour,
			"court_id", slot.CourtID,
			"court", slot.CourtNumber,
			"price_type", slot.PriceType,
			"court_type", slot.CourtType,
			"duration", time.Since(start).Round(time.Millisecond),
		)

		if !s.onReservationPage(ctx, page) {
			logger.Info("reservation page not reached, trying next location", "hour", hour)
			return notFound, nil
		}
		return domain.SearchOutcome{Status: domain.Booked, Slot: slot}, nil
	}

	logger.Info("no qualifying slot", "duration", time.Since(start).Round(time.Millisecond))
	return notFound, nil
}

var errNavigate = errors.New("search view unreachable")

// search opens the search view, picks the location and date and runs the search
func (s *Scanner) search(ctx context.Context, page browser.Page, loc domain.Location, day time.Time) error {
	t := s.cfg.Browser

	if err := within(ctx, t.NavigationTimeout, func(ctx context.Context) error {
		return page.Navigate(ctx, s.cfg.Portal.BaseURL+pathSearch)
	}); err != nil {
		return fmt.Errorf("%w: %w", errNavigate, err)
	}

	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		return page.Fill(ctx, selWhereInput, loc.Name+" ")
	}); err != nil {
		return fmt.Errorf("type location: %w", err)
	}
	if err := s.pickLocation(ctx, page, loc.Name); err != nil {
		return err
	}
	if err := s.behavior.Pause(ctx); err != nil {
		return err
	}

	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		return page.Click(ctx, selWhen)
	}); err != nil {
		return fmt.Errorf("open date picker: %w", err)
	}
	dates := dateSelectors(day)
	target, err := Locate(ctx, page,
		WaitFor("date", dates[0], t.NavigationTimeout),
		WaitFor("date short form", dates[1], t.ElementTimeout),
	)
	if err != nil {
		return fmt.Errorf("select date %s: %w", day.Format("02/01/2006"), err)
	}
	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		return page.Click(ctx, target.Selector)
	}); err != nil {
		return fmt.Errorf("select date: %w", err)
	}
	if err := within(ctx, t.ShortTimeout, func(ctx context.Context) error {
		return page.WaitHidden(ctx, selDatePicker)
	}); err != nil {
		s.logger.Debug("date picker still open", "error", err)
	}

	if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
		return page.Click(ctx, selSearchButton)
	}); err != nil {
		return fmt.Errorf("run search: %w", err)
	}
	if err := within(ctx, t.NavigationTimeout, page.WaitIdle); err != nil {
		// Results may still be streaming in; settle briefly and scan anyway
		s.logger.Debug("results not idle", "error", err)
		return antidetect.Sleep(ctx, t.SettleDelay)
	}
	return nil
}

// pickLocation degrades from an exact suggestion, to a partial one, to the
// first suggestion, to submitting the typed text
func (s *Scanner) pickLocation(ctx context.Context, page browser.Page, name string) error {
	t := s.cfg.Browser
	name = strings.TrimSpace(name)
	target, err := Locate(ctx, page,
		MatchText("exact suggestion", selSuggestion, t.ShortTimeout, func(text string) bool { return text == name }),
		MatchText("partial suggestion", selSuggestion, t.ShortTimeout, matchLocation(name)),
		Present("first suggestion", selSuggestion),
	)
	if err == nil {
		s.logger.Debug("location suggestion", "location", name, "strategy", target.Strategy, "index", target.Index)
		return within(ctx, t.ElementTimeout, func(ctx context.Context) error {
			return page.ClickNth(ctx, target.Selector, target.Index)
		})
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Debug("no location suggestion, submitting typed text", "location", name)
	return within(ctx, t.ShortTimeout, func(ctx context.Context) error {
		return page.Press(ctx, browser.KeyEnter)
	})
}

// matchLocation accepts a suggestion containing the name or contained in it
func matchLocation(name string) func(string) bool {
	return func(text string) bool {
		if text == "" {
			return false
		}
		return strings.Contains(text, name) || strings.Contains(name, text)
	}
}

// selectSlot enumerates the slots for one hour and clicks the first that
// passes every filter. Any failed lookup disqualifies only that slot.
func (s *Scanner) selectSlot(ctx context.Context, page browser.Page, loc domain.Location, day time.Time, hour string, logger *slog.Logger) (domain.Slot, bool) {
	t := s.cfg.Browser
	sel := slotSelector(day, hour)

	var n int
	if err := within(ctx, t.ShortTimeout, func(ctx context.Context) (err error) {
		n, err = page.Count(ctx, sel)
		return err
	}); err != nil || n == 0 {
		return domain.Slot{}, false
	}

	target, err := Locate(ctx, page,
		Present("open panel", sel),
		ExpandThen("expand panel", panelTitle(loc.Name, hour), sel, t.ShortTimeout, t.SettleDelay),
	)
	if err != nil {
		logger.Debug("slots not reachable", "hour", hour, "error", err)
		return domain.Slot{}, false
	}

	var courtIDs []string
	if err := within(ctx, t.ShortTimeout, func(ctx context.Context) (err error) {
		courtIDs, err = page.Attributes(ctx, target.Selector, attrCourtID)
		return err
	}); err != nil {
		logger.Debug("court ids unreadable", "hour", hour, "error", err)
		return domain.Slot{}, false
	}

	for _, id := range courtIDs {
		if id == "" {
			continue
		}
		slot := domain.Slot{Location: loc.Name, Date: day, Hour: hour, CourtID: id}
		button := bookButton(id, day, hour)

		if len(loc.Courts) > 0 {
			label, err := s.adjacent(ctx, page, button, selCourtLabel)
			if err != nil {
				logger.Debug("court label unreadable", "hour", hour, "court_id", id, "error", err)
				continue
			}
			if n, ok := parseCourtNumber(label); ok {
				slot.CourtNumber = n
			}
		}
		if res := s.filter.Court(loc, &slot); !res.Passed {
			logger.Debug("slot filtered", "hour", hour, "court_id", id, "reasons", res.Reasons)
			continue
		}

		desc, err := s.adjacent(ctx, page, button, selPriceLabel)
		if err != nil {
			logger.Debug("description unreadable", "hour", hour, "court_id", id, "error", err)
			continue
		}
		slot.PriceType, slot.CourtType, _ = parseDescription(desc)
		if res := s.filter.Description(&slot); !res.Passed {
			logger.Debug("slot filtered", "hour", hour, "court_id", id, "reasons", res.Reasons)
			continue
		}

		if err := within(ctx, t.ElementTimeout, func(ctx context.Context) error {
			return page.Click(ctx, button)
		}); err != nil {
			logger.Debug("slot click failed", "hour", hour, "court_id", id, "error", err)
			continue
		}
		return slot, true
	}
	return domain.Slot{}, false
}

func (s *Scanner) adjacent(ctx context.Context, page browser.Page, anchor, target string) (string, error) {
	var html string
	err := within(ctx, s.cfg.Browser.ShortTimeout, func(ctx context.Context) (err error) {
		html, err = page.AdjacentHTML(ctx, anchor, target)
		return err
	})
	return html, err
}

// onReservationPage reports whether the clicked slot opened the reservation view
func (s *Scanner) onReservationPage(ctx context.Context, page browser.Page) bool {
	t := s.cfg.Browser
	if err := within(ctx, t.ElementTimeout, page.WaitIdle); err != nil {
		s.logger.Debug("reservation page not idle", "error", err)
	}
	var title string
	if err := within(ctx, t.ShortTimeout, func(ctx context.Context) (err error) {
		title, err = page.Title(ctx)
		return err
	}); err != nil {
		return false
	}
	return title == reservationTitle
}
