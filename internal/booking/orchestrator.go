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

// CalendarExporter turns a confirmation into a stored iCalendar document
type CalendarExporter interface {
	Export(conf domain.Confirmation) ([]byte, error)
}

// NotificationSink delivers a booking confirmation
type NotificationSink interface {
	NotifyBooking(ctx context.Context, conf domain.Confirmation, ics []byte) error
}

// ScreenshotStore keeps diagnostic captures
type ScreenshotStore interface {
	SaveFailure(png []byte, at time.Time) (string, error)
}

// Journal records run activity
type Journal interface {
	LogActivity(ctx context.Context, entry *domain.ActivityLog) error
}

// Deps are the collaborators of an Orchestrator. Only Launcher and Solver are required.
type Deps struct {
	Launcher    browser.Launcher
	Solver      Solver
	Calendar    CalendarExporter
	Notifier    NotificationSink
	Screenshots ScreenshotStore
	Images      ImageStore
	Journal     Journal
	Behavior    *antidetect.HumanBehavior
	Logger      *slog.Logger
}

// Orchestrator runs one end-to-end booking attempt on a fresh browser
type Orchestrator struct {
	cfg       *config.Config
	launcher  browser.Launcher
	auth      *Authenticator
	scanner   *Scanner
	captcha   *CaptchaLoop
	submitter *Submitter
	calendar  CalendarExporter
	notifier  NotificationSink
	shots     ScreenshotStore
	journal   Journal
	logger    *slog.Logger
}

// NewOrchestrator wires the booking components. cfg is shared read-only.
func NewOrchestrator(cfg *config.Config, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	behavior := deps.Behavior
	if behavior == nil {
		behavior = antidetect.NewHumanBehavior(cfg.Behavior.TypeDelay, cfg.Behavior.ActionDelay)
	}
	return &Orchestrator{
		cfg:       cfg,
		launcher:  deps.Launcher,
		auth:      NewAuthenticator(cfg, behavior, logger),
		scanner:   NewScanner(cfg, behavior, logger),
		captcha:   NewCaptchaLoop(cfg.Captcha, deps.Solver, deps.Images, logger),
		submitter: NewSubmitter(cfg, behavior, logger),
		calendar:  deps.Calendar,
		notifier:  deps.Notifier,
		shots:     deps.Screenshots,
		journal:   deps.Journal,
		logger:    logger,
	}
}

// Run is one attempt of a booking run
type Run struct {
	ID      string
	Attempt int
	Target  time.Time
	DryRun  bool
	// Capture reports whether a failure should leave a diagnostic screenshot
	Capture func(err error) bool
}

// Run logs in once and walks the locations in order until one books.
// The browser is released on every return path.
func (o *Orchestrator) Run(ctx context.Context, run Run) (conf *domain.Confirmation, err error) {
	logger := o.logger.With("run_id", run.ID, "attempt", run.Attempt)
	start := time.Now()
	logger.Info("starting booking", "date", run.Target.Format("02/01/2006"), "dry_run", run.DryRun)

	session, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err != nil {
			o.note(ctx, run, domain.ActionError, domain.Reason(err), err)
			if run.Capture != nil && run.Capture(err) {
				o.captureFailure(ctx, session.Page(), logger)
			}
		}
		if cerr := session.Close(); cerr != nil {
			logger.Debug("close browser", "error", cerr)
		}
	}()
	page := session.Page()

	if err := o.auth.Login(ctx, page); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	o.note(ctx, run, domain.ActionLogin, o.cfg.Account.Email, nil)

	for _, loc := range o.cfg.Locations {
		logger.Info("trying location", "location", loc.Name)
		o.note(ctx, run, domain.ActionSearch, loc.Name, nil)

		outcome, err := o.scanner.Scan(ctx, page, loc, run.Target)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", loc.Name, err)
		}
		if !outcome.Found() {
			continue
		}
		o.note(ctx, run, domain.ActionSlotFound, outcome.Slot.Key(), nil)

		if err := o.captcha.Clear(ctx, page, o.cfg.Browser); err != nil {
			return nil, fmt.Errorf("captcha at %s: %w", loc.Name, err)
		}
		o.note(ctx, run, domain.ActionCaptcha, loc.Name, nil)

		conf, err := o.submitter.Submit(ctx, page, run.DryRun)
		if err != nil {
			return nil, fmt.Errorf("reserve at %s: %w", loc.Name, err)
		}
		conf.Location = loc.Name
		conf.Hour = outcome.Slot.Hour
		conf.TargetDate = run.Target

		if conf.DryRun {
			o.note(ctx, run, domain.ActionDryRunCancel, outcome.Slot.Key(), nil)
			logger.Info("dry run complete", "location", loc.Name, "hour", conf.Hour, "duration", time.Since(start).Round(time.Millisecond))
			return conf, nil
		}

		o.note(ctx, run, domain.ActionSubmitted, conf.CourtText, nil)
		logger.Info("booking confirmed",
			"location", loc.Name,
			"address", conf.Address,
			"date", conf.DateText,
			"court", conf.CourtText,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		o.publish(ctx, *conf, logger)
		return conf, nil
	}

	return nil, fmt.Errorf("%w (%d tried)", domain.ErrAllLocationsExhausted, len(o.cfg.Locations))
}

// publish exports the calendar event and notifies; neither can fail the booking
func (o *Orchestrator) publish(ctx context.Context, conf domain.Confirmation, logger *slog.Logger) {
	var ics []byte
	if o.calendar != nil {
		var err error
		if ics, err = o.calendar.Export(conf); err != nil {
			logger.Error("calendar export failed", "error", err)
		}
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyBooking(ctx, conf, ics); err != nil {
			logger.Error("notification failed", "error", err)
		}
	}
}

// captureFailure stores a best-effort screenshot; its own failure is only logged
func (o *Orchestrator) captureFailure(ctx context.Context, page browser.Page, logger *slog.Logger) {
	if o.shots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Browser.LongTimeout)
	defer cancel()

	png, err := page.FullScreenshot(ctx)
	if err != nil {
		logger.Warn("failure screenshot not captured", "error", err)
		return
	}
	path, err := o.shots.SaveFailure(png, time.Now())
	if err != nil {
		logger.Warn("failure screenshot not saved", "error", err)
		return
	}
	logger.Info("failure screenshot saved", "path", path)
}

func (o *Orchestrator) note(ctx context.Context, run Run, action, details string, err error) {
	if o.journal == nil {
		return
	}
	entry := &domain.ActivityLog{RunID: run.ID, Action: action, Details: details}
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	if jerr := o.journal.LogActivity(context.WithoutCancel(ctx), entry); jerr != nil {
		o.logger.Debug("journal write failed", "error", jerr)
	}
}
