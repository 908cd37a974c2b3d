package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/artifacts"
	"github.com/julianbeese/tennis_bot/internal/booking"
	"github.com/julianbeese/tennis_bot/internal/browser"
	"github.com/julianbeese/tennis_bot/internal/calendar"
	"github.com/julianbeese/tennis_bot/internal/captcha"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
	"github.com/julianbeese/tennis_bot/internal/logging"
	"github.com/julianbeese/tennis_bot/internal/messenger"
	"github.com/julianbeese/tennis_bot/internal/notifier"
	"github.com/julianbeese/tennis_bot/internal/notifier/ntfy"
	"github.com/julianbeese/tennis_bot/internal/notifier/telegram"
	"github.com/julianbeese/tennis_bot/internal/repository/sqlite"
	"github.com/julianbeese/tennis_bot/internal/scheduler"
)

var defaultConfigPaths = []string{"config.yaml", "config.json"}

type globalOptions struct {
	configPath string
	logLevel   string
	dryRun     bool
	at         string
}

// resolveConfigPath returns the explicit path, else the first default that exists
func resolveConfigPath(explicit string, exists func(string) bool) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range defaultConfigPaths {
		if exists(p) {
			return p
		}
	}
	return defaultConfigPaths[0]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadConfig reads the configuration and sets up logging. Commands that only
// read local state skip validation.
func loadConfig(opts *globalOptions, validate bool) (*config.Config, *slog.Logger, func(), error) {
	path := resolveConfigPath(opts.configPath, fileExists)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	cleanup := func() { _ = closer.Close() }

	if !validate {
		return cfg, logger, cleanup, nil
	}
	if err := cfg.Validate(); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	logger.Debug("configuration loaded", "path", path, "locations", len(cfg.Locations), "hours", cfg.Hours)
	return cfg, logger, cleanup, nil
}

// app owns the wired collaborators of one process
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	repo      *sqlite.Repository
	bot       *telegram.BotController
	telegram  *telegram.Notifier
	scheduler *scheduler.Scheduler
	closers   []func() error
}

func newApp(cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.repo, err = sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, a.repo.Close)
	logger.Info("database initialized", "path", cfg.DatabasePath)

	store, err := artifacts.NewStore(cfg.ArtifactsDir)
	if err != nil {
		return nil, err
	}

	behavior := antidetect.NewHumanBehavior(cfg.Behavior.TypeDelay, cfg.Behavior.ActionDelay)
	launcher, err := browser.NewLauncher(cfg.Browser, behavior)
	if err != nil {
		return nil, err
	}

	solver, closeSolver, err := captcha.New(cfg.Captcha, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSolver)

	messages, err := messenger.NewGenerator(cfg.Telegram.Template)
	if err != nil {
		return nil, fmt.Errorf("load message template: %w", err)
	}

	a.bot, err = telegram.NewBotController(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Enabled)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram: %w", err)
	}
	a.telegram = telegram.NewNotifierFromController(a.bot, messages)

	sinks := notifier.Multi{a.telegram}
	if n := ntfy.NewNotifier(cfg.Ntfy); n.IsEnabled() {
		sinks = append(sinks, n)
	}

	orchestrator := booking.NewOrchestrator(cfg, booking.Deps{
		Launcher:    launcher,
		Solver:      solver,
		Calendar:    calendar.NewExporter(store),
		Notifier:    sinks,
		Screenshots: store,
		Images:      store,
		Journal:     a.repo,
		Behavior:    behavior,
		Logger:      logger,
	})
	retry := booking.NewRetryController(orchestrator, cfg.Retry, a.repo, logger)
	a.scheduler = scheduler.NewScheduler(cfg, retry, a.repo, sinks, logger)

	return a, nil
}

// Close releases everything in reverse order of acquisition
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", "error", err)
	}
}

// history renders the latest runs for chat replies
func (a *app) history(ctx context.Context) string {
	runs, err := a.repo.RecentRuns(ctx, 5)
	if err != nil {
		a.logger.Error("load history", "error", err)
		return "Historique indisponible"
	}
	return formatHistory(runs)
}

func formatHistory(runs []domain.RunRecord) string {
	if len(runs) == 0 {
		return "Aucune tentative enregistrée"
	}
	var sb strings.Builder
	sb.WriteString("<b>Dernières tentatives</b>")
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("\n%s  %s  %s", r.TargetDate.Format("02/01/2006"), statusLabel(r.Status), r.StartedAt.Local().Format("02/01 15:04")))
		if r.Reason != "" {
			sb.WriteString(" (" + r.Reason + ")")
		}
	}
	return sb.String()
}

func statusLabel(status string) string {
	switch status {
	case domain.RunStatusBooked:
		return "✅ réservé"
	case domain.RunStatusDryRun:
		return "🧪 test"
	case domain.RunStatusFailed:
		return "❌ échec"
	}
	return status
}
