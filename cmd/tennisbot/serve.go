package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/julianbeese/tennis_bot/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var daily string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger and the Telegram command listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := loadConfig(opts, true)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			// Runs still in flight finish their cleanup before the database closes
			defer a.scheduler.Wait()

			a.bot.SetCallbacks(
				func(dryRun bool) bool { return a.scheduler.Trigger(ctx, dryRun) },
				a.scheduler.Status,
				func() string { return a.history(ctx) },
			)
			if a.bot.IsEnabled() {
				a.bot.StartCommandListener(ctx)
				logger.Info("Telegram command listener started")
			}

			if a.telegram.IsEnabled() {
				names := make([]string, 0, len(cfg.Locations))
				for _, loc := range cfg.Locations {
					names = append(names, loc.Name)
				}
				if err := a.telegram.NotifyStartup(ctx, names, cfg.Server.Addr); err != nil {
					logger.Warn("startup notification failed", "error", err)
				}
			}

			if daily != "" {
				go runDaily(ctx, a, daily, opts.dryRun)
			}

			srv := server.New(cfg.Server.Addr, cfg.Server.WebhookSecret, a.scheduler, logger)
			err = srv.ListenAndServe(ctx)
			logger.Info("shutdown complete")
			return err
		},
	}
	cmd.Flags().StringVar(&daily, "daily", "", "also start a run every day at HH:MM")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "daily runs stop at the confirmation page")
	return cmd
}

// runDaily triggers a run at hhmm until ctx ends
func runDaily(ctx context.Context, a *app, hhmm string, dryRun bool) {
	for {
		if err := a.scheduler.WaitUntil(ctx, hhmm); err != nil {
			if ctx.Err() == nil {
				a.logger.Error("daily schedule stopped", "error", err)
			}
			return
		}
		if !a.scheduler.Trigger(ctx, dryRun) {
			a.logger.Warn("daily run skipped, another run is in progress")
		}
	}
}
