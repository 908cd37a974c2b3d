package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/julianbeese/tennis_bot/internal/domain"
	"github.com/julianbeese/tennis_bot/internal/scheduler"
	"github.com/spf13/cobra"
)

func bindBookFlags(cmd *cobra.Command, opts *globalOptions) {
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "stop at the confirmation page and cancel instead of paying")
	cmd.Flags().StringVar(&opts.at, "at", "", "wait until HH:MM before starting")
}

func newBookCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Run one booking with retries and exit",
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

			if opts.at != "" {
				if err := a.scheduler.WaitUntil(ctx, opts.at); err != nil {
					return err
				}
			}

			result, err := a.scheduler.RunOnce(ctx, opts.dryRun)
			if err != nil {
				return bookError(result, err)
			}
			printResult(cmd, result)
			return nil
		},
	}
	bindBookFlags(cmd, opts)
	return cmd
}

// bookError maps a run onto the process exit. An already booked date is not
// a failure, and runs that reached the booker have logged their own reason.
func bookError(result domain.BookingResult, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyBooked):
		return nil
	case result.RunID != "":
		return errBookingFailed
	}
	return err
}

func printResult(cmd *cobra.Command, result domain.BookingResult) {
	c := result.Confirmation
	if c == nil {
		return
	}
	mode := "Réservé"
	if c.DryRun {
		mode = "Test"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %s, %s\n", mode, c.Location, c.DateText, c.CourtText)
}
