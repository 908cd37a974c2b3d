package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/julianbeese/tennis_bot/internal/domain"
	"github.com/julianbeese/tennis_bot/internal/repository/sqlite"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	statusStyles = map[string]lipgloss.Style{
		domain.RunStatusBooked: cellStyle.Foreground(lipgloss.Color("42")),
		domain.RunStatusDryRun: cellStyle.Foreground(lipgloss.Color("39")),
		domain.RunStatusFailed: cellStyle.Foreground(lipgloss.Color("203")),
	}
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent booking runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, cleanup, err := loadConfig(opts, false)
			if err != nil {
				return err
			}
			defer cleanup()

			repo, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer repo.Close()

			runs, err := repo.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))

			latest, err := repo.LatestBooking(cmd.Context())
			if err != nil {
				return err
			}
			if latest != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "last booking: %s, %s, %s\n", latest.Location, latest.DateText, latest.CourtText)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

// renderRuns lays the runs out as a table, newest first
func renderRuns(runs []domain.RunRecord) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		mode := ""
		if r.DryRun {
			mode = "dry-run"
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.TargetDate.Format("02/01/2006"),
			r.Status,
			strconv.Itoa(r.Attempts),
			mode,
			r.Reason,
			r.RunID,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STARTED", "TARGET", "STATUS", "ATTEMPTS", "MODE", "REASON", "RUN").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(rows) {
				if st, ok := statusStyles[rows[row][2]]; ok {
					return st
				}
			}
			return cellStyle
		}).
		Render()
}
