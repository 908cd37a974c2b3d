package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// errBookingFailed makes the process exit non-zero without printing twice;
// the run already logged its reason.
var errBookingFailed = errors.New("booking failed")

func main() {
	// Load .env file if present (ignores error if not found)
	_ = godotenv.Load()                   // .env in current directory
	_ = godotenv.Load("deployments/.env") // fallback to deployments/.env

	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errBookingFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Without a subcommand it books once.
func NewRootCmd() *cobra.Command {
	var opts globalOptions

	book := newBookCmd(&opts)
	root := &cobra.Command{
		Use:           "tennisbot",
		Short:         "Books a tennis court on tennis.paris.fr",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          book.RunE,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default config.yaml, then config.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	bindBookFlags(root, &opts)

	root.AddCommand(book)
	root.AddCommand(newServeCmd(&opts))
	root.AddCommand(newHistoryCmd(&opts))
	root.AddCommand(newCredentialsCmd(&opts))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tennisbot %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}
