package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/spf13/cobra"
)

func newCredentialsCmd(opts *globalOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the portal password in the OS keyring",
	}
	cmd.PersistentFlags().StringVar(&email, "email", "", "account email (default account.email from config)")

	accountEmail := func() (string, error) {
		if email != "" {
			return email, nil
		}
		cfg, _, cleanup, err := loadConfig(opts, false)
		if err != nil {
			return "", err
		}
		cleanup()
		if cfg.Account.Email == "" {
			return "", errors.New("no account email: pass --email or set account.email")
		}
		return cfg.Account.Email, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := accountEmail()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", addr)
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := config.SetPassword(addr, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password stored for %s\n", addr)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := accountEmail()
			if err != nil {
				return err
			}
			if err := config.DeletePassword(addr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password removed for %s\n", addr)
			return nil
		},
	})

	return cmd
}

// readSecret returns the first line of r without its line ending
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
