package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/atpline/cab/internal/config"
	"github.com/atpline/cab/internal/session"
	"github.com/atpline/cab/internal/store"
)

func newLoginCmd() *cobra.Command {
	var (
		configPath string
		inn        string
		login      string
		password   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the company dispatch backend",
		Long:  "Resolves the company backend by tax ID (INN), exchanges credentials for tokens, and stores the session locally.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath, inn, login, password)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	cmd.Flags().StringVar(&inn, "inn", "", "company tax ID (required)")
	cmd.Flags().StringVar(&login, "login", "", "driver login (required)")
	cmd.Flags().StringVar(&password, "password", "", "driver password (prompted when omitted)")
	cmd.MarkFlagRequired("inn")
	cmd.MarkFlagRequired("login")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath, inn, login, password string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := context.Background()

	if password == "" {
		password, err = promptPassword(out)
		if err != nil {
			return err
		}
	}

	resolver := session.NewResolver(cfg.LookupURL)

	ep, err := resolver.ResolveEndpoint(ctx, inn)
	if err != nil {
		if errors.Is(err, session.ErrNotProvisioned) {
			return fmt.Errorf("company %s has no driver backend provisioned; contact your dispatcher", inn)
		}
		return err
	}

	tok, err := resolver.Authenticate(ctx, ep, login, password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			return fmt.Errorf("login rejected: check your login and password")
		}
		return err
	}

	sess := session.NewSession(inn, ep, login, tok)
	if !resolver.ValidateToken(ctx, sess.BaseURL(), tok.Access) {
		return fmt.Errorf("backend issued a token it does not accept; try again")
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	if err := st.SaveSession(sess); err != nil {
		return err
	}

	fmt.Fprintf(out, "Logged in as %s (tenant %s)\n", login, inn)
	fmt.Fprintf(out, "Backend: %s\n", sess.BaseURL())
	return nil
}

// promptPassword reads the password without echo when stdin is a
// terminal, and as a plain line otherwise (pipes, tests).
func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
