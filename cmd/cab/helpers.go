package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/atpline/cab/internal/api"
	"github.com/atpline/cab/internal/config"
	"github.com/atpline/cab/internal/models"
	"github.com/atpline/cab/internal/session"
	"github.com/atpline/cab/internal/store"
)

const defaultConfigPath = "cab.yaml"

// openSession loads config, opens the local store, and returns the
// persisted session. Commands that need an authenticated gateway start
// here.
func openSession(configPath string) (*config.Config, *store.Store, *models.Session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, nil, err
	}
	sess, err := st.LoadSession()
	if err != nil {
		if errors.Is(err, store.ErrNoSession) {
			return nil, nil, nil, fmt.Errorf("not logged in; run \"cab login\" first")
		}
		return nil, nil, nil, err
	}
	return cfg, st, sess, nil
}

// buildGateway wires the authenticated API client over the stored
// session, with automatic token refresh through the store.
func buildGateway(cfg *config.Config, st *store.Store, sess *models.Session) (*api.Client, error) {
	ts := session.TokenSource(st, session.NewResolver(cfg.LookupURL))
	return api.NewClient(api.Opts{
		BaseURL:     sess.BaseURL(),
		TokenSource: ts,
	})
}

// newLogger builds a console logger for long-running commands.
func newLogger(out io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()
	return ctx, cancel
}
