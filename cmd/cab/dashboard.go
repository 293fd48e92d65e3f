package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/atpline/cab/internal/chat"
	"github.com/atpline/cab/internal/dashboard"
	"github.com/atpline/cab/internal/trip"
)

// boardTTL is how long a fetched trip board stays fresh for the
// dashboard before it is reloaded from the backend.
const boardTTL = 30 * time.Second

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the local web dashboard",
		Long:  "Launches a local web view of the assigned trips, status history, and live dispatcher chat.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (defaults to dashboard.port)")
	return cmd
}

func runDashboard(cmd *cobra.Command, configPath string, port int) error {
	cfg, st, sess, err := openSession(configPath)
	if err != nil {
		return err
	}
	client, err := buildGateway(cfg, st, sess)
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr())

	eng, err := chat.NewEngine(chat.Opts{
		Client:   client,
		Store:    st,
		Interval: cfg.PollInterval,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	svc := trip.NewService(client, log)

	ctx, cancel := signalContext(cmd.OutOrStdout())
	defer cancel()

	// Keep the chat engine polling; the dashboard reads its state, so the
	// emitted messages only need draining.
	msgs := eng.Run(ctx)
	go func() {
		for range msgs {
		}
	}()

	if port <= 0 {
		port = cfg.Dashboard.Port
	}
	return dashboard.Start(ctx, dashboard.StartOpts{
		Provider: &liveState{eng: eng, trips: svc},
		Port:     port,
		Out:      cmd.OutOrStdout(),
	})
}

// liveState adapts the chat engine and trip service to the dashboard
// Provider. Trip data is cached for ttl; chat state is always live. The
// lock is never held across a backend call: a stale board is refreshed
// by at most one caller while the others keep serving the cached copy.
type liveState struct {
	eng   *chat.Engine
	trips *trip.Service
	ttl   time.Duration // defaults to boardTTL

	mu         sync.Mutex
	board      *trip.Board
	history    []trip.HistoryEntry
	selected   string
	fetched    time.Time
	refreshing bool
}

func (p *liveState) State(ctx context.Context) (dashboard.State, error) {
	ttl := p.ttl
	if ttl <= 0 {
		ttl = boardTTL
	}

	p.mu.Lock()
	fetch := (p.board == nil || time.Since(p.fetched) > ttl) && !p.refreshing
	if fetch {
		p.refreshing = true
	}
	p.mu.Unlock()

	if fetch {
		board, err := p.trips.Bootstrap(ctx)
		var (
			history []trip.HistoryEntry
			hErr    error
		)
		if err == nil {
			history, hErr = p.trips.History(ctx, board.OrderID)
		}

		p.mu.Lock()
		p.refreshing = false
		if err != nil {
			if p.board == nil {
				p.mu.Unlock()
				return dashboard.State{}, err
			}
			// Stale trip data beats an empty dashboard.
		} else {
			p.board = board
			p.fetched = time.Now()
			if hErr == nil {
				p.history = history
			}
			p.selected = trip.ReconcileSelectedStatus(p.history, board.Catalog)
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state := dashboard.State{
		Messages:   p.eng.Messages(),
		LastSeenID: p.eng.LastSeenID(),
	}
	if p.board != nil {
		state.Driver = p.board.Driver
		state.Trips = p.board.Trips
		state.History = p.history
		state.Catalog = p.board.Catalog
		state.Clients = p.board.Clients
		state.SelectedStatusID = p.selected
	}
	return state, nil
}
