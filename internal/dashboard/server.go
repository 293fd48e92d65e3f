// Package dashboard serves a local web view of the driver terminal: the
// assigned trips, the status history, and the live dispatcher chat.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atpline/cab/internal/chat"
	"github.com/atpline/cab/internal/trip"
)

// State is one coherent snapshot of everything the dashboard renders,
// including the reference data a status form needs.
type State struct {
	Driver           trip.Driver         `json:"driver"`
	Trips            []trip.Trip         `json:"trips"`
	History          []trip.HistoryEntry `json:"history"`
	Catalog          []trip.Status       `json:"catalog"`
	Clients          []trip.Client       `json:"clients"`
	SelectedStatusID string              `json:"selected_status_id"`
	Messages         []chat.Message      `json:"messages"`
	LastSeenID       string              `json:"last_seen_id"`
}

// Provider supplies dashboard state snapshots.
type Provider interface {
	State(ctx context.Context) (State, error)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Provider Provider
	Port     int
	Out      io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Provider == nil {
		return fmt.Errorf("dashboard: provider is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8380
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := parseTemplates()
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts.Provider)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
