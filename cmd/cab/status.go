package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atpline/cab/internal/trip"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Trip status commands",
	}

	cmd.AddCommand(newStatusListCmd())
	cmd.AddCommand(newStatusHistoryCmd())
	cmd.AddCommand(newStatusSetCmd())
	cmd.AddCommand(newStatusWatchCmd())
	return cmd
}

func statusService(cmd *cobra.Command, configPath string) (*trip.Service, error) {
	cfg, st, sess, err := openSession(configPath)
	if err != nil {
		return nil, err
	}
	client, err := buildGateway(cfg, st, sess)
	if err != nil {
		return nil, err
	}
	return trip.NewService(client, newLogger(cmd.ErrOrStderr())), nil
}

func newStatusListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the available statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := statusService(cmd, configPath)
			if err != nil {
				return err
			}
			catalog, err := svc.Catalog(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, s := range catalog {
				fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Name)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	return cmd
}

func newStatusHistoryCmd() *cobra.Command {
	var (
		configPath string
		orderID    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the status history for an order",
		Long:  "Lists recorded status changes newest first. Without --order the first order of the first trip is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := statusService(cmd, configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if orderID == "" {
				board, err := svc.Bootstrap(ctx)
				if err != nil {
					return err
				}
				orderID = board.OrderID
			}
			if orderID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No active order")
				return nil
			}

			history, err := svc.History(ctx, orderID)
			if err != nil {
				return err
			}
			printHistory(cmd, history)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	cmd.Flags().StringVar(&orderID, "order", "", "order to show history for")
	return cmd
}

func newStatusSetCmd() *cobra.Command {
	var (
		configPath string
		statusID   string
		clientID   string
		volume     string
		note       string
		at         string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Submit a status update",
		Long:  "Submits a status change for the active order. Route, order, and client default from the assigned trip; without --status-id the status of the latest history entry is reused.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := statusService(cmd, configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			board, err := svc.Bootstrap(ctx)
			if err != nil {
				return err
			}
			if clientID == "" && len(board.Clients) > 0 {
				clientID = board.Clients[0].ID
			}
			if statusID == "" {
				history, err := svc.History(ctx, board.OrderID)
				if err != nil {
					return err
				}
				statusID = trip.ReconcileSelectedStatus(history, board.Catalog)
				if statusID == "" {
					return fmt.Errorf("cannot infer a status from the history; pass --status-id")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reusing status %s from the latest history entry\n", statusID)
			}

			stamp := time.Now()
			if at != "" {
				stamp, err = parseStampFlag(at)
				if err != nil {
					return err
				}
			}

			form := trip.Form{
				Stamp:    stamp,
				StatusID: statusID,
				ClientID: clientID,
				RouteID:  board.RouteID,
				OrderID:  board.OrderID,
				Volume:   volume,
				Note:     note,
			}
			if err := svc.SubmitStatus(ctx, form); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Status submitted")

			history, _, err := svc.Refresh(ctx, board.OrderID)
			if err != nil {
				return err
			}
			printHistory(cmd, history)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	cmd.Flags().StringVar(&statusID, "status-id", "", "status catalog id (defaults to the latest history entry)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "client id (defaults to the first client)")
	cmd.Flags().StringVar(&volume, "volume", "", "volume, e.g. 3.5")
	cmd.Flags().StringVar(&note, "note", "", "free-form comment")
	cmd.Flags().StringVar(&at, "at", "", `timestamp "2006-01-02 15:04:05" or "15:04" (defaults to now)`)
	return cmd
}

func newStatusWatchCmd() *cobra.Command {
	var (
		configPath string
		orderID    string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow status changes until interrupted",
		Long:  "Polls the status history on the configured interval and prints every new entry. Without --order the first order of the first trip is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, sess, err := openSession(configPath)
			if err != nil {
				return err
			}
			client, err := buildGateway(cfg, st, sess)
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr())
			svc := trip.NewService(client, log)

			ctx, cancel := signalContext(cmd.OutOrStdout())
			defer cancel()

			if orderID == "" {
				board, err := svc.Bootstrap(ctx)
				if err != nil {
					return err
				}
				orderID = board.OrderID
			}
			if orderID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No active order")
				return nil
			}

			watcher, err := trip.NewWatcher(trip.WatcherOpts{
				Service:  svc,
				OrderID:  orderID,
				Interval: cfg.PollInterval,
				Logger:   log,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching order %s\n", orderID)
			for e := range watcher.Run(ctx) {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s", e.Entry.Stamp, e.Entry.Status)
				if e.Entry.Volume != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " volume=%s", e.Entry.Volume)
				}
				if e.Entry.Note != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " %s", e.Entry.Note)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	cmd.Flags().StringVar(&orderID, "order", "", "order to watch")
	return cmd
}

func printHistory(cmd *cobra.Command, history []trip.HistoryEntry) {
	out := cmd.OutOrStdout()
	if len(history) == 0 {
		fmt.Fprintln(out, "No status history")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATUS\tVOLUME\tNOTE")
	for _, h := range history {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Stamp, h.Status, h.Volume, h.Note)
	}
	w.Flush()
}

// parseStampFlag accepts a full timestamp or a bare clock time, which is
// applied to today's date.
func parseStampFlag(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", s, time.Local); err == nil {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.Local), nil
	}
	return time.Time{}, fmt.Errorf(`cannot parse %q; use "2006-01-02 15:04:05" or "15:04"`, s)
}
