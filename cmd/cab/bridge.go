package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atpline/cab/internal/chat"
	"github.com/atpline/cab/internal/config"
	"github.com/atpline/cab/internal/notify"
	"github.com/atpline/cab/internal/notify/discord"
	"github.com/atpline/cab/internal/notify/slack"
	"github.com/atpline/cab/internal/notify/telegram"
	"github.com/atpline/cab/internal/trip"
)

func newBridgeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Mirror dispatcher chat and status changes to external channels",
		Long:  "Runs the chat poller and the status watcher, forwarding dispatcher messages and new status entries to every configured platform (Slack, Discord, Telegram), with an optional periodic trip digest.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	return cmd
}

func runBridge(cmd *cobra.Command, configPath string) error {
	cfg, st, sess, err := openSession(configPath)
	if err != nil {
		return err
	}
	client, err := buildGateway(cfg, st, sess)
	if err != nil {
		return err
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		return fmt.Errorf("no bridge adapters configured; set a token in the bridge section of %s", configPath)
	}

	log := newLogger(cmd.ErrOrStderr())
	bridge := notify.NewBridge(log, adapters...)
	defer bridge.Close()

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

	fmt.Fprintf(cmd.OutOrStdout(), "Bridging chat to: %s\n", strings.Join(bridge.Adapters(), ", "))

	var statuses <-chan trip.StatusEvent
	if board, err := svc.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("status watch disabled: cannot load trips")
	} else if board.OrderID != "" {
		watcher, err := trip.NewWatcher(trip.WatcherOpts{
			Service:  svc,
			OrderID:  board.OrderID,
			Interval: cfg.PollInterval,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		statuses = watcher.Run(ctx)
	}

	msgs := eng.Run(ctx)
	bridge.Run(ctx, msgs, statuses, cfg.Bridge.DigestCron, tripDigest(svc))
	return nil
}

// buildAdapters creates an adapter for every platform with a token set.
func buildAdapters(cfg *config.Config) ([]notify.Adapter, error) {
	var adapters []notify.Adapter

	if cfg.Bridge.Slack.BotToken != "" {
		a, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Bridge.Slack.BotToken,
			ChannelID: cfg.Bridge.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Bridge.Discord.BotToken != "" {
		a, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Bridge.Discord.BotToken,
			ChannelID: cfg.Bridge.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Bridge.Telegram.BotToken != "" {
		a, err := telegram.New(telegram.AdapterOpts{
			Token:  cfg.Bridge.Telegram.BotToken,
			ChatID: cfg.Bridge.Telegram.ChatID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// tripDigest summarizes the current trips and the latest status. The
// digest is suppressed when no trips are assigned.
func tripDigest(svc *trip.Service) notify.DigestFunc {
	return func(ctx context.Context) (notify.Event, bool, error) {
		board, err := svc.Bootstrap(ctx)
		if err != nil {
			return notify.Event{}, false, err
		}
		if len(board.Trips) == 0 {
			return notify.Event{}, false, nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d trip(s), %d client(s)", len(board.Trips), len(board.Clients))
		if history, err := svc.History(ctx, board.OrderID); err == nil && len(history) > 0 {
			fmt.Fprintf(&b, "\nLatest status: %s at %s", history[0].Status, history[0].Stamp)
		}

		return notify.Event{
			Kind:  notify.KindDigest,
			Title: "Trip digest for " + board.Driver.FullName,
			Body:  b.String(),
			Stamp: time.Now(),
		}, true, nil
	}
}
