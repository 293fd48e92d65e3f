package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/atpline/cab/internal/chat"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Dispatcher chat commands",
	}

	cmd.AddCommand(newChatHistoryCmd())
	cmd.AddCommand(newChatSendCmd())
	cmd.AddCommand(newChatWatchCmd())
	return cmd
}

func buildEngine(cmd *cobra.Command, configPath string) (*chat.Engine, error) {
	cfg, st, sess, err := openSession(configPath)
	if err != nil {
		return nil, err
	}
	client, err := buildGateway(cfg, st, sess)
	if err != nil {
		return nil, err
	}
	return chat.NewEngine(chat.Opts{
		Client:   client,
		Store:    st,
		Interval: cfg.PollInterval,
		Logger:   newLogger(cmd.ErrOrStderr()),
	})
}

func newChatHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch and print the chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, configPath)
			if err != nil {
				return err
			}
			if _, err := eng.Pull(cmd.Context()); err != nil {
				return err
			}
			for _, m := range eng.Messages() {
				printMessage(cmd, m)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	return cmd
}

func newChatSendCmd() *cobra.Command {
	var (
		configPath string
		text       string
		files      []string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message and/or files to the dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && len(files) == 0 {
				return fmt.Errorf("nothing to send: use --message and/or --file")
			}

			eng, err := buildEngine(cmd, configPath)
			if err != nil {
				return err
			}

			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read attachment: %w", err)
				}
				eng.QueueAttachment(chat.Attachment{Name: filepath.Base(path), Data: data})
			}

			report := eng.Send(cmd.Context(), text)
			out := cmd.OutOrStdout()
			if report.TextErr != nil {
				return fmt.Errorf("message not delivered: %w", report.TextErr)
			}
			for name, err := range report.FileErrs {
				fmt.Fprintf(out, "Failed to upload %s: %v\n", name, err)
			}
			sent := len(files) - len(report.FileErrs)
			if text != "" {
				fmt.Fprintln(out, "Message delivered")
			}
			if sent > 0 {
				fmt.Fprintf(out, "Uploaded %d file(s)\n", sent)
			}
			if len(report.FileErrs) > 0 {
				return fmt.Errorf("%d file(s) failed", len(report.FileErrs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	cmd.Flags().StringVarP(&text, "message", "m", "", "message text")
	cmd.Flags().StringSliceVar(&files, "file", nil, "file to attach (repeatable)")
	return cmd
}

func newChatWatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the chat until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, configPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.OutOrStdout())
			defer cancel()

			for m := range eng.Run(ctx) {
				printMessage(cmd, m)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	return cmd
}

func printMessage(cmd *cobra.Command, m chat.Message) {
	out := cmd.OutOrStdout()
	who := "dispatcher"
	if m.Author == chat.AuthorDriver {
		who = "me"
	}
	suffix := ""
	if m.Delivery == chat.DeliveryFailed {
		suffix = " [failed]"
	}
	if m.FileName != "" {
		fmt.Fprintf(out, "[%s] %s: (file) %s%s\n", m.RawStamp, who, m.FileName, suffix)
		return
	}
	fmt.Fprintf(out, "[%s] %s: %s%s\n", m.RawStamp, who, m.Text, suffix)
}
