package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atpline/cab/internal/config"
	"github.com/atpline/cab/internal/store"
)

func newLogoutCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.StorePath)
			if err != nil {
				return err
			}
			if _, err := st.LoadSession(); err != nil {
				if errors.Is(err, store.ErrNoSession) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
					return nil
				}
				return err
			}
			if err := st.DeleteSession(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	return cmd
}
