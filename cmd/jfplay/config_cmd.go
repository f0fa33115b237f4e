// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/jfplay/internal/app"
	"github.com/ManuGH/jfplay/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force     bool
		serverURL string
		token     string
		userID    string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file with a fresh device id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := strings.TrimSpace(configPath)
			if path == "" {
				path = app.DefaultConfigPath()
			}
			if path == "" {
				return fmt.Errorf("--config is required (no user config directory)")
			}

			cfg := config.Defaults()
			cfg.Server.URL = serverURL
			cfg.Server.Token = token
			cfg.Server.UserID = userID
			config.EnsureDeviceID(&cfg)
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.WriteFile(path, cfg, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (device id %s)\n", path, cfg.Server.DeviceID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.Flags().StringVar(&serverURL, "server", "", "Jellyfin server URL")
	cmd.Flags().StringVar(&token, "token", "", "Jellyfin access token")
	cmd.Flags().StringVar(&userID, "user", "", "Jellyfin user id")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := app.ResolveConfigPath(configPath)
			if err != nil {
				return err
			}
			cfg, err := config.NewLoader(path).Load()
			if err != nil {
				return err
			}
			if path == "" {
				path = "environment and defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n\n%s", path, cfg)
			return nil
		},
	}
}
