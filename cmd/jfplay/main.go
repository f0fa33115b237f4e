// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command jfplay plays Jellyfin items on a TV-attached host and exposes a
// local control API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/jfplay/internal/version"
)

// CLI flags
var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jfplay",
		Short:         "jfplay - Jellyfin playback core",
		Long:          `jfplay negotiates Jellyfin playback, chooses audio and subtitle streams, drives a native player and serves a local control API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (or set JFPLAY_CONFIG)")

	root.AddCommand(newPlayCmd(), newStreamsCmd(), newConfigCmd(), &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
