// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/jfplay/internal/app"
	"github.com/ManuGH/jfplay/internal/version"
)

func newPlayCmd() *cobra.Command {
	var start time.Duration
	cmd := &cobra.Command{
		Use:   "play [itemID...]",
		Short: "Play items in order and serve the control API",
		Long: `Play the given items one after another. Without items the control API
waits for POST /v1/playback/play. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, args, start)
		},
	}
	cmd.Flags().DurationVar(&start, "start", 0, "start position of the first item (e.g. 1m30s)")
	return cmd
}

func runPlay(ctx context.Context, items []string, start time.Duration) error {
	a, err := app.Wire(ctx, app.Options{ConfigPath: configPath, Version: version.Version})
	if err != nil {
		return err
	}
	a.Logger.Info().Str("version", version.Version).Int("queued", len(items)).Msg("starting jfplay")
	return a.Run(ctx, items, start)
}
