// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/jfplay/internal/app"
	"github.com/ManuGH/jfplay/internal/config"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/store"
	"github.com/ManuGH/jfplay/internal/streamchoice"
	"github.com/ManuGH/jfplay/internal/version"
)

func newStreamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streams <itemID>",
		Short: "Show which source, audio and subtitle stream playback would pick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreams(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runStreams(ctx context.Context, out io.Writer, itemID string) error {
	path, err := app.ResolveConfigPath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return err
	}
	if cfg.Server.URL == "" {
		return app.ErrNoServer
	}

	repo, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = repo.Close() }()

	client := jellyfin.NewClient(cfg.Server.URL, cfg.ClientOptions(version.Version, nil))
	r, err := app.DescribeStreams(ctx, client, repo, streamchoice.New(), cfg.Preferences(), itemID)
	if err != nil {
		return err
	}
	return printReport(out, r)
}

func printReport(out io.Writer, r *app.StreamReport) error {
	fmt.Fprintf(out, "%s (%s, %s)\n", r.Item.Name, r.Item.Type, r.Item.ID)
	if r.Source == nil {
		fmt.Fprintln(out, "no playable media source")
		return nil
	}
	fmt.Fprintf(out, "source: %s (%s)\n", r.Source.ID, r.Source.Container)
	if r.Stored != nil {
		fmt.Fprintf(out, "stored choice: audio=%s subtitle=%s\n", indexOrDash(r.Stored.AudioIndex), r.Stored.Subtitle)
	}
	if r.Series != nil {
		fmt.Fprintf(out, "series choice: audio=%q subtitle=%q disabled=%t\n",
			r.Series.AudioLanguage, r.Series.SubtitleLanguage, r.Series.SubtitlesDisabled)
	}

	chosenSub, hasSub := r.Subtitle.Index()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tINDEX\tTYPE\tLANG\tCODEC\tFLAGS\tTITLE")
	for _, st := range r.Source.MediaStreams {
		if st.Type != jellyfin.StreamAudio && st.Type != jellyfin.StreamSubtitle {
			continue
		}
		mark := ""
		switch {
		case st.Type == jellyfin.StreamAudio && r.Audio != nil && r.Audio.Index == st.Index:
			mark = "*"
		case st.Type == jellyfin.StreamSubtitle && hasSub && chosenSub == st.Index:
			mark = "*"
		}
		title := st.DisplayTitle
		if title == "" {
			title = st.Title
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", mark, st.Index, st.Type, st.Language, st.Codec, flags(st), title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "subtitle: %s\n", r.Subtitle)
	return nil
}

func flags(st jellyfin.MediaStream) string {
	var f []string
	if st.IsDefault {
		f = append(f, "default")
	}
	if st.IsForced {
		f = append(f, "forced")
	}
	if st.DeliveredExternally() {
		f = append(f, "external")
	}
	return strings.Join(f, ",")
}

func indexOrDash(i *int) string {
	if i == nil {
		return "-"
	}
	return fmt.Sprint(*i)
}
