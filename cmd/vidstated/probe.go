package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/famish99/vidstated/internal/catalog"
	"github.com/famish99/vidstated/internal/manifest"
	"github.com/famish99/vidstated/internal/probe"
)

func probeCmd(load configLoader) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Inspect a stream or file",
		Long: `Detect the kind of a source and describe it. HLS playlists and DASH
manifests are fetched and summarized; progressive files go through ffprobe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fetcher, err := manifest.NewFetcher(cfg.Manifest.CacheEntries, cfg.Manifest.Timeout)
			if err != nil {
				return err
			}
			return runProbe(cmd.Context(), cmd.OutOrStdout(), fetcher, catalog.Source{URL: args[0], Type: typ})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "Source type (mp4, hls, dash); detected from the URL when empty")

	return cmd
}

func runProbe(ctx context.Context, w io.Writer, fetcher *manifest.Fetcher, src catalog.Source) error {
	kind := src.Kind()
	fmt.Fprintf(w, "%s: %s\n", src.URL, kind)

	switch kind {
	case catalog.KindHLS:
		summary, err := fetcher.FetchHLS(ctx, src.URL)
		if err != nil {
			return err
		}
		renderHLS(w, summary)

	case catalog.KindDASH:
		summary, err := fetcher.FetchDASH(ctx, src.URL)
		if err != nil {
			return err
		}
		renderDASH(w, summary)

	default:
		info, err := probe.ProbeVideo(ctx, src.URL)
		if err != nil {
			return err
		}
		renderVideo(w, info)
	}
	return nil
}

func renderHLS(w io.Writer, s *manifest.HLSSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	if s.Master {
		t.SetTitle("HLS master playlist")
		t.AppendHeader(table.Row{"Bandwidth", "Resolution", "Codecs", "URI"})
		for _, v := range s.Variants {
			t.AppendRow(table.Row{fmt.Sprintf("%d kbps", v.Bandwidth/1000), v.Resolution, v.Codecs, v.URI})
		}
		t.Render()
		return
	}

	t.SetTitle("HLS media playlist")
	t.AppendRows([]table.Row{
		{"Segments", s.Segments},
		{"Target duration", fmt.Sprintf("%.0fs", s.TargetDuration)},
		{"Duration", fmt.Sprintf("%.3fs", s.DurationSec)},
		{"Live", s.Live},
	})
	t.Render()
}

func renderDASH(w io.Writer, s *manifest.DASHSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("DASH %s manifest, %d period(s), %.3fs", s.Type, s.Periods, s.DurationSec)
	t.AppendHeader(table.Row{"ID", "Bandwidth", "MIME type", "Codecs"})
	for _, r := range s.Representations {
		t.AppendRow(table.Row{r.ID, fmt.Sprintf("%d kbps", r.Bandwidth/1000), r.MimeType, r.Codecs})
	}
	t.Render()
}

func renderVideo(w io.Writer, info *probe.VideoInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Codec", info.Codec},
		{"Resolution", fmt.Sprintf("%dx%d", info.Width, info.Height)},
		{"Duration", fmt.Sprintf("%.3fs", info.DurationSec)},
	})
	t.Render()
}
