package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/famish99/vidstated/internal/catalog"
	"github.com/famish99/vidstated/internal/config"
)

func sourcesCmd(load configLoader) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return renderSources(cmd.OutOrStdout(), cfg, kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list sources of this kind (mp4, hls, dash)")

	return cmd
}

// renderSources prints the catalog built from cfg as a table
func renderSources(w io.Writer, cfg *config.Config, kind string) error {
	cat := catalog.New()
	for _, src := range cfg.Sources {
		cat.Add(src.Title, src.URL, src.Type)
	}

	sources := cat.All()
	if kind != "" {
		k := catalog.ParseKind(kind)
		if k == catalog.KindUnknown {
			return fmt.Errorf("unknown source kind: %s", kind)
		}
		sources = cat.Filter(k)
	}

	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources configured")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Title", "Kind", "URL"})
	for _, src := range sources {
		t.AppendRow(table.Row{src.Index, src.Title, src.Kind(), src.URL})
	}
	t.Render()
	return nil
}
