package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/famish99/vidstated/internal/config"
)

// configLoader loads the configuration named by the --config flag
type configLoader func() (*config.Config, error)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "vidstated",
		Short: "Playback state inference for video streams",
		Long: `vidstated attaches MP4, HLS and DASH sources to a media surface and
infers a single playback state (idle, loading, ready, playing, paused,
seeking, buffering, ended) from its events.

Commands:
  serve    Run the player with the control server and events feed
  sources  List the configured sources
  probe    Inspect a stream or file
  replay   Run scripted event traces through the engine`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", getDefaultConfigPath(), "Path to configuration file")

	load := func() (*config.Config, error) {
		return config.LoadConfig(configPath)
	}

	cmd.AddCommand(serveCmd(load))
	cmd.AddCommand(sourcesCmd(load))
	cmd.AddCommand(probeCmd(load))
	cmd.AddCommand(replayCmd())

	return cmd
}

func getDefaultConfigPath() string {
	// Check common locations
	locations := []string{
		"./vidstated.yaml",
		"./config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "vidstated", "config.yaml"),
		"/etc/vidstated/config.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Default to first location if none exist
	return locations[0]
}
