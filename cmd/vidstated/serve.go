package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/famish99/vidstated/internal/backends"
	"github.com/famish99/vidstated/internal/backends/hls"
	"github.com/famish99/vidstated/internal/backends/progressive"
	"github.com/famish99/vidstated/internal/catalog"
	"github.com/famish99/vidstated/internal/config"
	"github.com/famish99/vidstated/internal/control"
	"github.com/famish99/vidstated/internal/manifest"
	"github.com/famish99/vidstated/internal/media"
	"github.com/famish99/vidstated/internal/player"
	"github.com/famish99/vidstated/internal/playback"
	"github.com/famish99/vidstated/internal/probe"
	"github.com/famish99/vidstated/internal/sim"
)

func serveCmd(load configLoader) *cobra.Command {
	var listen, eventsListen string
	var selectIndex int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the player daemon with the control server",
		Long: `Run a player on a simulated media surface and accept control
connections. Every state change is pushed to idle clients and, when
enabled, to websocket clients of the events feed.

Connect with a line client, for example:
  nc localhost 6680
  select 0
  play
  idle`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if listen != "" {
				cfg.Control.Listen = listen
			}
			if cmd.Flags().Changed("events-listen") {
				cfg.Control.EventsListen = eventsListen
			}
			return runServe(cmd.Context(), cfg, selectIndex)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Control server listen address (overrides config)")
	cmd.Flags().StringVar(&eventsListen, "events-listen", "", "Events feed listen address, empty disables it (overrides config)")
	cmd.Flags().IntVar(&selectIndex, "select", -1, "Source index to attach on startup")

	return cmd
}

// runServe wires the daemon together and blocks until SIGINT or SIGTERM
func runServe(ctx context.Context, cfg *config.Config, selectIndex int) error {
	cat := catalog.New()
	for _, src := range cfg.Sources {
		cat.Add(src.Title, src.URL, src.Type)
	}

	fetcher, err := manifest.NewFetcher(cfg.Manifest.CacheEntries, cfg.Manifest.Timeout)
	if err != nil {
		return err
	}

	var prober progressive.Prober
	if cfg.Simulation.ProbeDuration {
		if probe.Available() {
			prober = probe.ProbeVideo
		} else {
			log.Printf("ffprobe not found, progressive durations use the simulation default")
		}
	}

	el := media.NewVirtualElement()
	el.SetAutoplayBlocked(cfg.Simulation.AutoplayBlocked)
	if cfg.Simulation.NativeHLS {
		el.SetNativeType(hls.MimeType, "maybe")
	}

	driver := sim.New(el, sim.Options{
		Tick:               cfg.Simulation.Tick,
		BandwidthKbps:      cfg.Simulation.BandwidthKbps,
		BitrateKbps:        cfg.Simulation.BitrateKbps,
		DefaultDurationSec: cfg.Simulation.DefaultDurationSeconds,
		LookaheadSec:       cfg.Engine.LookaheadSeconds,
	})
	defer driver.Close()

	p := player.NewPlayer(el, cat, player.DefaultRegistry(fetcher, prober), playback.Options{
		PollInterval:     cfg.Engine.PollInterval,
		LookaheadSeconds: cfg.Engine.LookaheadSeconds,
	})
	defer p.Close()

	// Manifest durations drive the simulated timeline
	p.SetOnAttached(func(src catalog.Source, info backends.Info) {
		if info.DurationSec > 0 {
			driver.SetDuration(src.URL, info.DurationSec)
		}
	})

	server := control.NewServer(cfg.Control.Listen, cfg.Control.EventsListen, p)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Simulation stopped: %v", err)
		}
	}()

	if selectIndex >= 0 {
		if err := p.Select(ctx, selectIndex); err != nil {
			log.Printf("Failed to select source %d: %v", selectIndex, err)
		}
	}

	log.Printf("vidstated running with %d sources", cat.Len())
	log.Printf("Connect control clients to %s", server.Addr())

	<-ctx.Done()
	log.Printf("Shutting down...")
	return nil
}
