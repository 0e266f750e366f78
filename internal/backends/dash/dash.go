// Package dash plays DASH presentations from a fetched MPD.
package dash

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/famish99/vidstated/internal/backends"
	"github.com/famish99/vidstated/internal/manifest"
	"github.com/famish99/vidstated/internal/media"
)

// Backend implements backends.Backend for DASH
type Backend struct {
	fetcher *manifest.Fetcher

	mu         sync.Mutex
	el         media.Element
	summary    *manifest.DASHSummary
	autoplayed bool
	listeners  backends.Listeners
}

func New(fetcher *manifest.Fetcher) *Backend {
	return &Backend{fetcher: fetcher}
}

func (b *Backend) Name() string {
	return "dash"
}

// Summary returns the parsed manifest, or nil before Initialize succeeds
func (b *Backend) Summary() *manifest.DASHSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

// Describe implements backends.Describer
func (b *Backend) Describe() backends.Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.summary == nil {
		return backends.Info{}
	}
	info := backends.Info{
		DurationSec: b.summary.DurationSec,
		Live:        b.summary.Live(),
	}
	for _, r := range b.summary.Representations {
		info.Levels = append(info.Levels, fmt.Sprintf("%s %d kbps", r.ID, r.Bandwidth/1000))
	}
	return info
}

func (b *Backend) Initialize(ctx context.Context, el media.Element, url string, cb backends.Callbacks) error {
	if b.fetcher == nil {
		cb.Error("Failed to initialize DASH player")
		return fmt.Errorf("dash: %w", backends.ErrUnsupported)
	}

	b.mu.Lock()
	b.el = el
	b.summary = nil
	b.autoplayed = false
	b.mu.Unlock()

	cb.Status("Initializing DASH stream...")
	summary, err := b.fetcher.FetchDASH(ctx, url)
	if err != nil {
		log.Printf("DASH player error: %v", err)
		cb.Error("Failed to load DASH stream")
		b.Destroy()
		return fmt.Errorf("dash: %w", err)
	}

	b.mu.Lock()
	b.summary = summary
	b.mu.Unlock()

	b.listeners.Add(el, media.EventCanPlay, func(media.Event) {
		b.mu.Lock()
		first := !b.autoplayed
		b.autoplayed = true
		b.mu.Unlock()
		if first {
			log.Printf("DASH stream ready for playback")
			backends.ReportAutoplay("DASH", el, cb)
		}
	})
	b.listeners.Add(el, media.EventError, func(media.Event) {
		log.Printf("DASH player error: %s", el.Error().Classify())
		cb.Error("Failed to load DASH stream")
	})

	el.SetSource(url)
	el.Load()

	log.Printf("DASH stream initialized: %s (%s, %d representations)", url, summary.Type, len(summary.Representations))
	cb.Ready("DASH stream initialized")
	cb.Status("DASH player initialized")
	return nil
}

func (b *Backend) Destroy() {
	b.listeners.RemoveAll()

	b.mu.Lock()
	el := b.el
	b.el = nil
	b.mu.Unlock()

	if el != nil {
		el.SetSource("")
		el.Load()
		log.Printf("DASH player destroyed")
	}
}
