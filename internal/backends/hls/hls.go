// Package hls plays HLS playlists, natively when the element supports them
// and through a fetched manifest otherwise.
package hls

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/famish99/vidstated/internal/backends"
	"github.com/famish99/vidstated/internal/manifest"
	"github.com/famish99/vidstated/internal/media"
)

// MimeType is the type asked of the element to detect native support
const MimeType = "application/vnd.apple.mpegurl"

// Backend implements backends.Backend for HLS
type Backend struct {
	fetcher *manifest.Fetcher

	mu        sync.Mutex
	el        media.Element
	native    bool
	summary   *manifest.HLSSummary
	listeners backends.Listeners
}

// New creates an HLS backend. Without a fetcher only native playback works.
func New(fetcher *manifest.Fetcher) *Backend {
	return &Backend{fetcher: fetcher}
}

func (b *Backend) Name() string {
	return "hls"
}

// Native reports whether the last Initialize used the element's own HLS support
func (b *Backend) Native() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.native
}

// Levels returns the quality levels of the loaded master playlist
func (b *Backend) Levels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.summary == nil {
		return nil
	}
	return b.summary.Levels()
}

// Describe implements backends.Describer
func (b *Backend) Describe() backends.Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.summary == nil {
		return backends.Info{}
	}
	return backends.Info{
		DurationSec: b.summary.DurationSec,
		Live:        b.summary.Live,
		Levels:      b.summary.Levels(),
	}
}

func (b *Backend) Initialize(ctx context.Context, el media.Element, url string, cb backends.Callbacks) error {
	b.mu.Lock()
	b.el = el
	b.summary = nil
	b.native = el.CanPlayType(MimeType) != ""
	native := b.native
	b.mu.Unlock()

	if native {
		b.initializeNative(el, url, cb)
		return nil
	}
	if b.fetcher == nil {
		cb.Error("HLS not supported by this player")
		return fmt.Errorf("hls: %w", backends.ErrUnsupported)
	}
	return b.initializeFetched(ctx, el, url, cb)
}

func (b *Backend) initializeNative(el media.Element, url string, cb backends.Callbacks) {
	el.SetSource(url)
	el.Load()

	cb.Status("HLS loaded (native support)")
	cb.Ready("HLS ready (native)")
	log.Printf("HLS loaded natively: %s", url)
}

func (b *Backend) initializeFetched(ctx context.Context, el media.Element, url string, cb backends.Callbacks) error {
	cb.Status("HLS player initialized")

	summary, err := b.fetcher.FetchHLS(ctx, url)
	if err != nil && manifest.IsNetworkError(err) {
		// One reload attempt, bypassing the cache
		log.Printf("HLS network error, trying to recover: %v", err)
		cb.Status("HLS network error - attempting recovery")
		b.fetcher.Invalidate(url)
		summary, err = b.fetcher.FetchHLS(ctx, url)
	}
	if err != nil {
		log.Printf("HLS error: %v", err)
		cb.Error("Fatal HLS error - cannot recover")
		b.Destroy()
		return fmt.Errorf("hls: %w", err)
	}

	b.mu.Lock()
	b.summary = summary
	b.mu.Unlock()

	b.listeners.Add(el, media.EventLoadStart, func(media.Event) {
		log.Printf("HLS media attached")
	})
	el.SetSource(url)
	el.Load()

	if summary.Master {
		log.Printf("HLS manifest parsed. Quality levels: %d", len(summary.Variants))
	} else {
		log.Printf("HLS manifest parsed. Segments: %d, live: %v", summary.Segments, summary.Live)
	}
	cb.Ready("HLS stream ready")
	return nil
}

// Destroy detaches from the element and clears its source
func (b *Backend) Destroy() {
	b.listeners.RemoveAll()

	b.mu.Lock()
	el := b.el
	b.el = nil
	b.mu.Unlock()

	if el != nil {
		el.SetSource("")
		el.Load()
		log.Printf("HLS player destroyed")
	}
}
