// Package progressive plays single-file sources (MP4, WebM) the element
// can decode natively.
package progressive

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/famish99/vidstated/internal/backends"
	"github.com/famish99/vidstated/internal/media"
	"github.com/famish99/vidstated/internal/probe"
)

// Prober inspects a source out of band. probe.ProbeVideo satisfies it.
type Prober func(ctx context.Context, source string) (*probe.VideoInfo, error)

// Backend implements backends.Backend for progressive files
type Backend struct {
	prober Prober

	mu         sync.Mutex
	el         media.Element
	url        string
	listeners  backends.Listeners
	autoplayed bool
	info       *probe.VideoInfo
	cancel     context.CancelFunc
}

// New creates a progressive backend. prober may be nil.
func New(prober Prober) *Backend {
	return &Backend{prober: prober}
}

func (b *Backend) Name() string {
	return "mp4"
}

// Initialize points the element at url and loads it
func (b *Backend) Initialize(ctx context.Context, el media.Element, url string, cb backends.Callbacks) error {
	b.mu.Lock()
	b.el = el
	b.url = url
	b.autoplayed = false
	probeCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Unlock()

	el.SetSource(url)
	b.setupEventListeners(probeCtx, el, cb)
	el.Load()

	cb.Status("MP4 video loading...")
	log.Printf("MP4 video initialized: %s", url)
	return nil
}

func (b *Backend) setupEventListeners(ctx context.Context, el media.Element, cb backends.Callbacks) {
	b.listeners.RemoveAll()

	b.listeners.Add(el, media.EventLoadStart, func(media.Event) {
		cb.Status("Started loading video")
	})
	b.listeners.Add(el, media.EventLoadedMetadata, func(media.Event) {
		cb.Ready("Video metadata loaded")
		b.logVideoInfo(ctx, el)
	})
	b.listeners.Add(el, media.EventLoadedData, func(media.Event) {
		cb.Status("Video data loaded")
	})
	b.listeners.Add(el, media.EventCanPlay, func(media.Event) {
		cb.Ready("Video ready to play")

		// Only the first canplay of a source triggers autoplay
		b.mu.Lock()
		first := !b.autoplayed
		b.autoplayed = true
		b.mu.Unlock()
		if first {
			backends.ReportAutoplay("MP4", el, cb)
		}
	})
	b.listeners.Add(el, media.EventCanPlayThrough, func(media.Event) {
		cb.Ready("Video can play through")
	})
	b.listeners.Add(el, media.EventProgress, func(media.Event) {
		if pct, ok := BufferedPercent(el); ok {
			log.Printf("Buffered: %d%%", pct)
		}
	})
	b.listeners.Add(el, media.EventError, func(media.Event) {
		msg := el.Error().Classify()
		log.Printf("MP4 video error: %s", msg)
		cb.Error(fmt.Sprintf("Error loading video: %s", msg))
	})
	b.listeners.Add(el, media.EventStalled, func(media.Event) {
		cb.Status("Video loading stalled")
	})
	b.listeners.Add(el, media.EventPlay, func(media.Event) {
		log.Printf("Video started playing")
	})
	b.listeners.Add(el, media.EventPause, func(media.Event) {
		log.Printf("Video paused")
	})
	b.listeners.Add(el, media.EventEnded, func(media.Event) {
		log.Printf("Video playback ended")
	})
}

func (b *Backend) logVideoInfo(ctx context.Context, el media.Element) {
	log.Printf("Video info: duration=%.2fs readyState=%s", el.Duration(), el.ReadyState())

	if b.prober == nil {
		return
	}
	b.mu.Lock()
	url := b.url
	b.mu.Unlock()

	go func() {
		info, err := b.prober(ctx, url)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Warning: failed to probe %s: %v", url, err)
			}
			return
		}
		log.Printf("Video stream: %dx%d %s, %.2fs", info.Width, info.Height, info.Codec, info.DurationSec)
		b.mu.Lock()
		b.info = info
		b.mu.Unlock()
	}()
}

// Describe implements backends.Describer
func (b *Backend) Describe() backends.Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info == nil {
		return backends.Info{}
	}
	return backends.Info{DurationSec: b.info.DurationSec}
}

// Destroy removes listeners and empties the element
func (b *Backend) Destroy() {
	b.listeners.RemoveAll()

	b.mu.Lock()
	el := b.el
	b.el = nil
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.mu.Unlock()

	if el != nil {
		el.SetSource("")
		el.Load()
		log.Printf("MP4 player destroyed")
	}
}

// BufferedPercent returns how much of the media is buffered, measured at the
// end of the last buffered range
func BufferedPercent(s media.Surface) (int, bool) {
	end := s.Buffered().End()
	duration := s.Duration()
	if end <= 0 || duration <= 0 || math.IsInf(duration, 0) {
		return 0, false
	}
	return int(math.Round(end / duration * 100)), true
}
