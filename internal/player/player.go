package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/famish99/vidstated/internal/backends"
	"github.com/famish99/vidstated/internal/backends/dash"
	"github.com/famish99/vidstated/internal/backends/hls"
	"github.com/famish99/vidstated/internal/backends/progressive"
	"github.com/famish99/vidstated/internal/catalog"
	"github.com/famish99/vidstated/internal/manifest"
	"github.com/famish99/vidstated/internal/media"
	"github.com/famish99/vidstated/internal/playback"
)

// Player owns a media element and runs at most one session on it: the
// selected source, the backend attached to it and the engine watching it.
type Player struct {
	el         media.Element
	catalog    *catalog.Catalog
	registry   *backends.Registry
	engineOpts playback.Options

	// Serializes Select, Clear and Close
	sessionMu sync.Mutex

	mu              sync.Mutex
	engine          *playback.Engine
	backend         backends.Backend
	source          *catalog.Source
	message         string
	lastError       string
	autoplayBlocked bool
	closed          bool

	// State change notification callback (e.g., for idle clients)
	notify func(playback.StateChangeEvent)

	// Called after a backend has been initialized for a source
	onAttached func(src catalog.Source, info backends.Info)
}

// DefaultRegistry registers the progressive, HLS and DASH backends
func DefaultRegistry(fetcher *manifest.Fetcher, prober progressive.Prober) *backends.Registry {
	r := backends.NewRegistry()
	r.Register(catalog.KindMP4, func() backends.Backend { return progressive.New(prober) })
	r.Register(catalog.KindHLS, func() backends.Backend { return hls.New(fetcher) })
	r.Register(catalog.KindDASH, func() backends.Backend { return dash.New(fetcher) })
	return r
}

// NewPlayer creates a player for el choosing sources from cat
func NewPlayer(el media.Element, cat *catalog.Catalog, registry *backends.Registry, engineOpts playback.Options) *Player {
	return &Player{
		el:         el,
		catalog:    cat,
		registry:   registry,
		engineOpts: engineOpts,
	}
}

// SetNotify sets the callback for state changes of the current session
func (p *Player) SetNotify(callback func(playback.StateChangeEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = callback
}

// SetOnAttached sets the callback run once a backend is attached to a source
func (p *Player) SetOnAttached(callback func(src catalog.Source, info backends.Info)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAttached = callback
}

// Catalog returns the source catalog
func (p *Player) Catalog() *catalog.Catalog {
	return p.catalog
}

// Element returns the media element the player drives
func (p *Player) Element() media.Element {
	return p.el
}

// Select tears down the current session and starts a new one for the
// source at index
func (p *Player) Select(ctx context.Context, index int) error {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()

	if p.isClosed() {
		return ErrClosed
	}

	src, err := p.catalog.Get(index)
	if err != nil {
		return err
	}

	kind := src.Kind()
	if kind == catalog.KindUnknown {
		log.Printf("Unknown source type for %s, trying progressive playback", src.URL)
		kind = catalog.KindMP4
	}
	// Nothing changes until a backend exists for the new source
	backend, err := p.registry.New(kind)
	if err != nil {
		return fmt.Errorf("failed to create backend for %q: %w", src.Title, err)
	}

	p.teardown()
	if _, err := p.catalog.Select(index); err != nil {
		return err
	}

	engine := playback.New(p.el, p.engineOpts)
	engine.Subscribe(p.forward)

	p.mu.Lock()
	p.engine = engine
	p.backend = backend
	p.source = &src
	p.message = ""
	p.lastError = ""
	p.autoplayBlocked = false
	p.mu.Unlock()

	log.Printf("Loaded: %s (%s, %s backend)", src.Title, src.URL, backend.Name())
	if err := backend.Initialize(ctx, p.el, src.URL, p.callbacks()); err != nil {
		return fmt.Errorf("failed to initialize %s backend: %w", backend.Name(), err)
	}

	p.mu.Lock()
	onAttached := p.onAttached
	p.mu.Unlock()
	if onAttached != nil {
		var info backends.Info
		if d, ok := backend.(backends.Describer); ok {
			info = d.Describe()
		}
		onAttached(src, info)
	}
	return nil
}

// Clear ends the current session and empties the element
func (p *Player) Clear() {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()

	p.teardown()
	p.catalog.Deselect()
	if p.el.Source() != "" {
		p.el.SetSource("")
		p.el.Load()
	}
	log.Printf("Player cleared")
}

// Close ends the current session. The player can't be used afterwards.
func (p *Player) Close() {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()

	log.Printf("Closing player")
	p.teardown()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// teardown destroys the engine before the backend so that emptying the
// element doesn't produce a transition nobody will see.
// Caller must hold sessionMu.
func (p *Player) teardown() {
	p.mu.Lock()
	engine := p.engine
	backend := p.backend
	p.engine = nil
	p.backend = nil
	p.source = nil
	p.mu.Unlock()

	if engine != nil {
		engine.Destroy()
	}
	if backend != nil {
		backend.Destroy()
	}
}

func (p *Player) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Player) forward(ev playback.StateChangeEvent) {
	p.mu.Lock()
	notify := p.notify
	p.mu.Unlock()

	if notify != nil {
		notify(ev)
	}
}

func (p *Player) callbacks() backends.Callbacks {
	return backends.Callbacks{
		OnStatus: func(msg string) {
			p.setMessage(msg)
		},
		OnReady: func(msg string) {
			p.setMessage(msg)
		},
		OnError: func(msg string) {
			log.Printf("Backend error: %s", msg)
			p.setError(msg)
		},
		OnAutoplayBlocked: func(msg string) {
			p.mu.Lock()
			p.autoplayBlocked = true
			p.message = msg
			p.mu.Unlock()
		},
	}
}

func (p *Player) setMessage(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.message = msg
}

func (p *Player) setError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastError = msg
}

// ErrClosed is returned by operations on a closed player
var ErrClosed = errors.New("player closed")

// Play resumes the element. Fails with media.ErrAutoplayBlocked when the
// element refuses unmuted playback.
func (p *Player) Play() error {
	if err := p.requireSession(); err != nil {
		return err
	}
	if err := p.el.Play(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	p.mu.Lock()
	p.autoplayBlocked = false
	p.mu.Unlock()
	return nil
}

// Pause pauses the element
func (p *Player) Pause() error {
	if err := p.requireSession(); err != nil {
		return err
	}
	p.el.Pause()
	return nil
}

// Seek moves the playback position to seconds
func (p *Player) Seek(seconds float64) error {
	if err := p.requireSession(); err != nil {
		return err
	}
	if seconds < 0 {
		return fmt.Errorf("invalid seek position: %v", seconds)
	}
	p.el.Seek(seconds)
	return nil
}

func (p *Player) requireSession() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.engine == nil {
		return catalog.ErrNoSource
	}
	return nil
}
