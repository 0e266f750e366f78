package backends

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/famish99/vidstated/internal/catalog"
	"github.com/famish99/vidstated/internal/media"
)

// ErrUnsupported is returned when no backend can play a source
var ErrUnsupported = errors.New("source type not supported")

// Callbacks carries adapter notifications back to the session. Any of them may be nil.
type Callbacks struct {
	OnStatus          func(msg string)
	OnError           func(msg string)
	OnReady           func(msg string)
	OnAutoplayBlocked func(msg string)
}

func (c Callbacks) Status(msg string) {
	if c.OnStatus != nil {
		c.OnStatus(msg)
	}
}

func (c Callbacks) Error(msg string) {
	if c.OnError != nil {
		c.OnError(msg)
	}
}

func (c Callbacks) Ready(msg string) {
	if c.OnReady != nil {
		c.OnReady(msg)
	}
}

func (c Callbacks) AutoplayBlocked(msg string) {
	if c.OnAutoplayBlocked != nil {
		c.OnAutoplayBlocked(msg)
	}
}

// Backend attaches one kind of source to a media element
type Backend interface {
	// Initialize sets the element up to play url. Failures are also
	// reported through cb.OnError.
	Initialize(ctx context.Context, el media.Element, url string, cb Callbacks) error

	// Destroy detaches from the element. Safe to call more than once.
	Destroy()

	// Name returns a short label such as "mp4"
	Name() string
}

// Info describes what a backend learned about its source
type Info struct {
	DurationSec float64  `json:"durationSec,omitempty"`
	Live        bool     `json:"live"`
	Levels      []string `json:"levels,omitempty"`
}

// Describer is implemented by backends that know more about a source than
// the element exposes
type Describer interface {
	Describe() Info
}

// Factory creates a new backend instance
type Factory func() Backend

// Registry maps source kinds to backend factories
type Registry struct {
	mu        sync.RWMutex
	factories map[catalog.Kind]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[catalog.Kind]Factory)}
}

// Register installs the factory for kind, replacing any previous one
func (r *Registry) Register(kind catalog.Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New creates a backend for kind
func (r *Registry) New(kind catalog.Kind) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrUnsupported)
	}
	return factory(), nil
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []catalog.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]catalog.Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// AutoplayResult reports how an autoplay attempt went
type AutoplayResult struct {
	Success bool
	Muted   bool
	Err     error
}

// AttemptAutoplay tries to play with sound, then falls back to muted playback
func AttemptAutoplay(el media.Element) AutoplayResult {
	if err := el.Play(); err == nil {
		return AutoplayResult{Success: true}
	}

	el.SetMuted(true)
	if err := el.Play(); err != nil {
		return AutoplayResult{Err: fmt.Errorf("autoplay blocked by element policy: %w", err)}
	}
	return AutoplayResult{Success: true, Muted: true}
}

// ReportAutoplay attempts autoplay and reports the outcome using label as the
// source description, e.g. "MP4"
func ReportAutoplay(label string, el media.Element, cb Callbacks) AutoplayResult {
	res := AttemptAutoplay(el)
	switch {
	case res.Success && res.Muted:
		cb.Status(fmt.Sprintf("%s playing (muted due to autoplay policy)", label))
	case res.Success:
		cb.Status(fmt.Sprintf("%s playing with audio", label))
	default:
		log.Printf("%s autoplay blocked: %v", label, res.Err)
		cb.AutoplayBlocked(fmt.Sprintf("Click play button to start %s video", label))
	}
	return res
}

// Listeners tracks element listeners so they can be removed together
type Listeners struct {
	mu       sync.Mutex
	removers []func()
}

// Add registers fn for ev on s
func (l *Listeners) Add(s media.Surface, ev media.Event, fn media.Listener) {
	remove := s.AddListener(ev, fn)
	l.mu.Lock()
	l.removers = append(l.removers, remove)
	l.mu.Unlock()
}

// RemoveAll detaches every registered listener
func (l *Listeners) RemoveAll() {
	l.mu.Lock()
	removers := l.removers
	l.removers = nil
	l.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
}

// Len returns the number of attached listeners
func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.removers)
}
