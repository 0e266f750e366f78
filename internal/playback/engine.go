package playback

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/famish99/vidstated/internal/media"
)

const (
	// DefaultPollInterval is how often buffering is re-evaluated when no
	// event arrives
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultLookaheadSeconds is how far past the playback position the
	// buffer must reach for playback to continue uninterrupted
	DefaultLookaheadSeconds = 2.0
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	PollInterval     time.Duration
	LookaheadSeconds float64
	Clock            Clock
	Logger           *log.Logger
}

// Engine infers a PlaybackState from the events and state of one media
// surface. It is bound to that surface for its whole life; a new source
// gets a new engine.
//
// All signals are applied serially under one lock. Subscribers are called
// after the lock is released, in the order transitions happened, so a
// subscriber may call back into the engine (including Destroy).
type Engine struct {
	id           string
	surface      media.Surface
	clock        Clock
	logger       *log.Logger
	pollInterval time.Duration
	lookahead    float64

	mu             sync.Mutex
	current        StateRecord
	previous       *StateRecord
	buffering      bool
	bufferingStart time.Time
	lastError      *media.MediaError
	pending        []StateChangeEvent
	draining       bool

	subs subscriberSet

	// Listener and timer handles, released by Destroy
	lifeMu   sync.Mutex
	removers []func()
	ticker   Ticker
	stopPoll chan struct{}

	destroyed atomic.Bool
}

// New binds an engine to surface, starts in StateIdle and begins polling
func New(surface media.Surface, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.LookaheadSeconds <= 0 {
		opts.LookaheadSeconds = DefaultLookaheadSeconds
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	base := opts.Logger
	if base == nil {
		base = log.Default()
	}

	id := uuid.New().String()[:8]
	e := &Engine{
		id:           id,
		surface:      surface,
		clock:        opts.Clock,
		logger:       log.New(base.Writer(), fmt.Sprintf("%s[engine %s] ", base.Prefix(), id), base.Flags()),
		pollInterval: opts.PollInterval,
		lookahead:    opts.LookaheadSeconds,
	}
	e.current = StateRecord{
		State:         StateIdle,
		TimestampMs:   e.clock.Now().UnixMilli(),
		PreviousState: StateNone,
		Metadata:      e.captureMetadata(),
	}

	e.attachListeners()
	e.startPolling()

	e.logger.Printf("Playback engine initialized (poll %s, lookahead %.1fs)", e.pollInterval, e.lookahead)
	return e
}

// ID returns the short instance id used in log lines
func (e *Engine) ID() string {
	return e.id
}

// State returns the current state
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.State
}

// StateInfo returns a copy of the current state record
func (e *Engine) StateInfo() StateRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// PreviousInfo returns a copy of the record replaced by the last distinct
// transition, if any
func (e *Engine) PreviousInfo() (StateRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.previous == nil {
		return StateRecord{}, false
	}
	return e.previous.Clone(), true
}

// Destroyed reports whether Destroy has been called
func (e *Engine) Destroyed() bool {
	return e.destroyed.Load()
}

// Reset stops polling, forgets buffering and previous state, forces
// StateIdle and restarts polling. It lets a host reuse the engine for a
// new source on the same surface.
func (e *Engine) Reset() {
	if e.destroyed.Load() {
		return
	}
	e.logger.Printf("Playback engine reset")
	e.stopPolling()

	e.mu.Lock()
	e.clearBufferingLocked()
	e.previous = nil
	e.lastError = nil
	e.transitionLocked(StateIdle, nil)
	e.mu.Unlock()

	e.startPolling()
	e.flush()
}

// Destroy detaches from the surface, stops polling and drops every
// subscriber. It is idempotent and safe to call from a subscriber.
func (e *Engine) Destroy() {
	if e.destroyed.Swap(true) {
		return
	}
	e.logger.Printf("Playback engine destroyed")

	e.lifeMu.Lock()
	removers := e.removers
	e.removers = nil
	e.lifeMu.Unlock()
	for _, remove := range removers {
		remove()
	}

	e.stopPolling()
	e.subs.clear()

	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
}

func (e *Engine) attachListeners() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	for _, ev := range media.Events {
		e.removers = append(e.removers, e.surface.AddListener(ev, e.handleEvent))
	}
}

// handleEvent maps one surface event onto a candidate state
func (e *Engine) handleEvent(ev media.Event) {
	if e.destroyed.Load() {
		return
	}

	e.mu.Lock()
	if e.destroyed.Load() {
		e.mu.Unlock()
		return
	}

	switch ev {
	case media.EventEmptied:
		e.clearBufferingLocked()
		e.transitionLocked(StateIdle, nil)

	case media.EventLoadStart:
		e.transitionLocked(StateLoading, nil)

	case media.EventLoadedMetadata, media.EventLoadedData, media.EventCanPlay:
		if e.current.State == StateLoading || !e.surface.Paused() {
			e.transitionLocked(StateReady, nil)
		}

	case media.EventCanPlayThrough:
		if e.current.State != StatePlaying && e.current.State != StatePaused {
			e.transitionLocked(StateReady, nil)
		}

	case media.EventPlay:
		// playing, or waiting, follows

	case media.EventPlaying:
		e.clearBufferingLocked()
		e.transitionLocked(StatePlaying, nil)

	case media.EventPause:
		e.clearBufferingLocked()
		e.transitionLocked(StatePaused, nil)

	case media.EventSeeking:
		e.transitionLocked(StateSeeking, nil)

	case media.EventSeeked:
		paused := e.surface.Paused()
		switch {
		case !paused && e.surface.ReadyState() >= media.HaveCurrentData:
			e.transitionLocked(StatePlaying, nil)
		case paused:
			e.transitionLocked(StatePaused, nil)
		default:
			e.transitionLocked(StateReady, nil)
		}

	case media.EventWaiting, media.EventStalled:
		e.startBufferingLocked()
		e.transitionLocked(StateBuffering, nil)

	case media.EventEnded:
		e.clearBufferingLocked()
		e.transitionLocked(StateEnded, nil)

	case media.EventError:
		e.clearBufferingLocked()
		e.recordErrorLocked()

	case media.EventProgress:
		if e.current.State == StateBuffering {
			e.checkBufferingLocked()
		}
	}
	e.mu.Unlock()

	e.flush()
}

func (e *Engine) recordErrorLocked() {
	mediaErr := e.surface.Error()
	e.lastError = mediaErr
	if mediaErr == nil {
		e.logger.Printf("Media error event without error details (state %s)", e.current.State)
		return
	}
	e.logger.Printf("Media error detected: %s (code %d, state %s)", mediaErr.Classify(), mediaErr.Code, e.current.State)
}

func (e *Engine) captureMetadata() Metadata {
	return Metadata{
		CurrentTimeSec: e.surface.CurrentTime(),
		DurationSec:    e.surface.Duration(),
		ReadinessLevel: e.surface.ReadyState(),
		BufferedRanges: e.surface.Buffered(),
	}
}

// transitionLocked is the only place the current record changes. A
// candidate equal to the current state refreshes the record's metadata
// and keeps its timestamp; anything else installs a new record and queues
// a StateChangeEvent for delivery by flush.
func (e *Engine) transitionLocked(state PlaybackState, bufferingDurationMs *int64) {
	meta := e.captureMetadata()
	meta.BufferingDurationMs = bufferingDurationMs

	if state == e.current.State {
		if meta.BufferingDurationMs == nil {
			meta.BufferingDurationMs = e.current.Metadata.BufferingDurationMs
		}
		e.current.Metadata = meta
		return
	}

	// An episode only lives as long as the Buffering state
	if state != StateBuffering {
		e.clearBufferingLocked()
	}

	now := e.clock.Now().UnixMilli()
	old := e.current
	next := StateRecord{
		State:         state,
		TimestampMs:   now,
		PreviousState: old.State,
		Metadata:      meta,
	}

	elapsed := now - old.TimestampMs
	if elapsed < 0 {
		elapsed = 0
	}

	e.previous = &old
	e.current = next

	prev := old.Clone()
	event := StateChangeEvent{
		Current:              next.Clone(),
		Previous:             &prev,
		TransitionDurationMs: elapsed,
	}
	e.logStateChange(event)
	e.pending = append(e.pending, event)
}

// flush delivers queued events. Only one goroutine drains at a time; a
// transition made by a subscriber is queued and delivered by the drainer
// after the current event, which keeps delivery in transition order.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.pending) > 0 {
		event := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		e.notify(event)

		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
}

func (e *Engine) logStateChange(ev StateChangeEvent) {
	cur := ev.Current
	prev := StateNone
	if ev.Previous != nil {
		prev = ev.Previous.State
	}

	msg := fmt.Sprintf("State: %s → %s", prev, cur.State)
	if ev.TransitionDurationMs > 0 {
		msg += fmt.Sprintf(" (%dms)", ev.TransitionDurationMs)
	}
	if cur.Metadata.BufferingDurationMs != nil {
		msg += fmt.Sprintf(" | Buffered for: %dms", *cur.Metadata.BufferingDurationMs)
	}

	switch cur.State {
	case StatePlaying:
		msg += fmt.Sprintf(" | Time: %.2fs", cur.Metadata.CurrentTimeSec)
	case StateReady:
		msg += fmt.Sprintf(" | Duration: %.2fs", cur.Metadata.DurationSec)
	case StateSeeking:
		msg += fmt.Sprintf(" | To: %.2fs", cur.Metadata.CurrentTimeSec)
	case StateEnded:
		msg += fmt.Sprintf(" | Total: %.2fs", cur.Metadata.DurationSec)
	}

	e.logger.Print(msg)
}
