// Package sim drives a VirtualElement the way a real media pipeline
// would: data arrives at a configured bandwidth, readiness follows the
// buffered lookahead and the playback clock advances while data lasts.
package sim

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/famish99/vidstated/internal/media"
)

const (
	// progressInterval is the minimum spacing between progress events
	progressInterval = 350 * time.Millisecond

	epsilon = 1e-9
)

// Options configures a Driver. Zero values select the defaults.
type Options struct {
	Tick               time.Duration // Run step size
	BandwidthKbps      float64       // download rate
	BitrateKbps        float64       // media bitrate
	DefaultDurationSec float64       // duration of sources without a hint
	LookaheadSec       float64       // buffer ahead needed for HaveFutureData
	StallAfter         time.Duration // download silence before stalled fires
}

func (o *Options) fill() {
	if o.Tick <= 0 {
		o.Tick = 50 * time.Millisecond
	}
	if o.BitrateKbps <= 0 {
		o.BitrateKbps = 2500
	}
	if o.BandwidthKbps < 0 {
		o.BandwidthKbps = 0
	}
	if o.DefaultDurationSec <= 0 {
		o.DefaultDurationSec = 120
	}
	if o.LookaheadSec <= 0 {
		o.LookaheadSec = 2
	}
	if o.StallAfter <= 0 {
		o.StallAfter = 3 * time.Second
	}
}

// Driver simulates network and playback for one VirtualElement
type Driver struct {
	el   *media.VirtualElement
	opts Options

	mu        sync.Mutex
	bandwidth float64
	durations map[string]float64
	removers  []func()

	// Per-load state, reset on loadstart
	active             bool
	src                string
	metadataSent       bool
	dataSent           bool
	canPlaySent        bool
	canPlayThroughSent bool
	waiting            bool
	stalledSent        bool
	sinceGrowth        time.Duration
	sinceProgress      time.Duration
}

// New attaches a driver to el
func New(el *media.VirtualElement, opts Options) *Driver {
	opts.fill()
	d := &Driver{
		el:        el,
		opts:      opts,
		bandwidth: opts.BandwidthKbps,
		durations: make(map[string]float64),
	}
	d.removers = []func(){
		el.AddListener(media.EventLoadStart, func(media.Event) { d.onLoadStart() }),
		el.AddListener(media.EventEmptied, func(media.Event) { d.onEmptied() }),
		el.AddListener(media.EventWaiting, func(media.Event) { d.setWaiting(true) }),
		el.AddListener(media.EventPlaying, func(media.Event) { d.setWaiting(false) }),
	}
	return d
}

// Close detaches the driver from its element
func (d *Driver) Close() {
	d.mu.Lock()
	removers := d.removers
	d.removers = nil
	d.mu.Unlock()
	for _, remove := range removers {
		remove()
	}
}

// SetDuration records the media duration for src. It applies immediately
// when src is already loaded.
func (d *Driver) SetDuration(src string, seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		delete(d.durations, src)
		return
	}
	d.durations[src] = seconds
	if d.active && d.metadataSent && d.src == src {
		d.el.SetDuration(seconds)
	}
}

// SetBandwidth changes the simulated download rate
func (d *Driver) SetBandwidth(kbps float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if kbps < 0 {
		kbps = 0
	}
	d.bandwidth = kbps
}

// Bandwidth returns the simulated download rate
func (d *Driver) Bandwidth() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bandwidth
}

// Fail puts a media error on the element and stops loading
func (d *Driver) Fail(code media.MediaErrorCode, message string) {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()

	d.el.SetError(&media.MediaError{Code: code, Message: message})
	d.el.SetNetworkState(media.NetworkIdle)
	d.el.Dispatch(media.EventError)
}

// Run steps the simulation every Tick until ctx is done
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.Tick)
	defer ticker.Stop()

	log.Printf("Simulation running (tick %s, bandwidth %.0f kbps, bitrate %.0f kbps)",
		d.opts.Tick, d.Bandwidth(), d.opts.BitrateKbps)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Step(d.opts.Tick)
		}
	}
}

func (d *Driver) onLoadStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	d.src = d.el.Source()
	d.metadataSent = false
	d.dataSent = false
	d.canPlaySent = false
	d.canPlayThroughSent = false
	d.waiting = false
	d.stalledSent = false
	d.sinceGrowth = 0
	d.sinceProgress = 0
}

func (d *Driver) onEmptied() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	d.src = ""
}

func (d *Driver) setWaiting(waiting bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiting = waiting
}

// Step advances the simulation by dt and dispatches the resulting events
func (d *Driver) Step(dt time.Duration) {
	d.mu.Lock()
	events := d.stepLocked(dt)
	d.mu.Unlock()

	for _, ev := range events {
		d.el.Dispatch(ev)
	}
}

func (d *Driver) stepLocked(dt time.Duration) []media.Event {
	if !d.active || d.el.Error() != nil {
		return nil
	}
	var events []media.Event

	if !d.metadataSent {
		duration := d.opts.DefaultDurationSec
		if hint, ok := d.durations[d.src]; ok {
			duration = hint
		}
		d.el.SetDuration(duration)
		d.el.SetReadyState(media.HaveMetadata)
		d.metadataSent = true
		events = append(events, media.EventLoadedMetadata)
	}

	duration := d.el.Duration()
	pos := d.el.CurrentTime()

	// Download
	ranges, grew := d.download(pos, duration, dt)
	if grew {
		d.sinceProgress += dt
		if d.sinceProgress >= progressInterval {
			d.sinceProgress = 0
			events = append(events, media.EventProgress)
		}
	} else if d.sinceGrowth >= d.opts.StallAfter && !d.stalledSent && ranges.End() < duration-epsilon {
		d.stalledSent = true
		events = append(events, media.EventStalled)
	}

	// Seek completion
	if d.el.Seeking() {
		if _, ok := ranges.Containing(pos); ok {
			d.el.SetSeeking(false)
			events = append(events, media.EventSeeked)
		}
	}

	// Playback
	if !d.el.Paused() && !d.el.Ended() && !d.el.Seeking() && !d.waiting {
		if r, ok := ranges.Containing(pos); ok {
			next := math.Min(pos+dt.Seconds(), r.End)
			d.el.SetCurrentTime(next)
			pos = next
			switch {
			case next >= duration-epsilon:
				d.el.SetCurrentTime(duration)
				d.el.SetEnded(true)
				d.el.SetPaused(true)
				events = append(events, media.EventPause, media.EventEnded)
			case next >= r.End-epsilon:
				d.waiting = true
				events = append(events, media.EventWaiting)
			}
		}
	}

	// Readiness at the (possibly new) position
	ready := d.readiness(ranges, pos, duration)
	d.el.SetReadyState(ready)
	if ready >= media.HaveCurrentData && !d.dataSent {
		d.dataSent = true
		events = append(events, media.EventLoadedData)
	}
	if ready >= media.HaveFutureData {
		if !d.canPlaySent {
			d.canPlaySent = true
			events = append(events, media.EventCanPlay)
		}
		if d.waiting && !d.el.Paused() && !d.el.Ended() {
			d.waiting = false
			events = append(events, media.EventPlaying)
		}
	} else {
		d.canPlaySent = false
	}
	if ready == media.HaveEnoughData && !d.canPlayThroughSent {
		d.canPlayThroughSent = true
		events = append(events, media.EventCanPlayThrough)
	}

	return events
}

// download grows the buffered range under pos and returns the new ranges
// and whether any data arrived
func (d *Driver) download(pos, duration float64, dt time.Duration) (media.TimeRanges, bool) {
	ranges := d.el.Buffered()
	growth := dt.Seconds() * d.bandwidth / d.opts.BitrateKbps

	r, ok := ranges.Containing(pos)
	if !ok {
		r = media.TimeRange{Start: pos, End: pos}
	}
	if r.End >= duration-epsilon {
		// Nothing left to fetch is not a stall
		d.el.SetNetworkState(media.NetworkIdle)
		d.sinceGrowth = 0
		return ranges, false
	}
	if growth <= 0 {
		d.sinceGrowth += dt
		return ranges, false
	}

	r.End = math.Min(duration, r.End+growth)
	d.el.SetBuffered(append(ranges.Clone(), r))
	d.el.SetNetworkState(media.NetworkLoading)
	d.sinceGrowth = 0
	d.stalledSent = false
	return d.el.Buffered(), true
}

func (d *Driver) readiness(ranges media.TimeRanges, pos, duration float64) media.ReadyState {
	r, ok := ranges.Containing(pos)
	if !ok {
		return media.HaveMetadata
	}
	ahead := r.End - pos
	switch {
	case ahead >= 2*d.opts.LookaheadSec || r.End >= duration-epsilon:
		return media.HaveEnoughData
	case ahead >= d.opts.LookaheadSec:
		return media.HaveFutureData
	case ahead > epsilon:
		return media.HaveCurrentData
	default:
		return media.HaveMetadata
	}
}
