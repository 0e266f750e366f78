package media

import (
	"strings"
	"sync"
)

type listenerEntry struct {
	id uint64
	fn Listener
}

// VirtualElement is an in-memory media element. It holds the state a real
// element would expose and dispatches events to registered listeners, but
// fetches and decodes nothing: whatever drives it (a simulation, a trace, a
// test) sets its fields and dispatches the matching events.
type VirtualElement struct {
	mu sync.Mutex

	src          string
	readyState   ReadyState
	networkState NetworkState
	paused       bool
	ended        bool
	seeking      bool
	muted        bool
	currentTime  float64
	duration     float64
	buffered     TimeRanges
	err          *MediaError

	// Autoplay policy: reject unmuted Play calls
	blockUnmutedAutoplay bool
	// MIME types the element plays without help from an adapter
	nativeTypes map[string]string

	listeners map[Event][]listenerEntry
	nextID    uint64
}

// NewVirtualElement creates an empty, paused element that natively plays
// progressive MP4 and WebM
func NewVirtualElement() *VirtualElement {
	return &VirtualElement{
		paused: true,
		nativeTypes: map[string]string{
			"video/mp4":  "probably",
			"video/webm": "probably",
		},
		listeners: make(map[Event][]listenerEntry),
	}
}

// AddListener implements Surface
func (v *VirtualElement) AddListener(ev Event, fn Listener) func() {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.listeners[ev] = append(v.listeners[ev], listenerEntry{id: id, fn: fn})
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			entries := v.listeners[ev]
			for i, e := range entries {
				if e.id == id {
					v.listeners[ev] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
			if len(v.listeners[ev]) == 0 {
				delete(v.listeners, ev)
			}
		})
	}
}

// ListenerCount returns the number of listeners registered for ev
func (v *VirtualElement) ListenerCount(ev Event) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners[ev])
}

// Dispatch delivers ev to every listener registered for it. Listeners run
// on the caller's goroutine, outside the element's lock, so they may read
// the element or add and remove listeners.
func (v *VirtualElement) Dispatch(ev Event) {
	v.mu.Lock()
	entries := make([]listenerEntry, len(v.listeners[ev]))
	copy(entries, v.listeners[ev])
	v.mu.Unlock()

	for _, e := range entries {
		e.fn(ev)
	}
}

func (v *VirtualElement) ReadyState() ReadyState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readyState
}

func (v *VirtualElement) NetworkState() NetworkState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.networkState
}

func (v *VirtualElement) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *VirtualElement) Ended() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ended
}

func (v *VirtualElement) Seeking() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seeking
}

func (v *VirtualElement) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTime
}

func (v *VirtualElement) Duration() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.duration
}

func (v *VirtualElement) Buffered() TimeRanges {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buffered.Clone()
}

func (v *VirtualElement) Error() *MediaError {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err == nil {
		return nil
	}
	e := *v.err
	return &e
}

func (v *VirtualElement) Source() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.src
}

func (v *VirtualElement) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

// Setters used by drivers. None of them dispatch events.

func (v *VirtualElement) SetReadyState(r ReadyState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readyState = r
}

func (v *VirtualElement) SetNetworkState(n NetworkState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.networkState = n
}

func (v *VirtualElement) SetPaused(paused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = paused
}

func (v *VirtualElement) SetEnded(ended bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ended = ended
}

func (v *VirtualElement) SetSeeking(seeking bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seeking = seeking
}

func (v *VirtualElement) SetCurrentTime(t float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTime = t
}

func (v *VirtualElement) SetDuration(d float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.duration = d
}

// SetBuffered replaces the buffered ranges, normalizing them first
func (v *VirtualElement) SetBuffered(ranges []TimeRange) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buffered = NormalizeRanges(ranges)
}

func (v *VirtualElement) SetError(err *MediaError) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

// SetAutoplayBlocked makes unmuted Play calls fail with ErrAutoplayBlocked
func (v *VirtualElement) SetAutoplayBlocked(blocked bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blockUnmutedAutoplay = blocked
}

// SetNativeType registers support for a MIME type; an empty answer removes it
func (v *VirtualElement) SetNativeType(mime, answer string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	mime = strings.ToLower(mime)
	if answer == "" {
		delete(v.nativeTypes, mime)
		return
	}
	v.nativeTypes[mime] = answer
}

// Controls

func (v *VirtualElement) CanPlayType(mime string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	return v.nativeTypes[base]
}

func (v *VirtualElement) SetSource(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.src = url
}

func (v *VirtualElement) SetMuted(muted bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.muted = muted
}

// Load resets the element for its current source. An element that had
// media loaded dispatches emptied first; an element with a source then
// dispatches loadstart.
func (v *VirtualElement) Load() {
	v.mu.Lock()
	hadMedia := v.networkState != NetworkEmpty
	v.readyState = HaveNothing
	v.paused = true
	v.ended = false
	v.seeking = false
	v.currentTime = 0
	v.duration = 0
	v.buffered = nil
	v.err = nil
	hasSource := v.src != ""
	if hasSource {
		v.networkState = NetworkLoading
	} else {
		v.networkState = NetworkEmpty
	}
	v.mu.Unlock()

	if hadMedia {
		v.Dispatch(EventEmptied)
	}
	if hasSource {
		v.Dispatch(EventLoadStart)
	}
}

// Play starts playback. With enough data it dispatches play then playing,
// otherwise play then waiting.
func (v *VirtualElement) Play() error {
	v.mu.Lock()
	if v.blockUnmutedAutoplay && !v.muted {
		v.mu.Unlock()
		return ErrAutoplayBlocked
	}
	if !v.paused {
		v.mu.Unlock()
		return nil
	}
	if v.ended {
		v.ended = false
		v.currentTime = 0
	}
	v.paused = false
	ready := v.readyState >= HaveFutureData
	v.mu.Unlock()

	v.Dispatch(EventPlay)
	if ready {
		v.Dispatch(EventPlaying)
	} else {
		v.Dispatch(EventWaiting)
	}
	return nil
}

func (v *VirtualElement) Pause() {
	v.mu.Lock()
	if v.paused {
		v.mu.Unlock()
		return
	}
	v.paused = true
	v.mu.Unlock()

	v.Dispatch(EventPause)
}

// Seek moves the playback position and dispatches seeking. When the target
// is already buffered the seek completes immediately with seeked; otherwise
// the driver completes it once data arrives.
func (v *VirtualElement) Seek(seconds float64) {
	v.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if v.duration > 0 && seconds > v.duration {
		seconds = v.duration
	}
	v.currentTime = seconds
	v.seeking = true
	v.ended = false
	_, buffered := v.buffered.Containing(seconds)
	v.mu.Unlock()

	v.Dispatch(EventSeeking)
	if buffered {
		v.mu.Lock()
		v.seeking = false
		v.mu.Unlock()
		v.Dispatch(EventSeeked)
	}
}
