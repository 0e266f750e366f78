package media

import (
	"errors"
	"fmt"
)

// Event is a lifecycle event emitted by a media element
type Event string

const (
	EventLoadStart      Event = "loadstart"
	EventLoadedMetadata Event = "loadedmetadata"
	EventLoadedData     Event = "loadeddata"
	EventCanPlay        Event = "canplay"
	EventCanPlayThrough Event = "canplaythrough"
	EventPlay           Event = "play"
	EventPlaying        Event = "playing"
	EventPause          Event = "pause"
	EventSeeking        Event = "seeking"
	EventSeeked         Event = "seeked"
	EventEnded          Event = "ended"
	EventWaiting        Event = "waiting"
	EventStalled        Event = "stalled"
	EventProgress       Event = "progress"
	EventEmptied        Event = "emptied"
	EventError          Event = "error"
)

// Events is the full event vocabulary, in the order listeners are attached
var Events = []Event{
	EventLoadStart,
	EventLoadedMetadata,
	EventLoadedData,
	EventCanPlay,
	EventCanPlayThrough,
	EventPlay,
	EventPlaying,
	EventPause,
	EventSeeking,
	EventSeeked,
	EventEnded,
	EventWaiting,
	EventStalled,
	EventProgress,
	EventEmptied,
	EventError,
}

// ParseEvent converts an event name into an Event
func ParseEvent(name string) (Event, error) {
	for _, ev := range Events {
		if string(ev) == name {
			return ev, nil
		}
	}
	return "", fmt.Errorf("unknown media event: %s", name)
}

// ReadyState describes how much media data is available at the current position
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

func (r ReadyState) String() string {
	switch r {
	case HaveNothing:
		return "HAVE_NOTHING"
	case HaveMetadata:
		return "HAVE_METADATA"
	case HaveCurrentData:
		return "HAVE_CURRENT_DATA"
	case HaveFutureData:
		return "HAVE_FUTURE_DATA"
	case HaveEnoughData:
		return "HAVE_ENOUGH_DATA"
	default:
		return fmt.Sprintf("ReadyState(%d)", int(r))
	}
}

// NetworkState describes the element's fetching activity
type NetworkState int

const (
	NetworkEmpty NetworkState = iota
	NetworkIdle
	NetworkLoading
	NetworkNoSource
)

func (n NetworkState) String() string {
	switch n {
	case NetworkEmpty:
		return "NETWORK_EMPTY"
	case NetworkIdle:
		return "NETWORK_IDLE"
	case NetworkLoading:
		return "NETWORK_LOADING"
	case NetworkNoSource:
		return "NETWORK_NO_SOURCE"
	default:
		return fmt.Sprintf("NetworkState(%d)", int(n))
	}
}

// Listener receives events from a Surface
type Listener func(Event)

// Surface is the read side of a media element: the state the playback
// engine observes and the events it subscribes to.
type Surface interface {
	ReadyState() ReadyState
	NetworkState() NetworkState
	Paused() bool
	Ended() bool
	Seeking() bool
	CurrentTime() float64 // seconds
	Duration() float64    // seconds, 0 when unknown
	Buffered() TimeRanges
	Error() *MediaError

	// AddListener registers fn for ev and returns a function that removes it
	AddListener(ev Event, fn Listener) (remove func())
}

// Element is a Surface that adapters can also drive
type Element interface {
	Surface

	SetSource(url string)
	Source() string
	Load()
	Play() error
	Pause()
	Seek(seconds float64)
	SetMuted(muted bool)
	Muted() bool

	// CanPlayType reports "", "maybe" or "probably" for a MIME type
	CanPlayType(mime string) string
}

// ErrAutoplayBlocked is returned by Play when the autoplay policy rejects
// unmuted playback
var ErrAutoplayBlocked = errors.New("autoplay blocked by policy")
