package playback

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/famish99/vidstated/internal/media"
)

// PlaybackState is the high-level state inferred from a media surface
type PlaybackState int

const (
	// StateNone marks the absence of a state (e.g. no previous state). It
	// is never current.
	StateNone PlaybackState = iota
	StateIdle
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateSeeking
	StateBuffering
	StateEnded
)

// States lists every state an engine can be in
var States = []PlaybackState{
	StateIdle,
	StateLoading,
	StateReady,
	StatePlaying,
	StatePaused,
	StateSeeking,
	StateBuffering,
	StateEnded,
}

func (s PlaybackState) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateIdle:
		return "IDLE"
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateSeeking:
		return "SEEKING"
	case StateBuffering:
		return "BUFFERING"
	case StateEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int(s))
	}
}

// ParseState converts a state name (case-insensitive) into a PlaybackState
func ParseState(name string) (PlaybackState, error) {
	for _, s := range States {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}
	return StateNone, fmt.Errorf("unknown playback state: %s", name)
}

// MarshalText lets states appear by name in JSON and YAML
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *PlaybackState) UnmarshalText(text []byte) error {
	if strings.EqualFold(string(text), StateNone.String()) {
		*s = StateNone
		return nil
	}
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Metadata is the surface context captured with a state record
type Metadata struct {
	CurrentTimeSec float64          `json:"currentTimeSec"`
	DurationSec    float64          `json:"durationSec"`
	ReadinessLevel media.ReadyState `json:"readinessLevel"`
	BufferedRanges media.TimeRanges `json:"bufferedRanges"`

	// BufferingDurationMs is set only on records reached by closing a
	// buffering episode
	BufferingDurationMs *int64 `json:"bufferingDurationMs,omitempty"`
}

// StateRecord is a snapshot of the engine state at the time it was entered
type StateRecord struct {
	State         PlaybackState `json:"state"`
	TimestampMs   int64         `json:"timestampMs"`
	PreviousState PlaybackState `json:"previousState"`
	Metadata      Metadata      `json:"metadata"`
}

// stateRecordJSON is the wire form of a StateRecord: a record with no
// previous state carries null rather than NONE
type stateRecordJSON struct {
	State         PlaybackState  `json:"state"`
	TimestampMs   int64          `json:"timestampMs"`
	PreviousState *PlaybackState `json:"previousState"`
	Metadata      Metadata       `json:"metadata"`
}

func (r StateRecord) MarshalJSON() ([]byte, error) {
	out := stateRecordJSON{
		State:       r.State,
		TimestampMs: r.TimestampMs,
		Metadata:    r.Metadata,
	}
	if r.PreviousState != StateNone {
		prev := r.PreviousState
		out.PreviousState = &prev
	}
	return json.Marshal(out)
}

func (r *StateRecord) UnmarshalJSON(data []byte) error {
	var in stateRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = StateRecord{
		State:         in.State,
		TimestampMs:   in.TimestampMs,
		PreviousState: StateNone,
		Metadata:      in.Metadata,
	}
	if in.PreviousState != nil {
		r.PreviousState = *in.PreviousState
	}
	return nil
}

// Clone returns a deep copy of the record
func (r StateRecord) Clone() StateRecord {
	out := r
	out.Metadata.BufferedRanges = r.Metadata.BufferedRanges.Clone()
	if r.Metadata.BufferingDurationMs != nil {
		d := *r.Metadata.BufferingDurationMs
		out.Metadata.BufferingDurationMs = &d
	}
	return out
}

// StateChangeEvent is published once per distinct state transition
type StateChangeEvent struct {
	Current              StateRecord  `json:"currentState"`
	Previous             *StateRecord `json:"previousState"`
	TransitionDurationMs int64        `json:"transitionDurationMs"`
}

// Callback receives state change events
type Callback func(StateChangeEvent)
