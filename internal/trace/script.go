// Package trace replays scripted surface signals against a fresh engine.
//
// A script is a YAML document:
//
//	name: buffering closes on poll
//	auto_poll: false
//	steps:
//	  - set: {paused: false, readyState: 3, buffered: [{start: 0, end: 5}]}
//	  - event: waiting
//	  - advance: 500ms
//	  - poll: true
//	  - expect: {state: PLAYING, bufferingDurationMs: 500}
//
// The engine runs on a manual clock, so advance is the only way time passes.
package trace

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/famish99/vidstated/internal/media"
	"github.com/famish99/vidstated/internal/playback"
)

// Script is a named list of steps
type Script struct {
	Name string `yaml:"name"`

	// AutoPoll polls after every PollInterval of advanced time
	AutoPoll         bool          `yaml:"auto_poll"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	LookaheadSeconds float64       `yaml:"lookahead_seconds"`

	Steps []Step `yaml:"steps"`
}

// Step is one script action. Exactly one field is set.
type Step struct {
	Set     *SurfacePatch `yaml:"set,omitempty"`
	Event   string        `yaml:"event,omitempty"`
	Advance time.Duration `yaml:"advance,omitempty"`
	Poll    bool          `yaml:"poll,omitempty"`
	Reset   bool          `yaml:"reset,omitempty"`
	Expect  *Expectation  `yaml:"expect,omitempty"`
}

// Kind names the action of a step
func (s Step) Kind() string {
	switch {
	case s.Set != nil:
		return "set"
	case s.Event != "":
		return "event"
	case s.Advance != 0:
		return "advance"
	case s.Poll:
		return "poll"
	case s.Reset:
		return "reset"
	case s.Expect != nil:
		return "expect"
	default:
		return ""
	}
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Set != nil, s.Event != "", s.Advance != 0, s.Poll, s.Reset, s.Expect != nil} {
		if set {
			n++
		}
	}
	return n
}

// SurfacePatch overwrites the surface fields that are present
type SurfacePatch struct {
	ReadyState   *int               `yaml:"readyState,omitempty"`
	NetworkState *int               `yaml:"networkState,omitempty"`
	Paused       *bool              `yaml:"paused,omitempty"`
	Ended        *bool              `yaml:"ended,omitempty"`
	Seeking      *bool              `yaml:"seeking,omitempty"`
	CurrentTime  *float64           `yaml:"currentTime,omitempty"`
	Duration     *float64           `yaml:"duration,omitempty"`
	Buffered     *[]media.TimeRange `yaml:"buffered,omitempty"`
	Error        *int               `yaml:"error,omitempty"` // media error code, 0 clears
}

func (p *SurfacePatch) apply(el *media.VirtualElement) {
	if p.ReadyState != nil {
		el.SetReadyState(media.ReadyState(*p.ReadyState))
	}
	if p.NetworkState != nil {
		el.SetNetworkState(media.NetworkState(*p.NetworkState))
	}
	if p.Paused != nil {
		el.SetPaused(*p.Paused)
	}
	if p.Ended != nil {
		el.SetEnded(*p.Ended)
	}
	if p.Seeking != nil {
		el.SetSeeking(*p.Seeking)
	}
	if p.CurrentTime != nil {
		el.SetCurrentTime(*p.CurrentTime)
	}
	if p.Duration != nil {
		el.SetDuration(*p.Duration)
	}
	if p.Buffered != nil {
		el.SetBuffered(*p.Buffered)
	}
	if p.Error != nil {
		if *p.Error == 0 {
			el.SetError(nil)
		} else {
			el.SetError(&media.MediaError{Code: media.MediaErrorCode(*p.Error)})
		}
	}
}

// Expectation checks the engine after the preceding steps
type Expectation struct {
	State               playback.PlaybackState  `yaml:"state"`
	BufferingDurationMs *int64                  `yaml:"bufferingDurationMs,omitempty"`
	Previous            *playback.PlaybackState `yaml:"previous,omitempty"`
}

// UnmarshalYAML accepts either a bare state name or a mapping
func (e *Expectation) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		state, err := playback.ParseState(value.Value)
		if err != nil {
			return err
		}
		e.State = state
		return nil
	}

	var raw struct {
		State               string `yaml:"state"`
		BufferingDurationMs *int64 `yaml:"bufferingDurationMs"`
		Previous            string `yaml:"previous"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	state, err := playback.ParseState(raw.State)
	if err != nil {
		return err
	}
	e.State = state
	e.BufferingDurationMs = raw.BufferingDurationMs
	if raw.Previous != "" {
		var prev playback.PlaybackState
		if err := prev.UnmarshalText([]byte(raw.Previous)); err != nil {
			return err
		}
		e.Previous = &prev
	}
	return nil
}

// Parse decodes and validates a script
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a script from path
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

// Validate checks every step names exactly one known action
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("trace has no steps")
	}
	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return fmt.Errorf("step %d: want exactly one action, got %d", i+1, n)
		}
		if step.Event != "" {
			if _, err := media.ParseEvent(step.Event); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		if step.Advance < 0 {
			return fmt.Errorf("step %d: negative advance %s", i+1, step.Advance)
		}
	}
	if s.PollInterval < 0 || s.LookaheadSeconds < 0 {
		return errors.New("poll_interval and lookahead_seconds must not be negative")
	}
	return nil
}
