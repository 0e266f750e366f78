package trace

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/famish99/vidstated/internal/media"
	"github.com/famish99/vidstated/internal/playback"
)

// epoch is the manual clock's starting time
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Transition is one StateChangeEvent observed during a run
type Transition struct {
	Step                 int                    `json:"step"`
	AtMs                 int64                  `json:"atMs"`
	From                 playback.PlaybackState `json:"from"`
	To                   playback.PlaybackState `json:"to"`
	TransitionDurationMs int64                  `json:"transitionDurationMs"`
	BufferingDurationMs  *int64                 `json:"bufferingDurationMs,omitempty"`
}

// Failure is an expectation that did not hold
type Failure struct {
	Step int    `json:"step"`
	Want string `json:"want"`
	Got  string `json:"got"`
}

func (f Failure) String() string {
	return fmt.Sprintf("step %d: want %s, got %s", f.Step, f.Want, f.Got)
}

// Result is the outcome of running a script
type Result struct {
	Name        string               `json:"name"`
	Transitions []Transition         `json:"transitions"`
	Failures    []Failure            `json:"failures"`
	Final       playback.StateRecord `json:"final"`
	Debug       playback.DebugInfo   `json:"debug"`
}

// Passed reports whether every expectation held
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Run executes s against a new engine bound to a new VirtualElement.
// logger receives engine log lines; nil discards them.
func Run(s *Script, logger *log.Logger) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	pollInterval := s.PollInterval
	if pollInterval <= 0 {
		pollInterval = playback.DefaultPollInterval
	}

	el := media.NewVirtualElement()
	clock := playback.NewManualClock(epoch)
	// The engine's own timer is pushed out of reach; polls happen only
	// where the script asks for them.
	engine := playback.New(el, playback.Options{
		PollInterval:     24 * time.Hour,
		LookaheadSeconds: s.LookaheadSeconds,
		Clock:            clock,
		Logger:           logger,
	})
	defer engine.Destroy()

	res := &Result{Name: s.Name}
	current := 0
	var sinceTick time.Duration
	engine.Subscribe(func(ev playback.StateChangeEvent) {
		t := Transition{
			Step:                 current,
			AtMs:                 ev.Current.TimestampMs - epoch.UnixMilli(),
			To:                   ev.Current.State,
			TransitionDurationMs: ev.TransitionDurationMs,
			BufferingDurationMs:  ev.Current.Metadata.BufferingDurationMs,
		}
		if ev.Previous != nil {
			t.From = ev.Previous.State
		}
		res.Transitions = append(res.Transitions, t)
	})

	for i, step := range s.Steps {
		current = i + 1
		switch {
		case step.Set != nil:
			step.Set.apply(el)

		case step.Event != "":
			ev, err := media.ParseEvent(step.Event)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", current, err)
			}
			el.Dispatch(ev)

		case step.Advance != 0:
			if !s.AutoPoll {
				clock.Advance(step.Advance)
				break
			}
			// Poll on every tick boundary, carrying the phase across steps
			left := step.Advance
			for sinceTick+left >= pollInterval {
				d := pollInterval - sinceTick
				clock.Advance(d)
				engine.Poll()
				left -= d
				sinceTick = 0
			}
			clock.Advance(left)
			sinceTick += left

		case step.Poll:
			engine.Poll()

		case step.Reset:
			engine.Reset()

		case step.Expect != nil:
			if f, ok := check(current, step.Expect, engine); !ok {
				res.Failures = append(res.Failures, f)
			}
		}
	}

	res.Final = engine.StateInfo()
	res.Debug = engine.DebugInfo()
	return res, nil
}

func check(step int, want *Expectation, engine *playback.Engine) (Failure, bool) {
	info := engine.StateInfo()
	if info.State != want.State {
		return Failure{Step: step, Want: want.State.String(), Got: info.State.String()}, false
	}
	if want.Previous != nil && info.PreviousState != *want.Previous {
		return Failure{
			Step: step,
			Want: "previous " + want.Previous.String(),
			Got:  "previous " + info.PreviousState.String(),
		}, false
	}
	if want.BufferingDurationMs != nil {
		got := info.Metadata.BufferingDurationMs
		if got == nil {
			return Failure{Step: step, Want: fmt.Sprintf("buffering %dms", *want.BufferingDurationMs), Got: "no buffering duration"}, false
		}
		if *got != *want.BufferingDurationMs {
			return Failure{
				Step: step,
				Want: fmt.Sprintf("buffering %dms", *want.BufferingDurationMs),
				Got:  fmt.Sprintf("buffering %dms", *got),
			}, false
		}
	}
	return Failure{}, true
}
