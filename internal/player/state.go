package player

import (
	"github.com/famish99/vidstated/internal/backends"
	"github.com/famish99/vidstated/internal/catalog"
	"github.com/famish99/vidstated/internal/playback"
)

// Status is a snapshot of the player for status queries
type Status struct {
	Source          *catalog.Source        `json:"source,omitempty"`
	Backend         string                 `json:"backend,omitempty"`
	State           playback.PlaybackState `json:"state"`
	Message         string                 `json:"message,omitempty"`
	Error           string                 `json:"error,omitempty"`
	AutoplayBlocked bool                   `json:"autoplayBlocked"`
	Elapsed         float64                `json:"elapsed"`
	Duration        float64                `json:"duration"`
	Muted           bool                   `json:"muted"`
	Info            backends.Info          `json:"info"`
}

// State returns the current playback state; StateIdle without a session
func (p *Player) State() playback.PlaybackState {
	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()

	if engine == nil {
		return playback.StateIdle
	}
	return engine.State()
}

// StateInfo returns the current state record of the session
func (p *Player) StateInfo() (playback.StateRecord, bool) {
	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()

	if engine == nil {
		return playback.StateRecord{}, false
	}
	return engine.StateInfo(), true
}

// DebugInfo returns the engine diagnostics of the session
func (p *Player) DebugInfo() (playback.DebugInfo, bool) {
	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()

	if engine == nil {
		return playback.DebugInfo{}, false
	}
	return engine.DebugInfo(), true
}

// Status returns the current session status
func (p *Player) Status() Status {
	p.mu.Lock()
	st := Status{
		Message:         p.message,
		Error:           p.lastError,
		AutoplayBlocked: p.autoplayBlocked,
	}
	if p.source != nil {
		src := *p.source
		st.Source = &src
	}
	engine := p.engine
	backend := p.backend
	p.mu.Unlock()

	st.State = playback.StateIdle
	if engine != nil {
		st.State = engine.State()
	}
	if backend != nil {
		st.Backend = backend.Name()
		if d, ok := backend.(backends.Describer); ok {
			st.Info = d.Describe()
		}
	}
	st.Elapsed = p.el.CurrentTime()
	st.Duration = p.el.Duration()
	st.Muted = p.el.Muted()
	return st
}
