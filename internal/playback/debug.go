package playback

import (
	"github.com/famish99/vidstated/internal/media"
)

// SurfaceInfo is the surface part of DebugInfo
type SurfaceInfo struct {
	Paused       bool               `json:"paused"`
	Ended        bool               `json:"ended"`
	Seeking      bool               `json:"seeking"`
	CurrentTime  float64            `json:"currentTime"`
	Duration     float64            `json:"duration"`
	ReadyState   media.ReadyState   `json:"readyState"`
	NetworkState media.NetworkState `json:"networkState"`
	Buffered     media.TimeRanges   `json:"buffered"`
}

// BufferingInfo describes the buffering episode in progress, if any
type BufferingInfo struct {
	IsBuffering bool  `json:"isBuffering"`
	StartMs     int64 `json:"startTime,omitempty"`
	DurationMs  int64 `json:"duration"`
}

// DebugInfo is a diagnostics snapshot. Nothing in the engine reads it.
type DebugInfo struct {
	ID           string        `json:"id"`
	CurrentState PlaybackState `json:"currentState"`
	Destroyed    bool          `json:"destroyed"`
	Polling      bool          `json:"polling"`
	Subscribers  int           `json:"subscribers"`
	Surface      SurfaceInfo   `json:"videoElement"`
	Buffering    BufferingInfo `json:"buffering"`
	LastError    string        `json:"lastError,omitempty"`
}

// DebugInfo returns a snapshot of the engine and surface state
func (e *Engine) DebugInfo() DebugInfo {
	info := DebugInfo{
		ID:          e.id,
		Destroyed:   e.destroyed.Load(),
		Polling:     e.polling(),
		Subscribers: e.subs.count(),
		Surface: SurfaceInfo{
			Paused:       e.surface.Paused(),
			Ended:        e.surface.Ended(),
			Seeking:      e.surface.Seeking(),
			CurrentTime:  e.surface.CurrentTime(),
			Duration:     e.surface.Duration(),
			ReadyState:   e.surface.ReadyState(),
			NetworkState: e.surface.NetworkState(),
			Buffered:     e.surface.Buffered(),
		},
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	info.CurrentState = e.current.State
	if e.buffering {
		info.Buffering = BufferingInfo{
			IsBuffering: true,
			StartMs:     e.bufferingStart.UnixMilli(),
			DurationMs:  e.clock.Now().Sub(e.bufferingStart).Milliseconds(),
		}
	}
	if e.lastError != nil {
		info.LastError = e.lastError.Error()
	}
	return info
}
