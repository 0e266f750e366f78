package playback

import (
	"github.com/famish99/vidstated/internal/media"
)

// Poll re-evaluates buffering once. The engine calls it on every tick of
// its poll timer; hosts may call it directly.
func (e *Engine) Poll() {
	if e.destroyed.Load() {
		return
	}
	e.mu.Lock()
	if !e.destroyed.Load() {
		e.checkBufferingLocked()
	}
	e.mu.Unlock()
	e.flush()
}

func (e *Engine) startPolling() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.destroyed.Load() || e.stopPoll != nil {
		return
	}

	ticker := e.clock.NewTicker(e.pollInterval)
	stop := make(chan struct{})
	e.ticker = ticker
	e.stopPoll = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				select {
				case <-stop:
					return
				default:
				}
				e.Poll()
			}
		}
	}()
}

func (e *Engine) stopPolling() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.stopPoll == nil {
		return
	}
	e.ticker.Stop()
	close(e.stopPoll)
	e.ticker = nil
	e.stopPoll = nil
}

// polling reports whether the poll timer is running
func (e *Engine) polling() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.stopPoll != nil
}

func (e *Engine) startBufferingLocked() {
	if e.buffering {
		return
	}
	e.buffering = true
	e.bufferingStart = e.clock.Now()
}

func (e *Engine) clearBufferingLocked() {
	e.buffering = false
}

// checkBufferingLocked closes a buffering episode once playback can
// continue, or opens one when an active playback has run dry without the
// surface saying so.
func (e *Engine) checkBufferingLocked() {
	if e.current.State == StateBuffering {
		if !e.canPlayContinuously() {
			return
		}

		var elapsed int64
		if e.buffering {
			elapsed = e.clock.Now().Sub(e.bufferingStart).Milliseconds()
			if elapsed < 0 {
				elapsed = 0
			}
		}
		e.clearBufferingLocked()

		paused := e.surface.Paused()
		switch {
		case !paused && e.surface.ReadyState() >= media.HaveFutureData:
			e.transitionLocked(StatePlaying, &elapsed)
		case paused:
			e.transitionLocked(StatePaused, &elapsed)
		default:
			e.transitionLocked(StateReady, &elapsed)
		}
		return
	}

	if e.shouldBeBuffering() {
		e.startBufferingLocked()
		e.transitionLocked(StateBuffering, nil)
	}
}

// canPlayContinuously holds when the surface reports future data, or the
// buffered range around the playback position reaches the lookahead.
func (e *Engine) canPlayContinuously() bool {
	if e.surface.ReadyState() >= media.HaveFutureData {
		return true
	}
	pos := e.surface.CurrentTime()
	r, ok := e.surface.Buffered().Containing(pos)
	return ok && r.End-pos >= e.lookahead
}

func (e *Engine) shouldBeBuffering() bool {
	if e.current.State != StatePlaying {
		return false
	}
	if e.surface.Paused() || e.surface.Ended() || e.surface.Seeking() {
		return false
	}
	return !e.canPlayContinuously()
}
