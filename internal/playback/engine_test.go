package playback

import (
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/famish99/vidstated/internal/media"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []StateChangeEvent
}

func (r *recorder) record(ev StateChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []StateChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) states() []PlaybackState {
	var out []PlaybackState
	for _, ev := range r.all() {
		out = append(out, ev.Current.State)
	}
	return out
}

// newTestEngine returns an engine whose poll timer never fires on its own,
// so tests drive polling explicitly through Poll.
func newTestEngine(t *testing.T) (*Engine, *media.VirtualElement, *ManualClock, *recorder) {
	t.Helper()
	el := media.NewVirtualElement()
	clock := NewManualClock(testStart)
	e := New(el, Options{
		PollInterval: time.Hour,
		Clock:        clock,
		Logger:       log.New(io.Discard, "", 0),
	})
	t.Cleanup(e.Destroy)

	rec := &recorder{}
	e.Subscribe(rec.record)
	return e, el, clock, rec
}

func statesEqual(a, b []PlaybackState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew_StartsIdle(t *testing.T) {
	e, el, _, rec := newTestEngine(t)

	if e.State() != StateIdle {
		t.Errorf("State() = %v, want IDLE", e.State())
	}
	info := e.StateInfo()
	if info.PreviousState != StateNone {
		t.Errorf("PreviousState = %v, want NONE", info.PreviousState)
	}
	if info.TimestampMs != testStart.UnixMilli() {
		t.Errorf("TimestampMs = %d, want %d", info.TimestampMs, testStart.UnixMilli())
	}
	if len(rec.all()) != 0 {
		t.Errorf("got %d events on construction, want 0", len(rec.all()))
	}
	for _, ev := range media.Events {
		if n := el.ListenerCount(ev); n != 1 {
			t.Errorf("ListenerCount(%s) = %d, want 1", ev, n)
		}
	}
}

func TestEngine_PlaybackScenario(t *testing.T) {
	e, el, clock, rec := newTestEngine(t)

	el.Dispatch(media.EventLoadStart)
	if e.State() != StateLoading {
		t.Fatalf("after loadstart State() = %v, want LOADING", e.State())
	}

	clock.Advance(10 * time.Millisecond)
	el.SetPaused(false)
	el.Dispatch(media.EventCanPlay)
	if e.State() != StateReady {
		t.Fatalf("after canplay State() = %v, want READY", e.State())
	}

	clock.Advance(20 * time.Millisecond)
	el.Dispatch(media.EventPlaying)
	if e.State() != StatePlaying {
		t.Fatalf("after playing State() = %v, want PLAYING", e.State())
	}
	events := rec.all()
	last := events[len(events)-1]
	if last.Previous == nil || last.Previous.State != StateReady {
		t.Errorf("previous record = %+v, want READY", last.Previous)
	}
	if last.Current.PreviousState != StateReady {
		t.Errorf("Current.PreviousState = %v, want READY", last.Current.PreviousState)
	}
	if last.TransitionDurationMs != 20 {
		t.Errorf("TransitionDurationMs = %d, want 20", last.TransitionDurationMs)
	}

	el.Dispatch(media.EventWaiting)
	if e.State() != StateBuffering {
		t.Fatalf("after waiting State() = %v, want BUFFERING", e.State())
	}

	clock.Advance(500 * time.Millisecond)
	el.SetCurrentTime(1)
	el.SetBuffered([]media.TimeRange{{Start: 0, End: 4}})
	el.SetReadyState(media.HaveFutureData)
	e.Poll()
	if e.State() != StatePlaying {
		t.Fatalf("after poll State() = %v, want PLAYING", e.State())
	}
	info := e.StateInfo()
	if info.Metadata.BufferingDurationMs == nil {
		t.Fatal("BufferingDurationMs not set after buffering recovery")
	}
	if got := *info.Metadata.BufferingDurationMs; got != 500 {
		t.Errorf("BufferingDurationMs = %d, want 500", got)
	}

	el.SetPaused(true)
	el.Dispatch(media.EventPause)
	if e.State() != StatePaused {
		t.Fatalf("after pause State() = %v, want PAUSED", e.State())
	}

	el.Dispatch(media.EventEnded)
	if e.State() != StateEnded {
		t.Fatalf("after ended State() = %v, want ENDED", e.State())
	}

	want := []PlaybackState{
		StateLoading, StateReady, StatePlaying, StateBuffering,
		StatePlaying, StatePaused, StateEnded,
	}
	if got := rec.states(); !statesEqual(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestEngine_DuplicateCanPlayEmitsOnce(t *testing.T) {
	e, el, clock, rec := newTestEngine(t)

	el.SetPaused(false)
	el.Dispatch(media.EventCanPlay)
	clock.Advance(50 * time.Millisecond)
	el.SetCurrentTime(0.5)
	el.Dispatch(media.EventCanPlay)

	if n := len(rec.all()); n != 1 {
		t.Fatalf("got %d events, want 1", n)
	}
	// The refresh updates metadata but not the entry timestamp
	info := e.StateInfo()
	if info.Metadata.CurrentTimeSec != 0.5 {
		t.Errorf("CurrentTimeSec = %v, want 0.5", info.Metadata.CurrentTimeSec)
	}
	if info.TimestampMs != testStart.UnixMilli() {
		t.Errorf("TimestampMs = %d, want %d", info.TimestampMs, testStart.UnixMilli())
	}
	if info.PreviousState != StateIdle {
		t.Errorf("PreviousState = %v, want IDLE", info.PreviousState)
	}
}

func TestEngine_TransitionDurationIgnoresRefreshes(t *testing.T) {
	_, el, clock, rec := newTestEngine(t)

	el.Dispatch(media.EventLoadStart)
	clock.Advance(100 * time.Millisecond)
	el.Dispatch(media.EventLoadStart)
	clock.Advance(150 * time.Millisecond)
	el.Dispatch(media.EventLoadedMetadata)

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if got := events[1].TransitionDurationMs; got != 250 {
		t.Errorf("TransitionDurationMs = %d, want 250", got)
	}
	for _, ev := range events {
		if ev.TransitionDurationMs < 0 {
			t.Errorf("negative TransitionDurationMs %d", ev.TransitionDurationMs)
		}
	}
}

func TestEngine_ReadyGates(t *testing.T) {
	tests := []struct {
		name   string
		setup  []media.Event
		paused bool
		event  media.Event
		want   PlaybackState
	}{
		{"metadata while idle and paused", nil, true, media.EventLoadedMetadata, StateIdle},
		{"metadata while loading and paused", []media.Event{media.EventLoadStart}, true, media.EventLoadedMetadata, StateReady},
		{"data while idle and unpaused", nil, false, media.EventLoadedData, StateReady},
		{"canplaythrough while paused state", []media.Event{media.EventPause}, true, media.EventCanPlayThrough, StatePaused},
		{"canplaythrough while playing state", []media.Event{media.EventPlaying}, false, media.EventCanPlayThrough, StatePlaying},
		{"canplaythrough while loading", []media.Event{media.EventLoadStart}, true, media.EventCanPlayThrough, StateReady},
		{"play alone", nil, false, media.EventPlay, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, el, _, _ := newTestEngine(t)
			for _, ev := range tt.setup {
				el.Dispatch(ev)
			}
			el.SetPaused(tt.paused)
			el.Dispatch(tt.event)
			if got := e.State(); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_Seeked(t *testing.T) {
	tests := []struct {
		name       string
		paused     bool
		readyState media.ReadyState
		want       PlaybackState
	}{
		{"playing with current data", false, media.HaveCurrentData, StatePlaying},
		{"playing with metadata only", false, media.HaveMetadata, StateReady},
		{"paused", true, media.HaveEnoughData, StatePaused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, el, _, _ := newTestEngine(t)
			el.Dispatch(media.EventSeeking)
			if e.State() != StateSeeking {
				t.Fatalf("after seeking State() = %v, want SEEKING", e.State())
			}
			el.SetPaused(tt.paused)
			el.SetReadyState(tt.readyState)
			el.Dispatch(media.EventSeeked)
			if got := e.State(); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_ErrorDoesNotTransition(t *testing.T) {
	e, el, _, rec := newTestEngine(t)

	el.Dispatch(media.EventLoadStart)
	el.SetError(&media.MediaError{Code: media.ErrCodeNetwork})
	el.Dispatch(media.EventError)

	if e.State() != StateLoading {
		t.Errorf("State() = %v, want LOADING", e.State())
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("got %d events, want 1", n)
	}
	if got := e.DebugInfo().LastError; !strings.Contains(got, "network") {
		t.Errorf("LastError = %q, want network classification", got)
	}
}

func TestEngine_PollStartsBufferingWhilePlaying(t *testing.T) {
	e, el, clock, rec := newTestEngine(t)

	el.SetPaused(false)
	el.Dispatch(media.EventPlaying)
	el.SetCurrentTime(0.5)
	el.SetBuffered([]media.TimeRange{{Start: 0, End: 1}})
	el.SetReadyState(media.HaveCurrentData)

	e.Poll()
	if e.State() != StateBuffering {
		t.Fatalf("State() = %v, want BUFFERING", e.State())
	}
	if !e.DebugInfo().Buffering.IsBuffering {
		t.Error("buffering timer not running")
	}

	// Enough lookahead, but readiness still below future data: not playing yet
	clock.Advance(300 * time.Millisecond)
	el.SetBuffered([]media.TimeRange{{Start: 0, End: 3}})
	e.Poll()
	if e.State() != StateReady {
		t.Fatalf("State() = %v, want READY", e.State())
	}
	info := e.StateInfo()
	if info.Metadata.BufferingDurationMs == nil || *info.Metadata.BufferingDurationMs != 300 {
		t.Errorf("BufferingDurationMs = %v, want 300", info.Metadata.BufferingDurationMs)
	}

	want := []PlaybackState{StatePlaying, StateBuffering, StateReady}
	if got := rec.states(); !statesEqual(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestEngine_PollLeavesPausedOrSeekingAlone(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*media.VirtualElement)
	}{
		{"paused", func(el *media.VirtualElement) { el.SetPaused(true) }},
		{"seeking", func(el *media.VirtualElement) { el.SetSeeking(true) }},
		{"ended", func(el *media.VirtualElement) { el.SetEnded(true) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, el, _, _ := newTestEngine(t)
			el.SetPaused(false)
			el.Dispatch(media.EventPlaying)
			el.SetReadyState(media.HaveCurrentData)
			tt.apply(el)

			e.Poll()
			if e.State() != StatePlaying {
				t.Errorf("State() = %v, want PLAYING", e.State())
			}
		})
	}
}

func TestEngine_BufferingClosesToPausedWhenPaused(t *testing.T) {
	e, el, clock, _ := newTestEngine(t)

	el.Dispatch(media.EventStalled)
	if e.State() != StateBuffering {
		t.Fatalf("State() = %v, want BUFFERING", e.State())
	}

	clock.Advance(120 * time.Millisecond)
	el.SetPaused(true)
	el.SetReadyState(media.HaveEnoughData)
	el.Dispatch(media.EventProgress)

	if e.State() != StatePaused {
		t.Fatalf("State() = %v, want PAUSED", e.State())
	}
	info := e.StateInfo()
	if info.Metadata.BufferingDurationMs == nil || *info.Metadata.BufferingDurationMs != 120 {
		t.Errorf("BufferingDurationMs = %v, want 120", info.Metadata.BufferingDurationMs)
	}
}

func TestEngine_ProgressOutsideBufferingIsIgnored(t *testing.T) {
	e, el, _, rec := newTestEngine(t)

	el.SetPaused(false)
	el.Dispatch(media.EventPlaying)
	el.SetReadyState(media.HaveCurrentData)
	el.Dispatch(media.EventProgress)

	if e.State() != StatePlaying {
		t.Errorf("State() = %v, want PLAYING", e.State())
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("got %d events, want 1", n)
	}
}

func TestEngine_RepeatedWaitingKeepsEpisodeStart(t *testing.T) {
	e, el, clock, rec := newTestEngine(t)

	el.Dispatch(media.EventWaiting)
	clock.Advance(200 * time.Millisecond)
	el.Dispatch(media.EventStalled)
	clock.Advance(200 * time.Millisecond)

	el.SetPaused(false)
	el.SetReadyState(media.HaveEnoughData)
	e.Poll()

	if n := len(rec.all()); n != 2 {
		t.Fatalf("got %d events, want 2", n)
	}
	info := e.StateInfo()
	if info.State != StatePlaying {
		t.Fatalf("State = %v, want PLAYING", info.State)
	}
	if got := *info.Metadata.BufferingDurationMs; got != 400 {
		t.Errorf("BufferingDurationMs = %d, want 400", got)
	}
}

func TestEngine_EmptiedResetsBuffering(t *testing.T) {
	e, el, _, _ := newTestEngine(t)

	el.Dispatch(media.EventLoadStart)
	el.Dispatch(media.EventWaiting)
	el.Dispatch(media.EventEmptied)

	if e.State() != StateIdle {
		t.Errorf("State() = %v, want IDLE", e.State())
	}
	if e.DebugInfo().Buffering.IsBuffering {
		t.Error("buffering timer still running after emptied")
	}
}

func TestEngine_Reset(t *testing.T) {
	for _, setup := range [][]media.Event{
		nil,
		{media.EventLoadStart},
		{media.EventPlaying, media.EventWaiting},
		{media.EventEnded},
	} {
		e, el, clock, _ := newTestEngine(t)
		for _, ev := range setup {
			el.Dispatch(ev)
		}

		e.Reset()

		if e.State() != StateIdle {
			t.Errorf("after %v: State() = %v, want IDLE", setup, e.State())
		}
		dbg := e.DebugInfo()
		if dbg.Buffering.IsBuffering {
			t.Errorf("after %v: buffering still measured", setup)
		}
		if !dbg.Polling {
			t.Errorf("after %v: polling not restarted", setup)
		}
		if n := clock.ActiveTickers(); n != 1 {
			t.Errorf("after %v: %d active tickers, want 1", setup, n)
		}
	}
}

func TestEngine_DestroyIsIdempotent(t *testing.T) {
	e, el, clock, rec := newTestEngine(t)

	e.Destroy()
	e.Destroy()

	el.Dispatch(media.EventLoadStart)
	el.SetPaused(false)
	el.Dispatch(media.EventPlaying)
	e.Poll()
	e.Reset()

	if n := len(rec.all()); n != 0 {
		t.Errorf("got %d events after destroy, want 0", n)
	}
	if n := clock.ActiveTickers(); n != 0 {
		t.Errorf("%d active tickers after destroy, want 0", n)
	}
	for _, ev := range media.Events {
		if n := el.ListenerCount(ev); n != 0 {
			t.Errorf("ListenerCount(%s) = %d after destroy, want 0", ev, n)
		}
	}
	if !e.DebugInfo().Destroyed {
		t.Error("DebugInfo().Destroyed = false")
	}
}

func TestEngine_SubscriberPanicIsIsolated(t *testing.T) {
	e, el, _, rec := newTestEngine(t)

	e.Subscribe(func(StateChangeEvent) { panic("boom") })
	second := &recorder{}
	e.Subscribe(second.record)

	el.Dispatch(media.EventLoadStart)
	el.Dispatch(media.EventEmptied)

	if got := len(rec.all()); got != 2 {
		t.Errorf("first subscriber got %d events, want 2", got)
	}
	if got := len(second.all()); got != 2 {
		t.Errorf("subscriber after panicking one got %d events, want 2", got)
	}
	if e.State() != StateIdle {
		t.Errorf("State() = %v, want IDLE", e.State())
	}
}

func TestEngine_UnsubscribeDuringDelivery(t *testing.T) {
	e, el, _, _ := newTestEngine(t)

	later := &recorder{}
	var laterSub Subscription
	e.Subscribe(func(StateChangeEvent) { e.Unsubscribe(laterSub) })
	laterSub = e.Subscribe(later.record)

	el.Dispatch(media.EventLoadStart)
	el.Dispatch(media.EventEmptied)

	if got := later.states(); !statesEqual(got, []PlaybackState{StateLoading}) {
		t.Errorf("unsubscribed callback saw %v, want [LOADING]", got)
	}
}

func TestEngine_DestroyFromSubscriber(t *testing.T) {
	e, el, clock, _ := newTestEngine(t)

	calls := 0
	e.Subscribe(func(ev StateChangeEvent) {
		calls++
		e.Destroy()
		e.Destroy()
	})

	el.Dispatch(media.EventLoadStart)
	el.Dispatch(media.EventEmptied)

	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if n := clock.ActiveTickers(); n != 0 {
		t.Errorf("%d active tickers, want 0", n)
	}
}

func TestEngine_ReentrantTransitionsKeepOrder(t *testing.T) {
	e, el, _, rec := newTestEngine(t)

	e.Subscribe(func(ev StateChangeEvent) {
		if ev.Current.State == StateEnded {
			e.Reset()
		}
	})
	after := &recorder{}
	e.Subscribe(after.record)

	el.Dispatch(media.EventEnded)

	want := []PlaybackState{StateEnded, StateIdle}
	if got := rec.states(); !statesEqual(got, want) {
		t.Errorf("first subscriber saw %v, want %v", got, want)
	}
	if got := after.states(); !statesEqual(got, want) {
		t.Errorf("last subscriber saw %v, want %v", got, want)
	}
}

func TestEngine_SubscribeDoesNotReplay(t *testing.T) {
	e, el, _, _ := newTestEngine(t)

	el.Dispatch(media.EventLoadStart)
	late := &recorder{}
	e.Subscribe(late.record)
	if n := len(late.all()); n != 0 {
		t.Errorf("late subscriber got %d events, want 0", n)
	}

	e.Destroy()
	if sub := e.Subscribe(late.record); sub != (Subscription{}) {
		t.Errorf("Subscribe after destroy = %+v, want zero", sub)
	}
}

func TestEngine_StateInfoIsACopy(t *testing.T) {
	e, el, _, _ := newTestEngine(t)

	el.SetBuffered([]media.TimeRange{{Start: 0, End: 5}})
	el.Dispatch(media.EventLoadStart)

	info := e.StateInfo()
	info.Metadata.BufferedRanges[0].End = 99
	if got := e.StateInfo().Metadata.BufferedRanges[0].End; got != 5 {
		t.Errorf("stored range end = %v, want 5", got)
	}
}

func TestEngine_PollTimerDrivesBuffering(t *testing.T) {
	el := media.NewVirtualElement()
	clock := NewManualClock(testStart)
	e := New(el, Options{
		PollInterval: 100 * time.Millisecond,
		Clock:        clock,
		Logger:       log.New(io.Discard, "", 0),
	})
	defer e.Destroy()

	changes := make(chan StateChangeEvent, 8)
	e.Subscribe(func(ev StateChangeEvent) { changes <- ev })

	el.SetPaused(false)
	el.Dispatch(media.EventPlaying)
	<-changes

	el.SetReadyState(media.HaveCurrentData)
	clock.Advance(100 * time.Millisecond)

	select {
	case ev := <-changes:
		if ev.Current.State != StateBuffering {
			t.Errorf("poll produced %v, want BUFFERING", ev.Current.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll timer did not re-evaluate buffering")
	}
}

func TestEngine_SeekEndsBufferingEpisode(t *testing.T) {
	e, el, clock, _ := newTestEngine(t)

	el.SetPaused(false)
	el.Dispatch(media.EventPlaying)
	el.Dispatch(media.EventWaiting)
	clock.Advance(300 * time.Millisecond)

	el.SetCurrentTime(30)
	el.Dispatch(media.EventSeeking)
	el.SetReadyState(media.HaveCurrentData)
	el.Dispatch(media.EventSeeked)

	if e.State() != StatePlaying {
		t.Fatalf("State() after seeked = %v, want PLAYING", e.State())
	}
	if e.DebugInfo().Buffering.IsBuffering {
		t.Error("buffering still measured after leaving BUFFERING through a seek")
	}

	clock.Advance(10 * time.Second)
	el.Dispatch(media.EventWaiting)
	clock.Advance(200 * time.Millisecond)
	el.SetReadyState(media.HaveFutureData)
	e.Poll()

	info := e.StateInfo()
	if info.State != StatePlaying {
		t.Fatalf("State() = %v, want PLAYING", info.State)
	}
	if d := info.Metadata.BufferingDurationMs; d == nil || *d != 200 {
		t.Errorf("BufferingDurationMs = %v, want 200", d)
	}
}

func TestEngine_ErrorStopsBufferingMeasurement(t *testing.T) {
	e, el, _, _ := newTestEngine(t)

	el.SetPaused(false)
	el.Dispatch(media.EventPlaying)
	el.Dispatch(media.EventWaiting)
	el.SetError(&media.MediaError{Code: media.ErrCodeDecode})
	el.Dispatch(media.EventError)

	if e.State() != StateBuffering {
		t.Errorf("State() = %v, want BUFFERING", e.State())
	}
	if e.DebugInfo().Buffering.IsBuffering {
		t.Error("buffering still measured after an error")
	}
}
