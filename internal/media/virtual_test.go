package media

import (
	"errors"
	"testing"
)

func collect(v *VirtualElement) *[]Event {
	var got []Event
	for _, ev := range Events {
		v.AddListener(ev, func(e Event) { got = append(got, e) })
	}
	return &got
}

func eventsEqual(a, b []Event) bool {
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

func TestVirtualElement_RemoveListener(t *testing.T) {
	v := NewVirtualElement()
	calls := 0
	remove := v.AddListener(EventPlay, func(Event) { calls++ })
	v.AddListener(EventPlay, func(Event) {})

	v.Dispatch(EventPlay)
	remove()
	remove()
	v.Dispatch(EventPlay)

	if calls != 1 {
		t.Errorf("listener called %d times, want 1", calls)
	}
	if n := v.ListenerCount(EventPlay); n != 1 {
		t.Errorf("ListenerCount = %d, want 1", n)
	}
}

func TestVirtualElement_ListenerMayRemoveItself(t *testing.T) {
	v := NewVirtualElement()
	var remove func()
	calls := 0
	remove = v.AddListener(EventPause, func(Event) {
		calls++
		remove()
	})
	v.SetPaused(false)
	v.Pause()
	v.SetPaused(false)
	v.Pause()

	if calls != 1 {
		t.Errorf("listener called %d times, want 1", calls)
	}
}

func TestVirtualElement_Load(t *testing.T) {
	v := NewVirtualElement()
	got := collect(v)

	v.SetSource("https://example.com/a.mp4")
	v.Load()
	if want := []Event{EventLoadStart}; !eventsEqual(*got, want) {
		t.Errorf("first load events = %v, want %v", *got, want)
	}
	if v.NetworkState() != NetworkLoading {
		t.Errorf("NetworkState = %v, want NETWORK_LOADING", v.NetworkState())
	}

	*got = nil
	v.SetCurrentTime(12)
	v.SetSource("")
	v.Load()
	if want := []Event{EventEmptied}; !eventsEqual(*got, want) {
		t.Errorf("clear events = %v, want %v", *got, want)
	}
	if v.CurrentTime() != 0 || v.NetworkState() != NetworkEmpty {
		t.Errorf("element not reset: time %v, network %v", v.CurrentTime(), v.NetworkState())
	}
}

func TestVirtualElement_Play(t *testing.T) {
	v := NewVirtualElement()
	got := collect(v)

	if err := v.Play(); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if want := []Event{EventPlay, EventWaiting}; !eventsEqual(*got, want) {
		t.Errorf("events = %v, want %v", *got, want)
	}

	*got = nil
	v.Pause()
	v.SetReadyState(HaveEnoughData)
	if err := v.Play(); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if want := []Event{EventPause, EventPlay, EventPlaying}; !eventsEqual(*got, want) {
		t.Errorf("events = %v, want %v", *got, want)
	}
}

func TestVirtualElement_AutoplayPolicy(t *testing.T) {
	v := NewVirtualElement()
	v.SetAutoplayBlocked(true)

	if err := v.Play(); !errors.Is(err, ErrAutoplayBlocked) {
		t.Fatalf("Play() = %v, want ErrAutoplayBlocked", err)
	}
	if !v.Paused() {
		t.Error("blocked Play unpaused the element")
	}

	v.SetMuted(true)
	if err := v.Play(); err != nil {
		t.Fatalf("muted Play() error: %v", err)
	}
	if v.Paused() {
		t.Error("muted Play left the element paused")
	}
}

func TestVirtualElement_Seek(t *testing.T) {
	v := NewVirtualElement()
	got := collect(v)
	v.SetDuration(60)
	v.SetBuffered([]TimeRange{{Start: 0, End: 10}})

	v.Seek(5)
	if want := []Event{EventSeeking, EventSeeked}; !eventsEqual(*got, want) {
		t.Errorf("buffered seek events = %v, want %v", *got, want)
	}

	*got = nil
	v.Seek(90)
	if want := []Event{EventSeeking}; !eventsEqual(*got, want) {
		t.Errorf("unbuffered seek events = %v, want %v", *got, want)
	}
	if v.CurrentTime() != 60 {
		t.Errorf("CurrentTime = %v, want clamp to 60", v.CurrentTime())
	}
	if !v.Seeking() {
		t.Error("Seeking() = false while waiting for data")
	}
}

func TestVirtualElement_CanPlayType(t *testing.T) {
	v := NewVirtualElement()
	if got := v.CanPlayType("video/mp4; codecs=\"avc1.42E01E\""); got != "probably" {
		t.Errorf("CanPlayType(mp4) = %q, want probably", got)
	}
	if got := v.CanPlayType("application/vnd.apple.mpegurl"); got != "" {
		t.Errorf("CanPlayType(hls) = %q, want empty", got)
	}
	v.SetNativeType("application/vnd.apple.mpegurl", "maybe")
	if got := v.CanPlayType("application/vnd.apple.mpegurl"); got != "maybe" {
		t.Errorf("CanPlayType(hls) = %q, want maybe", got)
	}
}

func TestNormalizeRanges(t *testing.T) {
	got := NormalizeRanges([]TimeRange{
		{Start: 10, End: 20},
		{Start: 0, End: 5},
		{Start: 4, End: 8},
		{Start: 30, End: 30},
		{Start: 20, End: 25},
	})
	want := TimeRanges{{Start: 0, End: 8}, {Start: 10, End: 25}}
	if len(got) != len(want) {
		t.Fatalf("NormalizeRanges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, got[i], want[i])
		}
	}
	if got.End() != 25 {
		t.Errorf("End() = %v, want 25", got.End())
	}
	if r, ok := got.Containing(12); !ok || r.Start != 10 {
		t.Errorf("Containing(12) = %v, %v", r, ok)
	}
}

func TestMediaError_Classify(t *testing.T) {
	tests := map[MediaErrorCode]string{
		ErrCodeAborted:         "loading aborted",
		ErrCodeNetwork:         "network error while loading",
		ErrCodeDecode:          "decode error",
		ErrCodeSrcNotSupported: "format not supported",
		9:                      "unknown media error",
	}
	for code, want := range tests {
		e := &MediaError{Code: code}
		if got := e.Classify(); got != want {
			t.Errorf("Classify(%d) = %q, want %q", code, got, want)
		}
	}
	var nilErr *MediaError
	if got := nilErr.Classify(); got != "no error" {
		t.Errorf("nil Classify() = %q", got)
	}
}
