package catalog

import (
	"errors"
	"testing"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		url  string
		want Kind
	}{
		{"https://example.com/video.mp4", KindMP4},
		{"https://example.com/clip.WEBM", KindMP4},
		{"https://example.com/live/master.m3u8?token=abc", KindHLS},
		{"https://example.com/dash/stream.mpd#t=10", KindDASH},
		{"https://example.com/stream", KindUnknown},
		{"relative/file.m3u8", KindHLS},
	}
	for _, tt := range tests {
		if got := DetectKind(tt.url); got != tt.want {
			t.Errorf("DetectKind(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestSource_KindPrefersDeclaredType(t *testing.T) {
	s := Source{URL: "https://example.com/stream", Type: "application/dash+xml"}
	if got := s.Kind(); got != KindDASH {
		t.Errorf("Kind() = %v, want dash", got)
	}
	s = Source{URL: "https://example.com/a.m3u8", Type: "bogus"}
	if got := s.Kind(); got != KindHLS {
		t.Errorf("Kind() = %v, want hls from extension", got)
	}
}

func TestCatalog_Selection(t *testing.T) {
	c := New()
	if _, err := c.Current(); !errors.Is(err, ErrNoSource) {
		t.Fatalf("Current() on empty catalog = %v, want ErrNoSource", err)
	}

	c.Add("Big Buck Bunny", "https://example.com/bbb.mp4", "")
	c.Add("", "https://example.com/sintel.m3u8", "")
	c.Add("Tears", "https://example.com/tears.mpd", "")

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if all := c.All(); all[1].Title != "Source 2" {
		t.Errorf("default title = %q, want Source 2", all[1].Title)
	}

	src, err := c.Select(2)
	if err != nil {
		t.Fatalf("Select(2) error: %v", err)
	}
	if src.Title != "Tears" || c.CurrentIndex() != 2 {
		t.Errorf("Select(2) = %+v, index %d", src, c.CurrentIndex())
	}
	if _, err := c.Select(5); !errors.Is(err, ErrNoSource) {
		t.Errorf("Select(5) = %v, want ErrNoSource", err)
	}
	if c.CurrentIndex() != 2 {
		t.Error("failed Select changed the selection")
	}

	c.Deselect()
	if _, err := c.Current(); !errors.Is(err, ErrNoSource) {
		t.Errorf("Current() after Deselect = %v", err)
	}

	if hls := c.Filter(KindHLS); len(hls) != 1 || hls[0].Index != 1 {
		t.Errorf("Filter(hls) = %+v", hls)
	}

	c.Clear()
	if c.Len() != 0 || c.CurrentIndex() != -1 {
		t.Error("Clear() left sources or selection behind")
	}
}
