package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// ErrNoSource is returned when no source is selected or an index is out of range
var ErrNoSource = errors.New("no source selected")

// Kind identifies the delivery format of a source
type Kind string

const (
	KindMP4     Kind = "mp4"
	KindHLS     Kind = "hls"
	KindDASH    Kind = "dash"
	KindUnknown Kind = "unknown"
)

// ParseKind maps a declared type to a Kind. MIME types are accepted too.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mp4", "progressive", "video/mp4", "webm", "video/webm":
		return KindMP4
	case "hls", "m3u8", "application/vnd.apple.mpegurl", "application/x-mpegurl":
		return KindHLS
	case "dash", "mpd", "application/dash+xml":
		return KindDASH
	default:
		return KindUnknown
	}
}

// DetectKind guesses a Kind from the path extension of a URL
func DetectKind(rawURL string) Kind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp4", ".m4v", ".mov", ".webm":
		return KindMP4
	case ".m3u8":
		return KindHLS
	case ".mpd":
		return KindDASH
	default:
		return KindUnknown
	}
}

// Source represents a single selectable stream
type Source struct {
	Title string
	URL   string
	Type  string // declared type, may be empty
	Index int
}

// Kind returns the declared kind, falling back to the URL extension
func (s Source) Kind() Kind {
	if k := ParseKind(s.Type); k != KindUnknown {
		return k
	}
	return DetectKind(s.URL)
}

// Catalog manages the list of selectable sources
type Catalog struct {
	mu      sync.RWMutex
	sources []Source
	current int
}

// New creates a new empty catalog
func New() *Catalog {
	return &Catalog{
		sources: make([]Source, 0),
		current: -1,
	}
}

// Add adds a source to the catalog and returns its index
func (c *Catalog) Add(title, rawURL, typ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if title == "" {
		title = fmt.Sprintf("Source %d", len(c.sources)+1)
	}
	src := Source{
		Title: title,
		URL:   rawURL,
		Type:  typ,
		Index: len(c.sources),
	}
	c.sources = append(c.sources, src)
	return src.Index
}

// Clear removes all sources
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sources = make([]Source, 0)
	c.current = -1
}

// Current returns the selected source
func (c *Catalog) Current() (Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current < 0 || c.current >= len(c.sources) {
		return Source{}, ErrNoSource
	}
	return c.sources[c.current], nil
}

// Get returns the source at index without selecting it
func (c *Catalog) Get(index int) (Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if index < 0 || index >= len(c.sources) {
		return Source{}, fmt.Errorf("invalid source index %d: %w", index, ErrNoSource)
	}
	return c.sources[index], nil
}

// Select moves the selection to index and returns the source there
func (c *Catalog) Select(index int) (Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.sources) {
		return Source{}, fmt.Errorf("invalid source index %d: %w", index, ErrNoSource)
	}
	c.current = index
	return c.sources[index], nil
}

// Deselect drops the selection and keeps the sources
func (c *Catalog) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = -1
}

// Len returns the number of sources
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}

// All returns a copy of every source
func (c *Catalog) All() []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sources := make([]Source, len(c.sources))
	copy(sources, c.sources)
	return sources
}

// Filter returns the sources of the given kind
func (c *Catalog) Filter(kind Kind) []Source {
	return lo.Filter(c.All(), func(s Source, _ int) bool {
		return s.Kind() == kind
	})
}

// CurrentIndex returns the selected index, or -1
func (c *Catalog) CurrentIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}
