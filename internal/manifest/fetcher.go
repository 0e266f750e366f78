package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxManifestSize bounds a single manifest body
const maxManifestSize = 8 << 20

// FetchError reports a failed manifest download
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err came from the transport or a server-side
// failure, both of which a reload may recover from
func IsNetworkError(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == 0 || fe.StatusCode >= 500
}

// Fetcher downloads manifests and keeps recent bodies in an LRU cache
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, []byte]

	// Download synchronization - prevents concurrent downloads of same URL
	downloadLocks sync.Map // map[string]*sync.Mutex
}

// NewFetcher creates a fetcher caching up to entries manifests
func NewFetcher(entries int, timeout time.Duration) (*Fetcher, error) {
	if entries <= 0 {
		entries = 1
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest cache: %w", err)
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  cache,
	}, nil
}

// getDownloadLock returns a mutex for the given URL to prevent concurrent downloads
func (f *Fetcher) getDownloadLock(url string) *sync.Mutex {
	lock, _ := f.downloadLocks.LoadOrStore(url, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Fetch returns the manifest body for url, from cache when possible.
// Non-HTTP sources are read from the local filesystem.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	// Quick check if already cached (without lock)
	if body, ok := f.cache.Get(url); ok {
		return body, nil
	}

	lock := f.getDownloadLock(url)
	lock.Lock()
	defer lock.Unlock()

	// Check again after acquiring lock (another goroutine may have completed it)
	if body, ok := f.cache.Get(url); ok {
		return body, nil
	}

	var body []byte
	var err error
	if isRemote(url) {
		body, err = f.download(ctx, url)
	} else {
		body, err = os.ReadFile(url)
		if err != nil {
			err = &FetchError{URL: url, Err: err}
		}
	}
	if err != nil {
		return nil, err
	}

	f.cache.Add(url, body)
	return body, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	log.Printf("Downloading manifest: %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	log.Printf("Manifest download complete: %s (%d bytes)", url, len(body))
	return body, nil
}

// Invalidate drops a cached manifest so the next Fetch downloads it again
func (f *Fetcher) Invalidate(url string) {
	if f.cache.Remove(url) {
		log.Printf("Invalidated manifest cache entry: %s", url)
	}
}

// Len returns the number of cached manifests
func (f *Fetcher) Len() int {
	return f.cache.Len()
}

// Purge removes all cached manifests
func (f *Fetcher) Purge() {
	f.cache.Purge()
}

// FetchHLS downloads and summarizes an HLS playlist
func (f *Fetcher) FetchHLS(ctx context.Context, url string) (*HLSSummary, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	summary, err := ParseHLS(body)
	if err != nil {
		// Don't keep a body we can't use
		f.Invalidate(url)
		return nil, err
	}
	return summary, nil
}

// FetchDASH downloads and summarizes a DASH manifest
func (f *Fetcher) FetchDASH(ctx context.Context, url string) (*DASHSummary, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	summary, err := ParseDASH(body)
	if err != nil {
		f.Invalidate(url)
		return nil, err
	}
	return summary, nil
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
