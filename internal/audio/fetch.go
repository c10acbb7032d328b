package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v2"
)

var ErrFetch = errors.New("audio: fetch failed")

// FetchConfig bounds remote media loading.
type FetchConfig struct {
	Timeout    time.Duration
	MaxBytes   int64
	CacheTTL   time.Duration
	CacheItems int
}

func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:    15 * time.Second,
		MaxBytes:   16 << 20,
		CacheTTL:   10 * time.Minute,
		CacheItems: 32,
	}
}

// Fetcher loads media by URL and keeps decoded clips for CacheTTL so
// repeated chimes and announcements skip the download and decode.
type Fetcher struct {
	cfg    FetchConfig
	client *http.Client
	cache  *ttlcache.Cache
}

func NewFetcher(cfg FetchConfig, client *http.Client) *Fetcher {
	d := DefaultFetchConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = d.MaxBytes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = d.CacheTTL
	}
	if cfg.CacheItems <= 0 {
		cfg.CacheItems = d.CacheItems
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cache := ttlcache.NewCache()
	_ = cache.SetTTL(cfg.CacheTTL)
	cache.SetCacheSizeLimit(cfg.CacheItems)
	return &Fetcher{cfg: cfg, client: client, cache: cache}
}

// Open implements the pipeline media source.
func (f *Fetcher) Open(ctx context.Context, src string) (Stream, error) {
	clip, err := f.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return clip.Stream(), nil
}

// Load returns the decoded clip for src. src may be an http(s) URL, a
// file:// URL or a local path.
func (f *Fetcher) Load(ctx context.Context, src string) (*Clip, error) {
	if v, err := f.cache.Get(src); err == nil {
		if clip, ok := v.(*Clip); ok {
			return clip, nil
		}
	}

	data, contentType, err := f.read(ctx, src)
	if err != nil {
		return nil, err
	}
	format := DetectFormat(contentType, src, data)
	if format == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, src)
	}
	clip, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	_ = f.cache.Set(src, clip)
	return clip, nil
}

func (f *Fetcher) read(ctx context.Context, src string) ([]byte, string, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		p := src
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		data, err := readLimited(openFile(p), f.cfg.MaxBytes)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %w", ErrFetch, src, err)
		}
		return data, "", nil
	}
	if !strings.HasPrefix(u.Scheme, "http") {
		return nil, "", fmt.Errorf("%w: scheme %q", ErrFetch, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("%w: %s: status %d", ErrFetch, src, resp.StatusCode)
	}
	data, err := readLimited(func() (io.ReadCloser, error) { return io.NopCloser(resp.Body), nil }, f.cfg.MaxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrFetch, src, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func openFile(p string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return os.Open(p) }
}

func readLimited(open func() (io.ReadCloser, error), max int64) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("media exceeds %d bytes", max)
	}
	return data, nil
}

// Close releases the clip cache.
func (f *Fetcher) Close() error {
	return f.cache.Close()
}
