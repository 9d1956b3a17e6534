// Package mediacache loads gated media assets, serving them from the
// persisted cache while fresh and falling back to an upstream HTTP
// fetch otherwise. Fetched payloads are written back best-effort,
// optionally obfuscated at rest.
package mediacache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/haldane/mediagate/internal/clock"
	"github.com/haldane/mediagate/internal/metrics"
	"github.com/haldane/mediagate/internal/obfuscate"
	"github.com/haldane/mediagate/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Source tags where a load was satisfied from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

const defaultMIMEType = "application/octet-stream"

// FetchError reports a failed upstream media fetch. It is the only
// failure the manager surfaces to callers: everything on the cache side
// degrades to a miss or a lost write instead.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the transport itself failed
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is a loaded media asset ready for playback.
type Result struct {
	Bytes    []byte
	Source   Source
	MIMEType string
}

// Config holds manager configuration.
type Config struct {
	TTL          time.Duration
	Obfuscate    bool
	BaseURL      string // origin that relative media paths resolve against
	FetchTimeout time.Duration
	HotEntries   int
	Clock        clock.Clock
	Client       *http.Client
}

// Manager coordinates the persisted cache, the in-memory hot layer, and
// upstream fetches. Concurrent loads of the same missing key share a
// single fetch.
type Manager struct {
	cache        storage.CacheStore
	codec        *obfuscate.Codec
	client       *http.Client
	base         *url.URL
	ttl          time.Duration
	obfuscate    bool
	fetchTimeout time.Duration
	clock        clock.Clock
	logger       zerolog.Logger

	// hot holds recently revealed payloads so repeat plays of the same
	// asset skip the store round-trip. Entries obey the same TTL as the
	// persisted cache.
	hot *lru.Cache[string, storage.CacheEntry]

	inflight map[string]*inflightLoad
	mu       sync.Mutex
}

// inflightLoad is a pending fetch that late-arriving loaders of the
// same key wait on instead of issuing their own request.
type inflightLoad struct {
	done chan struct{}
	res  *Result
	err  error
}

// NewManager creates a media cache manager.
func NewManager(cache storage.CacheStore, codec *obfuscate.Codec, cfg Config, logger zerolog.Logger) (*Manager, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.HotEntries <= 0 {
		cfg.HotEntries = 32
	}

	hot, err := lru.New[string, storage.CacheEntry](cfg.HotEntries)
	if err != nil {
		return nil, fmt.Errorf("create hot cache: %w", err)
	}

	return &Manager{
		cache:        cache,
		codec:        codec,
		client:       cfg.Client,
		base:         base,
		ttl:          cfg.TTL,
		obfuscate:    cfg.Obfuscate,
		fetchTimeout: cfg.FetchTimeout,
		clock:        cfg.Clock,
		logger:       logger.With().Str("component", "mediacache").Logger(),
		hot:          hot,
		inflight:     make(map[string]*inflightLoad),
	}, nil
}

// NormalizeURL resolves a raw media reference against the configured
// base origin. The normalized absolute URL is the cache key, so
// relative and absolute references to the same asset share one entry.
func (m *Manager) NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty media URL")
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse media URL %q: %w", raw, err)
	}

	resolved := m.base.ResolveReference(ref)
	if resolved.Scheme == "" || resolved.Host == "" {
		return "", fmt.Errorf("media URL %q does not resolve to an absolute URL", raw)
	}

	return resolved.String(), nil
}

// Load returns playable bytes for the given media reference, from the
// cache when a fresh entry exists and from the network otherwise.
func (m *Manager) Load(ctx context.Context, rawURL string) (*Result, error) {
	key, err := m.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()

	// Hot layer first: revealed bytes, no store round-trip.
	if entry, ok := m.hot.Get(key); ok {
		if entry.Fresh(now) {
			return &Result{Bytes: entry.Payload, Source: SourceCache, MIMEType: entry.MIMEType}, nil
		}
		m.hot.Remove(key)
	}

	// Join an in-flight load of the same key, or register our own.
	m.mu.Lock()
	if pending, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		select {
		case <-pending.done:
			return pending.res, pending.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	pending := &inflightLoad{done: make(chan struct{})}
	m.inflight[key] = pending
	m.mu.Unlock()

	res, err := m.load(ctx, key, now)

	pending.res, pending.err = res, err
	close(pending.done)

	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()

	return res, err
}

func (m *Manager) load(ctx context.Context, key string, now time.Time) (*Result, error) {
	// Store lookup. Read failures degrade to a miss: caching is
	// best-effort, only the fetch is load-bearing.
	entry, err := m.cache.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
	}

	if entry != nil && entry.SchemaVersion == storage.CacheEntrySchemaVersion && entry.Fresh(now) {
		payload := entry.Payload
		if entry.Obfuscated {
			payload = m.codec.Reveal(payload)
		}

		revealed := *entry
		revealed.Payload = payload
		revealed.Obfuscated = false
		m.hot.Add(key, revealed)

		return &Result{Bytes: payload, Source: SourceCache, MIMEType: entry.MIMEType}, nil
	}

	payload, mimeType, err := m.fetch(ctx, key)
	if err != nil {
		metrics.MediaFetchErrors.Inc()
		return nil, err
	}

	m.storeFetched(ctx, key, payload, mimeType)

	return &Result{Bytes: payload, Source: SourceNetwork, MIMEType: mimeType}, nil
}

// fetch retrieves the asset over HTTP, bypassing intermediary caches so
// freshness is decided at this layer only.
func (m *Manager) fetch(ctx context.Context, key string) ([]byte, string, error) {
	if m.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.fetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, "", &FetchError{URL: key, Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: key, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &FetchError{URL: key, StatusCode: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &FetchError{URL: key, Err: err}
	}
	metrics.MediaFetchDuration.Observe(time.Since(start).Seconds())

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	return payload, mimeType, nil
}

// storeFetched writes the fetched payload back. A write failure never
// blocks playback; the fetched bytes have already been returned and
// only the cache-population side effect is lost.
func (m *Manager) storeFetched(ctx context.Context, key string, payload []byte, mimeType string) {
	stored := payload
	if m.obfuscate {
		stored = m.codec.Obfuscate(payload)
	}

	entry := storage.CacheEntry{
		SchemaVersion: storage.CacheEntrySchemaVersion,
		Key:           key,
		Payload:       stored,
		CreatedAt:     m.clock.Now(),
		TTL:           m.ttl,
		Obfuscated:    m.obfuscate,
		MIMEType:      mimeType,
	}

	if err := m.cache.Put(ctx, entry); err != nil {
		metrics.CacheWriteFailures.Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed, payload served uncached")
		return
	}

	hot := entry
	hot.Payload = payload
	hot.Obfuscated = false
	m.hot.Add(key, hot)
}

// SweepExpired deletes stale entries from the persisted cache and
// returns how many were removed. Run opportunistically; freshness is
// enforced lazily on read either way.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	entries, err := m.cache.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}

	now := m.clock.Now()
	swept := 0

	for _, entry := range entries {
		if entry.Fresh(now) && entry.SchemaVersion == storage.CacheEntrySchemaVersion {
			continue
		}
		if err := m.cache.Delete(ctx, entry.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Err(err).Str("key", entry.Key).Msg("Failed to delete stale cache entry")
			continue
		}
		m.hot.Remove(entry.Key)
		swept++
	}

	if swept > 0 {
		metrics.CacheEntriesSwept.Add(float64(swept))
		m.logger.Info().Int("swept", swept).Msg("Swept stale cache entries")
	}

	return swept, nil
}

// ClearAll unconditionally empties the cache, hot layer included. Used
// on session teardown so content does not linger after lock-out.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.hot.Purge()
	if err := m.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
