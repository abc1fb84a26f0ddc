// Package cache implements the on-disk image and feature-vector cache
// shared by every matching run.
//
// Layout under the root directory:
//
//	<root>/<platform>/<hash[:2]>/<hash>      raw image bytes (TTL-bound)
//	<root>/features/<hash>.json              feature vectors (no TTL)
//	<root>/index.json                        last-access sidecar for LRU
//
// Writes go through a temp file and rename, so concurrent readers from
// other processes never observe a partial entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/common/metrics"
	"arbitrage-scout/internal/common/retry"
	"arbitrage-scout/internal/imaging"
)

// Doer abstracts the HTTP client so tests can count fetches.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Manager.
type Options struct {
	RootDir      string
	ImageTTL     time.Duration
	MaxBytes     int64
	MaxEntries   int
	FetchTimeout time.Duration
	HTTPClient   Doer
	Logger       logger.Logger
}

// headerSet is the per-platform fetch identity.
type headerSet struct {
	Referer   string
	UserAgent string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var platformHeaders = map[string]headerSet{
	"marketplace": {Referer: "https://shopee.com/", UserAgent: defaultUserAgent},
	"aggregator":  {Referer: "https://www.google.com/", UserAgent: defaultUserAgent},
	"sourcing":    {Referer: "https://www.1688.com/", UserAgent: defaultUserAgent},
}

// indexEntry is one record of the LRU sidecar.
type indexEntry struct {
	Key        string    `json:"key"`
	Platform   string    `json:"platform"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
}

// Manager is the image cache manager. Safe for concurrent use within one
// process; cross-process safety relies on content-hash keys and atomic
// renames.
type Manager struct {
	opts   Options
	client Doer
	log    logger.Logger

	mu    sync.Mutex
	index map[string]*indexEntry
	bytes int64

	now func() time.Time // overridable in tests
}

// New creates a Manager, loads the access index and runs one eviction pass.
func New(opts Options) (*Manager, error) {
	if opts.RootDir == "" {
		return nil, fmt.Errorf("cache root dir required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.FetchTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if err := os.MkdirAll(filepath.Join(opts.RootDir, "features"), 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	m := &Manager{
		opts:   opts,
		client: opts.HTTPClient,
		log:    opts.Logger.With(map[string]interface{}{"component": "image-cache"}),
		index:  make(map[string]*indexEntry),
		now:    time.Now,
	}

	m.loadIndex()
	m.Evict()
	return m, nil
}

// Key computes the stable cache key for a source URL: the hex sha256 of
// the normalized URL. Hex keeps paths short and safe on every target
// filesystem.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(normalizeURL(rawURL)))
	return hex.EncodeToString(sum[:])
}

func normalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// GetImage returns the image bytes for url, fetching and caching on miss.
// A fresh cached entry is returned without any network call. Fetches fail
// permanently on 4xx responses and are retried with backoff otherwise.
func (m *Manager) GetImage(ctx context.Context, rawURL, platform string) ([]byte, error) {
	key := Key(rawURL)
	path := m.imagePath(platform, key)

	if data, ok := m.readFresh(key, path); ok {
		metrics.ImageCacheLookups.WithLabelValues("image", "hit").Inc()
		return data, nil
	}
	metrics.ImageCacheLookups.WithLabelValues("image", "miss").Inc()

	data, err := m.fetch(ctx, rawURL, platform)
	if err != nil {
		return nil, err
	}

	if err := m.store(platform, key, path, data); err != nil {
		// A write failure degrades to uncached; the bytes are still good.
		m.log.Warn("cache write failed", map[string]interface{}{"url": rawURL, "error": err.Error()})
	}
	return data, nil
}

// GetOrComputeFeature returns the persisted feature vector for url, or
// computes it from the image bytes and persists it. Feature vectors are
// not subject to the image TTL: recomputation is expensive and product
// photos rarely change.
func (m *Manager) GetOrComputeFeature(ctx context.Context, rawURL, platform string, computeFn func([]byte) (imaging.FeatureVector, error)) (imaging.FeatureVector, error) {
	key := Key(rawURL)
	path := filepath.Join(m.opts.RootDir, "features", key+".json")

	if data, err := os.ReadFile(path); err == nil {
		var vec imaging.FeatureVector
		if err := json.Unmarshal(data, &vec); err == nil && len(vec) > 0 {
			metrics.ImageCacheLookups.WithLabelValues("feature", "hit").Inc()
			m.touch(featureKey(key))
			return vec, nil
		}
	}
	metrics.ImageCacheLookups.WithLabelValues("feature", "miss").Inc()

	img, err := m.GetImage(ctx, rawURL, platform)
	if err != nil {
		return nil, err
	}
	vec, err := computeFn(img)
	if err != nil {
		return nil, fmt.Errorf("compute feature vector: %w", err)
	}

	encoded, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encode feature vector: %w", err)
	}
	if err := m.store("features", featureKey(key), path, encoded); err != nil {
		m.log.Warn("feature write failed", map[string]interface{}{"url": rawURL, "error": err.Error()})
	}
	return vec, nil
}

func featureKey(imageKey string) string { return "feat:" + imageKey }

func (m *Manager) imagePath(platform, key string) string {
	return filepath.Join(m.opts.RootDir, platform, key[:2], key)
}

// readFresh returns cached bytes when the entry exists and is inside its
// TTL. Feature entries never expire; image freshness is judged by the
// index creation time, falling back to file mtime.
func (m *Manager) readFresh(key, path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	created := info.ModTime()
	m.mu.Lock()
	if e, ok := m.index[key]; ok {
		created = e.CreatedAt
	}
	m.mu.Unlock()

	if m.opts.ImageTTL > 0 && m.now().Sub(created) > m.opts.ImageTTL {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	m.touch(key)
	return data, true
}

func (m *Manager) fetch(ctx context.Context, rawURL, platform string) ([]byte, error) {
	headers, ok := platformHeaders[platform]
	if !ok {
		headers = headerSet{UserAgent: defaultUserAgent}
	}

	cfg := retry.Config{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

	var body []byte
	err := retry.Do(ctx, cfg, "image-fetch", stderrors.IsRetryable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return stderrors.NewValidationError("url", err.Error())
		}
		req.Header.Set("User-Agent", headers.UserAgent)
		if headers.Referer != "" {
			req.Header.Set("Referer", headers.Referer)
		}

		resp, err := m.client.Do(req)
		if err != nil {
			return stderrors.NewFetchFailedError(rawURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return stderrors.NewClientFetchError(rawURL, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return stderrors.NewFetchFailedError(rawURL, fmt.Errorf("status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return stderrors.NewFetchFailedError(rawURL, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// store writes data atomically and records the entry, then evicts
// opportunistically if the insert pushed the cache over its bounds.
func (m *Manager) store(platform, key, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	now := m.now()
	m.mu.Lock()
	if old, ok := m.index[key]; ok {
		m.bytes -= old.Size
	}
	m.index[key] = &indexEntry{
		Key:        key,
		Platform:   platform,
		Size:       int64(len(data)),
		CreatedAt:  now,
		LastAccess: now,
	}
	m.bytes += int64(len(data))
	over := m.overBounds()
	m.mu.Unlock()

	metrics.ImageCacheBytes.Set(float64(m.totalBytes()))
	if over {
		m.Evict()
	}
	return nil
}

func (m *Manager) touch(key string) {
	m.mu.Lock()
	if e, ok := m.index[key]; ok {
		e.LastAccess = m.now()
	}
	m.mu.Unlock()
}

func (m *Manager) overBounds() bool {
	if m.opts.MaxBytes > 0 && m.bytes > m.opts.MaxBytes {
		return true
	}
	if m.opts.MaxEntries > 0 && len(m.index) > m.opts.MaxEntries {
		return true
	}
	return false
}

func (m *Manager) totalBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

// Evict removes least-recently-accessed entries until the cache is inside
// its byte and entry bounds. Feature vectors are only removed once every
// image entry is gone and the bound still cannot be met.
func (m *Manager) Evict() {
	m.mu.Lock()
	if !m.overBounds() {
		m.mu.Unlock()
		return
	}

	entries := make([]*indexEntry, 0, len(m.index))
	for _, e := range m.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		fi := strings.HasPrefix(entries[i].Key, "feat:")
		fj := strings.HasPrefix(entries[j].Key, "feat:")
		if fi != fj {
			return !fi // images evict before features
		}
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	var removed int
	var freed int64
	for _, e := range entries {
		if !m.overBounds() {
			break
		}
		os.Remove(m.pathFor(e))
		m.bytes -= e.Size
		delete(m.index, e.Key)
		removed++
		freed += e.Size
	}
	m.mu.Unlock()

	if removed > 0 {
		metrics.ImageCacheEvictions.Add(float64(removed))
		metrics.ImageCacheBytes.Set(float64(m.totalBytes()))
		m.log.Info("cache eviction pass", map[string]interface{}{
			"removed":    removed,
			"bytesFreed": freed,
		})
		m.saveIndex()
	}
}

func (m *Manager) pathFor(e *indexEntry) string {
	if strings.HasPrefix(e.Key, "feat:") {
		return filepath.Join(m.opts.RootDir, "features", strings.TrimPrefix(e.Key, "feat:")+".json")
	}
	return m.imagePath(e.Platform, e.Key)
}

// Close persists the access index.
func (m *Manager) Close() error {
	return m.saveIndex()
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.opts.RootDir, "index.json")
}

func (m *Manager) loadIndex() {
	data, err := os.ReadFile(m.indexPath())
	if err == nil {
		var entries []*indexEntry
		if json.Unmarshal(data, &entries) == nil {
			for _, e := range entries {
				if _, err := os.Stat(m.pathFor(e)); err == nil {
					m.index[e.Key] = e
					m.bytes += e.Size
				}
			}
		}
	}
	m.reconcileDisk()
	metrics.ImageCacheBytes.Set(float64(m.bytes))
}

// reconcileDisk picks up entries written by other processes that never
// made it into this index, using file mtime as both creation and access
// time.
func (m *Manager) reconcileDisk() {
	_ = filepath.Walk(m.opts.RootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || info.Name() == "index.json" || strings.HasPrefix(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(m.opts.RootDir, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))

		var key, platform string
		if parts[0] == "features" {
			key = featureKey(strings.TrimSuffix(parts[len(parts)-1], ".json"))
			platform = "features"
		} else {
			key = parts[len(parts)-1]
			platform = parts[0]
		}
		if _, ok := m.index[key]; ok {
			return nil
		}
		m.index[key] = &indexEntry{
			Key:        key,
			Platform:   platform,
			Size:       info.Size(),
			CreatedAt:  info.ModTime(),
			LastAccess: info.ModTime(),
		}
		m.bytes += info.Size()
		return nil
	})
}

func (m *Manager) saveIndex() error {
	m.mu.Lock()
	entries := make([]*indexEntry, 0, len(m.index))
	for _, e := range m.index {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	tmp := m.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.indexPath())
}
