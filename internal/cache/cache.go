// Package cache stores resolved icons keyed by the MD5 of the requested URL.
// Entries model "the answer for this request": two requested URLs resolving
// to the same icon are cached separately.
package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/favicon-resolver/internal/metrics"
)

var (
	// ErrNotFound is returned by a Store when no object exists for a key.
	ErrNotFound = errors.New("cache object not found")
	// ErrCorruptEntry is returned when a stored entry cannot be decoded.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)

// Store persists opaque cache objects by name.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// Hasher computes the digest used as the cache key.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Entry is one cached icon.
type Entry struct {
	Key       string
	Headers   [][2]string
	MimeType  string
	Length    int
	Bytes     []byte
	SourceURL string
}

// record is the persisted JSON layout of an Entry.
type record struct {
	Headers   [][2]string `json:"headers"`
	Type      string      `json:"type"`
	Length    int         `json:"length"`
	Base64    string      `json:"base64"`
	SourceURL string      `json:"sourceUrl"`
}

// Config tunes the IconCache.
type Config struct {
	// HotMaxBytes sizes the in-process layer in front of the Store; zero disables it.
	HotMaxBytes int64
}

// IconCache reads and writes icon entries through a Store.
type IconCache struct {
	store  Store
	hasher Hasher
	hot    *ristretto.Cache[string, Entry]
	logger *zap.Logger
}

// New builds an IconCache.
func New(store Store, hasher Hasher, cfg Config, logger *zap.Logger) (*IconCache, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("cache hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &IconCache{store: store, hasher: hasher, logger: logger}
	if cfg.HotMaxBytes > 0 {
		hot, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
			NumCounters: hotCounters(cfg.HotMaxBytes),
			MaxCost:     cfg.HotMaxBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("init hot cache: %w", err)
		}
		c.hot = hot
	}
	return c, nil
}

// Close releases the in-process layer.
func (c *IconCache) Close() {
	if c.hot != nil {
		c.hot.Close()
	}
}

// Key returns the cache key for requestedURL.
func (c *IconCache) Key(requestedURL string) (string, error) {
	key, err := c.hasher.Hash([]byte(requestedURL))
	if err != nil {
		return "", fmt.Errorf("hash requested url: %w", err)
	}
	return key, nil
}

// Get returns the entry cached for requestedURL. A missing entry reports
// false with a nil error; a corrupt one wraps ErrCorruptEntry.
func (c *IconCache) Get(ctx context.Context, requestedURL string) (Entry, bool, error) {
	key, err := c.Key(requestedURL)
	if err != nil {
		return Entry{}, false, err
	}
	if c.hot != nil {
		if entry, ok := c.hot.Get(key); ok {
			metrics.ObserveCacheLookup(metrics.CacheHotHit)
			return entry, true, nil
		}
	}

	data, err := c.store.Get(ctx, objectName(key))
	if errors.Is(err, ErrNotFound) {
		metrics.ObserveCacheLookup(metrics.CacheMiss)
		return Entry{}, false, nil
	}
	if err != nil {
		metrics.ObserveCacheLookup(metrics.CacheError)
		return Entry{}, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}

	entry, err := decode(key, data)
	if err != nil {
		metrics.ObserveCacheLookup(metrics.CacheCorrupt)
		return Entry{}, false, err
	}
	metrics.ObserveCacheLookup(metrics.CacheHit)
	c.remember(entry)
	c.logger.Debug("read cached icon", zap.String("key", key), zap.String("source_url", entry.SourceURL))
	return entry, true, nil
}

// Put writes entry under the key for requestedURL.
func (c *IconCache) Put(ctx context.Context, requestedURL string, entry Entry) error {
	key, err := c.Key(requestedURL)
	if err != nil {
		return err
	}
	entry.Key = key
	if entry.Length == 0 {
		entry.Length = len(entry.Bytes)
	}
	data, err := json.Marshal(record{
		Headers:   entry.Headers,
		Type:      entry.MimeType,
		Length:    entry.Length,
		Base64:    base64.StdEncoding.EncodeToString(entry.Bytes),
		SourceURL: entry.SourceURL,
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", key, err)
	}
	if err := c.store.Put(ctx, objectName(key), data); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	c.remember(entry)
	c.logger.Debug("wrote cached icon", zap.String("key", key), zap.String("source_url", entry.SourceURL))
	return nil
}

// Delete removes the entry for requestedURL. Deleting a missing entry is not an error.
func (c *IconCache) Delete(ctx context.Context, requestedURL string) error {
	key, err := c.Key(requestedURL)
	if err != nil {
		return err
	}
	if c.hot != nil {
		c.hot.Del(key)
	}
	if err := c.store.Delete(ctx, objectName(key)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

func (c *IconCache) remember(entry Entry) {
	if c.hot == nil {
		return
	}
	cost := int64(len(entry.Bytes))
	if cost == 0 {
		cost = 1
	}
	c.hot.Set(entry.Key, entry, cost)
	c.hot.Wait()
}

func decode(key string, data []byte) (Entry, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Entry{}, fmt.Errorf("%w %s: %v", ErrCorruptEntry, key, err)
	}
	body, err := base64.StdEncoding.DecodeString(rec.Base64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w %s: decode base64: %v", ErrCorruptEntry, key, err)
	}
	return Entry{
		Key:       key,
		Headers:   rec.Headers,
		MimeType:  rec.Type,
		Length:    rec.Length,
		Bytes:     body,
		SourceURL: rec.SourceURL,
	}, nil
}

func objectName(key string) string {
	return key + ".json"
}

func hotCounters(maxBytes int64) int64 {
	// Assume ~4 KiB per icon and track ten counters per expected entry.
	items := maxBytes / 4096
	if items < 100 {
		items = 100
	}
	return items * 10
}
