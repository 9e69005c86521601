package imageproxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

var (
	// ErrInvalidCacheKey is returned for keys that are not CacheKey output.
	ErrInvalidCacheKey = errors.New("invalid cache key")
	// ErrInvalidCacheBasePath is returned when the cache base path is empty.
	ErrInvalidCacheBasePath = errors.New("cache base path cannot be empty")
	// ErrInvalidCacheMaxSize is returned when the size limit is not positive.
	ErrInvalidCacheMaxSize = errors.New("cache max size must be positive")
)

// Cache stores processed thumbnails by preset and source key.
type Cache interface {
	// Get returns the cached bytes and whether they were found.
	Get(preset, key string) ([]byte, bool, error)
	Set(preset, key string, data []byte) error
	Delete(preset, key string) error
	// Cleanup runs TTL expiry then LRU eviction and reports how many entries went.
	Cleanup() (int, error)
}

// CacheKey derives the on-disk key for a canonical source URI: the hex SHA-256 of the URI.
// Hex keys never contain path separators.
func CacheKey(canonicalURI string) string {
	sum := sha256.Sum256([]byte(canonicalURI))
	return hex.EncodeToString(sum[:])
}

// DiskCache implements Cache on the filesystem as {basePath}/{preset}/{key[:2]}/{key}.
// Access time is tracked through file mtimes.
type DiskCache struct {
	basePath     string
	maxSizeBytes int64
	ttl          time.Duration
	now          func() time.Time
}

// NewDiskCache creates a DiskCache. ttl of 0 disables TTL expiry.
func NewDiskCache(basePath string, maxSizeMB int, ttl time.Duration) (*DiskCache, error) {
	if basePath == "" {
		return nil, ErrInvalidCacheBasePath
	}
	if maxSizeMB <= 0 {
		return nil, ErrInvalidCacheMaxSize
	}
	if ttl < 0 {
		return nil, ErrInvalidCacheTTL
	}
	return &DiskCache{
		basePath:     basePath,
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

func (c *DiskCache) path(preset, key string) (string, error) {
	if _, err := GetPreset(preset); err != nil {
		return "", err
	}
	if len(key) != sha256.Size*2 {
		return "", ErrInvalidCacheKey
	}
	if _, err := hex.DecodeString(key); err != nil {
		return "", ErrInvalidCacheKey
	}
	return filepath.Join(c.basePath, preset, key[:2], key), nil
}

func (c *DiskCache) Get(preset, key string) ([]byte, bool, error) {
	p, err := c.path(preset, key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	now := c.now()
	if err := os.Chtimes(p, now, now); err != nil {
		slog.Warn("[IMAGE-PROXY] failed to update mtime for LRU tracking",
			"path", p,
			"error", err,
		)
	}
	return data, true, nil
}

// Set writes through a temp file and rename so readers never see partial thumbnails.
func (c *DiskCache) Set(preset, key string, data []byte) error {
	p, err := c.path(preset, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Delete is idempotent.
func (c *DiskCache) Delete(preset, key string) error {
	p, err := c.path(preset, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *DiskCache) scan() ([]cacheEntry, int64, error) {
	var entries []cacheEntry
	var total int64
	err := filepath.WalkDir(c.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			slog.Warn("[IMAGE-PROXY] failed to stat cache file",
				"path", path,
				"error", err,
			)
			return nil
		}
		entries = append(entries, cacheEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, 0, err
	}
	return entries, total, nil
}

// Size returns the cache size in bytes.
func (c *DiskCache) Size() (int64, error) {
	_, total, err := c.scan()
	return total, err
}

// CleanExpired removes entries not touched within the TTL.
func (c *DiskCache) CleanExpired() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	entries, _, err := c.scan()
	if err != nil {
		return 0, err
	}
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for _, e := range entries {
		if e.modTime.After(cutoff) {
			continue
		}
		if err := os.Remove(e.path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("[IMAGE-PROXY] failed to remove expired cache entry",
					"path", e.path,
					"error", err,
				)
			}
			continue
		}
		removed++
	}
	return removed, nil
}

// EvictLRU removes the least recently used entries until the cache fits its limit.
func (c *DiskCache) EvictLRU() (int, error) {
	entries, total, err := c.scan()
	if err != nil {
		return 0, err
	}
	if total <= c.maxSizeBytes {
		return 0, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	removed := 0
	for _, e := range entries {
		if total <= c.maxSizeBytes {
			break
		}
		if err := os.Remove(e.path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("[IMAGE-PROXY] failed to evict cache entry",
					"path", e.path,
					"error", err,
				)
			}
			continue
		}
		total -= e.size
		removed++
	}

	slog.Info("[IMAGE-PROXY] LRU eviction completed",
		"entries_removed", removed,
		"size_bytes", total,
		"max_size_bytes", c.maxSizeBytes,
	)
	return removed, nil
}

func (c *DiskCache) Cleanup() (int, error) {
	expired, err := c.CleanExpired()
	if err != nil {
		return 0, err
	}
	evicted, err := c.EvictLRU()
	return expired + evicted, err
}

// StartCleanupJob runs Cleanup every interval until the returned cancel func is called.
// A non-positive interval starts nothing.
func (c *DiskCache) StartCleanupJob(interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		slog.Info("[IMAGE-PROXY] cache cleanup job disabled")
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("[IMAGE-PROXY] cache cleanup job panicked", "panic", r)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("[IMAGE-PROXY] cache cleanup job stopped")
				return
			case <-ticker.C:
				removed, err := c.Cleanup()
				if err != nil {
					slog.Error("[IMAGE-PROXY] cache cleanup error", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("[IMAGE-PROXY] cache cleanup completed", "entries_removed", removed)
				}
			}
		}
	}()
	return cancel
}
