// Package memory provides an in-process gallery cache store backed by bigcache.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"Kittens/internal/core/gallery"
)

// Store keeps gallery cache entries in memory. Entries are evicted after the
// configured life window; the zero window keeps them for a day.
type Store struct {
	cache *bigcache.BigCache
}

// NewStore creates a memory store whose entries live for lifeWindow.
func NewStore(ctx context.Context, lifeWindow time.Duration) (*Store, error) {
	if lifeWindow <= 0 {
		lifeWindow = 24 * time.Hour
	}
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.Shards = 16
	cfg.HardMaxCacheSize = 128
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

// Get returns the entry under key or gallery.ErrCacheMiss.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	data, err := s.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, gallery.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("memory cache get: %w", err)
	}
	return data, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if err := s.cache.Set(key, value); err != nil {
		return fmt.Errorf("memory cache set: %w", err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return fmt.Errorf("memory cache delete: %w", err)
	}
	return nil
}

// Close stops the cleanup goroutine and releases the shards.
func (s *Store) Close() error {
	return s.cache.Close()
}
