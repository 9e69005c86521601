// Package imageproxy serves resized token artwork. Images referenced by token
// metadata are fetched through the IPFS gateway list, scaled to a named preset,
// re-encoded as JPEG and kept in a disk LRU cache.
//
//   - Service: orchestrates cache, fetch and processing
//   - Cache: disk LRU cache with TTL expiry
//   - Fetcher: gateway-ordered source download with a size cap
//   - Processor: preset transformation
package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"Kittens/internal/core/ipfs"
)

var cacheWriteErrors atomic.Int64

// CacheWriteErrorCount returns the number of failed async cache writes.
func CacheWriteErrorCount() int64 {
	return cacheWriteErrors.Load()
}

// Service produces preset thumbnails for token image URIs.
type Service interface {
	// GetImage returns the JPEG thumbnail of rawURI for the named preset.
	GetImage(ctx context.Context, preset, rawURI string) ([]byte, error)
}

// ImageProxyService implements Service.
type ImageProxyService struct {
	cache     Cache
	processor Processor
	fetcher   Fetcher
	group     singleflight.Group
}

// NewService returns an error if any dependency is nil.
func NewService(cache Cache, processor Processor, fetcher Fetcher) (*ImageProxyService, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: cache", ErrNilDependency)
	}
	if processor == nil {
		return nil, fmt.Errorf("%w: processor", ErrNilDependency)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher", ErrNilDependency)
	}
	return &ImageProxyService{
		cache:     cache,
		processor: processor,
		fetcher:   fetcher,
	}, nil
}

// GetImage validates the preset, normalizes rawURI, serves a cache hit if present,
// and otherwise fetches and processes the source. Concurrent requests for the same
// thumbnail share one fetch. The cache write happens in the background.
func (s *ImageProxyService) GetImage(ctx context.Context, presetName, rawURI string) ([]byte, error) {
	preset, err := GetPreset(presetName)
	if err != nil {
		return nil, err
	}

	canonical := ipfs.RepairScheme(ipfs.Normalize(rawURI))
	if canonical == "" {
		return nil, ErrEmptySource
	}
	key := CacheKey(canonical)

	cached, found, err := s.cache.Get(presetName, key)
	if err != nil {
		slog.Warn("[IMAGE-PROXY] cache read error, falling back to fetch",
			"preset", presetName,
			"uri", canonical,
			"error", err,
		)
	}
	if found {
		slog.Debug("[IMAGE-PROXY] cache hit", "preset", presetName, "uri", canonical)
		return cached, nil
	}

	var v any
	for {
		var shared bool
		v, err, shared = s.group.Do(presetName+"|"+key, func() (any, error) {
			raw, err := s.fetcher.Fetch(ctx, canonical)
			if err != nil {
				return nil, err
			}
			return s.processor.Process(raw, preset)
		})
		// A fetch cancelled by the request that started it is retried for
		// requests that are still waiting.
		if err != nil && shared && ctx.Err() == nil && errors.Is(err, context.Canceled) {
			slog.Debug("[IMAGE-PROXY] shared fetch cancelled by another request, retrying", "uri", canonical)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	processed := v.([]byte)

	go func() {
		if err := s.cache.Set(presetName, key, processed); err != nil {
			cacheWriteErrors.Add(1)
			slog.Error("[IMAGE-PROXY] async cache write failed",
				"preset", presetName,
				"uri", canonical,
				"error", err,
				"total_cache_write_errors", cacheWriteErrors.Load(),
			)
			return
		}
		slog.Debug("[IMAGE-PROXY] cached thumbnail",
			"preset", presetName,
			"uri", canonical,
			"size_bytes", len(processed),
		)
	}()

	return processed, nil
}
