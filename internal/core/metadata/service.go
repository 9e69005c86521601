// Package metadata resolves ERC721 token URIs to their metadata documents.
//
// The package is split into layers:
//   - GatewayFetcher: tries gateway candidates in order, with a per-gateway circuit breaker
//   - MetadataService: memoises resolved documents and shares concurrent fetches
//
// Inline JSON and data:application/json token URIs are decoded without any network access.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"golang.org/x/sync/singleflight"

	"Kittens/internal/core/ipfs"
)

// Service defines the metadata resolution operations used by the gallery and holdings views.
type Service interface {
	// Resolve returns the metadata document rawURI points at.
	Resolve(ctx context.Context, rawURI string) (Metadata, error)

	// ResolveURL maps rawURI onto the default gateway without fetching it.
	ResolveURL(rawURI string) string

	// ResolveImage returns an HTTP URL for the document's image. data: URIs are
	// returned unchanged and an empty image yields "".
	ResolveImage(md Metadata) string

	// Invalidate drops any memoised document for rawURI.
	Invalidate(rawURI string)
}

// MetadataService implements Service on top of a Fetcher. Resolved documents are
// immutable content, so successes are memoised for MemoTTL; failures are not.
type MetadataService struct {
	fetcher  Fetcher
	memo     *bigcache.BigCache
	metrics  *Metrics
	resolver ipfs.Resolver
	group    singleflight.Group
	timeout  time.Duration
}

// NewService creates a MetadataService. metrics may be nil.
func NewService(cfg Config, fetcher Fetcher, metrics *Metrics) (*MetadataService, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher", ErrNilDependency)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata config: %w", err)
	}

	memoCfg := bigcache.DefaultConfig(cfg.MemoTTL)
	memoCfg.Shards = 64
	memoCfg.MaxEntriesInWindow = 10_000
	memoCfg.MaxEntrySize = 2048
	memoCfg.HardMaxCacheSize = 64
	memoCfg.CleanWindow = cfg.MemoTTL / 2
	memoCfg.Verbose = false

	memo, err := bigcache.New(context.Background(), memoCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata memo: %w", err)
	}

	return &MetadataService{
		fetcher:  fetcher,
		memo:     memo,
		metrics:  metrics,
		resolver: cfg.Resolver(),
		timeout:  cfg.FetchTimeout,
	}, nil
}

// Resolve returns the metadata document for rawURI.
//
// Lookups are keyed by the canonical URI, so differently wrapped forms of the same
// token URI share one memo entry and one in-flight fetch. A caller whose context
// ends stops waiting. The shared fetch runs under the context of the caller that
// started it; when that context ends first, callers that are still waiting start
// a new fetch instead of inheriting the cancellation.
func (s *MetadataService) Resolve(ctx context.Context, rawURI string) (Metadata, error) {
	if _, inline, _ := parseInline(rawURI); inline {
		return s.fetcher.FetchMetadata(ctx, rawURI, s.timeout)
	}

	key := memoKey(rawURI)
	if key == "" {
		return Metadata{}, ErrEmptyURI
	}

	for {
		if md, ok := s.lookup(key); ok {
			s.metrics.cacheHit()
			return md, nil
		}

		ch := s.group.DoChan(key, func() (any, error) {
			md, err := s.fetcher.FetchMetadata(ctx, rawURI, s.timeout)
			if err != nil {
				return Metadata{}, err
			}
			s.store(key, md)
			return md, nil
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return Metadata{}, fmt.Errorf("%w: %w", ErrFetchExhausted, ctx.Err())
		case res = <-ch:
		}

		if res.Err == nil {
			return res.Val.(Metadata), nil
		}
		if ctx.Err() == nil && res.Shared && isContextError(res.Err) {
			slog.Debug("[METADATA] shared fetch cancelled by another caller, retrying", "uri", key)
			continue
		}
		if ctx.Err() != nil && !errors.Is(res.Err, ErrFetchExhausted) {
			return Metadata{}, fmt.Errorf("%w: %w", ErrFetchExhausted, res.Err)
		}
		return Metadata{}, res.Err
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ResolveURL maps rawURI onto the default gateway.
func (s *MetadataService) ResolveURL(rawURI string) string {
	return s.resolver.Resolve(rawURI)
}

// ResolveImage returns the gateway URL for md.Image.
func (s *MetadataService) ResolveImage(md Metadata) string {
	img := strings.TrimSpace(md.Image)
	if img == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(img), "data:") {
		return img
	}
	return s.resolver.Resolve(img)
}

// Invalidate drops the memoised document for rawURI so the next Resolve refetches it.
func (s *MetadataService) Invalidate(rawURI string) {
	key := memoKey(rawURI)
	if key == "" {
		return
	}
	if err := s.memo.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		slog.Warn("[METADATA] failed to invalidate memo entry", "uri", key, "error", err)
	}
	s.group.Forget(key)
}

// Close releases the memo.
func (s *MetadataService) Close() error {
	return s.memo.Close()
}

func (s *MetadataService) lookup(key string) (Metadata, bool) {
	data, err := s.memo.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			slog.Warn("[METADATA] memo read failed", "uri", key, "error", err)
		}
		return Metadata{}, false
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		slog.Warn("[METADATA] dropping corrupt memo entry", "uri", key, "error", err)
		_ = s.memo.Delete(key)
		return Metadata{}, false
	}
	return md, true
}

func (s *MetadataService) store(key string, md Metadata) {
	data, err := json.Marshal(md)
	if err != nil {
		slog.Warn("[METADATA] failed to encode memo entry", "uri", key, "error", err)
		return
	}
	if err := s.memo.Set(key, data); err != nil {
		slog.Warn("[METADATA] memo write failed", "uri", key, "error", err)
	}
}

func memoKey(rawURI string) string {
	return ipfs.RepairScheme(ipfs.Normalize(rawURI))
}
