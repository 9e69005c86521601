package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"Kittens/internal/core/batch"
)

// TokenReader is the subset of ERC721 reads the gallery needs.
type TokenReader interface {
	BaseURI(ctx context.Context) (string, error)
	TokenURI(ctx context.Context, id uint64) (string, error)
	OwnerOf(ctx context.Context, id uint64) (string, error)
	TotalSupply(ctx context.Context) (uint64, error)
	TokenByIndex(ctx context.Context, index uint64) (uint64, error)
}

// Target is a discovered token: its ID, metadata URI and, when known, its owner.
type Target struct {
	URI   string
	Owner string
	ID    uint64
}

// Policy discovers which tokens a gallery shows.
type Policy interface {
	Name() string
	Discover(ctx context.Context, reader TokenReader) ([]Target, error)
}

// NewPolicy returns the policy named by cfg.Discovery.
func NewPolicy(cfg Config) (Policy, error) {
	switch cfg.Discovery {
	case DiscoveryCatalog:
		return CatalogPolicy{Size: cfg.CatalogSize, ChainTimeout: cfg.ChainTimeout}, nil
	case DiscoveryProbe:
		return ProbePolicy{
			Bases:        DefaultProbeBases,
			Width:        cfg.ProbeWidth,
			Concurrency:  cfg.Concurrency,
			ChainTimeout: cfg.ChainTimeout,
		}, nil
	case DiscoverySupply:
		return SupplyPolicy{MaxScan: cfg.MaxScan, Concurrency: cfg.Concurrency, ChainTimeout: cfg.ChainTimeout}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDiscovery, cfg.Discovery)
	}
}

// withChainTimeout runs fn under a child context bounded by d.
func withChainTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(callCtx)
}

// CatalogPolicy loads catalog IDs 1..Size from the contract's base URI.
type CatalogPolicy struct {
	Size         int
	ChainTimeout time.Duration
}

func (CatalogPolicy) Name() string { return DiscoveryCatalog }

// Discover reads baseURI() once, falling back to tokenURI(1) cut after its last
// slash, and returns {base}{id}.json for every catalog ID.
func (p CatalogPolicy) Discover(ctx context.Context, reader TokenReader) ([]Target, error) {
	base, err := withChainTimeout(ctx, p.ChainTimeout, reader.BaseURI)
	if err != nil || strings.TrimSpace(base) == "" {
		slog.Debug("[GALLERY] baseURI unavailable, deriving from tokenURI(1)", "error", err)
		base = p.baseFromTokenURI(ctx, reader)
	}
	if base == "" {
		return nil, ErrNoBaseURI
	}

	targets := make([]Target, 0, p.Size)
	for id := 1; id <= p.Size; id++ {
		targets = append(targets, Target{
			ID:  uint64(id),
			URI: base + strconv.Itoa(id) + ".json",
		})
	}
	return targets, nil
}

func (p CatalogPolicy) baseFromTokenURI(ctx context.Context, reader TokenReader) string {
	uri, err := withChainTimeout(ctx, p.ChainTimeout, func(ctx context.Context) (string, error) {
		return reader.TokenURI(ctx, 1)
	})
	if err != nil {
		slog.Debug("[GALLERY] tokenURI(1) unavailable", "error", err)
		return ""
	}
	if idx := strings.LastIndex(uri, "/"); idx > 0 {
		return uri[:idx+1]
	}
	return uri
}

// DefaultProbeBases are the ID ranges the probe policy scans.
var DefaultProbeBases = []uint64{0, 1, 999_999, 1_000_000, 1_000_001, 1_000_010}

// QuickProbeBases and QuickProbeWidth describe the small probe run next to a full load.
var QuickProbeBases = []uint64{1, 1_000_000}

const QuickProbeWidth = 20

// ProbePolicy reads tokenURI for Width consecutive IDs from every base, skipping
// IDs whose read fails. Overlapping ranges are probed once.
type ProbePolicy struct {
	Bases        []uint64
	Width        int
	Concurrency  int
	ChainTimeout time.Duration
}

// NewQuickProbe returns the probe run alongside a full load.
func NewQuickProbe(cfg Config) ProbePolicy {
	return ProbePolicy{
		Bases:        QuickProbeBases,
		Width:        QuickProbeWidth,
		Concurrency:  cfg.Concurrency,
		ChainTimeout: cfg.ChainTimeout,
	}
}

func (ProbePolicy) Name() string { return DiscoveryProbe }

func (p ProbePolicy) Discover(ctx context.Context, reader TokenReader) ([]Target, error) {
	var ids []uint64
	seen := make(map[uint64]struct{})
	for _, base := range p.Bases {
		for i := 0; i < p.Width; i++ {
			id := base + uint64(i)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	type probed struct {
		target Target
		ok     bool
	}
	results := batch.MapWithConcurrency(ctx, ids, p.Concurrency, func(ctx context.Context, id uint64, _ int) probed {
		uri, err := withChainTimeout(ctx, p.ChainTimeout, func(ctx context.Context) (string, error) {
			return reader.TokenURI(ctx, id)
		})
		if err != nil || uri == "" {
			return probed{}
		}
		return probed{target: Target{ID: id, URI: uri, Owner: readOwner(ctx, reader, id, p.ChainTimeout)}, ok: true}
	})

	var targets []Target
	for _, r := range results {
		if r.ok {
			targets = append(targets, r.target)
		}
	}
	return targets, ctx.Err()
}

// SupplyPolicy enumerates tokens through totalSupply() and tokenByIndex(i), up to MaxScan.
type SupplyPolicy struct {
	MaxScan      int
	Concurrency  int
	ChainTimeout time.Duration
}

func (SupplyPolicy) Name() string { return DiscoverySupply }

func (p SupplyPolicy) Discover(ctx context.Context, reader TokenReader) ([]Target, error) {
	total, err := withChainTimeout(ctx, p.ChainTimeout, reader.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSupply, err)
	}
	if p.MaxScan > 0 && total > uint64(p.MaxScan) {
		slog.Info("[GALLERY] capping supply scan", "total_supply", total, "max_scan", p.MaxScan)
		total = uint64(p.MaxScan)
	}

	indices := make([]uint64, total)
	for i := range indices {
		indices[i] = uint64(i)
	}

	type scanned struct {
		target Target
		ok     bool
	}
	results := batch.MapWithConcurrency(ctx, indices, p.Concurrency, func(ctx context.Context, index uint64, _ int) scanned {
		id, err := withChainTimeout(ctx, p.ChainTimeout, func(ctx context.Context) (uint64, error) {
			return reader.TokenByIndex(ctx, index)
		})
		if err != nil {
			slog.Debug("[GALLERY] tokenByIndex failed", "index", index, "error", err)
			return scanned{}
		}
		uri, err := withChainTimeout(ctx, p.ChainTimeout, func(ctx context.Context) (string, error) {
			return reader.TokenURI(ctx, id)
		})
		if err != nil {
			slog.Debug("[GALLERY] tokenURI failed", "id", id, "error", err)
			return scanned{}
		}
		return scanned{target: Target{ID: id, URI: uri, Owner: readOwner(ctx, reader, id, p.ChainTimeout)}, ok: true}
	})

	var targets []Target
	for _, r := range results {
		if r.ok {
			targets = append(targets, r.target)
		}
	}
	return targets, ctx.Err()
}

func readOwner(ctx context.Context, reader TokenReader, id uint64, timeout time.Duration) string {
	owner, err := withChainTimeout(ctx, timeout, func(ctx context.Context) (string, error) {
		return reader.OwnerOf(ctx, id)
	})
	if err != nil {
		return ""
	}
	return owner
}
