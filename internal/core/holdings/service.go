// Package holdings lists the ERC721 tokens an address owns across configured contracts.
package holdings

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"Kittens/internal/core/batch"
	"Kittens/internal/core/metadata"
)

var imageURLPattern = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|webp|bmp|svg)(\?.*)?$`)

// ReaderFactory returns a ContractReader bound to a contract address.
type ReaderFactory func(address string) (ContractReader, error)

// Service scans contracts for an owner's tokens.
type Service interface {
	Holdings(ctx context.Context, owner string) (*Holdings, error)
}

type holdingsService struct {
	newReader ReaderFactory
	metadata  metadata.Service
	cfg       Config
}

// NewService creates a holdings Service.
func NewService(cfg Config, newReader ReaderFactory, meta metadata.Service) (Service, error) {
	if newReader == nil {
		return nil, fmt.Errorf("%w: reader factory", ErrNilDependency)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: metadata service", ErrNilDependency)
	}
	def := DefaultConfig()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ChainTimeout <= 0 {
		cfg.ChainTimeout = def.ChainTimeout
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = def.ItemTimeout
	}
	return &holdingsService{cfg: cfg, newReader: newReader, metadata: meta}, nil
}

// Holdings scans every configured contract. A contract that cannot be scanned is
// reported in Errors and does not fail the whole request; per-token read errors
// are skipped.
func (s *holdingsService) Holdings(ctx context.Context, owner string) (*Holdings, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	if len(s.cfg.Contracts) == 0 {
		return nil, ErrNoContracts
	}

	out := &Holdings{
		Owner:        owner,
		Labels:       make(map[string]string),
		Errors:       make(map[string]string),
		Collectibles: []Collectible{},
	}

	for _, c := range s.cfg.Contracts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reader, err := s.newReader(c.Address)
		if err != nil {
			out.Errors[c.Address] = err.Error()
			continue
		}
		if label := s.label(ctx, c, reader); label != "" {
			out.Labels[c.Address] = label
		}

		items, err := s.scanContract(ctx, c, reader, owner)
		if err != nil {
			slog.Warn("[HOLDINGS] contract scan failed",
				"contract", c.Name,
				"address", c.Address,
				"owner", owner,
				"error", err,
			)
			out.Errors[c.Address] = err.Error()
		}
		out.Collectibles = append(out.Collectibles, items...)
	}

	sort.SliceStable(out.Collectibles, func(i, j int) bool {
		a, b := out.Collectibles[i], out.Collectibles[j]
		if a.ContractAddress != b.ContractAddress {
			return a.ContractAddress < b.ContractAddress
		}
		return a.ID < b.ID
	})
	return out, nil
}

// label builds "Contract • Name (SYM)" from whatever the contract exposes.
func (s *holdingsService) label(ctx context.Context, c Contract, reader ContractReader) string {
	parts := []string{c.Name}
	if name, err := chainCall(ctx, s.cfg.ChainTimeout, reader.Name); err == nil && name != "" {
		parts = append(parts, "• "+name)
	}
	if sym, err := chainCall(ctx, s.cfg.ChainTimeout, reader.Symbol); err == nil && sym != "" {
		parts = append(parts, "("+sym+")")
	}
	return strings.Join(parts, " ")
}

func (s *holdingsService) scanContract(ctx context.Context, c Contract, reader ContractReader, owner string) ([]Collectible, error) {
	enumerable, err := chainCall(ctx, s.cfg.ChainTimeout, reader.SupportsEnumerable)
	if err != nil {
		slog.Debug("[HOLDINGS] supportsInterface failed, using scan plan", "address", c.Address, "error", err)
	}
	if enumerable {
		return s.scanEnumerable(ctx, c, reader, owner)
	}
	return s.scanPlan(ctx, c, reader, owner)
}

// scanEnumerable walks balanceOf(owner) and tokenOfOwnerByIndex.
func (s *holdingsService) scanEnumerable(ctx context.Context, c Contract, reader ContractReader, owner string) ([]Collectible, error) {
	balance, err := chainCall(ctx, s.cfg.ChainTimeout, func(ctx context.Context) (uint64, error) { return reader.BalanceOf(ctx, owner) })
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	if s.cfg.MaxScan > 0 && balance > uint64(s.cfg.MaxScan) {
		balance = uint64(s.cfg.MaxScan)
	}

	return s.collect(ctx, balance, func(ctx context.Context, i uint64) (Collectible, bool) {
		id, err := chainCall(ctx, s.cfg.ChainTimeout, func(ctx context.Context) (uint64, error) {
			return reader.TokenOfOwnerByIndex(ctx, owner, i)
		})
		if err != nil {
			return Collectible{}, false
		}
		return s.collectible(ctx, c, reader, id, owner)
	}), nil
}

// scanPlan walks totalSupply()/tokenByIndex, or totalMinted() with IDs 1..n, and
// keeps tokens whose ownerOf matches owner.
func (s *holdingsService) scanPlan(ctx context.Context, c Contract, reader ContractReader, owner string) ([]Collectible, error) {
	byIndex := true
	upper, err := chainCall(ctx, s.cfg.ChainTimeout, reader.TotalSupply)
	if err != nil {
		byIndex = false
		upper, err = chainCall(ctx, s.cfg.ChainTimeout, reader.TotalMinted)
		if err != nil {
			slog.Debug("[HOLDINGS] contract exposes no supply counter", "address", c.Address, "error", err)
			return nil, nil
		}
	}
	if s.cfg.MaxScan > 0 && upper > uint64(s.cfg.MaxScan) {
		upper = uint64(s.cfg.MaxScan)
	}

	return s.collect(ctx, upper, func(ctx context.Context, t uint64) (Collectible, bool) {
		id := t + 1
		if byIndex {
			byIndexID, err := chainCall(ctx, s.cfg.ChainTimeout, func(ctx context.Context) (uint64, error) { return reader.TokenByIndex(ctx, t) })
			if err != nil {
				return Collectible{}, false
			}
			id = byIndexID
		}
		tokenOwner, err := chainCall(ctx, s.cfg.ChainTimeout, func(ctx context.Context) (string, error) { return reader.OwnerOf(ctx, id) })
		if err != nil || !strings.EqualFold(tokenOwner, owner) {
			return Collectible{}, false
		}
		return s.collectible(ctx, c, reader, id, tokenOwner)
	}), nil
}

// collect runs fn for 0..n-1 through the worker pool and keeps the hits.
func (s *holdingsService) collect(ctx context.Context, n uint64, fn func(ctx context.Context, i uint64) (Collectible, bool)) []Collectible {
	indices := make([]uint64, n)
	for i := range indices {
		indices[i] = uint64(i)
	}

	type hit struct {
		c  Collectible
		ok bool
	}
	results := batch.MapWithConcurrency(ctx, indices, s.cfg.Concurrency, func(ctx context.Context, i uint64, _ int) hit {
		c, ok := fn(ctx, i)
		return hit{c: c, ok: ok}
	})

	var out []Collectible
	for _, r := range results {
		if r.ok {
			out = append(out, r.c)
		}
	}
	return out
}

// collectible reads tokenURI and resolves metadata. A metadata failure yields a
// minimal collectible whose image is the token URI when it looks like an image.
func (s *holdingsService) collectible(ctx context.Context, c Contract, reader ContractReader, id uint64, owner string) (Collectible, bool) {
	raw, err := chainCall(ctx, s.cfg.ChainTimeout, func(ctx context.Context) (string, error) { return reader.TokenURI(ctx, id) })
	if err != nil {
		return Collectible{}, false
	}

	out := Collectible{
		ID:              id,
		URI:             raw,
		Owner:           owner,
		ContractName:    c.Name,
		ContractAddress: c.Address,
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	md, err := s.metadata.Resolve(itemCtx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return Collectible{}, false
		}
		slog.Debug("[HOLDINGS] metadata unavailable", "address", c.Address, "id", id, "error", err)
		out.Name = "Token #" + strconv.FormatUint(id, 10)
		if resolved := s.metadata.ResolveURL(raw); imageURLPattern.MatchString(resolved) {
			out.Image = resolved
		}
		return out, true
	}

	out.Name = md.Name
	out.Description = md.Description
	out.Image = s.metadata.ResolveImage(md)
	out.Extra = md.Extra
	return out, true
}

// chainCall runs a contract read under a child context bounded by d.
func chainCall[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(callCtx)
}
