package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// CatalogDivisor separates catalog IDs from per-instance IDs: instance IDs are
// catalogID*CatalogDivisor + n.
const CatalogDivisor = 1_000_000

// CatalogKey maps a token ID to its catalog ID.
func CatalogKey(id uint64) uint64 {
	if id >= CatalogDivisor {
		return id / CatalogDivisor
	}
	return id
}

// MergeAndPersist merges freshly fetched items into the previous list and writes
// the result to store under address.
//
// Fresh items win, except that a previous non-empty owner is carried onto a fresh
// item whose owner is empty. Previous items missing from the fresh set are kept.
// The result holds one item per catalog key, preferring the smallest raw ID, and
// is sorted by ID. Merging a list with itself returns it unchanged.
// Persist failures are logged; the merged list is returned either way.
func MergeAndPersist(ctx context.Context, fetched, previous []Item, address string, store CacheStore) []Item {
	merged := mergeItems(fetched, previous)

	if address != "" && store != nil {
		if err := WriteCache(ctx, store, address, merged); err != nil {
			slog.Warn("[GALLERY] failed to persist gallery cache",
				"address", address,
				"items", len(merged),
				"error", err,
			)
		}
	}
	return merged
}

func mergeItems(fetched, previous []Item) []Item {
	prevByID := make(map[uint64]Item, len(previous))
	for _, p := range previous {
		if _, ok := prevByID[p.ID]; !ok {
			prevByID[p.ID] = p
		}
	}

	merged := make([]Item, 0, len(fetched)+len(previous))
	fresh := make(map[uint64]struct{}, len(fetched))
	for _, it := range fetched {
		if prev, ok := prevByID[it.ID]; ok && it.Owner == "" && prev.Owner != "" {
			it.Owner = prev.Owner
		}
		fresh[it.ID] = struct{}{}
		merged = append(merged, it)
	}
	for _, p := range previous {
		if _, ok := fresh[p.ID]; ok {
			continue
		}
		fresh[p.ID] = struct{}{}
		merged = append(merged, p)
	}

	return dedupeByCatalog(merged)
}

// dedupeByCatalog keeps the smallest-ID item per catalog key. The result is sorted by ID.
func dedupeByCatalog(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	out := make([]Item, 0, len(sorted))
	seen := make(map[uint64]struct{}, len(sorted))
	for _, it := range sorted {
		key := CatalogKey(it.ID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// PruneForPersist drops items with neither an image nor a name.
func PruneForPersist(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.HasDisplayData() {
			out = append(out, it)
		}
	}
	return out
}

// WriteCache prunes items and stores them with the current time under address.
func WriteCache(ctx context.Context, store CacheStore, address string, items []Item) error {
	if address == "" {
		return ErrInvalidAddress
	}
	entry := CacheEntry{
		Timestamp: time.Now().UnixMilli(),
		Items:     PruneForPersist(items),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := store.Set(ctx, CacheKey(address), data); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// ReadCache returns the cached items for address sorted by ID, or nil when there is
// no entry, the entry is malformed, or no item has display data. The entry's
// timestamp is not checked.
func ReadCache(ctx context.Context, store CacheStore, address string) []Item {
	if store == nil || address == "" {
		return nil
	}
	data, err := store.Get(ctx, CacheKey(address))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("[GALLERY] cache read failed", "address", address, "error", err)
		}
		return nil
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("[GALLERY] ignoring malformed cache entry", "address", address, "error", err)
		return nil
	}

	items := PruneForPersist(entry.Items)
	if len(items) == 0 {
		return nil
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}
