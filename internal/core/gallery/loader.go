package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Kittens/internal/core/batch"
	"Kittens/internal/core/metadata"
)

// persistTimeout bounds the final cache write, which runs even after the load
// context has expired.
const persistTimeout = 5 * time.Second

// Loader owns the gallery session for one contract address: its status guards,
// the item sink, and the producers that fill it.
type Loader struct {
	reader   TokenReader
	metadata metadata.Service
	store    CacheStore
	policy   Policy
	quick    Policy
	sink     *Sink
	lastErr  error
	address  string
	session  string
	status   LoadStatus
	cfg      Config
	wg       sync.WaitGroup
	mu       sync.Mutex
	hydrated bool
}

// NewLoader creates a Loader for address. store may be nil to disable caching.
func NewLoader(address string, reader TokenReader, meta metadata.Service, store CacheStore, cfg Config) (*Loader, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrInvalidAddress
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: token reader", ErrNilDependency)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: metadata service", ErrNilDependency)
	}
	policy, err := NewPolicy(cfg)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		address:  address,
		reader:   reader,
		metadata: meta,
		store:    store,
		policy:   policy,
		sink:     NewSink(),
		cfg:      cfg,
	}
	if cfg.QuickProbe {
		l.quick = NewQuickProbe(cfg)
	}
	return l, nil
}

// Address returns the contract address the loader serves.
func (l *Loader) Address() string { return l.address }

// Sink returns the loader's item sink.
func (l *Loader) Sink() *Sink { return l.sink }

// Items returns the current gallery snapshot.
func (l *Loader) Items() []Item { return l.sink.Snapshot() }

// Status returns Idle, Loading, or Loaded(address).
func (l *Loader) Status() LoadStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// LastError returns the error of the most recent load, or nil.
func (l *Loader) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// SessionID identifies the most recent load in logs.
func (l *Loader) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Hydrate publishes the cached gallery into the sink if the sink is still empty,
// then back-fills missing owners in the background. It runs once per loader and
// returns the number of items published.
func (l *Loader) Hydrate(ctx context.Context) int {
	l.mu.Lock()
	if l.hydrated {
		l.mu.Unlock()
		return 0
	}
	l.mu.Unlock()

	items := ReadCache(ctx, l.store, l.address)
	if items == nil {
		return 0
	}

	l.mu.Lock()
	l.hydrated = true
	l.mu.Unlock()

	if !l.sink.Publish(SourceCache, items...) {
		return 0
	}
	slog.Debug("[GALLERY] hydrated from cache", "address", l.address, "items", len(items))

	var missing []Item
	for _, it := range items {
		if it.Owner == "" {
			missing = append(missing, it)
		}
	}
	if len(missing) > 0 {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.backfillOwners(ctx, missing)
		}()
	}
	return len(items)
}

func (l *Loader) backfillOwners(ctx context.Context, items []Item) {
	filled := batch.MapWithConcurrency(ctx, items, l.cfg.Concurrency, func(ctx context.Context, it Item, _ int) bool {
		owner := readOwner(ctx, l.reader, it.ID, l.cfg.ChainTimeout)
		return owner != "" && l.sink.SetOwner(it.ID, owner)
	})

	n := 0
	for _, ok := range filled {
		if ok {
			n++
		}
	}
	slog.Debug("[GALLERY] owner back-fill complete", "address", l.address, "missing", len(items), "filled", n)
}

// Start runs Load in the background. Guard refusals are not logged as failures.
func (l *Loader) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if _, err := l.Load(ctx); err != nil &&
			!errors.Is(err, ErrAlreadyLoaded) && !errors.Is(err, ErrLoadInProgress) {
			slog.Error("[GALLERY] background load failed", "address", l.address, "error", err)
		}
	}()
}

// Wait blocks until background hydration and loads have finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// ResetGuard clears the loaded-for-address guard so the next Load runs again.
func (l *Loader) ResetGuard() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.State == StateLoading {
		return ErrLoadInProgress
	}
	l.status = LoadStatus{State: StateIdle}
	return nil
}

// Reload clears the loaded guard, drops memoised metadata for the current items
// and loads again.
func (l *Loader) Reload(ctx context.Context) ([]Item, error) {
	if err := l.ResetGuard(); err != nil {
		return nil, err
	}
	for _, it := range l.sink.Snapshot() {
		l.metadata.Invalidate(it.URI)
	}
	return l.Load(ctx)
}

// Load discovers tokens, resolves their metadata and merges the result into the
// sink and the cache.
//
// It refuses to start while another load runs or once the address is loaded.
// The whole load is bounded by LoadTimeout; expiry cancels every in-flight
// request. The quick probe, when enabled, races the full policy and its items are
// dropped once the full load has published. Per-token failures become fallback
// items; load-level failures are returned and kept as LastError, and leave the
// loader Idle.
func (l *Loader) Load(ctx context.Context) ([]Item, error) {
	l.mu.Lock()
	switch {
	case l.status.State == StateLoading:
		l.mu.Unlock()
		return nil, ErrLoadInProgress
	case l.status.State == StateLoaded && l.status.Address == l.address:
		l.mu.Unlock()
		return nil, ErrAlreadyLoaded
	}
	l.status = LoadStatus{State: StateLoading}
	l.session = uuid.NewString()
	l.lastErr = nil
	session := l.session
	l.mu.Unlock()

	start := time.Now()
	slog.Info("[GALLERY] load started",
		"address", l.address,
		"session", session,
		"policy", l.policy.Name(),
		"quick_probe", l.quick != nil,
	)

	loadCtx, cancel := context.WithTimeout(ctx, l.cfg.LoadTimeout)
	defer cancel()

	fetched, err := l.runProducers(loadCtx)
	if loadCtx.Err() != nil {
		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case errors.Is(loadCtx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("%w after %v", ErrLoadTimeout, l.cfg.LoadTimeout)
		}
	}

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	merged := MergeAndPersist(persistCtx, fetched, l.sink.Snapshot(), l.address, l.store)
	cancelPersist()
	if len(merged) > 0 {
		l.sink.Replace(merged)
	}

	l.mu.Lock()
	if err != nil {
		l.status = LoadStatus{State: StateIdle}
		l.lastErr = err
	} else {
		l.status = LoadStatus{State: StateLoaded, Address: l.address}
	}
	l.mu.Unlock()

	if err != nil {
		slog.Error("[GALLERY] load failed",
			"address", l.address,
			"session", session,
			"items", len(merged),
			"duration", time.Since(start),
			"error", err,
		)
		return merged, err
	}

	slog.Info("[GALLERY] load complete",
		"address", l.address,
		"session", session,
		"items", len(merged),
		"duration", time.Since(start),
	)
	return merged, nil
}

// runProducers runs the full policy and, concurrently, the quick probe. The quick
// probe is cancelled as soon as the full policy finishes.
func (l *Loader) runProducers(ctx context.Context) ([]Item, error) {
	var wg sync.WaitGroup
	quickCtx, cancelQuick := context.WithCancel(ctx)
	defer cancelQuick()

	if l.quick != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := l.produce(quickCtx, l.quick, SourceQuickProbe)
			if err != nil && quickCtx.Err() == nil {
				slog.Debug("[GALLERY] quick probe failed", "address", l.address, "error", err)
			}
			slog.Debug("[GALLERY] quick probe finished", "address", l.address, "items", len(items))
		}()
	}

	fetched, err := l.produce(ctx, l.policy, SourceFull)
	cancelQuick()
	wg.Wait()
	return fetched, err
}

// produce discovers targets with policy and resolves each one, publishing items
// to the sink as they complete.
func (l *Loader) produce(ctx context.Context, policy Policy, src Source) (items []Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrLoadPanic, policy.Name(), r)
		}
	}()

	targets, err := policy.Discover(ctx, l.reader)
	if err != nil && len(targets) == 0 {
		return nil, fmt.Errorf("%s discovery: %w", policy.Name(), err)
	}

	type resolved struct {
		item Item
		ok   bool
	}
	results := batch.MapWithConcurrency(ctx, targets, l.cfg.Concurrency, func(ctx context.Context, t Target, _ int) resolved {
		item, ok := l.resolveItem(ctx, t)
		if ok {
			l.sink.Publish(src, item)
		}
		return resolved{item: item, ok: ok}
	})

	for _, r := range results {
		if r.ok {
			items = append(items, r.item)
		}
	}
	return items, err
}

// resolveItem fetches metadata for t. A failed fetch yields a fallback item; a
// cancelled load yields nothing.
func (l *Loader) resolveItem(ctx context.Context, t Target) (item Item, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[GALLERY] panic resolving token", "address", l.address, "id", t.ID, "panic", r)
			item, ok = FallbackItem(t.ID, t.URI, t.Owner), true
		}
	}()

	if ctx.Err() != nil {
		return Item{}, false
	}

	itemCtx, cancel := context.WithTimeout(ctx, l.cfg.ItemTimeout)
	defer cancel()

	md, err := l.metadata.Resolve(itemCtx, t.URI)
	if err != nil {
		if ctx.Err() != nil {
			return Item{}, false
		}
		slog.Warn("[GALLERY] metadata unavailable, using fallback",
			"address", l.address,
			"id", t.ID,
			"uri", t.URI,
			"error", err,
		)
		return FallbackItem(t.ID, t.URI, t.Owner), true
	}

	return newItem(t.ID, t.URI, t.Owner, md, l.metadata.ResolveImage(md)), true
}
