package gallery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"Kittens/internal/core/metadata"
)

// ReaderFactory returns a TokenReader bound to a contract address.
type ReaderFactory func(address string) (TokenReader, error)

// Manager keeps one Loader per contract address and runs their background work
// under a context that lives as long as the manager.
type Manager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	newReader ReaderFactory
	metadata  metadata.Service
	store     CacheStore
	loaders   map[string]*Loader
	cfg       Config
	mu        sync.Mutex
}

// NewManager creates a Manager. store may be nil to disable caching.
func NewManager(cfg Config, newReader ReaderFactory, meta metadata.Service, store CacheStore) (*Manager, error) {
	if newReader == nil {
		return nil, fmt.Errorf("%w: reader factory", ErrNilDependency)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: metadata service", ErrNilDependency)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gallery config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		newReader: newReader,
		metadata:  meta,
		store:     store,
		loaders:   make(map[string]*Loader),
	}, nil
}

// Loader returns the loader for address, creating it on first use.
func (m *Manager) Loader(address string) (*Loader, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return nil, ErrInvalidAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loaders[key]; ok {
		return l, nil
	}
	reader, err := m.newReader(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create token reader for %s: %w", address, err)
	}
	l, err := NewLoader(address, reader, m.metadata, m.store, m.cfg)
	if err != nil {
		return nil, err
	}
	m.loaders[key] = l
	return l, nil
}

// Open hydrates the gallery for address from cache and starts a background load
// unless one is running or already finished.
func (m *Manager) Open(address string) (*Loader, error) {
	l, err := m.Loader(address)
	if err != nil {
		return nil, err
	}
	l.Hydrate(m.ctx)
	if st := l.Status(); st.State == StateIdle {
		l.Start(m.ctx)
	}
	return l, nil
}

// Reload clears the loaded guard for address and starts a fresh background load.
func (m *Manager) Reload(address string) (*Loader, error) {
	l, err := m.Loader(address)
	if err != nil {
		return nil, err
	}
	if err := l.ResetGuard(); err != nil {
		return l, err
	}
	for _, it := range l.Items() {
		m.metadata.Invalidate(it.URI)
	}
	l.Start(m.ctx)
	return l, nil
}

// Close cancels every background load and waits for them to stop.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	loaders := make([]*Loader, 0, len(m.loaders))
	for _, l := range m.loaders {
		loaders = append(loaders, l)
	}
	m.mu.Unlock()
	for _, l := range loaders {
		l.Wait()
	}
}
