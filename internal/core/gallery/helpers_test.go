package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Kittens/internal/core/metadata"
)

// mapStore is an in-memory CacheStore.
type mapStore struct {
	data   map[string][]byte
	setErr error
	sets   int
	mu     sync.Mutex
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (s *mapStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (s *mapStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	s.data[key] = value
	return nil
}

func (s *mapStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// fakeReader serves canned contract reads.
type fakeReader struct {
	uris       map[uint64]string
	owners     map[uint64]string
	byIndex    map[uint64]uint64
	baseErr    error
	supplyErr  error
	base       string
	supply     uint64
	delay      time.Duration
	ownerCalls int32
	uriCalls   int32
}

func (r *fakeReader) wait(ctx context.Context) error {
	if r.delay == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(r.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeReader) BaseURI(ctx context.Context) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	if r.baseErr != nil {
		return "", r.baseErr
	}
	return r.base, nil
}

func (r *fakeReader) TokenURI(ctx context.Context, id uint64) (string, error) {
	atomic.AddInt32(&r.uriCalls, 1)
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	uri, ok := r.uris[id]
	if !ok {
		return "", fmt.Errorf("execution reverted: nonexistent token %d", id)
	}
	return uri, nil
}

func (r *fakeReader) OwnerOf(ctx context.Context, id uint64) (string, error) {
	atomic.AddInt32(&r.ownerCalls, 1)
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	owner, ok := r.owners[id]
	if !ok {
		return "", errors.New("execution reverted: invalid token ID")
	}
	return owner, nil
}

func (r *fakeReader) TotalSupply(ctx context.Context) (uint64, error) {
	if r.supplyErr != nil {
		return 0, r.supplyErr
	}
	return r.supply, nil
}

func (r *fakeReader) TokenByIndex(ctx context.Context, index uint64) (uint64, error) {
	id, ok := r.byIndex[index]
	if !ok {
		return 0, errors.New("execution reverted: index out of bounds")
	}
	return id, nil
}

// fakeMetadata resolves URIs from a map; unknown URIs fail.
type fakeMetadata struct {
	docs        map[string]metadata.Metadata
	invalidated []string
	delay       time.Duration
	calls       int32
	mu          sync.Mutex
}

func (m *fakeMetadata) Resolve(ctx context.Context, rawURI string) (metadata.Metadata, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return metadata.Metadata{}, fmt.Errorf("%w: %w", metadata.ErrFetchExhausted, ctx.Err())
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.docs[rawURI]
	if !ok {
		return metadata.Metadata{}, metadata.ErrFetchExhausted
	}
	return md, nil
}

func (m *fakeMetadata) ResolveURL(rawURI string) string { return rawURI }

func (m *fakeMetadata) ResolveImage(md metadata.Metadata) string { return md.Image }

func (m *fakeMetadata) Invalidate(rawURI string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, rawURI)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.QuickProbe = false
	cfg.LoadTimeout = 2 * time.Second
	cfg.ItemTimeout = time.Second
	cfg.ChainTimeout = time.Second
	cfg.CatalogSize = 3
	return cfg
}

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
