package metadata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher is a Fetcher that counts calls and can block until released.
type mockFetcher struct {
	release chan struct{}
	result  Metadata
	err     error
	calls   int32
}

func (m *mockFetcher) FetchMetadata(ctx context.Context, rawURI string, timeout time.Duration) (Metadata, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}
	return m.result, m.err
}

func newTestService(t *testing.T, f Fetcher) (*MetadataService, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	svc, err := NewService(DefaultConfig(), f, metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, metrics
}

func TestNewService_NilFetcher(t *testing.T) {
	_, err := NewService(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestService_Resolve_Memoises(t *testing.T) {
	f := &mockFetcher{result: Metadata{Name: "Kitten #3"}}
	svc, metrics := newTestService(t, f)
	ctx := context.Background()

	md, err := svc.Resolve(ctx, "ipfs://QmAbc123/3.json")
	require.NoError(t, err)
	assert.Equal(t, "Kitten #3", md.Name)

	// Wrapped and single-slash forms normalize to the same key.
	md, err = svc.Resolve(ctx, `"ipfs:/QmAbc123/3.json"`)
	require.NoError(t, err)
	assert.Equal(t, "Kitten #3", md.Name)

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
}

func TestService_Resolve_SharesInFlightFetch(t *testing.T) {
	f := &mockFetcher{result: Metadata{Name: "Shared"}, release: make(chan struct{})}
	svc, _ := newTestService(t, f)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Metadata, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Resolve(context.Background(), "ipfs://QmShared/1.json")
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, 5*time.Millisecond)
	// Give the remaining callers time to join the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Shared", results[i].Name)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
}

func TestService_Resolve_FailuresAreNotMemoised(t *testing.T) {
	f := &mockFetcher{err: ErrFetchExhausted}
	svc, _ := newTestService(t, f)

	_, err := svc.Resolve(context.Background(), "ipfs://QmFail/1.json")
	assert.ErrorIs(t, err, ErrFetchExhausted)
	_, err = svc.Resolve(context.Background(), "ipfs://QmFail/1.json")
	assert.ErrorIs(t, err, ErrFetchExhausted)

	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestService_Invalidate(t *testing.T) {
	f := &mockFetcher{result: Metadata{Name: "Old"}}
	svc, _ := newTestService(t, f)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "ipfs://QmAbc123/9.json")
	require.NoError(t, err)

	svc.Invalidate("ipfs://QmAbc123/9.json")
	f.result = Metadata{Name: "New"}

	md, err := svc.Resolve(ctx, "ipfs://QmAbc123/9.json")
	require.NoError(t, err)
	assert.Equal(t, "New", md.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestService_Resolve_CallerCancellation(t *testing.T) {
	f := &mockFetcher{result: Metadata{Name: "Slow"}, release: make(chan struct{})}
	defer close(f.release)
	svc, _ := newTestService(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Resolve(ctx, "ipfs://QmSlow/1.json")
	assert.ErrorIs(t, err, ErrFetchExhausted)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestService_Resolve_SharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	f := &mockFetcher{result: Metadata{Name: "Kitten #4"}, release: make(chan struct{})}
	svc, _ := newTestService(t, f)
	const uri = "ipfs://QmShared/4.json"

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(firstCtx, uri)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		md  Metadata
		err error
	}
	second := make(chan result, 1)
	go func() {
		md, err := svc.Resolve(context.Background(), uri)
		second <- result{md, err}
	}()
	// Let the second caller join the in-flight fetch before the first one leaves.
	time.Sleep(50 * time.Millisecond)
	cancelFirst()

	assert.ErrorIs(t, <-firstErr, context.Canceled)

	// The second caller starts its own fetch rather than failing with the first caller's cancellation.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 2 }, time.Second, 5*time.Millisecond)
	close(f.release)

	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, "Kitten #4", res.md.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestService_Resolve_InlineBypassesMemo(t *testing.T) {
	f := &mockFetcher{result: Metadata{Name: "Inline"}}
	svc, metrics := newTestService(t, f)

	for i := 0; i < 2; i++ {
		_, err := svc.Resolve(context.Background(), `{"name":"Inline"}`)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.cacheHits))
}

func TestService_Resolve_EmptyURI(t *testing.T) {
	svc, _ := newTestService(t, &mockFetcher{})
	_, err := svc.Resolve(context.Background(), "  ''  ")
	assert.ErrorIs(t, err, ErrEmptyURI)
}

func TestService_ResolveImage(t *testing.T) {
	svc, _ := newTestService(t, &mockFetcher{})

	tests := []struct {
		name  string
		image string
		want  string
	}{
		{"empty", "", ""},
		{"ipfs", "ipfs://QmImg/1.png", "https://ipfs.io/ipfs/QmImg/1.png"},
		{"data uri untouched", "data:image/svg+xml;base64,PHN2Zz4=", "data:image/svg+xml;base64,PHN2Zz4="},
		{"http", "https://img.example//a//b.png", "https://img.example/a/b.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.ResolveImage(Metadata{Image: tt.image}))
		})
	}
}
