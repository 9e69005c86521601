package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kittens/internal/core/gallery"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "gallery:0xabc")
	assert.ErrorIs(t, err, gallery.ErrCacheMiss)

	require.NoError(t, s.Set(ctx, "gallery:0xabc", []byte("first")))
	require.NoError(t, s.Set(ctx, "gallery:0xabc", []byte("second")))

	got, err := s.Get(ctx, "gallery:0xabc")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	require.NoError(t, s.Delete(ctx, "gallery:0xabc"))
	require.NoError(t, s.Delete(ctx, "gallery:0xabc"))
	_, err = s.Get(ctx, "gallery:0xabc")
	assert.ErrorIs(t, err, gallery.ErrCacheMiss)
}

func TestStore_ImplementsCacheStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []gallery.Item{{ID: 1_000_003, Name: "Kitten", URI: "ipfs://QmX/3"}}
	require.NoError(t, gallery.WriteCache(ctx, s, "0xABC", items))

	got := gallery.ReadCache(ctx, s, "0xabc")
	require.Len(t, got, 1)
	assert.Equal(t, "Kitten", got[0].Name)
}
