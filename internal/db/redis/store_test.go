package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kittens/internal/core/gallery"
)

func setupRedis(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := Open(context.Background(), url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := setupRedis(t)
	ctx := context.Background()
	key := gallery.CacheKey("0xtest-" + uuid.NewString())
	t.Cleanup(func() { _ = s.Delete(ctx, key) })

	_, err := s.Get(ctx, key)
	assert.ErrorIs(t, err, gallery.ErrCacheMiss)

	require.NoError(t, s.Set(ctx, key, []byte(`{"items":[]}`)))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, string(got))

	ttl, err := s.client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, gallery.ErrCacheMiss)
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), "not a url", 0)
	assert.Error(t, err)

	_, err = Open(context.Background(), "", 0)
	assert.Error(t, err)
}
