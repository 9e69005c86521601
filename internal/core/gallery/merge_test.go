package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []Item) []uint64 {
	out := make([]uint64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestCatalogKey(t *testing.T) {
	tests := []struct {
		id   uint64
		want uint64
	}{
		{0, 0},
		{5, 5},
		{999_999, 999_999},
		{1_000_000, 1},
		{1_000_005, 1},
		{5_000_001, 5},
		{12_000_010, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CatalogKey(tt.id), "CatalogKey(%d)", tt.id)
	}
}

func TestMergeAndPersist_CatalogDedupePrefersSmallerID(t *testing.T) {
	fetched := []Item{
		{ID: 5_000_005, Name: "Instance"},
		{ID: 5, Name: "Catalog"},
	}

	merged := MergeAndPersist(context.Background(), fetched, nil, "", nil)
	require.Len(t, merged, 1)
	assert.Equal(t, uint64(5), merged[0].ID)
	assert.Equal(t, "Catalog", merged[0].Name)
}

func TestMergeAndPersist_CompositeIDs(t *testing.T) {
	// 1_000_005 has catalog key 1 under the divisor, so it collapses onto 1.
	merged := MergeAndPersist(context.Background(), []Item{{ID: 1_000_005, Name: "b"}, {ID: 1, Name: "a"}, {ID: 5, Name: "c"}}, nil, "", nil)
	assert.Equal(t, []uint64{1, 5}, ids(merged))
	assert.Equal(t, "a", merged[0].Name)
}

func TestMergeAndPersist_SortsSurvivorsByID(t *testing.T) {
	// 2_000_000 has catalog key 2 but still sorts after 5.
	fetched := []Item{{ID: 2_000_000, Name: "b"}, {ID: 5, Name: "a"}, {ID: 3_000_007, Name: "c"}}
	previous := []Item{{ID: 4, Name: "d"}}

	merged := MergeAndPersist(context.Background(), fetched, previous, "", nil)
	assert.Equal(t, []uint64{4, 5, 2_000_000, 3_000_007}, ids(merged))

	again := MergeAndPersist(context.Background(), merged, merged, "", nil)
	assert.Equal(t, ids(merged), ids(again))
}

func TestMergeAndPersist_CarriesPreviousOwner(t *testing.T) {
	previous := []Item{{ID: 1, Name: "old", Owner: "0xabc"}, {ID: 2, Name: "old2", Owner: "0xdef"}}
	fetched := []Item{{ID: 1, Name: "new"}, {ID: 2, Name: "new2", Owner: "0x123"}}

	merged := MergeAndPersist(context.Background(), fetched, previous, "", nil)
	require.Len(t, merged, 2)
	assert.Equal(t, "new", merged[0].Name)
	assert.Equal(t, "0xabc", merged[0].Owner)
	assert.Equal(t, "0x123", merged[1].Owner, "a fresh owner wins over the previous one")
}

func TestMergeAndPersist_KeepsPreviousItemsMissingFromFetch(t *testing.T) {
	previous := []Item{{ID: 3, Name: "three"}, {ID: 9, Name: "nine"}}
	fetched := []Item{{ID: 1, Name: "one"}, {ID: 3, Name: "three-new"}}

	merged := MergeAndPersist(context.Background(), fetched, previous, "", nil)
	assert.Equal(t, []uint64{1, 3, 9}, ids(merged))
	assert.Equal(t, "three-new", merged[1].Name)
}

func TestMergeAndPersist_Idempotent(t *testing.T) {
	list := []Item{
		{ID: 12, Name: "twelve"},
		{ID: 2_000_001, Name: "instance of two"},
		{ID: 1, Name: "one", Owner: "0xabc"},
		{ID: 2, Name: "two"},
	}

	once := MergeAndPersist(context.Background(), list, list, "", nil)
	twice := MergeAndPersist(context.Background(), once, once, "", nil)
	assert.Equal(t, once, twice)
	assert.Equal(t, []uint64{1, 2, 12}, ids(once))
}

func TestMergeAndPersist_WritesPrunedCache(t *testing.T) {
	store := newMapStore()
	fetched := []Item{{ID: 1, Name: "named"}, {ID: 2}, {ID: 3, Image: "https://img.example/3.png"}}

	merged := MergeAndPersist(context.Background(), fetched, nil, testAddress, store)
	assert.Len(t, merged, 3, "the returned list is not pruned")

	raw, err := store.Get(context.Background(), CacheKey(testAddress))
	require.NoError(t, err)

	var entry CacheEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, []uint64{1, 3}, ids(entry.Items))
	assert.NotZero(t, entry.Timestamp)
}

func TestMergeAndPersist_PersistFailureIsNotFatal(t *testing.T) {
	store := newMapStore()
	store.setErr = errors.New("disk full")

	merged := MergeAndPersist(context.Background(), []Item{{ID: 1, Name: "a"}}, nil, testAddress, store)
	assert.Len(t, merged, 1)
}

func TestWriteCache_PrunesItemsWithoutDisplayData(t *testing.T) {
	store := newMapStore()

	require.NoError(t, WriteCache(context.Background(), store, testAddress, []Item{{ID: 1}}))

	raw, err := store.Get(context.Background(), CacheKey(testAddress))
	require.NoError(t, err)
	var entry CacheEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Empty(t, entry.Items)

	assert.Nil(t, ReadCache(context.Background(), store, testAddress))
}

func TestWriteCache_RequiresAddress(t *testing.T) {
	assert.ErrorIs(t, WriteCache(context.Background(), newMapStore(), "", nil), ErrInvalidAddress)
}

func TestReadCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		assert.Nil(t, ReadCache(ctx, newMapStore(), testAddress))
	})

	t.Run("malformed payload", func(t *testing.T) {
		store := newMapStore()
		require.NoError(t, store.Set(ctx, CacheKey(testAddress), []byte("{not json")))
		assert.Nil(t, ReadCache(ctx, store, testAddress))
	})

	t.Run("filters and sorts", func(t *testing.T) {
		store := newMapStore()
		payload := `{"timestamp":1,"items":[{"id":7,"uri":"u7","owner":"","name":"seven"},{"id":2,"uri":"u2","owner":""},{"id":3,"uri":"u3","owner":"","image":"i3"}]}`
		require.NoError(t, store.Set(ctx, CacheKey(testAddress), []byte(payload)))

		items := ReadCache(ctx, store, testAddress)
		assert.Equal(t, []uint64{3, 7}, ids(items))
	})

	t.Run("stale timestamp is still served", func(t *testing.T) {
		store := newMapStore()
		require.NoError(t, store.Set(ctx, CacheKey(testAddress), []byte(`{"timestamp":0,"items":[{"id":1,"uri":"u","owner":"","name":"old"}]}`)))
		assert.Len(t, ReadCache(ctx, store, testAddress), 1)
	})

	t.Run("address case is ignored", func(t *testing.T) {
		store := newMapStore()
		require.NoError(t, WriteCache(ctx, store, testAddress, []Item{{ID: 1, Name: "a"}}))
		assert.Len(t, ReadCache(ctx, store, "0x5fbdb2315678afecb367f032d93f642f64180aa3"), 1)
	})
}

func TestFallbackItem(t *testing.T) {
	it := FallbackItem(42, "ipfs://QmAbc/42.json", "0xabc")
	assert.Equal(t, "Token #42", it.Name)
	assert.Equal(t, "Metadata unavailable", it.Description)
	assert.Contains(t, it.Image, "data:image/svg+xml,")
	assert.True(t, it.HasDisplayData())
}
