package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChromemStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_chunks",
		VectorSize: 3,
	}, nil)
	require.NoError(t, err)
	return store
}

func TestChromemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: "a", Embedding: []float32{1, 0, 0}, Content: "alpha", UserID: "u1", FileID: "f1"},
		{ID: "b", Embedding: []float32{0, 1, 0}, Content: "beta", UserID: "u1", FileID: "f1"},
		{ID: "c", Embedding: []float32{0, 0, 1}, Content: "gamma", UserID: "u2", FileID: "f2"},
	}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Query(ctx, []float32{1, 0.1, 0}, 2, Filter{UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.Equal(t, "u1", results[0].UserID)
	assert.Equal(t, "f1", results[0].FileID)

	// Another user's records never leak through the filter.
	for _, r := range results {
		assert.NotEqual(t, "u2", r.UserID)
	}
}

func TestChromemStoreQueryEmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	results, err := store.Query(ctx, []float32{1, 0, 0}, 5, Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	err := store.Upsert(ctx, []Record{{ID: "a", Embedding: []float32{1, 0}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Query(ctx, []float32{1, 0}, 5, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemStoreDeleteByFile(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: "a", Embedding: []float32{1, 0, 0}, Content: "alpha", UserID: "u1", FileID: "f1"},
		{ID: "b", Embedding: []float32{0, 1, 0}, Content: "beta", UserID: "u1", FileID: "f2"},
	}))

	require.NoError(t, store.Delete(ctx, Filter{UserID: "u1", FileIDs: []string{"f1"}}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
