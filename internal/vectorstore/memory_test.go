package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T, vectorSize int) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(vectorSize, nil)
	require.NoError(t, err)
	return store
}

func TestMemoryStoreUpsertAndCount(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, 2)

	err := store.Upsert(ctx, []Record{
		{ID: "a", Embedding: []float32{1, 0}, Content: "alpha", UserID: "u1"},
		{ID: "b", Embedding: []float32{0, 1}, Content: "beta", UserID: "u1"},
	})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Upsert by same ID replaces, not duplicates.
	err = store.Upsert(ctx, []Record{{ID: "a", Embedding: []float32{0, 1}, Content: "alpha2", UserID: "u1"}})
	require.NoError(t, err)
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryStoreUpsertValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, 2)

	err := store.Upsert(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyRecords)

	err = store.Upsert(ctx, []Record{{ID: "a", Embedding: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = store.Upsert(ctx, []Record{{Embedding: []float32{1, 0}}})
	assert.Error(t, err)
}

func TestMemoryStoreQueryRanking(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, 2)

	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: "x", Embedding: []float32{1, 0}, Content: "x axis", UserID: "u1"},
		{ID: "y", Embedding: []float32{0, 1}, Content: "y axis", UserID: "u1"},
		{ID: "d", Embedding: []float32{0.7, 0.7}, Content: "diagonal", UserID: "u1"},
	}))

	results, err := store.Query(ctx, []float32{0.6, 0.8}, 2, Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The diagonal vector ranks first, then one of the axis vectors.
	assert.Equal(t, "d", results[0].ID)
	assert.Contains(t, []string{"x", "y"}, results[1].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestMemoryStoreQueryExcludesZeroMagnitude(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, 2)

	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: "zero", Embedding: []float32{0, 0}, Content: "degenerate", UserID: "u1"},
		{ID: "ok", Embedding: []float32{1, 1}, Content: "fine", UserID: "u1"},
	}))

	results, err := store.Query(ctx, []float32{1, 0}, 5, Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].ID)
}

func TestMemoryStoreQueryFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, 2)

	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: "1", Embedding: []float32{1, 0}, UserID: "alice", FileID: "f1"},
		{ID: "2", Embedding: []float32{1, 0}, UserID: "alice", FileID: "f2"},
		{ID: "3", Embedding: []float32{1, 0}, UserID: "bob", FileID: "f3"},
	}))

	results, err := store.Query(ctx, []float32{1, 0}, 10, Filter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = store.Query(ctx, []float32{1, 0}, 10, Filter{UserID: "alice", FileIDs: []string{"f2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].ID)

	results, err = store.Query(ctx, []float32{1, 0}, 10, Filter{FileIDs: []string{"f1", "f3"}})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStoreQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, 2)

	_, err := store.Query(ctx, []float32{1, 0, 0}, 5, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t, 2)

	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: "1", Embedding: []float32{1, 0}, UserID: "alice", FileID: "f1"},
		{ID: "2", Embedding: []float32{1, 0}, UserID: "alice", FileID: "f2"},
		{ID: "3", Embedding: []float32{1, 0}, UserID: "bob", FileID: "f3"},
	}))

	require.NoError(t, store.Delete(ctx, Filter{UserID: "alice", FileIDs: []string{"f1"}}))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Deleting the same filter again is a no-op.
	require.NoError(t, store.Delete(ctx, Filter{UserID: "alice", FileIDs: []string{"f1"}}))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
