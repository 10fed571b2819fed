package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/answerd/internal/cache"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// stubEmbedder returns a fixed vector or an error.
type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

// flakyStore fails the first n queries, then delegates to a MemoryStore.
type flakyStore struct {
	*vectorstore.MemoryStore
	failures int
}

func (f *flakyStore) Query(ctx context.Context, embedding []float32, k int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient backend hiccup")
	}
	return f.MemoryStore.Query(ctx, embedding, k, filter)
}

func seedStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(2, nil)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), []vectorstore.Record{
		{ID: "close", Embedding: []float32{1, 0}, Content: "very relevant", UserID: "u1", FileID: "f1"},
		{ID: "near", Embedding: []float32{0.9, 0.3}, Content: "somewhat relevant", UserID: "u1", FileID: "f1"},
		{ID: "far", Embedding: []float32{0, 1}, Content: "irrelevant", UserID: "u1", FileID: "f1"},
	}))
	return store
}

func TestRetrieveRanksAndFilters(t *testing.T) {
	store := seedStore(t)
	adapter := vectorstore.NewAdapter(store, 2, "test", nil)
	r := New(&stubEmbedder{vector: []float32{1, 0}}, adapter, nil, Config{SimilarityThreshold: 0.7, TopK: 5}, nil, nil, nil)

	results, err := r.Retrieve(context.Background(), "question", "u1", []string{"f1"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Threshold: nothing below 0.7 survives.
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Score, 0.7)
	}
	// Ranking: non-increasing scores.
	assert.Equal(t, "close", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestRetrieveEmptyQueryRejected(t *testing.T) {
	adapter := vectorstore.NewAdapter(nil, 2, "test", nil)
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	r := New(embedder, adapter, nil, Config{}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), "", "u1", nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	// Rejected before any external call.
	assert.Zero(t, embedder.calls)
}

func TestRetrieveDegradesOnUninitializedStore(t *testing.T) {
	adapter := vectorstore.NewAdapter(nil, 2, "test", nil)
	r := New(&stubEmbedder{vector: []float32{1, 0}}, adapter, nil, Config{}, nil, nil, nil)

	results, err := r.Retrieve(context.Background(), "question", "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveDegradesOnEmbeddingFailure(t *testing.T) {
	store := seedStore(t)
	adapter := vectorstore.NewAdapter(store, 2, "test", nil)
	r := New(&stubEmbedder{err: errors.New("embedder down")}, adapter, nil, Config{}, nil, nil, nil)

	results, err := r.Retrieve(context.Background(), "question", "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveRetriesTransientOnce(t *testing.T) {
	flaky := &flakyStore{MemoryStore: seedStore(t), failures: 1}
	adapter := vectorstore.NewAdapter(flaky, 2, "test", nil)
	r := New(&stubEmbedder{vector: []float32{1, 0}}, adapter, nil, Config{SimilarityThreshold: 0.7}, nil, nil, nil)

	results, err := r.Retrieve(context.Background(), "question", "u1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRetrieveDegradesWhenRetryFails(t *testing.T) {
	flaky := &flakyStore{MemoryStore: seedStore(t), failures: 2}
	adapter := vectorstore.NewAdapter(flaky, 2, "test", nil)
	r := New(&stubEmbedder{vector: []float32{1, 0}}, adapter, nil, Config{}, nil, nil, nil)

	results, err := r.Retrieve(context.Background(), "question", "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveSurfacesDimensionMismatch(t *testing.T) {
	store := seedStore(t)
	adapter := vectorstore.NewAdapter(store, 2, "test", nil)
	// Embedder produces a 3-dim vector against a 2-dim store.
	r := New(&stubEmbedder{vector: []float32{1, 0, 0}}, adapter, nil, Config{}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), "question", "u1", nil)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestRetrieveCacheTransparency(t *testing.T) {
	store := seedStore(t)
	adapter := vectorstore.NewAdapter(store, 2, "test", nil)
	qc := cache.NewQueryCache(time.Minute, nil)
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	r := New(embedder, adapter, qc, Config{SimilarityThreshold: 0.7}, nil, nil, nil)

	fresh, err := r.Retrieve(context.Background(), "question", "u1", []string{"f1"})
	require.NoError(t, err)
	callsAfterMiss := embedder.calls

	cached, err := r.Retrieve(context.Background(), "question", "u1", []string{"f1"})
	require.NoError(t, err)

	// Hit and miss are observably equivalent, differing only in work done.
	assert.Equal(t, fresh, cached)
	assert.Equal(t, callsAfterMiss, embedder.calls)

	// Different filter is a different key.
	_, err = r.Retrieve(context.Background(), "question", "u1", []string{"f2"})
	require.NoError(t, err)
	assert.Greater(t, embedder.calls, callsAfterMiss)
}

func TestInvalidateCache(t *testing.T) {
	store := seedStore(t)
	adapter := vectorstore.NewAdapter(store, 2, "test", nil)
	qc := cache.NewQueryCache(time.Minute, nil)
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	r := New(embedder, adapter, qc, Config{}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), "question", "u1", nil)
	require.NoError(t, err)
	calls := embedder.calls

	r.InvalidateCache()

	_, err = r.Retrieve(context.Background(), "question", "u1", nil)
	require.NoError(t, err)
	assert.Greater(t, embedder.calls, calls)
}
