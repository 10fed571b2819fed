// Package retriever issues similarity queries and applies the relevance
// threshold. Read failures degrade to empty results after one retry;
// integrity violations (embedding dimensionality) are surfaced because the
// request cannot produce a meaningful ranking.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/cache"
	"github.com/fyrsmithlabs/answerd/internal/events"
	"github.com/fyrsmithlabs/answerd/internal/telemetry"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// ErrEmptyQuery indicates a retrieval with no query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Config tunes retrieval behavior.
type Config struct {
	// SimilarityThreshold drops results scoring below it. Default 0.7.
	SimilarityThreshold float64

	// TopK bounds the number of returned chunks. Default 5.
	TopK int

	// Timeout bounds one retrieval attempt. Default 5s.
	Timeout time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.7
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// Retriever embeds the query, consults the query cache, and ranks chunks
// through the vector store adapter.
type Retriever struct {
	embedder vectorstore.Embedder
	adapter  *vectorstore.Adapter
	cache    *cache.QueryCache
	config   Config
	emitter  events.Emitter
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// New creates a Retriever. cache, emitter, and metrics may be nil.
func New(embedder vectorstore.Embedder, adapter *vectorstore.Adapter, queryCache *cache.QueryCache, config Config, emitter events.Emitter, metrics *telemetry.Metrics, logger *zap.Logger) *Retriever {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Retriever{
		embedder: embedder,
		adapter:  adapter,
		cache:    queryCache,
		config:   config,
		emitter:  emitter,
		metrics:  metrics,
		logger:   logger,
	}
}

// Retrieve returns up to TopK chunks relevant to the query, all scoring at
// or above the similarity threshold, ordered by non-increasing score.
//
// Degrade paths return an empty slice with no error: uninitialized store,
// embedding failure, and store failure persisting through one retry. A
// dimensionality mismatch is returned as an error.
func (r *Retriever) Retrieve(ctx context.Context, query, userID string, fileIDs []string) ([]vectorstore.SearchResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	cacheKey := r.cacheKey(query, userID, fileIDs)
	if r.cache != nil {
		if cached, found := r.cache.Get(cacheKey); found {
			r.recordCache(true)
			r.emitRetrieved(userID, len(cached), true)
			return cached, nil
		}
		r.recordCache(false)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		// No vector, no ranking. Degrade rather than fail the request.
		r.logger.Warn("query embedding failed, degrading to empty retrieval", zap.Error(err))
		r.emitRetrieved(userID, 0, false)
		return []vectorstore.SearchResult{}, nil
	}

	filter := vectorstore.Filter{UserID: userID, FileIDs: fileIDs}
	results, err := r.adapter.Query(ctx, embedding, r.config.TopK, filter)
	if err != nil {
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, fmt.Errorf("retrieval integrity violation: %w", err)
		}
		// One retry for idempotent reads, then degrade.
		results, err = r.adapter.Query(ctx, embedding, r.config.TopK, filter)
		if err != nil {
			if errors.Is(err, vectorstore.ErrDimensionMismatch) {
				return nil, fmt.Errorf("retrieval integrity violation: %w", err)
			}
			r.logger.Warn("retrieval failed after retry, degrading to empty", zap.Error(err))
			r.emitRetrieved(userID, 0, false)
			return []vectorstore.SearchResult{}, nil
		}
	}

	filtered := make([]vectorstore.SearchResult, 0, len(results))
	for _, res := range results {
		if res.Score >= r.config.SimilarityThreshold {
			filtered = append(filtered, res)
		}
	}

	if r.cache != nil {
		r.cache.Put(cacheKey, filtered)
	}
	if r.metrics != nil {
		r.metrics.RetrievedChunks.Observe(float64(len(filtered)))
	}
	r.emitRetrieved(userID, len(filtered), false)

	return filtered, nil
}

// InvalidateCache drops all memoized rankings. Called after ingestion.
func (r *Retriever) InvalidateCache() {
	if r.cache != nil {
		r.cache.Clear()
	}
}

func (r *Retriever) cacheKey(query, userID string, fileIDs []string) string {
	parts := append([]string{query, userID}, fileIDs...)
	return cache.Key(parts...)
}

func (r *Retriever) recordCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.CacheHits.WithLabelValues("query").Inc()
	} else {
		r.metrics.CacheMisses.WithLabelValues("query").Inc()
	}
}

func (r *Retriever) emitRetrieved(userID string, count int, cached bool) {
	r.emitter.Emit(events.Event{
		Name:   events.ChunksRetrieved,
		UserID: userID,
		Fields: map[string]string{
			"count":  strconv.Itoa(count),
			"cached": strconv.FormatBool(cached),
		},
	})
}
