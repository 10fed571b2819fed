// Package cache provides the two best-effort TTL caches: per-query retrieval
// results and per-file processing outcomes. Keys are content-addressed with
// sha256 so equal inputs always hit the same entry. A cache fault must never
// fail the primary operation; faults are logged and swallowed.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// Key derives a stable content-addressed cache key from its parts.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// QueryCache memoizes ranked retrieval results per query. TTL is short
// because the underlying documents can change.
type QueryCache struct {
	c      *gocache.Cache
	logger *zap.Logger
}

// NewQueryCache creates a QueryCache with the given TTL.
func NewQueryCache(ttl time.Duration, logger *zap.Logger) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryCache{
		c:      gocache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// cloneResults copies the slice and each result's metadata map so no two
// holders of the same cache entry ever alias each other.
func cloneResults(results []vectorstore.SearchResult) []vectorstore.SearchResult {
	cp := make([]vectorstore.SearchResult, len(results))
	copy(cp, results)
	for i := range cp {
		if cp[i].Metadata == nil {
			continue
		}
		m := make(map[string]string, len(cp[i].Metadata))
		for k, v := range cp[i].Metadata {
			m[k] = v
		}
		cp[i].Metadata = m
	}
	return cp
}

// Get returns a copy of the cached result list for a key, if present.
// Mutating the returned results never affects the cached value or other
// concurrent hitters.
func (q *QueryCache) Get(key string) ([]vectorstore.SearchResult, bool) {
	v, found := q.c.Get(key)
	if !found {
		return nil, false
	}
	results, ok := v.([]vectorstore.SearchResult)
	if !ok {
		// Should not happen; treat as a miss rather than fail the request.
		q.logger.Warn("query cache entry has unexpected type", zap.String("key", key))
		q.c.Delete(key)
		return nil, false
	}
	return cloneResults(results), true
}

// Put stores a result list under a key. Callers keep ownership of results;
// a copy is stored so later mutation cannot corrupt the cached value.
func (q *QueryCache) Put(key string, results []vectorstore.SearchResult) {
	q.c.SetDefault(key, cloneResults(results))
}

// Invalidate removes a single entry.
func (q *QueryCache) Invalidate(key string) {
	q.c.Delete(key)
}

// Clear drops every entry. Called after ingestion so stale rankings never
// outlive a document change.
func (q *QueryCache) Clear() {
	q.c.Flush()
}

// Len returns the number of live entries.
func (q *QueryCache) Len() int {
	return q.c.ItemCount()
}

// Outcome is a remembered processing result for an ingestion artifact.
type Outcome struct {
	Success    bool
	FileID     string
	ChunkCount int
	Error      string
}

// ProcessingCache memoizes ingestion outcomes by file content hash so an
// unchanged artifact is never re-processed. TTL is long (about a day).
type ProcessingCache struct {
	c      *gocache.Cache
	logger *zap.Logger
}

// NewProcessingCache creates a ProcessingCache with the given TTL.
func NewProcessingCache(ttl time.Duration, logger *zap.Logger) *ProcessingCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingCache{
		c:      gocache.New(ttl, time.Hour),
		logger: logger,
	}
}

// Get returns the remembered outcome for a content hash, if present.
func (p *ProcessingCache) Get(contentHash string) (Outcome, bool) {
	v, found := p.c.Get(contentHash)
	if !found {
		return Outcome{}, false
	}
	outcome, ok := v.(Outcome)
	if !ok {
		p.logger.Warn("processing cache entry has unexpected type", zap.String("key", contentHash))
		p.c.Delete(contentHash)
		return Outcome{}, false
	}
	return outcome, true
}

// Put remembers an outcome for a content hash.
func (p *ProcessingCache) Put(contentHash string, outcome Outcome) {
	p.c.SetDefault(contentHash, outcome)
}

// Len returns the number of live entries.
func (p *ProcessingCache) Len() int {
	return p.c.ItemCount()
}
