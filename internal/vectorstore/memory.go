package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore is an in-process Store for development and tests. Similarity
// is computed client-side over every candidate, so it is also the reference
// ranking implementation the other backends are expected to agree with.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]Record
	vectorSize int
	logger     *zap.Logger
}

// NewMemoryStore creates a MemoryStore expecting embeddings of the given size.
func NewMemoryStore(vectorSize int, logger *zap.Logger) (*MemoryStore, error) {
	if vectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		records:    make(map[string]Record),
		vectorSize: vectorSize,
		logger:     logger,
	}, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record at index %d has empty ID", i)
		}
		if len(r.Embedding) != s.vectorSize {
			return fmt.Errorf("%w: record %s has dimension %d, store expects %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), s.vectorSize)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}

	s.logger.Debug("upserted records", zap.Int("count", len(records)))
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != s.vectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			ErrDimensionMismatch, len(embedding), s.vectorSize)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, k)
	for _, r := range s.records {
		if !filter.Matches(r) {
			continue
		}
		score, ok := CosineSimilarity(embedding, r.Embedding)
		if !ok {
			// Zero-magnitude vector: not comparable, excluded from ranking.
			continue
		}
		results = append(results, SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    score,
			UserID:   r.UserID,
			FileID:   r.FileID,
			Metadata: r.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) Delete(ctx context.Context, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, r := range s.records {
		if filter.Matches(r) {
			delete(s.records, id)
			deleted++
		}
	}
	s.logger.Debug("deleted records", zap.Int("count", deleted))
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
