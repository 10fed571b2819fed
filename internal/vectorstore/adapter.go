package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Status classifies adapter health for health-check consumers.
type Status string

const (
	// StatusHealthy means the store is initialized and the last operation
	// succeeded.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the store was never initialized (e.g. missing
	// credentials). Reads return empty results, writes fail.
	StatusDegraded Status = "degraded"

	// StatusError means the store is initialized but an operation failed.
	StatusError Status = "error"
)

// Stats summarizes adapter state.
type Stats struct {
	Status         Status `json:"status"`
	DocumentCount  int    `json:"document_count"`
	EmbeddingModel string `json:"embedding_model"`
}

// Adapter wraps a possibly-absent Store with the degrade-not-fail policy:
// reads against an uninitialized store return empty results, writes return
// ErrStoreUnavailable. The distinction between "never initialized" and
// "initialized but failing" is preserved in Stats so health checks can tell
// them apart. Embedding dimensionality is validated here; a mismatch is
// fatal for the single request and never reaches the backend.
type Adapter struct {
	store          Store
	vectorSize     int
	embeddingModel string
	logger         *zap.Logger

	mu      sync.Mutex
	lastErr error
}

// NewAdapter wraps store, which may be nil when no backend could be
// initialized.
func NewAdapter(store Store, vectorSize int, embeddingModel string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		store:          store,
		vectorSize:     vectorSize,
		embeddingModel: embeddingModel,
		logger:         logger,
	}
}

// Available reports whether a backend was initialized.
func (a *Adapter) Available() bool {
	return a.store != nil
}

func (a *Adapter) recordErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastErr = err
}

// Upsert writes records through to the backend. Write failures are always
// visible to the caller.
func (a *Adapter) Upsert(ctx context.Context, records []Record) error {
	if a.store == nil {
		return ErrStoreUnavailable
	}
	if len(records) == 0 {
		return ErrEmptyRecords
	}
	for _, r := range records {
		if len(r.Embedding) != a.vectorSize {
			return fmt.Errorf("%w: record %s has dimension %d, expected %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), a.vectorSize)
		}
	}

	if err := a.store.Upsert(ctx, records); err != nil {
		a.recordErr(err)
		a.logger.Error("vector store upsert failed", zap.Error(err), zap.Int("count", len(records)))
		return fmt.Errorf("upserting records: %w", err)
	}
	a.recordErr(nil)
	return nil
}

// Query returns ranked hits. An uninitialized store yields empty results
// with no error; a backend failure is returned so callers can decide to
// retry once before degrading.
func (a *Adapter) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error) {
	if a.store == nil {
		return []SearchResult{}, nil
	}
	if len(embedding) != a.vectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d",
			ErrDimensionMismatch, len(embedding), a.vectorSize)
	}

	results, err := a.store.Query(ctx, embedding, k, filter)
	if err != nil {
		a.recordErr(err)
		a.logger.Warn("vector store query failed", zap.Error(err))
		return nil, fmt.Errorf("querying store: %w", err)
	}
	a.recordErr(nil)
	return results, nil
}

// Delete removes records matching the filter. Like Upsert, failures are
// visible.
func (a *Adapter) Delete(ctx context.Context, filter Filter) error {
	if a.store == nil {
		return ErrStoreUnavailable
	}
	if err := a.store.Delete(ctx, filter); err != nil {
		a.recordErr(err)
		a.logger.Error("vector store delete failed", zap.Error(err))
		return fmt.Errorf("deleting records: %w", err)
	}
	a.recordErr(nil)
	return nil
}

// Stats reports adapter health and document count. Never returns an error;
// a failing backend is reported as StatusError with a zero count.
func (a *Adapter) Stats(ctx context.Context) Stats {
	stats := Stats{EmbeddingModel: a.embeddingModel}

	if a.store == nil {
		stats.Status = StatusDegraded
		return stats
	}

	count, err := a.store.Count(ctx)
	if err != nil {
		a.recordErr(err)
		a.logger.Warn("vector store count failed", zap.Error(err))
		stats.Status = StatusError
		return stats
	}

	a.mu.Lock()
	lastErr := a.lastErr
	a.mu.Unlock()

	stats.DocumentCount = count
	if lastErr != nil {
		stats.Status = StatusError
	} else {
		stats.Status = StatusHealthy
	}
	return stats
}

// Close closes the underlying store if present.
func (a *Adapter) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
