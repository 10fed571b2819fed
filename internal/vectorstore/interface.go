// Package vectorstore provides similarity-search storage implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrStoreUnavailable indicates the store was never initialized.
	// Reads degrade to empty results; writes surface this error.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vector store config")

	// ErrEmptyRecords indicates an upsert with no records.
	ErrEmptyRecords = errors.New("records cannot be empty")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("vector store connection failed")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the store's configured vector size. Fatal for the single request.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidCollectionName indicates a collection name failing validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against backend rules.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Store is the interface all vector store backends implement. Callers query
// by embedding vector; text-to-vector conversion happens upstream so every
// backend ranks with the same metric over the same vectors.
type Store interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to k records matching the filter, ordered by
	// non-increasing cosine similarity to the query embedding.
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error)

	// Delete removes all records matching the filter.
	Delete(ctx context.Context, filter Filter) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
