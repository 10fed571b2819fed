package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("answerd.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name. Default: "answerd_chunks".
	Collection string

	// VectorSize is the expected embedding dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./data/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "answerd_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements Store on chromem-go, an embeddable pure-Go vector
// database with gob-file persistence. No external service required.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu  sync.Mutex
	col *chromem.Collection
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
	}

	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)
	return store, nil
}

// unusedEmbeddingFunc is never called because all vectors are supplied
// explicitly, but chromem-go falls back to its OpenAI embedder when given
// nil, so a non-nil function must always be passed.
func unusedEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embeddings are computed upstream, not by the store")
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		return s.col, nil
	}
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, unusedEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	s.col = col
	return col, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return ErrEmptyRecords
	}
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record at index %d has empty ID", i)
		}
		if len(r.Embedding) != s.config.VectorSize {
			return fmt.Errorf("%w: record %s has dimension %d, store expects %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), s.config.VectorSize)
		}
	}

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		meta := map[string]string{
			"user_id":     r.UserID,
			"file_id":     r.FileID,
			"chunk_index": strconv.Itoa(r.ChunkIndex),
		}
		for k, v := range r.Metadata {
			meta[k] = v
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  meta,
			Embedding: r.Embedding,
		}
	}

	// Concurrency of 1: embeddings are already present, nothing to parallelize.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("upserted records to chromem", zap.Int("count", len(records)))
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	docCount := col.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}

	// chromem where filters are single exact-match values, so the user is
	// filtered server-side and the file set client-side. Over-fetch to leave
	// room for the client-side pass, capped at the collection size.
	where := map[string]string{}
	if filter.UserID != "" {
		where["user_id"] = filter.UserID
	}
	if len(filter.FileIDs) == 1 {
		where["file_id"] = filter.FileIDs[0]
	}
	fetch := k
	if len(filter.FileIDs) > 1 {
		fetch = k * 4
	}
	if fetch > docCount {
		fetch = docCount
	}

	results, err := col.QueryEmbedding(ctx, embedding, fetch, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	wanted := make(map[string]bool, len(filter.FileIDs))
	for _, id := range filter.FileIDs {
		wanted[id] = true
	}

	out := make([]SearchResult, 0, k)
	for _, r := range results {
		fileID := r.Metadata["file_id"]
		if len(filter.FileIDs) > 1 && !wanted[fileID] {
			continue
		}
		out = append(out, SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    float64(r.Similarity),
			UserID:   r.Metadata["user_id"],
			FileID:   fileID,
			Metadata: r.Metadata,
		})
		if len(out) == k {
			break
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

func (s *ChromemStore) Delete(ctx context.Context, filter Filter) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if col.Count() == 0 {
		return nil
	}

	where := map[string]string{}
	if filter.UserID != "" {
		where["user_id"] = filter.UserID
	}

	if len(filter.FileIDs) == 0 {
		if err := col.Delete(ctx, where, nil); err != nil {
			span.RecordError(err)
			return fmt.Errorf("deleting records: %w", err)
		}
		return nil
	}

	for _, fileID := range filter.FileIDs {
		w := map[string]string{"file_id": fileID}
		for k, v := range where {
			w[k] = v
		}
		if err := col.Delete(ctx, w, nil); err != nil {
			span.RecordError(err)
			return fmt.Errorf("deleting records for file %s: %w", fileID, err)
		}
	}
	return nil
}

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	col, err := s.collection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close is a no-op; chromem-go persists on every write.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

var _ Store = (*ChromemStore)(nil)
