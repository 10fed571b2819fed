// Package ingest completes the ingestion hand-off: it takes pre-extracted
// text (file parsing happens in the upload collaborator), splits it into
// chunks, embeds them, and upserts the vectors. Re-ingesting unchanged
// content is short-circuited through the processing cache.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/cache"
	"github.com/fyrsmithlabs/answerd/internal/session"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

var (
	// ErrEmptyText indicates an ingestion request with no text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrMissingUser indicates an ingestion request with no user.
	ErrMissingUser = errors.New("user id required")
)

// Request is one ingestion hand-off.
type Request struct {
	UserID    string
	SessionID string
	Filename  string
	FileType  string
	// Text is the extracted document text.
	Text string
}

// Result reports a completed ingestion.
type Result struct {
	FileRef session.FileRef
	// Cached is true when the content hash matched a prior ingestion and
	// no new processing happened.
	Cached bool
}

// Config tunes chunking.
type Config struct {
	ChunkSize    int // characters per chunk, default 1000
	ChunkOverlap int // overlap between adjacent chunks, default 200
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
}

// Invalidator lets ingestion drop memoized retrieval results so stale
// rankings never survive a document change.
type Invalidator interface {
	InvalidateCache()
}

// Service performs ingestion completions.
type Service struct {
	embedder   vectorstore.Embedder
	adapter    *vectorstore.Adapter
	processing *cache.ProcessingCache
	sessions   *session.Store
	invalidate Invalidator
	splitter   textsplitter.RecursiveCharacter
	logger     *zap.Logger
}

// NewService creates an ingestion service. processing and invalidate may be
// nil.
func NewService(embedder vectorstore.Embedder, adapter *vectorstore.Adapter, processing *cache.ProcessingCache, sessions *session.Store, invalidate Invalidator, config Config, logger *zap.Logger) *Service {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
	)

	return &Service{
		embedder:   embedder,
		adapter:    adapter,
		processing: processing,
		sessions:   sessions,
		invalidate: invalidate,
		splitter:   splitter,
		logger:     logger,
	}
}

// Ingest chunks, embeds, and stores the text, records the FileRef on the
// session, and invalidates the query cache. Unchanged content (same user,
// same bytes) reuses the remembered outcome without re-processing.
//
// Write failures are always surfaced; unlike retrieval there is no degrade
// path for ingestion.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	if req.Text == "" {
		return Result{}, ErrEmptyText
	}
	if req.UserID == "" {
		return Result{}, ErrMissingUser
	}

	contentHash := cache.Key(req.UserID, req.Text)
	if s.processing != nil {
		if outcome, found := s.processing.Get(contentHash); found && outcome.Success {
			ref := session.FileRef{
				FileID:     outcome.FileID,
				Filename:   req.Filename,
				FileType:   req.FileType,
				ChunkCount: outcome.ChunkCount,
			}
			if req.SessionID != "" {
				if err := s.sessions.AddFile(req.SessionID, ref); err != nil {
					return Result{}, fmt.Errorf("recording file on session: %w", err)
				}
			}
			s.logger.Debug("ingestion short-circuited by processing cache",
				zap.String("file_id", outcome.FileID),
			)
			return Result{FileRef: ref, Cached: true}, nil
		}
	}

	chunks, err := s.splitter.SplitText(req.Text)
	if err != nil {
		return Result{}, fmt.Errorf("splitting text: %w", err)
	}
	if len(chunks) == 0 {
		return Result{}, ErrEmptyText
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("embedding chunks: %w", err)
	}

	fileID := uuid.New().String()
	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:         uuid.New().String(),
			Embedding:  embeddings[i],
			Content:    chunk,
			UserID:     req.UserID,
			FileID:     fileID,
			ChunkIndex: i,
			Metadata: map[string]string{
				"filename":  req.Filename,
				"file_type": req.FileType,
			},
		}
	}

	if err := s.adapter.Upsert(ctx, records); err != nil {
		return Result{}, fmt.Errorf("storing chunk vectors: %w", err)
	}

	ref := session.FileRef{
		FileID:     fileID,
		Filename:   req.Filename,
		FileType:   req.FileType,
		ChunkCount: len(chunks),
	}
	if req.SessionID != "" {
		if err := s.sessions.AddFile(req.SessionID, ref); err != nil {
			return Result{}, fmt.Errorf("recording file on session: %w", err)
		}
	}

	// Only successful outcomes are remembered. Failures are usually
	// transient (embedder down, store unreachable) and re-processing is the
	// correct response, not a 24h remembered error.
	if s.processing != nil {
		s.processing.Put(contentHash, cache.Outcome{
			Success:    true,
			FileID:     fileID,
			ChunkCount: len(chunks),
		})
	}
	if s.invalidate != nil {
		s.invalidate.InvalidateCache()
	}

	s.logger.Info("file ingested",
		zap.String("file_id", fileID),
		zap.String("user_id", req.UserID),
		zap.Int("chunks", len(chunks)),
	)
	return Result{FileRef: ref}, nil
}
