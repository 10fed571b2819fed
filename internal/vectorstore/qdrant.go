package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("answerd.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the 6333 REST port).
	Port int

	// Collection is the collection name. Default: "answerd_chunks".
	Collection string

	// VectorSize is the embedding dimensionality. Must match upstream
	// embedder output.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey authenticates against a secured Qdrant deployment. Optional.
	APIKey string

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry.
	RetryBackoff time.Duration

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "answerd_chunks"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// IsTransientError reports whether an error should be retried. True for
// network timeouts and temporary unavailability, false for invalid
// arguments, not found, and auth failures.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store on Qdrant's native gRPC client. Transient
// failures retry with exponential backoff behind a circuit breaker.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore connects to Qdrant, verifies health, and ensures the
// configured collection exists.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(50 * 1024 * 1024),
				grpc.MaxCallSendMsgSize(50 * 1024 * 1024),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
	)
	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err == nil && info != nil {
		return nil
	}
	if err != nil {
		if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
			return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// retryOperation retries transient failures with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Half-open after 30 seconds.
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.Collection),
	)

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if len(r.Embedding) != int(s.config.VectorSize) {
			return fmt.Errorf("%w: record %s has dimension %d, store expects %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), s.config.VectorSize)
		}

		payload := map[string]*qdrant.Value{
			"id":          {Kind: &qdrant.Value_StringValue{StringValue: r.ID}},
			"content":     {Kind: &qdrant.Value_StringValue{StringValue: r.Content}},
			"user_id":     {Kind: &qdrant.Value_StringValue{StringValue: r.UserID}},
			"file_id":     {Kind: &qdrant.Value_StringValue{StringValue: r.FileID}},
			"chunk_index": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.ChunkIndex)}},
		}
		for k, v := range r.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		// The original record ID survives in the payload; the point ID must
		// be a UUID.
		var pointID *qdrant.PointId
		if _, err := uuid.Parse(r.ID); err == nil {
			pointID = qdrant.NewIDUUID(r.ID)
		} else {
			pointID = qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(r.ID)).String())
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID,
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points: %w", err)
	}

	span.SetAttributes(attribute.Int("points_added", len(points)))
	return nil
}

func filterConditions(filter Filter) *qdrant.Filter {
	var conditions []*qdrant.Condition
	if filter.UserID != "" {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "user_id",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: filter.UserID},
					},
				},
			},
		})
	}
	if len(filter.FileIDs) > 0 {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "file_id",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: filter.FileIDs},
						},
					},
				},
			},
		})
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func (s *QdrantStore) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != int(s.config.VectorSize) {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(embedding...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filterConditions(filter),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results := make([]SearchResult, len(points))
	for i, point := range points {
		r := SearchResult{
			Score:    float64(point.Score),
			Metadata: make(map[string]string),
		}
		for key, v := range point.Payload {
			sv, ok := v.Kind.(*qdrant.Value_StringValue)
			if !ok {
				if iv, ok := v.Kind.(*qdrant.Value_IntegerValue); ok {
					r.Metadata[key] = strconv.FormatInt(iv.IntegerValue, 10)
				}
				continue
			}
			switch key {
			case "id":
				r.ID = sv.StringValue
			case "content":
				r.Content = sv.StringValue
			case "user_id":
				r.UserID = sv.StringValue
			case "file_id":
				r.FileID = sv.StringValue
			}
			r.Metadata[key] = sv.StringValue
		}
		results[i] = r
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

func (s *QdrantStore) Delete(ctx context.Context, filter Filter) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.Collection))

	conditions := filterConditions(filter)
	var selector *qdrant.PointsSelector
	if conditions != nil {
		selector = &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: conditions},
		}
	} else {
		// Empty filter deletes everything.
		selector = &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: &qdrant.Filter{}},
		}
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points:         selector,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.retryOperation(ctx, "count", func() error {
		info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
		if err != nil {
			return err
		}
		if info.PointsCount != nil {
			count = int(*info.PointsCount)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return count, nil
}

func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ Store = (*QdrantStore)(nil)
