// Package engine drives one message through the response pipeline:
// mode selection, retrieval, context assembly, generation, and session
// bookkeeping.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/assembler"
	"github.com/fyrsmithlabs/answerd/internal/confidence"
	"github.com/fyrsmithlabs/answerd/internal/events"
	"github.com/fyrsmithlabs/answerd/internal/generation"
	"github.com/fyrsmithlabs/answerd/internal/mode"
	"github.com/fyrsmithlabs/answerd/internal/retriever"
	"github.com/fyrsmithlabs/answerd/internal/session"
	"github.com/fyrsmithlabs/answerd/internal/telemetry"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// noEvidenceResponse is returned in document mode when nothing relevant was
// retrieved. No generation call is made.
const noEvidenceResponse = "I could not find anything relevant in your uploaded documents for that question. Try rephrasing, or ask without restricting the answer to your documents."

const systemPrompt = "You are a helpful assistant. Use the provided context when it is relevant, and say so when it does not cover the question."

// Options is the recognized per-request option set.
type Options struct {
	// Mode overrides the heuristic when set. Must be a valid mode.
	Mode session.Mode

	// FileFilter restricts retrieval to these file IDs. Empty means all of
	// the session's files.
	FileFilter []string

	// IncludeHistory controls whether recent turns enter the context.
	// Defaults to true.
	IncludeHistory *bool

	// WorkspaceID tags emitted events for multi-workspace callers. Not
	// used for retrieval scoping; isolation is per user.
	WorkspaceID string

	// Memory carries long-term memory entries and modality-tagged chunks
	// supplied by upstream enrichment.
	Memory []assembler.MemoryEntry
}

func (o Options) includeHistory() bool {
	return o.IncludeHistory == nil || *o.IncludeHistory
}

// RetrievedDocument is the provenance record for one chunk used in the
// response.
type RetrievedDocument struct {
	Source    string  `json:"source"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
}

// Response is the packaged outcome of one processed message.
type Response struct {
	ResponseText       string              `json:"response_text"`
	RetrievedDocuments []RetrievedDocument `json:"retrieved_documents"`
	Reasoning          string              `json:"reasoning"`
	Confidence         float64             `json:"confidence"`
	Mode               session.Mode        `json:"mode"`
	TokensUsed         int                 `json:"tokens_used"`
	ModelUsed          string              `json:"model_used"`
	ProcessingTimeMs   int64               `json:"processing_time_ms"`
}

// HealthStatus summarizes engine health.
type HealthStatus struct {
	Status               string `json:"status"`
	VectorStoreAvailable bool   `json:"vector_store_available"`
	ActiveSessionCount   int    `json:"active_session_count"`
}

// Config tunes the engine.
type Config struct {
	GenerationTimeout time.Duration
	MaxTokens         int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = 60 * time.Second
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
}

// Engine coordinates the per-request pipeline. All dependencies are
// injected; emitter and metrics may be nil.
type Engine struct {
	sessions  *session.Store
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	scorer    *confidence.Scorer
	generator generation.Generator
	adapter   *vectorstore.Adapter
	emitter   events.Emitter
	metrics   *telemetry.Metrics
	config    Config
	logger    *zap.Logger
}

// New creates an Engine.
func New(sessions *session.Store, ret *retriever.Retriever, asm *assembler.Assembler, scorer *confidence.Scorer, generator generation.Generator, adapter *vectorstore.Adapter, emitter events.Emitter, metrics *telemetry.Metrics, config Config, logger *zap.Logger) *Engine {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Engine{
		sessions:  sessions,
		retriever: ret,
		assembler: asm,
		scorer:    scorer,
		generator: generator,
		adapter:   adapter,
		emitter:   emitter,
		metrics:   metrics,
		config:    config,
		logger:    logger,
	}
}

// ProcessMessage runs one request through the pipeline. On failure the user
// turn, once recorded, stays recorded; the assistant half is only appended
// on success, exactly once.
func (e *Engine) ProcessMessage(ctx context.Context, userID, sessionID, query string, opts Options) (*Response, error) {
	start := time.Now()

	// Malformed input is rejected before any external call.
	if query == "" {
		return nil, newError(KindInvalidInput, "query cannot be empty", nil)
	}
	if userID == "" || sessionID == "" {
		return nil, newError(KindInvalidInput, "user id and session id are required", nil)
	}
	if opts.Mode != "" && !session.ValidMode(opts.Mode) {
		return nil, newError(KindInvalidInput, fmt.Sprintf("invalid mode %q", opts.Mode), nil)
	}

	sess := e.sessions.GetOrCreate(userID, sessionID)

	selected := mode.Select(query, &sess, opts.Mode)
	if selected != sess.Mode {
		if err := e.sessions.SetMode(sessionID, selected); err != nil {
			e.logger.Warn("failed to persist session mode", zap.Error(err))
		}
	}

	// The user turn is recorded up front; a later failure leaves it in place.
	if err := e.sessions.RecordTurn(sessionID, session.Turn{Role: session.RoleUser, Content: query}); err != nil {
		return nil, e.fail(selected, userID, sessionID, newError(KindInternal, "failed to record user turn", err))
	}

	chunks, err := e.retrieve(ctx, selected, query, userID, &sess, opts)
	if err != nil {
		return nil, e.fail(selected, userID, sessionID, err)
	}

	// Document mode with no evidence short-circuits: a graceful
	// confidence-tagged answer, no generation cost.
	if selected == session.ModeDocument && len(chunks) == 0 {
		resp := &Response{
			ResponseText: noEvidenceResponse,
			Reasoning:    "no document chunks met the relevance threshold",
			Confidence:   e.scorer.Floor(),
			Mode:         selected,
		}
		if err := e.record(sessionID, resp); err != nil {
			return nil, e.fail(selected, userID, sessionID, err)
		}
		e.complete(selected, start, resp)
		return resp, nil
	}

	input := assembler.Input{
		Chunks: chunks,
		Memory: opts.Memory,
	}
	if opts.includeHistory() {
		input.History = sess.History
	}
	contextBlob := e.assembler.Assemble(input)

	conf := e.scorer.Score(chunks)
	if selected == session.ModeGeneral {
		conf = e.scorer.General()
	}

	result, err := e.generate(ctx, contextBlob, query)
	if err != nil {
		return nil, e.fail(selected, userID, sessionID, err)
	}

	resp := &Response{
		ResponseText:       result.Text,
		RetrievedDocuments: provenance(chunks),
		Reasoning:          reasoning(selected, len(chunks)),
		Confidence:         conf,
		Mode:               selected,
		TokensUsed:         result.TokensUsed,
		ModelUsed:          result.Model,
	}
	if err := e.record(sessionID, resp); err != nil {
		return nil, e.fail(selected, userID, sessionID, err)
	}

	if len(opts.Memory) > 0 {
		fields := map[string]string{"entries": strconv.Itoa(len(opts.Memory))}
		if opts.WorkspaceID != "" {
			fields["workspace_id"] = opts.WorkspaceID
		}
		e.emitter.Emit(events.Event{
			Name:      events.MemoryUsed,
			UserID:    userID,
			SessionID: sessionID,
			Fields:    fields,
		})
	}
	e.complete(selected, start, resp)
	return resp, nil
}

// retrieve runs the RETRIEVE state. Skipped entirely in general mode.
func (e *Engine) retrieve(ctx context.Context, selected session.Mode, query, userID string, sess *session.Session, opts Options) ([]vectorstore.SearchResult, error) {
	if selected == session.ModeGeneral {
		return nil, nil
	}

	fileIDs := opts.FileFilter
	if len(fileIDs) == 0 {
		fileIDs = sess.FileIDs()
	}

	chunks, err := e.retriever.Retrieve(ctx, query, userID, fileIDs)
	if err != nil {
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, newError(KindIntegrity, "embedding dimensionality mismatch", err)
		}
		if errors.Is(err, retriever.ErrEmptyQuery) {
			return nil, newError(KindInvalidInput, "query cannot be empty", err)
		}
		return nil, newError(KindInternal, "retrieval failed", err)
	}
	return chunks, nil
}

// generate runs the GENERATE state under its own timeout. Failures are
// surfaced, never retried, to avoid duplicate cost.
func (e *Engine) generate(ctx context.Context, contextBlob, query string) (generation.Result, error) {
	gctx, cancel := context.WithTimeout(ctx, e.config.GenerationTimeout)
	defer cancel()

	messages := []generation.Message{{Role: "system", Content: systemPrompt}}
	if contextBlob != "" {
		messages = append(messages, generation.Message{Role: "system", Content: "Context:\n" + contextBlob})
	}
	messages = append(messages, generation.Message{Role: "user", Content: query})

	result, err := e.generator.Generate(gctx, messages, generation.Params{MaxTokens: e.config.MaxTokens})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
			return generation.Result{}, newError(KindTransient, "generation timed out", err)
		}
		return generation.Result{}, newError(KindTransient, "generation failed", err)
	}
	return result, nil
}

// record runs the RECORD state: the assistant turn is appended exactly once.
func (e *Engine) record(sessionID string, resp *Response) error {
	err := e.sessions.RecordTurn(sessionID, session.Turn{
		Role:    session.RoleAssistant,
		Content: resp.ResponseText,
		Metadata: map[string]string{
			"mode":       string(resp.Mode),
			"confidence": strconv.FormatFloat(resp.Confidence, 'f', 2, 64),
		},
	})
	if err != nil {
		return newError(KindInternal, "failed to record assistant turn", err)
	}
	return nil
}

func (e *Engine) fail(selected session.Mode, userID, sessionID string, err error) error {
	e.emitter.Emit(events.Event{
		Name:      events.ErrorOccurred,
		UserID:    userID,
		SessionID: sessionID,
		Fields:    map[string]string{"kind": string(KindOf(err))},
	})
	if e.metrics != nil {
		e.metrics.RequestsTotal.WithLabelValues(string(selected), "failed").Inc()
	}
	e.logger.Error("message processing failed",
		zap.String("session_id", sessionID),
		zap.String("kind", string(KindOf(err))),
		zap.Error(err),
	)
	return err
}

func (e *Engine) complete(selected session.Mode, start time.Time, resp *Response) {
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	if e.metrics != nil {
		e.metrics.RequestsTotal.WithLabelValues(string(selected), "completed").Inc()
		e.metrics.ProcessingDuration.WithLabelValues(string(selected)).Observe(time.Since(start).Seconds())
	}
}

func provenance(chunks []vectorstore.SearchResult) []RetrievedDocument {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]RetrievedDocument, len(chunks))
	for i, c := range chunks {
		source := c.FileID
		if source == "" {
			source = c.ID
		}
		docs[i] = RetrievedDocument{
			Source:    source,
			Content:   c.Content,
			Relevance: c.Score,
		}
	}
	return docs
}

func reasoning(m session.Mode, chunkCount int) string {
	switch m {
	case session.ModeGeneral:
		return "answered from general knowledge, no documents attached"
	case session.ModeDocument:
		return fmt.Sprintf("answered from %d retrieved document chunk(s)", chunkCount)
	default:
		return fmt.Sprintf("blended general knowledge with %d retrieved document chunk(s)", chunkCount)
	}
}

// SessionStats returns the session summary; zero values for an unknown
// session.
func (e *Engine) SessionStats(sessionID string) session.Stats {
	return e.sessions.Stats(sessionID)
}

// ClearSession removes a session. Idempotent.
func (e *Engine) ClearSession(sessionID string) {
	e.sessions.Clear(sessionID)
}

// Health reports engine health for the transport layer.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	stats := e.adapter.Stats(ctx)
	status := "ok"
	if stats.Status != vectorstore.StatusHealthy {
		status = "degraded"
	}
	return HealthStatus{
		Status:               status,
		VectorStoreAvailable: stats.Status == vectorstore.StatusHealthy,
		ActiveSessionCount:   e.sessions.Count(),
	}
}
