package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/answerd/internal/assembler"
	"github.com/fyrsmithlabs/answerd/internal/confidence"
	"github.com/fyrsmithlabs/answerd/internal/generation"
	"github.com/fyrsmithlabs/answerd/internal/retriever"
	"github.com/fyrsmithlabs/answerd/internal/session"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// stubEmbedder maps known queries to fixed vectors.
type stubEmbedder struct {
	vector []float32
	calls  int
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.vector, nil
}

// stubGenerator records calls and returns a fixed completion.
type stubGenerator struct {
	calls    int
	lastCtx  string
	err      error
	response string
}

func (s *stubGenerator) Generate(ctx context.Context, messages []generation.Message, params generation.Params) (generation.Result, error) {
	s.calls++
	for _, m := range messages {
		if m.Role == "system" {
			s.lastCtx += m.Content + "\n"
		}
	}
	if s.err != nil {
		return generation.Result{}, s.err
	}
	text := s.response
	if text == "" {
		text = "generated answer"
	}
	return generation.Result{Text: text, TokensUsed: 10, Model: "stub-llm"}, nil
}

type fixture struct {
	engine    *Engine
	sessions  *session.Store
	store     *vectorstore.MemoryStore
	embedder  *stubEmbedder
	generator *stubGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(2, nil)
	require.NoError(t, err)
	adapter := vectorstore.NewAdapter(store, 2, "stub-embed", nil)
	sessions := session.NewStore(nil)
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	gen := &stubGenerator{}

	ret := retriever.New(embedder, adapter, nil, retriever.Config{SimilarityThreshold: 0.7, TopK: 5}, nil, nil, nil)
	eng := New(
		sessions,
		ret,
		assembler.New(assembler.Config{}),
		confidence.NewScorer(0, 0, 0),
		gen,
		adapter,
		nil,
		nil,
		Config{},
		nil,
	)
	return &fixture{engine: eng, sessions: sessions, store: store, embedder: embedder, generator: gen}
}

func (f *fixture) seedFile(t *testing.T, sessionID string, scores ...float64) {
	t.Helper()
	f.sessions.GetOrCreate("alice", sessionID)
	require.NoError(t, f.sessions.AddFile(sessionID, session.FileRef{FileID: "f1", Filename: "report.pdf", ChunkCount: len(scores)}))

	records := make([]vectorstore.Record, len(scores))
	for i, score := range scores {
		// A vector at angle acos(score) from the query vector (1,0) yields
		// exactly that cosine similarity.
		records[i] = vectorstore.Record{
			ID:        string(rune('a' + i)),
			Embedding: angled(float32(score)),
			Content:   "chunk content",
			UserID:    "alice",
			FileID:    "f1",
		}
	}
	require.NoError(t, f.store.Upsert(context.Background(), records))
}

// angled builds a unit vector whose cosine similarity against the query
// vector (1,0) is exactly cos.
func angled(cos float32) []float32 {
	if cos >= 1 {
		return []float32{1, 0}
	}
	return []float32{cos, float32(math.Sqrt(float64(1 - cos*cos)))}
}

func TestProcessMessageGeneralMode(t *testing.T) {
	f := newFixture(t)

	resp, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "what is the capital of France?", Options{})
	require.NoError(t, err)

	assert.Equal(t, session.ModeGeneral, resp.Mode)
	assert.Equal(t, 0.9, resp.Confidence)
	assert.Empty(t, resp.RetrievedDocuments)
	assert.Equal(t, "generated answer", resp.ResponseText)
	// No retrieval attempted in general mode.
	assert.Zero(t, f.embedder.calls)

	// Both turns recorded.
	stats := f.engine.SessionStats("s1")
	assert.Equal(t, 2, stats.MessageCount)
}

func TestProcessMessageDocumentModeEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "s1", 0.9, 0.8)

	resp, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "What does the report say about revenue?", Options{})
	require.NoError(t, err)

	assert.Equal(t, session.ModeDocument, resp.Mode)
	require.Len(t, resp.RetrievedDocuments, 2)
	for _, doc := range resp.RetrievedDocuments {
		assert.Equal(t, "f1", doc.Source)
		assert.GreaterOrEqual(t, doc.Relevance, 0.7)
	}
	// Confidence is the average relevance, capped at 0.95.
	assert.InDelta(t, 0.85, resp.Confidence, 0.02)
	assert.LessOrEqual(t, resp.Confidence, 0.95)
	assert.Equal(t, 1, f.generator.calls)
	assert.Contains(t, f.generator.lastCtx, "Relevant document excerpts")
}

func TestProcessMessageHybridMode(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "s1", 0.9)

	resp, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "tell me something interesting", Options{})
	require.NoError(t, err)
	assert.Equal(t, session.ModeHybrid, resp.Mode)
	assert.NotEmpty(t, resp.RetrievedDocuments)
}

func TestProcessMessageExplicitModeOverride(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "s1", 0.9)

	// Keyword says document, override says general: override wins.
	resp, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "what does the document say?", Options{Mode: session.ModeGeneral})
	require.NoError(t, err)
	assert.Equal(t, session.ModeGeneral, resp.Mode)
	assert.Zero(t, f.embedder.calls)
}

func TestProcessMessageDocumentModeNoEvidence(t *testing.T) {
	f := newFixture(t)
	// File attached but every chunk scores below threshold.
	f.seedFile(t, "s1", 0.3, 0.2)

	resp, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "what does the report say?", Options{})
	require.NoError(t, err)

	assert.Equal(t, session.ModeDocument, resp.Mode)
	assert.Equal(t, 0.1, resp.Confidence)
	assert.Equal(t, noEvidenceResponse, resp.ResponseText)
	assert.Empty(t, resp.RetrievedDocuments)
	// The short circuit saves the generation call.
	assert.Zero(t, f.generator.calls)

	// Still a completed turn: user + canned assistant.
	stats := f.engine.SessionStats("s1")
	assert.Equal(t, 2, stats.MessageCount)
}

func TestProcessMessageInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "", Options{})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = f.engine.ProcessMessage(context.Background(), "alice", "s1", "query", Options{Mode: "turbo"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = f.engine.ProcessMessage(context.Background(), "", "s1", "query", Options{})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	// Rejected before any external call or session mutation.
	assert.Zero(t, f.embedder.calls)
	assert.Zero(t, f.generator.calls)
	assert.Equal(t, 0, f.engine.SessionStats("s1").MessageCount)
}

func TestProcessMessageGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.generator.err = errors.New("model overloaded")

	_, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "hello", Options{})
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))

	// The user turn stays recorded; no assistant half is appended.
	sess, ok := f.sessions.Get("s1")
	require.True(t, ok)
	require.Len(t, sess.History, 1)
	assert.Equal(t, session.RoleUser, sess.History[0].Role)
}

func TestProcessMessageDegradedStoreStillAnswers(t *testing.T) {
	// Uninitialized store: hybrid retrieval degrades to empty, the request
	// still completes through generation.
	adapter := vectorstore.NewAdapter(nil, 2, "stub-embed", nil)
	sessions := session.NewStore(nil)
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	gen := &stubGenerator{}
	ret := retriever.New(embedder, adapter, nil, retriever.Config{}, nil, nil, nil)
	eng := New(sessions, ret, assembler.New(assembler.Config{}), confidence.NewScorer(0, 0, 0), gen, adapter, nil, nil, Config{}, nil)

	sessions.GetOrCreate("alice", "s1")
	require.NoError(t, sessions.AddFile("s1", session.FileRef{FileID: "f1"}))

	resp, err := eng.ProcessMessage(context.Background(), "alice", "s1", "tell me a story", Options{})
	require.NoError(t, err)
	assert.Equal(t, session.ModeHybrid, resp.Mode)
	assert.Equal(t, 0.1, resp.Confidence)
	assert.Equal(t, 1, gen.calls)

	health := eng.Health(context.Background())
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.VectorStoreAvailable)
}

func TestProcessMessageMemoryEntriesEnterContext(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "summarize the call", Options{
		Memory: []assembler.MemoryEntry{
			{Tag: "TRANSCRIPT", Content: "the call ended at noon"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, f.generator.lastCtx, "[TRANSCRIPT] the call ended at noon")
}

func TestProcessMessageExcludeHistory(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ProcessMessage(context.Background(), "alice", "s1", "first question", Options{})
	require.NoError(t, err)

	f.generator.lastCtx = ""
	off := false
	_, err = f.engine.ProcessMessage(context.Background(), "alice", "s1", "second question", Options{IncludeHistory: &off})
	require.NoError(t, err)
	assert.NotContains(t, f.generator.lastCtx, "first question")
}

func TestHealthOK(t *testing.T) {
	f := newFixture(t)
	f.engine.ProcessMessage(context.Background(), "alice", "s1", "hello", Options{})

	health := f.engine.Health(context.Background())
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.VectorStoreAvailable)
	assert.Equal(t, 1, health.ActiveSessionCount)
}

func TestClearSession(t *testing.T) {
	f := newFixture(t)
	f.engine.ProcessMessage(context.Background(), "alice", "s1", "hello", Options{})
	require.Equal(t, 1, f.engine.Health(context.Background()).ActiveSessionCount)

	f.engine.ClearSession("s1")
	f.engine.ClearSession("s1")
	assert.Equal(t, 0, f.engine.Health(context.Background()).ActiveSessionCount)
}
