package session

import (
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// shardCount partitions sessions so unrelated sessions never contend on one
// lock. Must be a power of two.
const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Store is a sharded in-memory session registry with creation-on-first-use
// semantics. Concurrent requests to the same session interleave their
// appends last-write-wins; the store guarantees each append lands exactly
// once and never exposes a half-constructed session.
type Store struct {
	shards [shardCount]*shard
	logger *zap.Logger

	// timeNow is swappable for tests.
	timeNow func() time.Time
}

// NewStore creates an empty session store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger:  logger,
		timeNow: time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *Store) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return s.shards[h.Sum32()&(shardCount-1)]
}

// GetOrCreate returns a snapshot of the session, creating it with empty
// history and mode general on first reference. The session is fully
// constructed before it is published to the map.
func (s *Store) GetOrCreate(userID, sessionID string) Session {
	sh := s.shardFor(sessionID)

	sh.mu.RLock()
	if sess, ok := sh.sessions[sessionID]; ok {
		snap := sess.clone()
		sh.mu.RUnlock()
		return snap
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sess, ok := sh.sessions[sessionID]; ok {
		return sess.clone()
	}

	sess := &Session{
		UserID:       userID,
		SessionID:    sessionID,
		Mode:         ModeGeneral,
		LastActivity: s.timeNow(),
	}
	sh.sessions[sessionID] = sess

	s.logger.Debug("session created",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)
	return sess.clone()
}

// Get returns a snapshot of an existing session.
func (s *Store) Get(sessionID string) (Session, bool) {
	sh := s.shardFor(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// RecordTurn appends a turn to the session history. The turn's timestamp is
// filled if zero.
func (s *Store) RecordTurn(sessionID string, turn Turn) error {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.timeNow()
	}
	sess.History = append(sess.History, turn)
	sess.LastActivity = s.timeNow()
	return nil
}

// AddFile appends a file reference to the session.
func (s *Store) AddFile(sessionID string, ref FileRef) error {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if ref.UploadDate.IsZero() {
		ref.UploadDate = s.timeNow()
	}
	sess.Files = append(sess.Files, ref)
	sess.LastActivity = s.timeNow()
	return nil
}

// SetMode updates the session's sticky mode.
func (s *Store) SetMode(sessionID string, mode Mode) error {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Mode = mode
	return nil
}

// Stats returns the session summary. Unknown sessions yield zero values,
// not an error.
func (s *Store) Stats(sessionID string) Stats {
	sh := s.shardFor(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[sessionID]
	if !ok {
		return Stats{Mode: ModeGeneral}
	}
	return Stats{
		MessageCount: len(sess.History),
		FileCount:    len(sess.Files),
		Mode:         sess.Mode,
		LastActivity: sess.LastActivity,
		Exists:       true,
	}
}

// Clear removes the session entirely. Idempotent.
func (s *Store) Clear(sessionID string) {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.sessions, sessionID)
}

// Count returns the number of live sessions across all shards.
func (s *Store) Count() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}
