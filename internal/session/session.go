// Package session provides the in-memory session registry. State is
// volatile for the process lifetime; durable persistence is deliberately
// out of scope.
package session

import (
	"errors"
	"time"
)

// Mode selects how a response is grounded.
type Mode string

const (
	// ModeGeneral answers from model knowledge, no retrieval.
	ModeGeneral Mode = "general"

	// ModeDocument grounds the answer in retrieved chunks only.
	ModeDocument Mode = "document"

	// ModeHybrid blends retrieved chunks with general knowledge.
	ModeHybrid Mode = "hybrid"
)

// ValidMode reports whether m is a recognized mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeGeneral, ModeDocument, ModeHybrid:
		return true
	}
	return false
}

// Role classifies a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ErrSessionNotFound indicates an operation on an unknown session where the
// operation requires one to exist.
var ErrSessionNotFound = errors.New("session not found")

// Turn is one conversation message. Immutable once appended.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// FileRef records a completed ingestion. Never mutated afterward.
type FileRef struct {
	FileID     string
	Filename   string
	FileType   string
	UploadDate time.Time
	ChunkCount int
}

// Session is the per-conversation state. Values handed out by the store are
// snapshots; all mutation goes through store methods so no caller ever holds
// a reference into shared state.
type Session struct {
	UserID       string
	SessionID    string
	History      []Turn
	Files        []FileRef
	Mode         Mode
	LastActivity time.Time
}

// HasFiles reports whether any ingestion completed for this session.
func (s *Session) HasFiles() bool {
	return len(s.Files) > 0
}

// FileIDs returns the IDs of all uploaded files.
func (s *Session) FileIDs() []string {
	ids := make([]string, len(s.Files))
	for i, f := range s.Files {
		ids[i] = f.FileID
	}
	return ids
}

// RecentTurns returns the last n turns, oldest first.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	return s.History[len(s.History)-n:]
}

// Stats is the pure-read summary of a session. Zero values for an unknown
// session.
type Stats struct {
	MessageCount int       `json:"message_count"`
	FileCount    int       `json:"file_count"`
	Mode         Mode      `json:"mode"`
	LastActivity time.Time `json:"last_activity"`
	Exists       bool      `json:"exists"`
}

func (s *Session) clone() Session {
	cp := *s
	cp.History = make([]Turn, len(s.History))
	copy(cp.History, s.History)
	cp.Files = make([]FileRef, len(s.Files))
	copy(cp.Files, s.Files)
	return cp
}
