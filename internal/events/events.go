// Package events decouples analytics emission from the response path.
// Publishing is fire-and-forget; an emitter failure must never affect the
// primary operation.
package events

import (
	"time"
)

// Event names emitted by the engine.
const (
	ChunksRetrieved = "rag_chunks_retrieved"
	MemoryUsed      = "memory_used"
	ErrorOccurred   = "error_occurred"
)

// Event is one analytics record.
type Event struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Emitter publishes events. Implementations must not block the caller
// beyond a trivial enqueue and must swallow their own failures.
type Emitter interface {
	Emit(event Event)
	Close() error
}

// NopEmitter discards everything.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
func (NopEmitter) Close() error {
	return nil
}

var _ Emitter = NopEmitter{}
