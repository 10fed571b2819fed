package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives events drained from an AsyncEmitter's buffer.
type Sink interface {
	Publish(event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event) error

func (f SinkFunc) Publish(event Event) error { return f(event) }

// AsyncEmitter buffers events on a channel drained by one background
// goroutine. When the buffer is full the event is dropped and counted;
// blocking the response path is never acceptable for analytics.
type AsyncEmitter struct {
	ch     chan Event
	sink   Sink
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	dropped int64

	done     chan struct{}
	closeOne sync.Once
}

// NewAsyncEmitter starts the drain goroutine. buffer <= 0 defaults to 256.
func NewAsyncEmitter(sink Sink, buffer int, logger *zap.Logger) *AsyncEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	e := &AsyncEmitter{
		ch:     make(chan Event, buffer),
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
	go e.drain()
	return e
}

func (e *AsyncEmitter) drain() {
	defer close(e.done)
	for event := range e.ch {
		if err := e.sink.Publish(event); err != nil {
			// Analytics failure is logged and forgotten.
			e.logger.Debug("event publish failed",
				zap.String("event", event.Name),
				zap.Error(err),
			)
		}
	}
}

// Emit enqueues an event, dropping it if the buffer is full or the
// emitter is closed.
func (e *AsyncEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.dropped++
		return
	}
	select {
	case e.ch <- event:
	default:
		e.dropped++
	}
}

// Dropped returns how many events were discarded due to a full buffer.
func (e *AsyncEmitter) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close stops the drain goroutine after the buffer is flushed.
func (e *AsyncEmitter) Close() error {
	e.closeOne.Do(func() {
		// The closed flag and the channel close happen under the same
		// lock Emit sends under, so a send can never race the close.
		e.mu.Lock()
		e.closed = true
		close(e.ch)
		e.mu.Unlock()
	})
	select {
	case <-e.done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

var _ Emitter = (*AsyncEmitter)(nil)
