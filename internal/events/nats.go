package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSSink publishes events to NATS subjects {prefix}.{event_name}.
type NATSSink struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *zap.Logger
}

// NewNATSSink connects to NATS. The connection reconnects automatically;
// publish failures while disconnected are buffered by the client and
// dropped past its limits, which is acceptable for analytics.
func NewNATSSink(url, subjectPrefix string, logger *zap.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSSink{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}, nil
}

// Publish serializes the event as JSON and fires it at its subject.
func (s *NATSSink) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	subject := s.subjectPrefix + "." + event.Name
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}

var _ Sink = (*NATSSink)(nil)
