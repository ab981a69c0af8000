package probe

import (
	"fmt"

	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/metrics"
	"CyberGuard/internal/model"

	"github.com/nats-io/nats.go"
)

// BatchHandler processes one decoded batch.
type BatchHandler func(batch []model.Packet)

// Subscriber is responsible for subscribing to a NATS subject and decoding
// packet batches.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("cyberguard-engine"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logging.Info().Str("url", cfg.NATSURL).Msg("Connected to NATS server")
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the configured subject and hands every decoded batch
// to handler. Invalid entries are dropped and logged.
func (s *Subscriber) Start(handler BatchHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		handleMessage(msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %q: %w", s.subject, err)
	}
	s.sub = sub
	logging.Info().Str("subject", s.subject).Msg("Subscribed. Waiting for messages...")
	return nil
}

func handleMessage(data []byte, handler BatchHandler) {
	batch, err := DecodeBatch(data)
	if err != nil {
		metrics.RecordDropped("nats", "decode")
		logging.Warn().Err(err).Int("kept", len(batch)).Msg("Rejected packets in NATS message")
	}
	if len(batch) > 0 {
		handler(batch)
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			logging.Warn().Err(err).Msg("NATS unsubscribe failed")
		}
	}
	if s.nc != nil {
		s.nc.Close()
		logging.Info().Msg("NATS connection closed.")
	}
}
