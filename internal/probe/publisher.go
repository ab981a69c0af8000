package probe

import (
	"fmt"

	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing packet batches to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("cyberguard-probe"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logging.Info().Str("url", cfg.NATSURL).Str("subject", cfg.Subject).Msg("Connected to NATS server")
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish encodes a batch and publishes it as a single message.
func (p *Publisher) Publish(batch []model.Packet) error {
	if len(batch) == 0 {
		return nil
	}
	data, err := EncodeBatch(batch)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			logging.Warn().Err(err).Msg("NATS drain failed")
		}
		logging.Info().Msg("NATS connection drained and closed.")
	}
}
