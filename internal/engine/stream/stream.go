// Package stream feeds packets from an external transport into the
// pipeline: NATS batches published by ns-probe, or a local capture.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
	"CyberGuard/internal/probe"
	"CyberGuard/pkg/pcap"

	"github.com/rs/zerolog"
)

var ErrNoCaptureSource = errors.New("capture needs either an interface or a file")

// Feeder accepts externally produced batches. *pipeline.Pipeline
// implements it.
type Feeder interface {
	Submit(ctx context.Context, batch []model.Packet) error
}

// NATSStream consumes packet batches from NATS and hands them to a feeder.
type NATSStream struct {
	cfg    config.ProbeConfig
	sub    *probe.Subscriber
	feeder Feeder
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewNATSStream(cfg config.ProbeConfig, feeder Feeder) *NATSStream {
	return &NATSStream{cfg: cfg, feeder: feeder, log: logging.Component("stream.nats")}
}

// Start connects to NATS and begins forwarding batches.
func (s *NATSStream) Start(ctx context.Context) error {
	s.log.Info().Str("url", s.cfg.NATSURL).Msg("NATS stream starting")
	sub, err := probe.NewSubscriber(s.cfg)
	if err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := sub.Start(submitHandler(s.ctx, s.feeder, s.log)); err != nil {
		sub.Close()
		s.cancel()
		return err
	}
	s.sub = sub
	return nil
}

// Stop unsubscribes and closes the connection. Batches already handed to
// the feeder are processed by the pipeline.
func (s *NATSStream) Stop() {
	s.log.Info().Msg("NATS stream stopping...")
	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		s.sub.Close()
	}
	s.log.Info().Msg("NATS stream stopped")
}

func submitHandler(ctx context.Context, feeder Feeder, log zerolog.Logger) probe.BatchHandler {
	return func(batch []model.Packet) {
		if err := feeder.Submit(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Int("packets", len(batch)).Msg("Failed to submit batch")
		}
	}
}

// CaptureStream reads a live interface or a capture file and hands batches
// to a feeder.
type CaptureStream struct {
	reader *pcap.Reader
	feeder Feeder
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger

	mu    sync.Mutex
	stats pcap.Stats
	err   error
}

// NewCaptureStream opens cfg.File when set, otherwise cfg.Interface.
func NewCaptureStream(cfg config.CaptureConfig, feeder Feeder) (*CaptureStream, error) {
	opts := pcap.Options{
		BatchSize:    cfg.BatchSize,
		PayloadBytes: cfg.PayloadBytes,
	}
	var (
		r   *pcap.Reader
		err error
	)
	switch {
	case cfg.File != "":
		r, err = pcap.NewReader(cfg.File, opts)
	case cfg.Interface != "":
		r, err = pcap.OpenLive(cfg.Interface, cfg.SnapshotLen, cfg.Promiscuous, cfg.BPFFilter, opts)
	default:
		return nil, ErrNoCaptureSource
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	return &CaptureStream{reader: r, feeder: feeder, log: logging.Component("stream.capture")}, nil
}

// Start begins reading in the background.
func (s *CaptureStream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		stats, err := s.reader.ReadBatches(ctx, func(batch []model.Packet) error {
			return s.feeder.Submit(ctx, batch)
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.mu.Lock()
		s.stats, s.err = stats, err
		s.mu.Unlock()

		ev := s.log.Info()
		if err != nil {
			ev = s.log.Error().Err(err)
		}
		ev.Int("frames", stats.Frames).Int("parsed", stats.Parsed).Int("skipped", stats.Skipped).Msg("Capture finished")
	}()
}

// Wait blocks until the capture ends and returns its outcome.
func (s *CaptureStream) Wait() (pcap.Stats, error) {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.err
}

// Stop cancels reading, waits for the reader goroutine and releases the
// capture handle.
func (s *CaptureStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.reader.Close()
}
