// Package pcap reads frames from capture files or live interfaces and hands
// them on as parsed packet batches.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"CyberGuard/internal/engine/protocol"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/metrics"
	"CyberGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

const DefaultBatchSize = 32

// Options controls batching and parsing.
type Options struct {
	BatchSize    int
	PayloadBytes int
	// FlushInterval publishes a partial batch after this long. Zero waits
	// for a full batch or end of input.
	FlushInterval time.Duration
	// OnFrame, if set, sees every raw frame before parsing.
	OnFrame func(gopacket.Packet)
}

// Stats counts what a ReadBatches call saw.
type Stats struct {
	Frames  int
	Parsed  int
	Skipped int
	Batches int
}

// Reader reads packets from a pcap file or a live handle.
type Reader struct {
	src    gopacket.PacketDataSource
	link   gopacket.Decoder
	closer io.Closer
	name   string
	opts   Options
}

// NewReader opens a capture file for offline reading.
func NewReader(filePath string, opts Options) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{src: r, link: r.LinkType(), closer: f, name: filePath, opts: opts}, nil
}

// OpenLive starts a live capture on iface. filter is an optional BPF
// expression.
func OpenLive(iface string, snapLen int32, promisc bool, filter string, opts Options) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snapLen, promisc, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", iface, err)
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("invalid bpf filter %q: %w", filter, err)
		}
	}
	return &Reader{src: handle, link: handle.LinkType(), closer: closerFunc(handle.Close), name: iface, opts: opts}, nil
}

type closerFunc func()

func (f closerFunc) Close() error { f(); return nil }

// Close releases the file or capture handle.
func (r *Reader) Close() {
	r.closer.Close()
}

// ReadBatches parses frames into packets and calls fn with each batch in
// capture order. It returns when the input ends, ctx is done or fn fails.
// Frames that do not parse are skipped.
func (r *Reader) ReadBatches(ctx context.Context, fn func([]model.Packet) error) (Stats, error) {
	size := r.opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	parseOpts := protocol.Options{PayloadBytes: r.opts.PayloadBytes}

	var flush <-chan time.Time
	if r.opts.FlushInterval > 0 {
		ticker := time.NewTicker(r.opts.FlushInterval)
		defer ticker.Stop()
		flush = ticker.C
	}

	var stats Stats
	batch := make([]model.Packet, 0, size)
	emit := func() error {
		if len(batch) == 0 {
			return nil
		}
		stats.Batches++
		err := fn(batch)
		batch = make([]model.Packet, 0, size)
		return err
	}

	source := gopacket.NewPacketSource(r.src, r.link)
	packets := source.Packets()
	for {
		select {
		case <-ctx.Done():
			if err := emit(); err != nil {
				return stats, err
			}
			return stats, ctx.Err()
		case <-flush:
			if err := emit(); err != nil {
				return stats, err
			}
		case packet, ok := <-packets:
			if !ok {
				return stats, emit()
			}
			stats.Frames++
			if r.opts.OnFrame != nil {
				r.opts.OnFrame(packet)
			}
			p, err := protocol.ParsePacket(packet, parseOpts)
			if err != nil {
				stats.Skipped++
				metrics.RecordDropped(r.name, reason(err))
				logging.Debug().Err(err).Str("source", r.name).Msg("Skipping frame")
				continue
			}
			stats.Parsed++
			batch = append(batch, p)
			if len(batch) >= size {
				if err := emit(); err != nil {
					return stats, err
				}
			}
		}
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrNotIPv4):
		return "not_ipv4"
	case errors.Is(err, protocol.ErrUnsupportedTransport):
		return "unsupported_transport"
	}
	return "decode"
}
