package persistent

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"
)

// PacketContainer holds both the raw frame and the parsed packet. Raw may be
// nil for encodings that do not need it.
type PacketContainer struct {
	Raw    gopacket.Packet
	Packet model.Packet
}

// Worker records captured traffic to a single file in the background.
type Worker struct {
	packetChan chan *PacketContainer
	file       *os.File
	log        zerolog.Logger
	done       chan struct{}
	stopOnce   sync.Once
	dropped    int
}

// NewWorker creates the output file and starts the writer goroutine.
func NewWorker(cfg config.PersistenceConfig, snapLen int32) (*Worker, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory: %w", err)
	}

	bufferSize := cfg.ChannelBufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	file, err := createOutputFile(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	var run func(*bufio.Writer) error
	w := &Worker{
		packetChan: make(chan *PacketContainer, bufferSize),
		file:       file,
		log:        logging.Component("persistence"),
		done:       make(chan struct{}),
	}

	buffered := bufio.NewWriter(file)
	switch cfg.Encoding {
	case "gob":
		run = w.runGob
	case "text":
		run = w.runText
	case "pcap":
		// Only Ethernet captures are recorded.
		pw := pcapgo.NewWriter(buffered)
		if err := pw.WriteFileHeader(uint32(snapLen), layers.LinkTypeEthernet); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write pcap file header: %w", err)
		}
		run = w.runPcap(pw)
	default:
		file.Close()
		return nil, fmt.Errorf("unknown persistence encoding %q", cfg.Encoding)
	}

	go func() {
		defer close(w.done)
		if err := run(buffered); err != nil {
			w.log.Error().Err(err).Msg("Persistent worker failed")
		}
		if err := buffered.Flush(); err != nil {
			w.log.Error().Err(err).Msg("Error flushing capture file")
		}
		if err := file.Close(); err != nil {
			w.log.Error().Err(err).Msg("Error closing capture file")
		}
	}()

	w.log.Info().Str("encoding", cfg.Encoding).Str("file", file.Name()).Msg("Persistent worker started")
	return w, nil
}

func createOutputFile(cfg config.PersistenceConfig) (*os.File, error) {
	ext := ".log"
	switch cfg.Encoding {
	case "gob":
		ext = ".gob"
	case "pcap":
		ext = ".pcap"
	}
	fileName := fmt.Sprintf("%s%s", time.Now().Format("2006-01-02_15-04-05.000"), ext)
	return os.OpenFile(filepath.Join(cfg.Path, fileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

// Path returns the file being written.
func (w *Worker) Path() string {
	return w.file.Name()
}

func (w *Worker) runGob(out *bufio.Writer) error {
	encoder := gob.NewEncoder(out)
	for c := range w.packetChan {
		if err := encoder.Encode(c.Packet); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
	}
	return nil
}

func (w *Worker) runText(out *bufio.Writer) error {
	for c := range w.packetChan {
		p := c.Packet
		line := fmt.Sprintf("%s - %s:%d -> %s:%d, Proto: %s, Flags: %s, Len: %d\n",
			time.UnixMilli(p.ObservedAt).Format("2006-01-02 15:04:05.000"),
			p.SrcAddr, p.SrcPort,
			p.DstAddr, p.DstPort,
			p.Protocol, p.Flags, p.LengthBytes,
		)
		if _, err := out.WriteString(line); err != nil {
			return fmt.Errorf("text write: %w", err)
		}
	}
	return nil
}

func (w *Worker) runPcap(pw *pcapgo.Writer) func(*bufio.Writer) error {
	return func(*bufio.Writer) error {
		for c := range w.packetChan {
			if c.Raw == nil {
				continue
			}
			if err := pw.WritePacket(c.Raw.Metadata().CaptureInfo, c.Raw.Data()); err != nil {
				return fmt.Errorf("pcap write: %w", err)
			}
		}
		return nil
	}
}

// Enqueue hands a container to the writer without blocking. It reports
// false when the buffer is full and the container was dropped.
func (w *Worker) Enqueue(c *PacketContainer) bool {
	select {
	case w.packetChan <- c:
		return true
	default:
		w.dropped++
		if w.dropped%1000 == 1 {
			w.log.Warn().Int("dropped", w.dropped).Msg("Channel is full, dropping packets")
		}
		return false
	}
}

// Stop closes the queue, waits for pending containers to be written and
// closes the file. Enqueue must not be called afterwards.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.packetChan)
		<-w.done
		w.log.Info().Str("file", w.file.Name()).Msg("Persistent worker stopped and file closed.")
	})
}
