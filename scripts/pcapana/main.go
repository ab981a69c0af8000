package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
	"CyberGuard/pkg/pcap"
)

var errEnough = errors.New("enough packets")

func main() {
	limit := flag.Int("n", 5, "Number of parsed packets to print")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go [-n count] <path_to_pcap_file>")
		os.Exit(1)
	}

	r, err := pcap.NewReader(flag.Arg(0), pcap.Options{BatchSize: 1})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open capture")
	}
	defer r.Close()

	i := 0
	stats, err := r.ReadBatches(context.Background(), func(batch []model.Packet) error {
		for _, p := range batch {
			i++
			fmt.Printf("[%s] %s:%d -> %s:%d proto=%s flags=%s len=%d payload=%q\n",
				time.UnixMilli(p.ObservedAt).Format("15:04:05.000"),
				p.SrcAddr, p.SrcPort, p.DstAddr, p.DstPort,
				p.Protocol, p.Flags, p.LengthBytes, p.PayloadSample)
		}
		if i >= *limit {
			return errEnough
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnough) {
		logging.Fatal().Err(err).Msg("Failed to read capture")
	}
	fmt.Printf("frames=%d parsed=%d skipped=%d\n", stats.Frames, stats.Parsed, stats.Skipped)
}
