package main

import (
	"flag"
	"os"
	"time"

	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
	"CyberGuard/internal/source/generator"
	"CyberGuard/pkg/pcap"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	ticks := flag.Int("ticks", 1000, "Number of generator ticks to record")
	interval := flag.Duration("interval", 200*time.Millisecond, "Capture time between ticks")
	seed := flag.Uint64("seed", 1, "Generator seed")
	attackProb := flag.Float64("attack-prob", 0.05, "Per-packet chance of a random attack shape")
	every := flag.Int("burst-every", 100, "Insert a forced attack burst every N ticks (0 disables)")
	burst := flag.Int("burst", 20, "Packets per forced attack burst")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()

	w, err := pcap.NewWriter(f)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to write pcap header")
	}

	clock := time.Now().Add(-time.Duration(*ticks) * *interval)
	gen := generator.New(generator.Config{Seed: *seed, AttackProbability: *attackProb},
		generator.WithClock(func() time.Time { return clock }))

	// Cycle through the attack shapes for the forced bursts.
	shapes := []model.AttackType{model.AttackPortScan, model.AttackSynFlood, model.AttackBruteForce, model.AttackSQLInjection}

	logging.Info().Int("ticks", *ticks).Str("file", *outputFile).Msg("Generating capture...")
	written := 0
	for i := 0; i < *ticks; i++ {
		batch := gen.NextBatch()
		if *every > 0 && i > 0 && i%*every == 0 {
			batch = append(batch, gen.Forced(shapes[(i / *every - 1)%len(shapes)], *burst)...)
		}
		for _, p := range batch {
			if err := w.WritePacket(p); err != nil {
				logging.Fatal().Err(err).Msg("Failed to write packet")
			}
			written++
		}
		clock = clock.Add(*interval)
	}
	logging.Info().Int("packets", written).Str("file", *outputFile).Msg("Successfully generated capture")
}
