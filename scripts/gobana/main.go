package main

import (
	"fmt"
	"os"
	"time"

	"CyberGuard/internal/logging"
	"CyberGuard/internal/sink"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <snapshot_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]

	snap, err := sink.ReadSnapshot(dir)
	if err != nil {
		logging.Fatal().Err(err).Str("dir", dir).Msg("Unable to read snapshot")
	}

	s := snap.Summary
	fmt.Printf("Snapshot %s: %d alerts, %d buckets, %d packets\n", s.Timestamp, s.TotalAlerts, s.TotalBuckets, s.TotalPackets)
	for attack, n := range s.AlertsByType {
		fmt.Printf("  %-14s %d\n", attack, n)
	}

	fmt.Println("Alerts:")
	for _, a := range snap.Alerts {
		fmt.Printf("  %s  %-13s  %-8s  %s -> %s  %s\n",
			time.UnixMilli(a.DetectedAt).UTC().Format(time.RFC3339), a.AttackType, a.Severity,
			a.SrcAddr, a.TargetAddr, a.Description)
	}
	fmt.Println("Traffic:")
	for _, b := range snap.Buckets {
		fmt.Printf("  %s  packets=%d alerts=%d\n", b.Label, b.Packets, b.Alerts)
	}
}
