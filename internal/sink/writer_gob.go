package sink

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/factory"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"

	"github.com/goccy/go-json"
)

// TimestampLayout names snapshot directories.
const TimestampLayout = "2006-01-02_15-04-05.000"

const (
	alertsFile  = "alerts.gob"
	trafficFile = "traffic.gob"
	summaryFile = "summary.json"
)

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef) (model.Writer, error) {
		if def.Gob.RootPath == "" {
			return nil, errors.New("gob writer requires gob.root_path")
		}
		return NewGobWriter(def.Gob.RootPath, config.Duration(def.SnapshotInterval)), nil
	})
}

// Summary describes one snapshot directory.
type Summary struct {
	Timestamp     string         `json:"timestamp"`
	TotalAlerts   int            `json:"total_alerts"`
	AlertsByType  map[string]int `json:"alerts_by_type"`
	TotalBuckets  int            `json:"total_buckets"`
	TotalPackets  int            `json:"total_packets"`
	FirstBucketAt string         `json:"first_bucket_at,omitempty"`
	LastBucketAt  string         `json:"last_bucket_at,omitempty"`
}

// GobWriter writes each batch into a timestamped directory under rootPath.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

func (w *GobWriter) Name() string { return "gob" }

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write serializes alerts and buckets with gob and adds a JSON summary.
func (w *GobWriter) Write(_ context.Context, batch model.SinkBatch) error {
	ts := batch.Timestamp.UTC().Format(TimestampLayout)
	dir := filepath.Join(w.rootPath, ts)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if len(batch.Alerts) > 0 {
		if err := writeGob(filepath.Join(dir, alertsFile), batch.Alerts); err != nil {
			return err
		}
	}
	if len(batch.Buckets) > 0 {
		if err := writeGob(filepath.Join(dir, trafficFile), batch.Buckets); err != nil {
			return err
		}
	}

	summary := Summarize(ts, batch)
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, summaryFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	logging.Debug().Str("dir", dir).Int("alerts", summary.TotalAlerts).Int("buckets", summary.TotalBuckets).Msg("Snapshot written")
	return nil
}

// Summarize computes the summary.json contents for a batch.
func Summarize(ts string, batch model.SinkBatch) Summary {
	s := Summary{
		Timestamp:    ts,
		TotalAlerts:  len(batch.Alerts),
		AlertsByType: make(map[string]int),
		TotalBuckets: len(batch.Buckets),
	}
	for _, a := range batch.Alerts {
		s.AlertsByType[a.AttackType.Slug()]++
	}
	for _, b := range batch.Buckets {
		s.TotalPackets += b.Packets
	}
	if n := len(batch.Buckets); n > 0 {
		s.FirstBucketAt = time.Unix(batch.Buckets[0].Second, 0).UTC().Format(time.RFC3339)
		s.LastBucketAt = time.Unix(batch.Buckets[n-1].Second, 0).UTC().Format(time.RFC3339)
	}
	return s
}

func writeGob(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		return fmt.Errorf("failed to encode gob for file '%s': %w", path, err)
	}
	return nil
}

// Snapshot is the decoded content of one snapshot directory.
type Snapshot struct {
	Summary Summary
	Alerts  []model.Alert
	Buckets []model.TrafficBucket
}

// ReadSnapshot loads a directory written by GobWriter.
func ReadSnapshot(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(data, &snap.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if err := readGob(filepath.Join(dir, alertsFile), &snap.Alerts); err != nil {
		return nil, err
	}
	if err := readGob(filepath.Join(dir, trafficFile), &snap.Buckets); err != nil {
		return nil, err
	}
	return snap, nil
}

func readGob(path string, v any) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", path, err)
	}
	defer file.Close()
	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("failed to decode gob file '%s': %w", path, err)
	}
	return nil
}
