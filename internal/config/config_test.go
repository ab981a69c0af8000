package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if cfg.Engine.WindowCapacity != 500 || cfg.Engine.AlertCapacity != 50 || cfg.Engine.SeriesLength != 30 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if Duration(cfg.Engine.TickInterval) != 200*time.Millisecond {
		t.Errorf("tick interval = %s", cfg.Engine.TickInterval)
	}
	if Duration(cfg.Engine.SuppressWindow) != 5*time.Second {
		t.Errorf("suppress window = %s", cfg.Engine.SuppressWindow)
	}
	if *cfg.Generator.AttackProbability != 0.05 {
		t.Errorf("attack probability = %v", *cfg.Generator.AttackProbability)
	}
	if len(cfg.Rules.Enabled) != 4 || cfg.Rules.SQLSignatures[0] != "' OR '1'='1" {
		t.Errorf("rules defaults = %+v", cfg.Rules)
	}
}

func TestParseOverrides(t *testing.T) {
	data := []byte(`
engine:
  source: nats
  tick_interval: 100ms
  alert_capacity: 20
rules:
  enabled: [port_scan, brute_force]
  brute_force_port: 2222
generator:
  attack_probability: 0
sinks:
  writers:
    - type: gob
      enabled: true
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Engine.Source != "nats" || cfg.Engine.AlertCapacity != 20 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Rules.BruteForcePort != 2222 || len(cfg.Rules.Enabled) != 2 {
		t.Errorf("rules = %+v", cfg.Rules)
	}
	if *cfg.Generator.AttackProbability != 0 {
		t.Errorf("explicit zero attack probability was overwritten: %v", *cfg.Generator.AttackProbability)
	}
	w := cfg.Sinks.Writers[0]
	if w.Gob.RootPath != "data/snapshots" || w.SnapshotInterval != "10s" {
		t.Errorf("writer defaults = %+v", w)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	data := []byte(`
engine:
  source: carrier-pigeon
  tick_interval: soon
  window_capacity: 10
  analysis_limit: 20
alerter:
  min_severity: apocalyptic
sinks:
  writers:
    - type: s3
`)
	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"engine.source", "engine.tick_interval", "analysis_limit", "alerter.min_severity", "unknown writer type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestPcapSourceNeedsDevice(t *testing.T) {
	if _, err := Parse([]byte("engine:\n  source: pcap\n")); err == nil {
		t.Error("pcap source without interface or file should fail validation")
	}
	if _, err := Parse([]byte("engine:\n  source: pcap\ncapture:\n  file: in.pcap\n")); err != nil {
		t.Errorf("pcap source with file rejected: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if cfg.Engine.Source == "" {
		t.Error("sample config has no source")
	}
}
