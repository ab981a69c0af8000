package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"CyberGuard/internal/model"

	"gopkg.in/yaml.v3"
)

// EngineConfig sizes the detection pipeline.
type EngineConfig struct {
	// Source selects where packets come from: "generator", "nats" or "pcap".
	Source              string `yaml:"source"`
	TickInterval        string `yaml:"tick_interval"`
	WindowCapacity      int    `yaml:"window_capacity"`
	AnalysisLimit       int    `yaml:"analysis_limit"`
	AlertCapacity       int    `yaml:"alert_capacity"`
	SuppressWindow      string `yaml:"suppress_window"`
	SeriesLength        int    `yaml:"series_length"`
	InjectBurst         int    `yaml:"inject_burst"`
	SizeOfPacketChannel int    `yaml:"size_of_packet_channel"`
	TouchedOnly         bool   `yaml:"touched_only"`
}

// RulesConfig selects and tunes the detection rules.
type RulesConfig struct {
	Enabled               []string `yaml:"enabled"`
	PortScanDistinctPorts int      `yaml:"port_scan_distinct_ports"`
	SynFloodPackets       int      `yaml:"syn_flood_packets"`
	BruteForceAttempts    int      `yaml:"brute_force_attempts"`
	BruteForcePort        uint16   `yaml:"brute_force_port"`
	SQLSignatures         []string `yaml:"sql_signatures"`
}

// GeneratorConfig tunes the synthetic traffic source.
type GeneratorConfig struct {
	Seed              uint64   `yaml:"seed"`
	IncomingRatio     float64  `yaml:"incoming_ratio"`
	AttackProbability *float64 `yaml:"attack_probability"`
	MinBurst          int      `yaml:"min_burst"`
	MaxBurst          int      `yaml:"max_burst"`
}

// ProbeConfig holds the NATS transport settings shared by ns-probe and the
// engine's subscriber.
type ProbeConfig struct {
	NATSURL   string `yaml:"nats_url"`
	Subject   string `yaml:"subject"`
	BatchSize int    `yaml:"batch_size"`
	// FlushInterval bounds how long a partial batch waits before publishing.
	FlushInterval string            `yaml:"flush_interval"`
	Persistence   PersistenceConfig `yaml:"persistence"`
}

// PersistenceConfig controls on-disk recording of captured traffic.
type PersistenceConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	Encoding          string `yaml:"encoding"` // "gob", "text" or "pcap"
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
}

// CaptureConfig describes the live or offline capture device.
type CaptureConfig struct {
	Interface    string `yaml:"interface"`
	File         string `yaml:"file"`
	SnapshotLen  int32  `yaml:"snapshot_len"`
	Promiscuous  bool   `yaml:"promiscuous"`
	BPFFilter    string `yaml:"bpf_filter"`
	BatchSize    int    `yaml:"batch_size"`
	PayloadBytes int    `yaml:"payload_bytes"`
}

// AIConfig configures the OpenAI-compatible analysis backend.
type AIConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	GRPCLisenAddr string `yaml:"grpc_listen_addr"`
}

// EnrichmentConfig controls on-demand alert analysis in the engine.
type EnrichmentConfig struct {
	Enabled bool `yaml:"enabled"`
	// Mode is "grpc" to call ns-ai, or "direct" to call the model API in process.
	Mode             string `yaml:"mode"`
	ServiceAddr      string `yaml:"service_addr"`
	Timeout          string `yaml:"timeout"`
	AutoMinSeverity  string `yaml:"auto_min_severity"`
	MaxConsecutive   uint32 `yaml:"max_consecutive_failures"`
	OpenStateTimeout string `yaml:"open_state_timeout"`
}

// AIAnalysisConfig lets the alerter attach an analysis to its digest.
type AIAnalysisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceAddr string `yaml:"service_addr"`
}

// AlerterConfig controls the periodic email digest of alerts.
type AlerterConfig struct {
	Enabled       bool             `yaml:"enabled"`
	CheckInterval string           `yaml:"check_interval"`
	MinSeverity   string           `yaml:"min_severity"`
	AIAnalysis    AIAnalysisConfig `yaml:"ai_analysis"`
}

// SMTPConfig is used by the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// GobConfig holds settings for the local snapshot writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// WriterDef defines one sink writer.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	Gob              GobConfig        `yaml:"gob"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
}

// SinksConfig lists the writers that persist alerts and traffic buckets.
type SinksConfig struct {
	Writers []WriterDef `yaml:"writers"`
}

// APIConfig holds the HTTP query server settings.
type APIConfig struct {
	HttpListenAddr  string `yaml:"http_listen_addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Caller bool   `yaml:"caller"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Rules      RulesConfig      `yaml:"rules"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Probe      ProbeConfig      `yaml:"probe"`
	Capture    CaptureConfig    `yaml:"capture"`
	AI         AIConfig         `yaml:"ai"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Sinks      SinksConfig      `yaml:"sinks"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// LoadConfig reads the configuration from a YAML file, applies defaults and
// validates the result.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes the same way LoadConfig does.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	e := &c.Engine
	setString(&e.Source, "generator")
	setString(&e.TickInterval, "200ms")
	setInt(&e.WindowCapacity, 500)
	setInt(&e.AnalysisLimit, 500)
	setInt(&e.AlertCapacity, 50)
	setString(&e.SuppressWindow, "5s")
	setInt(&e.SeriesLength, 30)
	setInt(&e.InjectBurst, 15)
	setInt(&e.SizeOfPacketChannel, 64)

	r := &c.Rules
	if len(r.Enabled) == 0 {
		r.Enabled = []string{"port_scan", "syn_flood", "brute_force", "sql_injection"}
	}
	setInt(&r.PortScanDistinctPorts, 5)
	setInt(&r.SynFloodPackets, 15)
	setInt(&r.BruteForceAttempts, 8)
	if r.BruteForcePort == 0 {
		r.BruteForcePort = 22
	}
	if len(r.SQLSignatures) == 0 {
		r.SQLSignatures = []string{"' OR '1'='1"}
	}

	g := &c.Generator
	if g.IncomingRatio == 0 {
		g.IncomingRatio = 0.7
	}
	if g.AttackProbability == nil {
		p := 0.05
		g.AttackProbability = &p
	}
	setInt(&g.MinBurst, 1)
	setInt(&g.MaxBurst, 3)

	p := &c.Probe
	setString(&p.NATSURL, "nats://127.0.0.1:4222")
	setString(&p.Subject, "cyberguard.packets")
	setInt(&p.BatchSize, 32)
	setString(&p.FlushInterval, "200ms")
	setString(&p.Persistence.Encoding, "pcap")
	setString(&p.Persistence.Path, "data/capture")
	setInt(&p.Persistence.ChannelBufferSize, 10000)

	cp := &c.Capture
	if cp.SnapshotLen == 0 {
		cp.SnapshotLen = 1600
	}
	setInt(&cp.BatchSize, 32)
	setInt(&cp.PayloadBytes, 128)

	setString(&c.AI.Model, "gpt-4o-mini")
	setString(&c.AI.GRPCLisenAddr, ":50052")

	en := &c.Enrichment
	setString(&en.Mode, "grpc")
	setString(&en.ServiceAddr, "127.0.0.1:50052")
	setString(&en.Timeout, "60s")
	if en.MaxConsecutive == 0 {
		en.MaxConsecutive = 3
	}
	setString(&en.OpenStateTimeout, "30s")

	a := &c.Alerter
	setString(&a.CheckInterval, "1m")
	setString(&a.MinSeverity, "high")
	setString(&a.AIAnalysis.ServiceAddr, en.ServiceAddr)

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	for i := range c.Sinks.Writers {
		w := &c.Sinks.Writers[i]
		setString(&w.SnapshotInterval, "10s")
		if w.Type == "gob" {
			setString(&w.Gob.RootPath, "data/snapshots")
		}
		if w.Type == "clickhouse" {
			setString(&w.ClickHouse.Host, "127.0.0.1")
			setInt(&w.ClickHouse.Port, 9000)
			setString(&w.ClickHouse.Database, "default")
			setString(&w.ClickHouse.Username, "default")
		}
	}

	setString(&c.API.HttpListenAddr, ":8080")
	setString(&c.API.ShutdownTimeout, "5s")

	setString(&c.Log.Level, "info")
	setString(&c.Log.Format, "json")
}

// Validate reports every configuration problem it finds, joined.
func (c *Config) Validate() error {
	var errs []error

	switch c.Engine.Source {
	case "generator", "nats", "pcap":
	default:
		errs = append(errs, fmt.Errorf("engine.source: unknown source %q", c.Engine.Source))
	}
	errs = appendDuration(errs, "engine.tick_interval", c.Engine.TickInterval)
	errs = appendDuration(errs, "engine.suppress_window", c.Engine.SuppressWindow)
	if c.Engine.AnalysisLimit > c.Engine.WindowCapacity {
		errs = append(errs, fmt.Errorf("engine.analysis_limit %d exceeds window_capacity %d", c.Engine.AnalysisLimit, c.Engine.WindowCapacity))
	}
	if c.Engine.Source == "pcap" && c.Capture.Interface == "" && c.Capture.File == "" {
		errs = append(errs, errors.New("capture: interface or file is required when engine.source is pcap"))
	}

	if p := *c.Generator.AttackProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("generator.attack_probability %v outside [0,1]", p))
	}
	if c.Generator.MaxBurst < c.Generator.MinBurst {
		errs = append(errs, fmt.Errorf("generator.max_burst %d below min_burst %d", c.Generator.MaxBurst, c.Generator.MinBurst))
	}

	errs = appendDuration(errs, "probe.flush_interval", c.Probe.FlushInterval)
	switch c.Probe.Persistence.Encoding {
	case "gob", "text", "pcap":
	default:
		errs = append(errs, fmt.Errorf("probe.persistence.encoding: unknown encoding %q", c.Probe.Persistence.Encoding))
	}

	switch c.Enrichment.Mode {
	case "grpc", "direct":
	default:
		errs = append(errs, fmt.Errorf("enrichment.mode: unknown mode %q", c.Enrichment.Mode))
	}
	errs = appendDuration(errs, "enrichment.timeout", c.Enrichment.Timeout)
	errs = appendDuration(errs, "enrichment.open_state_timeout", c.Enrichment.OpenStateTimeout)
	errs = appendSeverity(errs, "enrichment.auto_min_severity", c.Enrichment.AutoMinSeverity, true)

	errs = appendDuration(errs, "alerter.check_interval", c.Alerter.CheckInterval)
	errs = appendSeverity(errs, "alerter.min_severity", c.Alerter.MinSeverity, false)

	for i, w := range c.Sinks.Writers {
		switch w.Type {
		case "gob", "clickhouse":
		default:
			errs = append(errs, fmt.Errorf("sinks.writers[%d]: unknown writer type %q", i, w.Type))
		}
		errs = appendDuration(errs, fmt.Sprintf("sinks.writers[%d].snapshot_interval", i), w.SnapshotInterval)
	}

	errs = appendDuration(errs, "api.shutdown_timeout", c.API.ShutdownTimeout)
	return errors.Join(errs...)
}

// Duration parses a duration field that has already been validated.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func appendSeverity(errs []error, field, value string, optional bool) []error {
	if value == "" && optional {
		return errs
	}
	if _, err := model.ParseSeverity(value); err != nil {
		return append(errs, fmt.Errorf("%s: %w", field, err))
	}
	return errs
}

func appendDuration(errs []error, field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, fmt.Errorf("invalid %s: %w", field, err))
	}
	if d <= 0 {
		return append(errs, fmt.Errorf("%s must be a positive duration", field))
	}
	return errs
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}
