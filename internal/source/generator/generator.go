// Package generator synthesizes a plausible packet stream with occasional
// attack bursts, for demos and for running the engine without a capture
// device.
package generator

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/model"

	"github.com/google/uuid"
)

const (
	LocalNetPrefix = "192.168.1."

	DefaultIncomingRatio     = 0.7
	DefaultAttackProbability = 0.05
	DefaultMinBurst          = 1
	DefaultMaxBurst          = 3
)

// ExternalNetPrefixes are the two-octet prefixes remote hosts are drawn from.
var ExternalNetPrefixes = []string{"104.21.", "172.67.", "45.33.", "185.199.", "203.0.", "8.8."}

// Threat actors used by the attack shapes.
const (
	ScannerAddr   = "45.33.22.11"
	FlooderAddr   = "185.199.11.22"
	BruteAddr     = "203.0.113.5"
	sqlInjPayload = "' OR '1'='1"
)

var commonPorts = []uint16{80, 443, 22, 53, 3306, 8080, 21}

type Config struct {
	// Seed makes the stream reproducible. Zero seeds from the runtime.
	Seed          uint64
	IncomingRatio float64
	// AttackProbability is the per-packet chance of a random attack shape.
	// Zero disables random attacks.
	AttackProbability float64
	MinBurst          int
	MaxBurst          int
}

// ConfigFrom converts the generator section of the YAML config.
func ConfigFrom(cfg config.GeneratorConfig) Config {
	c := Config{
		Seed:              cfg.Seed,
		IncomingRatio:     cfg.IncomingRatio,
		AttackProbability: DefaultAttackProbability,
		MinBurst:          cfg.MinBurst,
		MaxBurst:          cfg.MaxBurst,
	}
	if cfg.AttackProbability != nil {
		c.AttackProbability = *cfg.AttackProbability
	}
	return c
}

func (c *Config) applyDefaults() {
	if c.IncomingRatio <= 0 || c.IncomingRatio > 1 {
		c.IncomingRatio = DefaultIncomingRatio
	}
	if c.AttackProbability < 0 || c.AttackProbability > 1 {
		c.AttackProbability = DefaultAttackProbability
	}
	if c.MinBurst <= 0 {
		c.MinBurst = DefaultMinBurst
	}
	if c.MaxBurst < c.MinBurst {
		c.MaxBurst = max(DefaultMaxBurst, c.MinBurst)
	}
}

// Generator implements model.PacketSource and model.AttackInjector.
type Generator struct {
	cfg Config
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Generator.
type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func New(cfg Config, opts ...Option) *Generator {
	cfg.applyDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	g := &Generator{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextBatch returns a burst of MinBurst..MaxBurst packets.
func (g *Generator) NextBatch() []model.Packet {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.cfg.MinBurst + g.rng.IntN(g.cfg.MaxBurst-g.cfg.MinBurst+1)
	batch := make([]model.Packet, n)
	for i := range batch {
		batch[i] = g.packetLocked(model.AttackNone)
	}
	return batch
}

// Forced returns n packets all shaped like attack.
func (g *Generator) Forced(attack model.AttackType, n int) []model.Packet {
	g.mu.Lock()
	defer g.mu.Unlock()
	batch := make([]model.Packet, n)
	for i := range batch {
		batch[i] = g.packetLocked(attack)
	}
	return batch
}

// Packet returns one packet. AttackNone lets the generator roll for a random
// attack.
func (g *Generator) Packet(force model.AttackType) model.Packet {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.packetLocked(force)
}

func (g *Generator) packetLocked(force model.AttackType) model.Packet {
	p := model.Packet{
		ID:         uuid.NewString(),
		ObservedAt: g.now().UnixMilli(),
		SrcPort:    uint16(g.intRange(1024, 65535)),
		DstPort:    commonPorts[g.rng.IntN(len(commonPorts))],
		Protocol:   model.Protocols()[g.rng.IntN(len(model.Protocols()))],
		Flags:      model.NewFlagSet(model.FlagACK),
	}
	payload := "DATA"

	if g.rng.Float64() < g.cfg.IncomingRatio {
		p.SrcAddr = g.externalAddr()
		p.DstAddr = g.localAddr()
	} else {
		p.SrcAddr = g.localAddr()
		p.DstAddr = g.externalAddr()
	}

	attack := force
	if attack == model.AttackNone && g.rng.Float64() < g.cfg.AttackProbability {
		all := model.AttackTypes()
		attack = all[g.rng.IntN(len(all))]
	}

	switch attack {
	case model.AttackPortScan:
		p.SrcAddr = ScannerAddr
		p.DstPort = uint16(g.intRange(20, 1000))
		p.Flags = model.NewFlagSet(model.FlagSYN)
		p.Protocol = model.ProtocolTCP
		payload = ""
		p.FlaggedSuspicious = true
	case model.AttackSynFlood:
		p.SrcAddr = FlooderAddr
		p.Flags = model.NewFlagSet(model.FlagSYN)
		p.Protocol = model.ProtocolTCP
		p.FlaggedSuspicious = true
	case model.AttackBruteForce:
		p.SrcAddr = BruteAddr
		p.DstPort = 22
		p.Protocol = model.ProtocolSSH
		payload = "AUTH_REQUEST"
		p.FlaggedSuspicious = true
	case model.AttackSQLInjection:
		p.DstPort = 80
		p.Protocol = model.ProtocolHTTP
		payload = sqlInjPayload
		p.FlaggedSuspicious = true
	case model.AttackNone, model.AttackMalwareC2:
		// No packet shape: generated as ordinary traffic.
	}

	if !p.FlaggedSuspicious {
		switch p.Protocol {
		case model.ProtocolHTTPS:
			p.DstPort = 443
			p.Flags = p.Flags.With(model.FlagPSH)
			payload = "ENCRYPTED_DATA"
		case model.ProtocolHTTP:
			p.DstPort = 80
			payload = "GET /index.html"
		}
	}

	p.PayloadSample = payload
	p.LengthBytes = uint32(g.intRange(64, 1500))
	return p
}

func (g *Generator) intRange(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func (g *Generator) localAddr() string {
	return fmt.Sprintf("%s%d", LocalNetPrefix, g.intRange(1, 254))
}

func (g *Generator) externalAddr() string {
	prefix := ExternalNetPrefixes[g.rng.IntN(len(ExternalNetPrefixes))]
	return fmt.Sprintf("%s%d.%d", prefix, g.intRange(0, 255), g.intRange(1, 254))
}
