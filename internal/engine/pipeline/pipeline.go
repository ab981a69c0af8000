// Package pipeline runs detection ticks strictly in order: push the batch
// into the window, evaluate the rules, admit alerts through the ledger and
// record the traffic series.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/detector"
	"CyberGuard/internal/engine/ledger"
	"CyberGuard/internal/engine/rules"
	"CyberGuard/internal/engine/series"
	"CyberGuard/internal/engine/window"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/metrics"
	"CyberGuard/internal/model"

	"github.com/rs/zerolog"
)

const (
	DefaultTickInterval = 200 * time.Millisecond
	DefaultInjectBurst  = 15
	DefaultInputBuffer  = 64
)

var (
	ErrStopped         = errors.New("pipeline stopped")
	ErrNoInjector      = errors.New("packet source cannot inject attacks")
	ErrNothingToInject = errors.New("attack type has no packet shape")
	ErrAlreadyStarted  = errors.New("pipeline already started")
)

// Config sizes every stage of the pipeline. Zero values take defaults.
type Config struct {
	TickInterval   time.Duration
	WindowCapacity int
	// AnalysisLimit caps how many of the most recent packets each tick
	// evaluates.
	AnalysisLimit  int
	AlertCapacity  int
	SuppressWindow time.Duration
	SeriesLength   int
	InjectBurst    int
	InputBuffer    int
	Detector       detector.Options
}

// ConfigFrom converts the engine section of the YAML config.
func ConfigFrom(cfg config.EngineConfig) Config {
	return Config{
		TickInterval:   config.Duration(cfg.TickInterval),
		WindowCapacity: cfg.WindowCapacity,
		AnalysisLimit:  cfg.AnalysisLimit,
		AlertCapacity:  cfg.AlertCapacity,
		SuppressWindow: config.Duration(cfg.SuppressWindow),
		SeriesLength:   cfg.SeriesLength,
		InjectBurst:    cfg.InjectBurst,
		InputBuffer:    cfg.SizeOfPacketChannel,
		Detector:       detector.Options{TouchedOnly: cfg.TouchedOnly},
	}
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.WindowCapacity <= 0 {
		c.WindowCapacity = window.DefaultCapacity
	}
	if c.AnalysisLimit <= 0 || c.AnalysisLimit > c.WindowCapacity {
		c.AnalysisLimit = c.WindowCapacity
	}
	if c.AlertCapacity <= 0 {
		c.AlertCapacity = ledger.DefaultCapacity
	}
	if c.SuppressWindow <= 0 {
		c.SuppressWindow = ledger.DefaultSuppressWindow
	}
	if c.SeriesLength <= 0 {
		c.SeriesLength = series.DefaultLimit
	}
	if c.InjectBurst <= 0 {
		c.InjectBurst = DefaultInjectBurst
	}
	if c.InputBuffer <= 0 {
		c.InputBuffer = DefaultInputBuffer
	}
}

// TickResult describes one completed tick. Slices are owned by the receiver.
type TickResult struct {
	At         time.Time
	Batch      []model.Packet
	Candidates []model.AlertCandidate
	Admitted   []model.Alert
	Series     []model.TrafficBucket
}

// Observer is notified after every tick, in tick order, from the goroutine
// that ran the tick. It must not block and must not call Process.
type Observer func(TickResult)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSource sets the source polled on every tick interval. If it also
// implements model.AttackInjector, InjectAttack becomes available.
func WithSource(src model.PacketSource) Option {
	return func(p *Pipeline) {
		p.source = src
		if inj, ok := src.(model.AttackInjector); ok && p.injector == nil {
			p.injector = inj
		}
	}
}

// WithInjector sets the forced-attack generator explicitly.
func WithInjector(inj model.AttackInjector) Option {
	return func(p *Pipeline) { p.injector = inj }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithObserver registers a tick observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// Pipeline owns the window, the detection engine, the ledger and the series
// aggregator.
type Pipeline struct {
	cfg    Config
	window *window.Window
	engine *detector.Engine
	ledger *ledger.Ledger
	series *series.Aggregator

	source    model.PacketSource
	injector  model.AttackInjector
	now       func() time.Time
	observers []Observer
	log       zerolog.Logger

	// tickMu serializes ticks; tick n+1 never starts before tick n ends.
	tickMu sync.Mutex
	paused atomic.Bool

	input chan []model.Packet
	done  chan struct{}
	// sendMu is held shared by Submit while it sends and exclusively by Stop
	// before the final drain, so no accepted batch is left in input.
	sendMu   sync.RWMutex
	stopped  bool
	started  atomic.Bool
	stopOnce sync.Once
	workerWg sync.WaitGroup

	viewMu       sync.RWMutex
	recent       []model.Packet
	totalPackets uint64
	totalBytes   uint64
}

// New creates a pipeline evaluating rs.
func New(cfg Config, rs rules.RuleSet, opts ...Option) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:    cfg,
		window: window.New(cfg.WindowCapacity),
		engine: detector.New(rs, cfg.Detector),
		ledger: ledger.New(ledger.Config{Capacity: cfg.AlertCapacity, SuppressWindow: cfg.SuppressWindow}),
		series: series.New(cfg.SeriesLength),
		now:    time.Now,
		log:    logging.Component("pipeline"),
		input:  make(chan []model.Packet, cfg.InputBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// AddObserver registers o for every later tick.
func (p *Pipeline) AddObserver(o Observer) {
	p.tickMu.Lock()
	p.observers = append(p.observers, o)
	p.tickMu.Unlock()
}

// Start launches the worker goroutine. It polls the source every tick
// interval and consumes submitted batches until ctx is done or Stop is called.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.workerWg.Add(1)
	go p.worker(ctx)
	p.log.Info().
		Dur("tick_interval", p.cfg.TickInterval).
		Int("window", p.cfg.WindowCapacity).
		Int("analysis_limit", p.cfg.AnalysisLimit).
		Strs("rules", p.engine.Rules().Names()).
		Bool("polling", p.source != nil).
		Msg("Pipeline started")
	return nil
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.workerWg.Done()

	var tick <-chan time.Time
	if p.source != nil {
		ticker := time.NewTicker(p.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if p.paused.Load() {
				continue
			}
			p.Process(p.source.NextBatch())
		case batch := <-p.input:
			p.Process(batch)
		case <-ctx.Done():
			p.drain()
			return
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain processes batches already queued when shutdown was requested.
func (p *Pipeline) drain() {
	for {
		select {
		case batch := <-p.input:
			p.Process(batch)
		default:
			return
		}
	}
}

// Stop signals the worker, waits for queued batches to be processed, closes
// the open series bucket so sinks receive it, and returns. It is safe to call
// more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.log.Info().Msg("Pipeline stopping...")
		close(p.done)
		p.workerWg.Wait()

		p.sendMu.Lock()
		p.stopped = true
		p.sendMu.Unlock()
		p.drain()

		p.tickMu.Lock()
		p.series.CloseAll()
		p.tickMu.Unlock()
		p.log.Info().Uint64("total_packets", p.Stats().TotalPackets).Msg("Pipeline stopped")
	})
}

// Submit queues an externally produced batch for the worker. Batches
// submitted while paused are discarded.
func (p *Pipeline) Submit(ctx context.Context, batch []model.Packet) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	if p.paused.Load() {
		metrics.RecordDropped("pipeline", "paused")
		return nil
	}
	select {
	case p.input <- batch:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs one tick synchronously over batch, which must be in
// chronological order.
func (p *Pipeline) Process(batch []model.Packet) TickResult {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	if len(batch) == 0 {
		return TickResult{At: p.now()}
	}

	start := time.Now()
	now := p.now()
	nowMs := now.UnixMilli()

	p.window.Push(batch)
	recent := p.window.Snapshot(p.window.Capacity())
	analysis := recent[:min(p.cfg.AnalysisLimit, len(recent))]

	candidates := p.engine.Evaluate(batch, analysis, nowMs)
	admitted := p.ledger.Admit(candidates, nowMs)
	buckets := p.series.Record(len(batch), len(admitted), now)

	var bytes uint64
	for _, pkt := range batch {
		bytes += uint64(pkt.LengthBytes)
	}

	p.viewMu.Lock()
	p.recent = recent
	p.totalPackets += uint64(len(batch))
	p.totalBytes += bytes
	p.viewMu.Unlock()

	p.record(candidates, admitted)
	metrics.RecordTick(len(batch), bytes, len(recent), time.Since(start))

	res := TickResult{
		At:         now,
		Batch:      batch,
		Candidates: candidates,
		Admitted:   admitted,
		Series:     buckets,
	}
	for _, o := range p.observers {
		o(res)
	}
	return res
}

func (p *Pipeline) record(candidates []model.AlertCandidate, admitted []model.Alert) {
	perType := make(map[model.AttackType]int)
	for _, c := range candidates {
		metrics.RecordCandidate(c.AttackType.Slug())
		perType[c.AttackType]++
	}
	for _, a := range admitted {
		perType[a.AttackType]--
		metrics.RecordAdmitted(a.AttackType.Slug(), a.Severity.String())
		p.log.Warn().
			Str("id", a.ID).
			Str("attack", a.AttackType.String()).
			Str("severity", a.Severity.String()).
			Str("src", a.SrcAddr).
			Str("target", a.TargetAddr).
			Int("evidence", a.EvidenceCount).
			Msg(a.Description)
	}
	for attack, n := range perType {
		metrics.RecordSuppressed(attack.Slug(), n)
	}
}

// Pause stops polling the source and discards submitted batches. A tick
// already running completes.
func (p *Pipeline) Pause() {
	if !p.paused.Swap(true) {
		p.log.Info().Msg("Capture paused")
	}
}

func (p *Pipeline) Resume() {
	if p.paused.Swap(false) {
		p.log.Info().Msg("Capture resumed")
	}
}

func (p *Pipeline) Paused() bool {
	return p.paused.Load()
}

// InjectAttack fabricates a burst of n packets shaped like attack and runs it
// as a tick. Capture is resumed first. n <= 0 uses the configured burst.
func (p *Pipeline) InjectAttack(attack model.AttackType, n int) (TickResult, error) {
	if p.injector == nil {
		return TickResult{}, ErrNoInjector
	}
	if !attack.Valid() || attack == model.AttackNone {
		return TickResult{}, fmt.Errorf("%w: %s", ErrNothingToInject, attack)
	}
	if n <= 0 {
		n = p.cfg.InjectBurst
	}
	p.Resume()
	batch := p.injector.Forced(attack, n)
	p.log.Info().Str("attack", attack.String()).Int("packets", len(batch)).Msg("Injecting attack burst")
	return p.Process(batch), nil
}

// Alerts returns the retained alerts, most recent first.
func (p *Pipeline) Alerts() []model.Alert {
	return p.ledger.History()
}

func (p *Pipeline) Alert(id string) (model.Alert, bool) {
	return p.ledger.Get(id)
}

// Annotate stores enrichment text on a retained alert. It never waits for
// a running tick.
func (p *Pipeline) Annotate(id, analysis string) error {
	return p.ledger.Annotate(id, analysis)
}

// Packets returns up to limit of the most recent packets, newest first.
// limit <= 0 returns the whole window.
func (p *Pipeline) Packets(limit int) []model.Packet {
	p.viewMu.RLock()
	defer p.viewMu.RUnlock()
	n := len(p.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Packet, n)
	copy(out, p.recent[:n])
	return out
}

// Series returns the traffic buckets, oldest first.
func (p *Pipeline) Series() []model.TrafficBucket {
	return p.series.Buckets()
}

// TakeClosedBuckets hands over series buckets that will not change anymore.
func (p *Pipeline) TakeClosedBuckets() []model.TrafficBucket {
	return p.series.TakeClosed()
}

func (p *Pipeline) Stats() model.TrafficStats {
	p.viewMu.RLock()
	conns := make(map[[2]string]struct{})
	for _, pkt := range p.recent {
		conns[[2]string{pkt.SrcAddr, pkt.DstAddr}] = struct{}{}
	}
	stats := model.TrafficStats{
		TotalPackets:      p.totalPackets,
		BytesTransferred:  p.totalBytes,
		ActiveConnections: len(conns),
		WindowSize:        len(p.recent),
	}
	p.viewMu.RUnlock()

	stats.PacketsPerSecond = p.series.Rate()
	stats.ActiveAlerts = p.ledger.Len()
	stats.Capturing = !p.paused.Load()
	return stats
}
