package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/rules"
	"CyberGuard/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)}
}

func synScan(src string, n int) []model.Packet {
	out := make([]model.Packet, n)
	for i := range out {
		out[i] = model.Packet{
			ID:          fmt.Sprintf("%s-%d", src, i),
			SrcAddr:     src,
			DstAddr:     "192.168.1.10",
			SrcPort:     40000,
			DstPort:     uint16(20 + i),
			Protocol:    model.ProtocolTCP,
			LengthBytes: 60,
			Flags:       model.NewFlagSet(model.FlagSYN),
		}
	}
	return out
}

func sshBurst(src string, n int) []model.Packet {
	out := make([]model.Packet, n)
	for i := range out {
		out[i] = model.Packet{
			ID:            fmt.Sprintf("%s-ssh-%d", src, i),
			SrcAddr:       src,
			DstAddr:       "192.168.1.20",
			SrcPort:       50000,
			DstPort:       22,
			Protocol:      model.ProtocolSSH,
			LengthBytes:   100,
			Flags:         model.NewFlagSet(model.FlagACK),
			PayloadSample: "AUTH_REQUEST",
		}
	}
	return out
}

func benign(n int) []model.Packet {
	out := make([]model.Packet, n)
	for i := range out {
		out[i] = model.Packet{
			ID:          fmt.Sprintf("benign-%d", i),
			SrcAddr:     "192.168.1.5",
			DstAddr:     "8.8.8.8",
			SrcPort:     1024,
			DstPort:     443,
			Protocol:    model.ProtocolHTTPS,
			LengthBytes: 1000,
			Flags:       model.NewFlagSet(model.FlagACK, model.FlagPSH),
		}
	}
	return out
}

type fakeSource struct {
	mu     sync.Mutex
	calls  int
	forced []model.AttackType
}

func (s *fakeSource) NextBatch() []model.Packet {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return benign(1)
}

func (s *fakeSource) Forced(attack model.AttackType, n int) []model.Packet {
	s.mu.Lock()
	s.forced = append(s.forced, attack)
	s.mu.Unlock()
	return synScan("45.33.22.11", n)
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPortScanAndSynFloodScenario(t *testing.T) {
	clock := newClock()
	p := New(Config{}, rules.Default(), WithClock(clock.Now))

	res := p.Process(synScan("45.33.22.11", 20))

	if len(res.Admitted) != 2 {
		t.Fatalf("expected 2 admitted alerts, got %d: %+v", len(res.Admitted), res.Admitted)
	}
	byType := map[model.AttackType]model.Alert{}
	for _, a := range res.Admitted {
		byType[a.AttackType] = a
	}
	scan, ok := byType[model.AttackPortScan]
	if !ok || scan.EvidenceCount != 20 || scan.Severity != model.SeverityMedium {
		t.Errorf("port scan alert = %+v", scan)
	}
	flood, ok := byType[model.AttackSynFlood]
	if !ok || flood.EvidenceCount != 20 || flood.Severity != model.SeverityHigh {
		t.Errorf("syn flood alert = %+v", flood)
	}
	if flood.DetectedAt != clock.Now().UnixMilli() {
		t.Errorf("detectedAt = %d, want %d", flood.DetectedAt, clock.Now().UnixMilli())
	}

	series := p.Series()
	if len(series) != 1 || series[0].Packets != 20 || series[0].Alerts != 2 {
		t.Errorf("series = %+v, want one bucket with 20 packets and 2 alerts", series)
	}
}

func TestBruteForceScenario(t *testing.T) {
	p := New(Config{}, rules.Default(), WithClock(newClock().Now))

	res := p.Process(sshBurst("203.0.113.5", 9))

	if len(res.Admitted) != 1 {
		t.Fatalf("expected 1 alert, got %+v", res.Admitted)
	}
	a := res.Admitted[0]
	if a.AttackType != model.AttackBruteForce || a.EvidenceCount != 9 || a.Severity != model.SeverityCritical {
		t.Errorf("alert = %+v", a)
	}
}

func TestRepeatedTicksAreSuppressed(t *testing.T) {
	clock := newClock()
	p := New(Config{}, rules.Default(), WithClock(clock.Now))

	p.Process(sshBurst("203.0.113.5", 9))
	for i := 0; i < 10; i++ {
		clock.Advance(200 * time.Millisecond)
		if res := p.Process(benign(1)); len(res.Admitted) != 0 {
			t.Fatalf("tick %d re-admitted %+v", i, res.Admitted)
		}
	}
	if n := len(p.Alerts()); n != 1 {
		t.Fatalf("history has %d alerts, want 1", n)
	}

	// Still in the window 5 s later, so the rule fires again and is admitted.
	clock.Advance(3 * time.Second)
	res := p.Process(benign(1))
	if len(res.Admitted) != 1 || res.Admitted[0].AttackType != model.AttackBruteForce {
		t.Errorf("expected the brute force alert to be re-admitted, got %+v", res.Admitted)
	}
}

func TestWindowEvictionEndsDetection(t *testing.T) {
	clock := newClock()
	p := New(Config{WindowCapacity: 10}, rules.Default(), WithClock(clock.Now))

	p.Process(sshBurst("203.0.113.5", 9))
	p.Process(benign(10))
	clock.Advance(10 * time.Second)

	res := p.Process(benign(1))
	if len(res.Candidates) != 0 {
		t.Errorf("evicted packets still produced candidates: %+v", res.Candidates)
	}
	if got := len(p.Packets(0)); got != 10 {
		t.Errorf("window holds %d packets, want 10", got)
	}
}

func TestEmptyBatchIsNoop(t *testing.T) {
	p := New(Config{}, rules.Default())
	res := p.Process(nil)
	if len(res.Admitted) != 0 || len(p.Series()) != 0 || p.Stats().TotalPackets != 0 {
		t.Errorf("empty batch changed state: %+v", res)
	}
}

func TestObserversSeeEveryTickInOrder(t *testing.T) {
	var got []int
	obs := func(r TickResult) { got = append(got, len(r.Batch)) }
	p := New(Config{}, rules.Default(), WithObserver(obs))

	p.Process(benign(1))
	p.Process(benign(2))
	p.Process(benign(3))

	if fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("observer saw %v, want [1 2 3]", got)
	}
}

func TestStats(t *testing.T) {
	clock := newClock()
	p := New(Config{}, rules.Default(), WithClock(clock.Now))

	p.Process(benign(2))
	p.Process(sshBurst("203.0.113.5", 9))

	s := p.Stats()
	if s.TotalPackets != 11 {
		t.Errorf("TotalPackets = %d, want 11", s.TotalPackets)
	}
	if s.BytesTransferred != 2*1000+9*100 {
		t.Errorf("BytesTransferred = %d", s.BytesTransferred)
	}
	if s.ActiveConnections != 2 {
		t.Errorf("ActiveConnections = %d, want 2", s.ActiveConnections)
	}
	if s.ActiveAlerts != 1 || s.WindowSize != 11 || !s.Capturing {
		t.Errorf("stats = %+v", s)
	}
	if s.PacketsPerSecond != 11 {
		t.Errorf("PacketsPerSecond = %v, want 11", s.PacketsPerSecond)
	}
}

func TestAnnotate(t *testing.T) {
	p := New(Config{}, rules.Default())
	res := p.Process(sshBurst("203.0.113.5", 9))
	id := res.Admitted[0].ID

	if err := p.Annotate(id, "analysis"); err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	a, ok := p.Alert(id)
	if !ok || a.AIAnalysis != "analysis" {
		t.Errorf("alert = %+v", a)
	}
	if err := p.Annotate("missing", "x"); err == nil {
		t.Error("expected error for unknown alert")
	}
}

func TestInjectAttack(t *testing.T) {
	src := &fakeSource{}
	p := New(Config{}, rules.Default(), WithSource(src))

	if _, err := p.InjectAttack(model.AttackNone, 0); !errors.Is(err, ErrNothingToInject) {
		t.Errorf("expected ErrNothingToInject, got %v", err)
	}

	p.Pause()
	res, err := p.InjectAttack(model.AttackPortScan, 0)
	if err != nil {
		t.Fatalf("InjectAttack failed: %v", err)
	}
	if p.Paused() {
		t.Error("injection should resume capture")
	}
	if len(res.Batch) != DefaultInjectBurst {
		t.Errorf("burst size = %d, want %d", len(res.Batch), DefaultInjectBurst)
	}
	if len(res.Admitted) == 0 {
		t.Error("injected scan should raise alerts")
	}

	bare := New(Config{}, rules.Default())
	if _, err := bare.InjectAttack(model.AttackPortScan, 0); !errors.Is(err, ErrNoInjector) {
		t.Errorf("expected ErrNoInjector, got %v", err)
	}
}

func TestStartPollsSourceAndStopDrains(t *testing.T) {
	src := &fakeSource{}
	p := New(Config{TickInterval: 5 * time.Millisecond}, rules.Default(), WithSource(src))

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.Calls() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if src.Calls() < 3 {
		t.Fatalf("source polled %d times, want at least 3", src.Calls())
	}

	if err := p.Submit(context.Background(), sshBurst("203.0.113.5", 9)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	p.Stop()
	p.Stop()

	found := false
	for _, a := range p.Alerts() {
		if a.AttackType == model.AttackBruteForce {
			found = true
		}
	}
	if !found {
		t.Error("submitted batch was not processed before Stop returned")
	}
	if err := p.Submit(context.Background(), benign(1)); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Stop = %v, want ErrStopped", err)
	}
}

func TestPausedSkipsPolling(t *testing.T) {
	src := &fakeSource{}
	p := New(Config{TickInterval: 2 * time.Millisecond}, rules.Default(), WithSource(src))
	p.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(ctx, benign(1)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	cancel()
	p.Stop()

	if src.Calls() != 0 {
		t.Errorf("paused pipeline polled the source %d times", src.Calls())
	}
	if p.Stats().TotalPackets != 0 {
		t.Errorf("paused pipeline processed %d packets", p.Stats().TotalPackets)
	}
	if p.Stats().Capturing {
		t.Error("Capturing should be false while paused")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Default().Engine)
	if cfg.TickInterval != 200*time.Millisecond || cfg.SuppressWindow != 5*time.Second {
		t.Errorf("durations = %v, %v", cfg.TickInterval, cfg.SuppressWindow)
	}
	if cfg.WindowCapacity != 500 || cfg.AlertCapacity != 50 || cfg.InputBuffer != 64 {
		t.Errorf("sizes = %+v", cfg)
	}
}

func TestAddObserver(t *testing.T) {
	p := New(Config{}, rules.Default())
	var seen int
	p.AddObserver(func(res TickResult) { seen += len(res.Batch) })
	p.Process(synScan("45.33.22.11", 3))
	if seen != 3 {
		t.Errorf("observer saw %d packets, want 3", seen)
	}
}

func TestSubmitRacingStopKeepsAcceptedBatches(t *testing.T) {
	p := New(Config{InputBuffer: 4}, rules.Default())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted uint64
	)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := p.Submit(context.Background(), benign(1)); err != nil {
					if !errors.Is(err, ErrStopped) {
						t.Errorf("Submit = %v, want nil or ErrStopped", err)
					}
					return
				}
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	p.Stop()
	wg.Wait()

	if got := p.Stats().TotalPackets; got != accepted {
		t.Errorf("processed %d packets, but Submit accepted %d", got, accepted)
	}
}

func TestStopClosesOpenBucket(t *testing.T) {
	clock := newClock()
	p := New(Config{}, rules.Default(), WithClock(clock.Now))

	p.Process(benign(1))
	clock.Advance(time.Second)
	p.Process(benign(3))
	if got := p.TakeClosedBuckets(); len(got) != 1 || got[0].Packets != 1 {
		t.Fatalf("closed before Stop = %+v, want only the first second", got)
	}

	p.Stop()
	got := p.TakeClosedBuckets()
	if len(got) != 1 || got[0].Packets != 3 {
		t.Fatalf("closed after Stop = %+v, want the last second with 3 packets", got)
	}
}
