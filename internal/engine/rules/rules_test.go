package rules

import (
	"reflect"
	"testing"

	"CyberGuard/internal/config"
	"CyberGuard/internal/model"
)

const now int64 = 1_700_000_000_000

func synPackets(src string, n int, distinctPorts bool) []model.Packet {
	out := make([]model.Packet, n)
	for i := range out {
		port := uint16(80)
		if distinctPorts {
			port = uint16(20 + i)
		}
		out[i] = model.Packet{
			SrcAddr:  src,
			DstAddr:  "192.168.1.10",
			DstPort:  port,
			Protocol: model.ProtocolTCP,
			Flags:    model.NewFlagSet(model.FlagSYN),
		}
	}
	return out
}

func TestPortScanBoundary(t *testing.T) {
	rule := PortScan{MaxDistinctPorts: 5}

	five := Group{SrcAddr: "45.33.22.11", Packets: synPackets("45.33.22.11", 5, true)}
	if got := rule.Evaluate(five, now); len(got) != 0 {
		t.Errorf("5 distinct ports should not fire, got %+v", got)
	}

	six := Group{SrcAddr: "45.33.22.11", Packets: synPackets("45.33.22.11", 6, true)}
	got := rule.Evaluate(six, now)
	if len(got) != 1 {
		t.Fatalf("6 distinct ports should fire exactly once, got %d", len(got))
	}
	c := got[0]
	if c.AttackType != model.AttackPortScan || c.Severity != model.SeverityMedium {
		t.Errorf("unexpected classification: %+v", c)
	}
	if c.EvidenceCount != 6 {
		t.Errorf("EvidenceCount = %d, want 6", c.EvidenceCount)
	}
	if c.Description != "Detected rapid connection attempts to 6 different ports." {
		t.Errorf("Description = %q", c.Description)
	}
}

func TestPortScanCountsDistinctPortsOnly(t *testing.T) {
	// 30 packets to the same port are not a scan.
	g := Group{SrcAddr: "10.0.0.1", Packets: synPackets("10.0.0.1", 30, false)}
	if got := (PortScan{MaxDistinctPorts: 5}).Evaluate(g, now); len(got) != 0 {
		t.Errorf("repeated single port should not fire, got %+v", got)
	}
}

func TestSynFloodBoundary(t *testing.T) {
	rule := SynFlood{MaxPackets: 15}

	g15 := Group{SrcAddr: "185.199.11.22", Packets: synPackets("185.199.11.22", 15, false)}
	if got := rule.Evaluate(g15, now); len(got) != 0 {
		t.Errorf("15 SYN packets should not fire, got %+v", got)
	}

	g16 := Group{SrcAddr: "185.199.11.22", Packets: synPackets("185.199.11.22", 16, false)}
	got := rule.Evaluate(g16, now)
	if len(got) != 1 {
		t.Fatalf("16 SYN packets should fire exactly once, got %d", len(got))
	}
	if got[0].EvidenceCount != 16 {
		t.Errorf("EvidenceCount = %d, want 16", got[0].EvidenceCount)
	}
	if got[0].Severity != model.SeverityHigh {
		t.Errorf("Severity = %v, want high", got[0].Severity)
	}
}

func TestSynFloodIgnoresSynAck(t *testing.T) {
	pkts := synPackets("185.199.11.22", 20, false)
	for i := range pkts {
		pkts[i].Flags = pkts[i].Flags.With(model.FlagACK)
	}
	if got := (SynFlood{MaxPackets: 15}).Evaluate(Group{SrcAddr: "185.199.11.22", Packets: pkts}, now); len(got) != 0 {
		t.Errorf("SYN+ACK packets must not count, got %+v", got)
	}
}

func sshPackets(src string, n int, port uint16) []model.Packet {
	out := make([]model.Packet, n)
	for i := range out {
		out[i] = model.Packet{
			SrcAddr:       src,
			DstAddr:       "192.168.1.22",
			DstPort:       port,
			Protocol:      model.ProtocolSSH,
			Flags:         model.NewFlagSet(model.FlagACK),
			PayloadSample: "AUTH_REQUEST",
		}
	}
	return out
}

func TestBruteForceBoundary(t *testing.T) {
	rule := BruteForce{MaxAttempts: 8, Port: 22}

	if got := rule.Evaluate(Group{SrcAddr: "203.0.113.5", Packets: sshPackets("203.0.113.5", 8, 22)}, now); len(got) != 0 {
		t.Errorf("8 attempts should not fire, got %+v", got)
	}

	got := rule.Evaluate(Group{SrcAddr: "203.0.113.5", Packets: sshPackets("203.0.113.5", 9, 22)}, now)
	if len(got) != 1 {
		t.Fatalf("9 attempts should fire once, got %d", len(got))
	}
	if got[0].EvidenceCount != 9 || got[0].Severity != model.SeverityCritical {
		t.Errorf("unexpected candidate %+v", got[0])
	}
	if got[0].TargetAddr != "192.168.1.22" {
		t.Errorf("TargetAddr = %q", got[0].TargetAddr)
	}
}

func TestBruteForceRequiresPort(t *testing.T) {
	got := (BruteForce{MaxAttempts: 8, Port: 22}).Evaluate(Group{SrcAddr: "203.0.113.5", Packets: sshPackets("203.0.113.5", 20, 2222)}, now)
	if len(got) != 0 {
		t.Errorf("SSH on a non-matching port must not count, got %+v", got)
	}
}

func TestSQLInjectionFiresOnce(t *testing.T) {
	pkts := []model.Packet{
		{SrcAddr: "104.21.3.4", DstAddr: "192.168.1.80", DstPort: 80, Protocol: model.ProtocolHTTP, PayloadSample: "GET /index.html"},
		{SrcAddr: "104.21.3.4", DstAddr: "192.168.1.81", DstPort: 80, Protocol: model.ProtocolHTTP, PayloadSample: "user=admin' OR '1'='1"},
		{SrcAddr: "104.21.3.4", DstAddr: "192.168.1.81", DstPort: 80, Protocol: model.ProtocolHTTP, PayloadSample: "' OR '1'='1"},
	}
	got := (SQLInjection{Signatures: []string{DefaultSQLSignature}}).Evaluate(Group{SrcAddr: "104.21.3.4", Packets: pkts}, now)
	if len(got) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(got))
	}
	c := got[0]
	if c.EvidenceCount != 1 {
		t.Errorf("EvidenceCount = %d, want 1", c.EvidenceCount)
	}
	if c.TargetAddr != "192.168.1.80" {
		t.Errorf("TargetAddr = %q, want the first packet's destination", c.TargetAddr)
	}
}

func TestSQLInjectionCustomSignatures(t *testing.T) {
	rule := SQLInjection{Signatures: []string{"UNION SELECT", ""}}
	g := Group{SrcAddr: "1.2.3.4", Packets: []model.Packet{
		{SrcAddr: "1.2.3.4", DstAddr: "5.6.7.8", PayloadSample: "id=1 UNION SELECT password FROM users"},
	}}
	if got := rule.Evaluate(g, now); len(got) != 1 {
		t.Errorf("custom signature should match, got %+v", got)
	}
	clean := Group{SrcAddr: "1.2.3.4", Packets: []model.Packet{{SrcAddr: "1.2.3.4", DstAddr: "5.6.7.8", PayloadSample: "hello"}}}
	if got := rule.Evaluate(clean, now); len(got) != 0 {
		t.Errorf("empty signature must never match, got %+v", got)
	}
}

func TestRulesAreDeterministic(t *testing.T) {
	pkts := append(synPackets("45.33.22.11", 20, true), sshPackets("45.33.22.11", 9, 22)...)
	g := Group{SrcAddr: "45.33.22.11", Packets: pkts}
	set := Default()

	first := set.Evaluate(g, now)
	for i := 0; i < 5; i++ {
		if again := set.Evaluate(g, now); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n first %+v\n again %+v", i, first, again)
		}
	}
	if len(first) != 3 {
		t.Errorf("expected port scan, SYN flood and brute force, got %d candidates", len(first))
	}
}

func TestEmptyGroup(t *testing.T) {
	if got := Default().Evaluate(Group{SrcAddr: "1.1.1.1"}, now); len(got) != 0 {
		t.Errorf("empty group produced candidates: %+v", got)
	}
}

func TestBuild(t *testing.T) {
	set, err := Build(nil, DefaultThresholds())
	if err != nil {
		t.Fatalf("Build(nil) failed: %v", err)
	}
	if !reflect.DeepEqual(set.Names(), Default().Names()) {
		t.Errorf("default build = %v, want %v", set.Names(), Default().Names())
	}

	custom := DefaultThresholds()
	custom.SynFloodPackets = 3
	set, err = Build([]string{"syn_flood"}, custom)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	g := Group{SrcAddr: "9.9.9.9", Packets: synPackets("9.9.9.9", 4, false)}
	if got := set.Evaluate(g, now); len(got) != 1 {
		t.Errorf("custom threshold should fire on 4 SYNs, got %+v", got)
	}

	if _, err := Build([]string{"dns_tunnel"}, custom); err == nil {
		t.Error("expected error for unknown rule")
	}
	if _, err := Build([]string{"syn_flood", "syn_flood"}, custom); err == nil {
		t.Error("expected error for duplicate rule")
	}
}

func TestRegisteredCoversAttackTypes(t *testing.T) {
	set, err := Build(Registered(), DefaultThresholds())
	if err != nil {
		t.Fatalf("Build(Registered()) failed: %v", err)
	}
	covered := make(map[model.AttackType]bool)
	for _, r := range set {
		covered[r.AttackType()] = true
	}
	for _, a := range []model.AttackType{model.AttackPortScan, model.AttackSynFlood, model.AttackBruteForce, model.AttackSQLInjection} {
		if !covered[a] {
			t.Errorf("no registered rule detects %v", a)
		}
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Rules
	set, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if !reflect.DeepEqual(set, Default()) {
		t.Errorf("default config should build the reference rules, got %+v", set)
	}

	cfg.Enabled = []string{"brute_force"}
	cfg.BruteForcePort = 2222
	set, err = FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if bf, ok := set[0].(BruteForce); !ok || bf.Port != 2222 {
		t.Errorf("rule = %+v", set[0])
	}
}
