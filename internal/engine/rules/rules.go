// Package rules holds the stateless detection heuristics. Every rule is a
// pure function of the packets grouped under one source address; all
// temporal context comes from which packets the caller puts in the group.
package rules

import (
	"fmt"
	"strings"

	"CyberGuard/internal/model"
)

// DefaultSQLSignature is the payload literal the SQL injection rule matches
// when no signature list is configured.
const DefaultSQLSignature = "' OR '1'='1"

// Group is the set of packets sharing one source address.
type Group struct {
	SrcAddr string
	Packets []model.Packet
}

// Rule evaluates one group and yields zero or more candidates.
type Rule interface {
	Name() string
	AttackType() model.AttackType
	Evaluate(group Group, now int64) []model.AlertCandidate
}

// Thresholds parameterizes the reference rules. A rule fires when its count
// strictly exceeds the threshold.
type Thresholds struct {
	PortScanDistinctPorts int
	SynFloodPackets       int
	BruteForceAttempts    int
	BruteForcePort        uint16
	SQLSignatures         []string
}

// DefaultThresholds returns the reference values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PortScanDistinctPorts: 5,
		SynFloodPackets:       15,
		BruteForceAttempts:    8,
		BruteForcePort:        22,
		SQLSignatures:         []string{DefaultSQLSignature},
	}
}

// RuleSet is an ordered collection of independent rules.
type RuleSet []Rule

// Default returns the four reference rules with default thresholds.
func Default() RuleSet {
	return RuleSet{
		PortScan{MaxDistinctPorts: 5},
		SynFlood{MaxPackets: 15},
		BruteForce{MaxAttempts: 8, Port: 22},
		SQLInjection{Signatures: []string{DefaultSQLSignature}},
	}
}

// Evaluate runs every rule against the group and concatenates their output.
func (s RuleSet) Evaluate(group Group, now int64) []model.AlertCandidate {
	var out []model.AlertCandidate
	for _, r := range s {
		out = append(out, r.Evaluate(group, now)...)
	}
	return out
}

// Names lists the rule names in evaluation order.
func (s RuleSet) Names() []string {
	names := make([]string, len(s))
	for i, r := range s {
		names[i] = r.Name()
	}
	return names
}

func candidate(group Group, attack model.AttackType, sev model.Severity, evidence int, desc string, now int64) model.AlertCandidate {
	// A source is assumed to attack a single target within one group.
	target := ""
	if len(group.Packets) > 0 {
		target = group.Packets[0].DstAddr
	}
	return model.AlertCandidate{
		AttackType:    attack,
		Severity:      sev,
		SrcAddr:       group.SrcAddr,
		TargetAddr:    target,
		Description:   desc,
		EvidenceCount: evidence,
		DetectedAt:    now,
	}
}

// PortScan fires when one source contacts more than MaxDistinctPorts
// destination ports.
type PortScan struct {
	MaxDistinctPorts int
}

func (PortScan) Name() string                 { return "port_scan" }
func (PortScan) AttackType() model.AttackType { return model.AttackPortScan }

func (r PortScan) Evaluate(group Group, now int64) []model.AlertCandidate {
	ports := make(map[uint16]struct{}, len(group.Packets))
	for _, p := range group.Packets {
		ports[p.DstPort] = struct{}{}
	}
	if len(ports) <= r.MaxDistinctPorts {
		return nil
	}
	desc := fmt.Sprintf("Detected rapid connection attempts to %d different ports.", len(ports))
	return []model.AlertCandidate{candidate(group, model.AttackPortScan, model.SeverityMedium, len(ports), desc, now)}
}

// SynFlood fires on more than MaxPackets packets carrying SYN without ACK.
type SynFlood struct {
	MaxPackets int
}

func (SynFlood) Name() string                 { return "syn_flood" }
func (SynFlood) AttackType() model.AttackType { return model.AttackSynFlood }

func (r SynFlood) Evaluate(group Group, now int64) []model.AlertCandidate {
	count := 0
	for _, p := range group.Packets {
		if p.Flags.Has(model.FlagSYN) && !p.Flags.Has(model.FlagACK) {
			count++
		}
	}
	if count <= r.MaxPackets {
		return nil
	}
	desc := fmt.Sprintf("Abnormal volume of SYN packets (%d) detected. Possible DoS attempt.", count)
	return []model.AlertCandidate{candidate(group, model.AttackSynFlood, model.SeverityHigh, count, desc, now)}
}

// BruteForce fires on more than MaxAttempts SSH packets aimed at Port.
type BruteForce struct {
	MaxAttempts int
	Port        uint16
}

func (BruteForce) Name() string                 { return "brute_force" }
func (BruteForce) AttackType() model.AttackType { return model.AttackBruteForce }

func (r BruteForce) Evaluate(group Group, now int64) []model.AlertCandidate {
	count := 0
	for _, p := range group.Packets {
		if p.Protocol == model.ProtocolSSH && p.DstPort == r.Port {
			count++
		}
	}
	if count <= r.MaxAttempts {
		return nil
	}
	desc := fmt.Sprintf("Multiple SSH connection attempts (%d) detected in short duration.", count)
	return []model.AlertCandidate{candidate(group, model.AttackBruteForce, model.SeverityCritical, count, desc, now)}
}

// SQLInjection fires once per group when any payload sample contains one of
// the signatures. It never multi-counts.
type SQLInjection struct {
	Signatures []string
}

func (SQLInjection) Name() string                 { return "sql_injection" }
func (SQLInjection) AttackType() model.AttackType { return model.AttackSQLInjection }

func (r SQLInjection) Evaluate(group Group, now int64) []model.AlertCandidate {
	for _, p := range group.Packets {
		if p.PayloadSample == "" {
			continue
		}
		for _, sig := range r.Signatures {
			if sig != "" && strings.Contains(p.PayloadSample, sig) {
				desc := "SQL Injection signature detected in HTTP payload."
				return []model.AlertCandidate{candidate(group, model.AttackSQLInjection, model.SeverityHigh, 1, desc, now)}
			}
		}
	}
	return nil
}
