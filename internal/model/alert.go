package model

import (
	"fmt"
	"strings"
)

// AttackType classifies what a rule believes it has detected.
type AttackType uint8

const (
	AttackNone AttackType = iota
	AttackPortScan
	AttackSynFlood
	AttackBruteForce
	AttackSQLInjection
	AttackMalwareC2
)

// AttackTypes lists every declared attack type, AttackNone included.
func AttackTypes() []AttackType {
	return []AttackType{AttackNone, AttackPortScan, AttackSynFlood, AttackBruteForce, AttackSQLInjection, AttackMalwareC2}
}

// String returns the display name of the attack type.
//
//exhaustive:enforce
func (a AttackType) String() string {
	switch a {
	case AttackNone:
		return "Normal"
	case AttackPortScan:
		return "Port Scan"
	case AttackSynFlood:
		return "SYN Flood"
	case AttackBruteForce:
		return "Brute Force"
	case AttackSQLInjection:
		return "SQL Injection"
	case AttackMalwareC2:
		return "Malware C2"
	}
	return fmt.Sprintf("AttackType(%d)", uint8(a))
}

// Slug returns the snake_case identifier used in config files and URLs.
//
//exhaustive:enforce
func (a AttackType) Slug() string {
	switch a {
	case AttackNone:
		return "none"
	case AttackPortScan:
		return "port_scan"
	case AttackSynFlood:
		return "syn_flood"
	case AttackBruteForce:
		return "brute_force"
	case AttackSQLInjection:
		return "sql_injection"
	case AttackMalwareC2:
		return "malware_c2"
	}
	return fmt.Sprintf("attack_%d", uint8(a))
}

// Valid reports whether a is a declared attack type.
func (a AttackType) Valid() bool {
	return a <= AttackMalwareC2
}

// ParseAttackType accepts either the display name or the slug.
func ParseAttackType(s string) (AttackType, error) {
	for _, a := range AttackTypes() {
		if strings.EqualFold(s, a.String()) || strings.EqualFold(s, a.Slug()) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown attack type %q", s)
}

func (a AttackType) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid attack type %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *AttackType) UnmarshalText(text []byte) error {
	v, err := ParseAttackType(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Severity is ordered: SeverityInfo < SeverityLow < ... < SeverityCritical.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

//exhaustive:enforce
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

func ParseSeverity(s string) (Severity, error) {
	for _, sev := range Severities() {
		if strings.EqualFold(s, sev.String()) {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	if s > SeverityCritical {
		return nil, fmt.Errorf("cannot marshal invalid severity %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AlertCandidate is a rule hit that has not yet passed deduplication.
type AlertCandidate struct {
	AttackType    AttackType `json:"type"`
	Severity      Severity   `json:"severity"`
	SrcAddr       string     `json:"srcAddr"`
	TargetAddr    string     `json:"targetAddr"`
	Description   string     `json:"description"`
	EvidenceCount int        `json:"count"`
	DetectedAt    int64      `json:"timestamp"` // unix milliseconds
}

// Alert is an admitted candidate. AIAnalysis is the only field that changes
// after admission and it never takes part in deduplication.
type Alert struct {
	ID string `json:"id"`
	AlertCandidate
	AIAnalysis string `json:"aiAnalysis,omitempty"`
}
