package rules

import (
	"fmt"
	"sort"

	"CyberGuard/internal/config"
)

// Factory builds a rule from the configured thresholds.
type Factory func(t Thresholds) Rule

var registry = make(map[string]Factory)

// Register adds a named rule factory. It panics on duplicate names, which
// can only happen through a programming error at init time.
func Register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("rule '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the sorted names of all known rules.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the named rules in the given order. An empty list selects
// the reference set.
func Build(names []string, t Thresholds) (RuleSet, error) {
	if len(names) == 0 {
		names = []string{"port_scan", "syn_flood", "brute_force", "sql_injection"}
	}
	set := make(RuleSet, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("rule '%s' listed twice", name)
		}
		seen[name] = true

		factory, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown rule: '%s'", name)
		}
		set = append(set, factory(t))
	}
	return set, nil
}

// FromConfig builds the enabled rules with the configured thresholds.
func FromConfig(cfg config.RulesConfig) (RuleSet, error) {
	return Build(cfg.Enabled, Thresholds{
		PortScanDistinctPorts: cfg.PortScanDistinctPorts,
		SynFloodPackets:       cfg.SynFloodPackets,
		BruteForceAttempts:    cfg.BruteForceAttempts,
		BruteForcePort:        cfg.BruteForcePort,
		SQLSignatures:         cfg.SQLSignatures,
	})
}

func init() {
	Register("port_scan", func(t Thresholds) Rule { return PortScan{MaxDistinctPorts: t.PortScanDistinctPorts} })
	Register("syn_flood", func(t Thresholds) Rule { return SynFlood{MaxPackets: t.SynFloodPackets} })
	Register("brute_force", func(t Thresholds) Rule {
		return BruteForce{MaxAttempts: t.BruteForceAttempts, Port: t.BruteForcePort}
	})
	Register("sql_injection", func(t Thresholds) Rule {
		sigs := append([]string(nil), t.SQLSignatures...)
		if len(sigs) == 0 {
			sigs = []string{DefaultSQLSignature}
		}
		return SQLInjection{Signatures: sigs}
	})
}
