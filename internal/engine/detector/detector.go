// Package detector groups the analysis window by source address and runs the
// rule set over every group.
package detector

import (
	"CyberGuard/internal/engine/rules"
	"CyberGuard/internal/model"
)

// Options tunes evaluation cost without changing correctness.
type Options struct {
	// TouchedOnly restricts evaluation to sources present in the new batch.
	TouchedOnly bool
}

// Engine evaluates rule sets against packet windows. It holds no state
// between calls and never filters candidates.
type Engine struct {
	rules rules.RuleSet
	opts  Options
}

// New creates an engine over the given rules.
func New(rs rules.RuleSet, opts Options) *Engine {
	return &Engine{rules: rs, opts: opts}
}

// Rules returns the rule set the engine evaluates.
func (e *Engine) Rules() rules.RuleSet {
	return e.rules
}

// Evaluate returns every candidate produced by every rule for every source
// group in the snapshot. Groups are visited in first-appearance order.
func (e *Engine) Evaluate(newBatch, snapshot []model.Packet, now int64) []model.AlertCandidate {
	if len(snapshot) == 0 {
		return []model.AlertCandidate{}
	}

	var touched map[string]struct{}
	if e.opts.TouchedOnly {
		touched = make(map[string]struct{}, len(newBatch))
		for _, p := range newBatch {
			touched[p.SrcAddr] = struct{}{}
		}
	}

	candidates := []model.AlertCandidate{}
	for _, g := range GroupBySource(snapshot) {
		if touched != nil {
			if _, ok := touched[g.SrcAddr]; !ok {
				continue
			}
		}
		candidates = append(candidates, e.rules.Evaluate(g, now)...)
	}
	return candidates
}

// GroupBySource partitions packets by SrcAddr, preserving the order in which
// each source first appears and the relative order of packets within a group.
func GroupBySource(packets []model.Packet) []rules.Group {
	index := make(map[string]int)
	var groups []rules.Group
	for _, p := range packets {
		i, ok := index[p.SrcAddr]
		if !ok {
			i = len(groups)
			index[p.SrcAddr] = i
			groups = append(groups, rules.Group{SrcAddr: p.SrcAddr})
		}
		groups[i].Packets = append(groups[i].Packets, p)
	}
	return groups
}
