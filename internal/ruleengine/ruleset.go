package ruleengine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// RuleSet is an ordered, immutable collection of rules.
// It is safe for concurrent use by any number of evaluations.
type RuleSet struct {
	rules       []Rule
	totalWeight float64
	version     string
}

// Build validates the rules and returns an immutable RuleSet.
// Predicates are not executed. Errors wrap ErrRuleConstruction.
func Build(rules []Rule) (*RuleSet, error) {
	seen := make(map[string]int, len(rules))
	owned := make([]Rule, len(rules))
	total := 0.0

	for i, r := range rules {
		if r.Name == "" {
			return nil, &InvalidRuleError{Index: i, Err: fmt.Errorf("name is required")}
		}
		if first, dup := seen[r.Name]; dup {
			return nil, &DuplicateRuleNameError{Name: r.Name, FirstIndex: first, Index: i}
		}
		if r.Weight < 0 || math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
			return nil, &InvalidWeightError{Name: r.Name, Index: i, Weight: r.Weight}
		}
		if r.Predicate == nil {
			return nil, &InvalidRuleError{Name: r.Name, Index: i, Err: fmt.Errorf("predicate is required")}
		}

		total += r.Weight
		if math.IsInf(total, 0) {
			return nil, &InvalidWeightError{Name: r.Name, Index: i, Weight: r.Weight, Overflow: true}
		}

		seen[r.Name] = i
		owned[i] = r
	}

	return &RuleSet{
		rules:       owned,
		totalWeight: total,
		version:     fingerprint(owned),
	}, nil
}

// MustBuild is like Build but panics on error. Intended for static rule sets.
func MustBuild(rules []Rule) *RuleSet {
	rs, err := Build(rules)
	if err != nil {
		panic(err)
	}
	return rs
}

// Empty returns a RuleSet with no rules.
func Empty() *RuleSet {
	return &RuleSet{version: fingerprint(nil)}
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Rules returns a copy of the rules in order.
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Rule returns the rule with the given name.
func (rs *RuleSet) Rule(name string) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}
	for _, r := range rs.rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// TotalWeight is the sum of all rule weights (the default normalization constant).
func (rs *RuleSet) TotalWeight() float64 {
	if rs == nil {
		return 0
	}
	return rs.totalWeight
}

// Version is a deterministic fingerprint of the ordered rule metadata.
// Two sets built from the same definitions share a version.
func (rs *RuleSet) Version() string {
	if rs == nil {
		return fingerprint(nil)
	}
	return rs.version
}

// fingerprint hashes name, description, weight, type and parameters of every rule in order.
func fingerprint(rules []Rule) string {
	h := murmur3.New128()
	var buf [8]byte
	for _, r := range rules {
		writeField(h, r.Name)
		writeField(h, r.Description)
		writeField(h, r.Type)
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(r.Weight))
		_, _ = h.Write(buf[:])
		_, _ = h.Write(r.params)
		_, _ = h.Write([]byte{0})
	}
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}

func writeField(h murmur3.Hash128, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{0})
}
