// Package ruleengine provides the core logic for phishing evaluation.
// It implements a Strategy pattern where weighted rules (predicates) are
// evaluated against a candidate URL or email and aggregated into a Verdict.
package ruleengine

import "encoding/json"

// Kind tags a Candidate with the type of content under evaluation.
type Kind string

const (
	// KindURL is a single absolute http(s) URL.
	KindURL Kind = "url"
	// KindEmail is free-form email text (plain or HTML).
	KindEmail Kind = "email"
)

// Kinds lists every supported candidate kind in a stable order.
var Kinds = []Kind{KindURL, KindEmail}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindURL || k == KindEmail
}

// Predicate is a pure, deterministic match function over a Candidate.
// Implementations must not perform I/O or mutate shared state.
type Predicate interface {
	Match(c Candidate) (bool, error)
}

// PredicateFunc adapts an ordinary function to the Predicate interface.
type PredicateFunc func(c Candidate) (bool, error)

// Match calls f(c).
func (f PredicateFunc) Match(c Candidate) (bool, error) {
	return f(c)
}

// MatchFunc adapts an infallible boolean function to the Predicate interface.
func MatchFunc(fn func(c Candidate) bool) Predicate {
	return PredicateFunc(func(c Candidate) (bool, error) {
		return fn(c), nil
	})
}

// Rule is a named, weighted predicate.
type Rule struct {
	// Name is unique within a RuleSet and stable across versions.
	Name string

	// Description is shown to the user whether or not the rule matched.
	Description string

	// Weight is added to the raw score when the rule matches. Must be >= 0.
	Weight float64

	// Predicate decides whether the rule matches a candidate.
	Predicate Predicate

	// Type is the strategy the rule was compiled from (empty for hand-written rules).
	Type string

	// params holds the raw definition parameters; it feeds the RuleSet fingerprint.
	params json.RawMessage
}

// RuleOutcome is the result of a single rule for a single evaluation.
type RuleOutcome struct {
	RuleName    string `json:"rule_name"`
	Matched     bool   `json:"matched"`
	Description string `json:"description"`

	// Failure is set when the predicate errored or panicked (treated as a non-match).
	Failure *PredicateFailure `json:"-"`
}

// Verdict is the outcome of evaluating one Candidate against one RuleSet.
// Verdicts are immutable once returned and must not be modified by callers.
type Verdict struct {
	// Input echoes the candidate for traceability.
	Input string `json:"url_or_input"`

	// Kind echoes the candidate kind.
	Kind Kind `json:"type"`

	// IsPhishing is Score >= threshold.
	IsPhishing bool `json:"is_phishing"`

	// Score is the normalized confidence in [0.0, 1.0].
	Score float64 `json:"score"`

	// RulesTriggered has one entry per rule, in RuleSet order.
	RulesTriggered []RuleOutcome `json:"rules_triggered"`

	// RawScore is the sum of matched weights before normalization.
	RawScore float64 `json:"-"`

	// RuleSetVersion identifies the RuleSet snapshot that produced the verdict.
	RuleSetVersion string `json:"-"`
}

// Candidate returns the evaluated candidate.
func (v *Verdict) Candidate() Candidate {
	return Candidate{Kind: v.Kind, Input: v.Input}
}

// Matched returns the outcomes that matched, preserving RuleSet order.
func (v *Verdict) Matched() []RuleOutcome {
	matched := make([]RuleOutcome, 0, len(v.RulesTriggered))
	for _, o := range v.RulesTriggered {
		if o.Matched {
			matched = append(matched, o)
		}
	}
	return matched
}
