package ruleengine

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleConstruction is the category of every error returned while building a RuleSet.
	ErrRuleConstruction = errors.New("rule construction failed")

	// ErrUnknownRuleType is returned when a Definition names a strategy the engine does not know.
	ErrUnknownRuleType = errors.New("unknown rule type")
)

// ValidationError reports a candidate that cannot be evaluated.
// It is returned before any rule runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateRuleNameError reports two rules sharing a name within one RuleSet.
type DuplicateRuleNameError struct {
	Name       string
	FirstIndex int
	Index      int
}

func (e *DuplicateRuleNameError) Error() string {
	return fmt.Sprintf("duplicate rule name %q at positions %d and %d", e.Name, e.FirstIndex, e.Index)
}

// Unwrap places the error in the ErrRuleConstruction category.
func (e *DuplicateRuleNameError) Unwrap() error { return ErrRuleConstruction }

// InvalidWeightError reports a negative or non-finite weight, or a weight
// that pushes the RuleSet total past the float64 range.
type InvalidWeightError struct {
	Name   string
	Index  int
	Weight float64

	// Overflow is set when the weight is valid on its own but the running total is not finite.
	Overflow bool
}

func (e *InvalidWeightError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("rule %q at position %d has weight %v that makes the total weight overflow", e.Name, e.Index, e.Weight)
	}
	return fmt.Sprintf("rule %q at position %d has invalid weight %v (must be a finite number >= 0)", e.Name, e.Index, e.Weight)
}

// Unwrap places the error in the ErrRuleConstruction category.
func (e *InvalidWeightError) Unwrap() error { return ErrRuleConstruction }

// InvalidRuleError reports a rule that is structurally unusable: missing name,
// missing predicate, unknown type or malformed parameters.
type InvalidRuleError struct {
	Name  string
	Index int
	Err   error
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule %q at position %d: %v", e.Name, e.Index, e.Err)
}

// Unwrap exposes both the construction category and the underlying cause.
func (e *InvalidRuleError) Unwrap() []error { return []error{ErrRuleConstruction, e.Err} }

// PredicateFailure records a predicate that returned an error or panicked.
// The engine absorbs it and treats the rule as a non-match.
type PredicateFailure struct {
	Rule     string
	Err      error
	Panicked bool
}

func (f *PredicateFailure) Error() string {
	if f.Panicked {
		return fmt.Sprintf("rule %q panicked: %v", f.Rule, f.Err)
	}
	return fmt.Sprintf("rule %q failed: %v", f.Rule, f.Err)
}

func (f *PredicateFailure) Unwrap() error { return f.Err }

// Reason returns a low-cardinality label for metrics.
func (f *PredicateFailure) Reason() string {
	if f.Panicked {
		return "panic"
	}
	return "error"
}
