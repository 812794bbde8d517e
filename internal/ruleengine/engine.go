package ruleengine

import (
	"fmt"
	"log/slog"
	"math"
)

// DefaultThreshold is the score at or above which a candidate is classified as phishing.
const DefaultThreshold = 0.5

// Scoring configures score normalization and classification.
type Scoring struct {
	// Normalization divides the raw score. Zero means "sum of all weights in the RuleSet".
	Normalization float64

	// Threshold is the classification cutoff in (0, 1]. Zero would classify a
	// candidate that matched nothing as phishing.
	Threshold float64
}

// DefaultScoring normalizes by total weight and classifies at DefaultThreshold.
func DefaultScoring() Scoring {
	return Scoring{Threshold: DefaultThreshold}
}

// Validate checks that normalization is finite and non-negative and the threshold is in (0, 1].
func (s Scoring) Validate() error {
	if s.Normalization < 0 || math.IsNaN(s.Normalization) || math.IsInf(s.Normalization, 0) {
		return fmt.Errorf("normalization must be a finite number >= 0, got %v", s.Normalization)
	}
	if !(s.Threshold > 0 && s.Threshold <= 1) {
		return fmt.Errorf("threshold must be greater than 0 and at most 1, got %v", s.Threshold)
	}
	return nil
}

// FailureHook observes predicates that errored or panicked.
type FailureHook func(f *PredicateFailure)

// Option customizes an Engine.
type Option func(*Engine)

// WithFailureHook registers a callback for recovered predicate failures (e.g. a metrics counter).
func WithFailureHook(hook FailureHook) Option {
	return func(e *Engine) {
		e.onFailure = hook
	}
}

// Engine is the orchestrator for rule evaluation.
// It owns no state across calls and is safe for concurrent use.
type Engine struct {
	scoring   Scoring
	logger    *slog.Logger // Dedicated logger instance (DI)
	onFailure FailureHook
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, scoring Scoring, opts ...Option) (*Engine, error) {
	if err := scoring.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		scoring: scoring,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Scoring returns the engine's scoring configuration.
func (e *Engine) Scoring() Scoring {
	return e.scoring
}

// Evaluate runs every rule in rs against c and aggregates the outcomes.
// It returns a *ValidationError (and runs no rule) if the candidate is invalid.
// A nil RuleSet is evaluated as an empty one.
func (e *Engine) Evaluate(rs *RuleSet, c Candidate) (*Verdict, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var rules []Rule
	if rs != nil {
		rules = rs.rules
	}

	outcomes := make([]RuleOutcome, len(rules))
	raw := 0.0

	for i, rule := range rules {
		matched, failure := e.invoke(rule, c)
		if matched {
			raw += rule.Weight
		}
		outcomes[i] = RuleOutcome{
			RuleName:    rule.Name,
			Matched:     matched,
			Description: rule.Description,
			Failure:     failure,
		}
	}

	score := e.normalize(raw, rs.TotalWeight())

	return &Verdict{
		Input:          c.Input,
		Kind:           c.Kind,
		IsPhishing:     score >= e.scoring.Threshold,
		Score:          score,
		RulesTriggered: outcomes,
		RawScore:       raw,
		RuleSetVersion: rs.Version(),
	}, nil
}

// normalize maps the raw score into [0, 1].
func (e *Engine) normalize(raw, totalWeight float64) float64 {
	n := e.scoring.Normalization
	if n == 0 {
		n = totalWeight
	}
	if n == 0 {
		return 0
	}
	return math.Min(raw/n, 1.0)
}

// invoke runs a single predicate, converting errors and panics into a non-match.
func (e *Engine) invoke(rule Rule, c Candidate) (matched bool, failure *PredicateFailure) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			failure = &PredicateFailure{Rule: rule.Name, Err: fmt.Errorf("%v", r), Panicked: true}
			e.reportFailure(failure)
		}
	}()

	ok, err := rule.Predicate.Match(c)
	if err != nil {
		// Fail Open Strategy: one bad rule never aborts the evaluation.
		failure = &PredicateFailure{Rule: rule.Name, Err: err}
		e.reportFailure(failure)
		return false, failure
	}
	return ok, nil
}

func (e *Engine) reportFailure(f *PredicateFailure) {
	e.logger.Warn("rule predicate failed",
		slog.String("rule", f.Rule),
		slog.String("reason", f.Reason()),
		slog.String("error", f.Err.Error()),
	)
	if e.onFailure != nil {
		e.onFailure(f)
	}
}
