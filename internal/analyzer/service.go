// Package analyzer is the request path shared by the HTTP and gRPC APIs:
// validate, look up the verdict cache, evaluate against the active rule set,
// record metrics and history.
package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rafaeljc/phishguard/internal/cache"
	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/observability"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// Option customizes a Service.
type Option func(*Service)

// WithVerdictCache enables the L1 verdict cache.
func WithVerdictCache(c *cache.VerdictCache) Option {
	return func(s *Service) {
		s.verdicts = c
	}
}

// WithHistory records every verdict in h (best effort).
func WithHistory(h cache.HistoryStore) Option {
	return func(s *Service) {
		s.history = h
	}
}

// Service analyzes candidates against the Registry's active rule sets.
// It is safe for concurrent use.
type Service struct {
	engine   *ruleengine.Engine
	registry *ruleengine.Registry
	verdicts *cache.VerdictCache
	history  cache.HistoryStore
}

// New creates the analyzer. The engine and registry are mandatory.
func New(engine *ruleengine.Engine, registry *ruleengine.Registry, opts ...Option) *Service {
	validation.AssertNotNil(engine, "analyzer", "engine")
	validation.AssertNotNil(registry, "analyzer", "registry")

	s := &Service{engine: engine, registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEngine builds an engine whose predicate failures feed the failure metric.
func NewEngine(log *slog.Logger, scoring ruleengine.Scoring) (*ruleengine.Engine, error) {
	return ruleengine.New(log, scoring, ruleengine.WithFailureHook(func(f *ruleengine.PredicateFailure) {
		observability.PredicateFailuresTotal.WithLabelValues(f.Rule, f.Reason()).Inc()
	}))
}

// Analyze evaluates input as a candidate of the given kind.
// It returns a *ruleengine.ValidationError for unusable input; any other
// failure (history, cache) is absorbed and logged.
func (s *Service) Analyze(ctx context.Context, kind ruleengine.Kind, input string) (*ruleengine.Verdict, error) {
	candidate, err := ruleengine.NewCandidate(kind, input)
	if err != nil {
		observability.InvalidCandidatesTotal.WithLabelValues(kindLabel(kind)).Inc()
		return nil, err
	}

	// One snapshot per request: a concurrent reload never mixes rule sets.
	rs := s.registry.Load(kind)

	var key string
	if s.verdicts != nil {
		key = cache.VerdictKey(rs.Version(), candidate)
		if v, ok := s.verdicts.Get(key); ok {
			s.record(ctx, v)
			return v, nil
		}
	}

	start := time.Now()
	verdict, err := s.engine.Evaluate(rs, candidate)
	if err != nil {
		return nil, err
	}
	observability.EvaluationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	observability.ScoreDistribution.WithLabelValues(string(kind)).Observe(verdict.Score)

	if s.verdicts != nil {
		s.verdicts.Set(key, verdict)
	}

	s.record(ctx, verdict)
	return verdict, nil
}

// record counts the verdict and appends it to history.
func (s *Service) record(ctx context.Context, v *ruleengine.Verdict) {
	observability.EvaluationsTotal.WithLabelValues(string(v.Kind), observability.VerdictLabel(v.IsPhishing)).Inc()

	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, cache.NewHistoryEntry(v)); err != nil {
		observability.HistoryAppendFailures.WithLabelValues(s.history.Backend()).Inc()
		logger.FromContext(ctx).Warn("failed to record history",
			slog.String("backend", s.history.Backend()),
			slog.String("error", err.Error()),
		)
	}
}

// RuleSet returns the active snapshot for kind.
func (s *Service) RuleSet(kind ruleengine.Kind) *ruleengine.RuleSet {
	return s.registry.Load(kind)
}

// Scoring returns the engine's scoring configuration.
func (s *Service) Scoring() ruleengine.Scoring {
	return s.engine.Scoring()
}

// History exposes the configured history store, or nil.
func (s *Service) History() cache.HistoryStore {
	return s.history
}

// IsValidationError reports whether err is a candidate validation failure.
func IsValidationError(err error) bool {
	var vErr *ruleengine.ValidationError
	return errors.As(err, &vErr)
}

// kindLabel bounds the metric label cardinality for unknown kinds.
func kindLabel(kind ruleengine.Kind) string {
	if kind.Valid() {
		return string(kind)
	}
	return "unknown"
}
