// Package syncer keeps the in-process rule Registry in step with the rule source
// (built-in library, rule pack file or PostgreSQL).
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/phishguard/internal/observability"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// ErrNotLoaded is reported by Check until the first successful reload.
var ErrNotLoaded = errors.New("rule sets not loaded yet")

// Bounds of the exponential backoff between rule change subscription attempts.
const (
	DefaultResubscribeDelay = time.Second
	maxResubscribeDelay     = 30 * time.Second
)

// Config holds the configuration for the Syncer service.
type Config struct {
	// Interval is the duration between reload cycles (polling). Zero disables polling.
	Interval time.Duration

	// ResubscribeDelay is the first wait before resubscribing to rule change
	// notifications; it doubles on every failed attempt. Zero means DefaultResubscribeDelay.
	ResubscribeDelay time.Duration
}

func (c Config) resubscribeDelay() time.Duration {
	if c.ResubscribeDelay <= 0 {
		return DefaultResubscribeDelay
	}
	return c.ResubscribeDelay
}

// EventSource delivers rule change notifications (see cache.RuleEvents).
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithEvents makes Run reload whenever a rule change notification arrives.
func WithEvents(events EventSource) Option {
	return func(s *Service) {
		s.events = events
	}
}

// Service orchestrates rule reloads.
type Service struct {
	logger   *slog.Logger
	config   Config
	source   Source
	registry *ruleengine.Registry
	events   EventSource

	mu     sync.Mutex // serializes reloads
	loaded atomic.Bool
}

// New creates a new Syncer service.
func New(logger *slog.Logger, cfg Config, source Source, registry *ruleengine.Registry, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		panic("syncer: rule source cannot be nil")
	}
	validation.AssertNotNil(registry, "syncer", "registry")

	s := &Service{
		logger:   logger.With(slog.String("component", "syncer"), slog.String("source", source.Name())),
		config:   cfg,
		source:   source,
		registry: registry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reloads once immediately, then on every tick and every rule change notification.
// It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service", slog.String("interval", s.config.Interval.String()))

	if _, err := s.Reload(ctx); err != nil {
		s.logger.Error("initial reload failed", slog.String("error", err.Error()))
	}

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		notifications <-chan string
		resubscribe   <-chan time.Time
		delay         = s.config.resubscribeDelay()
	)

	// subscribe reports whether the subscription is live; on failure it schedules a retry.
	subscribe := func() bool {
		ch, err := s.events.Subscribe(ctx)
		if err != nil {
			s.logger.Warn("rule change subscription failed, retrying",
				slog.Duration("backoff", delay), slog.String("error", err.Error()))
			resubscribe = time.After(delay)
			delay = min(delay*2, maxResubscribeDelay)
			return false
		}
		notifications = ch
		delay = s.config.resubscribeDelay()
		return true
	}
	if s.events != nil {
		subscribe()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping...")
			return nil
		case <-tick:
			s.reloadAndLog(ctx, "tick")
		case <-resubscribe:
			resubscribe = nil
			if subscribe() {
				s.logger.Info("rule change subscription restored")
				// Changes announced while unsubscribed were lost.
				s.reloadAndLog(ctx, "resubscribe")
			}
		case kind, ok := <-notifications:
			if !ok {
				notifications = nil
				if ctx.Err() != nil {
					continue
				}
				s.logger.Warn("rule change subscription closed, resubscribing", slog.Duration("backoff", delay))
				resubscribe = time.After(delay)
				delay = min(delay*2, maxResubscribeDelay)
				continue
			}
			s.logger.Debug("rule change notification", slog.String("kind", kind))
			s.reloadAndLog(ctx, "event")
		}
	}
}

func (s *Service) reloadAndLog(ctx context.Context, trigger string) {
	if _, err := s.Reload(ctx); err != nil {
		// The previous rule sets stay active; retry on the next trigger.
		s.logger.Error("reload cycle failed", slog.String("trigger", trigger), slog.String("error", err.Error()))
	}
}

// Reload reads every definition from the source and rebuilds one RuleSet per kind.
// It is all-or-nothing: if any definition fails to compile, no kind is swapped and
// the previously active sets keep serving. It reports whether any kind changed.
func (s *Service) Reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { observability.RuleSetReloadDuration.Observe(time.Since(start).Seconds()) }()

	defs, err := s.source.Definitions(ctx)
	if err != nil {
		observability.RuleSetReloadsTotal.WithLabelValues(observability.ReloadFailed).Inc()
		return false, fmt.Errorf("failed to read rule definitions: %w", err)
	}

	sets, err := buildAll(defs)
	if err != nil {
		observability.RuleSetReloadsTotal.WithLabelValues(observability.ReloadFailed).Inc()
		return false, err
	}

	changed := false
	for _, kind := range ruleengine.Kinds {
		next := sets[kind]
		observability.ActiveRules.WithLabelValues(string(kind)).Set(float64(next.Len()))
		if s.registry.Load(kind).Version() == next.Version() {
			continue
		}
		if _, err := s.registry.Store(kind, next); err != nil {
			return changed, err
		}
		changed = true
		s.logger.Info("rule set activated",
			slog.String("kind", string(kind)),
			slog.Int("rules", next.Len()),
			slog.Float64("total_weight", next.TotalWeight()),
			slog.String("version", next.Version()),
		)
	}

	s.loaded.Store(true)
	if changed {
		observability.RuleSetReloadsTotal.WithLabelValues(observability.ReloadSuccess).Inc()
	} else {
		observability.RuleSetReloadsTotal.WithLabelValues(observability.ReloadUnchanged).Inc()
	}
	return changed, nil
}

// buildAll builds a RuleSet for every known kind; kinds without definitions get an empty set.
func buildAll(defs []ruleengine.Definition) (map[ruleengine.Kind]*ruleengine.RuleSet, error) {
	groups := ruleengine.Partition(defs)

	sets := make(map[ruleengine.Kind]*ruleengine.RuleSet, len(ruleengine.Kinds))
	for _, kind := range ruleengine.Kinds {
		sets[kind] = ruleengine.Empty()
	}

	for kind, group := range groups {
		rs, err := ruleengine.BuildDefinitions(group)
		if err != nil {
			return nil, fmt.Errorf("failed to build %q rule set: %w", kind, err)
		}
		sets[kind] = rs
	}
	return sets, nil
}

// PublishRulesChanged reloads in-process. It lets the Service stand in for a
// Pub/Sub notifier when no Redis is configured.
func (s *Service) PublishRulesChanged(ctx context.Context, kind string) error {
	_, err := s.Reload(ctx)
	return err
}

// Name identifies the syncer in readiness reports.
func (s *Service) Name() string { return "rules" }

// Check reports ErrNotLoaded until a reload has succeeded.
func (s *Service) Check(context.Context) error {
	if !s.loaded.Load() {
		return ErrNotLoaded
	}
	return nil
}
