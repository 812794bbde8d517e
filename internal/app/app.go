// Package app wires the PhishGuard components from configuration.
// Both service binaries build the same App and differ only in the server they expose.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/phishguard/internal/analyzer"
	"github.com/rafaeljc/phishguard/internal/cache"
	"github.com/rafaeljc/phishguard/internal/config"
	"github.com/rafaeljc/phishguard/internal/database"
	"github.com/rafaeljc/phishguard/internal/observability"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/store"
	"github.com/rafaeljc/phishguard/internal/syncer"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// Notifier announces rule changes (cache.RuleEvents, or the syncer itself without Redis).
type Notifier interface {
	PublishRulesChanged(ctx context.Context, kind string) error
}

// App holds the long-lived components of a PhishGuard process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *ruleengine.Registry
	Rules    *syncer.Service
	Analyzer *analyzer.Service

	// Store is nil when no database is configured.
	Store store.RuleRepository

	// Notifier is never nil.
	Notifier Notifier

	// Checkers feed the readiness probe.
	Checkers []observability.Checker

	workers []func(ctx context.Context)
	closers []func()
	wg      sync.WaitGroup
}

// New connects the optional infrastructure, loads the rule sets and builds the analyzer.
// On error every resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *App, err error) {
	validation.AssertNotNil(cfg, "app", "config")
	if log == nil {
		log = slog.Default()
	}

	a := &App{Config: cfg, Logger: log, Registry: ruleengine.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	source, err := a.ruleSource(ctx)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.IsConfigured() {
		redisClient, err = cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		a.Checkers = append(a.Checkers, cache.NewHealthChecker(redisClient))
		a.workers = append(a.workers, func(ctx context.Context) {
			cache.RunPoolMonitor(ctx, redisClient, cfg.Observability.PoolMonitorInterval)
		})
	}

	var syncOpts []syncer.Option
	listening := redisClient != nil && cfg.Syncer.Enabled && cfg.Syncer.ListenForEvents
	if listening {
		events := cache.NewRuleEvents(redisClient)
		syncOpts = append(syncOpts, syncer.WithEvents(events))
		a.Notifier = events
	}

	a.Rules = syncer.New(log, syncer.Config{
		Interval:         cfg.Syncer.Interval,
		ResubscribeDelay: cfg.Syncer.ResubscribeDelay,
	}, source, a.Registry, syncOpts...)
	if !listening {
		// Without a broker the only instance to tell is this one.
		a.Notifier = a.Rules
	}

	// Fail fast: a process that cannot load its rules must not start serving.
	if _, err := a.Rules.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load rule sets: %w", err)
	}
	a.Checkers = append(a.Checkers, a.Rules)
	if cfg.Syncer.Enabled {
		a.workers = append(a.workers, func(ctx context.Context) {
			if err := a.Rules.Run(ctx); err != nil {
				log.Error("syncer stopped", slog.String("error", err.Error()))
			}
		})
	}

	engine, err := analyzer.NewEngine(log, cfg.Engine.Scoring())
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}

	var opts []analyzer.Option
	if cfg.Engine.VerdictCacheEnabled() {
		verdicts, err := cache.NewVerdictCache(cfg.Engine.VerdictCacheSize, cfg.Engine.VerdictCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create verdict cache: %w", err)
		}
		a.closers = append(a.closers, verdicts.Close)
		a.workers = append(a.workers, func(ctx context.Context) {
			verdicts.RunMetricsCollector(ctx, cfg.Observability.PoolMonitorInterval)
		})
		opts = append(opts, analyzer.WithVerdictCache(verdicts))
	}

	switch backend := cfg.History.ResolvedBackend(redisClient != nil); backend {
	case config.HistoryBackendRedis:
		opts = append(opts, analyzer.WithHistory(cache.NewRedisHistory(redisClient, cfg.History.MaxEntries)))
	case config.HistoryBackendMemory:
		opts = append(opts, analyzer.WithHistory(cache.NewMemoryHistory(cfg.History.MaxEntries)))
	}

	a.Analyzer = analyzer.New(engine, a.Registry, opts...)

	log.Info("application initialized",
		slog.String("rule_source", source.Name()),
		slog.Int("url_rules", a.Registry.Load(ruleengine.KindURL).Len()),
		slog.Int("email_rules", a.Registry.Load(ruleengine.KindEmail).Len()),
		slog.Bool("rule_events", listening),
	)
	return a, nil
}

// ruleSource picks where rule definitions come from: the database when configured
// (seeding an empty one with the built-in library), else the rules file, else the built-ins.
func (a *App) ruleSource(ctx context.Context) (syncer.Source, error) {
	cfg := a.Config

	if cfg.Database.IsConfigured() {
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Checkers = append(a.Checkers, database.NewHealthChecker(pool))
		a.workers = append(a.workers, func(ctx context.Context) {
			database.RunPoolMonitor(ctx, pool, cfg.Observability.PoolMonitorInterval)
		})

		repo := store.NewPostgresStore(pool)
		a.Store = repo

		if cfg.Engine.SeedDefaults {
			if err := seedIfEmpty(ctx, a.Logger, repo); err != nil {
				return nil, err
			}
		}
		return syncer.NewStoreSource(repo), nil
	}

	if cfg.Engine.RulesFile != "" {
		return syncer.NewFileSource(cfg.Engine.RulesFile), nil
	}
	return syncer.DefaultSource(), nil
}

// seedIfEmpty inserts the built-in rules only into a store without any rule,
// so rules deleted by operators are not resurrected on restart.
func seedIfEmpty(ctx context.Context, log *slog.Logger, repo store.RuleRepository) error {
	_, total, err := repo.ListRules(ctx, "", 1, 0)
	if err != nil {
		return fmt.Errorf("failed to inspect rule store: %w", err)
	}
	if total > 0 {
		return nil
	}

	added, err := repo.SeedRules(ctx, ruleengine.DefaultDefinitions())
	if err != nil {
		return fmt.Errorf("failed to seed default rules: %w", err)
	}
	log.Info("seeded default rules", slog.Int("count", added))
	return nil
}

// Start launches the background workers (syncer loop, pool monitors, cache metrics).
// They stop when ctx is cancelled; Wait blocks until they have.
func (a *App) Start(ctx context.Context) {
	for _, work := range a.workers {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			work(ctx)
		}()
	}
}

// Wait blocks until every worker started by Start has returned.
func (a *App) Wait() {
	a.wg.Wait()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
