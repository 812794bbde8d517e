// Package cache provides the Redis and in-memory layers around the analyzer:
// verdict history, rule change notifications and the L1 verdict cache.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/phishguard/internal/config"
	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/observability"
)

// NewRedisClient initializes a new Redis client using the provided configuration.
// It handles connection pooling, TLS, and initial connectivity checks with retries.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	maxRetries := max(cfg.PingMaxRetries, 1)
	backoff := cfg.PingBackoff
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var lastErr error
	log := logger.FromContext(ctx)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			log.Info("redis ping successful", slog.Int("attempt", attempt))
			return client, nil
		}

		log.Warn("redis ping failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.Any("error", lastErr),
		)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, fmt.Errorf("failed to connect to redis: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", maxRetries, lastErr)
}

// clientOptions maps RedisConfig onto go-redis options. A URL, when present,
// supplies address, credentials and database; pool settings always come from cfg.
func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return opts, nil
}

// RunPoolMonitor exports go-redis pool statistics every interval until ctx is cancelled.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := recordPoolStats(&redis.PoolStats{}, client.PoolStats())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev = recordPoolStats(prev, client.PoolStats())
		}
	}
}

// recordPoolStats publishes cur and returns it as the baseline for the next sample.
func recordPoolStats(prev, cur *redis.PoolStats) *redis.PoolStats {
	observability.RedisPoolConnections.WithLabelValues("total").Set(float64(cur.TotalConns))
	observability.RedisPoolConnections.WithLabelValues("idle").Set(float64(cur.IdleConns))
	observability.RedisPoolConnections.WithLabelValues("stale").Set(float64(cur.StaleConns))

	if cur.Hits > prev.Hits {
		observability.RedisPoolHits.Add(float64(cur.Hits - prev.Hits))
	}
	if cur.Misses > prev.Misses {
		observability.RedisPoolMisses.Add(float64(cur.Misses - prev.Misses))
	}
	if cur.Timeouts > prev.Timeouts {
		observability.RedisPoolTimeouts.Add(float64(cur.Timeouts - prev.Timeouts))
	}
	return cur
}
