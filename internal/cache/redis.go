package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// HistoryKeyPrefix namespaces the per-kind history lists.
// Example: "phishguard:history:email"
const HistoryKeyPrefix = "phishguard:history"

// HistoryKey returns the Redis list key for kind.
func HistoryKey(kind ruleengine.Kind) string {
	return fmt.Sprintf("%s:%s", HistoryKeyPrefix, kind)
}

// RedisHistory stores history as one capped list per kind (LPUSH + LTRIM),
// so it is shared by every replica of the service.
type RedisHistory struct {
	client     redis.UniversalClient
	maxEntries int
}

// NewRedisHistory keeps at most maxEntries per kind.
func NewRedisHistory(client redis.UniversalClient, maxEntries int) *RedisHistory {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	validation.AssertPositive(maxEntries, "cache", "history maxEntries")
	return &RedisHistory{client: client, maxEntries: maxEntries}
}

// Append pushes entry to the head of its kind's list and trims the tail in one round trip.
func (h *RedisHistory) Append(ctx context.Context, entry HistoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	key := HistoryKey(entry.Kind)
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, int64(h.maxEntries-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. Undecodable entries are skipped and logged.
func (h *RedisHistory) List(ctx context.Context, kind ruleengine.Kind, limit int) ([]HistoryEntry, error) {
	kinds := []ruleengine.Kind{kind}
	if kind == "" {
		kinds = ruleengine.Kinds
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	var out []HistoryEntry
	for _, k := range kinds {
		raw, err := h.client.LRange(ctx, HistoryKey(k), 0, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read history for %q: %w", k, err)
		}
		for _, item := range raw {
			var entry HistoryEntry
			if err := json.Unmarshal([]byte(item), &entry); err != nil {
				logger.FromContext(ctx).Warn("skipping corrupted history entry",
					slog.String("kind", string(k)),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = append(out, entry)
		}
	}

	return newestFirst(out, limit), nil
}

// Clear deletes the list of kind (or every list when kind is empty).
func (h *RedisHistory) Clear(ctx context.Context, kind ruleengine.Kind) error {
	keys := []string{HistoryKey(kind)}
	if kind == "" {
		keys = keys[:0]
		for _, k := range ruleengine.Kinds {
			keys = append(keys, HistoryKey(k))
		}
	}
	if err := h.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Backend returns "redis".
func (h *RedisHistory) Backend() string { return BackendRedis }
