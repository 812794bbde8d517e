//go:build integration

package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/phishguard/internal/cache"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/testsupport"
)

func TestRedisHistory_Integration(t *testing.T) {
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	client := redisCtr.Client
	history := cache.NewRedisHistory(client, 3)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should cap each kind's list at maxEntries", func(t *testing.T) {
		for i := range 5 {
			require.NoError(t, history.Append(ctx, cache.HistoryEntry{
				ID:        fmt.Sprintf("u%d", i),
				Kind:      ruleengine.KindURL,
				Input:     fmt.Sprintf("http://site%d.test", i),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		n, err := client.LLen(ctx, cache.HistoryKey(ruleengine.KindURL)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		got, err := history.List(ctx, ruleengine.KindURL, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "u4", got[0].ID)
		assert.Equal(t, "u2", got[2].ID)
	})

	t.Run("Should skip corrupted entries", func(t *testing.T) {
		require.NoError(t, client.LPush(ctx, cache.HistoryKey(ruleengine.KindEmail), "not-json").Err())
		require.NoError(t, history.Append(ctx, cache.HistoryEntry{ID: "e1", Kind: ruleengine.KindEmail, CreatedAt: base}))

		got, err := history.List(ctx, ruleengine.KindEmail, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "e1", got[0].ID)
	})

	t.Run("Should merge kinds and clear", func(t *testing.T) {
		all, err := history.List(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		require.NoError(t, history.Clear(ctx, ""))
		all, err = history.List(ctx, "", 0)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestRuleEvents_Integration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(context.Background())

	events := cache.NewRuleEvents(redisCtr.Client)

	ch, err := events.Subscribe(ctx)
	require.NoError(t, err)

	testsupport.AssertMetricDeltaAsync(t, "phishguard_rules_events_received_total", nil, 1, func() {
		testsupport.AssertMetricDelta(t, "phishguard_rules_events_published_total", map[string]string{"status": "success"}, 1, func() {
			require.NoError(t, events.PublishRulesChanged(ctx, "email"))
		})
	})

	select {
	case kind := <-ch:
		assert.Equal(t, "email", kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for rule change event")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, 2*time.Second, 10*time.Millisecond, "channel must close when the context is cancelled")
}

func TestRedisPoolMonitor_Integration(t *testing.T) {
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	monitorCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go cache.RunPoolMonitor(monitorCtx, redisCtr.Client, 10*time.Millisecond)

	for range 10 {
		require.NoError(t, redisCtr.Client.Ping(ctx).Err())
	}

	require.Eventually(t, func() bool {
		total := testsupport.GetMetricValue(t, "phishguard_redis_pool_connections", map[string]string{"state": "total"})
		hits := testsupport.GetMetricValue(t, "phishguard_redis_pool_hits_total", nil)
		return total > 0 && hits > 0
	}, 2*time.Second, 10*time.Millisecond)
}
