package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/phishguard/internal/observability"
)

// poolStats is the subset of *pgxpool.Stat the monitor exports.
type poolStats struct {
	total, idle, inUse, max int32
	acquireCount            int64
	acquireDuration         time.Duration
	waitCount               int64
}

func statsOf(pool *pgxpool.Pool) poolStats {
	s := pool.Stat()
	return poolStats{
		total:           s.TotalConns(),
		idle:            s.IdleConns(),
		inUse:           s.AcquiredConns(),
		max:             s.MaxConns(),
		acquireCount:    s.AcquireCount(),
		acquireDuration: s.AcquireDuration(),
		waitCount:       s.EmptyAcquireCount(),
	}
}

// RunPoolMonitor exports pool statistics every interval until ctx is cancelled.
// pgxpool reports cumulative counters; the monitor adds the delta since the previous sample.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev poolStats
	prev = recordPoolStats(prev, statsOf(pool))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev = recordPoolStats(prev, statsOf(pool))
		}
	}
}

// recordPoolStats publishes cur and returns it as the baseline for the next sample.
func recordPoolStats(prev, cur poolStats) poolStats {
	observability.DBPoolConnections.WithLabelValues("total").Set(float64(cur.total))
	observability.DBPoolConnections.WithLabelValues("idle").Set(float64(cur.idle))
	observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(cur.inUse))
	observability.DBPoolConnections.WithLabelValues("max").Set(float64(cur.max))

	if d := cur.acquireCount - prev.acquireCount; d > 0 {
		observability.DBPoolAcquireCount.Add(float64(d))
	}
	if d := cur.acquireDuration - prev.acquireDuration; d > 0 {
		observability.DBPoolAcquireDuration.Add(d.Seconds())
	}
	if d := cur.waitCount - prev.waitCount; d > 0 {
		observability.DBPoolWaitCount.Add(float64(d))
	}
	return cur
}
