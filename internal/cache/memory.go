package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/phishguard/internal/observability"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

// VerdictCache is the L1 verdict cache, backed by otter's contention-free S3-FIFO cache.
// Keys include the RuleSet version, so a reload makes older verdicts unreachable;
// they age out through the TTL or eviction.
type VerdictCache struct {
	store otter.Cache[string, *ruleengine.Verdict]
}

// NewVerdictCache initializes the cache.
// capacity: max number of verdicts (hard cap to prevent OOM).
// ttl: time-to-live for each verdict.
func NewVerdictCache(capacity int, ttl time.Duration) (*VerdictCache, error) {
	store, err := otter.MustBuilder[string, *ruleengine.Verdict](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build verdict cache: %w", err)
	}
	return &VerdictCache{store: store}, nil
}

// VerdictKey derives the cache key for a candidate evaluated by a RuleSet version.
// The input is hashed (murmur3-128) to bound key size for long emails.
func VerdictKey(version string, c ruleengine.Candidate) string {
	hi, lo := murmur3.Sum128([]byte(c.Input))
	return fmt.Sprintf("%s:%s:%016x%016x", version, c.Kind, hi, lo)
}

// Get retrieves a verdict and records a hit or miss.
func (c *VerdictCache) Get(key string) (*ruleengine.Verdict, bool) {
	v, ok := c.store.Get(key)
	if ok {
		observability.VerdictCacheHits.Inc()
	} else {
		observability.VerdictCacheMisses.Inc()
	}
	return v, ok
}

// Set stores a verdict. Verdicts are immutable, so the pointer is shared by readers.
func (c *VerdictCache) Set(key string, v *ruleengine.Verdict) {
	c.store.Set(key, v)
}

// Len returns the number of cached verdicts.
func (c *VerdictCache) Len() int {
	return c.store.Size()
}

// RunMetricsCollector exports the item count every interval until ctx is cancelled.
func (c *VerdictCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		observability.VerdictCacheItems.Set(float64(c.store.Size()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops otter's background goroutines.
func (c *VerdictCache) Close() {
	c.store.Close()
}
