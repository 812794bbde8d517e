package config

import "fmt"

// History backends.
const (
	HistoryBackendAuto   = "auto"
	HistoryBackendMemory = "memory"
	HistoryBackendRedis  = "redis"
)

// HistoryConfig controls the list of recent verdicts shown to users.
type HistoryConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Backend selects storage; "auto" uses Redis when configured, memory otherwise.
	Backend string `envconfig:"BACKEND" default:"auto" validate:"oneof=auto memory redis"`

	// MaxEntries is kept per candidate kind; older entries are trimmed.
	MaxEntries int `envconfig:"MAX_ENTRIES" default:"100" validate:"min=1,max=10000"`
}

// ResolvedBackend returns the concrete backend, or "disabled".
func (c *HistoryConfig) ResolvedBackend(redisConfigured bool) string {
	if !c.Enabled {
		return "disabled"
	}
	if c.Backend == HistoryBackendAuto {
		if redisConfigured {
			return HistoryBackendRedis
		}
		return HistoryBackendMemory
	}
	return c.Backend
}

// Validate rejects a Redis backend without Redis configuration.
func (c *HistoryConfig) Validate(redisConfigured bool) error {
	if c.Enabled && c.Backend == HistoryBackendRedis && !redisConfigured {
		return fmt.Errorf("history backend %q requires redis configuration", c.Backend)
	}
	return nil
}
