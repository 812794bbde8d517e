package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

// EngineConfig controls scoring, rule sources and the verdict cache.
type EngineConfig struct {
	// Threshold is the score at or above which a candidate is phishing.
	Threshold float64 `envconfig:"THRESHOLD" default:"0.5" validate:"gt=0,max=1"`

	// Normalization divides the raw score; 0 means "sum of all weights".
	Normalization float64 `envconfig:"NORMALIZATION" default:"0" validate:"min=0"`

	// RulesFile is an optional YAML/JSON rule pack. When the database is
	// configured the pack is ignored in favour of stored rules.
	RulesFile string `envconfig:"RULES_FILE"`

	// SeedDefaults inserts the built-in rules into an empty database at startup.
	SeedDefaults bool `envconfig:"SEED_DEFAULTS" default:"true"`

	// Verdict cache (L1, in-process). Size 0 disables it.
	VerdictCacheSize int           `envconfig:"VERDICT_CACHE_SIZE" default:"10000" validate:"min=0"`
	VerdictCacheTTL  time.Duration `envconfig:"VERDICT_CACHE_TTL" default:"5m"`
}

// Scoring converts the configuration into engine scoring parameters.
func (c *EngineConfig) Scoring() ruleengine.Scoring {
	return ruleengine.Scoring{Normalization: c.Normalization, Threshold: c.Threshold}
}

// VerdictCacheEnabled reports whether the L1 verdict cache should be built.
func (c *EngineConfig) VerdictCacheEnabled() bool {
	return c.VerdictCacheSize > 0
}

// Validate checks the scoring parameters and that the rules file exists.
func (c *EngineConfig) Validate() error {
	if err := c.Scoring().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if c.VerdictCacheEnabled() && c.VerdictCacheTTL <= 0 {
		return fmt.Errorf("engine verdict cache TTL must be positive, got %s", c.VerdictCacheTTL)
	}

	if c.RulesFile != "" {
		info, err := os.Stat(c.RulesFile)
		if err != nil {
			return fmt.Errorf("engine rules file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("engine rules file %q is a directory", c.RulesFile)
		}
	}

	return nil
}
