package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineConfig_Validation(t *testing.T) {
	rulesFile := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte("rules: []\n"), 0o600))

	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should use defaults",
			envVars: map[string]string{},
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.5, cfg.Engine.Threshold)
				assert.Zero(t, cfg.Engine.Normalization)
				assert.True(t, cfg.Engine.SeedDefaults)
				assert.True(t, cfg.Engine.VerdictCacheEnabled())
				assert.Equal(t, 5*time.Minute, cfg.Engine.VerdictCacheTTL)
				assert.Equal(t, 0.5, cfg.Engine.Scoring().Threshold)
			},
			wantErr: false,
		},
		{
			name: "Should load custom scoring and rules file",
			envVars: map[string]string{
				"PHISHGUARD_ENGINE_THRESHOLD":          "0.75",
				"PHISHGUARD_ENGINE_NORMALIZATION":      "2",
				"PHISHGUARD_ENGINE_RULES_FILE":         rulesFile,
				"PHISHGUARD_ENGINE_VERDICT_CACHE_SIZE": "0",
			},
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.75, cfg.Engine.Threshold)
				assert.Equal(t, 2.0, cfg.Engine.Scoring().Normalization)
				assert.Equal(t, rulesFile, cfg.Engine.RulesFile)
				assert.False(t, cfg.Engine.VerdictCacheEnabled())
			},
			wantErr: false,
		},
		{
			name:    "Should fail validation on a threshold above 1",
			envVars: map[string]string{"PHISHGUARD_ENGINE_THRESHOLD": "1.5"},
			wantErr: true,
		},
		{
			name:    "Should fail validation on a zero threshold",
			envVars: map[string]string{"PHISHGUARD_ENGINE_THRESHOLD": "0"},
			wantErr: true,
		},
		{
			name:    "Should fail validation on a negative normalization",
			envVars: map[string]string{"PHISHGUARD_ENGINE_NORMALIZATION": "-1"},
			wantErr: true,
		},
		{
			name:    "Should fail validation on a missing rules file",
			envVars: map[string]string{"PHISHGUARD_ENGINE_RULES_FILE": filepath.Join(t.TempDir(), "missing.yaml")},
			wantErr: true,
		},
		{
			name:    "Should fail validation on a zero cache TTL with the cache enabled",
			envVars: map[string]string{"PHISHGUARD_ENGINE_VERDICT_CACHE_TTL": "0s"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}

func TestHistoryConfig(t *testing.T) {
	t.Run("Should resolve backends", func(t *testing.T) {
		c := HistoryConfig{Enabled: true, Backend: HistoryBackendAuto}
		assert.Equal(t, HistoryBackendMemory, c.ResolvedBackend(false))
		assert.Equal(t, HistoryBackendRedis, c.ResolvedBackend(true))

		c.Backend = HistoryBackendMemory
		assert.Equal(t, HistoryBackendMemory, c.ResolvedBackend(true))

		c.Enabled = false
		assert.Equal(t, "disabled", c.ResolvedBackend(true))
	})

	t.Run("Should reject the redis backend without redis", func(t *testing.T) {
		t.Setenv("PHISHGUARD_HISTORY_BACKEND", "redis")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("Should reject an unknown backend", func(t *testing.T) {
		t.Setenv("PHISHGUARD_HISTORY_BACKEND", "sqlite")

		_, err := Load()
		assert.Error(t, err)
	})
}
