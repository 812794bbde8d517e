package config

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalRequiredConfig provides database and Redis config needed for all tests
func minimalRequiredConfig() map[string]string {
	return map[string]string{
		"PHISHGUARD_DB_HOST":        "localhost",
		"PHISHGUARD_DB_PORT":        "5432",
		"PHISHGUARD_DB_NAME":        "phishguard_test",
		"PHISHGUARD_DB_USER":        "test_user",
		"PHISHGUARD_DB_PASSWORD":    "test_pass",
		"PHISHGUARD_REDIS_HOST":     "localhost",
		"PHISHGUARD_REDIS_PORT":     "6379",
		"PHISHGUARD_REDIS_PASSWORD": "redis_password_123",
	}
}

// mergeEnvVars merges additional env vars with minimal required config
func mergeEnvVars(additional map[string]string) map[string]string {
	result := minimalRequiredConfig()
	maps.Copy(result, additional)
	return result
}

// validProductionConfig returns a complete valid production configuration
// with all required database, Redis, and HTTP API settings for production tests
func validProductionConfig() map[string]string {
	return map[string]string{
		// App
		"PHISHGUARD_APP_ENV": "production",

		// Database
		"PHISHGUARD_DB_HOST":     "prod-db.example.com",
		"PHISHGUARD_DB_PORT":     "5432",
		"PHISHGUARD_DB_NAME":     "phishguard_prod",
		"PHISHGUARD_DB_USER":     "prod_user",
		"PHISHGUARD_DB_PASSWORD": "SuperSecure123!",
		"PHISHGUARD_DB_SSL_MODE": "require",

		// Redis
		"PHISHGUARD_REDIS_HOST":        "prod-redis.example.com",
		"PHISHGUARD_REDIS_PORT":        "6379",
		"PHISHGUARD_REDIS_PASSWORD":    "RedisSecure123!",
		"PHISHGUARD_REDIS_TLS_ENABLED": "true",

		// HTTP API
		"PHISHGUARD_SERVER_HTTP_API_KEY_HASH":  "5dec7e1c36e8ec7f526cfa8ff6dc788daad76f6dd34467662eb47990dca6b55d",
		"PHISHGUARD_SERVER_HTTP_TLS_ENABLED":   "true",
		"PHISHGUARD_SERVER_HTTP_TLS_CERT_FILE": "/certs/api-cert.pem",
		"PHISHGUARD_SERVER_HTTP_TLS_KEY_FILE":  "/certs/api-key.pem",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should use defaults when no env vars are set",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "phishguard", cfg.App.Name)
				assert.Equal(t, "dev", cfg.App.Version)
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "info", cfg.App.LogLevel)
				assert.Equal(t, "text", cfg.App.LogFormat)
				assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "8080", cfg.Server.HTTP.Port)
				assert.Equal(t, "50051", cfg.Server.GRPC.Port)
			},
			wantErr: false,
		},
		{
			name: "Should load all custom environment variables correctly",
			envVars: mergeEnvVars(map[string]string{
				"PHISHGUARD_APP_NAME":             "test-app",
				"PHISHGUARD_APP_VERSION":          "1.0.0",
				"PHISHGUARD_APP_ENV":              "staging",
				"PHISHGUARD_APP_LOG_LEVEL":        "debug",
				"PHISHGUARD_APP_LOG_FORMAT":       "json",
				"PHISHGUARD_APP_SHUTDOWN_TIMEOUT": "60s",
				"PHISHGUARD_SERVER_HTTP_PORT":  "9090",
				"PHISHGUARD_SERVER_GRPC_PORT":     "50052",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "test-app", cfg.App.Name)
				assert.Equal(t, "1.0.0", cfg.App.Version)
				assert.Equal(t, "staging", cfg.App.Environment)
				assert.Equal(t, "debug", cfg.App.LogLevel)
				assert.Equal(t, "json", cfg.App.LogFormat)
				assert.Equal(t, 60*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "9090", cfg.Server.HTTP.Port)
				assert.Equal(t, "50052", cfg.Server.GRPC.Port)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation on invalid environment value",
			envVars: mergeEnvVars(map[string]string{
				"PHISHGUARD_APP_ENV": "invalid",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log level",
			envVars: mergeEnvVars(map[string]string{
				"PHISHGUARD_APP_LOG_LEVEL": "trace",
			}),
			wantErr: true,
		},
		{
			name: "Should accept the otlp log format",
			envVars: mergeEnvVars(map[string]string{
				"PHISHGUARD_APP_LOG_FORMAT": "otlp",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, LogFormatOTLP, cfg.App.LogFormat)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation on invalid log format",
			envVars: mergeEnvVars(map[string]string{
				"PHISHGUARD_APP_LOG_FORMAT": "xml",
			}),
			wantErr: true,
		},
		{
			name: "Should pass validation in staging environment",
			envVars: mergeEnvVars(map[string]string{
				"PHISHGUARD_APP_ENV": "staging",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "staging", cfg.App.Environment)
			},
			wantErr: false,
		},
		{
			name: "Should allow missing passwords in non-production environments",
			envVars: mergeEnvVars(map[string]string{
				"PHISHGUARD_APP_ENV":        "development",
				"PHISHGUARD_DB_PASSWORD":    "", // Empty password OK in development
				"PHISHGUARD_REDIS_PASSWORD": "", // Empty password OK in development
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "", cfg.Database.Password)
				assert.Equal(t, "", cfg.Redis.Password)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup: Set environment variables for this test
			// t.Setenv automatically prevents parallel execution and cleans up after the test
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			// Execute
			cfg, err := Load()

			// Assert
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

func TestLoad_OptionalBackends(t *testing.T) {
	t.Run("Should load without database or redis", func(t *testing.T) {
		cfg, err := Load()

		require.NoError(t, err)
		assert.False(t, cfg.Database.IsConfigured())
		assert.False(t, cfg.Redis.IsConfigured())
		assert.False(t, cfg.RuleManagementEnabled())
		assert.Equal(t, HistoryBackendMemory, cfg.History.ResolvedBackend(cfg.Redis.IsConfigured()))
	})

	t.Run("Should reject a partially configured database", func(t *testing.T) {
		t.Setenv("PHISHGUARD_DB_HOST", "localhost")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("Should resolve the history backend to redis when configured", func(t *testing.T) {
		for key, value := range minimalRequiredConfig() {
			t.Setenv(key, value)
		}

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.RuleManagementEnabled())
		assert.Equal(t, HistoryBackendRedis, cfg.History.ResolvedBackend(cfg.Redis.IsConfigured()))
	})

	t.Run("Should not require an API key in production without a database", func(t *testing.T) {
		t.Setenv("PHISHGUARD_APP_ENV", "production")
		t.Setenv("PHISHGUARD_SERVER_HTTP_TLS_ENABLED", "true")
		t.Setenv("PHISHGUARD_SERVER_HTTP_TLS_CERT_FILE", "/certs/api-cert.pem")
		t.Setenv("PHISHGUARD_SERVER_HTTP_TLS_KEY_FILE", "/certs/api-key.pem")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Empty(t, cfg.Server.HTTP.APIKeyHash)
	})
}
