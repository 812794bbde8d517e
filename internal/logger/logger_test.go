package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/phishguard/internal/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      config.AppConfig
		wantJSON bool
	}{
		{
			name:     "Should write JSON lines when format is json",
			cfg:      config.AppConfig{Name: "phishguard-api", Version: "1.0.0", Environment: "production", LogLevel: "info", LogFormat: config.LogFormatJSON},
			wantJSON: true,
		},
		{
			name:     "Should write logfmt lines when format is text",
			cfg:      config.AppConfig{Name: "phishguard-api", Version: "1.0.0", Environment: "development", LogLevel: "info", LogFormat: config.LogFormatText},
			wantJSON: false,
		},
		{
			name:     "Should fall back to JSON when format is otlp",
			cfg:      config.AppConfig{Name: "phishguard-api", Version: "1.0.0", Environment: "production", LogLevel: "info", LogFormat: config.LogFormatOTLP},
			wantJSON: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log := NewWithWriter(&tt.cfg, &buf)
			log.Info("hello")

			if tt.wantJSON {
				var line map[string]any
				require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
				assert.Equal(t, "hello", line["msg"])
				assert.Equal(t, "phishguard-api", line["service"])
				assert.Equal(t, "1.0.0", line["version"])
				assert.Equal(t, tt.cfg.Environment, line["env"])
				return
			}

			out := buf.String()
			assert.Contains(t, out, "msg=hello")
			assert.Contains(t, out, "service=phishguard-api")
			assert.Contains(t, out, "env=development")
		})
	}
}

func TestNewWithWriter_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := &config.AppConfig{Name: "svc", Environment: "production", LogLevel: "warn", LogFormat: config.LogFormatJSON}
	log := NewWithWriter(cfg, &buf)

	log.Info("dropped")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewWithWriter_Source(t *testing.T) {
	t.Parallel()

	t.Run("Should include source outside production", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&config.AppConfig{Environment: "development", LogFormat: config.LogFormatJSON}, &buf).Info("x")
		assert.Contains(t, buf.String(), `"source"`)
	})

	t.Run("Should omit source in production", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&config.AppConfig{Environment: "production", LogFormat: config.LogFormatJSON}, &buf).Info("x")
		assert.NotContains(t, buf.String(), `"source"`)
	})
}

func TestNewWithWriter_NilConfig(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"super-critical", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("Should parse "+tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestSetup_NonOTLP(t *testing.T) {
	t.Parallel()

	log, shutdown, err := Setup(context.Background(), &config.AppConfig{Name: "svc", LogFormat: config.LogFormatText})

	require.NoError(t, err)
	require.NotNil(t, log)
	assert.NoError(t, shutdown(context.Background()))
}

func TestLevelHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := &levelHandler{level: slog.LevelWarn, handler: slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})}
	log := slog.New(h).With("component", "test").WithGroup("g")

	log.Info("filtered")
	log.Error("passed", "k", "v")

	assert.NotContains(t, buf.String(), "filtered")
	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.Contains(t, buf.String(), `"g":{"k":"v"}`)
}
