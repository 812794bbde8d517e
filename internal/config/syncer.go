package config

import "time"

// SyncerConfig controls the background rule reload loop.
type SyncerConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Interval between periodic reloads from the rule source.
	Interval time.Duration `envconfig:"INTERVAL" default:"30s" validate:"gt=0"`

	// ListenForEvents also reloads on rule change notifications (Redis pub/sub).
	ListenForEvents bool `envconfig:"LISTEN_FOR_EVENTS" default:"true"`

	// ResubscribeDelay is the first backoff after the notification subscription drops.
	ResubscribeDelay time.Duration `envconfig:"RESUBSCRIBE_DELAY" default:"1s" validate:"gt=0"`

	// Event publishing retries, used by the HTTP API after rule writes.
	PublishMaxRetries int           `envconfig:"PUBLISH_MAX_RETRIES" default:"3" validate:"min=0"`
	PublishRetryDelay time.Duration `envconfig:"PUBLISH_RETRY_DELAY" default:"100ms"`
}
