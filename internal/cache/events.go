package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/observability"
)

// RulesChangedChannel is the Pub/Sub channel announcing rule writes.
// The payload is the candidate kind whose rules changed.
const RulesChangedChannel = "phishguard:rules:changed"

// RuleEvents publishes and receives rule change notifications over Redis Pub/Sub.
type RuleEvents struct {
	client redis.UniversalClient
}

// NewRuleEvents creates the notifier.
func NewRuleEvents(client redis.UniversalClient) *RuleEvents {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	return &RuleEvents{client: client}
}

// PublishRulesChanged announces that the rules of kind changed.
func (e *RuleEvents) PublishRulesChanged(ctx context.Context, kind string) error {
	if err := e.client.Publish(ctx, RulesChangedChannel, kind).Err(); err != nil {
		observability.RuleEventsPublished.WithLabelValues("fail").Inc()
		return fmt.Errorf("failed to publish rule change: %w", err)
	}
	observability.RuleEventsPublished.WithLabelValues("success").Inc()
	return nil
}

// Subscribe listens for rule change notifications until ctx is cancelled.
// The subscription is confirmed before Subscribe returns; the channel is closed on exit.
func (e *RuleEvents) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := e.client.Subscribe(ctx, RulesChangedChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", RulesChangedChannel, err)
	}

	out := make(chan string, 1)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		log := logger.FromContext(ctx)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					log.Warn("rule change subscription closed")
					return
				}
				observability.RuleEventsReceived.Inc()
				log.Debug("rule change received", slog.String("kind", msg.Payload))
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
