package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Bus fans audit events out to live subscribers. Grounded on the
// teacher's eventbus.RedisBus, narrowed to a single well-known channel
// since the balancer has no per-session routing to do.
type Bus struct {
	client redis.Cmdable
	logger *slog.Logger
}

func NewBus(client redis.Cmdable, logger *slog.Logger) *Bus {
	return &Bus{client: client, logger: logger.With("component", "audit-bus")}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return b.client.Publish(ctx, ChannelKey(), data).Err()
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	client, ok := b.client.(*redis.Client)
	if !ok {
		return nil, fmt.Errorf("invalid redis client type for subscribe")
	}

	pubSub := client.Subscribe(ctx, ChannelKey())
	ch := make(chan Event)

	go func() {
		defer close(ch)
		defer func() {
			if err := pubSub.Close(); err != nil {
				b.logger.Error("failed to close pubsub", "error", err)
			}
		}()

		for msg := range pubSub.Channel() {
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.logger.Error("failed to unmarshal audit event", "error", err)
				continue
			}
			ch <- e
		}
	}()

	return ch, nil
}
