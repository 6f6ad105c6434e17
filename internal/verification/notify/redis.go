package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "verify:result:"

// RedisNotifier bridges result notifications across replicas via Redis
// pub/sub: whichever replica completes the fetch publishes, and every
// replica with waiting subscribers delivers.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) PublishResult(ctx context.Context, key string, report json.RawMessage) error {
	return n.client.Publish(ctx, channelPrefix+key, []byte(report)).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, key string) (<-chan json.RawMessage, func(), error) {
	pubsub := n.client.Subscribe(ctx, channelPrefix+key)
	// Confirm the subscription before handing the channel out so no
	// publish between subscribe and first receive is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan json.RawMessage, 1)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- json.RawMessage(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}
