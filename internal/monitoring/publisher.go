package monitoring

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisAlertPublisher fans triggered alerts out over Redis pub/sub, the
// out-of-process consumption path grounded on the teacher's
// datapipeline/pipeline.go and wscluster/pubsub.go Redis wiring.
type RedisAlertPublisher struct {
	client *redis.Client
}

// NewRedisAlertPublisher wraps an existing redis client.
func NewRedisAlertPublisher(client *redis.Client) *RedisAlertPublisher {
	return &RedisAlertPublisher{client: client}
}

// Publish serializes the alert and publishes it to channel.
func (p *RedisAlertPublisher) Publish(ctx context.Context, channel string, alert Alert) error {
	payload, err := alert.marshal()
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, payload).Err()
}
