package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RunStream is the Redis Stream carrying connector run events.
const RunStream = "connector-runs"

// runStreamMaxLen bounds the stream so long-lived deployments do not
// grow Redis memory without limit.
const runStreamMaxLen = 10000

// RedisBus publishes run events to Redis Streams.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisBus creates a Redis bus instance and verifies connectivity.
func NewRedisBus(redisURL string, logger zerolog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishRunEvent appends the event to the connector-runs stream.
func (rb *RedisBus) PublishRunEvent(ctx context.Context, event RunEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	fields := map[string]interface{}{
		"connector_id": event.ConnectorID,
		"run_id":       event.RunID,
		"phase":        event.Phase,
		"timestamp":    event.Timestamp,
	}
	if event.Detail != "" {
		fields["detail"] = event.Detail
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: RunStream,
		MaxLen: runStreamMaxLen,
		Approx: true,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	rb.logger.Debug().
		Str("run_id", event.RunID).
		Str("phase", event.Phase).
		Msg("Published run event")
	return nil
}

// HealthCheck performs a health check on the Redis connection.
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}
