// Package bus publishes run lifecycle events to Redis Streams so
// external observers can follow connector activity. Without Redis the
// connector runs fine on the no-op bus.
package bus

import (
	"context"

	"github.com/rs/zerolog"
)

// RunEvent is one lifecycle event of a connector run.
type RunEvent struct {
	ConnectorID string `json:"connector_id"`
	RunID       string `json:"run_id"`
	Phase       string `json:"phase"`
	Detail      string `json:"detail,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Bus defines the interface for event bus implementations.
type Bus interface {
	// PublishRunEvent publishes an event to the connector-runs stream.
	PublishRunEvent(ctx context.Context, event RunEvent) error

	// HealthCheck performs a health check on the bus connection.
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection.
	Close() error
}

// NewBus creates a bus instance based on the Redis URL. An empty or
// unreachable URL yields a NullBus.
func NewBus(redisURL string, logger zerolog.Logger) Bus {
	if redisURL == "" {
		return NewNullBus(logger)
	}

	if redisBus, err := NewRedisBus(redisURL, logger); err == nil {
		return redisBus
	} else {
		logger.Warn().Err(err).Msg("Redis unavailable, run events disabled")
	}

	return NewNullBus(logger)
}
