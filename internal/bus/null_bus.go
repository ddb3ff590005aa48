package bus

import (
	"context"

	"github.com/rs/zerolog"
)

// NullBus is a no-op implementation used when Redis is disabled.
type NullBus struct {
	logger zerolog.Logger
}

// NewNullBus creates a null bus instance.
func NewNullBus(logger zerolog.Logger) *NullBus {
	return &NullBus{logger: logger}
}

// Close is a no-op for null bus.
func (nb *NullBus) Close() error {
	return nil
}

// PublishRunEvent logs the event at debug level without publishing.
func (nb *NullBus) PublishRunEvent(ctx context.Context, event RunEvent) error {
	nb.logger.Debug().
		Str("run_id", event.RunID).
		Str("phase", event.Phase).
		Msg("Run event (bus disabled)")
	return nil
}

// HealthCheck always succeeds for null bus.
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
