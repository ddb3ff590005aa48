package bus

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewBusWithoutRedisReturnsNullBus(t *testing.T) {
	b := NewBus("", zerolog.Nop())
	if _, ok := b.(*NullBus); !ok {
		t.Fatalf("expected *NullBus, got %T", b)
	}
}

func TestNewBusInvalidURLFallsBackToNullBus(t *testing.T) {
	b := NewBus("not-a-redis-url", zerolog.Nop())
	if _, ok := b.(*NullBus); !ok {
		t.Fatalf("expected *NullBus fallback, got %T", b)
	}
}

func TestNullBusOperationsSucceed(t *testing.T) {
	b := NewNullBus(zerolog.Nop())
	ctx := context.Background()

	err := b.PublishRunEvent(ctx, RunEvent{ConnectorID: "c1", RunID: "r1", Phase: "started"})
	if err != nil {
		t.Errorf("PublishRunEvent: %v", err)
	}
	if err := b.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
