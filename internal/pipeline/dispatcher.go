package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashfaaq98/opencti-sync/internal/destination"
	"github.com/Ashfaaq98/opencti-sync/internal/retry"
	"github.com/Ashfaaq98/opencti-sync/internal/stix"
)

// BundleSender submits one bundle to the destination platform.
// Implemented by destination.Client; faked in tests.
type BundleSender interface {
	PushBundle(ctx context.Context, workID string, bundle stix.Bundle) (destination.Ack, error)
}

// Dispatcher buffers STIX objects and flushes them in bounded bundles.
// Submissions are retried per policy; between consecutive submissions a
// cooldown keeps the destination from being overwhelmed. Cancellation is
// observed at batch boundaries only, so an in-flight bundle either fully
// completes or is never started.
type Dispatcher struct {
	sender    BundleSender
	workID    string
	batchSize int
	cooldown  time.Duration
	retry     retry.Policy
	logger    zerolog.Logger

	pending   []stix.Object
	submitted int
	batches   int
}

// DispatcherConfig bounds the dispatcher's batching behavior.
type DispatcherConfig struct {
	WorkID    string
	BatchSize int
	Cooldown  time.Duration
	Retry     retry.Policy
}

// NewDispatcher creates a dispatcher submitting through sender.
func NewDispatcher(sender BundleSender, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	return &Dispatcher{
		sender:    sender,
		workID:    cfg.WorkID,
		batchSize: cfg.BatchSize,
		cooldown:  cfg.Cooldown,
		retry:     cfg.Retry,
		logger:    logger,
	}
}

// Add buffers objects, flushing full batches as they accumulate.
func (d *Dispatcher) Add(ctx context.Context, objects ...stix.Object) error {
	for _, obj := range objects {
		d.pending = append(d.pending, obj)
		if len(d.pending) >= d.batchSize {
			if err := d.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush submits whatever remains in the buffer, if anything.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if len(d.pending) == 0 {
		return nil
	}
	return d.flush(ctx)
}

// Submitted returns the number of objects acknowledged so far.
func (d *Dispatcher) Submitted() int { return d.submitted }

// Batches returns the number of bundles acknowledged so far.
func (d *Dispatcher) Batches() int { return d.batches }

func (d *Dispatcher) flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Cooldown before every submission after the first.
	if d.batches > 0 && d.cooldown > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cooldown):
		}
	}

	batch := d.pending
	if len(batch) > d.batchSize {
		batch = batch[:d.batchSize]
	}
	bundle := stix.NewBundle(batch)

	err := d.retry.Do(ctx, func() error {
		_, err := d.sender.PushBundle(ctx, d.workID, bundle)
		return err
	})
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("bundle_id", bundle.ID).
			Int("objects", len(batch)).
			Msg("Batch submission failed")
		return err
	}

	d.pending = d.pending[len(batch):]
	d.submitted += len(batch)
	d.batches++

	d.logger.Debug().
		Str("bundle_id", bundle.ID).
		Int("objects", len(batch)).
		Int("total_batches", d.batches).
		Msg("Batch submitted")

	return nil
}
