package source

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a token bucket bounding the request rate against the
// source API.
type RateLimiter struct {
	tokens chan struct{}
	quit   chan struct{}
	refill time.Duration
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst capacity.
func NewRateLimiter(rps, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = rps
	}

	rl := &RateLimiter{
		tokens: make(chan struct{}, burst),
		quit:   make(chan struct{}),
		refill: time.Second / time.Duration(rps),
	}

	for i := 0; i < burst; i++ {
		rl.tokens <- struct{}{}
	}

	go rl.run()

	return rl
}

func (rl *RateLimiter) run() {
	ticker := time.NewTicker(rl.refill)
	defer ticker.Stop()

	for {
		select {
		case <-rl.quit:
			return
		case <-ticker.C:
			select {
			case rl.tokens <- struct{}{}:
			default:
				// Bucket is full
			}
		}
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rl.tokens:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("rate limit timeout")
	}
}

// Close stops the refill goroutine.
func (rl *RateLimiter) Close() {
	close(rl.quit)
}
