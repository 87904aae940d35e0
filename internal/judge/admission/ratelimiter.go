// Package admission bounds outbound traffic to the execution service.
//
// A Controller pairs a RateLimiter (requests per second) with a
// ConcurrencyGate (requests in flight). One Controller is meant to be shared
// by every orchestrator in the process; tests build their own.
package admission

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket refilled at a fixed rate up to a burst size.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter that starts with a full bucket.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Acquire blocks until a token is available and consumes it.
// Waiters are served in arrival order because each Wait reserves the next free
// slot under the limiter's lock. An error is returned only when ctx is done or
// its deadline falls before the reserved slot; the reservation is then given back.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Rate returns the configured refill rate per second.
func (l *RateLimiter) Rate() float64 {
	return float64(l.limiter.Limit())
}

// Burst returns the bucket capacity.
func (l *RateLimiter) Burst() int {
	return l.limiter.Burst()
}
