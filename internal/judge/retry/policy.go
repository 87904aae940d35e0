// Package retry decides whether a failed execution attempt is retried and when.
package retry

import (
	"math"
	"math/rand"
	"time"

	"codejudge/internal/judge/model"
)

// maxDuration is the largest delay representable as a time.Duration.
const maxDuration = float64(math.MaxInt64)

// Policy is an exponential backoff with multiplicative jitter.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	MaxDelay    time.Duration
	// Jitter returns a value in [0, 1). Defaults to math/rand.
	Jitter func() float64
}

// NewPolicy builds a policy from evaluation config.
func NewPolicy(cfg model.Config) *Policy {
	return &Policy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BaseBackoff,
		MaxDelay:    cfg.MaxBackoff,
	}
}

// NextDelay returns the wait before the next attempt, or false when attempt
// (1 based) was the last one: terminal outcome or retry budget spent.
func (p *Policy) NextDelay(attempt int, outcome model.ExecutionOutcome) (time.Duration, bool) {
	if outcome.Status.Terminal() {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.backoff(attempt), true
}

func (p *Policy) backoff(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	delay := float64(p.Base)
	limit := float64(p.MaxDelay)
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= 2*limit {
			// Already past the cap even with the smallest jitter factor.
			break
		}
		if delay >= 2*maxDuration {
			break
		}
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	delay *= 0.5 + jitter()
	if p.MaxDelay > 0 && delay > limit {
		return p.MaxDelay
	}
	if delay >= maxDuration {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
