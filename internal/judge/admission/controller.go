package admission

import (
	"context"

	"codejudge/internal/judge/model"
)

// Controller is the process-wide admission state shared across submissions.
type Controller struct {
	Gate    *ConcurrencyGate
	Limiter *RateLimiter
}

// NewController builds admission state from a validated config.
func NewController(cfg model.Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		Gate:    NewConcurrencyGate(cfg.MaxConcurrent),
		Limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.EffectiveBurst()),
	}, nil
}

// Admit takes a concurrency slot and then a rate token. The slot is released
// if the token cannot be obtained.
func (c *Controller) Admit(ctx context.Context) (func(), error) {
	release, err := c.Gate.Acquire(ctx)
	if err != nil {
		return release, err
	}
	if err := c.Limiter.Acquire(ctx); err != nil {
		release()
		return func() {}, err
	}
	return release, nil
}
