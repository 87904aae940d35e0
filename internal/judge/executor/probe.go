package executor

import (
	"context"
	"time"

	"codejudge/internal/judge/model"
)

const (
	defaultProbeTimeout = 2 * time.Second

	// Hosted API allows roughly 5 req/s; stay below it.
	PublicMaxConcurrent     = 1
	PublicRequestsPerSecond = 4
)

// Endpoint is the result of probing a configured service.
type Endpoint struct {
	BaseURL string
	Public  bool
	// Reason is set when the configured URL was replaced.
	Reason string
}

// ResolveEndpoint checks that baseURL answers with at least one runtime and
// falls back to the hosted public API otherwise.
func ResolveEndpoint(ctx context.Context, baseURL string, timeout time.Duration, opts ...Option) Endpoint {
	client := NewClient(baseURL, opts...)
	if client.Public() {
		return Endpoint{BaseURL: client.BaseURL(), Public: true}
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runtimes, err := client.Runtimes(probeCtx)
	switch {
	case err != nil:
		return Endpoint{BaseURL: PublicBaseURL, Public: true, Reason: "cannot reach " + client.BaseURL() + ": " + err.Error()}
	case len(runtimes) == 0:
		return Endpoint{BaseURL: PublicBaseURL, Public: true, Reason: client.BaseURL() + " has no runtimes installed"}
	}
	return Endpoint{BaseURL: client.BaseURL()}
}

// PublicLimits tightens admission settings for the hosted public API.
func PublicLimits(cfg model.Config) model.Config {
	cfg.MaxConcurrent = PublicMaxConcurrent
	cfg.RequestsPerSecond = PublicRequestsPerSecond
	cfg.BurstCapacity = PublicRequestsPerSecond
	return cfg
}
