// Package ratelimit throttles inbound requests with Redis fixed windows.
package ratelimit

import (
	"context"
	"time"

	"codejudge/internal/common/cache"
	appErr "codejudge/pkg/errors"
)

// Service counts hits per key in fixed windows.
type Service struct {
	cache        cache.Cache
	window       time.Duration
	redisTimeout time.Duration
}

// NewService creates a limiter. window is the default window length.
func NewService(c cache.Cache, window, redisTimeout time.Duration) *Service {
	if window <= 0 {
		window = time.Minute
	}
	if redisTimeout <= 0 {
		redisTimeout = 200 * time.Millisecond
	}
	return &Service{cache: c, window: window, redisTimeout: redisTimeout}
}

// Allow records a hit for key and fails with TooManyRequests once max is exceeded.
// max <= 0 disables the check.
func (s *Service) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if s.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if window <= 0 {
		window = s.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, s.redisTimeout)
	defer cancel()

	acquired, err := s.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = s.cache.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// A key created by Incr after expiry has no TTL.
		if ttl, ttlErr := s.cache.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
			_ = s.cache.Expire(ctxCache, key, window)
		}
	}
	if count > int64(max) {
		return appErr.Newf(appErr.TooManyRequests, "rate limit exceeded for %s", key).
			WithDetail("limit", max).
			WithDetail("window", window.String())
	}
	return nil
}
