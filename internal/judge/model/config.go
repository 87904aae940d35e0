package model

import (
	"math"
	"time"

	appErr "codejudge/pkg/errors"
)

const (
	DefaultMaxConcurrent      = 10
	DefaultRequestsPerSecond  = 20
	DefaultMaxAttempts        = 3
	DefaultBaseBackoff        = time.Second
	DefaultMaxBackoff         = 30 * time.Second
	DefaultPerTestTimeout     = 10 * time.Second
	DefaultSubmissionDeadline = 2 * time.Minute
)

// Config carries the recognized evaluation options.
type Config struct {
	MaxConcurrent      int           `json:"max_concurrent" yaml:"maxConcurrent"`
	RequestsPerSecond  float64       `json:"requests_per_second" yaml:"requestsPerSecond"`
	BurstCapacity      int           `json:"burst_capacity" yaml:"burstCapacity"`
	MaxAttempts        int           `json:"max_attempts" yaml:"maxAttempts"`
	BaseBackoff        time.Duration `json:"base_backoff" yaml:"baseBackoff"`
	MaxBackoff         time.Duration `json:"max_backoff" yaml:"maxBackoff"`
	PerTestTimeout     time.Duration `json:"per_test_timeout" yaml:"perTestTimeout"`
	SubmissionDeadline time.Duration `json:"submission_deadline" yaml:"submissionDeadline"`
}

// DefaultConfig mirrors the limits of a self-hosted execution service.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:      DefaultMaxConcurrent,
		RequestsPerSecond:  DefaultRequestsPerSecond,
		BurstCapacity:      DefaultRequestsPerSecond,
		MaxAttempts:        DefaultMaxAttempts,
		BaseBackoff:        DefaultBaseBackoff,
		MaxBackoff:         DefaultMaxBackoff,
		PerTestTimeout:     DefaultPerTestTimeout,
		SubmissionDeadline: DefaultSubmissionDeadline,
	}
}

// EffectiveBurst returns the burst capacity, defaulting to ceil(RequestsPerSecond).
func (c Config) EffectiveBurst() int {
	if c.BurstCapacity > 0 {
		return c.BurstCapacity
	}
	return int(math.Ceil(c.RequestsPerSecond))
}

// Validate rejects configurations the orchestrator cannot run with.
// Zero durations mean "disabled": no per-test timeout, no submission deadline, no backoff.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrent <= 0:
		return appErr.ConfigError("maxConcurrent", "must be positive")
	case c.RequestsPerSecond <= 0 || math.IsInf(c.RequestsPerSecond, 0) || math.IsNaN(c.RequestsPerSecond):
		return appErr.ConfigError("requestsPerSecond", "must be a positive number")
	case c.BurstCapacity < 0:
		return appErr.ConfigError("burstCapacity", "must not be negative")
	case c.BurstCapacity > 0 && float64(c.BurstCapacity) < c.RequestsPerSecond:
		return appErr.ConfigError("burstCapacity", "must be at least requestsPerSecond")
	case c.MaxAttempts <= 0:
		return appErr.ConfigError("maxAttempts", "must be positive")
	case c.BaseBackoff < 0:
		return appErr.ConfigError("baseBackoff", "must not be negative")
	case c.MaxBackoff < 0:
		return appErr.ConfigError("maxBackoff", "must not be negative")
	case c.MaxBackoff > 0 && c.MaxBackoff < c.BaseBackoff:
		return appErr.ConfigError("maxBackoff", "must be at least baseBackoff")
	case c.PerTestTimeout < 0:
		return appErr.ConfigError("perTestTimeout", "must not be negative")
	case c.SubmissionDeadline < 0:
		return appErr.ConfigError("submissionDeadline", "must not be negative")
	}
	return nil
}

// Validate checks a submission before any task is spawned.
func (s Submission) Validate() error {
	if s.Language == "" {
		return appErr.ValidationError("language", "required")
	}
	if len(s.SourceCode) == 0 {
		return appErr.ValidationError("source_code", "required")
	}
	if len(s.TestCases) == 0 {
		return appErr.New(appErr.EmptySubmission)
	}
	return nil
}
