package main

import (
	"fmt"
	"os"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/judge/envconfig"
	"codejudge/internal/judge/model"
	"codejudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultPistonURL       = "http://localhost:2000"
	defaultProbeTimeout    = 2 * time.Second
	defaultMaxSourceBytes  = 64 << 10
	defaultRuntimesTTL     = 5 * time.Minute
	defaultSubmissionTopic = "judge.submissions"
	defaultVerdictTopic    = "judge.verdicts"
	defaultMetricsPath     = "/metrics"
	defaultHostInterval    = 5 * time.Second
	defaultLocalCacheSize  = 10000
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// PistonConfig holds remote execution settings.
type PistonConfig struct {
	URL              string        `yaml:"url"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout"`
	RunTimeout       time.Duration `yaml:"runTimeout"`
	FallbackToPublic bool          `yaml:"fallbackToPublic"`
	RuntimesTTL      time.Duration `yaml:"runtimesTTL"`
}

// JudgeConfig holds evaluation limits.
type JudgeConfig struct {
	model.Config   `yaml:",inline"`
	MaxSourceBytes int `yaml:"maxSourceBytes"`
}

// KafkaConfig holds queue-driven evaluation settings.
type KafkaConfig struct {
	mq.KafkaConfig  `yaml:",inline"`
	Enabled         bool          `yaml:"enabled"`
	SubmissionTopic string        `yaml:"submissionTopic"`
	VerdictTopic    string        `yaml:"verdictTopic"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
	GroupID         string        `yaml:"groupID"`
	Concurrency     int           `yaml:"concurrency"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
}

// RedisConfig holds the Redis used by the inbound limiter and runtime cache.
// When disabled both fall back to an in-process cache of LocalCacheSize keys.
type RedisConfig struct {
	cache.RedisConfig `yaml:",inline"`
	Enabled           bool `yaml:"enabled"`
	LocalCacheSize    int  `yaml:"localCacheSize"`
}

// RateLimitConfig holds inbound throttling settings.
type RateLimitConfig struct {
	middleware.RateLimitPolicy `yaml:",inline"`
	RedisTimeout               time.Duration `yaml:"redisTimeout"`
}

// MetricsConfig holds prometheus settings.
type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Path         string        `yaml:"path"`
	Host         bool          `yaml:"host"`
	HostInterval time.Duration `yaml:"hostInterval"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig          `yaml:"server"`
	CORS      middleware.CORSConfig `yaml:"cors"`
	Logger    logger.Config         `yaml:"logger"`
	Piston    PistonConfig          `yaml:"piston"`
	Judge     JudgeConfig           `yaml:"judge"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	Redis     RedisConfig           `yaml:"redis"`
	RateLimit RateLimitConfig       `yaml:"rateLimit"`
	Metrics   MetricsConfig         `yaml:"metrics"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path when it exists, applies defaults and then the
// environment overrides. An empty path runs on defaults alone.
func loadAppConfig(path string, lookup func(string) (string, bool)) (*AppConfig, error) {
	cfg := AppConfig{
		Judge: JudgeConfig{Config: model.DefaultConfig()},
		CORS:  middleware.DefaultCORSConfig(),
	}
	cfg.Piston.FallbackToPublic = true
	cfg.Metrics.Enabled = true
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	if err := envconfig.Apply(&cfg.Piston.URL, &cfg.Judge.Config, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Judge.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required when redis is enabled")
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Piston.URL == "" {
		cfg.Piston.URL = defaultPistonURL
	}
	if cfg.Piston.ProbeTimeout == 0 {
		cfg.Piston.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Piston.RuntimesTTL == 0 {
		cfg.Piston.RuntimesTTL = defaultRuntimesTTL
	}
	if cfg.Judge.MaxSourceBytes <= 0 {
		cfg.Judge.MaxSourceBytes = defaultMaxSourceBytes
	}
	if cfg.Kafka.SubmissionTopic == "" {
		cfg.Kafka.SubmissionTopic = defaultSubmissionTopic
	}
	if cfg.Kafka.VerdictTopic == "" {
		cfg.Kafka.VerdictTopic = defaultVerdictTopic
	}
	if cfg.Kafka.Concurrency <= 0 {
		cfg.Kafka.Concurrency = cfg.Judge.MaxConcurrent
	}
	applyRedisDefaults(&cfg.Redis.RedisConfig)
	if cfg.Redis.LocalCacheSize <= 0 {
		cfg.Redis.LocalCacheSize = defaultLocalCacheSize
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.HostInterval == 0 {
		cfg.Metrics.HostInterval = defaultHostInterval
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}

func (k KafkaConfig) subscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		GroupID:         k.GroupID,
		Concurrency:     k.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetterTopic,
	}
}
