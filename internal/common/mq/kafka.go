package mq

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	headerID        = "x-message-id"
	headerTimestamp = "x-message-ts"
	headerAttempt   = "x-message-attempt"
	headerError     = "x-message-error"
)

// KafkaConfig configures the Kafka producer and consumers.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	Compression  string        `yaml:"compression"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
}

// KafkaQueue implements MessageQueue on Kafka consumer groups.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	mu            sync.Mutex
	subscriptions []*kafkaSubscription
	started       bool
	closed        bool
}

type kafkaSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	reader *kafka.Reader
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaQueue creates a Kafka-backed queue. No connection is made until use.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, appErr.ConfigError("kafka.brokers", "at least one broker is required")
	}
	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  compression,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
			ClientID: cfg.ClientID,
		},
	}
	return &KafkaQueue{config: cfg, writer: writer, dialer: dialer}, nil
}

// Publish writes one message; messages with the same key share a partition.
func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	if topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("topic is required")
	}
	if err := k.writer.WriteMessages(ctx, toKafkaMessage(topic, message)); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish to %s failed", topic)
	}
	return nil
}

// Subscribe registers a consumer-group reader for topic.
func (k *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("topic is required")
	}
	if handler == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.GroupID == "" {
		options.GroupID = "codejudge-" + topic
	}

	sub := &kafkaSubscription{topic: topic, handler: handler, opts: options, baseCtx: ctx}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("message queue is closed")
	}
	k.subscriptions = append(k.subscriptions, sub)
	if k.started {
		k.startSubscription(sub)
	}
	return nil
}

// Start begins consuming every registered subscription.
func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("message queue is closed")
	}
	if k.started {
		return nil
	}
	for _, sub := range k.subscriptions {
		k.startSubscription(sub)
	}
	k.started = true
	return nil
}

// Stop cancels consumers and waits for in-flight handlers.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, sub := range k.subscriptions {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range k.subscriptions {
		sub.wg.Wait()
		if sub.reader != nil {
			_ = sub.reader.Close()
			sub.reader = nil
		}
	}
	k.started = false
	return nil
}

// Ping dials the first broker.
func (k *KafkaQueue) Ping(ctx context.Context) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "kafka unreachable")
	}
	return conn.Close()
}

// Close stops consumers and closes the producer.
func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	_ = k.Stop()
	return k.writer.Close()
}

func (k *KafkaQueue) startSubscription(sub *kafkaSubscription) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.GroupID,
		Dialer:      k.dialer,
		MinBytes:    k.config.MinBytes,
		MaxBytes:    k.config.MaxBytes,
		MaxWait:     k.config.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	sub.reader = reader
	if sub.baseCtx == nil {
		sub.baseCtx = context.Background()
	}
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		limiter := sub.opts.Limiter
		for {
			if err := limiter.Acquire(sub.ctx); err != nil {
				return
			}
			msg, err := reader.FetchMessage(sub.ctx)
			if err != nil {
				limiter.Release()
				if sub.ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn(sub.ctx, "kafka fetch failed", zap.String("topic", sub.topic), zap.Error(err))
				if sleepCtx(sub.ctx, 500*time.Millisecond) != nil {
					return
				}
				continue
			}
			sub.wg.Add(1)
			go func(m kafka.Message) {
				defer sub.wg.Done()
				defer limiter.Release()
				k.handle(sub, m)
			}(msg)
		}
	}()
}

func (k *KafkaQueue) handle(sub *kafkaSubscription, raw kafka.Message) {
	msg := fromKafkaMessage(raw)
	err := deliver(sub.ctx, sub.handler, msg, sub.opts)
	if err != nil && sub.ctx.Err() != nil {
		// Uncommitted; redelivered to the group after restart.
		return
	}
	if err != nil {
		logger.Error(sub.ctx, "message handling failed",
			zap.String("topic", sub.topic),
			zap.String("message_id", msg.ID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		if sub.opts.DeadLetterTopic != "" {
			msg.SetHeader(headerError, err.Error())
			if pubErr := k.Publish(sub.ctx, sub.opts.DeadLetterTopic, msg); pubErr != nil {
				logger.Error(sub.ctx, "dead letter publish failed", zap.String("message_id", msg.ID), zap.Error(pubErr))
			}
		}
	}
	if err := sub.reader.CommitMessages(sub.ctx, raw); err != nil && sub.ctx.Err() == nil {
		logger.Warn(sub.ctx, "kafka commit failed", zap.String("topic", sub.topic), zap.Error(err))
	}
}

// deliver calls handler until it succeeds, fails permanently, or runs out of retries.
func deliver(ctx context.Context, handler HandlerFunc, msg *Message, opts SubscribeOptions) error {
	for {
		msg.Attempt++
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if !appErr.Retryable(err) || msg.Attempt > opts.MaxRetries {
			return err
		}
		if sleepCtx(ctx, opts.RetryDelay) != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, appErr.ConfigError("kafka.compression", "unknown codec "+name)
}

func toKafkaMessage(topic string, message *Message) kafka.Message {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(message.Headers)+3)
	for k, v := range message.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if message.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	headers = append(headers, kafka.Header{Key: headerTimestamp, Value: []byte(message.Timestamp.Format(time.RFC3339Nano))})
	if message.Attempt > 0 {
		headers = append(headers, kafka.Header{Key: headerAttempt, Value: []byte(strconv.Itoa(message.Attempt))})
	}
	key := message.Key
	if key == "" {
		key = message.ID
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   message.Body,
		Headers: headers,
		Time:    message.Timestamp,
	}
}

// fromKafkaMessage resets Attempt; the recorded count moves to PriorAttempts.
func fromKafkaMessage(msg kafka.Message) *Message {
	m := &Message{
		Key:       string(msg.Key),
		Body:      msg.Value,
		Headers:   make(map[string]string),
		Timestamp: msg.Time,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case headerID:
			m.ID = string(h.Value)
		case headerTimestamp:
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				m.Timestamp = ts
			}
		case headerAttempt:
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				m.PriorAttempts = n
			}
		default:
			m.Headers[h.Key] = string(h.Value)
		}
	}
	if m.ID == "" {
		m.ID = m.Key
	}
	return m
}
