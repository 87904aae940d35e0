// Package mq moves submissions and verdicts over a message broker.
package mq

import (
	"context"
	"time"
)

// MessageQueue is a broker connection that can both publish and consume.
type MessageQueue interface {
	Publisher
	Consumer

	// Ping verifies the broker is reachable.
	Ping(ctx context.Context) error

	// Close stops consumers and flushes the producer.
	Close() error
}

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers messages of subscribed topics to handlers.
type Consumer interface {
	// Subscribe registers handler for topic. Delivery begins on Start.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error
	Start() error
	Stop() error
}

// Message is one broker record.
type Message struct {
	ID        string
	Key       string
	Body      []byte
	Headers   map[string]string
	Timestamp time.Time
	// Attempt counts handler invocations for this delivery, starting at 1.
	Attempt int
	// PriorAttempts is the count the producer recorded, zero if none.
	PriorAttempts int
}

// HandlerFunc processes one message. A nil error commits it.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions tunes a subscription.
type SubscribeOptions struct {
	GroupID string
	// Concurrency caps messages handled at once. Ignored when Limiter is set.
	Concurrency int
	Limiter     FetchLimiter
	// MaxRetries is the number of extra handler calls for retryable errors.
	MaxRetries      int
	RetryDelay      time.Duration
	DeadLetterTopic string
}

// SetDefaults fills unset options.
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Limiter == nil {
		o.Limiter = NewTokenLimiter(o.Concurrency)
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage creates a message keyed by id.
func NewMessage(id string, body []byte) *Message {
	return &Message{
		ID:        id,
		Key:       id,
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// Header returns a header value.
func (m *Message) Header(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}
