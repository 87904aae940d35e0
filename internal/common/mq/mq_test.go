package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	appErr "codejudge/pkg/errors"
)

func TestDeliverRetries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		errs      []error
		maxRetry  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first-try", errs: []error{nil}, maxRetry: 2, wantCalls: 1},
		{name: "retry-then-ok", errs: []error{appErr.New(appErr.ServiceUnavailable), nil}, maxRetry: 2, wantCalls: 2},
		{name: "exhausted", errs: []error{appErr.New(appErr.RemoteTimeout), appErr.New(appErr.RemoteTimeout), appErr.New(appErr.RemoteTimeout)}, maxRetry: 2, wantCalls: 3, wantErr: true},
		{name: "permanent", errs: []error{appErr.New(appErr.InvalidParams)}, maxRetry: 5, wantCalls: 1, wantErr: true},
		{name: "plain-error-retried", errs: []error{errors.New("boom"), nil}, maxRetry: 1, wantCalls: 2},
		{name: "no-retries", errs: []error{appErr.New(appErr.ServiceUnavailable)}, maxRetry: 0, wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			handler := func(ctx context.Context, m *Message) error {
				err := tt.errs[calls]
				calls++
				return err
			}
			msg := NewMessage("m1", []byte("{}"))
			err := deliver(context.Background(), handler, msg, SubscribeOptions{MaxRetries: tt.maxRetry, RetryDelay: time.Millisecond})
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected err %v", err)
			}
			if calls != tt.wantCalls || msg.Attempt != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d (attempt %d)", tt.wantCalls, calls, msg.Attempt)
			}
		})
	}
}

func TestDeliverStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		cancel()
		return appErr.New(appErr.ServiceUnavailable)
	}
	err := deliver(ctx, handler, NewMessage("m", nil), SubscribeOptions{MaxRetries: 10, RetryDelay: time.Hour})
	if err == nil || calls != 1 {
		t.Fatalf("expected single failed call, got calls=%d err=%v", calls, err)
	}
}

func TestTokenLimiter(t *testing.T) {
	t.Parallel()
	l := NewTokenLimiter(2)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if l.Available() != 0 {
		t.Fatalf("expected no tokens left")
	}
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(short); err == nil {
		t.Fatalf("expected acquire to time out")
	}
	l.Release()
	l.Release()
	l.Release()
	if l.Available() != 2 {
		t.Fatalf("expected capacity to be preserved, got %d", l.Available())
	}
}

func TestKafkaMessageConversion(t *testing.T) {
	t.Parallel()
	in := NewMessage("sub-1", []byte(`{"a":1}`))
	in.SetHeader("trace", "t-1")
	in.Attempt = 2
	raw := toKafkaMessage("judge.submissions", in)
	if raw.Topic != "judge.submissions" || string(raw.Key) != "sub-1" {
		t.Fatalf("unexpected kafka message %+v", raw)
	}
	out := fromKafkaMessage(raw)
	if out.ID != "sub-1" || string(out.Body) != `{"a":1}` || out.Attempt != 0 {
		t.Fatalf("unexpected message %+v", out)
	}
	if v, _ := out.Header("trace"); v != "t-1" {
		t.Fatalf("header lost: %v", out.Headers)
	}
	if out.PriorAttempts != 2 {
		t.Fatalf("previous attempt not recorded: %d", out.PriorAttempts)
	}
	if _, ok := out.Header(headerAttempt); ok {
		t.Fatalf("attempt header leaked into headers: %v", out.Headers)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp mismatch %s vs %s", out.Timestamp, in.Timestamp)
	}
}

func TestKafkaRepublishWritesOneAttemptHeader(t *testing.T) {
	t.Parallel()
	in := NewMessage("sub-1", []byte("{}"))
	in.Attempt = 1
	msg := fromKafkaMessage(toKafkaMessage("judge.submissions", in))
	msg.Attempt = 3
	msg.SetHeader(headerError, "boom")

	raw := toKafkaMessage("judge.dead", msg)
	var attempts []string
	for _, h := range raw.Headers {
		if h.Key == headerAttempt {
			attempts = append(attempts, string(h.Value))
		}
	}
	if len(attempts) != 1 || attempts[0] != "3" {
		t.Fatalf("expected a single attempt header of 3, got %v", attempts)
	}
}

func TestNewKafkaQueueValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewKafkaQueue(KafkaConfig{}); !appErr.Is(err, appErr.InvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
	if _, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"localhost:9092"}, Compression: "brotli"}); !appErr.Is(err, appErr.InvalidConfig) {
		t.Fatalf("expected InvalidConfig for codec, got %v", err)
	}
	q, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"localhost:9092"}, Compression: "zstd"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	if err := q.Subscribe(context.Background(), "", func(context.Context, *Message) error { return nil }, nil); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Subscribe(context.Background(), "t", func(context.Context, *Message) error { return nil }, nil); err == nil {
		t.Fatalf("expected subscribe on closed queue to fail")
	}
}
