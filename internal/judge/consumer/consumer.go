// Package consumer evaluates submissions delivered over the message queue.
package consumer

import (
	"context"
	"encoding/json"

	"codejudge/internal/common/mq"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/service"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Evaluator runs submissions. *service.Orchestrator satisfies it.
type Evaluator interface {
	EvaluateStream(ctx context.Context, sub model.Submission, onResult service.ResultFunc) (*model.SubmissionVerdict, error)
}

// Config holds consumer dependencies.
type Config struct {
	Evaluator      Evaluator
	Publisher      mq.Publisher
	VerdictTopic   string
	MaxSourceBytes int
}

// Handler turns submission messages into verdict messages.
type Handler struct {
	evaluator      Evaluator
	publisher      mq.Publisher
	verdictTopic   string
	maxSourceBytes int
}

// NewHandler validates dependencies and creates a handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Evaluator == nil {
		return nil, appErr.ConfigError("consumer.evaluator", "is required")
	}
	if cfg.Publisher == nil {
		return nil, appErr.ConfigError("consumer.publisher", "is required")
	}
	if cfg.VerdictTopic == "" {
		return nil, appErr.ConfigError("kafka.verdictTopic", "is required")
	}
	return &Handler{
		evaluator:      cfg.Evaluator,
		publisher:      cfg.Publisher,
		verdictTopic:   cfg.VerdictTopic,
		maxSourceBytes: cfg.MaxSourceBytes,
	}, nil
}

// HandleMessage evaluates one submission. Invalid submissions are answered
// with a rejected verdict rather than an error so they are not redelivered.
// Only a failed verdict publish is returned, which makes the queue retry.
func (h *Handler) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var req model.SubmissionRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		logger.Warn(ctx, "undecodable submission message", zap.String("message_id", msg.ID), zap.Error(err))
		return h.publish(ctx, rejected(msg.ID, appErr.Wrapf(err, appErr.InvalidParams, "decode submission failed")))
	}
	if req.SubmissionID == "" {
		req.SubmissionID = msg.ID
	}
	ctx = logger.WithSubmission(ctx, req.SubmissionID)

	if err := req.CheckSize(h.maxSourceBytes); err != nil {
		return h.publish(ctx, rejected(req.SubmissionID, err))
	}
	sub := req.ToSubmission()
	verdict, err := h.evaluator.EvaluateStream(ctx, sub, nil)
	if err != nil {
		logger.Warn(ctx, "submission rejected", zap.Error(err))
		return h.publish(ctx, rejected(sub.ID, err))
	}
	resp := verdict.ToResponse()
	return h.publish(ctx, model.VerdictMessage{
		SubmissionID: verdict.SubmissionID,
		Status:       model.VerdictCompleted,
		Verdict:      &resp,
	})
}

func (h *Handler) publish(ctx context.Context, vm model.VerdictMessage) error {
	body, err := json.Marshal(vm)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "encode verdict failed")
	}
	out := mq.NewMessage(vm.SubmissionID, body)
	out.SetHeader("status", vm.Status)
	if err := h.publisher.Publish(ctx, h.verdictTopic, out); err != nil {
		logger.Error(ctx, "publish verdict failed", zap.String("topic", h.verdictTopic), zap.Error(err))
		return err
	}
	logger.Info(ctx, "verdict published", zap.String("topic", h.verdictTopic), zap.String("status", vm.Status))
	return nil
}

func rejected(submissionID string, err error) model.VerdictMessage {
	e := appErr.GetError(err)
	return model.VerdictMessage{
		SubmissionID: submissionID,
		Status:       model.VerdictRejected,
		ErrorCode:    int(e.Code),
		Error:        e.Error(),
	}
}
