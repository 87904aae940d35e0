// Package controller exposes evaluation over HTTP.
package controller

import (
	"context"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/judge/executor"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/service"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const runtimesCacheKey = "judge:runtimes"

// Evaluator runs submissions. *service.Orchestrator satisfies it.
type Evaluator interface {
	EvaluateStream(ctx context.Context, sub model.Submission, onResult service.ResultFunc) (*model.SubmissionVerdict, error)
}

// RuntimeLister lists remote runtimes. *executor.Client satisfies it.
type RuntimeLister interface {
	Runtimes(ctx context.Context) ([]executor.Runtime, error)
}

// Config holds controller dependencies.
type Config struct {
	Evaluator      Evaluator
	Runtimes       RuntimeLister
	Cache          cache.Cache
	RuntimesTTL    time.Duration
	MaxSourceBytes int
	// AllowedOrigins limits websocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

// JudgeController handles evaluation requests.
type JudgeController struct {
	evaluator      Evaluator
	runtimes       RuntimeLister
	cache          cache.Cache
	runtimesTTL    time.Duration
	maxSourceBytes int
	allowedOrigins []string
}

// NewJudgeController creates a controller.
func NewJudgeController(cfg Config) *JudgeController {
	h := &JudgeController{
		evaluator:      cfg.Evaluator,
		runtimes:       cfg.Runtimes,
		cache:          cfg.Cache,
		runtimesTTL:    cfg.RuntimesTTL,
		maxSourceBytes: cfg.MaxSourceBytes,
		allowedOrigins: cfg.AllowedOrigins,
	}
	if h.runtimesTTL <= 0 {
		h.runtimesTTL = 5 * time.Minute
	}
	return h
}

// Register mounts the routes under group. Middleware applies to evaluation routes.
func (h *JudgeController) Register(group *gin.RouterGroup, evaluateMiddleware ...gin.HandlerFunc) {
	evaluate := append(append([]gin.HandlerFunc{}, evaluateMiddleware...), h.Evaluate)
	stream := append(append([]gin.HandlerFunc{}, evaluateMiddleware...), h.Stream)
	group.POST("/evaluate", evaluate...)
	group.GET("/evaluate/stream", stream...)
	group.GET("/runtimes", h.ListRuntimes)
}

// Evaluate runs a submission synchronously and returns its verdict.
func (h *JudgeController) Evaluate(c *gin.Context) {
	var req model.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrapf(err, appErr.InvalidParams, "invalid request body"))
		return
	}
	sub, err := h.prepare(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	verdict, err := h.evaluator.EvaluateStream(c.Request.Context(), sub, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verdict.ToResponse())
}

// ListRuntimes returns the runtimes installed on the execution service.
func (h *JudgeController) ListRuntimes(c *gin.Context) {
	if h.runtimes == nil {
		response.ErrorWithCode(c, appErr.ServiceUnavailable, "runtime listing is not configured")
		return
	}
	runtimes, err := cache.GetJSON(c.Request.Context(), h.cache, runtimesCacheKey, h.runtimesTTL, h.runtimes.Runtimes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, runtimes)
}

func (h *JudgeController) prepare(req model.SubmissionRequest) (model.Submission, error) {
	if err := req.CheckSize(h.maxSourceBytes); err != nil {
		return model.Submission{}, err
	}
	sub := req.ToSubmission()
	if err := sub.Validate(); err != nil {
		return model.Submission{}, err
	}
	return sub, nil
}
