// Package service evaluates submissions against a remote execution service.
package service

import (
	"context"
	"sync"
	"time"

	"codejudge/internal/judge/admission"
	"codejudge/internal/judge/executor"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/retry"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResultFunc receives each test case result as soon as it is final.
// Calls are serialized; index is the test case position in the submission.
type ResultFunc func(index int, result model.TestCaseResult)

// Orchestrator fans a submission out into one task per test case.
type Orchestrator struct {
	admission      *admission.Controller
	executor       executor.Executor
	policy         *retry.Policy
	perTestTimeout time.Duration
	deadline       time.Duration
	metrics        *Metrics
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records activity into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRetryPolicy replaces the policy derived from config.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.policy = p
		}
	}
}

// NewOrchestrator creates an orchestrator sharing ctrl with every other
// orchestrator built on it. A nil ctrl gets a private one built from cfg.
func NewOrchestrator(cfg model.Config, ctrl *admission.Controller, exec executor.Executor, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, appErr.ConfigError("executor", "is required")
	}
	if ctrl == nil {
		var err error
		ctrl, err = admission.NewController(cfg)
		if err != nil {
			return nil, err
		}
	}
	o := &Orchestrator{
		admission:      ctrl,
		executor:       exec,
		policy:         retry.NewPolicy(cfg),
		perTestTimeout: cfg.PerTestTimeout,
		deadline:       cfg.SubmissionDeadline,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Evaluate runs a one-shot evaluation with admission resources private to this call.
func Evaluate(ctx context.Context, exec executor.Executor, sub model.Submission, cfg model.Config) (*model.SubmissionVerdict, error) {
	o, err := NewOrchestrator(cfg, nil, exec)
	if err != nil {
		return nil, err
	}
	return o.Evaluate(ctx, sub)
}

// Evaluate runs every test case and returns the verdict. Only invalid
// submissions produce an error; execution failures live in the results.
func (o *Orchestrator) Evaluate(ctx context.Context, sub model.Submission) (*model.SubmissionVerdict, error) {
	return o.EvaluateStream(ctx, sub, nil)
}

// EvaluateStream is Evaluate with a callback fired per finalized test case.
func (o *Orchestrator) EvaluateStream(ctx context.Context, sub model.Submission, onResult ResultFunc) (*model.SubmissionVerdict, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	ctx = logger.WithSubmission(ctx, sub.ID)
	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	logger.Info(ctx, "evaluation started",
		zap.String("language", sub.Language),
		zap.Int("test_cases", len(sub.TestCases)),
	)

	start := time.Now()
	results := make([]model.TestCaseResult, len(sub.TestCases))
	var (
		wg       sync.WaitGroup
		notifyMu sync.Mutex
	)
	for i := range sub.TestCases {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := o.runTask(ctx, &sub, sub.TestCases[i])
			results[i] = res
			o.metrics.resultFinalized(res)
			if onResult != nil {
				notifyMu.Lock()
				onResult(i, res)
				notifyMu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	verdict := model.NewVerdict(sub.ID, results, elapsed)
	o.metrics.verdictReady(verdict, elapsed)
	logger.Info(ctx, "evaluation finished",
		zap.Bool("overall_passed", verdict.OverallPassed),
		zap.Int("passed", verdict.PassedCount),
		zap.Int("total", len(results)),
		zap.Duration("elapsed", elapsed),
	)
	return verdict, nil
}

// Admission exposes the shared admission controller.
func (o *Orchestrator) Admission() *admission.Controller {
	return o.admission
}
