package service

import (
	"context"
	"time"

	"codejudge/internal/judge/executor"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// runTask drives one test case to a final state.
func (o *Orchestrator) runTask(ctx context.Context, sub *model.Submission, tc model.TestCase) model.TestCaseResult {
	start := time.Now()
	attempt := 1
	for {
		outcome, err := o.attempt(ctx, sub, tc)
		if err != nil {
			return cancelledResult(tc, attempt, start)
		}
		if outcome.Status.Terminal() {
			return finalResult(tc, outcome, attempt, start)
		}
		if ctx.Err() != nil {
			return cancelledResult(tc, attempt, start)
		}

		delay, ok := o.policy.NextDelay(attempt, outcome)
		if !ok {
			logger.Warn(ctx, "test case retries exhausted",
				zap.String("test_case_id", tc.ID),
				zap.Int("attempts", attempt),
				zap.String("status", string(outcome.Status)),
				zap.String("error", outcome.Err),
			)
			return exhaustedResult(tc, outcome, attempt, start)
		}
		logger.Debug(ctx, "test case retry scheduled",
			zap.String("test_case_id", tc.ID),
			zap.Int("attempt", attempt),
			zap.String("status", string(outcome.Status)),
			zap.Duration("delay", delay),
		)
		if err := sleep(ctx, delay); err != nil {
			return cancelledResult(tc, attempt, start)
		}
		attempt++
	}
}

// attempt holds a concurrency slot only for the duration of one request.
func (o *Orchestrator) attempt(ctx context.Context, sub *model.Submission, tc model.TestCase) (model.ExecutionOutcome, error) {
	release, err := o.admission.Admit(ctx)
	if err != nil {
		return model.ExecutionOutcome{}, err
	}
	defer release()

	o.metrics.requestStarted()
	outcome := o.executor.Execute(ctx, executor.Request{
		Language:   sub.Language,
		Version:    sub.LanguageVersion,
		SourceCode: sub.SourceCode,
		Stdin:      tc.Stdin,
		Timeout:    o.perTestTimeout,
	})
	o.metrics.requestFinished(outcome)
	return outcome, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func finalResult(tc model.TestCase, outcome model.ExecutionOutcome, attempts int, start time.Time) model.TestCaseResult {
	res := model.TestCaseResult{
		TestCaseID:   tc.ID,
		ActualOutput: outcome.Stdout,
		Outcome:      outcome,
		AttemptsUsed: attempts,
		APIElapsed:   time.Since(start),
	}
	if outcome.Status == model.OutcomeNonZeroExit {
		res.State = model.StateNonZeroExit
		res.FailureCode = int(appErr.RemoteNonZeroExit)
		return res
	}
	res.State = model.StateSuccess
	res.Passed = model.OutputMatches(outcome.Stdout, tc.ExpectedOutput)
	if !res.Passed {
		res.FailureCode = int(appErr.OutputMismatch)
	}
	return res
}

func exhaustedResult(tc model.TestCase, outcome model.ExecutionOutcome, attempts int, start time.Time) model.TestCaseResult {
	return model.TestCaseResult{
		TestCaseID:   tc.ID,
		ActualOutput: outcome.Stdout,
		Outcome:      outcome,
		AttemptsUsed: attempts,
		State:        model.StateExhausted,
		FailureCode:  int(failureCode(outcome.Status)),
		APIElapsed:   time.Since(start),
	}
}

func cancelledResult(tc model.TestCase, attempts int, start time.Time) model.TestCaseResult {
	return model.TestCaseResult{
		TestCaseID: tc.ID,
		Outcome: model.ExecutionOutcome{
			Status: model.OutcomeTimeout,
			Err:    appErr.SubmissionDeadlineExceeded.Message(),
		},
		AttemptsUsed: attempts,
		State:        model.StateCancelled,
		FailureCode:  int(appErr.SubmissionDeadlineExceeded),
		APIElapsed:   time.Since(start),
	}
}

func failureCode(status model.OutcomeStatus) appErr.ErrorCode {
	switch status {
	case model.OutcomeRateLimited:
		return appErr.RemoteRateLimited
	case model.OutcomeTimeout:
		return appErr.RemoteTimeout
	case model.OutcomeNonZeroExit:
		return appErr.RemoteNonZeroExit
	default:
		return appErr.RemoteTransportError
	}
}
