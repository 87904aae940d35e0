package service_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codejudge/internal/judge/admission"
	"codejudge/internal/judge/executor"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/service"
	appErr "codejudge/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeExecutor struct {
	fn       func(ctx context.Context, call int, req executor.Request) model.ExecutionOutcome
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (f *fakeExecutor) Execute(ctx context.Context, req executor.Request) model.ExecutionOutcome {
	call := int(f.calls.Add(1))
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	return f.fn(ctx, call, req)
}

func echo(delay time.Duration) *fakeExecutor {
	return &fakeExecutor{fn: func(ctx context.Context, _ int, req executor.Request) model.ExecutionOutcome {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model.ExecutionOutcome{Status: model.OutcomeTimeout, Err: ctx.Err().Error()}
			}
		}
		return model.ExecutionOutcome{Status: model.OutcomeSuccess, Stdout: req.Stdin}
	}}
}

func blocking() *fakeExecutor {
	return &fakeExecutor{fn: func(ctx context.Context, _ int, _ executor.Request) model.ExecutionOutcome {
		<-ctx.Done()
		return model.ExecutionOutcome{Status: model.OutcomeTimeout, Err: ctx.Err().Error()}
	}}
}

func testConfig() model.Config {
	return model.Config{
		MaxConcurrent:      4,
		RequestsPerSecond:  1000,
		BurstCapacity:      1000,
		MaxAttempts:        3,
		BaseBackoff:        time.Millisecond,
		MaxBackoff:         5 * time.Millisecond,
		SubmissionDeadline: 5 * time.Second,
	}
}

func submission(cases ...model.TestCase) model.Submission {
	for i := range cases {
		if cases[i].ID == "" {
			cases[i].ID = model.DefaultTestCaseID(i)
		}
	}
	return model.Submission{
		ID:         "sub-1",
		Language:   "python",
		SourceCode: []byte("print(input())"),
		TestCases:  cases,
	}
}

func tc(stdin, expected string) model.TestCase {
	return model.TestCase{Stdin: []byte(stdin), ExpectedOutput: []byte(expected)}
}

func TestEvaluateOrderAndAggregation(t *testing.T) {
	t.Parallel()
	sub := submission(tc("a", "a"), tc("b", "x"), tc("c", "c"), tc("d", "d"), tc("e", "e"))
	verdict, err := service.Evaluate(context.Background(), echo(0), sub, testConfig())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(verdict.Results) != len(sub.TestCases) {
		t.Fatalf("expected %d results, got %d", len(sub.TestCases), len(verdict.Results))
	}
	for i, res := range verdict.Results {
		if res.TestCaseID != sub.TestCases[i].ID {
			t.Fatalf("result %d has id %s, want %s", i, res.TestCaseID, sub.TestCases[i].ID)
		}
		if !bytes.Equal(res.ActualOutput, sub.TestCases[i].Stdin) {
			t.Fatalf("result %d carries output of another test case: %q", i, res.ActualOutput)
		}
	}
	if verdict.OverallPassed {
		t.Fatalf("expected overall failure")
	}
	if verdict.PassedCount != 4 {
		t.Fatalf("expected 4 passed, got %d", verdict.PassedCount)
	}
	failed := verdict.Results[1]
	if failed.Passed || failed.State != model.StateSuccess || failed.FailureCode != int(appErr.OutputMismatch) {
		t.Fatalf("unexpected mismatch result %+v", failed)
	}
	if verdict.SubmissionID != "sub-1" {
		t.Fatalf("unexpected submission id %s", verdict.SubmissionID)
	}
}

func TestEvaluateConcurrencyBound(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxConcurrent = 2
	exec := echo(20 * time.Millisecond)
	cases := make([]model.TestCase, 8)
	for i := range cases {
		cases[i] = tc("x", "x")
	}
	verdict, err := service.Evaluate(context.Background(), exec, submission(cases...), cfg)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !verdict.OverallPassed {
		t.Fatalf("expected all passed")
	}
	if peak := exec.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 in flight, saw %d", peak)
	}
}

func TestEvaluateSharedAdmission(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxConcurrent = 3
	ctrl, err := admission.NewController(cfg)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	exec := echo(15 * time.Millisecond)
	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		o, err := service.NewOrchestrator(cfg, ctrl, exec)
		if err != nil {
			t.Fatalf("orchestrator: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cases := []model.TestCase{tc("1", "1"), tc("2", "2"), tc("3", "3")}
			if _, err := o.Evaluate(context.Background(), submission(cases...)); err != nil {
				t.Errorf("evaluate: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak := exec.peak.Load(); peak > 3 {
		t.Fatalf("expected global bound of 3, saw %d", peak)
	}
	if ctrl.Gate.InFlight() != 0 {
		t.Fatalf("slots leaked: %d", ctrl.Gate.InFlight())
	}
}

func TestEvaluateTransportErrorsExhaustRetries(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{fn: func(context.Context, int, executor.Request) model.ExecutionOutcome {
		return model.ExecutionOutcome{Status: model.OutcomeTransportError, Err: "connection refused"}
	}}
	verdict, err := service.Evaluate(context.Background(), exec, submission(tc("1", "1")), testConfig())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	res := verdict.Results[0]
	if exec.calls.Load() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", exec.calls.Load())
	}
	if res.AttemptsUsed != 3 || res.State != model.StateExhausted || res.Passed {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.FailureCode != int(appErr.RemoteTransportError) {
		t.Fatalf("expected transport failure code, got %d", res.FailureCode)
	}
}

func TestEvaluateRateLimitedThenSuccess(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{fn: func(_ context.Context, call int, _ executor.Request) model.ExecutionOutcome {
		if call <= 2 {
			return model.ExecutionOutcome{Status: model.OutcomeRateLimited}
		}
		return model.ExecutionOutcome{Status: model.OutcomeSuccess, Stdout: []byte("42\n")}
	}}
	verdict, err := service.Evaluate(context.Background(), exec, submission(tc("", "42")), testConfig())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	res := verdict.Results[0]
	if !res.Passed || res.AttemptsUsed != 3 || res.State != model.StateSuccess {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEvaluateTrailingWhitespace(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		stdout   string
		expected string
		passed   bool
	}{
		{name: "trailing-newlines", stdout: "Hello\n\n  ", expected: "Hello", passed: true},
		{name: "expected-trailing", stdout: "1 2 3", expected: "1 2 3\r\n", passed: true},
		{name: "leading-space", stdout: " Hello", expected: "Hello", passed: false},
		{name: "inner-space", stdout: "1  2", expected: "1 2", passed: false},
		{name: "empty", stdout: "\n", expected: "", passed: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := &fakeExecutor{fn: func(context.Context, int, executor.Request) model.ExecutionOutcome {
				return model.ExecutionOutcome{Status: model.OutcomeSuccess, Stdout: []byte(tt.stdout)}
			}}
			verdict, err := service.Evaluate(context.Background(), exec, submission(tc("", tt.expected)), testConfig())
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if verdict.Results[0].Passed != tt.passed {
				t.Fatalf("expected passed=%v, got %+v", tt.passed, verdict.Results[0])
			}
		})
	}
}

func TestEvaluateHelloWorld(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{fn: func(_ context.Context, _ int, req executor.Request) model.ExecutionOutcome {
		if req.Language != "python" || string(req.SourceCode) != `print("Hello, World!")` {
			return model.ExecutionOutcome{Status: model.OutcomeTransportError, Err: "unexpected request"}
		}
		return model.ExecutionOutcome{Status: model.OutcomeSuccess, Stdout: []byte("Hello, World!\n")}
	}}
	sub := model.Submission{
		Language:   "python",
		SourceCode: []byte(`print("Hello, World!")`),
		TestCases:  []model.TestCase{{ID: "test1", ExpectedOutput: []byte("Hello, World!")}},
	}
	verdict, err := service.Evaluate(context.Background(), exec, sub, testConfig())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !verdict.OverallPassed || verdict.PassedCount != 1 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if verdict.SubmissionID == "" {
		t.Fatalf("expected generated submission id")
	}
	res := verdict.Results[0]
	if res.AttemptsUsed != 1 || res.FailureCode != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEvaluateRunsTestCasesConcurrently(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxConcurrent = 10
	exec := echo(100 * time.Millisecond)
	cases := make([]model.TestCase, 10)
	for i := range cases {
		cases[i] = tc("ok", "ok")
	}
	verdict, err := service.Evaluate(context.Background(), exec, submission(cases...), cfg)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !verdict.OverallPassed {
		t.Fatalf("expected all passed")
	}
	if verdict.TotalElapsed > 600*time.Millisecond {
		t.Fatalf("expected concurrent execution, took %s", verdict.TotalElapsed)
	}
	if exec.peak.Load() < 2 {
		t.Fatalf("expected overlapping requests, peak %d", exec.peak.Load())
	}
}

func TestEvaluateNonZeroExitFails(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{fn: func(context.Context, int, executor.Request) model.ExecutionOutcome {
		return model.ExecutionOutcome{Status: model.OutcomeNonZeroExit, ExitCode: 1, Stdout: []byte("5")}
	}}
	verdict, err := service.Evaluate(context.Background(), exec, submission(tc("", "5")), testConfig())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	res := verdict.Results[0]
	if res.Passed || res.State != model.StateNonZeroExit || res.AttemptsUsed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.FailureCode != int(appErr.RemoteNonZeroExit) {
		t.Fatalf("unexpected failure code %d", res.FailureCode)
	}
	if exec.calls.Load() != 1 {
		t.Fatalf("nonzero exit must not be retried")
	}
}

func TestEvaluateDeadlineCancelsTasks(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	cfg.SubmissionDeadline = 50 * time.Millisecond
	exec := blocking()

	start := time.Now()
	verdict, err := service.Evaluate(context.Background(), exec, submission(tc("1", "1"), tc("2", "2"), tc("3", "3")), cfg)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("deadline not enforced")
	}
	if verdict.OverallPassed {
		t.Fatalf("expected failure")
	}
	for i, res := range verdict.Results {
		if res.Passed || res.State != model.StateCancelled || res.Outcome.Status != model.OutcomeTimeout {
			t.Fatalf("result %d: unexpected %+v", i, res)
		}
		if res.FailureCode != int(appErr.SubmissionDeadlineExceeded) {
			t.Fatalf("result %d: unexpected failure code %d", i, res.FailureCode)
		}
		if res.AttemptsUsed < 1 || res.AttemptsUsed > cfg.MaxAttempts {
			t.Fatalf("result %d: attempts out of range %d", i, res.AttemptsUsed)
		}
	}
	if exec.calls.Load() != 1 {
		t.Fatalf("queued tasks must not reach the executor, got %d calls", exec.calls.Load())
	}
}

func TestEvaluateDeadlineStopsBackoff(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.BaseBackoff = time.Minute
	cfg.MaxBackoff = time.Hour
	cfg.SubmissionDeadline = 100 * time.Millisecond
	exec := &fakeExecutor{fn: func(context.Context, int, executor.Request) model.ExecutionOutcome {
		return model.ExecutionOutcome{Status: model.OutcomeTransportError, Err: "connection refused"}
	}}

	start := time.Now()
	verdict, err := service.Evaluate(context.Background(), exec, submission(tc("1", "1")), cfg)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("backoff outlived the deadline: %s", elapsed)
	}
	if exec.calls.Load() != 1 {
		t.Fatalf("expected no retry after the deadline, got %d calls", exec.calls.Load())
	}
	res := verdict.Results[0]
	if res.Passed || res.State != model.StateCancelled || res.Outcome.Status != model.OutcomeTimeout {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.AttemptsUsed < 1 || res.AttemptsUsed > cfg.MaxAttempts {
		t.Fatalf("attempts out of range %d", res.AttemptsUsed)
	}
}

func TestEvaluateDeadlineWhileWaitingForTokens(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxConcurrent = 5
	cfg.RequestsPerSecond = 1
	cfg.BurstCapacity = 1
	cfg.SubmissionDeadline = 1500 * time.Millisecond
	ctrl, err := admission.NewController(cfg)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	exec := echo(0)
	o, err := service.NewOrchestrator(cfg, ctrl, exec)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	cases := []model.TestCase{tc("1", "1"), tc("2", "2"), tc("3", "3"), tc("4", "4"), tc("5", "5")}
	start := time.Now()
	verdict, err := o.Evaluate(context.Background(), submission(cases...))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("evaluation outlived the deadline: %s", elapsed)
	}
	if verdict.OverallPassed {
		t.Fatalf("expected late test cases to fail")
	}
	cancelled := 0
	for i, res := range verdict.Results {
		if res.Passed {
			continue
		}
		if res.State != model.StateCancelled || res.Outcome.Status != model.OutcomeTimeout {
			t.Fatalf("result %d: unexpected %+v", i, res)
		}
		if res.AttemptsUsed < 1 || res.AttemptsUsed > cfg.MaxAttempts {
			t.Fatalf("result %d: attempts out of range %d", i, res.AttemptsUsed)
		}
		cancelled++
	}
	if cancelled < 3 {
		t.Fatalf("expected at least 3 cancelled test cases, got %d", cancelled)
	}
	if calls := exec.calls.Load(); calls > 2 {
		t.Fatalf("expected at most 2 requests within the deadline, got %d", calls)
	}
	if ctrl.Gate.InFlight() != 0 {
		t.Fatalf("slots leaked: %d", ctrl.Gate.InFlight())
	}
}

func TestEvaluateCallerCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	verdict, err := service.Evaluate(ctx, echo(0), submission(tc("1", "1")), testConfig())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.Results[0].State != model.StateCancelled {
		t.Fatalf("expected cancelled result, got %+v", verdict.Results[0])
	}
}

func TestEvaluateRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	exec := echo(0)

	_, err := service.Evaluate(context.Background(), exec, submission(), testConfig())
	if !appErr.Is(err, appErr.EmptySubmission) {
		t.Fatalf("expected EmptySubmission, got %v", err)
	}

	bad := testConfig()
	bad.MaxConcurrent = 0
	_, err = service.Evaluate(context.Background(), exec, submission(tc("1", "1")), bad)
	if !appErr.Is(err, appErr.InvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}

	bad = testConfig()
	bad.BaseBackoff = -time.Second
	_, err = service.Evaluate(context.Background(), exec, submission(tc("1", "1")), bad)
	if !appErr.Is(err, appErr.InvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}

	if _, err := service.NewOrchestrator(testConfig(), nil, nil); !appErr.Is(err, appErr.InvalidConfig) {
		t.Fatalf("expected InvalidConfig for missing executor, got %v", err)
	}
	if exec.calls.Load() != 0 {
		t.Fatalf("no task may run for rejected input")
	}
}

func TestEvaluateStreamReportsEveryResult(t *testing.T) {
	t.Parallel()
	o, err := service.NewOrchestrator(testConfig(), nil, echo(time.Millisecond))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	seen := make(map[int]string)
	verdict, err := o.EvaluateStream(context.Background(), submission(tc("a", "a"), tc("b", "b"), tc("c", "c")),
		func(index int, res model.TestCaseResult) {
			seen[index] = res.TestCaseID
		})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 callbacks, got %d", len(seen))
	}
	for i, res := range verdict.Results {
		if seen[i] != res.TestCaseID {
			t.Fatalf("callback index %d reported %s, want %s", i, seen[i], res.TestCaseID)
		}
	}
}

func TestEvaluateRecordsMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	exec := &fakeExecutor{fn: func(_ context.Context, call int, _ executor.Request) model.ExecutionOutcome {
		if call == 1 {
			return model.ExecutionOutcome{Status: model.OutcomeTimeout}
		}
		return model.ExecutionOutcome{Status: model.OutcomeSuccess, Stdout: []byte("ok")}
	}}
	o, err := service.NewOrchestrator(testConfig(), nil, exec, service.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	if _, err := o.Evaluate(context.Background(), submission(tc("", "ok"))); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := testutil.ToFloat64(metrics.Attempts.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("expected 1 timeout attempt, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Attempts.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 success attempt, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Verdicts.WithLabelValues("passed")); got != 1 {
		t.Fatalf("expected 1 passed verdict, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Fatalf("expected no requests in flight, got %v", got)
	}
}
