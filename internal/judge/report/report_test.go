package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"codejudge/internal/judge/model"
)

func TestFailureReason(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		result model.TestCaseResult
		want   string
	}{
		{name: "passed", result: model.TestCaseResult{Passed: true, State: model.StateSuccess}, want: ""},
		{name: "compile", result: model.TestCaseResult{State: model.StateNonZeroExit, Outcome: model.ExecutionOutcome{Status: model.OutcomeNonZeroExit, CompileOutput: []byte("error")}}, want: "compile error"},
		{name: "runtime", result: model.TestCaseResult{State: model.StateNonZeroExit, Outcome: model.ExecutionOutcome{Status: model.OutcomeNonZeroExit, ExitCode: 1}}, want: "runtime error"},
		{name: "mismatch", result: model.TestCaseResult{State: model.StateSuccess}, want: "output mismatch"},
		{name: "exhausted", result: model.TestCaseResult{State: model.StateExhausted}, want: "execution failed"},
		{name: "cancelled", result: model.TestCaseResult{State: model.StateCancelled}, want: "execution failed"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FailureReason(tt.result); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()
	sub := model.Submission{
		ID: "sub-1",
		TestCases: []model.TestCase{
			{ID: "test1", Stdin: []byte("1\n"), ExpectedOutput: []byte("Hello\n")},
			{ID: "test2", Stdin: []byte("2\n"), ExpectedOutput: []byte("Hello\nHello\n")},
		},
	}
	results := []model.TestCaseResult{
		{TestCaseID: "test1", Passed: true, State: model.StateSuccess, AttemptsUsed: 1,
			Outcome: model.ExecutionOutcome{Status: model.OutcomeSuccess, Stdout: []byte("Hello\n"), Elapsed: 100 * time.Millisecond}, APIElapsed: 150 * time.Millisecond},
		{TestCaseID: "test2", State: model.StateSuccess, AttemptsUsed: 1,
			Outcome: model.ExecutionOutcome{Status: model.OutcomeSuccess, Stdout: []byte("Hello\n")}, APIElapsed: 50 * time.Millisecond},
	}
	v := model.NewVerdict(sub.ID, results, time.Second)

	var buf bytes.Buffer
	if err := Write(&buf, sub, v); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"TEST CASE 1: test1",
		"Result: PASS",
		"Result: FAIL (output mismatch)",
		"Passed: 1/2",
		"Total API time: 0.200s",
		"Average API time: 0.100s",
		"  - test2: output mismatch",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()
	v := model.NewVerdict("sub-2", []model.TestCaseResult{{TestCaseID: "test1", Passed: true, State: model.StateSuccess, AttemptsUsed: 1}}, 0)
	var buf bytes.Buffer
	if err := WriteJSON(&buf, v); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp model.VerdictResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SubmissionID != "sub-2" || !resp.OverallPassed || resp.TotalCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
