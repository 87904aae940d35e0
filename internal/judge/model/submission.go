// Package model defines submissions, execution outcomes and verdicts.
package model

import (
	"bytes"
	"strconv"
	"time"
)

// TestCase is one (stdin, expected output) pair.
type TestCase struct {
	ID             string
	Stdin          []byte
	ExpectedOutput []byte
}

// Submission is one program plus the test cases to run against it.
type Submission struct {
	ID              string
	Language        string
	LanguageVersion string
	SourceCode      []byte
	TestCases       []TestCase
}

// OutcomeStatus classifies a single remote execution attempt.
type OutcomeStatus string

const (
	OutcomeSuccess        OutcomeStatus = "success"
	OutcomeNonZeroExit    OutcomeStatus = "nonZeroExit"
	OutcomeTimeout        OutcomeStatus = "timeout"
	OutcomeTransportError OutcomeStatus = "transportError"
	OutcomeRateLimited    OutcomeStatus = "rateLimited"
)

// Terminal reports whether retrying cannot change the outcome.
func (s OutcomeStatus) Terminal() bool {
	return s == OutcomeSuccess || s == OutcomeNonZeroExit
}

// ExecutionOutcome is the normalized result of one remote execution attempt.
type ExecutionOutcome struct {
	Status        OutcomeStatus
	Stdout        []byte
	Stderr        []byte
	ExitCode      int
	Signal        string
	CompileOutput []byte
	Elapsed       time.Duration
	Err           string
}

// CompileFailed reports whether the program never reached the run stage.
func (o ExecutionOutcome) CompileFailed() bool {
	return len(o.CompileOutput) > 0 && o.Status == OutcomeNonZeroExit
}

// TaskState is the final state of a per-test-case task.
type TaskState string

const (
	StateSuccess     TaskState = "Success"
	StateNonZeroExit TaskState = "NonZeroExit"
	StateExhausted   TaskState = "Exhausted"
	StateCancelled   TaskState = "Cancelled"
)

// TestCaseResult is the finalized result for one test case.
type TestCaseResult struct {
	TestCaseID   string
	Passed       bool
	ActualOutput []byte
	Outcome      ExecutionOutcome
	AttemptsUsed int
	State        TaskState
	// FailureCode is zero when Passed is true.
	FailureCode int
	// APIElapsed covers admission waits, backoff and remote calls.
	APIElapsed time.Duration
}

// SubmissionVerdict is the aggregated outcome of one orchestrator run.
type SubmissionVerdict struct {
	SubmissionID  string
	Results       []TestCaseResult
	OverallPassed bool
	PassedCount   int
	TotalElapsed  time.Duration
}

// NewVerdict reduces ordered results into a verdict.
func NewVerdict(submissionID string, results []TestCaseResult, elapsed time.Duration) *SubmissionVerdict {
	v := &SubmissionVerdict{
		SubmissionID:  submissionID,
		Results:       results,
		OverallPassed: true,
		TotalElapsed:  elapsed,
	}
	for _, r := range results {
		if r.Passed {
			v.PassedCount++
		} else {
			v.OverallPassed = false
		}
	}
	return v
}

// NormalizeOutput strips trailing whitespace and newlines.
func NormalizeOutput(out []byte) []byte {
	return bytes.TrimRight(out, " \t\r\n\v\f")
}

// OutputMatches compares actual and expected output after normalization.
func OutputMatches(actual, expected []byte) bool {
	return bytes.Equal(NormalizeOutput(actual), NormalizeOutput(expected))
}

// DefaultTestCaseID names the i-th (zero based) test case when none was supplied.
func DefaultTestCaseID(i int) string {
	return "test" + strconv.Itoa(i+1)
}
