package model

import (
	"time"

	appErr "codejudge/pkg/errors"

	"github.com/google/uuid"
)

// TestCaseDTO is the JSON form of a test case.
type TestCaseDTO struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// SubmissionRequest is the JSON form of a submission, shared by the HTTP API and the queue.
type SubmissionRequest struct {
	SubmissionID    string        `json:"submission_id"`
	Language        string        `json:"language"`
	LanguageVersion string        `json:"language_version"`
	SourceCode      string        `json:"source_code"`
	TestCases       []TestCaseDTO `json:"test_cases"`
}

// CheckSize rejects source code above maxBytes. maxBytes <= 0 disables the check.
func (r SubmissionRequest) CheckSize(maxBytes int) error {
	if maxBytes > 0 && len(r.SourceCode) > maxBytes {
		return appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", maxBytes)
	}
	return nil
}

// ToSubmission converts the request, assigning ids where the caller left them empty.
func (r SubmissionRequest) ToSubmission() Submission {
	sub := Submission{
		ID:              r.SubmissionID,
		Language:        r.Language,
		LanguageVersion: r.LanguageVersion,
		SourceCode:      []byte(r.SourceCode),
		TestCases:       make([]TestCase, 0, len(r.TestCases)),
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	for i, tc := range r.TestCases {
		id := tc.ID
		if id == "" {
			id = DefaultTestCaseID(i)
		}
		sub.TestCases = append(sub.TestCases, TestCase{
			ID:             id,
			Stdin:          []byte(tc.Input),
			ExpectedOutput: []byte(tc.ExpectedOutput),
		})
	}
	return sub
}

// OutcomeDTO is the JSON form of an execution outcome.
type OutcomeDTO struct {
	Status        OutcomeStatus `json:"status"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	ExitCode      int           `json:"exit_code"`
	Signal        string        `json:"signal,omitempty"`
	CompileOutput string        `json:"compile_output,omitempty"`
	ElapsedMs     int64         `json:"elapsed_ms"`
	Error         string        `json:"error,omitempty"`
}

// TestCaseResultDTO is the JSON form of a test case result.
type TestCaseResultDTO struct {
	TestCaseID   string     `json:"test_case_id"`
	Passed       bool       `json:"passed"`
	ActualOutput string     `json:"actual_output"`
	Outcome      OutcomeDTO `json:"outcome"`
	AttemptsUsed int        `json:"attempts_used"`
	State        TaskState  `json:"state"`
	FailureCode  int        `json:"failure_code,omitempty"`
	APIElapsedMs int64      `json:"api_elapsed_ms"`
}

// VerdictResponse is the JSON form of a submission verdict.
type VerdictResponse struct {
	SubmissionID   string              `json:"submission_id"`
	OverallPassed  bool                `json:"overall_passed"`
	PassedCount    int                 `json:"passed_count"`
	TotalCount     int                 `json:"total_count"`
	TotalElapsedMs int64               `json:"total_elapsed_ms"`
	Results        []TestCaseResultDTO `json:"results"`
}

// ResultToDTO converts a single result.
func ResultToDTO(r TestCaseResult) TestCaseResultDTO {
	return TestCaseResultDTO{
		TestCaseID:   r.TestCaseID,
		Passed:       r.Passed,
		ActualOutput: string(r.ActualOutput),
		Outcome: OutcomeDTO{
			Status:        r.Outcome.Status,
			Stdout:        string(r.Outcome.Stdout),
			Stderr:        string(r.Outcome.Stderr),
			ExitCode:      r.Outcome.ExitCode,
			Signal:        r.Outcome.Signal,
			CompileOutput: string(r.Outcome.CompileOutput),
			ElapsedMs:     r.Outcome.Elapsed.Milliseconds(),
			Error:         r.Outcome.Err,
		},
		AttemptsUsed: r.AttemptsUsed,
		State:        r.State,
		FailureCode:  r.FailureCode,
		APIElapsedMs: r.APIElapsed.Milliseconds(),
	}
}

// ToResponse converts the verdict into its JSON form.
func (v *SubmissionVerdict) ToResponse() VerdictResponse {
	resp := VerdictResponse{
		SubmissionID:   v.SubmissionID,
		OverallPassed:  v.OverallPassed,
		PassedCount:    v.PassedCount,
		TotalCount:     len(v.Results),
		TotalElapsedMs: v.TotalElapsed.Milliseconds(),
		Results:        make([]TestCaseResultDTO, 0, len(v.Results)),
	}
	for _, r := range v.Results {
		resp.Results = append(resp.Results, ResultToDTO(r))
	}
	return resp
}

// Stats summarizes per-test timing the way the console report prints it.
type Stats struct {
	Total          int
	Passed         int
	Failed         int
	TotalElapsed   time.Duration
	TotalAPITime   time.Duration
	AverageAPITime time.Duration
}

// Stats computes timing statistics over the verdict.
func (v *SubmissionVerdict) Stats() Stats {
	st := Stats{
		Total:        len(v.Results),
		Passed:       v.PassedCount,
		Failed:       len(v.Results) - v.PassedCount,
		TotalElapsed: v.TotalElapsed,
	}
	for _, r := range v.Results {
		st.TotalAPITime += r.APIElapsed
	}
	if st.Total > 0 {
		st.AverageAPITime = st.TotalAPITime / time.Duration(st.Total)
	}
	return st
}
