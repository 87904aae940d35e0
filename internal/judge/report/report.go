// Package report renders verdicts for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"codejudge/internal/judge/model"
)

const rule = "============================================================"

// FailureReason names why a test case failed. It is empty for passed results.
func FailureReason(r model.TestCaseResult) string {
	switch {
	case r.Passed:
		return ""
	case r.Outcome.CompileFailed():
		return "compile error"
	case r.State == model.StateNonZeroExit:
		return "runtime error"
	case r.State == model.StateSuccess:
		return "output mismatch"
	default:
		return "execution failed"
	}
}

// Write prints per-test details followed by the summary.
func Write(w io.Writer, sub model.Submission, v *model.SubmissionVerdict) error {
	p := &printer{w: w}
	for i, r := range v.Results {
		var tc model.TestCase
		if i < len(sub.TestCases) {
			tc = sub.TestCases[i]
		}
		p.testCase(i+1, tc, r)
	}
	p.summary(v)
	return p.err
}

// WriteJSON prints the verdict in its wire form.
func WriteJSON(w io.Writer, v *model.SubmissionVerdict) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v.ToResponse())
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) block(title string, body []byte) {
	p.line("%s:", title)
	text := strings.TrimRight(string(body), "\n")
	if text == "" {
		text = "(empty)"
	}
	p.line("%s", text)
}

func (p *printer) testCase(n int, tc model.TestCase, r model.TestCaseResult) {
	p.line("%s", rule)
	p.line("TEST CASE %d: %s", n, r.TestCaseID)
	p.line("%s", rule)
	p.block("Input", tc.Stdin)
	p.block("Stdout", r.Outcome.Stdout)
	p.block("Expected", tc.ExpectedOutput)
	if len(r.Outcome.Stderr) > 0 {
		p.block("Stderr", r.Outcome.Stderr)
	}
	if len(r.Outcome.CompileOutput) > 0 {
		p.block("Compile output", r.Outcome.CompileOutput)
	}
	if r.Outcome.Err != "" {
		p.line("Error: %s", r.Outcome.Err)
	}
	status := "PASS"
	if !r.Passed {
		status = "FAIL (" + FailureReason(r) + ")"
	}
	p.line("Result: %s  attempts=%d  time=%s (api %s)", status, r.AttemptsUsed, seconds(r.Outcome.Elapsed), seconds(r.APIElapsed))
}

func (p *printer) summary(v *model.SubmissionVerdict) {
	st := v.Stats()
	p.line("%s", rule)
	p.line("SUMMARY %s", v.SubmissionID)
	p.line("%s", rule)
	p.line("Passed: %d/%d", st.Passed, st.Total)
	p.line("Failed: %d/%d", st.Failed, st.Total)
	p.line("Total time: %s", seconds(st.TotalElapsed))
	p.line("Total API time: %s", seconds(st.TotalAPITime))
	p.line("Average API time: %s", seconds(st.AverageAPITime))
	if st.Failed > 0 {
		p.line("Failed test cases:")
		for _, r := range v.Results {
			if !r.Passed {
				p.line("  - %s: %s", r.TestCaseID, FailureReason(r))
			}
		}
	}
	p.line("%s", rule)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
