// Package executor talks to a Piston-compatible code execution service.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// PublicBaseURL is the hosted Piston instance used as a fallback.
const PublicBaseURL = "https://emkc.org/api/v2/piston"

// Request is a single program execution against one stdin.
type Request struct {
	Language   string
	Version    string
	SourceCode []byte
	Stdin      []byte
	// Timeout bounds the whole exchange. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Executor runs one request and classifies the result. It never retries.
type Executor interface {
	Execute(ctx context.Context, req Request) model.ExecutionOutcome
}

// Client is the HTTP executor for Piston.
type Client struct {
	baseURL    string
	public     bool
	runTimeout time.Duration
	transport  *transport
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.transport.httpClient = hc
		}
	}
}

// WithRunTimeout asks the remote service to kill the program after d.
func WithRunTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.runTimeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.transport.userAgent = ua
	}
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	c := &Client{
		baseURL: baseURL,
		public:  strings.HasPrefix(baseURL, "https://emkc.org"),
		transport: &transport{
			httpClient: &http.Client{},
			userAgent:  "codejudge",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Public reports whether the client targets the hosted public API.
func (c *Client) Public() bool {
	return c.public
}

func (c *Client) endpoint(name string) string {
	if c.public {
		return c.baseURL + "/" + name
	}
	return c.baseURL + "/api/v2/" + name
}

// Execute performs one POST and maps the response to an outcome.
func (c *Client) Execute(ctx context.Context, req Request) model.ExecutionOutcome {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	version := req.Version
	if version == "" {
		version = "*"
	}
	payload := pistonExecuteRequest{
		Language: req.Language,
		Version:  version,
		Files: []pistonFile{{
			Name:    SourceFileName(req.Language),
			Content: string(req.SourceCode),
		}},
		Stdin: string(req.Stdin),
	}
	if c.runTimeout > 0 {
		payload.RunTimeout = c.runTimeout.Milliseconds()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return model.ExecutionOutcome{Status: model.OutcomeTransportError, Err: err.Error()}
	}

	start := time.Now()
	resp, err := c.transport.do(ctx, http.MethodPost, c.endpoint("execute"), body)
	elapsed := time.Since(start)
	if err != nil {
		return model.ExecutionOutcome{Status: classifyError(ctx, err), Elapsed: elapsed, Err: err.Error()}
	}
	outcome := classifyResponse(resp)
	outcome.Elapsed = elapsed
	return outcome
}

// Runtimes lists the runtimes installed on the remote service.
func (c *Client) Runtimes(ctx context.Context) ([]Runtime, error) {
	resp, err := c.transport.do(ctx, http.MethodGet, c.endpoint("runtimes"), nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteTransportError, "list runtimes failed")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, appErr.Newf(appErr.RemoteTransportError, "list runtimes failed: status %d", resp.StatusCode)
	}
	var runtimes []Runtime
	if err := json.Unmarshal(resp.Body, &runtimes); err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteTransportError, "decode runtimes failed")
	}
	return runtimes, nil
}

func classifyError(ctx context.Context, err error) model.OutcomeStatus {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.OutcomeTimeout
	}
	return model.OutcomeTransportError
}

func classifyResponse(resp response) model.ExecutionOutcome {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.ExecutionOutcome{Status: model.OutcomeRateLimited, Err: "remote rate limit exceeded"}
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return model.ExecutionOutcome{Status: model.OutcomeTimeout, Err: "remote status " + strconv.Itoa(resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return model.ExecutionOutcome{
			Status: model.OutcomeTransportError,
			Err:    fmt.Sprintf("remote status %d: %s", resp.StatusCode, truncate(resp.Body, 256)),
		}
	}

	var parsed pistonExecuteResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return model.ExecutionOutcome{Status: model.OutcomeTransportError, Err: "malformed response: " + err.Error()}
	}

	if compileOutput, failed := compileFailure(parsed.Compile); failed {
		out := model.ExecutionOutcome{
			Status:        model.OutcomeNonZeroExit,
			ExitCode:      stageCode(parsed.Compile),
			CompileOutput: []byte(compileOutput),
			Err:           "compilation failed",
		}
		if parsed.Run != nil {
			out.Stdout = []byte(parsed.Run.Stdout)
			out.Stderr = []byte(parsed.Run.Stderr)
		}
		return out
	}

	if parsed.Run == nil {
		return model.ExecutionOutcome{Status: model.OutcomeTransportError, Err: "no execution output received"}
	}
	run := parsed.Run
	out := model.ExecutionOutcome{
		Status:   model.OutcomeSuccess,
		Stdout:   []byte(run.Stdout),
		Stderr:   []byte(run.Stderr),
		ExitCode: stageCode(run),
	}
	if run.Signal != nil && *run.Signal != "" {
		out.Signal = *run.Signal
	}
	switch {
	case out.Signal != "":
		out.Status = model.OutcomeNonZeroExit
		out.Err = "killed by signal " + out.Signal
	case out.ExitCode != 0:
		out.Status = model.OutcomeNonZeroExit
		out.Err = "process exited with code " + strconv.Itoa(out.ExitCode)
	}
	return out
}

func compileFailure(stage *pistonStage) (string, bool) {
	if stage == nil {
		return "", false
	}
	if stage.Stderr != "" {
		return stage.Stderr, true
	}
	if code := stageCode(stage); code != 0 {
		if stage.Stdout != "" {
			return stage.Stdout, true
		}
		return "Compilation failed", true
	}
	return "", false
}

// stageCode returns -1 when the stage was killed before reporting a code.
func stageCode(stage *pistonStage) int {
	if stage == nil || stage.Code == nil {
		return -1
	}
	return *stage.Code
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
