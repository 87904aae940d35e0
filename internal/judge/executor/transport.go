package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 16 << 20

// response carries the raw exchange details.
type response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// transport performs raw JSON exchanges against one base URL.
type transport struct {
	httpClient *http.Client
	userAgent  string
}

func (t *transport) do(ctx context.Context, method, url string, body []byte) (response, error) {
	var info response

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		info.Duration = time.Since(start)
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	return info, nil
}
