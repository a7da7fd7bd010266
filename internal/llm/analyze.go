package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"codelens/internal/tokens"
)

const maxSnippetSize = 512 * 1024 // 512KB snippet guard

// noAnalysis is substituted when a 200 response lacks the expected field.
const noAnalysis = "No analysis provided"

func (c *ollamaClient) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	if req == nil {
		return nil, fmt.Errorf("llm: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("llm: invalid request: %w", err)
	}
	if len(req.Snippet) > maxSnippetSize {
		return nil, fmt.Errorf("llm: snippet too large (%d bytes, max %d)",
			len(req.Snippet), maxSnippetSize)
	}

	// Admission control comes before any network I/O.
	if err := c.gate.Wait(ctx, req.Model); err != nil {
		return nil, err
	}

	metrics := Metrics{
		Model:       req.Model,
		InputTokens: tokens.Estimate(req.Snippet),
	}

	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: buildPrompt(req.Snippet),
		Stream: false,
		Options: generateOptions{
			Temperature: c.cfg.Temperature,
			NumPredict:  c.cfg.NumPredict,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	c.logger.Debug("analysis request starting",
		zap.String("model", req.Model),
		zap.Int("input_tokens", metrics.InputTokens),
	)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		explanation, latency, err := c.attemptGenerate(ctx, req.Model, body)

		if err == nil {
			metrics.Latency = latency
			metrics.OutputTokens = tokens.Estimate(explanation)

			c.logger.Info("analysis completed",
				zap.String("model", req.Model),
				zap.Int("attempt", attempt),
				zap.Int("input_tokens", metrics.InputTokens),
				zap.Int("output_tokens", metrics.OutputTokens),
				zap.Duration("latency", latency),
			)
			return &AnalysisResult{Explanation: explanation, Metrics: metrics}, nil
		}

		// Caller gave up; don't dress this up as an upstream failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if fatal(err) {
			c.logger.Error("analysis failed",
				zap.String("model", req.Model),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}

		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		c.logger.Warn("transient upstream failure, retrying",
			zap.String("model", req.Model),
			zap.Int("attempt", attempt),
			zap.Duration("retry_delay", c.cfg.RetryDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}

	c.logger.Error("analysis attempts exhausted",
		zap.String("model", req.Model),
		zap.Int("attempts", c.cfg.MaxAttempts),
		zap.Error(lastErr),
	)

	// One consistent terminal shape: 429 exhaustion gets its own type so
	// callers can surface it as a rate limit; everything else wraps the
	// last attempt error.
	if errors.Is(lastErr, errTooManyRequests) {
		return nil, &RateLimitError{Attempts: c.cfg.MaxAttempts}
	}
	return nil, fmt.Errorf("llm: %d attempts exhausted: %w", c.cfg.MaxAttempts, lastErr)
}

// attemptGenerate performs a single POST /api/generate and interprets
// the status per the error taxonomy. The returned latency is the wall
// clock for this attempt only.
func (c *ollamaClient) attemptGenerate(parentCtx context.Context, model string, body []byte) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.AttemptTimeout)
	defer cancel()

	url := c.cfg.BaseURL + "/api/generate"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("llm: build HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		if connRefused(err) {
			return "", latency, ErrServerUnreachable
		}
		if isTimeout(err) {
			return "", latency, fmt.Errorf("llm: request timed out after %v: %w", c.cfg.AttemptTimeout, err)
		}
		return "", latency, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", latency, fmt.Errorf("llm: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out generateResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return "", latency, fmt.Errorf("llm: decode response: %w", err)
		}
		if out.Response == "" {
			return noAnalysis, latency, nil
		}
		return out.Response, latency, nil

	case resp.StatusCode == http.StatusNotFound:
		if strings.Contains(strings.ToLower(string(respBody)), "model") {
			return "", latency, &ModelNotFoundError{Model: model}
		}
		return "", latency, ErrEndpointNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		return "", latency, errTooManyRequests

	default:
		return "", latency, &UpstreamError{
			Status: resp.StatusCode,
			Body:   truncate(string(respBody), 200),
		}
	}
}

// connRefused reports whether err means the server cannot be reached at
// all, as opposed to reached-but-slow (which is a timeout and retried).
func connRefused(err error) bool {
	if err == nil || isTimeout(err) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncate limits string length for error messages and logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
