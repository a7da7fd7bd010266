package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AnalysisRequest is one code-explanation request.
type AnalysisRequest struct {
	Snippet string `json:"snippet"`
	Model   string `json:"model"`
}

func (r *AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.Snippet) == "" {
		return errors.New("snippet is required")
	}
	if r.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// Metrics describes one completed analysis attempt. Token counts are
// heuristic estimates (see internal/tokens), not tokenizer output.
type Metrics struct {
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
}

// AnalysisResult is the explanation plus its metrics. Immutable once
// returned; produced exactly once per successful request.
type AnalysisResult struct {
	Explanation string  `json:"explanation"`
	Metrics     Metrics `json:"metrics"`
}

// Analyzer is the provider capability interface. Implementations are
// selected once at construction via NewAnalyzer.
type Analyzer interface {
	// Analyze explains the snippet. It blocks on the rate limiter,
	// retries transient upstream failures, and never returns a partial
	// result alongside an error.
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)

	// ListModels returns the models the provider advertises. It never
	// fails: on any discovery problem it falls back to the default list.
	ListModels(ctx context.Context) []string
}

// Gate is the admission control the client blocks on before each
// upstream call. Satisfied by *ratelimit.Limiter.
type Gate interface {
	Wait(ctx context.Context, key string) error
}
