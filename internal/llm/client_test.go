package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// openGate admits every call and records the keys it saw.
type openGate struct {
	keys []string
}

func (g *openGate) Wait(_ context.Context, key string) error {
	g.keys = append(g.keys, key)
	return nil
}

func newTestAnalyzer(t *testing.T, baseURL string, mutate func(*Config)) Analyzer {
	t.Helper()

	cfg := Config{
		BaseURL:    baseURL,
		RetryDelay: 10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := NewAnalyzer(cfg, &openGate{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	t.Cleanup(func() {
		if closer, ok := a.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	})
	return a
}

func TestNewAnalyzerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewAnalyzer(Config{}, &openGate{}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error for missing BaseURL")
	}

	if _, err := NewAnalyzer(Config{BaseURL: "http://localhost:11434"}, nil, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error for nil gate")
	}

	_, err := NewAnalyzer(Config{
		BaseURL:  "http://localhost:11434",
		Provider: "another_provider",
	}, &openGate{}, zaptest.NewLogger(t))
	if err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	t.Parallel()

	const snippet = "def f(): return 1"
	const explanation = "This function returns 1."

	var gotReq generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(generateResponse{Response: explanation})
	}))
	defer srv.Close()

	gate := &openGate{}
	a, err := NewAnalyzer(Config{
		BaseURL:    srv.URL,
		RetryDelay: 10 * time.Millisecond,
	}, gate, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	res, err := a.Analyze(context.Background(), &AnalysisRequest{
		Snippet: snippet,
		Model:   "codellama",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.Explanation != explanation {
		t.Fatalf("unexpected explanation: %q", res.Explanation)
	}
	if res.Metrics.Model != "codellama" {
		t.Fatalf("unexpected model in metrics: %q", res.Metrics.Model)
	}
	if want := 7; res.Metrics.InputTokens != want { // def f ( ) : return 1
		t.Fatalf("input tokens = %d, want %d", res.Metrics.InputTokens, want)
	}
	if want := 5; res.Metrics.OutputTokens != want { // This function returns 1 .
		t.Fatalf("output tokens = %d, want %d", res.Metrics.OutputTokens, want)
	}
	if res.Metrics.Latency < 0 {
		t.Fatalf("latency must be non-negative, got %v", res.Metrics.Latency)
	}

	if gotReq.Model != "codellama" || gotReq.Stream {
		t.Fatalf("unexpected wire request: %#v", gotReq)
	}
	if !strings.Contains(gotReq.Prompt, snippet) {
		t.Fatalf("prompt does not embed the snippet: %q", gotReq.Prompt)
	}
	if gotReq.Options.Temperature != 0.1 || gotReq.Options.NumPredict != 2048 {
		t.Fatalf("unexpected decoding options: %#v", gotReq.Options)
	}

	if len(gate.keys) != 1 || gate.keys[0] != "codellama" {
		t.Fatalf("rate limiter not consulted per model: %v", gate.keys)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(t, "http://localhost:1", nil)

	_, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "   \n ", Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "snippet is required") {
		t.Fatalf("expected snippet validation error, got %v", err)
	}

	_, err = a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1"})
	if err == nil || !strings.Contains(err.Error(), "model is required") {
		t.Fatalf("expected model validation error, got %v", err)
	}
}

func TestAnalyzeMissingResponseField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"done": true}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, nil)

	res, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "m"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Explanation != noAnalysis {
		t.Fatalf("expected placeholder explanation, got %q", res.Explanation)
	}
}

func TestAnalyzeRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "third time lucky"})
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, nil)

	res, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "m"})
	if err != nil {
		t.Fatalf("Analyze after retries: %v", err)
	}
	if res.Explanation != "third time lucky" {
		t.Fatalf("unexpected explanation: %q", res.Explanation)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", got)
	}
}

func TestAnalyzeRateLimitExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, nil)

	_, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "m"})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.Attempts != 3 {
		t.Fatalf("expected 3 attempts reported, got %d", rl.Attempts)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", got)
	}
}

func TestAnalyzeModelNotFound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": "model 'nope' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, nil)

	_, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "nope"})

	var mnf *ModelNotFoundError
	if !errors.As(err, &mnf) {
		t.Fatalf("expected ModelNotFoundError, got %v", err)
	}
	if mnf.Model != "nope" {
		t.Fatalf("error should name the requested model, got %q", mnf.Model)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("model-not-found must not be retried, got %d calls", got)
	}
}

func TestAnalyzeEndpointNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "404 page not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, nil)

	_, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "m"})
	if !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestAnalyzeUpstreamError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, nil)

	_, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "m"})

	var up *UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if up.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected status in error: %d", up.Status)
	}
	if !strings.Contains(up.Body, "out of memory") {
		t.Fatalf("error should carry the response body, got %q", up.Body)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("non-429 statuses must not be retried, got %d calls", got)
	}
}

func TestAnalyzeServerUnreachable(t *testing.T) {
	t.Parallel()

	// Grab an address nothing is listening on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	a := newTestAnalyzer(t, addr, nil)

	start := time.Now()
	_, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "m"})
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("expected ErrServerUnreachable, got %v", err)
	}
	// Zero retries: a retried refusal would spend at least one RetryDelay.
	if time.Since(start) > 5*time.Second {
		t.Fatalf("connection refusal took too long, was it retried?")
	}
}

func TestAnalyzeTimeoutRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, func(cfg *Config) {
		cfg.AttemptTimeout = 50 * time.Millisecond
		cfg.MaxAttempts = 2
	})

	_, err := a.Analyze(context.Background(), &AnalysisRequest{Snippet: "x = 1", Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "attempts exhausted") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("timeouts should be retried, got %d calls", got)
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models": [{"name": "codellama"}, {"name": "mistral"}]}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, nil)

	models := a.ListModels(context.Background())
	if len(models) != 2 || models[0] != "codellama" || models[1] != "mistral" {
		t.Fatalf("unexpected models: %v", models)
	}
}

func TestListModelsFallback(t *testing.T) {
	t.Parallel()

	// Discovery failure: nothing listening.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	a := newTestAnalyzer(t, addr, nil)

	models := a.ListModels(context.Background())
	if len(models) != 1 || models[0] != "codellama" {
		t.Fatalf("expected default fallback, got %v", models)
	}
}

func TestListModelsEmptyList(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models": []}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL, func(cfg *Config) {
		cfg.DefaultModel = "llama3"
	})

	models := a.ListModels(context.Background())
	if len(models) != 1 || models[0] != "llama3" {
		t.Fatalf("expected configured default, got %v", models)
	}
}
