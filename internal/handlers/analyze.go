package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"codelens/internal/cache"
	"codelens/internal/history"
	"codelens/internal/llm"
	"codelens/internal/metrics"
	"codelens/pkg/logging"
)

// AnalysisHandler holds dependencies for the /v1/analyze endpoint and
// the session views (models, history). All session state is explicit
// and injected; the handler itself is stateless.
type AnalysisHandler struct {
	Cache        cache.Store
	History      *history.Log
	Analyzer     llm.Analyzer
	DefaultModel string
}

func NewAnalysisHandler(store cache.Store, hist *history.Log, analyzer llm.Analyzer, defaultModel string) *AnalysisHandler {
	return &AnalysisHandler{
		Cache:        store,
		History:      hist,
		Analyzer:     analyzer,
		DefaultModel: defaultModel,
	}
}

type metricsPayload struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMS    int64  `json:"latency_ms"`
}

type analyzeResponse struct {
	Explanation string         `json:"explanation"`
	Metrics     metricsPayload `json:"metrics"`
	CacheKey    string         `json:"cache_key"`
	Cached      bool           `json:"cached"`
}

// Analyze handles POST /v1/analyze: fingerprint the snippet, serve from
// the cache when possible, otherwise run the analyzer and memoize.
// Nothing is written to cache or history on failure.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req llm.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Model == "" {
		req.Model = h.DefaultModel
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cache.Fingerprint(req.Snippet)

	cached, hit, cacheErr := h.Cache.Get(ctx, key)
	if cacheErr != nil {
		// Cache is best-effort; log and treat as miss.
		logger.Warn("result_cache_get_error", zap.Error(cacheErr))
	}

	if hit {
		logger.Info("analysis served from cache",
			zap.String("fingerprint", key),
			zap.String("model", cached.Metrics.Model),
			zap.Duration("total_latency", time.Since(start)),
		)
		h.writeJSON(w, toResponse(cached, key, true))
		return
	}

	result, err := h.Analyzer.Analyze(ctx, &req)
	if err != nil {
		metrics.AnalysisRequestsTotal.WithLabelValues(req.Model, "error").Inc()
		status, msg := mapAnalyzeError(err)
		logger.Warn("analysis failed",
			zap.String("fingerprint", key),
			zap.String("model", req.Model),
			zap.Int("status", status),
			zap.Error(err),
		)
		h.writeError(w, status, msg)
		return
	}

	metrics.AnalysisRequestsTotal.WithLabelValues(req.Model, "ok").Inc()
	metrics.AnalysisLatencySeconds.
		WithLabelValues(req.Model).
		Observe(result.Metrics.Latency.Seconds())

	if err := h.Cache.Put(ctx, key, result); err != nil {
		logger.Warn("result_cache_put_error", zap.Error(err))
	}
	h.History.Record(req.Snippet, key)

	logger.Info("analysis completed",
		zap.String("fingerprint", key),
		zap.String("model", result.Metrics.Model),
		zap.Int("input_tokens", result.Metrics.InputTokens),
		zap.Int("output_tokens", result.Metrics.OutputTokens),
		zap.Duration("llm_latency", result.Metrics.Latency),
		zap.Duration("total_latency", time.Since(start)),
	)

	h.writeJSON(w, toResponse(result, key, false))
}

func toResponse(result *llm.AnalysisResult, key string, cached bool) analyzeResponse {
	return analyzeResponse{
		Explanation: result.Explanation,
		Metrics: metricsPayload{
			Model:        result.Metrics.Model,
			InputTokens:  result.Metrics.InputTokens,
			OutputTokens: result.Metrics.OutputTokens,
			LatencyMS:    result.Metrics.Latency.Milliseconds(),
		},
		CacheKey: key,
		Cached:   cached,
	}
}

// mapAnalyzeError translates the analyzer's error taxonomy to HTTP.
func mapAnalyzeError(err error) (int, string) {
	var mnf *llm.ModelNotFoundError
	var rle *llm.RateLimitError
	var up *llm.UpstreamError

	switch {
	case errors.As(err, &mnf):
		return http.StatusNotFound, mnf.Error()
	case errors.As(err, &rle):
		return http.StatusTooManyRequests, rle.Error()
	case errors.Is(err, llm.ErrServerUnreachable),
		errors.Is(err, llm.ErrEndpointNotFound):
		return http.StatusBadGateway, err.Error()
	case errors.As(err, &up):
		return http.StatusBadGateway, up.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "request cancelled or timed out"
	default:
		return http.StatusBadGateway, err.Error()
	}
}

// writeJSON is a small helper to send JSON responses consistently.
func (h *AnalysisHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *AnalysisHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
