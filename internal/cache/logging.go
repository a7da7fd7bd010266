package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"codelens/internal/llm"
	"codelens/internal/metrics"
	"codelens/pkg/logging"
)

// LoggingStore wraps a Store with structured logging and metrics.
type LoggingStore struct {
	inner Store
}

// NewLoggingStore returns a store that logs and records metrics.
func NewLoggingStore(inner Store) Store {
	return &LoggingStore{inner: inner}
}

func (s *LoggingStore) Get(ctx context.Context, key string) (*llm.AnalysisResult, bool, error) {
	start := time.Now()
	result, ok, err := s.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	outcome := "miss"
	if err != nil {
		outcome = "error"
	} else if ok {
		outcome = "hit"
		metrics.CacheHitsTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("fingerprint", key),
		zap.String("cache_result", outcome), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("result_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Info("result_cache_get", fields...)
	}

	return result, ok, err
}

func (s *LoggingStore) Put(ctx context.Context, key string, result *llm.AnalysisResult) error {
	start := time.Now()
	err := s.inner.Put(ctx, key, result)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	fields := []zap.Field{
		zap.String("fingerprint", key),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("result_cache_put", append(fields, zap.Error(err))...)
	} else {
		logger.Info("result_cache_put", fields...)
	}

	return err
}
