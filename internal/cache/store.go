// Package cache memoizes analysis results per snippet fingerprint.
package cache

import (
	"context"

	"codelens/internal/llm"
)

// Store maps snippet fingerprints to analysis results. The first
// result stored for a key wins for the lifetime of the store: this is
// idempotent memoization, not a TTL cache. A given key must always
// resolve to the same result within a session.
//
// Implemented by the memory store (default) and the Redis store.
type Store interface {
	Get(ctx context.Context, key string) (*llm.AnalysisResult, bool, error)
	Put(ctx context.Context, key string, result *llm.AnalysisResult) error
}
