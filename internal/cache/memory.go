package cache

import (
	"context"
	"sync"

	"codelens/internal/llm"
)

// MemoryStore keeps results in a process-local map. Unbounded for the
// process lifetime, which is acceptable at the expected usage scale.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*llm.AnalysisResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*llm.AnalysisResult),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*llm.AnalysisResult, bool, error) {
	s.mu.RLock()
	res, ok := s.items[key]
	s.mu.RUnlock()
	return res, ok, nil
}

// Put stores result under key unless a result is already present.
func (s *MemoryStore) Put(_ context.Context, key string, result *llm.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; exists {
		return nil
	}
	s.items[key] = result
	return nil
}

// Len returns the number of memoized results.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes all results. Useful for tests or a session reset.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.items = make(map[string]*llm.AnalysisResult)
	s.mu.Unlock()
}
