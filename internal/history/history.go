// Package history keeps the session's analysis log.
package history

import (
	"sync"
	"time"
)

// previewLen bounds how much of the snippet is kept for display.
const previewLen = 50

// Entry records one completed analysis for the history view. CacheKey
// links back to the memoized result.
type Entry struct {
	Preview   string `json:"preview"`
	Timestamp string `json:"timestamp"`
	CacheKey  string `json:"cache_key"`
}

// Log is an append-only, session-scoped history. Owned by the caller
// layer and injected into handlers; no persistence.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

// Record appends an entry for the analyzed snippet.
func (l *Log) Record(snippet, cacheKey string) {
	entry := Entry{
		Preview:   preview(snippet),
		Timestamp: l.now().Format("2006-01-02 15:04:05"),
		CacheKey:  cacheKey,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns the history, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len returns the number of recorded analyses.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear drops the session history.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func preview(snippet string) string {
	runes := []rune(snippet)
	if len(runes) <= previewLen {
		return snippet
	}
	return string(runes[:previewLen]) + "..."
}
