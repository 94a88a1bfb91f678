package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is the in-process fallback store. It keeps a rolling log of
// request timestamps per key behind a mutex, which makes the
// record-and-evaluate step atomic for callers in the same process.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string][]time.Time

	// now is injectable for window tests.
	now func() time.Time
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// CheckAndRecord implements Backend.
func (b *MemoryBackend) CheckAndRecord(_ context.Context, key string, max int, window time.Duration) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-window)

	kept := b.entries[key][:0]
	for _, t := range b.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	b.entries[key] = kept

	count := len(kept)
	resetAt := kept[0].Add(window)

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= max,
		Count:     count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Prune drops keys whose every entry has aged out. Called periodically to
// keep memory bounded when many one-time keys are seen.
func (b *MemoryBackend) Prune(olderThan time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-olderThan)
	for key, times := range b.entries {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(b.entries, key)
		}
	}
}
