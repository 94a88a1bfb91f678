package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBackendWindowSemantics(t *testing.T) {
	backend := NewMemoryBackend()
	now := time.Now()
	backend.now = func() time.Time { return now }

	limiter := NewLimiter(backend, 5, 15*time.Minute)

	// The first five requests are allowed.
	for i := 1; i <= 5; i++ {
		result, err := limiter.CheckAndRecord(context.Background(), "key")
		if err != nil {
			t.Fatalf("CheckAndRecord() error = %v", err)
		}
		if !result.Allowed {
			t.Errorf("Request %d: expected allowed", i)
		}
		if result.Count != i {
			t.Errorf("Request %d: expected count %d, got %d", i, i, result.Count)
		}
		if result.Remaining != 5-i {
			t.Errorf("Request %d: expected remaining %d, got %d", i, 5-i, result.Remaining)
		}
	}

	// The sixth is denied but still recorded.
	result, err := limiter.CheckAndRecord(context.Background(), "key")
	if err != nil {
		t.Fatalf("CheckAndRecord() error = %v", err)
	}
	if result.Allowed {
		t.Error("Sixth request: expected denial")
	}
	if result.Count != 6 {
		t.Errorf("Sixth request: expected count 6, got %d", result.Count)
	}
	if want := now.Add(15 * time.Minute); !result.ResetAt.Equal(want) {
		t.Errorf("Expected ResetAt %v, got %v", want, result.ResetAt)
	}
}

func TestMemoryBackendSlidingWindow(t *testing.T) {
	backend := NewMemoryBackend()
	base := time.Now()
	current := base
	backend.now = func() time.Time { return current }

	limiter := NewLimiter(backend, 3, 10*time.Minute)

	// Three requests at t=0 fill the budget.
	for i := 0; i < 3; i++ {
		if _, err := limiter.CheckAndRecord(context.Background(), "key"); err != nil {
			t.Fatalf("CheckAndRecord() error = %v", err)
		}
	}

	// Five minutes later the window still holds all three.
	current = base.Add(5 * time.Minute)
	result, _ := limiter.CheckAndRecord(context.Background(), "key")
	if result.Allowed {
		t.Error("Expected denial while earlier requests remain in the window")
	}

	// Just past the window the t=0 requests slide out; only the t=5m denial
	// remains recorded.
	current = base.Add(10*time.Minute + time.Second)
	result, _ = limiter.CheckAndRecord(context.Background(), "key")
	if !result.Allowed {
		t.Error("Expected allowance once old requests slid out of the window")
	}
	if result.Count != 2 {
		t.Errorf("Expected count 2 (t=5m request plus this one), got %d", result.Count)
	}
}

func TestMemoryBackendKeysAreIndependent(t *testing.T) {
	backend := NewMemoryBackend()
	limiter := NewLimiter(backend, 1, time.Minute)

	if result, _ := limiter.CheckAndRecord(context.Background(), "alpha"); !result.Allowed {
		t.Error("Expected first request on alpha to be allowed")
	}
	if result, _ := limiter.CheckAndRecord(context.Background(), "alpha"); result.Allowed {
		t.Error("Expected second request on alpha to be denied")
	}
	if result, _ := limiter.CheckAndRecord(context.Background(), "beta"); !result.Allowed {
		t.Error("Expected first request on beta to be allowed")
	}
}

func TestMemoryBackendPrune(t *testing.T) {
	backend := NewMemoryBackend()
	base := time.Now()
	current := base
	backend.now = func() time.Time { return current }

	limiter := NewLimiter(backend, 5, time.Minute)
	if _, err := limiter.CheckAndRecord(context.Background(), "stale"); err != nil {
		t.Fatalf("CheckAndRecord() error = %v", err)
	}

	current = base.Add(time.Hour)
	backend.Prune(time.Minute)

	backend.mu.Lock()
	_, exists := backend.entries["stale"]
	backend.mu.Unlock()
	if exists {
		t.Error("Expected stale key to be pruned")
	}
}
