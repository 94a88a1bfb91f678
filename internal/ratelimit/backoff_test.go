package ratelimit

import (
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	// No jitter, so delays are exact.
	b := NewBackoff(500*time.Millisecond, 4*time.Second, 0)

	expected := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second, // capped
		4 * time.Second,
	}

	for i, want := range expected {
		if got := b.Next("key"); got != want {
			t.Errorf("Violation %d: expected delay %v, got %v", i+1, want, got)
		}
	}
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	jitter := 50 * time.Millisecond
	b := NewBackoff(base, time.Minute, jitter)

	for i := 0; i < 20; i++ {
		got := b.Next("key-" + string(rune('a'+i)))
		if got < base || got >= base+jitter {
			t.Errorf("Expected first delay in [%v, %v), got %v", base, base+jitter, got)
		}
	}
}

func TestBackoffResetClearsCount(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 0)

	b.Next("key")
	b.Next("key")
	if got := b.Next("key"); got != 4*time.Second {
		t.Fatalf("Expected third violation delay 4s, got %v", got)
	}

	b.Reset("key")

	if got := b.Next("key"); got != time.Second {
		t.Errorf("Expected delay back at base after reset, got %v", got)
	}
}

func TestBackoffKeysAreIndependent(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 0)

	b.Next("alpha")
	b.Next("alpha")

	if got := b.Next("beta"); got != time.Second {
		t.Errorf("Expected beta to start at base, got %v", got)
	}
}

func TestBackoffPrune(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 0)
	b.Next("stale")

	time.Sleep(10 * time.Millisecond)
	b.Prune(time.Millisecond)

	// After pruning, the key starts over at the base delay.
	if got := b.Next("stale"); got != time.Second {
		t.Errorf("Expected pruned key to restart at base, got %v", got)
	}
}
