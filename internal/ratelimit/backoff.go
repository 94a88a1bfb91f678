package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes a progressive delay for repeated violations from the
// same origin: the base delay doubles per consecutive violation, is capped,
// and carries random jitter. The caller sleeps this delay before
// responding, which throttles automated retries without revealing that
// throttling occurred.
type Backoff struct {
	base   time.Duration
	cap    time.Duration
	jitter time.Duration

	mu         sync.Mutex
	violations map[string]*violationState
}

type violationState struct {
	consecutive int
	lastSeen    time.Time
}

// NewBackoff creates a Backoff with the given base delay, cap and jitter
// range.
func NewBackoff(base, cap, jitter time.Duration) *Backoff {
	return &Backoff{
		base:       base,
		cap:        cap,
		jitter:     jitter,
		violations: make(map[string]*violationState),
	}
}

// Next records a violation for the key and returns the delay to sleep.
func (b *Backoff) Next(key string) time.Duration {
	b.mu.Lock()
	state, ok := b.violations[key]
	if !ok {
		state = &violationState{}
		b.violations[key] = state
	}
	state.consecutive++
	state.lastSeen = time.Now()
	n := state.consecutive
	b.mu.Unlock()

	delay := b.base
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= b.cap {
			delay = b.cap
			break
		}
	}

	if b.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(b.jitter)))
	}
	if delay > b.cap {
		delay = b.cap
	}

	return delay
}

// Reset clears the consecutive-violation count for a key. Called when a
// request from the origin is allowed again.
func (b *Backoff) Reset(key string) {
	b.mu.Lock()
	delete(b.violations, key)
	b.mu.Unlock()
}

// Prune drops violation state not seen since the cutoff.
func (b *Backoff) Prune(olderThan time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	for key, state := range b.violations {
		if state.lastSeen.Before(cutoff) {
			delete(b.violations, key)
		}
	}
}
