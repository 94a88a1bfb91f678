// Package ratelimit provides sliding-window rate limiting for the password
// reset flow. A request at time T counts against the limit if it falls
// within [T - window, T], so there is no burst-doubling at fixed window
// boundaries.
//
// Two backends implement the same interface: a Redis-backed store for
// multi-instance deployments and an in-process store as a degraded-mode
// fallback. The backend is chosen once at construction and is invisible to
// callers.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable indicates the counter store could not be reached.
// Callers must treat this as a denial (fail closed).
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Result describes the outcome of a CheckAndRecord call.
type Result struct {
	// Allowed is false when the request exceeds the configured limit.
	Allowed bool

	// Count is the number of requests recorded in the current window,
	// including this one.
	Count int

	// Remaining is the number of requests left before the limit.
	Remaining int

	// ResetAt is when the oldest recorded request slides out of the
	// window.
	ResetAt time.Time
}

// Backend records a request against a key and evaluates it in one atomic
// operation, so concurrent callers sharing a key never observe a stale
// under-limit state.
type Backend interface {
	CheckAndRecord(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Limiter enforces a sliding-window limit for one key dimension. Each
// limiter instance carries its own max and window, so the origin-address
// and account-identity dimensions are configured independently.
type Limiter struct {
	backend Backend
	max     int
	window  time.Duration
}

// NewLimiter creates a limiter over the given backend.
func NewLimiter(backend Backend, max int, window time.Duration) *Limiter {
	return &Limiter{
		backend: backend,
		max:     max,
		window:  window,
	}
}

// CheckAndRecord records a request for the key and reports whether it is
// within the limit. An unreachable backend yields a denying Result along
// with ErrBackendUnavailable.
func (l *Limiter) CheckAndRecord(ctx context.Context, key string) (Result, error) {
	result, err := l.backend.CheckAndRecord(ctx, key, l.max, l.window)
	if err != nil {
		// Fail closed: an unreachable store never means "allow".
		return Result{Allowed: false}, errors.Join(ErrBackendUnavailable, err)
	}
	return result, nil
}
