// Package backoff holds the shared throttle state the pipeline consults
// between attempts: a persisted per-device rate-limit token and a
// process-wide too-many-requests gate. Both are monotonic: a recorded
// not-before timestamp only ever moves forward.
package backoff

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/vkclient/storage"
)

// RateLimitToken tracks when the device may call the API again after a
// rate-limit rejection. The timestamp is read through and written back
// to a TokenStorage so it survives process restarts.
type RateLimitToken struct {
	mu       sync.Mutex
	store    storage.TokenStorage
	deviceID string

	loaded    bool
	notBefore time.Time
}

// NewRateLimitToken creates a token backed by store, keyed by device.
func NewRateLimitToken(store storage.TokenStorage, deviceID string) *RateLimitToken {
	return &RateLimitToken{store: store, deviceID: deviceID}
}

// AllowedAt returns the earliest moment a call may go out. Zero means
// no backoff is active.
func (t *RateLimitToken) AllowedAt(ctx context.Context) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)
	return t.notBefore
}

// RecordLimited extends the backoff to at least now+minWindow. A window
// that would move the timestamp backwards is a no-op.
func (t *RateLimitToken) RecordLimited(ctx context.Context, minWindow time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(ctx)

	candidate := time.Now().Add(minWindow)
	if !candidate.After(t.notBefore) {
		return
	}
	t.notBefore = candidate
	if err := t.store.SetNotBefore(ctx, t.deviceID, candidate); err != nil {
		// The in-memory copy still throttles this process.
		slog.Warn("failed to persist rate limit backoff", "device", t.deviceID, "error", err)
	}
}

// load pulls the persisted timestamp once. A failed read is retried on
// the next access rather than discarding persisted state for the
// process lifetime. Called with mu held.
func (t *RateLimitToken) load(ctx context.Context) {
	if t.loaded {
		return
	}
	stored, err := t.store.GetNotBefore(ctx, t.deviceID)
	if err != nil {
		slog.Warn("failed to load rate limit backoff", "device", t.deviceID, "error", err)
		return
	}
	t.loaded = true
	if stored.After(t.notBefore) {
		t.notBefore = stored
	}
}

// Gate is the in-memory too-many-requests throttle. One overloaded
// endpoint delays every call issued through the same gate.
type Gate struct {
	mu        sync.Mutex
	notBefore time.Time
}

// NewGate creates an open gate.
func NewGate() *Gate { return &Gate{} }

// sharedGate throttles every manager in the process. Managers receive
// it explicitly at construction; tests use their own Gate.
var sharedGate = NewGate()

// SharedGate returns the process-wide gate.
func SharedGate() *Gate { return sharedGate }

// AllowedAt returns the earliest moment a call may go out.
func (g *Gate) AllowedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notBefore
}

// RecordLimited extends the gate to at least now+minWindow, never
// backwards.
func (g *Gate) RecordLimited(minWindow time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	candidate := time.Now().Add(minWindow)
	if candidate.After(g.notBefore) {
		g.notBefore = candidate
	}
}

// Wait sleeps until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return SleepUntil(ctx, g.AllowedAt())
}

// SleepUntil blocks until t or ctx cancellation, whichever comes first.
func SleepUntil(ctx context.Context, t time.Time) error {
	delay := time.Until(t)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
