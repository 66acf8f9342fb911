package pipeline

import (
	"sync"
	"sync/atomic"
)

// Gate serializes interactive challenge resolution: at most one
// challenge is visible to the user at a time. Waiters queued behind the
// holder re-check, via the sequence number, whether a resolution
// already completed after they observed their challenge; if so they
// skip resolving and go straight back to retrying.
type Gate struct {
	mu  sync.Mutex
	seq atomic.Uint64
}

// NewGate creates an open gate.
func NewGate() *Gate { return &Gate{} }

// Seq returns the count of completed resolutions. Sample it when a
// challenge is observed and pass it to Resolve.
func (g *Gate) Seq() uint64 { return g.seq.Load() }

// Resolve runs fn exclusively. If another resolution completed after
// observed was sampled, fn is skipped and Resolve reports false: the
// earlier resolver may have fixed the condition for everyone, so the
// caller should retry before resolving again. A successful fn advances
// the sequence.
func (g *Gate) Resolve(observed uint64, fn func() error) (resolved bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seq.Load() != observed {
		return false, nil
	}
	if err := fn(); err != nil {
		return true, err
	}
	g.seq.Add(1)
	return true, nil
}
