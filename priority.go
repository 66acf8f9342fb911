package vkclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/vkclient/internal/backoff"
)

// MethodSpacing is a PriorityBackoff that enforces a minimum interval
// between background calls, so they queue behind foreground traffic
// instead of competing with it. Methods are matched by prefix, e.g.
// "stats." or "newsfeed.get".
type MethodSpacing struct {
	mu         sync.Mutex
	interval   time.Duration
	background []string
	nextAt     time.Time
}

// NewMethodSpacing creates a spacing policy for the given background
// method prefixes.
func NewMethodSpacing(interval time.Duration, backgroundPrefixes ...string) *MethodSpacing {
	return &MethodSpacing{interval: interval, background: backgroundPrefixes}
}

// Wait blocks a background method until its slot opens, then claims the
// next slot. Foreground methods pass through immediately.
func (s *MethodSpacing) Wait(ctx context.Context, method string) error {
	if !s.isBackground(method) {
		return nil
	}

	s.mu.Lock()
	now := time.Now()
	at := s.nextAt
	if at.Before(now) {
		at = now
	}
	s.nextAt = at.Add(s.interval)
	s.mu.Unlock()

	return backoff.SleepUntil(ctx, at)
}

func (s *MethodSpacing) isBackground(method string) bool {
	for _, prefix := range s.background {
		if strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}
