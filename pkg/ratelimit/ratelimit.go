// Package ratelimit implements the per-actor sliding-window admission
// control used to bound how often any one actor may execute approved
// proposals.
package ratelimit

import (
	"sync"
	"time"

	"github.com/stewardgate/gate/pkg/stwclock"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Limiter is a per-actor sliding-window admission controller: at most
// Limit hits are admitted within any trailing Window.
type Limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	clock  stwclock.Clock
}

// New builds a Limiter admitting at most limit hits per actor within
// window. clock defaults to the system wall clock if nil.
func New(limit int, window time.Duration, clock stwclock.Clock) *Limiter {
	if clock == nil {
		clock = stwclock.Default
	}
	return &Limiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

// Accept purges expired hits for actor, then admits the call iff the
// post-increment count would not exceed the limit. A refused call does not
// record a hit. Concurrent callers for the same actor are serialized by mu
// so the resulting count is equal to some serializable ordering.
func (l *Limiter) Accept(actor string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	history := l.hits[actor]
	kept := history[:0]
	for _, ts := range history {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.hits[actor] = kept
		return Decision{Allowed: false, Reason: "rate limit exceeded"}
	}

	kept = append(kept, now)
	l.hits[actor] = kept
	return Decision{Allowed: true, Reason: "within rate limit"}
}

// Count returns the current number of hits within the window for actor,
// without mutating state.
func (l *Limiter) Count(actor string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)
	n := 0
	for _, ts := range l.hits[actor] {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}
