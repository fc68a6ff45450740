package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stewardgate/gate/pkg/stwclock"
)

// S6 — rate limiter saturation.
func TestS6RateLimiterSaturation(t *testing.T) {
	clock := stwclock.NewFake(time.Unix(0, 0))
	l := New(2, 60*time.Second, clock)

	d1 := l.Accept("actor-1")
	d2 := l.Accept("actor-1")
	d3 := l.Accept("actor-1")

	if !d1.Allowed || !d2.Allowed {
		t.Fatalf("expected first two calls admitted, got %+v %+v", d1, d2)
	}
	if d3.Allowed {
		t.Fatalf("expected third call refused")
	}
	if d3.Reason != "rate limit exceeded" {
		t.Fatalf("unexpected refusal reason: %s", d3.Reason)
	}
	if got := l.Count("actor-1"); got != 2 {
		t.Fatalf("expected count 2 after refusal (refused call must not record a hit), got %d", got)
	}
}

func TestWindowExpiryReadmits(t *testing.T) {
	clock := stwclock.NewFake(time.Unix(0, 0))
	l := New(1, 10*time.Second, clock)

	if !l.Accept("a").Allowed {
		t.Fatalf("first call should be admitted")
	}
	if l.Accept("a").Allowed {
		t.Fatalf("second call within window should be refused")
	}
	clock.Advance(11 * time.Second)
	if !l.Accept("a").Allowed {
		t.Fatalf("call after window expiry should be admitted")
	}
}

func TestConcurrentAcceptIsSerializable(t *testing.T) {
	clock := stwclock.NewFake(time.Unix(0, 0))
	l := New(100, 60*time.Second, clock)

	var wg sync.WaitGroup
	admitted := make([]bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			admitted[i] = l.Accept("actor").Allowed
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 50 {
		t.Fatalf("expected all 50 calls admitted under limit 100, got %d", count)
	}
	if got := l.Count("actor"); got != 50 {
		t.Fatalf("expected recorded count 50, got %d", got)
	}
}
