package ratelimit

import (
	"sync"
	"time"
)

// window tracks request timestamps inside the sliding window for one key.
type window struct {
	max    int
	span   time.Duration
	events []time.Time
}

// Limiter is a sliding-window rate limiter keyed by string. A call that
// would exceed the limit fails fast; nothing is queued.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*window
	now func() time.Time
}

// New creates a Limiter.
func New() *Limiter {
	return &Limiter{m: make(map[string]*window), now: time.Now}
}

// NewWithClock creates a Limiter with an injected clock for tests.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{m: make(map[string]*window), now: now}
}

// Allow returns true and records the event if key has made fewer than max
// requests within the trailing span.
func (l *Limiter) Allow(key string, max int, span time.Duration) bool {
	if max <= 0 {
		return false
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.m[key]
	if !ok {
		w = &window{max: max, span: span}
		l.m[key] = w
	}
	w.max = max
	w.span = span

	// evict events that fell out of the window
	cut := now.Add(-span)
	kept := w.events[:0]
	for _, e := range w.events {
		if e.After(cut) {
			kept = append(kept, e)
		}
	}
	w.events = kept

	if len(w.events) >= w.max {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// Remaining reports how many requests key has left in the current window.
func (l *Limiter) Remaining(key string, max int, span time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.m[key]
	if !ok {
		return max
	}
	cut := now.Add(-span)
	n := 0
	for _, e := range w.events {
		if e.After(cut) {
			n++
		}
	}
	if n >= max {
		return 0
	}
	return max - n
}
