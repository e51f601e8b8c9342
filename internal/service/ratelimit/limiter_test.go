package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUpToCapThenFailFast(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewWithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !l.Allow("src", 3, time.Minute) {
			t.Fatalf("call %d denied below cap", i)
		}
	}
	if l.Allow("src", 3, time.Minute) {
		t.Fatalf("call above cap allowed")
	}
	if l.Remaining("src", 3, time.Minute) != 0 {
		t.Fatalf("remaining should be 0 at cap")
	}
}

func TestWindowElapsesAndResets(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewWithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		l.Allow("src", 3, time.Minute)
	}
	if l.Allow("src", 3, time.Minute) {
		t.Fatalf("should be rate limited")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("src", 3, time.Minute) {
		t.Fatalf("window elapsed but call denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewWithClock(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		l.Allow("a", 2, time.Minute)
	}
	if l.Allow("a", 2, time.Minute) {
		t.Fatalf("key a should be exhausted")
	}
	if !l.Allow("b", 2, time.Minute) {
		t.Fatalf("key b should be unaffected by key a")
	}
}

func TestSlidingWindowPartialEviction(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewWithClock(func() time.Time { return now })

	l.Allow("src", 2, time.Minute)
	now = now.Add(40 * time.Second)
	l.Allow("src", 2, time.Minute)
	if l.Allow("src", 2, time.Minute) {
		t.Fatalf("cap reached, call should fail")
	}

	// first event slides out, second is still inside
	now = now.Add(25 * time.Second)
	if !l.Allow("src", 2, time.Minute) {
		t.Fatalf("one slot should have freed up")
	}
	if l.Allow("src", 2, time.Minute) {
		t.Fatalf("window should be full again")
	}
}
