package oracle

import (
	"errors"
	"testing"
	"time"

	"ChainCast/internal/domain/models"

	"github.com/shopspring/decimal"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time               { return c.t }
func (c *fakeClock) Advance(d time.Duration)      { c.t = c.t.Add(d) }
func newFakeClock() *fakeClock                    { return &fakeClock{t: time.Unix(1700000000, 0)} }
func newTestGate(c *fakeClock, opts ...Option) *Gate {
	opts = append(opts, WithClock(c.Now))
	return NewGate("pub-key", "owner-key", opts...)
}

func TestPublishAndValidity(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)

	if g.State() != models.GateEmpty {
		t.Fatalf("fresh gate state = %v, want empty", g.State())
	}
	if g.IsValid() {
		t.Fatalf("empty gate reports valid")
	}

	exp := c.Now().Unix() + 1800
	if err := g.Publish("pub-key", 100, 80, exp); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !g.IsValid() {
		t.Fatalf("gate invalid immediately after publish")
	}
	if g.State() != models.GateValid {
		t.Fatalf("state = %v, want valid", g.State())
	}

	// advancing past expiry flips validity
	c.Advance(31 * time.Minute)
	if g.IsValid() {
		t.Fatalf("gate still valid past expiry")
	}
	if g.State() != models.GateExpired {
		t.Fatalf("state = %v, want expired", g.State())
	}
}

func TestThresholdRoundTrip(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	if err := g.Publish("pub-key", 100, 80, c.Now().Unix()+1800); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := g.UpdateConfidenceThreshold("owner-key", 85); err != nil {
		t.Fatalf("raise threshold: %v", err)
	}
	if g.IsValid() {
		t.Fatalf("80-confidence record valid under threshold 85")
	}
	if g.State() != models.GateLowConfidence {
		t.Fatalf("state = %v, want low_confidence", g.State())
	}

	if err := g.UpdateConfidenceThreshold("owner-key", 70); err != nil {
		t.Fatalf("lower threshold: %v", err)
	}
	if !g.IsValid() {
		t.Fatalf("record should be valid again at threshold 70")
	}
}

func TestPublishValidation(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	now := c.Now().Unix()

	cases := []struct {
		name string
		key  string
		p    float64
		conf int64
		exp  int64
		want error
	}{
		{"wrong key", "intruder", 100, 80, now + 60, ErrUnauthorized},
		{"zero price", "pub-key", 0, 80, now + 60, ErrBadPrice},
		{"negative price", "pub-key", -5, 80, now + 60, ErrBadPrice},
		{"confidence over 100", "pub-key", 100, 101, now + 60, ErrBadConfidence},
		{"expiry in past", "pub-key", 100, 80, now - 1, ErrBadExpiry},
		{"expiry now", "pub-key", 100, 80, now, ErrBadExpiry},
		{"expiry too far", "pub-key", 100, 80, now + 3601, ErrBadExpiry},
	}
	for _, tc := range cases {
		if err := g.Publish(tc.key, tc.p, tc.conf, tc.exp); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestInvalidate(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	if err := g.Publish("pub-key", 100, 90, c.Now().Unix()+600); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := g.Invalidate("wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("invalidate with wrong key: %v", err)
	}
	if err := g.Invalidate("pub-key"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if g.IsValid() {
		t.Fatalf("gate valid after invalidation")
	}
	if g.State() != models.GateInvalidated {
		t.Fatalf("state = %v, want invalidated", g.State())
	}
}

func TestPublishOverwritesWholesale(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	if err := g.Publish("pub-key", 100, 90, c.Now().Unix()+600); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	_ = g.Invalidate("pub-key")
	if err := g.Publish("pub-key", 200, 75, c.Now().Unix()+900); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	slot, ok := g.Prediction()
	if !ok || slot.Price != 200 || slot.Confidence != 75 || !slot.IsValid {
		t.Fatalf("slot not overwritten: %+v", slot)
	}
}

func TestSwapGateClosedCarriesConfidence(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	ex := NewExecutor(g, "owner-key")

	// publish at confidence 60, below the default threshold of 70
	if err := g.Publish("pub-key", 100, 60, c.Now().Unix()+600); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_, err := ex.ExecuteSwap(SwapParams{
		TokenIn:  "0xaaa",
		TokenOut: "0xbbb",
		Amount:   decimal.NewFromInt(5),
		Deadline: c.Now().Unix() + 60,
	})
	var gc *GateClosedError
	if !errors.As(err, &gc) {
		t.Fatalf("expected GateClosedError, got %v", err)
	}
	if gc.Confidence != 60 {
		t.Fatalf("error carries confidence %d, want 60", gc.Confidence)
	}
}

func TestSwapExecutesWhenValid(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	ex := NewExecutor(g, "owner-key")
	if err := g.Publish("pub-key", 100, 90, c.Now().Unix()+600); err != nil {
		t.Fatalf("publish: %v", err)
	}

	r, err := ex.ExecuteSwap(SwapParams{
		TokenIn:  "0xaaa",
		TokenOut: "0xbbb",
		Amount:   decimal.NewFromInt(3),
		Deadline: c.Now().Unix() + 60,
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !r.AmountOut.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("amount out = %s, want 300", r.AmountOut)
	}
}

func TestSwapPreconditions(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	ex := NewExecutor(g, "owner-key")
	_ = g.Publish("pub-key", 100, 90, c.Now().Unix()+600)
	now := c.Now().Unix()

	ok := SwapParams{TokenIn: "0xaaa", TokenOut: "0xbbb", Amount: decimal.NewFromInt(1), Deadline: now + 60}

	bad := ok
	bad.Amount = decimal.Zero
	if _, err := ex.ExecuteSwap(bad); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("zero amount: %v", err)
	}

	bad = ok
	bad.TokenOut = bad.TokenIn
	if _, err := ex.ExecuteSwap(bad); !errors.Is(err, ErrBadTokens) {
		t.Fatalf("identical tokens: %v", err)
	}

	bad = ok
	bad.TokenIn = ""
	if _, err := ex.ExecuteSwap(bad); !errors.Is(err, ErrBadTokens) {
		t.Fatalf("empty token: %v", err)
	}

	bad = ok
	bad.Deadline = now
	if _, err := ex.ExecuteSwap(bad); !errors.Is(err, ErrBadDeadline) {
		t.Fatalf("deadline now: %v", err)
	}

	bad = ok
	bad.Deadline = now + int64(DeadlineBuffer.Seconds()) + 1
	if _, err := ex.ExecuteSwap(bad); !errors.Is(err, ErrBadDeadline) {
		t.Fatalf("deadline too far: %v", err)
	}
}

func TestPausedOverridesValidOracle(t *testing.T) {
	c := newFakeClock()
	g := newTestGate(c)
	ex := NewExecutor(g, "owner-key")
	_ = g.Publish("pub-key", 100, 90, c.Now().Unix()+600)

	if err := ex.Pause("wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("pause with wrong key: %v", err)
	}
	if err := ex.Pause("owner-key"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err := ex.ExecuteSwap(SwapParams{
		TokenIn: "0xaaa", TokenOut: "0xbbb",
		Amount: decimal.NewFromInt(1), Deadline: c.Now().Unix() + 60,
	})
	if !errors.Is(err, ErrPaused) {
		t.Fatalf("paused swap: %v", err)
	}

	if err := ex.Unpause("owner-key"); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := ex.ExecuteSwap(SwapParams{
		TokenIn: "0xaaa", TokenOut: "0xbbb",
		Amount: decimal.NewFromInt(1), Deadline: c.Now().Unix() + 60,
	}); err != nil {
		t.Fatalf("swap after unpause: %v", err)
	}
}
