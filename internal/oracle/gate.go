package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	applogger "ChainCast/pkg/logger"
)

// Default gate constants, mirroring the on-chain contract.
const (
	DefaultConfidenceThreshold = 70
	MaxValidityWindow          = time.Hour
)

var (
	// ErrUnauthorized is returned for mutations without the publisher or
	// owner key.
	ErrUnauthorized = errors.New("oracle: unauthorized")
	// ErrBadPrice rejects non-positive prices.
	ErrBadPrice = errors.New("oracle: price must be positive")
	// ErrBadConfidence rejects confidence outside 0-100.
	ErrBadConfidence = errors.New("oracle: confidence outside 0-100")
	// ErrBadExpiry rejects expiries not strictly in the future or beyond
	// the maximum validity window.
	ErrBadExpiry = errors.New("oracle: invalid expiry")
)

// Clock supplies current time; injectable for deterministic tests.
type Clock func() time.Time

// Option configures a Gate.
type Option func(*Gate)

// Gate holds the single-slot on-chain prediction record. Mutations are
// restricted to the authorized publisher; the validity predicate is evaluated
// in one place so read sites cannot drift.
type Gate struct {
	mu sync.RWMutex

	slot    models.OnChainPrediction
	hasSlot bool

	threshold    int64
	maxValidity  time.Duration
	publisherKey string
	ownerKey     string

	now   Clock
	store drepo.SlotStore
	l     *applogger.Logger
}

// NewGate creates a Gate owned and published by the given keys.
func NewGate(publisherKey, ownerKey string, opts ...Option) *Gate {
	g := &Gate{
		threshold:    DefaultConfidenceThreshold,
		maxValidity:  MaxValidityWindow,
		publisherKey: publisherKey,
		ownerKey:     ownerKey,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithClock injects a clock.
func WithClock(now Clock) Option {
	return func(g *Gate) { g.now = now }
}

// WithSlotStore enables snapshot persistence across restarts.
func WithSlotStore(s drepo.SlotStore) Option {
	return func(g *Gate) { g.store = s }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(g *Gate) { g.l = l }
}

// Restore loads the persisted slot snapshot, if any.
func (g *Gate) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	slot, ok, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("oracle restore: %w", err)
	}
	if !ok {
		return nil
	}
	g.mu.Lock()
	g.slot = slot
	g.hasSlot = true
	g.mu.Unlock()
	if g.l != nil {
		g.l.Info("oracle slot restored", applogger.Int64("expires_at", slot.ExpiresAt))
	}
	return nil
}

// Publish overwrites the slot wholesale. Publisher-only.
func (g *Gate) Publish(key string, price float64, confidence int64, expiresAt int64) error {
	if key != g.publisherKey {
		return ErrUnauthorized
	}
	if price <= 0 {
		return ErrBadPrice
	}
	if confidence < 0 || confidence > 100 {
		return ErrBadConfidence
	}
	now := g.now().Unix()
	if expiresAt <= now {
		return fmt.Errorf("%w: not in the future", ErrBadExpiry)
	}
	if expiresAt > now+int64(g.maxValidity.Seconds()) {
		return fmt.Errorf("%w: beyond maximum window", ErrBadExpiry)
	}

	slot := models.OnChainPrediction{
		Price:      price,
		Confidence: confidence,
		Timestamp:  now,
		ExpiresAt:  expiresAt,
		IsValid:    true,
	}

	g.mu.Lock()
	g.slot = slot
	g.hasSlot = true
	g.mu.Unlock()

	if g.store != nil {
		// snapshot persistence is best effort; the slot itself is the truth
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.store.Save(ctx, slot); err != nil && g.l != nil {
			g.l.Warn("oracle snapshot save failed", applogger.Error(err))
		}
	}
	return nil
}

// Invalidate force-clears validity without waiting for expiry. Publisher-only.
func (g *Gate) Invalidate(key string) error {
	if key != g.publisherKey {
		return ErrUnauthorized
	}
	g.mu.Lock()
	g.slot.IsValid = false
	slot := g.slot
	has := g.hasSlot
	g.mu.Unlock()

	if has && g.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.store.Save(ctx, slot); err != nil && g.l != nil {
			g.l.Warn("oracle snapshot save failed", applogger.Error(err))
		}
	}
	return nil
}

// UpdateConfidenceThreshold adjusts the minimum confidence. Owner-only.
func (g *Gate) UpdateConfidenceThreshold(key string, threshold int64) error {
	if key != g.ownerKey {
		return ErrUnauthorized
	}
	if threshold < 0 || threshold > 100 {
		return ErrBadConfidence
	}
	g.mu.Lock()
	g.threshold = threshold
	g.mu.Unlock()
	return nil
}

// Prediction returns the current slot record and whether one exists.
func (g *Gate) Prediction() (models.OnChainPrediction, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.slot, g.hasSlot
}

// IsValid evaluates the single validity predicate: the record's flag is set,
// it has not expired, it is not older than the maximum validity window, and
// its confidence clears the threshold. All four must hold.
func (g *Gate) IsValid() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validLocked()
}

func (g *Gate) validLocked() bool {
	if !g.hasSlot || !g.slot.IsValid {
		return false
	}
	now := g.now().Unix()
	if now > g.slot.ExpiresAt {
		return false
	}
	if now-g.slot.Timestamp > int64(g.maxValidity.Seconds()) {
		return false
	}
	return g.slot.Confidence >= g.threshold
}

// State observes the gate state; it is a pure function of the record plus
// current time, never stored.
func (g *Gate) State() models.GateState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch {
	case !g.hasSlot:
		return models.GateEmpty
	case !g.slot.IsValid:
		return models.GateInvalidated
	case g.now().Unix() > g.slot.ExpiresAt,
		g.now().Unix()-g.slot.Timestamp > int64(g.maxValidity.Seconds()):
		return models.GateExpired
	case g.slot.Confidence < g.threshold:
		return models.GateLowConfidence
	default:
		return models.GateValid
	}
}

// Confidence returns the current slot confidence (0 when empty).
func (g *Gate) Confidence() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.slot.Confidence
}

// Threshold returns the current minimum confidence threshold.
func (g *Gate) Threshold() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}
