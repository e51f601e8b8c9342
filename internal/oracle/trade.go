package oracle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DeadlineBuffer caps how far in the future a trade deadline may sit.
const DeadlineBuffer = 20 * time.Minute

var (
	// ErrPaused is returned while trading is halted by the owner.
	ErrPaused = errors.New("trade: execution paused")
	// ErrBadAmount rejects zero or negative input amounts.
	ErrBadAmount = errors.New("trade: amount must be positive")
	// ErrBadTokens rejects zero or identical token addresses.
	ErrBadTokens = errors.New("trade: invalid token pair")
	// ErrBadDeadline rejects deadlines in the past or too far ahead.
	ErrBadDeadline = errors.New("trade: invalid deadline")
)

// GateClosedError is the typed rejection raised when the oracle gate reports
// an invalid prediction. It carries the observed confidence so callers can
// log why the trade was refused. Non-retryable; no partial execution.
type GateClosedError struct {
	Confidence int64
}

func (e *GateClosedError) Error() string {
	return fmt.Sprintf("trade: oracle gate closed (confidence %d)", e.Confidence)
}

// SwapParams describes one swap attempt.
type SwapParams struct {
	TokenIn  string
	TokenOut string
	Amount   decimal.Decimal
	Deadline int64 // unix seconds
}

// SwapReceipt records an executed swap. AmountOut is quoted at the oracle
// slot price.
type SwapReceipt struct {
	TokenIn    string          `json:"tokenIn"`
	TokenOut   string          `json:"tokenOut"`
	AmountIn   decimal.Decimal `json:"amountIn"`
	AmountOut  decimal.Decimal `json:"amountOut"`
	PriceUsed  decimal.Decimal `json:"priceUsed"`
	Confidence int64           `json:"confidence"`
	ExecutedAt int64           `json:"executedAt"`
}

// Executor is the trade-execution contract side of the gate: every swap
// consults the oracle's validity predicate before any transfer happens.
type Executor struct {
	mu       sync.Mutex
	gate     *Gate
	ownerKey string
	paused   bool
	now      Clock
}

// NewExecutor creates an Executor bound to a gate.
func NewExecutor(gate *Gate, ownerKey string) *Executor {
	return &Executor{gate: gate, ownerKey: ownerKey, now: gate.now}
}

// Pause halts all trade entry points. Owner-only.
func (e *Executor) Pause(key string) error {
	if key != e.ownerKey {
		return ErrUnauthorized
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	return nil
}

// Unpause resumes trading. Owner-only.
func (e *Executor) Unpause(key string) error {
	if key != e.ownerKey {
		return ErrUnauthorized
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	return nil
}

// Paused reports the halt flag.
func (e *Executor) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// ExecuteSwap validates the request, consults the gate, and executes
// atomically: any failure returns before funds move.
func (e *Executor) ExecuteSwap(p SwapParams) (SwapReceipt, error) {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	if paused {
		// paused overrides everything, including a valid oracle
		return SwapReceipt{}, ErrPaused
	}

	if !p.Amount.IsPositive() {
		return SwapReceipt{}, ErrBadAmount
	}
	if p.TokenIn == "" || p.TokenOut == "" || p.TokenIn == p.TokenOut {
		return SwapReceipt{}, ErrBadTokens
	}
	now := e.now().Unix()
	if p.Deadline <= now {
		return SwapReceipt{}, fmt.Errorf("%w: not in the future", ErrBadDeadline)
	}
	if p.Deadline > now+int64(DeadlineBuffer.Seconds()) {
		return SwapReceipt{}, fmt.Errorf("%w: beyond %s buffer", ErrBadDeadline, DeadlineBuffer)
	}

	if !e.gate.IsValid() {
		return SwapReceipt{}, &GateClosedError{Confidence: e.gate.Confidence()}
	}

	slot, _ := e.gate.Prediction()
	price := decimal.NewFromFloat(slot.Price)
	return SwapReceipt{
		TokenIn:    p.TokenIn,
		TokenOut:   p.TokenOut,
		AmountIn:   p.Amount,
		AmountOut:  p.Amount.Mul(price),
		PriceUsed:  price,
		Confidence: slot.Confidence,
		ExecutedAt: now,
	}, nil
}
