package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"ChainCast/internal/domain/models"
)

var (
	// ErrNotReady is returned when the agent has not completed training
	// or imported a policy.
	ErrNotReady = errors.New("agent: policy not initialized")
	// ErrBadRatio flags a portfolio ratio outside [0,1]. Callers are
	// expected to reject this at the boundary; the agent double-checks.
	ErrBadRatio = errors.New("agent: portfolio ratio outside [0,1]")
)

var actionSet = []models.TradeAction{models.ActionBuy, models.ActionSell, models.ActionHold}

// Option configures an Agent.
type Option func(*Agent)

// Agent is a value-table reinforcement-learning policy over a discretized
// market state plus the current portfolio exposure ratio. Exploration only
// happens during training; serving is pure argmax.
type Agent struct {
	mu sync.RWMutex

	table       map[string][3]float64 // discretized state -> Q per action
	initialized bool

	alpha       float64 // learning rate
	gamma       float64 // discount
	epsilon     float64 // exploration rate during training
	epochs      int
	quickEpochs int
	rng         *rand.Rand
}

// New creates an untrained Agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		table:       make(map[string][3]float64),
		alpha:       0.1,
		gamma:       0.9,
		epsilon:     0.2,
		epochs:      20,
		quickEpochs: 3,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithSeed makes training deterministic for tests.
func WithSeed(seed int64) Option {
	return func(a *Agent) { a.rng = rand.New(rand.NewSource(seed)) }
}

// WithEpochs sets full and quick-mode epoch counts.
func WithEpochs(full, quick int) Option {
	return func(a *Agent) {
		if full > 0 {
			a.epochs = full
		}
		if quick > 0 {
			a.quickEpochs = quick
		}
	}
}

// IsReady reports whether the agent can serve decisions.
func (a *Agent) IsReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

// Train runs Q-learning over the feature series. When rewards is nil the
// reward signal is derived from realized next-step price changes. Quick mode
// runs fewer passes for incremental streaming updates.
func (a *Agent) Train(features []models.FeatureVector, rewards []float64, quickMode bool) error {
	if len(features) < 2 {
		return fmt.Errorf("agent: need at least 2 feature points, got %d", len(features))
	}

	epochs := a.epochs
	if quickMode {
		epochs = a.quickEpochs
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for e := 0; e < epochs; e++ {
		ratio := 0.5 // simulated exposure while replaying the series
		for i := 0; i < len(features)-1; i++ {
			state := discretize(features[i], ratio)

			var action int
			if a.rng.Float64() < a.epsilon {
				action = a.rng.Intn(len(actionSet))
			} else {
				action = argmax(a.table[state])
			}

			var reward float64
			if rewards != nil && i < len(rewards) {
				reward = rewards[i]
			} else {
				reward = realizedReward(actionSet[action], features[i].Price, features[i+1].Price)
			}

			ratio = applyAction(ratio, actionSet[action])
			next := discretize(features[i+1], ratio)

			q := a.table[state]
			best := maxQ(a.table[next])
			q[action] += a.alpha * (reward + a.gamma*best - q[action])
			a.table[state] = q
		}
	}

	a.initialized = true
	return nil
}

// Decision returns the argmax action for the current state. No exploration
// at serving time.
func (a *Agent) Decision(f models.FeatureVector, portfolioRatio float64) (models.TradingDecision, error) {
	if portfolioRatio < 0 || portfolioRatio > 1 {
		return models.TradingDecision{}, fmt.Errorf("%w: %v", ErrBadRatio, portfolioRatio)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return models.TradingDecision{}, ErrNotReady
	}

	state := discretize(f, portfolioRatio)
	q, seen := a.table[state]
	if !seen {
		// unvisited state: hold with low confidence rather than guess
		return models.TradingDecision{Action: models.ActionHold, Confidence: 10}, nil
	}

	best := argmax(q)
	return models.TradingDecision{
		Action:     actionSet[best],
		Confidence: decisionConfidence(q, best),
	}, nil
}

// ExportPolicy serializes the value table for persistence.
func (a *Agent) ExportPolicy() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return nil, ErrNotReady
	}
	return json.Marshal(a.table)
}

// ImportPolicy restores a serialized value table without retraining.
func (a *Agent) ImportPolicy(b []byte) error {
	table := make(map[string][3]float64)
	if err := json.Unmarshal(b, &table); err != nil {
		return fmt.Errorf("agent policy: %w", err)
	}
	if len(table) == 0 {
		return fmt.Errorf("agent policy: empty table")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.table = table
	a.initialized = true
	return nil
}

// discretize buckets the continuous state so the value table stays small.
func discretize(f models.FeatureVector, ratio float64) string {
	return fmt.Sprintf("pc%d|mo%d|x%d|v%d|r%d",
		signBucket(f.PriceChange, 0.002),
		sign(f.Momentum),
		sign(f.EMA10-f.EMA30),
		volBucket(f.Volatility),
		ratioBucket(ratio),
	)
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// signBucket: -2,-1,0,1,2 by magnitude against a threshold.
func signBucket(x, thresh float64) int {
	s := sign(x)
	if math.Abs(x) > thresh {
		return 2 * s
	}
	return s
}

func volBucket(v float64) int {
	switch {
	case v < 0.005:
		return 0
	case v < 0.02:
		return 1
	case v < 0.05:
		return 2
	default:
		return 3
	}
}

func ratioBucket(r float64) int {
	b := int(r * 10)
	if b > 9 {
		b = 9
	}
	return b
}

// realizedReward pays the action by the next-step return it would capture.
func realizedReward(action models.TradeAction, price, next float64) float64 {
	if price <= 0 {
		return 0
	}
	change := (next - price) / price
	switch action {
	case models.ActionBuy:
		return change
	case models.ActionSell:
		return -change
	default:
		return -math.Abs(change) * 0.1 // holding through a move costs a little
	}
}

func applyAction(ratio float64, action models.TradeAction) float64 {
	switch action {
	case models.ActionBuy:
		ratio += 0.1
	case models.ActionSell:
		ratio -= 0.1
	}
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func argmax(q [3]float64) int {
	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return best
}

func maxQ(q [3]float64) float64 {
	return q[argmax(q)]
}

// decisionConfidence maps the margin between the best and runner-up action
// values to [0,100].
func decisionConfidence(q [3]float64, best int) float64 {
	second := math.Inf(-1)
	for i := range q {
		if i != best && q[i] > second {
			second = q[i]
		}
	}
	margin := q[best] - second
	// saturating map: margin 0 -> 50, large margin -> 100
	conf := 50 + 50*(1-math.Exp(-20*margin))
	if conf < 0 {
		return 0
	}
	if conf > 100 {
		return 100
	}
	return conf
}
