package agent

import (
	"errors"
	"math"
	"testing"

	"ChainCast/internal/domain/models"
)

func trendFeatures(n int, up bool) []models.FeatureVector {
	out := make([]models.FeatureVector, 0, n)
	price := 100.0
	step := 1.004
	if !up {
		step = 0.996
	}
	for i := 0; i < n; i++ {
		prev := price
		price *= step
		out = append(out, models.FeatureVector{
			Price:       price,
			EMA10:       price,
			EMA30:       prev,
			Momentum:    price - prev,
			Volatility:  0.01,
			Volume:      1000,
			PriceChange: (price - prev) / prev,
		})
	}
	return out
}

func TestDecisionBeforeTraining(t *testing.T) {
	a := New(WithSeed(1))
	_, err := a.Decision(models.FeatureVector{Price: 100}, 0.5)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestDecisionRejectsBadRatio(t *testing.T) {
	a := New(WithSeed(1))
	if err := a.Train(trendFeatures(100, true), nil, false); err != nil {
		t.Fatalf("train: %v", err)
	}
	for _, ratio := range []float64{-0.1, 1.5, math.Inf(1)} {
		if _, err := a.Decision(models.FeatureVector{}, ratio); !errors.Is(err, ErrBadRatio) {
			t.Fatalf("ratio %v: expected ErrBadRatio, got %v", ratio, err)
		}
	}
}

func TestTrainedAgentServesArgmax(t *testing.T) {
	a := New(WithSeed(7))
	feats := trendFeatures(200, true)
	if err := a.Train(feats, nil, false); err != nil {
		t.Fatalf("train: %v", err)
	}
	d, err := a.Decision(feats[len(feats)-1], 0.5)
	if err != nil {
		t.Fatalf("decision: %v", err)
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		t.Fatalf("confidence out of range: %v", d.Confidence)
	}
	// uptrend seen during training: buying should at least beat selling
	if d.Action == models.ActionSell {
		t.Fatalf("agent sells into a consistent uptrend")
	}
}

func TestDecisionDeterministicAtServing(t *testing.T) {
	a := New(WithSeed(3))
	feats := trendFeatures(150, false)
	if err := a.Train(feats, nil, false); err != nil {
		t.Fatalf("train: %v", err)
	}
	f := feats[len(feats)-1]
	first, err := a.Decision(f, 0.4)
	if err != nil {
		t.Fatalf("decision: %v", err)
	}
	for i := 0; i < 20; i++ {
		got, err := a.Decision(f, 0.4)
		if err != nil {
			t.Fatalf("decision %d: %v", i, err)
		}
		if got.Action != first.Action {
			t.Fatalf("serving not deterministic: %v then %v", first.Action, got.Action)
		}
	}
}

func TestUnseenStateHolds(t *testing.T) {
	a := New(WithSeed(5))
	if err := a.Train(trendFeatures(50, true), nil, true); err != nil {
		t.Fatalf("train: %v", err)
	}
	// a state far from anything seen in training
	d, err := a.Decision(models.FeatureVector{Price: 1, Volatility: 99, Momentum: -1e9, PriceChange: -0.5}, 0.0)
	if err != nil {
		t.Fatalf("decision: %v", err)
	}
	if d.Action != models.ActionHold {
		t.Fatalf("unseen state should hold, got %v", d.Action)
	}
}

func TestPolicyExportImportRoundTrip(t *testing.T) {
	a := New(WithSeed(9))
	feats := trendFeatures(120, true)
	if err := a.Train(feats, nil, false); err != nil {
		t.Fatalf("train: %v", err)
	}
	b, err := a.ExportPolicy()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	fresh := New(WithSeed(10))
	if err := fresh.ImportPolicy(b); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !fresh.IsReady() {
		t.Fatalf("imported agent not ready")
	}

	f := feats[len(feats)-1]
	want, _ := a.Decision(f, 0.5)
	got, err := fresh.Decision(f, 0.5)
	if err != nil {
		t.Fatalf("decision after import: %v", err)
	}
	if got.Action != want.Action {
		t.Fatalf("imported policy diverged: %v vs %v", got.Action, want.Action)
	}
}

func TestImportPolicyRejectsGarbage(t *testing.T) {
	a := New()
	if err := a.ImportPolicy([]byte(`{}`)); err == nil {
		t.Fatalf("expected empty-table error")
	}
	if err := a.ImportPolicy([]byte(`nope`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestExplicitRewardSignal(t *testing.T) {
	a := New(WithSeed(11))
	feats := trendFeatures(50, true)
	rewards := make([]float64, len(feats))
	for i := range rewards {
		rewards[i] = 1.0
	}
	if err := a.Train(feats, rewards, true); err != nil {
		t.Fatalf("train with rewards: %v", err)
	}
	if !a.IsReady() {
		t.Fatalf("agent not ready")
	}
}
