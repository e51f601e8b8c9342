package predictor

import (
	"errors"
	"math"
	"testing"

	"ChainCast/internal/domain/models"
)

func makeFeatures(n int) []models.FeatureVector {
	out := make([]models.FeatureVector, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1 + 0.001*math.Sin(float64(i)/7)
		out = append(out, models.FeatureVector{
			Price:        price,
			SMA7:         price * 0.999,
			SMA14:        price * 0.998,
			SMA30:        price * 0.997,
			EMA10:        price * 0.999,
			EMA30:        price * 0.996,
			Volatility:   0.01,
			Momentum:     price * 0.001,
			Volume:       1000 + 10*math.Sin(float64(i)/5),
			PriceChange:  0.001 * math.Sin(float64(i)/7),
			VolumeChange: 0.001,
		})
	}
	return out
}

func TestPredictBeforeTraining(t *testing.T) {
	p := New(WithSeed(1))
	_, err := p.Predict(makeFeatures(WindowSize))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if p.IsReady() {
		t.Fatalf("untrained predictor reports ready")
	}
}

func TestTrainRequiresWindowPlusOne(t *testing.T) {
	p := New(WithSeed(1))
	if err := p.Train(makeFeatures(WindowSize), false); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestPredictWindowBoundary(t *testing.T) {
	p := New(WithSeed(1))
	if err := p.Train(makeFeatures(200), false); err != nil {
		t.Fatalf("train: %v", err)
	}

	if _, err := p.Predict(makeFeatures(WindowSize - 1)); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("59 points: expected ErrInsufficientData, got %v", err)
	}

	f, err := p.Predict(makeFeatures(WindowSize))
	if err != nil {
		t.Fatalf("60 points: %v", err)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", f.Confidence)
	}
	if f.Price <= 0 {
		t.Fatalf("non-positive forecast price: %v", f.Price)
	}
	if f.Direction != models.DirectionUp && f.Direction != models.DirectionDown {
		t.Fatalf("unexpected direction %q", f.Direction)
	}
}

func TestQuickModeTrains(t *testing.T) {
	p := New(WithSeed(2), WithEpochs(30, 3))
	if err := p.Train(makeFeatures(150), true); err != nil {
		t.Fatalf("quick train: %v", err)
	}
	if !p.IsReady() {
		t.Fatalf("predictor not ready after quick train")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	p := New(WithSeed(3))
	feats := makeFeatures(200)
	if err := p.Train(feats, false); err != nil {
		t.Fatalf("train: %v", err)
	}
	want, err := p.Predict(feats[len(feats)-WindowSize:])
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	b, err := p.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	q := New(WithSeed(4))
	if err := q.Import(b); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, err := q.Predict(feats[len(feats)-WindowSize:])
	if err != nil {
		t.Fatalf("predict after import: %v", err)
	}
	if math.Abs(got.Price-want.Price) > 1e-9 {
		t.Fatalf("imported model diverged: %v vs %v", got.Price, want.Price)
	}
}

func TestImportRejectsBadShape(t *testing.T) {
	p := New()
	if err := p.Import([]byte(`{"weights":[1,2],"bias":0,"center":[],"scale":[]}`)); err == nil {
		t.Fatalf("expected shape error")
	}
	if err := p.Import([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestConfidenceSubScoresClamped(t *testing.T) {
	// pathological window: zero volume, flat prices
	window := make([]models.FeatureVector, WindowSize)
	for i := range window {
		window[i] = models.FeatureVector{Price: 100, Volatility: 10}
	}
	c := confidenceScore(window)
	if c < 0.1*weightVolatility || c > 1 {
		t.Fatalf("confidence %v outside expected bounds", c)
	}
}

func TestVolatilityScoreMonotone(t *testing.T) {
	calm := make([]models.FeatureVector, 10)
	wild := make([]models.FeatureVector, 10)
	for i := range calm {
		calm[i] = models.FeatureVector{Price: 100, Volatility: 0.001, Volume: 100}
		wild[i] = models.FeatureVector{Price: 100, Volatility: 0.08, Volume: 100}
	}
	if volatilityScore(calm) <= volatilityScore(wild) {
		t.Fatalf("calmer window should score higher confidence")
	}
}
