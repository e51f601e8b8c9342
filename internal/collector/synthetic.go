package collector

import (
	"context"
	"math/rand"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
)

// SyntheticSource generates a deterministic random-walk series so the
// pipeline never starves when every real source fails. Determinism comes
// from seeding the walk with the requested range.
type SyntheticSource struct {
	basePrice float64
	stepSecs  int64
}

// NewSyntheticSource creates a generator around a base price.
func NewSyntheticSource(basePrice float64, stepSecs int64) *SyntheticSource {
	if basePrice <= 0 {
		basePrice = 100
	}
	if stepSecs <= 0 {
		stepSecs = 60
	}
	return &SyntheticSource{basePrice: basePrice, stepSecs: stepSecs}
}

// Name identifies the source.
func (s *SyntheticSource) Name() string { return "synthetic" }

// Fetch produces a plausible random-walk OHLCV series covering the range.
func (s *SyntheticSource) Fetch(_ context.Context, params drepo.FetchParams) ([]models.MarketObservation, error) {
	n := params.Limit
	if n <= 0 {
		n = 120
	}
	end := params.To.Unix()
	if params.To.IsZero() {
		end = params.From.Unix() + int64(n)*s.stepSecs
	}
	start := end - int64(n)*s.stepSecs

	// same range, same series
	rng := rand.New(rand.NewSource(start ^ end))

	out := make([]models.MarketObservation, 0, n)
	price := s.basePrice
	for i := 0; i < n; i++ {
		drift := 1 + (rng.Float64()-0.5)*0.004 // +-0.2% per step
		open := price
		price *= drift
		high := open
		low := open
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
		wiggle := price * 0.0005 * rng.Float64()
		out = append(out, models.MarketObservation{
			Timestamp: start + int64(i+1)*s.stepSecs,
			Price:     price,
			Volume:    800 + rng.Float64()*400,
			High:      high + wiggle,
			Low:       low - wiggle,
			Open:      open,
			Close:     price,
		})
	}
	return out, nil
}
