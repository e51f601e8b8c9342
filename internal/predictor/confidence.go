package predictor

import (
	"math"

	"ChainCast/internal/domain/models"
)

// Confidence blend weights. Volatility dominates: a calm market is the
// strongest signal that the regressor's extrapolation holds.
const (
	weightVolatility = 0.30
	weightTrend      = 0.25
	weightVolume     = 0.20
	weightAlignment  = 0.25

	subScoreFloor = 0.10
	subScoreCeil  = 0.95
)

// confidenceScore blends four signals computed over the trailing window into
// a composite confidence in [0,1]. Each sub-score is clamped to
// [0.1, 0.95] before blending so no single signal can saturate the result.
func confidenceScore(window []models.FeatureVector) float64 {
	v := clampSub(volatilityScore(window))
	t := clampSub(trendConsistency(window))
	u := clampSub(volumeConsistency(window))
	a := clampSub(indicatorAlignment(window))
	return weightVolatility*v + weightTrend*t + weightVolume*u + weightAlignment*a
}

func clampSub(s float64) float64 {
	if s < subScoreFloor {
		return subScoreFloor
	}
	if s > subScoreCeil {
		return subScoreCeil
	}
	return s
}

// volatilityScore maps recent relative volatility to confidence: lower
// volatility means higher confidence.
func volatilityScore(window []models.FeatureVector) float64 {
	sum := 0.0
	for _, f := range window {
		rel := f.Volatility
		if f.Price > 0 && f.Volatility > 1 {
			// absolute volatility slipped through; normalize by price
			rel = f.Volatility / f.Price
		}
		sum += rel
	}
	avg := sum / float64(len(window))
	// ~0 vol -> 1.0, 5% vol -> ~0.5
	return 1.0 / (1.0 + 20.0*avg)
}

// trendConsistency measures how often consecutive price moves share the
// majority direction.
func trendConsistency(window []models.FeatureVector) float64 {
	if len(window) < 2 {
		return subScoreFloor
	}
	up := 0
	total := 0
	for i := 1; i < len(window); i++ {
		d := window[i].Price - window[i-1].Price
		if d == 0 {
			continue
		}
		total++
		if d > 0 {
			up++
		}
	}
	if total == 0 {
		return subScoreCeil // perfectly flat is perfectly consistent
	}
	frac := float64(up) / float64(total)
	if frac < 0.5 {
		frac = 1 - frac
	}
	return frac
}

// volumeConsistency converts the volume coefficient of variation into a
// score: steady volume means the signal is trustworthy.
func volumeConsistency(window []models.FeatureVector) float64 {
	mean := 0.0
	for _, f := range window {
		mean += f.Volume
	}
	mean /= float64(len(window))
	if mean <= 0 {
		return subScoreFloor
	}
	variance := 0.0
	for _, f := range window {
		variance += (f.Volume - mean) * (f.Volume - mean)
	}
	variance /= float64(len(window))
	cv := math.Sqrt(variance) / mean
	return 1.0 / (1.0 + cv)
}

// indicatorAlignment scores agreement between the moving-average stack, the
// EMA crossover, and momentum at the tail of the window.
func indicatorAlignment(window []models.FeatureVector) float64 {
	last := window[len(window)-1]
	signals := []bool{
		last.SMA7 > last.SMA30,
		last.EMA10 > last.EMA30,
		last.Momentum > 0,
		last.PriceChange > 0,
	}
	up := 0
	for _, s := range signals {
		if s {
			up++
		}
	}
	agree := up
	if len(signals)-up > agree {
		agree = len(signals) - up
	}
	return float64(agree) / float64(len(signals))
}
