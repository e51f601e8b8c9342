package preprocess

import (
	"math"
	"sort"

	"ChainCast/internal/domain/models"
)

// computeIndicators fills indicator fields in place. A point only gets an
// indicator once enough trailing history exists; otherwise the field stays
// nil rather than being defaulted to zero.
func (p *Preprocessor) computeIndicators(obs []models.MarketObservation) {
	prices := make([]float64, len(obs))
	volumes := make([]float64, len(obs))
	for i, o := range obs {
		prices[i] = o.Price
		volumes[i] = o.Volume
	}

	ema10 := emaSeries(prices, 10)
	ema30 := emaSeries(prices, 30)

	for i := range obs {
		if v, ok := sma(prices, i, 7); ok {
			obs[i].SMA7 = ptr(v)
		}
		if v, ok := sma(prices, i, 14); ok {
			obs[i].SMA14 = ptr(v)
		}
		if v, ok := sma(prices, i, 30); ok {
			obs[i].SMA30 = ptr(v)
		}
		if ema10[i] != nil {
			obs[i].EMA10 = ema10[i]
		}
		if ema30[i] != nil {
			obs[i].EMA30 = ema30[i]
		}
		if v, ok := rollingVolatility(prices, i, p.volWindow); ok {
			obs[i].Volatility = ptr(v)
		}
		if i >= p.momWindow {
			obs[i].Momentum = ptr(prices[i] - prices[i-p.momWindow])
		}
		if v, ok := sma(volumes, i, p.volumeSMAW); ok {
			obs[i].VolumeSMA = ptr(v)
		}
	}
}

// sma returns the simple moving average ending at index i over window n.
func sma(xs []float64, i, n int) (float64, bool) {
	if i+1 < n {
		return 0, false
	}
	sum := 0.0
	for j := i - n + 1; j <= i; j++ {
		sum += xs[j]
	}
	return sum / float64(n), true
}

// emaSeries computes an exponential moving average via the standard
// recursion, seeded with the SMA of the first n points.
func emaSeries(xs []float64, n int) []*float64 {
	out := make([]*float64, len(xs))
	if len(xs) < n {
		return out
	}
	k := 2.0 / float64(n+1)
	seed, _ := sma(xs, n-1, n)
	prev := seed
	out[n-1] = ptr(seed)
	for i := n; i < len(xs); i++ {
		prev = xs[i]*k + prev*(1-k)
		out[i] = ptr(prev)
	}
	return out
}

// rollingVolatility is the stddev of simple returns over the trailing window.
func rollingVolatility(prices []float64, i, window int) (float64, bool) {
	if i < window {
		return 0, false
	}
	rets := make([]float64, 0, window)
	for j := i - window + 1; j <= i; j++ {
		if prices[j-1] <= 0 {
			return 0, false
		}
		rets = append(rets, (prices[j]-prices[j-1])/prices[j-1])
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets))
	return math.Sqrt(variance), true
}

// Median returns the median of xs without mutating the input.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	cp := make([]float64, len(xs))
	copy(cp, xs)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 0 {
		return (cp[mid-1] + cp[mid]) / 2
	}
	return cp[mid]
}

// MedianAbsDev returns the median absolute deviation around med.
func MedianAbsDev(xs []float64, med float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	return Median(dev)
}

func ptr(v float64) *float64 { return &v }
