package preprocess

import (
	"math"
	"sort"
	"time"

	"ChainCast/internal/domain/models"
)

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// Preprocessor turns raw, unordered, possibly gappy observations into a
// dense chronologically ordered series with technical indicators attached.
type Preprocessor struct {
	interval   time.Duration // nominal sampling interval between points
	volWindow  int           // rolling window for stddev-of-returns volatility
	momWindow  int           // trailing window for momentum
	volumeSMAW int           // window for volume SMA
}

// New creates a Preprocessor with the given nominal sampling interval.
func New(interval time.Duration, opts ...Option) *Preprocessor {
	p := &Preprocessor{
		interval:   interval,
		volWindow:  10,
		momWindow:  10,
		volumeSMAW: 10,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithVolatilityWindow sets the rolling window used for volatility.
func WithVolatilityWindow(n int) Option {
	return func(p *Preprocessor) {
		if n > 1 {
			p.volWindow = n
		}
	}
}

// WithMomentumWindow sets the trailing window used for momentum.
func WithMomentumWindow(n int) Option {
	return func(p *Preprocessor) {
		if n > 0 {
			p.momWindow = n
		}
	}
}

// Process runs the full cleaning chain: drop invalid points, remove
// statistical outliers, sort, dedupe, interpolate gaps, compute indicators.
func (p *Preprocessor) Process(raw []models.MarketObservation) []models.MarketObservation {
	out := dropInvalid(raw)
	out = removeOutliers(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	out = dedupe(out)
	out = p.interpolate(out)
	p.computeIndicators(out)
	return out
}

func dropInvalid(raw []models.MarketObservation) []models.MarketObservation {
	out := make([]models.MarketObservation, 0, len(raw))
	for _, o := range raw {
		if o.Valid() {
			out = append(out, o)
		}
	}
	return out
}

// madFloor bounds the rejection limit from below when the series is so
// uniform that MAD collapses to zero. Without it a flat series would
// accept any spike, since median + 3*0 is just the median.
const madFloor = 1e-9

// removeOutliers drops points whose pairwise relative price change exceeds
// median + 3*MAD of all changes. The first point is always kept.
func removeOutliers(obs []models.MarketObservation) []models.MarketObservation {
	if len(obs) < 3 {
		return obs
	}
	changes := make([]float64, len(obs))
	for i := 1; i < len(obs); i++ {
		changes[i] = math.Abs(obs[i].Price-obs[i-1].Price) / obs[i-1].Price
	}
	med := Median(changes[1:])
	mad := MedianAbsDev(changes[1:], med)
	if mad < madFloor {
		mad = madFloor
	}
	limit := med + 3*mad
	out := make([]models.MarketObservation, 0, len(obs))
	out = append(out, obs[0])
	for i := 1; i < len(obs); i++ {
		if changes[i] > limit {
			continue
		}
		out = append(out, obs[i])
	}
	return out
}

// dedupe removes exact-timestamp duplicates keeping the first occurrence.
// Input must be sorted by timestamp.
func dedupe(obs []models.MarketObservation) []models.MarketObservation {
	if len(obs) < 2 {
		return obs
	}
	out := obs[:1]
	for i := 1; i < len(obs); i++ {
		if obs[i].Timestamp == out[len(out)-1].Timestamp {
			continue
		}
		out = append(out, obs[i])
	}
	return out
}

// interpolate restores uniform spacing: where the gap between consecutive
// points exceeds 1.5x the nominal interval, missing points are linearly
// interpolated across all OHLCV fields.
func (p *Preprocessor) interpolate(obs []models.MarketObservation) []models.MarketObservation {
	if len(obs) < 2 || p.interval <= 0 {
		return obs
	}
	step := int64(p.interval / time.Second)
	if step <= 0 {
		return obs
	}
	out := make([]models.MarketObservation, 0, len(obs))
	out = append(out, obs[0])
	for i := 1; i < len(obs); i++ {
		prev := obs[i-1]
		cur := obs[i]
		gap := cur.Timestamp - prev.Timestamp
		if float64(gap) > 1.5*float64(step) {
			missing := int(math.Round(float64(gap)/float64(step))) - 1
			for k := 1; k <= missing; k++ {
				frac := float64(k) / float64(missing+1)
				out = append(out, lerp(prev, cur, prev.Timestamp+int64(k)*step, frac))
			}
		}
		out = append(out, cur)
	}
	return out
}

func lerp(a, b models.MarketObservation, ts int64, frac float64) models.MarketObservation {
	mix := func(x, y float64) float64 { return x + (y-x)*frac }
	return models.MarketObservation{
		Timestamp: ts,
		Price:     mix(a.Price, b.Price),
		Volume:    mix(a.Volume, b.Volume),
		High:      mix(a.High, b.High),
		Low:       mix(a.Low, b.Low),
		Open:      mix(a.Open, b.Open),
		Close:     mix(a.Close, b.Close),
	}
}

// WarmUp returns how many leading observations yield no feature vector
// because their indicators are still incomplete. Callers sizing an input
// window must supply this many points on top of what they want back.
func (p *Preprocessor) WarmUp() int {
	w := 30 - 1 // SMA30 and EMA30 first resolve on the 30th point
	if p.volWindow > w {
		w = p.volWindow
	}
	if p.momWindow > w {
		w = p.momWindow
	}
	if p.volumeSMAW-1 > w {
		w = p.volumeSMAW - 1
	}
	return w
}

// ToFeatures converts a processed series to feature vectors. Points whose
// indicators are still missing (insufficient trailing history) are skipped.
func (p *Preprocessor) ToFeatures(obs []models.MarketObservation) []models.FeatureVector {
	out := make([]models.FeatureVector, 0, len(obs))
	for i := 1; i < len(obs); i++ {
		o := obs[i]
		if o.SMA7 == nil || o.SMA14 == nil || o.SMA30 == nil ||
			o.EMA10 == nil || o.EMA30 == nil ||
			o.Volatility == nil || o.Momentum == nil {
			continue
		}
		prev := obs[i-1]
		fv := models.FeatureVector{
			Price:      o.Price,
			SMA7:       *o.SMA7,
			SMA14:      *o.SMA14,
			SMA30:      *o.SMA30,
			EMA10:      *o.EMA10,
			EMA30:      *o.EMA30,
			Volatility: *o.Volatility,
			Momentum:   *o.Momentum,
			Volume:     o.Volume,
		}
		if prev.Price > 0 {
			fv.PriceChange = (o.Price - prev.Price) / prev.Price
		}
		if prev.Volume > 0 {
			fv.VolumeChange = (o.Volume - prev.Volume) / prev.Volume
		}
		out = append(out, fv)
	}
	return out
}
