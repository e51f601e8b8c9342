package models

import "time"

// MarketObservation is a single OHLCV point from an upstream source.
// Indicator fields are pointers: nil means insufficient trailing history,
// never a defaulted zero.
type MarketObservation struct {
	Timestamp int64   `json:"timestamp"` // unix seconds, > 0
	Price     float64 `json:"price"`     // > 0
	Volume    float64 `json:"volume"`    // >= 0
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Open      float64 `json:"open"`
	Close     float64 `json:"close"`

	SMA7       *float64 `json:"sma7,omitempty"`
	SMA14      *float64 `json:"sma14,omitempty"`
	SMA30      *float64 `json:"sma30,omitempty"`
	EMA10      *float64 `json:"ema10,omitempty"`
	EMA30      *float64 `json:"ema30,omitempty"`
	Volatility *float64 `json:"volatility,omitempty"`
	Momentum   *float64 `json:"momentum,omitempty"`
	VolumeSMA  *float64 `json:"volumeSMA,omitempty"`
}

// Valid reports whether the structural invariants hold.
func (o *MarketObservation) Valid() bool {
	return o.Timestamp > 0 && o.Price > 0 && o.Volume >= 0
}

// DataOrigin tags where a batch of observations came from, so callers and
// tests can tell degraded-mode responses from genuine ones.
type DataOrigin string

const (
	OriginLive      DataOrigin = "live"
	OriginCached    DataOrigin = "cached"
	OriginSynthetic DataOrigin = "synthetic"
)

// ObservationBatch is a collector result: the data plus where it came from.
type ObservationBatch struct {
	Origin DataOrigin          `json:"origin"`
	Source string              `json:"source"`
	Data   []MarketObservation `json:"data"`
}

// FeatureVector is the fixed 11-dimensional model input derived from an
// observation window. Ephemeral: built per call, never persisted.
type FeatureVector struct {
	Price        float64 `json:"price"`
	SMA7         float64 `json:"sma7"`
	SMA14        float64 `json:"sma14"`
	SMA30        float64 `json:"sma30"`
	EMA10        float64 `json:"ema10"`
	EMA30        float64 `json:"ema30"`
	Volatility   float64 `json:"volatility"`
	Momentum     float64 `json:"momentum"`
	Volume       float64 `json:"volume"`
	PriceChange  float64 `json:"priceChange"`
	VolumeChange float64 `json:"volumeChange"`
}

// Values returns the vector as an ordered slice for numeric code.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.Price, f.SMA7, f.SMA14, f.SMA30, f.EMA10, f.EMA30,
		f.Volatility, f.Momentum, f.Volume, f.PriceChange, f.VolumeChange,
	}
}

// FeatureDim is the fixed dimensionality of FeatureVector.
const FeatureDim = 11

// Direction of a forecast relative to the last known price.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Forecast is a price prediction with a composite confidence score.
type Forecast struct {
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"` // [0,1]
	Direction  Direction `json:"direction"`
	Timestamp  time.Time `json:"timestamp"`
}

// TradeAction is a discrete decision produced by the policy agent.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

// TradingDecision maps market state plus portfolio exposure to an action.
type TradingDecision struct {
	Action     TradeAction `json:"action"`
	Confidence float64     `json:"confidence"` // [0,100]
}
