package models

import "time"

// PredictRequest optionally carries a trailing observation window. When
// supplied it must contain at least the predictor's input window (60 points).
type PredictRequest struct {
	Observations []MarketObservation `json:"observations,omitempty"`
}

// PredictResponse is the serving-side forecast payload. Confidence is
// rescaled to 0-100 at the HTTP boundary.
type PredictResponse struct {
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	Direction  Direction `json:"direction"`
	Timestamp  time.Time `json:"timestamp"`
}

// FeaturePayload mirrors FeatureVector with pointer fields so that missing
// keys are distinguishable from zero values at the boundary.
type FeaturePayload struct {
	Price        *float64 `json:"price" validate:"required"`
	SMA7         *float64 `json:"sma7" validate:"required"`
	SMA14        *float64 `json:"sma14" validate:"required"`
	SMA30        *float64 `json:"sma30" validate:"required"`
	EMA10        *float64 `json:"ema10" validate:"required"`
	EMA30        *float64 `json:"ema30" validate:"required"`
	Volatility   *float64 `json:"volatility" validate:"required"`
	Momentum     *float64 `json:"momentum" validate:"required"`
	Volume       *float64 `json:"volume" validate:"required"`
	PriceChange  *float64 `json:"priceChange" validate:"required"`
	VolumeChange *float64 `json:"volumeChange" validate:"required"`
}

// Vector converts a validated payload to the domain FeatureVector.
func (p *FeaturePayload) Vector() FeatureVector {
	return FeatureVector{
		Price:        *p.Price,
		SMA7:         *p.SMA7,
		SMA14:        *p.SMA14,
		SMA30:        *p.SMA30,
		EMA10:        *p.EMA10,
		EMA30:        *p.EMA30,
		Volatility:   *p.Volatility,
		Momentum:     *p.Momentum,
		Volume:       *p.Volume,
		PriceChange:  *p.PriceChange,
		VolumeChange: *p.VolumeChange,
	}
}

// DecideRequest carries the featurized market state and current exposure.
type DecideRequest struct {
	Feature        *FeaturePayload `json:"feature" validate:"required"`
	PortfolioRatio *float64        `json:"portfolioRatio" validate:"required,gte=0,lte=1"`
}

// DecideResponse is the served trading decision.
type DecideResponse struct {
	Action     TradeAction `json:"action"`
	Confidence float64     `json:"confidence"`
	Timestamp  time.Time   `json:"timestamp"`
}

// StreamStatusResponse reports streaming coordinator health.
type StreamStatusResponse struct {
	Connected         bool      `json:"connected"`
	Active            bool      `json:"active"`
	BufferSize        int       `json:"bufferSize"`
	LastUpdate        time.Time `json:"lastUpdate,omitempty"`
	ErrorCount        int       `json:"errorCount"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
}

// OraclePublishRequest mirrors the on-chain publish ABI.
type OraclePublishRequest struct {
	Price      float64 `json:"price" validate:"required,gt=0"`
	Confidence int64   `json:"confidence" validate:"gte=0,lte=100"`
	ExpiresAt  int64   `json:"expiresAt" validate:"required,gt=0"`
}

// OracleThresholdRequest adjusts the minimum confidence threshold.
type OracleThresholdRequest struct {
	Threshold int64 `json:"threshold" validate:"gte=0,lte=100"`
}

// SwapRequest is a trade execution attempt gated by the oracle.
type SwapRequest struct {
	TokenIn  string `json:"tokenIn" validate:"required"`
	TokenOut string `json:"tokenOut" validate:"required"`
	Amount   string `json:"amount" validate:"required"` // decimal string
	Deadline int64  `json:"deadline" validate:"required,gt=0"`
}

// ABTestCreateRequest registers a traffic-split test between two versions.
type ABTestCreateRequest struct {
	ModelA       string `json:"modelA" validate:"required"`
	ModelB       string `json:"modelB" validate:"required"`
	TrafficSplit int    `json:"trafficSplit" validate:"gte=0,lte=100" default:"50"`
}

// MetricsUpdateRequest overwrites performance figures for a version.
type MetricsUpdateRequest struct {
	Accuracy  float64 `json:"accuracy" validate:"gte=0,lte=1"`
	Precision float64 `json:"precision" validate:"gte=0,lte=1"`
	Recall    float64 `json:"recall" validate:"gte=0,lte=1"`
	F1        float64 `json:"f1" validate:"gte=0,lte=1"`
}
