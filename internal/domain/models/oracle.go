package models

// OnChainPrediction is the single-slot ledger record consulted by the trade
// gate. Overwritten wholesale on each publish; no history kept.
type OnChainPrediction struct {
	Price      float64 `json:"price"`
	Confidence int64   `json:"confidence"` // 0-100
	Timestamp  int64   `json:"timestamp"`  // unix seconds the record was set
	ExpiresAt  int64   `json:"expiresAt"`  // unix seconds
	IsValid    bool    `json:"isValid"`
}

// GateState is the observed (not stored) state of the oracle slot: a pure
// function of the record plus current time.
type GateState string

const (
	GateEmpty         GateState = "empty"
	GateValid         GateState = "valid"
	GateExpired       GateState = "expired"
	GateLowConfidence GateState = "low_confidence"
	GateInvalidated   GateState = "invalidated"
)
