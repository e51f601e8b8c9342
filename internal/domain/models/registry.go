package models

import "time"

// ModelType identifies which loader a serialized artifact belongs to.
type ModelType string

const (
	ModelSequenceRegressor ModelType = "sequence-regressor"
	ModelPolicyAgent       ModelType = "policy-agent"
)

// ModelStatus is the lifecycle state of a registered model version.
type ModelStatus string

const (
	StatusTraining ModelStatus = "training"
	StatusTesting  ModelStatus = "testing"
	StatusActive   ModelStatus = "active"
	StatusRetired  ModelStatus = "retired"
)

// Performance holds offline/online evaluation metrics for a model version.
type Performance struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// ModelVersion is a registry record for one trained model artifact.
type ModelVersion struct {
	ID          string      `json:"id"`
	Type        ModelType   `json:"type"`
	TrainedAt   time.Time   `json:"trainedAt"`
	Performance Performance `json:"performance"`
	Status      ModelStatus `json:"status"`
	DeployedAt  time.Time   `json:"deployedAt,omitempty"`
}

// ABTestStatus is active or inactive.
type ABTestStatus string

const (
	ABTestActive   ABTestStatus = "active"
	ABTestInactive ABTestStatus = "inactive"
)

// ABTest routes a deterministic share of users to a candidate model.
type ABTest struct {
	ID           string       `json:"id"`
	ModelA       string       `json:"modelA"`
	ModelB       string       `json:"modelB"`
	TrafficSplit int          `json:"trafficSplit"` // 0-100, percent routed to B
	Status       ABTestStatus `json:"status"`
}
