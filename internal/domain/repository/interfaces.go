package repository

import (
	"context"
	"time"

	"ChainCast/internal/domain/models"
)

// FetchParams bounds a historical fetch from an upstream source.
type FetchParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

// ObservationSource is one upstream market data provider.
type ObservationSource interface {
	Name() string
	Fetch(ctx context.Context, params FetchParams) ([]models.MarketObservation, error)
}

// LiveStream delivers market observations as they happen.
type LiveStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketObservation, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ObservationStore persists accepted observations and serves history.
type ObservationStore interface {
	Store(ctx context.Context, obs []models.MarketObservation) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.MarketObservation, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher emits pipeline audit events (forecasts, decisions).
type EventPublisher interface {
	PublishForecast(ctx context.Context, symbol string, f models.Forecast) error
	PublishDecision(ctx context.Context, symbol string, d models.TradingDecision) error
	Close() error
}

// ModelRegistry snapshots freshly trained model artifacts as versions.
type ModelRegistry interface {
	RegisterTrained() ([]models.ModelVersion, error)
}

// SlotStore persists the oracle slot snapshot across restarts.
type SlotStore interface {
	Save(ctx context.Context, p models.OnChainPrediction) error
	Load(ctx context.Context) (models.OnChainPrediction, bool, error)
}

// Metrics records operational metrics for the pipeline.
type Metrics interface {
	RecordFetch(source, result string)
	RecordError(kind string)
	RecordForecast(symbol string, price, confidence float64)
	RecordLatency(op string, seconds float64)
}
