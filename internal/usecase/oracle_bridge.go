package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"ChainCast/internal/oracle"
	applogger "ChainCast/pkg/logger"
)

// OracleBridge pushes fresh forecasts into the on-chain gate: it runs the
// pipeline, rescales confidence to the 0-100 ledger range, and publishes
// with the configured validity window.
type OracleBridge struct {
	pipeline *Pipeline
	gate     *oracle.Gate
	key      string        // publisher key
	validity time.Duration // expiry horizon per publish
	now      func() time.Time
	l        *applogger.Logger
}

// NewOracleBridge wires the pipeline to the gate.
func NewOracleBridge(pipeline *Pipeline, gate *oracle.Gate, publisherKey string, validity time.Duration, l *applogger.Logger) *OracleBridge {
	if validity <= 0 || validity > oracle.MaxValidityWindow {
		validity = 30 * time.Minute
	}
	return &OracleBridge{
		pipeline: pipeline,
		gate:     gate,
		key:      publisherKey,
		validity: validity,
		now:      time.Now,
		l:        l,
	}
}

// PublishForecast runs one forecast and publishes it to the gate slot.
func (b *OracleBridge) PublishForecast(ctx context.Context) error {
	forecast, err := b.pipeline.Forecast(ctx, nil)
	if err != nil {
		return fmt.Errorf("oracle bridge forecast: %w", err)
	}

	confidence := int64(math.Round(forecast.Confidence * 100))
	if confidence > 100 {
		confidence = 100
	}
	expiresAt := b.now().Add(b.validity).Unix()

	if err := b.gate.Publish(b.key, forecast.Price, confidence, expiresAt); err != nil {
		return fmt.Errorf("oracle bridge publish: %w", err)
	}
	if b.l != nil {
		b.l.Info("forecast published to oracle",
			applogger.Int64("confidence", confidence),
			applogger.Int64("expires_at", expiresAt))
	}
	return nil
}
