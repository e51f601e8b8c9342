package repository

import (
	"context"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	pkgkafka "ChainCast/pkg/kafka"
)

// KafkaEventPublisher emits forecast and decision audit events to Kafka.
type KafkaEventPublisher struct {
	producer      *pkgkafka.Producer
	forecastTopic string
	decisionTopic string
}

// NewKafkaEventPublisher creates the audit publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, forecastTopic, decisionTopic string) drepo.EventPublisher {
	if forecastTopic == "" {
		forecastTopic = "chaincast.forecasts"
	}
	if decisionTopic == "" {
		decisionTopic = "chaincast.decisions"
	}
	return &KafkaEventPublisher{
		producer:      producer,
		forecastTopic: forecastTopic,
		decisionTopic: decisionTopic,
	}
}

// PublishForecast emits one forecast event keyed by symbol.
func (p *KafkaEventPublisher) PublishForecast(ctx context.Context, symbol string, f models.Forecast) error {
	return p.producer.Publish(ctx, p.forecastTopic, []byte(symbol), map[string]interface{}{
		"symbol":     symbol,
		"price":      f.Price,
		"confidence": f.Confidence,
		"direction":  f.Direction,
		"t":          f.Timestamp.Unix(),
	})
}

// PublishDecision emits one decision event keyed by symbol.
func (p *KafkaEventPublisher) PublishDecision(ctx context.Context, symbol string, d models.TradingDecision) error {
	return p.producer.Publish(ctx, p.decisionTopic, []byte(symbol), map[string]interface{}{
		"symbol":     symbol,
		"action":     d.Action,
		"confidence": d.Confidence,
		"t":          time.Now().Unix(),
	})
}

// Close flushes and closes the underlying producer.
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
