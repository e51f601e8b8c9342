package repository

import (
	"context"

	pkgkafka "ChainCast/pkg/kafka"
)

// KafkaLogPublisher ships aggregated log batches to Kafka. It satisfies
// the logger collector's Publisher interface.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogPublisher(producer *pkgkafka.Producer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}
