package usecase

import (
	"context"
	"encoding/json"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	pkgkafka "ChainCast/pkg/kafka"
)

// ObservationEventsHandler consumes observation events from Kafka and writes
// them to the observation store. Deployments with an external market data
// feed use this instead of, or alongside, the REST collector.
type ObservationEventsHandler struct {
	topic   string
	store   drepo.ObservationStore
	metrics drepo.Metrics
}

// NewObservationEventsHandler creates the consumer-side handler.
func NewObservationEventsHandler(topic string, store drepo.ObservationStore, metrics drepo.Metrics) *ObservationEventsHandler {
	return &ObservationEventsHandler{topic: topic, store: store, metrics: metrics}
}

// Topic returns the subscribed topic.
func (h *ObservationEventsHandler) Topic() string { return h.topic }

// Handle ingests one event. Schema: {symbol, t, p, v} with t in unix seconds
// or milliseconds.
func (h *ObservationEventsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		P      float64 `json:"p"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	o := models.MarketObservation{
		Timestamp: m.T,
		Price:     m.P,
		Volume:    m.V,
		High:      m.P,
		Low:       m.P,
		Open:      m.P,
		Close:     m.P,
	}
	if !o.Valid() {
		// data-quality failures are dropped, not retried
		h.metrics.RecordError("consumer_invalid")
		return nil
	}

	start := time.Now()
	err := h.store.Store(ctx, []models.MarketObservation{o})
	h.metrics.RecordLatency("store_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*ObservationEventsHandler)(nil)
