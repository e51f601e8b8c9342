package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal       *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	forecastPrice      *prometheus.GaugeVec
	forecastConfidence *prometheus.GaugeVec
	latency            *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaincast_fetches_total",
				Help: "Total number of upstream fetch attempts by source and result",
			},
			[]string{"source", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		forecastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chaincast_forecast_price",
				Help: "Last forecast price for a symbol",
			},
			[]string{"symbol"},
		),
		forecastConfidence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chaincast_forecast_confidence",
				Help: "Last forecast confidence for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chaincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch records an upstream fetch attempt with its result.
func (r *Recorder) RecordFetch(source, result string) {
	r.fetchesTotal.WithLabelValues(source, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordForecast records the last forecast for a symbol.
func (r *Recorder) RecordForecast(symbol string, price, confidence float64) {
	r.forecastPrice.WithLabelValues(symbol).Set(price)
	r.forecastConfidence.WithLabelValues(symbol).Set(confidence)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
