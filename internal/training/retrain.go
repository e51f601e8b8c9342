package training

import (
	"context"
	"fmt"
	"time"

	"ChainCast/internal/agent"
	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	"ChainCast/internal/predictor"
	"ChainCast/internal/preprocess"
	applogger "ChainCast/pkg/logger"
	"ChainCast/pkg/queue"
)

// JobTypeRetrain is the queue message type for model retraining.
const JobTypeRetrain = "model.retrain"

// MinRetrainSamples is the smallest observation snapshot worth training on:
// the predictor window plus indicator warm-up plus a handful of validation
// samples.
const MinRetrainSamples = 120

// RetrainPayload carries the observation snapshot a retrain runs on.
type RetrainPayload struct {
	Quick        bool                       `json:"quick"`
	Observations []models.MarketObservation `json:"observations"`
}

// RetrainJob retrains the predictor and the decision agent from a buffered
// observation snapshot. It runs on the training queue so serving goroutines
// never block on training.
type RetrainJob struct {
	pre      *preprocess.Preprocessor
	pred     *predictor.Predictor
	ag       *agent.Agent
	registry drepo.ModelRegistry
	l        *applogger.Logger
}

// RetrainOption configures optional retrain collaborators.
type RetrainOption func(*RetrainJob)

// WithModelRegistry records every completed retrain as a model version.
func WithModelRegistry(reg drepo.ModelRegistry) RetrainOption {
	return func(j *RetrainJob) { j.registry = reg }
}

// NewRetrainJob wires the retrain job to the live model instances.
func NewRetrainJob(pre *preprocess.Preprocessor, pred *predictor.Predictor, ag *agent.Agent, l *applogger.Logger, opts ...RetrainOption) *RetrainJob {
	j := &RetrainJob{pre: pre, pred: pred, ag: ag, l: l}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name returns the job identifier.
func (j *RetrainJob) Name() string { return "retrain" }

// Type returns the message type this job handles.
func (j *RetrainJob) Type() string { return JobTypeRetrain }

// Handle runs one retrain pass over the payload snapshot.
func (j *RetrainJob) Handle(_ context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RetrainPayload](payload)
	if err != nil {
		return fmt.Errorf("retrain payload: %w", err)
	}

	processed := j.pre.Process(p.Observations)
	features := j.pre.ToFeatures(processed)
	if len(features) <= predictor.WindowSize {
		return fmt.Errorf("retrain: %d features, need more than %d", len(features), predictor.WindowSize)
	}

	start := time.Now()
	if err := j.pred.Train(features, p.Quick); err != nil {
		return fmt.Errorf("predictor train: %w", err)
	}
	if err := j.ag.Train(features, nil, p.Quick); err != nil {
		return fmt.Errorf("agent train: %w", err)
	}
	if j.registry != nil {
		if _, err := j.registry.RegisterTrained(); err != nil && j.l != nil {
			j.l.Warn("model version registration failed", applogger.Error(err))
		}
	}

	if j.l != nil {
		j.l.Info("models retrained",
			applogger.Bool("quick", p.Quick),
			applogger.Int("features", len(features)),
			applogger.Duration("elapsed", time.Since(start)))
	}
	return nil
}
