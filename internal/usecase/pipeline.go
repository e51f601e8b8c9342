package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChainCast/internal/agent"
	"ChainCast/internal/collector"
	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	"ChainCast/internal/predictor"
	"ChainCast/internal/preprocess"
	"ChainCast/internal/stream"
	pkgcache "ChainCast/pkg/cache"
	applogger "ChainCast/pkg/logger"
)

// ErrBadWindow means the caller supplied fewer observations than the
// predictor's input window plus the indicator warm-up, or the supplied
// window collapsed below the input window after cleaning.
var ErrBadWindow = errors.New("usecase: observation window too small")

// Pipeline orchestrates collect, preprocess, predict, and decide. It is the
// single entry point the HTTP layer talks to for model serving.
type Pipeline struct {
	collector *collector.Collector
	pre       *preprocess.Preprocessor
	pred      *predictor.Predictor
	ag        *agent.Agent
	coord     *stream.Coordinator
	events    drepo.EventPublisher
	metrics   drepo.Metrics
	registry  drepo.ModelRegistry
	symbol    string
	span      time.Duration // historical range gathered when none supplied
	l         *applogger.Logger
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithModelRegistry records every completed training run as a model version.
func WithModelRegistry(reg drepo.ModelRegistry) PipelineOption {
	return func(p *Pipeline) { p.registry = reg }
}

// NewPipeline wires the serving pipeline together.
func NewPipeline(
	col *collector.Collector,
	pre *preprocess.Preprocessor,
	pred *predictor.Predictor,
	ag *agent.Agent,
	coord *stream.Coordinator,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	symbol string,
	span time.Duration,
	l *applogger.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if span <= 0 {
		span = 6 * time.Hour
	}
	p := &Pipeline{
		collector: col,
		pre:       pre,
		pred:      pred,
		ag:        ag,
		coord:     coord,
		events:    events,
		metrics:   metrics,
		symbol:    symbol,
		span:      span,
		l:         l,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Forecast runs one prediction. When the caller supplies observations they
// must cover at least the predictor window; otherwise the pipeline gathers
// recent history itself (stream buffer first, collector as backstop).
func (p *Pipeline) Forecast(ctx context.Context, supplied []models.MarketObservation) (models.Forecast, error) {
	start := time.Now()

	// indicator warm-up eats the leading points, so a supplied window must
	// cover the predictor window plus warm-up to yield enough features
	minSupplied := predictor.WindowSize + p.pre.WarmUp()
	obs := supplied
	if len(obs) > 0 && len(obs) < minSupplied {
		return models.Forecast{}, fmt.Errorf("%w: %d observations, need %d", ErrBadWindow, len(obs), minSupplied)
	}
	if len(obs) == 0 {
		var err error
		obs, err = p.gather(ctx)
		if err != nil {
			return models.Forecast{}, err
		}
	}

	features := p.pre.ToFeatures(p.pre.Process(obs))
	if len(supplied) > 0 && len(features) < predictor.WindowSize {
		return models.Forecast{}, fmt.Errorf("%w: %d usable features after cleaning, need %d", ErrBadWindow, len(features), predictor.WindowSize)
	}
	forecast, err := p.pred.Predict(features)
	if err != nil {
		return models.Forecast{}, err
	}

	if p.metrics != nil {
		p.metrics.RecordForecast(p.symbol, forecast.Price, forecast.Confidence)
		p.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	}
	if p.events != nil {
		if err := p.events.PublishForecast(ctx, p.symbol, forecast); err != nil {
			if p.l != nil {
				p.l.Warn("forecast event publish failed", applogger.Error(err))
			}
			if p.metrics != nil {
				p.metrics.RecordError("publish_forecast")
			}
		}
	}
	return forecast, nil
}

// Decide maps a feature vector plus portfolio exposure to a trade action.
func (p *Pipeline) Decide(ctx context.Context, f models.FeatureVector, portfolioRatio float64) (models.TradingDecision, error) {
	start := time.Now()
	decision, err := p.ag.Decision(f, portfolioRatio)
	if err != nil {
		return models.TradingDecision{}, err
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("decide", time.Since(start).Seconds())
	}
	if p.events != nil {
		if err := p.events.PublishDecision(ctx, p.symbol, decision); err != nil {
			if p.l != nil {
				p.l.Warn("decision event publish failed", applogger.Error(err))
			}
			if p.metrics != nil {
				p.metrics.RecordError("publish_decision")
			}
		}
	}
	return decision, nil
}

// Train collects history and trains both models. Used at bootstrap and for
// operator-triggered full retrains; quick retrains run on the queue instead.
func (p *Pipeline) Train(ctx context.Context, quick bool) error {
	obs, err := p.gather(ctx)
	if err != nil {
		return err
	}
	features := p.pre.ToFeatures(p.pre.Process(obs))

	if err := p.pred.Train(features, quick); err != nil {
		return fmt.Errorf("train predictor: %w", err)
	}
	if err := p.ag.Train(features, nil, quick); err != nil {
		return fmt.Errorf("train agent: %w", err)
	}
	if p.registry != nil {
		// a failed snapshot must not undo a train that already swapped the
		// live models
		if _, err := p.registry.RegisterTrained(); err != nil {
			if p.l != nil {
				p.l.Warn("model version registration failed", applogger.Error(err))
			}
			if p.metrics != nil {
				p.metrics.RecordError("register_version")
			}
		}
	}
	if p.l != nil {
		p.l.Info("pipeline models trained",
			applogger.Bool("quick", quick),
			applogger.Int("features", len(features)))
	}
	return nil
}

// gather pulls recent observations: the live buffer when it is deep enough,
// the collector otherwise.
func (p *Pipeline) gather(ctx context.Context) ([]models.MarketObservation, error) {
	if p.coord != nil {
		if snap := p.coord.Snapshot(); len(snap) >= 2*predictor.WindowSize {
			return snap, nil
		}
	}
	now := time.Now()
	batch, err := p.collector.Collect(ctx, drepo.FetchParams{
		Symbol: p.symbol,
		From:   now.Add(-p.span),
		To:     now,
		Limit:  1000,
	})
	if err != nil {
		return nil, fmt.Errorf("gather observations: %w", err)
	}
	return batch.Data, nil
}

// HistoryParams bounds an observation history query.
type HistoryParams struct {
	From  time.Time
	To    time.Time
	Limit int
}

// HistoryResult is the observation history payload.
type HistoryResult struct {
	Symbol       string                     `json:"symbol"`
	From         time.Time                  `json:"from"`
	To           time.Time                  `json:"to"`
	Count        int                        `json:"count"`
	Observations []models.MarketObservation `json:"observations"`
}

// History serves persisted observations from the store.
type History struct {
	store    drepo.ObservationStore
	symbol   string
	cache    pkgcache.Service
	cacheTTL time.Duration
}

// HistoryOption configures the history usecase.
type HistoryOption func(*History)

// WithHistoryCache caches query results for identical ranges.
func WithHistoryCache(c pkgcache.Service, ttl time.Duration) HistoryOption {
	return func(h *History) {
		h.cache = c
		h.cacheTTL = ttl
	}
}

// NewHistory creates the history query usecase.
func NewHistory(store drepo.ObservationStore, symbol string, opts ...HistoryOption) *History {
	h := &History{store: store, symbol: symbol, cacheTTL: time.Minute}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Get validates the range and queries the store.
func (h *History) Get(ctx context.Context, p HistoryParams) (*HistoryResult, error) {
	if h.store == nil {
		return nil, fmt.Errorf("history store not configured")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}

	key := pkgcache.GenerateKeyWithParams("chaincast:history", h.symbol, p.From.Unix(), p.To.Unix(), p.Limit)
	if h.cache != nil {
		var cached HistoryResult
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	obs, err := h.store.Query(ctx, h.symbol, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	result := &HistoryResult{
		Symbol:       h.symbol,
		From:         p.From,
		To:           p.To,
		Count:        len(obs),
		Observations: obs,
	}
	if h.cache != nil {
		_ = h.cache.Set(ctx, key, result, h.cacheTTL)
	}
	return result, nil
}
