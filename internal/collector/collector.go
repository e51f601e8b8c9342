package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	icache "ChainCast/internal/service/cache"
	"ChainCast/internal/service/ratelimit"
	applogger "ChainCast/pkg/logger"
)

// SourceSlot pairs a source with its independent rate-limit budget.
type SourceSlot struct {
	Source      drepo.ObservationSource
	MaxRequests int
	Window      time.Duration
}

// Option configures a Collector.
type Option func(*Collector)

// Collector fetches market observations across prioritized sources with
// per-source rate limits, short-lived response caching, and a synthetic
// fallback so downstream components never receive an empty input.
type Collector struct {
	sources   []SourceSlot // priority order, cheapest first
	synthetic *SyntheticSource
	limiter   *ratelimit.Limiter
	cache     icache.BytesCache
	cacheTTL  time.Duration
	minViable int
	store     drepo.ObservationStore
	metrics   drepo.Metrics
	l         *applogger.Logger
}

// New creates a Collector over the given source priority list.
func New(sources []SourceSlot, synthetic *SyntheticSource, opts ...Option) *Collector {
	c := &Collector{
		sources:   sources,
		synthetic: synthetic,
		limiter:   ratelimit.New(),
		cacheTTL:  2 * time.Minute,
		minViable: 10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithCache enables short-lived response caching for identical ranges.
func WithCache(cache icache.BytesCache, ttl time.Duration) Option {
	return func(c *Collector) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithStore persists accepted live batches to the observation store.
func WithStore(store drepo.ObservationStore) Option {
	return func(c *Collector) { c.store = store }
}

// WithMetrics wires the metrics recorder.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Collector) { c.l = l }
}

// WithMinViable sets the minimum sample count a source must return.
func WithMinViable(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.minViable = n
		}
	}
}

// WithLimiter injects a limiter (tests use a fake clock).
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Collector) { c.limiter = l }
}

// Fetch pulls from one named source, honoring its rate limit. It fails fast
// with ErrRateLimited before any network attempt when the budget is spent.
func (c *Collector) Fetch(ctx context.Context, sourceID string, params drepo.FetchParams) ([]models.MarketObservation, error) {
	for _, slot := range c.sources {
		if slot.Source.Name() != sourceID {
			continue
		}
		return c.fetchSlot(ctx, slot, params)
	}
	return nil, fmt.Errorf("collector: unknown source %q", sourceID)
}

func (c *Collector) fetchSlot(ctx context.Context, slot SourceSlot, params drepo.FetchParams) ([]models.MarketObservation, error) {
	name := slot.Source.Name()
	if !c.limiter.Allow(name, slot.MaxRequests, slot.Window) {
		c.recordFetch(name, "rate_limited")
		return nil, fmt.Errorf("%w: source %s window exhausted", ErrRateLimited, name)
	}

	start := time.Now()
	raw, err := slot.Source.Fetch(ctx, params)
	c.observeLatency("fetch_"+name, time.Since(start))
	if err != nil {
		c.recordFetch(name, "error")
		return nil, err
	}

	valid := validateObservations(raw)
	c.recordFetch(name, "ok")
	return valid, nil
}

// Collect walks the priority list and returns the first viable batch,
// tagged with its origin. When every source fails the synthetic generator
// answers instead; callers can see that from the Origin tag.
func (c *Collector) Collect(ctx context.Context, params drepo.FetchParams) (models.ObservationBatch, error) {
	key := cacheKey(params)
	if c.cache != nil {
		if b, ok, err := c.cache.GetBytes(key); err == nil && ok {
			var batch models.ObservationBatch
			if err := json.Unmarshal(b, &batch); err == nil {
				batch.Origin = models.OriginCached
				return batch, nil
			}
		}
	}

	for _, slot := range c.sources {
		obs, err := c.fetchSlot(ctx, slot, params)
		if err != nil {
			if c.l != nil {
				c.l.Warn("source failed, falling back",
					applogger.String("source", slot.Source.Name()),
					applogger.Error(err))
			}
			continue
		}
		if len(obs) <= c.minViable {
			if c.l != nil {
				c.l.Warn("source below viable sample count",
					applogger.String("source", slot.Source.Name()),
					applogger.Int("count", len(obs)))
			}
			continue
		}

		batch := models.ObservationBatch{
			Origin: models.OriginLive,
			Source: slot.Source.Name(),
			Data:   obs,
		}
		c.persist(ctx, obs)
		if c.cache != nil {
			if b, err := json.Marshal(batch); err == nil {
				_ = c.cache.SetBytes(key, b, c.cacheTTL)
			}
		}
		return batch, nil
	}

	// every source failed: deterministic synthetic series keeps the
	// pipeline fed, clearly tagged as degraded
	obs, err := c.synthetic.Fetch(ctx, params)
	if err != nil {
		return models.ObservationBatch{}, fmt.Errorf("synthetic fallback: %w", err)
	}
	c.recordFetch("synthetic", "ok")
	if c.l != nil {
		c.l.Warn("all sources failed, serving synthetic data", applogger.Int("count", len(obs)))
	}
	return models.ObservationBatch{
		Origin: models.OriginSynthetic,
		Source: "synthetic",
		Data:   obs,
	}, nil
}

func (c *Collector) persist(ctx context.Context, obs []models.MarketObservation) {
	if c.store == nil {
		return
	}
	if err := c.store.Store(ctx, obs); err != nil {
		if c.l != nil {
			c.l.Warn("observation store write failed", applogger.Error(err))
		}
		if c.metrics != nil {
			c.metrics.RecordError("store_write")
		}
	}
}

func (c *Collector) recordFetch(source, result string) {
	if c.metrics != nil {
		c.metrics.RecordFetch(source, result)
	}
}

func (c *Collector) observeLatency(op string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordLatency(op, d.Seconds())
	}
}

// validateObservations drops structurally invalid points field by field.
func validateObservations(raw []models.MarketObservation) []models.MarketObservation {
	out := make([]models.MarketObservation, 0, len(raw))
	for _, o := range raw {
		if !o.Valid() {
			continue
		}
		out = append(out, o)
	}
	return out
}

func cacheKey(p drepo.FetchParams) string {
	return "collect:" + p.Symbol + ":" +
		strconv.FormatInt(p.From.Unix(), 10) + ":" +
		strconv.FormatInt(p.To.Unix(), 10) + ":" +
		strconv.Itoa(p.Limit)
}
