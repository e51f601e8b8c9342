package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ChainCast/internal/domain/models"
	domrepo "ChainCast/internal/domain/repository"
)

// Sink is the minimal persistence interface the pipeline needs.
type Sink interface {
	Store(ctx context.Context, obs []models.MarketObservation) error
}

// IngestPipeline sits between the live stream and the observation store.
// It validates, throttles bursts, and buffers writes when the store is
// unavailable so the serving path never blocks on persistence.
type IngestPipeline struct {
	sink    Sink
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.MarketObservation
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	last    time.Time // last accepted write time
}

type PipelineOption func(*IngestPipeline)

// WithMaxRPS sets the max persisted observations per second.
func WithMaxRPS(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size used when the store is down.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewIngestPipeline creates a new persistence pipeline.
func NewIngestPipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		sink:    sink,
		metrics: metrics,
		maxRPS:  20,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.MarketObservation, p.bufSize)
	return p
}

// Start launches background flushing of buffered observations.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case o := <-p.bufCh:
				if o == nil {
					continue
				}
				if err := p.sink.Store(ctx, []models.MarketObservation{*o}); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.recordError("ingest_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- o:
					default:
						p.recordError("ingest_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and persists one observation, buffering it
// for the background flusher when the store write fails.
func (p *IngestPipeline) Process(ctx context.Context, o *models.MarketObservation) error {
	start := time.Now()
	if o == nil || !o.Valid() {
		p.recordError("ingest_validate")
		return fmt.Errorf("invalid observation")
	}
	if !p.allow(start) {
		// throttled; drop silently so the stream keeps flowing
		p.recordError("ingest_throttle")
		return nil
	}

	if err := p.sink.Store(ctx, []models.MarketObservation{*o}); err != nil {
		p.recordError("ingest_store")
		select {
		case p.bufCh <- o:
		default:
			p.recordError("ingest_buffer_full")
		}
		return fmt.Errorf("ingest downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("ingest_store", time.Since(start).Seconds())
	}
	return nil
}

func (p *IngestPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func (p *IngestPipeline) allow(now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last.IsZero() || now.Sub(p.last) >= time.Second/time.Duration(p.maxRPS) {
		p.last = now
		return true
	}
	return false
}
