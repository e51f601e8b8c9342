package stream

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	"ChainCast/internal/training"
	applogger "ChainCast/pkg/logger"
	"ChainCast/pkg/queue"
)

const (
	defaultBufferCap   = 1000
	defaultCycle       = 30 * time.Second
	defaultRetrainProb = 0.10
	maxReconnects      = 5
)

// TickerFactory produces a tick channel plus its stop function. Tests swap
// in a manual channel to drive cycles deterministically.
type TickerFactory func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock injects a clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTicker injects the cycle ticker factory.
func WithTicker(f TickerFactory) Option {
	return func(c *Coordinator) { c.newTicker = f }
}

// WithRoll injects the retrain dice roll, uniform in [0,1).
func WithRoll(roll func() float64) Option {
	return func(c *Coordinator) { c.roll = roll }
}

// WithBufferCap overrides the rolling buffer capacity.
func WithBufferCap(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.bufferCap = n
		}
	}
}

// WithCycle overrides the retrain evaluation interval.
func WithCycle(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.cycle = d
		}
	}
}

// WithMinTrain sets the minimum buffered samples before retrains trigger.
func WithMinTrain(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.minTrain = n
		}
	}
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Coordinator) { c.l = l }
}

// WithSink forwards every accepted observation downstream, typically into
// the persistence pipeline. Sink failures never stall the buffer.
func WithSink(sink func(ctx context.Context, o *models.MarketObservation) error) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// Coordinator consumes a live observation stream into a rolling buffer and
// periodically rolls a dice to enqueue a quick retrain of both models. The
// retrain runs on the training queue, so inference serving never blocks.
type Coordinator struct {
	stream     drepo.LiveStream
	trainQueue queue.QueueService
	l          *applogger.Logger

	bufferCap   int
	cycle       time.Duration
	retrainProb float64
	minTrain    int

	now       func() time.Time
	newTicker TickerFactory
	roll      func() float64
	sink      func(ctx context.Context, o *models.MarketObservation) error

	mu         sync.Mutex
	buffer     []models.MarketObservation
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastUpdate time.Time
	errCount   int
	reconnects int
}

// New creates a Coordinator over a live stream and a training queue.
func New(stream drepo.LiveStream, trainQueue queue.QueueService, opts ...Option) *Coordinator {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := &Coordinator{
		stream:      stream,
		trainQueue:  trainQueue,
		bufferCap:   defaultBufferCap,
		cycle:       defaultCycle,
		retrainProb: defaultRetrainProb,
		minTrain:    training.MinRetrainSamples,
		now:         time.Now,
		newTicker:   realTicker,
		roll:        rng.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start connects, subscribes, and begins consuming. Calling Start on a
// running coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	// claim the running flag up front so a concurrent Start cannot pass the
	// check while this one is still connecting
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	rollback := func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}

	if err := c.stream.Connect(ctx); err != nil {
		rollback()
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		rollback()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancel = cancel
	c.errCount = 0
	c.reconnects = 0
	c.mu.Unlock()

	c.wg.Add(2)
	go c.consume(runCtx)
	go c.cycleLoop(runCtx)

	if c.l != nil {
		c.l.Info("stream coordinator started",
			applogger.Int("buffer_cap", c.bufferCap),
			applogger.Duration("cycle", c.cycle))
	}
	return nil
}

// Stop synchronously cancels the cycle ticker, detaches the subscription,
// waits for the loops to exit, and releases the buffer.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := c.stream.Close()
	c.wg.Wait()

	c.mu.Lock()
	c.buffer = nil
	c.mu.Unlock()

	if c.l != nil {
		c.l.Info("stream coordinator stopped")
	}
	return err
}

// Status reports coordinator health for the stream control API.
func (c *Coordinator) Status() models.StreamStatusResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.StreamStatusResponse{
		Connected:         c.stream.IsConnected(),
		Active:            c.running,
		BufferSize:        len(c.buffer),
		LastUpdate:        c.lastUpdate,
		ErrorCount:        c.errCount,
		ReconnectAttempts: c.reconnects,
	}
}

// Snapshot copies the current buffer contents, oldest first.
func (c *Coordinator) Snapshot() []models.MarketObservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.MarketObservation, len(c.buffer))
	copy(out, c.buffer)
	return out
}

func (c *Coordinator) consume(ctx context.Context) {
	defer c.wg.Done()
	for {
		if !c.drain(ctx) {
			return
		}
		if !c.reconnect(ctx) {
			return
		}
	}
}

// drain consumes one subscription until its channels close. It returns
// false when the context ended and the consume loop should exit.
func (c *Coordinator) drain(ctx context.Context) bool {
	obsCh, errCh := c.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return false
		case o, ok := <-obsCh:
			if !ok {
				obsCh = nil
				if errCh == nil {
					return true
				}
				continue
			}
			if o != nil && o.Valid() {
				c.append(*o)
				if c.sink != nil {
					if err := c.sink(ctx, o); err != nil && c.l != nil {
						c.l.Warn("observation sink error", applogger.Error(err))
					}
				}
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				if obsCh == nil {
					return true
				}
				continue
			}
			if err != nil {
				c.mu.Lock()
				c.errCount++
				c.mu.Unlock()
				if c.l != nil {
					c.l.Warn("stream read error", applogger.Error(err))
				}
			}
		}
	}
}

func (c *Coordinator) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= maxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		if err := c.stream.Reconnect(ctx); err != nil {
			if c.l != nil {
				c.l.Warn("stream reconnect failed",
					applogger.Int("attempt", attempt),
					applogger.Error(err))
			}
			continue
		}
		return true
	}
	if c.l != nil {
		c.l.Error("stream reconnect attempts exhausted")
	}
	return false
}

// append adds one observation, trimming the oldest entries past capacity.
func (c *Coordinator) append(o models.MarketObservation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = append(c.buffer, o)
	if over := len(c.buffer) - c.bufferCap; over > 0 {
		c.buffer = c.buffer[over:]
	}
	c.lastUpdate = c.now()
}

func (c *Coordinator) cycleLoop(ctx context.Context) {
	defer c.wg.Done()
	tick, stop := c.newTicker(c.cycle)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			c.evaluate(ctx)
		}
	}
}

// evaluate rolls the retrain dice over the current buffer snapshot.
func (c *Coordinator) evaluate(ctx context.Context) {
	snapshot := c.Snapshot()
	if len(snapshot) < c.minTrain {
		return
	}
	if c.roll() >= c.retrainProb {
		return
	}
	payload := training.RetrainPayload{Quick: true, Observations: snapshot}
	if err := c.trainQueue.PublishMessage(ctx, training.JobTypeRetrain, payload); err != nil {
		c.mu.Lock()
		c.errCount++
		c.mu.Unlock()
		if c.l != nil {
			c.l.Warn("retrain enqueue failed", applogger.Error(err))
		}
		return
	}
	if c.l != nil {
		c.l.Info("quick retrain enqueued", applogger.Int("samples", len(snapshot)))
	}
}
