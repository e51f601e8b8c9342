package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ChainCast/internal/domain/models"
	"ChainCast/internal/training"
)

type fakeStream struct {
	mu       sync.Mutex
	obs      chan *models.MarketObservation
	errs     chan error
	conn     bool
	connects int
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		obs:  make(chan *models.MarketObservation, 64),
		errs: make(chan error, 8),
	}
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = true
	f.connects++
	return nil
}

func (f *fakeStream) Subscribe(context.Context) error { return nil }

func (f *fakeStream) Read(context.Context) (<-chan *models.MarketObservation, <-chan error) {
	return f.obs, f.errs
}

func (f *fakeStream) Reconnect(ctx context.Context) error { return f.Connect(ctx) }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = false
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

type published struct {
	msgType string
	payload interface{}
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []published
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, published{msgType: msgType, payload: payload})
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func obsAt(ts int64) *models.MarketObservation {
	return &models.MarketObservation{Timestamp: ts, Price: 100, Volume: 10}
}

func TestStartIdempotent(t *testing.T) {
	fs := newFakeStream()
	c := New(fs, &fakeQueue{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if fs.connects != 1 {
		t.Fatalf("connects = %d, want 1", fs.connects)
	}
}

// gatedStream holds Connect open until released so tests can overlap
// Start calls deterministically.
type gatedStream struct {
	*fakeStream
	gate    chan struct{}
	connErr error
}

func (g *gatedStream) Connect(ctx context.Context) error {
	<-g.gate
	if g.connErr != nil {
		return g.connErr
	}
	return g.fakeStream.Connect(ctx)
}

func TestConcurrentStartConnectsOnce(t *testing.T) {
	gs := &gatedStream{fakeStream: newFakeStream(), gate: make(chan struct{})}
	c := New(gs, &fakeQueue{})
	defer c.Stop()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Start(context.Background())
		}(i)
	}
	close(gs.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	gs.mu.Lock()
	connects := gs.connects
	gs.mu.Unlock()
	if connects != 1 {
		t.Fatalf("connects = %d, want 1", connects)
	}
}

func TestStartRollsBackOnConnectFailure(t *testing.T) {
	gs := &gatedStream{fakeStream: newFakeStream(), gate: make(chan struct{}), connErr: errors.New("dial refused")}
	close(gs.gate)
	c := New(gs, &fakeQueue{})

	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected connect error")
	}
	if c.Status().Active {
		t.Fatalf("coordinator active after failed start")
	}

	// the claim must be released so a later start can succeed
	gs.connErr = nil
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	defer c.Stop()
	gs.mu.Lock()
	connects := gs.connects
	gs.mu.Unlock()
	if connects != 1 {
		t.Fatalf("connects = %d, want 1", connects)
	}
}

func TestBufferTrimsToCapacity(t *testing.T) {
	fs := newFakeStream()
	c := New(fs, &fakeQueue{}, WithBufferCap(5))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	for i := int64(1); i <= 8; i++ {
		fs.obs <- obsAt(1700000000 + i)
	}
	waitFor(t, func() bool {
		snap := c.Snapshot()
		return len(snap) == 5 && snap[0].Timestamp == 1700000004
	})
}

func TestInvalidObservationsDropped(t *testing.T) {
	fs := newFakeStream()
	c := New(fs, &fakeQueue{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	fs.obs <- &models.MarketObservation{Timestamp: 1700000001, Price: 0, Volume: 1}
	fs.obs <- obsAt(1700000002)
	waitFor(t, func() bool {
		snap := c.Snapshot()
		return len(snap) == 1 && snap[0].Timestamp == 1700000002
	})
}

func TestRetrainEnqueuedWhenRollHits(t *testing.T) {
	fs := newFakeStream()
	q := &fakeQueue{}
	tick := make(chan time.Time)
	c := New(fs, q,
		WithMinTrain(1),
		WithRoll(func() float64 { return 0.05 }),
		WithTicker(func(time.Duration) (<-chan time.Time, func()) {
			return tick, func() {}
		}))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	fs.obs <- obsAt(1700000001)
	waitFor(t, func() bool { return c.Status().BufferSize == 1 })

	tick <- time.Now()
	waitFor(t, func() bool { return q.count() == 1 })

	q.mu.Lock()
	msg := q.msgs[0]
	q.mu.Unlock()
	if msg.msgType != training.JobTypeRetrain {
		t.Fatalf("type = %s, want %s", msg.msgType, training.JobTypeRetrain)
	}
	payload, ok := msg.payload.(training.RetrainPayload)
	if !ok {
		t.Fatalf("payload type %T", msg.payload)
	}
	if !payload.Quick || len(payload.Observations) != 1 {
		t.Fatalf("payload = quick:%v n:%d", payload.Quick, len(payload.Observations))
	}
}

func TestRetrainSkippedWhenRollMisses(t *testing.T) {
	fs := newFakeStream()
	q := &fakeQueue{}
	tick := make(chan time.Time)
	c := New(fs, q,
		WithMinTrain(1),
		WithRoll(func() float64 { return 0.50 }),
		WithTicker(func(time.Duration) (<-chan time.Time, func()) {
			return tick, func() {}
		}))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	fs.obs <- obsAt(1700000001)
	waitFor(t, func() bool { return c.Status().BufferSize == 1 })

	tick <- time.Now()
	tick <- time.Now() // second tick proves the first was fully evaluated
	if q.count() != 0 {
		t.Fatalf("retrain enqueued despite roll above threshold")
	}
}

func TestRetrainSkippedBelowMinSamples(t *testing.T) {
	fs := newFakeStream()
	q := &fakeQueue{}
	tick := make(chan time.Time)
	c := New(fs, q,
		WithMinTrain(3),
		WithRoll(func() float64 { return 0.0 }),
		WithTicker(func(time.Duration) (<-chan time.Time, func()) {
			return tick, func() {}
		}))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	fs.obs <- obsAt(1700000001)
	waitFor(t, func() bool { return c.Status().BufferSize == 1 })

	tick <- time.Now()
	tick <- time.Now()
	if q.count() != 0 {
		t.Fatalf("retrain enqueued below minimum sample count")
	}
}

func TestStopDetachesAndReleasesBuffer(t *testing.T) {
	fs := newFakeStream()
	c := New(fs, &fakeQueue{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	fs.obs <- obsAt(1700000001)
	waitFor(t, func() bool { return c.Status().BufferSize == 1 })

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st := c.Status()
	if st.Active {
		t.Fatalf("still active after stop")
	}
	if st.BufferSize != 0 {
		t.Fatalf("buffer not released: %d", st.BufferSize)
	}
	if fs.IsConnected() {
		t.Fatalf("stream still connected after stop")
	}
	// second stop is a no-op
	if err := c.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestReadErrorsCounted(t *testing.T) {
	fs := newFakeStream()
	c := New(fs, &fakeQueue{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	fs.errs <- errors.New("transient read failure")
	waitFor(t, func() bool { return c.Status().ErrorCount == 1 })
}
