package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ChainCast/internal/agent"
	"ChainCast/internal/collector"
	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	"ChainCast/internal/oracle"
	"ChainCast/internal/predictor"
	"ChainCast/internal/preprocess"
)

type stubSource struct {
	obs []models.MarketObservation
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Fetch(context.Context, drepo.FetchParams) ([]models.MarketObservation, error) {
	return s.obs, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	forecasts int
	decisions int
}

func (p *recordingPublisher) PublishForecast(context.Context, string, models.Forecast) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forecasts++
	return nil
}

func (p *recordingPublisher) PublishDecision(context.Context, string, models.TradingDecision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions++
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func makeObs(n int) []models.MarketObservation {
	drift := []float64{1.001, 1.003, 0.998, 1.002}
	out := make([]models.MarketObservation, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= drift[i%len(drift)]
		out = append(out, models.MarketObservation{
			Timestamp: 1700000000 + int64(i)*60,
			Price:     price,
			Volume:    1000 + float64(i%7)*20,
			High:      price * 1.001,
			Low:       price * 0.999,
			Open:      price,
			Close:     price,
		})
	}
	return out
}

func newTestPipeline(t *testing.T, obs []models.MarketObservation, events drepo.EventPublisher, opts ...PipelineOption) (*Pipeline, *predictor.Predictor, *agent.Agent) {
	t.Helper()
	src := &stubSource{obs: obs}
	col := collector.New(
		[]collector.SourceSlot{{Source: src, MaxRequests: 1000, Window: time.Minute}},
		collector.NewSyntheticSource(100, 60),
	)
	pre := preprocess.New(time.Minute)
	pred := predictor.New(predictor.WithSeed(1))
	ag := agent.New(agent.WithSeed(1))
	p := NewPipeline(col, pre, pred, ag, nil, events, nil, "BTCUSDT", time.Hour, nil, opts...)
	return p, pred, ag
}

type snapshotRecorder struct {
	calls int
	err   error
}

func (s *snapshotRecorder) RegisterTrained() ([]models.ModelVersion, error) {
	s.calls++
	return nil, s.err
}

func TestForecastRejectsSmallSuppliedWindow(t *testing.T) {
	p, _, _ := newTestPipeline(t, makeObs(300), nil)
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}
	_, err := p.Forecast(context.Background(), makeObs(predictor.WindowSize-1))
	if !errors.Is(err, ErrBadWindow) {
		t.Fatalf("expected ErrBadWindow, got %v", err)
	}
}

func TestForecastRejectsWindowWithoutWarmUp(t *testing.T) {
	// 60 observations cover the predictor window but not the indicator
	// warm-up, so they can never yield 60 feature vectors
	p, _, _ := newTestPipeline(t, makeObs(300), nil)
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}
	_, err := p.Forecast(context.Background(), makeObs(predictor.WindowSize))
	if !errors.Is(err, ErrBadWindow) {
		t.Fatalf("expected ErrBadWindow, got %v", err)
	}
}

func TestForecastAcceptsWarmedUpSuppliedWindow(t *testing.T) {
	p, _, _ := newTestPipeline(t, makeObs(300), nil)
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}
	min := predictor.WindowSize + preprocess.New(time.Minute).WarmUp()
	f, err := p.Forecast(context.Background(), makeObs(min))
	if err != nil {
		t.Fatalf("forecast with minimal supplied window: %v", err)
	}
	if f.Price <= 0 {
		t.Fatalf("non-positive forecast price %v", f.Price)
	}
}

func TestForecastRejectsWindowCollapsedByCleaning(t *testing.T) {
	p, _, _ := newTestPipeline(t, makeObs(300), nil)
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}
	min := predictor.WindowSize + preprocess.New(time.Minute).WarmUp()
	obs := makeObs(min)
	// invalidate the tail so cleaning shrinks the usable feature count
	for i := len(obs) - 10; i < len(obs); i++ {
		obs[i].Price = -1
	}
	_, err := p.Forecast(context.Background(), obs)
	if !errors.Is(err, ErrBadWindow) {
		t.Fatalf("expected ErrBadWindow after cleaning, got %v", err)
	}
}

func TestForecastBeforeTraining(t *testing.T) {
	p, _, _ := newTestPipeline(t, makeObs(300), nil)
	_, err := p.Forecast(context.Background(), nil)
	if !errors.Is(err, predictor.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestForecastGathersAndPublishes(t *testing.T) {
	events := &recordingPublisher{}
	p, pred, _ := newTestPipeline(t, makeObs(300), events)
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}
	if !pred.IsReady() {
		t.Fatalf("predictor not ready after train")
	}

	f, err := p.Forecast(context.Background(), nil)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if f.Price <= 0 {
		t.Fatalf("non-positive forecast price %v", f.Price)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", f.Confidence)
	}
	if events.forecasts != 1 {
		t.Fatalf("forecast events = %d, want 1", events.forecasts)
	}
}

func TestTrainRegistersModelVersions(t *testing.T) {
	rec := &snapshotRecorder{}
	p, _, _ := newTestPipeline(t, makeObs(300), nil, WithModelRegistry(rec))
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("versions registered %d times, want 1", rec.calls)
	}
}

func TestTrainSurvivesRegistrationFailure(t *testing.T) {
	rec := &snapshotRecorder{err: errors.New("artifact store down")}
	p, pred, _ := newTestPipeline(t, makeObs(300), nil, WithModelRegistry(rec))
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train failed on registration error: %v", err)
	}
	if !pred.IsReady() {
		t.Fatalf("predictor not trained")
	}
}

func TestDecideBeforeTraining(t *testing.T) {
	p, _, _ := newTestPipeline(t, makeObs(300), nil)
	_, err := p.Decide(context.Background(), models.FeatureVector{Price: 100}, 0.5)
	if !errors.Is(err, agent.ErrNotReady) {
		t.Fatalf("expected agent ErrNotReady, got %v", err)
	}
}

func TestDecidePublishesEvent(t *testing.T) {
	events := &recordingPublisher{}
	p, _, _ := newTestPipeline(t, makeObs(300), events)
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}

	d, err := p.Decide(context.Background(), models.FeatureVector{Price: 100, Volume: 1000}, 0.5)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	switch d.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		t.Fatalf("unexpected action %q", d.Action)
	}
	if events.decisions != 1 {
		t.Fatalf("decision events = %d, want 1", events.decisions)
	}
}

type fakeObsStore struct {
	obs []models.MarketObservation
}

func (f *fakeObsStore) Store(context.Context, []models.MarketObservation) error { return nil }
func (f *fakeObsStore) Query(context.Context, string, time.Time, time.Time, int) ([]models.MarketObservation, error) {
	return f.obs, nil
}
func (f *fakeObsStore) Health(context.Context) error { return nil }
func (f *fakeObsStore) Close() error                 { return nil }

func TestHistoryValidatesRange(t *testing.T) {
	h := NewHistory(&fakeObsStore{}, "BTCUSDT")
	from := time.Unix(1700001000, 0)
	to := time.Unix(1700000000, 0)
	if _, err := h.Get(context.Background(), HistoryParams{From: from, To: to}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestHistoryReturnsStoredObservations(t *testing.T) {
	h := NewHistory(&fakeObsStore{obs: makeObs(10)}, "BTCUSDT")
	res, err := h.Get(context.Background(), HistoryParams{
		From: time.Unix(1700000000, 0),
		To:   time.Unix(1700001000, 0),
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Count != 10 || len(res.Observations) != 10 {
		t.Fatalf("count = %d, want 10", res.Count)
	}
	if res.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %s", res.Symbol)
	}
}

func TestOracleBridgePublishesForecast(t *testing.T) {
	p, _, _ := newTestPipeline(t, makeObs(300), nil)
	if err := p.Train(context.Background(), false); err != nil {
		t.Fatalf("train: %v", err)
	}

	now := time.Unix(1700000000, 0)
	gate := oracle.NewGate("pub-key", "owner-key",
		oracle.WithClock(func() time.Time { return now }))

	b := NewOracleBridge(p, gate, "pub-key", 30*time.Minute, nil)
	b.now = func() time.Time { return now }

	if err := b.PublishForecast(context.Background()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	pred, ok := gate.Prediction()
	if !ok {
		t.Fatalf("gate slot empty after publish")
	}
	if pred.Price <= 0 {
		t.Fatalf("bad slot price %v", pred.Price)
	}
	if pred.ExpiresAt != now.Add(30*time.Minute).Unix() {
		t.Fatalf("expiresAt = %d, want %d", pred.ExpiresAt, now.Add(30*time.Minute).Unix())
	}
	if pred.Confidence < 0 || pred.Confidence > 100 {
		t.Fatalf("slot confidence out of range: %d", pred.Confidence)
	}
}
