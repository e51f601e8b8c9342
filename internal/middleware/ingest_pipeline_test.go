package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ChainCast/internal/domain/models"
)

type fakeSink struct {
	mu     sync.Mutex
	stored int
	fail   bool
}

func (f *fakeSink) Store(_ context.Context, obs []models.MarketObservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	f.stored += len(obs)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored
}

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func obs(price float64) *models.MarketObservation {
	return &models.MarketObservation{
		Timestamp: 1700000000,
		Price:     price,
		Volume:    100,
		High:      price,
		Low:       price,
		Open:      price,
		Close:     price,
	}
}

func TestProcessRejectsInvalidObservation(t *testing.T) {
	sink := &fakeSink{}
	p := NewIngestPipeline(sink, nil)
	if err := p.Process(context.Background(), &models.MarketObservation{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if sink.count() != 0 {
		t.Fatalf("invalid observation reached the sink")
	}
}

func TestProcessStoresValidObservation(t *testing.T) {
	sink := &fakeSink{}
	p := NewIngestPipeline(sink, nil)
	if err := p.Process(context.Background(), obs(100)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("stored = %d, want 1", sink.count())
	}
}

func TestThrottleDropsBurst(t *testing.T) {
	sink := &fakeSink{}
	p := NewIngestPipeline(sink, nil, WithMaxRPS(1))
	if err := p.Process(context.Background(), obs(100)); err != nil {
		t.Fatalf("first process: %v", err)
	}
	// immediate second write lands inside the throttle window
	if err := p.Process(context.Background(), obs(101)); err != nil {
		t.Fatalf("throttled process should not error: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("stored = %d, want 1", sink.count())
	}
}

func TestBufferedFlushAfterRecovery(t *testing.T) {
	sink := &fakeSink{fail: true}
	p := NewIngestPipeline(sink, nil, WithBufferSize(10))
	if err := p.Process(context.Background(), obs(100)); err == nil {
		t.Fatalf("expected downstream error while sink is down")
	}

	sink.setFail(false)
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.count() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffered observation never flushed, stored = %d", sink.count())
}
