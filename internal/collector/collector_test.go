package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	icache "ChainCast/internal/service/cache"
	"ChainCast/internal/service/ratelimit"
)

type stubSource struct {
	name  string
	obs   []models.MarketObservation
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Fetch(context.Context, drepo.FetchParams) ([]models.MarketObservation, error) {
	s.calls++
	return s.obs, s.err
}

func goodObs(n int) []models.MarketObservation {
	out := make([]models.MarketObservation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.MarketObservation{
			Timestamp: 1700000000 + int64(i)*60,
			Price:     100 + float64(i),
			Volume:    1000,
		})
	}
	return out
}

func params() drepo.FetchParams {
	return drepo.FetchParams{
		Symbol: "BTCUSDT",
		From:   time.Unix(1700000000, 0),
		To:     time.Unix(1700010000, 0),
		Limit:  50,
	}
}

func slots(srcs ...*stubSource) []SourceSlot {
	out := make([]SourceSlot, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, SourceSlot{Source: s, MaxRequests: 100, Window: time.Minute})
	}
	return out
}

func TestCollectFirstViableSourceWins(t *testing.T) {
	primary := &stubSource{name: "a", obs: goodObs(30)}
	backup := &stubSource{name: "b", obs: goodObs(30)}
	c := New(slots(primary, backup), NewSyntheticSource(100, 60))

	batch, err := c.Collect(context.Background(), params())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if batch.Origin != models.OriginLive || batch.Source != "a" {
		t.Fatalf("batch = %s/%s, want live/a", batch.Origin, batch.Source)
	}
	if backup.calls != 0 {
		t.Fatalf("backup source called despite primary success")
	}
}

func TestCollectFallsBackOnError(t *testing.T) {
	primary := &stubSource{name: "a", err: errors.New("boom")}
	backup := &stubSource{name: "b", obs: goodObs(30)}
	c := New(slots(primary, backup), NewSyntheticSource(100, 60))

	batch, err := c.Collect(context.Background(), params())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if batch.Source != "b" {
		t.Fatalf("expected fallback to b, got %s", batch.Source)
	}
}

func TestCollectSkipsBelowViableCount(t *testing.T) {
	thin := &stubSource{name: "a", obs: goodObs(3)}
	backup := &stubSource{name: "b", obs: goodObs(30)}
	c := New(slots(thin, backup), NewSyntheticSource(100, 60), WithMinViable(10))

	batch, err := c.Collect(context.Background(), params())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if batch.Source != "b" {
		t.Fatalf("thin source accepted: got %s", batch.Source)
	}
}

func TestCollectSyntheticWhenAllFail(t *testing.T) {
	a := &stubSource{name: "a", err: errors.New("down")}
	b := &stubSource{name: "b", err: errors.New("down")}
	c := New(slots(a, b), NewSyntheticSource(100, 60))

	batch, err := c.Collect(context.Background(), params())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if batch.Origin != models.OriginSynthetic {
		t.Fatalf("origin = %s, want synthetic", batch.Origin)
	}
	if len(batch.Data) == 0 {
		t.Fatalf("synthetic fallback returned empty batch")
	}
}

func TestSyntheticDeterministicPerRange(t *testing.T) {
	s := NewSyntheticSource(100, 60)
	a, _ := s.Fetch(context.Background(), params())
	b, _ := s.Fetch(context.Background(), params())
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Price != b[i].Price || a[i].Timestamp != b[i].Timestamp {
			t.Fatalf("series not deterministic at %d", i)
		}
	}
}

func TestFetchFailsFastWhenRateLimited(t *testing.T) {
	now := time.Unix(1700000000, 0)
	lim := ratelimit.NewWithClock(func() time.Time { return now })
	src := &stubSource{name: "a", obs: goodObs(30)}
	c := New([]SourceSlot{{Source: src, MaxRequests: 2, Window: time.Minute}},
		NewSyntheticSource(100, 60), WithLimiter(lim))

	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), "a", params()); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	calls := src.calls
	_, err := c.Fetch(context.Background(), "a", params())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if src.calls != calls {
		t.Fatalf("network attempt made while rate limited")
	}

	// window elapses, budget resets
	now = now.Add(61 * time.Second)
	if _, err := c.Fetch(context.Background(), "a", params()); err != nil {
		t.Fatalf("fetch after window: %v", err)
	}
}

func TestFetchValidatesFieldByField(t *testing.T) {
	obs := goodObs(5)
	obs = append(obs,
		models.MarketObservation{Timestamp: 0, Price: 10, Volume: 1},
		models.MarketObservation{Timestamp: 1700000001, Price: 0, Volume: 1},
		models.MarketObservation{Timestamp: 1700000002, Price: 10, Volume: -1},
	)
	src := &stubSource{name: "a", obs: obs}
	c := New(slots(src), NewSyntheticSource(100, 60))

	got, err := c.Fetch(context.Background(), "a", params())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 valid points, got %d", len(got))
	}
}

func TestCollectServesCachedBatch(t *testing.T) {
	src := &stubSource{name: "a", obs: goodObs(30)}
	c := New(slots(src), NewSyntheticSource(100, 60),
		WithCache(icache.NewTTLCache(), time.Minute))

	if _, err := c.Collect(context.Background(), params()); err != nil {
		t.Fatalf("first collect: %v", err)
	}
	batch, err := c.Collect(context.Background(), params())
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if batch.Origin != models.OriginCached {
		t.Fatalf("origin = %s, want cached", batch.Origin)
	}
	if src.calls != 1 {
		t.Fatalf("source called %d times, cache not used", src.calls)
	}
}

func TestFetchUnknownSource(t *testing.T) {
	c := New(nil, NewSyntheticSource(100, 60))
	if _, err := c.Fetch(context.Background(), "nope", params()); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}
