package preprocess

import (
	"math"
	"testing"
	"time"

	"ChainCast/internal/domain/models"
)

func makeSeries(n int, start int64, step int64, price float64) []models.MarketObservation {
	out := make([]models.MarketObservation, 0, n)
	p := price
	for i := 0; i < n; i++ {
		// small non-constant drift so change statistics have spread
		switch i % 4 {
		case 0:
			p *= 1.001
		case 1:
			p *= 1.003
		case 2:
			p *= 0.998
		case 3:
			p *= 1.002
		}
		out = append(out, models.MarketObservation{
			Timestamp: start + int64(i)*step,
			Price:     p,
			Volume:    1000 + float64(i),
			Open:      p,
			High:      p * 1.001,
			Low:       p * 0.999,
			Close:     p,
		})
	}
	return out
}

func TestProcessOrderedAndDeduped(t *testing.T) {
	p := New(time.Minute)
	raw := makeSeries(50, 1700000000, 60, 100)
	// shuffle in a duplicate and an out-of-order point
	raw = append(raw, raw[10])
	raw[5], raw[20] = raw[20], raw[5]

	got := p.Process(raw)
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("timestamps not strictly increasing at %d: %d <= %d", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestProcessDropsInvalid(t *testing.T) {
	p := New(time.Minute)
	raw := makeSeries(10, 1700000000, 60, 100)
	raw = append(raw, models.MarketObservation{Timestamp: 0, Price: 100, Volume: 1})
	raw = append(raw, models.MarketObservation{Timestamp: 1700001000, Price: -5, Volume: 1})

	got := p.Process(raw)
	for _, o := range got {
		if !o.Valid() {
			t.Fatalf("invalid observation survived: %+v", o)
		}
	}
}

func TestOutlierSpikeRemoved(t *testing.T) {
	raw := makeSeries(40, 1700000000, 60, 100)
	spike := raw[len(raw)-1]
	spike.Timestamp += 60
	spike.Price *= 1.5 // far beyond median+3*MAD of ~0.2% changes
	raw = append(raw, spike)

	got := removeOutliers(raw)
	for _, o := range got {
		if o.Timestamp == spike.Timestamp {
			t.Fatalf("spike point not removed")
		}
	}
}

func TestOutlierSpikeRemovedFromFlatSeries(t *testing.T) {
	// a perfectly flat series drives MAD to zero; the limit must still
	// reject a +400% spike instead of degenerating to accept-everything
	raw := make([]models.MarketObservation, 0, 21)
	for i := 0; i < 20; i++ {
		raw = append(raw, models.MarketObservation{
			Timestamp: 1700000000 + int64(i)*60,
			Price:     100,
			Volume:    1000,
			Open:      100, High: 100, Low: 100, Close: 100,
		})
	}
	spike := models.MarketObservation{
		Timestamp: 1700000000 + 10*60 + 30,
		Price:     500,
		Volume:    1000,
		Open:      500, High: 500, Low: 500, Close: 500,
	}
	raw = append(raw[:10:10], append([]models.MarketObservation{spike}, raw[10:]...)...)

	got := removeOutliers(raw)
	kept := 0
	for _, o := range got {
		if o.Price == 500 {
			t.Fatalf("spike point retained: %+v", o)
		}
		if o.Price == 100 {
			kept++
		}
	}
	if kept < 18 {
		t.Fatalf("flat majority not preserved: %d of 20 points kept", kept)
	}
}

func TestOutlierFilterIdempotentOnCleanInput(t *testing.T) {
	raw := makeSeries(40, 1700000000, 60, 100)
	got := removeOutliers(raw)
	if len(got) != len(raw) {
		t.Fatalf("clean series changed: %d -> %d points", len(raw), len(got))
	}
	for i := range got {
		if got[i].Timestamp != raw[i].Timestamp {
			t.Fatalf("point %d reordered", i)
		}
	}
}

func TestDedupeKeepsFirst(t *testing.T) {
	a := models.MarketObservation{Timestamp: 100, Price: 1}
	b := models.MarketObservation{Timestamp: 100, Price: 2}
	c := models.MarketObservation{Timestamp: 200, Price: 3}
	got := dedupe([]models.MarketObservation{a, b, c})
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Price != 1 {
		t.Fatalf("expected first occurrence kept, got price %v", got[0].Price)
	}
}

func TestInterpolateDoubleGap(t *testing.T) {
	p := New(time.Minute)
	obs := []models.MarketObservation{
		{Timestamp: 1700000000, Price: 100, Volume: 1000, Open: 100, High: 101, Low: 99, Close: 100},
		{Timestamp: 1700000060, Price: 102, Volume: 1100, Open: 102, High: 103, Low: 101, Close: 102},
		// gap of exactly 2x the nominal interval
		{Timestamp: 1700000180, Price: 106, Volume: 1300, Open: 106, High: 107, Low: 105, Close: 106},
	}
	got := p.interpolate(obs)
	if len(got) != 4 {
		t.Fatalf("expected exactly one synthetic point, got %d total", len(got))
	}
	mid := got[2]
	if mid.Timestamp != 1700000120 {
		t.Fatalf("unexpected synthetic timestamp %d", mid.Timestamp)
	}
	if math.Abs(mid.Price-104) > 1e-9 || math.Abs(mid.Volume-1200) > 1e-9 {
		t.Fatalf("synthetic point not linearly interpolated: %+v", mid)
	}
	if math.Abs(mid.High-105) > 1e-9 || math.Abs(mid.Low-103) > 1e-9 {
		t.Fatalf("OHLC fields not interpolated: %+v", mid)
	}
}

func TestIndicatorsOmittedForShortHistory(t *testing.T) {
	p := New(time.Minute)
	got := p.Process(makeSeries(5, 1700000000, 60, 100))
	for _, o := range got {
		if o.SMA7 != nil || o.SMA30 != nil || o.Volatility != nil {
			t.Fatalf("indicator present with insufficient history: %+v", o)
		}
	}
}

func TestIndicatorsPresentWithHistory(t *testing.T) {
	p := New(time.Minute)
	got := p.Process(makeSeries(60, 1700000000, 60, 100))
	last := got[len(got)-1]
	if last.SMA7 == nil || last.SMA14 == nil || last.SMA30 == nil {
		t.Fatalf("SMA missing on tail point")
	}
	if last.EMA10 == nil || last.EMA30 == nil {
		t.Fatalf("EMA missing on tail point")
	}
	if last.Volatility == nil || last.Momentum == nil || last.VolumeSMA == nil {
		t.Fatalf("rolling indicators missing on tail point")
	}
}

func TestToFeaturesSkipsIncomplete(t *testing.T) {
	p := New(time.Minute)
	obs := p.Process(makeSeries(60, 1700000000, 60, 100))
	feats := p.ToFeatures(obs)
	if len(feats) == 0 {
		t.Fatalf("expected features from 60-point series")
	}
	// features only start once all indicators are available (30-point SMA)
	if len(feats) >= len(obs) {
		t.Fatalf("expected warmup points skipped: %d features from %d observations", len(feats), len(obs))
	}
	for _, f := range feats {
		if f.Price <= 0 || f.SMA30 == 0 {
			t.Fatalf("incomplete feature emitted: %+v", f)
		}
	}
}

func TestMedianAndMAD(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 100}
	med := Median(xs)
	if med != 3 {
		t.Fatalf("median = %v, want 3", med)
	}
	mad := MedianAbsDev(xs, med)
	if mad != 1 {
		t.Fatalf("mad = %v, want 1", mad)
	}
}
