package training

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ChainCast/internal/agent"
	"ChainCast/internal/domain/models"
	"ChainCast/internal/predictor"
	"ChainCast/internal/preprocess"
)

type snapshotRecorder struct {
	calls int
	err   error
}

func (s *snapshotRecorder) RegisterTrained() ([]models.ModelVersion, error) {
	s.calls++
	return nil, s.err
}

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

func newTestJob(rec *snapshotRecorder) (*RetrainJob, *predictor.Predictor, *agent.Agent) {
	pre := preprocess.New(time.Minute)
	pred := predictor.New(predictor.WithSeed(1))
	ag := agent.New(agent.WithSeed(1))
	var opts []RetrainOption
	if rec != nil {
		opts = append(opts, WithModelRegistry(rec))
	}
	return NewRetrainJob(pre, pred, ag, nil, opts...), pred, ag
}

func TestRetrainHandleTrainsAndRegisters(t *testing.T) {
	rec := &snapshotRecorder{}
	j, pred, ag := newTestJob(rec)

	err := j.Handle(context.Background(), RetrainPayload{Quick: true, Observations: makeObs(300)})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !pred.IsReady() {
		t.Fatalf("predictor not trained")
	}
	if !ag.IsReady() {
		t.Fatalf("agent not trained")
	}
	if rec.calls != 1 {
		t.Fatalf("versions registered %d times, want 1", rec.calls)
	}
}

func TestRetrainHandleRejectsShortSnapshot(t *testing.T) {
	rec := &snapshotRecorder{}
	j, _, _ := newTestJob(rec)

	err := j.Handle(context.Background(), RetrainPayload{Observations: makeObs(50)})
	if err == nil {
		t.Fatalf("expected error for short snapshot")
	}
	if rec.calls != 0 {
		t.Fatalf("version registered without successful train")
	}
}

func TestRetrainRegistrationFailureNonFatal(t *testing.T) {
	rec := &snapshotRecorder{err: errors.New("artifact store down")}
	j, _, _ := newTestJob(rec)

	if err := j.Handle(context.Background(), RetrainPayload{Observations: makeObs(300)}); err != nil {
		t.Fatalf("handle failed on registration error: %v", err)
	}
}

func TestRetrainHandleRejectsBadPayload(t *testing.T) {
	j, _, _ := newTestJob(nil)
	if err := j.Handle(context.Background(), json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected payload parse error")
	}
}
