package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ChainCast/internal/agent"
	"ChainCast/internal/collector"
	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	"ChainCast/internal/oracle"
	"ChainCast/internal/predictor"
	"ChainCast/internal/preprocess"
	"ChainCast/internal/usecase"
	applogger "ChainCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

type stubSource struct {
	obs []models.MarketObservation
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Fetch(context.Context, drepo.FetchParams) ([]models.MarketObservation, error) {
	return s.obs, nil
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

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newServer(t *testing.T, trained bool) *echo.Echo {
	t.Helper()
	src := &stubSource{obs: makeObs(300)}
	col := collector.New(
		[]collector.SourceSlot{{Source: src, MaxRequests: 1000, Window: time.Minute}},
		collector.NewSyntheticSource(100, 60),
	)
	pre := preprocess.New(time.Minute)
	pred := predictor.New(predictor.WithSeed(1))
	ag := agent.New(agent.WithSeed(1))
	pipeline := usecase.NewPipeline(col, pre, pred, ag, nil, nil, nil, "BTCUSDT", time.Hour, nil)
	if trained {
		if err := pipeline.Train(context.Background(), false); err != nil {
			t.Fatalf("train: %v", err)
		}
	}

	e := echo.New()
	h := NewPipelineHandler(testLogger(t), pipeline, usecase.NewHistory(&fakeObsStore{}, "BTCUSDT"))
	h.RegisterRoutes(e)
	return e
}

type fakeObsStore struct{}

func (f *fakeObsStore) Store(context.Context, []models.MarketObservation) error { return nil }
func (f *fakeObsStore) Query(context.Context, string, time.Time, time.Time, int) ([]models.MarketObservation, error) {
	return makeObs(5), nil
}
func (f *fakeObsStore) Health(context.Context) error { return nil }
func (f *fakeObsStore) Close() error                 { return nil }

func do(e *echo.Echo, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func bodyStatus(t *testing.T, out map[string]interface{}) int {
	t.Helper()
	v, ok := out["status"].(float64)
	if !ok {
		t.Fatalf("response missing status: %v", out)
	}
	return int(v)
}

func TestPredictUntrainedModelReturns503(t *testing.T) {
	e := newServer(t, false)
	_, out := do(e, http.MethodPost, "/api/predict", "", nil)
	if got := bodyStatus(t, out); got != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", got)
	}
}

func TestPredictSmallWindowReturns400(t *testing.T) {
	e := newServer(t, true)
	b, _ := json.Marshal(models.PredictRequest{Observations: makeObs(30)})
	_, out := do(e, http.MethodPost, "/api/predict", string(b), nil)
	if got := bodyStatus(t, out); got != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got)
	}
}

func TestPredictTrainedReturnsForecast(t *testing.T) {
	e := newServer(t, true)
	_, out := do(e, http.MethodPost, "/api/predict", "", nil)
	if got := bodyStatus(t, out); got != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", got, out)
	}
	data, ok := out["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing data: %v", out)
	}
	conf, _ := data["confidence"].(float64)
	if conf < 0 || conf > 100 {
		t.Fatalf("confidence not in 0-100: %v", conf)
	}
}

func TestDecideMissingFieldsReturns400(t *testing.T) {
	e := newServer(t, true)
	_, out := do(e, http.MethodPost, "/api/decide", `{"portfolioRatio":0.5}`, nil)
	if got := bodyStatus(t, out); got != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got)
	}
}

func TestDecideOutOfRangeRatioReturns400(t *testing.T) {
	e := newServer(t, true)
	feature := `{"price":100,"sma7":100,"sma14":100,"sma30":100,"ema10":100,"ema30":100,"volatility":0.01,"momentum":0.1,"volume":1000,"priceChange":0.001,"volumeChange":0.001}`
	_, out := do(e, http.MethodPost, "/api/decide", `{"feature":`+feature+`,"portfolioRatio":1.5}`, nil)
	if got := bodyStatus(t, out); got != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got)
	}
}

func newOracleServer(t *testing.T, now time.Time) *echo.Echo {
	t.Helper()
	gate := oracle.NewGate("pub-key", "owner-key",
		oracle.WithClock(func() time.Time { return now }))
	exec := oracle.NewExecutor(gate, "owner-key")
	e := echo.New()
	NewOracleHandler(testLogger(t), gate, exec).RegisterRoutes(e)
	return e
}

func TestOraclePublishRequiresKey(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := newOracleServer(t, now)
	body := `{"price":50000,"confidence":85,"expiresAt":1700001800}`

	_, out := do(e, http.MethodPost, "/api/oracle/publish", body, nil)
	if got := bodyStatus(t, out); got != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", got)
	}

	_, out = do(e, http.MethodPost, "/api/oracle/publish", body,
		map[string]string{keyHeader: "pub-key"})
	if got := bodyStatus(t, out); got != http.StatusOK {
		t.Fatalf("with key: status = %d, want 200 (%v)", got, out)
	}
}

func TestOracleValidReflectsState(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := newOracleServer(t, now)

	_, out := do(e, http.MethodGet, "/api/oracle/valid", "", nil)
	data := out["data"].(map[string]interface{})
	if data["valid"].(bool) {
		t.Fatalf("empty slot reported valid")
	}

	body := `{"price":50000,"confidence":85,"expiresAt":1700001800}`
	do(e, http.MethodPost, "/api/oracle/publish", body, map[string]string{keyHeader: "pub-key"})

	_, out = do(e, http.MethodGet, "/api/oracle/valid", "", nil)
	data = out["data"].(map[string]interface{})
	if !data["valid"].(bool) {
		t.Fatalf("published slot reported invalid")
	}
}

func TestSwapAgainstClosedGateReturns409WithConfidence(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := newOracleServer(t, now)

	// low-confidence publish: accepted into the slot but below threshold
	body := `{"price":50000,"confidence":60,"expiresAt":1700001800}`
	do(e, http.MethodPost, "/api/oracle/publish", body, map[string]string{keyHeader: "pub-key"})

	swap := `{"tokenIn":"0xaaa","tokenOut":"0xbbb","amount":"100","deadline":1700000600}`
	_, out := do(e, http.MethodPost, "/api/trade/swap", swap, nil)
	if got := bodyStatus(t, out); got != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%v)", got, out)
	}
	errs := out["data"].([]interface{})
	first := errs[0].(map[string]interface{})
	params := first["params"].(map[string]interface{})
	if params["confidence"].(float64) != 60 {
		t.Fatalf("confidence param = %v, want 60", params["confidence"])
	}
}

func TestSwapExecutesThroughOpenGate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := newOracleServer(t, now)

	body := `{"price":3,"confidence":90,"expiresAt":1700001800}`
	do(e, http.MethodPost, "/api/oracle/publish", body, map[string]string{keyHeader: "pub-key"})

	swap := `{"tokenIn":"0xaaa","tokenOut":"0xbbb","amount":"100","deadline":1700000600}`
	_, out := do(e, http.MethodPost, "/api/trade/swap", swap, nil)
	if got := bodyStatus(t, out); got != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", got, out)
	}
	data := out["data"].(map[string]interface{})
	if data["amountOut"].(string) != "300" {
		t.Fatalf("amountOut = %v, want 300", data["amountOut"])
	}
}

func TestPausedTradingReturns409(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := newOracleServer(t, now)

	body := `{"price":3,"confidence":90,"expiresAt":1700001800}`
	do(e, http.MethodPost, "/api/oracle/publish", body, map[string]string{keyHeader: "pub-key"})
	do(e, http.MethodPost, "/api/trade/pause", "", map[string]string{keyHeader: "owner-key"})

	swap := `{"tokenIn":"0xaaa","tokenOut":"0xbbb","amount":"100","deadline":1700000600}`
	_, out := do(e, http.MethodPost, "/api/trade/swap", swap, nil)
	if got := bodyStatus(t, out); got != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%v)", got, out)
	}
}
