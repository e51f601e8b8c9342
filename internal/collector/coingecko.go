package collector

import (
	"context"
	"strconv"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	applogger "ChainCast/pkg/logger"
)

// CoinGeckoSource fetches price/volume history from the CoinGecko market
// chart API. It is the free fallback: no OHLC granularity, so candle fields
// are synthesized from the price points.
type CoinGeckoSource struct {
	name    string
	baseURL string
	coinID  string
	rest    *restClient
}

// NewCoinGeckoSource creates a CoinGecko source for one coin id.
func NewCoinGeckoSource(baseURL, coinID string, timeout time.Duration, l *applogger.Logger) *CoinGeckoSource {
	return &CoinGeckoSource{
		name:    "coingecko",
		baseURL: baseURL,
		coinID:  coinID,
		rest:    newRESTClient(timeout, l),
	}
}

// Name identifies the source for limiter keys and logs.
func (s *CoinGeckoSource) Name() string { return s.name }

type geckoChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// Fetch pulls the market chart for the requested range.
func (s *CoinGeckoSource) Fetch(ctx context.Context, params drepo.FetchParams) ([]models.MarketObservation, error) {
	query := map[string][]string{
		"vs_currency": {"usd"},
	}
	if !params.From.IsZero() && !params.To.IsZero() {
		query["from"] = []string{strconv.FormatInt(params.From.Unix(), 10)}
		query["to"] = []string{strconv.FormatInt(params.To.Unix(), 10)}
	} else {
		query["days"] = []string{"1"}
	}

	var chart geckoChart
	url := s.baseURL + "/api/v3/coins/" + s.coinID + "/market_chart/range"
	if _, ok := query["from"]; !ok {
		url = s.baseURL + "/api/v3/coins/" + s.coinID + "/market_chart"
	}
	if err := s.rest.getJSON(ctx, s.name, url, query, &chart); err != nil {
		return nil, err
	}

	vols := make(map[int64]float64, len(chart.TotalVolumes))
	for _, v := range chart.TotalVolumes {
		vols[int64(v[0])/1000] = v[1]
	}

	out := make([]models.MarketObservation, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		ts := int64(p[0]) / 1000
		price := p[1]
		out = append(out, models.MarketObservation{
			Timestamp: ts,
			Price:     price,
			Volume:    vols[ts],
			High:      price,
			Low:       price,
			Open:      price,
			Close:     price,
		})
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[len(out)-params.Limit:]
	}
	return out, nil
}
