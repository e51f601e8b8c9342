package collector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	applogger "ChainCast/pkg/logger"
)

// BinanceSource fetches OHLCV klines from the Binance public REST API.
type BinanceSource struct {
	name     string
	baseURL  string
	interval string
	rest     *restClient
}

// NewBinanceSource creates a Binance klines source.
func NewBinanceSource(baseURL, interval string, timeout time.Duration, l *applogger.Logger) *BinanceSource {
	if interval == "" {
		interval = "1m"
	}
	return &BinanceSource{
		name:     "binance",
		baseURL:  baseURL,
		interval: interval,
		rest:     newRESTClient(timeout, l),
	}
}

// Name identifies the source for limiter keys and logs.
func (s *BinanceSource) Name() string { return s.name }

// Fetch pulls klines for the requested range. Binance returns arrays:
// [openTime, open, high, low, close, volume, closeTime, ...].
func (s *BinanceSource) Fetch(ctx context.Context, params drepo.FetchParams) ([]models.MarketObservation, error) {
	query := map[string][]string{
		"symbol":   {params.Symbol},
		"interval": {s.interval},
	}
	if !params.From.IsZero() {
		query["startTime"] = []string{strconv.FormatInt(params.From.UnixMilli(), 10)}
	}
	if !params.To.IsZero() {
		query["endTime"] = []string{strconv.FormatInt(params.To.UnixMilli(), 10)}
	}
	if params.Limit > 0 {
		query["limit"] = []string{strconv.Itoa(params.Limit)}
	}

	var rows [][]interface{}
	if err := s.rest.getJSON(ctx, s.name, s.baseURL+"/api/v3/klines", query, &rows); err != nil {
		return nil, err
	}

	out := make([]models.MarketObservation, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%w: binance kline row too short", ErrUpstreamClient)
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: binance kline open time", ErrUpstreamClient)
		}
		open, err1 := parseField(row[1])
		high, err2 := parseField(row[2])
		low, err3 := parseField(row[3])
		closep, err4 := parseField(row[4])
		volume, err5 := parseField(row[5])
		for _, err := range []error{err1, err2, err3, err4, err5} {
			if err != nil {
				return nil, fmt.Errorf("%w: binance kline field: %v", ErrUpstreamClient, err)
			}
		}
		out = append(out, models.MarketObservation{
			Timestamp: int64(openTime) / 1000,
			Price:     closep,
			Volume:    volume,
			High:      high,
			Low:       low,
			Open:      open,
			Close:     closep,
		})
	}
	return out, nil
}

// parseField accepts the string-encoded numbers Binance uses in klines.
func parseField(v interface{}) (float64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(x, 64)
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
}
