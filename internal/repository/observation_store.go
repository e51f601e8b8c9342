package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	pkgch "ChainCast/pkg/clickhouse"
	applogger "ChainCast/pkg/logger"
)

// CHObservationStore persists accepted market observations in ClickHouse
// and serves the history query endpoint from the same table.
type CHObservationStore struct {
	db     *sql.DB
	table  string
	symbol string
	l      *applogger.Logger
}

// NewCHObservationStore creates a store bound to one symbol's table.
func NewCHObservationStore(ch *pkgch.Client, table, symbol string) drepo.ObservationStore {
	if table == "" {
		table = "chaincast.observations"
	}
	return &CHObservationStore{db: ch.DB(), table: table, symbol: symbol}
}

// SetLogger injects a structured logger.
func (s *CHObservationStore) SetLogger(l *applogger.Logger) { s.l = l }

// Store batch-inserts observations, chunked to bound statement size.
func (s *CHObservationStore) Store(ctx context.Context, obs []models.MarketObservation) error {
	if len(obs) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(obs); start += chunkSize {
		end := start + chunkSize
		if end > len(obs) {
			end = len(obs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, o := range obs[start:end] {
			if !o.Valid() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.Unix(o.Timestamp, 0),
				s.symbol,
				o.Price,
				o.Volume,
				o.High,
				o.Low,
				o.Open,
				o.Close,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, high, low, open, close) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse observation insert error",
					applogger.String("table", s.table),
					applogger.Int("rows", len(values)),
					applogger.Error(err))
			}
			return fmt.Errorf("store observations: %w", err)
		}
	}
	return nil
}

// Query returns observations for the range, oldest first.
func (s *CHObservationStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.MarketObservation, error) {
	start := time.Now()
	if symbol == "" {
		symbol = s.symbol
	}
	if limit <= 0 {
		limit = 1000
	}
	q := fmt.Sprintf(`
        SELECT ts, price, volume, high, low, open, close
        FROM %s
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse observation query error",
				applogger.String("table", s.table),
				applogger.String("symbol", symbol),
				applogger.Error(err))
		}
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.MarketObservation, 0, limit)
	for rows.Next() {
		var o models.MarketObservation
		var ts time.Time
		if err := rows.Scan(&ts, &o.Price, &o.Volume, &o.High, &o.Low, &o.Open, &o.Close); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Timestamp = ts.Unix()
		tmp = append(tmp, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse observation query ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return tmp, nil
}

// Health pings the connection pool.
func (s *CHObservationStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by pkg/clickhouse.
func (s *CHObservationStore) Close() error {
	return nil
}

// ObservationSchema returns the idempotent DDL for the observation table.
func ObservationSchema(table string) []string {
	if table == "" {
		table = "chaincast.observations"
	}
	db := "chaincast"
	if i := strings.IndexByte(table, '.'); i > 0 {
		db = table[:i]
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts DateTime,
            symbol LowCardinality(String),
            price Float64,
            volume Float64,
            high Float64,
            low Float64,
            open Float64,
            close Float64
        ) ENGINE = MergeTree()
        ORDER BY (symbol, ts)
        TTL ts + INTERVAL 90 DAY
    `, table),
	}
}
