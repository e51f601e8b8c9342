package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
)

const slotKey = "chaincast:oracle:slot"

// RedisSlotStore snapshots the oracle slot so a restart restores the last
// published prediction. Best effort: the gate treats save failures as
// non-fatal.
type RedisSlotStore struct {
	client *redis.Client
	key    string
}

// NewRedisSlotStore creates the snapshot store.
func NewRedisSlotStore(client *redis.Client) drepo.SlotStore {
	return &RedisSlotStore{client: client, key: slotKey}
}

// Save overwrites the snapshot.
func (s *RedisSlotStore) Save(ctx context.Context, p models.OnChainPrediction) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal slot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	return nil
}

// Load reads the snapshot. The boolean reports whether one exists.
func (s *RedisSlotStore) Load(ctx context.Context) (models.OnChainPrediction, bool, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.OnChainPrediction{}, false, nil
	}
	if err != nil {
		return models.OnChainPrediction{}, false, fmt.Errorf("load slot: %w", err)
	}
	var p models.OnChainPrediction
	if err := json.Unmarshal(b, &p); err != nil {
		return models.OnChainPrediction{}, false, fmt.Errorf("decode slot: %w", err)
	}
	return p, true, nil
}
