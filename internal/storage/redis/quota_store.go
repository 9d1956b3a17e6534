package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haldane/mediagate/internal/storage"
	"github.com/redis/go-redis/v9"
)

const quotaKeyPrefix = "mediagate:quota:"

type quotaStore struct {
	client *redis.Client
}

func quotaKey(class storage.AssetClass) string {
	return quotaKeyPrefix + string(class)
}

// Get retrieves the persisted quota state for an asset class.
func (s *quotaStore) Get(ctx context.Context, class storage.AssetClass) (*storage.QuotaState, error) {
	data, err := s.client.Get(ctx, quotaKey(class)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var state storage.QuotaState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal quota state: %w", err)
	}

	return &state, nil
}

// Put writes the quota state for an asset class, replacing any prior record.
func (s *quotaStore) Put(ctx context.Context, class storage.AssetClass, state storage.QuotaState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}

	return s.client.Set(ctx, quotaKey(class), data, 0).Err()
}
