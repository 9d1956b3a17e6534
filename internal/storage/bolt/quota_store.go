package bolt

import (
	"context"

	"github.com/haldane/mediagate/internal/storage"
	"go.etcd.io/bbolt"
)

type quotaStore struct {
	db *bbolt.DB
}

// Get retrieves the persisted quota state for an asset class.
func (s *quotaStore) Get(ctx context.Context, class storage.AssetClass) (*storage.QuotaState, error) {
	return getBucketValue[storage.QuotaState](ctx, s.db, bucketPlayQuota, string(class))
}

// Put writes the quota state for an asset class, replacing any prior record.
func (s *quotaStore) Put(ctx context.Context, class storage.AssetClass, state storage.QuotaState) error {
	return putBucketValue(ctx, s.db, bucketPlayQuota, string(class), state)
}
