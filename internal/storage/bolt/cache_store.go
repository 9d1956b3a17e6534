package bolt

import (
	"context"
	"fmt"

	"github.com/haldane/mediagate/internal/storage"
	"go.etcd.io/bbolt"
)

type cacheStore struct {
	db *bbolt.DB
}

// Get retrieves a cache entry by its normalized URL key.
func (s *cacheStore) Get(ctx context.Context, key string) (*storage.CacheEntry, error) {
	return getBucketValue[storage.CacheEntry](ctx, s.db, bucketMediaCache, key)
}

// Put writes an entry, replacing any previous record under the same key.
func (s *cacheStore) Put(ctx context.Context, entry storage.CacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("cache entry key is empty")
	}
	return putBucketValue(ctx, s.db, bucketMediaCache, entry.Key, entry)
}

// Delete removes an entry by key.
func (s *cacheStore) Delete(ctx context.Context, key string) error {
	return deleteBucketValue(ctx, s.db, bucketMediaCache, key)
}

// List returns all cached entries.
func (s *cacheStore) List(ctx context.Context) ([]storage.CacheEntry, error) {
	return listBucket[storage.CacheEntry](ctx, s.db, bucketMediaCache)
}

// Clear removes every cached entry by dropping and recreating the bucket.
func (s *cacheStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := tx.DeleteBucket([]byte(bucketMediaCache)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("drop cache bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketMediaCache)); err != nil {
			return fmt.Errorf("recreate cache bucket: %w", err)
		}
		return nil
	})
}
