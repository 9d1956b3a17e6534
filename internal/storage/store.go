package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface. It holds the durable
// per-deployment state: cached media payloads and daily play quotas.
// Session state is deliberately volatile and never touches the store.
type Store interface {
	Close() error
	Cache() CacheStore
	Quota() QuotaStore
}

// CacheStore manages cached media entries keyed by normalized URL.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Put(ctx context.Context, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]CacheEntry, error)
	Clear(ctx context.Context) error
}

// QuotaStore manages the persisted daily play quota per asset class.
type QuotaStore interface {
	Get(ctx context.Context, class AssetClass) (*QuotaState, error)
	Put(ctx context.Context, class AssetClass, state QuotaState) error
}
