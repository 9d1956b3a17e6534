package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haldane/mediagate/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "mediagate:cache:"
	cacheIndexKey  = "mediagate:cache:index"
)

type cacheStore struct {
	client *redis.Client
}

func entryKey(key string) string {
	return cacheKeyPrefix + key
}

// Get retrieves a cache entry by its normalized URL key.
func (s *cacheStore) Get(ctx context.Context, key string) (*storage.CacheEntry, error) {
	data, err := s.client.Get(ctx, entryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry storage.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}

	return &entry, nil
}

// Put writes an entry, replacing any previous record under the same key.
func (s *cacheStore) Put(ctx context.Context, entry storage.CacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("cache entry key is empty")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	script := redis.NewScript(putCacheEntryScript)
	keys := []string{entryKey(entry.Key), cacheIndexKey}
	args := []interface{}{entry.Key, data, int64(entry.TTL / time.Second)}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Delete removes an entry by key.
func (s *cacheStore) Delete(ctx context.Context, key string) error {
	script := redis.NewScript(deleteCacheEntryScript)
	keys := []string{entryKey(key), cacheIndexKey}

	removed, err := script.Run(ctx, s.client, keys, key).Int()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all cached entries found through the index set. Index
// members whose value has expired out from under them are skipped.
func (s *cacheStore) List(ctx context.Context) ([]storage.CacheEntry, error) {
	keys, err := s.client.SMembers(ctx, cacheIndexKey).Result()
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return []storage.CacheEntry{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))

	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, entryKey(key))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]storage.CacheEntry, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		var entry storage.CacheEntry
		if err := json.Unmarshal(data, &entry); err == nil {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// Clear removes every cached entry and the index set itself.
func (s *cacheStore) Clear(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, cacheIndexKey).Result()
	if err != nil {
		return err
	}

	toDelete := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		toDelete = append(toDelete, entryKey(key))
	}
	toDelete = append(toDelete, cacheIndexKey)

	return s.client.Del(ctx, toDelete...).Err()
}
