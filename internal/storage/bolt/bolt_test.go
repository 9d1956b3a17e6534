package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/haldane/mediagate/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mediagate.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestCacheStorePutGet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	entry := storage.CacheEntry{
		SchemaVersion: storage.CacheEntrySchemaVersion,
		Key:           "https://cdn.example.com/track.mp3",
		Payload:       []byte("payload bytes"),
		CreatedAt:     time.Now().UTC(),
		TTL:           30 * time.Minute,
		Obfuscated:    true,
		MIMEType:      "audio/mpeg",
	}

	if err := store.Cache().Put(context.Background(), entry); err != nil {
		t.Fatalf("put cache entry: %v", err)
	}

	got, err := store.Cache().Get(context.Background(), entry.Key)
	if err != nil {
		t.Fatalf("get cache entry: %v", err)
	}
	if got.Key != entry.Key {
		t.Errorf("expected key %q, got %q", entry.Key, got.Key)
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Errorf("payload mismatch")
	}
	if !got.Obfuscated {
		t.Error("expected obfuscated flag to survive round trip")
	}
	if got.MIMEType != "audio/mpeg" {
		t.Errorf("expected MIME type audio/mpeg, got %q", got.MIMEType)
	}
}

func TestCacheStoreGetMissing(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	_, err := store.Cache().Get(context.Background(), "https://cdn.example.com/absent.mp3")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheStorePutEmptyKey(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	err := store.Cache().Put(context.Background(), storage.CacheEntry{})
	if err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestCacheStoreDelete(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	entry := storage.CacheEntry{
		SchemaVersion: storage.CacheEntrySchemaVersion,
		Key:           "https://cdn.example.com/clip.mp4",
		Payload:       []byte("video"),
		CreatedAt:     time.Now().UTC(),
		TTL:           time.Hour,
	}
	if err := store.Cache().Put(context.Background(), entry); err != nil {
		t.Fatalf("put cache entry: %v", err)
	}

	if err := store.Cache().Delete(context.Background(), entry.Key); err != nil {
		t.Fatalf("delete cache entry: %v", err)
	}

	if _, err := store.Cache().Get(context.Background(), entry.Key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := store.Cache().Delete(context.Background(), entry.Key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestCacheStoreListAndClear(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	keys := []string{
		"https://cdn.example.com/a.mp3",
		"https://cdn.example.com/b.mp3",
		"https://cdn.example.com/c.mp4",
	}
	for _, key := range keys {
		entry := storage.CacheEntry{
			SchemaVersion: storage.CacheEntrySchemaVersion,
			Key:           key,
			Payload:       []byte(key),
			CreatedAt:     time.Now().UTC(),
			TTL:           time.Hour,
		}
		if err := store.Cache().Put(context.Background(), entry); err != nil {
			t.Fatalf("put cache entry: %v", err)
		}
	}

	entries, err := store.Cache().List(context.Background())
	if err != nil {
		t.Fatalf("list cache entries: %v", err)
	}
	if len(entries) != len(keys) {
		t.Fatalf("expected %d entries, got %d", len(keys), len(entries))
	}

	if err := store.Cache().Clear(context.Background()); err != nil {
		t.Fatalf("clear cache: %v", err)
	}

	entries, err = store.Cache().List(context.Background())
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", len(entries))
	}

	// Cleared bucket must still accept writes.
	if err := store.Cache().Put(context.Background(), storage.CacheEntry{
		SchemaVersion: storage.CacheEntrySchemaVersion,
		Key:           keys[0],
		Payload:       []byte("again"),
		CreatedAt:     time.Now().UTC(),
		TTL:           time.Hour,
	}); err != nil {
		t.Fatalf("put after clear: %v", err)
	}
}

func TestQuotaStorePutGet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	state := storage.QuotaState{
		SchemaVersion: storage.QuotaStateSchemaVersion,
		DayKey:        "2026-08-27",
		UsedCount:     2,
		Signature:     "abc123",
	}

	if err := store.Quota().Put(context.Background(), storage.AssetAudio, state); err != nil {
		t.Fatalf("put quota state: %v", err)
	}

	got, err := store.Quota().Get(context.Background(), storage.AssetAudio)
	if err != nil {
		t.Fatalf("get quota state: %v", err)
	}
	if got.UsedCount != 2 || got.DayKey != "2026-08-27" || got.Signature != "abc123" {
		t.Fatalf("quota state mismatch: %+v", got)
	}

	// Classes are independent records.
	if _, err := store.Quota().Get(context.Background(), storage.AssetVideo); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for untouched class, got %v", err)
	}
}
