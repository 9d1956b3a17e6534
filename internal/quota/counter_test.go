package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/haldane/mediagate/internal/clock"
	"github.com/haldane/mediagate/internal/storage"
	"github.com/rs/zerolog"
)

// memQuotaStore is an in-memory QuotaStore that tests can tamper with.
type memQuotaStore struct {
	mu     sync.Mutex
	states map[storage.AssetClass]storage.QuotaState
}

func newMemQuotaStore() *memQuotaStore {
	return &memQuotaStore{states: make(map[storage.AssetClass]storage.QuotaState)}
}

func (s *memQuotaStore) Get(_ context.Context, class storage.AssetClass) (*storage.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[class]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &state, nil
}

func (s *memQuotaStore) Put(_ context.Context, class storage.AssetClass, state storage.QuotaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[class] = state
	return nil
}

func (s *memQuotaStore) tamper(class storage.AssetClass, mutate func(*storage.QuotaState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[class]
	mutate(&state)
	s.states[class] = state
}

func newTestCounter(t *testing.T, store storage.QuotaStore, maxPlays int, clk clock.Clock) *Counter {
	t.Helper()

	resetTime, err := time.Parse("15:04", "00:00")
	if err != nil {
		t.Fatalf("parse reset time: %v", err)
	}

	return NewCounter(store, Config{
		MaxPlaysPerDay:  maxPlays,
		DailyResetTime:  resetTime,
		IntegritySecret: "test-integrity-secret",
		Clock:           clk,
	}, zerolog.Nop())
}

func TestCounterFreshDay(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	counter := newTestCounter(t, newMemQuotaStore(), 3, clk)

	remaining, err := counter.Remaining(context.Background(), storage.AssetAudio)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected 3 remaining on a fresh day, got %d", remaining)
	}

	ok, err := counter.CanPlay(context.Background(), storage.AssetAudio)
	if err != nil {
		t.Fatalf("can play: %v", err)
	}
	if !ok {
		t.Fatal("expected play to be allowed on a fresh day")
	}
}

func TestCounterRecordAndExhaust(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	counter := newTestCounter(t, newMemQuotaStore(), 2, clk)
	ctx := context.Background()

	if err := counter.RecordCompletedPlay(ctx, storage.AssetAudio); err != nil {
		t.Fatalf("record play 1: %v", err)
	}
	remaining, _ := counter.Remaining(ctx, storage.AssetAudio)
	if remaining != 1 {
		t.Fatalf("expected 1 remaining after first play, got %d", remaining)
	}

	if err := counter.RecordCompletedPlay(ctx, storage.AssetAudio); err != nil {
		t.Fatalf("record play 2: %v", err)
	}
	ok, _ := counter.CanPlay(ctx, storage.AssetAudio)
	if ok {
		t.Fatal("expected play to be refused once quota is exhausted")
	}
}

func TestCounterClampsAtLimit(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	store := newMemQuotaStore()
	counter := newTestCounter(t, store, 2, clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := counter.RecordCompletedPlay(ctx, storage.AssetAudio); err != nil {
			t.Fatalf("record play %d: %v", i+1, err)
		}
	}

	state, err := store.Get(ctx, storage.AssetAudio)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.UsedCount != 2 {
		t.Fatalf("expected count clamped at 2, got %d", state.UsedCount)
	}

	remaining, _ := counter.Remaining(ctx, storage.AssetAudio)
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
}

func TestCounterClassesAreIndependent(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	counter := newTestCounter(t, newMemQuotaStore(), 2, clk)
	ctx := context.Background()

	if err := counter.RecordCompletedPlay(ctx, storage.AssetAudio); err != nil {
		t.Fatalf("record audio play: %v", err)
	}
	if err := counter.RecordCompletedPlay(ctx, storage.AssetAudio); err != nil {
		t.Fatalf("record audio play: %v", err)
	}

	audioOK, _ := counter.CanPlay(ctx, storage.AssetAudio)
	if audioOK {
		t.Fatal("expected audio quota exhausted")
	}

	videoRemaining, _ := counter.Remaining(ctx, storage.AssetVideo)
	if videoRemaining != 2 {
		t.Fatalf("expected untouched video quota of 2, got %d", videoRemaining)
	}
}

func TestCounterDayRollover(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 23, 0, 0, 0, time.UTC)}
	counter := newTestCounter(t, newMemQuotaStore(), 2, clk)
	ctx := context.Background()

	_ = counter.RecordCompletedPlay(ctx, storage.AssetAudio)
	_ = counter.RecordCompletedPlay(ctx, storage.AssetAudio)

	ok, _ := counter.CanPlay(ctx, storage.AssetAudio)
	if ok {
		t.Fatal("expected quota exhausted before rollover")
	}

	// Cross midnight.
	clk.Advance(2 * time.Hour)

	remaining, err := counter.Remaining(ctx, storage.AssetAudio)
	if err != nil {
		t.Fatalf("remaining after rollover: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected full quota after day rollover, got %d", remaining)
	}
}

func TestCounterResetTimeBoundsDay(t *testing.T) {
	store := newMemQuotaStore()
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 5, 0, 0, 0, time.UTC)}

	resetTime, err := time.Parse("15:04", "06:00")
	if err != nil {
		t.Fatalf("parse reset time: %v", err)
	}
	counter := NewCounter(store, Config{
		MaxPlaysPerDay:  2,
		DailyResetTime:  resetTime,
		IntegritySecret: "test-integrity-secret",
		Clock:           clk,
	}, zerolog.Nop())
	ctx := context.Background()

	// 05:00 is before the 06:00 reset, so yesterday is still the quota day.
	if err := counter.RecordCompletedPlay(ctx, storage.AssetAudio); err != nil {
		t.Fatalf("record play: %v", err)
	}
	state, _ := store.Get(ctx, storage.AssetAudio)
	if state.DayKey != "2026-08-26" {
		t.Fatalf("expected quota day 2026-08-26 before reset time, got %s", state.DayKey)
	}

	// Crossing 06:00 starts a new quota day.
	clk.Advance(90 * time.Minute)
	remaining, _ := counter.Remaining(ctx, storage.AssetAudio)
	if remaining != 2 {
		t.Fatalf("expected full quota after reset time, got %d", remaining)
	}
}

func TestCounterTamperedCountResets(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	store := newMemQuotaStore()
	counter := newTestCounter(t, store, 3, clk)
	ctx := context.Background()

	_ = counter.RecordCompletedPlay(ctx, storage.AssetAudio)
	_ = counter.RecordCompletedPlay(ctx, storage.AssetAudio)

	// Edit the stored count without re-signing.
	store.tamper(storage.AssetAudio, func(s *storage.QuotaState) {
		s.UsedCount = 0
	})

	remaining, err := counter.Remaining(ctx, storage.AssetAudio)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected tampered state to reset to full quota, got %d remaining", remaining)
	}
}

func TestCounterOutOfRangeCountResets(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	store := newMemQuotaStore()
	counter := newTestCounter(t, store, 3, clk)
	ctx := context.Background()

	_ = counter.RecordCompletedPlay(ctx, storage.AssetAudio)

	// A correctly signed but out-of-range count still fails validation.
	store.tamper(storage.AssetAudio, func(s *storage.QuotaState) {
		s.UsedCount = 99
		s.Signature = counter.sign(s.DayKey, s.UsedCount)
	})

	remaining, err := counter.Remaining(ctx, storage.AssetAudio)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected out-of-range state to reset, got %d remaining", remaining)
	}
}

func TestCounterWrongSchemaVersionResets(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	store := newMemQuotaStore()
	counter := newTestCounter(t, store, 3, clk)
	ctx := context.Background()

	_ = counter.RecordCompletedPlay(ctx, storage.AssetAudio)

	store.tamper(storage.AssetAudio, func(s *storage.QuotaState) {
		s.SchemaVersion = 99
	})

	remaining, err := counter.Remaining(ctx, storage.AssetAudio)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected unknown schema version to reset, got %d remaining", remaining)
	}
}

func TestCounterPersistsSignedState(t *testing.T) {
	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	store := newMemQuotaStore()
	counter := newTestCounter(t, store, 3, clk)
	ctx := context.Background()

	if err := counter.RecordCompletedPlay(ctx, storage.AssetVideo); err != nil {
		t.Fatalf("record play: %v", err)
	}

	state, err := store.Get(ctx, storage.AssetVideo)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Signature == "" {
		t.Fatal("expected persisted state to carry a signature")
	}
	if !counter.verify(state) {
		t.Fatal("expected persisted signature to verify")
	}

	// A second counter sharing the secret accepts the persisted state.
	other := newTestCounter(t, store, 3, clk)
	remaining, err := other.Remaining(ctx, storage.AssetVideo)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining from persisted state, got %d", remaining)
	}
}
