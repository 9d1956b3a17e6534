// Package quota tracks the daily allowance of fully-completed plays per
// asset class. The persisted counter carries an HMAC signature so casual
// edits to the stored value are detected and discarded; any suspect
// state fails closed to a fresh quota for the current day.
package quota

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haldane/mediagate/internal/clock"
	"github.com/haldane/mediagate/internal/metrics"
	"github.com/haldane/mediagate/internal/storage"
	"github.com/rs/zerolog"
)

const dayKeyFormat = "2006-01-02"

// Config holds counter configuration.
type Config struct {
	MaxPlaysPerDay  int
	DailyResetTime  time.Time // only hour and minute are used
	IntegritySecret string
	Clock           clock.Clock
}

// Counter manages per-class daily play counts.
type Counter struct {
	store     storage.QuotaStore
	maxPlays  int
	resetTime time.Time
	secret    []byte
	clock     clock.Clock
	logger    zerolog.Logger

	// Serializes read-modify-write cycles within this process. Races
	// between separate processes sharing one store remain possible and
	// are an accepted limitation of the single-user deployment model.
	mu sync.Mutex
}

// NewCounter creates a play-quota counter.
func NewCounter(store storage.QuotaStore, cfg Config, logger zerolog.Logger) *Counter {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	return &Counter{
		store:     store,
		maxPlays:  cfg.MaxPlaysPerDay,
		resetTime: cfg.DailyResetTime,
		secret:    []byte(cfg.IntegritySecret),
		clock:     cfg.Clock,
		logger:    logger.With().Str("component", "quota").Logger(),
	}
}

// MaxPlays returns the configured daily allowance.
func (c *Counter) MaxPlays() int {
	return c.maxPlays
}

// Remaining returns today's remaining play allowance for the class,
// after any reset or repair of the persisted state.
func (c *Counter) Remaining(ctx context.Context, class storage.AssetClass) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.currentState(ctx, class)
	if err != nil {
		return 0, err
	}

	remaining := c.maxPlays - state.UsedCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CanPlay reports whether at least one play remains today.
func (c *Counter) CanPlay(ctx context.Context, class storage.AssetClass) (bool, error) {
	remaining, err := c.Remaining(ctx, class)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// RecordCompletedPlay increments the class's daily count by one,
// clamped at the maximum. Incrementing past the limit is a no-op, never
// an error. Callers are responsible for invoking this exactly once per
// genuine playback completion; the counter does not deduplicate.
func (c *Counter) RecordCompletedPlay(ctx context.Context, class storage.AssetClass) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.currentState(ctx, class)
	if err != nil {
		return err
	}

	if state.UsedCount >= c.maxPlays {
		c.logger.Debug().
			Str("class", string(class)).
			Int("used", state.UsedCount).
			Msg("Play recorded past daily limit, clamped")
		return nil
	}

	state.UsedCount++
	state.Signature = c.sign(state.DayKey, state.UsedCount)

	if err := c.store.Put(ctx, class, *state); err != nil {
		return fmt.Errorf("persist quota state: %w", err)
	}

	metrics.PlaysRecorded.WithLabelValues(string(class)).Inc()
	c.logger.Info().
		Str("class", string(class)).
		Str("day", state.DayKey).
		Int("used", state.UsedCount).
		Int("max", c.maxPlays).
		Msg("Recorded completed play")

	return nil
}

// currentState loads, validates, and if necessary repairs the persisted
// state for the class. Must be called with the mutex held.
func (c *Counter) currentState(ctx context.Context, class storage.AssetClass) (*storage.QuotaState, error) {
	today := c.dayKey(c.clock.Now())

	state, err := c.store.Get(ctx, class)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load quota state: %w", err)
		}
		return c.reset(ctx, class, today, "missing")
	}

	if state.SchemaVersion != storage.QuotaStateSchemaVersion {
		return c.reset(ctx, class, today, "corrupt")
	}

	if state.DayKey != today {
		return c.reset(ctx, class, today, "rollover")
	}

	if !c.verify(state) || state.UsedCount < 0 || state.UsedCount > c.maxPlays {
		c.logger.Warn().
			Str("class", string(class)).
			Str("day", state.DayKey).
			Int("used", state.UsedCount).
			Msg("Quota state failed integrity check, resetting")
		return c.reset(ctx, class, today, "tamper")
	}

	return state, nil
}

// reset persists a zeroed state for today and returns it.
func (c *Counter) reset(ctx context.Context, class storage.AssetClass, today, reason string) (*storage.QuotaState, error) {
	state := &storage.QuotaState{
		SchemaVersion: storage.QuotaStateSchemaVersion,
		DayKey:        today,
		UsedCount:     0,
		Signature:     c.sign(today, 0),
	}

	if err := c.store.Put(ctx, class, *state); err != nil {
		return nil, fmt.Errorf("persist reset quota state: %w", err)
	}

	if reason != "missing" {
		metrics.QuotaResets.WithLabelValues(reason).Inc()
	}

	return state, nil
}

// sign computes the integrity signature over the day key and count.
func (c *Counter) sign(dayKey string, used int) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s|%d", dayKey, used)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks the stored signature in constant time.
func (c *Counter) verify(state *storage.QuotaState) bool {
	expected := c.sign(state.DayKey, state.UsedCount)
	return hmac.Equal([]byte(expected), []byte(state.Signature))
}

// dayKey returns the quota day containing now, respecting the
// configured daily reset time: before the reset time, yesterday is
// still the current quota day.
func (c *Counter) dayKey(now time.Time) string {
	resetHour := c.resetTime.Hour()
	resetMinute := c.resetTime.Minute()

	today := time.Date(now.Year(), now.Month(), now.Day(), resetHour, resetMinute, 0, 0, now.Location())
	if now.Before(today) {
		today = today.AddDate(0, 0, -1)
	}

	return today.Format(dayKeyFormat)
}
