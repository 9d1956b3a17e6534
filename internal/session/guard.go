// Package session tracks the bounded content-viewing window opened by a
// successful unlock. Validity is governed by two independent timers: an
// absolute lifetime from the unlock, and an idle window from the last
// tracked user activity. Either expiring invalidates the session.
//
// State is deliberately volatile: it lives in process memory and dies
// with the process, mirroring the tab-scoped lifetime of the original
// design. Expiry is evaluated lazily; nothing here runs a timer, and
// callers clear the session once they observe invalidity.
package session

import (
	"sync"
	"time"

	"github.com/haldane/mediagate/internal/clock"
	"github.com/haldane/mediagate/internal/metrics"
	"github.com/rs/zerolog"
)

// Remaining reports the headroom left on both session timers, each
// clamped at zero.
type Remaining struct {
	Session time.Duration
	Idle    time.Duration
}

type state struct {
	startedAt      time.Time
	lastActivityAt time.Time
}

// Guard tracks the current viewing session.
type Guard struct {
	maxSession  time.Duration
	idleTimeout time.Duration
	clock       clock.Clock
	logger      zerolog.Logger

	current *state
	mu      sync.Mutex
}

// Config holds guard configuration.
type Config struct {
	MaxSession  time.Duration
	IdleTimeout time.Duration
	Clock       clock.Clock
}

// NewGuard creates a session guard.
func NewGuard(cfg Config, logger zerolog.Logger) *Guard {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	return &Guard{
		maxSession:  cfg.MaxSession,
		idleTimeout: cfg.IdleTimeout,
		clock:       cfg.Clock,
		logger:      logger.With().Str("component", "session").Logger(),
	}
}

// Start opens a new session, discarding any prior one.
func (g *Guard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.current = &state{startedAt: now, lastActivityAt: now}

	metrics.SessionActive.Set(1)
	g.logger.Info().
		Dur("max_session", g.maxSession).
		Dur("idle_timeout", g.idleTimeout).
		Msg("Session started")
}

// Touch records user activity, extending only the idle window. It never
// creates a session and never moves the absolute deadline.
func (g *Guard) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return
	}
	g.current.lastActivityAt = g.clock.Now()
}

// IsValid reports whether a session exists and both timers have
// headroom. A missing session is false, not an error.
func (g *Guard) IsValid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.validLocked(g.clock.Now())
}

func (g *Guard) validLocked(now time.Time) bool {
	if g.current == nil {
		return false
	}
	if now.Sub(g.current.startedAt) >= g.maxSession {
		return false
	}
	if now.Sub(g.current.lastActivityAt) >= g.idleTimeout {
		return false
	}
	return true
}

// Remaining returns the headroom on both timers, clamped at zero, or
// nil when no session exists.
func (g *Guard) Remaining() *Remaining {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return nil
	}

	now := g.clock.Now()

	session := g.maxSession - now.Sub(g.current.startedAt)
	if session < 0 {
		session = 0
	}

	idle := g.idleTimeout - now.Sub(g.current.lastActivityAt)
	if idle < 0 {
		idle = 0
	}

	return &Remaining{Session: session, Idle: idle}
}

// Clear discards the current session unconditionally.
func (g *Guard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil {
		g.logger.Info().Msg("Session cleared")
	}
	g.current = nil
	metrics.SessionActive.Set(0)
}
