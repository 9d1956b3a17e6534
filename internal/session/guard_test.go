package session

import (
	"testing"
	"time"

	"github.com/haldane/mediagate/internal/clock"
	"github.com/rs/zerolog"
)

func newTestGuard(t *testing.T, maxSession, idleTimeout time.Duration) (*Guard, *clock.TestClock) {
	t.Helper()

	clk := &clock.TestClock{CurrentTime: time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)}
	guard := NewGuard(Config{
		MaxSession:  maxSession,
		IdleTimeout: idleTimeout,
		Clock:       clk,
	}, zerolog.Nop())

	return guard, clk
}

func TestGuardNoSession(t *testing.T) {
	guard, _ := newTestGuard(t, 2*time.Hour, 15*time.Minute)

	if guard.IsValid() {
		t.Fatal("expected no session to be invalid")
	}
	if guard.Remaining() != nil {
		t.Fatal("expected nil remaining without a session")
	}
}

func TestGuardStartAndValidity(t *testing.T) {
	guard, clk := newTestGuard(t, 2*time.Hour, 15*time.Minute)
	guard.Start()

	if !guard.IsValid() {
		t.Fatal("expected fresh session to be valid")
	}

	clk.Advance(14 * time.Minute)
	if !guard.IsValid() {
		t.Fatal("expected session valid within idle window")
	}

	clk.Advance(time.Minute)
	if guard.IsValid() {
		t.Fatal("expected session invalid exactly at idle timeout")
	}
}

// The idle window slides with activity while the absolute deadline
// stays put: with a 120s lifetime and a 60s idle window, activity at
// 50s keeps the session alive through 110s but nothing survives 120s.
func TestGuardTouchExtendsIdleOnly(t *testing.T) {
	guard, clk := newTestGuard(t, 120*time.Second, 60*time.Second)
	guard.Start()

	clk.Advance(50 * time.Second)
	guard.Touch()

	clk.Advance(55 * time.Second) // t=105s, idle 55s
	if !guard.IsValid() {
		t.Fatal("expected session valid at t=105s after activity at t=50s")
	}

	clk.Advance(10 * time.Second) // t=115s, idle 65s
	if guard.IsValid() {
		t.Fatal("expected session idle-expired at t=115s")
	}
}

func TestGuardAbsoluteDeadlineWins(t *testing.T) {
	guard, clk := newTestGuard(t, 120*time.Second, 60*time.Second)
	guard.Start()

	// Constant activity cannot push past the absolute lifetime.
	for i := 0; i < 11; i++ {
		clk.Advance(10 * time.Second)
		guard.Touch()
	}
	if !guard.IsValid() {
		t.Fatal("expected session valid at t=110s with steady activity")
	}

	clk.Advance(10 * time.Second) // t=120s
	if guard.IsValid() {
		t.Fatal("expected session expired at absolute deadline despite activity")
	}
}

func TestGuardTouchWithoutSession(t *testing.T) {
	guard, _ := newTestGuard(t, 2*time.Hour, 15*time.Minute)

	// Must not create a session.
	guard.Touch()
	if guard.IsValid() {
		t.Fatal("expected touch without session to be a no-op")
	}
}

func TestGuardRemaining(t *testing.T) {
	guard, clk := newTestGuard(t, 2*time.Hour, 15*time.Minute)
	guard.Start()

	clk.Advance(10 * time.Minute)

	remaining := guard.Remaining()
	if remaining == nil {
		t.Fatal("expected remaining for a live session")
	}
	if remaining.Session != 110*time.Minute {
		t.Fatalf("expected 110m session remaining, got %v", remaining.Session)
	}
	if remaining.Idle != 5*time.Minute {
		t.Fatalf("expected 5m idle remaining, got %v", remaining.Idle)
	}

	// Past expiry both clamp at zero rather than going negative.
	clk.Advance(3 * time.Hour)
	remaining = guard.Remaining()
	if remaining == nil {
		t.Fatal("expected remaining struct until session is cleared")
	}
	if remaining.Session != 0 || remaining.Idle != 0 {
		t.Fatalf("expected zero remaining past expiry, got %+v", remaining)
	}
}

func TestGuardClear(t *testing.T) {
	guard, _ := newTestGuard(t, 2*time.Hour, 15*time.Minute)
	guard.Start()
	guard.Clear()

	if guard.IsValid() {
		t.Fatal("expected cleared session to be invalid")
	}
	if guard.Remaining() != nil {
		t.Fatal("expected nil remaining after clear")
	}

	// Clearing twice is harmless.
	guard.Clear()
}

func TestGuardRestartReplacesSession(t *testing.T) {
	guard, clk := newTestGuard(t, 120*time.Second, 60*time.Second)
	guard.Start()

	clk.Advance(110 * time.Second)
	guard.Start()

	if !guard.IsValid() {
		t.Fatal("expected restarted session to be valid")
	}
	remaining := guard.Remaining()
	if remaining.Session != 120*time.Second {
		t.Fatalf("expected full lifetime after restart, got %v", remaining.Session)
	}
}
