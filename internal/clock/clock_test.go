package clock_test

import (
	"testing"
	"time"

	"pkt.systems/latch/internal/clock"
)

func TestRealNowUsesUTC(t *testing.T) {
	t.Parallel()

	now := clock.Real{}.Now()
	if loc := now.Location(); loc != time.UTC {
		t.Fatalf("expected UTC location, got %v", loc)
	}
	if delta := time.Since(now); delta < 0 || delta > time.Second {
		t.Fatalf("unexpected Now delta: %v", delta)
	}
}

func TestRealAfterDeliversOnce(t *testing.T) {
	t.Parallel()

	ch := clock.Real{}.After(10 * time.Millisecond)
	select {
	case <-ch:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("After did not trigger within timeout")
	}
}

func TestRealStopwatchElapsedGrows(t *testing.T) {
	t.Parallel()

	sw := clock.Real{}.NewStopwatch()
	time.Sleep(5 * time.Millisecond)
	if elapsed := sw.Elapsed(); elapsed < 5*time.Millisecond {
		t.Fatalf("stopwatch elapsed too short: %v", elapsed)
	}
}

func TestManualAdvanceFiresTimers(t *testing.T) {
	t.Parallel()

	m := clock.NewManual(time.Unix(1000, 0))
	ch := m.After(time.Second)
	if m.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", m.Pending())
	}
	m.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}
	m.Advance(500 * time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("timer did not fire at its deadline")
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", m.Pending())
	}
}

func TestManualStopwatchTracksAdvance(t *testing.T) {
	t.Parallel()

	m := clock.NewManual(time.Unix(1000, 0))
	sw := m.NewStopwatch()
	if got := sw.Elapsed(); got != 0 {
		t.Fatalf("expected zero elapsed, got %v", got)
	}
	m.Advance(42 * time.Millisecond)
	if got := sw.Elapsed(); got != 42*time.Millisecond {
		t.Fatalf("expected 42ms elapsed, got %v", got)
	}
}
