package clock

import "time"

// Clock abstracts time-related functions so lock timing behaviour can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
	NewStopwatch() Stopwatch
}

// Stopwatch measures monotonic elapsed time from its creation. Wait-latency
// measurements and bounded-wait deadlines use a Stopwatch rather than wall
// clock deltas so they are immune to clock adjustments.
type Stopwatch interface {
	Elapsed() time.Duration
}

// Real implements Clock using the standard library.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// After mirrors time.After while satisfying the Clock interface.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Sleep blocks for at least the supplied duration.
func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}

// NewStopwatch returns a stopwatch backed by the runtime monotonic clock.
func (Real) NewStopwatch() Stopwatch {
	return realStopwatch{start: time.Now()}
}

type realStopwatch struct {
	// time.Time carries a monotonic reading, so Sub on it is monotonic.
	start time.Time
}

func (s realStopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}
