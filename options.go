package latch

import (
	"pkt.systems/latch/internal/clock"
	"pkt.systems/pslog"
)

// SubsystemKey is the canonical key for subsystem tags on log entries.
const SubsystemKey = pslog.TrustedString("sys")

type config struct {
	logger  pslog.Logger
	clock   clock.Clock
	metrics bool
}

func defaultConfig() config {
	return config{
		logger: pslog.NoopLogger(),
		clock:  clock.Real{},
	}
}

// Option configures an RWLock, Hierarchy, or TicketHolder at construction.
type Option func(*config)

// WithLogger attaches a logger. The default is a noop logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock substitutes the time source used for bounded waits and
// wait-latency measurement. The default is the real clock.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithMetrics enables OpenTelemetry instrument recording. Recording is off
// by default; the embedding process wires meter providers and exporters.
func WithMetrics(enabled bool) Option {
	return func(c *config) {
		c.metrics = enabled
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func subsystemLogger(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		return pslog.NoopLogger()
	}
	return logger.With(SubsystemKey, subsystem)
}
