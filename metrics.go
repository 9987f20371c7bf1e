package latch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

// telemetry wraps the OpenTelemetry instruments recorded by locks and ticket
// holders. All methods are nil-safe so instrumentation stays optional; the
// embedding process is responsible for wiring a meter provider and exporters.
type telemetry struct {
	grants      metric.Int64Counter
	lockWait    metric.Float64Histogram
	admissions  metric.Int64Counter
	ticketWait  metric.Float64Histogram
	outstanding metric.Int64UpDownCounter
}

func newTelemetry(logger pslog.Logger) *telemetry {
	meter := otel.Meter("pkt.systems/latch")
	m := &telemetry{}
	var err error

	m.grants, err = meter.Int64Counter(
		"latch.rwlock.grant",
		metric.WithDescription("Lock grants by mode"),
	)
	logMetricInitError(logger, "latch.rwlock.grant", err)

	m.lockWait, err = meter.Float64Histogram(
		"latch.rwlock.wait",
		metric.WithDescription("Time spent waiting for a lock grant"),
		metric.WithUnit("s"),
	)
	logMetricInitError(logger, "latch.rwlock.wait", err)

	m.admissions, err = meter.Int64Counter(
		"latch.tickets.admitted",
		metric.WithDescription("Tickets handed out by the admission gate"),
	)
	logMetricInitError(logger, "latch.tickets.admitted", err)

	m.ticketWait, err = meter.Float64Histogram(
		"latch.tickets.wait",
		metric.WithDescription("Time spent waiting for a ticket"),
		metric.WithUnit("s"),
	)
	logMetricInitError(logger, "latch.tickets.wait", err)

	m.outstanding, err = meter.Int64UpDownCounter(
		"latch.tickets.outstanding",
		metric.WithDescription("Tickets currently outstanding"),
	)
	logMetricInitError(logger, "latch.tickets.outstanding", err)

	return m
}

func (m *telemetry) recordGrant(lock string, mode Mode) {
	if m == nil || m.grants == nil {
		return
	}
	m.grants.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("latch.lock", lock),
		attribute.String("latch.mode", mode.String()),
	))
}

func (m *telemetry) recordLockWait(lock string, mode Mode, waited time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Record(context.Background(), waited.Seconds(), metric.WithAttributes(
		attribute.String("latch.lock", lock),
		attribute.String("latch.mode", mode.String()),
	))
}

func (m *telemetry) recordAdmission(gate string, waited time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("latch.gate", gate))
	if m.admissions != nil {
		m.admissions.Add(context.Background(), 1, attrs)
	}
	if m.ticketWait != nil {
		m.ticketWait.Record(context.Background(), waited.Seconds(), attrs)
	}
	if m.outstanding != nil {
		m.outstanding.Add(context.Background(), 1, attrs)
	}
}

func (m *telemetry) recordRelease(gate string) {
	if m == nil || m.outstanding == nil {
		return
	}
	m.outstanding.Add(context.Background(), -1, metric.WithAttributes(
		attribute.String("latch.gate", gate),
	))
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
