package latch

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Swaps the global meter provider, so no t.Parallel here.
func TestTelemetryRecordsGrantsAndAdmissions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	l := NewRWLock("metered", WithMetrics(true))
	id := NewHolderID()
	l.LockExclusive(id)
	l.UnlockExclusive(id)
	l.LockShared()
	l.UnlockShared()

	gate := NewTicketHolder("metered-gate", 1, WithMetrics(true))
	tk := gate.WaitForTicket()
	tk.Release()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	for _, name := range []string{
		"latch.rwlock.grant",
		"latch.tickets.admitted",
		"latch.tickets.outstanding",
	} {
		if _, ok := byName[name]; !ok {
			t.Errorf("instrument %q recorded nothing", name)
		}
	}

	grants, ok := byName["latch.rwlock.grant"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("latch.rwlock.grant is %T, want Sum[int64]", byName["latch.rwlock.grant"].Data)
	}
	var total int64
	for _, dp := range grants.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("grant count = %d, want 2", total)
	}

	outstanding, ok := byName["latch.tickets.outstanding"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("latch.tickets.outstanding is %T, want Sum[int64]", byName["latch.tickets.outstanding"].Data)
	}
	var net int64
	for _, dp := range outstanding.DataPoints {
		net += dp.Value
	}
	if net != 0 {
		t.Errorf("net outstanding = %d after release, want 0", net)
	}
}

// Metrics disabled must be a true noop, not a nil dereference.
func TestTelemetryDisabledIsSafe(t *testing.T) {
	t.Parallel()
	l := NewRWLock("unmetered")
	id := NewHolderID()
	l.LockExclusive(id)
	l.UnlockExclusive(id)
	gate := NewTicketHolder("unmetered-gate", 1)
	gate.WaitForTicket().Release()
}
