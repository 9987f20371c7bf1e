package latch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/latch/internal/clock"
)

// Many guests check in and out of a gate far smaller than the crowd; the
// number of simultaneous holders must never exceed capacity.
func TestTicketHolderNeverOvershootsCapacity(t *testing.T) {
	t.Parallel()
	const capacity = 3
	const guests = 10
	const checkIns = 1000

	gate := NewTicketHolder("hotel", capacity)
	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < guests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < checkIns; j++ {
				tk := gate.WaitForTicket()
				n := inside.Add(1)
				for {
					prev := maxInside.Load()
					if n <= prev || maxInside.CompareAndSwap(prev, n) {
						break
					}
				}
				inside.Add(-1)
				tk.Release()
			}
		}()
	}
	wg.Wait()
	if got := maxInside.Load(); got > capacity {
		t.Fatalf("observed %d simultaneous holders, capacity %d", got, capacity)
	}
	if got := gate.Outstanding(); got != 0 {
		t.Fatalf("Outstanding = %d after all releases", got)
	}
	// The gate should actually have been used up to capacity at least once.
	if got := maxInside.Load(); got < capacity {
		t.Logf("peak concurrency %d never reached capacity %d", got, capacity)
	}
}

func TestTicketHolderBlocksAtCapacity(t *testing.T) {
	t.Parallel()
	gate := NewTicketHolder("gate", 1)
	first := gate.WaitForTicket()

	got := make(chan *Ticket, 1)
	go func() { got <- gate.WaitForTicket() }()
	select {
	case <-got:
		t.Fatal("second ticket granted beyond capacity")
	case <-time.After(50 * time.Millisecond):
	}
	first.Release()
	select {
	case tk := <-got:
		tk.Release()
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never admitted after release")
	}
}

func TestTicketHolderTryWait(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Unix(0, 0))
	gate := NewTicketHolder("try", 1, WithClock(clk))
	first, ok := gate.TryWaitForTicket(0)
	if !ok {
		t.Fatal("probe failed on an empty gate")
	}
	if _, ok := gate.TryWaitForTicket(0); ok {
		t.Fatal("probe succeeded on a full gate")
	}

	res := make(chan bool, 1)
	go func() {
		_, ok := gate.TryWaitForTicket(100 * time.Millisecond)
		res <- ok
	}()
	waitUntil(t, func() bool { return clk.Pending() == 1 }, "timer to arm")
	clk.Advance(100 * time.Millisecond)
	if <-res {
		t.Fatal("timed-out wait reported a ticket")
	}
	if got := gate.Available(); got != 0 {
		t.Fatalf("Available = %d with one ticket outstanding", got)
	}
	first.Release()
	if got := gate.Available(); got != 1 {
		t.Fatalf("Available = %d after release", got)
	}
}

func TestTicketHolderGrantBeatsTimeout(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Unix(0, 0))
	gate := NewTicketHolder("race", 1, WithClock(clk))
	first := gate.WaitForTicket()

	res := make(chan bool, 1)
	go func() {
		tk, ok := gate.TryWaitForTicket(time.Second)
		if ok {
			tk.Release()
		}
		res <- ok
	}()
	waitUntil(t, func() bool { return clk.Pending() == 1 }, "timer to arm")
	first.Release()
	if !<-res {
		t.Fatal("waiter lost the ticket it was handed")
	}
}

func TestTicketReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	gate := NewTicketHolder("once", 2)
	tk := gate.WaitForTicket()
	tk.Release()
	tk.Release()
	tk.Release()
	if got := gate.Outstanding(); got != 0 {
		t.Fatalf("Outstanding = %d after repeated Release of one ticket", got)
	}
	if got := gate.Available(); got != 2 {
		t.Fatalf("Available = %d, double release leaked capacity", got)
	}
}

func TestTicketHolderResize(t *testing.T) {
	t.Parallel()
	gate := NewTicketHolder("resize", 1)
	first := gate.WaitForTicket()

	admitted := make(chan *Ticket, 1)
	go func() { admitted <- gate.WaitForTicket() }()
	select {
	case <-admitted:
		t.Fatal("ticket granted beyond capacity")
	case <-time.After(50 * time.Millisecond):
	}

	gate.Resize(2) // growing admits the queued waiter
	var second *Ticket
	select {
	case second = <-admitted:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not admitted after growing the gate")
	}

	gate.Resize(1) // shrink below outstanding: no revocation, no admissions
	if got := gate.Outstanding(); got != 2 {
		t.Fatalf("Outstanding = %d after shrink, tickets were revoked", got)
	}
	if got := gate.Available(); got != 0 {
		t.Fatalf("Available = %d after shrink below outstanding", got)
	}
	if _, ok := gate.TryWaitForTicket(0); ok {
		t.Fatal("admission allowed while outstanding exceeds capacity")
	}

	first.Release()
	if _, ok := gate.TryWaitForTicket(0); ok {
		t.Fatal("admission allowed while the gate is still at capacity")
	}
	second.Release()
	if got := gate.Available(); got != 1 {
		t.Fatalf("Available = %d once outstanding drained below capacity", got)
	}
}

func TestTicketHolderPanics(t *testing.T) {
	t.Parallel()
	mustPanic(t, "negative capacity", func() { NewTicketHolder("bad", -1) })
	// Capacity 0 would block every WaitForTicket forever.
	mustPanic(t, "zero capacity", func() { NewTicketHolder("bad", 0) })
	gate := NewTicketHolder("bad-resize", 1)
	mustPanic(t, "negative resize", func() { gate.Resize(-1) })
	gate.Resize(0) // draining an existing gate stays legal
	if got := gate.Capacity(); got != 0 {
		t.Fatalf("Capacity = %d after Resize(0)", got)
	}
}
