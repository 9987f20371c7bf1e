package latch

import (
	"fmt"
	"sync"
	"time"

	"pkt.systems/latch/internal/clock"
	"pkt.systems/pslog"
)

// TicketHolder admits at most a fixed number of concurrent holders. Arrivals
// beyond capacity queue in FIFO order. Capacity can be resized while tickets
// are outstanding; shrinking below the outstanding count simply stops new
// admissions until enough tickets come back.
type TicketHolder struct {
	name    string
	logger  pslog.Logger
	clock   clock.Clock
	metrics *telemetry

	mu          sync.Mutex
	capacity    int
	outstanding int
	waiters     []*ticketWaiter
}

type ticketWaiter struct {
	granted bool
	ch      chan struct{}
}

// Ticket is one unit of admission. Release returns it to the holder exactly
// once; further calls are no-ops.
type Ticket struct {
	holder  *TicketHolder
	release sync.Once
}

// NewTicketHolder constructs an admission gate with the given capacity,
// which must be at least 1. A gate can still be drained to zero later via
// Resize.
func NewTicketHolder(name string, capacity int, opts ...Option) *TicketHolder {
	if capacity < 1 {
		panic(fmt.Sprintf("latch: NewTicketHolder with capacity %d, need at least 1", capacity))
	}
	cfg := applyOptions(opts)
	h := &TicketHolder{
		name:     name,
		logger:   subsystemLogger(cfg.logger, "latch.tickets").With("gate", name),
		clock:    cfg.clock,
		capacity: capacity,
	}
	if cfg.metrics {
		h.metrics = newTelemetry(h.logger)
	}
	return h
}

// WaitForTicket blocks until a ticket is available and returns it.
func (h *TicketHolder) WaitForTicket() *Ticket {
	h.mu.Lock()
	if h.admitLocked() {
		h.mu.Unlock()
		h.metrics.recordAdmission(h.name, 0)
		return &Ticket{holder: h}
	}
	w := &ticketWaiter{ch: make(chan struct{}, 1)}
	h.waiters = append(h.waiters, w)
	h.mu.Unlock()

	sw := h.clock.NewStopwatch()
	h.logger.Trace("tickets.wait", "outstanding", h.Outstanding())
	<-w.ch
	waited := sw.Elapsed()
	if waited >= slowWaitWarn {
		h.logger.Warn("tickets.wait.slow", "waited", waited.String())
	}
	h.metrics.recordAdmission(h.name, waited)
	return &Ticket{holder: h}
}

// TryWaitForTicket waits up to timeout for a ticket. A timeout of zero or
// less probes without blocking. The second return is false when no ticket
// was obtained.
func (h *TicketHolder) TryWaitForTicket(timeout time.Duration) (*Ticket, bool) {
	h.mu.Lock()
	if h.admitLocked() {
		h.mu.Unlock()
		h.metrics.recordAdmission(h.name, 0)
		return &Ticket{holder: h}, true
	}
	if timeout <= 0 {
		h.mu.Unlock()
		return nil, false
	}
	w := &ticketWaiter{ch: make(chan struct{}, 1)}
	h.waiters = append(h.waiters, w)
	h.mu.Unlock()

	sw := h.clock.NewStopwatch()
	select {
	case <-w.ch:
		h.metrics.recordAdmission(h.name, sw.Elapsed())
		return &Ticket{holder: h}, true
	case <-h.clock.After(timeout):
	}
	h.mu.Lock()
	if w.granted {
		// Admission won the race against the timer; keep the ticket.
		h.mu.Unlock()
		h.metrics.recordAdmission(h.name, sw.Elapsed())
		return &Ticket{holder: h}, true
	}
	h.removeWaiterLocked(w)
	h.mu.Unlock()
	return nil, false
}

// admitLocked consumes one unit of capacity if any is free.
func (h *TicketHolder) admitLocked() bool {
	if h.outstanding >= h.capacity {
		return false
	}
	h.outstanding++
	if h.outstanding > h.capacity {
		panic(fmt.Sprintf("latch: gate %q outstanding %d exceeds capacity %d", h.name, h.outstanding, h.capacity))
	}
	return true
}

func (h *TicketHolder) removeWaiterLocked(w *ticketWaiter) {
	for i, q := range h.waiters {
		if q == w {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

// put returns one ticket and hands it to the next waiter if the freed
// capacity allows.
func (h *TicketHolder) put() {
	h.mu.Lock()
	if h.outstanding <= 0 {
		h.mu.Unlock()
		panic(fmt.Sprintf("latch: gate %q released more tickets than were taken", h.name))
	}
	h.outstanding--
	h.grantLocked()
	h.mu.Unlock()
	h.metrics.recordRelease(h.name)
}

// grantLocked hands out tickets to queued waiters while capacity is free.
func (h *TicketHolder) grantLocked() {
	for len(h.waiters) > 0 && h.outstanding < h.capacity {
		w := h.waiters[0]
		h.waiters = h.waiters[1:]
		h.outstanding++
		w.granted = true
		w.ch <- struct{}{}
	}
}

// Release returns the ticket to its holder. Safe to call more than once.
func (t *Ticket) Release() {
	t.release.Do(t.holder.put)
}

// Resize changes the gate's capacity. Growing wakes queued waiters
// immediately; shrinking never revokes outstanding tickets.
func (h *TicketHolder) Resize(capacity int) {
	if capacity < 0 {
		panic(fmt.Sprintf("latch: Resize with negative capacity %d", capacity))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.capacity
	h.capacity = capacity
	h.logger.Debug("tickets.resize", "from", old, "to", capacity)
	h.grantLocked()
}

// Outstanding returns the number of tickets currently held.
func (h *TicketHolder) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outstanding
}

// Capacity returns the current capacity.
func (h *TicketHolder) Capacity() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity
}

// Available returns the number of tickets that could be taken without
// waiting. Never negative, even right after a shrink.
func (h *TicketHolder) Available() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outstanding >= h.capacity {
		return 0
	}
	return h.capacity - h.outstanding
}
