package latch

import (
	"fmt"
	"sync"
	"time"

	"pkt.systems/latch/internal/clock"
	"pkt.systems/latch/internal/uuidv7"
	"pkt.systems/pslog"
)

// HolderID identifies the holder of an upgradable or exclusive grant.
// Shared holders are anonymous and tracked only by count.
type HolderID string

// NewHolderID mints a time-ordered holder identity.
func NewHolderID() HolderID {
	return HolderID(uuidv7.NewString())
}

const slowWaitWarn = 1 * time.Second

// waiter is a parked acquisition request. The granting side sets granted and
// signals ch while holding the lock's mutex; the waiting side consumes ch.
type waiter struct {
	owner   HolderID
	mode    Mode
	granted bool
	ch      chan struct{}
}

func newWaiter(owner HolderID, mode Mode) *waiter {
	return &waiter{owner: owner, mode: mode, ch: make(chan struct{}, 1)}
}

// upgradeRequest is the single in-flight upgrade-to-exclusive request.
// ownShared counts the caller's own shared holds on this lock, which the
// upgrade treats as already drained.
type upgradeRequest struct {
	owner     HolderID
	ownShared int
	granted   bool
	ch        chan struct{}
}

// RWLock is a writer-priority reader/writer lock with an upgradable mode.
//
// Shared holders coexist with each other and with the single upgradable
// holder. An exclusive request registers as pending immediately, and while
// any exclusive request is pending no new shared or upgradable grant is made
// ("writers are greedy"). An upgrade-to-exclusive request is deliberately
// exempt from that rule: it only waits for shared holders to drain and does
// not hold up new shared lockers while it waits.
//
// Waiters of the same mode are served FIFO. The zero value is not usable;
// construct with NewRWLock.
type RWLock struct {
	name    string
	logger  pslog.Logger
	clock   clock.Clock
	metrics *telemetry

	mu       sync.Mutex
	readers  int      // shared holders, including an upgrader's own holds
	writer   HolderID // exclusive holder, empty when none
	upgrader HolderID // upgradable holder, empty when none

	readWaiters       []*waiter
	writeWaiters      []*waiter
	upgradableWaiters []*waiter
	upgrade           *upgradeRequest
}

// NewRWLock constructs a reader/writer lock. The name is diagnostic only; it
// appears in log events and metric attributes.
func NewRWLock(name string, opts ...Option) *RWLock {
	cfg := applyOptions(opts)
	var m *telemetry
	if cfg.metrics {
		m = newTelemetry(subsystemLogger(cfg.logger, "latch.rwlock"))
	}
	return newRWLock(name, cfg, m)
}

func newRWLock(name string, cfg config, m *telemetry) *RWLock {
	return &RWLock{
		name:    name,
		logger:  subsystemLogger(cfg.logger, "latch.rwlock"),
		clock:   cfg.clock,
		metrics: m,
	}
}

// Name returns the diagnostic name supplied at construction.
func (l *RWLock) Name() string {
	return l.name
}

// RWLockStats is a point-in-time snapshot of lock state, intended for
// diagnostics and contention profiling.
type RWLockStats struct {
	SharedHolders  int
	HasUpgrader    bool
	HasWriter      bool
	PendingReaders int
	PendingWriters int
	UpgradePending bool
}

// Stats snapshots the current holder and waiter counts.
func (l *RWLock) Stats() RWLockStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RWLockStats{
		SharedHolders:  l.readers,
		HasUpgrader:    l.upgrader != "",
		HasWriter:      l.writer != "",
		PendingReaders: len(l.readWaiters),
		PendingWriters: len(l.writeWaiters),
		UpgradePending: l.upgrade != nil,
	}
}

// LockShared blocks until the lock can be held shared: no exclusive holder
// and no pending exclusive request ahead of it. Re-entrancy is the Locker's
// business, not the lock's.
func (l *RWLock) LockShared() {
	l.mu.Lock()
	if l.sharedGrantableLocked() {
		l.readers++
		l.mu.Unlock()
		l.metrics.recordGrant(l.name, ModeShared)
		return
	}
	w := newWaiter("", ModeShared)
	l.readWaiters = append(l.readWaiters, w)
	l.mu.Unlock()
	l.block(w)
}

// LockExclusive blocks until the lock is fully free, registering as a
// pending writer immediately so later shared requests queue behind it.
func (l *RWLock) LockExclusive(owner HolderID) {
	l.mu.Lock()
	if l.exclusiveGrantableLocked() {
		l.writer = owner
		l.mu.Unlock()
		l.metrics.recordGrant(l.name, ModeExclusive)
		return
	}
	w := newWaiter(owner, ModeExclusive)
	l.writeWaiters = append(l.writeWaiters, w)
	l.mu.Unlock()
	l.block(w)
}

// LockUpgradable blocks until there is no exclusive holder, no pending
// exclusive request, and no other upgradable holder.
func (l *RWLock) LockUpgradable(owner HolderID) {
	l.mu.Lock()
	if l.upgradableGrantableLocked() {
		l.upgrader = owner
		l.mu.Unlock()
		l.metrics.recordGrant(l.name, ModeUpgradable)
		return
	}
	w := newWaiter(owner, ModeUpgradable)
	l.upgradableWaiters = append(l.upgradableWaiters, w)
	l.mu.Unlock()
	l.block(w)
}

// UpgradeToExclusive converts the upgradable hold owned by owner into an
// exclusive hold. ownShared is the number of shared holds the caller itself
// still has on this lock; the upgrade treats those as drained, so an
// upgrader that also reads completes near-instantly when no one else holds
// shared. The pending upgrade does not block new shared lockers, and it
// bypasses the pending-writer queue: the upgrader already owns the resource.
// After the upgrade completes the hold is released with UnlockExclusive.
func (l *RWLock) UpgradeToExclusive(owner HolderID, ownShared int) {
	if ownShared < 0 {
		panic("latch: negative ownShared in UpgradeToExclusive")
	}
	l.mu.Lock()
	if l.upgrader != owner {
		l.mu.Unlock()
		panic(fmt.Sprintf("latch: UpgradeToExclusive on %q without holding upgradable", l.name))
	}
	if l.upgrade != nil {
		l.mu.Unlock()
		panic(fmt.Sprintf("latch: concurrent UpgradeToExclusive on %q", l.name))
	}
	if l.writer != "" {
		// Exclusive is never granted while an upgradable hold exists.
		l.mu.Unlock()
		panic(fmt.Sprintf("latch: writer active under upgradable hold on %q", l.name))
	}
	if l.readers <= ownShared {
		l.upgrader = ""
		l.writer = owner
		l.mu.Unlock()
		l.metrics.recordGrant(l.name, ModeExclusive)
		return
	}
	req := &upgradeRequest{owner: owner, ownShared: ownShared, ch: make(chan struct{}, 1)}
	l.upgrade = req
	l.mu.Unlock()

	sw := l.clock.NewStopwatch()
	l.logger.Trace("rwlock.upgrade.wait", "lock", l.name, "own_shared", ownShared)
	<-req.ch
	l.metrics.recordGrant(l.name, ModeExclusive)
	l.observeWait(ModeExclusive, sw.Elapsed(), "rwlock.upgrade.slow")
}

// UnlockShared releases one shared hold. Calling it without a matching hold
// is a usage error and panics.
func (l *RWLock) UnlockShared() {
	l.mu.Lock()
	if l.readers == 0 {
		l.mu.Unlock()
		panic(fmt.Sprintf("latch: UnlockShared of %q without matching LockShared", l.name))
	}
	l.readers--
	l.grantLocked()
	l.mu.Unlock()
}

// UnlockExclusive releases the exclusive hold owned by owner.
func (l *RWLock) UnlockExclusive(owner HolderID) {
	l.mu.Lock()
	if l.writer == "" || l.writer != owner {
		l.mu.Unlock()
		panic(fmt.Sprintf("latch: UnlockExclusive of %q by non-holder", l.name))
	}
	l.writer = ""
	l.grantLocked()
	l.mu.Unlock()
}

// UnlockUpgradable releases the upgradable hold owned by owner.
func (l *RWLock) UnlockUpgradable(owner HolderID) {
	l.mu.Lock()
	if l.upgrader == "" || l.upgrader != owner {
		l.mu.Unlock()
		panic(fmt.Sprintf("latch: UnlockUpgradable of %q by non-holder", l.name))
	}
	l.upgrader = ""
	l.grantLocked()
	l.mu.Unlock()
}

// TryLock attempts to acquire the lock in the given mode, waiting at most
// timeout. A zero or negative timeout makes it a pure probe. The owner is
// recorded for upgradable and exclusive grants and ignored for shared. When
// a grant races the timeout, the grant wins and TryLock reports success.
func (l *RWLock) TryLock(owner HolderID, mode Mode, timeout time.Duration) bool {
	l.mu.Lock()
	switch mode {
	case ModeShared:
		if l.sharedGrantableLocked() {
			l.readers++
			l.mu.Unlock()
			l.metrics.recordGrant(l.name, mode)
			return true
		}
	case ModeUpgradable:
		if l.upgradableGrantableLocked() {
			l.upgrader = owner
			l.mu.Unlock()
			l.metrics.recordGrant(l.name, mode)
			return true
		}
	case ModeExclusive:
		if l.exclusiveGrantableLocked() {
			l.writer = owner
			l.mu.Unlock()
			l.metrics.recordGrant(l.name, mode)
			return true
		}
	default:
		l.mu.Unlock()
		panic(fmt.Sprintf("latch: TryLock with mode %v", mode))
	}
	if timeout <= 0 {
		l.mu.Unlock()
		return false
	}

	w := newWaiter(owner, mode)
	switch mode {
	case ModeShared:
		l.readWaiters = append(l.readWaiters, w)
	case ModeUpgradable:
		l.upgradableWaiters = append(l.upgradableWaiters, w)
	case ModeExclusive:
		l.writeWaiters = append(l.writeWaiters, w)
	}
	l.mu.Unlock()

	select {
	case <-w.ch:
		l.metrics.recordGrant(l.name, mode)
		return true
	case <-l.clock.After(timeout):
	}

	l.mu.Lock()
	if w.granted {
		// Granted between the timer firing and requeue removal.
		l.mu.Unlock()
		l.metrics.recordGrant(l.name, mode)
		return true
	}
	l.removeWaiterLocked(w)
	// Abandoning a pending writer may unblock queued readers.
	l.grantLocked()
	l.mu.Unlock()
	l.logger.Trace("rwlock.trylock.timeout", "lock", l.name, "mode", mode.String(), "timeout", timeout)
	return false
}

// sharedGrantableLocked: no writer active and no writer pending. A pending
// upgrade deliberately does not count: upgrades are not greedy.
func (l *RWLock) sharedGrantableLocked() bool {
	return l.writer == "" && len(l.writeWaiters) == 0
}

func (l *RWLock) upgradableGrantableLocked() bool {
	return l.writer == "" && l.upgrader == "" && len(l.writeWaiters) == 0
}

func (l *RWLock) exclusiveGrantableLocked() bool {
	return l.writer == "" && l.upgrader == "" && l.readers == 0 &&
		len(l.writeWaiters) == 0 && l.upgrade == nil
}

// grantLocked wakes every waiter that is eligible under the compatibility
// rules after a state change. Grant order: the pending upgrade first (its
// holder already owns the resource), then the longest-waiting writer, and
// only when no writer is pending, all readers plus at most one upgrader.
func (l *RWLock) grantLocked() {
	if l.upgrade != nil {
		if l.writer == "" && l.readers <= l.upgrade.ownShared {
			req := l.upgrade
			l.upgrade = nil
			l.upgrader = ""
			l.writer = req.owner
			req.granted = true
			req.ch <- struct{}{}
			return
		}
		// Shared coexists with a pending upgrade, so readers that queued
		// behind a since-abandoned writer are eligible again.
		if l.writer == "" && len(l.writeWaiters) == 0 {
			for _, w := range l.readWaiters {
				l.readers++
				w.granted = true
				w.ch <- struct{}{}
			}
			l.readWaiters = nil
		}
		return
	}
	if l.writer != "" {
		return
	}
	if len(l.writeWaiters) > 0 {
		if l.readers == 0 && l.upgrader == "" {
			w := l.writeWaiters[0]
			l.writeWaiters = l.writeWaiters[1:]
			l.writer = w.owner
			w.granted = true
			w.ch <- struct{}{}
		}
		return
	}
	if len(l.readWaiters) > 0 {
		for _, w := range l.readWaiters {
			l.readers++
			w.granted = true
			w.ch <- struct{}{}
		}
		l.readWaiters = nil
	}
	if l.upgrader == "" && len(l.upgradableWaiters) > 0 {
		w := l.upgradableWaiters[0]
		l.upgradableWaiters = l.upgradableWaiters[1:]
		l.upgrader = w.owner
		w.granted = true
		w.ch <- struct{}{}
	}
}

func (l *RWLock) removeWaiterLocked(w *waiter) {
	var queue *[]*waiter
	switch w.mode {
	case ModeShared:
		queue = &l.readWaiters
	case ModeUpgradable:
		queue = &l.upgradableWaiters
	case ModeExclusive:
		queue = &l.writeWaiters
	default:
		return
	}
	for i, candidate := range *queue {
		if candidate == w {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return
		}
	}
}

// block parks the caller until its waiter is granted, measuring the wait.
func (l *RWLock) block(w *waiter) {
	sw := l.clock.NewStopwatch()
	l.logger.Trace("rwlock.acquire.wait", "lock", l.name, "mode", w.mode.String())
	<-w.ch
	l.metrics.recordGrant(l.name, w.mode)
	l.observeWait(w.mode, sw.Elapsed(), "rwlock.acquire.slow")
}

func (l *RWLock) observeWait(mode Mode, elapsed time.Duration, slowEvent string) {
	l.metrics.recordLockWait(l.name, mode, elapsed)
	if elapsed >= slowWaitWarn {
		l.logger.Warn(slowEvent, "lock", l.name, "mode", mode.String(), "waited", elapsed)
	}
}
