package latch

import (
	"fmt"
	"sync"

	"pkt.systems/pslog"
)

// GlobalScope is the scope name of the root lock in a Hierarchy. Passing it
// to Locker.Release releases the global frame.
const GlobalScope = ""

// Hierarchy is a two-level lock namespace: one global lock plus any number of
// named scope locks created on demand. Scope locks are never removed; a
// hierarchy is expected to live for the lifetime of the process.
type Hierarchy struct {
	cfg     config
	logger  pslog.Logger
	metrics *telemetry
	global  *RWLock

	mu     sync.Mutex
	scopes map[string]*RWLock
}

// NewHierarchy constructs a lock hierarchy. All locks created through it share
// the hierarchy's logger, clock and telemetry.
func NewHierarchy(opts ...Option) *Hierarchy {
	cfg := applyOptions(opts)
	h := &Hierarchy{
		cfg:    cfg,
		logger: subsystemLogger(cfg.logger, "latch.hierarchy"),
		scopes: make(map[string]*RWLock),
	}
	if cfg.metrics {
		h.metrics = newTelemetry(h.logger)
	}
	h.global = newRWLock("global", cfg, h.metrics)
	return h
}

// Global returns the root lock of the hierarchy.
func (h *Hierarchy) Global() *RWLock { return h.global }

// Scope returns the lock for the named scope, creating it on first use.
// The global scope name is reserved.
func (h *Hierarchy) Scope(name string) *RWLock {
	if name == GlobalScope {
		panic("latch: Scope called with the global scope name")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.scopes[name]
	if !ok {
		l = newRWLock(name, h.cfg, h.metrics)
		h.scopes[name] = l
	}
	return l
}

// lockFrame records one held lock on a Locker's stack. count tracks recursive
// acquisitions satisfied by the same underlying grant.
type lockFrame struct {
	scope string
	mode  Mode
	count int
}

// HeldLock describes one entry of a Locker's stack, outermost first.
type HeldLock struct {
	Scope string
	Mode  Mode
	Count int
}

// Locker is the per-thread face of a Hierarchy. It tracks which locks its
// owner holds, satisfies covered re-acquisitions without touching the
// underlying locks, and acquires the global lock implicitly before any scope
// lock. A Locker is confined to one goroutine and is not safe for concurrent
// use.
type Locker struct {
	id        HolderID
	hierarchy *Hierarchy
	logger    pslog.Logger
	frames    []lockFrame
	closed    bool
}

// NewLocker creates a Locker bound to the hierarchy with a fresh holder
// identity.
func NewLocker(h *Hierarchy) *Locker {
	id := NewHolderID()
	return &Locker{
		id:        id,
		hierarchy: h,
		logger:    subsystemLogger(h.cfg.logger, "latch.locker").With("holder", string(id)),
	}
}

// ID returns the holder identity used for exclusive and upgradable grants.
func (l *Locker) ID() HolderID { return l.id }

func (l *Locker) checkUsable(op string) {
	if l.closed {
		panic("latch: " + op + " on closed Locker")
	}
}

func (l *Locker) frameOf(scope string) *lockFrame {
	for i := len(l.frames) - 1; i >= 0; i-- {
		if l.frames[i].scope == scope {
			return &l.frames[i]
		}
	}
	return nil
}

func (l *Locker) lockIn(rw *RWLock, mode Mode) {
	switch mode {
	case ModeShared:
		rw.LockShared()
	case ModeUpgradable:
		rw.LockUpgradable(l.id)
	case ModeExclusive:
		rw.LockExclusive(l.id)
	default:
		panic(fmt.Sprintf("latch: cannot acquire in mode %s", mode))
	}
}

func (l *Locker) unlockIn(rw *RWLock, mode Mode) {
	switch mode {
	case ModeShared:
		rw.UnlockShared()
	case ModeUpgradable:
		rw.UnlockUpgradable(l.id)
	case ModeExclusive:
		rw.UnlockExclusive(l.id)
	}
}

func (l *Locker) lockFor(scope string) *RWLock {
	if scope == GlobalScope {
		return l.hierarchy.global
	}
	return l.hierarchy.Scope(scope)
}

// AcquireGlobal takes the global lock in the given mode. A re-acquisition in
// a covered mode increments the existing frame; acquiring a stronger mode
// escalates the global frame.
func (l *Locker) AcquireGlobal(mode Mode) {
	l.checkUsable("AcquireGlobal")
	if mode == ModeNone {
		panic("latch: AcquireGlobal with ModeNone")
	}
	f := l.frameOf(GlobalScope)
	if f == nil {
		l.lockIn(l.hierarchy.global, mode)
		l.pushGlobal(mode)
		return
	}
	if !Covers(f.mode, mode) {
		l.escalateGlobal(f, mode)
	}
	f.count++
}

// AcquireScope takes the named scope lock in the given mode, acquiring the
// global lock first if this Locker does not already hold it. The implicit
// global frame is a real frame; the caller releases it with
// Release(GlobalScope) like any explicit acquisition.
func (l *Locker) AcquireScope(scope string, mode Mode) {
	l.checkUsable("AcquireScope")
	if scope == GlobalScope {
		panic("latch: AcquireScope with the global scope name, use AcquireGlobal")
	}
	if mode == ModeNone {
		panic("latch: AcquireScope with ModeNone")
	}
	g := l.frameOf(GlobalScope)
	if g == nil {
		l.lockIn(l.hierarchy.global, mode)
		l.pushGlobal(mode)
	} else if !Covers(g.mode, mode) {
		l.escalateGlobal(g, mode)
	}
	f := l.frameOf(scope)
	if f != nil {
		if !Covers(f.mode, mode) {
			l.escalateScope(f, mode)
		}
		f.count++
		return
	}
	l.lockIn(l.lockFor(scope), mode)
	l.frames = append(l.frames, lockFrame{scope: scope, mode: mode, count: 1})
}

// pushGlobal inserts the global frame at the bottom of the stack so release
// order stays innermost first.
func (l *Locker) pushGlobal(mode Mode) {
	l.frames = append([]lockFrame{{scope: GlobalScope, mode: mode, count: 1}}, l.frames...)
}

// escalateGlobal raises the global frame to a stronger mode. An upgradable
// frame converts in place, keeping its reservation with no unlocked window.
// Any other escalation releases and re-acquires the underlying lock; scope
// locks held across it keep excluding conflicting access to their scopes,
// but the window in which no global lock is held is observable to other
// holders, hence the warning.
func (l *Locker) escalateGlobal(f *lockFrame, mode Mode) {
	if f.mode == ModeUpgradable && mode == ModeExclusive {
		l.logger.Debug("locker.global.upgrade")
		l.hierarchy.global.UpgradeToExclusive(l.id, 0)
		f.mode = mode
		return
	}
	l.logger.Warn("locker.global.escalate", "from", f.mode.String(), "to", mode.String())
	l.unlockIn(l.hierarchy.global, f.mode)
	l.lockIn(l.hierarchy.global, mode)
	f.mode = mode
}

// escalateScope raises a scope frame to a stronger mode. Only the innermost
// frame may escalate; anything else would reorder the stack under held locks.
func (l *Locker) escalateScope(f *lockFrame, mode Mode) {
	top := &l.frames[len(l.frames)-1]
	if top != f {
		panic(fmt.Sprintf("latch: cannot escalate %q to %s below other held locks", f.scope, mode))
	}
	l.logger.Warn("locker.scope.escalate", "scope", f.scope, "from", f.mode.String(), "to", mode.String())
	l.unlockIn(l.lockFor(f.scope), f.mode)
	l.lockIn(l.lockFor(f.scope), mode)
	f.mode = mode
}

// Release undoes one acquisition of the given scope. The underlying lock is
// unlocked only when the frame's recursion count reaches zero. Releasing the
// global frame while scope frames remain held breaks lock ordering and
// panics.
func (l *Locker) Release(scope string) {
	l.checkUsable("Release")
	f := l.frameOf(scope)
	if f == nil {
		panic(fmt.Sprintf("latch: Release of %q which is not held", scope))
	}
	if f.count == 1 && scope == GlobalScope && len(l.frames) > 1 {
		panic("latch: Release of global lock while scope locks are held")
	}
	f.count--
	if f.count > 0 {
		return
	}
	l.unlockIn(l.lockFor(scope), f.mode)
	l.removeFrame(scope)
}

// ReleaseGlobal is shorthand for Release(GlobalScope).
func (l *Locker) ReleaseGlobal() {
	l.Release(GlobalScope)
}

func (l *Locker) removeFrame(scope string) {
	for i := len(l.frames) - 1; i >= 0; i-- {
		if l.frames[i].scope == scope {
			l.frames = append(l.frames[:i], l.frames[i+1:]...)
			return
		}
	}
}

// TempRelease drops every underlying lock this Locker holds, runs fn, and
// re-acquires the same stack before returning. The stack is restored even if
// fn panics. Recursion counts survive untouched; only the underlying grants
// are given up. With nothing held, fn runs directly.
func (l *Locker) TempRelease(fn func()) {
	l.checkUsable("TempRelease")
	if len(l.frames) == 0 {
		fn()
		return
	}
	saved := l.frames
	l.logger.Debug("locker.temprelease", "frames", len(saved))
	for i := len(saved) - 1; i >= 0; i-- {
		l.unlockIn(l.lockFor(saved[i].scope), saved[i].mode)
	}
	l.frames = nil
	defer func() {
		for i := range saved {
			l.lockIn(l.lockFor(saved[i].scope), saved[i].mode)
		}
		l.frames = saved
	}()
	fn()
}

// IsLockedForRead reports whether this Locker's own holdings permit reading
// the scope: a frame on the scope itself, or any global frame. A scope-level
// writer must take the global lock in a mode >= Exclusive first, so holding
// the global lock in any mode excludes every writer in the hierarchy.
func (l *Locker) IsLockedForRead(scope string) bool {
	if scope == GlobalScope {
		return l.frameOf(GlobalScope) != nil
	}
	if f := l.frameOf(scope); f != nil {
		return true
	}
	g := l.frameOf(GlobalScope)
	return g != nil && Covers(g.mode, ModeShared)
}

// IsWriteLocked reports whether this Locker holds the global lock
// exclusively.
func (l *Locker) IsWriteLocked() bool {
	g := l.frameOf(GlobalScope)
	return g != nil && g.mode == ModeExclusive
}

// IsLockedForWrite reports whether this Locker's own holdings permit writing
// the scope.
func (l *Locker) IsLockedForWrite(scope string) bool {
	if l.IsWriteLocked() {
		return true
	}
	if scope == GlobalScope {
		return false
	}
	f := l.frameOf(scope)
	return f != nil && f.mode == ModeExclusive
}

// IsRecursive reports whether the innermost held lock has been acquired more
// than once.
func (l *Locker) IsRecursive() bool {
	if len(l.frames) == 0 {
		return false
	}
	return l.frames[len(l.frames)-1].count > 1
}

// Held returns a snapshot of the stack, outermost first.
func (l *Locker) Held() []HeldLock {
	out := make([]HeldLock, len(l.frames))
	for i, f := range l.frames {
		out[i] = HeldLock{Scope: f.scope, Mode: f.mode, Count: f.count}
	}
	return out
}

// Close retires the Locker. Closing with locks still held is a leak in the
// caller; it is logged and then panics so the owning goroutine cannot silently
// strand waiters. Close is idempotent once the stack is empty.
func (l *Locker) Close() {
	if l.closed {
		return
	}
	if len(l.frames) > 0 {
		for _, f := range l.frames {
			l.logger.Error("locker.close.leaked", "scope", f.scope, "mode", f.mode.String(), "count", f.count)
		}
		panic(fmt.Sprintf("latch: Close with %d locks still held", len(l.frames)))
	}
	l.closed = true
}
