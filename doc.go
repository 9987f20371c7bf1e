// Package latch provides in-process synchronization primitives for workloads
// that partition state into a two-level hierarchy: a reader/writer lock with
// an upgradable mode and writer priority, a per-goroutine Locker that layers
// hierarchical lock ordering and recursion tracking on top of it, and a
// fixed-capacity TicketHolder for admission control.
//
// # Modes
//
// Locks are taken in one of three modes. ModeShared admits any number of
// concurrent holders. ModeExclusive admits one. ModeUpgradable is a shared
// grant with a reservation: it coexists with ModeShared holders, excludes
// other upgradable holders, and can be converted in place to ModeExclusive
// without going through the writer queue.
//
//	l := latch.NewRWLock("catalog")
//	id := latch.NewHolderID()
//	l.LockUpgradable(id)
//	// read, decide a write is needed
//	l.UpgradeToExclusive(id, 0)
//	// write
//	l.UnlockExclusive(id)
//
// Writers are greedy: once an exclusive acquisition is queued, new shared and
// upgradable requests wait behind it even while the current shared holders
// drain. An upgrade is not greedy; it only waits for the shared holders that
// were present when it was requested.
//
// # Hierarchies
//
// A Hierarchy is one global lock plus named scope locks created on demand. A
// Locker acquires the global lock before any scope lock, counts covered
// re-acquisitions instead of re-locking, and can temporarily release
// everything it holds around a blocking operation:
//
//	h := latch.NewHierarchy(latch.WithLogger(logger))
//	lk := latch.NewLocker(h)
//	defer lk.Close()
//	lk.AcquireScope("orders", latch.ModeShared) // takes global ModeShared first
//	lk.TempRelease(func() { /* blocking I/O with nothing held */ })
//	lk.Release("orders")
//	lk.Release(latch.GlobalScope)
//
// A Locker is confined to a single goroutine. Misuse, such as releasing a
// lock that is not held or closing a Locker with locks outstanding, panics
// the way sync.Mutex does.
//
// # Admission control
//
// TicketHolder bounds concurrency to a fixed number of tickets:
//
//	gate := latch.NewTicketHolder("checkins", 3)
//	t := gate.WaitForTicket()
//	defer t.Release()
//
// All three primitives accept the same options: WithLogger for structured
// logging via pslog, WithClock to substitute a test clock, and WithMetrics to
// publish OpenTelemetry counters and wait histograms.
package latch
