// Package sysmon samples system pressure while a benchmark or contention
// profile runs, so lock wait times can be read against the CPU and memory
// conditions they were measured under.
package sysmon

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"pkt.systems/pslog"
)

// Config controls the sampling cadence.
type Config struct {
	Enabled        bool
	SampleInterval time.Duration
	LogInterval    time.Duration
}

// Snapshot is one observation of system state.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	Load1         float64
	Load5         float64
	Load15        float64
	Goroutines    int
	HeapBytes     uint64
	CollectedAt   time.Time
}

// Sampler periodically collects Snapshots until its context is cancelled.
type Sampler struct {
	cfg     Config
	logger  pslog.Logger
	running atomic.Bool
	wg      sync.WaitGroup

	mu          sync.Mutex
	last        Snapshot
	lastLogTime time.Time
}

// NewSampler constructs a sampler. A nil logger disables logging.
func NewSampler(cfg Config, logger pslog.Logger) *Sampler {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 200 * time.Millisecond
	}
	if cfg.LogInterval < 0 {
		cfg.LogInterval = 0
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Sampler{
		cfg:    cfg,
		logger: logger.With("sys", "sysmon"),
	}
}

// Start launches the sampling loop. Only the first call starts it.
func (s *Sampler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	// Prime gopsutil's CPU accounting so the first delta is meaningful.
	_, _ = cpu.Percent(0, false)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Wait blocks until the sampling loop has exited.
func (s *Sampler) Wait() {
	s.wg.Wait()
}

// Last returns the most recent snapshot, zero before the first sample.
func (s *Sampler) Last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Sampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sample(now)
		}
	}
}

func (s *Sampler) sample(ts time.Time) {
	snap := Snapshot{
		Goroutines:  runtime.NumGoroutine(),
		CollectedAt: ts,
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapBytes = ms.HeapAlloc

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		snap.Load1 = avg.Load1
		snap.Load5 = avg.Load5
		snap.Load15 = avg.Load15
	}

	s.mu.Lock()
	s.last = snap
	shouldLog := s.cfg.LogInterval > 0 &&
		(s.lastLogTime.IsZero() || ts.Sub(s.lastLogTime) >= s.cfg.LogInterval)
	if shouldLog {
		s.lastLogTime = ts
	}
	s.mu.Unlock()

	if shouldLog {
		s.logger.Debug("sysmon.sample",
			"cpu_percent", snap.CPUPercent,
			"memory_percent", snap.MemoryPercent,
			"load1", snap.Load1,
			"load5", snap.Load5,
			"load15", snap.Load15,
			"goroutines", snap.Goroutines,
			"heap_bytes", snap.HeapBytes,
		)
	}
}
