package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"pkt.systems/latch"
	"pkt.systems/pslog"
)

// sampleSink collects wait-latency samples from many workers.
type sampleSink struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (s *sampleSink) add(d time.Duration) {
	s.mu.Lock()
	s.samples = append(s.samples, d)
	s.mu.Unlock()
}

func (s *sampleSink) summarize() benchSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize(s.samples)
}

// slack: every worker competes for one exclusive lock, so acquisition latency
// directly measures queueing slack under full contention.
func newSlackCommand(logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "slack",
		Short: "all-exclusive contention on a single lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd.Context(), logger, "slack", runSlack)
		},
	}
}

func runSlack(ctx context.Context, cfg benchConfig, logger pslog.Logger) (benchSummary, error) {
	l := latch.NewRWLock("slack")
	var sink sampleSink
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.threads; i++ {
		g.Go(func() error {
			id := latch.NewHolderID()
			for j := 0; j < cfg.iterations; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				l.LockExclusive(id)
				sink.add(time.Since(start))
				if cfg.hold > 0 {
					time.Sleep(cfg.hold)
				}
				l.UnlockExclusive(id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return benchSummary{}, err
	}
	return sink.summarize(), nil
}

// hotel: a crowd of guests checking in and out through a fixed-capacity
// ticket gate, verifying occupancy never exceeds capacity.
func newHotelCommand(logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "hotel",
		Short: "admission control through a fixed-capacity ticket gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd.Context(), logger, "hotel", runHotel)
		},
	}
}

func runHotel(ctx context.Context, cfg benchConfig, logger pslog.Logger) (benchSummary, error) {
	gate := latch.NewTicketHolder("hotel", cfg.capacity, latch.WithLogger(logger))
	var sink sampleSink
	var occupancy, peak atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.threads; i++ {
		g.Go(func() error {
			for j := 0; j < cfg.iterations; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				tk := gate.WaitForTicket()
				sink.add(time.Since(start))
				n := occupancy.Add(1)
				for {
					prev := peak.Load()
					if n <= prev || peak.CompareAndSwap(prev, n) {
						break
					}
				}
				if cfg.hold > 0 {
					time.Sleep(cfg.hold)
				}
				occupancy.Add(-1)
				tk.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return benchSummary{}, err
	}
	if p := int(peak.Load()); p > cfg.capacity {
		return benchSummary{}, fmt.Errorf("gate overshot: %d simultaneous holders with capacity %d", p, cfg.capacity)
	}
	logger.Info("gate respected capacity", "peak", peak.Load(), "capacity", cfg.capacity)
	return sink.summarize(), nil
}

// greedy: a reader crowd against a few writers; reported latency is writer
// acquisition time, which stays bounded because pending writers park new
// readers behind them.
func newGreedyCommand(logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "greedy",
		Short: "writer wait latency under a crowd of readers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd.Context(), logger, "greedy", runGreedy)
		},
	}
}

func runGreedy(ctx context.Context, cfg benchConfig, logger pslog.Logger) (benchSummary, error) {
	l := latch.NewRWLock("greedy")
	var sink sampleSink
	var stop atomic.Bool
	g, ctx := errgroup.WithContext(ctx)

	readers := cfg.threads - 1
	if readers < 1 {
		readers = 1
	}
	for i := 0; i < readers; i++ {
		g.Go(func() error {
			for !stop.Load() {
				if err := ctx.Err(); err != nil {
					return err
				}
				l.LockShared()
				if cfg.hold > 0 {
					time.Sleep(cfg.hold)
				}
				l.UnlockShared()
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stop.Store(true)
		id := latch.NewHolderID()
		for j := 0; j < cfg.iterations; j++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			l.LockExclusive(id)
			sink.add(time.Since(start))
			l.UnlockExclusive(id)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return benchSummary{}, err
	}
	return sink.summarize(), nil
}

// upgrade: one holder cycles read-then-upgrade against a shared crowd;
// reported latency is the upgrade conversion time.
func newUpgradeCommand(logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "upgradable-to-exclusive conversion latency against readers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd.Context(), logger, "upgrade", runUpgrade)
		},
	}
}

func runUpgrade(ctx context.Context, cfg benchConfig, logger pslog.Logger) (benchSummary, error) {
	l := latch.NewRWLock("upgrade")
	var sink sampleSink
	var stop atomic.Bool
	g, ctx := errgroup.WithContext(ctx)

	readers := cfg.threads - 1
	if readers < 1 {
		readers = 1
	}
	for i := 0; i < readers; i++ {
		g.Go(func() error {
			for !stop.Load() {
				if err := ctx.Err(); err != nil {
					return err
				}
				l.LockShared()
				if cfg.hold > 0 {
					time.Sleep(cfg.hold)
				}
				l.UnlockShared()
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stop.Store(true)
		id := latch.NewHolderID()
		for j := 0; j < cfg.iterations; j++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			l.LockUpgradable(id)
			start := time.Now()
			l.UpgradeToExclusive(id, 0)
			sink.add(time.Since(start))
			l.UnlockExclusive(id)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return benchSummary{}, err
	}
	return sink.summarize(), nil
}
