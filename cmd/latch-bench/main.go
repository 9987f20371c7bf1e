// latch-bench drives contention workloads against the latch primitives and
// reports wait-latency distributions alongside sampled system pressure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/latch/internal/sysmon"
	"pkt.systems/pslog"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("LATCH_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "latch-bench")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(baseLogger)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

type benchConfig struct {
	threads    int
	iterations int
	capacity   int
	hold       time.Duration
	sysmonOn   bool
	sysmonTick time.Duration
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "latch-bench",
		Short:         "contention workloads for the latch lock hierarchy, upgradable RW lock, and ticket gate",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # ten goroutines hammering one exclusive lock
  latch-bench slack --threads 10 --iterations 1000

  # the hotel: 10 guests, 3 tickets, 1000 check-ins each
  latch-bench hotel --threads 10 --capacity 3 --iterations 1000

  # load a profile from file, override thread count from the environment
  LATCH_THREADS=32 latch-bench greedy --profile bench.yaml
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadProfile()
		},
	}

	flags := cmd.PersistentFlags()
	flags.Int("threads", 8, "number of worker goroutines")
	flags.Int("iterations", 1000, "operations per worker")
	flags.Int("capacity", 3, "ticket gate capacity (hotel workload)")
	flags.Duration("hold", 0, "time to hold each grant before releasing")
	flags.String("profile", "", "path to a workload profile file (yaml/json/toml)")
	flags.Bool("sysmon", true, "sample system pressure during the run")
	flags.Duration("sysmon-interval", 200*time.Millisecond, "system sampling interval")
	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})
	viper.SetEnvPrefix("LATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cmd.AddCommand(
		newSlackCommand(baseLogger),
		newHotelCommand(baseLogger),
		newGreedyCommand(baseLogger),
		newUpgradeCommand(baseLogger),
	)
	return cmd
}

func loadProfile() error {
	path := strings.TrimSpace(viper.GetString("profile"))
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read profile %s: %w", path, err)
	}
	return nil
}

func configFromViper() (benchConfig, error) {
	cfg := benchConfig{
		threads:    viper.GetInt("threads"),
		iterations: viper.GetInt("iterations"),
		capacity:   viper.GetInt("capacity"),
		hold:       viper.GetDuration("hold"),
		sysmonOn:   viper.GetBool("sysmon"),
		sysmonTick: viper.GetDuration("sysmon-interval"),
	}
	if cfg.threads <= 0 {
		return cfg, fmt.Errorf("threads must be positive, got %d", cfg.threads)
	}
	if cfg.iterations <= 0 {
		return cfg, fmt.Errorf("iterations must be positive, got %d", cfg.iterations)
	}
	if cfg.capacity <= 0 {
		return cfg, fmt.Errorf("capacity must be positive, got %d", cfg.capacity)
	}
	return cfg, nil
}

// runWorkload wraps a workload with system sampling and a wall-clock report.
func runWorkload(ctx context.Context, logger pslog.Logger, name string,
	fn func(ctx context.Context, cfg benchConfig, logger pslog.Logger) (benchSummary, error)) error {

	cfg, err := configFromViper()
	if err != nil {
		return err
	}
	logger = logger.With("workload", name)
	sampler := sysmon.NewSampler(sysmon.Config{
		Enabled:        cfg.sysmonOn,
		SampleInterval: cfg.sysmonTick,
		LogInterval:    cfg.sysmonTick * 5,
	}, logger)
	monCtx, stopMon := context.WithCancel(ctx)
	sampler.Start(monCtx)

	start := time.Now()
	sum, err := fn(ctx, cfg, logger)
	elapsed := time.Since(start)
	stopMon()
	sampler.Wait()
	if err != nil {
		return err
	}

	printSummary(name, cfg, sum, elapsed)
	if snap := sampler.Last(); !snap.CollectedAt.IsZero() {
		logger.Info("system pressure at end of run",
			"cpu_percent", snap.CPUPercent,
			"memory_percent", snap.MemoryPercent,
			"load1", snap.Load1,
			"goroutines", snap.Goroutines,
		)
	}
	return nil
}

func printSummary(name string, cfg benchConfig, sum benchSummary, elapsed time.Duration) {
	ops := float64(sum.count) / elapsed.Seconds()
	fmt.Printf("%s: threads=%d iterations=%d elapsed=%s ops/s=%.0f\n",
		name, cfg.threads, cfg.iterations, elapsed.Round(time.Millisecond), ops)
	fmt.Printf("  wait: min=%s avg=%s p50=%s p90=%s p95=%s p99=%s max=%s\n",
		sum.min, sum.avg, sum.p50, sum.p90, sum.p95, sum.p99, sum.max)
}
