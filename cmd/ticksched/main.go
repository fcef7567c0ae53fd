package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	yaml "github.com/goccy/go-yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"ticksched/internal/logging"
	"ticksched/internal/metrics"
	"ticksched/internal/sched"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type runFlags struct {
	configPath  string
	ticks       int64
	interval    time.Duration
	traceCSV    string
	metricsAddr string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "ticksched",
		Short:        "Cooperative time-sliced task scheduler",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to YAML config")

	root.AddCommand(newRunCmd(&configPath), newConfigCmd(&configPath))
	return root
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sched.Load(*configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the scheduler with a demo workload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.configPath = *configPath
			return run(cmd, f)
		},
	}
	cmd.Flags().Int64Var(&f.ticks, "ticks", 0, "stop after this many ticks (0 = until the workload finishes)")
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "tick interval (default: configured target tick)")
	cmd.Flags().StringVar(&f.traceCSV, "trace-csv", "", "write scheduler events to this CSV file")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "log format (text, json)")
	return cmd
}

func run(cmd *cobra.Command, f *runFlags) error {
	// Read the configuration; flags win over the file
	cfg, err := sched.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if f.traceCSV != "" {
		cfg.TraceCSV = f.traceCSV
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	logger.Info("loaded config", "path", f.configPath, "name", cfg.Name, "target_tick_ms", cfg.TargetTickMS)

	reg := prometheus.NewRegistry()
	s := sched.New(cfg, sched.WithLogger(logger), sched.WithMetrics(metrics.NewRegistry(reg)))
	defer func() {
		if err := s.Shutdown(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if cfg.TraceCSV != "" {
		if err := s.EnableCSVTrace(cfg.TraceCSV); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer srv.Close()
	}

	failures := 0
	s.OnTaskError(func(t *sched.Task, err error) {
		failures++
		fmt.Fprintf(cmd.OutOrStdout(), "task %d (%s) failed: %v\n", t.ID(), t.Name(), err)
	})

	ctx, finish := context.WithCancel(ctx)
	defer finish()
	if f.ticks == 0 {
		// stop once the workload has drained
		s.OnEvent(func(ev sched.StatusEvent) {
			if ev.Kind == sched.StatusTick && s.RunningCount()+s.PendingCount() == 0 {
				finish()
			}
		})
	}

	tasks, err := submitDemo(s)
	if err != nil {
		return err
	}

	start := time.Now()
	err = sched.Drive(ctx, s, f.interval, f.ticks)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	last := s.LastTick()
	fmt.Fprintf(cmd.OutOrStdout(), "ran %d ticks in %s: slice=%s target=%s failures=%d\n",
		last.Tick, time.Since(start).Round(time.Millisecond), s.TimeSlice(), s.TargetTick(), failures)
	for _, t := range tasks {
		state := "running"
		switch {
		case t.Err() != nil:
			state = "failed"
		case t.Cancelled():
			state = "cancelled"
		case t.Done():
			state = "done"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %-9s cheat=%s last=%s\n", t.Name(), state, t.CheatTime(), t.LastElapsed())
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
