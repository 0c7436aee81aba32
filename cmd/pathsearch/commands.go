// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/AleutianSearch/pkg/logging"
	"github.com/AleutianAI/AleutianSearch/services/search/cancel"
	"github.com/AleutianAI/AleutianSearch/services/search/config"
	"github.com/AleutianAI/AleutianSearch/services/search/telemetry"
)

// runFlags holds the command line overrides of the run command.
type runFlags struct {
	configPath  string
	algorithm   string
	graphKind   string
	openPolicy  string
	discarding  string
	timeout     time.Duration
	cpus        int
	seed        int64
	iterations  int
	trace       string
	metricsAddr string
	logLevel    string
	logJSON     bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pathsearch",
		Short: "Anytime best-first and Monte Carlo tree search over synthetic graphs",
		Long: `pathsearch drives the step-wise search engines over synthetic graphs and
prints every event they produce, followed by the best solution found.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pathsearch version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pathsearch %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one search and print its events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if err := f.apply(&cfg, cmd.Flags()); err != nil {
				return err
			}
			return execute(cmd.Context(), cmd, cfg, f.verbose)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML or JSON configuration file")
	fl.StringVar(&f.algorithm, "algorithm", "", "search algorithm (bestfirst|mcts)")
	fl.StringVar(&f.graphKind, "graph", "", "synthetic graph (diamond|tree|dag)")
	fl.StringVar(&f.openPolicy, "open", "", "open collection (priority|pareto|oversearch)")
	fl.StringVar(&f.discarding, "parent-discarding", "", "duplicate label handling (none|open|all)")
	fl.DurationVar(&f.timeout, "timeout", 0, "overall search timeout (0 = unbounded)")
	fl.IntVar(&f.cpus, "cpus", 0, "CPU budget for evaluator sampling")
	fl.Int64Var(&f.seed, "seed", 0, "seed for sampling and rollouts")
	fl.IntVar(&f.iterations, "iterations", 0, "tree search iteration budget")
	fl.StringVar(&f.trace, "trace", "", "span exporter (stdout|otlp|none)")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fl.StringVar(&f.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	fl.BoolVar(&f.logJSON, "log-json", false, "write JSON logs")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "also print node expansions")
	return cmd
}

// apply overlays the flags that were set explicitly and revalidates.
func (f runFlags) apply(cfg *config.Config, fs *pflag.FlagSet) error {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("algorithm", func() { cfg.Algorithm = strings.ToLower(f.algorithm) })
	set("graph", func() { cfg.Graph.Kind = strings.ToLower(f.graphKind) })
	set("open", func() { cfg.Open.Policy = strings.ToLower(f.openPolicy) })
	set("parent-discarding", func() { cfg.BestFirst.ParentDiscarding = strings.ToLower(f.discarding) })
	set("timeout", func() { cfg.Timeout = f.timeout })
	set("cpus", func() { cfg.CPUs = f.cpus })
	set("seed", func() { cfg.Seed = f.seed })
	set("iterations", func() { cfg.MCTS.Iterations = f.iterations })
	set("trace", func() {
		switch t := strings.ToLower(f.trace); t {
		case "none", "":
			cfg.Observability.TracingEnabled = false
		default:
			cfg.Observability.TracingEnabled = true
			cfg.Observability.TraceExporter = t
		}
	})
	set("metrics-addr", func() {
		cfg.Observability.MetricsEnabled = true
		cfg.Observability.MetricsAddr = f.metricsAddr
	})
	set("log-level", func() { cfg.Observability.LogLevel = strings.ToLower(f.logLevel) })
	set("log-json", func() { cfg.Observability.LogJSON = f.logJSON })
	return cfg.Validate()
}

// execute wires logging, telemetry and cancellation around one search.
func execute(ctx context.Context, cmd *cobra.Command, cfg config.Config, verbose bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCfg := cfg.LoggingConfig("pathsearch")
	if !isTerminal(os.Stderr) {
		logCfg.JSON = true
	}
	logger := logging.New(logCfg)
	defer func() { _ = logger.Close() }()
	slogger := logger.Slog()

	obs := cfg.Observability
	if obs.TracingEnabled || obs.MetricsEnabled {
		pc := telemetry.DefaultProviderConfig()
		pc.ServiceVersion = version
		pc.TraceExporter = "none"
		pc.MetricExporter = "none"
		if obs.TracingEnabled {
			pc.TraceExporter = obs.TraceExporter
			pc.OTLPEndpoint = obs.OTLPEndpoint
		}
		if obs.MetricsEnabled {
			pc.MetricExporter = obs.MetricExporter
		}
		shutdown, err := telemetry.Init(ctx, pc)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelFlush()
			if err := shutdown(flushCtx); err != nil {
				slogger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	if obs.MetricsEnabled && obs.MetricsAddr != "" {
		srv := serveMetrics(obs.MetricsAddr, slogger)
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancelShutdown()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	scheduler := cancel.NewScheduler(slogger)
	defer scheduler.Close()

	out := cmd.OutOrStdout()
	r, err := newRunner(cfg, out, slogger, scheduler, verbose)
	if err != nil {
		return err
	}
	r.colors = newPalette(isTerminal(out))
	sum, err := r.run(ctx)
	if err != nil {
		return err
	}
	printSummary(out, sum, r.colors)
	return nil
}

// isTerminal reports whether w is a file attached to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}
