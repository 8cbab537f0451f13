package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-process-pool/config"
	"github.com/Swind/go-process-pool/core"
	"github.com/Swind/go-process-pool/monitor"
	obs "github.com/Swind/go-process-pool/observability/prometheus"
)

// errPoolFailed is returned when every job ran but at least one failed. Its
// failures have already been printed.
var errPoolFailed = errors.New("one or more jobs failed")

type runFlags struct {
	maxSimultaneous int
	runInstantly    bool
	interval        time.Duration
	logLevel        string
	metricsAddr     string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "process-pool",
		Short:         "Run commands through a bounded, priority-ordered pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run every job of a job file",
		Long: "Run every job of a job file, highest priority first, with at most --max jobs at once.\n" +
			"Settings are taken from PROCESS_POOL_* variables, then the job file, then flags.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd, args[0], flags)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&flags.maxSimultaneous, "max", "m", 0, "maximum number of simultaneous jobs (0 = unbounded)")
	f.BoolVar(&flags.runInstantly, "instant", false, "start jobs as soon as they are added")
	f.DurationVar(&flags.interval, "interval", core.DefaultCheckInterval, "delay between polls")
	f.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :2112")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a job file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.LoadJobFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d jobs OK\n", args[0], f.Count())
			return nil
		},
	}
}

func resolveSettings(cmd *cobra.Command, file *config.JobFile, flags runFlags) (config.PoolSettings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return config.PoolSettings{}, err
	}
	settings = file.Settings(settings)

	f := cmd.Flags()
	if f.Changed("max") {
		settings.MaxSimultaneous = flags.maxSimultaneous
	}
	if f.Changed("instant") {
		settings.RunInstantly = flags.runInstantly
	}
	if f.Changed("interval") {
		settings.Interval = flags.interval
	}
	if f.Changed("log-level") {
		settings.LogLevel = flags.logLevel
	}
	return settings, settings.Validate()
}

func runJobs(cmd *cobra.Command, path string, flags runFlags) error {
	file, err := config.LoadJobFile(path)
	if err != nil {
		return err
	}
	settings, err := resolveSettings(cmd, file, flags)
	if err != nil {
		return err
	}
	level, _ := settings.Level()

	zl := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05.000"}).
		Level(level).With().Timestamp().Logger()
	logger := core.NewZerologLogger(zl)

	var (
		metrics core.Metrics
		gauges  *obs.PoolGauges
		server  *http.Server
	)
	if flags.metricsAddr != "" {
		reg := prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter("processpool", reg, obs.ExporterOptions{})
		if err != nil {
			return err
		}
		if gauges, err = obs.NewPoolGauges("processpool", reg); err != nil {
			return err
		}
		metrics = exporter

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: flags.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	pool, err := file.Build(settings, logger, metrics)
	if err != nil {
		return err
	}
	if err := monitor.New(zl, monitor.WithUpdateRate(10, 5)).Monitor(pool); err != nil {
		return err
	}
	if gauges != nil {
		if err := gauges.Watch(pool.Name(), pool); err != nil {
			return err
		}
	}

	logger.Info("running jobs",
		core.F("file", path), core.F("jobs", pool.Len()), core.F("max_simultaneous", pool.MaxSimultaneous()))

	successful, err := runPool(cmd.Context(), pool, settings.Interval, server, logger)
	if err != nil {
		killRunning(pool, logger)
		printSummary(cmd.OutOrStdout(), pool)
		return err
	}
	printSummary(cmd.OutOrStdout(), pool)
	if !successful {
		for _, failure := range pool.Errors() {
			fmt.Fprintln(cmd.ErrOrStderr(), failure)
		}
		return errPoolFailed
	}
	return nil
}

// runPool drives pool to completion while the optional metrics server runs
// alongside. The server is shut down once the pool is done.
func runPool(ctx context.Context, pool *core.Pool, interval time.Duration, server *http.Server, logger core.Logger) (bool, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	var successful bool
	g.Go(func() error {
		defer stop()
		ok, err := pool.RunContext(gctx, interval)
		successful = ok
		return err
	})

	if server != nil {
		g.Go(func() error {
			logger.Info("serving metrics", core.F("addr", server.Addr))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	return successful, nil
}

// killRunning kills the processes of runs still running after an interrupted run.
func killRunning(pool *core.Pool, logger core.Logger) {
	for _, run := range pool.Running() {
		pr, ok := run.(*core.ProcessRun)
		if !ok || pr.Process().Process == nil {
			continue
		}
		if err := pr.Process().Process.Kill(); err != nil {
			logger.Warn("unable to kill process", core.F("run", pr.Name()), core.F("error", err))
		}
	}
}

func printSummary(w io.Writer, pool *core.Pool) {
	for _, run := range pool.Finished() {
		status := "ok"
		if !run.IsSuccessful() {
			status = "FAILED"
		}
		fmt.Fprintf(w, "%-6s %-30s %8s  %s\n", status, core.RunName(run), run.Duration().Round(time.Millisecond), run.Tags())
	}
	p := pool.Progress()
	fmt.Fprintf(w, "%d/%d jobs finished, %d failed\n", int(p.Current), int(p.Max), pool.Stats().Failed)
}
