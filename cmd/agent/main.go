// Package main is the entry point of the section agent.
// It loads configuration, builds the section engines and either runs the
// collection loop (as a Windows service or in the foreground) or produces
// a single section on request.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/config"
	"github.com/Guliveer/vitalis/sectionagent/internal/metrics"
	"github.com/Guliveer/vitalis/sectionagent/internal/scheduler"
	"github.com/Guliveer/vitalis/sectionagent/internal/service"
	"github.com/Guliveer/vitalis/sectionagent/internal/spool"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "sectionagent",
		Short: "Host telemetry agent producing monitoring sections",
		Long: `sectionagent collects monitoring sections (hardware sensors, performance
counters, process and system tables) and emits them as separator-delimited text.

Examples:
  sectionagent run --config agent.yaml
  sectionagent section 12345 wmi_cpuload --out file:cpu.txt`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config file (searched in standard locations if empty)")

	root.AddCommand(
		newRunCommand(flags),
		newSectionCommand(flags),
		newInitConfigCommand(),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	var stdout bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the collection loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if service.IsWindowsService() {
				logger.Info("Running as Windows service")
				svc := service.New(logger, func(ctx context.Context) {
					if err := runAgent(ctx, cfg, logger, false); err != nil {
						logger.Error("Agent failed", zap.Error(err))
					}
				})
				return svc.Run()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = runAgent(ctx, cfg, logger, stdout)
			logger.Info("Agent stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&stdout, "stdout", false, "also print every cycle to stdout")
	return cmd
}

func newSectionCommand(flags *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "section <id> <name>",
		Short: "Produce one section synchronously",
		Long: `Produce one section and deliver it to --out.
A "file:<path>" target replaces the file atomically; without --out the
section is written to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			reg := buildRegistry(cfg, logger)
			defer func() {
				if err := reg.Close(); err != nil {
					logger.Warn("Failed to release sections", zap.Error(err))
				}
			}()

			p, ok := reg.Lookup(args[1])
			if !ok {
				return fmt.Errorf("unknown section %q", args[1])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Global.SectionTimeout.Duration)
			defer cancel()
			return p.StartSynchronous(ctx, out, cmd.OutOrStdout(), args[0]+" "+args[1])
		},
	}
	cmd.Flags().StringVar(&out, "out", "", `delivery target, e.g. "file:/tmp/section.txt"`)
	return cmd
}

func newInitConfigCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a configuration file with default values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteConfig(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sectionagent %s\n", version)
		},
	}
}

// setup loads and validates configuration and builds the logger.
func setup(flags *globalFlags) (*config.Config, *zap.Logger, error) {
	path := flags.configPath
	if path == "" {
		path = config.Locate()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := initLogger(cfg)
	logger.Info("Starting section agent",
		zap.String("version", version),
		zap.String("config", cfg.Path()))
	return cfg, logger, nil
}

// runAgent initializes all components and runs the collection loop.
// It blocks until the context is cancelled.
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdout bool) error {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if cfg.Metrics.Listen != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Listen, logger)
		defer stopMetrics()
	}

	sp, err := spool.New(cfg.Spool.Dir, cfg.Spool.MaxSizeMB, cfg.Spool.Keep, logger)
	if err != nil {
		return err
	}

	reg := buildRegistry(cfg, logger)
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("Failed to release sections", zap.Error(err))
		}
	}()

	sched := scheduler.New(reg, cfg.Scheduler.Interval.Duration, logger)
	sched.OnOutput(func(out string) {
		if err := sp.Store(out); err != nil {
			logger.Error("Failed to spool output", zap.Error(err))
		}
	})
	if stdout {
		sched.OnOutput(func(out string) {
			if _, err := os.Stdout.WriteString(out); err != nil {
				logger.Error("Failed to print output", zap.Error(err))
			}
		})
	}

	logger.Info("Agent running",
		zap.Duration("interval", cfg.Scheduler.Interval.Duration),
		zap.Int("sections", len(reg.Providers())))
	sched.Start(ctx)
	return nil
}

// serveMetrics exposes /metrics on addr and returns a shutdown function.
func serveMetrics(addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()
	logger.Info("Metrics endpoint listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
