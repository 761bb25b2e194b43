package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiberline/switchyard/internal/config"
	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/scheduler"
	"github.com/fiberline/switchyard/internal/tracing"
	"github.com/fiberline/switchyard/internal/watcher"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the orchestration daemon",
	Long: `Run the long-lived orchestration service: the workflow runner pool, the
scheduled activation/termination sweeps, and (when enabled) hot reload of
operator workflow definitions.

Example:
  switchyard daemon
  switchyard daemon -c /etc/switchyard/config.yaml`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	logCleanup, err := initLogging()
	if err != nil {
		return err
	}
	defer logCleanup()

	tracer, err := tracing.NewProvider(tracingConfig())
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			log.Warn(log.CatTracing, "trace provider shutdown failed", "error", err.Error())
		}
	}()

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info(log.CatConfig, "daemon starting",
		"db", cfg.Database.Path,
		"workers", cfg.Orchestrator.Workers,
		"scheduler", cfg.Scheduler.Enabled,
		"hot_reload", cfg.Definitions.HotReload,
		"tracing", tracer.Enabled())

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(svc, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize)
		sched.Start()
		defer sched.Stop()
	}

	if cfg.Definitions.HotReload {
		stopReload, err := startDefinitionReload(svc.Definitions().ApplyUserDir, cfg.Definitions.UserDir)
		if err != nil {
			return err
		}
		defer stopReload()
	}

	// Mirror the event stream into the log so an operator tailing the log
	// sees workflow progress without another subscriber.
	eventCtx, cancelEvents := context.WithCancel(context.Background())
	defer cancelEvents()
	go func() {
		for ev := range svc.Subscribe(eventCtx) {
			log.Info(log.CatSaga, "event",
				"type", string(ev.Payload.Type),
				"tenant_id", ev.Payload.TenantID,
				"workflow_id", ev.Payload.WorkflowID,
				"step", ev.Payload.StepName,
				"service_instance_id", ev.Payload.ServiceInstanceID)
		}
	}()

	fmt.Printf("switchyard daemon started (db %s)\n", cfg.Database.Path)
	fmt.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("\nReceived %s, shutting down...\n", sig)

	log.Info(log.CatConfig, "daemon stopping", "signal", sig.String())
	return nil
}

// tracingConfig maps the file config onto the trace provider's options,
// filling in the default trace file path when the exporter needs one.
func tracingConfig() tracing.Config {
	tc := tracing.DefaultConfig()
	tc.Enabled = cfg.Tracing.Enabled
	tc.Exporter = cfg.Tracing.Exporter
	tc.FilePath = cfg.Tracing.FilePath
	tc.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	tc.SampleRate = cfg.Tracing.SampleRate
	if tc.Exporter == "file" && tc.FilePath == "" {
		tc.FilePath = config.DefaultTracesFilePath()
	}
	return tc
}

// startDefinitionReload watches the user definitions directory and reapplies
// it over the built-ins on every settled change. A failed reload keeps the
// previous definition set.
func startDefinitionReload(apply func(string) error, dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating definitions directory: %w", err)
	}

	w, err := watcher.New(watcher.DefaultConfig(dir))
	if err != nil {
		return nil, fmt.Errorf("creating definition watcher: %w", err)
	}
	changes, err := w.Start()
	if err != nil {
		return nil, fmt.Errorf("watching definitions directory: %w", err)
	}

	go func() {
		for range changes {
			if err := apply(dir); err != nil {
				log.Warn(log.CatWatcher, "definition reload failed",
					"dir", dir, "error", err.Error())
				continue
			}
			log.Info(log.CatWatcher, "definitions reloaded", "dir", dir)
		}
	}()

	return func() { _ = w.Stop() }, nil
}
