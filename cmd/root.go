package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/config"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/orchestration"
	"github.com/fiberline/switchyard/internal/saga/definition"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "switchyard",
	Short: "Saga-driven subscriber provisioning and service lifecycle",
	Long: `Switchyard orchestrates ISP subscriber provisioning as compensating
workflows: IPAM allocations, RADIUS accounts and CoA, access-node and CPE
configuration, and billing, all recorded step by step in a durable ledger.

Run 'switchyard daemon' for the long-running service, or use the workflow,
provision, and service subcommands to operate against the shared database.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.switchyard/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "sqlite database path (overrides config)")
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("database.path", defaults.Database.Path)
	viper.SetDefault("log.enabled", defaults.Log.Enabled)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.path", defaults.Log.Path)
	viper.SetDefault("orchestrator.workers", defaults.Orchestrator.Workers)
	viper.SetDefault("orchestrator.queue_size", defaults.Orchestrator.QueueSize)
	viper.SetDefault("orchestrator.default_max_retries", defaults.Orchestrator.DefaultMaxRetries)
	viper.SetDefault("orchestrator.retry_delay", defaults.Orchestrator.RetryDelay)
	viper.SetDefault("address.ipv6_prefix_length", defaults.Address.IPv6PrefixLength)
	viper.SetDefault("address.send_coa", defaults.Address.SendCoA)
	viper.SetDefault("scheduler.enabled", defaults.Scheduler.Enabled)
	viper.SetDefault("scheduler.interval", defaults.Scheduler.Interval)
	viper.SetDefault("scheduler.batch_size", defaults.Scheduler.BatchSize)
	viper.SetDefault("definitions.user_dir", defaults.Definitions.UserDir)
	viper.SetDefault("definitions.hot_reload", defaults.Definitions.HotReload)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	for _, name := range []string{"ipam", "radius", "billing"} {
		viper.SetDefault("collaborators."+name+".breaker.max_failures", 5)
		viper.SetDefault("collaborators."+name+".breaker.cooldown", "30s")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// A project-local .switchyard/ wins over the home directory.
		viper.AddConfigPath(filepath.Join(".", ".switchyard"))
		if dir := config.DefaultDataDir(); dir != "" {
			viper.AddConfigPath(dir)
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// First run: write the commented template so operators have
		// something to edit, then continue on defaults.
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			if dir := config.DefaultDataDir(); dir != "" {
				path := filepath.Join(dir, "config.yaml")
				if writeErr := config.WriteDefaultConfig(path); writeErr == nil {
					viper.SetConfigFile(path)
					_ = viper.ReadInConfig()
				}
			}
		}
	}

	cfg = config.Defaults()
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: unreadable config: %v\n", err)
	}
}

// initLogging applies the log config and returns the file cleanup.
func initLogging() (func(), error) {
	if !cfg.Log.Enabled {
		return func() {}, nil
	}
	path := cfg.Log.Path
	if path == "" {
		path = config.DefaultLogPath()
	}
	cleanup, err := log.Init(path)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	return cleanup, nil
}

// buildCollaborators wires the configured remote systems. Disabled
// collaborators stay null objects; step handlers treat those as "skip".
func buildCollaborators(conf config.CollaboratorsConfig) *collab.Set {
	set := collab.NewNullSet()

	if conf.IPAM.Enabled {
		var ipam collab.IPAMClient = collab.NewHTTPIPAM(clientConfig(conf.IPAM))
		if conf.IPAM.Breaker.Enabled {
			ipam = collab.NewBreakerIPAM(ipam, breakerConfig(conf.IPAM.Breaker))
		}
		set.IPAM = ipam
	}
	if conf.RADIUS.Enabled {
		radius := collab.NewHTTPRadius(clientConfig(conf.RADIUS))
		set.Radius = radius
		var coa collab.CoAClient = radius
		if conf.RADIUS.Breaker.Enabled {
			coa = collab.NewBreakerCoA(coa, breakerConfig(conf.RADIUS.Breaker))
		}
		set.CoA = coa
	}
	if conf.Billing.Enabled {
		var billing collab.BillingClient = collab.NewHTTPBilling(clientConfig(conf.Billing))
		if conf.Billing.Breaker.Enabled {
			billing = collab.NewBreakerBilling(billing, breakerConfig(conf.Billing.Breaker))
		}
		set.Billing = billing
	}
	return set
}

func clientConfig(conf config.CollaboratorConfig) collab.ClientConfig {
	return collab.ClientConfig{Endpoint: conf.Endpoint, Token: conf.Token}
}

func breakerConfig(conf config.BreakerConfig) collab.BreakerConfig {
	return collab.BreakerConfig{
		ConsecutiveFailures: conf.MaxFailures,
		OpenTimeout:         conf.Cooldown,
	}
}

// openService assembles the facade over the configured database for one CLI
// invocation. The returned cleanup drains in-flight runs and closes the
// database.
func openService() (*orchestration.Service, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	db, err := sqlite.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	defs, err := definition.NewStore()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if dir := cfg.Definitions.UserDir; dir != "" {
		if _, statErr := os.Stat(dir); statErr == nil {
			if err := defs.ApplyUserDir(dir); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("loading user definitions: %w", err)
			}
		}
	}

	svc, err := orchestration.New(orchestration.Config{
		DB:            db,
		Collaborators: buildCollaborators(cfg.Collaborators),
		Definitions:   defs,
		Workers:       cfg.Orchestrator.Workers,
		QueueDepth:    cfg.Orchestrator.QueueSize,
		RetryWait:     cfg.Orchestrator.RetryDelay,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		svc.Close()
		_ = db.Close()
	}
	return svc, cleanup, nil
}

// printJSON writes v to stdout, indented for humans, stable for jq.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
