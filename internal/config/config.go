// Package config provides configuration types and defaults for switchyard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration options for switchyard.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Orchestrator  OrchestratorConfig  `mapstructure:"orchestrator"`
	Address       AddressConfig       `mapstructure:"address"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Definitions   DefinitionsConfig   `mapstructure:"definitions"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
}

// DatabaseConfig holds sqlite storage configuration.
type DatabaseConfig struct {
	// Path is the sqlite database file. Parent directories are created on
	// first open.
	Path string `mapstructure:"path" validate:"required"`
}

// LogConfig holds structured logging configuration.
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Path    string `mapstructure:"path"`
}

// OrchestratorConfig holds saga execution configuration.
type OrchestratorConfig struct {
	// Workers is the number of concurrent workflow runners in the daemon.
	Workers int `mapstructure:"workers" validate:"min=1,max=64"`

	// QueueSize bounds the runner submission queue.
	QueueSize int `mapstructure:"queue_size" validate:"min=1"`

	// DefaultMaxRetries applies to workflows whose definition does not
	// override it.
	DefaultMaxRetries int `mapstructure:"default_max_retries" validate:"min=0,max=10"`

	// RetryDelay is the pause between step retry attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// AddressConfig holds address lifecycle machine configuration.
type AddressConfig struct {
	// IPv6PrefixLength is the delegated prefix size requested from IPAM
	// when the caller does not specify one. Valid range 48-64.
	IPv6PrefixLength int `mapstructure:"ipv6_prefix_length" validate:"min=48,max=64"`

	// SendCoA controls whether activation/suspension push RADIUS CoA by
	// default. Per-request flags override it.
	SendCoA bool `mapstructure:"send_coa"`

	// NASIP is the default NAS address for CoA and Disconnect-Message.
	NASIP string `mapstructure:"nas_ip" validate:"omitempty,ip"`
}

// SchedulerConfig holds the background sweep configuration.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Interval between sweeps for due scheduled activations/terminations.
	Interval time.Duration `mapstructure:"interval"`

	// BatchSize caps how many due services one sweep processes.
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`
}

// DefinitionsConfig holds workflow definition loading configuration.
type DefinitionsConfig struct {
	// UserDir is scanned for operator-provided definition YAML files which
	// override the built-ins by kind.
	UserDir string `mapstructure:"user_dir"`

	// HotReload re-reads UserDir when its contents change.
	HotReload bool `mapstructure:"hot_reload"`
}

// CollaboratorConfig configures one external collaborator endpoint.
type CollaboratorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Token    string `mapstructure:"token"`

	// Breaker wraps the collaborator in a circuit breaker when true.
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds circuit breaker settings for one collaborator.
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxFailures consecutive failures open the breaker.
	MaxFailures int `mapstructure:"max_failures" validate:"min=1"`

	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// CollaboratorsConfig groups external system endpoints. A disabled
// collaborator is wired as its null-object implementation.
type CollaboratorsConfig struct {
	IPAM    CollaboratorConfig `mapstructure:"ipam"`
	RADIUS  CollaboratorConfig `mapstructure:"radius"`
	Billing CollaboratorConfig `mapstructure:"billing"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=none file stdout otlp"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/switchyard/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Path: DefaultDBPath(),
		},
		Log: LogConfig{
			Enabled: false,
			Level:   "info",
			Path:    DefaultLogPath(),
		},
		Orchestrator: OrchestratorConfig{
			Workers:           4,
			QueueSize:         100,
			DefaultMaxRetries: 3,
			RetryDelay:        2 * time.Second,
		},
		Address: AddressConfig{
			IPv6PrefixLength: 56,
			SendCoA:          true,
			NASIP:            "",
		},
		Scheduler: SchedulerConfig{
			Enabled:   true,
			Interval:  30 * time.Second,
			BatchSize: 50,
		},
		Definitions: DefinitionsConfig{
			UserDir:   DefaultDefinitionsDir(),
			HotReload: false,
		},
		Collaborators: CollaboratorsConfig{
			IPAM:    CollaboratorConfig{Breaker: defaultBreaker()},
			RADIUS:  CollaboratorConfig{Breaker: defaultBreaker()},
			Billing: CollaboratorConfig{Breaker: defaultBreaker()},
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

func defaultBreaker() BreakerConfig {
	return BreakerConfig{
		Enabled:     false,
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
	}
}

// Validate checks the configuration. Struct tags cover shape constraints;
// cross-field rules are checked by hand.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Log.Enabled && c.Log.Path == "" {
		return fmt.Errorf("log.path is required when log.enabled is true")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive when scheduler is enabled")
	}
	if c.Definitions.HotReload && c.Definitions.UserDir == "" {
		return fmt.Errorf("definitions.user_dir is required when hot_reload is true")
	}
	if err := validateTracing(c.Tracing); err != nil {
		return err
	}
	for name, collab := range map[string]CollaboratorConfig{
		"ipam":    c.Collaborators.IPAM,
		"radius":  c.Collaborators.RADIUS,
		"billing": c.Collaborators.Billing,
	} {
		if collab.Enabled && collab.Endpoint == "" {
			return fmt.Errorf("collaborators.%s.endpoint is required when enabled", name)
		}
	}
	return nil
}

// validateTracing checks tracing configuration for errors.
func validateTracing(tracing TracingConfig) error {
	if !tracing.Enabled {
		return nil
	}
	if tracing.Exporter == "file" && tracing.FilePath == "" {
		return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
	}
	if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// DefaultDataDir returns ~/.switchyard or empty string if home dir unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".switchyard")
}

// DefaultDBPath returns the default sqlite database path.
func DefaultDBPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "switchyard.db")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "switchyard.log")
}

// DefaultDefinitionsDir returns the default user workflow-definitions directory.
func DefaultDefinitionsDir() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "definitions")
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/switchyard/traces/traces.jsonl or empty string if home
// dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "switchyard", "traces", "traces.jsonl")
}
