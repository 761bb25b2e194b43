package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fiberline/switchyard/internal/log"
)

// DefaultConfigTemplate returns a fully commented config file with defaults.
// Every option is present but commented out so users can discover and
// uncomment what they need.
func DefaultConfigTemplate() string {
	return `# switchyard configuration
# Uncomment and edit options as needed. Values shown are the defaults.

# database:
#   # Path to the sqlite database file.
#   path: ~/.switchyard/switchyard.db

# log:
#   # Enable file logging.
#   enabled: false
#   # Log level: debug, info, warn, error.
#   level: info
#   # Log file path.
#   path: ~/.switchyard/switchyard.log

# orchestrator:
#   # Concurrent workflow runners in the daemon.
#   workers: 4
#   # Bounded runner submission queue.
#   queue_size: 100
#   # Retry budget for workflows whose definition does not set one.
#   default_max_retries: 3
#   # Pause between step retry attempts.
#   retry_delay: 2s

# address:
#   # Delegated IPv6 prefix length requested from IPAM (48-64).
#   ipv6_prefix_length: 56
#   # Push RADIUS CoA on activation/suspension by default.
#   send_coa: true
#   # Default NAS address for CoA and Disconnect-Message.
#   nas_ip: ""

# scheduler:
#   # Background sweep for due scheduled activations/terminations.
#   enabled: true
#   interval: 30s
#   # Max due services processed per sweep.
#   batch_size: 50

# definitions:
#   # Directory scanned for user workflow definition YAML files.
#   # Files here override built-in definitions by workflow kind.
#   user_dir: ~/.switchyard/definitions
#   # Re-read user_dir when its contents change.
#   hot_reload: false

# collaborators:
#   ipam:
#     enabled: false
#     endpoint: ""
#     token: ""
#     breaker:
#       enabled: false
#       max_failures: 5
#       cooldown: 30s
#   radius:
#     enabled: false
#     endpoint: ""
#     token: ""
#     breaker:
#       enabled: false
#       max_failures: 5
#       cooldown: 30s
#   billing:
#     enabled: false
#     endpoint: ""
#     token: ""
#     breaker:
#       enabled: false
#       max_failures: 5
#       cooldown: 30s

# tracing:
#   # Enable distributed tracing.
#   enabled: false
#   # Exporter: none, file, stdout, otlp.
#   exporter: file
#   # Output path for the file exporter.
#   file_path: ~/.config/switchyard/traces/traces.jsonl
#   # Collector endpoint for the otlp exporter.
#   otlp_endpoint: localhost:4317
#   # Trace sampling rate (0.0 to 1.0).
#   sample_rate: 1.0
`
}

// WriteDefaultConfig writes the default config template to the given path.
// It refuses to overwrite an existing file. The write goes through a temp
// file and rename so a crash never leaves a half-written config.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug(log.CatConfig, "config file already exists, skipping write", "path", path)
		return fmt.Errorf("config file already exists: %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.WriteString(DefaultConfigTemplate()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0600); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("setting config permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	log.Info(log.CatConfig, "wrote default config", "path", path)
	return nil
}
