package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/config"
)

func TestBuildCollaborators_DisabledMeansNull(t *testing.T) {
	set := buildCollaborators(config.CollaboratorsConfig{})

	require.False(t, set.IPAM.Configured())
	require.False(t, set.CoA.Configured())
	require.False(t, set.Radius.Configured())
	require.False(t, set.Billing.Configured())
}

func TestBuildCollaborators_EnabledWiresHTTPClients(t *testing.T) {
	set := buildCollaborators(config.CollaboratorsConfig{
		IPAM:    config.CollaboratorConfig{Enabled: true, Endpoint: "http://ipam.local"},
		RADIUS:  config.CollaboratorConfig{Enabled: true, Endpoint: "http://radius.local"},
		Billing: config.CollaboratorConfig{Enabled: true, Endpoint: "http://billing.local"},
	})

	require.IsType(t, &collab.HTTPIPAM{}, set.IPAM)
	require.IsType(t, &collab.HTTPRadius{}, set.Radius)
	require.IsType(t, &collab.HTTPRadius{}, set.CoA)
	require.IsType(t, &collab.HTTPBilling{}, set.Billing)
	require.True(t, set.IPAM.Configured())
}

func TestBuildCollaborators_BreakerDecoratesClient(t *testing.T) {
	set := buildCollaborators(config.CollaboratorsConfig{
		IPAM: config.CollaboratorConfig{
			Enabled:  true,
			Endpoint: "http://ipam.local",
			Breaker:  config.BreakerConfig{Enabled: true, MaxFailures: 3, Cooldown: time.Second},
		},
		RADIUS: config.CollaboratorConfig{
			Enabled:  true,
			Endpoint: "http://radius.local",
			Breaker:  config.BreakerConfig{Enabled: true, MaxFailures: 3, Cooldown: time.Second},
		},
	})

	require.IsType(t, &collab.BreakerIPAM{}, set.IPAM)
	require.IsType(t, &collab.BreakerCoA{}, set.CoA)
	// The account store path is not a remote-call hot path; it stays the
	// bare client even when the CoA side is wrapped.
	require.IsType(t, &collab.HTTPRadius{}, set.Radius)
}

func TestTracingConfig_FileExporterGetsDefaultPath(t *testing.T) {
	cfg = config.Defaults()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "file"
	cfg.Tracing.FilePath = ""

	tc := tracingConfig()
	require.True(t, tc.Enabled)
	require.Equal(t, config.DefaultTracesFilePath(), tc.FilePath)
}

func TestTracingConfig_ExplicitPathWins(t *testing.T) {
	cfg = config.Defaults()
	cfg.Tracing.Exporter = "file"
	cfg.Tracing.FilePath = "/var/log/switchyard/traces.jsonl"

	tc := tracingConfig()
	require.Equal(t, "/var/log/switchyard/traces.jsonl", tc.FilePath)
}
