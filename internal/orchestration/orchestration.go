// Package orchestration is the facade the command layer talks to. It owns
// the process-wide wiring: address machines over the shared database, the
// handler registry, the saga orchestrator with its runner pool, the service
// lifecycle, and the event stream. Callers hand it validated requests and
// get back responses; everything below stays internal.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiberline/switchyard/internal/address"
	"github.com/fiberline/switchyard/internal/cachemanager"
	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/handlers"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
	"github.com/fiberline/switchyard/internal/pubsub"
	"github.com/fiberline/switchyard/internal/saga"
	"github.com/fiberline/switchyard/internal/saga/definition"
	"github.com/fiberline/switchyard/internal/services"
)

// Config assembles a Service. DB is the only required field; everything else
// has a working default (null collaborators, builtin definitions, default
// pool sizing).
type Config struct {
	DB            *sqlite.DB
	Collaborators *collab.Set
	Definitions   *definition.Store
	Workers       int
	QueueDepth    int
	RetryWait     time.Duration
}

// Service is the orchestration facade. Safe for concurrent use.
type Service struct {
	db        *sqlite.DB
	defs      *definition.Store
	registry  *saga.Registry
	orch      *saga.Orchestrator
	runner    *saga.Runner
	lifecycle *services.Lifecycle
	broker    *pubsub.Broker[Event]
	stats     *cachemanager.TenantCache[*WorkflowStatsResponse]
}

// dbStore hands step handlers the shared connection's repositories. Handlers
// get autocommit semantics; transactional writes stay in the services layer.
type dbStore struct {
	db *sqlite.DB
}

func (s dbStore) Profiles() domain.ProfileRepository { return s.db.ProfileRepository() }
func (s dbStore) Services() domain.ServiceRepository { return s.db.ServiceRepository() }
func (s dbStore) Events() domain.EventRepository     { return s.db.EventRepository() }

// New wires the facade. Handler registration happens here, once; a duplicate
// handler name surfaces as a construction error.
func New(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, errors.New("orchestration: database is required")
	}

	defs := cfg.Definitions
	if defs == nil {
		var err error
		defs, err = definition.NewStore()
		if err != nil {
			return nil, fmt.Errorf("loading builtin definitions: %w", err)
		}
	}

	set := cfg.Collaborators
	if set == nil {
		set = collab.NewNullSet()
	}

	profiles := cfg.DB.ProfileRepository()
	ipv4 := address.NewIPv4Machine(profiles, set.IPAM, set.CoA)
	ipv6 := address.NewIPv6Machine(profiles, set.IPAM, set.CoA)

	registry := saga.NewRegistry()
	if err := handlers.New(set, ipv4, ipv6).Register(registry); err != nil {
		return nil, fmt.Errorf("registering step handlers: %w", err)
	}

	broker := pubsub.NewBroker[Event]()
	n := &notifier{broker: broker}
	opts := []saga.Option{saga.WithNotifier(n)}
	if cfg.RetryWait > 0 {
		opts = append(opts, saga.WithRetryWait(cfg.RetryWait))
	}
	orch := saga.NewOrchestrator(
		cfg.DB.WorkflowRepository(), cfg.DB.StepRepository(), registry, dbStore{db: cfg.DB}, opts...)

	s := &Service{
		db:        cfg.DB,
		defs:      defs,
		registry:  registry,
		orch:      orch,
		runner:    saga.NewRunner(cfg.Workers, cfg.QueueDepth),
		lifecycle: services.NewLifecycle(cfg.DB, ipv4, ipv6, set.Health),
		broker:    broker,
	}
	s.stats = cachemanager.NewTenantCache[*WorkflowStatsResponse](
		cachemanager.NewMemory[*WorkflowStatsResponse]("workflow-stats", statsTTL, time.Minute),
		"stats", statsTTL, s.computeStatistics)
	// A run settling in a terminal state makes the tenant's cached stats
	// stale; drop them so the next read recomputes.
	n.invalidateStats = func(tenantID string) {
		s.stats.Invalidate(context.Background(), tenantID)
	}
	return s, nil
}

// Definitions exposes the definition store, for hot reload and listing.
func (s *Service) Definitions() *definition.Store { return s.defs }

// Lifecycle exposes the service lifecycle for callers that need raw
// operations (the scheduler's sweeps).
func (s *Service) Lifecycle() *services.Lifecycle { return s.lifecycle }

// Close drains in-flight workflow runs and closes the event stream.
// Call once at shutdown.
func (s *Service) Close() {
	s.runner.Drain()
	s.broker.Close()
}
