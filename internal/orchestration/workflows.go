package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/pubsub"
	"github.com/fiberline/switchyard/internal/saga"
	"github.com/fiberline/switchyard/internal/saga/definition"
	"github.com/fiberline/switchyard/internal/tracing"
)

// StartWorkflow creates a run of a named definition and executes it. With
// Async set the run goes to the runner pool and the response snapshots the
// pending record; otherwise the response reflects the final state and a saga
// failure is returned next to it as an ExecutionError.
func (s *Service) StartWorkflow(ctx context.Context, req StartWorkflowRequest) (resp *WorkflowResponse, err error) {
	ctx, span := tracing.StartOperation(ctx, "workflow.start",
		tracing.TenantAttr(req.TenantID), tracing.KindAttr(req.Definition))
	defer func() { tracing.RecordOutcome(span, err); span.End() }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	def, ok := s.defs.Get(req.Definition)
	if !ok {
		return nil, fmt.Errorf("unknown workflow definition %q", req.Definition)
	}

	wf, wfctx, err := s.createWorkflow(req)
	if err != nil {
		return nil, err
	}

	if req.Async {
		if err := s.submitRun(wf, def, wfctx); err != nil {
			return nil, err
		}
		return s.response(wf)
	}
	return s.run(ctx, wf, def, wfctx)
}

// createWorkflow persists the pending record and seeds the run context.
func (s *Service) createWorkflow(req StartWorkflowRequest) (*domain.Workflow, *saga.Context, error) {
	wf := domain.NewWorkflow("wf-"+uuid.NewString(), domain.WorkflowKind(req.Definition), req.TenantID)
	if req.SubscriberID != "" {
		wf.SetSubscriberID(req.SubscriberID)
	}
	if req.Initiator != "" {
		kind := req.InitiatorKind
		if kind == "" {
			kind = domain.InitiatorKindAPI
		}
		wf.SetInitiator(req.Initiator, kind)
	}
	if len(req.Input) > 0 {
		wf.SetInputData(req.Input)
	}
	if req.MaxRetries > 0 {
		wf.SetMaxRetries(req.MaxRetries)
	}

	wfctx := runContext(wf, req.Input)
	wf.SetContext(wfctx.ToMap())

	if err := s.db.WorkflowRepository().Save(wf); err != nil {
		return nil, nil, fmt.Errorf("persisting workflow: %w", err)
	}
	s.broker.Publish(Event{
		Type:           EventWorkflowCreated,
		TenantID:       wf.TenantID(),
		WorkflowID:     wf.WorkflowID(),
		WorkflowStatus: wf.Status().String(),
		Kind:           wf.Kind().String(),
	})
	return wf, wfctx, nil
}

// runContext seeds the saga context from an input payload. Well-known keys
// land in the typed fields; everything else rides in Extra so handlers can
// read it from the persisted step input.
func runContext(wf *domain.Workflow, input map[string]any) *saga.Context {
	wfctx := saga.ContextFromMap(input)
	wfctx.TenantID = wf.TenantID()
	if wfctx.SubscriberID == "" {
		wfctx.SubscriberID = wf.SubscriberID()
	}
	for k, v := range input {
		switch k {
		case "tenant_id", "subscriber_id", "customer_id", "service_instance_id",
			"plan_id", "radius_username", "ipv4_address", "ipv6_prefix",
			"external_ids", "extra":
			continue
		}
		if wfctx.Extra == nil {
			wfctx.Extra = map[string]any{}
		}
		wfctx.Extra[k] = v
	}
	return wfctx
}

// run executes synchronously. The response always reflects the persisted
// final state; a saga failure travels back alongside it.
func (s *Service) run(ctx context.Context, wf *domain.Workflow, def *definition.Definition, wfctx *saga.Context) (*WorkflowResponse, error) {
	final, execErr := s.orch.ExecuteWorkflow(ctx, wf, def, wfctx)
	resp, err := s.response(final)
	if err != nil {
		return nil, err
	}
	return resp, execErr
}

// submitRun queues the run on the pool. The run gets a background context:
// the caller's request ending must not cancel an accepted run.
func (s *Service) submitRun(wf *domain.Workflow, def *definition.Definition, wfctx *saga.Context) error {
	return s.runner.Submit(context.Background(), func(runCtx context.Context) {
		if _, err := s.orch.ExecuteWorkflow(runCtx, wf, def, wfctx); err != nil {
			log.Warn(log.CatSaga, "async workflow run failed",
				"workflow_id", wf.WorkflowID(), "error", err.Error())
		}
	})
}

// response maps a workflow and its steps to the external view.
func (s *Service) response(wf *domain.Workflow) (*WorkflowResponse, error) {
	steps, err := s.db.StepRepository().ListByWorkflow(wf.ID())
	if err != nil {
		return nil, fmt.Errorf("listing workflow steps: %w", err)
	}
	return workflowResponse(wf, steps), nil
}

// GetWorkflow retrieves one workflow run with its steps.
func (s *Service) GetWorkflow(tenantID, workflowID string) (*WorkflowResponse, error) {
	wf, err := s.db.WorkflowRepository().FindByWorkflowID(tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	return s.response(wf)
}

// ListWorkflows retrieves workflows matching the filter, newest first.
// Steps are not loaded on list reads.
func (s *Service) ListWorkflows(tenantID string, filter domain.WorkflowListFilter) ([]*WorkflowResponse, error) {
	wfs, err := s.db.WorkflowRepository().ListWithFilter(tenantID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*WorkflowResponse, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, workflowResponse(wf, nil))
	}
	return out, nil
}

// RetryWorkflow re-runs a failed or rolled-back workflow. Completed steps
// keep their outputs and are skipped; after a rollback the run restarts from
// the beginning. The stored context carries everything forward.
func (s *Service) RetryWorkflow(ctx context.Context, tenantID, workflowID string) (*WorkflowResponse, error) {
	wf, err := s.db.WorkflowRepository().FindByWorkflowID(tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	def, ok := s.defs.Get(wf.Kind().String())
	if !ok {
		return nil, fmt.Errorf("unknown workflow definition %q", wf.Kind())
	}
	if err := s.orch.RetryWorkflow(wf); err != nil {
		return nil, err
	}
	return s.run(ctx, wf, def, nil)
}

// CancelWorkflow cancels a pending or running workflow and compensates
// whatever completed. The response reflects the state after cancellation; a
// compensation failure is returned alongside it.
func (s *Service) CancelWorkflow(ctx context.Context, tenantID, workflowID string) (*WorkflowResponse, error) {
	wf, err := s.db.WorkflowRepository().FindByWorkflowID(tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	cancelErr := s.orch.CancelWorkflow(ctx, wf)
	if errors.Is(cancelErr, saga.ErrNotCancelable) {
		return nil, cancelErr
	}

	// A running workflow is wound down by its own executor, which holds a
	// different in-memory record; reload for the settled state.
	fresh, err := s.db.WorkflowRepository().FindByWorkflowID(tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	resp, err := s.response(fresh)
	if err != nil {
		return nil, err
	}
	return resp, cancelErr
}

// statsTTL bounds how stale WorkflowStatistics may be. Dashboards poll the
// stats endpoint; the aggregate queries are too heavy to run on every poll.
const statsTTL = 15 * time.Second

// WorkflowStatistics aggregates run outcomes for one tenant, served through
// a read-through cache. The cache is dropped whenever one of the tenant's
// runs settles, so reads reflect finished work immediately. The success rate
// is the percentage of terminal outcomes that completed; active counts
// pending, running, and rolling-back runs.
func (s *Service) WorkflowStatistics(tenantID string) (*WorkflowStatsResponse, error) {
	return s.stats.Get(context.Background(), tenantID)
}

func (s *Service) computeStatistics(_ context.Context, tenantID string) (*WorkflowStatsResponse, error) {
	repo := s.db.WorkflowRepository()

	byStatus, err := repo.CountByStatus(tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting workflows by status: %w", err)
	}
	byKind, err := repo.CountByKind(tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting workflows by kind: %w", err)
	}
	avg, err := repo.AverageCompletionSeconds(tenantID)
	if err != nil {
		return nil, fmt.Errorf("averaging completion time: %w", err)
	}
	failures, err := repo.CountFailedSince(tenantID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("counting recent failures: %w", err)
	}
	compensations, err := s.db.StepRepository().CountCompensated(tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting compensated steps: %w", err)
	}

	stats := &WorkflowStatsResponse{
		ByStatus:           make(map[string]int, len(byStatus)),
		ByKind:             make(map[string]int, len(byKind)),
		AvgDurationSeconds: avg,
		RecentFailures24h:  failures,
		TotalCompensations: compensations,
	}
	for status, n := range byStatus {
		stats.ByStatus[status.String()] = n
	}
	for kind, n := range byKind {
		stats.ByKind[kind.String()] = n
	}

	completed := byStatus[domain.WorkflowStatusCompleted]
	terminal := completed +
		byStatus[domain.WorkflowStatusFailed] +
		byStatus[domain.WorkflowStatusRolledBack] +
		byStatus[domain.WorkflowStatusRollbackFailed]
	if terminal > 0 {
		stats.SuccessRate = 100 * float64(completed) / float64(terminal)
	}
	stats.ActiveWorkflows = byStatus[domain.WorkflowStatusPending] +
		byStatus[domain.WorkflowStatusRunning] +
		byStatus[domain.WorkflowStatusRollingBack]
	return stats, nil
}

// Subscribe returns a channel of orchestration events. The subscription ends
// when ctx is canceled or the facade closes.
func (s *Service) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return s.broker.Subscribe(ctx)
}
