package saga

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/saga/definition"
)

// memWorkflows is an in-memory WorkflowRepository for orchestrator tests.
type memWorkflows struct {
	mu     sync.Mutex
	byID   map[int64]*domain.Workflow
	nextID int64
}

func newMemWorkflows() *memWorkflows {
	return &memWorkflows{byID: map[int64]*domain.Workflow{}}
}

func (r *memWorkflows) Save(wf *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wf.ID() == 0 {
		r.nextID++
		wf.SetID(r.nextID)
	}
	r.byID[wf.ID()] = wf
	return nil
}

func (r *memWorkflows) FindByWorkflowID(tenantID, workflowID string) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wf := range r.byID {
		if wf.TenantID() == tenantID && wf.WorkflowID() == workflowID {
			return wf, nil
		}
	}
	return nil, &domain.WorkflowNotFoundError{WorkflowID: workflowID, TenantID: tenantID}
}

func (r *memWorkflows) FindByID(id int64) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.byID[id]
	if !ok {
		return nil, &domain.WorkflowNotFoundError{}
	}
	return wf, nil
}

func (r *memWorkflows) ListWithFilter(string, domain.WorkflowListFilter) ([]*domain.Workflow, error) {
	return nil, nil
}

func (r *memWorkflows) CountByStatus(string) (map[domain.WorkflowStatus]int, error) {
	return nil, nil
}

func (r *memWorkflows) CountByKind(string) (map[domain.WorkflowKind]int, error) {
	return nil, nil
}

func (r *memWorkflows) AverageCompletionSeconds(string) (float64, error) { return 0, nil }

func (r *memWorkflows) CountFailedSince(string, time.Time) (int, error) { return 0, nil }

// memSteps is an in-memory StepRepository for orchestrator tests.
type memSteps struct {
	mu     sync.Mutex
	byID   map[int64]*domain.WorkflowStep
	nextID int64
}

func newMemSteps() *memSteps {
	return &memSteps{byID: map[int64]*domain.WorkflowStep{}}
}

func (r *memSteps) Save(step *domain.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if step.ID() == 0 {
		r.nextID++
		step.SetID(r.nextID)
	}
	r.byID[step.ID()] = step
	return nil
}

func (r *memSteps) FindBySequence(workflowID int64, sequence int) (*domain.WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, step := range r.byID {
		if step.WorkflowID() == workflowID && step.Sequence() == sequence {
			return step, nil
		}
	}
	return nil, &domain.StepNotFoundError{WorkflowID: workflowID, Sequence: sequence}
}

func (r *memSteps) ListByWorkflow(workflowID int64) ([]*domain.WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var steps []*domain.WorkflowStep
	for _, step := range r.byID {
		if step.WorkflowID() == workflowID {
			steps = append(steps, step)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Sequence() < steps[j].Sequence() })
	return steps, nil
}

func (r *memSteps) ListCompletedDescending(workflowID int64) ([]*domain.WorkflowStep, error) {
	all, _ := r.ListByWorkflow(workflowID)
	var completed []*domain.WorkflowStep
	for _, step := range all {
		if step.Status() == domain.StepStatusCompleted {
			completed = append(completed, step)
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].Sequence() > completed[j].Sequence() })
	return completed, nil
}

func (r *memSteps) CountCompensated(string) (int, error) { return 0, nil }

// nullStore satisfies Store for handlers that never touch persistence.
type nullStore struct{}

func (nullStore) Profiles() domain.ProfileRepository { return nil }
func (nullStore) Services() domain.ServiceRepository { return nil }
func (nullStore) Events() domain.EventRepository     { return nil }

type testEnv struct {
	orch      *Orchestrator
	workflows *memWorkflows
	steps     *memSteps
	registry  *Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	workflows := newMemWorkflows()
	steps := newMemSteps()
	registry := NewRegistry()
	orch := NewOrchestrator(workflows, steps, registry, nullStore{},
		WithRetryWait(time.Millisecond))
	return &testEnv{orch: orch, workflows: workflows, steps: steps, registry: registry}
}

func (e *testEnv) newWorkflow(t *testing.T) *domain.Workflow {
	t.Helper()
	wf := domain.NewWorkflow("wf-test", domain.WorkflowKindProvisionSubscriber, "tenant-1")
	require.NoError(t, e.workflows.Save(wf))
	return wf
}

func threeStepDef(handlers [3]string, compensators [3]string) *definition.Definition {
	def := &definition.Definition{Name: "test_flow"}
	names := []string{"first", "second", "third"}
	for i := range names {
		def.Steps = append(def.Steps, definition.StepDefinition{
			Name:                names[i],
			Kind:                definition.StepKindAPI,
			TargetSystem:        "test",
			Handler:             handlers[i],
			CompensationHandler: compensators[i],
			MaxRetries:          2,
		})
	}
	return def
}

func okHandler(calls *[]string, name string, updates ContextUpdates) ForwardHandler {
	return func(_ context.Context, _ map[string]any, _ *Context, _ Store) (*HandlerResult, error) {
		*calls = append(*calls, name)
		return &HandlerResult{
			OutputData:       map[string]any{"by": name},
			CompensationData: map[string]any{"undo": name},
			Updates:          updates,
		}, nil
	}
}

func okCompensator(calls *[]string, name string) CompensationHandler {
	return func(_ context.Context, _, compensationData map[string]any, _ Store) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestExecuteWorkflow_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	var calls []string

	require.NoError(t, env.registry.RegisterForward("h1", okHandler(&calls, "h1", ContextUpdates{CustomerID: "cust-1"})))
	require.NoError(t, env.registry.RegisterForward("h2", okHandler(&calls, "h2", ContextUpdates{ExternalIDs: map[string]string{"billing": "bill-1"}})))
	require.NoError(t, env.registry.RegisterForward("h3", okHandler(&calls, "h3", ContextUpdates{})))

	def := threeStepDef([3]string{"h1", "h2", "h3"}, [3]string{"", "", ""})
	wf := env.newWorkflow(t)

	result, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{TenantID: "tenant-1", SubscriberID: "sub-1"})
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStatusCompleted, result.Status())
	require.NotNil(t, result.CompletedAt())
	require.Equal(t, []string{"h1", "h2", "h3"}, calls)
	require.Equal(t, 3, result.TotalSteps())

	// Context updates from the steps landed in the persisted context.
	persisted := ContextFromMap(result.Context())
	require.Equal(t, "cust-1", persisted.CustomerID)
	require.Equal(t, "bill-1", persisted.ExternalID("billing"))

	steps, err := env.steps.ListByWorkflow(wf.ID())
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for _, step := range steps {
		require.Equal(t, domain.StepStatusCompleted, step.Status())
		require.NotNil(t, step.CompletedAt())
		require.Equal(t, map[string]any{"undo": step.HandlerName()}, step.CompensationData())
	}
}

func TestExecuteWorkflow_PermanentFailureCompensates(t *testing.T) {
	env := newTestEnv(t)
	var forward, comp []string

	require.NoError(t, env.registry.RegisterForward("h1", okHandler(&forward, "h1", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterForward("h2", okHandler(&forward, "h2", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterForward("boom", func(_ context.Context, _ map[string]any, _ *Context, _ Store) (*HandlerResult, error) {
		forward = append(forward, "boom")
		return nil, Permanent(errors.New("rejected by target"))
	}))
	require.NoError(t, env.registry.RegisterCompensation("c1", okCompensator(&comp, "c1")))
	require.NoError(t, env.registry.RegisterCompensation("c2", okCompensator(&comp, "c2")))

	def := threeStepDef([3]string{"h1", "h2", "boom"}, [3]string{"c1", "c2", ""})
	wf := env.newWorkflow(t)

	result, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "third", execErr.StepName)
	require.Equal(t, 2, execErr.StepSequence)
	require.True(t, execErr.Compensated)
	require.ErrorContains(t, execErr.Err, "rejected by target")

	require.Equal(t, domain.WorkflowStatusRolledBack, result.Status())
	require.NotEmpty(t, result.ErrorMessage(), "the forward error is never masked")
	require.NotNil(t, result.CompensationCompletedAt())

	// A permanent failure is not retried.
	require.Equal(t, []string{"h1", "h2", "boom"}, forward)
	// Compensation walks completed steps in reverse.
	require.Equal(t, []string{"c2", "c1"}, comp)

	steps, _ := env.steps.ListByWorkflow(wf.ID())
	require.Equal(t, domain.StepStatusCompensated, steps[0].Status())
	require.Equal(t, domain.StepStatusCompensated, steps[1].Status())
	require.Equal(t, domain.StepStatusFailed, steps[2].Status())
}

func TestExecuteWorkflow_TransientFailureIsRetriedThenLeftRetryable(t *testing.T) {
	env := newTestEnv(t)
	var calls []string
	healthy := false

	require.NoError(t, env.registry.RegisterForward("h1", okHandler(&calls, "h1", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterForward("flaky", func(_ context.Context, _ map[string]any, _ *Context, _ Store) (*HandlerResult, error) {
		calls = append(calls, "flaky")
		if !healthy {
			return nil, errors.New("connection timeout")
		}
		return &HandlerResult{}, nil
	}))
	require.NoError(t, env.registry.RegisterForward("h3", okHandler(&calls, "h3", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterCompensation("c1", okCompensator(&calls, "c1")))

	def := threeStepDef([3]string{"h1", "flaky", "h3"}, [3]string{"c1", "", ""})
	wf := env.newWorkflow(t)

	result, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{})
	require.Error(t, err)
	require.Equal(t, domain.WorkflowStatusFailed, result.Status())

	// MaxRetries=2 means three attempts, and no compensation ran.
	require.Equal(t, []string{"h1", "flaky", "flaky", "flaky"}, calls)
	steps, _ := env.steps.ListByWorkflow(wf.ID())
	require.Equal(t, domain.StepStatusCompleted, steps[0].Status())
	require.Equal(t, domain.StepStatusFailed, steps[1].Status())
	require.Equal(t, 3, steps[1].RetryCount())

	// Root cause fixed; retry resumes at the failed step.
	healthy = true
	calls = nil
	require.NoError(t, env.orch.RetryWorkflow(wf))
	require.Equal(t, domain.WorkflowStatusPending, wf.Status())
	require.Equal(t, 1, wf.RetryCount())

	result, err = env.orch.ExecuteWorkflow(context.Background(), wf, def, nil)
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStatusCompleted, result.Status())
	require.Equal(t, []string{"flaky", "h3"}, calls, "completed steps are not re-run")
}

func TestExecuteWorkflow_MissingHandlerCompensates(t *testing.T) {
	env := newTestEnv(t)
	var calls []string

	require.NoError(t, env.registry.RegisterForward("h1", okHandler(&calls, "h1", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterCompensation("c1", okCompensator(&calls, "c1")))

	def := threeStepDef([3]string{"h1", "ghost", "h3"}, [3]string{"c1", "", ""})
	wf := env.newWorkflow(t)

	result, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{})
	require.ErrorIs(t, err, ErrHandlerNotFound)
	require.Equal(t, domain.WorkflowStatusRolledBack, result.Status())
	require.Equal(t, []string{"h1", "c1"}, calls)

	// Every step record exists even though the run stopped at the second;
	// the one after the failure is visible as pending.
	steps, _ := env.steps.ListByWorkflow(wf.ID())
	require.Len(t, steps, 3)
	require.Equal(t, domain.StepStatusCompensated, steps[0].Status())
	require.Equal(t, domain.StepStatusFailed, steps[1].Status())
	require.Equal(t, domain.StepStatusPending, steps[2].Status())
}

func TestExecuteWorkflow_PanickingHandlerIsAStepFailure(t *testing.T) {
	env := newTestEnv(t)
	var calls []string

	require.NoError(t, env.registry.RegisterForward("h1", okHandler(&calls, "h1", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterForward("panicky", func(_ context.Context, _ map[string]any, _ *Context, _ Store) (*HandlerResult, error) {
		panic("nil dereference in handler")
	}))
	require.NoError(t, env.registry.RegisterCompensation("c1", okCompensator(&calls, "c1")))

	def := threeStepDef([3]string{"h1", "panicky", "h3"}, [3]string{"c1", "", ""})
	wf := env.newWorkflow(t)

	result, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{})
	require.Error(t, err)
	require.ErrorContains(t, err, "panicked")
	require.Equal(t, domain.WorkflowStatusRolledBack, result.Status())
	require.Equal(t, []string{"h1", "c1"}, calls)
}

func TestExecuteWorkflow_CompensatorFailureMeansRollbackFailed(t *testing.T) {
	env := newTestEnv(t)
	var calls []string

	require.NoError(t, env.registry.RegisterForward("h1", okHandler(&calls, "h1", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterForward("h2", okHandler(&calls, "h2", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterForward("boom", func(_ context.Context, _ map[string]any, _ *Context, _ Store) (*HandlerResult, error) {
		return nil, Permanent(errors.New("rejected"))
	}))
	require.NoError(t, env.registry.RegisterCompensation("c1", okCompensator(&calls, "c1")))
	require.NoError(t, env.registry.RegisterCompensation("cboom", func(_ context.Context, _, _ map[string]any, _ Store) error {
		return Permanent(errors.New("undo rejected"))
	}))

	def := threeStepDef([3]string{"h1", "h2", "boom"}, [3]string{"c1", "cboom", ""})
	wf := env.newWorkflow(t)

	result, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.False(t, execErr.Compensated)
	require.Len(t, execErr.CompensationErrs, 1)
	require.ErrorContains(t, execErr.Err, "rejected", "the forward error still travels")

	require.Equal(t, domain.WorkflowStatusRollbackFailed, result.Status())
	require.Contains(t, result.CompensationError(), "undo rejected")

	// The failed compensator did not stop the walk: step one was still undone.
	steps, _ := env.steps.ListByWorkflow(wf.ID())
	require.Equal(t, domain.StepStatusCompensated, steps[0].Status())
	require.Equal(t, domain.StepStatusCompensationFailed, steps[1].Status())
}

func TestRetryWorkflow_Guards(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.RegisterForward("h", okHandler(&[]string{}, "h", ContextUpdates{})))

	wf := env.newWorkflow(t)
	require.ErrorIs(t, env.orch.RetryWorkflow(wf), ErrNotRetryable, "pending is not retryable")

	wf.Start()
	wf.MarkCompleted()
	require.ErrorIs(t, env.orch.RetryWorkflow(wf), ErrNotRetryable, "completed is not retryable")
}

func TestRetryWorkflow_AfterRollbackRestartsFromZero(t *testing.T) {
	env := newTestEnv(t)
	var calls []string
	failing := true

	require.NoError(t, env.registry.RegisterForward("h1", okHandler(&calls, "h1", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterForward("maybe", func(_ context.Context, _ map[string]any, _ *Context, _ Store) (*HandlerResult, error) {
		calls = append(calls, "maybe")
		if failing {
			return nil, Permanent(errors.New("rejected"))
		}
		return &HandlerResult{}, nil
	}))
	require.NoError(t, env.registry.RegisterCompensation("c1", okCompensator(&calls, "c1")))

	def := threeStepDef([3]string{"h1", "maybe", "h1x"}, [3]string{"c1", "", ""})
	def.Steps[2].Handler = "h1"
	wf := env.newWorkflow(t)

	_, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{})
	require.Error(t, err)
	require.Equal(t, domain.WorkflowStatusRolledBack, wf.Status())

	failing = false
	calls = nil
	require.NoError(t, env.orch.RetryWorkflow(wf))

	result, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, nil)
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStatusCompleted, result.Status())
	require.Equal(t, []string{"h1", "maybe", "h1"}, calls, "a rolled-back run restarts from sequence zero")
}

func TestCancelWorkflow_PendingLeavesNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	wf := env.newWorkflow(t)

	require.NoError(t, env.orch.CancelWorkflow(context.Background(), wf))
	require.Equal(t, domain.WorkflowStatusRolledBack, wf.Status())

	steps, _ := env.steps.ListByWorkflow(wf.ID())
	require.Empty(t, steps, "nothing ran, nothing to compensate")
}

func TestCancelWorkflow_TerminalIsRejected(t *testing.T) {
	env := newTestEnv(t)
	wf := env.newWorkflow(t)
	wf.Start()
	wf.MarkCompleted()

	require.ErrorIs(t, env.orch.CancelWorkflow(context.Background(), wf), ErrNotCancelable)
}

func TestCancelWorkflow_RunningIsCooperative(t *testing.T) {
	env := newTestEnv(t)
	var calls []string
	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, env.registry.RegisterForward("slow", func(_ context.Context, _ map[string]any, _ *Context, _ Store) (*HandlerResult, error) {
		close(started)
		<-release
		return &HandlerResult{OutputData: map[string]any{"by": "slow"}}, nil
	}))
	require.NoError(t, env.registry.RegisterForward("h2", okHandler(&calls, "h2", ContextUpdates{})))
	require.NoError(t, env.registry.RegisterCompensation("cslow", okCompensator(&calls, "cslow")))

	def := threeStepDef([3]string{"slow", "h2", "h2"}, [3]string{"cslow", "", ""})
	wf := env.newWorkflow(t)

	execDone := make(chan error, 1)
	go func() {
		_, err := env.orch.ExecuteWorkflow(context.Background(), wf, def, &Context{})
		execDone <- err
	}()

	<-started
	cancelDone := make(chan error, 1)
	go func() { cancelDone <- env.orch.CancelWorkflow(context.Background(), wf) }()

	// Give the cancellation request time to land, then let the in-flight
	// handler finish on its own. No forced interrupt.
	time.Sleep(100 * time.Millisecond)
	close(release)

	require.NoError(t, <-cancelDone, "cancel returns once the run wound down")
	err := <-execDone
	require.ErrorIs(t, err, ErrCanceled)

	require.Equal(t, domain.WorkflowStatusRolledBack, wf.Status())
	require.Equal(t, []string{"cslow"}, calls, "the in-flight step completed, then was compensated; later steps never ran")

	steps, _ := env.steps.ListByWorkflow(wf.ID())
	require.Len(t, steps, 3)
	require.Equal(t, domain.StepStatusCompensated, steps[0].Status())
	require.Equal(t, domain.StepStatusPending, steps[1].Status())
	require.Equal(t, domain.StepStatusPending, steps[2].Status())
}
