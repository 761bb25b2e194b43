package saga

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/saga/definition"
)

// DefaultRetryWait is the constant pause between handler attempts.
const DefaultRetryWait = 2 * time.Second

// Orchestrator runs workflow definitions as sagas. One orchestrator serves
// the whole process; workflows run concurrently, steps within a workflow
// strictly in sequence.
type Orchestrator struct {
	workflows domain.WorkflowRepository
	steps     domain.StepRepository
	registry  *Registry
	store     Store
	retryWait time.Duration
	notify    Notifier

	mu      sync.Mutex
	running map[int64]*cancelState
}

// Notifier observes run progress so callers can fan events out. Phases are
// the post-transition status names ("started", "completed", "failed",
// "rolled_back", "rollback_failed"; for steps also "compensated" and
// "compensation_failed"). Implementations must not block.
type Notifier interface {
	WorkflowPhase(wf *domain.Workflow, phase string)
	StepPhase(wf *domain.Workflow, step *domain.WorkflowStep, phase string)
}

// cancelState tracks a cooperative cancellation request for one running
// workflow. done closes when the run (including compensation) finishes.
type cancelState struct {
	requested atomic.Bool
	done      chan struct{}
}

// Option tunes the orchestrator.
type Option func(*Orchestrator)

// WithRetryWait overrides the constant pause between handler attempts.
// Tests use this to avoid real sleeps.
func WithRetryWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryWait = d }
}

// WithNotifier attaches a run observer.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notify = n }
}

// NewOrchestrator builds an orchestrator over the given persistence and
// handler registry.
func NewOrchestrator(workflows domain.WorkflowRepository, steps domain.StepRepository, registry *Registry, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workflows: workflows,
		steps:     steps,
		registry:  registry,
		store:     store,
		retryWait: DefaultRetryWait,
		running:   map[int64]*cancelState{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) register(workflowID int64) *cancelState {
	cs := &cancelState{done: make(chan struct{})}
	o.mu.Lock()
	o.running[workflowID] = cs
	o.mu.Unlock()
	return cs
}

func (o *Orchestrator) unregister(workflowID int64, cs *cancelState) {
	o.mu.Lock()
	delete(o.running, workflowID)
	o.mu.Unlock()
	close(cs.done)
}

func (o *Orchestrator) lookupRunning(workflowID int64) (*cancelState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cs, ok := o.running[workflowID]
	return cs, ok
}

// ExecuteWorkflow runs the definition against the workflow record. The
// workflow and its context are persisted through every transition; the
// returned workflow reflects the final state. A nil wfctx is hydrated from
// the workflow's stored context, which is how retries resume mid-run.
//
// A step failure classified permanent (or a cancellation) triggers the
// compensation pass; a transient failure that exhausted its retries leaves
// the workflow failed and retryable in place.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wf *domain.Workflow, def *definition.Definition, wfctx *Context) (*domain.Workflow, error) {
	if wfctx == nil {
		wfctx = ContextFromMap(wf.Context())
	}
	if wfctx.TenantID == "" {
		wfctx.TenantID = wf.TenantID()
	}
	if wfctx.SubscriberID == "" {
		wfctx.SubscriberID = wf.SubscriberID()
	}

	cs := o.register(wf.ID())
	defer o.unregister(wf.ID(), cs)

	// Every step record exists before the first handler runs, so a run that
	// fails partway leaves the never-reached steps visible as pending.
	steps, err := o.materializeSteps(wf, def)
	if err != nil {
		return wf, err
	}

	wf.Start()
	wf.SetTotalSteps(def.StepCount())
	if err := o.workflows.Save(wf); err != nil {
		return wf, fmt.Errorf("persisting workflow start: %w", err)
	}
	log.Info(log.CatSaga, "workflow started",
		"workflow_id", wf.WorkflowID(), "kind", wf.Kind().String(), "steps", def.StepCount())
	o.notifyWorkflow(wf, "started")

	var (
		forwardErr error
		failedStep *domain.WorkflowStep
	)
	for seq := 0; seq < def.StepCount(); seq++ {
		if cs.requested.Load() {
			forwardErr = ErrCanceled
			break
		}
		if err := ctx.Err(); err != nil {
			forwardErr = err
			break
		}

		step := steps[seq]
		if step.Status() == domain.StepStatusCompleted {
			// Already done in a previous run; its context effects were
			// persisted with the workflow when that run ended.
			continue
		}

		wf.SetCurrentStep(seq)
		if err := o.workflows.Save(wf); err != nil {
			return wf, fmt.Errorf("persisting workflow progress: %w", err)
		}

		forwardErr = o.runForward(ctx, wf, step, wfctx)
		if forwardErr != nil {
			failedStep = step
			break
		}
	}

	if forwardErr == nil {
		wf.SetContext(wfctx.ToMap())
		wf.SetOutputData(wfctx.ToMap())
		wf.MarkCompleted()
		if err := o.workflows.Save(wf); err != nil {
			return wf, fmt.Errorf("persisting workflow completion: %w", err)
		}
		log.Info(log.CatSaga, "workflow completed", "workflow_id", wf.WorkflowID())
		o.notifyWorkflow(wf, "completed")
		return wf, nil
	}

	// Forward pass is over; record the failure and the context so a retry
	// can resume with everything the completed steps produced.
	wf.SetContext(wfctx.ToMap())
	wf.MarkFailed(forwardErr.Error())
	if err := o.workflows.Save(wf); err != nil {
		return wf, fmt.Errorf("persisting workflow failure: %w", err)
	}
	o.notifyWorkflow(wf, "failed")

	execErr := &ExecutionError{
		WorkflowID: wf.WorkflowID(),
		Err:        forwardErr,
	}
	if failedStep != nil {
		execErr.StepName = failedStep.Name()
		execErr.StepSequence = failedStep.Sequence()
	}

	if !IsPermanent(forwardErr) && forwardErr != ErrCanceled && ctx.Err() == nil {
		// Transient exhaustion: leave the workflow failed and retryable in
		// place; completed steps keep their outputs.
		log.Warn(log.CatSaga, "workflow failed, retryable",
			"workflow_id", wf.WorkflowID(), "step", execErr.StepName, "error", forwardErr.Error())
		return wf, execErr
	}

	compErrs := o.compensate(ctx, wf)
	execErr.CompensationErrs = compErrs
	execErr.Compensated = len(compErrs) == 0
	return wf, execErr
}

// materializeSteps returns the workflow's durable step records indexed by
// sequence, creating the missing ones. On a fresh run that is the whole
// definition; on a retry the records from the previous run are reused with
// their statuses intact.
func (o *Orchestrator) materializeSteps(wf *domain.Workflow, def *definition.Definition) ([]*domain.WorkflowStep, error) {
	existing, err := o.steps.ListByWorkflow(wf.ID())
	if err != nil {
		return nil, fmt.Errorf("listing workflow steps: %w", err)
	}
	bySequence := make(map[int]*domain.WorkflowStep, len(existing))
	for _, step := range existing {
		bySequence[step.Sequence()] = step
	}

	steps := make([]*domain.WorkflowStep, def.StepCount())
	for seq := 0; seq < def.StepCount(); seq++ {
		if step, ok := bySequence[seq]; ok {
			steps[seq] = step
			continue
		}
		sd := def.Step(seq)
		step := domain.NewWorkflowStep(wf.ID(), sd.Name, seq)
		step.SetKind(domain.StepKind(sd.Kind))
		step.SetTargetSystem(sd.TargetSystem)
		step.SetHandlers(sd.Handler, sd.CompensationHandler)
		step.SetMaxRetries(sd.MaxRetries)
		if err := o.steps.Save(step); err != nil {
			return nil, fmt.Errorf("persisting step %q: %w", sd.Name, err)
		}
		steps[seq] = step
	}
	return steps, nil
}

// runForward executes one step's forward handler with retries. A nil return
// means the step completed and the context was updated.
func (o *Orchestrator) runForward(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep, wfctx *Context) error {
	step.SetInputData(wfctx.ToMap())
	step.Start()
	if err := o.steps.Save(step); err != nil {
		return fmt.Errorf("persisting step start: %w", err)
	}
	o.notifyStep(wf, step, "started")

	handler, ok := o.registry.Forward(step.HandlerName())
	if !ok {
		err := Permanent(fmt.Errorf("%w: %q", ErrHandlerNotFound, step.HandlerName()))
		step.MarkFailed(err.Error())
		if saveErr := o.steps.Save(step); saveErr != nil {
			log.ErrorErr(log.CatSaga, "failed to persist step failure", saveErr, "step", step.Name())
		}
		o.notifyStep(wf, step, "failed")
		return err
	}

	attempt := func() (*HandlerResult, error) {
		result, err := o.invoke(ctx, handler, step, wfctx)
		if err != nil {
			step.IncrementRetryCount()
			log.Warn(log.CatSaga, "step attempt failed",
				"step", step.Name(), "attempt", step.RetryCount(), "error", err.Error())
			if IsPermanent(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.retryWait)),
		backoff.WithMaxTries(uint(step.MaxRetries()+1)))
	if err != nil {
		step.MarkFailed(err.Error())
		if saveErr := o.steps.Save(step); saveErr != nil {
			log.ErrorErr(log.CatSaga, "failed to persist step failure", saveErr, "step", step.Name())
		}
		o.notifyStep(wf, step, "failed")
		return err
	}
	if result == nil {
		result = &HandlerResult{}
	}

	step.Complete(result.OutputData, result.CompensationData)
	if err := o.steps.Save(step); err != nil {
		return fmt.Errorf("persisting step completion: %w", err)
	}
	wfctx.Apply(result.Updates)
	log.Debug(log.CatSaga, "step completed", "step", step.Name(), "sequence", step.Sequence())
	o.notifyStep(wf, step, "completed")
	return nil
}

// invoke calls the handler with panic recovery. A panicking handler is a
// step failure, not a process crash; it is treated as non-retryable.
func (o *Orchestrator) invoke(ctx context.Context, handler ForwardHandler, step *domain.WorkflowStep, wfctx *Context) (result *HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler %q panicked: %v", step.HandlerName(), r))
		}
	}()
	return handler(ctx, step.InputData(), wfctx, o.store)
}

// compensate walks the completed steps in descending sequence and invokes
// their compensators. It moves the workflow through rolling_back into
// rolled_back, or rollback_failed when any compensator ends in failure.
// One compensator failing does not stop the walk.
func (o *Orchestrator) compensate(ctx context.Context, wf *domain.Workflow) []string {
	wf.StartCompensation()
	if err := o.workflows.Save(wf); err != nil {
		return []string{fmt.Sprintf("persisting rollback start: %v", err)}
	}
	log.Info(log.CatSaga, "workflow compensation started", "workflow_id", wf.WorkflowID())

	completed, err := o.steps.ListCompletedDescending(wf.ID())
	if err != nil {
		msg := fmt.Sprintf("listing completed steps: %v", err)
		wf.MarkRollbackFailed(msg)
		_ = o.workflows.Save(wf)
		return []string{msg}
	}

	var compErrs []string
	for _, step := range completed {
		if err := o.compensateStep(ctx, wf, step); err != nil {
			compErrs = append(compErrs, fmt.Sprintf("step %d (%s): %v", step.Sequence(), step.Name(), err))
		}
	}

	if len(compErrs) == 0 {
		wf.MarkRolledBack()
	} else {
		wf.MarkRollbackFailed(strings.Join(compErrs, "; "))
	}
	if err := o.workflows.Save(wf); err != nil {
		compErrs = append(compErrs, fmt.Sprintf("persisting rollback outcome: %v", err))
	}
	log.Info(log.CatSaga, "workflow compensation finished",
		"workflow_id", wf.WorkflowID(), "status", wf.Status().String(), "errors", len(compErrs))
	o.notifyWorkflow(wf, wf.Status().String())
	return compErrs
}

func (o *Orchestrator) notifyWorkflow(wf *domain.Workflow, phase string) {
	if o.notify != nil {
		o.notify.WorkflowPhase(wf, phase)
	}
}

func (o *Orchestrator) notifyStep(wf *domain.Workflow, step *domain.WorkflowStep, phase string) {
	if o.notify != nil {
		o.notify.StepPhase(wf, step, phase)
	}
}

func (o *Orchestrator) compensateStep(ctx context.Context, wf *domain.Workflow, step *domain.WorkflowStep) error {
	// No compensator declared: a no-op undo is legal for irreversible
	// operations, the step is simply marked compensated.
	if step.CompensationHandlerName() == "" {
		step.MarkCompensated()
		if err := o.steps.Save(step); err != nil {
			return err
		}
		o.notifyStep(wf, step, "compensated")
		return nil
	}

	handler, ok := o.registry.Compensation(step.CompensationHandlerName())
	if !ok {
		step.StartCompensation()
		step.MarkCompensationFailed(fmt.Sprintf("compensation handler %q not registered", step.CompensationHandlerName()))
		_ = o.steps.Save(step)
		return fmt.Errorf("%w: %q", ErrHandlerNotFound, step.CompensationHandlerName())
	}

	step.StartCompensation()
	if err := o.steps.Save(step); err != nil {
		return fmt.Errorf("persisting compensation start: %w", err)
	}

	attempt := func() (struct{}, error) {
		err := o.invokeCompensation(ctx, handler, step)
		if err != nil && IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.retryWait)),
		backoff.WithMaxTries(uint(step.MaxRetries()+1)))
	if err != nil {
		step.MarkCompensationFailed(err.Error())
		if saveErr := o.steps.Save(step); saveErr != nil {
			log.ErrorErr(log.CatSaga, "failed to persist compensation failure", saveErr, "step", step.Name())
		}
		o.notifyStep(wf, step, "compensation_failed")
		return err
	}

	step.MarkCompensated()
	if err := o.steps.Save(step); err != nil {
		return err
	}
	o.notifyStep(wf, step, "compensated")
	return nil
}

func (o *Orchestrator) invokeCompensation(ctx context.Context, handler CompensationHandler, step *domain.WorkflowStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("compensator %q panicked: %v", step.CompensationHandlerName(), r))
		}
	}()
	return handler(ctx, step.OutputData(), step.CompensationData(), o.store)
}

// RetryWorkflow prepares a failed or rolled-back workflow for another run.
// Non-completed steps are reset to pending; after a rollback every step was
// compensated, so the run restarts from sequence zero. The caller re-invokes
// ExecuteWorkflow afterwards.
func (o *Orchestrator) RetryWorkflow(wf *domain.Workflow) error {
	if !wf.CanRetry() {
		return fmt.Errorf("%w: status %s, retries %d/%d",
			ErrNotRetryable, wf.Status(), wf.RetryCount(), wf.MaxRetries())
	}

	steps, err := o.steps.ListByWorkflow(wf.ID())
	if err != nil {
		return fmt.Errorf("listing workflow steps: %w", err)
	}
	for _, step := range steps {
		if step.Status() == domain.StepStatusCompleted || step.Status() == domain.StepStatusPending {
			continue
		}
		step.Reset()
		if err := o.steps.Save(step); err != nil {
			return fmt.Errorf("resetting step %q: %w", step.Name(), err)
		}
	}

	wf.PrepareRetry()
	if err := o.workflows.Save(wf); err != nil {
		return fmt.Errorf("persisting workflow retry: %w", err)
	}
	log.Info(log.CatSaga, "workflow prepared for retry",
		"workflow_id", wf.WorkflowID(), "retry_count", wf.RetryCount())
	return nil
}

// CancelWorkflow cancels a pending or running workflow. For a running
// workflow the cancellation is cooperative: the in-flight handler finishes
// first, then compensation runs against whatever completed; this call
// returns once that run has wound down. For a pending workflow (or a
// running record with no live executor in this process) compensation runs
// immediately against the steps completed so far.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, wf *domain.Workflow) error {
	switch wf.Status() {
	case domain.WorkflowStatusRunning:
		if cs, ok := o.lookupRunning(wf.ID()); ok {
			cs.requested.Store(true)
			log.Info(log.CatSaga, "workflow cancellation requested", "workflow_id", wf.WorkflowID())
			select {
			case <-cs.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// No live executor holds this workflow (e.g. orphaned by a crash);
		// compensate directly.
		fallthrough
	case domain.WorkflowStatusPending:
		wf.MarkFailed(ErrCanceled.Error())
		if err := o.workflows.Save(wf); err != nil {
			return fmt.Errorf("persisting cancellation: %w", err)
		}
		if compErrs := o.compensate(ctx, wf); len(compErrs) > 0 {
			return fmt.Errorf("cancellation compensation: %s", strings.Join(compErrs, "; "))
		}
		return nil
	default:
		return fmt.Errorf("%w: status %s", ErrNotCancelable, wf.Status())
	}
}
