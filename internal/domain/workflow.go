// Package domain provides the pure domain layer for switchyard with no
// infrastructure dependencies.
//
// This package follows Domain-Driven Design (DDD) principles:
//   - Contains only pure Go code with standard library imports (time package only)
//   - Defines the Workflow, WorkflowStep, ServiceInstance, SubscriberNetworkProfile,
//     and LifecycleEvent entities with encapsulated state and behavior
//   - Defines repository interfaces for persistence abstraction
//   - Provides domain-specific error types
//
// The domain layer has no knowledge of infrastructure concerns (databases, file I/O, etc.).
package domain

import "time"

// WorkflowKind identifies which declarative definition a workflow run executes.
type WorkflowKind string

const (
	WorkflowKindProvisionSubscriber   WorkflowKind = "provision_subscriber"
	WorkflowKindDeprovisionSubscriber WorkflowKind = "deprovision_subscriber"
	WorkflowKindActivateService       WorkflowKind = "activate_service"
	WorkflowKindSuspendService        WorkflowKind = "suspend_service"
	WorkflowKindTerminateService      WorkflowKind = "terminate_service"
	WorkflowKindChangeServicePlan     WorkflowKind = "change_service_plan"
	WorkflowKindUpdateNetworkConfig   WorkflowKind = "update_network_config"
	WorkflowKindMigrateSubscriber     WorkflowKind = "migrate_subscriber"
)

// String returns the string representation of the workflow kind.
func (k WorkflowKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is a recognized workflow kind.
func (k WorkflowKind) IsValid() bool {
	switch k {
	case WorkflowKindProvisionSubscriber, WorkflowKindDeprovisionSubscriber,
		WorkflowKindActivateService, WorkflowKindSuspendService,
		WorkflowKindTerminateService, WorkflowKindChangeServicePlan,
		WorkflowKindUpdateNetworkConfig, WorkflowKindMigrateSubscriber:
		return true
	default:
		return false
	}
}

// AllWorkflowKinds returns every recognized workflow kind.
func AllWorkflowKinds() []WorkflowKind {
	return []WorkflowKind{
		WorkflowKindProvisionSubscriber,
		WorkflowKindDeprovisionSubscriber,
		WorkflowKindActivateService,
		WorkflowKindSuspendService,
		WorkflowKindTerminateService,
		WorkflowKindChangeServicePlan,
		WorkflowKindUpdateNetworkConfig,
		WorkflowKindMigrateSubscriber,
	}
}

// WorkflowStatus represents the lifecycle status of a workflow run.
type WorkflowStatus string

const (
	// WorkflowStatusPending indicates the workflow is created but not yet started.
	WorkflowStatusPending WorkflowStatus = "pending"

	// WorkflowStatusRunning indicates the forward pass is executing.
	WorkflowStatusRunning WorkflowStatus = "running"

	// WorkflowStatusCompleted indicates every step completed.
	WorkflowStatusCompleted WorkflowStatus = "completed"

	// WorkflowStatusFailed indicates the forward pass failed; compensation
	// may not have run yet.
	WorkflowStatusFailed WorkflowStatus = "failed"

	// WorkflowStatusPartiallyCompleted indicates some steps completed but the
	// run stopped without compensation. Set by operators, never by the engine.
	WorkflowStatusPartiallyCompleted WorkflowStatus = "partially_completed"

	// WorkflowStatusRollingBack indicates compensation is executing.
	WorkflowStatusRollingBack WorkflowStatus = "rolling_back"

	// WorkflowStatusRolledBack indicates every completed step was compensated.
	WorkflowStatusRolledBack WorkflowStatus = "rolled_back"

	// WorkflowStatusRollbackFailed indicates at least one compensator
	// exhausted its retries.
	WorkflowStatusRollbackFailed WorkflowStatus = "rollback_failed"

	// WorkflowStatusTimeout indicates the run exceeded its deadline.
	WorkflowStatusTimeout WorkflowStatus = "timeout"

	// WorkflowStatusCompensated indicates compensation applied outside a
	// rollback pass. Kept for compatibility with imported records.
	WorkflowStatusCompensated WorkflowStatus = "compensated"
)

// String returns the string representation of the workflow status.
func (s WorkflowStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized workflow status.
func (s WorkflowStatus) IsValid() bool {
	_, ok := validWorkflowTransitions[s]
	return ok
}

// validWorkflowTransitions is the legal-transition table for workflow status.
// Retry edges (failed|rolled_back -> pending) make the graph cyclic, so
// transitions are table lookups rather than ordered comparisons.
var validWorkflowTransitions = map[WorkflowStatus]map[WorkflowStatus]bool{
	WorkflowStatusPending: {
		WorkflowStatusRunning:     true,
		WorkflowStatusRollingBack: true, // cancel before start
	},
	WorkflowStatusRunning: {
		WorkflowStatusCompleted:          true,
		WorkflowStatusFailed:             true,
		WorkflowStatusRollingBack:        true, // cancel mid-flight
		WorkflowStatusTimeout:            true,
		WorkflowStatusPartiallyCompleted: true,
	},
	WorkflowStatusFailed: {
		WorkflowStatusRollingBack: true,
		WorkflowStatusPending:     true, // retry
	},
	WorkflowStatusRollingBack: {
		WorkflowStatusRolledBack:     true,
		WorkflowStatusRollbackFailed: true,
		WorkflowStatusCompensated:    true,
	},
	WorkflowStatusRolledBack: {
		WorkflowStatusPending: true, // retry restarts from zero
	},
	WorkflowStatusPartiallyCompleted: {
		WorkflowStatusRollingBack: true,
	},
	WorkflowStatusTimeout: {
		WorkflowStatusRollingBack: true,
	},
	WorkflowStatusCompleted:      {},
	WorkflowStatusRollbackFailed: {},
	WorkflowStatusCompensated:    {},
}

// CanTransitionTo returns true if the status may legally move to target.
func (s WorkflowStatus) CanTransitionTo(target WorkflowStatus) bool {
	targets, ok := validWorkflowTransitions[s]
	if !ok {
		return false
	}
	return targets[target]
}

// IsTerminal returns true if no further transitions are legal from this status.
func (s WorkflowStatus) IsTerminal() bool {
	targets, ok := validWorkflowTransitions[s]
	return ok && len(targets) == 0
}

// ValidTargets returns the statuses reachable from this status in one transition.
func (s WorkflowStatus) ValidTargets() []WorkflowStatus {
	targets := validWorkflowTransitions[s]
	out := make([]WorkflowStatus, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	return out
}

// InitiatorKind classifies who started a workflow.
type InitiatorKind string

const (
	InitiatorKindUser   InitiatorKind = "user"
	InitiatorKindSystem InitiatorKind = "system"
	InitiatorKindAPI    InitiatorKind = "api"
)

// IsValid returns true if the initiator kind is recognized.
func (k InitiatorKind) IsValid() bool {
	switch k {
	case InitiatorKindUser, InitiatorKindSystem, InitiatorKindAPI:
		return true
	default:
		return false
	}
}

// Workflow represents one durable run of a saga. All fields are unexported to
// enforce encapsulation; use the constructor and getter methods to access data.
type Workflow struct {
	id            int64
	workflowID    string
	kind          WorkflowKind
	status        WorkflowStatus
	tenantID      string
	subscriberID  string
	initiator     string
	initiatorKind InitiatorKind

	inputData  map[string]any
	outputData map[string]any
	context    map[string]any

	currentStep int
	totalSteps  int

	retryCount int
	maxRetries int

	errorMessage      string
	compensationError string

	createdAt               time.Time
	startedAt               *time.Time
	completedAt             *time.Time
	failedAt                *time.Time
	compensationStartedAt   *time.Time
	compensationCompletedAt *time.Time
	updatedAt               time.Time
}

// NewWorkflow creates a new Workflow in the pending status. The createdAt and
// updatedAt timestamps are set to the current time. The ID is left as zero;
// it will be assigned by the persistence layer.
func NewWorkflow(workflowID string, kind WorkflowKind, tenantID string) *Workflow {
	now := time.Now()
	return &Workflow{
		workflowID:    workflowID,
		kind:          kind,
		status:        WorkflowStatusPending,
		tenantID:      tenantID,
		initiatorKind: InitiatorKindSystem,
		maxRetries:    3,
		createdAt:     now,
		updatedAt:     now,
	}
}

// ReconstituteWorkflow creates a Workflow from existing data, typically when
// hydrating from the database. All fields are provided explicitly.
func ReconstituteWorkflow(
	id int64,
	workflowID string,
	kind WorkflowKind,
	status WorkflowStatus,
	tenantID, subscriberID string,
	initiator string,
	initiatorKind InitiatorKind,
	inputData, outputData, context map[string]any,
	currentStep, totalSteps int,
	retryCount, maxRetries int,
	errorMessage, compensationError string,
	createdAt time.Time,
	startedAt, completedAt, failedAt, compensationStartedAt, compensationCompletedAt *time.Time,
	updatedAt time.Time,
) *Workflow {
	return &Workflow{
		id:                      id,
		workflowID:              workflowID,
		kind:                    kind,
		status:                  status,
		tenantID:                tenantID,
		subscriberID:            subscriberID,
		initiator:               initiator,
		initiatorKind:           initiatorKind,
		inputData:               inputData,
		outputData:              outputData,
		context:                 context,
		currentStep:             currentStep,
		totalSteps:              totalSteps,
		retryCount:              retryCount,
		maxRetries:              maxRetries,
		errorMessage:            errorMessage,
		compensationError:       compensationError,
		createdAt:               createdAt,
		startedAt:               startedAt,
		completedAt:             completedAt,
		failedAt:                failedAt,
		compensationStartedAt:   compensationStartedAt,
		compensationCompletedAt: compensationCompletedAt,
		updatedAt:               updatedAt,
	}
}

// ID returns the database identifier for this workflow.
// Returns 0 for newly created workflows that haven't been persisted.
func (w *Workflow) ID() int64 { return w.id }

// WorkflowID returns the opaque unique identifier for this workflow run.
func (w *Workflow) WorkflowID() string { return w.workflowID }

// Kind returns which definition this run executes.
func (w *Workflow) Kind() WorkflowKind { return w.kind }

// Status returns the current workflow status.
func (w *Workflow) Status() WorkflowStatus { return w.status }

// TenantID returns the tenant scope of this run.
func (w *Workflow) TenantID() string { return w.tenantID }

// SubscriberID returns the subscriber this run concerns, if any.
func (w *Workflow) SubscriberID() string { return w.subscriberID }

// Initiator returns the identity that started this run.
func (w *Workflow) Initiator() string { return w.initiator }

// InitiatorKind returns whether a user, the system, or an API call started this run.
func (w *Workflow) InitiatorKind() InitiatorKind { return w.initiatorKind }

// InputData returns the opaque input payload.
func (w *Workflow) InputData() map[string]any { return w.inputData }

// OutputData returns the output payload captured at completion.
func (w *Workflow) OutputData() map[string]any { return w.outputData }

// Context returns the shared context persisted at workflow boundaries.
func (w *Workflow) Context() map[string]any { return w.context }

// CurrentStep returns the sequence number the forward pass last worked on.
func (w *Workflow) CurrentStep() int { return w.currentStep }

// TotalSteps returns how many steps the definition declares.
func (w *Workflow) TotalSteps() int { return w.totalSteps }

// RetryCount returns how many times this run has been retried.
func (w *Workflow) RetryCount() int { return w.retryCount }

// MaxRetries returns the retry budget for this run.
func (w *Workflow) MaxRetries() int { return w.maxRetries }

// ErrorMessage returns the forward-pass error, if any.
func (w *Workflow) ErrorMessage() string { return w.errorMessage }

// CompensationError returns the concatenated compensation diagnostics, if any.
func (w *Workflow) CompensationError() string { return w.compensationError }

// CreatedAt returns when this workflow was created.
func (w *Workflow) CreatedAt() time.Time { return w.createdAt }

// StartedAt returns when the forward pass began, or nil if not yet started.
func (w *Workflow) StartedAt() *time.Time { return w.startedAt }

// CompletedAt returns when the run completed, or nil.
func (w *Workflow) CompletedAt() *time.Time { return w.completedAt }

// FailedAt returns when the forward pass failed, or nil.
func (w *Workflow) FailedAt() *time.Time { return w.failedAt }

// CompensationStartedAt returns when compensation began, or nil.
func (w *Workflow) CompensationStartedAt() *time.Time { return w.compensationStartedAt }

// CompensationCompletedAt returns when compensation finished, or nil.
func (w *Workflow) CompensationCompletedAt() *time.Time { return w.compensationCompletedAt }

// UpdatedAt returns when this workflow was last updated.
func (w *Workflow) UpdatedAt() time.Time { return w.updatedAt }

// CanRetry reports whether a retry is currently legal: the status must be
// failed or rolled_back and the retry budget must not be exhausted.
func (w *Workflow) CanRetry() bool {
	if w.status != WorkflowStatusFailed && w.status != WorkflowStatusRolledBack {
		return false
	}
	return w.retryCount < w.maxRetries
}

// SetID sets the database identifier for this workflow.
// This is typically called by the persistence layer after inserting a new workflow.
func (w *Workflow) SetID(id int64) { w.id = id }

// SetSubscriberID sets the subscriber this run concerns.
func (w *Workflow) SetSubscriberID(subscriberID string) {
	w.subscriberID = subscriberID
	w.updatedAt = time.Now()
}

// SetInitiator sets the initiator identity and kind.
func (w *Workflow) SetInitiator(initiator string, kind InitiatorKind) {
	w.initiator = initiator
	w.initiatorKind = kind
	w.updatedAt = time.Now()
}

// SetInputData sets the opaque input payload.
func (w *Workflow) SetInputData(input map[string]any) {
	w.inputData = input
	w.updatedAt = time.Now()
}

// SetOutputData sets the output payload.
func (w *Workflow) SetOutputData(output map[string]any) {
	w.outputData = output
	w.updatedAt = time.Now()
}

// SetContext replaces the shared context snapshot.
func (w *Workflow) SetContext(context map[string]any) {
	w.context = context
	w.updatedAt = time.Now()
}

// SetCurrentStep records the sequence number the forward pass is working on.
func (w *Workflow) SetCurrentStep(seq int) {
	w.currentStep = seq
	w.updatedAt = time.Now()
}

// SetTotalSteps records how many steps the definition declares.
func (w *Workflow) SetTotalSteps(n int) {
	w.totalSteps = n
	w.updatedAt = time.Now()
}

// SetMaxRetries sets the retry budget for this run.
func (w *Workflow) SetMaxRetries(n int) {
	w.maxRetries = n
	w.updatedAt = time.Now()
}

// Start transitions the workflow to running and sets startedAt.
func (w *Workflow) Start() {
	now := time.Now()
	w.status = WorkflowStatusRunning
	w.startedAt = &now
	w.updatedAt = now
}

// MarkCompleted transitions the workflow to completed and sets completedAt.
func (w *Workflow) MarkCompleted() {
	now := time.Now()
	w.status = WorkflowStatusCompleted
	w.completedAt = &now
	w.updatedAt = now
}

// MarkFailed transitions the workflow to failed, recording the forward error.
func (w *Workflow) MarkFailed(errorMessage string) {
	now := time.Now()
	w.status = WorkflowStatusFailed
	w.errorMessage = errorMessage
	w.failedAt = &now
	w.updatedAt = now
}

// MarkTimeout transitions the workflow to timeout, recording the error.
func (w *Workflow) MarkTimeout(errorMessage string) {
	now := time.Now()
	w.status = WorkflowStatusTimeout
	w.errorMessage = errorMessage
	w.failedAt = &now
	w.updatedAt = now
}

// StartCompensation transitions the workflow to rolling_back and sets
// compensationStartedAt.
func (w *Workflow) StartCompensation() {
	now := time.Now()
	w.status = WorkflowStatusRollingBack
	w.compensationStartedAt = &now
	w.updatedAt = now
}

// MarkRolledBack transitions the workflow to rolled_back and sets
// compensationCompletedAt.
func (w *Workflow) MarkRolledBack() {
	now := time.Now()
	w.status = WorkflowStatusRolledBack
	w.compensationCompletedAt = &now
	w.updatedAt = now
}

// MarkRollbackFailed transitions the workflow to rollback_failed, recording
// the concatenated compensation diagnostics. The forward error is preserved.
func (w *Workflow) MarkRollbackFailed(compensationError string) {
	now := time.Now()
	w.status = WorkflowStatusRollbackFailed
	w.compensationError = compensationError
	w.compensationCompletedAt = &now
	w.updatedAt = now
}

// PrepareRetry increments the retry counter, clears error fields, and resets
// the workflow to pending. Callers must check CanRetry first.
func (w *Workflow) PrepareRetry() {
	w.retryCount++
	w.errorMessage = ""
	w.compensationError = ""
	w.status = WorkflowStatusPending
	w.completedAt = nil
	w.failedAt = nil
	w.compensationStartedAt = nil
	w.compensationCompletedAt = nil
	w.updatedAt = time.Now()
}
