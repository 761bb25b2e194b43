package domain

import "time"

// StepStatus represents the lifecycle status of a single workflow step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning indicates the forward handler is executing.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted indicates the forward handler succeeded and its
	// output and compensation payloads are persisted.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed indicates the forward handler exhausted its retries.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped indicates the step was bypassed.
	StepStatusSkipped StepStatus = "skipped"

	// StepStatusCompensating indicates the compensation handler is executing.
	StepStatusCompensating StepStatus = "compensating"

	// StepStatusCompensated indicates the step's forward effect was undone,
	// or the step declared no compensator.
	StepStatusCompensated StepStatus = "compensated"

	// StepStatusCompensationFailed indicates the compensator exhausted its retries.
	StepStatusCompensationFailed StepStatus = "compensation_failed"
)

// String returns the string representation of the step status.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized step status.
func (s StepStatus) IsValid() bool {
	_, ok := validStepTransitions[s]
	return ok
}

// validStepTransitions is the legal-transition table for step status. The
// pending edges out of failed, skipped, and compensated exist for workflow
// retry, which resets steps before the run restarts.
var validStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepStatusPending: {
		StepStatusRunning: true,
		StepStatusSkipped: true,
	},
	StepStatusRunning: {
		StepStatusCompleted: true,
		StepStatusFailed:    true,
	},
	StepStatusCompleted: {
		StepStatusCompensating: true,
		StepStatusCompensated:  true, // no compensator declared
	},
	StepStatusFailed: {
		StepStatusRunning: true, // forward retry
		StepStatusPending: true,
	},
	StepStatusCompensating: {
		StepStatusCompensated:        true,
		StepStatusCompensationFailed: true,
	},
	StepStatusCompensated: {
		StepStatusPending: true,
	},
	StepStatusSkipped: {
		StepStatusPending: true,
	},
	StepStatusCompensationFailed: {},
}

// CanTransitionTo returns true if the status may legally move to target.
func (s StepStatus) CanTransitionTo(target StepStatus) bool {
	targets, ok := validStepTransitions[s]
	if !ok {
		return false
	}
	return targets[target]
}

// IsTerminal returns true if no further transitions are legal from this status.
func (s StepStatus) IsTerminal() bool {
	targets, ok := validStepTransitions[s]
	return ok && len(targets) == 0
}

// StepKind classifies what a step touches.
type StepKind string

const (
	// StepKindDatabase marks a step that only mutates local durable state.
	StepKindDatabase StepKind = "database"

	// StepKindAPI marks a step that calls an internal platform API.
	StepKindAPI StepKind = "api"

	// StepKindExternal marks a step that calls an external collaborator.
	StepKindExternal StepKind = "external"
)

// IsValid returns true if the kind is a recognized step kind.
func (k StepKind) IsValid() bool {
	switch k {
	case StepKindDatabase, StepKindAPI, StepKindExternal:
		return true
	default:
		return false
	}
}

// WorkflowStep represents one step within a workflow run. All fields are
// unexported to enforce encapsulation; use the constructor and getter methods
// to access data.
type WorkflowStep struct {
	id           int64
	workflowID   int64
	name         string
	sequence     int
	kind         StepKind
	targetSystem string
	status       StepStatus

	handlerName             string
	compensationHandlerName string

	inputData        map[string]any
	outputData       map[string]any
	compensationData map[string]any

	retryCount int
	maxRetries int

	errorMessage      string
	compensationError string

	createdAt     time.Time
	startedAt     *time.Time
	completedAt   *time.Time
	compensatedAt *time.Time
	updatedAt     time.Time
}

// NewWorkflowStep creates a new step in the pending status for the given
// parent workflow database ID and sequence number. The ID is left as zero;
// it will be assigned by the persistence layer.
func NewWorkflowStep(workflowID int64, name string, sequence int) *WorkflowStep {
	now := time.Now()
	return &WorkflowStep{
		workflowID: workflowID,
		name:       name,
		sequence:   sequence,
		status:     StepStatusPending,
		kind:       StepKindExternal,
		maxRetries: 3,
		createdAt:  now,
		updatedAt:  now,
	}
}

// ReconstituteWorkflowStep creates a WorkflowStep from existing data,
// typically when hydrating from the database.
func ReconstituteWorkflowStep(
	id, workflowID int64,
	name string,
	sequence int,
	kind StepKind,
	targetSystem string,
	status StepStatus,
	handlerName, compensationHandlerName string,
	inputData, outputData, compensationData map[string]any,
	retryCount, maxRetries int,
	errorMessage, compensationError string,
	createdAt time.Time,
	startedAt, completedAt, compensatedAt *time.Time,
	updatedAt time.Time,
) *WorkflowStep {
	return &WorkflowStep{
		id:                      id,
		workflowID:              workflowID,
		name:                    name,
		sequence:                sequence,
		kind:                    kind,
		targetSystem:            targetSystem,
		status:                  status,
		handlerName:             handlerName,
		compensationHandlerName: compensationHandlerName,
		inputData:               inputData,
		outputData:              outputData,
		compensationData:        compensationData,
		retryCount:              retryCount,
		maxRetries:              maxRetries,
		errorMessage:            errorMessage,
		compensationError:       compensationError,
		createdAt:               createdAt,
		startedAt:               startedAt,
		completedAt:             completedAt,
		compensatedAt:           compensatedAt,
		updatedAt:               updatedAt,
	}
}

// ID returns the database identifier for this step.
func (s *WorkflowStep) ID() int64 { return s.id }

// WorkflowID returns the database identifier of the parent workflow.
func (s *WorkflowStep) WorkflowID() int64 { return s.workflowID }

// Name returns the step name.
func (s *WorkflowStep) Name() string { return s.name }

// Sequence returns the 0-based position of this step within the workflow.
func (s *WorkflowStep) Sequence() int { return s.sequence }

// Kind returns what this step touches.
func (s *WorkflowStep) Kind() StepKind { return s.kind }

// TargetSystem returns the external system label this step targets.
func (s *WorkflowStep) TargetSystem() string { return s.targetSystem }

// Status returns the current step status.
func (s *WorkflowStep) Status() StepStatus { return s.status }

// HandlerName returns the registered forward handler name.
func (s *WorkflowStep) HandlerName() string { return s.handlerName }

// CompensationHandlerName returns the registered compensator name, or empty
// if the step is compensation-free.
func (s *WorkflowStep) CompensationHandlerName() string { return s.compensationHandlerName }

// InputData returns the step input payload.
func (s *WorkflowStep) InputData() map[string]any { return s.inputData }

// OutputData returns the payload the forward handler produced.
func (s *WorkflowStep) OutputData() map[string]any { return s.outputData }

// CompensationData returns whatever the forward handler stored for its compensator.
func (s *WorkflowStep) CompensationData() map[string]any { return s.compensationData }

// RetryCount returns how many extra forward attempts were consumed.
func (s *WorkflowStep) RetryCount() int { return s.retryCount }

// MaxRetries returns how many extra attempts the step allows.
func (s *WorkflowStep) MaxRetries() int { return s.maxRetries }

// ErrorMessage returns the final forward error, if any.
func (s *WorkflowStep) ErrorMessage() string { return s.errorMessage }

// CompensationError returns the final compensation error, if any.
func (s *WorkflowStep) CompensationError() string { return s.compensationError }

// CreatedAt returns when this step record was created.
func (s *WorkflowStep) CreatedAt() time.Time { return s.createdAt }

// StartedAt returns when the forward handler began, or nil.
func (s *WorkflowStep) StartedAt() *time.Time { return s.startedAt }

// CompletedAt returns when the forward handler succeeded, or nil.
func (s *WorkflowStep) CompletedAt() *time.Time { return s.completedAt }

// CompensatedAt returns when the compensator finished, or nil.
func (s *WorkflowStep) CompensatedAt() *time.Time { return s.compensatedAt }

// UpdatedAt returns when this step was last updated.
func (s *WorkflowStep) UpdatedAt() time.Time { return s.updatedAt }

// SetID sets the database identifier for this step.
// This is typically called by the persistence layer after inserting a new step.
func (s *WorkflowStep) SetID(id int64) { s.id = id }

// SetKind sets what this step touches.
func (s *WorkflowStep) SetKind(kind StepKind) {
	s.kind = kind
	s.updatedAt = time.Now()
}

// SetTargetSystem sets the external system label.
func (s *WorkflowStep) SetTargetSystem(target string) {
	s.targetSystem = target
	s.updatedAt = time.Now()
}

// SetHandlers sets the forward and compensation handler names.
func (s *WorkflowStep) SetHandlers(forward, compensation string) {
	s.handlerName = forward
	s.compensationHandlerName = compensation
	s.updatedAt = time.Now()
}

// SetInputData sets the step input payload.
func (s *WorkflowStep) SetInputData(input map[string]any) {
	s.inputData = input
	s.updatedAt = time.Now()
}

// SetMaxRetries sets how many extra attempts the step allows.
func (s *WorkflowStep) SetMaxRetries(n int) {
	s.maxRetries = n
	s.updatedAt = time.Now()
}

// IncrementRetryCount records one consumed forward retry attempt.
func (s *WorkflowStep) IncrementRetryCount() {
	s.retryCount++
	s.updatedAt = time.Now()
}

// Start transitions the step to running and sets startedAt.
func (s *WorkflowStep) Start() {
	now := time.Now()
	s.status = StepStatusRunning
	s.startedAt = &now
	s.updatedAt = now
}

// Complete records the forward handler's output and compensation payloads and
// transitions the step to completed. Compensation data is written together
// with the status so a compensator never runs without its inputs.
func (s *WorkflowStep) Complete(output, compensation map[string]any) {
	now := time.Now()
	s.outputData = output
	s.compensationData = compensation
	s.status = StepStatusCompleted
	s.completedAt = &now
	s.updatedAt = now
}

// MarkFailed transitions the step to failed, recording the final error.
func (s *WorkflowStep) MarkFailed(errorMessage string) {
	s.status = StepStatusFailed
	s.errorMessage = errorMessage
	s.updatedAt = time.Now()
}

// MarkSkipped transitions the step to skipped.
func (s *WorkflowStep) MarkSkipped() {
	s.status = StepStatusSkipped
	s.updatedAt = time.Now()
}

// StartCompensation transitions the step to compensating.
func (s *WorkflowStep) StartCompensation() {
	s.status = StepStatusCompensating
	s.updatedAt = time.Now()
}

// MarkCompensated transitions the step to compensated and sets compensatedAt.
func (s *WorkflowStep) MarkCompensated() {
	now := time.Now()
	s.status = StepStatusCompensated
	s.compensatedAt = &now
	s.updatedAt = now
}

// MarkCompensationFailed transitions the step to compensation_failed,
// recording the final compensation error.
func (s *WorkflowStep) MarkCompensationFailed(errorMessage string) {
	s.status = StepStatusCompensationFailed
	s.compensationError = errorMessage
	s.updatedAt = time.Now()
}

// Reset returns the step to pending and clears execution bookkeeping. Used
// when a rolled-back workflow retries from the beginning.
func (s *WorkflowStep) Reset() {
	s.status = StepStatusPending
	s.retryCount = 0
	s.errorMessage = ""
	s.compensationError = ""
	s.outputData = nil
	s.compensationData = nil
	s.startedAt = nil
	s.completedAt = nil
	s.compensatedAt = nil
	s.updatedAt = time.Now()
}
