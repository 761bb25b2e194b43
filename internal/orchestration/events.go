package orchestration

import (
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/pubsub"
)

// EventType names one orchestration event on the stream.
type EventType string

const (
	EventWorkflowCreated    EventType = "workflow.created"
	EventWorkflowStarted    EventType = "workflow.started"
	EventWorkflowCompleted  EventType = "workflow.completed"
	EventWorkflowFailed     EventType = "workflow.failed"
	EventWorkflowRolledBack EventType = "workflow.rolled_back"

	EventStepStarted     EventType = "step.started"
	EventStepCompleted   EventType = "step.completed"
	EventStepFailed      EventType = "step.failed"
	EventStepCompensated EventType = "step.compensated"

	EventServiceStatusChanged EventType = "service.status_changed"
)

// Event is one entry on the orchestration stream. Workflow and step events
// carry the run coordinates; service events carry the instance and its new
// status. Subscribers must treat events as advisory: the database is the
// source of truth, the stream can drop under backpressure.
type Event struct {
	Type              EventType `json:"type"`
	TenantID          string    `json:"tenant_id"`
	WorkflowID        string    `json:"workflow_id,omitempty"`
	WorkflowStatus    string    `json:"workflow_status,omitempty"`
	Kind              string    `json:"kind,omitempty"`
	StepName          string    `json:"step_name,omitempty"`
	StepSequence      int       `json:"step_sequence,omitempty"`
	ServiceInstanceID string    `json:"service_instance_id,omitempty"`
	ServiceStatus     string    `json:"service_status,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// notifier translates orchestrator run phases into stream events. Publish
// never blocks, which satisfies the no-block contract of the observer. A run
// reaching a terminal phase also drops the tenant's cached statistics.
type notifier struct {
	broker          *pubsub.Broker[Event]
	invalidateStats func(tenantID string)
}

func (n *notifier) WorkflowPhase(wf *domain.Workflow, phase string) {
	ev := Event{
		TenantID:       wf.TenantID(),
		WorkflowID:     wf.WorkflowID(),
		WorkflowStatus: wf.Status().String(),
		Kind:           wf.Kind().String(),
	}
	terminal := true
	switch phase {
	case "started":
		ev.Type = EventWorkflowStarted
		terminal = false
	case "completed":
		ev.Type = EventWorkflowCompleted
	case "failed":
		ev.Type = EventWorkflowFailed
		ev.Error = wf.ErrorMessage()
	case "rolled_back":
		ev.Type = EventWorkflowRolledBack
	case "rollback_failed":
		ev.Type = EventWorkflowRolledBack
		ev.Error = wf.CompensationError()
	default:
		return
	}
	if terminal && n.invalidateStats != nil {
		n.invalidateStats(wf.TenantID())
	}
	n.broker.Publish(ev)
}

func (n *notifier) StepPhase(wf *domain.Workflow, step *domain.WorkflowStep, phase string) {
	ev := Event{
		TenantID:       wf.TenantID(),
		WorkflowID:     wf.WorkflowID(),
		WorkflowStatus: wf.Status().String(),
		Kind:           wf.Kind().String(),
		StepName:       step.Name(),
		StepSequence:   step.Sequence(),
	}
	switch phase {
	case "started":
		ev.Type = EventStepStarted
	case "completed":
		ev.Type = EventStepCompleted
	case "failed":
		ev.Type = EventStepFailed
		ev.Error = step.ErrorMessage()
	case "compensated":
		ev.Type = EventStepCompensated
	case "compensation_failed":
		ev.Type = EventStepFailed
		ev.Error = step.CompensationError()
	default:
		return
	}
	n.broker.Publish(ev)
}
