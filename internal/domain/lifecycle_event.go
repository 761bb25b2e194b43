package domain

import "time"

// LifecycleEventKind classifies service lifecycle audit events.
type LifecycleEventKind string

const (
	EventProvisionRequested  LifecycleEventKind = "provision_requested"
	EventProvisionStarted    LifecycleEventKind = "provision_started"
	EventProvisionCompleted  LifecycleEventKind = "provision_completed"
	EventProvisionFailed     LifecycleEventKind = "provision_failed"
	EventProvisionRolledBack LifecycleEventKind = "provision_rolled_back"
	EventActivationCompleted LifecycleEventKind = "activation_completed"
	EventActivationScheduled LifecycleEventKind = "activation_scheduled"
	EventServiceSuspended    LifecycleEventKind = "service_suspended"
	EventServiceResumed      LifecycleEventKind = "service_resumed"
	EventTerminationSchedule LifecycleEventKind = "termination_scheduled"
	EventServiceTerminated   LifecycleEventKind = "service_terminated"
	EventServiceModified     LifecycleEventKind = "service_modified"
	EventHealthCheck         LifecycleEventKind = "health_check"
)

// LifecycleEvent is one append-only audit record written by the service
// machine in the same transaction as the state change it records. Events are
// immutable; there are no mutators beyond SetID.
type LifecycleEvent struct {
	id                int64
	eventID           string
	kind              LifecycleEventKind
	serviceInstanceID string
	tenantID          string
	previousStatus    ServiceStatus
	newStatus         ServiceStatus
	description       string
	success           bool
	triggeredBy       string
	eventData         map[string]any
	durationMS        int64
	createdAt         time.Time
}

// NewLifecycleEvent creates an audit event stamped with the current time.
func NewLifecycleEvent(eventID string, kind LifecycleEventKind, serviceInstanceID, tenantID string) *LifecycleEvent {
	return &LifecycleEvent{
		eventID:           eventID,
		kind:              kind,
		serviceInstanceID: serviceInstanceID,
		tenantID:          tenantID,
		success:           true,
		createdAt:         time.Now(),
	}
}

// ReconstituteLifecycleEvent creates a LifecycleEvent from existing data,
// typically when hydrating from the database.
func ReconstituteLifecycleEvent(
	id int64,
	eventID string,
	kind LifecycleEventKind,
	serviceInstanceID, tenantID string,
	previousStatus, newStatus ServiceStatus,
	description string,
	success bool,
	triggeredBy string,
	eventData map[string]any,
	durationMS int64,
	createdAt time.Time,
) *LifecycleEvent {
	return &LifecycleEvent{
		id:                id,
		eventID:           eventID,
		kind:              kind,
		serviceInstanceID: serviceInstanceID,
		tenantID:          tenantID,
		previousStatus:    previousStatus,
		newStatus:         newStatus,
		description:       description,
		success:           success,
		triggeredBy:       triggeredBy,
		eventData:         eventData,
		durationMS:        durationMS,
		createdAt:         createdAt,
	}
}

// ID returns the database identifier for this event.
func (e *LifecycleEvent) ID() int64 { return e.id }

// EventID returns the globally unique event identifier.
func (e *LifecycleEvent) EventID() string { return e.eventID }

// Kind returns the event classification.
func (e *LifecycleEvent) Kind() LifecycleEventKind { return e.kind }

// ServiceInstanceID returns the service instance this event concerns.
func (e *LifecycleEvent) ServiceInstanceID() string { return e.serviceInstanceID }

// TenantID returns the tenant scope of this event.
func (e *LifecycleEvent) TenantID() string { return e.tenantID }

// PreviousStatus returns the service status before the change.
func (e *LifecycleEvent) PreviousStatus() ServiceStatus { return e.previousStatus }

// NewStatus returns the service status after the change.
func (e *LifecycleEvent) NewStatus() ServiceStatus { return e.newStatus }

// Description returns the human-readable event description.
func (e *LifecycleEvent) Description() string { return e.description }

// Success returns whether the recorded operation succeeded.
func (e *LifecycleEvent) Success() bool { return e.success }

// TriggeredBy returns the user or system that triggered the change.
func (e *LifecycleEvent) TriggeredBy() string { return e.triggeredBy }

// EventData returns the opaque event payload map.
func (e *LifecycleEvent) EventData() map[string]any { return e.eventData }

// DurationMS returns how long the recorded operation took, in milliseconds.
func (e *LifecycleEvent) DurationMS() int64 { return e.durationMS }

// CreatedAt returns when this event was recorded.
func (e *LifecycleEvent) CreatedAt() time.Time { return e.createdAt }

// SetID sets the database identifier for this event.
// This is typically called by the persistence layer after inserting the row.
func (e *LifecycleEvent) SetID(id int64) { e.id = id }

// WithStatusChange records the status transition this event describes.
// Returns the event for chaining during construction.
func (e *LifecycleEvent) WithStatusChange(previous, next ServiceStatus) *LifecycleEvent {
	e.previousStatus = previous
	e.newStatus = next
	return e
}

// WithDescription sets the human-readable description.
func (e *LifecycleEvent) WithDescription(description string) *LifecycleEvent {
	e.description = description
	return e
}

// WithSuccess sets the success flag.
func (e *LifecycleEvent) WithSuccess(success bool) *LifecycleEvent {
	e.success = success
	return e
}

// WithTriggeredBy sets who triggered the change.
func (e *LifecycleEvent) WithTriggeredBy(who string) *LifecycleEvent {
	e.triggeredBy = who
	return e
}

// WithEventData sets the opaque payload map.
func (e *LifecycleEvent) WithEventData(data map[string]any) *LifecycleEvent {
	e.eventData = data
	return e
}

// WithDuration records how long the operation took.
func (e *LifecycleEvent) WithDuration(d time.Duration) *LifecycleEvent {
	e.durationMS = d.Milliseconds()
	return e
}
