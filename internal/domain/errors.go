package domain

import "fmt"

// WorkflowNotFoundError is returned when no workflow matches the lookup.
type WorkflowNotFoundError struct {
	WorkflowID string
	TenantID   string
}

func (e *WorkflowNotFoundError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("workflow %q not found for tenant %q", e.WorkflowID, e.TenantID)
	}
	return fmt.Sprintf("workflow %q not found", e.WorkflowID)
}

// StepNotFoundError is returned when no step matches the lookup.
type StepNotFoundError struct {
	WorkflowID int64
	Sequence   int
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %d not found in workflow %d", e.Sequence, e.WorkflowID)
}

// ServiceNotFoundError is returned when no service instance matches the lookup.
type ServiceNotFoundError struct {
	ServiceInstanceID string
	TenantID          string
}

func (e *ServiceNotFoundError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("service instance %q not found for tenant %q", e.ServiceInstanceID, e.TenantID)
	}
	return fmt.Sprintf("service instance %q not found", e.ServiceInstanceID)
}

// ProfileNotFoundError is returned when a subscriber has no live network profile.
type ProfileNotFoundError struct {
	SubscriberID string
	TenantID     string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("network profile for subscriber %q not found in tenant %q", e.SubscriberID, e.TenantID)
}

// InvalidStatusTransitionError is returned when an entity is asked to move
// along an edge its transition table does not contain.
type InvalidStatusTransitionError struct {
	Entity  string
	Current string
	Target  string
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %q to %q", e.Entity, e.Current, e.Target)
}
