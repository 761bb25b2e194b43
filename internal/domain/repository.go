package domain

import "time"

// WorkflowListFilter provides filtering options for listing workflows.
type WorkflowListFilter struct {
	// Status filters workflows by status. If empty, all statuses are included.
	Status WorkflowStatus

	// Kind filters workflows by kind. If empty, all kinds are included.
	Kind WorkflowKind

	// SubscriberID filters to workflows concerning one subscriber.
	SubscriberID string

	// Limit restricts the number of workflows returned. 0 means no limit.
	Limit int

	// Offset skips the first N results for pagination.
	Offset int
}

// WorkflowRepository defines the persistence interface for Workflow entities.
type WorkflowRepository interface {
	// Save persists a workflow. For new workflows (ID == 0), this creates a
	// new record and sets the ID. For existing workflows, this updates the
	// existing record.
	Save(workflow *Workflow) error

	// FindByWorkflowID retrieves a workflow by its opaque run identifier
	// within a tenant. Returns WorkflowNotFoundError if absent.
	FindByWorkflowID(tenantID, workflowID string) (*Workflow, error)

	// FindByID retrieves a workflow by its internal database ID.
	FindByID(id int64) (*Workflow, error)

	// ListWithFilter retrieves workflows for a tenant matching the filter,
	// newest first.
	ListWithFilter(tenantID string, filter WorkflowListFilter) ([]*Workflow, error)

	// CountByStatus returns workflow counts per status for a tenant.
	CountByStatus(tenantID string) (map[WorkflowStatus]int, error)

	// CountByKind returns workflow counts per kind for a tenant.
	CountByKind(tenantID string) (map[WorkflowKind]int, error)

	// AverageCompletionSeconds returns the mean duration of completed
	// workflows for a tenant, or 0 when none completed.
	AverageCompletionSeconds(tenantID string) (float64, error)

	// CountFailedSince counts workflows that failed at or after the cutoff.
	CountFailedSince(tenantID string, cutoff time.Time) (int, error)
}

// StepRepository defines the persistence interface for WorkflowStep entities.
type StepRepository interface {
	// Save persists a step. For new steps (ID == 0), this creates a new
	// record and sets the ID. For existing steps, this updates the record.
	Save(step *WorkflowStep) error

	// FindBySequence retrieves the step at the given sequence number within
	// a workflow. Returns StepNotFoundError if absent.
	FindBySequence(workflowID int64, sequence int) (*WorkflowStep, error)

	// ListByWorkflow retrieves every step of a workflow ordered by ascending
	// sequence number.
	ListByWorkflow(workflowID int64) ([]*WorkflowStep, error)

	// ListCompletedDescending retrieves the steps of a workflow whose status
	// is completed, ordered by descending sequence number. This is the
	// compensation walk order.
	ListCompletedDescending(workflowID int64) ([]*WorkflowStep, error)

	// CountCompensated returns how many steps across all workflows of a
	// tenant ended compensated.
	CountCompensated(tenantID string) (int, error)
}

// ServiceListFilter provides filtering options for listing service instances.
type ServiceListFilter struct {
	// Status filters instances by status. If empty, all statuses are included.
	Status ServiceStatus

	// SubscriberID filters to instances of one subscriber.
	SubscriberID string

	// Limit restricts the number of instances returned. 0 means no limit.
	Limit int
}

// ServiceRepository defines the persistence interface for ServiceInstance
// entities.
type ServiceRepository interface {
	// Save persists an instance. For new instances (ID == 0), this creates a
	// new record and sets the ID. For existing instances, this updates it.
	Save(instance *ServiceInstance) error

	// FindByInstanceID retrieves an instance by its globally unique
	// identifier. Returns ServiceNotFoundError if absent.
	FindByInstanceID(instanceID string) (*ServiceInstance, error)

	// FindByServiceID retrieves an instance by its human-readable service id
	// within a tenant. Returns ServiceNotFoundError if absent.
	FindByServiceID(tenantID, serviceID string) (*ServiceInstance, error)

	// ListWithFilter retrieves instances for a tenant matching the filter,
	// newest first.
	ListWithFilter(tenantID string, filter ServiceListFilter) ([]*ServiceInstance, error)

	// ListDueForActivation retrieves instances whose scheduled activation
	// date is at or before the cutoff, capped at limit.
	ListDueForActivation(cutoff time.Time, limit int) ([]*ServiceInstance, error)

	// ListDueForTermination retrieves terminating instances whose scheduled
	// termination date is at or before the cutoff, capped at limit.
	ListDueForTermination(cutoff time.Time, limit int) ([]*ServiceInstance, error)
}

// ProfileRepository defines the persistence interface for
// SubscriberNetworkProfile entities. Implementations must guarantee at most
// one live profile per (tenant, subscriber).
type ProfileRepository interface {
	// Save persists a profile. For new profiles (ID == 0), this creates a
	// new record and sets the ID. For existing profiles, this updates it.
	Save(profile *SubscriberNetworkProfile) error

	// FindBySubscriber retrieves the live profile for a subscriber.
	// Returns ProfileNotFoundError if absent. Soft-deleted profiles are not
	// returned.
	FindBySubscriber(tenantID, subscriberID string) (*SubscriberNetworkProfile, error)

	// Delete soft-deletes the live profile for a subscriber.
	// Returns ProfileNotFoundError if absent.
	Delete(tenantID, subscriberID string) error
}

// EventRepository defines the persistence interface for LifecycleEvent rows.
type EventRepository interface {
	// Save appends an event. Events are immutable; Save on an event with a
	// non-zero ID is an error.
	Save(event *LifecycleEvent) error

	// ListByService retrieves events for a service instance, newest first,
	// capped at limit (0 means no limit).
	ListByService(serviceInstanceID string, limit int) ([]*LifecycleEvent, error)
}
