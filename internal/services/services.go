// Package services implements the service lifecycle orchestrator: short
// transactional operations over ServiceInstance rows. Every state change and
// the LifecycleEvent that records it commit in one transaction; the saga
// engine handles the long multi-system flows, not this package.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fiberline/switchyard/internal/address"
	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
)

// Lifecycle is the service machine. It owns the database handle so each
// operation can open its own transaction; the address machines join that
// transaction through commit=false calls.
type Lifecycle struct {
	db     *sqlite.DB
	ipv4   *address.IPv4Machine
	ipv6   *address.IPv6Machine
	health collab.HealthMonitor
}

// NewLifecycle builds the service machine. A nil health monitor is replaced
// with the null object.
func NewLifecycle(db *sqlite.DB, ipv4 *address.IPv4Machine, ipv6 *address.IPv6Machine, health collab.HealthMonitor) *Lifecycle {
	if health == nil {
		health = collab.NullHealth{}
	}
	return &Lifecycle{db: db, ipv4: ipv4, ipv6: ipv6, health: health}
}

// OperationResult reports one lifecycle operation's outcome.
type OperationResult struct {
	Success           bool   `json:"success"`
	ServiceInstanceID string `json:"service_instance_id"`
	Operation         string `json:"operation"`
	Message           string `json:"message,omitempty"`
	EventID           string `json:"event_id,omitempty"`
	Err               string `json:"error,omitempty"`
}

func okResult(instanceID, operation, message, eventID string) *OperationResult {
	return &OperationResult{
		Success:           true,
		ServiceInstanceID: instanceID,
		Operation:         operation,
		Message:           message,
		EventID:           eventID,
	}
}

func failedResult(instanceID, operation string, err error) *OperationResult {
	return &OperationResult{
		Success:           false,
		ServiceInstanceID: instanceID,
		Operation:         operation,
		Err:               err.Error(),
	}
}

// newInvalidTransition reports a status change the service machine forbids.
func newInvalidTransition(current, target domain.ServiceStatus) error {
	return &domain.InvalidStatusTransitionError{
		Entity:  "service instance",
		Current: string(current),
		Target:  string(target),
	}
}

// loadInstance resolves an instance inside the transaction, preferring the
// globally unique instance id over the per-tenant service id.
func loadInstance(tx *sqlite.Tx, tenantID, instanceID, serviceID string) (*domain.ServiceInstance, error) {
	repo := tx.ServiceRepository()
	if instanceID != "" {
		return repo.FindByInstanceID(instanceID)
	}
	if serviceID != "" {
		return repo.FindByServiceID(tenantID, serviceID)
	}
	return nil, errors.New("either service_instance_id or service_id is required")
}

// writeEvent appends the audit record for a state change on the same
// transaction. It returns the event id for the caller's result.
func writeEvent(
	tx *sqlite.Tx,
	instance *domain.ServiceInstance,
	kind domain.LifecycleEventKind,
	previous domain.ServiceStatus,
	description, triggeredBy string,
	data map[string]any,
	success bool,
	started time.Time,
) (string, error) {
	event := domain.NewLifecycleEvent("evt-"+uuid.NewString(), kind, instance.ServiceInstanceID(), instance.TenantID()).
		WithStatusChange(previous, instance.Status()).
		WithDescription(description).
		WithTriggeredBy(triggeredBy).
		WithEventData(data).
		WithSuccess(success).
		WithDuration(time.Since(started))
	if err := tx.EventRepository().Save(event); err != nil {
		return "", fmt.Errorf("record lifecycle event: %w", err)
	}
	return event.EventID(), nil
}

func isSuspended(status domain.ServiceStatus) bool {
	switch status {
	case domain.ServiceStatusSuspended, domain.ServiceStatusSuspendedFraud, domain.ServiceStatusSuspendedNonPayment:
		return true
	default:
		return false
	}
}
