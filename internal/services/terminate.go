package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fiberline/switchyard/internal/address"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
	"github.com/fiberline/switchyard/internal/log"
)

// TerminateRequest ends a service now or on a scheduled date.
type TerminateRequest struct {
	TenantID          string
	ServiceInstanceID string
	ServiceID         string
	Reason            string
	TerminationDate   *time.Time
	SendNotification  bool
	ReturnEquipment   bool
	TriggeredBy       string
}

// TerminateService terminates an instance. A future termination date parks
// the instance in terminating for the scheduler sweep; otherwise the instance
// is terminated immediately and the subscriber's delegated IPv6 prefix is
// revoked inside the same transaction. Revocation failure is logged and never
// aborts the termination.
func (l *Lifecycle) TerminateService(ctx context.Context, req TerminateRequest) (*OperationResult, error) {
	const op = "terminate"
	started := time.Now()

	tx, err := l.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	instance, err := loadInstance(tx, req.TenantID, req.ServiceInstanceID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	prev := instance.Status()
	if prev == domain.ServiceStatusTerminated {
		return failedResult(instance.ServiceInstanceID(), op, newInvalidTransition(prev, domain.ServiceStatusTerminated)), nil
	}

	if req.TerminationDate != nil && req.TerminationDate.After(time.Now()) {
		instance.MarkTerminating(*req.TerminationDate)
		if err := tx.ServiceRepository().Save(instance); err != nil {
			return nil, fmt.Errorf("save service instance: %w", err)
		}
		data := map[string]any{
			"scheduled_termination_date": req.TerminationDate.UTC().Format(time.RFC3339),
			"reason":                     req.Reason,
		}
		annotateTerminationFlags(data, req)
		eventID, err := writeEvent(tx, instance, domain.EventTerminationSchedule, prev,
			"termination scheduled: "+req.Reason, req.TriggeredBy, data, true, started)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit scheduled termination: %w", err)
		}
		return okResult(instance.ServiceInstanceID(), op, "termination scheduled", eventID), nil
	}

	instance.Terminate()
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}

	data := map[string]any{"reason": req.Reason}
	annotateTerminationFlags(data, req)
	if instance.SubscriberID() != "" {
		l.revokeIPv6InTx(ctx, tx, instance, data)
	}

	eventID, err := writeEvent(tx, instance, domain.EventServiceTerminated, prev,
		"service terminated: "+req.Reason, req.TriggeredBy, data, true, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit termination: %w", err)
	}
	return okResult(instance.ServiceInstanceID(), op, "service terminated", eventID), nil
}

// annotateTerminationFlags records the requested follow-up actions on the
// event data so downstream consumers (notification, logistics) can pick
// them up from the audit trail.
func annotateTerminationFlags(data map[string]any, req TerminateRequest) {
	if req.SendNotification {
		data["send_notification"] = true
	}
	if req.ReturnEquipment {
		data["return_equipment"] = true
	}
}

// revokeIPv6InTx stages the prefix revoke on the termination transaction so
// the ledger and the instance change atomically. Best effort: the outcome,
// good or bad, is annotated on the event data.
func (l *Lifecycle) revokeIPv6InTx(ctx context.Context, tx *sqlite.Tx, instance *domain.ServiceInstance, data map[string]any) {
	result, err := l.ipv6.Revoke(ctx, address.RevokeIPv6Request{
		SubscriberID: instance.SubscriberID(),
		TenantID:     instance.TenantID(),
		Profiles:     tx.ProfileRepository(),
	}, false)
	if err != nil {
		log.ErrorErr(log.CatService, "ipv6 revoke during termination failed", err,
			"service_instance_id", instance.ServiceInstanceID(),
			"subscriber_id", instance.SubscriberID())
		data["ipv6_revoke_error"] = err.Error()
		return
	}
	data["ipv6_revoked"] = true
	if released, ok := result.Metadata["released_prefix"]; ok {
		data["ipv6_released_prefix"] = released
	}
}

// ModifyRequest carries optional field changes; nil means "leave alone".
type ModifyRequest struct {
	TenantID          string
	ServiceInstanceID string
	ServiceID         string
	Name              *string
	PlanID            *string
	ServiceLocation   *string
	Equipment         []string
	VLANID            *int
	TriggeredBy       string
}

// ModifyService applies field updates and records the before/after diff in
// the event data.
func (l *Lifecycle) ModifyService(_ context.Context, req ModifyRequest) (*OperationResult, error) {
	const op = "modify"
	started := time.Now()

	tx, err := l.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	instance, err := loadInstance(tx, req.TenantID, req.ServiceInstanceID, req.ServiceID)
	if err != nil {
		return nil, err
	}

	diff := map[string]any{}
	if req.Name != nil && *req.Name != instance.Name() {
		diff["name"] = map[string]any{"from": instance.Name(), "to": *req.Name}
		instance.SetName(*req.Name)
	}
	if req.PlanID != nil && *req.PlanID != instance.PlanID() {
		diff["plan_id"] = map[string]any{"from": instance.PlanID(), "to": *req.PlanID}
		instance.SetPlanID(*req.PlanID)
	}
	if req.ServiceLocation != nil && *req.ServiceLocation != instance.ServiceLocation() {
		diff["service_location"] = map[string]any{"from": instance.ServiceLocation(), "to": *req.ServiceLocation}
		instance.SetServiceLocation(*req.ServiceLocation)
	}
	if req.Equipment != nil {
		diff["equipment"] = map[string]any{"from": instance.Equipment(), "to": req.Equipment}
		instance.SetEquipment(req.Equipment)
	}
	if req.VLANID != nil && *req.VLANID != instance.VLANID() {
		diff["vlan_id"] = map[string]any{"from": instance.VLANID(), "to": *req.VLANID}
		instance.SetVLANID(*req.VLANID)
	}
	if len(diff) == 0 {
		return okResult(instance.ServiceInstanceID(), op, "no changes", ""), nil
	}

	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	eventID, err := writeEvent(tx, instance, domain.EventServiceModified, instance.Status(),
		"service modified", req.TriggeredBy, map[string]any{"changes": diff}, true, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit modification: %w", err)
	}
	return okResult(instance.ServiceInstanceID(), op, fmt.Sprintf("%d fields updated", len(diff)), eventID), nil
}

// PerformHealthCheck probes the service through the health monitor and
// records the verdict on the instance.
func (l *Lifecycle) PerformHealthCheck(ctx context.Context, tenantID, instanceID, triggeredBy string) (*OperationResult, error) {
	const op = "health_check"
	started := time.Now()

	result := "unchecked: no health monitor configured"
	healthy := true
	if l.health.Configured() {
		probe, err := l.health.CheckService(ctx, instanceID)
		if err != nil {
			result = "probe failed: " + err.Error()
			healthy = false
		} else if probe.Healthy {
			result = "healthy: " + probe.Detail
		} else {
			result = "unhealthy: " + probe.Detail
			healthy = false
		}
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	instance, err := loadInstance(tx, tenantID, instanceID, "")
	if err != nil {
		return nil, err
	}
	instance.RecordHealthCheck(result)
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	eventID, err := writeEvent(tx, instance, domain.EventHealthCheck, instance.Status(),
		result, triggeredBy, map[string]any{"result": result}, healthy, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit health check: %w", err)
	}
	res := okResult(instanceID, op, result, eventID)
	res.Success = healthy
	return res, nil
}

// ScheduleServiceActivation parks a future activation date in metadata for
// the scheduler sweep.
func (l *Lifecycle) ScheduleServiceActivation(_ context.Context, tenantID, instanceID string, when time.Time, triggeredBy string) (*OperationResult, error) {
	const op = "schedule_activation"
	started := time.Now()

	tx, err := l.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	instance, err := loadInstance(tx, tenantID, instanceID, "")
	if err != nil {
		return nil, err
	}
	instance.PutMetadata(domain.MetadataKeyScheduledActivation, when.UTC().Format(time.RFC3339))
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	eventID, err := writeEvent(tx, instance, domain.EventActivationScheduled, instance.Status(),
		"activation scheduled", triggeredBy,
		map[string]any{"scheduled_activation_date": when.UTC().Format(time.RFC3339)}, true, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activation schedule: %w", err)
	}
	return okResult(instanceID, op, "activation scheduled", eventID), nil
}

// GetServicesDueForActivation lists instances whose scheduled activation
// date has arrived.
func (l *Lifecycle) GetServicesDueForActivation(limit int) ([]*domain.ServiceInstance, error) {
	return l.db.ServiceRepository().ListDueForActivation(time.Now(), limit)
}

// GetServicesDueForTermination lists terminating instances whose scheduled
// termination date has arrived.
func (l *Lifecycle) GetServicesDueForTermination(limit int) ([]*domain.ServiceInstance, error) {
	return l.db.ServiceRepository().ListDueForTermination(time.Now(), limit)
}
