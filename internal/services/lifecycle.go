package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
)

// ProvisionRequest describes a new service instance and the workflow that
// will provision it.
type ProvisionRequest struct {
	TenantID        string
	ServiceID       string
	Name            string
	ServiceType     string
	PlanID          string
	CustomerID      string
	SubscriberID    string
	SubscriptionID  string
	ServiceLocation string
	Equipment       []string
	VLANID          int
	WorkflowID      string
	TriggeredBy     string
}

// ProvisionService creates the instance record in pending, attaches the
// provisioning workflow descriptor, and writes the provision_requested event.
// Running the workflow itself is the orchestration layer's job.
func (l *Lifecycle) ProvisionService(_ context.Context, req ProvisionRequest) (*domain.ServiceInstance, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	serviceID := req.ServiceID
	if serviceID == "" {
		serviceID = "svc-" + uuid.NewString()
	}
	started := time.Now()

	tx, err := l.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	instance := domain.NewServiceInstance("svci-"+uuid.NewString(), serviceID, req.TenantID)
	instance.SetName(req.Name)
	instance.SetServiceType(req.ServiceType)
	instance.SetPlanID(req.PlanID)
	instance.SetCustomerID(req.CustomerID)
	instance.SetSubscriberID(req.SubscriberID)
	instance.SetSubscriptionID(req.SubscriptionID)
	instance.SetServiceLocation(req.ServiceLocation)
	instance.SetEquipment(req.Equipment)
	instance.SetVLANID(req.VLANID)
	instance.SetWorkflowID(req.WorkflowID)

	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	if _, err := writeEvent(tx, instance, domain.EventProvisionRequested, domain.ServiceStatusPending,
		"service provisioning requested", req.TriggeredBy,
		map[string]any{"workflow_id": req.WorkflowID, "plan_id": req.PlanID}, true, started); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit provision: %w", err)
	}
	log.Info(log.CatService, "service instance created",
		"service_instance_id", instance.ServiceInstanceID(), "tenant_id", req.TenantID)
	return instance, nil
}

// StartProvisioning flips a pending instance to provisioning when its
// workflow begins running.
func (l *Lifecycle) StartProvisioning(_ context.Context, tenantID, instanceID string) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	instance, err := loadInstance(tx, tenantID, instanceID, "")
	if err != nil {
		return err
	}
	if instance.Status() != domain.ServiceStatusPending {
		return newInvalidTransition(instance.Status(), domain.ServiceStatusProvisioning)
	}
	prev := instance.Status()
	started := time.Now()
	instance.StartProvisioning()
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return fmt.Errorf("save service instance: %w", err)
	}
	if _, err := writeEvent(tx, instance, domain.EventProvisionStarted, prev,
		"provisioning workflow started", "", nil, true, started); err != nil {
		return err
	}
	return tx.Commit()
}

// ActivateRequest targets an instance by instance id or per-tenant service id.
type ActivateRequest struct {
	TenantID          string
	ServiceInstanceID string
	ServiceID         string
	TriggeredBy       string
}

// ActivateService moves an instance to active from provisioning or any
// suspended status. The first activation stamps provisioned_at.
func (l *Lifecycle) ActivateService(_ context.Context, req ActivateRequest) (*OperationResult, error) {
	const op = "activate"
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
	if prev != domain.ServiceStatusProvisioning && !isSuspended(prev) {
		return failedResult(instance.ServiceInstanceID(), op, newInvalidTransition(prev, domain.ServiceStatusActive)), nil
	}
	instance.Activate()
	instance.DeleteMetadata(domain.MetadataKeyScheduledActivation)
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	eventID, err := writeEvent(tx, instance, domain.EventActivationCompleted, prev,
		"service activated", req.TriggeredBy, nil, true, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return okResult(instance.ServiceInstanceID(), op, "service is active", eventID), nil
}

// SuspendRequest records why and for how long a service is being suspended.
type SuspendRequest struct {
	TenantID          string
	ServiceInstanceID string
	ServiceID         string
	SuspensionType    domain.SuspensionType
	Reason            string
	AutoResumeAt      *time.Time
	SendNotification  bool
	TriggeredBy       string
}

// SuspendService moves an active instance to the suspended status selected
// by the suspension type.
func (l *Lifecycle) SuspendService(_ context.Context, req SuspendRequest) (*OperationResult, error) {
	const op = "suspend"
	started := time.Now()

	suspensionType := req.SuspensionType
	if suspensionType == "" {
		suspensionType = domain.SuspensionTypeOther
	}

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
	if prev != domain.ServiceStatusActive {
		return failedResult(instance.ServiceInstanceID(), op, newInvalidTransition(prev, suspensionType.TargetStatus())), nil
	}
	instance.Suspend(suspensionType, req.Reason, req.AutoResumeAt)
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	data := map[string]any{"suspension_type": string(suspensionType), "reason": req.Reason}
	if req.AutoResumeAt != nil {
		data["auto_resume_at"] = req.AutoResumeAt.UTC().Format(time.RFC3339)
	}
	if req.SendNotification {
		data["send_notification"] = true
	}
	eventID, err := writeEvent(tx, instance, domain.EventServiceSuspended, prev,
		"service suspended: "+req.Reason, req.TriggeredBy, data, true, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit suspension: %w", err)
	}
	return okResult(instance.ServiceInstanceID(), op, "service suspended", eventID), nil
}

// ResumeService moves a suspended instance back to active and clears the
// suspension bookkeeping.
func (l *Lifecycle) ResumeService(_ context.Context, req ActivateRequest) (*OperationResult, error) {
	const op = "resume"
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
	if !isSuspended(prev) {
		return failedResult(instance.ServiceInstanceID(), op, newInvalidTransition(prev, domain.ServiceStatusActive)), nil
	}
	instance.Activate()
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	eventID, err := writeEvent(tx, instance, domain.EventServiceResumed, prev,
		"service resumed", req.TriggeredBy, nil, true, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resume: %w", err)
	}
	return okResult(instance.ServiceInstanceID(), op, "service is active", eventID), nil
}
