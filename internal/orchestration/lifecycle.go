package orchestration

import (
	"context"

	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/services"
	"github.com/fiberline/switchyard/internal/tracing"
)

// The lifecycle wrappers validate, delegate to the services layer, and put a
// service.status_changed event on the stream when the instance moved.

// publishInstanceStatus reloads the instance and emits its current status.
// Advisory only: a reload failure drops the event, never the operation.
func (s *Service) publishInstanceStatus(tenantID, instanceID string) {
	instance, err := s.db.ServiceRepository().FindByInstanceID(instanceID)
	if err != nil {
		log.Warn(log.CatService, "status event skipped",
			"service_instance_id", instanceID, "error", err.Error())
		return
	}
	s.broker.Publish(Event{
		Type:              EventServiceStatusChanged,
		TenantID:          tenantID,
		ServiceInstanceID: instanceID,
		ServiceStatus:     instance.Status().String(),
	})
}

// ActivateService activates a provisioned or suspended instance.
func (s *Service) ActivateService(ctx context.Context, req ActivateServiceRequest) (res *services.OperationResult, err error) {
	ctx, span := tracing.StartOperation(ctx, "activate_service",
		tracing.TenantAttr(req.TenantID), tracing.InstanceAttr(req.ServiceInstanceID))
	defer func() { tracing.RecordOutcome(span, err); span.End() }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err = s.lifecycle.ActivateService(ctx, services.ActivateRequest{
		TenantID:          req.TenantID,
		ServiceInstanceID: req.ServiceInstanceID,
		ServiceID:         req.ServiceID,
		TriggeredBy:       req.TriggeredBy,
	})
	if err == nil && res.Success {
		s.publishInstanceStatus(req.TenantID, res.ServiceInstanceID)
	}
	return res, err
}

// SuspendService suspends an active instance.
func (s *Service) SuspendService(ctx context.Context, req SuspendServiceRequest) (res *services.OperationResult, err error) {
	ctx, span := tracing.StartOperation(ctx, "suspend_service",
		tracing.TenantAttr(req.TenantID), tracing.InstanceAttr(req.ServiceInstanceID))
	defer func() { tracing.RecordOutcome(span, err); span.End() }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err = s.lifecycle.SuspendService(ctx, services.SuspendRequest{
		TenantID:          req.TenantID,
		ServiceInstanceID: req.ServiceInstanceID,
		ServiceID:         req.ServiceID,
		SuspensionType:    req.SuspensionType,
		Reason:            req.Reason,
		AutoResumeAt:      req.AutoResumeAt,
		SendNotification:  req.SendNotification,
		TriggeredBy:       req.TriggeredBy,
	})
	if err == nil && res.Success {
		s.publishInstanceStatus(req.TenantID, res.ServiceInstanceID)
	}
	return res, err
}

// ResumeService lifts a suspension.
func (s *Service) ResumeService(ctx context.Context, req ActivateServiceRequest) (*services.OperationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := s.lifecycle.ResumeService(ctx, services.ActivateRequest{
		TenantID:          req.TenantID,
		ServiceInstanceID: req.ServiceInstanceID,
		ServiceID:         req.ServiceID,
		TriggeredBy:       req.TriggeredBy,
	})
	if err == nil && res.Success {
		s.publishInstanceStatus(req.TenantID, res.ServiceInstanceID)
	}
	return res, err
}

// TerminateService terminates an instance, immediately or at the requested
// future date.
func (s *Service) TerminateService(ctx context.Context, req TerminateServiceRequest) (res *services.OperationResult, err error) {
	ctx, span := tracing.StartOperation(ctx, "terminate_service",
		tracing.TenantAttr(req.TenantID), tracing.InstanceAttr(req.ServiceInstanceID))
	defer func() { tracing.RecordOutcome(span, err); span.End() }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err = s.lifecycle.TerminateService(ctx, services.TerminateRequest{
		TenantID:          req.TenantID,
		ServiceInstanceID: req.ServiceInstanceID,
		ServiceID:         req.ServiceID,
		Reason:            req.Reason,
		TerminationDate:   req.TerminationDate,
		SendNotification:  req.SendNotification,
		ReturnEquipment:   req.ReturnEquipment,
		TriggeredBy:       req.TriggeredBy,
	})
	if err == nil && res.Success {
		s.publishInstanceStatus(req.TenantID, res.ServiceInstanceID)
	}
	return res, err
}

// ModifyService applies in-place attribute changes to an instance.
func (s *Service) ModifyService(ctx context.Context, req services.ModifyRequest) (*services.OperationResult, error) {
	return s.lifecycle.ModifyService(ctx, req)
}

// PerformHealthCheck probes an instance and records the verdict.
func (s *Service) PerformHealthCheck(ctx context.Context, tenantID, instanceID, triggeredBy string) (*services.OperationResult, error) {
	return s.lifecycle.PerformHealthCheck(ctx, tenantID, instanceID, triggeredBy)
}

// BulkServiceOperation applies one lifecycle operation to many instances.
// Status events are emitted per moved instance.
func (s *Service) BulkServiceOperation(ctx context.Context, req services.BulkRequest) ([]*services.OperationResult, error) {
	results, err := s.lifecycle.BulkServiceOperation(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Operation != services.BulkHealthCheck {
		for _, res := range results {
			if res.Success {
				s.publishInstanceStatus(req.TenantID, res.ServiceInstanceID)
			}
		}
	}
	return results, nil
}

// RollbackProvisioningWorkflow settles a provisioning run that failed
// without compensating: resources released, instance failed, workflow record
// rolled back.
func (s *Service) RollbackProvisioningWorkflow(ctx context.Context, tenantID, instanceID, triggeredBy string) (*services.OperationResult, error) {
	res, err := s.lifecycle.RollbackProvisioning(ctx, tenantID, instanceID, triggeredBy)
	if err == nil && res.Success {
		s.publishInstanceStatus(tenantID, instanceID)
	}
	return res, err
}
