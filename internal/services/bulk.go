package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fiberline/switchyard/internal/address"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
)

// BulkOperation names one of the batchable lifecycle operations.
type BulkOperation string

const (
	BulkSuspend     BulkOperation = "suspend"
	BulkResume      BulkOperation = "resume"
	BulkTerminate   BulkOperation = "terminate"
	BulkHealthCheck BulkOperation = "health_check"
)

// BulkRequest applies one operation to many instances.
type BulkRequest struct {
	TenantID           string
	Operation          BulkOperation
	ServiceInstanceIDs []string
	SuspensionType     domain.SuspensionType
	Reason             string
	TriggeredBy        string
}

// BulkServiceOperation runs the operation over every id and reports per-item
// outcomes. One failing item never aborts the batch.
func (l *Lifecycle) BulkServiceOperation(ctx context.Context, req BulkRequest) ([]*OperationResult, error) {
	switch req.Operation {
	case BulkSuspend, BulkResume, BulkTerminate, BulkHealthCheck:
	default:
		return nil, fmt.Errorf("unknown bulk operation %q", req.Operation)
	}

	results := make([]*OperationResult, 0, len(req.ServiceInstanceIDs))
	for _, instanceID := range req.ServiceInstanceIDs {
		result, err := l.applyBulkItem(ctx, req, instanceID)
		if err != nil {
			result = failedResult(instanceID, string(req.Operation), err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (l *Lifecycle) applyBulkItem(ctx context.Context, req BulkRequest, instanceID string) (*OperationResult, error) {
	switch req.Operation {
	case BulkSuspend:
		return l.SuspendService(ctx, SuspendRequest{
			TenantID:          req.TenantID,
			ServiceInstanceID: instanceID,
			SuspensionType:    req.SuspensionType,
			Reason:            req.Reason,
			TriggeredBy:       req.TriggeredBy,
		})
	case BulkResume:
		return l.ResumeService(ctx, ActivateRequest{
			TenantID:          req.TenantID,
			ServiceInstanceID: instanceID,
			TriggeredBy:       req.TriggeredBy,
		})
	case BulkTerminate:
		return l.TerminateService(ctx, TerminateRequest{
			TenantID:          req.TenantID,
			ServiceInstanceID: instanceID,
			Reason:            req.Reason,
			TriggeredBy:       req.TriggeredBy,
		})
	case BulkHealthCheck:
		return l.PerformHealthCheck(ctx, req.TenantID, instanceID, req.TriggeredBy)
	default:
		return nil, fmt.Errorf("unknown bulk operation %q", req.Operation)
	}
}

// RollbackProvisioning cleans up after a provisioning workflow that failed
// without compensating: both address families are released, equipment is
// cleared, the instance goes to failed, and the workflow record is marked
// rolled back.
func (l *Lifecycle) RollbackProvisioning(ctx context.Context, tenantID, instanceID, triggeredBy string) (*OperationResult, error) {
	const op = "rollback_provisioning"
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
	if instance.Status() != domain.ServiceStatusProvisioning && instance.Status() != domain.ServiceStatusPending {
		return failedResult(instanceID, op, newInvalidTransition(instance.Status(), domain.ServiceStatusFailed)), nil
	}

	data := map[string]any{}
	if instance.SubscriberID() != "" {
		profiles := tx.ProfileRepository()
		if _, err := l.ipv4.Revoke(ctx, address.RevokeIPv4Request{
			SubscriberID: instance.SubscriberID(),
			TenantID:     tenantID,
			Profiles:     profiles,
		}, false); err != nil {
			log.Warn(log.CatService, "ipv4 release during rollback skipped",
				"subscriber_id", instance.SubscriberID(), "error", err.Error())
		} else {
			data["ipv4_released"] = true
		}
		if _, err := l.ipv6.Revoke(ctx, address.RevokeIPv6Request{
			SubscriberID: instance.SubscriberID(),
			TenantID:     tenantID,
			Profiles:     profiles,
		}, false); err != nil {
			log.Warn(log.CatService, "ipv6 release during rollback skipped",
				"subscriber_id", instance.SubscriberID(), "error", err.Error())
		} else {
			data["ipv6_released"] = true
		}
	}

	prev := instance.Status()
	instance.SetEquipment(nil)
	instance.MarkFailed()
	if err := tx.ServiceRepository().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}

	if instance.WorkflowID() != "" {
		wf, err := tx.WorkflowRepository().FindByWorkflowID(tenantID, instance.WorkflowID())
		if err == nil && wf.Status() == domain.WorkflowStatusFailed {
			wf.StartCompensation()
			wf.MarkRolledBack()
			if err := tx.WorkflowRepository().Save(wf); err != nil {
				return nil, fmt.Errorf("save workflow: %w", err)
			}
			data["workflow_id"] = wf.WorkflowID()
		}
	}

	eventID, err := writeEvent(tx, instance, domain.EventProvisionRolledBack, prev,
		"provisioning rolled back", triggeredBy, data, true, started)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rollback: %w", err)
	}
	return okResult(instanceID, op, "provisioning rolled back", eventID), nil
}
