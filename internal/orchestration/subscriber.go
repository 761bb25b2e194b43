package orchestration

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/saga"
	"github.com/fiberline/switchyard/internal/saga/definition"
	"github.com/fiberline/switchyard/internal/services"
	"github.com/fiberline/switchyard/internal/tracing"
)

// ProvisionSubscriber creates the service instance record and runs the
// provisioning workflow over it. The instance starts in provisioning and
// stays there until activation (AutoActivate or an explicit activate call);
// a compensated run settles it in failed with its resources released.
func (s *Service) ProvisionSubscriber(ctx context.Context, req ProvisionSubscriberRequest) (resp *WorkflowResponse, err error) {
	ctx, span := tracing.StartOperation(ctx, "provision_subscriber",
		tracing.TenantAttr(req.TenantID))
	defer func() { tracing.RecordOutcome(span, err); span.End() }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	kind := domain.WorkflowKindProvisionSubscriber.String()
	def, ok := s.defs.Get(kind)
	if !ok {
		return nil, fmt.Errorf("unknown workflow definition %q", kind)
	}

	wf, wfctx, err := s.createWorkflow(StartWorkflowRequest{
		TenantID:      req.TenantID,
		Definition:    kind,
		Input:         provisionInput(req),
		Initiator:     req.Initiator,
		InitiatorKind: req.InitiatorKind,
	})
	if err != nil {
		return nil, err
	}

	instance, err := s.lifecycle.ProvisionService(ctx, services.ProvisionRequest{
		TenantID:        req.TenantID,
		Name:            req.Name,
		ServiceType:     req.ServiceType,
		PlanID:          req.PlanID,
		CustomerID:      req.CustomerID,
		ServiceLocation: req.ServiceLocation,
		Equipment:       req.Equipment,
		VLANID:          req.ServiceVLAN,
		WorkflowID:      wf.WorkflowID(),
		TriggeredBy:     req.Initiator,
	})
	if err != nil {
		return nil, fmt.Errorf("creating service instance: %w", err)
	}
	if err := s.lifecycle.StartProvisioning(ctx, req.TenantID, instance.ServiceInstanceID()); err != nil {
		return nil, fmt.Errorf("starting provisioning: %w", err)
	}
	s.publishInstanceStatus(req.TenantID, instance.ServiceInstanceID())

	wfctx.ServiceInstanceID = instance.ServiceInstanceID()
	wf.SetContext(wfctx.ToMap())
	if err := s.db.WorkflowRepository().Save(wf); err != nil {
		return nil, fmt.Errorf("persisting workflow context: %w", err)
	}

	if req.Async {
		if err := s.runner.Submit(context.Background(), func(runCtx context.Context) {
			if _, err := s.runProvision(runCtx, wf, def, wfctx, req); err != nil {
				log.Warn(log.CatSaga, "async provisioning run failed",
					"workflow_id", wf.WorkflowID(), "error", err.Error())
			}
		}); err != nil {
			return nil, err
		}
		return s.response(wf)
	}
	return s.runProvision(ctx, wf, def, wfctx, req)
}

// runProvision executes the run and settles the instance afterwards: a
// completed run is optionally auto-activated, a compensated run marks the
// instance failed with its network resources released.
func (s *Service) runProvision(ctx context.Context, wf *domain.Workflow, def *definition.Definition, wfctx *saga.Context, req ProvisionSubscriberRequest) (*WorkflowResponse, error) {
	final, execErr := s.orch.ExecuteWorkflow(ctx, wf, def, wfctx)
	instanceID := wfctx.ServiceInstanceID

	switch final.Status() {
	case domain.WorkflowStatusCompleted:
		s.recordRunIdentities(instanceID, wfctx)
		if req.AutoActivate {
			res, err := s.lifecycle.ActivateService(ctx, services.ActivateRequest{
				TenantID:          req.TenantID,
				ServiceInstanceID: instanceID,
				TriggeredBy:       req.Initiator,
			})
			if err != nil {
				log.Warn(log.CatService, "auto-activation failed",
					"service_instance_id", instanceID, "error", err.Error())
			} else if res.Success {
				s.publishInstanceStatus(req.TenantID, instanceID)
			}
		}
	case domain.WorkflowStatusRolledBack, domain.WorkflowStatusRollbackFailed:
		// Compensators already released the external resources; this settles
		// the instance record and sweeps anything they could not reach.
		if _, err := s.lifecycle.RollbackProvisioning(ctx, req.TenantID, instanceID, req.Initiator); err != nil {
			log.Warn(log.CatService, "settling rolled-back provisioning failed",
				"service_instance_id", instanceID, "error", err.Error())
		} else {
			s.publishInstanceStatus(req.TenantID, instanceID)
		}
	}

	resp, err := s.response(final)
	if err != nil {
		return nil, err
	}
	return resp, execErr
}

// recordRunIdentities copies the identifiers a provisioning run produced
// (subscriber, customer, billing subscription) onto the instance record, so
// later lifecycle operations can find the subscriber's network resources.
func (s *Service) recordRunIdentities(instanceID string, wfctx *saga.Context) {
	repo := s.db.ServiceRepository()
	instance, err := repo.FindByInstanceID(instanceID)
	if err != nil {
		log.Warn(log.CatService, "recording run identities skipped",
			"service_instance_id", instanceID, "error", err.Error())
		return
	}
	if wfctx.SubscriberID != "" && instance.SubscriberID() == "" {
		instance.SetSubscriberID(wfctx.SubscriberID)
	}
	if wfctx.CustomerID != "" && instance.CustomerID() == "" {
		instance.SetCustomerID(wfctx.CustomerID)
	}
	if id := wfctx.ExternalID("billing"); id != "" && instance.SubscriptionID() == "" {
		instance.SetSubscriptionID(id)
	}
	if err := repo.Save(instance); err != nil {
		log.Warn(log.CatService, "recording run identities failed",
			"service_instance_id", instanceID, "error", err.Error())
	}
}

// provisionInput flattens the request into the keys the step handlers read.
func provisionInput(req ProvisionSubscriberRequest) map[string]any {
	input := map[string]any{"plan_id": req.PlanID}
	put := func(key, val string) {
		if val != "" {
			input[key] = val
		}
	}
	put("customer_id", req.CustomerID)
	put("email", req.Email)
	put("name", req.Name)
	put("service_location", req.ServiceLocation)
	put("circuit_id", req.CircuitID)
	put("remote_id", req.RemoteID)
	put("static_ipv4", req.StaticIPv4)
	put("static_ipv6", req.StaticIPv6)
	put("ipv6_mode", req.IPv6Mode)
	put("ipv4_pool_id", req.IPv4PoolID)
	put("ipv6_pool_id", req.IPv6PoolID)
	put("radius_username", req.RadiusUsername)
	put("cpe_device_id", req.CPEDeviceID)
	if req.ServiceVLAN > 0 {
		input["service_vlan"] = req.ServiceVLAN
	}
	if req.InnerVLAN > 0 {
		input["inner_vlan"] = req.InnerVLAN
	}
	if req.IPv6PrefixLength > 0 {
		input["prefix_length"] = req.IPv6PrefixLength
	}
	if len(req.CPEParameters) > 0 {
		params := make(map[string]any, len(req.CPEParameters))
		for k, v := range req.CPEParameters {
			params[k] = v
		}
		input["cpe_parameters"] = params
	}
	return input
}

// DeprovisionSubscriber runs the teardown workflow for a subscriber and, on
// success, terminates the service instance. The newest instance for the
// subscriber is used when the request does not name one.
func (s *Service) DeprovisionSubscriber(ctx context.Context, req DeprovisionSubscriberRequest) (resp *WorkflowResponse, err error) {
	ctx, span := tracing.StartOperation(ctx, "deprovision_subscriber",
		tracing.TenantAttr(req.TenantID),
		attribute.String(tracing.AttrSubscriberID, req.SubscriberID))
	defer func() { tracing.RecordOutcome(span, err); span.End() }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	kind := domain.WorkflowKindDeprovisionSubscriber.String()
	def, ok := s.defs.Get(kind)
	if !ok {
		return nil, fmt.Errorf("unknown workflow definition %q", kind)
	}

	instanceID := req.ServiceInstanceID
	if instanceID == "" {
		instances, err := s.db.ServiceRepository().ListWithFilter(req.TenantID, domain.ServiceListFilter{
			SubscriberID: req.SubscriberID,
			Limit:        1,
		})
		if err != nil {
			return nil, fmt.Errorf("resolving service instance: %w", err)
		}
		if len(instances) > 0 {
			instanceID = instances[0].ServiceInstanceID()
		}
	}

	input := map[string]any{"subscriber_id": req.SubscriberID}
	if instanceID != "" {
		input["service_instance_id"] = instanceID
	}
	if req.Reason != "" {
		input["reason"] = req.Reason
	}

	wf, wfctx, err := s.createWorkflow(StartWorkflowRequest{
		TenantID:      req.TenantID,
		Definition:    kind,
		SubscriberID:  req.SubscriberID,
		Input:         input,
		Initiator:     req.Initiator,
		InitiatorKind: req.InitiatorKind,
	})
	if err != nil {
		return nil, err
	}

	if req.Async {
		if err := s.runner.Submit(context.Background(), func(runCtx context.Context) {
			if _, err := s.runDeprovision(runCtx, wf, def, wfctx, req, instanceID); err != nil {
				log.Warn(log.CatSaga, "async deprovisioning run failed",
					"workflow_id", wf.WorkflowID(), "error", err.Error())
			}
		}); err != nil {
			return nil, err
		}
		return s.response(wf)
	}
	return s.runDeprovision(ctx, wf, def, wfctx, req, instanceID)
}

func (s *Service) runDeprovision(ctx context.Context, wf *domain.Workflow, def *definition.Definition, wfctx *saga.Context, req DeprovisionSubscriberRequest, instanceID string) (*WorkflowResponse, error) {
	final, execErr := s.orch.ExecuteWorkflow(ctx, wf, def, wfctx)

	if final.Status() == domain.WorkflowStatusCompleted && instanceID != "" {
		reason := req.Reason
		if reason == "" {
			reason = "subscriber deprovisioned"
		}
		res, err := s.lifecycle.TerminateService(ctx, services.TerminateRequest{
			TenantID:          req.TenantID,
			ServiceInstanceID: instanceID,
			Reason:            reason,
			TriggeredBy:       req.Initiator,
		})
		if err != nil {
			log.Warn(log.CatService, "terminating instance after deprovisioning failed",
				"service_instance_id", instanceID, "error", err.Error())
		} else if res.Success {
			s.publishInstanceStatus(req.TenantID, instanceID)
		}
	}

	resp, err := s.response(final)
	if err != nil {
		return nil, err
	}
	return resp, execErr
}
