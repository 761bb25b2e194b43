package handlers

import (
	"context"
	"fmt"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/saga"
)

const systemBilling = "billing"

func (h *Handlers) createBillingService(ctx context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	if !h.collab.Billing.Configured() {
		return skipped("billing not configured"), nil
	}
	planID := wfctx.PlanID
	if planID == "" {
		planID = stringValue(input, "plan_id")
	}
	externalID, err := h.collab.Billing.CreateSubscription(ctx, collab.BillingSubscriptionRequest{
		CustomerID:   wfctx.CustomerID,
		SubscriberID: wfctx.SubscriberID,
		TenantID:     wfctx.TenantID,
		PlanID:       planID,
	})
	if err != nil {
		return nil, fmt.Errorf("create billing subscription: %w", err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"subscription_id": externalID},
		CompensationData: map[string]any{"subscription_id": externalID},
		Updates:          saga.ContextUpdates{ExternalIDs: map[string]string{systemBilling: externalID}},
	}, nil
}

func (h *Handlers) compCancelBillingService(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if !h.collab.Billing.Configured() {
		return nil
	}
	id := stringValue(compensationData, "subscription_id")
	if id == "" {
		return nil
	}
	return h.collab.Billing.TerminateSubscription(ctx, id)
}

// billingSubscription resolves the external subscription id for the run.
func billingSubscription(input map[string]any, wfctx *saga.Context) string {
	if id := wfctx.ExternalID(systemBilling); id != "" {
		return id
	}
	return stringValue(input, "subscription_id")
}

func (h *Handlers) suspendBilling(ctx context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	if !h.collab.Billing.Configured() {
		return skipped("billing not configured"), nil
	}
	id := billingSubscription(input, wfctx)
	if id == "" {
		return skipped("no billing subscription on record"), nil
	}
	if err := h.collab.Billing.SuspendSubscription(ctx, id); err != nil {
		return nil, fmt.Errorf("suspend billing subscription: %w", err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"subscription_id": id},
		CompensationData: map[string]any{"subscription_id": id},
		Updates:          saga.ContextUpdates{ExternalIDs: map[string]string{systemBilling: id}},
	}, nil
}

func (h *Handlers) activateBilling(ctx context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	if !h.collab.Billing.Configured() {
		return skipped("billing not configured"), nil
	}
	id := billingSubscription(input, wfctx)
	if id == "" {
		return skipped("no billing subscription on record"), nil
	}
	if err := h.collab.Billing.ResumeSubscription(ctx, id); err != nil {
		return nil, fmt.Errorf("resume billing subscription: %w", err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"subscription_id": id},
		CompensationData: map[string]any{"subscription_id": id},
		Updates:          saga.ContextUpdates{ExternalIDs: map[string]string{systemBilling: id}},
	}, nil
}

func (h *Handlers) compResumeBilling(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if !h.collab.Billing.Configured() {
		return nil
	}
	id := stringValue(compensationData, "subscription_id")
	if id == "" {
		return nil
	}
	return h.collab.Billing.ResumeSubscription(ctx, id)
}

func (h *Handlers) compSuspendBilling(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if !h.collab.Billing.Configured() {
		return nil
	}
	id := stringValue(compensationData, "subscription_id")
	if id == "" {
		return nil
	}
	return h.collab.Billing.SuspendSubscription(ctx, id)
}
