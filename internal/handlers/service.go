package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/saga"
)

// loadService fetches the instance the run operates on. A run without a
// service instance id cannot be fixed by retrying.
func loadService(wfctx *saga.Context, store saga.Store) (*domain.ServiceInstance, error) {
	if wfctx.ServiceInstanceID == "" {
		return nil, saga.Permanent(errors.New("run context carries no service instance id"))
	}
	instance, err := store.Services().FindByInstanceID(wfctx.ServiceInstanceID)
	if err != nil {
		var notFound *domain.ServiceNotFoundError
		if errors.As(err, &notFound) {
			return nil, saga.Permanent(err)
		}
		return nil, err
	}
	return instance, nil
}

// verifyService confirms the target instance exists and, when a health
// monitor is wired, records what it says. Verification never mutates.
func (h *Handlers) verifyService(ctx context.Context, _ map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	instance, err := loadService(wfctx, store)
	if err != nil {
		return nil, err
	}
	output := map[string]any{
		"service_instance_id": instance.ServiceInstanceID(),
		"status":              string(instance.Status()),
	}
	if h.collab.Health.Configured() {
		if probe, err := h.collab.Health.CheckService(ctx, instance.ServiceInstanceID()); err == nil {
			output["healthy"] = probe.Healthy
			output["health_detail"] = probe.Detail
		}
	}
	return &saga.HandlerResult{OutputData: output}, nil
}

func (h *Handlers) setStatusActive(_ context.Context, _ map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	instance, err := loadService(wfctx, store)
	if err != nil {
		return nil, err
	}
	if instance.Status() == domain.ServiceStatusActive {
		return &saga.HandlerResult{OutputData: map[string]any{"status": string(instance.Status()), "unchanged": true}}, nil
	}
	instance.Activate()
	if err := store.Services().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	return &saga.HandlerResult{OutputData: map[string]any{"status": string(instance.Status())}}, nil
}

func (h *Handlers) setStatusSuspended(_ context.Context, input map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	instance, err := loadService(wfctx, store)
	if err != nil {
		return nil, err
	}
	suspensionType := domain.SuspensionType(stringValue(input, "suspension_type"))
	switch suspensionType {
	case domain.SuspensionTypeFraud, domain.SuspensionTypeNonPayment, domain.SuspensionTypeOther:
	case "":
		suspensionType = domain.SuspensionTypeOther
	default:
		return nil, saga.Permanent(fmt.Errorf("unknown suspension type %q", suspensionType))
	}
	instance.Suspend(suspensionType, stringValue(input, "reason"), nil)
	if err := store.Services().Save(instance); err != nil {
		return nil, fmt.Errorf("save service instance: %w", err)
	}
	return &saga.HandlerResult{OutputData: map[string]any{
		"status":          string(instance.Status()),
		"suspension_type": string(suspensionType),
	}}, nil
}
