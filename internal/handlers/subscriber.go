package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/saga"
)

// createCustomer resolves or mints the customer identity for the run. The
// customer of record lives in the upstream CRM; when the caller already knows
// the id this step is a pass-through.
func (h *Handlers) createCustomer(_ context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	customerID := wfctx.CustomerID
	if customerID == "" {
		customerID = stringValue(input, "customer_id")
	}
	created := false
	if customerID == "" {
		customerID = "cust-" + uuid.NewString()
		created = true
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"customer_id": customerID, "created": created},
		CompensationData: map[string]any{"customer_id": customerID, "created": created},
		Updates:          saga.ContextUpdates{CustomerID: customerID},
	}, nil
}

func (h *Handlers) compDeleteCustomer(_ context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if created, _ := compensationData["created"].(bool); !created {
		return nil
	}
	log.Info(log.CatSaga, "customer record released",
		"customer_id", stringValue(compensationData, "customer_id"))
	return nil
}

func (h *Handlers) createSubscriber(_ context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	subscriberID := wfctx.SubscriberID
	if subscriberID == "" {
		subscriberID = stringValue(input, "subscriber_id")
	}
	created := false
	if subscriberID == "" {
		subscriberID = "sub-" + uuid.NewString()
		created = true
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"subscriber_id": subscriberID, "created": created},
		CompensationData: map[string]any{"subscriber_id": subscriberID, "created": created},
		Updates:          saga.ContextUpdates{SubscriberID: subscriberID},
	}, nil
}

func (h *Handlers) compDeleteSubscriber(_ context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if created, _ := compensationData["created"].(bool); !created {
		return nil
	}
	log.Info(log.CatSaga, "subscriber record released",
		"subscriber_id", stringValue(compensationData, "subscriber_id"))
	return nil
}

// createNetworkProfile writes the subscriber's network ledger row. Re-running
// against an existing profile reuses it, which is what makes workflow retry
// safe across this step.
func (h *Handlers) createNetworkProfile(_ context.Context, input map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	if wfctx.SubscriberID == "" || wfctx.TenantID == "" {
		return nil, saga.Permanent(errors.New("subscriber and tenant ids are required before the network profile step"))
	}

	profiles := store.Profiles()
	existing, err := profiles.FindBySubscriber(wfctx.TenantID, wfctx.SubscriberID)
	if err != nil {
		var notFound *domain.ProfileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("look up network profile: %w", err)
		}
	}
	if existing != nil {
		return &saga.HandlerResult{
			OutputData:       map[string]any{"profile_id": existing.ID(), "existed": true},
			CompensationData: map[string]any{"subscriber_id": wfctx.SubscriberID, "tenant_id": wfctx.TenantID},
			Updates:          saga.ContextUpdates{RadiusUsername: existing.RadiusUsername()},
		}, nil
	}

	profile := domain.NewSubscriberNetworkProfile(wfctx.SubscriberID, wfctx.TenantID)

	username := wfctx.RadiusUsername
	if username == "" {
		username = stringValue(input, "radius_username")
	}
	if username == "" {
		username = wfctx.SubscriberID + "@" + wfctx.TenantID
	}
	profile.SetRadiusUsername(username)

	mode := domain.IPv6AssignmentPrefixDelegation
	if raw := stringValue(input, "ipv6_mode"); raw != "" {
		mode = domain.IPv6AssignmentMode(raw)
		if !mode.IsValid() {
			return nil, saga.Permanent(fmt.Errorf("unknown ipv6 assignment mode %q", raw))
		}
	}
	profile.SetIPv6AssignmentMode(mode)

	if svlan := intValue(input, "service_vlan"); svlan > 0 {
		profile.SetVLANs(svlan, intValue(input, "inner_vlan"))
	}
	if circuitID := stringValue(input, "circuit_id"); circuitID != "" {
		profile.SetOption82(circuitID, stringValue(input, "remote_id"), domain.Option82Enforce)
	}
	if v4, v6 := stringValue(input, "static_ipv4"), stringValue(input, "static_ipv6"); v4 != "" || v6 != "" {
		profile.SetStaticAddresses(v4, v6)
	}

	if err := profiles.Save(profile); err != nil {
		return nil, fmt.Errorf("save network profile: %w", err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"profile_id": profile.ID(), "radius_username": username},
		CompensationData: map[string]any{"subscriber_id": wfctx.SubscriberID, "tenant_id": wfctx.TenantID},
		Updates:          saga.ContextUpdates{RadiusUsername: username},
	}, nil
}

// deleteNetworkProfile is the deprovisioning forward step.
func (h *Handlers) deleteNetworkProfile(_ context.Context, _ map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	if err := removeProfile(store, wfctx.TenantID, wfctx.SubscriberID); err != nil {
		return nil, err
	}
	return &saga.HandlerResult{OutputData: map[string]any{"deleted": true}}, nil
}

func (h *Handlers) compDeleteNetworkProfile(_ context.Context, _, compensationData map[string]any, store saga.Store) error {
	return removeProfile(store,
		stringValue(compensationData, "tenant_id"),
		stringValue(compensationData, "subscriber_id"))
}

// removeProfile soft-deletes the ledger row; a missing row is already done.
func removeProfile(store saga.Store, tenantID, subscriberID string) error {
	if tenantID == "" || subscriberID == "" {
		return nil
	}
	if err := store.Profiles().Delete(tenantID, subscriberID); err != nil {
		var notFound *domain.ProfileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("delete network profile: %w", err)
	}
	return nil
}

func (h *Handlers) archiveSubscriber(_ context.Context, _ map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	log.Info(log.CatSaga, "subscriber archived",
		"subscriber_id", wfctx.SubscriberID, "tenant_id", wfctx.TenantID)
	return &saga.HandlerResult{OutputData: map[string]any{"archived": true}}, nil
}
