package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fiberline/switchyard/internal/address"
	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/saga"
)

const (
	systemAccessNode = "access_node"
	systemCPE        = "cpe"
)

// radiusUsername resolves the account name for RADIUS operations: the run
// context first, then the subscriber's network profile.
func (h *Handlers) radiusUsername(wfctx *saga.Context, store saga.Store) (string, error) {
	if wfctx.RadiusUsername != "" {
		return wfctx.RadiusUsername, nil
	}
	profile, err := store.Profiles().FindBySubscriber(wfctx.TenantID, wfctx.SubscriberID)
	if err != nil {
		return "", fmt.Errorf("resolve radius username: %w", err)
	}
	return profile.RadiusUsername(), nil
}

func (h *Handlers) createRadiusAccount(ctx context.Context, input map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	if !h.collab.Radius.Configured() {
		return skipped("radius store not configured"), nil
	}
	username, err := h.radiusUsername(wfctx, store)
	if err != nil {
		return nil, err
	}
	password := stringValue(input, "radius_password")
	if password == "" {
		password = uuid.NewString()
	}
	err = h.collab.Radius.CreateAccount(ctx, collab.RadiusAccountRequest{
		Username:     username,
		Password:     password,
		SubscriberID: wfctx.SubscriberID,
		TenantID:     wfctx.TenantID,
		Attributes:   stringMapValue(input, "radius_attributes"),
	})
	if err != nil {
		return nil, fmt.Errorf("create radius account: %w", err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"radius_username": username},
		CompensationData: map[string]any{"radius_username": username},
		Updates:          saga.ContextUpdates{RadiusUsername: username},
	}, nil
}

func (h *Handlers) compDeleteRadiusAccount(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if !h.collab.Radius.Configured() {
		return nil
	}
	username := stringValue(compensationData, "radius_username")
	if username == "" {
		return nil
	}
	return h.collab.Radius.DeleteAccount(ctx, username)
}

func (h *Handlers) deleteRadius(ctx context.Context, _ map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	if !h.collab.Radius.Configured() {
		return skipped("radius store not configured"), nil
	}
	username, err := h.radiusUsername(wfctx, store)
	if err != nil {
		return nil, err
	}
	if err := h.collab.Radius.DeleteAccount(ctx, username); err != nil {
		return nil, fmt.Errorf("delete radius account: %w", err)
	}
	return &saga.HandlerResult{OutputData: map[string]any{"radius_username": username}}, nil
}

func (h *Handlers) enableRadius(ctx context.Context, _ map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	return h.toggleRadius(ctx, wfctx, store, true)
}

func (h *Handlers) disableRadius(ctx context.Context, _ map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	return h.toggleRadius(ctx, wfctx, store, false)
}

func (h *Handlers) toggleRadius(ctx context.Context, wfctx *saga.Context, store saga.Store, enable bool) (*saga.HandlerResult, error) {
	if !h.collab.Radius.Configured() {
		return skipped("radius store not configured"), nil
	}
	username, err := h.radiusUsername(wfctx, store)
	if err != nil {
		return nil, err
	}
	if enable {
		err = h.collab.Radius.EnableAccount(ctx, username)
	} else {
		err = h.collab.Radius.DisableAccount(ctx, username)
	}
	if err != nil {
		return nil, fmt.Errorf("toggle radius account: %w", err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"radius_username": username, "enabled": enable},
		CompensationData: map[string]any{"radius_username": username},
	}, nil
}

func (h *Handlers) compEnableRadius(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if username := stringValue(compensationData, "radius_username"); username != "" && h.collab.Radius.Configured() {
		return h.collab.Radius.EnableAccount(ctx, username)
	}
	return nil
}

func (h *Handlers) compDisableRadius(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if username := stringValue(compensationData, "radius_username"); username != "" && h.collab.Radius.Configured() {
		return h.collab.Radius.DisableAccount(ctx, username)
	}
	return nil
}

// allocateDualStack reserves the subscriber's IPv4 address and, when the
// profile's assignment mode calls for it, a delegated IPv6 prefix.
func (h *Handlers) allocateDualStack(ctx context.Context, input map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	res4, err := h.ipv4.Allocate(ctx, address.AllocateIPv4Request{
		SubscriberID:     wfctx.SubscriberID,
		TenantID:         wfctx.TenantID,
		PoolID:           stringValue(input, "ipv4_pool_id"),
		RequestedAddress: stringValue(input, "requested_ipv4"),
	}, true)
	if err != nil {
		return nil, classifyAddressErr(err)
	}

	output := map[string]any{"ipv4_address": res4.Address}
	updates := saga.ContextUpdates{IPv4Address: res4.Address}

	profile, err := store.Profiles().FindBySubscriber(wfctx.TenantID, wfctx.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("reload network profile: %w", err)
	}
	if profile.IPv6AssignmentMode().SupportsPrefixDelegation() {
		res6, err := h.ipv6.Allocate(ctx, address.AllocateIPv6Request{
			SubscriberID: wfctx.SubscriberID,
			TenantID:     wfctx.TenantID,
			PoolID:       stringValue(input, "ipv6_pool_id"),
			PrefixLength: intValue(input, "prefix_length"),
		}, true)
		if err != nil {
			// The IPv4 grant stays put; the compensator releases both
			// families if the workflow rolls back.
			return nil, classifyAddressErr(err)
		}
		output["ipv6_prefix"] = res6.Address
		updates.IPv6Prefix = res6.Address
	} else {
		output["ipv6_prefix"] = ""
		output["ipv6_skipped"] = string(profile.IPv6AssignmentMode())
	}

	return &saga.HandlerResult{
		OutputData: output,
		CompensationData: map[string]any{
			"subscriber_id": wfctx.SubscriberID,
			"tenant_id":     wfctx.TenantID,
		},
		Updates: updates,
	}, nil
}

func (h *Handlers) compReleaseDualStack(ctx context.Context, _, compensationData map[string]any, store saga.Store) error {
	return h.releaseBothFamilies(ctx, store,
		stringValue(compensationData, "tenant_id"),
		stringValue(compensationData, "subscriber_id"))
}

// releaseIP is the deprovisioning forward step: revoke whatever the
// subscriber still holds in both families.
func (h *Handlers) releaseIP(ctx context.Context, _ map[string]any, wfctx *saga.Context, store saga.Store) (*saga.HandlerResult, error) {
	if err := h.releaseBothFamilies(ctx, store, wfctx.TenantID, wfctx.SubscriberID); err != nil {
		return nil, err
	}
	return &saga.HandlerResult{OutputData: map[string]any{"released": true}}, nil
}

// releaseBothFamilies revokes the IPv4 address and IPv6 prefix. A family that
// never reached an allocatable state is already clean and is left alone.
func (h *Handlers) releaseBothFamilies(ctx context.Context, store saga.Store, tenantID, subscriberID string) error {
	if tenantID == "" || subscriberID == "" {
		return nil
	}
	if _, err := h.ipv4.Revoke(ctx, address.RevokeIPv4Request{
		SubscriberID: subscriberID,
		TenantID:     tenantID,
	}, true); err != nil && !addressAlreadyClean(err) {
		return fmt.Errorf("release ipv4: %w", err)
	}
	if _, err := h.ipv6.Revoke(ctx, address.RevokeIPv6Request{
		SubscriberID: subscriberID,
		TenantID:     tenantID,
	}, true); err != nil && !addressAlreadyClean(err) {
		return fmt.Errorf("release ipv6: %w", err)
	}
	return nil
}

// addressAlreadyClean reports whether a revoke failed only because there was
// nothing to revoke.
func addressAlreadyClean(err error) bool {
	var invalid *address.InvalidTransitionError
	return errors.As(err, &invalid)
}

// classifyAddressErr marks state-machine violations permanent; IPAM and
// repository failures stay retryable.
func classifyAddressErr(err error) error {
	var invalid *address.InvalidTransitionError
	if errors.As(err, &invalid) {
		return saga.Permanent(err)
	}
	return err
}

func (h *Handlers) activateONU(ctx context.Context, _ map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	return h.toggleONU(ctx, wfctx, true)
}

func (h *Handlers) deactivateONU(ctx context.Context, _ map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	return h.toggleONU(ctx, wfctx, false)
}

func (h *Handlers) disableONU(ctx context.Context, _ map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	return h.toggleONU(ctx, wfctx, false)
}

func (h *Handlers) toggleONU(ctx context.Context, wfctx *saga.Context, enable bool) (*saga.HandlerResult, error) {
	if !h.collab.AccessNode.Configured() {
		return skipped("access node manager not configured"), nil
	}
	var (
		res *collab.AccessNodeResult
		err error
	)
	if enable {
		res, err = h.collab.AccessNode.EnableSubscriber(ctx, wfctx.SubscriberID)
	} else {
		res, err = h.collab.AccessNode.DisableSubscriber(ctx, wfctx.SubscriberID)
	}
	if err != nil {
		return nil, fmt.Errorf("toggle access node: %w", err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"device_id": res.DeviceID, "status": res.Status, "enabled": enable},
		CompensationData: map[string]any{"subscriber_id": wfctx.SubscriberID},
		Updates:          saga.ContextUpdates{ExternalIDs: map[string]string{systemAccessNode: res.DeviceID}},
	}, nil
}

func (h *Handlers) compActivateONU(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	return h.compToggleONU(ctx, compensationData, true)
}

func (h *Handlers) compDeactivateONU(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	return h.compToggleONU(ctx, compensationData, false)
}

func (h *Handlers) compEnableONU(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	return h.compToggleONU(ctx, compensationData, true)
}

func (h *Handlers) compToggleONU(ctx context.Context, compensationData map[string]any, enable bool) error {
	if !h.collab.AccessNode.Configured() {
		return nil
	}
	subscriberID := stringValue(compensationData, "subscriber_id")
	if subscriberID == "" {
		return nil
	}
	var err error
	if enable {
		_, err = h.collab.AccessNode.EnableSubscriber(ctx, subscriberID)
	} else {
		_, err = h.collab.AccessNode.DisableSubscriber(ctx, subscriberID)
	}
	return err
}

// cpeDevice resolves the managed CPE for the run.
func cpeDevice(input map[string]any, wfctx *saga.Context) string {
	if id := wfctx.ExternalID(systemCPE); id != "" {
		return id
	}
	return stringValue(input, "cpe_device_id")
}

func (h *Handlers) configureCPE(ctx context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	if !h.collab.CPE.Configured() {
		return skipped("cpe manager not configured"), nil
	}
	device := cpeDevice(input, wfctx)
	if device == "" {
		return skipped("no cpe device on record"), nil
	}
	params := stringMapValue(input, "cpe_parameters")
	for name, value := range params {
		if err := h.collab.CPE.SetParameter(ctx, device, name, value); err != nil {
			return nil, fmt.Errorf("set cpe parameter %s: %w", name, err)
		}
	}
	if len(params) == 0 {
		if err := h.collab.CPE.Refresh(ctx, device); err != nil {
			return nil, fmt.Errorf("refresh cpe: %w", err)
		}
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"device_id": device, "parameters_set": len(params)},
		CompensationData: map[string]any{"device_id": device},
		Updates:          saga.ContextUpdates{ExternalIDs: map[string]string{systemCPE: device}},
	}, nil
}

func (h *Handlers) unconfigureCPE(ctx context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	if !h.collab.CPE.Configured() {
		return skipped("cpe manager not configured"), nil
	}
	device := cpeDevice(input, wfctx)
	if device == "" {
		return skipped("no cpe device on record"), nil
	}
	taskID, err := h.collab.CPE.EnqueueTask(ctx, device, "deprovision")
	if err != nil {
		return nil, fmt.Errorf("enqueue cpe deprovision: %w", err)
	}
	return &saga.HandlerResult{OutputData: map[string]any{"device_id": device, "task_id": taskID}}, nil
}

func (h *Handlers) compUnconfigureCPE(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	if !h.collab.CPE.Configured() {
		return nil
	}
	device := stringValue(compensationData, "device_id")
	if device == "" {
		return nil
	}
	_, err := h.collab.CPE.EnqueueTask(ctx, device, "deprovision")
	return err
}

func (h *Handlers) enableCPE(ctx context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	return h.toggleCPE(ctx, input, wfctx, true)
}

func (h *Handlers) disableCPE(ctx context.Context, input map[string]any, wfctx *saga.Context, _ saga.Store) (*saga.HandlerResult, error) {
	return h.toggleCPE(ctx, input, wfctx, false)
}

func (h *Handlers) toggleCPE(ctx context.Context, input map[string]any, wfctx *saga.Context, enable bool) (*saga.HandlerResult, error) {
	if !h.collab.CPE.Configured() {
		return skipped("cpe manager not configured"), nil
	}
	device := cpeDevice(input, wfctx)
	if device == "" {
		return skipped("no cpe device on record"), nil
	}
	task := "disable_service"
	if enable {
		task = "enable_service"
	}
	taskID, err := h.collab.CPE.EnqueueTask(ctx, device, task)
	if err != nil {
		return nil, fmt.Errorf("enqueue cpe %s: %w", task, err)
	}
	return &saga.HandlerResult{
		OutputData:       map[string]any{"device_id": device, "task_id": taskID, "enabled": enable},
		CompensationData: map[string]any{"device_id": device},
	}, nil
}

func (h *Handlers) compEnableCPE(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	return h.compToggleCPE(ctx, compensationData, "enable_service")
}

func (h *Handlers) compDisableCPE(ctx context.Context, _, compensationData map[string]any, _ saga.Store) error {
	return h.compToggleCPE(ctx, compensationData, "disable_service")
}

func (h *Handlers) compToggleCPE(ctx context.Context, compensationData map[string]any, task string) error {
	if !h.collab.CPE.Configured() {
		return nil
	}
	device := stringValue(compensationData, "device_id")
	if device == "" {
		return nil
	}
	_, err := h.collab.CPE.EnqueueTask(ctx, device, task)
	return err
}
