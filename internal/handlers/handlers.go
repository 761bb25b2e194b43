// Package handlers implements the forward and compensation step handlers the
// built-in workflow definitions name. Handlers talk to collaborators through
// the collab contracts and to the network ledger through the address machines;
// each one records whatever its compensator needs in compensation data, so
// compensation never re-queries the source of truth.
package handlers

import (
	"fmt"

	"github.com/fiberline/switchyard/internal/address"
	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/saga"
)

// Handlers owns the collaborator set and address machines the step handlers
// close over. Build one per process and register it once at bootstrap.
type Handlers struct {
	collab *collab.Set
	ipv4   *address.IPv4Machine
	ipv6   *address.IPv6Machine
}

// New builds the handler set. A nil collaborator set is replaced with null
// objects, so every handler can call Configured() without nil checks.
func New(set *collab.Set, ipv4 *address.IPv4Machine, ipv6 *address.IPv6Machine) *Handlers {
	if set == nil {
		set = collab.NewNullSet()
	} else {
		set.Normalize()
	}
	return &Handlers{collab: set, ipv4: ipv4, ipv6: ipv6}
}

// Register wires every handler name the built-in definitions reference into
// the registry. A duplicate name is a bootstrap bug and fails loudly.
func (h *Handlers) Register(reg *saga.Registry) error {
	forward := map[string]saga.ForwardHandler{
		"create_customer":        h.createCustomer,
		"create_subscriber":      h.createSubscriber,
		"create_network_profile": h.createNetworkProfile,
		"create_radius_account":  h.createRadiusAccount,
		"allocate_dualstack_ip":  h.allocateDualStack,
		"activate_onu":           h.activateONU,
		"configure_cpe":          h.configureCPE,
		"create_billing_service": h.createBillingService,

		"suspend_billing":        h.suspendBilling,
		"deactivate_onu":         h.deactivateONU,
		"unconfigure_cpe":        h.unconfigureCPE,
		"release_ip":             h.releaseIP,
		"delete_radius":          h.deleteRadius,
		"delete_network_profile": h.deleteNetworkProfile,
		"archive_subscriber":     h.archiveSubscriber,

		"verify_service":       h.verifyService,
		"activate_billing":     h.activateBilling,
		"enable_radius":        h.enableRadius,
		"enable_cpe":           h.enableCPE,
		"set_status_active":    h.setStatusActive,
		"disable_radius":       h.disableRadius,
		"disable_onu":          h.disableONU,
		"disable_cpe":          h.disableCPE,
		"set_status_suspended": h.setStatusSuspended,
	}
	compensation := map[string]saga.CompensationHandler{
		"delete_customer":        h.compDeleteCustomer,
		"delete_subscriber":      h.compDeleteSubscriber,
		"delete_network_profile": h.compDeleteNetworkProfile,
		"delete_radius_account":  h.compDeleteRadiusAccount,
		"release_dualstack_ip":   h.compReleaseDualStack,
		"deactivate_onu":         h.compDeactivateONU,
		"activate_onu":           h.compActivateONU,
		"unconfigure_cpe":        h.compUnconfigureCPE,
		"cancel_billing_service": h.compCancelBillingService,
		"resume_billing":         h.compResumeBilling,
		"suspend_billing":        h.compSuspendBilling,
		"enable_radius":          h.compEnableRadius,
		"disable_radius":         h.compDisableRadius,
		"enable_onu":             h.compEnableONU,
		"enable_cpe":             h.compEnableCPE,
		"disable_cpe":            h.compDisableCPE,
	}
	for name, fn := range forward {
		if err := reg.RegisterForward(name, fn); err != nil {
			return fmt.Errorf("register forward %q: %w", name, err)
		}
	}
	for name, fn := range compensation {
		if err := reg.RegisterCompensation(name, fn); err != nil {
			return fmt.Errorf("register compensation %q: %w", name, err)
		}
	}
	return nil
}

// skipped is the output of a handler whose collaborator is not configured.
// The step still completes; the reason stays visible in the step record.
func skipped(reason string) *saga.HandlerResult {
	return &saga.HandlerResult{OutputData: map[string]any{"skipped": true, "reason": reason}}
}

// lookup resolves a step parameter. Step input is the persisted run context,
// which keeps free-form parameters under its "extra" key, so both levels are
// consulted.
func lookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	if extra, ok := m["extra"].(map[string]any); ok {
		if v, ok := extra[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringValue(m map[string]any, key string) string {
	v, _ := lookup(m, key)
	s, _ := v.(string)
	return s
}

func intValue(m map[string]any, key string) int {
	raw, _ := lookup(m, key)
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64: // JSON numbers decode as float64
		return int(v)
	default:
		return 0
	}
}

func mapValue(m map[string]any, key string) map[string]any {
	v, _ := lookup(m, key)
	out, _ := v.(map[string]any)
	return out
}

func stringMapValue(m map[string]any, key string) map[string]string {
	out := map[string]string{}
	for k, v := range mapValue(m, key) {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
