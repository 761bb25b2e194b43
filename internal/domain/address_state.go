package domain

// AddressState represents the lifecycle state of an address reservation.
// Both the IPv4 and IPv6 machines share this state set.
type AddressState string

const (
	// AddressStatePending indicates no allocation exists yet.
	AddressStatePending AddressState = "pending"

	// AddressStateAllocated indicates IPAM holds a reservation not yet live.
	AddressStateAllocated AddressState = "allocated"

	// AddressStateActive indicates the address is in service.
	AddressStateActive AddressState = "active"

	// AddressStateSuspended indicates the address is held but not serving.
	AddressStateSuspended AddressState = "suspended"

	// AddressStateRevoking indicates a revocation is in flight.
	AddressStateRevoking AddressState = "revoking"

	// AddressStateRevoked indicates the reservation was released. Terminal.
	AddressStateRevoked AddressState = "revoked"

	// AddressStateFailed indicates the last operation failed; recovery may
	// re-allocate or revoke.
	AddressStateFailed AddressState = "failed"
)

// String returns the string representation of the address state.
func (s AddressState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized address state.
func (s AddressState) IsValid() bool {
	_, ok := validAddressTransitions[s]
	return ok
}

// validAddressTransitions is the legal-transition table for address state.
// The failed -> allocated recovery edge makes the graph cyclic, so
// transitions are table lookups.
var validAddressTransitions = map[AddressState]map[AddressState]bool{
	AddressStatePending: {
		AddressStateAllocated: true,
		AddressStateFailed:    true,
	},
	AddressStateAllocated: {
		AddressStateActive:   true,
		AddressStateRevoking: true,
		AddressStateFailed:   true,
	},
	AddressStateActive: {
		AddressStateSuspended: true,
		AddressStateRevoking:  true,
		AddressStateFailed:    true,
	},
	AddressStateSuspended: {
		AddressStateActive:   true,
		AddressStateRevoking: true,
		AddressStateFailed:   true,
	},
	AddressStateRevoking: {
		AddressStateRevoked: true,
		AddressStateFailed:  true,
	},
	AddressStateRevoked: {},
	AddressStateFailed: {
		AddressStateAllocated: true, // recovery
		AddressStateRevoking:  true,
	},
}

// CanTransitionTo returns true if the state may legally move to target.
func (s AddressState) CanTransitionTo(target AddressState) bool {
	targets, ok := validAddressTransitions[s]
	if !ok {
		return false
	}
	return targets[target]
}

// IsTerminal returns true if no further transitions are legal from this state.
func (s AddressState) IsTerminal() bool {
	targets, ok := validAddressTransitions[s]
	return ok && len(targets) == 0
}

// ValidTargets returns the states reachable from this state in one transition.
func (s AddressState) ValidTargets() []AddressState {
	targets := validAddressTransitions[s]
	out := make([]AddressState, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	return out
}
