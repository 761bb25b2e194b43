package address

import (
	"fmt"

	"github.com/fiberline/switchyard/internal/domain"
)

// LifecycleError is the supertype for every address machine failure. The
// concrete operation errors unwrap to it, so callers can match a specific
// failure with errors.As on the concrete type, or any lifecycle failure with
// errors.As on *LifecycleError.
type LifecycleError struct {
	Family       Family
	SubscriberID string
	TenantID     string
	CurrentState domain.AddressState
	TargetState  domain.AddressState
	Err          error
}

func (e *LifecycleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s lifecycle for subscriber %q: %v", e.Family, e.SubscriberID, e.Err)
	}
	return fmt.Sprintf("%s lifecycle for subscriber %q failed", e.Family, e.SubscriberID)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// AllocationError reports a failed address or prefix allocation.
type AllocationError struct {
	LifecycleError
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("%s allocation for subscriber %q: %v", e.Family, e.SubscriberID, e.Err)
}

// Unwrap exposes the embedded supertype so errors.As(&LifecycleError) matches.
func (e *AllocationError) Unwrap() error { return &e.LifecycleError }

// ActivationError reports a failed activation.
type ActivationError struct {
	LifecycleError
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("%s activation for subscriber %q: %v", e.Family, e.SubscriberID, e.Err)
}

func (e *ActivationError) Unwrap() error { return &e.LifecycleError }

// ReactivationError reports a failed reactivation from suspended.
type ReactivationError struct {
	LifecycleError
}

func (e *ReactivationError) Error() string {
	return fmt.Sprintf("%s reactivation for subscriber %q: %v", e.Family, e.SubscriberID, e.Err)
}

func (e *ReactivationError) Unwrap() error { return &e.LifecycleError }

// RevocationError reports a failed revocation.
type RevocationError struct {
	LifecycleError
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("%s revocation for subscriber %q: %v", e.Family, e.SubscriberID, e.Err)
}

func (e *RevocationError) Unwrap() error { return &e.LifecycleError }

// InvalidTransitionError reports an operation attempted from a state whose
// transition table does not permit it. No mutation happens.
type InvalidTransitionError struct {
	LifecycleError
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s lifecycle for subscriber %q: illegal transition %s -> %s",
		e.Family, e.SubscriberID, e.CurrentState, e.TargetState)
}

func (e *InvalidTransitionError) Unwrap() error { return &e.LifecycleError }

func newInvalidTransition(family Family, subscriberID, tenantID string, current, target domain.AddressState) *InvalidTransitionError {
	return &InvalidTransitionError{LifecycleError{
		Family:       family,
		SubscriberID: subscriberID,
		TenantID:     tenantID,
		CurrentState: current,
		TargetState:  target,
	}}
}
