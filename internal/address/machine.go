// Package address implements the IPv4 and IPv6 lifecycle machines. Each
// machine walks a subscriber's network profile through the shared state
// graph (pending, allocated, active, suspended, revoking, revoked, failed),
// drives IPAM and RADIUS CoA side effects, and persists every transition
// through a ProfileRepository. RADIUS pushes are always best-effort: a CoA
// failure is reported in the result metadata, never as an operation error.
package address

import (
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// Family identifies which address machine an operation concerns.
type Family string

const (
	FamilyIPv4 Family = "ipv4"
	FamilyIPv6 Family = "ipv6"
)

// ValidateTransition reports whether the lifecycle table permits moving from
// current to target. Both families share the same table.
func ValidateTransition(current, target domain.AddressState) bool {
	return current.CanTransitionTo(target)
}

// Result is the outcome of a lifecycle operation. Address carries the IPv4
// address or the delegated IPv6 prefix depending on the machine. Metadata
// holds non-fatal side-effect outcomes such as CoA or IPAM release errors.
type Result struct {
	Success      bool
	State        domain.AddressState
	Address      string
	SubscriberID string
	TenantID     string
	AllocatedAt  *time.Time
	ActivatedAt  *time.Time
	SuspendedAt  *time.Time
	RevokedAt    *time.Time
	Metadata     map[string]any
}

func ipv4Result(p *domain.SubscriberNetworkProfile, meta map[string]any) *Result {
	return &Result{
		Success:      true,
		State:        p.IPv4State(),
		Address:      p.IPv4Address(),
		SubscriberID: p.SubscriberID(),
		TenantID:     p.TenantID(),
		AllocatedAt:  p.IPv4AllocatedAt(),
		ActivatedAt:  p.IPv4ActivatedAt(),
		SuspendedAt:  p.IPv4SuspendedAt(),
		RevokedAt:    p.IPv4RevokedAt(),
		Metadata:     meta,
	}
}

func ipv6Result(p *domain.SubscriberNetworkProfile, meta map[string]any) *Result {
	return &Result{
		Success:      true,
		State:        p.IPv6State(),
		Address:      p.DelegatedPrefix(),
		SubscriberID: p.SubscriberID(),
		TenantID:     p.TenantID(),
		AllocatedAt:  p.IPv6AllocatedAt(),
		ActivatedAt:  p.IPv6ActivatedAt(),
		SuspendedAt:  p.IPv6SuspendedAt(),
		RevokedAt:    p.IPv6RevokedAt(),
		Metadata:     meta,
	}
}
