// Package collab defines the contracts for the external systems the
// orchestrator coordinates: IPAM, RADIUS (CoA and account store), access-node
// controllers, CPE managers, billing, and health monitoring. Every contract
// ships with a null-object "not configured" implementation and an in-memory
// fake with an inspectable ledger.
package collab

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by null-object collaborators. Callers that can
// proceed without the collaborator branch on Configured() instead of matching
// this error.
var ErrNotConfigured = errors.New("collaborator not configured")

// IPv4AllocationRequest asks IPAM for a single IPv4 address.
type IPv4AllocationRequest struct {
	SubscriberID     string
	TenantID         string
	PoolID           string // empty means the default pool
	RequestedAddress string // empty means any free address
	Metadata         map[string]any
}

// IPv4Allocation is IPAM's record of a granted IPv4 address.
type IPv4Allocation struct {
	AllocationID string
	Address      string
	PoolID       string
}

// IPv6PrefixRequest asks IPAM for a delegated IPv6 prefix.
type IPv6PrefixRequest struct {
	SubscriberID string
	TenantID     string
	PoolID       string
	PrefixLength int // 48..64
	Metadata     map[string]any
}

// IPv6PrefixAllocation is IPAM's record of a delegated prefix.
type IPv6PrefixAllocation struct {
	AllocationID string
	Prefix       string
	PrefixLength int
	PoolID       string
}

// IPAMClient manages address and prefix reservations in the external IP
// address management system.
type IPAMClient interface {
	Configured() bool
	AllocateIPv4(ctx context.Context, req IPv4AllocationRequest) (*IPv4Allocation, error)
	ReleaseIPv4(ctx context.Context, allocationID string) error
	AllocateIPv6Prefix(ctx context.Context, req IPv6PrefixRequest) (*IPv6PrefixAllocation, error)
	ReleaseIPv6Prefix(ctx context.Context, allocationID string) error
}

// CoAClient pushes RADIUS Change-of-Authorization and Disconnect messages to
// live sessions. All operations target a session by RADIUS username and
// optional NAS address.
type CoAClient interface {
	Configured() bool
	UpdateIPv4Address(ctx context.Context, username, nasIP, address string) error
	UpdateIPv6Prefix(ctx context.Context, username, nasIP, prefix string) error
	DisconnectSession(ctx context.Context, username, nasIP string) error
}

// RadiusAccountRequest creates a subscriber account in the RADIUS store.
type RadiusAccountRequest struct {
	Username     string
	Password     string
	SubscriberID string
	TenantID     string
	Attributes   map[string]string
}

// RadiusStore manages subscriber accounts in the RADIUS backend.
type RadiusStore interface {
	Configured() bool
	CreateAccount(ctx context.Context, req RadiusAccountRequest) error
	DeleteAccount(ctx context.Context, username string) error
	EnableAccount(ctx context.Context, username string) error
	DisableAccount(ctx context.Context, username string) error
}

// AccessNodeResult reports the outcome of an access-node operation.
type AccessNodeResult struct {
	DeviceID string
	Status   string
}

// AccessNodeManager drives the access node (OLT/DSLAM port, ONU) serving a
// subscriber.
type AccessNodeManager interface {
	Configured() bool
	EnableSubscriber(ctx context.Context, subscriberID string) (*AccessNodeResult, error)
	DisableSubscriber(ctx context.Context, subscriberID string) (*AccessNodeResult, error)
	ConfigureSubscriber(ctx context.Context, subscriberID string, params map[string]string) (*AccessNodeResult, error)
	RebootDevice(ctx context.Context, deviceID string) error
}

// CPEManager drives the customer-premises device (TR-069 style).
type CPEManager interface {
	Configured() bool
	SetParameter(ctx context.Context, deviceID, name, value string) error
	GetParameter(ctx context.Context, deviceID, name string) (string, error)
	Reboot(ctx context.Context, deviceID string) error
	Refresh(ctx context.Context, deviceID string) error
	EnqueueTask(ctx context.Context, deviceID, task string) (string, error)
}

// BillingSubscriptionRequest creates a billable subscription.
type BillingSubscriptionRequest struct {
	CustomerID   string
	SubscriberID string
	TenantID     string
	PlanID       string
	Metadata     map[string]any
}

// BillingClient manages subscription records in the billing system.
type BillingClient interface {
	Configured() bool
	CreateSubscription(ctx context.Context, req BillingSubscriptionRequest) (string, error)
	SuspendSubscription(ctx context.Context, externalID string) error
	ResumeSubscription(ctx context.Context, externalID string) error
	TerminateSubscription(ctx context.Context, externalID string) error
}

// HealthResult is the outcome of a service health probe.
type HealthResult struct {
	Healthy bool
	Detail  string
}

// HealthMonitor probes the live state of a provisioned service.
type HealthMonitor interface {
	Configured() bool
	CheckService(ctx context.Context, serviceInstanceID string) (*HealthResult, error)
}

// Set bundles every collaborator the orchestrator may need. Fields default to
// null objects so handlers never see a nil interface.
type Set struct {
	IPAM       IPAMClient
	CoA        CoAClient
	Radius     RadiusStore
	AccessNode AccessNodeManager
	CPE        CPEManager
	Billing    BillingClient
	Health     HealthMonitor
}

// NewNullSet returns a Set with every collaborator unconfigured.
func NewNullSet() *Set {
	return &Set{
		IPAM:       NullIPAM{},
		CoA:        NullCoA{},
		Radius:     NullRadius{},
		AccessNode: NullAccessNode{},
		CPE:        NullCPE{},
		Billing:    NullBilling{},
		Health:     NullHealth{},
	}
}

// Normalize replaces nil fields with null objects.
func (s *Set) Normalize() {
	if s.IPAM == nil {
		s.IPAM = NullIPAM{}
	}
	if s.CoA == nil {
		s.CoA = NullCoA{}
	}
	if s.Radius == nil {
		s.Radius = NullRadius{}
	}
	if s.AccessNode == nil {
		s.AccessNode = NullAccessNode{}
	}
	if s.CPE == nil {
		s.CPE = NullCPE{}
	}
	if s.Billing == nil {
		s.Billing = NullBilling{}
	}
	if s.Health == nil {
		s.Health = NullHealth{}
	}
}
