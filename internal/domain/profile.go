package domain

import "time"

// IPv6AssignmentMode selects how a subscriber receives IPv6 connectivity.
type IPv6AssignmentMode string

const (
	IPv6AssignmentNone             IPv6AssignmentMode = "none"
	IPv6AssignmentSLAAC            IPv6AssignmentMode = "slaac"
	IPv6AssignmentDHCPv6           IPv6AssignmentMode = "dhcpv6"
	IPv6AssignmentPrefixDelegation IPv6AssignmentMode = "prefix_delegation"
	IPv6AssignmentDualStack        IPv6AssignmentMode = "dual_stack"
)

// IsValid returns true if the mode is a recognized assignment mode.
func (m IPv6AssignmentMode) IsValid() bool {
	switch m {
	case IPv6AssignmentNone, IPv6AssignmentSLAAC, IPv6AssignmentDHCPv6,
		IPv6AssignmentPrefixDelegation, IPv6AssignmentDualStack:
		return true
	default:
		return false
	}
}

// SupportsPrefixDelegation returns true for modes under which a delegated
// prefix may be allocated.
func (m IPv6AssignmentMode) SupportsPrefixDelegation() bool {
	return m == IPv6AssignmentPrefixDelegation || m == IPv6AssignmentDualStack
}

// Option82Policy controls how DHCP relay-agent information mismatches are
// handled for a subscriber port.
type Option82Policy string

const (
	Option82Enforce Option82Policy = "enforce"
	Option82Log     Option82Policy = "log"
	Option82Ignore  Option82Policy = "ignore"
)

// IsValid returns true if the policy is recognized.
func (p Option82Policy) IsValid() bool {
	switch p {
	case Option82Enforce, Option82Log, Option82Ignore:
		return true
	default:
		return false
	}
}

// SubscriberNetworkProfile holds per-subscriber network metadata including
// both address lifecycle states. All fields are unexported to enforce
// encapsulation; use the constructor and getter methods to access data.
type SubscriberNetworkProfile struct {
	id           int64
	subscriberID string
	tenantID     string

	circuitID string
	remoteID  string

	serviceVLAN int
	innerVLAN   int
	qinqEnabled bool

	staticIPv4 string
	staticIPv6 string

	ipv4Address     string
	ipv4State       AddressState
	ipv4IPAMID      string
	ipv4AllocatedAt *time.Time
	ipv4ActivatedAt *time.Time
	ipv4SuspendedAt *time.Time
	ipv4RevokedAt   *time.Time

	ipv6AssignmentMode IPv6AssignmentMode
	delegatedPrefix    string
	prefixLength       int
	ipv6State          AddressState
	ipv6IPAMID         string
	ipv6AllocatedAt    *time.Time
	ipv6ActivatedAt    *time.Time
	ipv6SuspendedAt    *time.Time
	ipv6RevokedAt      *time.Time

	option82Policy Option82Policy
	radiusUsername string
	metadata       map[string]any

	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewSubscriberNetworkProfile creates a profile with both address machines in
// the pending state. The ID is left as zero; it will be assigned by the
// persistence layer.
func NewSubscriberNetworkProfile(subscriberID, tenantID string) *SubscriberNetworkProfile {
	now := time.Now()
	return &SubscriberNetworkProfile{
		subscriberID:       subscriberID,
		tenantID:           tenantID,
		ipv4State:          AddressStatePending,
		ipv6State:          AddressStatePending,
		ipv6AssignmentMode: IPv6AssignmentNone,
		option82Policy:     Option82Log,
		createdAt:          now,
		updatedAt:          now,
	}
}

// ReconstituteSubscriberNetworkProfile creates a profile from existing data,
// typically when hydrating from the database.
func ReconstituteSubscriberNetworkProfile(
	id int64,
	subscriberID, tenantID string,
	circuitID, remoteID string,
	serviceVLAN, innerVLAN int,
	qinqEnabled bool,
	staticIPv4, staticIPv6 string,
	ipv4Address string,
	ipv4State AddressState,
	ipv4IPAMID string,
	ipv4AllocatedAt, ipv4ActivatedAt, ipv4SuspendedAt, ipv4RevokedAt *time.Time,
	ipv6AssignmentMode IPv6AssignmentMode,
	delegatedPrefix string,
	prefixLength int,
	ipv6State AddressState,
	ipv6IPAMID string,
	ipv6AllocatedAt, ipv6ActivatedAt, ipv6SuspendedAt, ipv6RevokedAt *time.Time,
	option82Policy Option82Policy,
	radiusUsername string,
	metadata map[string]any,
	createdAt, updatedAt time.Time,
	deletedAt *time.Time,
) *SubscriberNetworkProfile {
	return &SubscriberNetworkProfile{
		id:                 id,
		subscriberID:       subscriberID,
		tenantID:           tenantID,
		circuitID:          circuitID,
		remoteID:           remoteID,
		serviceVLAN:        serviceVLAN,
		innerVLAN:          innerVLAN,
		qinqEnabled:        qinqEnabled,
		staticIPv4:         staticIPv4,
		staticIPv6:         staticIPv6,
		ipv4Address:        ipv4Address,
		ipv4State:          ipv4State,
		ipv4IPAMID:         ipv4IPAMID,
		ipv4AllocatedAt:    ipv4AllocatedAt,
		ipv4ActivatedAt:    ipv4ActivatedAt,
		ipv4SuspendedAt:    ipv4SuspendedAt,
		ipv4RevokedAt:      ipv4RevokedAt,
		ipv6AssignmentMode: ipv6AssignmentMode,
		delegatedPrefix:    delegatedPrefix,
		prefixLength:       prefixLength,
		ipv6State:          ipv6State,
		ipv6IPAMID:         ipv6IPAMID,
		ipv6AllocatedAt:    ipv6AllocatedAt,
		ipv6ActivatedAt:    ipv6ActivatedAt,
		ipv6SuspendedAt:    ipv6SuspendedAt,
		ipv6RevokedAt:      ipv6RevokedAt,
		option82Policy:     option82Policy,
		radiusUsername:     radiusUsername,
		metadata:           metadata,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
		deletedAt:          deletedAt,
	}
}

// ID returns the database identifier for this profile.
func (p *SubscriberNetworkProfile) ID() int64 { return p.id }

// SubscriberID returns the subscriber this profile belongs to.
func (p *SubscriberNetworkProfile) SubscriberID() string { return p.subscriberID }

// TenantID returns the tenant scope of this profile.
func (p *SubscriberNetworkProfile) TenantID() string { return p.tenantID }

// CircuitID returns the expected Option 82 circuit-id.
func (p *SubscriberNetworkProfile) CircuitID() string { return p.circuitID }

// RemoteID returns the expected Option 82 remote-id.
func (p *SubscriberNetworkProfile) RemoteID() string { return p.remoteID }

// ServiceVLAN returns the outer (service) VLAN, or 0.
func (p *SubscriberNetworkProfile) ServiceVLAN() int { return p.serviceVLAN }

// InnerVLAN returns the inner (customer) VLAN, or 0.
func (p *SubscriberNetworkProfile) InnerVLAN() int { return p.innerVLAN }

// QinQEnabled returns true when stacked VLAN tagging is in use.
func (p *SubscriberNetworkProfile) QinQEnabled() bool { return p.qinqEnabled }

// StaticIPv4 returns the pre-configured IPv4 address, or empty.
func (p *SubscriberNetworkProfile) StaticIPv4() string { return p.staticIPv4 }

// StaticIPv6 returns the pre-configured IPv6 address, or empty.
func (p *SubscriberNetworkProfile) StaticIPv6() string { return p.staticIPv6 }

// IPv4Address returns the allocated IPv4 address, or empty.
func (p *SubscriberNetworkProfile) IPv4Address() string { return p.ipv4Address }

// IPv4State returns the IPv4 lifecycle state.
func (p *SubscriberNetworkProfile) IPv4State() AddressState { return p.ipv4State }

// IPv4IPAMID returns the IPAM record identifier for the IPv4 reservation.
func (p *SubscriberNetworkProfile) IPv4IPAMID() string { return p.ipv4IPAMID }

// IPv4AllocatedAt returns when the IPv4 address was allocated, or nil.
func (p *SubscriberNetworkProfile) IPv4AllocatedAt() *time.Time { return p.ipv4AllocatedAt }

// IPv4ActivatedAt returns when the IPv4 address was last activated, or nil.
func (p *SubscriberNetworkProfile) IPv4ActivatedAt() *time.Time { return p.ipv4ActivatedAt }

// IPv4SuspendedAt returns when the IPv4 address was last suspended, or nil.
func (p *SubscriberNetworkProfile) IPv4SuspendedAt() *time.Time { return p.ipv4SuspendedAt }

// IPv4RevokedAt returns when the IPv4 address was revoked, or nil.
func (p *SubscriberNetworkProfile) IPv4RevokedAt() *time.Time { return p.ipv4RevokedAt }

// IPv6AssignmentMode returns how the subscriber receives IPv6 connectivity.
func (p *SubscriberNetworkProfile) IPv6AssignmentMode() IPv6AssignmentMode {
	return p.ipv6AssignmentMode
}

// DelegatedPrefix returns the delegated IPv6 prefix, or empty.
func (p *SubscriberNetworkProfile) DelegatedPrefix() string { return p.delegatedPrefix }

// PrefixLength returns the delegated prefix length, or 0.
func (p *SubscriberNetworkProfile) PrefixLength() int { return p.prefixLength }

// IPv6State returns the IPv6 lifecycle state.
func (p *SubscriberNetworkProfile) IPv6State() AddressState { return p.ipv6State }

// IPv6IPAMID returns the IPAM record identifier for the delegated prefix.
func (p *SubscriberNetworkProfile) IPv6IPAMID() string { return p.ipv6IPAMID }

// IPv6AllocatedAt returns when the prefix was allocated, or nil.
func (p *SubscriberNetworkProfile) IPv6AllocatedAt() *time.Time { return p.ipv6AllocatedAt }

// IPv6ActivatedAt returns when the prefix was last activated, or nil.
func (p *SubscriberNetworkProfile) IPv6ActivatedAt() *time.Time { return p.ipv6ActivatedAt }

// IPv6SuspendedAt returns when the prefix was last suspended, or nil.
func (p *SubscriberNetworkProfile) IPv6SuspendedAt() *time.Time { return p.ipv6SuspendedAt }

// IPv6RevokedAt returns when the prefix was revoked, or nil.
func (p *SubscriberNetworkProfile) IPv6RevokedAt() *time.Time { return p.ipv6RevokedAt }

// Option82Policy returns the relay-agent information policy.
func (p *SubscriberNetworkProfile) Option82Policy() Option82Policy { return p.option82Policy }

// RadiusUsername returns the RADIUS account username, or empty.
func (p *SubscriberNetworkProfile) RadiusUsername() string { return p.radiusUsername }

// Metadata returns the free-form vendor metadata map.
func (p *SubscriberNetworkProfile) Metadata() map[string]any { return p.metadata }

// CreatedAt returns when this profile was created.
func (p *SubscriberNetworkProfile) CreatedAt() time.Time { return p.createdAt }

// UpdatedAt returns when this profile was last updated.
func (p *SubscriberNetworkProfile) UpdatedAt() time.Time { return p.updatedAt }

// DeletedAt returns the soft-delete timestamp, or nil for a live profile.
func (p *SubscriberNetworkProfile) DeletedAt() *time.Time { return p.deletedAt }

// SetID sets the database identifier for this profile.
// This is typically called by the persistence layer after inserting a new profile.
func (p *SubscriberNetworkProfile) SetID(id int64) { p.id = id }

// SetOption82 sets the expected circuit-id, remote-id, and mismatch policy.
func (p *SubscriberNetworkProfile) SetOption82(circuitID, remoteID string, policy Option82Policy) {
	p.circuitID = circuitID
	p.remoteID = remoteID
	p.option82Policy = policy
	p.updatedAt = time.Now()
}

// SetVLANs sets the outer and optional inner VLAN. QinQ is enabled when an
// inner VLAN is given.
func (p *SubscriberNetworkProfile) SetVLANs(serviceVLAN, innerVLAN int) {
	p.serviceVLAN = serviceVLAN
	p.innerVLAN = innerVLAN
	p.qinqEnabled = innerVLAN > 0
	p.updatedAt = time.Now()
}

// SetStaticAddresses sets pre-configured static addresses.
func (p *SubscriberNetworkProfile) SetStaticAddresses(ipv4, ipv6 string) {
	p.staticIPv4 = ipv4
	p.staticIPv6 = ipv6
	p.updatedAt = time.Now()
}

// SetIPv6AssignmentMode sets how the subscriber receives IPv6 connectivity.
func (p *SubscriberNetworkProfile) SetIPv6AssignmentMode(mode IPv6AssignmentMode) {
	p.ipv6AssignmentMode = mode
	p.updatedAt = time.Now()
}

// SetRadiusUsername sets the RADIUS account username.
func (p *SubscriberNetworkProfile) SetRadiusUsername(username string) {
	p.radiusUsername = username
	p.updatedAt = time.Now()
}

// SetMetadata replaces the vendor metadata map.
func (p *SubscriberNetworkProfile) SetMetadata(metadata map[string]any) {
	p.metadata = metadata
	p.updatedAt = time.Now()
}

// SetIPv4Allocated records a fresh IPv4 allocation.
func (p *SubscriberNetworkProfile) SetIPv4Allocated(address, ipamID string) {
	now := time.Now()
	p.ipv4Address = address
	p.ipv4IPAMID = ipamID
	p.ipv4State = AddressStateAllocated
	p.ipv4AllocatedAt = &now
	p.updatedAt = now
}

// SetIPv4State moves the IPv4 machine to the given state, stamping the
// matching timestamp. Callers validate the transition first.
func (p *SubscriberNetworkProfile) SetIPv4State(state AddressState) {
	now := time.Now()
	p.ipv4State = state
	switch state {
	case AddressStateActive:
		p.ipv4ActivatedAt = &now
	case AddressStateSuspended:
		p.ipv4SuspendedAt = &now
	case AddressStateRevoked:
		p.ipv4RevokedAt = &now
	}
	p.updatedAt = now
}

// ClearIPv4 clears the IPv4 address and IPAM id after a revocation.
func (p *SubscriberNetworkProfile) ClearIPv4() {
	p.ipv4Address = ""
	p.ipv4IPAMID = ""
	p.updatedAt = time.Now()
}

// SetIPv6Allocated records a fresh delegated-prefix allocation.
func (p *SubscriberNetworkProfile) SetIPv6Allocated(prefix string, prefixLength int, ipamID string) {
	now := time.Now()
	p.delegatedPrefix = prefix
	p.prefixLength = prefixLength
	p.ipv6IPAMID = ipamID
	p.ipv6State = AddressStateAllocated
	p.ipv6AllocatedAt = &now
	p.updatedAt = now
}

// SetIPv6State moves the IPv6 machine to the given state, stamping the
// matching timestamp. Callers validate the transition first.
func (p *SubscriberNetworkProfile) SetIPv6State(state AddressState) {
	now := time.Now()
	p.ipv6State = state
	switch state {
	case AddressStateActive:
		p.ipv6ActivatedAt = &now
	case AddressStateSuspended:
		p.ipv6SuspendedAt = &now
	case AddressStateRevoked:
		p.ipv6RevokedAt = &now
	}
	p.updatedAt = now
}

// ClearIPv6 clears the delegated prefix and IPAM id after a revocation.
func (p *SubscriberNetworkProfile) ClearIPv6() {
	p.delegatedPrefix = ""
	p.ipv6IPAMID = ""
	p.updatedAt = time.Now()
}

// SoftDelete marks the profile deleted without removing the row.
func (p *SubscriberNetworkProfile) SoftDelete() {
	now := time.Now()
	p.deletedAt = &now
	p.updatedAt = now
}
