package address

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
)

// Prefix length bounds for delegated IPv6 prefixes.
const (
	DefaultPrefixLength = 56
	MinPrefixLength     = 48
	MaxPrefixLength     = 64
)

// IPv6Machine drives a subscriber's delegated IPv6 prefix through its
// lifecycle. It follows the same protocol as the IPv4 machine, with two
// family differences: allocation is gated on the profile's assignment mode
// supporting prefix delegation, and revoking an already-revoked prefix is a
// successful no-op so terminate flows can call it unconditionally.
type IPv6Machine struct {
	profiles domain.ProfileRepository
	ipam     collab.IPAMClient
	coa      collab.CoAClient
}

// NewIPv6Machine builds a machine. Nil collaborators are replaced with their
// null implementations.
func NewIPv6Machine(profiles domain.ProfileRepository, ipam collab.IPAMClient, coa collab.CoAClient) *IPv6Machine {
	if ipam == nil {
		ipam = collab.NullIPAM{}
	}
	if coa == nil {
		coa = collab.NullCoA{}
	}
	return &IPv6Machine{profiles: profiles, ipam: ipam, coa: coa}
}

// AllocateIPv6Request identifies the subscriber and tunes the prefix grant.
// PrefixLength zero means the profile's configured length, falling back to
// the /56 default.
type AllocateIPv6Request struct {
	SubscriberID string
	TenantID     string
	PoolID       string
	PrefixLength int
	Metadata     map[string]any
	Profiles     domain.ProfileRepository
}

// ActivateIPv6Request identifies the subscriber and the NAS for the CoA push.
type ActivateIPv6Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Profiles     domain.ProfileRepository
}

// SuspendIPv6Request identifies the subscriber.
type SuspendIPv6Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Disconnect   bool
	Reason       string
	Profiles     domain.ProfileRepository
}

// ReactivateIPv6Request identifies the subscriber and the NAS for the CoA push.
type ReactivateIPv6Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Profiles     domain.ProfileRepository
}

// RevokeIPv6Request identifies the subscriber.
type RevokeIPv6Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Disconnect   bool
	Profiles     domain.ProfileRepository
}

func (m *IPv6Machine) repo(override domain.ProfileRepository, commit bool) (domain.ProfileRepository, error) {
	if override != nil {
		return override, nil
	}
	if !commit {
		return nil, errNoTxRepository
	}
	return m.profiles, nil
}

func (m *IPv6Machine) allocationError(subscriberID, tenantID string, current domain.AddressState, err error) *AllocationError {
	return &AllocationError{LifecycleError{
		Family:       FamilyIPv6,
		SubscriberID: subscriberID,
		TenantID:     tenantID,
		CurrentState: current,
		TargetState:  domain.AddressStateAllocated,
		Err:          err,
	}}
}

// Allocate reserves a delegated prefix for the subscriber. The profile's
// assignment mode must support prefix delegation. The requested length must
// fall within 48..64.
func (m *IPv6Machine) Allocate(ctx context.Context, req AllocateIPv6Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, "", err)
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, "", fmt.Errorf("load profile: %w", err))
	}

	current := profile.IPv6State()
	if !profile.IPv6AssignmentMode().SupportsPrefixDelegation() {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, current,
			fmt.Errorf("assignment mode %q does not support prefix delegation", profile.IPv6AssignmentMode()))
	}
	if !ValidateTransition(current, domain.AddressStateAllocated) {
		return nil, newInvalidTransition(FamilyIPv6, req.SubscriberID, req.TenantID, current, domain.AddressStateAllocated)
	}

	prefixLength := req.PrefixLength
	if prefixLength == 0 {
		prefixLength = profile.PrefixLength()
	}
	if prefixLength == 0 {
		prefixLength = DefaultPrefixLength
	}
	if prefixLength < MinPrefixLength || prefixLength > MaxPrefixLength {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, current,
			fmt.Errorf("prefix length /%d outside the delegable range /%d../%d", prefixLength, MinPrefixLength, MaxPrefixLength))
	}

	meta := map[string]any{}
	var prefix, ipamID string
	if m.ipam.Configured() {
		alloc, err := m.ipam.AllocateIPv6Prefix(ctx, collab.IPv6PrefixRequest{
			SubscriberID: req.SubscriberID,
			TenantID:     req.TenantID,
			PoolID:       req.PoolID,
			PrefixLength: prefixLength,
			Metadata:     req.Metadata,
		})
		if err != nil {
			profile.SetIPv6State(domain.AddressStateFailed)
			if saveErr := repo.Save(profile); saveErr != nil {
				log.ErrorErr(log.CatAddress, "failed to record ipv6 allocation failure", saveErr,
					"subscriber_id", req.SubscriberID)
			}
			return nil, m.allocationError(req.SubscriberID, req.TenantID, current, fmt.Errorf("ipam: %w", err))
		}
		prefix = alloc.Prefix
		prefixLength = alloc.PrefixLength
		ipamID = alloc.AllocationID
		meta["source"] = "ipam"
		meta["pool_id"] = alloc.PoolID
	} else {
		if profile.StaticIPv6() == "" {
			return nil, m.allocationError(req.SubscriberID, req.TenantID, current,
				errors.New("no IPAM configured and no static IPv6 prefix on the profile"))
		}
		prefix = profile.StaticIPv6()
		meta["source"] = "static"
	}

	profile.SetIPv6Allocated(prefix, prefixLength, ipamID)
	if err := repo.Save(profile); err != nil {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, current, fmt.Errorf("persist allocation: %w", err))
	}

	log.Info(log.CatAddress, "ipv6 prefix allocated",
		"subscriber_id", req.SubscriberID, "tenant_id", req.TenantID,
		"prefix", prefix, "prefix_length", prefixLength, "source", meta["source"])
	return ipv6Result(profile, meta), nil
}

// Activate moves an allocated prefix into service and pushes the
// Delegated-IPv6-Prefix to the NAS when a CoA client is configured.
func (m *IPv6Machine) Activate(ctx context.Context, req ActivateIPv6Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &ActivationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: err}}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &ActivationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: fmt.Errorf("load profile: %w", err)}}
	}

	current := profile.IPv6State()
	if current != domain.AddressStateAllocated {
		return nil, newInvalidTransition(FamilyIPv6, req.SubscriberID, req.TenantID, current, domain.AddressStateActive)
	}

	profile.SetIPv6State(domain.AddressStateActive)
	if err := repo.Save(profile); err != nil {
		return nil, &ActivationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateActive, Err: fmt.Errorf("persist activation: %w", err)}}
	}

	meta := map[string]any{}
	m.pushPrefix(ctx, profile, req.NASIP, meta)

	log.Info(log.CatAddress, "ipv6 prefix activated",
		"subscriber_id", req.SubscriberID, "prefix", profile.DelegatedPrefix())
	return ipv6Result(profile, meta), nil
}

// Suspend parks an active prefix, optionally kicking the session.
func (m *IPv6Machine) Suspend(ctx context.Context, req SuspendIPv6Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateSuspended, Err: err}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateSuspended, Err: fmt.Errorf("load profile: %w", err)}
	}

	current := profile.IPv6State()
	if current != domain.AddressStateActive {
		return nil, newInvalidTransition(FamilyIPv6, req.SubscriberID, req.TenantID, current, domain.AddressStateSuspended)
	}

	profile.SetIPv6State(domain.AddressStateSuspended)
	if err := repo.Save(profile); err != nil {
		return nil, &LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateSuspended, Err: fmt.Errorf("persist suspension: %w", err)}
	}

	meta := map[string]any{}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	if req.Disconnect {
		m.disconnect(ctx, profile, req.NASIP, meta)
	}

	log.Info(log.CatAddress, "ipv6 prefix suspended",
		"subscriber_id", req.SubscriberID, "reason", req.Reason)
	return ipv6Result(profile, meta), nil
}

// Reactivate returns a suspended prefix to service and re-pushes it.
func (m *IPv6Machine) Reactivate(ctx context.Context, req ReactivateIPv6Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &ReactivationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: err}}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &ReactivationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: fmt.Errorf("load profile: %w", err)}}
	}

	current := profile.IPv6State()
	if current != domain.AddressStateSuspended {
		return nil, newInvalidTransition(FamilyIPv6, req.SubscriberID, req.TenantID, current, domain.AddressStateActive)
	}

	profile.SetIPv6State(domain.AddressStateActive)
	if err := repo.Save(profile); err != nil {
		return nil, &ReactivationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateActive, Err: fmt.Errorf("persist reactivation: %w", err)}}
	}

	meta := map[string]any{}
	m.pushPrefix(ctx, profile, req.NASIP, meta)

	log.Info(log.CatAddress, "ipv6 prefix reactivated", "subscriber_id", req.SubscriberID)
	return ipv6Result(profile, meta), nil
}

// Revoke tears a prefix down. Revoking an already-revoked prefix succeeds
// without mutating anything, so terminate flows can call it unconditionally.
func (m *IPv6Machine) Revoke(ctx context.Context, req RevokeIPv6Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateRevoked, Err: err}}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateRevoked, Err: fmt.Errorf("load profile: %w", err)}}
	}

	current := profile.IPv6State()
	if current == domain.AddressStateRevoked {
		return ipv6Result(profile, map[string]any{"already_revoked": true}), nil
	}
	if !ValidateTransition(current, domain.AddressStateRevoking) {
		return nil, newInvalidTransition(FamilyIPv6, req.SubscriberID, req.TenantID, current, domain.AddressStateRevoking)
	}

	releasedPrefix := profile.DelegatedPrefix()
	ipamID := profile.IPv6IPAMID()

	profile.SetIPv6State(domain.AddressStateRevoking)
	if err := repo.Save(profile); err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateRevoking, Err: fmt.Errorf("persist revoking: %w", err)}}
	}

	meta := map[string]any{}
	if releasedPrefix != "" {
		meta["released_prefix"] = releasedPrefix
	}
	if req.Disconnect {
		m.disconnect(ctx, profile, req.NASIP, meta)
	}

	if ipamID != "" && m.ipam.Configured() {
		if err := m.ipam.ReleaseIPv6Prefix(ctx, ipamID); err != nil {
			log.ErrorErr(log.CatAddress, "ipv6 ipam release failed", err,
				"subscriber_id", req.SubscriberID, "ipam_id", ipamID)
			meta["ipam_release_error"] = err.Error()
		}
	}

	profile.SetIPv6State(domain.AddressStateRevoked)
	profile.ClearIPv6()
	if err := repo.Save(profile); err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv6, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: domain.AddressStateRevoking, TargetState: domain.AddressStateRevoked, Err: fmt.Errorf("persist revocation: %w", err)}}
	}

	log.Info(log.CatAddress, "ipv6 prefix revoked",
		"subscriber_id", req.SubscriberID, "released_prefix", releasedPrefix)
	return ipv6Result(profile, meta), nil
}

// State returns a read-only snapshot of the IPv6 lifecycle for a subscriber.
func (m *IPv6Machine) State(tenantID, subscriberID string) (*Result, error) {
	profile, err := m.profiles.FindBySubscriber(tenantID, subscriberID)
	if err != nil {
		return nil, err
	}
	return ipv6Result(profile, nil), nil
}

func (m *IPv6Machine) pushPrefix(ctx context.Context, profile *domain.SubscriberNetworkProfile, nasIP string, meta map[string]any) {
	if !m.coa.Configured() || profile.RadiusUsername() == "" || nasIP == "" {
		return
	}
	if err := m.coa.UpdateIPv6Prefix(ctx, profile.RadiusUsername(), nasIP, profile.DelegatedPrefix()); err != nil {
		log.Warn(log.CatAddress, "ipv6 coa push failed",
			"subscriber_id", profile.SubscriberID(), "nas_ip", nasIP, "error", err.Error())
		meta["coa_error"] = err.Error()
		return
	}
	meta["coa_pushed"] = true
}

func (m *IPv6Machine) disconnect(ctx context.Context, profile *domain.SubscriberNetworkProfile, nasIP string, meta map[string]any) {
	if !m.coa.Configured() || profile.RadiusUsername() == "" || nasIP == "" {
		return
	}
	if err := m.coa.DisconnectSession(ctx, profile.RadiusUsername(), nasIP); err != nil {
		log.Warn(log.CatAddress, "session disconnect failed",
			"subscriber_id", profile.SubscriberID(), "nas_ip", nasIP, "error", err.Error())
		meta["disconnect_error"] = err.Error()
		return
	}
	meta["disconnected"] = true
}
