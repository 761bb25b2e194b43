package address

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
)

// IPv4Machine drives a subscriber's IPv4 address through its lifecycle.
// Mutating operations take a commit flag: with commit=true they persist
// through the machine's own repository, with commit=false the caller must
// supply a transaction-bound repository on the request so the transition
// joins a larger atomic unit (the caller owns the commit).
type IPv4Machine struct {
	profiles domain.ProfileRepository
	ipam     collab.IPAMClient
	coa      collab.CoAClient
}

// NewIPv4Machine builds a machine. Nil collaborators are replaced with their
// null implementations.
func NewIPv4Machine(profiles domain.ProfileRepository, ipam collab.IPAMClient, coa collab.CoAClient) *IPv4Machine {
	if ipam == nil {
		ipam = collab.NullIPAM{}
	}
	if coa == nil {
		coa = collab.NullCoA{}
	}
	return &IPv4Machine{profiles: profiles, ipam: ipam, coa: coa}
}

// AllocateIPv4Request identifies the subscriber and tunes the IPAM grant.
type AllocateIPv4Request struct {
	SubscriberID     string
	TenantID         string
	PoolID           string
	RequestedAddress string
	Metadata         map[string]any
	// Profiles overrides the machine's repository, typically with one bound
	// to an open transaction. Required when commit is false.
	Profiles domain.ProfileRepository
}

// ActivateIPv4Request identifies the subscriber and the NAS for the CoA push.
type ActivateIPv4Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Profiles     domain.ProfileRepository
}

// SuspendIPv4Request identifies the subscriber. When Disconnect is set and a
// CoA client is configured the active session is kicked so the NAS re-auths
// the subscriber into its suspended policy.
type SuspendIPv4Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Disconnect   bool
	Reason       string
	Profiles     domain.ProfileRepository
}

// ReactivateIPv4Request identifies the subscriber and the NAS for the CoA push.
type ReactivateIPv4Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Profiles     domain.ProfileRepository
}

// RevokeIPv4Request identifies the subscriber. Disconnect kicks the live
// session before the address is released back to IPAM.
type RevokeIPv4Request struct {
	SubscriberID string
	TenantID     string
	NASIP        string
	Disconnect   bool
	Profiles     domain.ProfileRepository
}

var errNoTxRepository = errors.New("commit=false requires a transaction-bound profile repository on the request")

func (m *IPv4Machine) repo(override domain.ProfileRepository, commit bool) (domain.ProfileRepository, error) {
	if override != nil {
		return override, nil
	}
	if !commit {
		return nil, errNoTxRepository
	}
	return m.profiles, nil
}

func (m *IPv4Machine) allocationError(subscriberID, tenantID string, current domain.AddressState, err error) *AllocationError {
	return &AllocationError{LifecycleError{
		Family:       FamilyIPv4,
		SubscriberID: subscriberID,
		TenantID:     tenantID,
		CurrentState: current,
		TargetState:  domain.AddressStateAllocated,
		Err:          err,
	}}
}

// Allocate reserves an IPv4 address for the subscriber. With IPAM configured
// the address comes from the pool; without it the profile's static IPv4 is
// used. The profile must be in pending or failed. An IPAM failure records
// the failed state before reporting the error so a later retry can re-enter
// allocation.
func (m *IPv4Machine) Allocate(ctx context.Context, req AllocateIPv4Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, "", err)
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, "", fmt.Errorf("load profile: %w", err))
	}

	current := profile.IPv4State()
	if !ValidateTransition(current, domain.AddressStateAllocated) {
		return nil, newInvalidTransition(FamilyIPv4, req.SubscriberID, req.TenantID, current, domain.AddressStateAllocated)
	}

	meta := map[string]any{}
	var address, ipamID string
	if m.ipam.Configured() {
		alloc, err := m.ipam.AllocateIPv4(ctx, collab.IPv4AllocationRequest{
			SubscriberID:     req.SubscriberID,
			TenantID:         req.TenantID,
			PoolID:           req.PoolID,
			RequestedAddress: req.RequestedAddress,
			Metadata:         req.Metadata,
		})
		if err != nil {
			profile.SetIPv4State(domain.AddressStateFailed)
			if saveErr := repo.Save(profile); saveErr != nil {
				log.ErrorErr(log.CatAddress, "failed to record ipv4 allocation failure", saveErr,
					"subscriber_id", req.SubscriberID)
			}
			return nil, m.allocationError(req.SubscriberID, req.TenantID, current, fmt.Errorf("ipam: %w", err))
		}
		address = alloc.Address
		ipamID = alloc.AllocationID
		meta["source"] = "ipam"
		meta["pool_id"] = alloc.PoolID
	} else {
		if profile.StaticIPv4() == "" {
			return nil, m.allocationError(req.SubscriberID, req.TenantID, current,
				errors.New("no IPAM configured and no static IPv4 address on the profile"))
		}
		address = profile.StaticIPv4()
		meta["source"] = "static"
	}

	profile.SetIPv4Allocated(address, ipamID)
	if err := repo.Save(profile); err != nil {
		return nil, m.allocationError(req.SubscriberID, req.TenantID, current, fmt.Errorf("persist allocation: %w", err))
	}

	log.Info(log.CatAddress, "ipv4 allocated",
		"subscriber_id", req.SubscriberID, "tenant_id", req.TenantID,
		"address", address, "source", meta["source"])
	return ipv4Result(profile, meta), nil
}

// Activate moves an allocated address into service and pushes the
// Framed-IP-Address to the NAS when a CoA client is configured. The CoA push
// is best-effort: its failure lands in the result metadata.
func (m *IPv4Machine) Activate(ctx context.Context, req ActivateIPv4Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &ActivationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: err}}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &ActivationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: fmt.Errorf("load profile: %w", err)}}
	}

	current := profile.IPv4State()
	if current != domain.AddressStateAllocated {
		return nil, newInvalidTransition(FamilyIPv4, req.SubscriberID, req.TenantID, current, domain.AddressStateActive)
	}

	profile.SetIPv4State(domain.AddressStateActive)
	if err := repo.Save(profile); err != nil {
		return nil, &ActivationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateActive, Err: fmt.Errorf("persist activation: %w", err)}}
	}

	meta := map[string]any{}
	m.pushAddress(ctx, profile, req.NASIP, meta)

	log.Info(log.CatAddress, "ipv4 activated",
		"subscriber_id", req.SubscriberID, "address", profile.IPv4Address())
	return ipv4Result(profile, meta), nil
}

// Suspend parks an active address. Optionally kicks the session so the NAS
// re-authenticates the subscriber into its suspended policy.
func (m *IPv4Machine) Suspend(ctx context.Context, req SuspendIPv4Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateSuspended, Err: err}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateSuspended, Err: fmt.Errorf("load profile: %w", err)}
	}

	current := profile.IPv4State()
	if current != domain.AddressStateActive {
		return nil, newInvalidTransition(FamilyIPv4, req.SubscriberID, req.TenantID, current, domain.AddressStateSuspended)
	}

	profile.SetIPv4State(domain.AddressStateSuspended)
	if err := repo.Save(profile); err != nil {
		return nil, &LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateSuspended, Err: fmt.Errorf("persist suspension: %w", err)}
	}

	meta := map[string]any{}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	if req.Disconnect {
		m.disconnect(ctx, profile, req.NASIP, meta)
	}

	log.Info(log.CatAddress, "ipv4 suspended",
		"subscriber_id", req.SubscriberID, "reason", req.Reason)
	return ipv4Result(profile, meta), nil
}

// Reactivate returns a suspended address to service and re-pushes the
// Framed-IP-Address.
func (m *IPv4Machine) Reactivate(ctx context.Context, req ReactivateIPv4Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &ReactivationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: err}}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &ReactivationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateActive, Err: fmt.Errorf("load profile: %w", err)}}
	}

	current := profile.IPv4State()
	if current != domain.AddressStateSuspended {
		return nil, newInvalidTransition(FamilyIPv4, req.SubscriberID, req.TenantID, current, domain.AddressStateActive)
	}

	profile.SetIPv4State(domain.AddressStateActive)
	if err := repo.Save(profile); err != nil {
		return nil, &ReactivationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateActive, Err: fmt.Errorf("persist reactivation: %w", err)}}
	}

	meta := map[string]any{}
	m.pushAddress(ctx, profile, req.NASIP, meta)

	log.Info(log.CatAddress, "ipv4 reactivated", "subscriber_id", req.SubscriberID)
	return ipv4Result(profile, meta), nil
}

// Revoke tears an address down: the profile is staged to revoking and
// flushed, the session is optionally kicked, the reservation is released
// back to IPAM (release failure is logged, not fatal), and the profile lands
// in revoked with the address cleared.
func (m *IPv4Machine) Revoke(ctx context.Context, req RevokeIPv4Request, commit bool) (*Result, error) {
	repo, err := m.repo(req.Profiles, commit)
	if err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateRevoked, Err: err}}
	}
	profile, err := repo.FindBySubscriber(req.TenantID, req.SubscriberID)
	if err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, TargetState: domain.AddressStateRevoked, Err: fmt.Errorf("load profile: %w", err)}}
	}

	current := profile.IPv4State()
	if !ValidateTransition(current, domain.AddressStateRevoking) {
		return nil, newInvalidTransition(FamilyIPv4, req.SubscriberID, req.TenantID, current, domain.AddressStateRevoking)
	}

	releasedAddress := profile.IPv4Address()
	ipamID := profile.IPv4IPAMID()

	// Stage the intent first so a crash mid-revoke is visible.
	profile.SetIPv4State(domain.AddressStateRevoking)
	if err := repo.Save(profile); err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: current, TargetState: domain.AddressStateRevoking, Err: fmt.Errorf("persist revoking: %w", err)}}
	}

	meta := map[string]any{}
	if releasedAddress != "" {
		meta["released_address"] = releasedAddress
	}
	if req.Disconnect {
		m.disconnect(ctx, profile, req.NASIP, meta)
	}

	if ipamID != "" && m.ipam.Configured() {
		if err := m.ipam.ReleaseIPv4(ctx, ipamID); err != nil {
			log.ErrorErr(log.CatAddress, "ipv4 ipam release failed", err,
				"subscriber_id", req.SubscriberID, "ipam_id", ipamID)
			meta["ipam_release_error"] = err.Error()
		}
	}

	profile.SetIPv4State(domain.AddressStateRevoked)
	profile.ClearIPv4()
	if err := repo.Save(profile); err != nil {
		return nil, &RevocationError{LifecycleError{Family: FamilyIPv4, SubscriberID: req.SubscriberID, TenantID: req.TenantID, CurrentState: domain.AddressStateRevoking, TargetState: domain.AddressStateRevoked, Err: fmt.Errorf("persist revocation: %w", err)}}
	}

	log.Info(log.CatAddress, "ipv4 revoked",
		"subscriber_id", req.SubscriberID, "released_address", releasedAddress)
	return ipv4Result(profile, meta), nil
}

// State returns a read-only snapshot of the IPv4 lifecycle for a subscriber.
func (m *IPv4Machine) State(tenantID, subscriberID string) (*Result, error) {
	profile, err := m.profiles.FindBySubscriber(tenantID, subscriberID)
	if err != nil {
		return nil, err
	}
	return ipv4Result(profile, nil), nil
}

func (m *IPv4Machine) pushAddress(ctx context.Context, profile *domain.SubscriberNetworkProfile, nasIP string, meta map[string]any) {
	if !m.coa.Configured() || profile.RadiusUsername() == "" || nasIP == "" {
		return
	}
	if err := m.coa.UpdateIPv4Address(ctx, profile.RadiusUsername(), nasIP, profile.IPv4Address()); err != nil {
		log.Warn(log.CatAddress, "ipv4 coa push failed",
			"subscriber_id", profile.SubscriberID(), "nas_ip", nasIP, "error", err.Error())
		meta["coa_error"] = err.Error()
		return
	}
	meta["coa_pushed"] = true
}

func (m *IPv4Machine) disconnect(ctx context.Context, profile *domain.SubscriberNetworkProfile, nasIP string, meta map[string]any) {
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
