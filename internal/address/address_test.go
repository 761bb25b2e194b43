package address

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
)

// memProfiles is an in-memory ProfileRepository for machine tests.
type memProfiles struct {
	profiles map[string]*domain.SubscriberNetworkProfile
	nextID   int64
	saveErr  error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: map[string]*domain.SubscriberNetworkProfile{}}
}

func (r *memProfiles) key(tenantID, subscriberID string) string { return tenantID + "/" + subscriberID }

func (r *memProfiles) Save(p *domain.SubscriberNetworkProfile) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if p.ID() == 0 {
		r.nextID++
		p.SetID(r.nextID)
	}
	r.profiles[r.key(p.TenantID(), p.SubscriberID())] = p
	return nil
}

func (r *memProfiles) FindBySubscriber(tenantID, subscriberID string) (*domain.SubscriberNetworkProfile, error) {
	p, ok := r.profiles[r.key(tenantID, subscriberID)]
	if !ok || p.DeletedAt() != nil {
		return nil, &domain.ProfileNotFoundError{SubscriberID: subscriberID, TenantID: tenantID}
	}
	return p, nil
}

func (r *memProfiles) Delete(tenantID, subscriberID string) error {
	p, err := r.FindBySubscriber(tenantID, subscriberID)
	if err != nil {
		return err
	}
	p.SoftDelete()
	return nil
}

func seedProfile(t *testing.T, repo *memProfiles, mutate func(*domain.SubscriberNetworkProfile)) *domain.SubscriberNetworkProfile {
	t.Helper()
	profile := domain.NewSubscriberNetworkProfile("sub-1", "tenant-1")
	profile.SetRadiusUsername("sub-1@isp")
	if mutate != nil {
		mutate(profile)
	}
	require.NoError(t, repo.Save(profile))
	return profile
}

func TestIPv4Machine_AllocateFromIPAM(t *testing.T) {
	repo := newMemProfiles()
	ipam := collab.NewFakeIPAM()
	seedProfile(t, repo, nil)

	machine := NewIPv4Machine(repo, ipam, nil)
	result, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1", PoolID: "pool-a",
	}, true)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, domain.AddressStateAllocated, result.State)
	require.NotEmpty(t, result.Address)
	require.NotNil(t, result.AllocatedAt)
	require.Equal(t, "ipam", result.Metadata["source"])
	require.Equal(t, 1, ipam.CallCount("AllocateIPv4"))

	profile, err := repo.FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, result.Address, profile.IPv4Address())
	require.NotEmpty(t, profile.IPv4IPAMID())
}

func TestIPv4Machine_AllocateStaticFallback(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, func(p *domain.SubscriberNetworkProfile) {
		p.SetStaticAddresses("203.0.113.10", "")
	})

	machine := NewIPv4Machine(repo, nil, nil)
	result, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, true)
	require.NoError(t, err)
	require.Equal(t, "203.0.113.10", result.Address)
	require.Equal(t, "static", result.Metadata["source"])
}

func TestIPv4Machine_AllocateWithoutIPAMOrStatic(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, nil)

	machine := NewIPv4Machine(repo, nil, nil)
	_, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, true)

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	require.Equal(t, FamilyIPv4, allocErr.Family)

	// The concrete error also matches the lifecycle supertype.
	var lifecycleErr *LifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
	require.Equal(t, "sub-1", lifecycleErr.SubscriberID)
}

func TestIPv4Machine_AllocateFromIllegalState(t *testing.T) {
	repo := newMemProfiles()
	profile := seedProfile(t, repo, nil)
	profile.SetIPv4Allocated("100.64.0.1", "ipam-1")
	profile.SetIPv4State(domain.AddressStateActive)
	require.NoError(t, repo.Save(profile))

	machine := NewIPv4Machine(repo, collab.NewFakeIPAM(), nil)
	_, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, true)

	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	require.Equal(t, domain.AddressStateActive, transErr.CurrentState)
	require.Equal(t, domain.AddressStateAllocated, transErr.TargetState)

	// No mutation happened.
	require.Equal(t, "100.64.0.1", profile.IPv4Address())
	require.Equal(t, domain.AddressStateActive, profile.IPv4State())
}

func TestIPv4Machine_AllocateIPAMFailureRecordsFailedState(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, nil)
	ipam := collab.NewFakeIPAM()
	boom := errors.New("ipam down")
	ipam.SetError("AllocateIPv4", boom)

	machine := NewIPv4Machine(repo, ipam, nil)
	_, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, true)

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	require.ErrorIs(t, err, boom)

	profile, findErr := repo.FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, findErr)
	require.Equal(t, domain.AddressStateFailed, profile.IPv4State())

	// failed -> allocated is legal, so a later attempt can succeed.
	ipam.SetError("AllocateIPv4", nil)
	result, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateAllocated, result.State)
}

func TestIPv4Machine_FullLifecycle(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, nil)
	ipam := collab.NewFakeIPAM()
	coa := collab.NewFakeCoA()
	machine := NewIPv4Machine(repo, ipam, coa)
	ctx := context.Background()

	_, err := machine.Allocate(ctx, AllocateIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err)

	result, err := machine.Activate(ctx, ActivateIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1", NASIP: "10.0.0.1"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateActive, result.State)
	require.Equal(t, true, result.Metadata["coa_pushed"])
	require.Equal(t, 1, coa.CallCount("UpdateIPv4Address"))

	result, err = machine.Suspend(ctx, SuspendIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1", NASIP: "10.0.0.1", Disconnect: true, Reason: "non_payment"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateSuspended, result.State)
	require.Equal(t, true, result.Metadata["disconnected"])
	require.NotNil(t, result.SuspendedAt)

	result, err = machine.Reactivate(ctx, ReactivateIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1", NASIP: "10.0.0.1"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateActive, result.State)
	require.Equal(t, 2, coa.CallCount("UpdateIPv4Address"))

	result, err = machine.Revoke(ctx, RevokeIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1", NASIP: "10.0.0.1", Disconnect: true}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateRevoked, result.State)
	require.Empty(t, result.Address)
	require.NotEmpty(t, result.Metadata["released_address"])
	require.Zero(t, ipam.LiveAllocationCount(), "the reservation went back to the pool")

	state, err := machine.State("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateRevoked, state.State)
	require.NotNil(t, state.RevokedAt)
}

func TestIPv4Machine_ActivateCoAFailureIsNonFatal(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, nil)
	coa := collab.NewFakeCoA()
	coa.SetError("UpdateIPv4Address", errors.New("nas unreachable"))
	machine := NewIPv4Machine(repo, collab.NewFakeIPAM(), coa)
	ctx := context.Background()

	_, err := machine.Allocate(ctx, AllocateIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err)

	result, err := machine.Activate(ctx, ActivateIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1", NASIP: "10.0.0.1"}, true)
	require.NoError(t, err, "a failed CoA push never fails the activation")
	require.True(t, result.Success)
	require.Equal(t, domain.AddressStateActive, result.State)
	require.Contains(t, result.Metadata["coa_error"], "nas unreachable")
}

func TestIPv4Machine_RevokeReleaseFailureIsNonFatal(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, nil)
	ipam := collab.NewFakeIPAM()
	machine := NewIPv4Machine(repo, ipam, nil)
	ctx := context.Background()

	_, err := machine.Allocate(ctx, AllocateIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err)
	ipam.SetError("ReleaseIPv4", errors.New("ipam down"))

	result, err := machine.Revoke(ctx, RevokeIPv4Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err, "a failed IPAM release never fails the revocation")
	require.Equal(t, domain.AddressStateRevoked, result.State)
	require.Contains(t, result.Metadata["ipam_release_error"], "ipam down")

	profile, err := repo.FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Empty(t, profile.IPv4Address())
	require.Empty(t, profile.IPv4IPAMID())
}

func TestIPv4Machine_CommitFalseRequiresRepository(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, nil)
	machine := NewIPv4Machine(repo, collab.NewFakeIPAM(), nil)

	_, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, false)
	require.Error(t, err)

	// With an explicit repository the deferred-commit path works; here the
	// "transaction" is just the same repository handed in explicitly.
	result, err := machine.Allocate(context.Background(), AllocateIPv4Request{
		SubscriberID: "sub-1", TenantID: "tenant-1", Profiles: repo,
	}, false)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateAllocated, result.State)
}

func TestIPv6Machine_ModeGate(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, nil) // mode defaults to none

	machine := NewIPv6Machine(repo, collab.NewFakeIPAM(), nil)
	_, err := machine.Allocate(context.Background(), AllocateIPv6Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, true)

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	require.Equal(t, FamilyIPv6, allocErr.Family)
	require.Contains(t, err.Error(), "prefix delegation")
}

func TestIPv6Machine_DefaultPrefixLength(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, func(p *domain.SubscriberNetworkProfile) {
		p.SetIPv6AssignmentMode(domain.IPv6AssignmentPrefixDelegation)
	})

	machine := NewIPv6Machine(repo, collab.NewFakeIPAM(), nil)
	result, err := machine.Allocate(context.Background(), AllocateIPv6Request{
		SubscriberID: "sub-1", TenantID: "tenant-1",
	}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateAllocated, result.State)

	profile, err := repo.FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, DefaultPrefixLength, profile.PrefixLength())
}

func TestIPv6Machine_PrefixLengthBounds(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, func(p *domain.SubscriberNetworkProfile) {
		p.SetIPv6AssignmentMode(domain.IPv6AssignmentDualStack)
	})
	machine := NewIPv6Machine(repo, collab.NewFakeIPAM(), nil)

	for _, length := range []int{40, 47, 65, 128} {
		_, err := machine.Allocate(context.Background(), AllocateIPv6Request{
			SubscriberID: "sub-1", TenantID: "tenant-1", PrefixLength: length,
		}, true)
		var allocErr *AllocationError
		require.ErrorAs(t, err, &allocErr, "length /%d must be rejected", length)
	}

	result, err := machine.Allocate(context.Background(), AllocateIPv6Request{
		SubscriberID: "sub-1", TenantID: "tenant-1", PrefixLength: 48,
	}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateAllocated, result.State)
}

func TestIPv6Machine_IdempotentRevoke(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, func(p *domain.SubscriberNetworkProfile) {
		p.SetIPv6AssignmentMode(domain.IPv6AssignmentPrefixDelegation)
	})
	ipam := collab.NewFakeIPAM()
	machine := NewIPv6Machine(repo, ipam, nil)
	ctx := context.Background()

	_, err := machine.Allocate(ctx, AllocateIPv6Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err)

	result, err := machine.Revoke(ctx, RevokeIPv6Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateRevoked, result.State)
	require.Equal(t, 1, ipam.CallCount("ReleaseIPv6Prefix"))

	// A second revoke is a successful no-op.
	result, err = machine.Revoke(ctx, RevokeIPv6Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, domain.AddressStateRevoked, result.State)
	require.Equal(t, true, result.Metadata["already_revoked"])
	require.Equal(t, 1, ipam.CallCount("ReleaseIPv6Prefix"), "no second release reaches IPAM")
}

func TestIPv6Machine_Lifecycle(t *testing.T) {
	repo := newMemProfiles()
	seedProfile(t, repo, func(p *domain.SubscriberNetworkProfile) {
		p.SetIPv6AssignmentMode(domain.IPv6AssignmentDualStack)
	})
	coa := collab.NewFakeCoA()
	machine := NewIPv6Machine(repo, collab.NewFakeIPAM(), coa)
	ctx := context.Background()

	_, err := machine.Allocate(ctx, AllocateIPv6Request{SubscriberID: "sub-1", TenantID: "tenant-1"}, true)
	require.NoError(t, err)

	result, err := machine.Activate(ctx, ActivateIPv6Request{SubscriberID: "sub-1", TenantID: "tenant-1", NASIP: "10.0.0.1"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateActive, result.State)
	require.Equal(t, 1, coa.CallCount("UpdateIPv6Prefix"))

	result, err = machine.Suspend(ctx, SuspendIPv6Request{SubscriberID: "sub-1", TenantID: "tenant-1", Reason: "fraud"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateSuspended, result.State)

	result, err = machine.Reactivate(ctx, ReactivateIPv6Request{SubscriberID: "sub-1", TenantID: "tenant-1", NASIP: "10.0.0.1"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateActive, result.State)
}

func allAddressStates() []domain.AddressState {
	return []domain.AddressState{
		domain.AddressStatePending,
		domain.AddressStateAllocated,
		domain.AddressStateActive,
		domain.AddressStateSuspended,
		domain.AddressStateRevoking,
		domain.AddressStateRevoked,
		domain.AddressStateFailed,
	}
}

func TestValidateTransition_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		current := rapid.SampledFrom(allAddressStates()).Draw(rt, "current")
		target := rapid.SampledFrom(allAddressStates()).Draw(rt, "target")

		permitted := ValidateTransition(current, target)

		// Self transitions are never permitted.
		if current == target && permitted {
			rt.Fatalf("self transition %s -> %s must not be permitted", current, target)
		}
		// Terminal states have no outgoing edges.
		if current.IsTerminal() && permitted {
			rt.Fatalf("terminal state %s must not transition to %s", current, target)
		}
		// ValidTargets and CanTransitionTo agree.
		inTargets := false
		for _, valid := range current.ValidTargets() {
			if valid == target {
				inTargets = true
			}
		}
		if permitted != inTargets {
			rt.Fatalf("CanTransitionTo(%s, %s)=%v disagrees with ValidTargets", current, target, permitted)
		}
		// Every non-terminal, non-pending state can reach failed or revoked
		// eventually; at minimum it has at least one outgoing edge.
		if !current.IsTerminal() && len(current.ValidTargets()) == 0 {
			rt.Fatalf("non-terminal state %s has no outgoing transitions", current)
		}
	})
}
