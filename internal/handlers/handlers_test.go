package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/address"
	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/saga"
	"github.com/fiberline/switchyard/internal/saga/definition"
)

// memStore is an in-memory saga.Store for handler tests.
type memStore struct {
	profiles *memProfiles
	services *memServices
	events   *memEvents
}

func newMemStore() *memStore {
	return &memStore{
		profiles: &memProfiles{byKey: map[string]*domain.SubscriberNetworkProfile{}},
		services: &memServices{byInstance: map[string]*domain.ServiceInstance{}},
		events:   &memEvents{},
	}
}

func (s *memStore) Profiles() domain.ProfileRepository { return s.profiles }
func (s *memStore) Services() domain.ServiceRepository { return s.services }
func (s *memStore) Events() domain.EventRepository     { return s.events }

type memProfiles struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*domain.SubscriberNetworkProfile
}

func profileKey(tenantID, subscriberID string) string { return tenantID + "/" + subscriberID }

func (m *memProfiles) Save(p *domain.SubscriberNetworkProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID() == 0 {
		m.nextID++
		p.SetID(m.nextID)
	}
	m.byKey[profileKey(p.TenantID(), p.SubscriberID())] = p
	return nil
}

func (m *memProfiles) FindBySubscriber(tenantID, subscriberID string) (*domain.SubscriberNetworkProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byKey[profileKey(tenantID, subscriberID)]
	if !ok || p.DeletedAt() != nil {
		return nil, &domain.ProfileNotFoundError{SubscriberID: subscriberID, TenantID: tenantID}
	}
	return p, nil
}

func (m *memProfiles) Delete(tenantID, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byKey[profileKey(tenantID, subscriberID)]
	if !ok || p.DeletedAt() != nil {
		return &domain.ProfileNotFoundError{SubscriberID: subscriberID, TenantID: tenantID}
	}
	p.SoftDelete()
	return nil
}

type memServices struct {
	mu         sync.Mutex
	nextID     int64
	byInstance map[string]*domain.ServiceInstance
}

func (m *memServices) Save(instance *domain.ServiceInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance.ID() == 0 {
		m.nextID++
		instance.SetID(m.nextID)
	}
	m.byInstance[instance.ServiceInstanceID()] = instance
	return nil
}

func (m *memServices) FindByInstanceID(instanceID string) (*domain.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance, ok := m.byInstance[instanceID]
	if !ok {
		return nil, &domain.ServiceNotFoundError{ServiceInstanceID: instanceID}
	}
	return instance, nil
}

func (m *memServices) FindByServiceID(tenantID, serviceID string) (*domain.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, instance := range m.byInstance {
		if instance.TenantID() == tenantID && instance.ServiceID() == serviceID {
			return instance, nil
		}
	}
	return nil, &domain.ServiceNotFoundError{ServiceInstanceID: serviceID, TenantID: tenantID}
}

func (m *memServices) ListWithFilter(string, domain.ServiceListFilter) ([]*domain.ServiceInstance, error) {
	return nil, nil
}

func (m *memServices) ListDueForActivation(time.Time, int) ([]*domain.ServiceInstance, error) {
	return nil, nil
}

func (m *memServices) ListDueForTermination(time.Time, int) ([]*domain.ServiceInstance, error) {
	return nil, nil
}

type memEvents struct {
	mu     sync.Mutex
	nextID int64
	events []*domain.LifecycleEvent
}

func (m *memEvents) Save(event *domain.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	event.SetID(m.nextID)
	m.events = append(m.events, event)
	return nil
}

func (m *memEvents) ListByService(string, int) ([]*domain.LifecycleEvent, error) { return nil, nil }

type handlerEnv struct {
	handlers *Handlers
	fakes    *collab.Fakes
	store    *memStore
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	set, fakes := collab.NewFakeSet()
	store := newMemStore()
	ipv4 := address.NewIPv4Machine(store.profiles, set.IPAM, set.CoA)
	ipv6 := address.NewIPv6Machine(store.profiles, set.IPAM, set.CoA)
	return &handlerEnv{handlers: New(set, ipv4, ipv6), fakes: fakes, store: store}
}

func provisionContext() *saga.Context {
	return &saga.Context{TenantID: "tenant-1", SubscriberID: "sub-1", CustomerID: "cust-1", PlanID: "fiber-1000"}
}

// Every handler name the built-in definitions reference must resolve.
func TestRegister_CoversBuiltinDefinitions(t *testing.T) {
	env := newHandlerEnv(t)
	registry := saga.NewRegistry()
	require.NoError(t, env.handlers.Register(registry))

	defs, err := definition.LoadBuiltins()
	require.NoError(t, err)
	require.NotEmpty(t, defs)
	for _, def := range defs {
		for _, step := range def.Steps {
			_, ok := registry.Forward(step.Handler)
			require.True(t, ok, "definition %s step %s: forward handler %q unregistered", def.Name, step.Name, step.Handler)
			if step.CompensationHandler != "" {
				_, ok := registry.Compensation(step.CompensationHandler)
				require.True(t, ok, "definition %s step %s: compensation handler %q unregistered", def.Name, step.Name, step.CompensationHandler)
			}
		}
	}
}

func TestCreateCustomer_MintsAndPassesThrough(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()

	wfctx := &saga.Context{TenantID: "tenant-1"}
	res, err := env.handlers.createCustomer(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.NotEmpty(t, res.Updates.CustomerID)
	require.Equal(t, true, res.OutputData["created"])

	// A caller-supplied id is passed through untouched.
	res, err = env.handlers.createCustomer(ctx, nil, provisionContext(), env.store)
	require.NoError(t, err)
	require.Equal(t, "cust-1", res.Updates.CustomerID)
	require.Equal(t, false, res.OutputData["created"])
}

func TestCreateNetworkProfile_DerivesUsernameAndIsIdempotent(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	wfctx := provisionContext()

	res, err := env.handlers.createNetworkProfile(ctx, map[string]any{"service_vlan": 120}, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, "sub-1@tenant-1", res.Updates.RadiusUsername)

	profile, err := env.store.profiles.FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, 120, profile.ServiceVLAN())
	require.Equal(t, domain.IPv6AssignmentPrefixDelegation, profile.IPv6AssignmentMode())

	// Re-running the step reuses the existing row.
	res, err = env.handlers.createNetworkProfile(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, true, res.OutputData["existed"])
}

func TestCreateNetworkProfile_RejectsUnknownMode(t *testing.T) {
	env := newHandlerEnv(t)
	_, err := env.handlers.createNetworkProfile(context.Background(),
		map[string]any{"ipv6_mode": "carrier-pigeon"}, provisionContext(), env.store)
	require.Error(t, err)
	require.True(t, saga.IsPermanent(err))
}

func TestAllocateDualStack_AndCompensationRestoresIPAM(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	wfctx := provisionContext()

	_, err := env.handlers.createNetworkProfile(ctx, nil, wfctx, env.store)
	require.NoError(t, err)

	res, err := env.handlers.allocateDualStack(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.NotEmpty(t, res.Updates.IPv4Address)
	require.NotEmpty(t, res.Updates.IPv6Prefix)
	require.Equal(t, 2, env.fakes.IPAM.LiveAllocationCount())

	require.NoError(t, env.handlers.compReleaseDualStack(ctx, res.OutputData, res.CompensationData, env.store))
	require.Zero(t, env.fakes.IPAM.LiveAllocationCount())

	// Compensating again is a no-op: both families are already clean.
	require.NoError(t, env.handlers.compReleaseDualStack(ctx, res.OutputData, res.CompensationData, env.store))
}

func TestAllocateDualStack_SkipsIPv6WithoutPrefixDelegation(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	wfctx := provisionContext()

	_, err := env.handlers.createNetworkProfile(ctx, map[string]any{"ipv6_mode": "none"}, wfctx, env.store)
	require.NoError(t, err)

	res, err := env.handlers.allocateDualStack(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.NotEmpty(t, res.Updates.IPv4Address)
	require.Empty(t, res.Updates.IPv6Prefix)
	require.Equal(t, "none", res.OutputData["ipv6_skipped"])
	require.Equal(t, 1, env.fakes.IPAM.LiveAllocationCount())
}

func TestRadiusAccountLifecycle(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	wfctx := provisionContext()
	wfctx.RadiusUsername = "sub-1@isp"

	res, err := env.handlers.createRadiusAccount(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.Contains(t, env.fakes.Radius.Accounts, "sub-1@isp")

	_, err = env.handlers.disableRadius(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.False(t, env.fakes.Radius.Accounts["sub-1@isp"])

	_, err = env.handlers.enableRadius(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.True(t, env.fakes.Radius.Accounts["sub-1@isp"])

	require.NoError(t, env.handlers.compDeleteRadiusAccount(ctx, res.OutputData, res.CompensationData, env.store))
	require.NotContains(t, env.fakes.Radius.Accounts, "sub-1@isp")
}

func TestBillingLifecycle(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	wfctx := provisionContext()

	res, err := env.handlers.createBillingService(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	subscriptionID := res.Updates.ExternalIDs[systemBilling]
	require.NotEmpty(t, subscriptionID)
	require.Equal(t, "active", env.fakes.Billing.Subscriptions[subscriptionID])

	wfctx.Apply(res.Updates)
	_, err = env.handlers.suspendBilling(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, "suspended", env.fakes.Billing.Subscriptions[subscriptionID])

	_, err = env.handlers.activateBilling(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, "active", env.fakes.Billing.Subscriptions[subscriptionID])

	require.NoError(t, env.handlers.compCancelBillingService(ctx, res.OutputData, res.CompensationData, env.store))
	require.Equal(t, "terminated", env.fakes.Billing.Subscriptions[subscriptionID])
}

func TestONUHandlers_RecordDeviceID(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	wfctx := provisionContext()

	res, err := env.handlers.activateONU(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.NotEmpty(t, res.Updates.ExternalIDs[systemAccessNode])

	require.NoError(t, env.handlers.compDeactivateONU(ctx, res.OutputData, res.CompensationData, env.store))
	require.Equal(t, 1, env.fakes.AccessNode.CallCount("DisableSubscriber"))
}

func TestCPEHandlers_UseTheRecordedDevice(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	wfctx := provisionContext()

	res, err := env.handlers.configureCPE(ctx, map[string]any{
		"cpe_device_id":  "cpe-9",
		"cpe_parameters": map[string]any{"wifi.ssid": "fiberline"},
	}, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, "cpe-9", res.Updates.ExternalIDs[systemCPE])
	require.Equal(t, 1, env.fakes.CPE.CallCount("SetParameter"))

	wfctx.Apply(res.Updates)
	_, err = env.handlers.disableCPE(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, 1, env.fakes.CPE.CallCount("EnqueueTask"))
}

func TestSkippedWhenCollaboratorNotConfigured(t *testing.T) {
	store := newMemStore()
	set := collab.NewNullSet()
	h := New(set, address.NewIPv4Machine(store.profiles, nil, nil), address.NewIPv6Machine(store.profiles, nil, nil))

	res, err := h.createRadiusAccount(context.Background(), nil, provisionContext(), store)
	require.NoError(t, err)
	require.Equal(t, true, res.OutputData["skipped"])

	res, err = h.createBillingService(context.Background(), nil, provisionContext(), store)
	require.NoError(t, err)
	require.Equal(t, true, res.OutputData["skipped"])
}

func TestServiceStatusHandlers(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()

	instance := domain.NewServiceInstance("svc-inst-1", "svc-1", "tenant-1")
	instance.StartProvisioning()
	require.NoError(t, env.store.services.Save(instance))

	wfctx := provisionContext()
	wfctx.ServiceInstanceID = "svc-inst-1"

	res, err := env.handlers.setStatusActive(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, "active", res.OutputData["status"])

	// Activating an already-active instance is a no-op.
	res, err = env.handlers.setStatusActive(ctx, nil, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, true, res.OutputData["unchanged"])

	res, err = env.handlers.setStatusSuspended(ctx, map[string]any{
		"suspension_type": "non_payment",
		"reason":          "invoice 42 overdue",
	}, wfctx, env.store)
	require.NoError(t, err)
	require.Equal(t, "suspended_non_payment", res.OutputData["status"])
	require.Equal(t, domain.SuspensionTypeNonPayment, instance.SuspensionType())
}

func TestVerifyService_MissingInstanceIsPermanent(t *testing.T) {
	env := newHandlerEnv(t)
	wfctx := provisionContext()
	wfctx.ServiceInstanceID = "svc-missing"

	_, err := env.handlers.verifyService(context.Background(), nil, wfctx, env.store)
	require.Error(t, err)
	require.True(t, saga.IsPermanent(err))
}
