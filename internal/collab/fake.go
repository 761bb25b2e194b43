package collab

import (
	"context"
	"fmt"
	"sync"
)

// Call is one entry in a fake's ledger.
type Call struct {
	Op   string
	Args map[string]any
}

// ledger is the shared bookkeeping embedded in every fake: a call log and
// per-operation injected errors.
type ledger struct {
	mu     sync.Mutex
	calls  []Call
	errors map[string]error
}

func (l *ledger) record(op string, args map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, Call{Op: op, Args: args})
}

func (l *ledger) injected(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors[op]
}

// Calls returns a copy of the recorded call log.
func (l *ledger) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// CallCount returns how many times op was invoked.
func (l *ledger) CallCount(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// SetError makes every subsequent invocation of op fail with err.
// Passing nil clears the injection.
func (l *ledger) SetError(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.errors == nil {
		l.errors = make(map[string]error)
	}
	if err == nil {
		delete(l.errors, op)
		return
	}
	l.errors[op] = err
}

// FakeIPAM is an in-memory IPAM with sequential allocation ids.
type FakeIPAM struct {
	ledger
	mu     sync.Mutex
	nextID int
	// Live allocations keyed by allocation id.
	IPv4Allocations map[string]*IPv4Allocation
	IPv6Allocations map[string]*IPv6PrefixAllocation
}

// NewFakeIPAM creates an empty in-memory IPAM.
func NewFakeIPAM() *FakeIPAM {
	return &FakeIPAM{
		IPv4Allocations: make(map[string]*IPv4Allocation),
		IPv6Allocations: make(map[string]*IPv6PrefixAllocation),
	}
}

var _ IPAMClient = (*FakeIPAM)(nil)

func (f *FakeIPAM) Configured() bool { return true }

func (f *FakeIPAM) AllocateIPv4(_ context.Context, req IPv4AllocationRequest) (*IPv4Allocation, error) {
	f.record("AllocateIPv4", map[string]any{"subscriber_id": req.SubscriberID, "pool_id": req.PoolID})
	if err := f.injected("AllocateIPv4"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	alloc := &IPv4Allocation{
		AllocationID: fmt.Sprintf("ipam-v4-%d", f.nextID),
		Address:      req.RequestedAddress,
		PoolID:       req.PoolID,
	}
	if alloc.Address == "" {
		alloc.Address = fmt.Sprintf("100.64.%d.%d", f.nextID/250, f.nextID%250+1)
	}
	f.IPv4Allocations[alloc.AllocationID] = alloc
	return alloc, nil
}

func (f *FakeIPAM) ReleaseIPv4(_ context.Context, allocationID string) error {
	f.record("ReleaseIPv4", map[string]any{"allocation_id": allocationID})
	if err := f.injected("ReleaseIPv4"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.IPv4Allocations[allocationID]; !ok {
		return fmt.Errorf("ipam: unknown ipv4 allocation %q", allocationID)
	}
	delete(f.IPv4Allocations, allocationID)
	return nil
}

func (f *FakeIPAM) AllocateIPv6Prefix(_ context.Context, req IPv6PrefixRequest) (*IPv6PrefixAllocation, error) {
	f.record("AllocateIPv6Prefix", map[string]any{"subscriber_id": req.SubscriberID, "prefix_length": req.PrefixLength})
	if err := f.injected("AllocateIPv6Prefix"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	alloc := &IPv6PrefixAllocation{
		AllocationID: fmt.Sprintf("ipam-v6-%d", f.nextID),
		Prefix:       fmt.Sprintf("2001:db8:%x::", f.nextID),
		PrefixLength: req.PrefixLength,
		PoolID:       req.PoolID,
	}
	f.IPv6Allocations[alloc.AllocationID] = alloc
	return alloc, nil
}

func (f *FakeIPAM) ReleaseIPv6Prefix(_ context.Context, allocationID string) error {
	f.record("ReleaseIPv6Prefix", map[string]any{"allocation_id": allocationID})
	if err := f.injected("ReleaseIPv6Prefix"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.IPv6Allocations[allocationID]; !ok {
		return fmt.Errorf("ipam: unknown ipv6 allocation %q", allocationID)
	}
	delete(f.IPv6Allocations, allocationID)
	return nil
}

// LiveAllocationCount returns how many allocations remain unreleased.
func (f *FakeIPAM) LiveAllocationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.IPv4Allocations) + len(f.IPv6Allocations)
}

// FakeCoA records CoA/DM pushes without a RADIUS server.
type FakeCoA struct {
	ledger
}

// NewFakeCoA creates an empty CoA recorder.
func NewFakeCoA() *FakeCoA { return &FakeCoA{} }

var _ CoAClient = (*FakeCoA)(nil)

func (f *FakeCoA) Configured() bool { return true }

func (f *FakeCoA) UpdateIPv4Address(_ context.Context, username, nasIP, address string) error {
	f.record("UpdateIPv4Address", map[string]any{"username": username, "nas_ip": nasIP, "address": address})
	return f.injected("UpdateIPv4Address")
}

func (f *FakeCoA) UpdateIPv6Prefix(_ context.Context, username, nasIP, prefix string) error {
	f.record("UpdateIPv6Prefix", map[string]any{"username": username, "nas_ip": nasIP, "prefix": prefix})
	return f.injected("UpdateIPv6Prefix")
}

func (f *FakeCoA) DisconnectSession(_ context.Context, username, nasIP string) error {
	f.record("DisconnectSession", map[string]any{"username": username, "nas_ip": nasIP})
	return f.injected("DisconnectSession")
}

// FakeRadius is an in-memory RADIUS account store.
type FakeRadius struct {
	ledger
	mu sync.Mutex
	// Accounts maps username to enabled state.
	Accounts map[string]bool
}

// NewFakeRadius creates an empty account store.
func NewFakeRadius() *FakeRadius {
	return &FakeRadius{Accounts: make(map[string]bool)}
}

var _ RadiusStore = (*FakeRadius)(nil)

func (f *FakeRadius) Configured() bool { return true }

func (f *FakeRadius) CreateAccount(_ context.Context, req RadiusAccountRequest) error {
	f.record("CreateAccount", map[string]any{"username": req.Username, "subscriber_id": req.SubscriberID})
	if err := f.injected("CreateAccount"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.Accounts[req.Username]; exists {
		return fmt.Errorf("radius: account %q already exists", req.Username)
	}
	f.Accounts[req.Username] = true
	return nil
}

func (f *FakeRadius) DeleteAccount(_ context.Context, username string) error {
	f.record("DeleteAccount", map[string]any{"username": username})
	if err := f.injected("DeleteAccount"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Accounts, username)
	return nil
}

func (f *FakeRadius) EnableAccount(_ context.Context, username string) error {
	f.record("EnableAccount", map[string]any{"username": username})
	if err := f.injected("EnableAccount"); err != nil {
		return err
	}
	return f.setEnabled(username, true)
}

func (f *FakeRadius) DisableAccount(_ context.Context, username string) error {
	f.record("DisableAccount", map[string]any{"username": username})
	if err := f.injected("DisableAccount"); err != nil {
		return err
	}
	return f.setEnabled(username, false)
}

func (f *FakeRadius) setEnabled(username string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Accounts[username]; !ok {
		return fmt.Errorf("radius: unknown account %q", username)
	}
	f.Accounts[username] = enabled
	return nil
}

// FakeAccessNode is an in-memory access-node controller.
type FakeAccessNode struct {
	ledger
	mu sync.Mutex
	// Subscribers maps subscriber id to enabled state.
	Subscribers map[string]bool
}

// NewFakeAccessNode creates an empty controller.
func NewFakeAccessNode() *FakeAccessNode {
	return &FakeAccessNode{Subscribers: make(map[string]bool)}
}

var _ AccessNodeManager = (*FakeAccessNode)(nil)

func (f *FakeAccessNode) Configured() bool { return true }

func (f *FakeAccessNode) EnableSubscriber(_ context.Context, subscriberID string) (*AccessNodeResult, error) {
	f.record("EnableSubscriber", map[string]any{"subscriber_id": subscriberID})
	if err := f.injected("EnableSubscriber"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscribers[subscriberID] = true
	return &AccessNodeResult{DeviceID: "onu-" + subscriberID, Status: "enabled"}, nil
}

func (f *FakeAccessNode) DisableSubscriber(_ context.Context, subscriberID string) (*AccessNodeResult, error) {
	f.record("DisableSubscriber", map[string]any{"subscriber_id": subscriberID})
	if err := f.injected("DisableSubscriber"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscribers[subscriberID] = false
	return &AccessNodeResult{DeviceID: "onu-" + subscriberID, Status: "disabled"}, nil
}

func (f *FakeAccessNode) ConfigureSubscriber(_ context.Context, subscriberID string, params map[string]string) (*AccessNodeResult, error) {
	f.record("ConfigureSubscriber", map[string]any{"subscriber_id": subscriberID, "params": params})
	if err := f.injected("ConfigureSubscriber"); err != nil {
		return nil, err
	}
	return &AccessNodeResult{DeviceID: "onu-" + subscriberID, Status: "configured"}, nil
}

func (f *FakeAccessNode) RebootDevice(_ context.Context, deviceID string) error {
	f.record("RebootDevice", map[string]any{"device_id": deviceID})
	return f.injected("RebootDevice")
}

// FakeCPE is an in-memory CPE manager.
type FakeCPE struct {
	ledger
	mu sync.Mutex
	// Parameters maps deviceID -> parameter name -> value.
	Parameters map[string]map[string]string
	nextTask   int
}

// NewFakeCPE creates an empty CPE manager.
func NewFakeCPE() *FakeCPE {
	return &FakeCPE{Parameters: make(map[string]map[string]string)}
}

var _ CPEManager = (*FakeCPE)(nil)

func (f *FakeCPE) Configured() bool { return true }

func (f *FakeCPE) SetParameter(_ context.Context, deviceID, name, value string) error {
	f.record("SetParameter", map[string]any{"device_id": deviceID, "name": name, "value": value})
	if err := f.injected("SetParameter"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Parameters[deviceID] == nil {
		f.Parameters[deviceID] = make(map[string]string)
	}
	f.Parameters[deviceID][name] = value
	return nil
}

func (f *FakeCPE) GetParameter(_ context.Context, deviceID, name string) (string, error) {
	f.record("GetParameter", map[string]any{"device_id": deviceID, "name": name})
	if err := f.injected("GetParameter"); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.Parameters[deviceID][name]
	if !ok {
		return "", fmt.Errorf("cpe: device %q has no parameter %q", deviceID, name)
	}
	return value, nil
}

func (f *FakeCPE) Reboot(_ context.Context, deviceID string) error {
	f.record("Reboot", map[string]any{"device_id": deviceID})
	return f.injected("Reboot")
}

func (f *FakeCPE) Refresh(_ context.Context, deviceID string) error {
	f.record("Refresh", map[string]any{"device_id": deviceID})
	return f.injected("Refresh")
}

func (f *FakeCPE) EnqueueTask(_ context.Context, deviceID, task string) (string, error) {
	f.record("EnqueueTask", map[string]any{"device_id": deviceID, "task": task})
	if err := f.injected("EnqueueTask"); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTask++
	return fmt.Sprintf("task-%d", f.nextTask), nil
}

// FakeBilling is an in-memory billing system.
type FakeBilling struct {
	ledger
	mu     sync.Mutex
	nextID int
	// Subscriptions maps external id to state (active/suspended/terminated).
	Subscriptions map[string]string
}

// NewFakeBilling creates an empty billing system.
func NewFakeBilling() *FakeBilling {
	return &FakeBilling{Subscriptions: make(map[string]string)}
}

var _ BillingClient = (*FakeBilling)(nil)

func (f *FakeBilling) Configured() bool { return true }

func (f *FakeBilling) CreateSubscription(_ context.Context, req BillingSubscriptionRequest) (string, error) {
	f.record("CreateSubscription", map[string]any{"customer_id": req.CustomerID, "plan_id": req.PlanID})
	if err := f.injected("CreateSubscription"); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	externalID := fmt.Sprintf("bill-%d", f.nextID)
	f.Subscriptions[externalID] = "active"
	return externalID, nil
}

func (f *FakeBilling) SuspendSubscription(_ context.Context, externalID string) error {
	f.record("SuspendSubscription", map[string]any{"external_id": externalID})
	if err := f.injected("SuspendSubscription"); err != nil {
		return err
	}
	return f.setState(externalID, "suspended")
}

func (f *FakeBilling) ResumeSubscription(_ context.Context, externalID string) error {
	f.record("ResumeSubscription", map[string]any{"external_id": externalID})
	if err := f.injected("ResumeSubscription"); err != nil {
		return err
	}
	return f.setState(externalID, "active")
}

func (f *FakeBilling) TerminateSubscription(_ context.Context, externalID string) error {
	f.record("TerminateSubscription", map[string]any{"external_id": externalID})
	if err := f.injected("TerminateSubscription"); err != nil {
		return err
	}
	return f.setState(externalID, "terminated")
}

func (f *FakeBilling) setState(externalID, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Subscriptions[externalID]; !ok {
		return fmt.Errorf("billing: unknown subscription %q", externalID)
	}
	f.Subscriptions[externalID] = state
	return nil
}

// FakeHealth is a health monitor returning a configurable verdict.
type FakeHealth struct {
	ledger
	mu sync.Mutex
	// Results maps service instance id to a canned result. Missing entries
	// report healthy.
	Results map[string]*HealthResult
}

// NewFakeHealth creates a monitor that reports everything healthy.
func NewFakeHealth() *FakeHealth {
	return &FakeHealth{Results: make(map[string]*HealthResult)}
}

var _ HealthMonitor = (*FakeHealth)(nil)

func (f *FakeHealth) Configured() bool { return true }

func (f *FakeHealth) CheckService(_ context.Context, serviceInstanceID string) (*HealthResult, error) {
	f.record("CheckService", map[string]any{"service_instance_id": serviceInstanceID})
	if err := f.injected("CheckService"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if result, ok := f.Results[serviceInstanceID]; ok {
		return result, nil
	}
	return &HealthResult{Healthy: true, Detail: "ok"}, nil
}

// NewFakeSet bundles fresh fakes for every collaborator.
func NewFakeSet() (*Set, *Fakes) {
	fakes := &Fakes{
		IPAM:       NewFakeIPAM(),
		CoA:        NewFakeCoA(),
		Radius:     NewFakeRadius(),
		AccessNode: NewFakeAccessNode(),
		CPE:        NewFakeCPE(),
		Billing:    NewFakeBilling(),
		Health:     NewFakeHealth(),
	}
	set := &Set{
		IPAM:       fakes.IPAM,
		CoA:        fakes.CoA,
		Radius:     fakes.Radius,
		AccessNode: fakes.AccessNode,
		CPE:        fakes.CPE,
		Billing:    fakes.Billing,
		Health:     fakes.Health,
	}
	return set, fakes
}

// Fakes gives tests and the playground typed access to the fake ledgers.
type Fakes struct {
	IPAM       *FakeIPAM
	CoA        *FakeCoA
	Radius     *FakeRadius
	AccessNode *FakeAccessNode
	CPE        *FakeCPE
	Billing    *FakeBilling
	Health     *FakeHealth
}
