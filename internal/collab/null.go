package collab

import "context"

// NullIPAM is the "no IPAM configured" implementation. Allocation callers
// fall back to static addressing when Configured() is false.
type NullIPAM struct{}

func (NullIPAM) Configured() bool { return false }

func (NullIPAM) AllocateIPv4(context.Context, IPv4AllocationRequest) (*IPv4Allocation, error) {
	return nil, ErrNotConfigured
}

func (NullIPAM) ReleaseIPv4(context.Context, string) error { return ErrNotConfigured }

func (NullIPAM) AllocateIPv6Prefix(context.Context, IPv6PrefixRequest) (*IPv6PrefixAllocation, error) {
	return nil, ErrNotConfigured
}

func (NullIPAM) ReleaseIPv6Prefix(context.Context, string) error { return ErrNotConfigured }

// NullCoA is the "no CoA configured" implementation. CoA pushes are optional
// everywhere, so callers skip them when Configured() is false.
type NullCoA struct{}

func (NullCoA) Configured() bool { return false }

func (NullCoA) UpdateIPv4Address(context.Context, string, string, string) error {
	return ErrNotConfigured
}

func (NullCoA) UpdateIPv6Prefix(context.Context, string, string, string) error {
	return ErrNotConfigured
}

func (NullCoA) DisconnectSession(context.Context, string, string) error { return ErrNotConfigured }

// NullRadius is the "no RADIUS store configured" implementation.
type NullRadius struct{}

func (NullRadius) Configured() bool { return false }

func (NullRadius) CreateAccount(context.Context, RadiusAccountRequest) error {
	return ErrNotConfigured
}

func (NullRadius) DeleteAccount(context.Context, string) error  { return ErrNotConfigured }
func (NullRadius) EnableAccount(context.Context, string) error  { return ErrNotConfigured }
func (NullRadius) DisableAccount(context.Context, string) error { return ErrNotConfigured }

// NullAccessNode is the "no access-node manager configured" implementation.
type NullAccessNode struct{}

func (NullAccessNode) Configured() bool { return false }

func (NullAccessNode) EnableSubscriber(context.Context, string) (*AccessNodeResult, error) {
	return nil, ErrNotConfigured
}

func (NullAccessNode) DisableSubscriber(context.Context, string) (*AccessNodeResult, error) {
	return nil, ErrNotConfigured
}

func (NullAccessNode) ConfigureSubscriber(context.Context, string, map[string]string) (*AccessNodeResult, error) {
	return nil, ErrNotConfigured
}

func (NullAccessNode) RebootDevice(context.Context, string) error { return ErrNotConfigured }

// NullCPE is the "no CPE manager configured" implementation.
type NullCPE struct{}

func (NullCPE) Configured() bool { return false }

func (NullCPE) SetParameter(context.Context, string, string, string) error { return ErrNotConfigured }

func (NullCPE) GetParameter(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (NullCPE) Reboot(context.Context, string) error  { return ErrNotConfigured }
func (NullCPE) Refresh(context.Context, string) error { return ErrNotConfigured }

func (NullCPE) EnqueueTask(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

// NullBilling is the "no billing configured" implementation.
type NullBilling struct{}

func (NullBilling) Configured() bool { return false }

func (NullBilling) CreateSubscription(context.Context, BillingSubscriptionRequest) (string, error) {
	return "", ErrNotConfigured
}

func (NullBilling) SuspendSubscription(context.Context, string) error   { return ErrNotConfigured }
func (NullBilling) ResumeSubscription(context.Context, string) error    { return ErrNotConfigured }
func (NullBilling) TerminateSubscription(context.Context, string) error { return ErrNotConfigured }

// NullHealth is the "no health monitor configured" implementation.
type NullHealth struct{}

func (NullHealth) Configured() bool { return false }

func (NullHealth) CheckService(context.Context, string) (*HealthResult, error) {
	return nil, ErrNotConfigured
}
