package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fiberline/switchyard/internal/log"
)

// BreakerConfig tunes the circuit breakers wrapped around remote
// collaborators.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker open. Zero means 5.
	ConsecutiveFailures int
	// OpenTimeout is how long the breaker stays open before probing.
	// Zero means 30s.
	OpenTimeout time.Duration
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	failures := uint32(cfg.ConsecutiveFailures)
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.OpenTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(log.CatCollab, "circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func execute(cb *gobreaker.CircuitBreaker, op string, fn func() error) error {
	_, err := cb.Execute(func() (any, error) { return nil, fn() })
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// BreakerIPAM wraps an IPAMClient with a circuit breaker. An open breaker
// surfaces as a transient failure the retry layer can back off on.
type BreakerIPAM struct {
	inner IPAMClient
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerIPAM decorates an IPAM client.
func NewBreakerIPAM(inner IPAMClient, cfg BreakerConfig) *BreakerIPAM {
	return &BreakerIPAM{inner: inner, cb: newBreaker("ipam", cfg)}
}

var _ IPAMClient = (*BreakerIPAM)(nil)

func (b *BreakerIPAM) Configured() bool { return b.inner.Configured() }

func (b *BreakerIPAM) AllocateIPv4(ctx context.Context, req IPv4AllocationRequest) (*IPv4Allocation, error) {
	result, err := b.cb.Execute(func() (any, error) { return b.inner.AllocateIPv4(ctx, req) })
	if err != nil {
		return nil, fmt.Errorf("ipam allocate ipv4: %w", err)
	}
	return result.(*IPv4Allocation), nil
}

func (b *BreakerIPAM) ReleaseIPv4(ctx context.Context, allocationID string) error {
	return execute(b.cb, "ipam release ipv4", func() error { return b.inner.ReleaseIPv4(ctx, allocationID) })
}

func (b *BreakerIPAM) AllocateIPv6Prefix(ctx context.Context, req IPv6PrefixRequest) (*IPv6PrefixAllocation, error) {
	result, err := b.cb.Execute(func() (any, error) { return b.inner.AllocateIPv6Prefix(ctx, req) })
	if err != nil {
		return nil, fmt.Errorf("ipam allocate ipv6 prefix: %w", err)
	}
	return result.(*IPv6PrefixAllocation), nil
}

func (b *BreakerIPAM) ReleaseIPv6Prefix(ctx context.Context, allocationID string) error {
	return execute(b.cb, "ipam release ipv6 prefix", func() error { return b.inner.ReleaseIPv6Prefix(ctx, allocationID) })
}

// BreakerCoA wraps a CoAClient with a circuit breaker.
type BreakerCoA struct {
	inner CoAClient
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerCoA decorates a CoA client.
func NewBreakerCoA(inner CoAClient, cfg BreakerConfig) *BreakerCoA {
	return &BreakerCoA{inner: inner, cb: newBreaker("coa", cfg)}
}

var _ CoAClient = (*BreakerCoA)(nil)

func (b *BreakerCoA) Configured() bool { return b.inner.Configured() }

func (b *BreakerCoA) UpdateIPv4Address(ctx context.Context, username, nasIP, address string) error {
	return execute(b.cb, "coa update ipv4", func() error {
		return b.inner.UpdateIPv4Address(ctx, username, nasIP, address)
	})
}

func (b *BreakerCoA) UpdateIPv6Prefix(ctx context.Context, username, nasIP, prefix string) error {
	return execute(b.cb, "coa update ipv6 prefix", func() error {
		return b.inner.UpdateIPv6Prefix(ctx, username, nasIP, prefix)
	})
}

func (b *BreakerCoA) DisconnectSession(ctx context.Context, username, nasIP string) error {
	return execute(b.cb, "coa disconnect", func() error {
		return b.inner.DisconnectSession(ctx, username, nasIP)
	})
}

// BreakerBilling wraps a BillingClient with a circuit breaker.
type BreakerBilling struct {
	inner BillingClient
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerBilling decorates a billing client.
func NewBreakerBilling(inner BillingClient, cfg BreakerConfig) *BreakerBilling {
	return &BreakerBilling{inner: inner, cb: newBreaker("billing", cfg)}
}

var _ BillingClient = (*BreakerBilling)(nil)

func (b *BreakerBilling) Configured() bool { return b.inner.Configured() }

func (b *BreakerBilling) CreateSubscription(ctx context.Context, req BillingSubscriptionRequest) (string, error) {
	result, err := b.cb.Execute(func() (any, error) { return b.inner.CreateSubscription(ctx, req) })
	if err != nil {
		return "", fmt.Errorf("billing create subscription: %w", err)
	}
	return result.(string), nil
}

func (b *BreakerBilling) SuspendSubscription(ctx context.Context, externalID string) error {
	return execute(b.cb, "billing suspend", func() error { return b.inner.SuspendSubscription(ctx, externalID) })
}

func (b *BreakerBilling) ResumeSubscription(ctx context.Context, externalID string) error {
	return execute(b.cb, "billing resume", func() error { return b.inner.ResumeSubscription(ctx, externalID) })
}

func (b *BreakerBilling) TerminateSubscription(ctx context.Context, externalID string) error {
	return execute(b.cb, "billing terminate", func() error { return b.inner.TerminateSubscription(ctx, externalID) })
}
