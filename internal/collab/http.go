package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fiberline/switchyard/internal/log"
)

// ClientConfig configures one remote collaborator endpoint.
type ClientConfig struct {
	// Endpoint is the base URL of the collaborator's HTTP API.
	Endpoint string
	// Token is sent as a bearer token when non-empty.
	Token string
	// Timeout bounds each request. Zero means 10s.
	Timeout time.Duration
}

// httpClient is the shared JSON-over-HTTP transport under the remote
// collaborator adapters. Responses outside 2xx surface as errors carrying the
// status and the body's "error" field when the backend sent one.
type httpClient struct {
	base   string
	token  string
	client *http.Client
	name   string
}

func newHTTPClient(name string, cfg ClientConfig) *httpClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		base:   strings.TrimRight(cfg.Endpoint, "/"),
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
		name:   name,
	}
}

type remoteError struct {
	Error string `json:"error"`
}

// call sends body as JSON to path and decodes the response into out when out
// is non-nil.
func (c *httpClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", c.name, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", c.name, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var remote remoteError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &remote)
		log.Warn(log.CatCollab, "remote call failed",
			"collaborator", c.name, "method", method, "path", path,
			"status", resp.StatusCode)
		if remote.Error != "" {
			return fmt.Errorf("%s: %s %s: status %d: %s", c.name, method, path, resp.StatusCode, remote.Error)
		}
		return fmt.Errorf("%s: %s %s: status %d", c.name, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", c.name, err)
	}
	return nil
}

// HTTPIPAM talks to a remote IPAM service over its JSON API.
type HTTPIPAM struct {
	c *httpClient
}

// NewHTTPIPAM builds an IPAM client for the configured endpoint.
func NewHTTPIPAM(cfg ClientConfig) *HTTPIPAM {
	return &HTTPIPAM{c: newHTTPClient("ipam", cfg)}
}

var _ IPAMClient = (*HTTPIPAM)(nil)

func (i *HTTPIPAM) Configured() bool { return true }

func (i *HTTPIPAM) AllocateIPv4(ctx context.Context, req IPv4AllocationRequest) (*IPv4Allocation, error) {
	body := map[string]any{
		"subscriber_id": req.SubscriberID,
		"tenant_id":     req.TenantID,
	}
	if req.PoolID != "" {
		body["pool_id"] = req.PoolID
	}
	if req.RequestedAddress != "" {
		body["requested_address"] = req.RequestedAddress
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	var out struct {
		AllocationID string `json:"allocation_id"`
		Address      string `json:"address"`
		PoolID       string `json:"pool_id"`
	}
	if err := i.c.call(ctx, http.MethodPost, "/v1/ipv4/allocations", body, &out); err != nil {
		return nil, err
	}
	return &IPv4Allocation{AllocationID: out.AllocationID, Address: out.Address, PoolID: out.PoolID}, nil
}

func (i *HTTPIPAM) ReleaseIPv4(ctx context.Context, allocationID string) error {
	return i.c.call(ctx, http.MethodDelete, "/v1/ipv4/allocations/"+allocationID, nil, nil)
}

func (i *HTTPIPAM) AllocateIPv6Prefix(ctx context.Context, req IPv6PrefixRequest) (*IPv6PrefixAllocation, error) {
	body := map[string]any{
		"subscriber_id": req.SubscriberID,
		"tenant_id":     req.TenantID,
		"prefix_length": req.PrefixLength,
	}
	if req.PoolID != "" {
		body["pool_id"] = req.PoolID
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	var out struct {
		AllocationID string `json:"allocation_id"`
		Prefix       string `json:"prefix"`
		PrefixLength int    `json:"prefix_length"`
		PoolID       string `json:"pool_id"`
	}
	if err := i.c.call(ctx, http.MethodPost, "/v1/ipv6/prefixes", body, &out); err != nil {
		return nil, err
	}
	return &IPv6PrefixAllocation{
		AllocationID: out.AllocationID,
		Prefix:       out.Prefix,
		PrefixLength: out.PrefixLength,
		PoolID:       out.PoolID,
	}, nil
}

func (i *HTTPIPAM) ReleaseIPv6Prefix(ctx context.Context, allocationID string) error {
	return i.c.call(ctx, http.MethodDelete, "/v1/ipv6/prefixes/"+allocationID, nil, nil)
}

// HTTPRadius talks to a RADIUS provisioning gateway. The gateway fronts both
// the account store and the dynamic-authorization (CoA) path, so one adapter
// serves both contracts.
type HTTPRadius struct {
	c *httpClient
}

// NewHTTPRadius builds a RADIUS gateway client for the configured endpoint.
func NewHTTPRadius(cfg ClientConfig) *HTTPRadius {
	return &HTTPRadius{c: newHTTPClient("radius", cfg)}
}

var (
	_ RadiusStore = (*HTTPRadius)(nil)
	_ CoAClient   = (*HTTPRadius)(nil)
)

func (r *HTTPRadius) Configured() bool { return true }

func (r *HTTPRadius) CreateAccount(ctx context.Context, req RadiusAccountRequest) error {
	body := map[string]any{
		"username":      req.Username,
		"password":      req.Password,
		"subscriber_id": req.SubscriberID,
		"tenant_id":     req.TenantID,
	}
	if len(req.Attributes) > 0 {
		body["attributes"] = req.Attributes
	}
	return r.c.call(ctx, http.MethodPost, "/v1/accounts", body, nil)
}

func (r *HTTPRadius) DeleteAccount(ctx context.Context, username string) error {
	return r.c.call(ctx, http.MethodDelete, "/v1/accounts/"+username, nil, nil)
}

func (r *HTTPRadius) EnableAccount(ctx context.Context, username string) error {
	return r.c.call(ctx, http.MethodPost, "/v1/accounts/"+username+"/enable", nil, nil)
}

func (r *HTTPRadius) DisableAccount(ctx context.Context, username string) error {
	return r.c.call(ctx, http.MethodPost, "/v1/accounts/"+username+"/disable", nil, nil)
}

func (r *HTTPRadius) coa(ctx context.Context, username, nasIP string, extra map[string]any) error {
	body := map[string]any{"username": username}
	if nasIP != "" {
		body["nas_ip"] = nasIP
	}
	for k, v := range extra {
		body[k] = v
	}
	return r.c.call(ctx, http.MethodPost, "/v1/coa", body, nil)
}

func (r *HTTPRadius) UpdateIPv4Address(ctx context.Context, username, nasIP, address string) error {
	return r.coa(ctx, username, nasIP, map[string]any{"framed_ip_address": address})
}

func (r *HTTPRadius) UpdateIPv6Prefix(ctx context.Context, username, nasIP, prefix string) error {
	return r.coa(ctx, username, nasIP, map[string]any{"delegated_ipv6_prefix": prefix})
}

func (r *HTTPRadius) DisconnectSession(ctx context.Context, username, nasIP string) error {
	body := map[string]any{"username": username}
	if nasIP != "" {
		body["nas_ip"] = nasIP
	}
	return r.c.call(ctx, http.MethodPost, "/v1/disconnect", body, nil)
}

// HTTPBilling talks to a remote billing system over its JSON API.
type HTTPBilling struct {
	c *httpClient
}

// NewHTTPBilling builds a billing client for the configured endpoint.
func NewHTTPBilling(cfg ClientConfig) *HTTPBilling {
	return &HTTPBilling{c: newHTTPClient("billing", cfg)}
}

var _ BillingClient = (*HTTPBilling)(nil)

func (b *HTTPBilling) Configured() bool { return true }

func (b *HTTPBilling) CreateSubscription(ctx context.Context, req BillingSubscriptionRequest) (string, error) {
	body := map[string]any{
		"customer_id":   req.CustomerID,
		"subscriber_id": req.SubscriberID,
		"tenant_id":     req.TenantID,
		"plan_id":       req.PlanID,
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	var out struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := b.c.call(ctx, http.MethodPost, "/v1/subscriptions", body, &out); err != nil {
		return "", err
	}
	return out.SubscriptionID, nil
}

func (b *HTTPBilling) SuspendSubscription(ctx context.Context, externalID string) error {
	return b.c.call(ctx, http.MethodPost, "/v1/subscriptions/"+externalID+"/suspend", nil, nil)
}

func (b *HTTPBilling) ResumeSubscription(ctx context.Context, externalID string) error {
	return b.c.call(ctx, http.MethodPost, "/v1/subscriptions/"+externalID+"/resume", nil, nil)
}

func (b *HTTPBilling) TerminateSubscription(ctx context.Context, externalID string) error {
	return b.c.call(ctx, http.MethodPost, "/v1/subscriptions/"+externalID+"/terminate", nil, nil)
}
