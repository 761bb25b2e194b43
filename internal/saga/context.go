package saga

// Context is the only mutable state shared between steps of one run. The
// orchestrator owns it; handlers receive a copy-safe pointer for reading and
// return explicit ContextUpdates, never mutating it themselves. It is
// persisted onto the workflow record only at run boundaries (completion,
// failure, rollback), which is what makes retry-from-the-middle possible.
type Context struct {
	TenantID          string
	SubscriberID      string
	CustomerID        string
	ServiceInstanceID string
	PlanID            string
	RadiusUsername    string
	IPv4Address       string
	IPv6Prefix        string

	// ExternalIDs maps target-system labels to the identifiers those systems
	// returned (billing subscription id, ONU device id, IPAM allocation ids).
	ExternalIDs map[string]string

	// Extra is the escape hatch for values without a well-known field.
	Extra map[string]any
}

// ContextUpdates is the delta a handler returns. Empty string fields mean
// "no change"; map entries are merged over the existing ones.
type ContextUpdates struct {
	SubscriberID      string
	CustomerID        string
	ServiceInstanceID string
	PlanID            string
	RadiusUsername    string
	IPv4Address       string
	IPv6Prefix        string
	ExternalIDs       map[string]string
	Extra             map[string]any
}

// Apply merges the updates into the context.
func (c *Context) Apply(u ContextUpdates) {
	if u.SubscriberID != "" {
		c.SubscriberID = u.SubscriberID
	}
	if u.CustomerID != "" {
		c.CustomerID = u.CustomerID
	}
	if u.ServiceInstanceID != "" {
		c.ServiceInstanceID = u.ServiceInstanceID
	}
	if u.PlanID != "" {
		c.PlanID = u.PlanID
	}
	if u.RadiusUsername != "" {
		c.RadiusUsername = u.RadiusUsername
	}
	if u.IPv4Address != "" {
		c.IPv4Address = u.IPv4Address
	}
	if u.IPv6Prefix != "" {
		c.IPv6Prefix = u.IPv6Prefix
	}
	if len(u.ExternalIDs) > 0 {
		if c.ExternalIDs == nil {
			c.ExternalIDs = make(map[string]string, len(u.ExternalIDs))
		}
		for k, v := range u.ExternalIDs {
			c.ExternalIDs[k] = v
		}
	}
	if len(u.Extra) > 0 {
		if c.Extra == nil {
			c.Extra = make(map[string]any, len(u.Extra))
		}
		for k, v := range u.Extra {
			c.Extra[k] = v
		}
	}
}

// ExternalID returns the recorded identifier for a target system, or empty.
func (c *Context) ExternalID(system string) string {
	return c.ExternalIDs[system]
}

// Map keys for the persisted form of the context.
const (
	ctxKeyTenantID          = "tenant_id"
	ctxKeySubscriberID      = "subscriber_id"
	ctxKeyCustomerID        = "customer_id"
	ctxKeyServiceInstanceID = "service_instance_id"
	ctxKeyPlanID            = "plan_id"
	ctxKeyRadiusUsername    = "radius_username"
	ctxKeyIPv4Address       = "ipv4_address"
	ctxKeyIPv6Prefix        = "ipv6_prefix"
	ctxKeyExternalIDs       = "external_ids"
	ctxKeyExtra             = "extra"
)

// ToMap flattens the context for persistence on the workflow record.
func (c *Context) ToMap() map[string]any {
	m := map[string]any{}
	if c.TenantID != "" {
		m[ctxKeyTenantID] = c.TenantID
	}
	if c.SubscriberID != "" {
		m[ctxKeySubscriberID] = c.SubscriberID
	}
	if c.CustomerID != "" {
		m[ctxKeyCustomerID] = c.CustomerID
	}
	if c.ServiceInstanceID != "" {
		m[ctxKeyServiceInstanceID] = c.ServiceInstanceID
	}
	if c.PlanID != "" {
		m[ctxKeyPlanID] = c.PlanID
	}
	if c.RadiusUsername != "" {
		m[ctxKeyRadiusUsername] = c.RadiusUsername
	}
	if c.IPv4Address != "" {
		m[ctxKeyIPv4Address] = c.IPv4Address
	}
	if c.IPv6Prefix != "" {
		m[ctxKeyIPv6Prefix] = c.IPv6Prefix
	}
	if len(c.ExternalIDs) > 0 {
		ids := make(map[string]any, len(c.ExternalIDs))
		for k, v := range c.ExternalIDs {
			ids[k] = v
		}
		m[ctxKeyExternalIDs] = ids
	}
	if len(c.Extra) > 0 {
		m[ctxKeyExtra] = c.Extra
	}
	return m
}

// ContextFromMap hydrates a context from its persisted form. Unknown keys
// and wrong-typed values are ignored; a JSON round trip turns the nested
// maps into map[string]any, which is handled.
func ContextFromMap(m map[string]any) *Context {
	c := &Context{}
	if m == nil {
		return c
	}
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	c.TenantID = str(ctxKeyTenantID)
	c.SubscriberID = str(ctxKeySubscriberID)
	c.CustomerID = str(ctxKeyCustomerID)
	c.ServiceInstanceID = str(ctxKeyServiceInstanceID)
	c.PlanID = str(ctxKeyPlanID)
	c.RadiusUsername = str(ctxKeyRadiusUsername)
	c.IPv4Address = str(ctxKeyIPv4Address)
	c.IPv6Prefix = str(ctxKeyIPv6Prefix)

	if raw, ok := m[ctxKeyExternalIDs].(map[string]any); ok {
		c.ExternalIDs = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				c.ExternalIDs[k] = s
			}
		}
	}
	if raw, ok := m[ctxKeyExtra].(map[string]any); ok {
		c.Extra = raw
	}
	return c
}
