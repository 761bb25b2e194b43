package orchestration

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fiberline/switchyard/internal/domain"
)

// validate is shared by every request type; validator instances cache struct
// metadata, so one per package is the cheap way.
var validate = validator.New()

// StartWorkflowRequest starts a run of a named definition with a free-form
// input payload. Used for user-supplied definitions and by the typed
// operations after they assemble their inputs.
type StartWorkflowRequest struct {
	TenantID      string               `json:"tenant_id" validate:"required"`
	Definition    string               `json:"definition" validate:"required"`
	SubscriberID  string               `json:"subscriber_id,omitempty"`
	Input         map[string]any       `json:"input,omitempty"`
	MaxRetries    int                  `json:"max_retries,omitempty" validate:"omitempty,min=0,max=10"`
	Initiator     string               `json:"initiator,omitempty"`
	InitiatorKind domain.InitiatorKind `json:"initiator_kind,omitempty" validate:"omitempty,oneof=user system api"`
	Async         bool                 `json:"async,omitempty"`
}

// Validate checks the request shape.
func (r StartWorkflowRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("start workflow request: %w", err)
	}
	return nil
}

// ProvisionSubscriberRequest provisions a subscriber end to end: service
// instance record plus the provision_subscriber workflow. Exactly one of
// CustomerID and Email identifies the customer; a missing CustomerID means
// the run creates one.
type ProvisionSubscriberRequest struct {
	TenantID        string `json:"tenant_id" validate:"required"`
	CustomerID      string `json:"customer_id,omitempty"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	Name            string `json:"name,omitempty"`
	PlanID          string `json:"plan_id" validate:"required"`
	ServiceType     string `json:"service_type,omitempty"`
	ServiceLocation string `json:"service_location,omitempty"`

	ServiceVLAN int    `json:"service_vlan,omitempty" validate:"omitempty,min=1,max=4094"`
	InnerVLAN   int    `json:"inner_vlan,omitempty" validate:"omitempty,min=1,max=4094"`
	CircuitID   string `json:"circuit_id,omitempty"`
	RemoteID    string `json:"remote_id,omitempty"`
	StaticIPv4  string `json:"static_ipv4,omitempty" validate:"omitempty,ip4_addr"`
	StaticIPv6  string `json:"static_ipv6,omitempty" validate:"omitempty,cidrv6"`

	IPv6Mode         string `json:"ipv6_mode,omitempty" validate:"omitempty,oneof=none slaac dhcpv6 prefix_delegation dual_stack"`
	IPv6PrefixLength int    `json:"ipv6_prefix_length,omitempty" validate:"omitempty,min=48,max=64"`
	IPv4PoolID       string `json:"ipv4_pool_id,omitempty"`
	IPv6PoolID       string `json:"ipv6_pool_id,omitempty"`

	RadiusUsername string            `json:"radius_username,omitempty"`
	CPEDeviceID    string            `json:"cpe_device_id,omitempty"`
	CPEParameters  map[string]string `json:"cpe_parameters,omitempty"`
	Equipment      []string          `json:"equipment,omitempty"`

	AutoActivate  bool                 `json:"auto_activate,omitempty"`
	Initiator     string               `json:"initiator,omitempty"`
	InitiatorKind domain.InitiatorKind `json:"initiator_kind,omitempty" validate:"omitempty,oneof=user system api"`
	Async         bool                 `json:"async,omitempty"`
}

// Validate checks the shape and the customer identification rule.
func (r ProvisionSubscriberRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("provision request: %w", err)
	}
	if r.CustomerID == "" && r.Email == "" {
		return fmt.Errorf("provision request: one of customer_id or email is required")
	}
	return nil
}

// DeprovisionSubscriberRequest tears a subscriber down through the
// deprovision_subscriber workflow and terminates the service instance.
type DeprovisionSubscriberRequest struct {
	TenantID          string               `json:"tenant_id" validate:"required"`
	SubscriberID      string               `json:"subscriber_id" validate:"required"`
	ServiceInstanceID string               `json:"service_instance_id,omitempty"`
	Reason            string               `json:"reason,omitempty"`
	Initiator         string               `json:"initiator,omitempty"`
	InitiatorKind     domain.InitiatorKind `json:"initiator_kind,omitempty" validate:"omitempty,oneof=user system api"`
	Async             bool                 `json:"async,omitempty"`
}

// Validate checks the request shape.
func (r DeprovisionSubscriberRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("deprovision request: %w", err)
	}
	return nil
}

// ActivateServiceRequest activates a provisioned or suspended instance.
type ActivateServiceRequest struct {
	TenantID          string `json:"tenant_id" validate:"required"`
	ServiceInstanceID string `json:"service_instance_id,omitempty"`
	ServiceID         string `json:"service_id,omitempty"`
	TriggeredBy       string `json:"triggered_by,omitempty"`
}

// Validate checks the shape and that one instance identifier is present.
func (r ActivateServiceRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("activate request: %w", err)
	}
	if r.ServiceInstanceID == "" && r.ServiceID == "" {
		return fmt.Errorf("activate request: one of service_instance_id or service_id is required")
	}
	return nil
}

// SuspendServiceRequest suspends an active instance. The reason is part of
// the audit trail, so a bare token is rejected.
type SuspendServiceRequest struct {
	TenantID          string                `json:"tenant_id" validate:"required"`
	ServiceInstanceID string                `json:"service_instance_id,omitempty"`
	ServiceID         string                `json:"service_id,omitempty"`
	SuspensionType    domain.SuspensionType `json:"suspension_type,omitempty" validate:"omitempty,oneof=fraud non_payment other"`
	Reason            string                `json:"reason" validate:"required,min=5"`
	AutoResumeAt      *time.Time            `json:"auto_resume_at,omitempty"`
	SendNotification  bool                  `json:"send_notification,omitempty"`
	TriggeredBy       string                `json:"triggered_by,omitempty"`
}

// Validate checks the shape and that one instance identifier is present.
func (r SuspendServiceRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("suspend request: %w", err)
	}
	if r.ServiceInstanceID == "" && r.ServiceID == "" {
		return fmt.Errorf("suspend request: one of service_instance_id or service_id is required")
	}
	return nil
}

// TerminateServiceRequest terminates an instance, immediately or at a future
// date.
type TerminateServiceRequest struct {
	TenantID          string     `json:"tenant_id" validate:"required"`
	ServiceInstanceID string     `json:"service_instance_id,omitempty"`
	ServiceID         string     `json:"service_id,omitempty"`
	Reason            string     `json:"reason" validate:"required,min=5"`
	TerminationDate   *time.Time `json:"termination_date,omitempty"`
	SendNotification  bool       `json:"send_notification,omitempty"`
	ReturnEquipment   bool       `json:"return_equipment,omitempty"`
	TriggeredBy       string     `json:"triggered_by,omitempty"`
}

// Validate checks the shape and that one instance identifier is present.
func (r TerminateServiceRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("terminate request: %w", err)
	}
	if r.ServiceInstanceID == "" && r.ServiceID == "" {
		return fmt.Errorf("terminate request: one of service_instance_id or service_id is required")
	}
	return nil
}
