package domain

import "time"

// ServiceStatus represents the lifecycle status of a provisioned service.
type ServiceStatus string

const (
	// ServiceStatusPending indicates the instance exists but provisioning
	// has not started.
	ServiceStatusPending ServiceStatus = "pending"

	// ServiceStatusProvisioning indicates the provisioning saga is running.
	ServiceStatusProvisioning ServiceStatus = "provisioning"

	// ServiceStatusActive indicates the service is delivering.
	ServiceStatusActive ServiceStatus = "active"

	// ServiceStatusSuspended indicates an administrative suspension.
	ServiceStatusSuspended ServiceStatus = "suspended"

	// ServiceStatusSuspendedFraud indicates a fraud suspension.
	ServiceStatusSuspendedFraud ServiceStatus = "suspended_fraud"

	// ServiceStatusSuspendedNonPayment indicates a non-payment suspension.
	ServiceStatusSuspendedNonPayment ServiceStatus = "suspended_non_payment"

	// ServiceStatusTerminating indicates a future-dated termination is scheduled.
	ServiceStatusTerminating ServiceStatus = "terminating"

	// ServiceStatusTerminated indicates the service ended. Terminal.
	ServiceStatusTerminated ServiceStatus = "terminated"

	// ServiceStatusFailed indicates provisioning failed. Terminal; restart
	// requires a new instance.
	ServiceStatusFailed ServiceStatus = "failed"
)

// String returns the string representation of the service status.
func (s ServiceStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized service status.
func (s ServiceStatus) IsValid() bool {
	_, ok := validServiceTransitions[s]
	return ok
}

// IsSuspended returns true for any of the suspended statuses.
func (s ServiceStatus) IsSuspended() bool {
	switch s {
	case ServiceStatusSuspended, ServiceStatusSuspendedFraud, ServiceStatusSuspendedNonPayment:
		return true
	default:
		return false
	}
}

// validServiceTransitions is the legal-transition table for service status.
var validServiceTransitions = map[ServiceStatus]map[ServiceStatus]bool{
	ServiceStatusPending: {
		ServiceStatusProvisioning: true,
		ServiceStatusFailed:       true,
	},
	ServiceStatusProvisioning: {
		ServiceStatusActive: true,
		ServiceStatusFailed: true,
	},
	ServiceStatusActive: {
		ServiceStatusSuspended:           true,
		ServiceStatusSuspendedFraud:      true,
		ServiceStatusSuspendedNonPayment: true,
		ServiceStatusTerminating:         true,
		ServiceStatusTerminated:          true,
	},
	ServiceStatusSuspended: {
		ServiceStatusActive:      true,
		ServiceStatusTerminating: true,
		ServiceStatusTerminated:  true,
	},
	ServiceStatusSuspendedFraud: {
		ServiceStatusActive:      true,
		ServiceStatusTerminating: true,
		ServiceStatusTerminated:  true,
	},
	ServiceStatusSuspendedNonPayment: {
		ServiceStatusActive:      true,
		ServiceStatusTerminating: true,
		ServiceStatusTerminated:  true,
	},
	ServiceStatusTerminating: {
		ServiceStatusTerminated: true,
	},
	ServiceStatusTerminated: {},
	ServiceStatusFailed:     {},
}

// CanTransitionTo returns true if the status may legally move to target.
func (s ServiceStatus) CanTransitionTo(target ServiceStatus) bool {
	targets, ok := validServiceTransitions[s]
	if !ok {
		return false
	}
	return targets[target]
}

// IsTerminal returns true if no further transitions are legal from this status.
func (s ServiceStatus) IsTerminal() bool {
	targets, ok := validServiceTransitions[s]
	return ok && len(targets) == 0
}

// ValidTargets returns the statuses reachable from this status in one transition.
func (s ServiceStatus) ValidTargets() []ServiceStatus {
	targets := validServiceTransitions[s]
	out := make([]ServiceStatus, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	return out
}

// SuspensionType discriminates which suspended status a suspension targets.
type SuspensionType string

const (
	SuspensionTypeFraud      SuspensionType = "fraud"
	SuspensionTypeNonPayment SuspensionType = "non_payment"
	SuspensionTypeOther      SuspensionType = "other"
)

// IsValid returns true if the suspension type is recognized.
func (t SuspensionType) IsValid() bool {
	switch t {
	case SuspensionTypeFraud, SuspensionTypeNonPayment, SuspensionTypeOther:
		return true
	default:
		return false
	}
}

// TargetStatus maps the suspension type to the service status it produces.
func (t SuspensionType) TargetStatus() ServiceStatus {
	switch t {
	case SuspensionTypeFraud:
		return ServiceStatusSuspendedFraud
	case SuspensionTypeNonPayment:
		return ServiceStatusSuspendedNonPayment
	default:
		return ServiceStatusSuspended
	}
}

// MetadataKeyScheduledTermination is the metadata key holding the RFC3339
// datetime of a future-dated termination.
const MetadataKeyScheduledTermination = "scheduled_termination_date"

// MetadataKeyScheduledActivation is the metadata key holding the RFC3339
// datetime of a scheduled activation.
const MetadataKeyScheduledActivation = "scheduled_activation_date"

// ServiceInstance represents one provisioned service for a subscriber. All
// fields are unexported to enforce encapsulation; use the constructor and
// getter methods to access data.
type ServiceInstance struct {
	id                int64
	serviceInstanceID string
	serviceID         string
	tenantID          string
	subscriberID      string
	customerID        string
	subscriptionID    string

	name        string
	serviceType string
	planID      string
	status      ServiceStatus

	provisioningStatus string
	workflowID         string

	suspensionType   SuspensionType
	suspensionReason string
	autoResumeAt     *time.Time

	serviceLocation string
	equipment       []string
	vlanID          int

	lastHealthCheckAt     *time.Time
	lastHealthCheckResult string

	metadata map[string]any

	createdAt             time.Time
	provisioningStartedAt *time.Time
	provisionedAt         *time.Time
	activatedAt           *time.Time
	suspendedAt           *time.Time
	terminatedAt          *time.Time
	updatedAt             time.Time
}

// NewServiceInstance creates a new instance in the pending status. The ID is
// left as zero; it will be assigned by the persistence layer.
func NewServiceInstance(serviceInstanceID, serviceID, tenantID string) *ServiceInstance {
	now := time.Now()
	return &ServiceInstance{
		serviceInstanceID: serviceInstanceID,
		serviceID:         serviceID,
		tenantID:          tenantID,
		status:            ServiceStatusPending,
		createdAt:         now,
		updatedAt:         now,
	}
}

// ReconstituteServiceInstance creates a ServiceInstance from existing data,
// typically when hydrating from the database.
func ReconstituteServiceInstance(
	id int64,
	serviceInstanceID, serviceID, tenantID, subscriberID, customerID, subscriptionID string,
	name, serviceType, planID string,
	status ServiceStatus,
	provisioningStatus, workflowID string,
	suspensionType SuspensionType,
	suspensionReason string,
	autoResumeAt *time.Time,
	serviceLocation string,
	equipment []string,
	vlanID int,
	lastHealthCheckAt *time.Time,
	lastHealthCheckResult string,
	metadata map[string]any,
	createdAt time.Time,
	provisioningStartedAt, provisionedAt, activatedAt, suspendedAt, terminatedAt *time.Time,
	updatedAt time.Time,
) *ServiceInstance {
	return &ServiceInstance{
		id:                    id,
		serviceInstanceID:     serviceInstanceID,
		serviceID:             serviceID,
		tenantID:              tenantID,
		subscriberID:          subscriberID,
		customerID:            customerID,
		subscriptionID:        subscriptionID,
		name:                  name,
		serviceType:           serviceType,
		planID:                planID,
		status:                status,
		provisioningStatus:    provisioningStatus,
		workflowID:            workflowID,
		suspensionType:        suspensionType,
		suspensionReason:      suspensionReason,
		autoResumeAt:          autoResumeAt,
		serviceLocation:       serviceLocation,
		equipment:             equipment,
		vlanID:                vlanID,
		lastHealthCheckAt:     lastHealthCheckAt,
		lastHealthCheckResult: lastHealthCheckResult,
		metadata:              metadata,
		createdAt:             createdAt,
		provisioningStartedAt: provisioningStartedAt,
		provisionedAt:         provisionedAt,
		activatedAt:           activatedAt,
		suspendedAt:           suspendedAt,
		terminatedAt:          terminatedAt,
		updatedAt:             updatedAt,
	}
}

// ID returns the database identifier for this instance.
func (s *ServiceInstance) ID() int64 { return s.id }

// ServiceInstanceID returns the globally unique identifier for this instance.
func (s *ServiceInstance) ServiceInstanceID() string { return s.serviceInstanceID }

// ServiceID returns the human-readable identifier, unique per tenant.
func (s *ServiceInstance) ServiceID() string { return s.serviceID }

// TenantID returns the tenant owning this instance.
func (s *ServiceInstance) TenantID() string { return s.tenantID }

// SubscriberID returns the subscriber back-reference used for IPv6 revoke at
// termination, or empty.
func (s *ServiceInstance) SubscriberID() string { return s.subscriberID }

// CustomerID returns the customer link, or empty.
func (s *ServiceInstance) CustomerID() string { return s.customerID }

// SubscriptionID returns the billing subscription link, or empty.
func (s *ServiceInstance) SubscriptionID() string { return s.subscriptionID }

// Name returns the human-readable service name.
func (s *ServiceInstance) Name() string { return s.name }

// ServiceType returns the service type label.
func (s *ServiceInstance) ServiceType() string { return s.serviceType }

// PlanID returns the commercial plan identifier.
func (s *ServiceInstance) PlanID() string { return s.planID }

// Status returns the current service status.
func (s *ServiceInstance) Status() ServiceStatus { return s.status }

// ProvisioningStatus returns the provisioning sub-status label.
func (s *ServiceInstance) ProvisioningStatus() string { return s.provisioningStatus }

// WorkflowID returns the provisioning workflow identifier, or empty.
func (s *ServiceInstance) WorkflowID() string { return s.workflowID }

// SuspensionType returns the discriminator of the current suspension.
func (s *ServiceInstance) SuspensionType() SuspensionType { return s.suspensionType }

// SuspensionReason returns the recorded suspension reason.
func (s *ServiceInstance) SuspensionReason() string { return s.suspensionReason }

// AutoResumeAt returns when the suspension should auto-resume, or nil.
func (s *ServiceInstance) AutoResumeAt() *time.Time { return s.autoResumeAt }

// ServiceLocation returns the installation address.
func (s *ServiceInstance) ServiceLocation() string { return s.serviceLocation }

// Equipment returns the equipment identifiers installed for this service.
func (s *ServiceInstance) Equipment() []string { return s.equipment }

// VLANID returns the service VLAN, or 0.
func (s *ServiceInstance) VLANID() int { return s.vlanID }

// LastHealthCheckAt returns when the last health check ran, or nil.
func (s *ServiceInstance) LastHealthCheckAt() *time.Time { return s.lastHealthCheckAt }

// LastHealthCheckResult returns the last health check outcome label.
func (s *ServiceInstance) LastHealthCheckResult() string { return s.lastHealthCheckResult }

// Metadata returns the free-form metadata map.
func (s *ServiceInstance) Metadata() map[string]any { return s.metadata }

// CreatedAt returns when this instance was created.
func (s *ServiceInstance) CreatedAt() time.Time { return s.createdAt }

// ProvisioningStartedAt returns when provisioning began, or nil.
func (s *ServiceInstance) ProvisioningStartedAt() *time.Time { return s.provisioningStartedAt }

// ProvisionedAt returns when provisioning finished, or nil.
func (s *ServiceInstance) ProvisionedAt() *time.Time { return s.provisionedAt }

// ActivatedAt returns when the service last became active, or nil.
func (s *ServiceInstance) ActivatedAt() *time.Time { return s.activatedAt }

// SuspendedAt returns when the service was last suspended, or nil.
func (s *ServiceInstance) SuspendedAt() *time.Time { return s.suspendedAt }

// TerminatedAt returns when the service terminated, or nil.
func (s *ServiceInstance) TerminatedAt() *time.Time { return s.terminatedAt }

// UpdatedAt returns when this instance was last updated.
func (s *ServiceInstance) UpdatedAt() time.Time { return s.updatedAt }

// SetID sets the database identifier for this instance.
// This is typically called by the persistence layer after inserting a new instance.
func (s *ServiceInstance) SetID(id int64) { s.id = id }

// SetSubscriberID sets the subscriber back-reference.
func (s *ServiceInstance) SetSubscriberID(subscriberID string) {
	s.subscriberID = subscriberID
	s.updatedAt = time.Now()
}

// SetCustomerID sets the customer link.
func (s *ServiceInstance) SetCustomerID(customerID string) {
	s.customerID = customerID
	s.updatedAt = time.Now()
}

// SetSubscriptionID sets the billing subscription link.
func (s *ServiceInstance) SetSubscriptionID(subscriptionID string) {
	s.subscriptionID = subscriptionID
	s.updatedAt = time.Now()
}

// SetName sets the human-readable service name.
func (s *ServiceInstance) SetName(name string) {
	s.name = name
	s.updatedAt = time.Now()
}

// SetServiceType sets the service type label.
func (s *ServiceInstance) SetServiceType(serviceType string) {
	s.serviceType = serviceType
	s.updatedAt = time.Now()
}

// SetPlanID sets the commercial plan identifier.
func (s *ServiceInstance) SetPlanID(planID string) {
	s.planID = planID
	s.updatedAt = time.Now()
}

// SetProvisioningStatus sets the provisioning sub-status label.
func (s *ServiceInstance) SetProvisioningStatus(status string) {
	s.provisioningStatus = status
	s.updatedAt = time.Now()
}

// SetWorkflowID links the provisioning workflow.
func (s *ServiceInstance) SetWorkflowID(workflowID string) {
	s.workflowID = workflowID
	s.updatedAt = time.Now()
}

// SetServiceLocation sets the installation address.
func (s *ServiceInstance) SetServiceLocation(location string) {
	s.serviceLocation = location
	s.updatedAt = time.Now()
}

// SetEquipment replaces the equipment list.
func (s *ServiceInstance) SetEquipment(equipment []string) {
	s.equipment = equipment
	s.updatedAt = time.Now()
}

// SetVLANID sets the service VLAN.
func (s *ServiceInstance) SetVLANID(vlanID int) {
	s.vlanID = vlanID
	s.updatedAt = time.Now()
}

// SetMetadata replaces the free-form metadata map.
func (s *ServiceInstance) SetMetadata(metadata map[string]any) {
	s.metadata = metadata
	s.updatedAt = time.Now()
}

// PutMetadata sets one metadata key, allocating the map if needed.
func (s *ServiceInstance) PutMetadata(key string, value any) {
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.metadata[key] = value
	s.updatedAt = time.Now()
}

// DeleteMetadata removes one metadata key if present.
func (s *ServiceInstance) DeleteMetadata(key string) {
	if s.metadata == nil {
		return
	}
	delete(s.metadata, key)
	s.updatedAt = time.Now()
}

// StartProvisioning transitions the instance to provisioning.
func (s *ServiceInstance) StartProvisioning() {
	now := time.Now()
	s.status = ServiceStatusProvisioning
	s.provisioningStartedAt = &now
	s.updatedAt = now
}

// Activate transitions the instance to active, clearing suspension fields.
// The first activation also stamps provisionedAt.
func (s *ServiceInstance) Activate() {
	now := time.Now()
	if s.status == ServiceStatusProvisioning && s.provisionedAt == nil {
		s.provisionedAt = &now
	}
	s.status = ServiceStatusActive
	s.activatedAt = &now
	s.suspensionType = ""
	s.suspensionReason = ""
	s.autoResumeAt = nil
	s.updatedAt = now
}

// Suspend transitions the instance to the suspended status selected by the
// suspension type, recording the reason and optional auto-resume time.
func (s *ServiceInstance) Suspend(suspensionType SuspensionType, reason string, autoResumeAt *time.Time) {
	now := time.Now()
	s.status = suspensionType.TargetStatus()
	s.suspensionType = suspensionType
	s.suspensionReason = reason
	s.autoResumeAt = autoResumeAt
	s.suspendedAt = &now
	s.updatedAt = now
}

// MarkTerminating records a future-dated termination.
func (s *ServiceInstance) MarkTerminating(scheduledDate time.Time) {
	s.status = ServiceStatusTerminating
	s.PutMetadata(MetadataKeyScheduledTermination, scheduledDate.UTC().Format(time.RFC3339))
	s.updatedAt = time.Now()
}

// Terminate transitions the instance to terminated and sets terminatedAt.
func (s *ServiceInstance) Terminate() {
	now := time.Now()
	s.status = ServiceStatusTerminated
	s.terminatedAt = &now
	s.updatedAt = now
}

// MarkFailed transitions the instance to failed.
func (s *ServiceInstance) MarkFailed() {
	s.status = ServiceStatusFailed
	s.updatedAt = time.Now()
}

// RecordHealthCheck stores the outcome of a health check.
func (s *ServiceInstance) RecordHealthCheck(result string) {
	now := time.Now()
	s.lastHealthCheckAt = &now
	s.lastHealthCheckResult = result
	s.updatedAt = now
}

// ScheduledTerminationDate returns the parsed metadata termination date, or
// nil when none is recorded.
func (s *ServiceInstance) ScheduledTerminationDate() *time.Time {
	return s.metadataTime(MetadataKeyScheduledTermination)
}

// ScheduledActivationDate returns the parsed metadata activation date, or
// nil when none is recorded.
func (s *ServiceInstance) ScheduledActivationDate() *time.Time {
	return s.metadataTime(MetadataKeyScheduledActivation)
}

func (s *ServiceInstance) metadataTime(key string) *time.Time {
	if s.metadata == nil {
		return nil
	}
	raw, ok := s.metadata[key].(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
