package sqlite

import (
	"encoding/json"
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// WorkflowModel represents the database row for the workflows table.
// Fields map directly to SQL columns with Unix timestamps for time values
// and JSON-encoded TEXT for map payloads.
type WorkflowModel struct {
	ID            int64
	WorkflowID    string
	Kind          string
	Status        string
	TenantID      string
	SubscriberID  *string // nullable
	Initiator     *string // nullable
	InitiatorKind string

	InputData  *string // nullable, JSON encoded
	OutputData *string // nullable, JSON encoded
	Context    *string // nullable, JSON encoded

	// Progress tracking
	CurrentStep int
	TotalSteps  int
	RetryCount  int
	MaxRetries  int

	ErrorMessage      *string // nullable
	CompensationError *string // nullable

	// Timestamps
	CreatedAt               int64  // Unix timestamp
	StartedAt               *int64 // Unix timestamp, nullable
	CompletedAt             *int64 // Unix timestamp, nullable
	FailedAt                *int64 // Unix timestamp, nullable
	CompensationStartedAt   *int64 // Unix timestamp, nullable
	CompensationCompletedAt *int64 // Unix timestamp, nullable
	UpdatedAt               int64  // Unix timestamp
}

// toWorkflowModel converts a domain Workflow entity to a database model.
func toWorkflowModel(w *domain.Workflow) *WorkflowModel {
	return &WorkflowModel{
		ID:                      w.ID(),
		WorkflowID:              w.WorkflowID(),
		Kind:                    string(w.Kind()),
		Status:                  string(w.Status()),
		TenantID:                w.TenantID(),
		SubscriberID:            stringPtr(w.SubscriberID()),
		Initiator:               stringPtr(w.Initiator()),
		InitiatorKind:           string(w.InitiatorKind()),
		InputData:               jsonPtr(w.InputData()),
		OutputData:              jsonPtr(w.OutputData()),
		Context:                 jsonPtr(w.Context()),
		CurrentStep:             w.CurrentStep(),
		TotalSteps:              w.TotalSteps(),
		RetryCount:              w.RetryCount(),
		MaxRetries:              w.MaxRetries(),
		ErrorMessage:            stringPtr(w.ErrorMessage()),
		CompensationError:       stringPtr(w.CompensationError()),
		CreatedAt:               w.CreatedAt().Unix(),
		StartedAt:               unixPtr(w.StartedAt()),
		CompletedAt:             unixPtr(w.CompletedAt()),
		FailedAt:                unixPtr(w.FailedAt()),
		CompensationStartedAt:   unixPtr(w.CompensationStartedAt()),
		CompensationCompletedAt: unixPtr(w.CompensationCompletedAt()),
		UpdatedAt:               w.UpdatedAt().Unix(),
	}
}

// toDomain converts a database WorkflowModel to a domain Workflow entity.
func (m *WorkflowModel) toDomain() *domain.Workflow {
	return domain.ReconstituteWorkflow(
		m.ID,
		m.WorkflowID,
		domain.WorkflowKind(m.Kind),
		domain.WorkflowStatus(m.Status),
		m.TenantID,
		derefString(m.SubscriberID),
		derefString(m.Initiator),
		domain.InitiatorKind(m.InitiatorKind),
		derefJSON(m.InputData),
		derefJSON(m.OutputData),
		derefJSON(m.Context),
		m.CurrentStep, m.TotalSteps,
		m.RetryCount, m.MaxRetries,
		derefString(m.ErrorMessage),
		derefString(m.CompensationError),
		time.Unix(m.CreatedAt, 0),
		timePtr(m.StartedAt),
		timePtr(m.CompletedAt),
		timePtr(m.FailedAt),
		timePtr(m.CompensationStartedAt),
		timePtr(m.CompensationCompletedAt),
		time.Unix(m.UpdatedAt, 0),
	)
}

// StepModel represents the database row for the workflow_steps table.
type StepModel struct {
	ID           int64
	WorkflowID   int64
	Name         string
	Sequence     int
	Kind         string
	TargetSystem *string // nullable
	Status       string

	HandlerName             *string // nullable
	CompensationHandlerName *string // nullable

	InputData        *string // nullable, JSON encoded
	OutputData       *string // nullable, JSON encoded
	CompensationData *string // nullable, JSON encoded

	RetryCount int
	MaxRetries int

	ErrorMessage      *string // nullable
	CompensationError *string // nullable

	// Timestamps
	CreatedAt     int64  // Unix timestamp
	StartedAt     *int64 // Unix timestamp, nullable
	CompletedAt   *int64 // Unix timestamp, nullable
	CompensatedAt *int64 // Unix timestamp, nullable
	UpdatedAt     int64  // Unix timestamp
}

// toStepModel converts a domain WorkflowStep entity to a database model.
func toStepModel(s *domain.WorkflowStep) *StepModel {
	return &StepModel{
		ID:                      s.ID(),
		WorkflowID:              s.WorkflowID(),
		Name:                    s.Name(),
		Sequence:                s.Sequence(),
		Kind:                    string(s.Kind()),
		TargetSystem:            stringPtr(s.TargetSystem()),
		Status:                  string(s.Status()),
		HandlerName:             stringPtr(s.HandlerName()),
		CompensationHandlerName: stringPtr(s.CompensationHandlerName()),
		InputData:               jsonPtr(s.InputData()),
		OutputData:              jsonPtr(s.OutputData()),
		CompensationData:        jsonPtr(s.CompensationData()),
		RetryCount:              s.RetryCount(),
		MaxRetries:              s.MaxRetries(),
		ErrorMessage:            stringPtr(s.ErrorMessage()),
		CompensationError:       stringPtr(s.CompensationError()),
		CreatedAt:               s.CreatedAt().Unix(),
		StartedAt:               unixPtr(s.StartedAt()),
		CompletedAt:             unixPtr(s.CompletedAt()),
		CompensatedAt:           unixPtr(s.CompensatedAt()),
		UpdatedAt:               s.UpdatedAt().Unix(),
	}
}

// toDomain converts a database StepModel to a domain WorkflowStep entity.
func (m *StepModel) toDomain() *domain.WorkflowStep {
	return domain.ReconstituteWorkflowStep(
		m.ID, m.WorkflowID,
		m.Name,
		m.Sequence,
		domain.StepKind(m.Kind),
		derefString(m.TargetSystem),
		domain.StepStatus(m.Status),
		derefString(m.HandlerName),
		derefString(m.CompensationHandlerName),
		derefJSON(m.InputData),
		derefJSON(m.OutputData),
		derefJSON(m.CompensationData),
		m.RetryCount, m.MaxRetries,
		derefString(m.ErrorMessage),
		derefString(m.CompensationError),
		time.Unix(m.CreatedAt, 0),
		timePtr(m.StartedAt),
		timePtr(m.CompletedAt),
		timePtr(m.CompensatedAt),
		time.Unix(m.UpdatedAt, 0),
	)
}

// ServiceModel represents the database row for the service_instances table.
// Scheduled activation/termination dates live in the metadata map on the
// entity but are mirrored into indexed columns so the scheduler can sweep
// them with SQL instead of scanning JSON.
type ServiceModel struct {
	ID                int64
	ServiceInstanceID string
	ServiceID         string
	TenantID          string
	SubscriberID      *string // nullable
	CustomerID        *string // nullable
	SubscriptionID    *string // nullable

	Name        *string // nullable
	ServiceType *string // nullable
	PlanID      *string // nullable
	Status      string

	ProvisioningStatus *string // nullable
	WorkflowID         *string // nullable

	// Suspension state
	SuspensionType   *string // nullable
	SuspensionReason *string // nullable
	AutoResumeAt     *int64  // Unix timestamp, nullable

	ServiceLocation *string // nullable
	Equipment       *string // nullable, JSON encoded
	VLANID          int

	LastHealthCheckAt     *int64  // Unix timestamp, nullable
	LastHealthCheckResult *string // nullable

	Metadata *string // nullable, JSON encoded

	ScheduledActivationAt  *int64 // Unix timestamp, nullable
	ScheduledTerminationAt *int64 // Unix timestamp, nullable

	// Timestamps
	CreatedAt             int64  // Unix timestamp
	ProvisioningStartedAt *int64 // Unix timestamp, nullable
	ProvisionedAt         *int64 // Unix timestamp, nullable
	ActivatedAt           *int64 // Unix timestamp, nullable
	SuspendedAt           *int64 // Unix timestamp, nullable
	TerminatedAt          *int64 // Unix timestamp, nullable
	UpdatedAt             int64  // Unix timestamp
}

// toServiceModel converts a domain ServiceInstance entity to a database model.
func toServiceModel(s *domain.ServiceInstance) *ServiceModel {
	m := &ServiceModel{
		ID:                     s.ID(),
		ServiceInstanceID:      s.ServiceInstanceID(),
		ServiceID:              s.ServiceID(),
		TenantID:               s.TenantID(),
		SubscriberID:           stringPtr(s.SubscriberID()),
		CustomerID:             stringPtr(s.CustomerID()),
		SubscriptionID:         stringPtr(s.SubscriptionID()),
		Name:                   stringPtr(s.Name()),
		ServiceType:            stringPtr(s.ServiceType()),
		PlanID:                 stringPtr(s.PlanID()),
		Status:                 string(s.Status()),
		ProvisioningStatus:     stringPtr(s.ProvisioningStatus()),
		WorkflowID:             stringPtr(s.WorkflowID()),
		SuspensionType:         stringPtr(string(s.SuspensionType())),
		SuspensionReason:       stringPtr(s.SuspensionReason()),
		AutoResumeAt:           unixPtr(s.AutoResumeAt()),
		ServiceLocation:        stringPtr(s.ServiceLocation()),
		VLANID:                 s.VLANID(),
		LastHealthCheckAt:      unixPtr(s.LastHealthCheckAt()),
		LastHealthCheckResult:  stringPtr(s.LastHealthCheckResult()),
		Metadata:               jsonPtr(s.Metadata()),
		ScheduledActivationAt:  unixPtr(s.ScheduledActivationDate()),
		ScheduledTerminationAt: unixPtr(s.ScheduledTerminationDate()),
		CreatedAt:              s.CreatedAt().Unix(),
		ProvisioningStartedAt:  unixPtr(s.ProvisioningStartedAt()),
		ProvisionedAt:          unixPtr(s.ProvisionedAt()),
		ActivatedAt:            unixPtr(s.ActivatedAt()),
		SuspendedAt:            unixPtr(s.SuspendedAt()),
		TerminatedAt:           unixPtr(s.TerminatedAt()),
		UpdatedAt:              s.UpdatedAt().Unix(),
	}
	if len(s.Equipment()) > 0 {
		if raw, err := json.Marshal(s.Equipment()); err == nil {
			enc := string(raw)
			m.Equipment = &enc
		}
	}
	return m
}

// toDomain converts a database ServiceModel to a domain ServiceInstance entity.
func (m *ServiceModel) toDomain() *domain.ServiceInstance {
	var equipment []string
	if m.Equipment != nil {
		_ = json.Unmarshal([]byte(*m.Equipment), &equipment)
	}
	return domain.ReconstituteServiceInstance(
		m.ID,
		m.ServiceInstanceID, m.ServiceID, m.TenantID,
		derefString(m.SubscriberID),
		derefString(m.CustomerID),
		derefString(m.SubscriptionID),
		derefString(m.Name),
		derefString(m.ServiceType),
		derefString(m.PlanID),
		domain.ServiceStatus(m.Status),
		derefString(m.ProvisioningStatus),
		derefString(m.WorkflowID),
		domain.SuspensionType(derefString(m.SuspensionType)),
		derefString(m.SuspensionReason),
		timePtr(m.AutoResumeAt),
		derefString(m.ServiceLocation),
		equipment,
		m.VLANID,
		timePtr(m.LastHealthCheckAt),
		derefString(m.LastHealthCheckResult),
		derefJSON(m.Metadata),
		time.Unix(m.CreatedAt, 0),
		timePtr(m.ProvisioningStartedAt),
		timePtr(m.ProvisionedAt),
		timePtr(m.ActivatedAt),
		timePtr(m.SuspendedAt),
		timePtr(m.TerminatedAt),
		time.Unix(m.UpdatedAt, 0),
	)
}

// ProfileModel represents the database row for the network_profiles table.
type ProfileModel struct {
	ID           int64
	SubscriberID string
	TenantID     string

	CircuitID *string // nullable
	RemoteID  *string // nullable

	// VLAN configuration
	ServiceVLAN int
	InnerVLAN   int
	QinQEnabled bool

	StaticIPv4 *string // nullable
	StaticIPv6 *string // nullable

	// IPv4 lifecycle
	IPv4Address     *string // nullable
	IPv4State       string
	IPv4IPAMID      *string // nullable
	IPv4AllocatedAt *int64  // Unix timestamp, nullable
	IPv4ActivatedAt *int64  // Unix timestamp, nullable
	IPv4SuspendedAt *int64  // Unix timestamp, nullable
	IPv4RevokedAt   *int64  // Unix timestamp, nullable

	// IPv6 lifecycle
	IPv6AssignmentMode string
	DelegatedPrefix    *string // nullable
	PrefixLength       int
	IPv6State          string
	IPv6IPAMID         *string // nullable
	IPv6AllocatedAt    *int64  // Unix timestamp, nullable
	IPv6ActivatedAt    *int64  // Unix timestamp, nullable
	IPv6SuspendedAt    *int64  // Unix timestamp, nullable
	IPv6RevokedAt      *int64  // Unix timestamp, nullable

	Option82Policy string
	RadiusUsername *string // nullable
	Metadata       *string // nullable, JSON encoded

	// Timestamps
	CreatedAt int64  // Unix timestamp
	UpdatedAt int64  // Unix timestamp
	DeletedAt *int64 // Unix timestamp, nullable
}

// toProfileModel converts a domain profile entity to a database model.
func toProfileModel(p *domain.SubscriberNetworkProfile) *ProfileModel {
	return &ProfileModel{
		ID:                 p.ID(),
		SubscriberID:       p.SubscriberID(),
		TenantID:           p.TenantID(),
		CircuitID:          stringPtr(p.CircuitID()),
		RemoteID:           stringPtr(p.RemoteID()),
		ServiceVLAN:        p.ServiceVLAN(),
		InnerVLAN:          p.InnerVLAN(),
		QinQEnabled:        p.QinQEnabled(),
		StaticIPv4:         stringPtr(p.StaticIPv4()),
		StaticIPv6:         stringPtr(p.StaticIPv6()),
		IPv4Address:        stringPtr(p.IPv4Address()),
		IPv4State:          string(p.IPv4State()),
		IPv4IPAMID:         stringPtr(p.IPv4IPAMID()),
		IPv4AllocatedAt:    unixPtr(p.IPv4AllocatedAt()),
		IPv4ActivatedAt:    unixPtr(p.IPv4ActivatedAt()),
		IPv4SuspendedAt:    unixPtr(p.IPv4SuspendedAt()),
		IPv4RevokedAt:      unixPtr(p.IPv4RevokedAt()),
		IPv6AssignmentMode: string(p.IPv6AssignmentMode()),
		DelegatedPrefix:    stringPtr(p.DelegatedPrefix()),
		PrefixLength:       p.PrefixLength(),
		IPv6State:          string(p.IPv6State()),
		IPv6IPAMID:         stringPtr(p.IPv6IPAMID()),
		IPv6AllocatedAt:    unixPtr(p.IPv6AllocatedAt()),
		IPv6ActivatedAt:    unixPtr(p.IPv6ActivatedAt()),
		IPv6SuspendedAt:    unixPtr(p.IPv6SuspendedAt()),
		IPv6RevokedAt:      unixPtr(p.IPv6RevokedAt()),
		Option82Policy:     string(p.Option82Policy()),
		RadiusUsername:     stringPtr(p.RadiusUsername()),
		Metadata:           jsonPtr(p.Metadata()),
		CreatedAt:          p.CreatedAt().Unix(),
		UpdatedAt:          p.UpdatedAt().Unix(),
		DeletedAt:          unixPtr(p.DeletedAt()),
	}
}

// toDomain converts a database ProfileModel to a domain profile entity.
func (m *ProfileModel) toDomain() *domain.SubscriberNetworkProfile {
	return domain.ReconstituteSubscriberNetworkProfile(
		m.ID,
		m.SubscriberID, m.TenantID,
		derefString(m.CircuitID),
		derefString(m.RemoteID),
		m.ServiceVLAN, m.InnerVLAN,
		m.QinQEnabled,
		derefString(m.StaticIPv4),
		derefString(m.StaticIPv6),
		derefString(m.IPv4Address),
		domain.AddressState(m.IPv4State),
		derefString(m.IPv4IPAMID),
		timePtr(m.IPv4AllocatedAt),
		timePtr(m.IPv4ActivatedAt),
		timePtr(m.IPv4SuspendedAt),
		timePtr(m.IPv4RevokedAt),
		domain.IPv6AssignmentMode(m.IPv6AssignmentMode),
		derefString(m.DelegatedPrefix),
		m.PrefixLength,
		domain.AddressState(m.IPv6State),
		derefString(m.IPv6IPAMID),
		timePtr(m.IPv6AllocatedAt),
		timePtr(m.IPv6ActivatedAt),
		timePtr(m.IPv6SuspendedAt),
		timePtr(m.IPv6RevokedAt),
		domain.Option82Policy(m.Option82Policy),
		derefString(m.RadiusUsername),
		derefJSON(m.Metadata),
		time.Unix(m.CreatedAt, 0),
		time.Unix(m.UpdatedAt, 0),
		timePtr(m.DeletedAt),
	)
}

// EventModel represents the database row for the lifecycle_events table.
type EventModel struct {
	ID                int64
	EventID           string
	Kind              string
	ServiceInstanceID string
	TenantID          string
	PreviousStatus    *string // nullable
	NewStatus         *string // nullable
	Description       *string // nullable
	Success           bool
	TriggeredBy       *string // nullable
	EventData         *string // nullable, JSON encoded
	DurationMS        int64
	CreatedAt         int64 // Unix timestamp
}

// toEventModel converts a domain LifecycleEvent to a database model.
func toEventModel(e *domain.LifecycleEvent) *EventModel {
	return &EventModel{
		ID:                e.ID(),
		EventID:           e.EventID(),
		Kind:              string(e.Kind()),
		ServiceInstanceID: e.ServiceInstanceID(),
		TenantID:          e.TenantID(),
		PreviousStatus:    stringPtr(string(e.PreviousStatus())),
		NewStatus:         stringPtr(string(e.NewStatus())),
		Description:       stringPtr(e.Description()),
		Success:           e.Success(),
		TriggeredBy:       stringPtr(e.TriggeredBy()),
		EventData:         jsonPtr(e.EventData()),
		DurationMS:        e.DurationMS(),
		CreatedAt:         e.CreatedAt().Unix(),
	}
}

// toDomain converts a database EventModel to a domain LifecycleEvent.
func (m *EventModel) toDomain() *domain.LifecycleEvent {
	return domain.ReconstituteLifecycleEvent(
		m.ID,
		m.EventID,
		domain.LifecycleEventKind(m.Kind),
		m.ServiceInstanceID, m.TenantID,
		domain.ServiceStatus(derefString(m.PreviousStatus)),
		domain.ServiceStatus(derefString(m.NewStatus)),
		derefString(m.Description),
		m.Success,
		derefString(m.TriggeredBy),
		derefJSON(m.EventData),
		m.DurationMS,
		time.Unix(m.CreatedAt, 0),
	)
}

// stringPtr returns nil for an empty string so the column stores NULL.
func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// jsonPtr JSON-encodes a non-empty map, returning nil for NULL storage.
func jsonPtr(m map[string]any) *string {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	enc := string(raw)
	return &enc
}

func derefJSON(s *string) map[string]any {
	if s == nil {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal([]byte(*s), &m)
	return m
}

// unixPtr converts an optional time to an optional Unix timestamp.
func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	unix := t.Unix()
	return &unix
}

func timePtr(unix *int64) *time.Time {
	if unix == nil {
		return nil
	}
	t := time.Unix(*unix, 0)
	return &t
}
