package testutil

import (
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// workflowData holds all data for a workflow row to be inserted.
type workflowData struct {
	workflowID    string
	kind          domain.WorkflowKind
	status        domain.WorkflowStatus
	subscriberID  string
	initiator     string
	initiatorKind domain.InitiatorKind
	input         map[string]any
	context       map[string]any
	currentStep   int
	totalSteps    int
	retryCount    int
	maxRetries    int
	errorMessage  string
	createdAt     time.Time
	startedAt     *time.Time
	completedAt   *time.Time
	failedAt      *time.Time
	steps         []stepData
}

func defaultWorkflow(workflowID string, kind domain.WorkflowKind) workflowData {
	now := time.Now()
	return workflowData{
		workflowID:    workflowID,
		kind:          kind,
		status:        domain.WorkflowStatusPending,
		initiatorKind: domain.InitiatorKindSystem,
		maxRetries:    3,
		createdAt:     now,
	}
}

// WorkflowOption configures a workflow fixture.
type WorkflowOption func(*workflowData)

// WorkflowStatus sets the workflow status. Terminal statuses also get the
// matching timestamp so aggregate queries see a consistent row.
func WorkflowStatus(status domain.WorkflowStatus) WorkflowOption {
	return func(w *workflowData) {
		w.status = status
		now := time.Now()
		switch status {
		case domain.WorkflowStatusCompleted:
			if w.completedAt == nil {
				w.completedAt = &now
			}
		case domain.WorkflowStatusFailed, domain.WorkflowStatusRolledBack, domain.WorkflowStatusRollbackFailed:
			if w.failedAt == nil {
				w.failedAt = &now
			}
		}
		if status != domain.WorkflowStatusPending && w.startedAt == nil {
			w.startedAt = &now
		}
	}
}

// WorkflowSubscriber sets the subscriber the run concerns.
func WorkflowSubscriber(subscriberID string) WorkflowOption {
	return func(w *workflowData) { w.subscriberID = subscriberID }
}

// WorkflowInitiator sets who started the run.
func WorkflowInitiator(name string, kind domain.InitiatorKind) WorkflowOption {
	return func(w *workflowData) {
		w.initiator = name
		w.initiatorKind = kind
	}
}

// WorkflowInput sets the input payload.
func WorkflowInput(input map[string]any) WorkflowOption {
	return func(w *workflowData) { w.input = input }
}

// WorkflowContext sets the persisted run context.
func WorkflowContext(ctx map[string]any) WorkflowOption {
	return func(w *workflowData) { w.context = ctx }
}

// WorkflowProgress sets the current and total step counters.
func WorkflowProgress(current, total int) WorkflowOption {
	return func(w *workflowData) {
		w.currentStep = current
		w.totalSteps = total
	}
}

// WorkflowRetries sets the consumed and budgeted retry counts.
func WorkflowRetries(count, max int) WorkflowOption {
	return func(w *workflowData) {
		w.retryCount = count
		w.maxRetries = max
	}
}

// WorkflowError sets the forward-pass error message.
func WorkflowError(msg string) WorkflowOption {
	return func(w *workflowData) { w.errorMessage = msg }
}

// WorkflowCreatedAt sets the created_at timestamp.
func WorkflowCreatedAt(t time.Time) WorkflowOption {
	return func(w *workflowData) { w.createdAt = t }
}

// WorkflowCompletedAt sets the completed_at timestamp explicitly.
func WorkflowCompletedAt(t time.Time) WorkflowOption {
	return func(w *workflowData) { w.completedAt = &t }
}

// WorkflowFailedAt sets the failed_at timestamp explicitly.
func WorkflowFailedAt(t time.Time) WorkflowOption {
	return func(w *workflowData) { w.failedAt = &t }
}

// stepData holds all data for a step row to be inserted.
type stepData struct {
	name             string
	sequence         int
	status           domain.StepStatus
	targetSystem     string
	handlerName      string
	compensationName string
	output           map[string]any
	compensationData map[string]any
	errorMessage     string
	compensatedAt    *time.Time
}

// StepOption configures a step fixture.
type StepOption func(*stepData)

// StepStatus sets the step status. Compensated steps get a compensated_at
// timestamp so CountCompensated sees them.
func StepStatus(status domain.StepStatus) StepOption {
	return func(s *stepData) {
		s.status = status
		if status == domain.StepStatusCompensated && s.compensatedAt == nil {
			now := time.Now()
			s.compensatedAt = &now
		}
	}
}

// StepTarget sets the external system label.
func StepTarget(system string) StepOption {
	return func(s *stepData) { s.targetSystem = system }
}

// StepHandlers sets the forward and compensation handler names.
func StepHandlers(forward, compensation string) StepOption {
	return func(s *stepData) {
		s.handlerName = forward
		s.compensationName = compensation
	}
}

// StepOutput sets the forward handler's output payload.
func StepOutput(output map[string]any) StepOption {
	return func(s *stepData) { s.output = output }
}

// StepCompensationData sets what the forward handler stored for its compensator.
func StepCompensationData(data map[string]any) StepOption {
	return func(s *stepData) { s.compensationData = data }
}

// StepError sets the step error message.
func StepError(msg string) StepOption {
	return func(s *stepData) { s.errorMessage = msg }
}

// serviceData holds all data for a service instance row to be inserted.
type serviceData struct {
	instanceID   string
	serviceID    string
	subscriberID string
	customerID   string
	name         string
	planID       string
	status       domain.ServiceStatus
	workflowID   string
	createdAt    time.Time
	activatedAt  *time.Time
}

func defaultService(instanceID string) serviceData {
	return serviceData{
		instanceID: instanceID,
		serviceID:  instanceID,
		status:     domain.ServiceStatusPending,
		createdAt:  time.Now(),
	}
}

// ServiceOption configures a service instance fixture.
type ServiceOption func(*serviceData)

// ServiceStatus sets the instance status; active instances get activated_at.
func ServiceStatus(status domain.ServiceStatus) ServiceOption {
	return func(s *serviceData) {
		s.status = status
		if status == domain.ServiceStatusActive && s.activatedAt == nil {
			now := time.Now()
			s.activatedAt = &now
		}
	}
}

// ServiceSubscriber sets the subscriber back-reference.
func ServiceSubscriber(subscriberID string) ServiceOption {
	return func(s *serviceData) { s.subscriberID = subscriberID }
}

// ServiceCustomer sets the customer link.
func ServiceCustomer(customerID string) ServiceOption {
	return func(s *serviceData) { s.customerID = customerID }
}

// ServiceName sets the human-readable name.
func ServiceName(name string) ServiceOption {
	return func(s *serviceData) { s.name = name }
}

// ServicePlan sets the commercial plan identifier.
func ServicePlan(planID string) ServiceOption {
	return func(s *serviceData) { s.planID = planID }
}

// ServiceWorkflow links the instance to its provisioning run.
func ServiceWorkflow(workflowID string) ServiceOption {
	return func(s *serviceData) { s.workflowID = workflowID }
}

// ServiceCreatedAt sets the created_at timestamp.
func ServiceCreatedAt(t time.Time) ServiceOption {
	return func(s *serviceData) { s.createdAt = t }
}

// profileData holds all data for a network profile row to be inserted.
type profileData struct {
	subscriberID   string
	ipv4Address    string
	ipv4State      domain.AddressState
	ipv6Prefix     string
	prefixLength   int
	ipv6State      domain.AddressState
	ipv6Mode       domain.IPv6AssignmentMode
	serviceVLAN    int
	innerVLAN      int
	circuitID      string
	remoteID       string
	radiusUsername string
}

func defaultProfile(subscriberID string) profileData {
	return profileData{
		subscriberID: subscriberID,
		ipv4State:    domain.AddressStatePending,
		ipv6State:    domain.AddressStatePending,
		ipv6Mode:     domain.IPv6AssignmentNone,
	}
}

// ProfileOption configures a network profile fixture.
type ProfileOption func(*profileData)

// ProfileIPv4 sets the IPv4 address and its machine state.
func ProfileIPv4(address string, state domain.AddressState) ProfileOption {
	return func(p *profileData) {
		p.ipv4Address = address
		p.ipv4State = state
	}
}

// ProfileIPv6 sets the delegated prefix, its length, and the machine state.
func ProfileIPv6(prefix string, length int, state domain.AddressState) ProfileOption {
	return func(p *profileData) {
		p.ipv6Prefix = prefix
		p.prefixLength = length
		p.ipv6State = state
		if p.ipv6Mode == domain.IPv6AssignmentNone {
			p.ipv6Mode = domain.IPv6AssignmentPrefixDelegation
		}
	}
}

// ProfileVLANs sets the outer and inner VLAN ids.
func ProfileVLANs(service, inner int) ProfileOption {
	return func(p *profileData) {
		p.serviceVLAN = service
		p.innerVLAN = inner
	}
}

// ProfileCircuit sets the expected Option 82 identifiers.
func ProfileCircuit(circuitID, remoteID string) ProfileOption {
	return func(p *profileData) {
		p.circuitID = circuitID
		p.remoteID = remoteID
	}
}

// ProfileRadiusUsername sets the RADIUS account name.
func ProfileRadiusUsername(username string) ProfileOption {
	return func(p *profileData) { p.radiusUsername = username }
}
