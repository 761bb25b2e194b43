package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
)

// Builder accumulates fixture rows and inserts them in dependency order:
// workflows first (steps need the parent's database id), then services and
// profiles.
type Builder struct {
	t         *testing.T
	db        *sqlite.DB
	tenantID  string
	workflows []workflowData
	services  []serviceData
	profiles  []profileData
}

// NewBuilder creates a builder for the given test database and tenant.
func NewBuilder(t *testing.T, db *sqlite.DB, tenantID string) *Builder {
	t.Helper()
	return &Builder{t: t, db: db, tenantID: tenantID}
}

// WithWorkflow adds a workflow run with optional configuration.
func (b *Builder) WithWorkflow(workflowID string, kind domain.WorkflowKind, opts ...WorkflowOption) *Builder {
	wf := defaultWorkflow(workflowID, kind)
	for _, opt := range opts {
		opt(&wf)
	}
	b.workflows = append(b.workflows, wf)
	return b
}

// WithStep adds a step to the most recently added workflow.
func (b *Builder) WithStep(name string, sequence int, opts ...StepOption) *Builder {
	require.NotEmpty(b.t, b.workflows, "WithStep needs a preceding WithWorkflow")
	step := stepData{name: name, sequence: sequence, status: domain.StepStatusPending}
	for _, opt := range opts {
		opt(&step)
	}
	last := len(b.workflows) - 1
	b.workflows[last].steps = append(b.workflows[last].steps, step)
	if b.workflows[last].totalSteps < sequence+1 {
		b.workflows[last].totalSteps = sequence + 1
	}
	return b
}

// WithService adds a service instance with optional configuration.
func (b *Builder) WithService(instanceID string, opts ...ServiceOption) *Builder {
	svc := defaultService(instanceID)
	for _, opt := range opts {
		opt(&svc)
	}
	b.services = append(b.services, svc)
	return b
}

// WithProfile adds a subscriber network profile with optional configuration.
func (b *Builder) WithProfile(subscriberID string, opts ...ProfileOption) *Builder {
	p := defaultProfile(subscriberID)
	for _, opt := range opts {
		opt(&p)
	}
	b.profiles = append(b.profiles, p)
	return b
}

// Build inserts all accumulated data into the database.
func (b *Builder) Build() {
	b.t.Helper()
	for _, wf := range b.workflows {
		b.insertWorkflow(wf)
	}
	for _, svc := range b.services {
		b.insertService(svc)
	}
	for _, p := range b.profiles {
		b.insertProfile(p)
	}
}

func (b *Builder) insertWorkflow(data workflowData) {
	b.t.Helper()
	wf := domain.ReconstituteWorkflow(
		0, data.workflowID, data.kind, data.status,
		b.tenantID, data.subscriberID,
		data.initiator, data.initiatorKind,
		data.input, nil, data.context,
		data.currentStep, data.totalSteps,
		data.retryCount, data.maxRetries,
		data.errorMessage, "",
		data.createdAt,
		data.startedAt, data.completedAt, data.failedAt, nil, nil,
		data.createdAt,
	)
	require.NoError(b.t, b.db.WorkflowRepository().Save(wf))

	for _, sd := range data.steps {
		b.insertStep(wf.ID(), sd)
	}
}

func (b *Builder) insertStep(workflowID int64, data stepData) {
	b.t.Helper()
	now := time.Now()
	var startedAt, completedAt *time.Time
	if data.status != domain.StepStatusPending {
		startedAt = &now
	}
	if data.status == domain.StepStatusCompleted || data.status == domain.StepStatusCompensated {
		completedAt = &now
	}
	step := domain.ReconstituteWorkflowStep(
		0, workflowID, data.name, data.sequence,
		domain.StepKindExternal, data.targetSystem, data.status,
		data.handlerName, data.compensationName,
		nil, data.output, data.compensationData,
		0, 3,
		data.errorMessage, "",
		now, startedAt, completedAt, data.compensatedAt, now,
	)
	require.NoError(b.t, b.db.StepRepository().Save(step))
}

func (b *Builder) insertService(data serviceData) {
	b.t.Helper()
	instance := domain.ReconstituteServiceInstance(
		0, data.instanceID, data.serviceID, b.tenantID,
		data.subscriberID, data.customerID, "",
		data.name, "", data.planID,
		data.status,
		"", data.workflowID,
		"", "",
		nil,
		"", nil, 0,
		nil, "",
		nil,
		data.createdAt,
		nil, nil, data.activatedAt, nil, nil,
		data.createdAt,
	)
	require.NoError(b.t, b.db.ServiceRepository().Save(instance))
}

func (b *Builder) insertProfile(data profileData) {
	b.t.Helper()
	now := time.Now()
	var v4Allocated, v4Activated, v6Allocated, v6Activated *time.Time
	if data.ipv4State != domain.AddressStatePending {
		v4Allocated = &now
	}
	if data.ipv4State == domain.AddressStateActive {
		v4Activated = &now
	}
	if data.ipv6State != domain.AddressStatePending {
		v6Allocated = &now
	}
	if data.ipv6State == domain.AddressStateActive {
		v6Activated = &now
	}
	profile := domain.ReconstituteSubscriberNetworkProfile(
		0, data.subscriberID, b.tenantID,
		data.circuitID, data.remoteID,
		data.serviceVLAN, data.innerVLAN,
		data.serviceVLAN > 0 && data.innerVLAN > 0,
		"", "",
		data.ipv4Address, data.ipv4State, "",
		v4Allocated, v4Activated, nil, nil,
		data.ipv6Mode, data.ipv6Prefix, data.prefixLength, data.ipv6State, "",
		v6Allocated, v6Activated, nil, nil,
		domain.Option82Log,
		data.radiusUsername,
		nil,
		now, now, nil,
	)
	require.NoError(b.t, b.db.ProfileRepository().Save(profile))
}
