package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/domain"
)

func TestBuilder_WorkflowWithSteps(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db, "tenant-1").
		WithWorkflow("wf-1", domain.WorkflowKindProvisionSubscriber,
			WorkflowStatus(domain.WorkflowStatusRunning),
			WorkflowSubscriber("sub-1"),
			WorkflowInput(map[string]any{"plan_id": "plan-fiber-1g"})).
		WithStep("create_customer", 0, StepStatus(domain.StepStatusCompleted)).
		WithStep("create_subscriber", 1, StepStatus(domain.StepStatusRunning)).
		Build()

	wf, err := db.WorkflowRepository().FindByWorkflowID("tenant-1", "wf-1")
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStatusRunning, wf.Status())
	require.Equal(t, "sub-1", wf.SubscriberID())
	require.Equal(t, "plan-fiber-1g", wf.InputData()["plan_id"])
	require.Equal(t, 2, wf.TotalSteps(), "WithStep must grow total_steps")

	steps, err := db.StepRepository().ListByWorkflow(wf.ID())
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "create_customer", steps[0].Name())
	require.Equal(t, domain.StepStatusCompleted, steps[0].Status())
	require.NotNil(t, steps[0].CompletedAt())
	require.Equal(t, domain.StepStatusRunning, steps[1].Status())
	require.Nil(t, steps[1].CompletedAt())
}

func TestBuilder_StepBelongsToNearestWorkflow(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db, "tenant-1").
		WithWorkflow("wf-a", domain.WorkflowKindActivateService).
		WithStep("verify_account_status", 0).
		WithWorkflow("wf-b", domain.WorkflowKindSuspendService).
		WithStep("disable_radius", 0).
		WithStep("suspend_ip_assignment", 1).
		Build()

	wfA, err := db.WorkflowRepository().FindByWorkflowID("tenant-1", "wf-a")
	require.NoError(t, err)
	stepsA, err := db.StepRepository().ListByWorkflow(wfA.ID())
	require.NoError(t, err)
	require.Len(t, stepsA, 1)

	wfB, err := db.WorkflowRepository().FindByWorkflowID("tenant-1", "wf-b")
	require.NoError(t, err)
	stepsB, err := db.StepRepository().ListByWorkflow(wfB.ID())
	require.NoError(t, err)
	require.Len(t, stepsB, 2)
	require.Equal(t, "disable_radius", stepsB[0].Name())
}

func TestBuilder_ServiceAndProfile(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db, "tenant-1").
		WithService("si-1",
			ServiceStatus(domain.ServiceStatusActive),
			ServiceSubscriber("sub-1"),
			ServicePlan("plan-fiber-1g"),
			ServiceName("Fiber 1G")).
		WithProfile("sub-1",
			ProfileIPv4("100.64.10.25", domain.AddressStateActive),
			ProfileIPv6("2001:db8:100::", 56, domain.AddressStateAllocated),
			ProfileVLANs(210, 34),
			ProfileRadiusUsername("sub-1@isp")).
		Build()

	instance, err := db.ServiceRepository().FindByInstanceID("si-1")
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusActive, instance.Status())
	require.Equal(t, "sub-1", instance.SubscriberID())
	require.NotNil(t, instance.ActivatedAt())

	profile, err := db.ProfileRepository().FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, "100.64.10.25", profile.IPv4Address())
	require.Equal(t, domain.AddressStateActive, profile.IPv4State())
	require.Equal(t, "2001:db8:100::", profile.DelegatedPrefix())
	require.Equal(t, 56, profile.PrefixLength())
	require.Equal(t, domain.AddressStateAllocated, profile.IPv6State())
	require.Equal(t, domain.IPv6AssignmentPrefixDelegation, profile.IPv6AssignmentMode())
	require.True(t, profile.QinQEnabled())
}

func TestBuilder_CompensatedStepsCount(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db, "tenant-1").
		WithWorkflow("wf-rb", domain.WorkflowKindProvisionSubscriber,
			WorkflowStatus(domain.WorkflowStatusRolledBack)).
		WithStep("create_customer", 0, StepStatus(domain.StepStatusCompensated)).
		WithStep("create_subscriber", 1, StepStatus(domain.StepStatusCompensated)).
		WithStep("create_network_profile", 2,
			StepStatus(domain.StepStatusFailed),
			StepError("invalid ipv6 assignment mode")).
		Build()

	count, err := db.StepRepository().CountCompensated("tenant-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
