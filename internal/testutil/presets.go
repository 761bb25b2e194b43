package testutil

import (
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// WithCompletedProvisionRun adds a finished provisioning run for subscriberID
// with all eight steps completed, the matching active service instance, and
// an activated dual-stack network profile.
func (b *Builder) WithCompletedProvisionRun(workflowID, subscriberID, instanceID string) *Builder {
	steps := []string{
		"create_customer", "create_subscriber", "create_network_profile",
		"create_radius_account", "allocate_dualstack_ip", "activate_onu",
		"configure_cpe", "create_billing_service",
	}
	b = b.WithWorkflow(workflowID, domain.WorkflowKindProvisionSubscriber,
		WorkflowStatus(domain.WorkflowStatusCompleted),
		WorkflowSubscriber(subscriberID),
		WorkflowProgress(len(steps), len(steps)))
	for i, name := range steps {
		b = b.WithStep(name, i, StepStatus(domain.StepStatusCompleted))
	}
	return b.
		WithService(instanceID,
			ServiceStatus(domain.ServiceStatusActive),
			ServiceSubscriber(subscriberID),
			ServiceWorkflow(workflowID),
			ServicePlan("plan-fiber-1g")).
		WithProfile(subscriberID,
			ProfileIPv4("100.64.10.25", domain.AddressStateActive),
			ProfileIPv6("2001:db8:100::", 56, domain.AddressStateActive),
			ProfileVLANs(210, 34),
			ProfileRadiusUsername(subscriberID+"@isp"))
}

// WithRolledBackRun adds a provisioning run that failed at its third step and
// compensated the first two.
func (b *Builder) WithRolledBackRun(workflowID, subscriberID string) *Builder {
	return b.
		WithWorkflow(workflowID, domain.WorkflowKindProvisionSubscriber,
			WorkflowStatus(domain.WorkflowStatusRolledBack),
			WorkflowSubscriber(subscriberID),
			WorkflowProgress(2, 8),
			WorkflowError("create_network_profile: invalid ipv6 assignment mode")).
		WithStep("create_customer", 0, StepStatus(domain.StepStatusCompensated)).
		WithStep("create_subscriber", 1, StepStatus(domain.StepStatusCompensated)).
		WithStep("create_network_profile", 2,
			StepStatus(domain.StepStatusFailed),
			StepError("invalid ipv6 assignment mode"))
}

// WithMixedWorkflowHistory adds one run per terminal outcome plus an active
// one, spread over the last week. Useful for statistics assertions.
func (b *Builder) WithMixedWorkflowHistory() *Builder {
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	lastWeek := now.Add(-7 * 24 * time.Hour)

	return b.
		WithWorkflow("wf-hist-1", domain.WorkflowKindProvisionSubscriber,
			WorkflowStatus(domain.WorkflowStatusCompleted),
			WorkflowCreatedAt(lastWeek)).
		WithWorkflow("wf-hist-2", domain.WorkflowKindProvisionSubscriber,
			WorkflowStatus(domain.WorkflowStatusFailed),
			WorkflowCreatedAt(yesterday),
			WorkflowError("cpe unreachable")).
		WithWorkflow("wf-hist-3", domain.WorkflowKindSuspendService,
			WorkflowStatus(domain.WorkflowStatusCompleted),
			WorkflowCreatedAt(yesterday)).
		WithWorkflow("wf-hist-4", domain.WorkflowKindDeprovisionSubscriber,
			WorkflowStatus(domain.WorkflowStatusRunning),
			WorkflowCreatedAt(now))
}
