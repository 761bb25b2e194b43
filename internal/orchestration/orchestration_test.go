package orchestration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
	"github.com/fiberline/switchyard/internal/pubsub"
	"github.com/fiberline/switchyard/internal/saga"
	"github.com/fiberline/switchyard/internal/services"
	"github.com/fiberline/switchyard/internal/testutil"
)

const testTenant = "tenant-1"

type testEnv struct {
	svc   *Service
	db    *sqlite.DB
	fakes *collab.Fakes
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	set, fakes := collab.NewFakeSet()
	svc, err := New(Config{DB: db, Collaborators: set, RetryWait: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &testEnv{svc: svc, db: db, fakes: fakes}
}

func provisionRequest() ProvisionSubscriberRequest {
	return ProvisionSubscriberRequest{
		TenantID:    testTenant,
		CustomerID:  "cust-100",
		PlanID:      "plan-fiber-1g",
		Name:        "Fiber 1G",
		ServiceVLAN: 210,
		IPv6Mode:    "prefix_delegation",
		CPEDeviceID: "cpe-1",
		Initiator:   "ops@example.com",
	}
}

func drainEvents(ch <-chan pubsub.Event[Event]) []EventType {
	var types []EventType
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return types
			}
			types = append(types, ev.Payload.Type)
		default:
			return types
		}
	}
}

func TestProvisionSubscriber_CompletesAndActivates(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := env.svc.Subscribe(ctx)

	req := provisionRequest()
	req.AutoActivate = true
	resp, err := env.svc.ProvisionSubscriber(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "completed", resp.Status)
	require.Len(t, resp.Steps, 8)
	for _, step := range resp.Steps {
		require.Equal(t, "completed", step.Status, "step %s", step.Name)
	}

	instanceID, _ := resp.Context["service_instance_id"].(string)
	require.NotEmpty(t, instanceID)
	instance, err := env.db.ServiceRepository().FindByInstanceID(instanceID)
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusActive, instance.Status())
	require.NotEmpty(t, instance.SubscriberID())
	require.NotEmpty(t, instance.SubscriptionID())

	// One IPv4 address and one delegated prefix remain allocated.
	require.Equal(t, 2, env.fakes.IPAM.LiveAllocationCount())

	types := drainEvents(stream)
	require.Contains(t, types, EventWorkflowCreated)
	require.Contains(t, types, EventWorkflowStarted)
	require.Contains(t, types, EventStepCompleted)
	require.Contains(t, types, EventWorkflowCompleted)
	require.Contains(t, types, EventServiceStatusChanged)
}

func TestProvisionSubscriber_RejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	req := provisionRequest()
	req.CustomerID = ""
	req.Email = ""
	_, err := env.svc.ProvisionSubscriber(context.Background(), req)
	require.ErrorContains(t, err, "customer_id or email")

	req = provisionRequest()
	req.ServiceVLAN = 5000
	_, err = env.svc.ProvisionSubscriber(context.Background(), req)
	require.Error(t, err)
}

func TestStartWorkflow_PermanentFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)

	// An unrecognized assignment mode is rejected by the profile step and
	// never becomes valid by waiting, so the run compensates.
	resp, err := env.svc.StartWorkflow(context.Background(), StartWorkflowRequest{
		TenantID:   testTenant,
		Definition: "provision_subscriber",
		Input: map[string]any{
			"customer_id": "cust-1",
			"plan_id":     "plan-1",
			"ipv6_mode":   "tunnelbroker",
		},
	})
	require.Error(t, err)
	var execErr *saga.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "create_network_profile", execErr.StepName)
	require.True(t, execErr.Compensated)

	// All step records exist; the ones past the failure never ran and read
	// as pending.
	require.Equal(t, "rolled_back", resp.Status)
	require.Len(t, resp.Steps, 8)
	require.Equal(t, "compensated", resp.Steps[0].Status)
	require.Equal(t, "compensated", resp.Steps[1].Status)
	require.Equal(t, "failed", resp.Steps[2].Status)
	for _, step := range resp.Steps[3:] {
		require.Equal(t, "pending", step.Status)
	}
	require.Equal(t, 0, env.fakes.IPAM.LiveAllocationCount())
}

func TestProvisionSubscriber_TransientFailureIsRetryableInPlace(t *testing.T) {
	env := newTestEnv(t)
	env.fakes.CPE.SetError("SetParameter", errors.New("acs timeout"))

	req := provisionRequest()
	req.CPEParameters = map[string]string{"wifi_ssid": "home"}
	resp, err := env.svc.ProvisionSubscriber(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, "failed", resp.Status)

	// No compensation ran: the allocations and the instance survive for the
	// retry.
	instanceID, _ := resp.Context["service_instance_id"].(string)
	instance, err := env.db.ServiceRepository().FindByInstanceID(instanceID)
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusProvisioning, instance.Status())
	require.Equal(t, 2, env.fakes.IPAM.LiveAllocationCount())

	env.fakes.CPE.SetError("SetParameter", nil)
	retried, err := env.svc.RetryWorkflow(context.Background(), testTenant, resp.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, "completed", retried.Status)

	// Completed steps were skipped on resume, not re-executed.
	require.Equal(t, 1, env.fakes.IPAM.CallCount("AllocateIPv4"))
	require.Equal(t, 2, env.fakes.IPAM.LiveAllocationCount())
}

func TestDeprovisionSubscriber_RestoresLedgers(t *testing.T) {
	env := newTestEnv(t)

	req := provisionRequest()
	req.AutoActivate = true
	provResp, err := env.svc.ProvisionSubscriber(context.Background(), req)
	require.NoError(t, err)
	instanceID, _ := provResp.Context["service_instance_id"].(string)
	instance, err := env.db.ServiceRepository().FindByInstanceID(instanceID)
	require.NoError(t, err)
	subscriberID := instance.SubscriberID()
	require.NotEmpty(t, subscriberID)

	resp, err := env.svc.DeprovisionSubscriber(context.Background(), DeprovisionSubscriberRequest{
		TenantID:     testTenant,
		SubscriberID: subscriberID,
		Reason:       "customer moved away",
		Initiator:    "ops@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "completed", resp.Status)
	require.Len(t, resp.Steps, 7)

	require.Equal(t, 0, env.fakes.IPAM.LiveAllocationCount())
	require.Empty(t, env.fakes.Radius.Accounts)

	var nf *domain.ProfileNotFoundError
	_, err = env.db.ProfileRepository().FindBySubscriber(testTenant, subscriberID)
	require.ErrorAs(t, err, &nf)

	terminated, err := env.db.ServiceRepository().FindByInstanceID(instanceID)
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusTerminated, terminated.Status())
}

func TestProvisionSubscriber_Async(t *testing.T) {
	env := newTestEnv(t)

	req := provisionRequest()
	req.Async = true
	resp, err := env.svc.ProvisionSubscriber(context.Background(), req)
	require.NoError(t, err)

	workflowID := resp.WorkflowID
	require.Eventually(t, func() bool {
		got, err := env.svc.GetWorkflow(testTenant, workflowID)
		return err == nil && got.Status == "completed"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartWorkflow_UnknownDefinition(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.StartWorkflow(context.Background(), StartWorkflowRequest{
		TenantID:   testTenant,
		Definition: "decommission_headend",
	})
	require.ErrorContains(t, err, "unknown workflow definition")
}

func TestCancelWorkflow_CompletedIsNotCancelable(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.ProvisionSubscriber(context.Background(), provisionRequest())
	require.NoError(t, err)

	_, err = env.svc.CancelWorkflow(context.Background(), testTenant, resp.WorkflowID)
	require.ErrorIs(t, err, saga.ErrNotCancelable)
}

func TestListWorkflows_FiltersByStatus(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ProvisionSubscriber(context.Background(), provisionRequest())
	require.NoError(t, err)
	_, err = env.svc.StartWorkflow(context.Background(), StartWorkflowRequest{
		TenantID:   testTenant,
		Definition: "provision_subscriber",
		Input:      map[string]any{"customer_id": "cust-2", "plan_id": "plan-1", "ipv6_mode": "tunnelbroker"},
	})
	require.Error(t, err)

	completed, err := env.svc.ListWorkflows(testTenant, domain.WorkflowListFilter{
		Status: domain.WorkflowStatusCompleted,
	})
	require.NoError(t, err)
	require.Len(t, completed, 1)

	all, err := env.svc.ListWorkflows(testTenant, domain.WorkflowListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestWorkflowStatistics(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ProvisionSubscriber(context.Background(), provisionRequest())
	require.NoError(t, err)
	_, err = env.svc.StartWorkflow(context.Background(), StartWorkflowRequest{
		TenantID:   testTenant,
		Definition: "provision_subscriber",
		Input:      map[string]any{"customer_id": "cust-2", "plan_id": "plan-1", "ipv6_mode": "tunnelbroker"},
	})
	require.Error(t, err)

	stats, err := env.svc.WorkflowStatistics(testTenant)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ByStatus["completed"])
	require.Equal(t, 1, stats.ByStatus["rolled_back"])
	require.Equal(t, 2, stats.ByKind["provision_subscriber"])
	require.InDelta(t, 50.0, stats.SuccessRate, 0.001, "success rate is a percentage")
	require.Equal(t, 0, stats.ActiveWorkflows)
	require.Equal(t, 1, stats.RecentFailures24h)
	require.Equal(t, 2, stats.TotalCompensations)
	require.Greater(t, stats.AvgDurationSeconds, -1.0)

	// A run settling drops the cached stats, so the next read sees it without
	// waiting out the TTL.
	req := provisionRequest()
	req.CustomerID = "cust-3"
	_, err = env.svc.ProvisionSubscriber(context.Background(), req)
	require.NoError(t, err)

	stats, err = env.svc.WorkflowStatistics(testTenant)
	require.NoError(t, err)
	require.Equal(t, 2, stats.ByStatus["completed"])
	require.InDelta(t, 200.0/3.0, stats.SuccessRate, 0.001)
}

func TestSuspendAndResume_ThroughFacade(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := provisionRequest()
	req.AutoActivate = true
	resp, err := env.svc.ProvisionSubscriber(context.Background(), req)
	require.NoError(t, err)
	instanceID, _ := resp.Context["service_instance_id"].(string)

	stream := env.svc.Subscribe(ctx)

	_, err = env.svc.SuspendService(context.Background(), SuspendServiceRequest{
		TenantID:          testTenant,
		ServiceInstanceID: instanceID,
		SuspensionType:    domain.SuspensionTypeNonPayment,
		Reason:            "x",
	})
	require.Error(t, err, "short reasons have no audit value")

	res, err := env.svc.SuspendService(context.Background(), SuspendServiceRequest{
		TenantID:          testTenant,
		ServiceInstanceID: instanceID,
		SuspensionType:    domain.SuspensionTypeNonPayment,
		Reason:            "invoice 90 days overdue",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	instance, err := env.db.ServiceRepository().FindByInstanceID(instanceID)
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusSuspendedNonPayment, instance.Status())

	res, err = env.svc.ResumeService(context.Background(), ActivateServiceRequest{
		TenantID:          testTenant,
		ServiceInstanceID: instanceID,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	instance, err = env.db.ServiceRepository().FindByInstanceID(instanceID)
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusActive, instance.Status())

	types := drainEvents(stream)
	count := 0
	for _, typ := range types {
		if typ == EventServiceStatusChanged {
			count++
		}
	}
	require.Equal(t, 2, count)
}

func TestProvisionSubscriber_PermanentCPEFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.fakes.CPE.SetError("SetParameter",
		saga.Permanent(errors.New("device rejected parameter")))

	req := provisionRequest()
	req.CPEParameters = map[string]string{"wifi_ssid": "home"}
	resp, err := env.svc.ProvisionSubscriber(context.Background(), req)
	require.Error(t, err)
	var execErr *saga.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "configure_cpe", execErr.StepName)
	require.Equal(t, 6, execErr.StepSequence, "sequences are zero-based")
	require.True(t, execErr.Compensated)

	require.Equal(t, "rolled_back", resp.Status)
	require.Len(t, resp.Steps, 8)
	for _, step := range resp.Steps[:6] {
		require.Equal(t, "compensated", step.Status, "step %s", step.Name)
	}
	require.Equal(t, "failed", resp.Steps[6].Status)
	require.Equal(t, "pending", resp.Steps[7].Status, "the step after the failure never ran")

	// Compensation walked everything back: allocations released, the RADIUS
	// account gone, the instance settled in failed.
	require.Equal(t, 0, env.fakes.IPAM.LiveAllocationCount())
	require.Empty(t, env.fakes.Radius.Accounts)

	instanceID, _ := resp.Context["service_instance_id"].(string)
	instance, err := env.db.ServiceRepository().FindByInstanceID(instanceID)
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusFailed, instance.Status())
}

func TestCancelWorkflow_BeforeFirstStepLeavesLedgersUntouched(t *testing.T) {
	env := newTestEnv(t)

	wf, _, err := env.svc.createWorkflow(StartWorkflowRequest{
		TenantID:   testTenant,
		Definition: "provision_subscriber",
		Input:      map[string]any{"customer_id": "cust-1", "plan_id": "plan-1"},
	})
	require.NoError(t, err)

	resp, err := env.svc.CancelWorkflow(context.Background(), testTenant, wf.WorkflowID())
	require.NoError(t, err)
	require.Equal(t, "rolled_back", resp.Status)
	require.Empty(t, resp.Steps, "no step ever ran")

	// Nothing external was touched.
	require.Equal(t, 0, env.fakes.IPAM.CallCount("AllocateIPv4"))
	require.Equal(t, 0, env.fakes.IPAM.CallCount("AllocateIPv6Prefix"))
	require.Empty(t, env.fakes.Radius.Accounts)
}

func TestBulkSuspend_OneBadInstanceOutOfMany(t *testing.T) {
	env := newTestEnv(t)

	builder := testutil.NewBuilder(t, env.db, testTenant)
	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("si-bulk-%03d", i)
		ids = append(ids, id)
		status := domain.ServiceStatusActive
		if i == 57 {
			// One instance that cannot be suspended.
			status = domain.ServiceStatusPending
		}
		builder.WithService(id,
			testutil.ServiceStatus(status),
			testutil.ServiceSubscriber(fmt.Sprintf("sub-bulk-%03d", i)))
	}
	builder.Build()

	results, err := env.svc.BulkServiceOperation(context.Background(), services.BulkRequest{
		TenantID:           testTenant,
		Operation:          services.BulkSuspend,
		ServiceInstanceIDs: ids,
		SuspensionType:     domain.SuspensionTypeOther,
		Reason:             "maintenance window",
	})
	require.NoError(t, err)
	require.Len(t, results, 100)

	succeeded := 0
	for i, res := range results {
		if res.Success {
			succeeded++
			continue
		}
		require.Equal(t, 57, i, "only the pending instance may fail")
		require.NotEmpty(t, res.Err)
	}
	require.Equal(t, 99, succeeded)

	suspended, err := env.db.ServiceRepository().ListWithFilter(testTenant, domain.ServiceListFilter{
		Status: domain.ServiceStatusSuspended,
		Limit:  200,
	})
	require.NoError(t, err)
	require.Len(t, suspended, 99)
}
