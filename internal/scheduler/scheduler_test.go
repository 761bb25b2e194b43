package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
	"github.com/fiberline/switchyard/internal/orchestration"
	"github.com/fiberline/switchyard/internal/services"
)

const testTenant = "tenant-1"

type schedEnv struct {
	db  *sqlite.DB
	svc *orchestration.Service
}

func newSchedEnv(t *testing.T) *schedEnv {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	set, _ := collab.NewFakeSet()
	svc, err := orchestration.New(orchestration.Config{DB: db, Collaborators: set})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &schedEnv{db: db, svc: svc}
}

func (e *schedEnv) seedInstance(t *testing.T) *domain.ServiceInstance {
	t.Helper()
	instance, err := e.svc.Lifecycle().ProvisionService(context.Background(), services.ProvisionRequest{
		TenantID: testTenant,
		PlanID:   "plan-1",
		Name:     "Fiber 500M",
	})
	require.NoError(t, err)
	return instance
}

func TestSweepOnce_ActivatesDueInstances(t *testing.T) {
	env := newSchedEnv(t)
	instance := env.seedInstance(t)

	_, err := env.svc.Lifecycle().ScheduleServiceActivation(context.Background(),
		testTenant, instance.ServiceInstanceID(), time.Now().Add(-time.Minute), "test")
	require.NoError(t, err)

	sched := New(env.svc, time.Hour, 0)
	activated, terminated := sched.SweepOnce(context.Background())
	require.Equal(t, 1, activated)
	require.Equal(t, 0, terminated)

	got, err := env.db.ServiceRepository().FindByInstanceID(instance.ServiceInstanceID())
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusActive, got.Status())

	// Nothing left to do; a repeated sweep is a no-op.
	activated, terminated = sched.SweepOnce(context.Background())
	require.Zero(t, activated)
	require.Zero(t, terminated)
}

func TestSweepOnce_TerminatesDueInstances(t *testing.T) {
	env := newSchedEnv(t)
	instance := env.seedInstance(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Lifecycle().StartProvisioning(ctx, testTenant, instance.ServiceInstanceID()))
	res, err := env.svc.Lifecycle().ActivateService(ctx, services.ActivateRequest{
		TenantID:          testTenant,
		ServiceInstanceID: instance.ServiceInstanceID(),
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	when := time.Now().Add(time.Second)
	res, err = env.svc.Lifecycle().TerminateService(ctx, services.TerminateRequest{
		TenantID:          testTenant,
		ServiceInstanceID: instance.ServiceInstanceID(),
		Reason:            "contract ended",
		TerminationDate:   &when,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	// Not yet due.
	sched := New(env.svc, time.Hour, 0)
	_, terminated := sched.SweepOnce(ctx)
	require.Zero(t, terminated)

	time.Sleep(1100 * time.Millisecond)
	_, terminated = sched.SweepOnce(ctx)
	require.Equal(t, 1, terminated)

	got, err := env.db.ServiceRepository().FindByInstanceID(instance.ServiceInstanceID())
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusTerminated, got.Status())
}

func TestStartStop_SweepsOnTheTicker(t *testing.T) {
	env := newSchedEnv(t)
	instance := env.seedInstance(t)

	_, err := env.svc.Lifecycle().ScheduleServiceActivation(context.Background(),
		testTenant, instance.ServiceInstanceID(), time.Now().Add(-time.Minute), "test")
	require.NoError(t, err)

	sched := New(env.svc, 20*time.Millisecond, 10)
	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool {
		got, err := env.db.ServiceRepository().FindByInstanceID(instance.ServiceInstanceID())
		return err == nil && got.Status() == domain.ServiceStatusActive
	}, 5*time.Second, 10*time.Millisecond)
}
