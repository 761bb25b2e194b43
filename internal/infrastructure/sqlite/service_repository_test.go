package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/domain"
)

func TestServiceRepository_SaveAndFind(t *testing.T) {
	db := newTestDB(t)
	repo := db.ServiceRepository()

	svc := domain.NewServiceInstance("si-001", "svc-fiber-1", "tenant-1")
	svc.SetSubscriberID("sub-1")
	svc.SetName("Fiber 1000/500")
	svc.SetServiceType("broadband")
	svc.SetPlanID("fiber-1000")
	svc.SetVLANID(110)
	svc.SetEquipment([]string{"ont-abc", "router-xyz"})
	svc.PutMetadata("olt_port", "1/2/3")

	require.NoError(t, repo.Save(svc), "insert should succeed")
	require.NotZero(t, svc.ID())

	found, err := repo.FindByInstanceID("si-001")
	require.NoError(t, err)
	require.Equal(t, "svc-fiber-1", found.ServiceID())
	require.Equal(t, domain.ServiceStatusPending, found.Status())
	require.Equal(t, []string{"ont-abc", "router-xyz"}, found.Equipment())
	require.Equal(t, 110, found.VLANID())
	require.Equal(t, "1/2/3", found.Metadata()["olt_port"])

	byService, err := repo.FindByServiceID("tenant-1", "svc-fiber-1")
	require.NoError(t, err)
	require.Equal(t, "si-001", byService.ServiceInstanceID())

	_, err = repo.FindByInstanceID("si-missing")
	var notFound *domain.ServiceNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestServiceRepository_UpdateLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := db.ServiceRepository()

	svc := domain.NewServiceInstance("si-life", "svc-life", "tenant-1")
	require.NoError(t, repo.Save(svc))

	svc.StartProvisioning()
	svc.Activate()
	require.NoError(t, repo.Save(svc))

	found, err := repo.FindByInstanceID("si-life")
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusActive, found.Status())
	require.NotNil(t, found.ActivatedAt())

	resume := time.Now().Add(24 * time.Hour)
	found.Suspend(domain.SuspensionTypeNonPayment, "invoice overdue", &resume)
	require.NoError(t, repo.Save(found))

	suspended, err := repo.FindByInstanceID("si-life")
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusSuspendedNonPayment, suspended.Status())
	require.Equal(t, domain.SuspensionTypeNonPayment, suspended.SuspensionType())
	require.Equal(t, "invoice overdue", suspended.SuspensionReason())
	require.NotNil(t, suspended.AutoResumeAt())
}

func TestServiceRepository_UpdatePersistsIdentities(t *testing.T) {
	db := newTestDB(t)
	repo := db.ServiceRepository()

	// Instances are created before the provisioning run knows who they are
	// for; the identities arrive on a later save and must stick.
	svc := domain.NewServiceInstance("si-ident", "svc-ident", "tenant-1")
	require.NoError(t, repo.Save(svc))

	svc.SetSubscriberID("sub-late")
	svc.SetCustomerID("cust-late")
	svc.SetSubscriptionID("subscr-late")
	require.NoError(t, repo.Save(svc))

	found, err := repo.FindByInstanceID("si-ident")
	require.NoError(t, err)
	require.Equal(t, "sub-late", found.SubscriberID())
	require.Equal(t, "cust-late", found.CustomerID())
	require.Equal(t, "subscr-late", found.SubscriptionID())
}

func TestServiceRepository_ListWithFilter(t *testing.T) {
	db := newTestDB(t)
	repo := db.ServiceRepository()

	active := domain.NewServiceInstance("si-a", "svc-a", "tenant-1")
	active.SetSubscriberID("sub-1")
	active.StartProvisioning()
	active.Activate()
	require.NoError(t, repo.Save(active))

	pending := domain.NewServiceInstance("si-b", "svc-b", "tenant-1")
	pending.SetSubscriberID("sub-2")
	require.NoError(t, repo.Save(pending))

	foreign := domain.NewServiceInstance("si-c", "svc-c", "tenant-2")
	require.NoError(t, repo.Save(foreign))

	all, err := repo.ListWithFilter("tenant-1", domain.ServiceListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	activeOnly, err := repo.ListWithFilter("tenant-1", domain.ServiceListFilter{Status: domain.ServiceStatusActive})
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	require.Equal(t, "si-a", activeOnly[0].ServiceInstanceID())

	bySub, err := repo.ListWithFilter("tenant-1", domain.ServiceListFilter{SubscriberID: "sub-2"})
	require.NoError(t, err)
	require.Len(t, bySub, 1)
	require.Equal(t, "si-b", bySub[0].ServiceInstanceID())
}

func TestServiceRepository_DueSweeps(t *testing.T) {
	db := newTestDB(t)
	repo := db.ServiceRepository()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := domain.NewServiceInstance("si-due", "svc-due", "tenant-1")
	due.PutMetadata(domain.MetadataKeyScheduledActivation, past.UTC().Format(time.RFC3339))
	require.NoError(t, repo.Save(due))

	notYet := domain.NewServiceInstance("si-later", "svc-later", "tenant-1")
	notYet.PutMetadata(domain.MetadataKeyScheduledActivation, future.UTC().Format(time.RFC3339))
	require.NoError(t, repo.Save(notYet))

	dueNow, err := repo.ListDueForActivation(time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, dueNow, 1)
	require.Equal(t, "si-due", dueNow[0].ServiceInstanceID())

	term := domain.NewServiceInstance("si-term", "svc-term", "tenant-1")
	term.StartProvisioning()
	term.Activate()
	term.MarkTerminating(past)
	require.NoError(t, repo.Save(term))

	dueTerm, err := repo.ListDueForTermination(time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, dueTerm, "terminating instances already in flight are excluded")

	// An active instance carrying a past termination date is picked up.
	lapsed := domain.NewServiceInstance("si-lapsed", "svc-lapsed", "tenant-1")
	lapsed.StartProvisioning()
	lapsed.Activate()
	lapsed.PutMetadata(domain.MetadataKeyScheduledTermination, past.UTC().Format(time.RFC3339))
	require.NoError(t, repo.Save(lapsed))

	dueTerm, err = repo.ListDueForTermination(time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, dueTerm, 1)
	require.Equal(t, "si-lapsed", dueTerm[0].ServiceInstanceID())
}

func TestProfileRepository_SaveFindDelete(t *testing.T) {
	db := newTestDB(t)
	repo := db.ProfileRepository()

	profile := domain.NewSubscriberNetworkProfile("sub-1", "tenant-1")
	profile.SetOption82("circuit-1", "remote-1", domain.Option82Enforce)
	profile.SetVLANs(100, 200)
	profile.SetIPv6AssignmentMode(domain.IPv6AssignmentPrefixDelegation)
	profile.SetRadiusUsername("sub-1@isp")
	profile.SetIPv4Allocated("100.64.10.20", "ipam-v4-1")
	profile.SetIPv6Allocated("2001:db8:100::", 56, "ipam-v6-1")

	require.NoError(t, repo.Save(profile), "insert should succeed")
	require.NotZero(t, profile.ID())

	found, err := repo.FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, "circuit-1", found.CircuitID())
	require.Equal(t, domain.Option82Enforce, found.Option82Policy())
	require.True(t, found.QinQEnabled(), "inner VLAN implies QinQ")
	require.Equal(t, "100.64.10.20", found.IPv4Address())
	require.Equal(t, domain.AddressStateAllocated, found.IPv4State())
	require.Equal(t, "2001:db8:100::", found.DelegatedPrefix())
	require.Equal(t, 56, found.PrefixLength())
	require.NotNil(t, found.IPv4AllocatedAt())

	// Update path: lifecycle progresses and persists.
	found.SetIPv4State(domain.AddressStateActive)
	require.NoError(t, repo.Save(found))
	active, err := repo.FindBySubscriber("tenant-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, domain.AddressStateActive, active.IPv4State())
	require.NotNil(t, active.IPv4ActivatedAt())

	// Soft delete hides the profile from lookups.
	require.NoError(t, repo.Delete("tenant-1", "sub-1"))
	_, err = repo.FindBySubscriber("tenant-1", "sub-1")
	var notFound *domain.ProfileNotFoundError
	require.ErrorAs(t, err, &notFound)

	// Deleting again reports not found.
	err = repo.Delete("tenant-1", "sub-1")
	require.ErrorAs(t, err, &notFound)

	// A new profile for the same subscriber can be created after deletion.
	replacement := domain.NewSubscriberNetworkProfile("sub-1", "tenant-1")
	require.NoError(t, repo.Save(replacement))
}

func TestEventRepository_AppendAndList(t *testing.T) {
	db := newTestDB(t)
	repo := db.EventRepository()

	first := domain.NewLifecycleEvent("evt-1", domain.EventProvisionStarted, "si-1", "tenant-1").
		WithStatusChange(domain.ServiceStatusPending, domain.ServiceStatusProvisioning).
		WithTriggeredBy("system")
	require.NoError(t, repo.Save(first))
	require.NotZero(t, first.ID())

	second := domain.NewLifecycleEvent("evt-2", domain.EventProvisionCompleted, "si-1", "tenant-1").
		WithStatusChange(domain.ServiceStatusProvisioning, domain.ServiceStatusActive).
		WithDescription("provisioning finished").
		WithDuration(1500 * time.Millisecond).
		WithEventData(map[string]any{"workflow_id": "wf-1"})
	require.NoError(t, repo.Save(second))

	other := domain.NewLifecycleEvent("evt-3", domain.EventHealthCheck, "si-2", "tenant-1")
	require.NoError(t, repo.Save(other))

	events, err := repo.ListByService("si-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "evt-2", events[0].EventID(), "newest first")
	require.Equal(t, int64(1500), events[0].DurationMS())
	require.Equal(t, "wf-1", events[0].EventData()["workflow_id"])
	require.Equal(t, domain.ServiceStatusActive, events[0].NewStatus())

	limited, err := repo.ListByService("si-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	// Events are immutable: re-saving a persisted event is rejected.
	require.Error(t, repo.Save(first))
}
