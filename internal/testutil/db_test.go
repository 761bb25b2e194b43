package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiberline/switchyard/internal/domain"
)

func TestNewTestDB_MigratedAndUsable(t *testing.T) {
	db := NewTestDB(t)

	wf := domain.NewWorkflow("wf-smoke", domain.WorkflowKindProvisionSubscriber, "tenant-1")
	require.NoError(t, db.WorkflowRepository().Save(wf))
	require.NotZero(t, wf.ID())

	got, err := db.WorkflowRepository().FindByWorkflowID("tenant-1", "wf-smoke")
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStatusPending, got.Status())
}

func TestNewTestDB_IsolatedPerTest(t *testing.T) {
	db := NewTestDB(t)

	_, err := db.WorkflowRepository().FindByWorkflowID("tenant-1", "wf-smoke")
	var notFound *domain.WorkflowNotFoundError
	require.ErrorAs(t, err, &notFound)
}
