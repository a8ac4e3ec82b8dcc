package file

import (
	"context"
	"testing"
	"time"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceRepositorySaveAndGet(t *testing.T) {
	store := NewPersistence(t.TempDir())
	ctx := context.Background()

	started := time.Now()
	instance := &models.WorkflowInstance{
		ID:         "WFI-TEST0001",
		WorkflowID: "wf-review",
		EntityID:   "grant-1",
		EntityType: "grant_application",
		Status:     models.InstanceStatusActive,
		Variables:  map[string]any{"amount": 5000.0},
		StartedAt:  &started,
		Steps: []*models.StepInstance{
			{ID: "si-1", StepID: "review", Status: models.StepStatusPending},
		},
	}

	require.NoError(t, store.InstanceRepository().SaveInstance(ctx, instance))
	assert.Equal(t, int64(1), instance.Version)

	loaded, err := store.InstanceRepository().Instance(ctx, "WFI-TEST0001")
	require.NoError(t, err)
	assert.Equal(t, "wf-review", loaded.WorkflowID)
	assert.Equal(t, models.InstanceStatusActive, loaded.Status)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "review", loaded.Steps[0].StepID)
}

func TestInstanceRepositoryNotFound(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.InstanceRepository().Instance(context.Background(), "WFI-MISSING")
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestInstanceRepositoryVersionConflict(t *testing.T) {
	store := NewPersistence(t.TempDir())
	ctx := context.Background()

	instance := &models.WorkflowInstance{ID: "WFI-VER", WorkflowID: "wf-1", Status: models.InstanceStatusActive}
	require.NoError(t, store.InstanceRepository().SaveInstance(ctx, instance))

	// Writer holding a stale version must be rejected.
	stale := &models.WorkflowInstance{ID: "WFI-VER", WorkflowID: "wf-1", Status: models.InstanceStatusActive, Version: 0}
	err := store.InstanceRepository().SaveInstance(ctx, stale)
	assert.True(t, persistence.IsVersionConflict(err))

	// The current version succeeds.
	instance.Status = models.InstanceStatusCompleted
	require.NoError(t, store.InstanceRepository().SaveInstance(ctx, instance))
	assert.Equal(t, int64(2), instance.Version)
}

func TestSearchInstancesFiltering(t *testing.T) {
	store := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := store.InstanceRepository()

	for _, instance := range []*models.WorkflowInstance{
		{ID: "WFI-A", WorkflowID: "wf-1", EntityType: "grant_application", Status: models.InstanceStatusActive, CreatedBy: "alice"},
		{ID: "WFI-B", WorkflowID: "wf-1", EntityType: "grant_application", Status: models.InstanceStatusCompleted, CreatedBy: "bob"},
		{ID: "WFI-C", WorkflowID: "wf-2", EntityType: "report", Status: models.InstanceStatusActive, CreatedBy: "alice"},
	} {
		require.NoError(t, repo.SaveInstance(ctx, instance))
	}

	results, total, err := repo.SearchInstances(ctx, persistence.InstanceFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, results, 2)

	results, total, err = repo.SearchInstances(ctx, persistence.InstanceFilter{
		Status:    []models.InstanceStatus{models.InstanceStatusActive},
		CreatedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	for _, instance := range results {
		assert.Equal(t, "alice", instance.CreatedBy)
		assert.Equal(t, models.InstanceStatusActive, instance.Status)
	}
}

func TestTaskRepositorySearchAndStatistics(t *testing.T) {
	store := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := store.TaskRepository()

	completedAt := time.Now()

	for _, task := range []*models.Task{
		{ID: "TASK-1", Title: "Approve budget", Type: models.TaskTypeApproval, Status: models.TaskStatusPending, Priority: models.PriorityNormal, Assignee: "carol"},
		{ID: "TASK-2", Title: "Verify documents", Type: models.TaskTypeVerification, Status: models.TaskStatusCompleted, Priority: models.PriorityHigh, Assignee: "carol", CompletedDate: &completedAt},
		{ID: "TASK-3", Title: "Data entry", Type: models.TaskTypeDataEntry, Status: models.TaskStatusPending, Priority: models.PriorityLow, Assignee: "dave"},
	} {
		require.NoError(t, repo.SaveTask(ctx, task))
	}

	results, total, err := repo.SearchTasks(ctx, persistence.TaskFilter{Assignee: "carol"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, results, 2)

	stats, err := repo.TaskStatistics(ctx, "carol", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[models.TaskStatusCompleted])
	assert.InDelta(t, 0.5, stats.CompletionRate, 0.001)
}

func TestTaskRepositoryDueBefore(t *testing.T) {
	store := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := store.TaskRepository()

	past := time.Now().Add(-2 * time.Hour)
	future := time.Now().Add(2 * time.Hour)

	require.NoError(t, repo.SaveTask(ctx, &models.Task{ID: "TASK-OD", Title: "Old", Type: models.TaskTypeReview, Status: models.TaskStatusPending, DueDate: &past}))
	require.NoError(t, repo.SaveTask(ctx, &models.Task{ID: "TASK-OK", Title: "New", Type: models.TaskTypeReview, Status: models.TaskStatusPending, DueDate: &future}))

	now := time.Now()
	results, _, err := repo.SearchTasks(ctx, persistence.TaskFilter{DueBefore: &now})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "TASK-OD", results[0].ID)
}

func TestApprovalRepositoryRoundTrip(t *testing.T) {
	store := NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := &models.ApprovalWorkflow{
		ID:         "apw-1",
		Name:       "Grant Review",
		EntityType: "grant_application",
		Stages: []models.ApprovalStage{
			{Name: "manager", Approvers: []string{"a", "b"}, MinApprovals: 2},
		},
		IsActive: true,
	}
	require.NoError(t, store.ApprovalWorkflowRepository().SaveApprovalWorkflow(ctx, workflow))

	approval := &models.Approval{
		ID:         "apr-1",
		WorkflowID: "apw-1",
		EntityID:   "grant-9",
		EntityType: "grant_application",
		Status:     models.ApprovalStatusPending,
		CreatedBy:  "alice",
		AssignedTo: []string{"a", "b"},
	}
	require.NoError(t, store.ApprovalRepository().SaveApproval(ctx, approval))

	loaded, err := store.ApprovalRepository().Approval(ctx, "apr-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, loaded.Status)

	results, total, err := store.ApprovalRepository().SearchApprovals(ctx, persistence.ApprovalFilter{UserID: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, results, 1)
	assert.Equal(t, "apr-1", results[0].ID)

	_, _, err = store.ApprovalRepository().SearchApprovals(ctx, persistence.ApprovalFilter{UserID: "nobody"})
	require.NoError(t, err)
}

func TestHealthCheck(t *testing.T) {
	store := NewPersistence(t.TempDir())
	assert.NoError(t, store.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/grantflow-data")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
