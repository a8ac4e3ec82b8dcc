package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/grantflow/grantflow/pkg/channels/gochannel"
	"github.com/grantflow/grantflow/pkg/eventbus"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/notifier"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCompleter struct {
	instanceID string
	stepID     string
	status     models.StepStatus
	result     any
	calls      int
}

func (c *recordingCompleter) UpdateStepStatus(_ context.Context, instanceID, stepID string, status models.StepStatus, result any, _ string) error {
	c.instanceID = instanceID
	c.stepID = stepID
	c.status = status
	c.result = result
	c.calls++

	return nil
}

func newTestManager(t *testing.T) (*Manager, *recordingCompleter) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	manager := NewManager(store, notifier.NewLogNotifier(), bus)

	completer := &recordingCompleter{}
	manager.SetCompleter(completer)

	return manager, completer
}

func TestCreateTaskDefaults(t *testing.T) {
	manager, _ := newTestManager(t)

	task, err := manager.CreateTask(t.Context(), CreateTaskRequest{
		Title:    "Verify budget attachments",
		Assignee: "analyst-1",
	})
	require.NoError(t, err)

	assert.Contains(t, task.ID, "TASK-")
	assert.Len(t, task.ID, len("TASK-")+8)
	assert.Equal(t, models.TaskTypeDataEntry, task.Type)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, models.PriorityNormal, task.Priority)
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.CreateTask(t.Context(), CreateTaskRequest{Assignee: "analyst-1"})
	require.Error(t, err)
}

func TestSubmitApprovalRejectionOverrides(t *testing.T) {
	manager, _ := newTestManager(t)

	task, err := manager.CreateApprovalTask(t.Context(), CreateApprovalTaskRequest{
		CreateTaskRequest: CreateTaskRequest{Title: "Approve grant disbursement"},
		Approvers:         []string{"x", "y"},
		MinApprovals:      2,
	})
	require.NoError(t, err)

	// A single rejection decides immediately even though y never voted.
	updated, completed, err := manager.SubmitApproval(t.Context(), task.ID, "x", DecisionReject, "budget exceeds cap")
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, models.TaskStatusCompleted, updated.Status)
	assert.Equal(t, models.ApprovalResultRejected, updated.ApprovalResult)
	require.NotNil(t, updated.CompletedDate)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, "budget exceeds cap", updated.Comments[0].Comment)
}

func TestSubmitApprovalAccumulates(t *testing.T) {
	manager, _ := newTestManager(t)

	task, err := manager.CreateApprovalTask(t.Context(), CreateApprovalTaskRequest{
		CreateTaskRequest: CreateTaskRequest{Title: "Approve grant disbursement"},
		Approvers:         []string{"x", "y"},
		MinApprovals:      2,
	})
	require.NoError(t, err)

	updated, completed, err := manager.SubmitApproval(t.Context(), task.ID, "x", DecisionApprove, "")
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, models.TaskStatusPending, updated.Status)

	// Duplicate submissions by the same approver count once.
	updated, completed, err = manager.SubmitApproval(t.Context(), task.ID, "x", DecisionApprove, "")
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Len(t, updated.Approval.Approvals, 1)

	updated, completed, err = manager.SubmitApproval(t.Context(), task.ID, "y", DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, models.ApprovalResultApproved, updated.ApprovalResult)
}

func TestSubmitApprovalRejectsDecisionsOnDecidedTask(t *testing.T) {
	manager, completer := newTestManager(t)

	task, err := manager.CreateApprovalTask(t.Context(), CreateApprovalTaskRequest{
		CreateTaskRequest: CreateTaskRequest{
			Title:              "Approve grant disbursement",
			WorkflowInstanceID: "WFI-ABCD1234",
			StepID:             "manager_approval",
		},
		Approvers:    []string{"x", "y"},
		MinApprovals: 1,
	})
	require.NoError(t, err)

	updated, completed, err := manager.SubmitApproval(t.Context(), task.ID, "x", DecisionApprove, "")
	require.NoError(t, err)
	require.True(t, completed)
	assert.Equal(t, models.ApprovalResultApproved, updated.ApprovalResult)
	require.NotNil(t, updated.CompletedDate)

	decidedAt := *updated.CompletedDate

	// A straggler rejection cannot flip the decided outcome or re-signal the
	// workflow step the first decision already completed.
	_, _, err = manager.SubmitApproval(t.Context(), task.ID, "y", DecisionReject, "too late")
	require.ErrorIs(t, err, ErrTaskTerminal)

	reloaded, err := manager.GetTask(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalResultApproved, reloaded.ApprovalResult)
	assert.Empty(t, reloaded.Approval.Rejections)
	require.NotNil(t, reloaded.CompletedDate)
	assert.True(t, reloaded.CompletedDate.Equal(decidedAt))
	assert.Equal(t, 1, completer.calls)
}

func TestCompleteTaskRejectsTerminalTask(t *testing.T) {
	manager, completer := newTestManager(t)

	task, err := manager.CreateTask(t.Context(), CreateTaskRequest{
		Title:              "Collect signatures",
		WorkflowInstanceID: "WFI-ABCD1234",
		StepID:             "collect",
	})
	require.NoError(t, err)

	_, err = manager.CompleteTask(t.Context(), task.ID, "analyst-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, completer.calls)

	_, err = manager.CompleteTask(t.Context(), task.ID, "analyst-1", nil)
	require.ErrorIs(t, err, ErrTaskTerminal)
	assert.Equal(t, 1, completer.calls)
}

func TestSubmitApprovalOnNonApprovalTask(t *testing.T) {
	manager, _ := newTestManager(t)

	task, err := manager.CreateTask(t.Context(), CreateTaskRequest{Title: "Collect signatures"})
	require.NoError(t, err)

	_, _, err = manager.SubmitApproval(t.Context(), task.ID, "x", DecisionApprove, "")
	require.ErrorIs(t, err, ErrNotApprovalTask)
}

func TestSubmitApprovalRelaysToWorkflow(t *testing.T) {
	manager, completer := newTestManager(t)

	task, err := manager.CreateApprovalTask(t.Context(), CreateApprovalTaskRequest{
		CreateTaskRequest: CreateTaskRequest{
			Title:              "Approve application",
			WorkflowInstanceID: "WFI-ABCD1234",
			StepID:             "manager_approval",
		},
		Approvers: []string{"x"},
	})
	require.NoError(t, err)

	_, completed, err := manager.SubmitApproval(t.Context(), task.ID, "x", DecisionApprove, "")
	require.NoError(t, err)
	require.True(t, completed)

	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, "WFI-ABCD1234", completer.instanceID)
	assert.Equal(t, "manager_approval", completer.stepID)
	assert.Equal(t, models.StepStatusCompleted, completer.status)

	result, ok := completer.result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "approved", result["approval_result"])
}

func TestStandaloneTaskDoesNotRelay(t *testing.T) {
	manager, completer := newTestManager(t)

	task, err := manager.CreateApprovalTask(t.Context(), CreateApprovalTaskRequest{
		CreateTaskRequest: CreateTaskRequest{Title: "Approve expense"},
		Approvers:         []string{"x"},
	})
	require.NoError(t, err)

	_, completed, err := manager.SubmitApproval(t.Context(), task.ID, "x", DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, 0, completer.calls)
}

func TestReassignTask(t *testing.T) {
	manager, _ := newTestManager(t)

	task, err := manager.CreateTask(t.Context(), CreateTaskRequest{
		Title:    "Review compliance docs",
		Assignee: "analyst-1",
	})
	require.NoError(t, err)

	updated, err := manager.ReassignTask(t.Context(), task.ID, "analyst-2", "supervisor-1", "workload balancing")
	require.NoError(t, err)

	assert.Equal(t, "analyst-2", updated.Assignee)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, "supervisor-1", updated.Comments[0].UserID)
	assert.Equal(t, "Task reassigned from analyst-1 to analyst-2: workload balancing", updated.Comments[0].Comment)
}

func TestEscalateTask(t *testing.T) {
	manager, _ := newTestManager(t)

	task, err := manager.CreateTask(t.Context(), CreateTaskRequest{
		Title:    "Chase overdue report",
		Priority: models.PriorityHigh,
	})
	require.NoError(t, err)

	updated, err := manager.EscalateTask(t.Context(), task.ID, "supervisor-1", "deadline at risk")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityCritical, updated.Priority)
	require.Len(t, updated.Comments, 1)

	// Escalating critical is a no-op on priority; the audit trail still grows.
	updated, err = manager.EscalateTask(t.Context(), task.ID, "supervisor-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityCritical, updated.Priority)
	assert.Len(t, updated.Comments, 2)
}

func TestMarkOverdueTasks(t *testing.T) {
	manager, _ := newTestManager(t)

	past := time.Now().Add(-2 * time.Hour)
	future := time.Now().Add(2 * time.Hour)

	overdue, err := manager.CreateTask(t.Context(), CreateTaskRequest{
		Title:    "Submit quarterly report",
		Assignee: "analyst-1",
		DueDate:  &past,
	})
	require.NoError(t, err)

	_, err = manager.CreateTask(t.Context(), CreateTaskRequest{
		Title:   "Plan next review cycle",
		DueDate: &future,
	})
	require.NoError(t, err)

	marked, err := manager.MarkOverdueTasks(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	reloaded, err := manager.GetTask(t.Context(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOverdue, reloaded.Status)
}

func TestGetUserTasksScopesAssignee(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.CreateTask(t.Context(), CreateTaskRequest{Title: "Mine", Assignee: "analyst-1"})
	require.NoError(t, err)
	_, err = manager.CreateTask(t.Context(), CreateTaskRequest{Title: "Theirs", Assignee: "analyst-2"})
	require.NoError(t, err)

	tasks, total, err := manager.GetUserTasks(t.Context(), "analyst-1", persistence.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Mine", tasks[0].Title)
}
