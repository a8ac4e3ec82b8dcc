// Package tasks manages human work items: generic tasks, approval tasks with
// embedded multi-approver configuration, reassignment, and escalation.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/grantflow/grantflow/pkg/eventbus"
	"github.com/grantflow/grantflow/pkg/events"
	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/notifier"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/steps"
)

const maxSaveAttempts = 3

var (
	ErrNotApprovalTask       = errors.New("task is not an approval task")
	ErrMissingApprovalConfig = errors.New("approval configuration not found")
	ErrInvalidDecision       = errors.New("invalid decision")

	// ErrTaskTerminal rejects decisions and completions arriving after the
	// task already reached a terminal status.
	ErrTaskTerminal = errors.New("task is in a terminal state")
)

// Decision on an approval task.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// CreateTaskRequest carries the caller-supplied fields of a new task.
type CreateTaskRequest struct {
	Title              string          `json:"title"                          validate:"required"`
	Description        string          `json:"description,omitempty"`
	Instructions       string          `json:"instructions,omitempty"`
	Type               models.TaskType `json:"type,omitempty"`
	Priority           models.Priority `json:"priority,omitempty"`
	Assignee           string          `json:"assignee,omitempty"`
	AssigneeGroup      string          `json:"assignee_group,omitempty"`
	DueDate            *time.Time      `json:"due_date,omitempty"`
	WorkflowInstanceID string          `json:"workflow_instance_id,omitempty"`
	StepID             string          `json:"step_id,omitempty"`
	EntityID           string          `json:"entity_id,omitempty"`
	EntityType         string          `json:"entity_type,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	CreatedBy          string          `json:"created_by,omitempty"`
}

// CreateApprovalTaskRequest adds the approval configuration.
type CreateApprovalTaskRequest struct {
	CreateTaskRequest

	Approvers    []string `json:"approvers"               validate:"required,min=1"`
	Options      []string `json:"options,omitempty"`
	MinApprovals int      `json:"min_approvals,omitempty"`
}

// TaskUpdate applies partial updates; nil fields are left untouched.
type TaskUpdate struct {
	Status   *models.TaskStatus `json:"status,omitempty"`
	Priority *models.Priority   `json:"priority,omitempty"`
	Assignee *string            `json:"assignee,omitempty"`
	DueDate  *time.Time         `json:"due_date,omitempty"`
}

// Manager owns all task mutation. Workflow-bound approval decisions are
// relayed to the workflow engine through the Completer callback.
type Manager struct {
	persistence persistence.Persistence
	notifier    notifier.Notifier
	eventBus    eventbus.EventBus
	validator   *validator.Validate
	logger      *slog.Logger
	completer   steps.Completer
}

func NewManager(p persistence.Persistence, n notifier.Notifier, bus eventbus.EventBus) *Manager {
	return &Manager{
		persistence: p,
		notifier:    n,
		eventBus:    bus,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		logger:      log.WithModule("tasks"),
	}
}

// SetCompleter wires the workflow engine callback. Set once at startup, after
// the engine is constructed.
func (m *Manager) SetCompleter(c steps.Completer) {
	m.completer = c
}

// NewTaskID generates a short human-readable task id.
func NewTaskID() string {
	return "TASK-" + strings.ToUpper(uuid.NewString()[:8])
}

func (m *Manager) CreateTask(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	err := m.validator.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("invalid task request: %w", err)
	}

	taskType := req.Type
	if taskType == "" {
		taskType = models.TaskTypeDataEntry
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	task := &models.Task{
		ID:                 NewTaskID(),
		Title:              req.Title,
		Description:        req.Description,
		Instructions:       req.Instructions,
		Type:               taskType,
		Status:             models.TaskStatusPending,
		Priority:           priority,
		Assignee:           req.Assignee,
		AssigneeGroup:      req.AssigneeGroup,
		DueDate:            req.DueDate,
		WorkflowInstanceID: req.WorkflowInstanceID,
		StepID:             req.StepID,
		EntityID:           req.EntityID,
		EntityType:         req.EntityType,
		Metadata:           metadata,
		CreatedBy:          req.CreatedBy,
	}

	err = m.persistence.TaskRepository().SaveTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	m.logger.InfoContext(ctx, "Task created",
		"task_id", task.ID,
		"title", task.Title,
		"assignee", task.Assignee,
		"type", task.Type)

	m.publish(ctx, task.ID, events.TaskCreated{
		BaseEvent:  m.baseEvent(events.TaskCreatedEvent),
		TaskID:     task.ID,
		TaskType:   task.Type,
		Assignee:   task.Assignee,
		InstanceID: task.WorkflowInstanceID,
	})

	return task, nil
}

// CreateApprovalTask materializes an approval-type task and notifies each
// approver.
func (m *Manager) CreateApprovalTask(ctx context.Context, req CreateApprovalTaskRequest) (*models.Task, error) {
	err := m.validator.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("invalid approval task request: %w", err)
	}

	minApprovals := req.MinApprovals
	if minApprovals < 1 {
		minApprovals = 1
	}

	req.Type = models.TaskTypeApproval

	task, err := m.CreateTask(ctx, req.CreateTaskRequest)
	if err != nil {
		return nil, err
	}

	approval := &models.ApprovalConfig{
		Approvers:    req.Approvers,
		Options:      req.Options,
		MinApprovals: minApprovals,
		Approvals:    []string{},
		Rejections:   []string{},
	}

	task, err = m.mutate(ctx, task.ID, func(t *models.Task) error {
		t.Approval = approval

		return nil
	})
	if err != nil {
		return nil, err
	}

	body := req.Description
	if body == "" {
		body = "Your approval is required"
	}

	m.notify(ctx, notifier.Notification{
		Recipients: req.Approvers,
		Subject:    "Approval Required: " + req.Title,
		Body:       body,
		Data: map[string]any{
			"task_id":     task.ID,
			"entity_id":   req.EntityID,
			"entity_type": req.EntityType,
		},
	})

	return task, nil
}

func (m *Manager) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return m.persistence.TaskRepository().Task(ctx, taskID)
}

func (m *Manager) UpdateTask(ctx context.Context, taskID string, update TaskUpdate, userID string) (*models.Task, error) {
	task, err := m.mutate(ctx, taskID, func(t *models.Task) error {
		if update.Status != nil {
			t.Status = *update.Status

			if *update.Status == models.TaskStatusCompleted {
				now := time.Now()
				t.CompletedDate = &now
			}
		}

		if update.Priority != nil {
			t.Priority = *update.Priority
		}

		if update.Assignee != nil {
			t.Assignee = *update.Assignee
		}

		if update.DueDate != nil {
			t.DueDate = update.DueDate
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Task updated", "task_id", taskID, "user_id", userID)

	return task, nil
}

// AddTaskComment appends an annotation; comments are never edited or removed.
func (m *Manager) AddTaskComment(ctx context.Context, taskID, userID, comment string, attachments []string) (*models.TaskComment, error) {
	taskComment := models.TaskComment{
		ID:          uuid.NewString(),
		UserID:      userID,
		Comment:     comment,
		Timestamp:   time.Now(),
		Attachments: attachments,
	}

	_, err := m.mutate(ctx, taskID, func(t *models.Task) error {
		t.Comments = append(t.Comments, taskComment)

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Task comment added",
		"task_id", taskID,
		"comment_id", taskComment.ID,
		"user_id", userID)

	return &taskComment, nil
}

// SubmitApproval records one approver's decision. The returned bool reports
// whether the decision completed the task: any rejection decides immediately,
// otherwise the deduplicated approval set must reach MinApprovals. Partial
// approval counts are durable but non-terminal. Decisions on a task that
// already completed or was cancelled are rejected with ErrTaskTerminal, so a
// straggler can never flip a decided outcome or re-signal the workflow.
// Workflow-bound completions are relayed to the engine.
func (m *Manager) SubmitApproval(ctx context.Context, taskID, userID string, decision Decision, comments string) (*models.Task, bool, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	var completed bool

	task, err := m.mutate(ctx, taskID, func(t *models.Task) error {
		if t.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrTaskTerminal, t.ID)
		}

		if t.Type != models.TaskTypeApproval {
			return ErrNotApprovalTask
		}

		if t.Approval == nil {
			return ErrMissingApprovalConfig
		}

		if decision == DecisionApprove {
			t.Approval.RecordApproval(userID)
		} else {
			t.Approval.RecordRejection(userID)
		}

		if comments != "" {
			t.Comments = append(t.Comments, models.TaskComment{
				ID:        uuid.NewString(),
				UserID:    userID,
				Comment:   comments,
				Timestamp: time.Now(),
			})
		}

		result, decided := t.Approval.Outcome()
		completed = decided

		if decided {
			t.Status = models.TaskStatusCompleted
			t.ApprovalResult = result
			now := time.Now()
			t.CompletedDate = &now
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	m.logger.InfoContext(ctx, "Approval submitted",
		"task_id", taskID,
		"user_id", userID,
		"decision", decision,
		"approvals", len(task.Approval.Approvals),
		"rejections", len(task.Approval.Rejections),
		"completed", completed)

	if !completed {
		return task, false, nil
	}

	m.publish(ctx, task.ID, events.TaskCompleted{
		BaseEvent:  m.baseEvent(events.TaskCompletedEvent),
		TaskID:     task.ID,
		Status:     task.Status,
		InstanceID: task.WorkflowInstanceID,
	})

	if task.WorkflowBound() && m.completer != nil {
		result := map[string]any{
			"approval_result": string(task.ApprovalResult),
			"approvals":       task.Approval.Approvals,
			"rejections":      task.Approval.Rejections,
			"task_id":         task.ID,
		}

		err = m.completer.UpdateStepStatus(ctx, task.WorkflowInstanceID, task.StepID, models.StepStatusCompleted, result, "")
		if err != nil {
			return task, true, fmt.Errorf("failed to relay approval to workflow %s: %w", task.WorkflowInstanceID, err)
		}
	}

	return task, true, nil
}

// CompleteTask marks a generic task done and relays workflow-bound
// completions to the engine.
func (m *Manager) CompleteTask(ctx context.Context, taskID, userID string, result any) (*models.Task, error) {
	task, err := m.mutate(ctx, taskID, func(t *models.Task) error {
		if t.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrTaskTerminal, t.ID)
		}

		t.Status = models.TaskStatusCompleted
		now := time.Now()
		t.CompletedDate = &now

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Task completed", "task_id", taskID, "user_id", userID)

	m.publish(ctx, task.ID, events.TaskCompleted{
		BaseEvent:  m.baseEvent(events.TaskCompletedEvent),
		TaskID:     task.ID,
		Status:     task.Status,
		InstanceID: task.WorkflowInstanceID,
	})

	if task.WorkflowBound() && m.completer != nil {
		err = m.completer.UpdateStepStatus(ctx, task.WorkflowInstanceID, task.StepID, models.StepStatusCompleted, result, "")
		if err != nil {
			return task, fmt.Errorf("failed to relay completion to workflow %s: %w", task.WorkflowInstanceID, err)
		}
	}

	return task, nil
}

func (m *Manager) SearchTasks(ctx context.Context, filter persistence.TaskFilter) ([]*models.Task, int64, error) {
	return m.persistence.TaskRepository().SearchTasks(ctx, filter)
}

func (m *Manager) GetUserTasks(ctx context.Context, userID string, filter persistence.TaskFilter) ([]*models.Task, int64, error) {
	filter.Assignee = userID

	return m.persistence.TaskRepository().SearchTasks(ctx, filter)
}

// GetOverdueTasks returns open tasks whose due date has passed.
func (m *Manager) GetOverdueTasks(ctx context.Context) ([]*models.Task, error) {
	now := time.Now()

	tasks, _, err := m.persistence.TaskRepository().SearchTasks(ctx, persistence.TaskFilter{
		Status:    []models.TaskStatus{models.TaskStatusPending, models.TaskStatusInProgress},
		DueBefore: &now,
		Limit:     100,
	})

	return tasks, err
}

func (m *Manager) GetTaskStatistics(ctx context.Context, userID string, from, to *time.Time) (*persistence.TaskStatistics, error) {
	return m.persistence.TaskRepository().TaskStatistics(ctx, userID, from, to)
}

// ReassignTask swaps the assignee and appends an audit comment.
func (m *Manager) ReassignTask(ctx context.Context, taskID, newAssignee, reassignedBy, reason string) (*models.Task, error) {
	var oldAssignee string

	task, err := m.mutate(ctx, taskID, func(t *models.Task) error {
		oldAssignee = t.Assignee
		if oldAssignee == "" {
			oldAssignee = "unassigned"
		}

		comment := fmt.Sprintf("Task reassigned from %s to %s", oldAssignee, newAssignee)
		if reason != "" {
			comment += ": " + reason
		}

		t.Assignee = newAssignee
		t.Comments = append(t.Comments, models.TaskComment{
			ID:        uuid.NewString(),
			UserID:    reassignedBy,
			Comment:   comment,
			Timestamp: time.Now(),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Task reassigned",
		"task_id", taskID,
		"old_assignee", oldAssignee,
		"new_assignee", newAssignee,
		"reassigned_by", reassignedBy)

	m.notify(ctx, notifier.Notification{
		Recipients: []string{newAssignee},
		Subject:    "Task assigned: " + task.Title,
		Body:       task.Description,
		Data:       map[string]any{"task_id": task.ID},
	})

	return task, nil
}

// EscalateTask advances priority by exactly one tier; escalating a critical
// task keeps it critical. An audit comment records the change.
func (m *Manager) EscalateTask(ctx context.Context, taskID, escalatedBy, reason string) (*models.Task, error) {
	task, err := m.mutate(ctx, taskID, func(t *models.Task) error {
		t.Priority = t.Priority.Escalate()

		comment := fmt.Sprintf("Task escalated to %s priority", t.Priority)
		if reason != "" {
			comment += ": " + reason
		}

		t.Comments = append(t.Comments, models.TaskComment{
			ID:        uuid.NewString(),
			UserID:    escalatedBy,
			Comment:   comment,
			Timestamp: time.Now(),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Task escalated",
		"task_id", taskID,
		"new_priority", task.Priority,
		"escalated_by", escalatedBy)

	return task, nil
}

// MarkOverdueTasks flips open tasks past their due date to overdue. Driven by
// the external sweeper, not a self-driving timer.
func (m *Manager) MarkOverdueTasks(ctx context.Context) (int, error) {
	tasks, err := m.GetOverdueTasks(ctx)
	if err != nil {
		return 0, err
	}

	marked := 0

	for _, task := range tasks {
		_, err = m.mutate(ctx, task.ID, func(t *models.Task) error {
			if t.Status.IsTerminal() {
				return nil
			}

			t.Status = models.TaskStatusOverdue

			return nil
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to mark task overdue", "task_id", task.ID, "error", err)

			continue
		}

		marked++

		if task.Assignee != "" {
			m.notify(ctx, notifier.Notification{
				Recipients: []string{task.Assignee},
				Subject:    "Task overdue: " + task.Title,
				Data:       map[string]any{"task_id": task.ID},
			})
		}
	}

	return marked, nil
}

// mutate runs a read-modify-write loop so two concurrent decisions merge
// instead of one silently overwriting the other.
func (m *Manager) mutate(ctx context.Context, taskID string, fn func(*models.Task) error) (*models.Task, error) {
	repo := m.persistence.TaskRepository()

	var lastErr error

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		task, err := repo.Task(ctx, taskID)
		if err != nil {
			return nil, err
		}

		err = fn(task)
		if err != nil {
			return nil, err
		}

		err = repo.SaveTask(ctx, task)
		if err == nil {
			return task, nil
		}

		if !persistence.IsVersionConflict(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("task %s mutation kept conflicting: %w", taskID, lastErr)
}

func (m *Manager) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        m.eventBus.GenerateID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	err := m.eventBus.Publish(ctx, key, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (m *Manager) notify(ctx context.Context, notification notifier.Notification) {
	err := m.notifier.Notify(ctx, notification)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to send notification", "subject", notification.Subject, "error", err)
	}
}
