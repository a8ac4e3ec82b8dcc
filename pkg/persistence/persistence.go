// Package persistence provides the storage abstraction for workflow
// definitions, instances, tasks, and approvals.
package persistence

import (
	"context"
	"time"

	"github.com/grantflow/grantflow/pkg/models"
)

// InstanceFilter narrows SearchInstances. Zero values mean "any".
type InstanceFilter struct {
	WorkflowID    string
	EntityID      string
	EntityType    string
	Status        []models.InstanceStatus
	CreatedBy     string
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Page          int
	Limit         int
}

// TaskFilter narrows SearchTasks.
type TaskFilter struct {
	Assignee           string
	AssigneeGroup      string
	Status             []models.TaskStatus
	Priority           []models.Priority
	Type               []models.TaskType
	WorkflowInstanceID string
	EntityID           string
	EntityType         string
	DueBefore          *time.Time
	DueAfter           *time.Time
	CreatedBefore      *time.Time
	CreatedAfter       *time.Time
	Page               int
	Limit              int
}

// ApprovalFilter narrows SearchApprovals. UserID matches approvals the user
// created, is assigned to, or has approved.
type ApprovalFilter struct {
	WorkflowID string
	EntityID   string
	UserID     string
	Status     []models.ApprovalStatus
	DueBefore  *time.Time
	Page       int
	Limit      int
}

// TaskStatistics aggregates task counts for reporting.
type TaskStatistics struct {
	Total                int64                       `json:"total"`
	ByStatus             map[models.TaskStatus]int64 `json:"by_status"`
	ByPriority           map[models.Priority]int64   `json:"by_priority"`
	ByType               map[models.TaskType]int64   `json:"by_type"`
	CompletionRate       float64                     `json:"completion_rate"`
	AverageCompletionHrs float64                     `json:"average_completion_hours,omitempty"`
}

// DefinitionRepository supplies immutable workflow definitions. The engine
// treats definitions as read-only; Save exists for the authoring surface.
type DefinitionRepository interface {
	Definition(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
	SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error
}

// InstanceRepository stores workflow instance aggregates. SaveInstance must be
// atomic per instance: implementations reject a stale Version with
// ErrVersionConflict and bump Version on success.
type InstanceRepository interface {
	Instance(ctx context.Context, id string) (*models.WorkflowInstance, error)
	SaveInstance(ctx context.Context, instance *models.WorkflowInstance) error
	SearchInstances(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, int64, error)
}

// TaskRepository stores tasks with the same versioned save semantics.
type TaskRepository interface {
	Task(ctx context.Context, id string) (*models.Task, error)
	SaveTask(ctx context.Context, task *models.Task) error
	SearchTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, int64, error)
	TaskStatistics(ctx context.Context, userID string, from, to *time.Time) (*TaskStatistics, error)
}

// ApprovalWorkflowRepository stores approval stage templates.
type ApprovalWorkflowRepository interface {
	ApprovalWorkflow(ctx context.Context, id string) (*models.ApprovalWorkflow, error)
	ApprovalWorkflows(ctx context.Context) ([]*models.ApprovalWorkflow, error)
	SaveApprovalWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error
}

// ApprovalRepository stores live approvals with versioned saves.
type ApprovalRepository interface {
	Approval(ctx context.Context, id string) (*models.Approval, error)
	SaveApproval(ctx context.Context, approval *models.Approval) error
	SearchApprovals(ctx context.Context, filter ApprovalFilter) ([]*models.Approval, int64, error)
}

// Persistence is the root storage interface handed to the core components.
type Persistence interface {
	DefinitionRepository() DefinitionRepository
	InstanceRepository() InstanceRepository
	TaskRepository() TaskRepository
	ApprovalWorkflowRepository() ApprovalWorkflowRepository
	ApprovalRepository() ApprovalRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
