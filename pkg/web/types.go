package web

import (
	"time"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/tasks"
)

type ExecuteWorkflowRequest struct {
	EntityID    string          `json:"entity_id"    validate:"required"`
	EntityType  string          `json:"entity_type"  validate:"required"`
	Variables   map[string]any  `json:"variables,omitempty"`
	InitiatedBy string          `json:"initiated_by,omitempty"`
	Priority    models.Priority `json:"priority,omitempty"      validate:"omitempty,oneof=low normal high critical"`
}

type UpdateStepStatusRequest struct {
	Status       models.StepStatus `json:"status"                  validate:"required,oneof=pending in_progress completed failed skipped blocked"`
	Result       any               `json:"result,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

type CancelWorkflowRequest struct {
	Reason string `json:"reason,omitempty"`
	UserID string `json:"user_id"          validate:"required"`
}

type CommentRequest struct {
	UserID      string   `json:"user_id"               validate:"required"`
	Comment     string   `json:"comment"               validate:"required"`
	Attachments []string `json:"attachments,omitempty"`
}

type SubmitApprovalRequest struct {
	UserID   string         `json:"user_id"            validate:"required"`
	Decision tasks.Decision `json:"decision"           validate:"required,oneof=approve reject"`
	Comments string         `json:"comments,omitempty"`
}

type CompleteTaskRequest struct {
	UserID string `json:"user_id"          validate:"required"`
	Result any    `json:"result,omitempty"`
}

type ReassignTaskRequest struct {
	NewAssignee  string `json:"new_assignee"     validate:"required"`
	ReassignedBy string `json:"reassigned_by"    validate:"required"`
	Reason       string `json:"reason,omitempty"`
}

type EscalateTaskRequest struct {
	EscalatedBy string `json:"escalated_by"     validate:"required"`
	Reason      string `json:"reason,omitempty"`
}

type CreateApprovalRequest struct {
	WorkflowID string         `json:"workflow_id"        validate:"required"`
	EntityID   string         `json:"entity_id"          validate:"required"`
	EntityType string         `json:"entity_type"        validate:"required"`
	CreatedBy  string         `json:"created_by"         validate:"required"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DueAt      *time.Time     `json:"due_at,omitempty"`
}

type DecisionRequest struct {
	UserID   string          `json:"user_id"          validate:"required"`
	Decision models.Decision `json:"decision"         validate:"required,oneof=APPROVE REJECT REQUEST_CHANGES ESCALATE"`
	Reason   string          `json:"reason,omitempty"`
}
