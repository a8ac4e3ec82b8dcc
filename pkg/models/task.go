package models

import (
	"slices"
	"time"
)

// TaskType classifies the human work a task represents.
type TaskType string

const (
	TaskTypeApproval     TaskType = "approval"
	TaskTypeReview       TaskType = "review"
	TaskTypeDataEntry    TaskType = "data_entry"
	TaskTypeVerification TaskType = "verification"
	TaskTypeFollowUp     TaskType = "follow_up"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusOverdue    TaskStatus = "overdue"
)

// IsTerminal reports whether the task accepts no further decisions.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// ApprovalResult records the outcome of an approval task.
type ApprovalResult string

const (
	ApprovalResultApproved ApprovalResult = "approved"
	ApprovalResultRejected ApprovalResult = "rejected"
)

// ApprovalConfig is embedded in approval-type tasks. Approvals and Rejections
// are sets keyed by user id, recorded in arrival order but compared by count.
type ApprovalConfig struct {
	Approvers    []string `json:"approvers"`
	Options      []string `json:"options,omitempty"`
	MinApprovals int      `json:"min_approvals"`
	Approvals    []string `json:"approvals"`
	Rejections   []string `json:"rejections"`
}

// RecordApproval adds userID to the approval set. Duplicate submissions by the
// same approver count once.
func (c *ApprovalConfig) RecordApproval(userID string) {
	if !slices.Contains(c.Approvals, userID) {
		c.Approvals = append(c.Approvals, userID)
	}
}

// RecordRejection adds userID to the rejection set, deduplicated.
func (c *ApprovalConfig) RecordRejection(userID string) {
	if !slices.Contains(c.Rejections, userID) {
		c.Rejections = append(c.Rejections, userID)
	}
}

// Outcome decides the approval. A single rejection terminates the task
// regardless of how many approvals exist; otherwise the task completes once
// the deduplicated approval set reaches MinApprovals.
func (c *ApprovalConfig) Outcome() (ApprovalResult, bool) {
	minApprovals := c.MinApprovals
	if minApprovals < 1 {
		minApprovals = 1
	}

	switch {
	case len(c.Rejections) > 0:
		return ApprovalResultRejected, true
	case len(c.Approvals) >= minApprovals:
		return ApprovalResultApproved, true
	default:
		return "", false
	}
}

// TaskComment is an append-only annotation on a task.
type TaskComment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Comment     string    `json:"comment"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []string  `json:"attachments,omitempty"`
}

// Task is a materialized unit of human work. Workflow-originated tasks carry
// WorkflowInstanceID+StepID; standalone tasks leave them empty.
type Task struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"        validate:"required"`
	Description        string          `json:"description,omitempty"`
	Instructions       string          `json:"instructions,omitempty"`
	Type               TaskType        `json:"type"         validate:"required,oneof=approval review data_entry verification follow_up"`
	Status             TaskStatus      `json:"status"`
	Priority           Priority        `json:"priority"`
	Assignee           string          `json:"assignee,omitempty"`
	AssigneeGroup      string          `json:"assignee_group,omitempty"`
	DueDate            *time.Time      `json:"due_date,omitempty"`
	CompletedDate      *time.Time      `json:"completed_date,omitempty"`
	WorkflowInstanceID string          `json:"workflow_instance_id,omitempty"`
	StepID             string          `json:"step_id,omitempty"`
	EntityID           string          `json:"entity_id,omitempty"`
	EntityType         string          `json:"entity_type,omitempty"`
	Approval           *ApprovalConfig `json:"approval,omitempty"` // approval-type tasks only
	ApprovalResult     ApprovalResult  `json:"approval_result,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	Comments           []TaskComment   `json:"comments,omitempty"`
	Attachments        []string        `json:"attachments,omitempty"`
	CreatedBy          string          `json:"created_by,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// WorkflowBound reports whether completing this task must be relayed to the
// workflow engine.
func (t *Task) WorkflowBound() bool {
	return t.WorkflowInstanceID != "" && t.StepID != ""
}
