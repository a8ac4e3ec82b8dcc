package persistence

import (
	"slices"

	"github.com/grantflow/grantflow/pkg/models"
)

// Matches reports whether an instance satisfies every set filter field.
func (f InstanceFilter) Matches(instance *models.WorkflowInstance) bool {
	if f.WorkflowID != "" && instance.WorkflowID != f.WorkflowID {
		return false
	}

	if f.EntityID != "" && instance.EntityID != f.EntityID {
		return false
	}

	if f.EntityType != "" && instance.EntityType != f.EntityType {
		return false
	}

	if f.CreatedBy != "" && instance.CreatedBy != f.CreatedBy {
		return false
	}

	if len(f.Status) > 0 && !slices.Contains(f.Status, instance.Status) {
		return false
	}

	if f.StartedAfter != nil && (instance.StartedAt == nil || instance.StartedAt.Before(*f.StartedAfter)) {
		return false
	}

	if f.StartedBefore != nil && (instance.StartedAt == nil || instance.StartedAt.After(*f.StartedBefore)) {
		return false
	}

	return true
}

// Matches reports whether a task satisfies every set filter field.
func (f TaskFilter) Matches(task *models.Task) bool {
	if f.Assignee != "" && task.Assignee != f.Assignee {
		return false
	}

	if f.AssigneeGroup != "" && task.AssigneeGroup != f.AssigneeGroup {
		return false
	}

	if f.WorkflowInstanceID != "" && task.WorkflowInstanceID != f.WorkflowInstanceID {
		return false
	}

	if f.EntityID != "" && task.EntityID != f.EntityID {
		return false
	}

	if f.EntityType != "" && task.EntityType != f.EntityType {
		return false
	}

	if len(f.Status) > 0 && !slices.Contains(f.Status, task.Status) {
		return false
	}

	if len(f.Priority) > 0 && !slices.Contains(f.Priority, task.Priority) {
		return false
	}

	if len(f.Type) > 0 && !slices.Contains(f.Type, task.Type) {
		return false
	}

	if f.DueBefore != nil && (task.DueDate == nil || !task.DueDate.Before(*f.DueBefore)) {
		return false
	}

	if f.DueAfter != nil && (task.DueDate == nil || !task.DueDate.After(*f.DueAfter)) {
		return false
	}

	if f.CreatedBefore != nil && !task.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}

	if f.CreatedAfter != nil && !task.CreatedAt.After(*f.CreatedAfter) {
		return false
	}

	return true
}

// Matches reports whether an approval satisfies every set filter field.
// UserID matches creators, current assignees, and past approvers.
func (f ApprovalFilter) Matches(approval *models.Approval) bool {
	if f.WorkflowID != "" && approval.WorkflowID != f.WorkflowID {
		return false
	}

	if f.EntityID != "" && approval.EntityID != f.EntityID {
		return false
	}

	if f.UserID != "" &&
		approval.CreatedBy != f.UserID &&
		!slices.Contains(approval.AssignedTo, f.UserID) &&
		!slices.Contains(approval.ApprovedBy, f.UserID) {
		return false
	}

	if len(f.Status) > 0 && !slices.Contains(f.Status, approval.Status) {
		return false
	}

	if f.DueBefore != nil && (approval.DueAt == nil || !approval.DueAt.Before(*f.DueBefore)) {
		return false
	}

	return true
}

// Paginate slices items to a 1-based page. Limit defaults to 20, capped at 100.
func Paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if page <= 0 {
		page = 1
	}

	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}

	end := min(start+limit, len(items))

	return items[start:end]
}
