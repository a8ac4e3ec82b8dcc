package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusDraft     InstanceStatus = "draft"
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusPaused    InstanceStatus = "paused"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// IsTerminal reports whether no further step execution is permitted.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed || s == InstanceStatusCancelled
}

// StepStatus represents the state of a single step instance.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusBlocked    StepStatus = "blocked"
)

// IsTerminal reports whether the step has finished for readiness purposes.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// Satisfied reports whether the step counts as a met predecessor: completed
// and skipped steps unblock their successors, failed steps do not.
func (s StepStatus) Satisfied() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

// StepComment is an append-only annotation on a step instance.
type StepComment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Comment     string    `json:"comment"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []string  `json:"attachments,omitempty"`
}

// StepInstance is the runtime state of one definition step, created at
// instantiation time, 1:1 with its WorkflowStep.
type StepInstance struct {
	ID          string         `json:"id"`
	StepID      string         `json:"step_id"`
	Status      StepStatus     `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	Assignee    string         `json:"assignee,omitempty"`
	Comments    []StepComment  `json:"comments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Priority of a workflow instance or task, totally ordered low < critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityOrder = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}

// Escalate returns the next priority tier. Escalating critical is a no-op.
func (p Priority) Escalate() Priority {
	for i, tier := range priorityOrder {
		if tier == p && i < len(priorityOrder)-1 {
			return priorityOrder[i+1]
		}
	}

	return p
}

// WorkflowInstance is the aggregate root of one execution of a
// WorkflowDefinition against a business entity. All mutation goes through the
// engine; Version backs the store's optimistic concurrency check.
type WorkflowInstance struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	EntityID    string          `json:"entity_id"`
	EntityType  string          `json:"entity_type"`
	Status      InstanceStatus  `json:"status"`
	CurrentStep string          `json:"current_step,omitempty"` // advisory; several steps can be in flight
	Variables   map[string]any  `json:"variables"`
	Steps       []*StepInstance `json:"steps"`
	CreatedBy   string          `json:"created_by,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	TimeoutAt   *time.Time      `json:"timeout_at,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StepByStepID finds the step instance bound to a definition step id.
func (i *WorkflowInstance) StepByStepID(stepID string) (*StepInstance, bool) {
	for _, step := range i.Steps {
		if step.StepID == stepID {
			return step, true
		}
	}

	return nil, false
}

// AllStepsTerminal reports whether every step has finished.
func (i *WorkflowInstance) AllStepsTerminal() bool {
	for _, step := range i.Steps {
		if !step.Status.IsTerminal() {
			return false
		}
	}

	return true
}
