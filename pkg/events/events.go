// Package events defines event types and structures for workflow, approval,
// and task lifecycle notifications.
package events

import (
	"time"

	"github.com/grantflow/grantflow/pkg/models"
)

type EventType string

// Topic is the bus topic every lifecycle event is published on.
const Topic = "grantflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow instance lifecycle events.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
	InstanceCancelledEvent EventType = "instance.cancelled"

	// Step lifecycle events.
	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"

	// Approval lifecycle events.
	ApprovalCreatedEvent   EventType = "approval.created"
	ApprovalDecidedEvent   EventType = "approval.decided"
	ApprovalEscalatedEvent EventType = "approval.escalated"

	// Task lifecycle events.
	TaskCreatedEvent   EventType = "task.created"
	TaskCompletedEvent EventType = "task.completed"

	// Outbound notification requests.
	NotificationQueuedEvent EventType = "notification.queued"
)

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type InstanceStarted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	CreatedBy  string `json:"created_by,omitempty"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	InstanceID string        `json:"instance_id"`
	Duration   time.Duration `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceFailed struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	StepID     string `json:"step_id,omitempty"`
	Error      string `json:"error"`
}

func (e InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}

type InstanceCancelled struct {
	BaseEvent

	InstanceID   string `json:"instance_id"`
	CancelledBy  string `json:"cancelled_by,omitempty"`
	SkippedSteps int    `json:"skipped_steps"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type StepStarted struct {
	BaseEvent

	InstanceID string          `json:"instance_id"`
	StepID     string          `json:"step_id"`
	StepType   models.StepType `json:"step_type"`
	Assignee   string          `json:"assignee,omitempty"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	StepID     string `json:"step_id"`
	Result     any    `json:"result,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	StepID     string `json:"step_id"`
	Error      string `json:"error"`
	Attempts   int    `json:"attempts"`
	WillRetry  bool   `json:"will_retry"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type ApprovalCreated struct {
	BaseEvent

	ApprovalID string   `json:"approval_id"`
	EntityID   string   `json:"entity_id"`
	EntityType string   `json:"entity_type"`
	Stage      string   `json:"stage"`
	AssignedTo []string `json:"assigned_to"`
}

func (e ApprovalCreated) GetType() EventType {
	return ApprovalCreatedEvent
}

type ApprovalDecided struct {
	BaseEvent

	ApprovalID string                `json:"approval_id"`
	UserID     string                `json:"user_id"`
	Decision   models.Decision       `json:"decision"`
	Status     models.ApprovalStatus `json:"status"`
	Stage      string                `json:"stage,omitempty"`
}

func (e ApprovalDecided) GetType() EventType {
	return ApprovalDecidedEvent
}

type ApprovalEscalated struct {
	BaseEvent

	ApprovalID  string `json:"approval_id"`
	EscalatedBy string `json:"escalated_by"`
	EscalatedTo string `json:"escalated_to,omitempty"`
	Exhausted   bool   `json:"exhausted"`
}

func (e ApprovalEscalated) GetType() EventType {
	return ApprovalEscalatedEvent
}

type TaskCreated struct {
	BaseEvent

	TaskID     string          `json:"task_id"`
	TaskType   models.TaskType `json:"task_type"`
	Assignee   string          `json:"assignee,omitempty"`
	InstanceID string          `json:"instance_id,omitempty"`
}

func (e TaskCreated) GetType() EventType {
	return TaskCreatedEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID     string            `json:"task_id"`
	Status     models.TaskStatus `json:"status"`
	InstanceID string            `json:"instance_id,omitempty"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type NotificationQueued struct {
	BaseEvent

	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

func (e NotificationQueued) GetType() EventType {
	return NotificationQueuedEvent
}
