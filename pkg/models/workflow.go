// Package models defines the core domain models for workflow-routed grant approvals.
package models

import (
	"encoding/json"
	"math"
	"time"
)

// StepType identifies the executor responsible for a workflow step.
type StepType string

const (
	StepTypeApproval     StepType = "approval"     // Waits for an approval task decision
	StepTypeNotification StepType = "notification" // Sends a message, completes immediately
	StepTypeTask         StepType = "task"         // Waits for a human task to complete
	StepTypeService      StepType = "service"      // Calls an external HTTP service
	StepTypeTimer        StepType = "timer"        // Completes after a configured delay
	StepTypeGateway      StepType = "gateway"      // Evaluates a condition to pick successors
)

// RetryPolicy controls re-execution of failed steps.
type RetryPolicy struct {
	MaxAttempts   int     `json:"max_attempts"   validate:"min=1"`
	BackoffFactor float64 `json:"backoff_factor" validate:"min=0"`
	MaxDelay      float64 `json:"max_delay"      validate:"min=0"` // seconds
}

// Backoff returns the delay before re-running attempt+1 given that `attempt`
// executions (1-indexed) have already failed: min(factor * 2^(attempt-1), maxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BackoffFactor * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return time.Duration(delay * float64(time.Second))
}

// Assignee is a definition-time assignee: a single user id or a list of
// candidates. It unmarshals from either a JSON string or a string array.
type Assignee []string

func (a *Assignee) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*a = nil
		} else {
			*a = Assignee{single}
		}

		return nil
	}

	var list []string

	err := json.Unmarshal(data, &list)
	if err != nil {
		return err
	}

	*a = Assignee(list)

	return nil
}

// Resolve picks the concrete assignee for a step instance. Lists resolve to
// their first entry; there is no persisted round-robin state.
func (a Assignee) Resolve() string {
	if len(a) == 0 {
		return ""
	}

	return a[0]
}

// WorkflowStep is a definition-time step. NextSteps are edges to successor
// step IDs; a step with multiple successors fans out.
type WorkflowStep struct {
	ID          string            `json:"id"                     validate:"required"`
	Name        string            `json:"name"                   validate:"required"`
	Type        StepType          `json:"type"                   validate:"required,oneof=approval notification task service timer gateway"`
	Config      map[string]any    `json:"config,omitempty"`
	NextSteps   []string          `json:"next_steps,omitempty"`
	Conditions  map[string]string `json:"conditions,omitempty"`
	Assignee    Assignee          `json:"assignee,omitempty"`
	Timeout     int               `json:"timeout,omitempty"` // seconds
	RetryPolicy *RetryPolicy      `json:"retry_policy,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// ErrorHandlerStep returns the step id configured to absorb unrecoverable
// failures of this step, if any.
func (s *WorkflowStep) ErrorHandlerStep() string {
	handler, _ := s.Config["on_error_step"].(string)

	return handler
}

// WorkflowDefinition is the immutable, versioned template a WorkflowInstance
// executes. The engine never mutates a definition.
type WorkflowDefinition struct {
	ID          string            `json:"id"          validate:"required"`
	Name        string            `json:"name"        validate:"required,min=3"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version"     validate:"required"`
	Steps       []*WorkflowStep   `json:"steps"       validate:"required,min=1,dive"`
	Variables   map[string]any    `json:"variables,omitempty"`
	Conditions  map[string]string `json:"conditions,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// StepByID finds a step definition by id.
func (d *WorkflowDefinition) StepByID(id string) (*WorkflowStep, bool) {
	for _, step := range d.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// IsErrorHandler reports whether any step routes its unrecoverable failures
// to stepID. Handler steps without predecessors are not entry points; they
// only run when a failure routes to them.
func (d *WorkflowDefinition) IsErrorHandler(stepID string) bool {
	for _, step := range d.Steps {
		if step.ErrorHandlerStep() == stepID {
			return true
		}
	}

	return false
}

// Predecessors returns the ids of every step that lists stepID in its
// NextSteps. Steps with no predecessors are the entry points of the graph.
func (d *WorkflowDefinition) Predecessors(stepID string) []string {
	var preds []string

	for _, step := range d.Steps {
		for _, next := range step.NextSteps {
			if next == stepID {
				preds = append(preds, step.ID)

				break
			}
		}
	}

	return preds
}
