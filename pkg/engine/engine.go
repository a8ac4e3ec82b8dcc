// Package engine drives workflow instances from creation to a terminal state
// by sequencing step execution over the definition graph.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grantflow/grantflow/pkg/eventbus"
	"github.com/grantflow/grantflow/pkg/events"
	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/otelhelper"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/registry"
	"github.com/grantflow/grantflow/pkg/steps"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxSaveAttempts = 3

var (
	// ErrInvalidState rejects operations on terminal instances, including
	// step completions racing a cancellation.
	ErrInvalidState = errors.New("workflow instance is in a terminal state")

	ErrStepNotFound     = errors.New("step not found in workflow instance")
	ErrStepAlreadyFinal = errors.New("step already reached a terminal status")
)

// ExecuteRequest carries the inputs of a new workflow execution.
type ExecuteRequest struct {
	WorkflowID  string         `json:"workflow_id" validate:"required"`
	EntityID    string         `json:"entity_id"   validate:"required"`
	EntityType  string         `json:"entity_type" validate:"required"`
	Variables   map[string]any `json:"variables,omitempty"`
	InitiatedBy string         `json:"initiated_by,omitempty"`
	Priority    models.Priority `json:"priority,omitempty"`
	TimeoutAt   *time.Time     `json:"timeout_at,omitempty"`
}

// Engine implements the workflow lifecycle and the steps.Completer callback.
// All instance mutation funnels through its read-modify-write loop; nothing
// else may touch an instance's steps.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	tracer      trace.Tracer

	// after schedules deferred retries; swappable in tests.
	after func(d time.Duration, fn func())
}

func NewEngine(p persistence.Persistence, reg *registry.Registry, bus eventbus.EventBus) *Engine {
	return &Engine{
		persistence: p,
		registry:    reg,
		eventBus:    bus,
		logger:      log.WithModule("engine"),
		tracer:      otel.Tracer("grantflow/engine"),
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// NewInstanceID generates a short human-readable instance id.
func NewInstanceID() string {
	return "WFI-" + strings.ToUpper(uuid.NewString()[:8])
}

// ExecuteWorkflow instantiates a definition and immediately runs every ready
// step. Entry steps are the ones no other step lists as a successor.
func (e *Engine) ExecuteWorkflow(ctx context.Context, req ExecuteRequest) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.ExecuteWorkflow",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.EntityIDKey, req.EntityID),
		attribute.String(otelhelper.EntityTypeKey, req.EntityType))
	defer span.End()

	definition, err := e.persistence.DefinitionRepository().Definition(ctx, req.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	variables := make(map[string]any, len(definition.Variables)+len(req.Variables))

	for key, value := range definition.Variables {
		variables[key] = value
	}

	for key, value := range req.Variables {
		variables[key] = value
	}

	now := time.Now()

	instance := &models.WorkflowInstance{
		ID:         NewInstanceID(),
		WorkflowID: req.WorkflowID,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Status:     models.InstanceStatusActive,
		Variables:  variables,
		CreatedBy:  req.InitiatedBy,
		StartedAt:  &now,
		TimeoutAt:  req.TimeoutAt,
		Metadata:   map[string]any{},
		Steps:      make([]*models.StepInstance, 0, len(definition.Steps)),
	}

	if req.Priority != "" {
		instance.Metadata["priority"] = string(req.Priority)
	}

	if instance.TimeoutAt == nil {
		if hours, ok := definition.Metadata["timeout_hours"].(float64); ok && hours > 0 {
			timeoutAt := now.Add(time.Duration(hours * float64(time.Hour)))
			instance.TimeoutAt = &timeoutAt
		}
	}

	for _, step := range definition.Steps {
		instance.Steps = append(instance.Steps, &models.StepInstance{
			ID:       uuid.NewString(),
			StepID:   step.ID,
			Status:   models.StepStatusPending,
			Assignee: step.Assignee.Resolve(),
		})
	}

	err = e.persistence.InstanceRepository().SaveInstance(ctx, instance)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Workflow instance started",
		"instance_id", instance.ID,
		"workflow_id", req.WorkflowID,
		"entity_id", req.EntityID,
		"steps", len(instance.Steps))

	e.publish(ctx, instance.ID, events.InstanceStarted{
		BaseEvent:  e.baseEvent(events.InstanceStartedEvent, req.WorkflowID),
		InstanceID: instance.ID,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		CreatedBy:  req.InitiatedBy,
	})

	err = e.runReadySteps(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	return e.GetInstance(ctx, instance.ID)
}

func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.persistence.InstanceRepository().Instance(ctx, instanceID)
}

// GetWorkflowHistory lists every execution that routed a business entity.
func (e *Engine) GetWorkflowHistory(ctx context.Context, entityID, entityType string) ([]*models.WorkflowInstance, error) {
	instances, _, err := e.persistence.InstanceRepository().SearchInstances(ctx, persistence.InstanceFilter{
		EntityID:   entityID,
		EntityType: entityType,
		Limit:      100,
	})

	return instances, err
}

func (e *Engine) SearchWorkflows(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, int64, error) {
	return e.persistence.InstanceRepository().SearchInstances(ctx, filter)
}

// UpdateStepStatus applies an externally-signalled step transition: human
// task completions, approval decisions, timer firings, or manual overrides.
// Completions arriving after the instance reached a terminal state are
// rejected with ErrInvalidState.
func (e *Engine) UpdateStepStatus(ctx context.Context, instanceID, stepID string, status models.StepStatus, result any, errMessage string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.UpdateStepStatus",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.StepStatusKey, string(status)))
	defer span.End()

	switch status {
	case models.StepStatusCompleted, models.StepStatusSkipped:
		return e.completeStep(ctx, instanceID, stepID, status, result, nil, nil)
	case models.StepStatusFailed:
		return e.failStep(ctx, instanceID, stepID, errMessage)
	default:
		_, err := e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
			if instance.Status.IsTerminal() {
				return fmt.Errorf("%w: %s", ErrInvalidState, instanceID)
			}

			step, ok := instance.StepByStepID(stepID)
			if !ok {
				return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
			}

			if step.Status.IsTerminal() {
				return fmt.Errorf("%w: %s", ErrStepAlreadyFinal, stepID)
			}

			step.Status = status

			return nil
		})

		return err
	}
}

// completeStep marks a step completed or skipped, merges variables, then
// advances the graph: skips the unchosen successors of a gateway, runs every
// successor that became ready, and completes the instance once all steps are
// terminal.
func (e *Engine) completeStep(ctx context.Context, instanceID, stepID string, status models.StepStatus, result any, variables map[string]any, chosen []string) error {
	instance, err := e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
		if instance.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrInvalidState, instanceID)
		}

		step, ok := instance.StepByStepID(stepID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		}

		if step.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrStepAlreadyFinal, stepID)
		}

		now := time.Now()
		step.Status = status
		step.CompletedAt = &now

		if result != nil {
			step.Result = result
		}

		if instance.Variables == nil {
			instance.Variables = map[string]any{}
		}

		for key, value := range variables {
			instance.Variables[key] = value
		}

		return nil
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Step finished",
		"instance_id", instanceID,
		"step_id", stepID,
		"status", status)

	if status == models.StepStatusCompleted {
		e.publish(ctx, instanceID, events.StepCompleted{
			BaseEvent:  e.baseEvent(events.StepCompletedEvent, instance.WorkflowID),
			InstanceID: instanceID,
			StepID:     stepID,
			Result:     result,
		})
	}

	definition, err := e.persistence.DefinitionRepository().Definition(ctx, instance.WorkflowID)
	if err != nil {
		return err
	}

	stepDef, ok := definition.StepByID(stepID)
	if ok && chosen != nil {
		// A gateway decided: its unchosen direct successors are skipped.
		// Skipped steps still satisfy their own successors.
		for _, successor := range stepDef.NextSteps {
			if slices.Contains(chosen, successor) {
				continue
			}

			err = e.completeStep(ctx, instanceID, successor, models.StepStatusSkipped, nil, nil, nil)
			if err != nil && !errors.Is(err, ErrStepAlreadyFinal) {
				return err
			}
		}
	}

	err = e.runReadySteps(ctx, instanceID)
	if err != nil {
		return err
	}

	return e.maybeCompleteInstance(ctx, instanceID)
}

// runReadySteps executes every pending step whose predecessors are all
// satisfied. Entry steps have no predecessors and run immediately. The scan
// reloads the instance after each execution because a synchronous step
// recurses through completeStep and may finish whole branches of the graph.
func (e *Engine) runReadySteps(ctx context.Context, instanceID string) error {
	for {
		instance, err := e.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}

		if instance.Status.IsTerminal() {
			return nil
		}

		definition, err := e.persistence.DefinitionRepository().Definition(ctx, instance.WorkflowID)
		if err != nil {
			return err
		}

		started := false

		for _, stepDef := range definition.Steps {
			step, ok := instance.StepByStepID(stepDef.ID)
			if !ok || step.Status != models.StepStatusPending {
				continue
			}

			if !e.ready(definition, instance, stepDef.ID) {
				continue
			}

			// Error handlers fire from failure routing, never from the scan.
			if definition.IsErrorHandler(stepDef.ID) && len(definition.Predecessors(stepDef.ID)) == 0 {
				continue
			}

			err = e.executeStep(ctx, instanceID, stepDef.ID)
			if err != nil {
				return err
			}

			started = true

			break
		}

		if !started {
			return nil
		}
	}
}

// ready reports whether every predecessor of stepID is completed or skipped.
func (e *Engine) ready(definition *models.WorkflowDefinition, instance *models.WorkflowInstance, stepID string) bool {
	for _, predID := range definition.Predecessors(stepID) {
		pred, ok := instance.StepByStepID(predID)
		if !ok || !pred.Status.Satisfied() {
			return false
		}
	}

	return true
}

// executeStep dispatches one step to its executor. The attempts counter
// increments exactly once per execution attempt, at the transition into
// in_progress.
func (e *Engine) executeStep(ctx context.Context, instanceID, stepID string) error {
	instance, err := e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
		if instance.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrInvalidState, instanceID)
		}

		step, ok := instance.StepByStepID(stepID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		}

		now := time.Now()
		step.Status = models.StepStatusInProgress
		step.StartedAt = &now
		step.Attempts++
		step.Error = ""

		instance.CurrentStep = stepID

		return nil
	})
	if err != nil {
		return err
	}

	definition, err := e.persistence.DefinitionRepository().Definition(ctx, instance.WorkflowID)
	if err != nil {
		return err
	}

	stepDef, ok := definition.StepByID(stepID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}

	stepInstance, _ := instance.StepByStepID(stepID)

	e.logger.InfoContext(ctx, "Executing step",
		"instance_id", instanceID,
		"step_id", stepID,
		"step_type", stepDef.Type,
		"attempt", stepInstance.Attempts)

	e.publish(ctx, instanceID, events.StepStarted{
		BaseEvent:  e.baseEvent(events.StepStartedEvent, instance.WorkflowID),
		InstanceID: instanceID,
		StepID:     stepID,
		StepType:   stepDef.Type,
		Assignee:   stepInstance.Assignee,
	})

	executor, err := e.registry.Executor(stepDef.Type)
	if err != nil {
		return e.failStep(ctx, instanceID, stepID, err.Error())
	}

	outcome, err := executor.Execute(ctx, steps.Request{
		Instance:     instance,
		Step:         stepDef,
		StepInstance: stepInstance,
	})
	if err != nil {
		return e.failStep(ctx, instanceID, stepID, err.Error())
	}

	if outcome.Completed {
		return e.completeStep(ctx, instanceID, stepID, models.StepStatusCompleted, outcome.Result, outcome.Variables, outcome.ChosenSteps)
	}

	// The step waits for an external signal. Keep the executor's bookkeeping
	// (like the created task id) on the step instance.
	if outcome.Result != nil {
		_, err = e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
			step, ok := instance.StepByStepID(stepID)
			if !ok {
				return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
			}

			if step.Metadata == nil {
				step.Metadata = map[string]any{}
			}

			step.Metadata["execution"] = outcome.Result

			return nil
		})

		return err
	}

	return nil
}

// failStep applies the retry policy: while attempts remain the step parks as
// blocked and a delayed re-execution is scheduled with capped exponential
// backoff; exhausted retries route to the configured error-handler step, or
// fail the whole instance. Blocked keeps the ready scan from re-running the
// step ahead of its backoff timer.
func (e *Engine) failStep(ctx context.Context, instanceID, stepID, errMessage string) error {
	instance, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	definition, err := e.persistence.DefinitionRepository().Definition(ctx, instance.WorkflowID)
	if err != nil {
		return err
	}

	stepDef, ok := definition.StepByID(stepID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}

	var (
		willRetry bool
		attempts  int
	)

	instance, err = e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
		if instance.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrInvalidState, instanceID)
		}

		step, ok := instance.StepByStepID(stepID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		}

		attempts = step.Attempts
		willRetry = stepDef.RetryPolicy != nil && step.Attempts < stepDef.RetryPolicy.MaxAttempts
		step.Error = errMessage

		if willRetry {
			step.Status = models.StepStatusBlocked

			return nil
		}

		now := time.Now()
		step.Status = models.StepStatusFailed
		step.CompletedAt = &now

		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, instanceID, events.StepFailed{
		BaseEvent:  e.baseEvent(events.StepFailedEvent, instance.WorkflowID),
		InstanceID: instanceID,
		StepID:     stepID,
		Error:      errMessage,
		Attempts:   attempts,
		WillRetry:  willRetry,
	})

	if willRetry {
		delay := stepDef.RetryPolicy.Backoff(attempts)

		e.logger.WarnContext(ctx, "Step failed, retry scheduled",
			"instance_id", instanceID,
			"step_id", stepID,
			"attempt", attempts,
			"delay", delay,
			"error", errMessage)

		e.after(delay, func() {
			e.retryStep(instanceID, stepID)
		})

		return nil
	}

	if handlerID := stepDef.ErrorHandlerStep(); handlerID != "" {
		e.logger.WarnContext(ctx, "Step failed, routing to error handler",
			"instance_id", instanceID,
			"step_id", stepID,
			"handler_step_id", handlerID,
			"error", errMessage)

		return e.executeStep(ctx, instanceID, handlerID)
	}

	e.logger.ErrorContext(ctx, "Step failed, no recovery path, failing instance",
		"instance_id", instanceID,
		"step_id", stepID,
		"error", errMessage)

	_, err = e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
		if instance.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrInvalidState, instanceID)
		}

		now := time.Now()
		instance.Status = models.InstanceStatusFailed
		instance.CompletedAt = &now

		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, instanceID, events.InstanceFailed{
		BaseEvent:  e.baseEvent(events.InstanceFailedEvent, instance.WorkflowID),
		InstanceID: instanceID,
		StepID:     stepID,
		Error:      errMessage,
	})

	return nil
}

// retryStep re-executes a step from a scheduled retry. Instances that went
// terminal while the timer ran are left alone.
func (e *Engine) retryStep(instanceID, stepID string) {
	ctx := context.Background()

	instance, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		e.logger.Error("Failed to load instance for retry", "instance_id", instanceID, "error", err)

		return
	}

	if instance.Status.IsTerminal() {
		return
	}

	step, ok := instance.StepByStepID(stepID)
	if !ok || step.Status != models.StepStatusBlocked {
		return
	}

	err = e.executeStep(ctx, instanceID, stepID)
	if err != nil {
		e.logger.Error("Step retry failed", "instance_id", instanceID, "step_id", stepID, "error", err)
	}
}

// maybeCompleteInstance flips an active instance to completed once every
// step reached a terminal status. Error handlers that never fired do not
// hold the instance open; they flip to skipped at completion time.
func (e *Engine) maybeCompleteInstance(ctx context.Context, instanceID string) error {
	instance, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status != models.InstanceStatusActive {
		return nil
	}

	definition, err := e.persistence.DefinitionRepository().Definition(ctx, instance.WorkflowID)
	if err != nil {
		return err
	}

	finished := func(instance *models.WorkflowInstance) bool {
		for _, step := range instance.Steps {
			if step.Status.IsTerminal() {
				continue
			}

			if step.Status == models.StepStatusPending &&
				definition.IsErrorHandler(step.StepID) &&
				len(definition.Predecessors(step.StepID)) == 0 {
				continue
			}

			return false
		}

		return true
	}

	if !finished(instance) {
		return nil
	}

	instance, err = e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
		if instance.Status != models.InstanceStatusActive || !finished(instance) {
			return nil
		}

		now := time.Now()

		for _, step := range instance.Steps {
			if step.Status == models.StepStatusPending {
				step.Status = models.StepStatusSkipped
				step.CompletedAt = &now
			}
		}

		instance.Status = models.InstanceStatusCompleted
		instance.CompletedAt = &now

		return nil
	})
	if err != nil {
		return err
	}

	if instance.Status != models.InstanceStatusCompleted {
		return nil
	}

	duration := time.Duration(0)
	if instance.StartedAt != nil && instance.CompletedAt != nil {
		duration = instance.CompletedAt.Sub(*instance.StartedAt)
	}

	e.logger.InfoContext(ctx, "Workflow instance completed",
		"instance_id", instanceID,
		"duration", duration)

	e.publish(ctx, instanceID, events.InstanceCompleted{
		BaseEvent:  e.baseEvent(events.InstanceCompletedEvent, instance.WorkflowID),
		InstanceID: instanceID,
		Duration:   duration,
	})

	return nil
}

// CancelWorkflow aborts a non-terminal instance: every pending or in-progress
// step flips to skipped. Cancellation is cooperative; in-flight external
// calls are not interrupted, their late completions bounce off the terminal
// check instead.
func (e *Engine) CancelWorkflow(ctx context.Context, instanceID, reason, userID string) error {
	skipped := 0

	instance, err := e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
		if instance.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrInvalidState, instanceID)
		}

		now := time.Now()
		instance.Status = models.InstanceStatusCancelled
		instance.CompletedAt = &now

		if instance.Metadata == nil {
			instance.Metadata = map[string]any{}
		}

		if reason != "" {
			instance.Metadata["cancellation_reason"] = reason
		}

		if userID != "" {
			instance.Metadata["cancelled_by"] = userID
		}

		skipped = 0

		for _, step := range instance.Steps {
			switch step.Status {
			case models.StepStatusPending, models.StepStatusInProgress, models.StepStatusBlocked:
				step.Status = models.StepStatusSkipped
				step.CompletedAt = &now
				skipped++
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Workflow instance cancelled",
		"instance_id", instanceID,
		"cancelled_by", userID,
		"skipped_steps", skipped)

	e.publish(ctx, instanceID, events.InstanceCancelled{
		BaseEvent:    e.baseEvent(events.InstanceCancelledEvent, instance.WorkflowID),
		InstanceID:   instanceID,
		CancelledBy:  userID,
		SkippedSteps: skipped,
	})

	return nil
}

// AddStepComment appends an annotation to a step instance's audit trail.
func (e *Engine) AddStepComment(ctx context.Context, instanceID, stepID, userID, comment string, attachments []string) (*models.StepComment, error) {
	stepComment := models.StepComment{
		ID:          uuid.NewString(),
		UserID:      userID,
		Comment:     comment,
		Timestamp:   time.Now(),
		Attachments: attachments,
	}

	_, err := e.mutate(ctx, instanceID, func(instance *models.WorkflowInstance) error {
		step, ok := instance.StepByStepID(stepID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		}

		step.Comments = append(step.Comments, stepComment)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &stepComment, nil
}

// mutate runs a read-modify-write loop over one instance so concurrent
// completion callbacks merge instead of losing updates.
func (e *Engine) mutate(ctx context.Context, instanceID string, fn func(*models.WorkflowInstance) error) (*models.WorkflowInstance, error) {
	repo := e.persistence.InstanceRepository()

	var lastErr error

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		instance, err := repo.Instance(ctx, instanceID)
		if err != nil {
			return nil, err
		}

		err = fn(instance)
		if err != nil {
			return nil, err
		}

		err = repo.SaveInstance(ctx, instance)
		if err == nil {
			return instance, nil
		}

		if !persistence.IsVersionConflict(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("instance %s mutation kept conflicting: %w", instanceID, lastErr)
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         e.eventBus.GenerateID(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
