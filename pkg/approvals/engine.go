// Package approvals implements stage-gated multi-approver approvals with
// escalation chains, distinct from generic workflow approval steps.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/grantflow/grantflow/pkg/eventbus"
	"github.com/grantflow/grantflow/pkg/events"
	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/notifier"
	"github.com/grantflow/grantflow/pkg/persistence"
)

const maxSaveAttempts = 3

// SystemUserID attributes automated decisions, like overdue auto-escalation.
const SystemUserID = "system"

var (
	ErrWorkflowHasNoStages = errors.New("approval workflow has no stages")
	ErrInvalidStage        = errors.New("invalid workflow stage")
	ErrUnauthorized        = errors.New("user not authorized to approve this stage")
	ErrInvalidDecision     = errors.New("invalid decision")
	ErrApprovalTerminal    = errors.New("approval is in a terminal state")
)

// ApprovalStats summarizes the approvals a user is involved with.
type ApprovalStats struct {
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	InReview     int64 `json:"in_review"`
	Approved     int64 `json:"approved"`
	Rejected     int64 `json:"rejected"`
	Overdue      int64 `json:"overdue"`
	AssignedToMe int64 `json:"assigned_to_me"`
}

// Engine drives approvals through their stage machine.
type Engine struct {
	persistence persistence.Persistence
	notifier    notifier.Notifier
	eventBus    eventbus.EventBus
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewEngine(p persistence.Persistence, n notifier.Notifier, bus eventbus.EventBus) *Engine {
	return &Engine{
		persistence: p,
		notifier:    n,
		eventBus:    bus,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		logger:      log.WithModule("approvals"),
	}
}

// CreateApprovalWorkflow stores a stage template for later approvals.
func (e *Engine) CreateApprovalWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) (*models.ApprovalWorkflow, error) {
	err := e.validator.Struct(workflow)
	if err != nil {
		return nil, fmt.Errorf("invalid approval workflow: %w", err)
	}

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	err = e.persistence.ApprovalWorkflowRepository().SaveApprovalWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Approval workflow created",
		"workflow_id", workflow.ID,
		"name", workflow.Name,
		"stages", len(workflow.Stages))

	return workflow, nil
}

func (e *Engine) GetApprovalWorkflow(ctx context.Context, id string) (*models.ApprovalWorkflow, error) {
	return e.persistence.ApprovalWorkflowRepository().ApprovalWorkflow(ctx, id)
}

func (e *Engine) GetApprovalWorkflows(ctx context.Context, includeInactive bool) ([]*models.ApprovalWorkflow, error) {
	workflows, err := e.persistence.ApprovalWorkflowRepository().ApprovalWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	if includeInactive {
		return workflows, nil
	}

	active := make([]*models.ApprovalWorkflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.IsActive {
			active = append(active, workflow)
		}
	}

	return active, nil
}

// CreateApproval starts a new approval run at stage zero and notifies the
// first stage's approvers.
func (e *Engine) CreateApproval(ctx context.Context, workflowID, entityID, entityType, createdBy string, metadata map[string]any, dueAt *time.Time) (*models.Approval, error) {
	workflow, err := e.persistence.ApprovalWorkflowRepository().ApprovalWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	firstStage, ok := workflow.Stage(0)
	if !ok {
		return nil, ErrWorkflowHasNoStages
	}

	approval := &models.Approval{
		ID:           uuid.NewString(),
		WorkflowID:   workflowID,
		EntityID:     entityID,
		EntityType:   entityType,
		CurrentStage: 0,
		Status:       models.ApprovalStatusPending,
		CreatedBy:    createdBy,
		AssignedTo:   firstStage.Approvers,
		ApprovedBy:   []string{},
		DueAt:        dueAt,
		Metadata:     metadata,
	}

	err = e.persistence.ApprovalRepository().SaveApproval(ctx, approval)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Approval created",
		"approval_id", approval.ID,
		"workflow_id", workflowID,
		"entity_id", entityID,
		"stage", firstStage.Name)

	e.notifyAssignment(ctx, approval, firstStage.Name)

	e.publish(ctx, approval.ID, events.ApprovalCreated{
		BaseEvent:  e.baseEvent(events.ApprovalCreatedEvent, workflowID),
		ApprovalID: approval.ID,
		EntityID:   entityID,
		EntityType: entityType,
		Stage:      firstStage.Name,
		AssignedTo: approval.AssignedTo,
	})

	return approval, nil
}

func (e *Engine) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	return e.persistence.ApprovalRepository().Approval(ctx, id)
}

// GetUserApprovals lists approvals the user created, is assigned to, or has
// approved, optionally filtered by status.
func (e *Engine) GetUserApprovals(ctx context.Context, userID string, status []models.ApprovalStatus, page, limit int) ([]*models.Approval, int64, error) {
	return e.persistence.ApprovalRepository().SearchApprovals(ctx, persistence.ApprovalFilter{
		UserID: userID,
		Status: status,
		Page:   page,
		Limit:  limit,
	})
}

// ProcessDecision applies one approver's decision to the current stage.
func (e *Engine) ProcessDecision(ctx context.Context, approvalID, userID string, decision models.Decision, reason string) (*models.Approval, error) {
	var (
		workflow           *models.ApprovalWorkflow
		priorAssignees     []string
		nextStageApprovers []string
		nextStageName      string
		escalatedTo        string
		exhausted          bool
	)

	approval, err := e.mutate(ctx, approvalID, func(a *models.Approval) error {
		if a.Status.IsTerminal() {
			return ErrApprovalTerminal
		}

		var err error

		workflow, err = e.persistence.ApprovalWorkflowRepository().ApprovalWorkflow(ctx, a.WorkflowID)
		if err != nil {
			return err
		}

		stage, ok := workflow.Stage(a.CurrentStage)
		if !ok {
			return ErrInvalidStage
		}

		if !a.AssignedToUser(userID) && userID != SystemUserID {
			return ErrUnauthorized
		}

		priorAssignees = a.AssignedTo
		nextStageApprovers = nil

		switch decision {
		case models.DecisionApprove:
			e.applyApproval(a, workflow, stage, userID, reason)

			if a.Status != models.ApprovalStatusApproved && len(a.ApprovedBy) == 0 {
				// Stage advanced: remember who to notify after the save.
				nextStageApprovers = a.AssignedTo
				if advanced, ok := workflow.Stage(a.CurrentStage); ok {
					nextStageName = advanced.Name
				}
			}
		case models.DecisionReject:
			e.applyRejection(a, userID, reason)
		case models.DecisionRequestChanges:
			now := time.Now()
			a.Status = models.ApprovalStatusPending
			a.Decision = models.DecisionRequestChanges
			a.DecisionReason = reason
			a.DecisionAt = &now
		case models.DecisionEscalate:
			escalatedTo, exhausted = e.applyEscalation(a, workflow, userID, reason)
		default:
			return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Approval decision processed",
		"approval_id", approvalID,
		"user_id", userID,
		"decision", decision,
		"status", approval.Status,
		"stage", approval.CurrentStage)

	e.notifyDecision(ctx, approval, priorAssignees, decision, userID, reason)

	if len(nextStageApprovers) > 0 {
		e.notifyAssignment(ctx, approval, nextStageName)
	}

	stageName := ""
	if stage, ok := workflow.Stage(approval.CurrentStage); ok {
		stageName = stage.Name
	}

	e.publish(ctx, approval.ID, events.ApprovalDecided{
		BaseEvent:  e.baseEvent(events.ApprovalDecidedEvent, approval.WorkflowID),
		ApprovalID: approval.ID,
		UserID:     userID,
		Decision:   decision,
		Status:     approval.Status,
		Stage:      stageName,
	})

	if decision == models.DecisionEscalate {
		e.publish(ctx, approval.ID, events.ApprovalEscalated{
			BaseEvent:   e.baseEvent(events.ApprovalEscalatedEvent, approval.WorkflowID),
			ApprovalID:  approval.ID,
			EscalatedBy: userID,
			EscalatedTo: escalatedTo,
			Exhausted:   exhausted,
		})
	}

	return approval, nil
}

// applyApproval records one approval and advances the stage once the
// deduplicated approver set reaches the stage minimum. Advancing into the
// final stage lands IN_REVIEW, earlier stages stay PENDING; clearing the
// final stage is the only path to APPROVED.
func (e *Engine) applyApproval(a *models.Approval, workflow *models.ApprovalWorkflow, stage models.ApprovalStage, userID, reason string) {
	approved := false

	for _, id := range a.ApprovedBy {
		if id == userID {
			approved = true

			break
		}
	}

	if !approved {
		a.ApprovedBy = append(a.ApprovedBy, userID)
	}

	minApprovals := stage.MinApprovals
	if minApprovals < 1 {
		minApprovals = 1
	}

	if len(a.ApprovedBy) < minApprovals {
		return
	}

	lastStage := len(workflow.Stages) - 1

	if a.CurrentStage < lastStage {
		a.CurrentStage++

		if a.CurrentStage == lastStage {
			a.Status = models.ApprovalStatusInReview
		} else {
			a.Status = models.ApprovalStatusPending
		}

		nextStage, _ := workflow.Stage(a.CurrentStage)
		a.ApprovedBy = []string{}
		a.AssignedTo = nextStage.Approvers
		a.Decision = ""
		a.DecisionReason = ""
		a.DecisionAt = nil

		return
	}

	now := time.Now()
	a.Status = models.ApprovalStatusApproved
	a.Decision = models.DecisionApprove
	a.DecisionReason = reason
	a.DecisionAt = &now
}

func (e *Engine) applyRejection(a *models.Approval, userID, reason string) {
	now := time.Now()
	a.Status = models.ApprovalStatusRejected
	a.Decision = models.DecisionReject
	a.DecisionReason = reason
	a.DecisionAt = &now
	a.RejectedBy = userID
}

// applyEscalation hands the approval to the next entry in the escalation
// chain; an exhausted chain converts the escalation into a rejection.
func (e *Engine) applyEscalation(a *models.Approval, workflow *models.ApprovalWorkflow, userID, reason string) (string, bool) {
	next := workflow.EscalationRules.NextEscalator(userID)
	if next == "" {
		e.applyRejection(a, userID, reason)

		return "", true
	}

	now := time.Now()
	a.Status = models.ApprovalStatusEscalated
	a.AssignedTo = []string{next}
	a.Decision = models.DecisionEscalate
	a.DecisionReason = reason
	a.DecisionAt = &now

	return next, false
}

// CheckOverdueApprovals sweeps approvals past their due date. Stages with
// autoEscalateAfter configured escalate as the system user; current assignees
// are re-notified regardless of the escalation outcome. Driven by an external
// scheduler. Returns the number of overdue approvals handled.
func (e *Engine) CheckOverdueApprovals(ctx context.Context) (int, error) {
	now := time.Now()

	overdue, _, err := e.persistence.ApprovalRepository().SearchApprovals(ctx, persistence.ApprovalFilter{
		Status:    []models.ApprovalStatus{models.ApprovalStatusPending, models.ApprovalStatusInReview},
		DueBefore: &now,
		Limit:     100,
	})
	if err != nil {
		return 0, err
	}

	for _, approval := range overdue {
		workflow, err := e.persistence.ApprovalWorkflowRepository().ApprovalWorkflow(ctx, approval.WorkflowID)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to load workflow for overdue approval",
				"approval_id", approval.ID, "error", err)

			continue
		}

		stage, ok := workflow.Stage(approval.CurrentStage)
		if ok && stage.AutoEscalateAfter > 0 {
			_, err = e.ProcessDecision(ctx, approval.ID, SystemUserID, models.DecisionEscalate, "Auto-escalated due to overdue")
			if err != nil {
				e.logger.ErrorContext(ctx, "Failed to auto-escalate approval",
					"approval_id", approval.ID, "error", err)
			}
		}

		e.notify(ctx, notifier.Notification{
			Recipients: approval.AssignedTo,
			Subject:    "Approval overdue",
			Data: map[string]any{
				"approval_id": approval.ID,
				"entity_id":   approval.EntityID,
				"entity_type": approval.EntityType,
			},
		})
	}

	return len(overdue), nil
}

// GetApprovalStats aggregates counts over the approvals a user created or is
// assigned to.
func (e *Engine) GetApprovalStats(ctx context.Context, userID string) (*ApprovalStats, error) {
	involved, _, err := e.persistence.ApprovalRepository().SearchApprovals(ctx, persistence.ApprovalFilter{
		UserID: userID,
		Limit:  100,
		Page:   1,
	})
	if err != nil {
		return nil, err
	}

	stats := &ApprovalStats{}
	now := time.Now()

	for _, approval := range involved {
		stats.Total++

		switch approval.Status {
		case models.ApprovalStatusPending:
			stats.Pending++
		case models.ApprovalStatusInReview:
			stats.InReview++
		case models.ApprovalStatusApproved:
			stats.Approved++
		case models.ApprovalStatusRejected:
			stats.Rejected++
		}

		if approval.Status.Awaiting() && approval.DueAt != nil && approval.DueAt.Before(now) {
			stats.Overdue++
		}

		if approval.Status.Awaiting() && approval.AssignedToUser(userID) {
			stats.AssignedToMe++
		}
	}

	return stats, nil
}

func (e *Engine) notifyAssignment(ctx context.Context, approval *models.Approval, stageName string) {
	e.notify(ctx, notifier.Notification{
		Recipients: approval.AssignedTo,
		Subject:    "Approval required",
		Data: map[string]any{
			"approval_id": approval.ID,
			"entity_id":   approval.EntityID,
			"entity_type": approval.EntityType,
			"stage":       stageName,
		},
	})
}

func (e *Engine) notifyDecision(ctx context.Context, approval *models.Approval, priorAssignees []string, decision models.Decision, userID, reason string) {
	recipients := []string{approval.CreatedBy}

	for _, assignee := range priorAssignees {
		if assignee != userID && assignee != approval.CreatedBy {
			recipients = append(recipients, assignee)
		}
	}

	e.notify(ctx, notifier.Notification{
		Recipients: recipients,
		Subject:    fmt.Sprintf("Approval %s", decision),
		Body:       reason,
		Data: map[string]any{
			"approval_id": approval.ID,
			"decided_by":  userID,
			"decision":    string(decision),
		},
	})
}

// mutate runs a read-modify-write loop so simultaneous approvers merge their
// decisions instead of overwriting each other.
func (e *Engine) mutate(ctx context.Context, approvalID string, fn func(*models.Approval) error) (*models.Approval, error) {
	repo := e.persistence.ApprovalRepository()

	var lastErr error

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		approval, err := repo.Approval(ctx, approvalID)
		if err != nil {
			return nil, err
		}

		err = fn(approval)
		if err != nil {
			return nil, err
		}

		err = repo.SaveApproval(ctx, approval)
		if err == nil {
			return approval, nil
		}

		if !persistence.IsVersionConflict(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("approval %s mutation kept conflicting: %w", approvalID, lastErr)
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

func (e *Engine) notify(ctx context.Context, notification notifier.Notification) {
	err := e.notifier.Notify(ctx, notification)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to send notification", "subject", notification.Subject, "error", err)
	}
}
