package models

import (
	"slices"
	"time"
)

// ApprovalStatus represents the lifecycle state of a stage-gated approval.
// REJECTED and CANCELLED are absorbing; APPROVED is only reachable by clearing
// the final stage.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "PENDING"
	ApprovalStatusInReview  ApprovalStatus = "IN_REVIEW" // final stage awaiting decision
	ApprovalStatusApproved  ApprovalStatus = "APPROVED"
	ApprovalStatusRejected  ApprovalStatus = "REJECTED"
	ApprovalStatusCancelled ApprovalStatus = "CANCELLED"
	ApprovalStatusEscalated ApprovalStatus = "ESCALATED"
)

// IsTerminal reports whether no further decisions are accepted.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected || s == ApprovalStatusCancelled
}

// Awaiting reports whether the approval is waiting on approver action.
func (s ApprovalStatus) Awaiting() bool {
	return s == ApprovalStatusPending || s == ApprovalStatusInReview || s == ApprovalStatusEscalated
}

// Decision is an approver's action on the current stage.
type Decision string

const (
	DecisionApprove        Decision = "APPROVE"
	DecisionReject         Decision = "REJECT"
	DecisionRequestChanges Decision = "REQUEST_CHANGES"
	DecisionEscalate       Decision = "ESCALATE"
)

// ApprovalStage is one gate in an approval workflow: a named approver group
// with a minimum approval count.
type ApprovalStage struct {
	Name              string   `json:"name"                validate:"required"`
	Description       string   `json:"description,omitempty"`
	Approvers         []string `json:"approvers"           validate:"required,min=1"`
	MinApprovals      int      `json:"min_approvals"       validate:"min=1"`
	AutoEscalateAfter int      `json:"auto_escalate_after,omitempty"` // hours
	RequireSequential bool     `json:"require_sequential"`
}

// EscalationRules configures the ordered fallback chain for ESCALATE decisions.
type EscalationRules struct {
	EscalationChain         []string `json:"escalation_chain"`
	NotifyOriginalApprovers bool     `json:"notify_original_approvers"`
	MaxEscalationLevel      int      `json:"max_escalation_level,omitempty"`
}

// NextEscalator returns the chain entry after userID, or "" when the chain is
// exhausted. A userID outside the chain (including "system") escalates to the
// chain's first entry.
func (r *EscalationRules) NextEscalator(userID string) string {
	if r == nil {
		return ""
	}

	idx := slices.Index(r.EscalationChain, userID)
	if idx+1 < len(r.EscalationChain) {
		return r.EscalationChain[idx+1]
	}

	return ""
}

// ApprovalWorkflow is the stage template approvals execute against.
type ApprovalWorkflow struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"        validate:"required,min=3"`
	Description     string           `json:"description,omitempty"`
	EntityType      string           `json:"entity_type" validate:"required"`
	Stages          []ApprovalStage  `json:"stages"      validate:"required,min=1,dive"`
	EscalationRules *EscalationRules `json:"escalation_rules,omitempty"`
	IsActive        bool             `json:"is_active"`
	CreatedBy       string           `json:"created_by,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Stage returns the stage at index, or false when out of range.
func (w *ApprovalWorkflow) Stage(index int) (ApprovalStage, bool) {
	if index < 0 || index >= len(w.Stages) {
		return ApprovalStage{}, false
	}

	return w.Stages[index], true
}

// Approval is a live stage-gated approval run. ApprovedBy resets on stage
// advance; AssignedTo is recomputed to the new stage's approvers.
type Approval struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	EntityID       string         `json:"entity_id"`
	EntityType     string         `json:"entity_type"`
	CurrentStage   int            `json:"current_stage"`
	Status         ApprovalStatus `json:"status"`
	CreatedBy      string         `json:"created_by"`
	AssignedTo     []string       `json:"assigned_to"`
	ApprovedBy     []string       `json:"approved_by"`
	RejectedBy     string         `json:"rejected_by,omitempty"`
	Decision       Decision       `json:"decision,omitempty"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	DecisionAt     *time.Time     `json:"decision_at,omitempty"`
	DueAt          *time.Time     `json:"due_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AssignedToUser reports whether userID may act on the current stage.
func (a *Approval) AssignedToUser(userID string) bool {
	return slices.Contains(a.AssignedTo, userID)
}
