package redis

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	approvalWorkflowsCollection = "approval_workflows"
	approvalsCollection         = "approvals"
)

// ApprovalWorkflowRepository stores approval stage templates.
type ApprovalWorkflowRepository struct {
	store *Persistence
}

func (r *ApprovalWorkflowRepository) ApprovalWorkflow(ctx context.Context, id string) (*models.ApprovalWorkflow, error) {
	workflow, err := getDocument[models.ApprovalWorkflow](ctx, r.store.client, approvalWorkflowsCollection, id)
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrApprovalWorkflowNotFound
	}

	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *ApprovalWorkflowRepository) ApprovalWorkflows(ctx context.Context) ([]*models.ApprovalWorkflow, error) {
	workflows, err := allDocuments[models.ApprovalWorkflow](ctx, r.store.client, approvalWorkflowsCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].CreatedAt.After(workflows[j].CreatedAt) })

	return workflows, nil
}

func (r *ApprovalWorkflowRepository) SaveApprovalWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error {
	now := time.Now()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	_, err := r.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return putDocument(ctx, pipe, approvalWorkflowsCollection, workflow.ID, workflow)
	})

	return err
}

// ApprovalRepository stores live approvals with optimistic versioning.
type ApprovalRepository struct {
	store *Persistence
}

func (r *ApprovalRepository) Approval(ctx context.Context, id string) (*models.Approval, error) {
	approval, err := getDocument[models.Approval](ctx, r.store.client, approvalsCollection, id)
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewApprovalError("Get", id, persistence.ErrApprovalNotFound)
	}

	if err != nil {
		return nil, persistence.NewApprovalError("Get", id, err)
	}

	return approval, nil
}

func (r *ApprovalRepository) SaveApproval(ctx context.Context, approval *models.Approval) error {
	err := saveVersioned(ctx, r.store.client, approvalsCollection, approval.ID, approval,
		func(a *models.Approval) int64 { return a.Version },
		func(a *models.Approval) {
			now := time.Now()
			if a.CreatedAt.IsZero() {
				a.CreatedAt = now
			}

			a.UpdatedAt = now
			a.Version++
		})
	if err != nil {
		return persistence.NewApprovalError("Save", approval.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) SearchApprovals(ctx context.Context, filter persistence.ApprovalFilter) ([]*models.Approval, int64, error) {
	approvals, err := allDocuments[models.Approval](ctx, r.store.client, approvalsCollection)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*models.Approval, 0, len(approvals))

	for _, approval := range approvals {
		if filter.Matches(approval) {
			matched = append(matched, approval)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))

	return persistence.Paginate(matched, filter.Page, filter.Limit), total, nil
}
