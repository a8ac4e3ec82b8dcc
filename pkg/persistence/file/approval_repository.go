package file

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/persistence"
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
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.workflow(id)
}

func (r *ApprovalWorkflowRepository) workflow(id string) (*models.ApprovalWorkflow, error) {
	var workflow models.ApprovalWorkflow

	err := readDocument(r.store.root, approvalWorkflowsCollection, id, &workflow)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrApprovalWorkflowNotFound
	}

	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (r *ApprovalWorkflowRepository) ApprovalWorkflows(ctx context.Context) ([]*models.ApprovalWorkflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := listIDs(r.store.root, approvalWorkflowsCollection)
	if err != nil {
		return []*models.ApprovalWorkflow{}, nil
	}

	workflows := make([]*models.ApprovalWorkflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.workflow(id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].CreatedAt.After(workflows[j].CreatedAt) })

	return workflows, nil
}

func (r *ApprovalWorkflowRepository) SaveApprovalWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return writeDocument(r.store.root, approvalWorkflowsCollection, workflow.ID, workflow)
}

// ApprovalRepository stores live approvals with optimistic versioning.
type ApprovalRepository struct {
	store *Persistence
}

func (r *ApprovalRepository) Approval(ctx context.Context, id string) (*models.Approval, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.approval(id)
}

func (r *ApprovalRepository) approval(id string) (*models.Approval, error) {
	var approval models.Approval

	err := readDocument(r.store.root, approvalsCollection, id, &approval)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewApprovalError("Get", id, persistence.ErrApprovalNotFound)
	}

	if err != nil {
		return nil, persistence.NewApprovalError("Get", id, err)
	}

	return &approval, nil
}

func (r *ApprovalRepository) SaveApproval(ctx context.Context, approval *models.Approval) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := r.approval(approval.ID)
	if err != nil && !persistence.IsApprovalNotFound(err) {
		return err
	}

	if existing != nil && existing.Version != approval.Version {
		return persistence.NewApprovalError("Save", approval.ID, persistence.ErrVersionConflict)
	}

	now := time.Now()
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = now
	}

	approval.UpdatedAt = now
	approval.Version++

	err = writeDocument(r.store.root, approvalsCollection, approval.ID, approval)
	if err != nil {
		return persistence.NewApprovalError("Save", approval.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) SearchApprovals(ctx context.Context, filter persistence.ApprovalFilter) ([]*models.Approval, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := listIDs(r.store.root, approvalsCollection)
	if err != nil {
		return []*models.Approval{}, 0, nil
	}

	matched := make([]*models.Approval, 0, len(ids))

	for _, id := range ids {
		approval, err := r.approval(id)
		if err != nil {
			return nil, 0, err
		}

		if filter.Matches(approval) {
			matched = append(matched, approval)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))

	return persistence.Paginate(matched, filter.Page, filter.Limit), total, nil
}
