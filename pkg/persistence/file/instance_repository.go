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

const instancesCollection = "instances"

// InstanceRepository stores workflow instances with optimistic versioning.
type InstanceRepository struct {
	store *Persistence
}

func (r *InstanceRepository) Instance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.instance(id)
}

func (r *InstanceRepository) instance(id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := readDocument(r.store.root, instancesCollection, id, &instance)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewInstanceError("Get", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError("Get", id, err)
	}

	return &instance, nil
}

// SaveInstance rejects writes carrying a stale Version and bumps the version
// on success, so concurrent read-modify-write loops cannot lose updates.
func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := r.instance(instance.ID)
	if err != nil && !persistence.IsInstanceNotFound(err) {
		return err
	}

	if existing != nil && existing.Version != instance.Version {
		return persistence.NewInstanceError("Save", instance.ID, persistence.ErrVersionConflict)
	}

	now := time.Now()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now
	instance.Version++

	err = writeDocument(r.store.root, instancesCollection, instance.ID, instance)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) SearchInstances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := listIDs(r.store.root, instancesCollection)
	if err != nil {
		return []*models.WorkflowInstance{}, 0, nil
	}

	matched := make([]*models.WorkflowInstance, 0, len(ids))

	for _, id := range ids {
		instance, err := r.instance(id)
		if err != nil {
			return nil, 0, err
		}

		if filter.Matches(instance) {
			matched = append(matched, instance)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))

	return persistence.Paginate(matched, filter.Page, filter.Limit), total, nil
}
