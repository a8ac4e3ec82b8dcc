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

const instancesCollection = "instances"

// InstanceRepository stores workflow instances with optimistic versioning.
type InstanceRepository struct {
	store *Persistence
}

func (r *InstanceRepository) Instance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := getDocument[models.WorkflowInstance](ctx, r.store.client, instancesCollection, id)
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewInstanceError("Get", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError("Get", id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	err := saveVersioned(ctx, r.store.client, instancesCollection, instance.ID, instance,
		func(i *models.WorkflowInstance) int64 { return i.Version },
		func(i *models.WorkflowInstance) {
			now := time.Now()
			if i.CreatedAt.IsZero() {
				i.CreatedAt = now
			}

			i.UpdatedAt = now
			i.Version++
		})
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) SearchInstances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, int64, error) {
	instances, err := allDocuments[models.WorkflowInstance](ctx, r.store.client, instancesCollection)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*models.WorkflowInstance, 0, len(instances))

	for _, instance := range instances {
		if filter.Matches(instance) {
			matched = append(matched, instance)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))

	return persistence.Paginate(matched, filter.Page, filter.Limit), total, nil
}
