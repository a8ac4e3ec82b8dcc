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

const tasksCollection = "tasks"

// TaskRepository stores tasks with optimistic versioning.
type TaskRepository struct {
	store *Persistence
}

func (r *TaskRepository) Task(ctx context.Context, id string) (*models.Task, error) {
	task, err := getDocument[models.Task](ctx, r.store.client, tasksCollection, id)
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewTaskError("Get", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return nil, persistence.NewTaskError("Get", id, err)
	}

	return task, nil
}

func (r *TaskRepository) SaveTask(ctx context.Context, task *models.Task) error {
	err := saveVersioned(ctx, r.store.client, tasksCollection, task.ID, task,
		func(t *models.Task) int64 { return t.Version },
		func(t *models.Task) {
			now := time.Now()
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}

			t.UpdatedAt = now
			t.Version++
		})
	if err != nil {
		return persistence.NewTaskError("Save", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) SearchTasks(ctx context.Context, filter persistence.TaskFilter) ([]*models.Task, int64, error) {
	tasks, err := allDocuments[models.Task](ctx, r.store.client, tasksCollection)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*models.Task, 0, len(tasks))

	for _, task := range tasks {
		if filter.Matches(task) {
			matched = append(matched, task)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))

	return persistence.Paginate(matched, filter.Page, filter.Limit), total, nil
}

func (r *TaskRepository) TaskStatistics(ctx context.Context, userID string, from, to *time.Time) (*persistence.TaskStatistics, error) {
	tasks, err := allDocuments[models.Task](ctx, r.store.client, tasksCollection)
	if err != nil {
		return nil, err
	}

	return persistence.ComputeTaskStatistics(tasks, userID, from, to), nil
}
