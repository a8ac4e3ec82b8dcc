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

const tasksCollection = "tasks"

// TaskRepository stores tasks with optimistic versioning.
type TaskRepository struct {
	store *Persistence
}

func (r *TaskRepository) Task(ctx context.Context, id string) (*models.Task, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.task(id)
}

func (r *TaskRepository) task(id string) (*models.Task, error) {
	var task models.Task

	err := readDocument(r.store.root, tasksCollection, id, &task)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewTaskError("Get", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return nil, persistence.NewTaskError("Get", id, err)
	}

	return &task, nil
}

func (r *TaskRepository) SaveTask(ctx context.Context, task *models.Task) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := r.task(task.ID)
	if err != nil && !persistence.IsTaskNotFound(err) {
		return err
	}

	if existing != nil && existing.Version != task.Version {
		return persistence.NewTaskError("Save", task.ID, persistence.ErrVersionConflict)
	}

	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now
	task.Version++

	err = writeDocument(r.store.root, tasksCollection, task.ID, task)
	if err != nil {
		return persistence.NewTaskError("Save", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) SearchTasks(ctx context.Context, filter persistence.TaskFilter) ([]*models.Task, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tasks, err := r.allTasks()
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

// TaskStatistics aggregates counts over every stored task, optionally scoped
// to one assignee and a creation date range.
func (r *TaskRepository) TaskStatistics(ctx context.Context, userID string, from, to *time.Time) (*persistence.TaskStatistics, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tasks, err := r.allTasks()
	if err != nil {
		return nil, err
	}

	return persistence.ComputeTaskStatistics(tasks, userID, from, to), nil
}

func (r *TaskRepository) allTasks() ([]*models.Task, error) {
	ids, err := listIDs(r.store.root, tasksCollection)
	if err != nil {
		return []*models.Task{}, nil
	}

	tasks := make([]*models.Task, 0, len(ids))

	for _, id := range ids {
		task, err := r.task(id)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}

