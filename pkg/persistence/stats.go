package persistence

import (
	"time"

	"github.com/grantflow/grantflow/pkg/models"
)

// ComputeTaskStatistics aggregates counts over tasks, optionally scoped to one
// assignee and a creation date range. Stores load their task set and delegate
// here so every backend reports identical numbers.
func ComputeTaskStatistics(tasks []*models.Task, userID string, from, to *time.Time) *TaskStatistics {
	stats := &TaskStatistics{
		ByStatus:   make(map[models.TaskStatus]int64),
		ByPriority: make(map[models.Priority]int64),
		ByType:     make(map[models.TaskType]int64),
	}

	var completed int64

	var completionHours float64

	for _, task := range tasks {
		if userID != "" && task.Assignee != userID {
			continue
		}

		if from != nil && task.CreatedAt.Before(*from) {
			continue
		}

		if to != nil && task.CreatedAt.After(*to) {
			continue
		}

		stats.Total++
		stats.ByStatus[task.Status]++
		stats.ByPriority[task.Priority]++
		stats.ByType[task.Type]++

		if task.Status == models.TaskStatusCompleted {
			completed++

			if task.CompletedDate != nil {
				completionHours += task.CompletedDate.Sub(task.CreatedAt).Hours()
			}
		}
	}

	if stats.Total > 0 {
		stats.CompletionRate = float64(completed) / float64(stats.Total)
	}

	if completed > 0 {
		stats.AverageCompletionHrs = completionHours / float64(completed)
	}

	return stats
}
