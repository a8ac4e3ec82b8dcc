// Package task implements the task step type: it materializes a generic
// human task and waits for its completion callback.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/steps"
	"github.com/grantflow/grantflow/pkg/tasks"
	"github.com/grantflow/grantflow/pkg/template"
)

type Executor struct {
	tasks  *tasks.Manager
	logger *slog.Logger
}

func NewExecutor(manager *tasks.Manager) *Executor {
	return &Executor{
		tasks:  manager,
		logger: log.WithModule("task_step"),
	}
}

func (e *Executor) Type() models.StepType {
	return models.StepTypeTask
}

func (e *Executor) Execute(ctx context.Context, req steps.Request) (steps.Outcome, error) {
	config, err := template.RenderMap(req.Step.Config, req.Instance)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to render task config: %w", err)
	}

	title, _ := config["title"].(string)
	if title == "" {
		title = req.Step.Name
	}

	description, _ := config["description"].(string)
	instructions, _ := config["instructions"].(string)

	taskType := models.TaskTypeReview
	if configured, ok := config["task_type"].(string); ok && configured != "" {
		taskType = models.TaskType(configured)
	}

	request := tasks.CreateTaskRequest{
		Title:              title,
		Description:        description,
		Instructions:       instructions,
		Type:               taskType,
		Priority:           models.PriorityNormal,
		Assignee:           req.StepInstance.Assignee,
		WorkflowInstanceID: req.Instance.ID,
		StepID:             req.Step.ID,
		EntityID:           req.Instance.EntityID,
		EntityType:         req.Instance.EntityType,
		CreatedBy:          req.Instance.CreatedBy,
	}

	if group, ok := config["assignee_group"].(string); ok {
		request.AssigneeGroup = group
	}

	if dueHours, ok := config["due_hours"].(float64); ok && dueHours > 0 {
		due := time.Now().Add(time.Duration(dueHours) * time.Hour)
		request.DueDate = &due
	}

	task, err := e.tasks.CreateTask(ctx, request)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to create task: %w", err)
	}

	e.logger.InfoContext(ctx, "Task created for step",
		"instance_id", req.Instance.ID,
		"step_id", req.Step.ID,
		"task_id", task.ID)

	return steps.Outcome{
		Completed: false,
		Result:    map[string]any{"task_id": task.ID},
	}, nil
}
