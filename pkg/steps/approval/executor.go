// Package approval implements the approval step type: it materializes an
// approval task and waits for the decision callback.
package approval

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
		logger: log.WithModule("approval_step"),
	}
}

func (e *Executor) Type() models.StepType {
	return models.StepTypeApproval
}

// Execute creates the approval task and leaves the step in progress; the task
// manager relays the decision back to the engine when approvers have voted.
func (e *Executor) Execute(ctx context.Context, req steps.Request) (steps.Outcome, error) {
	config, err := template.RenderMap(req.Step.Config, req.Instance)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to render approval config: %w", err)
	}

	approvers := parseStringList(config["approvers"])
	if len(approvers) == 0 {
		approvers = req.Step.Assignee
	}

	title, _ := config["title"].(string)
	if title == "" {
		title = req.Step.Name
	}

	description, _ := config["description"].(string)
	minApprovals := parseInt(config["min_approvals"])

	request := tasks.CreateApprovalTaskRequest{
		CreateTaskRequest: tasks.CreateTaskRequest{
			Title:              title,
			Description:        description,
			Priority:           models.PriorityNormal,
			Assignee:           req.StepInstance.Assignee,
			WorkflowInstanceID: req.Instance.ID,
			StepID:             req.Step.ID,
			EntityID:           req.Instance.EntityID,
			EntityType:         req.Instance.EntityType,
			CreatedBy:          req.Instance.CreatedBy,
		},
		Approvers:    approvers,
		Options:      parseStringList(config["options"]),
		MinApprovals: minApprovals,
	}

	if dueHours := parseInt(config["due_hours"]); dueHours > 0 {
		due := time.Now().Add(time.Duration(dueHours) * time.Hour)
		request.DueDate = &due
	}

	task, err := e.tasks.CreateApprovalTask(ctx, request)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to create approval task: %w", err)
	}

	e.logger.InfoContext(ctx, "Approval task created",
		"instance_id", req.Instance.ID,
		"step_id", req.Step.ID,
		"task_id", task.ID,
		"approvers", len(approvers))

	return steps.Outcome{
		Completed: false,
		Result:    map[string]any{"task_id": task.ID},
	}, nil
}

func parseStringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}

		return []string{v}
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func parseInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
