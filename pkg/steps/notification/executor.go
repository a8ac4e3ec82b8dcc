// Package notification implements the notification step type: it resolves a
// message template against instance variables and hands it to the notifier.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/notifier"
	"github.com/grantflow/grantflow/pkg/steps"
	"github.com/grantflow/grantflow/pkg/template"
)

type Executor struct {
	notifier notifier.Notifier
	logger   *slog.Logger
}

func NewExecutor(n notifier.Notifier) *Executor {
	return &Executor{
		notifier: n,
		logger:   log.WithModule("notification_step"),
	}
}

func (e *Executor) Type() models.StepType {
	return models.StepTypeNotification
}

// Execute always completes synchronously. Notifier failures are logged, never
// propagated: a broken delivery channel must not stall the workflow.
func (e *Executor) Execute(ctx context.Context, req steps.Request) (steps.Outcome, error) {
	config, err := template.RenderMap(req.Step.Config, req.Instance)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to render notification config: %w", err)
	}

	recipients := parseRecipients(config["recipients"])
	if len(recipients) == 0 && req.StepInstance.Assignee != "" {
		recipients = []string{req.StepInstance.Assignee}
	}

	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	err = e.notifier.Notify(ctx, notifier.Notification{
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
		Data: map[string]any{
			"instance_id": req.Instance.ID,
			"step_id":     req.Step.ID,
			"entity_id":   req.Instance.EntityID,
		},
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to send notification",
			"instance_id", req.Instance.ID,
			"step_id", req.Step.ID,
			"error", err)
	}

	return steps.Outcome{
		Completed: true,
		Result: map[string]any{
			"recipients": recipients,
			"subject":    subject,
		},
	}, nil
}

func parseRecipients(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}

		return []string{v}
	case []string:
		return v
	case []any:
		recipients := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				recipients = append(recipients, s)
			}
		}

		return recipients
	default:
		return nil
	}
}
