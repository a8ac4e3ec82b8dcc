// Package gateway implements the gateway step type: it evaluates a boolean
// condition over instance variables and records which successors are chosen.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/steps"
	"github.com/grantflow/grantflow/pkg/template"
)

type Executor struct {
	logger *slog.Logger
}

func NewExecutor() *Executor {
	return &Executor{logger: log.WithModule("gateway_step")}
}

func (e *Executor) Type() models.StepType {
	return models.StepTypeGateway
}

// Execute always completes synchronously. The rendered condition picks the
// "when_true" or "when_false" successor set; an absent set means every
// NextSteps entry (true) or none (false). Unchosen direct successors are
// skipped by the engine.
func (e *Executor) Execute(ctx context.Context, req steps.Request) (steps.Outcome, error) {
	condition, _ := req.Step.Config["condition"].(string)

	rendered, err := template.RenderWithInstance(condition, req.Instance)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to render gateway condition: %w", err)
	}

	result, err := truthy(rendered)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("gateway condition %q: %w", condition, err)
	}

	var chosen []string

	if result {
		chosen = parseStringList(req.Step.Config["when_true"])
		if chosen == nil {
			chosen = req.Step.NextSteps
		}
	} else {
		chosen = parseStringList(req.Step.Config["when_false"])
		if chosen == nil {
			chosen = []string{}
		}
	}

	e.logger.InfoContext(ctx, "Gateway evaluated",
		"instance_id", req.Instance.ID,
		"step_id", req.Step.ID,
		"condition_result", result,
		"chosen", chosen)

	return steps.Outcome{
		Completed:   true,
		ChosenSteps: chosen,
		Result: map[string]any{
			"condition_result": result,
			"chosen":           chosen,
		},
	}, nil
}

// truthy converts a rendered condition value to a boolean. An empty value is
// true, matching an unconditional gateway.
func truthy(value any) (bool, error) {
	if value == nil {
		return true, nil
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if v == "" {
			return true, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

func parseStringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	case string:
		if v == "" {
			return nil
		}

		return []string{v}
	default:
		return nil
	}
}
