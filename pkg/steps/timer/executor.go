// Package timer implements the timer step type: a deferred completion after a
// configured delay, with no assignee and no human input.
package timer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/steps"
)

var ErrMissingDelay = errors.New("missing or invalid 'delay' in timer step config")

type Executor struct {
	completer steps.Completer
	logger    *slog.Logger

	// after is swappable in tests; defaults to time.AfterFunc.
	after func(d time.Duration, fn func())
}

func NewExecutor(completer steps.Completer) *Executor {
	return &Executor{
		completer: completer,
		logger:    log.WithModule("timer_step"),
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

func (e *Executor) Type() models.StepType {
	return models.StepTypeTimer
}

// Execute schedules the deferred completion and leaves the step in progress.
// A timer firing after the instance reached a terminal state is rejected by
// the engine's non-terminal check, so fired timers need no cancellation
// bookkeeping here.
func (e *Executor) Execute(ctx context.Context, req steps.Request) (steps.Outcome, error) {
	delay := parseDelay(req.Step.Config["delay"])
	if delay <= 0 {
		return steps.Outcome{}, ErrMissingDelay
	}

	instanceID := req.Instance.ID
	stepID := req.Step.ID

	e.logger.InfoContext(ctx, "Timer scheduled",
		"instance_id", instanceID,
		"step_id", stepID,
		"delay", delay)

	e.after(delay, func() {
		// The triggering request's context is long gone when the timer fires.
		ctx := context.Background()

		result := map[string]any{"fired_at": time.Now().UTC().Format(time.RFC3339)}

		err := e.completer.UpdateStepStatus(ctx, instanceID, stepID, models.StepStatusCompleted, result, "")
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to complete timer step",
				"instance_id", instanceID,
				"step_id", stepID,
				"error", err)
		}
	})

	return steps.Outcome{Completed: false}, nil
}

func parseDelay(value any) time.Duration {
	switch v := value.(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}

		return d
	default:
		return 0
	}
}
