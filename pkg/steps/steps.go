// Package steps defines the execution protocol between the workflow engine
// and step type implementations.
package steps

import (
	"context"

	"github.com/grantflow/grantflow/pkg/models"
)

// Request carries everything an executor needs to run one step. Executors
// must not persist the instance; all state changes flow back through the
// Outcome or, for asynchronous steps, the Completer.
type Request struct {
	Instance     *models.WorkflowInstance
	Step         *models.WorkflowStep
	StepInstance *models.StepInstance
}

// Outcome is the synchronous result of executing a step.
//
// Completed=false means the step stays in progress and will be finished later
// through the Completer (human tasks, approvals, timers). ChosenSteps narrows
// the successors to activate; nil means every NextSteps entry proceeds.
type Outcome struct {
	Completed   bool
	Result      any
	Variables   map[string]any
	ChosenSteps []string
}

// Executor runs steps of one type.
type Executor interface {
	Type() models.StepType
	Execute(ctx context.Context, req Request) (Outcome, error)
}

// Completer receives asynchronous step completions. The workflow engine
// implements it; executors and the task manager call back into it when a
// human decision or timer resolves a step.
type Completer interface {
	UpdateStepStatus(ctx context.Context, instanceID, stepID string, status models.StepStatus, result any, errMessage string) error
}
