// Package registry maps step types to their executors.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/steps"
)

type Registry struct {
	logger    *slog.Logger
	executors map[models.StepType]steps.Executor
}

func NewRegistry() *Registry {
	return &Registry{
		logger:    log.WithModule("registry"),
		executors: make(map[models.StepType]steps.Executor),
	}
}

// Register binds an executor to its step type, replacing any previous binding.
func (r *Registry) Register(executor steps.Executor) {
	r.executors[executor.Type()] = executor
	r.logger.Debug("Registered step executor", "step_type", executor.Type())
}

// Executor resolves the executor for a step type.
func (r *Registry) Executor(stepType models.StepType) (steps.Executor, error) {
	executor, ok := r.executors[stepType]
	if !ok {
		return nil, fmt.Errorf("step type %q not registered", stepType)
	}

	return executor, nil
}

// Types lists the registered step types, sorted for stable output.
func (r *Registry) Types() []models.StepType {
	types := make([]models.StepType, 0, len(r.executors))
	for stepType := range r.executors {
		types = append(types, stepType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
