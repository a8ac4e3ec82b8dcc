// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"github.com/grantflow/grantflow/pkg/approvals"
	"github.com/grantflow/grantflow/pkg/engine"
	"github.com/grantflow/grantflow/pkg/eventbus"
	"github.com/grantflow/grantflow/pkg/notifier"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/registry"
	approvalstep "github.com/grantflow/grantflow/pkg/steps/approval"
	"github.com/grantflow/grantflow/pkg/steps/gateway"
	"github.com/grantflow/grantflow/pkg/steps/notification"
	"github.com/grantflow/grantflow/pkg/steps/service"
	taskstep "github.com/grantflow/grantflow/pkg/steps/task"
	"github.com/grantflow/grantflow/pkg/steps/timer"
	"github.com/grantflow/grantflow/pkg/tasks"
)

// Components bundles the wired core of a grantflow process.
type Components struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Notifier    notifier.Notifier
	Registry    *registry.Registry
	Engine      *engine.Engine
	Tasks       *tasks.Manager
	Approvals   *approvals.Engine
}

// NewComponents wires the engines together. Order matters: the task manager
// and the timer executor need the workflow engine as their completion
// callback, so the engine is built before executors register.
func NewComponents(p persistence.Persistence, bus eventbus.EventBus) *Components {
	notify := notifier.NewEventBusNotifier(bus)

	reg := registry.NewRegistry()
	workflowEngine := engine.NewEngine(p, reg, bus)

	taskManager := tasks.NewManager(p, notify, bus)
	taskManager.SetCompleter(workflowEngine)

	reg.Register(approvalstep.NewExecutor(taskManager))
	reg.Register(taskstep.NewExecutor(taskManager))
	reg.Register(notification.NewExecutor(notify))
	reg.Register(service.NewExecutor())
	reg.Register(timer.NewExecutor(workflowEngine))
	reg.Register(gateway.NewExecutor())

	return &Components{
		Persistence: p,
		EventBus:    bus,
		Notifier:    notify,
		Registry:    reg,
		Engine:      workflowEngine,
		Tasks:       taskManager,
		Approvals:   approvals.NewEngine(p, notify, bus),
	}
}
