// Package main provides the Grantflow sweeper: scheduled sweeps over overdue
// approvals and tasks. Approvals with auto-escalation configured escalate as
// the system user; past-due tasks flip to overdue and their assignees are
// notified. Timers lost to a process restart surface through these sweeps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grantflow/grantflow/pkg/cmd"
	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/otelhelper"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "grantflow-sweeper",
		Usage:                 "Run periodic overdue sweeps for approvals and tasks",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Storage URL (file://<dir> or redis://<host>)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for the sweep",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			schedule := command.String("schedule")
			if _, err := cron.ParseStandard(schedule); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Initializing Grantflow sweeper", "schedule", schedule)

			tracerProvider, err := otelhelper.NewTracerProvider(ctx, "grantflow-sweeper")
			if err != nil {
				return err
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			persistence := cmd.MustPersistence(ctx, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "grantflow-sweeper", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			components := cmd.NewComponents(persistence, eventBus)

			sweep := func() {
				sweepCtx := context.Background()

				escalated, err := components.Approvals.CheckOverdueApprovals(sweepCtx)
				if err != nil {
					logger.Error("Overdue approval sweep failed", "error", err)
				} else if escalated > 0 {
					logger.Info("Overdue approval sweep finished", "processed", escalated)
				}

				marked, err := components.Tasks.MarkOverdueTasks(sweepCtx)
				if err != nil {
					logger.Error("Overdue task sweep failed", "error", err)
				} else if marked > 0 {
					logger.Info("Overdue task sweep finished", "marked", marked)
				}
			}

			scheduler := cron.New()

			_, err = scheduler.AddFunc(schedule, sweep)
			if err != nil {
				return err
			}

			// One pass on startup so a restart does not wait a full interval.
			sweep()
			scheduler.Start()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			logger.InfoContext(ctx, "Shutting down sweeper")
			<-scheduler.Stop().Done()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
