package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/grantflow/grantflow/pkg/approvals"
	"github.com/grantflow/grantflow/pkg/engine"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/schema"
	"github.com/grantflow/grantflow/pkg/tasks"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func forbidden(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("forbidden").
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps component errors onto RFC 7807 responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsDefinitionNotFound(err):
		return notFound(c, "workflow definition not found")
	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")
	case persistence.IsTaskNotFound(err):
		return notFound(c, "task not found")
	case persistence.IsApprovalNotFound(err):
		return notFound(c, "approval not found")
	case errors.Is(err, persistence.ErrApprovalWorkflowNotFound):
		return notFound(c, "approval workflow not found")
	case errors.Is(err, engine.ErrStepNotFound):
		return notFound(c, "step not found")

	case errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrStepAlreadyFinal),
		errors.Is(err, approvals.ErrApprovalTerminal),
		errors.Is(err, tasks.ErrTaskTerminal),
		persistence.IsVersionConflict(err):
		return conflict(c, err.Error())

	case errors.Is(err, approvals.ErrUnauthorized):
		return forbidden(c, err.Error())

	case errors.Is(err, schema.ErrInvalidDefinition),
		errors.Is(err, approvals.ErrInvalidDecision),
		errors.Is(err, approvals.ErrInvalidStage),
		errors.Is(err, approvals.ErrWorkflowHasNoStages),
		errors.Is(err, tasks.ErrInvalidDecision),
		errors.Is(err, tasks.ErrNotApprovalTask),
		errors.Is(err, tasks.ErrMissingApprovalConfig):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
