// Package web provides the HTTP handlers and REST endpoints for workflow,
// task, and approval management.
package web

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/grantflow/grantflow/pkg/approvals"
	"github.com/grantflow/grantflow/pkg/engine"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/schema"
	"github.com/grantflow/grantflow/pkg/tasks"
)

type APIHandlers struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	tasks       *tasks.Manager
	approvals   *approvals.Engine
	schema      *schema.Validator
	validator   *validator.Validate
}

func NewAPIHandlers(
	p persistence.Persistence,
	workflowEngine *engine.Engine,
	taskManager *tasks.Manager,
	approvalEngine *approvals.Engine,
	schemaValidator *schema.Validator,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		engine:      workflowEngine,
		tasks:       taskManager,
		approvals:   approvalEngine,
		schema:      schemaValidator,
		validator:   validate,
	}
}

// RegisterRoutes mounts every endpoint on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	w := app.Group("/workflows")
	w.Get("/", h.GetDefinitions)
	w.Post("/", h.CreateDefinition)
	w.Get("/:id", h.GetDefinition)
	w.Post("/:id/execute", h.ExecuteWorkflow)

	i := app.Group("/instances")
	i.Get("/", h.SearchInstances)
	i.Get("/:id", h.GetInstance)
	i.Post("/:id/cancel", h.CancelInstance)
	i.Patch("/:id/steps/:stepId", h.UpdateStepStatus)
	i.Post("/:id/steps/:stepId/comments", h.AddStepComment)

	app.Get("/entities/:entityType/:entityId/history", h.GetWorkflowHistory)

	t := app.Group("/tasks")
	t.Get("/", h.SearchTasks)
	t.Post("/", h.CreateTask)
	t.Post("/approval", h.CreateApprovalTask)
	t.Get("/overdue", h.GetOverdueTasks)
	t.Get("/statistics", h.GetTaskStatistics)
	t.Get("/:id", h.GetTask)
	t.Patch("/:id", h.UpdateTask)
	t.Post("/:id/comments", h.AddTaskComment)
	t.Post("/:id/approval", h.SubmitApproval)
	t.Post("/:id/complete", h.CompleteTask)
	t.Post("/:id/reassign", h.ReassignTask)
	t.Post("/:id/escalate", h.EscalateTask)

	aw := app.Group("/approval-workflows")
	aw.Get("/", h.GetApprovalWorkflows)
	aw.Post("/", h.CreateApprovalWorkflow)
	aw.Get("/:id", h.GetApprovalWorkflow)

	a := app.Group("/approvals")
	a.Post("/", h.CreateApproval)
	a.Get("/:id", h.GetApproval)
	a.Post("/:id/decision", h.ProcessDecision)

	u := app.Group("/users/:userId")
	u.Get("/tasks", h.GetUserTasks)
	u.Get("/approvals", h.GetUserApprovals)
	u.Get("/approvals/stats", h.GetApprovalStats)
}

// --- Workflow definitions ---

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	definitions, err := h.persistence.DefinitionRepository().Definitions(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": definitions, "total_count": len(definitions)})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	definition, err := h.persistence.DefinitionRepository().Definition(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var definition models.WorkflowDefinition
	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.schema.ValidateDefinition(&definition); err != nil {
		return handleError(c, err)
	}

	if err := h.persistence.DefinitionRepository().SaveDefinition(c.Context(), &definition); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(definition)
}

// --- Workflow instances ---

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")

	var req ExecuteWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.persistence.DefinitionRepository().Definition(c.Context(), workflowID)
	if err != nil {
		return handleError(c, err)
	}

	if err := h.schema.ValidateVariables(definition, req.Variables); err != nil {
		return handleError(c, err)
	}

	instance, err := h.engine.ExecuteWorkflow(c.Context(), engine.ExecuteRequest{
		WorkflowID:  workflowID,
		EntityID:    req.EntityID,
		EntityType:  req.EntityType,
		Variables:   req.Variables,
		InitiatedBy: req.InitiatedBy,
		Priority:    req.Priority,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) SearchInstances(c fiber.Ctx) error {
	filter, err := h.parseInstanceFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	instances, total, err := h.engine.SearchWorkflows(c.Context(), filter)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   instances,
		"total_count": total,
		"pagination":  fiber.Map{"page": filter.Page, "limit": filter.Limit},
	})
}

func (h *APIHandlers) parseInstanceFilter(c fiber.Ctx) (persistence.InstanceFilter, error) {
	filter := persistence.InstanceFilter{
		WorkflowID: c.Query("workflow_id"),
		EntityID:   c.Query("entity_id"),
		EntityType: c.Query("entity_type"),
		CreatedBy:  c.Query("created_by"),
	}

	for _, status := range splitQueryList(c.Query("status")) {
		filter.Status = append(filter.Status, models.InstanceStatus(status))
	}

	var err error

	filter.Page, filter.Limit, err = parsePagination(c)

	return filter, err
}

func (h *APIHandlers) GetWorkflowHistory(c fiber.Ctx) error {
	instances, err := h.engine.GetWorkflowHistory(c.Context(), c.Params("entityId"), c.Params("entityType"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances, "total_count": len(instances)})
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	var req CancelWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.CancelWorkflow(c.Context(), c.Params("id"), req.Reason, req.UserID); err != nil {
		return handleError(c, err)
	}

	instance, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) UpdateStepStatus(c fiber.Ctx) error {
	var req UpdateStepStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.engine.UpdateStepStatus(c.Context(), c.Params("id"), c.Params("stepId"), req.Status, req.Result, req.ErrorMessage)
	if err != nil {
		return handleError(c, err)
	}

	instance, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) AddStepComment(c fiber.Ctx) error {
	var req CommentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	comment, err := h.engine.AddStepComment(c.Context(), c.Params("id"), c.Params("stepId"), req.UserID, req.Comment, req.Attachments)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

// --- Tasks ---

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req tasks.CreateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	task, err := h.tasks.CreateTask(c.Context(), req)
	if err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return badRequest(c, err.Error())
		}

		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) CreateApprovalTask(c fiber.Ctx) error {
	var req tasks.CreateApprovalTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	task, err := h.tasks.CreateApprovalTask(c.Context(), req)
	if err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return badRequest(c, err.Error())
		}

		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.tasks.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) UpdateTask(c fiber.Ctx) error {
	var req tasks.TaskUpdate
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	task, err := h.tasks.UpdateTask(c.Context(), c.Params("id"), req, c.Query("user_id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) AddTaskComment(c fiber.Ctx) error {
	var req CommentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	comment, err := h.tasks.AddTaskComment(c.Context(), c.Params("id"), req.UserID, req.Comment, req.Attachments)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (h *APIHandlers) SubmitApproval(c fiber.Ctx) error {
	var req SubmitApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, completed, err := h.tasks.SubmitApproval(c.Context(), c.Params("id"), req.UserID, req.Decision, req.Comments)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"task": task, "completed": completed})
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	var req CompleteTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.CompleteTask(c.Context(), c.Params("id"), req.UserID, req.Result)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ReassignTask(c fiber.Ctx) error {
	var req ReassignTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.ReassignTask(c.Context(), c.Params("id"), req.NewAssignee, req.ReassignedBy, req.Reason)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) EscalateTask(c fiber.Ctx) error {
	var req EscalateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.EscalateTask(c.Context(), c.Params("id"), req.EscalatedBy, req.Reason)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) SearchTasks(c fiber.Ctx) error {
	filter, err := h.parseTaskFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	found, total, err := h.tasks.SearchTasks(c.Context(), filter)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       found,
		"total_count": total,
		"pagination":  fiber.Map{"page": filter.Page, "limit": filter.Limit},
	})
}

func (h *APIHandlers) parseTaskFilter(c fiber.Ctx) (persistence.TaskFilter, error) {
	filter := persistence.TaskFilter{
		Assignee:           c.Query("assignee"),
		AssigneeGroup:      c.Query("assignee_group"),
		WorkflowInstanceID: c.Query("workflow_instance_id"),
		EntityID:           c.Query("entity_id"),
		EntityType:         c.Query("entity_type"),
	}

	for _, status := range splitQueryList(c.Query("status")) {
		filter.Status = append(filter.Status, models.TaskStatus(status))
	}

	for _, priority := range splitQueryList(c.Query("priority")) {
		filter.Priority = append(filter.Priority, models.Priority(priority))
	}

	for _, taskType := range splitQueryList(c.Query("type")) {
		filter.Type = append(filter.Type, models.TaskType(taskType))
	}

	if dueBefore := c.Query("due_before"); dueBefore != "" {
		parsed, err := time.Parse(time.RFC3339, dueBefore)
		if err != nil {
			return filter, err
		}

		filter.DueBefore = &parsed
	}

	var err error

	filter.Page, filter.Limit, err = parsePagination(c)

	return filter, err
}

func (h *APIHandlers) GetUserTasks(c fiber.Ctx) error {
	filter, err := h.parseTaskFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	found, total, err := h.tasks.GetUserTasks(c.Context(), c.Params("userId"), filter)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": found, "total_count": total})
}

func (h *APIHandlers) GetOverdueTasks(c fiber.Ctx) error {
	found, err := h.tasks.GetOverdueTasks(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": found, "total_count": len(found)})
}

func (h *APIHandlers) GetTaskStatistics(c fiber.Ctx) error {
	var from, to *time.Time

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return badRequest(c, "Invalid from timestamp")
		}

		from = &parsed
	}

	if toStr := c.Query("to"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return badRequest(c, "Invalid to timestamp")
		}

		to = &parsed
	}

	stats, err := h.tasks.GetTaskStatistics(c.Context(), c.Query("user_id"), from, to)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(stats)
}

// --- Approvals ---

func (h *APIHandlers) CreateApprovalWorkflow(c fiber.Ctx) error {
	var workflow models.ApprovalWorkflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.approvals.CreateApprovalWorkflow(c.Context(), &workflow)
	if err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return badRequest(c, err.Error())
		}

		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetApprovalWorkflows(c fiber.Ctx) error {
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))

	workflows, err := h.approvals.GetApprovalWorkflows(c.Context(), includeInactive)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows, "total_count": len(workflows)})
}

func (h *APIHandlers) GetApprovalWorkflow(c fiber.Ctx) error {
	workflow, err := h.approvals.GetApprovalWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateApproval(c fiber.Ctx) error {
	var req CreateApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	approval, err := h.approvals.CreateApproval(c.Context(), req.WorkflowID, req.EntityID, req.EntityType, req.CreatedBy, req.Metadata, req.DueAt)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(approval)
}

func (h *APIHandlers) GetApproval(c fiber.Ctx) error {
	approval, err := h.approvals.GetApproval(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(approval)
}

func (h *APIHandlers) ProcessDecision(c fiber.Ctx) error {
	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	approval, err := h.approvals.ProcessDecision(c.Context(), c.Params("id"), req.UserID, req.Decision, req.Reason)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(approval)
}

func (h *APIHandlers) GetUserApprovals(c fiber.Ctx) error {
	var statuses []models.ApprovalStatus
	for _, status := range splitQueryList(c.Query("status")) {
		statuses = append(statuses, models.ApprovalStatus(status))
	}

	page, limit, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	found, total, err := h.approvals.GetUserApprovals(c.Context(), c.Params("userId"), statuses, page, limit)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"approvals": found, "total_count": total})
}

func (h *APIHandlers) GetApprovalStats(c fiber.Ctx) error {
	stats, err := h.approvals.GetApprovalStats(c.Context(), c.Params("userId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(stats)
}

// --- helpers ---

func splitQueryList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}

	return values
}

func parsePagination(c fiber.Ctx) (int, int, error) {
	var page, limit int

	if pageStr := c.Query("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil {
			return 0, 0, err
		}

		page = parsed
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}

		limit = parsed
	}

	return page, limit, nil
}
