package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/grantflow/grantflow/pkg/channels/gochannel"
	"github.com/grantflow/grantflow/pkg/eventbus"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/persistence"
	"github.com/grantflow/grantflow/pkg/persistence/file"
	"github.com/grantflow/grantflow/pkg/registry"
	"github.com/grantflow/grantflow/pkg/steps"
	"github.com/grantflow/grantflow/pkg/steps/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	stepType models.StepType
	fn       func(ctx context.Context, req steps.Request) (steps.Outcome, error)
}

func (s *stubExecutor) Type() models.StepType {
	return s.stepType
}

func (s *stubExecutor) Execute(ctx context.Context, req steps.Request) (steps.Outcome, error) {
	return s.fn(ctx, req)
}

func syncExecutor(executed *[]string) *stubExecutor {
	return &stubExecutor{
		stepType: models.StepTypeService,
		fn: func(_ context.Context, req steps.Request) (steps.Outcome, error) {
			if executed != nil {
				*executed = append(*executed, req.Step.ID)
			}

			return steps.Outcome{Completed: true, Result: map[string]any{"ok": true}}, nil
		},
	}
}

func asyncExecutor() *stubExecutor {
	return &stubExecutor{
		stepType: models.StepTypeTask,
		fn: func(_ context.Context, req steps.Request) (steps.Outcome, error) {
			return steps.Outcome{Completed: false, Result: map[string]any{"task_id": "TASK-" + req.Step.ID}}, nil
		},
	}
}

func newTestEngine(t *testing.T, executors ...steps.Executor) (*Engine, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	reg := registry.NewRegistry()
	for _, executor := range executors {
		reg.Register(executor)
	}

	return NewEngine(store, reg, eventbus.NewWatermillEventBus(pub, sub)), store
}

func saveDefinition(t *testing.T, store persistence.Persistence, def *models.WorkflowDefinition) {
	t.Helper()
	require.NoError(t, store.DefinitionRepository().SaveDefinition(t.Context(), def))
}

func serviceStep(id string, next ...string) *models.WorkflowStep {
	return &models.WorkflowStep{ID: id, Name: id, Type: models.StepTypeService, NextSteps: next}
}

func taskStep(id string, next ...string) *models.WorkflowStep {
	return &models.WorkflowStep{ID: id, Name: id, Type: models.StepTypeTask, NextSteps: next}
}

func TestExecuteWorkflowCompletesLinearChain(t *testing.T) {
	var executed []string

	eng, store := newTestEngine(t, syncExecutor(&executed))

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "grant-intake",
		Name:    "Grant intake",
		Version: "1.0.0",
		Variables: map[string]any{
			"region": "emea",
			"amount": 1000.0,
		},
		Steps: []*models.WorkflowStep{
			serviceStep("intake", "review"),
			serviceStep("review", "finish"),
			serviceStep("finish"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID:  "grant-intake",
		EntityID:    "grant-42",
		EntityType:  "grant_application",
		Variables:   map[string]any{"amount": 50000.0},
		InitiatedBy: "applicant-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"intake", "review", "finish"}, executed)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	require.NotNil(t, instance.CompletedAt)

	// Caller variables override definition defaults.
	assert.Equal(t, 50000.0, instance.Variables["amount"])
	assert.Equal(t, "emea", instance.Variables["region"])

	for _, step := range instance.Steps {
		assert.Equal(t, models.StepStatusCompleted, step.Status)
		require.NotNil(t, step.CompletedAt)
		assert.Equal(t, 1, step.Attempts)
	}
}

func TestAsyncStepWaitsForExternalCompletion(t *testing.T) {
	var executed []string

	eng, store := newTestEngine(t, syncExecutor(&executed), asyncExecutor())

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "grant-review",
		Name:    "Grant review",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			serviceStep("intake", "decision"),
			taskStep("decision", "notify"),
			serviceStep("notify"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "grant-review",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusActive, instance.Status)
	assert.Equal(t, []string{"intake"}, executed)

	decision, ok := instance.StepByStepID("decision")
	require.True(t, ok)
	assert.Equal(t, models.StepStatusInProgress, decision.Status)

	execution, ok := decision.Metadata["execution"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TASK-decision", execution["task_id"])

	err = eng.UpdateStepStatus(t.Context(), instance.ID, "decision", models.StepStatusCompleted,
		map[string]any{"approval_result": "approved"}, "")
	require.NoError(t, err)

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Equal(t, []string{"intake", "notify"}, executed)

	decision, _ = instance.StepByStepID("decision")
	assert.Equal(t, models.StepStatusCompleted, decision.Status)

	err = eng.UpdateStepStatus(t.Context(), instance.ID, "decision", models.StepStatusCompleted, nil, "")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelRejectsLateCompletions(t *testing.T) {
	eng, store := newTestEngine(t, asyncExecutor())

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "grant-review",
		Name:    "Grant review",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			taskStep("decision", "second"),
			taskStep("second"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "grant-review",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	err = eng.CancelWorkflow(t.Context(), instance.ID, "applicant withdrew", "admin-1")
	require.NoError(t, err)

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, instance.Status)
	assert.Equal(t, "applicant withdrew", instance.Metadata["cancellation_reason"])

	for _, step := range instance.Steps {
		assert.Equal(t, models.StepStatusSkipped, step.Status)
		require.NotNil(t, step.CompletedAt)
	}

	err = eng.UpdateStepStatus(t.Context(), instance.ID, "decision", models.StepStatusCompleted, nil, "")
	require.ErrorIs(t, err, ErrInvalidState)

	err = eng.UpdateStepStatus(t.Context(), instance.ID, "second", models.StepStatusInProgress, nil, "")
	require.ErrorIs(t, err, ErrInvalidState)

	err = eng.CancelWorkflow(t.Context(), instance.ID, "again", "admin-1")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestFailedInstanceRejectsStepStatusOverrides(t *testing.T) {
	broken := &stubExecutor{
		stepType: models.StepTypeService,
		fn: func(_ context.Context, _ steps.Request) (steps.Outcome, error) {
			return steps.Outcome{}, assert.AnError
		},
	}

	eng, store := newTestEngine(t, broken, asyncExecutor())

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "doomed-review",
		Name:    "Doomed review",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			serviceStep("check"),
			taskStep("human"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "doomed-review",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusFailed, instance.Status)

	// Once the instance is terminal no transition may touch its steps, not
	// even the non-terminal ones a manual override could request.
	for _, status := range []models.StepStatus{models.StepStatusInProgress, models.StepStatusBlocked, models.StepStatusPending} {
		err = eng.UpdateStepStatus(t.Context(), instance.ID, "human", status, nil, "")
		require.ErrorIs(t, err, ErrInvalidState)
	}

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)

	human, _ := instance.StepByStepID("human")
	assert.Equal(t, models.StepStatusPending, human.Status)
}

func TestFailedStepRetriesWithBackoff(t *testing.T) {
	attempts := 0
	flaky := &stubExecutor{
		stepType: models.StepTypeService,
		fn: func(_ context.Context, _ steps.Request) (steps.Outcome, error) {
			attempts++
			if attempts < 3 {
				return steps.Outcome{}, assert.AnError
			}

			return steps.Outcome{Completed: true}, nil
		},
	}

	eng, store := newTestEngine(t, flaky)

	var delays []time.Duration

	eng.after = func(d time.Duration, fn func()) {
		delays = append(delays, d)

		fn()
	}

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "flaky-check",
		Name:    "Flaky check",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			{
				ID:   "check",
				Name: "check",
				Type: models.StepTypeService,
				RetryPolicy: &models.RetryPolicy{
					MaxAttempts:   3,
					BackoffFactor: 1,
					MaxDelay:      30,
				},
			},
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "flaky-check",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)

	step, _ := instance.StepByStepID("check")
	assert.Equal(t, models.StepStatusCompleted, step.Status)
	assert.Equal(t, 3, step.Attempts)
}

func TestExhaustedRetriesFailInstance(t *testing.T) {
	broken := &stubExecutor{
		stepType: models.StepTypeService,
		fn: func(_ context.Context, _ steps.Request) (steps.Outcome, error) {
			return steps.Outcome{}, assert.AnError
		},
	}

	eng, store := newTestEngine(t, broken)

	var delays []time.Duration

	eng.after = func(d time.Duration, fn func()) {
		delays = append(delays, d)

		fn()
	}

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "broken-check",
		Name:    "Broken check",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			{
				ID:          "check",
				Name:        "check",
				Type:        models.StepTypeService,
				RetryPolicy: &models.RetryPolicy{MaxAttempts: 2, BackoffFactor: 1},
			},
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "broken-check",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second}, delays)

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusFailed, instance.Status)

	step, _ := instance.StepByStepID("check")
	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, 2, step.Attempts)
	assert.NotEmpty(t, step.Error)
	require.NotNil(t, step.CompletedAt)
}

func TestErrorHandlerAbsorbsFailure(t *testing.T) {
	var executed []string

	failing := &stubExecutor{
		stepType: models.StepTypeService,
		fn: func(_ context.Context, req steps.Request) (steps.Outcome, error) {
			executed = append(executed, req.Step.ID)
			if req.Step.ID == "check" {
				return steps.Outcome{}, assert.AnError
			}

			return steps.Outcome{Completed: true}, nil
		},
	}

	eng, store := newTestEngine(t, failing)

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "handled-check",
		Name:    "Handled check",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			{
				ID:     "check",
				Name:   "check",
				Type:   models.StepTypeService,
				Config: map[string]any{"on_error_step": "cleanup"},
			},
			serviceStep("cleanup"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "handled-check",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	// The handler runs once, from failure routing, never as an entry step.
	assert.Equal(t, []string{"check", "cleanup"}, executed)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)

	check, _ := instance.StepByStepID("check")
	assert.Equal(t, models.StepStatusFailed, check.Status)

	cleanup, _ := instance.StepByStepID("cleanup")
	assert.Equal(t, models.StepStatusCompleted, cleanup.Status)
}

func TestUnfiredErrorHandlerDoesNotHoldInstanceOpen(t *testing.T) {
	var executed []string

	eng, store := newTestEngine(t, syncExecutor(&executed))

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "healthy-check",
		Name:    "Healthy check",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			{
				ID:     "check",
				Name:   "check",
				Type:   models.StepTypeService,
				Config: map[string]any{"on_error_step": "cleanup"},
			},
			serviceStep("cleanup"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "healthy-check",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"check"}, executed)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)

	cleanup, _ := instance.StepByStepID("cleanup")
	assert.Equal(t, models.StepStatusSkipped, cleanup.Status)
}

func TestGatewaySkipsUnchosenBranch(t *testing.T) {
	var executed []string

	eng, store := newTestEngine(t, syncExecutor(&executed), gateway.NewExecutor())

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "routing",
		Name:    "Routing",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			{
				ID:   "route",
				Name: "route",
				Type: models.StepTypeGateway,
				Config: map[string]any{
					"condition":  "{{ .variables.approved }}",
					"when_true":  []any{"notify_ok"},
					"when_false": []any{"notify_reject"},
				},
				NextSteps: []string{"notify_ok", "notify_reject"},
			},
			serviceStep("notify_ok"),
			serviceStep("notify_reject"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "routing",
		EntityID:   "grant-42",
		EntityType: "grant_application",
		Variables:  map[string]any{"approved": false},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"notify_reject"}, executed)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)

	skipped, _ := instance.StepByStepID("notify_ok")
	assert.Equal(t, models.StepStatusSkipped, skipped.Status)

	taken, _ := instance.StepByStepID("notify_reject")
	assert.Equal(t, models.StepStatusCompleted, taken.Status)
}

func TestParallelFanOutJoinsOnAllBranches(t *testing.T) {
	var executed []string

	eng, store := newTestEngine(t, syncExecutor(&executed), asyncExecutor())

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "parallel-review",
		Name:    "Parallel review",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			serviceStep("start", "legal", "finance"),
			taskStep("legal", "join"),
			taskStep("finance", "join"),
			serviceStep("join"),
		},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "parallel-review",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	legal, _ := instance.StepByStepID("legal")
	finance, _ := instance.StepByStepID("finance")
	assert.Equal(t, models.StepStatusInProgress, legal.Status)
	assert.Equal(t, models.StepStatusInProgress, finance.Status)

	require.NoError(t, eng.UpdateStepStatus(t.Context(), instance.ID, "legal", models.StepStatusCompleted, nil, ""))

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, instance.Status)

	join, _ := instance.StepByStepID("join")
	assert.Equal(t, models.StepStatusPending, join.Status)

	require.NoError(t, eng.UpdateStepStatus(t.Context(), instance.ID, "finance", models.StepStatusCompleted, nil, ""))

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)

	join, _ = instance.StepByStepID("join")
	assert.Equal(t, models.StepStatusCompleted, join.Status)
}

func TestAddStepCommentAndHistory(t *testing.T) {
	eng, store := newTestEngine(t, asyncExecutor())

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "grant-review",
		Name:    "Grant review",
		Version: "1.0.0",
		Steps:   []*models.WorkflowStep{taskStep("decision")},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "grant-review",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)

	comment, err := eng.AddStepComment(t.Context(), instance.ID, "decision", "reviewer-1", "Needs budget detail", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)

	_, err = eng.AddStepComment(t.Context(), instance.ID, "missing", "reviewer-1", "nope", nil)
	require.ErrorIs(t, err, ErrStepNotFound)

	instance, err = eng.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)

	decision, _ := instance.StepByStepID("decision")
	require.Len(t, decision.Comments, 1)
	assert.Equal(t, "Needs budget detail", decision.Comments[0].Comment)

	history, err := eng.GetWorkflowHistory(t.Context(), "grant-42", "grant_application")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, instance.ID, history[0].ID)
}

func TestUnregisteredStepTypeFailsInstance(t *testing.T) {
	eng, store := newTestEngine(t)

	saveDefinition(t, store, &models.WorkflowDefinition{
		ID:      "no-executor",
		Name:    "No executor",
		Version: "1.0.0",
		Steps:   []*models.WorkflowStep{serviceStep("check")},
	})

	instance, err := eng.ExecuteWorkflow(t.Context(), ExecuteRequest{
		WorkflowID: "no-executor",
		EntityID:   "grant-42",
		EntityType: "grant_application",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusFailed, instance.Status)
}
