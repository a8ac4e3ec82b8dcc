package schema

import (
	"testing"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:      "grant-review",
		Name:    "Grant review",
		Version: "1.0.0",
		Steps: []*models.WorkflowStep{
			{ID: "intake", Name: "Intake", Type: models.StepTypeService, NextSteps: []string{"decision"}},
			{ID: "decision", Name: "Decision", Type: models.StepTypeApproval},
		},
	}
}

func TestValidDefinitionPasses(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	require.NoError(t, validator.ValidateDefinition(newValidDefinition()))
}

func TestDefinitionRequiresSteps(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	def := newValidDefinition()
	def.Steps = nil

	err = validator.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestDefinitionRejectsUnknownStepType(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	def := newValidDefinition()
	def.Steps[0].Type = "magic"

	err = validator.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestDefinitionRejectsDanglingEdge(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	def := newValidDefinition()
	def.Steps[0].NextSteps = []string{"missing"}

	err = validator.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestDefinitionRejectsDuplicateStepIDs(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	def := newValidDefinition()
	def.Steps[1].ID = "intake"
	def.Steps[0].NextSteps = nil

	err = validator.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestDefinitionRejectsUnknownErrorHandler(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	def := newValidDefinition()
	def.Steps[0].Config = map[string]any{"on_error_step": "nowhere"}

	err = validator.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestDefinitionRejectsFullCycle(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	def := newValidDefinition()
	def.Steps[1].NextSteps = []string{"intake"}

	err = validator.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "cyclic")
}

func TestValidateVariablesAgainstMetadataSchema(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	def := newValidDefinition()
	def.Metadata = map[string]any{
		"variables_schema": map[string]any{
			"type":     "object",
			"required": []any{"amount"},
			"properties": map[string]any{
				"amount": map[string]any{"type": "number", "minimum": float64(0)},
			},
		},
	}

	require.NoError(t, validator.ValidateVariables(def, map[string]any{"amount": 50000.0}))

	err = validator.ValidateVariables(def, map[string]any{})
	require.ErrorIs(t, err, ErrInvalidDefinition)

	// No schema configured means any input is accepted.
	require.NoError(t, validator.ValidateVariables(newValidDefinition(), nil))
}
