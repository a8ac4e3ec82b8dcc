// Package schema validates workflow definitions before they are accepted for
// execution: JSON schema checks on the document shape plus graph-level checks
// the schema language cannot express.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/grantflow/grantflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidDefinition = errors.New("invalid workflow definition")

// definitionSchema is the structural contract of a workflow definition
// document. Graph integrity (edge targets, duplicate ids) is checked
// separately.
const definitionSchema = `{
	"type": "object",
	"required": ["id", "name", "version", "steps"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 3},
		"version": {"type": "string", "minLength": 1},
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "name", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"type": {
						"type": "string",
						"enum": ["approval", "notification", "task", "service", "timer", "gateway"]
					},
					"next_steps": {"type": "array", "items": {"type": "string"}},
					"timeout": {"type": "integer", "minimum": 0},
					"retry_policy": {
						"type": "object",
						"required": ["max_attempts"],
						"properties": {
							"max_attempts": {"type": "integer", "minimum": 1},
							"backoff_factor": {"type": "number", "minimum": 0},
							"max_delay": {"type": "number", "minimum": 0}
						}
					}
				}
			}
		}
	}
}`

// Validator checks workflow definitions and execution inputs.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definitionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile definition schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDefinition runs the JSON schema over the definition document, then
// verifies graph integrity: unique step ids, and every next_steps and
// on_error_step edge pointing at an existing step.
func (v *Validator) ValidateDefinition(def *models.WorkflowDefinition) error {
	document, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(issues, "; "))
	}

	return v.validateGraph(def)
}

func (v *Validator) validateGraph(def *models.WorkflowDefinition) error {
	seen := make(map[string]bool, len(def.Steps))

	for _, step := range def.Steps {
		if seen[step.ID] {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidDefinition, step.ID)
		}

		seen[step.ID] = true
	}

	entrySteps := 0

	for _, step := range def.Steps {
		for _, next := range step.NextSteps {
			if !seen[next] {
				return fmt.Errorf("%w: step %q points at unknown step %q", ErrInvalidDefinition, step.ID, next)
			}

			if next == step.ID {
				return fmt.Errorf("%w: step %q points at itself", ErrInvalidDefinition, step.ID)
			}
		}

		if handler := step.ErrorHandlerStep(); handler != "" && !seen[handler] {
			return fmt.Errorf("%w: step %q routes errors to unknown step %q", ErrInvalidDefinition, step.ID, handler)
		}

		if len(def.Predecessors(step.ID)) == 0 && !def.IsErrorHandler(step.ID) {
			entrySteps++
		}
	}

	if entrySteps == 0 {
		return fmt.Errorf("%w: no entry steps, the graph is fully cyclic", ErrInvalidDefinition)
	}

	return nil
}

// ValidateVariables checks execution inputs against the definition's optional
// variables schema, carried in metadata under "variables_schema". Definitions
// without one accept any input.
func (v *Validator) ValidateVariables(def *models.WorkflowDefinition, variables map[string]any) error {
	raw, ok := def.Metadata["variables_schema"].(map[string]any)
	if !ok {
		return nil
	}

	if variables == nil {
		variables = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(raw), gojsonschema.NewGoLoader(variables))
	if err != nil {
		return fmt.Errorf("variables schema validation failed: %w", err)
	}

	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(issues, "; "))
	}

	return nil
}
