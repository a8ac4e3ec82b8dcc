// Package template provides templating for dynamic step configuration.
// Expressions render against the workflow instance's variables and the
// results of already-completed steps.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/grantflow/grantflow/pkg/models"
)

// RenderWithInstance renders input against an instance's execution context:
// .variables (and .vars), .steps keyed by step id, .metadata, .env, and
// .execution with the instance identity fields.
func RenderWithInstance(input string, instance *models.WorkflowInstance) (any, error) {
	stepResults := make(map[string]any, len(instance.Steps))
	for _, step := range instance.Steps {
		if step.Result != nil {
			stepResults[step.StepID] = step.Result
		}
	}

	data := map[string]any{
		"variables": instance.Variables,
		"vars":      instance.Variables,
		"steps":     stepResults,
		"metadata":  instance.Metadata,
		"env":       getEnvVars(),
		"execution": map[string]any{
			"id":          instance.ID,
			"workflow_id": instance.WorkflowID,
			"entity_id":   instance.EntityID,
			"entity_type": instance.EntityType,
		},
	}

	return Render(input, data)
}

// Render executes templateStr against data. Missing references render as the
// empty string rather than failing the step. Results that look like JSON,
// numbers, or booleans are returned as such; everything else stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	// text/template prints "<no value>" for absent map keys; the execution
	// context is open-ended, so absence means empty.
	result := strings.TrimSpace(strings.ReplaceAll(buf.String(), "<no value>", ""))

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderMap renders every string value in config, recursing into nested maps
// and slices. Non-string leaves pass through untouched.
func RenderMap(config map[string]any, instance *models.WorkflowInstance) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		out, err := renderValue(value, instance)
		if err != nil {
			return nil, err
		}

		rendered[key] = out
	}

	return rendered, nil
}

func renderValue(value any, instance *models.WorkflowInstance) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return RenderWithInstance(v, instance)
	case map[string]any:
		return RenderMap(v, instance)
	case []any:
		rendered := make([]any, len(v))

		for i, item := range v {
			out, err := renderValue(item, instance)
			if err != nil {
				return nil, err
			}

			rendered[i] = out
		}

		return rendered, nil
	default:
		return value, nil
	}
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
