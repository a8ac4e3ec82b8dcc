// Package service implements the service step type: a synchronous HTTP call
// to an external collaborator with a payload resolved from instance
// variables.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/grantflow/grantflow/pkg/log"
	"github.com/grantflow/grantflow/pkg/models"
	"github.com/grantflow/grantflow/pkg/steps"
	"github.com/grantflow/grantflow/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	ErrMissingURL     = errors.New("missing or invalid 'url' in service step config")
	ErrServiceFailure = errors.New("service call returned a non-success status")
)

type Executor struct {
	client *http.Client
	logger *slog.Logger
}

func NewExecutor() *Executor {
	return &Executor{
		client: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger: log.WithModule("service_step"),
	}
}

func (e *Executor) Type() models.StepType {
	return models.StepTypeService
}

// Execute completes synchronously. Any non-2xx response fails the step so the
// engine's retry policy and error path apply.
func (e *Executor) Execute(ctx context.Context, req steps.Request) (steps.Outcome, error) {
	config, err := template.RenderMap(req.Step.Config, req.Instance)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to render service config: %w", err)
	}

	url, _ := config["url"].(string)
	if url == "" {
		return steps.Outcome{}, ErrMissingURL
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	method = strings.ToUpper(method)

	body, err := buildBody(config["payload"])
	if err != nil {
		return steps.Outcome{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to create service request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			httpReq.Header.Set(key, fmt.Sprintf("%v", value))
		}
	}

	e.logger.InfoContext(ctx, "Calling external service",
		"instance_id", req.Instance.ID,
		"step_id", req.Step.ID,
		"method", method,
		"url", url)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("service call failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return steps.Outcome{}, fmt.Errorf("failed to read service response: %w", err)
	}

	var responseBody any

	err = json.Unmarshal(responseBytes, &responseBody)
	if err != nil {
		responseBody = string(responseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return steps.Outcome{}, fmt.Errorf("%w: status %d", ErrServiceFailure, resp.StatusCode)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        responseBody,
	}

	outcome := steps.Outcome{Completed: true, Result: result}

	if resultVariable, ok := config["result_variable"].(string); ok && resultVariable != "" {
		outcome.Variables = map[string]any{resultVariable: responseBody}
	}

	return outcome, nil
}

func buildBody(payload any) (io.Reader, error) {
	if payload == nil {
		return strings.NewReader(""), nil
	}

	if s, ok := payload.(string); ok {
		return strings.NewReader(s), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal service payload: %w", err)
	}

	return strings.NewReader(string(data)), nil
}
