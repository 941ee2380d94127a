// Package tools implements the tool registry and dual-mode dispatcher that
// bridge the LLM to the external adapters: declare tools with JSON schemas,
// route LLM tool calls to handlers, execute locally or pass through to a
// provider-managed remote tool server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/utjfc/reg-agent/internal/observability"
	"github.com/utjfc/reg-agent/pkg/models"
)

// Tool is a named, schema-described side-effecting operation the LLM may
// request (§4.1).
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)
}

// Tool parameter limits, mirrored from the teacher's registry to prevent
// resource exhaustion on a misbehaving or compromised LLM response.
const (
	MaxToolNameLength = 256
	MaxToolArgsSize   = 10 << 20
)

// ToolNotFound is returned when dispatch is asked for an unregistered tool
// name (§4.1).
type ToolNotFound struct {
	Name string
}

func (e *ToolNotFound) Error() string { return "tool not found: " + e.Name }

// ToolValidationError is returned when a tool call's arguments fail the
// tool's own schema validation. The engine inserts a tool-error turn into
// history and re-invokes the LLM once to self-correct; a second failure is
// a ToolDispatchError (§4.1, §5).
type ToolValidationError struct {
	Name string
	Err  error
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.Name, e.Err)
}
func (e *ToolValidationError) Unwrap() error { return e.Err }

// ToolDispatchError is fatal: a second validation failure for the same tool
// call within a turn, or a dispatch-layer failure unrelated to the handler
// itself (§4.1).
type ToolDispatchError struct {
	Name string
	Err  error
}

func (e *ToolDispatchError) Error() string {
	return fmt.Sprintf("tool dispatch failed for %q: %v", e.Name, e.Err)
}
func (e *ToolDispatchError) Unwrap() error { return e.Err }

// Registry holds the immutable-after-startup set of tools available to the
// engine, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	metrics *observability.Metrics
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// SetMetrics attaches a metrics recorder; every Dispatch call afterward
// records its outcome and duration. Safe to call once at startup, before
// any tool traffic — Dispatch tolerates a nil recorder.
func (r *Registry) SetMetrics(metrics *observability.Metrics) {
	r.metrics = metrics
}

// Register adds a tool, replacing any existing registration of the same
// name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// SchemasFor returns the ToolSchema list for the given tool names, in the
// order requested, for publishing to the LLM (§4.1 schemas_for(agent)).
func (r *Registry) SchemasFor(names []string) ([]models.ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]models.ToolSchema, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, &ToolNotFound{Name: name}
		}
		var params map[string]any
		if err := json.Unmarshal(t.Schema(), &params); err != nil {
			return nil, fmt.Errorf("tools: unmarshal schema for %q: %w", name, err)
		}
		schemas = append(schemas, models.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		})
	}
	return schemas, nil
}

// Dispatch executes a tool call in local mode: looks the tool up, validates
// size limits and arguments against the tool's own JSON Schema, and runs its
// handler directly (§4.1, §4.6 step 5).
//
// A handler-raised error is captured and returned as a successful
// models.ToolResult with IsError set (the LLM sees it and decides whether to
// retry) rather than as a Go error; only registry-level failures (unknown
// tool, oversized payload, schema-invalid arguments) are returned as errors
// so the engine can apply the ToolNotFound/ToolValidationError/
// ToolDispatchError taxonomy.
func (r *Registry) Dispatch(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	if len(call.Name) > MaxToolNameLength {
		return nil, &ToolValidationError{Name: call.Name, Err: fmt.Errorf("tool name exceeds %d characters", MaxToolNameLength)}
	}
	if len(call.Arguments) > MaxToolArgsSize {
		return nil, &ToolValidationError{Name: call.Name, Err: fmt.Errorf("arguments exceed %d bytes", MaxToolArgsSize)}
	}

	tool, ok := r.Get(call.Name)
	if !ok {
		return nil, &ToolNotFound{Name: call.Name}
	}

	if err := validateArgs(tool.Schema(), call.Arguments); err != nil {
		return nil, &ToolValidationError{Name: call.Name, Err: err}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, call.Arguments)
	duration := time.Since(start).Seconds()
	if err != nil {
		r.recordExecution(call.Name, "error", duration)
		return &models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf(`{"error":%q}`, err.Error()),
			IsError:    true,
		}, nil
	}
	r.recordExecution(call.Name, "success", duration)
	result.ToolCallID = call.ID
	return result, nil
}

// validateArgs checks call arguments against a tool's JSON Schema: every
// required property must be present, and each property present must match
// its declared "type" and, if the schema names one, its "enum" (§4.1's
// schema-validation contract). It does not attempt full JSON Schema
// (nested object/array shapes, numeric bounds) — only what the tool
// schemas in this registry actually declare.
func validateArgs(schema json.RawMessage, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	var def struct {
		Properties map[string]struct {
			Type string   `json:"type"`
			Enum []string `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &def); err != nil {
		return fmt.Errorf("unmarshal tool schema: %w", err)
	}

	var values map[string]any
	if len(args) == 0 {
		values = map[string]any{}
	} else if err := json.Unmarshal(args, &values); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	for _, name := range def.Required {
		if _, ok := values[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}

	for name, value := range values {
		prop, ok := def.Properties[name]
		if !ok {
			continue
		}
		if prop.Type != "" {
			if err := validateJSONType(name, prop.Type, value); err != nil {
				return err
			}
		}
		if len(prop.Enum) > 0 {
			s, ok := value.(string)
			if !ok || !contains(prop.Enum, s) {
				return fmt.Errorf("field %q must be one of %v", name, prop.Enum)
			}
		}
	}
	return nil
}

// validateJSONType checks a decoded JSON value against a JSON Schema
// primitive type name. encoding/json decodes all JSON numbers as
// float64, so "integer" additionally requires a zero fractional part.
func validateJSONType(name, schemaType string, value any) error {
	switch schemaType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q must be a string", name)
		}
	case "integer":
		n, ok := value.(float64)
		if !ok || n != float64(int64(n)) {
			return fmt.Errorf("field %q must be an integer", name)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("field %q must be a number", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean", name)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("field %q must be an array", name)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("field %q must be an object", name)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *Registry) recordExecution(toolName, status string, durationSeconds float64) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordToolExecution(toolName, status, durationSeconds)
}

// RemoteToolServer describes the server URL and allow-list an LLM provider
// needs to manage remote tool calls itself, for agents whose
// models.AgentDefinition.Mode is models.ExecutionRemote. The engine never
// dispatches these tool calls directly; it only forwards this descriptor to
// the LLM invoker.
type RemoteToolServer struct {
	URL       string
	ToolNames []string
}

// Dispatcher executes a tool call according to an agent's execution mode.
// In local mode it calls Registry.Dispatch directly; in remote mode there is
// nothing to dispatch locally, since the provider already executed the tool
// call before returning — Dispatcher.Dispatch is only ever invoked for
// local-mode agents, remote-mode tool results arrive pre-populated on the
// LLM response (§4.1).
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher builds a Dispatcher over the given Registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch runs a batch of tool calls in the order returned by the LLM,
// stopping and returning the partial results plus the first fatal error if
// a dispatch-layer failure (unknown tool, oversized payload) occurs; a
// handler-raised error is not fatal and is folded into the batch's results
// (§4.6 step 5: "dispatch each via C1 in the order returned").
func (d *Dispatcher) Dispatch(ctx context.Context, calls []models.ToolCall) ([]models.ToolResult, error) {
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		result, err := d.registry.Dispatch(ctx, call)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	return results, nil
}
