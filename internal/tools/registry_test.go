package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/utjfc/reg-agent/pkg/models"
)

type stubTool struct {
	name   string
	desc   string
	schema json.RawMessage
	result *models.ToolResult
	err    error
}

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Description() string     { return s.desc }
func (s *stubTool) Schema() json.RawMessage { return s.schema }
func (s *stubTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	return s.result, s.err
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "db_query", schema: json.RawMessage(`{"type":"object"}`)}
	r.Register(tool)

	got, ok := r.Get("db_query")
	if !ok || got.Name() != "db_query" {
		t.Fatalf("Get returned (%v, %v), want the registered tool", got, ok)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get for an unregistered name returned ok=true")
	}
}

func TestRegistry_SchemasFor(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		name:   "address_lookup",
		desc:   "Look up a UK address by postcode",
		schema: json.RawMessage(`{"type":"object","properties":{"postcode":{"type":"string"}}}`),
	})

	schemas, err := r.SchemasFor([]string{"address_lookup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schemas) != 1 || schemas[0].Name != "address_lookup" {
		t.Fatalf("got %+v", schemas)
	}
	if schemas[0].Parameters["type"] != "object" {
		t.Errorf("parameters not unmarshalled correctly: %+v", schemas[0].Parameters)
	}
}

func TestRegistry_SchemasFor_UnknownToolFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.SchemasFor([]string{"nope"})
	var notFound *ToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want ToolNotFound", err)
	}
}

func TestRegistry_Dispatch_UnknownToolIsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), models.ToolCall{Name: "nope"})
	var notFound *ToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want ToolNotFound", err)
	}
}

func TestRegistry_Dispatch_OversizedArgumentsIsValidationError(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "big"})
	huge := make(json.RawMessage, MaxToolArgsSize+1)
	_, err := r.Dispatch(context.Background(), models.ToolCall{Name: "big", Arguments: huge})
	var validationErr *ToolValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("got %v, want ToolValidationError", err)
	}
}

func TestRegistry_Dispatch_HandlerErrorBecomesErrorResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "flaky", err: errors.New("upstream unavailable")})

	result, err := r.Dispatch(context.Background(), models.ToolCall{ID: "call-1", Name: "flaky"})
	if err != nil {
		t.Fatalf("a handler error must not be returned as a dispatch error, got %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError=true")
	}
	if result.ToolCallID != "call-1" {
		t.Errorf("ToolCallID = %q, want call-1", result.ToolCallID)
	}
}

func TestRegistry_Dispatch_Success(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "ok", result: &models.ToolResult{Content: `{"found":true}`}})

	result, err := r.Dispatch(context.Background(), models.ToolCall{ID: "call-2", Name: "ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != `{"found":true}` || result.ToolCallID != "call-2" {
		t.Errorf("got %+v", result)
	}
}

func TestDispatcher_Dispatch_RunsInOrderAndStopsOnFatalError(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "first", result: &models.ToolResult{Content: "1"}})
	registry.Register(&stubTool{name: "second", result: &models.ToolResult{Content: "2"}})

	d := NewDispatcher(registry)
	results, err := d.Dispatch(context.Background(), []models.ToolCall{
		{ID: "a", Name: "first"},
		{ID: "b", Name: "missing"},
		{ID: "c", Name: "second"},
	})
	var notFound *ToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want ToolNotFound", err)
	}
	if len(results) != 1 || results[0].Content != "1" {
		t.Fatalf("got %+v, want only the first call's result before the fatal error", results)
	}
}

func TestDispatcher_Dispatch_HandlerErrorsDoNotStopTheBatch(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "flaky", err: errors.New("boom")})
	registry.Register(&stubTool{name: "fine", result: &models.ToolResult{Content: "ok"}})

	d := NewDispatcher(registry)
	results, err := d.Dispatch(context.Background(), []models.ToolCall{
		{ID: "a", Name: "flaky"},
		{ID: "b", Name: "fine"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].IsError {
		t.Error("expected the first result to carry the handler error")
	}
	if results[1].Content != "ok" {
		t.Errorf("second result = %+v", results[1])
	}
}
