package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
)

// fakeTool — управляемый инструмент для тестов.
type fakeTool struct {
	def      ToolDefinition
	result   string
	err      error
	panicMsg string
	calls    int
}

func (f *fakeTool) Definition() ToolDefinition { return f.def }

func (f *fakeTool) Execute(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result, f.err
}

func echoDef(name string, required ...string) ToolDefinition {
	req := required
	if req == nil {
		req = []string{}
	}
	return ToolDefinition{
		Name:        name,
		Description: "test tool",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   req,
		},
	}
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()

	t.Run("rejects empty name", func(t *testing.T) {
		err := r.Register(&fakeTool{def: ToolDefinition{Parameters: map[string]any{"type": "object"}}})
		if err == nil {
			t.Error("expected error for empty tool name")
		}
	})

	t.Run("rejects non-object parameters", func(t *testing.T) {
		err := r.Register(&fakeTool{def: ToolDefinition{
			Name:       "bad",
			Parameters: map[string]any{"type": "array"},
		}})
		if err == nil {
			t.Error("expected error for non-object parameters type")
		}
	})

	t.Run("accepts valid definition", func(t *testing.T) {
		if err := r.Register(&fakeTool{def: echoDef("ok")}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := r.Get("ok"); err != nil {
			t.Errorf("registered tool not found: %v", err)
		}
	})
}

func TestValidateArgs(t *testing.T) {
	def := echoDef("t", "machine_id", "status")

	t.Run("passes with all required fields", func(t *testing.T) {
		args, err := ValidateArgs(def, `{"machine_id": "m-1", "status": "offline"}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if args["machine_id"] != "m-1" {
			t.Errorf("args not preserved: %v", args)
		}
	})

	t.Run("rejects missing required field", func(t *testing.T) {
		if _, err := ValidateArgs(def, `{"machine_id": "m-1"}`); err == nil {
			t.Error("expected error for missing 'status'")
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		if _, err := ValidateArgs(def, `{"machine_id": `); err == nil {
			t.Error("expected error for malformed json")
		}
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		if _, err := ValidateArgs(def, "```json\n{\"machine_id\": \"m\", \"status\": \"online\"}\n```"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestExecutorNeverThrows(t *testing.T) {
	t.Run("unknown tool yields error string", func(t *testing.T) {
		e := NewExecutor(NewRegistry())
		result := e.Execute(context.Background(), llm.ToolCall{ID: "1", Name: "ghost", Args: "{}"})
		if !strings.HasPrefix(result, "Error:") {
			t.Errorf("expected error string, got: %s", result)
		}
	})

	t.Run("validation failure skips handler", func(t *testing.T) {
		tool := &fakeTool{def: echoDef("strict", "query")}
		r := NewRegistry()
		if err := r.Register(tool); err != nil {
			t.Fatal(err)
		}
		e := NewExecutor(r)

		result := e.Execute(context.Background(), llm.ToolCall{ID: "1", Name: "strict", Args: `{}`})
		if !strings.Contains(result, "invalid arguments") {
			t.Errorf("expected validation error, got: %s", result)
		}
		if tool.calls != 0 {
			t.Errorf("handler must not be invoked on validation failure, calls = %d", tool.calls)
		}
	})

	t.Run("handler error becomes error string", func(t *testing.T) {
		tool := &fakeTool{def: echoDef("failing"), err: errors.New("backend down")}
		r := NewRegistry()
		r.Register(tool)
		e := NewExecutor(r)

		result := e.Execute(context.Background(), llm.ToolCall{ID: "1", Name: "failing", Args: "{}"})
		if !strings.Contains(result, "backend down") {
			t.Errorf("expected wrapped handler error, got: %s", result)
		}
	})

	t.Run("handler panic is recovered", func(t *testing.T) {
		tool := &fakeTool{def: echoDef("bomber"), panicMsg: "boom"}
		r := NewRegistry()
		r.Register(tool)
		e := NewExecutor(r)

		result := e.Execute(context.Background(), llm.ToolCall{ID: "1", Name: "bomber", Args: "{}"})
		if !strings.Contains(result, "panic") {
			t.Errorf("expected panic converted to error string, got: %s", result)
		}
	})

	t.Run("success returns handler output", func(t *testing.T) {
		tool := &fakeTool{def: echoDef("ok"), result: `{"done": true}`}
		r := NewRegistry()
		r.Register(tool)
		e := NewExecutor(r)

		result := e.Execute(context.Background(), llm.ToolCall{ID: "1", Name: "ok", Args: "{}"})
		if result != `{"done": true}` {
			t.Errorf("unexpected result: %s", result)
		}
	})
}
