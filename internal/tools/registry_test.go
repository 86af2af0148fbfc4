package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// stubTool is a configurable in-memory tool for registry tests.
type stubTool struct {
	name     string
	schema   map[string]any
	fn       func(ctx context.Context, args map[string]any) (string, error)
	executed *atomic.Int64
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }

func (s *stubTool) Schema() map[string]any {
	if s.schema != nil {
		return s.schema
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": map[string]any{"type": "string"}},
		"required":   []any{"value"},
	}
}

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if s.executed != nil {
		s.executed.Add(1)
	}
	if s.fn != nil {
		return s.fn(ctx, args)
	}
	return fmt.Sprintf("value=%v", args["value"]), nil
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "echo"})

	out, err := reg.Execute(context.Background(), "echo", map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "value=hi" {
		t.Errorf("output = %q", out)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Execute(context.Background(), "nope", nil)
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != ErrUnknownTool {
		t.Fatalf("error = %v, want kind %s", err, ErrUnknownTool)
	}
}

func TestRegistrySchemaRejectionDoesNotInvoke(t *testing.T) {
	var count atomic.Int64
	reg := NewRegistry()
	reg.Register(&stubTool{name: "strict", executed: &count})

	tests := []map[string]any{
		{},              // missing required
		{"value": 42},   // wrong type
		{"value": true}, // wrong type
		nil,             // no args at all
	}
	for i, args := range tests {
		_, err := reg.Execute(context.Background(), "strict", args)
		var terr *Error
		if !errors.As(err, &terr) || terr.Kind != ErrInvalidInput {
			t.Errorf("case %d: error = %v, want kind %s", i, err, ErrInvalidInput)
		}
	}
	if got := count.Load(); got != 0 {
		t.Errorf("tool was invoked %d times on invalid input", got)
	}
}

func TestRegistryDuplicateOverwrites(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "dup", fn: func(context.Context, map[string]any) (string, error) {
		return "first", nil
	}})
	reg.Register(&stubTool{name: "dup", fn: func(context.Context, map[string]any) (string, error) {
		return "second", nil
	}})

	out, err := reg.Execute(context.Background(), "dup", map[string]any{"value": "x"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "second" {
		t.Errorf("output = %q, want the overwriting tool", out)
	}
	if len(reg.List()) != 1 {
		t.Errorf("List() length = %d, want 1", len(reg.List()))
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "gone"})
	reg.Unregister("gone")
	if _, ok := reg.Get("gone"); ok {
		t.Error("tool still resolvable after Unregister")
	}
	// Unknown names are a no-op.
	reg.Unregister("never-existed")
}

func TestRegistryListSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "b"})
	reg.Register(&stubTool{name: "a"})

	defs := reg.List()
	if len(defs) != 2 || defs[0].Name != "a" || defs[1].Name != "b" {
		t.Fatalf("List() = %+v, want name-sorted [a b]", defs)
	}
	if defs[0].InputSchema["type"] != "object" {
		t.Errorf("definition schema missing type: %+v", defs[0].InputSchema)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "base"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch i % 3 {
				case 0:
					reg.Register(&stubTool{name: fmt.Sprintf("tool_%d_%d", i, j)})
				case 1:
					reg.List()
				default:
					_, _ = reg.Execute(context.Background(), "base", map[string]any{"value": "v"})
				}
			}
		}(i)
	}
	wg.Wait()

	if _, ok := reg.Get("base"); !ok {
		t.Error("base tool lost during concurrent access")
	}
}
