package agent

import (
	"context"
	"testing"

	"github.com/dkershaw/converge/internal/config"
	"github.com/dkershaw/converge/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ModelID:      "test-model",
		WorkspaceDir: t.TempDir(),
		AllowedTools: []string{"fs_read", "fs_write", "fs_list", "grep", "find", "execute_bash"},
	}
}

func TestNewRegistersAllowedTools(t *testing.T) {
	a, err := New(testConfig(t), &fakeClient{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defs := a.Registry.List()
	if len(defs) != 6 {
		t.Fatalf("registered tools = %d, want 6", len(defs))
	}
}

func TestNewDenySuppressesRegistration(t *testing.T) {
	cfg := testConfig(t)
	cfg.ToolPermissions = map[string]config.ToolPermission{
		"execute_bash": {Policy: config.PolicyDeny},
		"fs_write":     {Policy: config.PolicyAsk}, // ask is allow
	}
	a, err := New(cfg, &fakeClient{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := a.Registry.Get("execute_bash"); ok {
		t.Error("denied tool was registered")
	}
	if _, ok := a.Registry.Get("fs_write"); !ok {
		t.Error("ask-policy tool missing")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowedTools = []string{"not_a_tool"}
	if _, err := New(cfg, &fakeClient{}, nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}

	cfg = testConfig(t)
	cfg.WorkspaceDir = "relative"
	if _, err := New(cfg, &fakeClient{}, nil); err == nil {
		t.Fatal("expected error for relative workspace")
	}
}

func TestAgentRunsSubmittedTask(t *testing.T) {
	client := &fakeClient{responses: []*model.Response{
		assistantText("done", model.TokenUsage{Input: 4, Output: 2, Total: 6}),
	}}
	a, err := New(testConfig(t), client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a.Submit(NewTask("do it", ""), PriorityHigh)
	a.Close()

	var results []TaskResult
	a.Run(context.Background(), func(res TaskResult) { results = append(results, res) })

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Status != StatusCompleted || results[0].Summary != "done" {
		t.Errorf("result = %+v", results[0])
	}
}
