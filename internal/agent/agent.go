package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/dkershaw/converge/internal/config"
	"github.com/dkershaw/converge/internal/model"
	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/tools/execution"
	"github.com/dkershaw/converge/internal/tools/filesystem"
	"github.com/dkershaw/converge/internal/tools/search"
	"github.com/dkershaw/converge/internal/workspace"
)

// Agent bundles a configured orchestrator with its task queue and tool
// registry. Build one per workspace.
type Agent struct {
	Orchestrator *Orchestrator
	Queue        *Queue
	Registry     *tools.Registry
	Workspace    *workspace.Dir
}

// New validates cfg, builds the workspace sandbox, registers the allowed
// tools that survive the permission check, and wires the orchestrator.
func New(cfg *config.Config, client model.Client, hooks Hooks) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	ws, err := workspace.New(cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg := tools.NewRegistry()
	reg.Warn = log.Default()
	for _, name := range cfg.AllowedTools {
		if !cfg.Registerable(name) {
			continue
		}
		switch name {
		case "fs_read":
			reg.Register(filesystem.NewReadTool(ws))
		case "fs_write":
			reg.Register(filesystem.NewWriteTool(ws))
		case "fs_list":
			reg.Register(filesystem.NewListTool(ws))
		case "grep":
			reg.Register(search.NewGrepTool(ws))
		case "find":
			reg.Register(search.NewFindTool(ws))
		case "execute_bash":
			reg.Register(execution.NewBashTool(ws))
		default:
			return nil, fmt.Errorf("invalid configuration: unknown tool %q", name)
		}
	}

	pricing := make(map[string]Price, len(cfg.Pricing))
	for id, p := range cfg.Pricing {
		pricing[id] = Price{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K, Currency: p.Currency}
	}
	cost := NewCostAccountant(pricing, func(format string, args ...any) {
		hooks.OnWarning(context.Background(), fmt.Sprintf(format, args...))
	})

	orch := NewOrchestrator(client, reg, cost, Options{
		ModelID:       cfg.ModelID,
		SystemPrompt:  cfg.SystemPrompt,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		StopSequences: cfg.StopSequences,
		MaxIterations: cfg.MaxIterations,
		Streaming:     cfg.Streaming,
	}, hooks)

	return &Agent{
		Orchestrator: orch,
		Queue:        NewQueue(),
		Registry:     reg,
		Workspace:    ws,
	}, nil
}

// Submit enqueues a task.
func (a *Agent) Submit(task *Task, priority Priority) {
	a.Queue.Enqueue(task, priority)
}

// Run consumes the queue until it closes or ctx ends, invoking done with
// each result.
func (a *Agent) Run(ctx context.Context, done func(TaskResult)) {
	Consume(ctx, a.Queue, a.Orchestrator, done)
}

// Close stops accepting work and wakes blocked consumers.
func (a *Agent) Close() {
	a.Queue.Close()
}
