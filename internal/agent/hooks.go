package agent

import (
	"context"
	"log"

	"github.com/dkershaw/converge/internal/model"
)

// Hook observes orchestrator progress. Implementations must be cheap; hooks
// run inline on the orchestrator goroutine.
type Hook interface {
	OnTaskStart(ctx context.Context, task *Task)
	OnModelCall(ctx context.Context, iteration int, req *model.Request)
	OnModelTurn(ctx context.Context, iteration int, msg model.Message, stop model.StopReason, usage model.TokenUsage)
	OnStreamDelta(ctx context.Context, delta string)
	OnToolCall(ctx context.Context, use model.ContentBlock)
	OnToolResult(ctx context.Context, use model.ContentBlock, output string, err error)
	OnWarning(ctx context.Context, msg string)
	OnTaskDone(ctx context.Context, result *TaskResult)
}

// NopHook implements Hook with no-ops; embed it to pick the callbacks you
// care about.
type NopHook struct{}

func (NopHook) OnTaskStart(context.Context, *Task)               {}
func (NopHook) OnModelCall(context.Context, int, *model.Request) {}
func (NopHook) OnModelTurn(context.Context, int, model.Message, model.StopReason, model.TokenUsage) {
}
func (NopHook) OnStreamDelta(context.Context, string)                           {}
func (NopHook) OnToolCall(context.Context, model.ContentBlock)                  {}
func (NopHook) OnToolResult(context.Context, model.ContentBlock, string, error) {}
func (NopHook) OnWarning(context.Context, string)                               {}
func (NopHook) OnTaskDone(context.Context, *TaskResult)                         {}

// Hooks fans out to multiple hooks in order.
type Hooks []Hook

func (hs Hooks) OnTaskStart(ctx context.Context, task *Task) {
	for _, h := range hs {
		h.OnTaskStart(ctx, task)
	}
}

func (hs Hooks) OnModelCall(ctx context.Context, iteration int, req *model.Request) {
	for _, h := range hs {
		h.OnModelCall(ctx, iteration, req)
	}
}

func (hs Hooks) OnModelTurn(ctx context.Context, iteration int, msg model.Message, stop model.StopReason, usage model.TokenUsage) {
	for _, h := range hs {
		h.OnModelTurn(ctx, iteration, msg, stop, usage)
	}
}

func (hs Hooks) OnStreamDelta(ctx context.Context, delta string) {
	for _, h := range hs {
		h.OnStreamDelta(ctx, delta)
	}
}

func (hs Hooks) OnToolCall(ctx context.Context, use model.ContentBlock) {
	for _, h := range hs {
		h.OnToolCall(ctx, use)
	}
}

func (hs Hooks) OnToolResult(ctx context.Context, use model.ContentBlock, output string, err error) {
	for _, h := range hs {
		h.OnToolResult(ctx, use, output, err)
	}
}

func (hs Hooks) OnWarning(ctx context.Context, msg string) {
	for _, h := range hs {
		h.OnWarning(ctx, msg)
	}
}

func (hs Hooks) OnTaskDone(ctx context.Context, result *TaskResult) {
	for _, h := range hs {
		h.OnTaskDone(ctx, result)
	}
}

// LoggerHook logs orchestrator progress through a standard logger.
type LoggerHook struct {
	NopHook
	L *log.Logger
}

func (h LoggerHook) OnTaskStart(_ context.Context, task *Task) {
	h.L.Printf("task %s started", task.ID)
}

func (h LoggerHook) OnModelCall(_ context.Context, iteration int, req *model.Request) {
	h.L.Printf("iteration=%d model=%s messages=%d tools=%d", iteration, req.ModelID, len(req.Messages), len(req.Tools))
}

func (h LoggerHook) OnModelTurn(_ context.Context, iteration int, msg model.Message, stop model.StopReason, usage model.TokenUsage) {
	h.L.Printf("iteration=%d stop=%s tool_uses=%d tokens in=%d out=%d", iteration, stop, len(msg.ToolUses()), usage.Input, usage.Output)
}

func (h LoggerHook) OnToolCall(_ context.Context, use model.ContentBlock) {
	h.L.Printf("tool → %s id=%s", use.Name, use.ID)
}

func (h LoggerHook) OnToolResult(_ context.Context, use model.ContentBlock, output string, err error) {
	if err != nil {
		h.L.Printf("tool %s error: %v", use.Name, err)
		return
	}
	preview := output
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	h.L.Printf("tool %s ok: %s", use.Name, preview)
}

func (h LoggerHook) OnWarning(_ context.Context, msg string) {
	h.L.Printf("warning: %s", msg)
}

func (h LoggerHook) OnTaskDone(_ context.Context, result *TaskResult) {
	h.L.Printf("task %s %s: tokens=%d cost=%.6f %s", result.TaskID, result.Status, result.TokenStats.Total, result.Cost.TotalCost, result.Cost.Currency)
}
