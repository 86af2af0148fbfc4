package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkershaw/converge/internal/model"
	"github.com/dkershaw/converge/internal/stream"
	"github.com/dkershaw/converge/internal/tools"
)

// DefaultMaxIterations is the hard cap on model turns per task. The cap is
// the termination guarantee against a model that keeps requesting tools.
const DefaultMaxIterations = 10

// contextSeparator joins a task's auxiliary context and its prompt inside
// the seed message's single text block.
const contextSeparator = "\n\n---\n\n"

// Options are the per-orchestrator model parameters.
type Options struct {
	ModelID       string
	SystemPrompt  string
	MaxTokens     int
	Temperature   float32
	TopP          float32
	StopSequences []string

	// MaxIterations caps model turns per task; zero means the default of 10.
	MaxIterations int

	// Streaming selects ConverseStream and drives the reconstructor.
	Streaming bool
}

// Orchestrator runs the bounded tool-use loop: issue a model turn, dispatch
// any requested tools, feed results back, repeat. It is stateless across
// tasks; all per-task state lives on the stack of Execute.
type Orchestrator struct {
	client   model.Client
	registry *tools.Registry
	cost     *CostAccountant
	opts     Options
	hooks    Hooks
}

// NewOrchestrator wires an orchestrator. A nil cost accountant prices every
// turn at zero.
func NewOrchestrator(client model.Client, registry *tools.Registry, cost *CostAccountant, opts Options, hooks Hooks) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if cost == nil {
		cost = NewCostAccountant(nil, nil)
	}
	return &Orchestrator{
		client:   client,
		registry: registry,
		cost:     cost,
		opts:     opts,
		hooks:    hooks,
	}
}

// Execute drives task to completion and returns its frozen result. Tool
// failures are folded into the conversation as error results; only provider
// and protocol failures end the task as failed. Context cancellation ends it
// as cancelled with the partial conversation preserved.
func (o *Orchestrator) Execute(ctx context.Context, task *Task) TaskResult {
	res := TaskResult{
		TaskID:    task.ID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	o.hooks.OnTaskStart(ctx, task)

	conversation := []model.Message{seedMessage(task)}
	var lastAssistantText string
	capped := true

	for k := 0; k < o.opts.MaxIterations; k++ {
		if ctx.Err() != nil {
			return o.finish(ctx, &res, conversation, StatusCancelled, lastAssistantText, "")
		}

		req := o.buildRequest(conversation)
		o.hooks.OnModelCall(ctx, k, req)

		msg, stop, turnUsage, malformed, err := o.modelTurn(ctx, req)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return o.finish(ctx, &res, conversation, StatusCancelled, lastAssistantText, "")
			}
			return o.finish(ctx, &res, conversation, StatusFailed, lastAssistantText, err.Error())
		}

		conversation = append(conversation, msg)
		res.TokenStats.Add(turnUsage)
		o.cost.Accumulate(&res.Cost, o.opts.ModelID, turnUsage)
		o.hooks.OnModelTurn(ctx, k, msg, stop, turnUsage)
		lastAssistantText = msg.Text()

		uses := msg.ToolUses()
		if len(uses) == 0 {
			capped = false
			break
		}
		conversation = append(conversation, o.dispatchTools(ctx, uses, malformed))
	}

	summary := lastAssistantText
	if capped {
		note := fmt.Sprintf("[stopped after reaching the cap of %d model turns]", o.opts.MaxIterations)
		if summary != "" {
			summary += "\n\n" + note
		} else {
			summary = note
		}
	}
	return o.finish(ctx, &res, conversation, StatusCompleted, summary, "")
}

func (o *Orchestrator) finish(ctx context.Context, res *TaskResult, conversation []model.Message, status TaskStatus, summary, errMsg string) TaskResult {
	res.Status = status
	res.Summary = summary
	res.Conversation = conversation
	res.Error = errMsg
	res.FinishedAt = time.Now()
	o.hooks.OnTaskDone(ctx, res)
	return *res
}

func seedMessage(task *Task) model.Message {
	text := task.Prompt
	if task.Context != "" {
		text = task.Context + contextSeparator + task.Prompt
	}
	return model.Message{Role: model.RoleUser, Content: []model.ContentBlock{model.TextBlock(text)}}
}

func (o *Orchestrator) buildRequest(conversation []model.Message) *model.Request {
	req := &model.Request{
		ModelID:       o.opts.ModelID,
		Messages:      conversation,
		MaxTokens:     o.opts.MaxTokens,
		Temperature:   o.opts.Temperature,
		TopP:          o.opts.TopP,
		StopSequences: o.opts.StopSequences,
	}
	if o.opts.SystemPrompt != "" {
		req.System = []string{o.opts.SystemPrompt}
	}
	for _, def := range o.registry.List() {
		req.Tools = append(req.Tools, model.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return req
}

// modelTurn issues one model call. In streaming mode the reconstructor folds
// events into the assistant message; the returned malformed set carries the
// tool-use IDs whose input fragments failed to parse.
func (o *Orchestrator) modelTurn(ctx context.Context, req *model.Request) (model.Message, model.StopReason, model.TokenUsage, map[string]bool, error) {
	if !o.opts.Streaming {
		resp, err := o.client.Converse(ctx, req)
		if err != nil {
			return model.Message{}, "", model.TokenUsage{}, nil, err
		}
		return resp.Message, resp.StopReason, resp.Usage, nil, nil
	}

	events, errs := o.client.ConverseStream(ctx, req)
	rec := stream.New()
	rec.OnTextDelta = func(delta string) { o.hooks.OnStreamDelta(ctx, delta) }

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := rec.Feed(ev); err != nil {
				return model.Message{}, "", model.TokenUsage{}, nil, model.WrapError(model.ErrProtocol, err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return model.Message{}, "", model.TokenUsage{}, nil, err
			}
		case <-ctx.Done():
			return model.Message{}, "", model.TokenUsage{}, nil, ctx.Err()
		}
	}

	msg, stop, usage, err := rec.Result()
	if err != nil {
		return model.Message{}, "", model.TokenUsage{}, nil, model.WrapError(model.ErrProtocol, err)
	}
	malformed := make(map[string]bool)
	for _, use := range msg.ToolUses() {
		if rec.Malformed(use.ID) {
			malformed[use.ID] = true
		}
	}
	return msg, stop, usage, malformed, nil
}

// dispatchTools executes the turn's tool uses in order of occurrence and
// assembles the results into a single user message, one result per use.
// Dispatch is sequential: the model routinely chains dependent calls in a
// single turn (write a file, then read it back), so a later use must observe
// the effects of an earlier one. Tool errors become error-status results so
// the model can observe and react; they never abort the loop.
func (o *Orchestrator) dispatchTools(ctx context.Context, uses []model.ContentBlock, malformed map[string]bool) model.Message {
	results := make([]model.ContentBlock, len(uses))
	for i, use := range uses {
		o.hooks.OnToolCall(ctx, use)

		var output string
		var err error
		if malformed[use.ID] {
			err = tools.Errf(tools.ErrInvalidInput, use.Name, "tool input was not a valid JSON object")
		} else {
			output, err = o.registry.Execute(ctx, use.Name, use.Input)
		}
		o.hooks.OnToolResult(ctx, use, output, err)

		if err != nil {
			results[i] = model.ToolResultBlock(use.ID, err.Error(), model.ResultError)
		} else {
			results[i] = model.ToolResultBlock(use.ID, output, model.ResultSuccess)
		}
	}
	return model.Message{Role: model.RoleUser, Content: results}
}
