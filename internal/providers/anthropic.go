package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/dkershaw/converge/internal/model"
)

// AnthropicClient implements model.Client against the Anthropic Messages API.
// The Converse-shaped request maps one to one: tool results travel in user
// messages, tool uses in assistant messages.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient builds a client from an API key.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	return &AnthropicClient{client: anthropic.NewClient(apiKey)}, nil
}

// Converse issues a blocking Messages call.
func (c *AnthropicClient) Converse(ctx context.Context, req *model.Request) (*model.Response, error) {
	mreq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.CreateMessages(ctx, mreq)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	return translateAnthropicResponse(&resp)
}

// ConverseStream adapts the SDK's callback stream onto the event channel.
// Text deltas are forwarded as they arrive; a tool-use block's complete
// input is taken from the finalized block content at block stop, the way the
// SDK hands it back.
func (c *AnthropicClient) ConverseStream(ctx context.Context, req *model.Request) (<-chan model.StreamEvent, <-chan error) {
	events := make(chan model.StreamEvent, 32)
	errs := make(chan error, 1)

	mreq, err := c.buildRequest(req)
	if err != nil {
		errs <- err
		close(events)
		close(errs)
		return events, errs
	}

	go func() {
		defer close(errs)
		defer close(events)

		emit := func(ev model.StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		started := make(map[int]bool)
		sreq := anthropic.MessagesStreamRequest{MessagesRequest: mreq}

		sreq.OnContentBlockDelta = func(data anthropic.MessagesEventContentBlockDeltaData) {
			if data.Delta.Type != "text_delta" || data.Delta.Text == nil {
				return
			}
			idx := data.Index
			if !started[idx] {
				started[idx] = true
				emit(model.StreamEvent{Kind: model.EventBlockStart, Index: idx, BlockKind: model.BlockText})
			}
			emit(model.StreamEvent{Kind: model.EventBlockDelta, Index: idx, Text: *data.Delta.Text})
		}

		sreq.OnContentBlockStop = func(data anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			idx := data.Index
			if content.Type == "tool_use" && content.MessageContentToolUse != nil {
				tu := content.MessageContentToolUse
				emit(model.StreamEvent{
					Kind:      model.EventBlockStart,
					Index:     idx,
					BlockKind: model.BlockToolUse,
					ToolUseID: tu.ID,
					ToolName:  tu.Name,
				})
				if len(tu.Input) > 0 {
					emit(model.StreamEvent{Kind: model.EventBlockDelta, Index: idx, PartialJSON: string(tu.Input)})
				}
				emit(model.StreamEvent{Kind: model.EventBlockStop, Index: idx})
				return
			}
			if !started[idx] {
				started[idx] = true
				emit(model.StreamEvent{Kind: model.EventBlockStart, Index: idx, BlockKind: model.BlockText})
			}
			emit(model.StreamEvent{Kind: model.EventBlockStop, Index: idx})
		}

		resp, err := c.client.CreateMessagesStream(ctx, sreq)
		if err != nil {
			errs <- classifyAnthropicError(err)
			return
		}

		usage := model.TokenUsage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
			Total:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
		emit(model.StreamEvent{Kind: model.EventUsage, Usage: usage})
		emit(model.StreamEvent{Kind: model.EventMessageStop, StopReason: translateAnthropicStop(string(resp.StopReason))})
	}()

	return events, errs
}

func (c *AnthropicClient) buildRequest(req *model.Request) (anthropic.MessagesRequest, error) {
	msgs, err := encodeAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessagesRequest{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	mreq := anthropic.MessagesRequest{
		Model:     anthropic.Model(req.ModelID),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		mreq.Temperature = &temp
	}
	if req.TopP > 0 {
		topP := req.TopP
		mreq.TopP = &topP
	}
	if len(req.StopSequences) > 0 {
		mreq.StopSequences = req.StopSequences
	}
	for _, s := range req.System {
		mreq.MultiSystem = append(mreq.MultiSystem, anthropic.MessageSystemPart{Type: "text", Text: s})
	}
	for _, spec := range req.Tools {
		mreq.Tools = append(mreq.Tools, anthropic.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	return mreq, nil
}

func encodeAnthropicMessages(msgs []model.Message) ([]anthropic.Message, error) {
	out := make([]anthropic.Message, 0, len(msgs))
	for _, m := range msgs {
		var content []anthropic.MessageContent
		for _, block := range m.Content {
			switch block.Kind {
			case model.BlockText:
				if block.Text != "" {
					content = append(content, anthropic.NewTextMessageContent(block.Text))
				}
			case model.BlockToolUse:
				input, err := json.Marshal(block.Input)
				if err != nil {
					return nil, model.WrapError(model.ErrProtocol, err)
				}
				content = append(content, anthropic.NewToolUseMessageContent(block.ID, block.Name, json.RawMessage(input)))
			case model.BlockToolResult:
				body := block.Content
				if body == "" {
					body = "{}"
				}
				content = append(content, anthropic.NewToolResultMessageContent(block.ToolUseID, body, block.Status == model.ResultError))
			}
		}
		if len(content) == 0 {
			continue
		}
		role := anthropic.RoleUser
		if m.Role == model.RoleAssistant {
			role = anthropic.RoleAssistant
		}
		out = append(out, anthropic.Message{Role: role, Content: content})
	}
	return out, nil
}

func translateAnthropicResponse(resp *anthropic.MessagesResponse) (*model.Response, error) {
	out := &model.Response{
		Message:    model.Message{Role: model.RoleAssistant},
		StopReason: translateAnthropicStop(string(resp.StopReason)),
		Usage: model.TokenUsage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
			Total:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				out.Message.Content = append(out.Message.Content, model.TextBlock(*block.Text))
			}
		case "tool_use":
			if block.MessageContentToolUse == nil {
				continue
			}
			tu := block.MessageContentToolUse
			input := make(map[string]any)
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &input); err != nil {
					input = make(map[string]any)
				}
			}
			out.Message.Content = append(out.Message.Content, model.ToolUseBlock(tu.ID, tu.Name, input))
		}
	}
	return out, nil
}

func translateAnthropicStop(reason string) model.StopReason {
	switch reason {
	case "tool_use":
		return model.StopToolUse
	case "max_tokens":
		return model.StopMaxTokens
	case "stop_sequence":
		return model.StopStopSequence
	default:
		return model.StopEndTurn
	}
}

// classifyAnthropicError maps SDK errors onto the model taxonomy by the
// status markers present in the error text, the same heuristics the HTTP
// layer exposes.
func classifyAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication"):
		return model.WrapError(model.ErrAuth, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return model.WrapError(model.ErrRateLimited, err)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not_found_error") ||
		strings.Contains(msg, "model not found"):
		return model.WrapError(model.ErrNotFound, err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid_request"):
		return model.WrapError(model.ErrProtocol, err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "529") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "connection"):
		return model.WrapError(model.ErrTransport, err)
	default:
		return model.WrapError(model.ErrUnknown, err)
	}
}
