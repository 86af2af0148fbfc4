// Package providers contains the model.Client implementations. The Bedrock
// adapter speaks the Converse API; the Anthropic adapter translates the same
// request shape to the Messages API. A small factory selects between them.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/dkershaw/converge/internal/model"
)

// BedrockRuntime mirrors the subset of *bedrockruntime.Client the adapter
// needs, so tests can inject fakes.
type BedrockRuntime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockClient implements model.Client on top of the Bedrock Converse API.
type BedrockClient struct {
	runtime BedrockRuntime
}

// NewBedrockClient wraps a Bedrock runtime client.
func NewBedrockClient(runtime BedrockRuntime) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	return &BedrockClient{runtime: runtime}, nil
}

// Converse issues a blocking Converse call and translates the response.
func (c *BedrockClient) Converse(ctx context.Context, req *model.Request) (*model.Response, error) {
	input, err := buildConverseInput(req)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockError(err)
	}
	return translateConverseOutput(output)
}

// ConverseStream opens a streaming call and adapts Bedrock events into
// model.StreamEvents.
func (c *BedrockClient) ConverseStream(ctx context.Context, req *model.Request) (<-chan model.StreamEvent, <-chan error) {
	events := make(chan model.StreamEvent, 32)
	errs := make(chan error, 1)

	input, err := buildConverseInput(req)
	if err != nil {
		errs <- err
		close(events)
		close(errs)
		return events, errs
	}

	out, err := c.runtime.ConverseStream(ctx, toStreamInput(input))
	if err != nil {
		errs <- classifyBedrockError(err)
		close(events)
		close(errs)
		return events, errs
	}
	es := out.GetStream()
	if es == nil {
		errs <- model.WrapError(model.ErrProtocol, errors.New("bedrock stream output missing event stream"))
		close(events)
		close(errs)
		return events, errs
	}

	go pumpBedrockStream(ctx, es, events, errs)
	return events, errs
}

func buildConverseInput(req *model.Request) (*bedrockruntime.ConverseInput, error) {
	if req.ModelID == "" {
		return nil, model.WrapError(model.ErrNotFound, errors.New("model identifier is required"))
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.ModelID),
		Messages: messages,
	}
	for _, s := range req.System {
		if s != "" {
			input.System = append(input.System, &brtypes.SystemContentBlockMemberText{Value: s})
		}
	}
	if cfg := encodeTools(req.Tools); cfg != nil {
		input.ToolConfig = cfg
	}
	if cfg := inferenceConfig(req); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input, nil
}

func toStreamInput(in *bedrockruntime.ConverseInput) *bedrockruntime.ConverseStreamInput {
	return &bedrockruntime.ConverseStreamInput{
		ModelId:         in.ModelId,
		Messages:        in.Messages,
		System:          in.System,
		ToolConfig:      in.ToolConfig,
		InferenceConfig: in.InferenceConfig,
	}
}

func encodeMessages(msgs []model.Message) ([]brtypes.Message, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]brtypes.ContentBlock, 0, len(m.Content))
		for _, block := range m.Content {
			switch block.Kind {
			case model.BlockText:
				if block.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: block.Text})
				}
			case model.BlockToolUse:
				tb := brtypes.ToolUseBlock{
					ToolUseId: aws.String(block.ID),
					Name:      aws.String(block.Name),
					Input:     toDocument(block.Input),
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
			case model.BlockToolResult:
				tr := brtypes.ToolResultBlock{
					ToolUseId: aws.String(block.ToolUseID),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: block.Content},
					},
				}
				if block.Status == model.ResultError {
					tr.Status = brtypes.ToolResultStatusError
				} else {
					tr.Status = brtypes.ToolResultStatusSuccess
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: tr})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, model.WrapError(model.ErrProtocol, errors.New("at least one message is required"))
	}
	return conversation, nil
}

func encodeTools(specs []model.ToolSpec) *brtypes.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	toolList := make([]brtypes.Tool, 0, len(specs))
	for _, spec := range specs {
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(spec.InputSchema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: toolList}
}

func inferenceConfig(req *model.Request) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	set := false
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
		set = true
	}
	if req.Temperature > 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
		set = true
	}
	if req.TopP > 0 {
		cfg.TopP = aws.Float32(req.TopP)
		set = true
	}
	if len(req.StopSequences) > 0 {
		cfg.StopSequences = req.StopSequences
		set = true
	}
	if !set {
		return nil
	}
	return &cfg
}

func toDocument(v map[string]any) document.Interface {
	if v == nil {
		v = map[string]any{"type": "object"}
	}
	var boxed any = v
	return document.NewLazyDocument(&boxed)
}

func decodeDocument(doc document.Interface) map[string]any {
	out := make(map[string]any)
	if doc == nil {
		return out
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func translateConverseOutput(output *bedrockruntime.ConverseOutput) (*model.Response, error) {
	if output == nil {
		return nil, model.WrapError(model.ErrProtocol, errors.New("bedrock response is nil"))
	}
	resp := &model.Response{
		Message:    model.Message{Role: model.RoleAssistant},
		StopReason: translateStopReason(output.StopReason),
	}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Message.Content = append(resp.Message.Content, model.TextBlock(v.Value))
			case *brtypes.ContentBlockMemberToolUse:
				resp.Message.Content = append(resp.Message.Content, model.ToolUseBlock(
					aws.ToString(v.Value.ToolUseId),
					aws.ToString(v.Value.Name),
					decodeDocument(v.Value.Input),
				))
			}
		}
	}
	if usage := output.Usage; usage != nil {
		in := int(aws.ToInt32(usage.InputTokens))
		out := int(aws.ToInt32(usage.OutputTokens))
		resp.Usage = model.TokenUsage{Input: in, Output: out, Total: in + out}
	}
	return resp, nil
}

func translateStopReason(reason brtypes.StopReason) model.StopReason {
	switch reason {
	case brtypes.StopReasonToolUse:
		return model.StopToolUse
	case brtypes.StopReasonMaxTokens:
		return model.StopMaxTokens
	case brtypes.StopReasonStopSequence:
		return model.StopStopSequence
	default:
		return model.StopEndTurn
	}
}

// classifyBedrockError maps AWS SDK failures onto the model error taxonomy.
// Throttling and HTTP 429 are rate limiting; access and signature problems
// are auth; a missing model is model_not_found; everything else without an API
// error code is transport.
func classifyBedrockError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return model.WrapError(model.ErrRateLimited, err)
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return model.WrapError(model.ErrAuth, err)
		case "ResourceNotFoundException", "ModelNotReadyException":
			return model.WrapError(model.ErrNotFound, err)
		case "ValidationException":
			return model.WrapError(model.ErrProtocol, err)
		case "ModelTimeoutException", "ServiceUnavailableException", "InternalServerException":
			return model.WrapError(model.ErrTransport, err)
		}
		return model.WrapError(model.ErrUnknown, err)
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 401, 403:
			return model.WrapError(model.ErrAuth, err)
		case 429:
			return model.WrapError(model.ErrRateLimited, err)
		}
	}
	return model.WrapError(model.ErrTransport, fmt.Errorf("bedrock call failed: %w", err))
}
