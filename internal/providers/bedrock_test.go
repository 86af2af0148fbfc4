package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/dkershaw/converge/internal/model"
	"github.com/dkershaw/converge/internal/stream"
)

type mockRuntime struct {
	captured *bedrockruntime.ConverseInput
	output   *bedrockruntime.ConverseOutput
	err      error
}

func (m *mockRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput,
	optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.captured = params
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func (m *mockRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput,
	optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, errors.New("not used in this test")
}

func sampleRequest() *model.Request {
	return &model.Request{
		ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
		System:  []string{"be helpful"},
		Messages: []model.Message{
			{Role: model.RoleUser, Content: []model.ContentBlock{model.TextBlock("hello")}},
			{Role: model.RoleAssistant, Content: []model.ContentBlock{
				model.ToolUseBlock("tu_1", "grep", map[string]any{"pattern": "x"}),
			}},
			{Role: model.RoleUser, Content: []model.ContentBlock{
				model.ToolResultBlock("tu_1", "no matches", model.ResultSuccess),
			}},
		},
		Tools: []model.ToolSpec{{
			Name:        "grep",
			Description: "search",
			InputSchema: map[string]any{"type": "object"},
		}},
		MaxTokens:   1024,
		Temperature: 0.5,
	}
}

func TestBedrockConverseEncodesRequest(t *testing.T) {
	mock := &mockRuntime{output: &bedrockruntime.ConverseOutput{
		Output:     &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{Role: brtypes.ConversationRoleAssistant}},
		StopReason: brtypes.StopReasonEndTurn,
	}}
	client, err := NewBedrockClient(mock)
	require.NoError(t, err)

	_, err = client.Converse(context.Background(), sampleRequest())
	require.NoError(t, err)

	in := mock.captured
	require.NotNil(t, in)
	require.Equal(t, "anthropic.claude-3-5-sonnet-20241022-v2:0", aws.ToString(in.ModelId))
	require.Len(t, in.System, 1)
	require.Len(t, in.Messages, 3)
	require.NotNil(t, in.ToolConfig)
	require.Len(t, in.ToolConfig.Tools, 1)
	require.NotNil(t, in.InferenceConfig)
	require.Equal(t, int32(1024), aws.ToInt32(in.InferenceConfig.MaxTokens))

	// Tool result rides in a user message with the matching tool use id.
	last := in.Messages[2]
	require.Equal(t, brtypes.ConversationRoleUser, last.Role)
	tr, ok := last.Content[0].(*brtypes.ContentBlockMemberToolResult)
	require.True(t, ok)
	require.Equal(t, "tu_1", aws.ToString(tr.Value.ToolUseId))
	require.Equal(t, brtypes.ToolResultStatusSuccess, tr.Value.Status)
}

func TestBedrockTranslateResponse(t *testing.T) {
	var input any = map[string]any{"pattern": "TODO"}
	mock := &mockRuntime{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: "Searching"},
				&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String("tu_9"),
					Name:      aws.String("grep"),
					Input:     document.NewLazyDocument(&input),
				}},
			},
		}},
		StopReason: brtypes.StopReasonToolUse,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(42),
			OutputTokens: aws.Int32(17),
			TotalTokens:  aws.Int32(59),
		},
	}}
	client, err := NewBedrockClient(mock)
	require.NoError(t, err)

	resp, err := client.Converse(context.Background(), sampleRequest())
	require.NoError(t, err)

	require.Equal(t, model.StopToolUse, resp.StopReason)
	require.Equal(t, model.TokenUsage{Input: 42, Output: 17, Total: 59}, resp.Usage)
	require.Len(t, resp.Message.Content, 2)
	require.Equal(t, "Searching", resp.Message.Content[0].Text)

	tu := resp.Message.Content[1]
	require.Equal(t, model.BlockToolUse, tu.Kind)
	require.Equal(t, "tu_9", tu.ID)
	require.Equal(t, "grep", tu.Name)
	require.Equal(t, "TODO", tu.Input["pattern"])
}

func TestClassifyBedrockError(t *testing.T) {
	tests := []struct {
		code string
		want model.ErrorKind
	}{
		{"ThrottlingException", model.ErrRateLimited},
		{"AccessDeniedException", model.ErrAuth},
		{"ResourceNotFoundException", model.ErrNotFound},
		{"ValidationException", model.ErrProtocol},
		{"ServiceUnavailableException", model.ErrTransport},
		{"SomethingNovel", model.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classifyBedrockError(&smithy.GenericAPIError{Code: tt.code, Message: "boom"})
			var merr *model.Error
			require.ErrorAs(t, err, &merr)
			require.Equal(t, tt.want, merr.Kind)
		})
	}

	var merr *model.Error
	require.ErrorAs(t, classifyBedrockError(errors.New("dial tcp: refused")), &merr)
	require.Equal(t, model.ErrTransport, merr.Kind)
}

type fakeStreamReader struct {
	events chan brtypes.ConverseStreamOutput
	err    error
}

func (r *fakeStreamReader) Events() <-chan brtypes.ConverseStreamOutput { return r.events }
func (r *fakeStreamReader) Close() error                                { return nil }
func (r *fakeStreamReader) Err() error                                  { return r.err }

func newFakeEventStream(events []brtypes.ConverseStreamOutput, err error) *bedrockruntime.ConverseStreamEventStream {
	ch := make(chan brtypes.ConverseStreamOutput, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return bedrockruntime.NewConverseStreamEventStream(func(es *bedrockruntime.ConverseStreamEventStream) {
		es.Reader = &fakeStreamReader{events: ch, err: err}
	})
}

func TestPumpBedrockStream(t *testing.T) {
	wire := []brtypes.ConverseStreamOutput{
		&brtypes.ConverseStreamOutputMemberMessageStart{},
		// Text block without an explicit start: the pump synthesizes one.
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &brtypes.ContentBlockDeltaMemberText{Value: "Sear"},
		}},
		&brtypes.ConverseStreamOutputMemberContentBlockStart{Value: brtypes.ContentBlockStartEvent{
			ContentBlockIndex: aws.Int32(1),
			Start: &brtypes.ContentBlockStartMemberToolUse{Value: brtypes.ToolUseBlockStart{
				ToolUseId: aws.String("tu_1"),
				Name:      aws.String("grep"),
			}},
		}},
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &brtypes.ContentBlockDeltaMemberText{Value: "ching"},
		}},
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{Value: brtypes.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(1),
			Delta:             &brtypes.ContentBlockDeltaMemberToolUse{Value: brtypes.ToolUseBlockDelta{Input: aws.String(`{"pattern":"TODO"}`)}},
		}},
		&brtypes.ConverseStreamOutputMemberContentBlockStop{Value: brtypes.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(1)}},
		&brtypes.ConverseStreamOutputMemberContentBlockStop{Value: brtypes.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(0)}},
		&brtypes.ConverseStreamOutputMemberMessageStop{Value: brtypes.MessageStopEvent{StopReason: brtypes.StopReasonToolUse}},
		&brtypes.ConverseStreamOutputMemberMetadata{Value: brtypes.ConverseStreamMetadataEvent{
			Usage: &brtypes.TokenUsage{InputTokens: aws.Int32(42), OutputTokens: aws.Int32(17), TotalTokens: aws.Int32(59)},
		}},
	}

	events := make(chan model.StreamEvent, 64)
	errs := make(chan error, 1)
	pumpBedrockStream(context.Background(), newFakeEventStream(wire, nil), events, errs)

	rec := stream.New()
	for ev := range events {
		require.NoError(t, rec.Feed(ev))
	}
	require.NoError(t, <-errs)

	msg, stop, usage, err := rec.Result()
	require.NoError(t, err)
	require.Equal(t, model.StopToolUse, stop)
	require.Equal(t, model.TokenUsage{Input: 42, Output: 17, Total: 59}, usage)
	require.Len(t, msg.Content, 2)
	require.Equal(t, "Searching", msg.Content[0].Text)
	require.Equal(t, "grep", msg.Content[1].Name)
	require.Equal(t, "TODO", msg.Content[1].Input["pattern"])
}

func TestPumpBedrockStreamError(t *testing.T) {
	wire := []brtypes.ConverseStreamOutput{
		&brtypes.ConverseStreamOutputMemberMessageStart{},
	}
	events := make(chan model.StreamEvent, 8)
	errs := make(chan error, 1)
	pumpBedrockStream(context.Background(), newFakeEventStream(wire, &smithy.GenericAPIError{Code: "ThrottlingException"}), events, errs)

	for range events {
	}
	err := <-errs
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, model.ErrRateLimited, merr.Kind)
}
