package providers

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/dkershaw/converge/internal/model"
)

// pumpBedrockStream translates Bedrock stream members into model.StreamEvents
// until the wire closes, then reports the stream's terminal error, if any.
// Bedrock omits content_block_start for plain text blocks, so a start is
// synthesized the first time an index carries a text delta.
func pumpBedrockStream(ctx context.Context, es *bedrockruntime.ConverseStreamEventStream, events chan<- model.StreamEvent, errs chan<- error) {
	defer close(errs)
	defer close(events)
	defer es.Close()

	started := make(map[int]bool)

	emit := func(ev model.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for event := range es.Events() {
		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberMessageStart:
			// Role is always assistant; nothing to forward.

		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			idx := indexOf(ev.Value.ContentBlockIndex)
			out := model.StreamEvent{Kind: model.EventBlockStart, Index: idx, BlockKind: model.BlockText}
			if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				out.BlockKind = model.BlockToolUse
				if start.Value.ToolUseId != nil {
					out.ToolUseID = *start.Value.ToolUseId
				}
				if start.Value.Name != nil {
					out.ToolName = *start.Value.Name
				}
			}
			started[idx] = true
			if !emit(out) {
				return
			}

		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			idx := indexOf(ev.Value.ContentBlockIndex)
			switch delta := ev.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				if !started[idx] {
					started[idx] = true
					if !emit(model.StreamEvent{Kind: model.EventBlockStart, Index: idx, BlockKind: model.BlockText}) {
						return
					}
				}
				if !emit(model.StreamEvent{Kind: model.EventBlockDelta, Index: idx, Text: delta.Value}) {
					return
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil {
					if !emit(model.StreamEvent{Kind: model.EventBlockDelta, Index: idx, PartialJSON: *delta.Value.Input}) {
						return
					}
				}
			}

		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			idx := indexOf(ev.Value.ContentBlockIndex)
			if !started[idx] {
				// A block that produced no start and no deltas; surface it as
				// an empty text block rather than a protocol violation.
				started[idx] = true
				if !emit(model.StreamEvent{Kind: model.EventBlockStart, Index: idx, BlockKind: model.BlockText}) {
					return
				}
			}
			if !emit(model.StreamEvent{Kind: model.EventBlockStop, Index: idx}) {
				return
			}

		case *brtypes.ConverseStreamOutputMemberMessageStop:
			if !emit(model.StreamEvent{Kind: model.EventMessageStop, StopReason: translateStopReason(ev.Value.StopReason)}) {
				return
			}

		case *brtypes.ConverseStreamOutputMemberMetadata:
			if usage := ev.Value.Usage; usage != nil {
				var in, out int
				if usage.InputTokens != nil {
					in = int(*usage.InputTokens)
				}
				if usage.OutputTokens != nil {
					out = int(*usage.OutputTokens)
				}
				if !emit(model.StreamEvent{Kind: model.EventUsage, Usage: model.TokenUsage{Input: in, Output: out, Total: in + out}}) {
					return
				}
			}
		}
	}

	if err := es.Err(); err != nil {
		errs <- classifyBedrockError(err)
	} else if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		errs <- err
	}
}

func indexOf(idx *int32) int {
	if idx == nil {
		return 0
	}
	return int(*idx)
}
