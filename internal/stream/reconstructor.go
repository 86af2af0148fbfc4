// Package stream folds incremental conversation events into complete
// assistant messages. The reconstructor is a pure state machine: it routes
// deltas by block index, so interleaved blocks are handled correctly
// regardless of arrival order across indexes.
package stream

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dkershaw/converge/internal/model"
)

// ProtocolError reports an event that violates the wire contract: a delta or
// stop for a block that was never started, a duplicate start, or content
// events after message stop.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("stream protocol violation: %s", e.Reason)
}

func protocolErrf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// openBlock holds the buffer for a block that has started but not stopped.
type openBlock struct {
	kind      model.BlockKind
	toolUseID string
	toolName  string
	buf       []byte
}

// doneBlock is a finalized block awaiting assembly.
type doneBlock struct {
	index int
	block model.ContentBlock
}

// Reconstructor consumes StreamEvents and produces one assistant message.
// It holds buffers only for currently open blocks. Not safe for concurrent
// use; a stream has a single consumer.
type Reconstructor struct {
	open      map[int]*openBlock
	done      []doneBlock
	stopped   bool
	stop      model.StopReason
	usage     model.TokenUsage
	malformed map[string]bool

	// OnTextDelta, when set, receives text chunks as they arrive. The side
	// channel carries no data needed for correctness.
	OnTextDelta func(string)
}

// New returns an empty reconstructor.
func New() *Reconstructor {
	return &Reconstructor{
		open:      make(map[int]*openBlock),
		malformed: make(map[string]bool),
	}
}

// Feed processes one event. It returns a *ProtocolError when the event
// violates ordering; all other events are accepted in any arrival order.
func (r *Reconstructor) Feed(ev model.StreamEvent) error {
	switch ev.Kind {
	case model.EventBlockStart:
		if r.stopped {
			return protocolErrf("block_start index=%d after message_stop", ev.Index)
		}
		if _, exists := r.open[ev.Index]; exists {
			return protocolErrf("duplicate block_start for index %d", ev.Index)
		}
		switch ev.BlockKind {
		case model.BlockText:
			r.open[ev.Index] = &openBlock{kind: model.BlockText}
		case model.BlockToolUse:
			r.open[ev.Index] = &openBlock{
				kind:      model.BlockToolUse,
				toolUseID: ev.ToolUseID,
				toolName:  ev.ToolName,
			}
		default:
			return protocolErrf("block_start index=%d has unsupported kind %q", ev.Index, ev.BlockKind)
		}
		return nil

	case model.EventBlockDelta:
		if r.stopped {
			return protocolErrf("block_delta index=%d after message_stop", ev.Index)
		}
		b, ok := r.open[ev.Index]
		if !ok {
			return protocolErrf("block_delta for unknown index %d", ev.Index)
		}
		switch b.kind {
		case model.BlockText:
			b.buf = append(b.buf, ev.Text...)
			if r.OnTextDelta != nil && ev.Text != "" {
				r.OnTextDelta(ev.Text)
			}
		case model.BlockToolUse:
			b.buf = append(b.buf, ev.PartialJSON...)
		}
		return nil

	case model.EventBlockStop:
		if r.stopped {
			return protocolErrf("block_stop index=%d after message_stop", ev.Index)
		}
		b, ok := r.open[ev.Index]
		if !ok {
			return protocolErrf("block_stop for unknown index %d", ev.Index)
		}
		delete(r.open, ev.Index)
		r.done = append(r.done, doneBlock{index: ev.Index, block: r.finalizeBlock(b)})
		return nil

	case model.EventMessageStop:
		if r.stopped {
			return protocolErrf("duplicate message_stop")
		}
		r.stopped = true
		r.stop = ev.StopReason
		return nil

	case model.EventUsage:
		// Usage metadata may arrive before or after message_stop. Duplicates
		// are last-write-wins.
		r.usage = model.TokenUsage{
			Input:  ev.Usage.Input,
			Output: ev.Usage.Output,
			Total:  ev.Usage.Input + ev.Usage.Output,
		}
		return nil

	default:
		return protocolErrf("unknown event kind %q", ev.Kind)
	}
}

// finalizeBlock converts an open block buffer into a content block. A
// tool-use block whose accumulated fragment is not a JSON object becomes a
// tool use with empty input, and the tool call is recorded as malformed so
// the dispatcher surfaces a tool-side error.
func (r *Reconstructor) finalizeBlock(b *openBlock) model.ContentBlock {
	if b.kind == model.BlockText {
		return model.TextBlock(string(b.buf))
	}
	input := make(map[string]any)
	raw := b.buf
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, &input); err != nil || input == nil {
		input = make(map[string]any)
		r.malformed[b.toolUseID] = true
	}
	return model.ToolUseBlock(b.toolUseID, b.toolName, input)
}

// Done reports whether message_stop has been observed.
func (r *Reconstructor) Done() bool { return r.stopped }

// Malformed reports whether the tool use with the given ID had input that
// failed to parse as a JSON object.
func (r *Reconstructor) Malformed(toolUseID string) bool { return r.malformed[toolUseID] }

// Result assembles the finalized assistant message. Blocks are ordered by
// wire index, not by stop order. It fails when the stream ended without a
// message_stop or with blocks still open.
func (r *Reconstructor) Result() (model.Message, model.StopReason, model.TokenUsage, error) {
	if !r.stopped {
		return model.Message{}, "", model.TokenUsage{}, protocolErrf("stream ended without message_stop")
	}
	if len(r.open) > 0 {
		return model.Message{}, "", model.TokenUsage{}, protocolErrf("message_stop with %d block(s) still open", len(r.open))
	}
	sort.Slice(r.done, func(i, j int) bool { return r.done[i].index < r.done[j].index })
	blocks := make([]model.ContentBlock, 0, len(r.done))
	for _, d := range r.done {
		blocks = append(blocks, d.block)
	}
	return model.Message{Role: model.RoleAssistant, Content: blocks}, r.stop, r.usage, nil
}
