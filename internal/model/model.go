// Package model defines the provider-agnostic conversation data model and the
// client interface the orchestrator drives. Providers translate these types to
// and from their wire formats.
package model

import (
	"context"
	"strings"
)

// Role is the role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ResultStatus marks a tool result as success or error.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// StopReason is the model's declared reason for ending a turn.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// BlockKind discriminates the ContentBlock union.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is one element of a message's content. Exactly one variant is
// populated, selected by Kind.
type ContentBlock struct {
	Kind BlockKind

	// Text, set when Kind == BlockText.
	Text string

	// ToolUse fields, set when Kind == BlockToolUse. ID is the per-invocation
	// token chosen by the model; Input conforms to the named tool's schema.
	ID    string
	Name  string
	Input map[string]any

	// ToolResult fields, set when Kind == BlockToolResult. ToolUseID must
	// match the ID of a prior ToolUse block in the conversation.
	ToolUseID string
	Content   string
	Status    ResultStatus
}

// TextBlock builds a text content block.
func TextBlock(s string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: s}
}

// ToolUseBlock builds a tool invocation block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool result block.
func ToolResultBlock(toolUseID, content string, status ResultStatus) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolUseID: toolUseID, Content: content, Status: status}
}

// Message is one conversation element. Tool-use blocks appear only in
// assistant messages; tool-result blocks only in user messages.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// Text concatenates the message's text blocks in order.
func (m Message) Text() string {
	var b strings.Builder
	for _, block := range m.Content {
		if block.Kind == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolUses returns the message's tool-use blocks in order of occurrence.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range m.Content {
		if block.Kind == BlockToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// TokenUsage holds token accounting for one or more model turns.
// Invariant: Total == Input + Output.
type TokenUsage struct {
	Input  int
	Output int
	Total  int
}

// Add accumulates u2 into u.
func (u *TokenUsage) Add(u2 TokenUsage) {
	u.Input += u2.Input
	u.Output += u2.Output
	u.Total = u.Input + u.Output
}

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is a single conversation call.
type Request struct {
	ModelID       string
	Messages      []Message
	System        []string
	Tools         []ToolSpec
	MaxTokens     int
	Temperature   float32
	TopP          float32
	StopSequences []string
}

// Response is the result of a non-streaming call.
type Response struct {
	Message    Message // role assistant
	StopReason StopReason
	Usage      TokenUsage
}

// Client abstracts the remote conversation endpoint.
type Client interface {
	// Converse issues a blocking call and returns the full assistant turn.
	Converse(ctx context.Context, req *Request) (*Response, error)

	// ConverseStream issues a streaming call. Events arrive on the first
	// channel; a terminal error, if any, on the second. Both channels are
	// closed when the stream ends.
	ConverseStream(ctx context.Context, req *Request) (<-chan StreamEvent, <-chan error)
}
