// Package agent contains the conversation orchestrator, the task model, the
// task queue, and cost accounting. One orchestrator drives one task at a
// time; multiple tasks may run concurrently, each owning its own state.
package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/dkershaw/converge/internal/model"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Priority orders tasks in the queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Task is one unit of work submitted to the agent.
type Task struct {
	ID        string
	Prompt    string
	Context   string // optional auxiliary text, prepended to the prompt block
	CreatedAt time.Time
}

// NewTask builds a task with a fresh identifier.
func NewTask(prompt, auxContext string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Context:   auxContext,
		CreatedAt: time.Now(),
	}
}

// QueuedTask is a task with its queue ordering keys.
type QueuedTask struct {
	Task       *Task
	Priority   Priority
	EnqueuedAt time.Time
}

// TaskResult is the frozen outcome of one task.
type TaskResult struct {
	TaskID     string
	Status     TaskStatus
	StartedAt  time.Time
	FinishedAt time.Time

	// Summary is the final assistant text, annotated when the iteration cap
	// was reached.
	Summary string

	// Conversation is the full message list: the seed user message and every
	// assistant/user turn produced.
	Conversation []model.Message

	TokenStats model.TokenUsage
	Cost       CostDetails

	// Error is set iff Status == StatusFailed.
	Error string
}
