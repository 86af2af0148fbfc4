package agent

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Queue is a priority queue of tasks. Higher priority pops first; within one
// priority, older submissions pop first. A single consumer processes tasks;
// additional consumers are safe — the mutex guarantees each task is handed
// out exactly once.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  queueHeap
	seq    uint64
	closed bool
}

// NewQueue returns an empty open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue submits a task. Enqueueing on a closed queue is a no-op.
func (q *Queue) Enqueue(task *Task, priority Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	heap.Push(&q.items, &queueItem{
		qt:  QueuedTask{Task: task, Priority: priority, EnqueuedAt: time.Now()},
		seq: q.seq,
	})
	q.cond.Signal()
}

// PopNext removes and returns the highest-priority task, or nil when the
// queue is empty.
func (q *Queue) PopNext() *QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*queueItem)
	return &item.qt
}

// Pop blocks until a task is available or the queue is closed (nil) or ctx
// is cancelled (nil).
func (q *Queue) Pop(ctx context.Context) *QueuedTask {
	// Wake the cond wait when the context ends so Pop doesn't block forever.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*queueItem)
	return &item.qt
}

// Peek returns the next task without removing it.
func (q *Queue) Peek() *QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil
	}
	qt := q.items[0].qt
	return &qt
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close wakes blocked consumers. Already-queued tasks remain poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

type queueItem struct {
	qt  QueuedTask
	seq uint64
}

type queueHeap []*queueItem

func (h queueHeap) Len() int { return len(h) }

func (h queueHeap) Less(i, j int) bool {
	if h[i].qt.Priority != h[j].qt.Priority {
		return h[i].qt.Priority > h[j].qt.Priority
	}
	// FIFO within a priority: submission order, not wall clock, so equal
	// timestamps cannot reorder.
	return h[i].seq < h[j].seq
}

func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *queueHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Consume pops tasks until the queue closes and runs each through the
// orchestrator, invoking done (if set) with every result. It owns the tasks
// it pops; running Consume in several goroutines never double-executes.
func Consume(ctx context.Context, q *Queue, orch *Orchestrator, done func(TaskResult)) {
	for {
		qt := q.Pop(ctx)
		if qt == nil {
			return
		}
		result := orch.Execute(ctx, qt.Task)
		if done != nil {
			done(result)
		}
	}
}
