// Package queue implements the thread-safe priority queue feeding the
// dispatcher. Tasks are ordered by priority ordinal (lowest first) with FIFO
// ordering inside one priority tier. Removal of still-queued tasks is
// tombstone based: entries are unlinked lazily on Pop, so Remove stays O(1).
package queue

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

type entry struct {
	task *core.Task
	seq  uint64
}

type taskHeap []entry

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// Queue is a min-priority queue with stable FIFO ordering within a tier. All
// methods are safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	heap  taskHeap
	tasks map[string]*core.Task
	seq   uint64
}

// New constructs an empty queue.
func New() *Queue {
	return &Queue{tasks: make(map[string]*core.Task)}
}

// Push enqueues a task. A task pushed and not removed is never silently
// dropped: it stays queued until popped or explicitly removed.
func (q *Queue) Push(task *core.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.heap, entry{task: task, seq: q.seq})
	q.tasks[task.ID] = task
}

// Pop returns the highest-priority task, or nil when the queue is empty.
// Tombstoned entries left behind by Remove are discarded on the way.
func (q *Queue) Pop() *core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.heap.Len() > 0 {
		e := heap.Pop(&q.heap).(entry)
		if _, live := q.tasks[e.task.ID]; !live {
			continue
		}
		delete(q.tasks, e.task.ID)
		return e.task
	}
	return nil
}

// Remove cancels a still-queued task. It is idempotent and reports whether the
// task was found; after a successful Remove no subsequent Pop ever yields the
// id.
func (q *Queue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[taskID]; !ok {
		return false
	}
	delete(q.tasks, taskID)
	return true
}

// Size returns the number of live (non-tombstoned) queued tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Tasks returns a snapshot of the live queued tasks in dispatch order.
func (q *Queue) Tasks() []*core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := make([]entry, 0, len(q.tasks))
	for _, e := range q.heap {
		if _, live := q.tasks[e.task.ID]; live {
			snapshot = append(snapshot, e)
		}
	}
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].task.Priority != snapshot[j].task.Priority {
			return snapshot[i].task.Priority < snapshot[j].task.Priority
		}
		return snapshot[i].seq < snapshot[j].seq
	})
	out := make([]*core.Task, len(snapshot))
	for i, e := range snapshot {
		out[i] = e.task
	}
	return out
}
