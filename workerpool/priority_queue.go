package workerpool

import (
	"container/heap"
)

// taskHeap is a min-heap ordered by (prio, seq).
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio < h[j].prio
	}
	// equal priorities keep submission order
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// prioQueue implements the priority-based queue used by the pool.
//
// Unlike an aging scheduler, priorities are never re-evaluated after Push:
// changing a task's priority after submission does not reorder it.
type prioQueue struct {
	h taskHeap
}

func newPrioQueue(capacity int) *prioQueue {
	q := &prioQueue{h: make(taskHeap, 0, capacity)}
	heap.Init(&q.h)
	return q
}

// Push inserts a task into the heap.
func (q *prioQueue) Push(it *item) {
	heap.Push(&q.h, it)
}

// Pop removes and returns the task with the lowest (prio, seq).
func (q *prioQueue) Pop() (*item, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*item), true
}

func (q *prioQueue) Len() int { return q.h.Len() }
