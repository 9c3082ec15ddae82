package workerpool

import (
	"errors"
)

var (
	// ErrRejected is returned by Submit when the queue is at capacity.
	// Callers must treat it as a terminal failure of that request.
	ErrRejected = errors.New("workerpool: queue is full, task rejected")

	// ErrPoolClosed is returned by Submit after Shutdown has been called.
	ErrPoolClosed = errors.New("workerpool: pool closed")

	// ErrNilTask is returned when Submit is called with a nil Task.
	ErrNilTask = errors.New("workerpool: task is nil")

	// ErrTaskPanic wraps a value recovered from a panicking Task.Run.
	ErrTaskPanic = errors.New("workerpool: task panicked")
)

// Task is a single unit of work submitted to a Pool.
//
// Priority is read once, at submission. Run is invoked by exactly one worker.
// Fail is the failure hook: the pool calls it when Run panics.
type Task interface {
	Priority() int
	Run()
	Fail(err error)
}

// item represents a scheduled task stored inside one of the internal
// scheduler queues.
type item struct {
	task Task

	// prio is the task priority captured at Submit time.
	prio int

	// seq is the submission sequence number, used to keep equal
	// priorities in FIFO order.
	seq uint64

	// index is maintained by the heap-based queue.
	index int
}

// schedQueue defines the common behavior of the internal scheduler queues.
//
// Implementations are not safe for concurrent use; the pool serializes
// access with its own mutex. Capacity is enforced by the pool, not by the
// queue.
type schedQueue interface {
	// Push inserts a newly submitted task.
	Push(it *item)

	// Pop removes and returns the next task to run.
	// If the queue is empty it returns nil and false.
	Pop() (*item, bool)

	// Len returns the current number of tasks waiting in the queue.
	Len() int
}

func (p *Pool) makeQueue() schedQueue {
	switch p.opts.QT {
	case FifoQueue:
		return newFifoQueue(p.opts.QueueCapacity)
	default:
		return newPrioQueue(p.opts.QueueCapacity)
	}
}
