package workerpool

import (
	"fmt"
)

const (
	// DefaultWorkers is the worker count of a normal pool.
	DefaultWorkers = 3

	// DefaultQueueCapacity bounds the number of queued (not running) tasks.
	DefaultQueueCapacity = 500

	// DefaultHeavyWorkers is the worker count of a heavy pool.
	DefaultHeavyWorkers = 1

	// DefaultHeavyQueueCapacity bounds the queue of a heavy pool.
	DefaultHeavyQueueCapacity = 5
)

// QueueType defines the scheduling strategy used by the worker pool.
//
// The type is configured via Options.QT when creating a new Pool.
type QueueType int

const (
	// PriorityQueue orders tasks by Task.Priority, then by submission order.
	PriorityQueue QueueType = iota

	// FifoQueue ignores priorities and runs tasks in submission order.
	FifoQueue
)

// Options configure a worker Pool.
//
// All zero values are replaced with sensible defaults in FillDefaults.
type Options struct {
	// Name identifies the pool in logs and metrics.
	Name string

	Workers int

	QueueCapacity int

	QT QueueType

	PinWorkers bool
}

func (o *Options) FillDefaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.Name == "" {
		o.Name = "pool"
	}
}

// HeavyDefaults returns the options used for heavy content when the caller
// does not provide any.
func HeavyDefaults() Options {
	return Options{
		Workers:       DefaultHeavyWorkers,
		QueueCapacity: DefaultHeavyQueueCapacity,
	}
}

func (qt QueueType) String() string {
	switch qt {
	case PriorityQueue:
		return "PriorityQueue"
	case FifoQueue:
		return "FifoQueue"
	default:
		return "Unknown"
	}
}

// ParseQueueType maps a configuration string to a QueueType.
func ParseQueueType(s string) (QueueType, error) {
	switch s {
	case "", "priority":
		return PriorityQueue, nil
	case "fifo":
		return FifoQueue, nil
	default:
		return 0, fmt.Errorf("workerpool: unknown queue type %q", s)
	}
}
