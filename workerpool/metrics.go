package workerpool

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// MetricsPolicy defines hooks used by the worker pool to report
// queueing and execution activity.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	// IncSubmitted increments the accepted tasks counter.
	IncSubmitted()

	// IncRejected increments the rejected tasks counter.
	IncRejected()

	// IncExecuted increments the executed tasks counter.
	IncExecuted()

	// IncPanicked increments the counter of tasks whose Run panicked.
	IncPanicked()

	// SetQueued records the current queue length.
	SetQueued(n int)
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	submitted atomic.Uint64
	rejected  atomic.Uint64
	panicked  atomic.Uint64

	_ cpu.CacheLinePad // padding to avoid false sharing

	executed atomic.Uint64

	_ cpu.CacheLinePad

	queued atomic.Int64
}

// Submitted returns the total number of accepted tasks.
func (m *AtomicMetrics) Submitted() uint64 { return m.submitted.Load() }

// Rejected returns the total number of rejected tasks.
func (m *AtomicMetrics) Rejected() uint64 { return m.rejected.Load() }

// Executed returns the total number of executed tasks.
// Intended for cold-path observation.
func (m *AtomicMetrics) Executed() uint64 { return m.executed.Load() }

// Panicked returns the total number of tasks that panicked.
func (m *AtomicMetrics) Panicked() uint64 { return m.panicked.Load() }

// Queued returns the last recorded queue length.
func (m *AtomicMetrics) Queued() int64 { return m.queued.Load() }

func (m *AtomicMetrics) IncSubmitted()   { m.submitted.Add(1) }
func (m *AtomicMetrics) IncRejected()    { m.rejected.Add(1) }
func (m *AtomicMetrics) IncExecuted()    { m.executed.Add(1) }
func (m *AtomicMetrics) IncPanicked()    { m.panicked.Add(1) }
func (m *AtomicMetrics) SetQueued(n int) { m.queued.Store(int64(n)) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards
// all metric updates.
type NoopMetrics struct{}

func (NoopMetrics) IncSubmitted() {}
func (NoopMetrics) IncRejected()  {}
func (NoopMetrics) IncExecuted()  {}
func (NoopMetrics) IncPanicked()  {}
func (NoopMetrics) SetQueued(int) {}
