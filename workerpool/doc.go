// Package workerpool provides the bounded, priority-ordered task pools that
// lazily loaded resources are materialized on.
//
// Design goals
//
//   - Never grow without bound: a full queue rejects the task instead of
//     blocking the caller or allocating more room
//   - Deterministic ordering: lower priority values run first, equal
//     priorities run in submission order
//   - Survive misbehaving tasks: panics are recovered and routed back to
//     the task's failure hook, the worker keeps running
//
// Architecture overview
//
// A Pool is composed of two loosely coupled layers:
//
//  1. Scheduling (schedQueue)
//     Responsible for ordering and capacity. The default queue is a binary
//     heap keyed by (priority, sequence); a plain FIFO ring is available for
//     pools where priority is irrelevant.
//
//  2. Execution (workers)
//     A fixed number of goroutines pop one task at a time and run it.
//     Parallelism is achieved across workers, never within a task.
//
// Registry
//
// Resources do not create pools themselves. They acquire one from a Registry
// by (tag, class). The registry creates the pool on first use and shuts it
// down once the last holder releases it, so a pool never outlives the
// resources that share its tag. Heavy content (animations) gets its own,
// narrower pool per tag so it cannot starve light tasks.
//
// Error handling
//
// The pool distinguishes between two classes of errors:
//
//   - Task errors: panics recovered from Task.Run, reported to Task.Fail
//     and to the optional OnTaskError handler
//   - Internal errors: unexpected failures inside the pool itself, such as
//     a worker that could not be pinned to its CPU
//
// Errors never stop worker execution.
//
// CPU pinning
//
// On Linux, workers may optionally be pinned to specific CPUs. This is only
// worth it for decode-heavy pools and is off by default.
package workerpool
