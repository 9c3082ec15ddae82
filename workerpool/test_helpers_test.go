package workerpool_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	wp "github.com/azargarov/lazyload/workerpool"
)

// funcTask adapts plain functions to wp.Task.
type funcTask struct {
	prio int
	run  func()
	fail func(error)
}

func (t *funcTask) Priority() int { return t.prio }
func (t *funcTask) Run() {
	if t.run != nil {
		t.run()
	}
}
func (t *funcTask) Fail(err error) {
	if t.fail != nil {
		t.fail(err)
	}
}

func newTestPool(t *testing.T, workers, capacity int, qt wp.QueueType) (*wp.Pool, *wp.AtomicMetrics) {
	t.Helper()

	m := &wp.AtomicMetrics{}
	p := wp.NewPool(context.Background(), wp.Options{
		Name:          t.Name(),
		Workers:       workers,
		QueueCapacity: capacity,
		QT:            qt,
	}, m)
	t.Cleanup(p.Stop)
	return p, m
}

// block submits a task that occupies one worker until the returned release
// function is called. It returns once the task is running.
func block(t *testing.T, p *wp.Pool) (release func()) {
	t.Helper()

	started := make(chan struct{})
	gate := make(chan struct{})
	err := p.Submit(&funcTask{run: func() {
		close(started)
		<-gate
	}})
	if err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocker did not start")
	}

	var closed bool
	return func() {
		if !closed {
			closed = true
			close(gate)
		}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not satisfied before timeout")
}
