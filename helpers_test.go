package lazyload_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/azargarov/lazyload/workerpool"
)

const eventually = 2 * time.Second

type content struct {
	name     string
	released atomic.Int32
}

func (c *content) Released() int { return int(c.released.Load()) }

func releaseContent(c *content) { c.released.Add(1) }

// counter counts calls and tracks the highest number of concurrent ones.
type counter struct {
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (c *counter) enter() {
	c.calls.Add(1)
	n := c.active.Add(1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			return
		}
	}
}

func (c *counter) exit() { c.active.Add(-1) }

func (c *counter) Calls() int { return int(c.calls.Load()) }

type hookCounter struct {
	mu   sync.Mutex
	errs []error
}

func (h *hookCounter) record(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *hookCounter) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

type testRegistry struct {
	*workerpool.Registry

	mu      sync.Mutex
	metrics map[string]*workerpool.AtomicMetrics
}

func newRegistry(t *testing.T, normal workerpool.Options) *testRegistry {
	t.Helper()

	tr := &testRegistry{metrics: make(map[string]*workerpool.AtomicMetrics)}
	tr.Registry = workerpool.NewRegistry(context.Background(), workerpool.RegistryOptions{
		Normal: normal,
		NewMetrics: func(name string) workerpool.MetricsPolicy {
			m := &workerpool.AtomicMetrics{}
			tr.mu.Lock()
			tr.metrics[name] = m
			tr.mu.Unlock()
			return m
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, tr.Shutdown(ctx))
	})
	return tr
}

func (tr *testRegistry) Metrics(name string) *workerpool.AtomicMetrics {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.metrics[name]
}

type blockTask struct {
	started chan struct{}
	gate    chan struct{}
}

func (b *blockTask) Priority() int { return -1000 }
func (b *blockTask) Run() {
	close(b.started)
	<-b.gate
}
func (b *blockTask) Fail(error) {}

// occupy blocks every worker of the pool serving tag until the returned
// function is called.
func occupy(t *testing.T, reg *testRegistry, tag any, workers int) func() {
	t.Helper()

	pool, release := reg.Acquire(tag, workerpool.ClassNormal)
	gate := make(chan struct{})
	for i := 0; i < workers; i++ {
		b := &blockTask{started: make(chan struct{}), gate: gate}
		require.NoError(t, pool.Submit(b))
		select {
		case <-b.started:
		case <-time.After(eventually):
			t.Fatal("blocker did not start")
		}
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(gate)
			release()
		})
	}
	t.Cleanup(stop)
	return stop
}
