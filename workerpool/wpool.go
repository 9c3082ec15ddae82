package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
)

// Pool is a bounded, priority-ordered task pool with a fixed number of
// worker goroutines.
//
// OnTaskError and OnInternalError must be set before the first Submit.
type Pool struct {
	opts    Options
	ctx     context.Context
	metrics MetricsPolicy

	mu     sync.Mutex
	queue  schedQueue
	seq    uint64
	closed bool

	wake     chan struct{}
	stopCh   chan struct{} // closed once no more submissions are accepted
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeWorkers atomic.Int32

	// OnTaskError receives errors recovered from panicking tasks.
	OnTaskError func(error)

	// OnInternalError receives non-task failures.
	OnInternalError func(error)
}

// NewPool starts a pool configured by opts. ctx carries the logger and is
// kept for the pool's lifetime; cancelling it does not stop the pool.
func NewPool(ctx context.Context, opts Options, metrics MetricsPolicy) *Pool {
	opts.FillDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	p := &Pool{
		opts:    opts,
		ctx:     ctx,
		metrics: metrics,
		wake:    make(chan struct{}, opts.Workers),
		stopCh:  make(chan struct{}),
	}
	p.queue = p.makeQueue()

	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	lg.FromContext(ctx).Info("Pool started",
		lg.String("pool", opts.Name),
		lg.Int("workers", opts.Workers),
		lg.Int("queue_capacity", opts.QueueCapacity),
		lg.String("queue_type", opts.QT.String()),
	)
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.opts.Name }

// Submit enqueues t ordered by t.Priority(). It never blocks: a full queue
// yields ErrRejected and the task is not run.
func (p *Pool) Submit(t Task) error {
	if t == nil {
		return ErrNilTask
	}
	prio := t.Priority()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.queue.Len() >= p.opts.QueueCapacity {
		p.mu.Unlock()
		p.metrics.IncRejected()
		lg.FromContext(p.ctx).Warn("Task rejected",
			lg.String("pool", p.opts.Name),
			lg.Int("priority", prio),
			lg.Int("queue_capacity", p.opts.QueueCapacity),
		)
		return ErrRejected
	}
	p.seq++
	p.queue.Push(&item{task: t, prio: prio, seq: p.seq})
	// published under the lock so the gauge follows queue order
	p.metrics.SetQueued(p.queue.Len())
	p.mu.Unlock()

	p.metrics.IncSubmitted()

	select {
	case p.wake <- struct{}{}:
	default:
		// enough wake-ups are already pending to drain the queue
	}
	return nil
}

// Shutdown stops accepting tasks and waits for the workers to drain the
// queue, or for ctx to expire. It is safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()
	select {
	case <-done:
		lg.FromContext(p.ctx).Info("Pool stopped", lg.String("pool", p.opts.Name))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop is the blocking variant of Shutdown.
func (p *Pool) Stop() { _ = p.Shutdown(context.Background()) }

// ActiveWorkers returns the number of workers currently running a task.
func (p *Pool) ActiveWorkers() int32 { return p.activeWorkers.Load() }

// QueueLength returns the number of tasks waiting to run.
func (p *Pool) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

func (p *Pool) next() (*item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.queue.Pop()
	if ok {
		p.metrics.SetQueued(p.queue.Len())
	}
	return it, ok
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	if p.opts.PinWorkers {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := PinToCPU(id % runtime.NumCPU()); err != nil {
			p.reportInternalError(fmt.Errorf("workerpool: pin worker %d: %w", id, err))
		}
	}

	for {
		if it, ok := p.next(); ok {
			p.runTask(it.task)
			continue
		}

		select {
		case <-p.wake:
		case <-p.stopCh:
			// drain whatever is left, then exit
			for {
				it, ok := p.next()
				if !ok {
					return
				}
				p.runTask(it.task)
			}
		}
	}
}

func (p *Pool) runTask(t Task) {
	p.activeWorkers.Add(1)
	defer p.activeWorkers.Add(-1)
	defer p.metrics.IncExecuted()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrTaskPanic, r)
			p.metrics.IncPanicked()
			lg.FromContext(p.ctx).Error("Task panicked",
				lg.String("pool", p.opts.Name),
				lg.Any("panic", r),
			)
			p.reportTaskError(err)
			p.failTask(t, err)
		}
	}()
	t.Run()
}

// failTask routes err to the task's failure hook. A panicking hook is
// logged and swallowed so the worker survives.
func (p *Pool) failTask(t Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			lg.FromContext(p.ctx).Error("Task failure hook panicked",
				lg.String("pool", p.opts.Name),
				lg.Any("panic", r),
			)
			p.reportInternalError(fmt.Errorf("%w: failure hook: %v", ErrTaskPanic, r))
		}
	}()
	t.Fail(err)
}
