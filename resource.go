package lazyload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lg "github.com/Andrej220/go-utils/zlog"

	"github.com/azargarov/lazyload/eviction"
	"github.com/azargarov/lazyload/workerpool"
)

// Options configure a Resource.
type Options[C any] struct {
	// Tag groups resources that share one worker pool. It must be
	// comparable. A nil Tag shares the default pool.
	Tag any

	// Class selects the normal or the heavy pool of the tag.
	Class workerpool.Class

	// Name identifies the resource in logs and spans.
	Name string

	// Produce obtains the content. Required.
	Produce Producer[C]

	// Release frees content that is replaced, unloaded, evicted or stale.
	Release func(C)

	// OnError is called once per failure, including rejection.
	OnError func(error)

	// OnChange is called after every state transition.
	OnChange func()

	// Dispatcher delivers OnChange and OnError. Defaults to DirectDispatcher.
	Dispatcher Dispatcher

	// Priority orders this resource's tasks within the pool; lower runs first.
	Priority int

	// Retry controls in-task retries of Produce. Nil means one attempt.
	Retry *workerpool.RetryPolicy

	// Eviction, when set together with Key, bounds how many resources stay
	// loaded. Visible resources touch the pool under Key.
	Eviction *eviction.Pool
	Key      string
}

// effects are side effects collected under a lock and run after it is
// released: content releases, hooks and notifications.
type effects []func()

func (fx *effects) add(f func()) { *fx = append(*fx, f) }

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}

// Resource is a lazily materialized piece of content.
//
// All methods are safe for concurrent use.
type Resource[C any] struct {
	ctx         context.Context
	cancel      context.CancelFunc
	name        string
	kind        string
	key         string
	pool        *workerpool.Pool
	releasePool func()
	produce     Producer[C]
	release     func(C)
	onError     func(error)
	onChange    func()
	dispatcher  Dispatcher
	retry       *workerpool.RetryPolicy
	evict       *eviction.Pool

	mu       sync.Mutex
	state    State
	content  C
	has      bool
	err      error
	gen      uint64
	inflight *loadTask[C]
	prio     int
	closed   bool
}

// New creates an Absent resource and acquires the pool for its tag. The
// pool is held until Close.
func New[C any](ctx context.Context, reg *workerpool.Registry, opts Options[C]) (*Resource[C], error) {
	if reg == nil {
		return nil, errors.New("lazyload: registry is required")
	}
	if opts.Produce == nil {
		return nil, errors.New("lazyload: Produce is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = DirectDispatcher{}
	}
	if opts.Name == "" {
		opts.Name = opts.Key
	}
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("%v", opts.Tag)
	}

	pool, release := reg.Acquire(opts.Tag, opts.Class)
	rctx, cancel := context.WithCancel(ctx)
	return &Resource[C]{
		ctx:         rctx,
		cancel:      cancel,
		name:        opts.Name,
		kind:        "content",
		key:         opts.Key,
		pool:        pool,
		releasePool: release,
		produce:     opts.Produce,
		release:     opts.Release,
		onError:     opts.OnError,
		onChange:    opts.OnChange,
		dispatcher:  opts.Dispatcher,
		retry:       opts.Retry,
		evict:       opts.Eviction,
		prio:        opts.Priority,
	}, nil
}

// RequestContent returns the current content, if any. An Absent resource
// starts loading.
func (r *Resource[C]) RequestContent() (C, bool) {
	c, ok, fx := r.request()
	fx.run()
	return c, ok
}

func (r *Resource[C]) request() (C, bool, effects) {
	var fx effects
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed && r.state == Absent {
		r.startLocked(&fx)
	}
	return r.content, r.has, fx
}

func (r *Resource[C]) startLocked(fx *effects) {
	r.state = Loading
	r.err = nil
	fx.add(r.notify)

	if t := r.inflight; t != nil {
		if t.revive(r.gen) {
			return
		}
		if t.isRunning() {
			// its completion is stale and resubmits
			return
		}
	}
	r.submitLocked(fx)
}

// submitLocked schedules a fresh task. Submit never blocks, so it is
// called with the resource lock held.
func (r *Resource[C]) submitLocked(fx *effects) {
	t := newLoadTask[C](r.ctx, r.name, r.kind, r, r.produce, r.retry, r.gen, r.prio)
	if err := r.pool.Submit(t); err != nil {
		r.inflight = nil
		r.failLocked(fx, err)
		return
	}
	r.inflight = t
}

func (r *Resource[C]) failLocked(fx *effects, err error) {
	r.state = Error
	r.err = err
	if r.onError != nil {
		onError := r.onError
		fx.add(func() { r.dispatch(func() { onError(err) }) })
	}
	fx.add(r.notify)
}

// resumeLocked resubmits when a request is waiting on a task that turned
// out stale or skipped.
func (r *Resource[C]) resumeLocked(fx *effects) {
	if !r.closed && r.state == Loading && r.inflight == nil {
		r.submitLocked(fx)
	}
}

// isCurrent consumes t as the in-flight task and reports whether its
// outcome applies to the current state.
func (r *Resource[C]) isCurrent(t *loadTask[C], gen uint64) bool {
	owned := t == r.inflight
	if owned {
		r.inflight = nil
	}
	return owned && gen == r.gen && r.state == Loading && !r.closed
}

func (r *Resource[C]) succeeded(t *loadTask[C], gen uint64, c C) {
	var fx effects
	r.mu.Lock()
	if !r.isCurrent(t, gen) {
		r.logStale(t, gen)
		fx.add(func() { r.releaseContent(c) })
		r.resumeLocked(&fx)
		r.mu.Unlock()
		fx.run()
		return
	}
	r.installLocked(&fx, c)
	r.mu.Unlock()
	fx.run()
}

func (r *Resource[C]) failed(t *loadTask[C], gen uint64, err error) {
	var fx effects
	r.mu.Lock()
	if !r.isCurrent(t, gen) {
		r.logStale(t, gen)
		r.resumeLocked(&fx)
		r.mu.Unlock()
		fx.run()
		return
	}
	r.failLocked(&fx, err)
	r.mu.Unlock()

	lg.FromContext(r.ctx).Warn("Load failed",
		lg.String("resource", r.name),
		lg.String("task", t.id.String()),
		lg.Any("error", err),
	)
	fx.run()
}

func (r *Resource[C]) skipped(t *loadTask[C]) {
	var fx effects
	r.mu.Lock()
	if t == r.inflight {
		r.inflight = nil
		r.resumeLocked(&fx)
	}
	r.mu.Unlock()
	fx.run()
}

// installLocked makes c the Ready content, releasing what it replaces.
func (r *Resource[C]) installLocked(fx *effects, c C) {
	old, had := r.content, r.has
	r.content, r.has = c, true
	r.state = Ready
	r.err = nil
	if had {
		fx.add(func() { r.releaseContent(old) })
	}
	fx.add(r.notify)
}

func (r *Resource[C]) logStale(t *loadTask[C], gen uint64) {
	lg.FromContext(r.ctx).Info("Discarding completion",
		lg.String("resource", r.name),
		lg.String("task", t.id.String()),
		lg.Any("task_generation", gen),
		lg.Any("generation", r.gen),
		lg.Any("error", ErrStaleCompletion),
	)
}

// Peek returns the current content without scheduling anything.
func (r *Resource[C]) Peek() (C, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content, r.has
}

func (r *Resource[C]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resource[C]) IsError() bool { return r.State() == Error }

func (r *Resource[C]) IsLoading() bool { return r.State() == Loading }

// Err returns the cause of the current Error state, or ErrClosed after
// Close.
func (r *Resource[C]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.err
}

// SetPriority sets the priority of future submissions. A queued task keeps
// the priority it was submitted with.
func (r *Resource[C]) SetPriority(n int) {
	r.mu.Lock()
	r.prio = n
	r.mu.Unlock()
}

func (r *Resource[C]) Priority() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prio
}

// Generation returns the current generation.
func (r *Resource[C]) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// Retry clears an Error so the next RequestContent schedules exactly one
// new task.
func (r *Resource[C]) Retry() {
	var fx effects
	r.mu.Lock()
	if r.state == Error {
		r.state = Absent
		r.err = nil
		if r.inflight != nil {
			r.inflight.uncancel()
		}
		fx.add(r.notify)
	}
	r.mu.Unlock()
	fx.run()
}

// Unload drops the content and any pending work. Results of tasks that are
// already running are discarded when they arrive.
func (r *Resource[C]) Unload() {
	r.unload().run()
}

func (r *Resource[C]) unload() effects {
	var fx effects
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inflight != nil {
		r.inflight.cancel()
	}
	r.gen++
	changed := r.state != Absent || r.has
	if r.has {
		old := r.content
		fx.add(func() { r.releaseContent(old) })
	}
	var zero C
	r.content, r.has = zero, false
	r.state = Absent
	r.err = nil
	if changed {
		fx.add(r.notify)
	}
	return fx
}

// StopLoading cancels pending work but keeps current content.
func (r *Resource[C]) StopLoading() {
	var fx effects
	r.mu.Lock()
	if r.inflight != nil {
		r.inflight.cancel()
	}
	if r.state == Loading {
		r.state = Absent
		fx.add(r.notify)
	}
	r.mu.Unlock()
	fx.run()
}

// Take hands the content over to the caller, who becomes responsible for
// releasing it. The resource becomes Absent.
func (r *Resource[C]) Take() (C, bool) {
	c, ok, fx := r.take()
	fx.run()
	return c, ok
}

func (r *Resource[C]) take() (C, bool, effects) {
	var fx effects
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero C
	if !r.has {
		return zero, false, nil
	}
	c := r.content
	if r.inflight != nil {
		r.inflight.cancel()
	}
	r.gen++
	r.content, r.has = zero, false
	r.state = Absent
	fx.add(r.notify)
	return c, true, fx
}

// supersede retires the current load in favour of another producer: any
// pending task is cancelled and its outcome will be stale. Ready content
// is kept; Loading and Error fall back to Absent.
func (r *Resource[C]) supersede() effects {
	var fx effects
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inflight != nil {
		r.inflight.cancel()
		r.inflight = nil
	}
	r.gen++
	if r.state == Loading || r.state == Error {
		r.state = Absent
		r.err = nil
		fx.add(r.notify)
	}
	return fx
}

// adopt installs content produced outside this resource's own tasks.
func (r *Resource[C]) adopt(c C) effects {
	var fx effects
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		fx.add(func() { r.releaseContent(c) })
		return fx
	}
	r.installLocked(&fx, c)
	return fx
}

// OnVisibilityChanged marks a visible resource as recently used in the
// eviction pool.
func (r *Resource[C]) OnVisibilityChanged(visible bool) {
	if !visible || r.evict == nil || r.key == "" {
		return
	}
	r.evict.Touch(r.key, eviction.Weak(r, (*Resource[C]).Unload))
}

// Close unloads the resource and returns its pool to the registry. It is
// safe to call more than once.
func (r *Resource[C]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.evict != nil && r.key != "" {
		r.evict.Remove(r.key)
	}
	r.Unload()
	r.releasePool()
	r.cancel()
	return nil
}

func (r *Resource[C]) releaseContent(c C) {
	if r.release != nil {
		r.release(c)
	}
}

func (r *Resource[C]) notify() {
	if r.onChange != nil {
		r.dispatch(r.onChange)
	}
}

func (r *Resource[C]) dispatch(fn func()) {
	if err := r.dispatcher.Dispatch(fn); err != nil {
		lg.FromContext(r.ctx).Warn("Dispatch failed",
			lg.String("resource", r.name),
			lg.Any("error", err),
		)
	}
}
