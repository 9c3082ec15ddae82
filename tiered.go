package lazyload

import (
	"context"
	"errors"
	"sync"

	lg "github.com/Andrej220/go-utils/zlog"

	"github.com/azargarov/lazyload/eviction"
	"github.com/azargarov/lazyload/workerpool"
)

// TieredOptions configure a Tiered resource. The embedded Options describe
// the preview tier.
type TieredOptions[C any] struct {
	Options[C]

	// ProduceFull obtains the full version. Required.
	ProduceFull Producer[C]

	// OnFullError is called once per failed promotion, including rejection.
	// Preview failures go to Options.OnError.
	OnFullError func(error)
}

// Tiered is a resource with a cheap preview and an optional full version.
//
// The preview is an ordinary Resource. Promotion runs as a second machine:
// its success replaces the preview content, its failure leaves the preview
// alone.
//
// Lock order is Tiered before its base Resource.
type Tiered[C any] struct {
	base        *Resource[C]
	produceFull Producer[C]
	onFullError func(error)

	mu        sync.Mutex
	full      bool
	promoting bool
	fullTask  *loadTask[C]
	fullGen   uint64
	closed    bool
}

// NewTiered creates a tiered resource with an Absent preview.
func NewTiered[C any](ctx context.Context, reg *workerpool.Registry, opts TieredOptions[C]) (*Tiered[C], error) {
	if opts.ProduceFull == nil {
		return nil, errors.New("lazyload: ProduceFull is required")
	}
	base, err := New(ctx, reg, opts.Options)
	if err != nil {
		return nil, err
	}
	base.kind = "preview"
	return &Tiered[C]{
		base:        base,
		produceFull: opts.ProduceFull,
		onFullError: opts.OnFullError,
	}, nil
}

// Base returns the preview resource.
func (t *Tiered[C]) Base() *Resource[C] { return t.base }

// RequestContent returns the current content. While a promotion is
// pending it never schedules a preview load.
func (t *Tiered[C]) RequestContent() (C, bool) {
	t.mu.Lock()
	if t.promoting {
		t.mu.Unlock()
		return t.base.Peek()
	}
	c, ok, fx := t.base.request()
	t.mu.Unlock()

	fx.run()
	return c, ok
}

// PromoteToFull starts loading the full version at the current priority.
// It is a no-op while a promotion is pending or once the tier is Full.
func (t *Tiered[C]) PromoteToFull() {
	var fx effects
	t.mu.Lock()
	if t.closed || t.full || t.promoting {
		t.mu.Unlock()
		return
	}
	t.promoting = true
	fx = append(fx, t.base.supersede()...)
	fx.add(t.base.notify)

	if ft := t.fullTask; ft != nil && (ft.revive(t.fullGen) || ft.isRunning()) {
		// a queued task is reused; a running stale one resubmits on completion
		t.mu.Unlock()
		fx.run()
		return
	}
	t.submitFullLocked(&fx)
	t.mu.Unlock()
	fx.run()
}

func (t *Tiered[C]) submitFullLocked(fx *effects) {
	b := t.base
	ft := newLoadTask[C](b.ctx, b.name, "full", t, t.produceFull, b.retry, t.fullGen, b.Priority())
	if err := b.pool.Submit(ft); err != nil {
		t.fullTask = nil
		t.failFullLocked(fx, err)
		return
	}
	t.fullTask = ft
}

func (t *Tiered[C]) failFullLocked(fx *effects, err error) {
	t.promoting = false
	if t.onFullError != nil {
		onFullError := t.onFullError
		fx.add(func() { t.base.dispatch(func() { onFullError(err) }) })
	}
	fx.add(t.base.notify)
}

func (t *Tiered[C]) isCurrent(ft *loadTask[C], gen uint64) bool {
	owned := ft == t.fullTask
	if owned {
		t.fullTask = nil
	}
	return owned && gen == t.fullGen && t.promoting && !t.closed
}

func (t *Tiered[C]) resumeLocked(fx *effects) {
	if !t.closed && t.promoting && t.fullTask == nil {
		t.submitFullLocked(fx)
	}
}

func (t *Tiered[C]) succeeded(ft *loadTask[C], gen uint64, c C) {
	var fx effects
	t.mu.Lock()
	if !t.isCurrent(ft, gen) {
		t.base.logStale(ft, gen)
		fx.add(func() { t.base.releaseContent(c) })
		t.resumeLocked(&fx)
		t.mu.Unlock()
		fx.run()
		return
	}
	t.promoting = false
	t.full = true
	fx = append(fx, t.base.adopt(c)...)
	t.mu.Unlock()
	fx.run()
}

func (t *Tiered[C]) failed(ft *loadTask[C], gen uint64, err error) {
	var fx effects
	t.mu.Lock()
	if !t.isCurrent(ft, gen) {
		t.base.logStale(ft, gen)
		t.resumeLocked(&fx)
		t.mu.Unlock()
		fx.run()
		return
	}
	t.failFullLocked(&fx, err)
	t.mu.Unlock()

	lg.FromContext(t.base.ctx).Warn("Full load failed",
		lg.String("resource", t.base.name),
		lg.String("task", ft.id.String()),
		lg.Any("error", err),
	)
	fx.run()
}

func (t *Tiered[C]) skipped(ft *loadTask[C]) {
	var fx effects
	t.mu.Lock()
	if ft == t.fullTask {
		t.fullTask = nil
		t.resumeLocked(&fx)
	}
	t.mu.Unlock()
	fx.run()
}

// Tier is derived: Full once promoted, Preview while the base is Ready.
func (t *Tiered[C]) Tier() Tier {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return TierFull
	}
	if t.base.State() == Ready {
		return TierPreview
	}
	return TierNone
}

func (t *Tiered[C]) IsFull() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.full
}

// IsPromoting reports whether a full load is queued or running.
func (t *Tiered[C]) IsPromoting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.promoting
}

func (t *Tiered[C]) Peek() (C, bool) { return t.base.Peek() }

func (t *Tiered[C]) State() State { return t.base.State() }

func (t *Tiered[C]) IsError() bool { return t.base.IsError() }

func (t *Tiered[C]) IsLoading() bool { return t.base.IsLoading() }

func (t *Tiered[C]) SetPriority(n int) { t.base.SetPriority(n) }

func (t *Tiered[C]) Priority() int { return t.base.Priority() }

// Retry clears a preview error.
func (t *Tiered[C]) Retry() { t.base.Retry() }

// Unload drops both tiers and any pending work.
func (t *Tiered[C]) Unload() {
	t.mu.Lock()
	t.resetLocked()
	fx := t.base.unload()
	t.mu.Unlock()
	fx.run()
}

// StopLoading cancels pending preview and full loads, keeping content.
func (t *Tiered[C]) StopLoading() {
	var fx effects
	t.mu.Lock()
	if t.fullTask != nil {
		t.fullTask.cancel()
	}
	if t.promoting {
		t.promoting = false
		fx.add(t.base.notify)
	}
	t.mu.Unlock()
	fx.run()
	t.base.StopLoading()
}

// Take hands the content over to the caller. The resource returns to
// the None tier.
func (t *Tiered[C]) Take() (C, bool) {
	t.mu.Lock()
	t.resetLocked()
	c, ok, fx := t.base.take()
	t.mu.Unlock()
	fx.run()
	return c, ok
}

func (t *Tiered[C]) resetLocked() {
	if t.fullTask != nil {
		t.fullTask.cancel()
	}
	t.fullGen++
	t.full = false
	t.promoting = false
}

// OnVisibilityChanged marks a visible resource as recently used in the
// eviction pool.
func (t *Tiered[C]) OnVisibilityChanged(visible bool) {
	b := t.base
	if !visible || b.evict == nil || b.key == "" {
		return
	}
	b.evict.Touch(b.key, eviction.Weak(t, (*Tiered[C]).Unload))
}

// Close unloads both tiers and returns the pool to the registry.
func (t *Tiered[C]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if b := t.base; b.evict != nil && b.key != "" {
		b.evict.Remove(b.key)
	}
	t.Unload()
	return t.base.Close()
}
