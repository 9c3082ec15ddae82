package lazyload

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/azargarov/lazyload/workerpool"
)

const tracerName = "github.com/azargarov/lazyload"

// Span attribute keys.
const (
	AttrResource   = "lazyload.resource"
	AttrTaskID     = "lazyload.task_id"
	AttrKind       = "lazyload.kind"
	AttrGeneration = "lazyload.generation"
	AttrAttempt    = "lazyload.attempt"
)

// Producer obtains content. It runs on a pool worker and may block; ctx is
// cancelled when the owning resource is closed.
type Producer[C any] func(ctx context.Context) (C, error)

type phase uint8

const (
	phaseQueued phase = iota
	phaseRunning
	phaseDone
)

// taskOwner receives exactly one outcome per task run.
type taskOwner[C any] interface {
	succeeded(t *loadTask[C], gen uint64, c C)
	failed(t *loadTask[C], gen uint64, err error)

	// skipped reports a run that found the task cancelled.
	skipped(t *loadTask[C])
}

// loadTask is one scheduled producing call. It implements workerpool.Task.
type loadTask[C any] struct {
	id      uuid.UUID
	ctx     context.Context
	name    string
	kind    string
	owner   taskOwner[C]
	produce Producer[C]
	retry   *workerpool.RetryPolicy
	prio    int

	mu        sync.Mutex
	gen       uint64
	cancelled bool
	phase     phase
}

func newLoadTask[C any](ctx context.Context, name, kind string, owner taskOwner[C], produce Producer[C], retry *workerpool.RetryPolicy, gen uint64, prio int) *loadTask[C] {
	return &loadTask[C]{
		id:      uuid.New(),
		ctx:     ctx,
		name:    name,
		kind:    kind,
		owner:   owner,
		produce: produce,
		retry:   retry,
		prio:    prio,
		gen:     gen,
	}
}

func (t *loadTask[C]) Priority() int { return t.prio }

func (t *loadTask[C]) Run() {
	t.mu.Lock()
	if t.cancelled {
		// cancellation is consumed by the skipped run
		t.cancelled = false
		t.phase = phaseDone
		t.mu.Unlock()
		t.owner.skipped(t)
		return
	}
	t.phase = phaseRunning
	gen := t.gen
	t.mu.Unlock()

	c, err := t.call(gen)

	t.mu.Lock()
	t.phase = phaseDone
	t.mu.Unlock()

	if err != nil {
		t.owner.failed(t, gen, fmt.Errorf("%w: %w", ErrProducerFailed, err))
		return
	}
	t.owner.succeeded(t, gen, c)
}

// Fail is called by the pool when Run panicked. A panic in the producer is
// reported as a failure; a panic after the outcome was delivered is only
// logged.
func (t *loadTask[C]) Fail(err error) {
	t.mu.Lock()
	if t.phase == phaseDone {
		t.mu.Unlock()
		lg.FromContext(t.ctx).Error("Load task failed after completion",
			lg.String("resource", t.name),
			lg.String("task", t.id.String()),
			lg.Any("error", err),
		)
		return
	}
	t.phase = phaseDone
	gen := t.gen
	t.mu.Unlock()

	t.owner.failed(t, gen, fmt.Errorf("%w: %w", ErrProducerFailed, err))
}

func (t *loadTask[C]) call(gen uint64) (C, error) {
	ctx, span := otel.Tracer(tracerName).Start(t.ctx, "lazyload.produce",
		trace.WithAttributes(
			attribute.String(AttrResource, t.name),
			attribute.String(AttrTaskID, t.id.String()),
			attribute.String(AttrKind, t.kind),
			attribute.Int64(AttrGeneration, int64(gen)),
		),
	)
	defer span.End()

	var out C
	err := t.retry.Do(ctx, func() error {
		c, err := t.produce(ctx)
		if err != nil {
			return err
		}
		if isNil(c) {
			return ErrNoContent
		}
		out = c
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		span.AddEvent("retry", trace.WithAttributes(attribute.Int(AttrAttempt, attempt)))
		lg.FromContext(ctx).Warn("Producer failed, retrying",
			lg.String("resource", t.name),
			lg.String("kind", t.kind),
			lg.Int("attempt", attempt),
			lg.Any("delay", delay),
			lg.Any("error", err),
		)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero C
		return zero, err
	}
	return out, nil
}

func (t *loadTask[C]) cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *loadTask[C]) uncancel() {
	t.mu.Lock()
	t.cancelled = false
	t.mu.Unlock()
}

// revive makes a cancelled task that is still queued useful again, now on
// behalf of generation gen. It reports false once the task left the queue.
func (t *loadTask[C]) revive(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != phaseQueued {
		return false
	}
	t.cancelled = false
	t.gen = gen
	return true
}

func (t *loadTask[C]) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase == phaseRunning
}

// isNil reports whether c is a nil pointer, map, slice, chan, func or
// interface. Other kinds are never considered empty.
func isNil[C any](c C) bool {
	v := reflect.ValueOf(any(c))
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
