package workerpool

import (
	"context"
	"fmt"
	"sync"

	lg "github.com/Andrej220/go-utils/zlog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Class selects which kind of pool a tag is served by.
type Class int

const (
	// ClassNormal pools run ordinary loads.
	ClassNormal Class = iota

	// ClassHeavy pools run expensive loads such as animated image decoding.
	ClassHeavy
)

func (c Class) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}

// RegistryOptions configure the pools a Registry creates.
type RegistryOptions struct {
	Normal Options
	Heavy  Options

	// NewMetrics, when set, builds the metrics policy of each new pool.
	NewMetrics func(name string) MetricsPolicy
}

type poolKey struct {
	tag   any
	class Class
}

type poolEntry struct {
	pool *Pool
	refs int
}

// Registry shares one Pool per (tag, class) among its users. A pool is
// created on first Acquire and shut down once its last user releases it.
type Registry struct {
	ctx  context.Context
	opts RegistryOptions

	mu     sync.Mutex
	pools  map[poolKey]*poolEntry
	closed bool

	retiring sync.WaitGroup
}

// NewRegistry returns an empty Registry. Zero option values fall back to
// the normal and heavy defaults.
func NewRegistry(ctx context.Context, opts RegistryOptions) *Registry {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Heavy.Workers <= 0 && opts.Heavy.QueueCapacity <= 0 {
		h := HeavyDefaults()
		h.QT, h.PinWorkers = opts.Heavy.QT, opts.Heavy.PinWorkers
		opts.Heavy = h
	}
	return &Registry{
		ctx:   ctx,
		opts:  opts,
		pools: make(map[poolKey]*poolEntry),
	}
}

// Acquire returns the pool for (tag, class) and a release function. The
// release function is idempotent. Tags must be comparable.
func (r *Registry) Acquire(tag any, class Class) (*Pool, func()) {
	key := poolKey{tag: tag, class: class}

	r.mu.Lock()
	e, ok := r.pools[key]
	if !ok {
		e = &poolEntry{pool: r.newPool(tag, class)}
		if !r.closed {
			r.pools[key] = e
		}
	}
	e.refs++
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { r.release(key, e) })
	}
	return e.pool, release
}

func (r *Registry) newPool(tag any, class Class) *Pool {
	opts := r.opts.Normal
	if class == ClassHeavy {
		opts = r.opts.Heavy
	}
	opts.Name = fmt.Sprintf("%v/%s", tag, class)

	var m MetricsPolicy
	if r.opts.NewMetrics != nil {
		m = r.opts.NewMetrics(opts.Name)
	}
	return NewPool(r.ctx, opts, m)
}

func (r *Registry) release(key poolKey, e *poolEntry) {
	r.mu.Lock()
	e.refs--
	last := e.refs == 0
	if last && r.pools[key] == e {
		delete(r.pools, key)
	}
	if last {
		r.retiring.Add(1)
	}
	r.mu.Unlock()

	if !last {
		return
	}
	go func() {
		defer r.retiring.Done()
		if err := e.pool.Shutdown(context.Background()); err != nil {
			lg.FromContext(r.ctx).Warn("Pool shutdown failed",
				lg.String("pool", e.pool.Name()),
				lg.Any("error", err),
			)
		}
	}()
}

// Len returns the number of live pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Shutdown stops every live pool and waits for pools retired by earlier
// releases. Pools acquired afterwards are not tracked by the registry.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	pools := make([]*Pool, 0, len(r.pools))
	for k, e := range r.pools {
		pools = append(pools, e.pool)
		delete(r.pools, k)
	}
	r.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pools {
		g.Go(func() error {
			if err := p.Shutdown(gctx); err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("pool %s: %w", p.Name(), err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.retiring.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = multierr.Append(errs, ctx.Err())
	}
	return errs
}
