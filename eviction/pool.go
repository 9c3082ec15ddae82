// Package eviction bounds how many materialized resources stay resident.
//
// The pool is advisory: it holds weak handles only and never owns content.
// Evicting an entry asks the owner to release it; objects that were already
// collected are dropped silently.
package eviction

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultCapacity is the number of entries kept when Options.Capacity is 0.
const DefaultCapacity = 100

// Options configure a Pool.
type Options struct {
	Capacity int

	// OnEvict observes every eviction or explicit removal. released is false
	// when the handle no longer resolved to a live object.
	OnEvict func(key string, released bool)
}

// Pool is a size-bounded, access-ordered set of weak handles. Oldest
// entries sit at the front of the map, most recently touched at the back.
type Pool struct {
	mu       sync.Mutex
	capacity int
	entries  *orderedmap.OrderedMap[string, Handle]
	onEvict  func(string, bool)
}

type victim struct {
	key string
	h   Handle
}

// New returns an empty pool.
func New(opts Options) *Pool {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Pool{
		capacity: opts.Capacity,
		entries:  orderedmap.New[string, Handle](),
		onEvict:  opts.OnEvict,
	}
}

// Touch marks key as most recently used. A new key is inserted with h; an
// existing key keeps its handle unless that handle is no longer live.
// Entries beyond capacity are evicted oldest first.
func (p *Pool) Touch(key string, h Handle) {
	p.mu.Lock()
	if pair := p.entries.GetPair(key); pair != nil {
		// the stored handle wins; only a dead one is swapped for h
		if h != nil && !pair.Value.Live() {
			pair.Value = h
		}
		_ = p.entries.MoveToBack(key)
	} else if h != nil {
		p.entries.Set(key, h)
	}
	victims := p.trimLocked()
	p.mu.Unlock()

	p.evict(victims)
}

// Remove drops key and releases its handle if the object is still live.
// It reports whether key was present.
func (p *Pool) Remove(key string) bool {
	p.mu.Lock()
	h, ok := p.entries.Delete(key)
	p.mu.Unlock()

	if !ok {
		return false
	}
	p.evict([]victim{{key: key, h: h}})
	return true
}

// SetCapacity changes the bound. Shrinking evicts the excess immediately.
// Negative values are treated as zero.
func (p *Pool) SetCapacity(n int) {
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	p.capacity = n
	victims := p.trimLocked()
	p.mu.Unlock()

	p.evict(victims)
}

// Contains reports whether key is tracked.
func (p *Pool) Contains(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries.Get(key)
	return ok
}

// Len returns the number of tracked keys.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries.Len()
}

// Capacity returns the current bound.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Keys returns tracked keys from least to most recently touched.
func (p *Pool) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]string, 0, p.entries.Len())
	for pair := p.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (p *Pool) trimLocked() []victim {
	var victims []victim
	for p.entries.Len() > p.capacity {
		oldest := p.entries.Oldest()
		if oldest == nil {
			break
		}
		victims = append(victims, victim{key: oldest.Key, h: oldest.Value})
		p.entries.Delete(oldest.Key)
	}
	return victims
}

// evict runs release hooks. Called without the lock held, since a release
// may call back into the pool.
func (p *Pool) evict(victims []victim) {
	for _, v := range victims {
		released := v.h.Release()
		if p.onEvict != nil {
			p.onEvict(v.key, released)
		}
	}
}
