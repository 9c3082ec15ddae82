package eviction

import "weak"

// Handle is what the pool holds for each key. It must not keep the
// underlying object alive.
type Handle interface {
	// Release asks the owner to drop its content. It reports false when
	// the object is already gone, in which case nothing happens.
	Release() bool

	// Live reports whether the object can still be resolved.
	Live() bool
}

type weakHandle[T any] struct {
	ptr     weak.Pointer[T]
	release func(*T)
}

// Weak returns a Handle that references p weakly and calls release(p) on
// eviction while p is still reachable.
func Weak[T any](p *T, release func(*T)) Handle {
	return &weakHandle[T]{ptr: weak.Make(p), release: release}
}

func (h *weakHandle[T]) Live() bool { return h.ptr.Value() != nil }

func (h *weakHandle[T]) Release() bool {
	v := h.ptr.Value()
	if v == nil {
		return false
	}
	if h.release != nil {
		h.release(v)
	}
	return true
}
