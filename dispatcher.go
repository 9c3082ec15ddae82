package lazyload

// Dispatcher delivers notifications to the rendering side. Implementations
// that serve a single-threaded surface must marshal fn onto that thread.
type Dispatcher interface {
	Dispatch(fn func()) error
}

// DirectDispatcher runs fn on the calling goroutine, which may be a pool
// worker.
type DirectDispatcher struct{}

func (DirectDispatcher) Dispatch(fn func()) error {
	fn()
	return nil
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func()) error

func (f DispatcherFunc) Dispatch(fn func()) error { return f(fn) }
