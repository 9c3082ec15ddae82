package lazyload

import (
	"errors"

	"github.com/azargarov/lazyload/workerpool"
)

var (
	// ErrProducerFailed wraps every producer error and recovered producer
	// panic reported to OnError.
	ErrProducerFailed = errors.New("lazyload: producer failed")

	// ErrNoContent is the cause reported when a producer returns neither
	// content nor an error.
	ErrNoContent = errors.New("lazyload: producer returned no content")

	// ErrStaleCompletion marks a result that arrived for an older
	// generation. It is logged, never surfaced.
	ErrStaleCompletion = errors.New("lazyload: stale completion")

	// ErrClosed is reported by Err once a resource has been closed.
	ErrClosed = errors.New("lazyload: resource closed")

	// ErrRejected is reported when the pool queue is full. It is terminal
	// for the request that triggered it.
	ErrRejected = workerpool.ErrRejected
)
