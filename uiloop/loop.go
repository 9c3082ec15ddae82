// Package uiloop delivers notifications on a single goroutine, for
// rendering surfaces that must not be touched concurrently.
package uiloop

import (
	"context"
	"errors"
	"fmt"

	lg "github.com/Andrej220/go-utils/zlog"
	eventloop "github.com/joeycumines/go-eventloop"
)

// Loop runs dispatched callbacks one at a time, in submission order.
// It implements lazyload.Dispatcher.
type Loop struct {
	ctx  context.Context
	loop *eventloop.Loop
	done chan struct{}
}

// New starts a loop. Cancelling ctx stops it without draining.
func New(ctx context.Context) (*Loop, error) {
	el, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("uiloop: create loop: %w", err)
	}
	l := &Loop{ctx: ctx, loop: el, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		err := el.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, eventloop.ErrLoopTerminated) {
			lg.FromContext(ctx).Error("UI loop stopped", lg.Any("error", err))
		}
	}()
	return l, nil
}

// Dispatch queues fn to run on the loop goroutine.
func (l *Loop) Dispatch(fn func()) error {
	if err := l.loop.Submit(fn); err != nil {
		return fmt.Errorf("uiloop: dispatch: %w", err)
	}
	return nil
}

// Close drains queued callbacks and stops the loop, or gives up when ctx
// expires. Calling Close again is a no-op.
func (l *Loop) Close(ctx context.Context) error {
	err := l.loop.Shutdown(ctx)
	if errors.Is(err, eventloop.ErrLoopTerminated) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("uiloop: shutdown: %w", err)
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
