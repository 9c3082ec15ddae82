package uiloop_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azargarov/lazyload"
	"github.com/azargarov/lazyload/uiloop"
	"github.com/azargarov/lazyload/workerpool"
)

var _ lazyload.Dispatcher = (*uiloop.Loop)(nil)

func newLoop(t *testing.T) *uiloop.Loop {
	t.Helper()

	l, err := uiloop.New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Close(ctx)
	})
	return l
}

func TestDispatchRunsSerially(t *testing.T) {
	l := newLoop(t)

	var (
		active  atomic.Int32
		overlap atomic.Bool
		order   []int
		wg      sync.WaitGroup
	)
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		require.NoError(t, l.Dispatch(func() {
			defer wg.Done()
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			order = append(order, i)
			active.Add(-1)
		}))
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestDispatchAfterClose(t *testing.T) {
	l, err := uiloop.New(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))
	require.NoError(t, l.Close(ctx))

	assert.Error(t, l.Dispatch(func() {}))
}

func TestResourceNotificationsOnLoop(t *testing.T) {
	l := newLoop(t)

	reg := workerpool.NewRegistry(context.Background(), workerpool.RegistryOptions{})
	defer reg.Shutdown(context.Background())

	var (
		active  atomic.Int32
		overlap atomic.Bool
		changes atomic.Int32
	)
	onChange := func() {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		changes.Add(1)
		active.Add(-1)
	}

	var rs []*lazyload.Resource[[]byte]
	for i := 0; i < 10; i++ {
		r, err := lazyload.New(context.Background(), reg, lazyload.Options[[]byte]{
			Tag:        "loop",
			Dispatcher: l,
			OnChange:   onChange,
			Produce:    func(context.Context) ([]byte, error) { return []byte("x"), nil },
		})
		require.NoError(t, err)
		defer r.Close()
		rs = append(rs, r)
	}
	for _, r := range rs {
		r.RequestContent()
	}

	require.Eventually(t, func() bool { return changes.Load() == 20 }, 2*time.Second, time.Millisecond)
	assert.False(t, overlap.Load())
}
