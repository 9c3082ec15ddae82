package lazyload_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azargarov/lazyload"
	"github.com/azargarov/lazyload/eviction"
	"github.com/azargarov/lazyload/workerpool"
)

type tieredFixture struct {
	r           *lazyload.Tiered[*content]
	preview     *content
	previewRuns counter
	fullRuns    counter
	fullErrs    *hookCounter
	baseErrs    *hookCounter
}

func newTieredFixture(t *testing.T, reg *testRegistry, tag string, full func(context.Context) (*content, error)) *tieredFixture {
	t.Helper()

	f := &tieredFixture{
		preview:  &content{name: "preview"},
		fullErrs: &hookCounter{},
		baseErrs: &hookCounter{},
	}
	r, err := lazyload.NewTiered(context.Background(), reg.Registry, lazyload.TieredOptions[*content]{
		Options: lazyload.Options[*content]{
			Tag:     tag,
			Name:    tag,
			Release: releaseContent,
			OnError: f.baseErrs.record,
			Produce: func(context.Context) (*content, error) {
				f.previewRuns.enter()
				defer f.previewRuns.exit()
				return f.preview, nil
			},
		},
		ProduceFull: func(ctx context.Context) (*content, error) {
			f.fullRuns.enter()
			defer f.fullRuns.exit()
			return full(ctx)
		},
		OnFullError: f.fullErrs.record,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	f.r = r
	return f
}

func (f *tieredFixture) loadPreview(t *testing.T) {
	t.Helper()
	f.r.RequestContent()
	require.Eventually(t, func() bool { return f.r.Tier() == lazyload.TierPreview }, eventually, time.Millisecond)
}

func TestNewTieredRequiresFullProducer(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{})
	_, err := lazyload.NewTiered(context.Background(), reg.Registry, lazyload.TieredOptions[*content]{
		Options: lazyload.Options[*content]{
			Produce: func(context.Context) (*content, error) { return &content{}, nil },
		},
	})
	assert.Error(t, err)
}

func TestPromotionReplacesPreview(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{})
	full := &content{name: "full"}
	f := newTieredFixture(t, reg, "promote", func(context.Context) (*content, error) { return full, nil })

	assert.Equal(t, lazyload.TierNone, f.r.Tier())
	f.loadPreview(t)

	f.r.PromoteToFull()
	require.Eventually(t, f.r.IsFull, eventually, time.Millisecond)

	c, ok := f.r.RequestContent()
	require.True(t, ok)
	assert.Same(t, full, c)
	assert.Equal(t, lazyload.TierFull, f.r.Tier())
	require.Eventually(t, func() bool { return f.preview.Released() == 1 }, eventually, time.Millisecond)
	assert.False(t, f.r.IsPromoting())

	// once Full, promotion is a no-op
	f.r.PromoteToFull()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, f.fullRuns.Calls())
	assert.Equal(t, 1, f.previewRuns.Calls())
}

func TestPromotionFailureKeepsPreview(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{})
	errDecode := errors.New("decode failed")
	f := newTieredFixture(t, reg, "isolate", func(context.Context) (*content, error) { return nil, errDecode })

	f.loadPreview(t)
	f.r.PromoteToFull()
	require.Eventually(t, func() bool { return len(f.fullErrs.Errors()) == 1 }, eventually, time.Millisecond)

	c, ok := f.r.RequestContent()
	require.True(t, ok)
	assert.Same(t, f.preview, c)
	assert.Equal(t, lazyload.TierPreview, f.r.Tier())
	assert.Equal(t, lazyload.Ready, f.r.State())
	assert.Zero(t, f.preview.Released())
	assert.ErrorIs(t, f.fullErrs.Errors()[0], errDecode)
	assert.Empty(t, f.baseErrs.Errors())
	assert.False(t, f.r.IsPromoting())
}

func TestPromotionIsAtMostOneInFlight(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{Workers: 3})
	gate := make(chan struct{})
	f := newTieredFixture(t, reg, "once", func(context.Context) (*content, error) {
		<-gate
		return &content{name: "full"}, nil
	})

	f.loadPreview(t)
	for i := 0; i < 5; i++ {
		f.r.PromoteToFull()
	}
	assert.True(t, f.r.IsPromoting())

	// a pending promotion never schedules a preview load
	c, ok := f.r.RequestContent()
	require.True(t, ok)
	assert.Same(t, f.preview, c)

	close(gate)
	require.Eventually(t, f.r.IsFull, eventually, time.Millisecond)
	assert.Equal(t, 1, f.fullRuns.Calls())
	assert.Equal(t, 1, f.previewRuns.Calls())
}

func TestPromotionSupersedesPendingPreview(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{Workers: 1})
	release := occupy(t, reg, "supersede", 1)

	f := newTieredFixture(t, reg, "supersede", func(context.Context) (*content, error) {
		return &content{name: "full"}, nil
	})

	f.r.RequestContent()
	assert.Equal(t, lazyload.Loading, f.r.State())
	f.r.PromoteToFull()
	assert.Equal(t, lazyload.Absent, f.r.State())

	release()
	require.Eventually(t, f.r.IsFull, eventually, time.Millisecond)
	assert.Zero(t, f.previewRuns.Calls())
	c, ok := f.r.Peek()
	require.True(t, ok)
	assert.Equal(t, "full", c.name)
}

func TestPromotionRejected(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{Workers: 1, QueueCapacity: 1})

	f := newTieredFixture(t, reg, "reject", func(context.Context) (*content, error) {
		return &content{name: "full"}, nil
	})
	f.loadPreview(t)

	release := occupy(t, reg, "reject", 1)
	filler := newResource(t, reg, lazyload.Options[*content]{
		Tag:     "reject",
		Produce: func(context.Context) (*content, error) { return &content{}, nil },
	})
	filler.RequestContent()

	f.r.PromoteToFull()
	errs := f.fullErrs.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], lazyload.ErrRejected)
	assert.Equal(t, lazyload.TierPreview, f.r.Tier())
	assert.False(t, f.r.IsPromoting())
	release()
}

func TestUnloadDiscardsPendingPromotion(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{})
	started := make(chan struct{})
	gate := make(chan struct{})
	full := &content{name: "full"}

	f := newTieredFixture(t, reg, "unload", func(context.Context) (*content, error) {
		close(started)
		<-gate
		return full, nil
	})
	f.loadPreview(t)
	f.r.PromoteToFull()
	<-started

	f.r.Unload()
	assert.Equal(t, lazyload.TierNone, f.r.Tier())
	assert.Equal(t, 1, f.preview.Released())
	close(gate)

	require.Eventually(t, func() bool { return full.Released() == 1 }, eventually, time.Millisecond)
	assert.False(t, f.r.IsFull())
	assert.Equal(t, lazyload.Absent, f.r.State())
}

func TestTieredTake(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{})
	f := newTieredFixture(t, reg, "take", func(context.Context) (*content, error) {
		return &content{name: "full"}, nil
	})
	f.loadPreview(t)
	f.r.PromoteToFull()
	require.Eventually(t, f.r.IsFull, eventually, time.Millisecond)

	c, ok := f.r.Take()
	require.True(t, ok)
	assert.Equal(t, "full", c.name)
	assert.Zero(t, c.Released())
	assert.Equal(t, lazyload.TierNone, f.r.Tier())
}

func TestTieredEviction(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{})
	pool := eviction.New(eviction.Options{Capacity: 1})

	var fullErr atomic.Int32
	mk := func(key string) *lazyload.Tiered[*content] {
		r, err := lazyload.NewTiered(context.Background(), reg.Registry, lazyload.TieredOptions[*content]{
			Options: lazyload.Options[*content]{
				Key:      key,
				Eviction: pool,
				Release:  releaseContent,
				Produce:  func(context.Context) (*content, error) { return &content{name: key}, nil },
			},
			ProduceFull: func(context.Context) (*content, error) { return &content{name: key + "-full"}, nil },
			OnFullError: func(error) { fullErr.Add(1) },
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		r.RequestContent()
		require.Eventually(t, func() bool { return r.Tier() == lazyload.TierPreview }, eventually, time.Millisecond)
		return r
	}

	a := mk("a")
	a.PromoteToFull()
	require.Eventually(t, a.IsFull, eventually, time.Millisecond)
	a.OnVisibilityChanged(true)

	b := mk("b")
	b.OnVisibilityChanged(true)

	assert.Equal(t, lazyload.TierNone, a.Tier())
	assert.False(t, a.IsFull())
	assert.Equal(t, lazyload.TierPreview, b.Tier())
	assert.Zero(t, fullErr.Load())
}

func TestStopLoadingDiscardsRunningPromotion(t *testing.T) {
	reg := newRegistry(t, workerpool.Options{})
	full := &content{name: "full"}
	gate := make(chan struct{})
	f := newTieredFixture(t, reg, "stop", func(context.Context) (*content, error) {
		<-gate
		return full, nil
	})

	f.loadPreview(t)
	f.r.PromoteToFull()
	require.Eventually(t, func() bool { return f.fullRuns.Calls() == 1 }, eventually, time.Millisecond)

	f.r.StopLoading()
	assert.False(t, f.r.IsPromoting())
	close(gate)

	require.Eventually(t, func() bool { return full.Released() == 1 }, eventually, time.Millisecond)
	assert.False(t, f.r.IsFull())
	assert.Equal(t, lazyload.TierPreview, f.r.Tier())
	c, ok := f.r.Peek()
	require.True(t, ok)
	assert.Same(t, f.preview, c)
	assert.Empty(t, f.fullErrs.Errors())
}
