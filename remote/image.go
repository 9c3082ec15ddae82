// Package remote is a producer of lazily loaded images fetched by URL.
//
// Animated GIFs are served by the heavy pool of their tag: the preview is
// the first frame, the full version every frame. Still images preview as a
// subsampled copy and promote to full resolution, optionally from a
// separate URL.
package remote

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/azargarov/lazyload"
	"github.com/azargarov/lazyload/eviction"
	"github.com/azargarov/lazyload/workerpool"
)

// DefaultSampling is the preview subsampling factor of still images.
const DefaultSampling = 2

// Source locates an image.
type Source struct {
	URL string

	// FullURL is the full-resolution location. Empty means URL.
	FullURL string

	// MIME is the content type, if known.
	MIME string
}

// Animated reports whether the source is a GIF, by MIME type or by the
// URL suffix.
func (s Source) Animated() bool {
	if s.MIME != "" && strings.HasPrefix(s.MIME, "image/gif") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(s.URL), ".gif")
}

// FullLocation returns the URL the full version is fetched from.
func (s Source) FullLocation() string {
	if s.FullURL == "" {
		return s.URL
	}
	return s.FullURL
}

// ImageOptions configure an Image.
type ImageOptions struct {
	Tag        any
	Priority   int
	Sampling   int
	Retry      *workerpool.RetryPolicy
	Eviction   *eviction.Pool
	Dispatcher lazyload.Dispatcher

	OnChange    func()
	OnError     func(error)
	OnFullError func(error)
}

// Image is a remote picture with a preview and a full tier.
type Image struct {
	src      Source
	animated bool
	res      *lazyload.Tiered[*Picture]

	autoPlay atomic.Bool
	promoted atomic.Bool
}

// NewImage prepares an image; nothing is fetched until Start or
// RequestContent.
func NewImage(ctx context.Context, reg *workerpool.Registry, src Source, fetcher Fetcher, opts ImageOptions) (*Image, error) {
	if src.URL == "" {
		return nil, errors.New("remote: source URL is required")
	}
	if fetcher == nil {
		fetcher = &HTTPFetcher{}
	}
	if opts.Sampling <= 0 {
		opts.Sampling = DefaultSampling
	}

	img := &Image{src: src, animated: src.Animated()}
	class := workerpool.ClassNormal
	if img.animated {
		class = workerpool.ClassHeavy
	}

	preview := func(ctx context.Context) (*Picture, error) {
		rc, err := fetcher.Open(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return DecodePreview(rc, img.animated, opts.Sampling)
	}
	full := func(ctx context.Context) (*Picture, error) {
		rc, err := fetcher.Open(ctx, src.FullLocation())
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return DecodeFull(rc, img.animated)
	}

	res, err := lazyload.NewTiered(ctx, reg, lazyload.TieredOptions[*Picture]{
		Options: lazyload.Options[*Picture]{
			Tag:        opts.Tag,
			Class:      class,
			Name:       src.URL,
			Key:        src.URL,
			Produce:    preview,
			Release:    (*Picture).Release,
			OnError:    opts.OnError,
			OnChange:   func() { img.changed(opts.OnChange) },
			Dispatcher: opts.Dispatcher,
			Priority:   opts.Priority,
			Retry:      opts.Retry,
			Eviction:   opts.Eviction,
		},
		ProduceFull: full,
		OnFullError: opts.OnFullError,
	})
	if err != nil {
		return nil, err
	}
	img.res = res
	return img, nil
}

// changed promotes a started animation once its preview is shown.
func (i *Image) changed(next func()) {
	if i.res != nil {
		switch i.res.Tier() {
		case lazyload.TierNone:
			i.promoted.Store(false)
		case lazyload.TierPreview:
			if i.autoPlay.Load() && i.promoted.CompareAndSwap(false, true) {
				i.res.PromoteToFull()
			}
		}
	}
	if next != nil {
		next()
	}
}

// Source returns where the image comes from.
func (i *Image) Source() Source { return i.src }

// Animated reports whether the image is served as an animation.
func (i *Image) Animated() bool { return i.animated }

// Resource exposes the underlying tiered resource.
func (i *Image) Resource() *lazyload.Tiered[*Picture] { return i.res }

// Start requests the preview. Animations are promoted to all frames as
// soon as the preview is ready.
func (i *Image) Start() {
	i.autoPlay.Store(i.animated)
	i.res.RequestContent()
	if i.animated && i.res.Tier() == lazyload.TierPreview && i.promoted.CompareAndSwap(false, true) {
		i.res.PromoteToFull()
	}
}

// Stop cancels pending loads and disables automatic promotion.
func (i *Image) Stop() {
	i.autoPlay.Store(false)
	i.res.StopLoading()
}

// RequestContent returns the best picture available, scheduling the
// preview if nothing is loaded.
func (i *Image) RequestContent() (*Picture, bool) { return i.res.RequestContent() }

func (i *Image) OnVisibilityChanged(visible bool) { i.res.OnVisibilityChanged(visible) }

func (i *Image) Close() error { return i.res.Close() }
