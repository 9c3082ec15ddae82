package remote

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"
)

// ErrNoFrames is returned for animations without any frame.
var ErrNoFrames = errors.New("remote: image has no frames")

// DecodePreview decodes the cheap version of an image: the first frame of
// an animation, or a still image subsampled by sampling in each dimension.
func DecodePreview(r io.Reader, animated bool, sampling int) (*Picture, error) {
	if animated {
		frame, err := gif.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("remote: decode gif preview: %w", err)
		}
		return newPicture([]image.Image{frame}, nil, true), nil
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("remote: decode preview: %w", err)
	}
	if sampling > 1 {
		img = subsample(img, sampling)
	}
	return newPicture([]image.Image{img}, nil, false), nil
}

// DecodeFull decodes every frame of an animation, or a still image at
// full resolution.
func DecodeFull(r io.Reader, animated bool) (*Picture, error) {
	if !animated {
		img, _, err := image.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("remote: decode image: %w", err)
		}
		return newPicture([]image.Image{img}, nil, false), nil
	}

	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("remote: decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, ErrNoFrames
	}
	frames := composeFrames(g)
	delays := make([]time.Duration, len(g.Delay))
	for i, d := range g.Delay {
		delays[i] = time.Duration(d) * 10 * time.Millisecond
	}
	return newPicture(frames, delays, len(frames) > 1), nil
}

// composeFrames renders each GIF frame onto the logical screen, honouring
// the disposal method of the previous frame.
func composeFrames(g *gif.GIF) []image.Image {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)
	frames := make([]image.Image, 0, len(g.Image))

	for i, src := range g.Image {
		var saved *image.RGBA
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			saved = image.NewRGBA(bounds)
			draw.Draw(saved, bounds, canvas, bounds.Min, draw.Src)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
		frame := image.NewRGBA(bounds)
		draw.Draw(frame, bounds, canvas, bounds.Min, draw.Src)
		frames = append(frames, frame)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return frames
}

func subsample(img image.Image, n int) image.Image {
	b := img.Bounds()
	w, h := (b.Dx()+n-1)/n, (b.Dy()+n-1)/n
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*n, b.Min.Y+y*n))
		}
	}
	return dst
}
