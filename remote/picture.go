package remote

import (
	"image"
	"sync"
	"time"
)

// Picture is decoded image content: one frame for still images, every
// frame for a fully loaded animation.
type Picture struct {
	Width, Height int
	Animated      bool

	mu       sync.Mutex
	frames   []image.Image
	delays   []time.Duration
	released bool
}

func newPicture(frames []image.Image, delays []time.Duration, animated bool) *Picture {
	b := frames[0].Bounds()
	return &Picture{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Animated: animated,
		frames:   frames,
		delays:   delays,
	}
}

// Frames returns the decoded frames, or nil once released.
func (p *Picture) Frames() []image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Delays returns per-frame display durations of an animation.
func (p *Picture) Delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delays
}

// Release drops the pixel buffers.
func (p *Picture) Release() {
	p.mu.Lock()
	p.frames, p.delays = nil, nil
	p.released = true
	p.mu.Unlock()
}

func (p *Picture) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}
