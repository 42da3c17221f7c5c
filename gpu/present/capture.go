package present

import (
	"image"
	"sync"
)

// Frame is a presented frame kept by the capture backends.
type Frame struct {
	Source    string
	Width     uint32
	Height    uint32
	SurfaceID uint32

	// Pixels are the packed rows in the framebuffer format, or nil for
	// surfaces.
	Pixels []byte
}

// Recorder collects the frames of the capture backends.
type Recorder struct {
	lock   sync.Mutex
	frames []Frame
}

func (r *Recorder) add(f Frame) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.frames = append(r.frames, f)
}

// Frames returns a copy of the frames captured so far.
func (r *Recorder) Frames() []Frame {
	r.lock.Lock()
	defer r.lock.Unlock()

	frames := make([]Frame, len(r.frames))
	copy(frames, r.frames)

	return frames
}

// Last returns the last captured frame.
func (r *Recorder) Last() (Frame, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if len(r.frames) == 0 {
		return Frame{}, false
	}

	return r.frames[len(r.frames)-1], true
}

// CaptureSwapchain is a swapchain backend that keeps every frame.
type CaptureSwapchain struct {
	*Recorder

	created int
}

// NewCaptureSwapchain creates a capture swapchain backend writing into
// recorder.
func NewCaptureSwapchain(recorder *Recorder) *CaptureSwapchain {
	return &CaptureSwapchain{Recorder: recorder}
}

// Name returns "capture".
func (b *CaptureSwapchain) Name() string {
	return "capture"
}

// Created returns how many swapchains were created.
func (b *CaptureSwapchain) Created() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.created
}

// Create creates a swapchain.
func (b *CaptureSwapchain) Create(width, height uint32) (Swapchain, error) {
	b.lock.Lock()
	b.created++
	b.lock.Unlock()

	return &captureChain{recorder: b.Recorder, width: width, height: height}, nil
}

type captureChain struct {
	recorder      *Recorder
	width, height uint32
	destroyed     bool
}

func (c *captureChain) Size() (uint32, uint32) {
	return c.width, c.height
}

func (c *captureChain) Resize(width, height uint32) error {
	c.width, c.height = width, height
	return nil
}

func (c *captureChain) Present(data []byte, fb Framebuffer) error {
	if c.destroyed {
		return ErrBackendNotAvailable
	}

	pixels, err := PackRows(data, fb)
	if err != nil {
		return err
	}

	c.recorder.add(Frame{
		Source: "swapchain",
		Width:  fb.Width,
		Height: fb.Height,
		Pixels: pixels,
	})

	return nil
}

func (c *captureChain) Destroy() {
	c.destroyed = true
}

// CaptureSurfaces keeps the ids of the surfaces presented.
type CaptureSurfaces struct {
	*Recorder
}

// Present records the surface.
func (s CaptureSurfaces) Present(surfaceID uint32, fb Framebuffer) error {
	s.add(Frame{
		Source:    "surface",
		Width:     fb.Width,
		Height:    fb.Height,
		SurfaceID: surfaceID,
	})

	return nil
}

// CaptureConsole keeps the images shown on the console.
type CaptureConsole struct {
	NullConsole

	recorder *Recorder
	last     *image.RGBA
}

// NewCaptureConsole creates a console writing into recorder.
func NewCaptureConsole(recorder *Recorder) *CaptureConsole {
	return &CaptureConsole{recorder: recorder}
}

// Update records a copy of the image.
func (c *CaptureConsole) Update(img *image.RGBA) {
	b := img.Bounds()

	c.recorder.add(Frame{
		Source: "console",
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Pixels: append([]byte(nil), img.Pix...),
	})

	c.lock.Lock()
	c.last = img
	c.lock.Unlock()
}

// Image returns the last image shown.
func (c *CaptureConsole) Image() *image.RGBA {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.last
}
