package present

import (
	"errors"
	"image"
	"sync"
)

// ErrBackendNotAvailable is returned by backends that cannot present on
// this host.
var ErrBackendNotAvailable = errors.New("present: backend not available")

// Swapchain is the device-wide surface frames are blitted to.
type Swapchain interface {
	Size() (width, height uint32)
	Resize(width, height uint32) error
	Present(data []byte, fb Framebuffer) error
	Destroy()
}

// SwapchainBackend creates the swapchain from the window of the display.
type SwapchainBackend interface {
	Name() string
	Create(width, height uint32) (Swapchain, error)
}

// SurfaceProvider shows platform surfaces exported by the renderer without
// copying.
type SurfaceProvider interface {
	Present(surfaceID uint32, fb Framebuffer) error
}

// DisplayConsole shows CPU images.
type DisplayConsole interface {
	Size() (width, height uint32)
	Resize(width, height uint32)
	Update(img *image.RGBA)
}

// NullSwapchain is a swapchain backend for hosts without a window.
type NullSwapchain struct{}

// Name returns "null".
func (NullSwapchain) Name() string {
	return "null"
}

// Create always fails.
func (NullSwapchain) Create(_, _ uint32) (Swapchain, error) {
	return nil, ErrBackendNotAvailable
}

// NullSurfaceProvider cannot show any surface.
type NullSurfaceProvider struct{}

// Present always fails.
func (NullSurfaceProvider) Present(uint32, Framebuffer) error {
	return ErrBackendNotAvailable
}

// NullConsole accepts images and drops them.
type NullConsole struct {
	lock          sync.Mutex
	width, height uint32
}

// Size returns the last size set.
func (c *NullConsole) Size() (uint32, uint32) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.width, c.height
}

// Resize records the size.
func (c *NullConsole) Resize(width, height uint32) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.width, c.height = width, height
}

// Update drops the image.
func (c *NullConsole) Update(*image.RGBA) {}
