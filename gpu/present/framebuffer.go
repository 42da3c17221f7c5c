package present

import (
	"fmt"

	"github.com/sarchlab/vgpu/gpu/protocol"
)

// Framebuffer describes how the pixels of a scanout are laid out in the
// memory of a resource.
type Framebuffer struct {
	Width  uint32
	Height uint32
	Stride uint32
	Format protocol.Format
	Offset uint64
}

// End returns the offset just past the last pixel.
func (fb Framebuffer) End() uint64 {
	if fb.Width == 0 || fb.Height == 0 {
		return fb.Offset
	}

	return fb.Offset + uint64(fb.Stride)*uint64(fb.Height-1) +
		uint64(fb.Width)*uint64(fb.Format.BytesPerPixel())
}

// Check validates the layout against a buffer of size bytes.
func (fb Framebuffer) Check(size uint64) error {
	bpp := fb.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("unknown format %d", fb.Format)
	}

	if fb.Width == 0 || fb.Height == 0 {
		return fmt.Errorf("empty framebuffer %dx%d", fb.Width, fb.Height)
	}

	if uint64(fb.Stride) < uint64(fb.Width)*uint64(bpp) {
		return fmt.Errorf("stride %d shorter than a row of %d pixels",
			fb.Stride, fb.Width)
	}

	if fb.End() > size {
		return fmt.Errorf("framebuffer ends at %d, buffer holds %d",
			fb.End(), size)
	}

	return nil
}

// PackRows copies the visible rows of the framebuffer out of data into a
// tightly packed buffer.
func PackRows(data []byte, fb Framebuffer) ([]byte, error) {
	err := fb.Check(uint64(len(data)))
	if err != nil {
		return nil, err
	}

	row := int(fb.Width * fb.Format.BytesPerPixel())
	out := make([]byte, 0, row*int(fb.Height))

	for y := 0; y < int(fb.Height); y++ {
		start := int(fb.Offset) + y*int(fb.Stride)
		out = append(out, data[start:start+row]...)
	}

	return out, nil
}
