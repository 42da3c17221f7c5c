package present

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/sarchlab/vgpu/gpu/protocol"
)

// channelOrder gives the byte index of red, green, blue and alpha within a
// pixel. An alpha index of -1 means the pixel is opaque.
type channelOrder struct {
	r, g, b, a int
}

// The format names give the byte order in memory.
var channelOrders = map[protocol.Format]channelOrder{
	protocol.FormatB8G8R8A8Unorm: {r: 2, g: 1, b: 0, a: 3},
	protocol.FormatB8G8R8X8Unorm: {r: 2, g: 1, b: 0, a: -1},
	protocol.FormatA8R8G8B8Unorm: {r: 1, g: 2, b: 3, a: 0},
	protocol.FormatX8R8G8B8Unorm: {r: 1, g: 2, b: 3, a: -1},
	protocol.FormatR8G8B8A8Unorm: {r: 0, g: 1, b: 2, a: 3},
	protocol.FormatX8B8G8R8Unorm: {r: 3, g: 2, b: 1, a: -1},
	protocol.FormatA8B8G8R8Unorm: {r: 3, g: 2, b: 1, a: 0},
	protocol.FormatR8G8B8X8Unorm: {r: 0, g: 1, b: 2, a: -1},
}

// frameImage reads the pixels of a framebuffer in place.
type frameImage struct {
	data  []byte
	fb    Framebuffer
	order channelOrder
}

func newFrameImage(data []byte, fb Framebuffer) (*frameImage, error) {
	order, ok := channelOrders[fb.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %d", fb.Format)
	}

	err := fb.Check(uint64(len(data)))
	if err != nil {
		return nil, err
	}

	return &frameImage{data: data, fb: fb, order: order}, nil
}

func (f *frameImage) ColorModel() color.Model {
	return color.RGBAModel
}

func (f *frameImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(f.fb.Width), int(f.fb.Height))
}

func (f *frameImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(f.Bounds()) {
		return color.RGBA{}
	}

	off := int(f.fb.Offset) + y*int(f.fb.Stride) + x*4
	p := f.data[off : off+4]

	a := uint8(0xff)
	if f.order.a >= 0 {
		a = p[f.order.a]
	}

	return color.RGBA{R: p[f.order.r], G: p[f.order.g], B: p[f.order.b], A: a}
}

// rasterize draws the damaged part of a frame into dst, which must be
// sized to the framebuffer. An empty damage rectangle redraws everything.
func rasterize(dst *image.RGBA, data []byte, fb Framebuffer,
	damage image.Rectangle,
) error {
	src, err := newFrameImage(data, fb)
	if err != nil {
		return err
	}

	r := src.Bounds()
	if !damage.Empty() {
		r = damage.Intersect(r)
	}

	draw.Draw(dst, r, src, r.Min, draw.Src)

	return nil
}
