package device

import (
	"image"
	"log"

	"github.com/sarchlab/vgpu/gpu/gpuerr"
	"github.com/sarchlab/vgpu/gpu/present"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/resource"
)

// minScanoutBlobSize is the smallest framebuffer a blob scanout accepts.
const minScanoutBlobSize = 16

// Scanout is a display output slot.
type Scanout struct {
	ID uint32

	// ResourceID is the bound resource, or 0.
	ResourceID uint32

	FB present.Framebuffer

	// Rect is the part of the framebuffer shown on the display.
	Rect image.Rectangle
}

// Bound tells if a resource is shown on the scanout.
func (s *Scanout) Bound() bool {
	return s.ResourceID != 0
}

func (s *Scanout) unbind() {
	s.ResourceID = 0
	s.FB = present.Framebuffer{}
	s.Rect = image.Rectangle{}
}

func toRectangle(r protocol.Rect) image.Rectangle {
	return image.Rect(int(r.X), int(r.Y),
		int(r.X)+int(r.Width), int(r.Y)+int(r.Height))
}

// Scanouts returns a copy of the scanouts.
func (d *Device) Scanouts() []Scanout {
	d.lock.Lock()
	defer d.lock.Unlock()

	list := make([]Scanout, len(d.scanouts))
	for i, s := range d.scanouts {
		list[i] = *s
	}

	return list
}

func (d *Device) scanout(op string, id uint32) (*Scanout, error) {
	if int(id) >= len(d.scanouts) {
		return nil, gpuerr.Newf(gpuerr.UnknownScanout, op, id,
			"%d scanouts", len(d.scanouts))
	}

	return d.scanouts[id], nil
}

func (d *Device) setScanout(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "set scanout"

	var ss protocol.SetScanout
	if err := cmd.Read(&ss); err != nil {
		return nil, err
	}

	s, err := d.scanout(op, ss.ScanoutID)
	if err != nil {
		return nil, err
	}

	if ss.ResourceID == 0 {
		d.disableScanout(s)
		return nil, nil
	}

	res, err := d.resources.Get(op, ss.ResourceID)
	if err != nil {
		return nil, err
	}

	fb := d.legacyFramebuffer(res)
	if !within(ss.Rect.X, ss.Rect.Width, fb.Width) ||
		!within(ss.Rect.Y, ss.Rect.Height, fb.Height) {
		return nil, gpuerr.Newf(gpuerr.InvalidParameter, op, ss.ScanoutID,
			"rect %+v outside of %dx%d", ss.Rect, fb.Width, fb.Height)
	}

	d.bindScanout(s, res, fb, toRectangle(ss.Rect))

	return nil, nil
}

// legacyFramebuffer describes a resource shown by SET_SCANOUT: the whole
// resource, tightly packed. Layouts the device does not know come from the
// renderer.
func (d *Device) legacyFramebuffer(res *resource.Resource) present.Framebuffer {
	width, height, format := res.Width, res.Height, protocol.Format(res.Format)

	if (width == 0 || height == 0) && d.caps.ResourceInfoSrc != nil {
		info, err := d.caps.ResourceInfoSrc.ResourceInfo(res.ID)
		if err == nil {
			width, height = info.Width, info.Height
			format = protocol.Format(info.Format)
		}
	}

	if format.BytesPerPixel() != 4 {
		format = protocol.FormatB8G8R8X8Unorm
	}

	return present.Framebuffer{
		Width:  width,
		Height: height,
		Stride: width * 4,
		Format: format,
	}
}

func (d *Device) setScanoutBlob(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "set scanout blob"

	var ss protocol.SetScanoutBlob
	if err := cmd.Read(&ss); err != nil {
		return nil, err
	}

	s, err := d.scanout(op, ss.ScanoutID)
	if err != nil {
		return nil, err
	}

	if ss.ResourceID == 0 {
		d.disableScanout(s)
		return nil, nil
	}

	if ss.Width < minScanoutBlobSize || ss.Height < minScanoutBlobSize ||
		!within(ss.Rect.X, ss.Rect.Width, ss.Width) ||
		!within(ss.Rect.Y, ss.Rect.Height, ss.Height) {
		return nil, gpuerr.Newf(gpuerr.InvalidParameter, op, ss.ScanoutID,
			"rect %+v in a %dx%d framebuffer", ss.Rect, ss.Width, ss.Height)
	}

	res, err := d.resources.Get(op, ss.ResourceID)
	if err != nil {
		return nil, err
	}

	fb := present.Framebuffer{
		Width:  ss.Width,
		Height: ss.Height,
		Stride: ss.Strides[0],
		Format: protocol.Format(ss.Format),
		Offset: uint64(ss.Offsets[0]),
	}

	if err := fb.Check(res.Size); err != nil {
		return nil, gpuerr.Wrap(gpuerr.InvalidParameter, op, res.ID, err)
	}

	d.bindScanout(s, res, fb, toRectangle(ss.Rect))

	return nil, nil
}

func (d *Device) bindScanout(
	s *Scanout,
	res *resource.Resource,
	fb present.Framebuffer,
	rect image.Rectangle,
) {
	s.ResourceID = res.ID
	s.FB = fb
	s.Rect = rect

	d.present(s, res, rect, present.ReasonSetScanout)
	d.startPresentTimer()
}

func (d *Device) disableScanout(s *Scanout) {
	s.unbind()

	if !d.anyScanoutBound() {
		d.presentActive = false
	}
}

// unbindResource disables the scanouts that show a destroyed resource.
func (d *Device) unbindResource(resID uint32) {
	for _, s := range d.scanouts {
		if s.ResourceID == resID {
			d.disableScanout(s)
		}
	}
}

func (d *Device) anyScanoutBound() bool {
	for _, s := range d.scanouts {
		if s.Bound() {
			return true
		}
	}

	return false
}

func (d *Device) present(
	s *Scanout,
	res *resource.Resource,
	damage image.Rectangle,
	reason string,
) present.Outcome {
	return d.pipeline.Present(present.Request{
		ScanoutID: s.ID,
		Resource:  res,
		FB:        s.FB,
		Damage:    damage,
		Reason:    reason,
		TaskID:    d.currentTask(),
	})
}

// presentBound presents every bound scanout.
func (d *Device) presentBound(reason string) {
	for _, s := range d.scanouts {
		if !s.Bound() {
			continue
		}

		res, ok := d.resources.Find(s.ResourceID)
		if !ok {
			log.Panicf("scanout %d shows resource %d, which is gone",
				s.ID, s.ResourceID)
		}

		d.present(s, res, s.Rect, reason)
	}
}

func (d *Device) flushResource(cmd *protocol.Command) (*protocol.Response, error) {
	var f protocol.ResourceFlush
	if err := cmd.Read(&f); err != nil {
		return nil, err
	}

	res, ok := d.resources.Find(f.ResourceID)
	if !ok {
		return nil, nil
	}

	for _, s := range d.scanouts {
		if s.ResourceID == res.ID {
			d.present(s, res, toRectangle(f.Rect), present.ReasonFlush)
		}
	}

	return nil, nil
}

// startPresentTimer starts presenting the bound scanouts periodically, if
// a present interval is configured.
func (d *Device) startPresentTimer() {
	if d.presentInterval == 0 || d.presentActive {
		return
	}

	d.presentActive = true
	d.presentTicker.TickAfter(d.presentInterval)
}

func (d *Device) presentTick() {
	if !d.presentActive {
		return
	}

	if !d.anyScanoutBound() {
		d.presentActive = false
		return
	}

	d.presentBound(present.ReasonTimer)
	d.presentTicker.TickAfter(d.presentInterval)
}
