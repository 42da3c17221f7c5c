package device

import (
	"log"

	"github.com/sarchlab/vgpu/gpu/blob"
	"github.com/sarchlab/vgpu/gpu/gpuerr"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/present"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/rendercontext"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/gpu/resource"
)

// Defaults the 2D resources are created with in the renderer.
const (
	pipeTexture2D      = 2
	bindRenderTarget   = 1 << 1
	resourceFlagY0Top  = 1 << 0
	contextInitCapsets = 0xff
)

func (d *Device) registerHandlers() {
	d.handlers = map[protocol.CmdType]handler{
		protocol.CmdCtxCreate:             d.createContext,
		protocol.CmdCtxDestroy:            d.destroyContext,
		protocol.CmdCtxAttachResource:     d.attachResource,
		protocol.CmdCtxDetachResource:     d.detachResource,
		protocol.CmdResourceCreate2D:      d.createResource2D,
		protocol.CmdResourceCreate3D:      d.createResource3D,
		protocol.CmdResourceCreateBlob:    d.createBlob,
		protocol.CmdResourceUnref:         d.unrefResource,
		protocol.CmdResourceAttachBacking: d.attachBacking,
		protocol.CmdResourceDetachBacking: d.detachBacking,
		protocol.CmdTransferToHost2D:      d.transferToHost2D,
		protocol.CmdTransferToHost3D:      d.transferToHost3D,
		protocol.CmdTransferFromHost3D:    d.transferFromHost3D,
		protocol.CmdSetScanout:            d.setScanout,
		protocol.CmdSetScanoutBlob:        d.setScanoutBlob,
		protocol.CmdResourceFlush:         d.flushResource,
		protocol.CmdResourceMapBlob:       d.mapBlob,
		protocol.CmdResourceUnmapBlob:     d.unmapBlob,
		protocol.CmdGetCapsetInfo:         d.capsetInfo,
		protocol.CmdGetCapset:             d.capset,
		protocol.CmdSubmit3D:              d.submit3D,
		protocol.CmdGetDisplayInfo:        d.displayInfo,
		protocol.CmdGetEDID:               d.edid,
	}
}

func (d *Device) createContext(cmd *protocol.Command) (*protocol.Response, error) {
	var cc protocol.CtxCreate
	cmd.ReadPartial(&cc)

	capsetID := cc.ContextInit & contextInitCapsets

	outcome, err := d.contexts.Create(cmd.Header.CtxID, capsetID, cc.Name())
	if err != nil {
		return nil, err
	}

	if outcome == rendercontext.OutcomeNoop {
		log.Printf("%s: context %d (capset %d) accepted as no-op",
			d.name, cmd.Header.CtxID, capsetID)
	}

	return nil, nil
}

func (d *Device) destroyContext(cmd *protocol.Command) (*protocol.Response, error) {
	return nil, d.contexts.Destroy(cmd.Header.CtxID)
}

func (d *Device) attachResource(cmd *protocol.Command) (*protocol.Response, error) {
	var r protocol.ResourceID
	if err := cmd.Read(&r); err != nil {
		return nil, err
	}

	return nil, d.contexts.AttachResource(cmd.Header.CtxID, r.ResourceID)
}

func (d *Device) detachResource(cmd *protocol.Command) (*protocol.Response, error) {
	var r protocol.ResourceID
	if err := cmd.Read(&r); err != nil {
		return nil, err
	}

	return nil, d.contexts.DetachResource(cmd.Header.CtxID, r.ResourceID)
}

func (d *Device) createResource2D(cmd *protocol.Command) (*protocol.Response, error) {
	var c protocol.ResourceCreate2D
	if err := cmd.Read(&c); err != nil {
		return nil, err
	}

	attrs := resource.Attrs{
		Width:     c.Width,
		Height:    c.Height,
		Format:    c.Format,
		Target:    pipeTexture2D,
		Bind:      bindRenderTarget,
		Depth:     1,
		ArraySize: 1,
		Flags:     resourceFlagY0Top,
	}

	return nil, d.createTexture(c.ResourceID, resource.Simple2D, attrs)
}

func (d *Device) createResource3D(cmd *protocol.Command) (*protocol.Response, error) {
	var c protocol.ResourceCreate3D
	if err := cmd.Read(&c); err != nil {
		return nil, err
	}

	attrs := resource.Attrs{
		Width:     c.Width,
		Height:    c.Height,
		Format:    c.Format,
		Target:    c.Target,
		Bind:      c.Bind,
		Depth:     c.Depth,
		ArraySize: c.ArraySize,
		LastLevel: c.LastLevel,
		NrSamples: c.NrSamples,
		Flags:     c.Flags,
	}

	return nil, d.createTexture(c.ResourceID, resource.Simple3D, attrs)
}

func (d *Device) createTexture(id uint32, kind resource.Kind, attrs resource.Attrs) error {
	if _, err := d.resources.Create(id, kind, attrs); err != nil {
		return err
	}

	err := d.renderer.CreateResource(renderer.ResourceArgs{
		ID:        id,
		Target:    attrs.Target,
		Format:    attrs.Format,
		Bind:      attrs.Bind,
		Width:     attrs.Width,
		Height:    attrs.Height,
		Depth:     attrs.Depth,
		ArraySize: attrs.ArraySize,
		LastLevel: attrs.LastLevel,
		NrSamples: attrs.NrSamples,
		Flags:     attrs.Flags,
	})
	if err != nil {
		d.mustDestroy(id)
		return gpuerr.Wrap(gpuerr.RendererError, "create resource", id, err)
	}

	return nil
}

// mustDestroy undoes a resource create.
func (d *Device) mustDestroy(id uint32) {
	if _, err := d.resources.Destroy(id, nil); err != nil {
		log.Panicf("undo create of resource %d: %v", id, err)
	}
}

func (d *Device) createBlob(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "create blob"

	var c protocol.ResourceCreateBlob
	if err := cmd.Read(&c); err != nil {
		return nil, err
	}

	if !d.blobEnabled {
		return nil, gpuerr.New(gpuerr.FeatureDisabled, op, c.ResourceID)
	}

	ctxID := cmd.Header.CtxID
	attrs := resource.Attrs{
		Size:      c.Size,
		BlobMem:   c.BlobMem,
		BlobFlags: c.BlobFlags,
		BlobID:    c.BlobID,
		CtxID:     ctxID,
	}

	res, err := d.resources.Create(c.ResourceID, resource.Blob, attrs)
	if err != nil {
		return nil, err
	}

	if c.BlobMem != protocol.BlobMemHost3D {
		err = d.mapBacking(res, cmd.Tail(&c), c.NrEntries)
		if err != nil {
			d.mustDestroy(res.ID)
			return nil, err
		}
	}

	err = d.renderer.CreateBlob(renderer.BlobArgs{
		ID:      c.ResourceID,
		CtxID:   ctxID,
		BlobMem: c.BlobMem,
		Flags:   c.BlobFlags,
		BlobID:  c.BlobID,
		Size:    c.Size,
		IOV:     res.IOV,
	})
	if err != nil {
		d.mustDestroy(res.ID)
		return nil, gpuerr.Wrap(gpuerr.RendererError, op, c.ResourceID, err)
	}

	d.registerVenusResource(ctxID, res.ID)

	return nil, nil
}

// registerVenusResource makes a blob created by a Venus context importable
// by that context. Failures only cost the import and are not reported to
// the guest.
func (d *Device) registerVenusResource(ctxID, resID uint32) {
	if d.caps.VenusRegistrar == nil || ctxID == 0 {
		return
	}

	ctx, ok := d.contexts.Find(ctxID)
	if !ok || ctx.Noop || ctx.CapsetID != protocol.CapsetVenus {
		return
	}

	err := d.caps.VenusRegistrar.RegisterVenusResource(ctxID, resID)
	if err != nil {
		log.Printf("%s: register blob %d with venus context %d: %v",
			d.name, resID, ctxID, err)
	}
}

// mapBacking maps the guest memory entries that follow a command into the
// resource.
func (d *Device) mapBacking(
	res *resource.Resource,
	tail []byte,
	n uint32,
) error {
	entries, err := protocol.ReadMemEntries(tail, n)
	if err != nil {
		return err
	}

	spans := make([]guestmem.Span, len(entries))
	for i, e := range entries {
		spans[i] = guestmem.Span{Addr: e.Addr, Length: e.Length}
	}

	iov, err := d.memory.MapSpans(spans)
	if err != nil {
		return gpuerr.Wrap(gpuerr.Unspecified, "map backing", res.ID, err)
	}

	res.Spans = spans
	res.IOV = iov

	return nil
}

func (d *Device) unrefResource(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "unref resource"

	var r protocol.ResourceID
	if err := cmd.Read(&r); err != nil {
		return nil, err
	}

	res, err := d.resources.Get(op, r.ResourceID)
	if err != nil {
		return nil, err
	}

	result, err := d.mapper.Unmap(res.ID, d.resume)
	if err != nil {
		return nil, err
	}

	if result == blob.UnmapSuspended {
		d.suspend()
		return nil, nil
	}

	deferred, err := d.resources.Destroy(res.ID, d.mapper)
	if err != nil {
		return nil, err
	}

	if deferred {
		log.Panicf("resource %d still unmapping after its unmap finished",
			res.ID)
	}

	d.contexts.DetachResourceEverywhere(res.ID)
	d.pipeline.ReleaseResource(res)
	d.unbindResource(res.ID)

	d.renderer.DetachBacking(res.ID)
	d.renderer.UnrefResource(res.ID)

	return nil, nil
}

func (d *Device) attachBacking(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "attach backing"

	var a protocol.AttachBacking
	if err := cmd.Read(&a); err != nil {
		return nil, err
	}

	res, err := d.resources.Get(op, a.ResourceID)
	if err != nil {
		return nil, err
	}

	staged := &resource.Resource{ID: res.ID}
	if err := d.mapBacking(staged, cmd.Tail(&a), a.NrEntries); err != nil {
		return nil, err
	}

	err = d.renderer.AttachBacking(res.ID, staged.IOV)
	if err != nil {
		return nil, gpuerr.Wrap(gpuerr.RendererError, op, res.ID, err)
	}

	return nil, d.resources.AttachBacking(res.ID, staged.Spans, staged.IOV)
}

func (d *Device) detachBacking(cmd *protocol.Command) (*protocol.Response, error) {
	var r protocol.ResourceID
	if err := cmd.Read(&r); err != nil {
		return nil, err
	}

	if _, err := d.resources.Get("detach backing", r.ResourceID); err != nil {
		return nil, err
	}

	d.renderer.DetachBacking(r.ResourceID)

	return nil, d.resources.DetachBacking(r.ResourceID)
}

func (d *Device) transferToHost2D(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "transfer to host 2d"

	var t protocol.TransferToHost2D
	if err := cmd.Read(&t); err != nil {
		return nil, err
	}

	box := protocol.Box{
		X: t.Rect.X, Y: t.Rect.Y,
		W: t.Rect.Width, H: t.Rect.Height, D: 1,
	}

	res, err := d.checkTransfer(op, t.ResourceID, box)
	if err != nil {
		return nil, err
	}

	err = d.renderer.TransferToHost(res.ID, renderer.Transfer{
		X: box.X, Y: box.Y, W: box.W, H: box.H, D: box.D,
		Offset: t.Offset,
	})
	if err != nil {
		return nil, gpuerr.Wrap(gpuerr.RendererError, op, res.ID, err)
	}

	return nil, nil
}

func (d *Device) transferToHost3D(cmd *protocol.Command) (*protocol.Response, error) {
	return d.transfer3D(cmd, "transfer to host 3d", d.renderer.TransferToHost)
}

func (d *Device) transferFromHost3D(cmd *protocol.Command) (*protocol.Response, error) {
	return d.transfer3D(cmd, "transfer from host 3d", d.renderer.TransferFromHost)
}

func (d *Device) transfer3D(
	cmd *protocol.Command,
	op string,
	do func(id uint32, t renderer.Transfer) error,
) (*protocol.Response, error) {
	var t protocol.TransferHost3D
	if err := cmd.Read(&t); err != nil {
		return nil, err
	}

	res, err := d.checkTransfer(op, t.ResourceID, t.Box)
	if err != nil {
		return nil, err
	}

	err = do(res.ID, renderer.Transfer{
		CtxID:       cmd.Header.CtxID,
		X:           t.Box.X,
		Y:           t.Box.Y,
		Z:           t.Box.Z,
		W:           t.Box.W,
		H:           t.Box.H,
		D:           t.Box.D,
		Level:       t.Level,
		Stride:      t.Stride,
		LayerStride: t.LayerStride,
		Offset:      t.Offset,
	})
	if err != nil {
		return nil, gpuerr.Wrap(gpuerr.RendererError, op, res.ID, err)
	}

	return nil, nil
}

// checkTransfer finds the resource of a transfer and checks that the box
// lies within a texture. Blobs have no texel layout and are not checked.
func (d *Device) checkTransfer(
	op string,
	id uint32,
	box protocol.Box,
) (*resource.Resource, error) {
	res, err := d.resources.Get(op, id)
	if err != nil {
		return nil, err
	}

	if res.Kind == resource.Blob {
		return res, nil
	}

	depth := max(res.Depth, 1)
	if !within(box.X, box.W, res.Width) ||
		!within(box.Y, box.H, res.Height) ||
		!within(box.Z, box.D, depth) {
		return nil, gpuerr.Newf(gpuerr.InvalidParameter, op, id,
			"box %+v outside of %dx%dx%d", box, res.Width, res.Height, depth)
	}

	return res, nil
}

func within(start, length, limit uint32) bool {
	return uint64(start)+uint64(length) <= uint64(limit)
}

func (d *Device) mapBlob(cmd *protocol.Command) (*protocol.Response, error) {
	var m protocol.MapBlob
	if err := cmd.Read(&m); err != nil {
		return nil, err
	}

	if _, err := d.resources.Get("map blob", m.ResourceID); err != nil {
		return nil, err
	}

	info, err := d.mapper.Map(m.ResourceID, m.Offset)
	if err != nil {
		return nil, err
	}

	rsp := protocol.NewResponse(cmd, protocol.RespOKMapInfo)
	rsp.Body = protocol.RespMapInfo{MapInfo: info.CacheType}

	return rsp, nil
}

func (d *Device) unmapBlob(cmd *protocol.Command) (*protocol.Response, error) {
	var r protocol.ResourceID
	if err := cmd.Read(&r); err != nil {
		return nil, err
	}

	if _, err := d.resources.Get("unmap blob", r.ResourceID); err != nil {
		return nil, err
	}

	result, err := d.mapper.Unmap(r.ResourceID, d.resume)
	if err != nil {
		return nil, err
	}

	if result == blob.UnmapSuspended {
		d.suspend()
	}

	return nil, nil
}

func (d *Device) capsetInfo(cmd *protocol.Command) (*protocol.Response, error) {
	var g protocol.GetCapsetInfo
	if err := cmd.Read(&g); err != nil {
		return nil, err
	}

	capsets := d.contexts.Capsets()
	if int(g.CapsetIndex) >= len(capsets) {
		return nil, gpuerr.Newf(gpuerr.InvalidParameter, "get capset info",
			0, "index %d of %d capsets", g.CapsetIndex, len(capsets))
	}

	c := capsets[g.CapsetIndex]
	rsp := protocol.NewResponse(cmd, protocol.RespOKCapsetInfo)
	rsp.Body = protocol.RespCapsetInfo{
		CapsetID:         c.ID,
		CapsetMaxVersion: c.MaxVersion,
		CapsetMaxSize:    c.MaxSize,
	}

	return rsp, nil
}

func (d *Device) capset(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "get capset"

	var g protocol.GetCapset
	if err := cmd.Read(&g); err != nil {
		return nil, err
	}

	if !renderer.Advertises(d.contexts.Capsets(), g.CapsetID) {
		return nil, gpuerr.Newf(gpuerr.InvalidParameter, op, g.CapsetID,
			"capset not advertised")
	}

	_, size := d.renderer.CapsetInfo(g.CapsetID)
	if size == 0 {
		return nil, gpuerr.Newf(gpuerr.InvalidParameter, op, g.CapsetID,
			"capset is empty")
	}

	buf := make([]byte, size)
	d.renderer.FillCapset(g.CapsetID, g.CapsetVersion, buf)

	rsp := protocol.NewResponse(cmd, protocol.RespOKCapset)
	rsp.Data = buf

	return rsp, nil
}

func (d *Device) submit3D(cmd *protocol.Command) (*protocol.Response, error) {
	const op = "submit 3d"

	var s protocol.Submit3D
	if err := cmd.Read(&s); err != nil {
		return nil, err
	}

	stream := cmd.Tail(&s)
	if uint64(len(stream)) < uint64(s.Size) {
		return nil, gpuerr.Newf(gpuerr.SizeMismatch, op, cmd.Header.CtxID,
			"%d of %d bytes", len(stream), s.Size)
	}

	d.stats.Submits3D++
	d.stats.Bytes3D += uint64(s.Size)

	err := d.renderer.Submit(cmd.Header.CtxID, stream[:s.Size])

	if d.presentOnSubmit {
		d.presentBound(present.ReasonSubmit)
	}

	if err != nil {
		return nil, gpuerr.Wrap(gpuerr.RendererError, op, cmd.Header.CtxID, err)
	}

	return nil, nil
}
