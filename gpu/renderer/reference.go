package renderer

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"unsafe"

	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/protocol"
)

type refContext struct {
	capsetID  uint32
	name      string
	resources map[uint32]bool
}

type refResource struct {
	args    ResourceArgs
	blob    *BlobArgs
	data    []byte
	iov     guestmem.IOV
	mapped  bool
	surface uint32
}

type ringKey struct {
	ctxID uint32
	ring  uint8
}

type hostPointer struct {
	file *os.File
	size uint64
}

// Reference is an in-memory backend. It keeps resource contents in host
// memory, retires every fence on Poll and can export host pointers and
// surfaces. It backs the CLI and the device tests.
type Reference struct {
	lock sync.Mutex
	sink FenceSink

	virgl2         bool
	venus          bool
	hostPointers   bool
	surfaces       bool
	mapAlignment   uint64
	misalignedMaps bool
	holdFences     bool

	contexts     map[uint32]*refContext
	resources    map[uint32]*refResource
	globalFences []uint64
	ringFences   map[ringKey][]uint64
	hostPtrs     map[uint32]*hostPointer

	submittedBytes int
	context0Calls  int
}

// ReferenceBuilder builds Reference renderers.
type ReferenceBuilder struct {
	virgl2         bool
	venus          bool
	hostPointers   bool
	surfaces       bool
	mapAlignment   uint64
	misalignedMaps bool
	holdFences     bool
}

// MakeReferenceBuilder creates a builder with the VIRGL capset only.
func MakeReferenceBuilder() ReferenceBuilder {
	return ReferenceBuilder{
		mapAlignment: 16 * 1024,
	}
}

// WithVirgl2 adds the VIRGL2 capset.
func (b ReferenceBuilder) WithVirgl2() ReferenceBuilder {
	b.virgl2 = true
	return b
}

// WithVenus adds the VENUS capset.
func (b ReferenceBuilder) WithVenus() ReferenceBuilder {
	b.venus = true
	return b
}

// WithHostPointers enables host pointer export.
func (b ReferenceBuilder) WithHostPointers() ReferenceBuilder {
	b.hostPointers = true
	return b
}

// WithSurfaces enables platform surface export for blobs.
func (b ReferenceBuilder) WithSurfaces() ReferenceBuilder {
	b.surfaces = true
	return b
}

// WithMapAlignment sets the alignment of blob host memory.
func (b ReferenceBuilder) WithMapAlignment(a uint64) ReferenceBuilder {
	b.mapAlignment = a
	return b
}

// WithMisalignedMaps makes blob host memory deliberately miss the map
// alignment.
func (b ReferenceBuilder) WithMisalignedMaps() ReferenceBuilder {
	b.misalignedMaps = true
	return b
}

// WithHeldFences keeps fences pending on Poll until ReleaseFences is called.
func (b ReferenceBuilder) WithHeldFences() ReferenceBuilder {
	b.holdFences = true
	return b
}

// Build creates the renderer.
func (b ReferenceBuilder) Build() *Reference {
	align := b.mapAlignment
	if align == 0 {
		align = 1
	}

	r := &Reference{
		virgl2:         b.virgl2,
		venus:          b.venus,
		hostPointers:   b.hostPointers,
		surfaces:       b.surfaces,
		mapAlignment:   align,
		misalignedMaps: b.misalignedMaps,
		holdFences:     b.holdFences,
	}
	r.clear()

	return r
}

func (r *Reference) clear() {
	for _, hp := range r.hostPtrs {
		hp.file.Close()
		os.Remove(hp.file.Name())
	}

	r.contexts = make(map[uint32]*refContext)
	r.resources = make(map[uint32]*refResource)
	r.globalFences = nil
	r.ringFences = make(map[ringKey][]uint64)
	r.hostPtrs = make(map[uint32]*hostPointer)
}

// SetFenceSink sets where retired fences are reported.
func (r *Reference) SetFenceSink(sink FenceSink) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.sink = sink
}

// CreateContext creates a context.
func (r *Reference) CreateContext(id, capsetID uint32, name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.contexts[id]; ok {
		return fmt.Errorf("context %d already exists", id)
	}

	r.contexts[id] = &refContext{
		capsetID:  capsetID,
		name:      name,
		resources: make(map[uint32]bool),
	}

	return nil
}

// DestroyContext destroys a context.
func (r *Reference) DestroyContext(id uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.contexts, id)

	if hp, ok := r.hostPtrs[id]; ok {
		hp.file.Close()
		os.Remove(hp.file.Name())
		delete(r.hostPtrs, id)
	}
}

// AttachResource lets a context use a resource.
func (r *Reference) AttachResource(ctxID, resID uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if ctx, ok := r.contexts[ctxID]; ok {
		ctx.resources[resID] = true
	}
}

// DetachResource removes a resource from a context.
func (r *Reference) DetachResource(ctxID, resID uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if ctx, ok := r.contexts[ctxID]; ok {
		delete(ctx.resources, resID)
	}
}

// CreateResource creates a 2D or 3D resource with 4 bytes per texel.
func (r *Reference) CreateResource(args ResourceArgs) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.resources[args.ID]; ok {
		return fmt.Errorf("resource %d already exists", args.ID)
	}

	depth := max(args.Depth, 1)
	size := uint64(args.Width) * uint64(args.Height) * uint64(depth) * 4
	r.resources[args.ID] = &refResource{
		args: args,
		data: make([]byte, size),
	}

	return nil
}

// CreateBlob creates a blob. Host blobs get host memory aligned to the map
// alignment.
func (r *Reference) CreateBlob(args BlobArgs) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.resources[args.ID]; ok {
		return fmt.Errorf("resource %d already exists", args.ID)
	}

	res := &refResource{
		args: ResourceArgs{ID: args.ID},
		blob: &args,
		iov:  args.IOV,
	}

	if args.BlobMem != protocol.BlobMemGuest {
		skew := uint64(0)
		if r.misalignedMaps {
			skew = 64
		}

		res.data = alignedBuffer(args.Size, r.mapAlignment, skew)
	}

	r.resources[args.ID] = res

	return nil
}

func alignedBuffer(size, align, skew uint64) []byte {
	buf := make([]byte, size+align+skew)
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))
	off := (align - addr%align) % align

	return buf[off+skew : off+skew+size]
}

// UnrefResource destroys a resource.
func (r *Reference) UnrefResource(id uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.resources, id)

	for _, ctx := range r.contexts {
		delete(ctx.resources, id)
	}
}

// AttachBacking attaches guest memory to a resource.
func (r *Reference) AttachBacking(id uint32, iov guestmem.IOV) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, ok := r.resources[id]
	if !ok {
		return fmt.Errorf("resource %d not found", id)
	}

	res.iov = iov

	return nil
}

// DetachBacking detaches and returns the guest memory of a resource.
func (r *Reference) DetachBacking(id uint32) guestmem.IOV {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, ok := r.resources[id]
	if !ok {
		return nil
	}

	iov := res.iov
	res.iov = nil

	return iov
}

// TransferToHost copies a rectangle from the guest backing into the
// resource.
func (r *Reference) TransferToHost(id uint32, t Transfer) error {
	return r.transfer(id, t, true)
}

// TransferFromHost copies a rectangle from the resource into the guest
// backing.
func (r *Reference) TransferFromHost(id uint32, t Transfer) error {
	return r.transfer(id, t, false)
}

func (r *Reference) transfer(id uint32, t Transfer, toHost bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, ok := r.resources[id]
	if !ok {
		return fmt.Errorf("resource %d not found", id)
	}

	if res.iov == nil {
		return fmt.Errorf("resource %d has no backing", id)
	}

	stride := uint64(t.Stride)
	if stride == 0 {
		stride = uint64(res.args.Width) * 4
	}

	rowBytes := uint64(t.W) * 4
	for row := uint64(0); row < uint64(t.H); row++ {
		src := t.Offset + row*stride
		dst := (uint64(t.Y)+row)*uint64(res.args.Width)*4 + uint64(t.X)*4

		if dst+rowBytes > uint64(len(res.data)) {
			return fmt.Errorf("transfer outside of resource %d", id)
		}

		if toHost {
			res.iov.ReadAt(res.data[dst:dst+rowBytes], int(src))
		} else {
			res.iov.WriteAt(res.data[dst:dst+rowBytes], int(src))
		}
	}

	return nil
}

// Submit accepts a command stream for a context.
func (r *Reference) Submit(ctxID uint32, cmds []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.contexts[ctxID]; !ok {
		return fmt.Errorf("context %d not found", ctxID)
	}

	r.submittedBytes += len(cmds)

	return nil
}

// MapBlob returns the host memory of a host blob.
func (r *Reference) MapBlob(id uint32) ([]byte, uint32, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, ok := r.resources[id]
	if !ok {
		return nil, 0, fmt.Errorf("resource %d not found", id)
	}

	if res.blob == nil || res.data == nil {
		return nil, 0, fmt.Errorf("resource %d is not a host blob", id)
	}

	res.mapped = true

	return res.data, protocol.MapCacheCached, nil
}

// UnmapBlob releases the host mapping of a blob.
func (r *Reference) UnmapBlob(id uint32) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, ok := r.resources[id]
	if !ok {
		return fmt.Errorf("resource %d not found", id)
	}

	if !res.mapped {
		return fmt.Errorf("resource %d is not mapped", id)
	}

	res.mapped = false

	return nil
}

// CapsetInfo reports the supported capsets.
func (r *Reference) CapsetInfo(capsetID uint32) (uint32, uint32) {
	switch {
	case capsetID == protocol.CapsetVirgl:
		return 1, 308
	case capsetID == protocol.CapsetVirgl2 && r.virgl2:
		return 2, 776
	case capsetID == protocol.CapsetVenus && r.venus:
		return 0, 160
	default:
		return 0, 0
	}
}

// FillCapset writes a recognizable capset blob: the capset id and version
// followed by a counting pattern.
func (r *Reference) FillCapset(capsetID, version uint32, buf []byte) {
	for i := range buf {
		buf[i] = byte(i)
	}

	header := protocol.Encode(capsetID, version)
	copy(buf, header)
}

// CreateFence queues a global fence.
func (r *Reference) CreateFence(id uint64, _ uint32) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.globalFences = append(r.globalFences, id)

	return nil
}

// CreateContextFence queues a fence on a context ring.
func (r *Reference) CreateContextFence(ctxID uint32, ring uint8, id uint64) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.contexts[ctxID]; !ok {
		return fmt.Errorf("context %d not found", ctxID)
	}

	key := ringKey{ctxID: ctxID, ring: ring}
	r.ringFences[key] = append(r.ringFences[key], id)

	return nil
}

// ReleaseFences lets held fences retire on the next Poll.
func (r *Reference) ReleaseFences() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.holdFences = false
}

// Poll retires every queued fence, reporting the highest id per timeline.
func (r *Reference) Poll() {
	r.lock.Lock()

	if r.holdFences || r.sink == nil {
		r.lock.Unlock()
		return
	}

	sink := r.sink
	global := r.globalFences
	rings := r.ringFences
	r.globalFences = nil
	r.ringFences = make(map[ringKey][]uint64)

	r.lock.Unlock()

	if len(global) > 0 {
		sink.FenceSignaled(maxID(global))
	}

	keys := make([]ringKey, 0, len(rings))
	for k := range rings {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ctxID != keys[j].ctxID {
			return keys[i].ctxID < keys[j].ctxID
		}

		return keys[i].ring < keys[j].ring
	})

	for _, k := range keys {
		sink.ContextFenceSignaled(k.ctxID, k.ring, maxID(rings[k]))
	}
}

func maxID(ids []uint64) uint64 {
	m := ids[0]
	for _, id := range ids[1:] {
		m = max(m, id)
	}

	return m
}

// ForceContext0 counts context switches to the default context.
func (r *Reference) ForceContext0() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.context0Calls++
}

// Reset drops every context, resource and fence.
func (r *Reference) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.clear()
}

// Close releases the exported host pointer files.
func (r *Reference) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.clear()
}

// HostPointerFD exports a file holding the last frame written by a Venus
// context with WriteHostPointer.
func (r *Reference) HostPointerFD(ctxID uint32, minSize uint64) (int, uint64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.hostPointers {
		return -1, 0, fmt.Errorf("host pointer export disabled")
	}

	ctx, ok := r.contexts[ctxID]
	if !ok || ctx.capsetID != protocol.CapsetVenus {
		return -1, 0, fmt.Errorf("context %d is not a venus context", ctxID)
	}

	hp, ok := r.hostPtrs[ctxID]
	if !ok {
		return -1, 0, fmt.Errorf("context %d has not exported memory", ctxID)
	}

	if hp.size < minSize {
		return -1, 0, fmt.Errorf("exported memory of context %d is %d bytes, "+
			"need %d", ctxID, hp.size, minSize)
	}

	return int(hp.file.Fd()), hp.size, nil
}

// WriteHostPointer replaces the memory a context exports.
func (r *Reference) WriteHostPointer(ctxID uint32, data []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	hp, ok := r.hostPtrs[ctxID]
	if !ok || hp.size != uint64(len(data)) {
		if ok {
			hp.file.Close()
			os.Remove(hp.file.Name())
		}

		f, err := os.CreateTemp("", "vgpu-hostptr-*")
		if err != nil {
			return err
		}

		hp = &hostPointer{file: f, size: uint64(len(data))}
		r.hostPtrs[ctxID] = hp
	}

	_, err := hp.file.WriteAt(data, 0)

	return err
}

// ResourceSurfaceID returns a stable surface id for blobs.
func (r *Reference) ResourceSurfaceID(_, resID uint32) (uint32, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.surfaces {
		return 0, fmt.Errorf("surface export disabled")
	}

	res, ok := r.resources[resID]
	if !ok || res.blob == nil {
		return 0, fmt.Errorf("resource %d has no surface", resID)
	}

	if res.surface == 0 {
		res.surface = 0x1000 + resID
	}

	return res.surface, nil
}

// RegisterVenusResource accepts blobs owned by Venus contexts.
func (r *Reference) RegisterVenusResource(ctxID, resID uint32) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ctx, ok := r.contexts[ctxID]
	if !ok || ctx.capsetID != protocol.CapsetVenus {
		return fmt.Errorf("context %d is not a venus context", ctxID)
	}

	if _, ok := r.resources[resID]; !ok {
		return fmt.Errorf("resource %d not found", resID)
	}

	ctx.resources[resID] = true

	return nil
}

// ResourceInfo reports the layout of 2D and 3D resources.
func (r *Reference) ResourceInfo(id uint32) (ResourceInfo, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, ok := r.resources[id]
	if !ok || res.blob != nil {
		return ResourceInfo{}, fmt.Errorf("no layout for resource %d", id)
	}

	return ResourceInfo{
		Width:  res.args.Width,
		Height: res.args.Height,
		Stride: res.args.Width * 4,
		Format: res.args.Format,
	}, nil
}

// HasContext tells if the context exists and returns its capset.
func (r *Reference) HasContext(id uint32) (uint32, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ctx, ok := r.contexts[id]
	if !ok {
		return 0, false
	}

	return ctx.capsetID, true
}

// HasResource tells if the resource exists.
func (r *Reference) HasResource(id uint32) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, ok := r.resources[id]

	return ok
}

// IsMapped tells if the blob is mapped.
func (r *Reference) IsMapped(id uint32) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, ok := r.resources[id]

	return ok && res.mapped
}

// Contents returns the host copy of a resource.
func (r *Reference) Contents(id uint32) []byte {
	r.lock.Lock()
	defer r.lock.Unlock()

	if res, ok := r.resources[id]; ok {
		return res.data
	}

	return nil
}

// SubmittedBytes returns the size of all accepted command streams.
func (r *Reference) SubmittedBytes() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.submittedBytes
}

// Context0Calls returns how many times ForceContext0 was called.
func (r *Reference) Context0Calls() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.context0Calls
}

var (
	_ Renderer               = (*Reference)(nil)
	_ ContextFencer          = (*Reference)(nil)
	_ HostPointerExporter    = (*Reference)(nil)
	_ SurfaceExporter        = (*Reference)(nil)
	_ VenusResourceRegistrar = (*Reference)(nil)
	_ ResourceInfoProvider   = (*Reference)(nil)
)
