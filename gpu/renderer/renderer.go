// Package renderer defines the native 3D backend the device drives. The
// backend owns the real GPU objects; the device only forwards guest requests
// and keeps the bookkeeping around them.
package renderer

import "github.com/sarchlab/vgpu/gpu/guestmem"

// ResourceArgs describes a 2D or 3D resource.
type ResourceArgs struct {
	ID        uint32
	Target    uint32
	Format    uint32
	Bind      uint32
	Width     uint32
	Height    uint32
	Depth     uint32
	ArraySize uint32
	LastLevel uint32
	NrSamples uint32
	Flags     uint32
}

// BlobArgs describes a blob resource.
type BlobArgs struct {
	ID      uint32
	CtxID   uint32
	BlobMem uint32
	Flags   uint32
	BlobID  uint64
	Size    uint64

	// IOV is the guest backing of guest-memory blobs.
	IOV guestmem.IOV
}

// Transfer describes a copy between a resource and its guest backing.
type Transfer struct {
	CtxID       uint32
	X, Y, Z     uint32
	W, H, D     uint32
	Level       uint32
	Stride      uint32
	LayerStride uint32
	Offset      uint64
}

// A FenceSink receives fence completions. Backends may call it from any
// goroutine.
type FenceSink interface {
	// FenceSignaled reports that every global fence up to id has retired.
	FenceSignaled(id uint64)

	// ContextFenceSignaled reports that every fence of a context ring up to
	// id has retired.
	ContextFenceSignaled(ctxID uint32, ring uint8, id uint64)
}

// Renderer is the native 3D backend.
type Renderer interface {
	SetFenceSink(sink FenceSink)

	CreateContext(id, capsetID uint32, name string) error
	DestroyContext(id uint32)
	AttachResource(ctxID, resID uint32)
	DetachResource(ctxID, resID uint32)

	CreateResource(args ResourceArgs) error
	CreateBlob(args BlobArgs) error
	UnrefResource(id uint32)

	AttachBacking(id uint32, iov guestmem.IOV) error
	DetachBacking(id uint32) guestmem.IOV

	TransferToHost(id uint32, t Transfer) error
	TransferFromHost(id uint32, t Transfer) error
	Submit(ctxID uint32, cmds []byte) error

	// MapBlob returns the host memory of a blob and its map cache type.
	MapBlob(id uint32) (data []byte, cacheType uint32, err error)
	UnmapBlob(id uint32) error

	// CapsetInfo reports the highest version and the size of a capset. A
	// zero version or size means the capset is not supported.
	CapsetInfo(capsetID uint32) (maxVersion, maxSize uint32)
	FillCapset(capsetID, version uint32, buf []byte)

	CreateFence(id uint64, cmdType uint32) error

	// Poll lets the backend report retired fences to the sink.
	Poll()

	// ForceContext0 makes the default context current before a command is
	// processed.
	ForceContext0()

	Reset()
}

// ContextFencer creates fences on a context ring.
type ContextFencer interface {
	CreateContextFence(ctxID uint32, ring uint8, id uint64) error
}

// HostPointerExporter exports host memory written by a context as a file
// descriptor. The exported allocation is at least minSize bytes.
type HostPointerExporter interface {
	HostPointerFD(ctxID uint32, minSize uint64) (fd int, size uint64, err error)
}

// SurfaceExporter looks up the platform surface that backs a resource.
type SurfaceExporter interface {
	ResourceSurfaceID(ctxID, resID uint32) (uint32, error)
}

// VenusResourceRegistrar makes a blob importable by a Venus context.
type VenusResourceRegistrar interface {
	RegisterVenusResource(ctxID, resID uint32) error
}

// ResourceInfo is what the backend knows about the layout of a resource.
type ResourceInfo struct {
	Width  uint32
	Height uint32
	Stride uint32
	Format uint32
}

// ResourceInfoProvider reports resource layouts.
type ResourceInfoProvider interface {
	ResourceInfo(id uint32) (ResourceInfo, error)
}
