package protocol

// Header starts every control command and response.
type Header struct {
	Type    uint32
	Flags   uint32
	FenceID uint64
	CtxID   uint32
	RingIdx uint8
	Padding [3]uint8
}

// HeaderSize is the encoded size of Header.
const HeaderSize = 24

// Fenced tells if the command asks for a completion fence.
func (h Header) Fenced() bool {
	return h.Flags&FlagFence != 0
}

// RingIndexed tells if the fence belongs to a context ring.
func (h Header) RingIndexed() bool {
	return h.Flags&FlagInfoRingIdx != 0
}

// Rect is a rectangle in pixels.
type Rect struct {
	X      uint32
	Y      uint32
	Width  uint32
	Height uint32
}

// Box is a 3D region in texels.
type Box struct {
	X uint32
	Y uint32
	Z uint32
	W uint32
	H uint32
	D uint32
}

// MemEntry is one guest memory span of a backing.
type MemEntry struct {
	Addr    uint64
	Length  uint32
	Padding uint32
}

// MemEntrySize is the encoded size of MemEntry.
const MemEntrySize = 16

// ResourceCreate2D is the payload of RESOURCE_CREATE_2D.
type ResourceCreate2D struct {
	ResourceID uint32
	Format     uint32
	Width      uint32
	Height     uint32
}

// ResourceCreate3D is the payload of RESOURCE_CREATE_3D.
type ResourceCreate3D struct {
	ResourceID uint32
	Target     uint32
	Format     uint32
	Bind       uint32
	Width      uint32
	Height     uint32
	Depth      uint32
	ArraySize  uint32
	LastLevel  uint32
	NrSamples  uint32
	Flags      uint32
	Padding    uint32
}

// ResourceCreateBlob is the payload of RESOURCE_CREATE_BLOB. NrEntries memory
// entries follow it.
type ResourceCreateBlob struct {
	ResourceID uint32
	BlobMem    uint32
	BlobFlags  uint32
	NrEntries  uint32
	BlobID     uint64
	Size       uint64
}

// ResourceID is the payload of the commands that only name a resource:
// RESOURCE_UNREF, RESOURCE_DETACH_BACKING, RESOURCE_UNMAP_BLOB,
// CTX_ATTACH_RESOURCE and CTX_DETACH_RESOURCE.
type ResourceID struct {
	ResourceID uint32
	Padding    uint32
}

// AttachBacking is the payload of RESOURCE_ATTACH_BACKING. NrEntries memory
// entries follow it.
type AttachBacking struct {
	ResourceID uint32
	NrEntries  uint32
}

// SetScanout is the payload of SET_SCANOUT.
type SetScanout struct {
	Rect       Rect
	ScanoutID  uint32
	ResourceID uint32
}

// SetScanoutBlob is the payload of SET_SCANOUT_BLOB.
type SetScanoutBlob struct {
	Rect       Rect
	ScanoutID  uint32
	ResourceID uint32
	Width      uint32
	Height     uint32
	Format     uint32
	Padding    uint32
	Strides    [4]uint32
	Offsets    [4]uint32
}

// ResourceFlush is the payload of RESOURCE_FLUSH.
type ResourceFlush struct {
	Rect       Rect
	ResourceID uint32
	Padding    uint32
}

// TransferToHost2D is the payload of TRANSFER_TO_HOST_2D.
type TransferToHost2D struct {
	Rect       Rect
	Offset     uint64
	ResourceID uint32
	Padding    uint32
}

// TransferHost3D is the payload of TRANSFER_TO_HOST_3D and
// TRANSFER_FROM_HOST_3D.
type TransferHost3D struct {
	Box         Box
	Offset      uint64
	ResourceID  uint32
	Level       uint32
	Stride      uint32
	LayerStride uint32
}

// CtxCreate is the payload of CTX_CREATE.
type CtxCreate struct {
	NameLen     uint32
	ContextInit uint32
	DebugName   [64]byte
}

// Name returns the debug name, clipped to NameLen.
func (c CtxCreate) Name() string {
	n := int(c.NameLen)
	if n > len(c.DebugName) {
		n = len(c.DebugName)
	}

	return string(c.DebugName[:n])
}

// Submit3D is the payload of SUBMIT_3D. Size bytes of command stream follow
// it.
type Submit3D struct {
	Size    uint32
	Padding uint32
}

// GetCapsetInfo is the payload of GET_CAPSET_INFO.
type GetCapsetInfo struct {
	CapsetIndex uint32
	Padding     uint32
}

// GetCapset is the payload of GET_CAPSET.
type GetCapset struct {
	CapsetID      uint32
	CapsetVersion uint32
}

// MapBlob is the payload of RESOURCE_MAP_BLOB.
type MapBlob struct {
	ResourceID uint32
	Padding    uint32
	Offset     uint64
}

// GetEDID is the payload of GET_EDID.
type GetEDID struct {
	Scanout uint32
	Padding uint32
}

// RespCapsetInfo is the body of OK_CAPSET_INFO.
type RespCapsetInfo struct {
	CapsetID         uint32
	CapsetMaxVersion uint32
	CapsetMaxSize    uint32
	Padding          uint32
}

// RespMapInfo is the body of OK_MAP_INFO.
type RespMapInfo struct {
	MapInfo uint32
	Padding uint32
}

// DisplayOne describes one scanout in OK_DISPLAY_INFO.
type DisplayOne struct {
	Rect    Rect
	Enabled uint32
	Flags   uint32
}

// RespDisplayInfo is the body of OK_DISPLAY_INFO.
type RespDisplayInfo struct {
	PModes [MaxScanouts]DisplayOne
}

// RespEDID is the body of OK_EDID.
type RespEDID struct {
	Size    uint32
	Padding uint32
	EDID    [1024]byte
}
