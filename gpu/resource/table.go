// Package resource keeps the GPU resources the guest created, keyed by the
// guest-assigned id.
package resource

import (
	"image"
	"sort"

	"github.com/sarchlab/vgpu/gpu/gpuerr"
	"github.com/sarchlab/vgpu/gpu/guestmem"
)

// Kind is the kind of a resource.
type Kind int

// Resource kinds.
const (
	Simple2D Kind = iota
	Simple3D
	Blob
)

func (k Kind) String() string {
	switch k {
	case Simple2D:
		return "2d"
	case Simple3D:
		return "3d"
	case Blob:
		return "blob"
	default:
		return "unknown"
	}
}

// Attrs are the creation attributes of a resource. 2D and 3D resources use
// the texture fields, blobs the blob fields.
type Attrs struct {
	Width     uint32
	Height    uint32
	Format    uint32
	Target    uint32
	Bind      uint32
	Depth     uint32
	ArraySize uint32
	LastLevel uint32
	NrSamples uint32
	Flags     uint32

	Size      uint64
	BlobMem   uint32
	BlobFlags uint32
	BlobID    uint64

	// CtxID is the owning context, or 0.
	CtxID uint32
}

// HostMapping is a host view of memory exported by a context.
type HostMapping struct {
	FD   int
	Size uint64
	Data []byte
}

// PresentCache holds what the presentation pipeline learned about a
// resource across frames.
type PresentCache struct {
	// HostPtr is the host memory from a previous renderer map.
	HostPtr []byte

	// SurfaceID is the platform surface of the resource, or 0.
	SurfaceID uint32

	// Raster is the software copy shown on the console.
	Raster *image.RGBA

	// Context is the mapped memory exported by the owning context.
	Context *HostMapping
}

// Resource is a GPU resource.
type Resource struct {
	ID   uint32
	Kind Kind
	Attrs

	// Spans is the guest memory backing, and IOV its host view.
	Spans []guestmem.Span
	IOV   guestmem.IOV

	Cache PresentCache
}

// HasBacking tells if guest memory is attached.
func (r *Resource) HasBacking() bool {
	return r.IOV != nil
}

// MappingQuerier tells if a resource is in the middle of an unmap.
type MappingQuerier interface {
	IsUnmapping(resID uint32) bool
}

// Table is the set of live resources.
type Table struct {
	resources map[uint32]*Resource
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{resources: make(map[uint32]*Resource)}
}

// Create adds a resource. Id 0 and ids in use are rejected.
func (t *Table) Create(id uint32, kind Kind, attrs Attrs) (*Resource, error) {
	if id == 0 {
		return nil, gpuerr.New(gpuerr.InvalidID, "create resource", id)
	}

	if _, ok := t.resources[id]; ok {
		return nil, gpuerr.New(gpuerr.DuplicateID, "create resource", id)
	}

	r := &Resource{ID: id, Kind: kind, Attrs: attrs}
	t.resources[id] = r

	return r, nil
}

// Find looks up a resource.
func (t *Table) Find(id uint32) (*Resource, bool) {
	r, ok := t.resources[id]
	return r, ok
}

// Get looks up a resource, failing with UnknownResource.
func (t *Table) Get(op string, id uint32) (*Resource, error) {
	r, ok := t.resources[id]
	if !ok {
		return nil, gpuerr.New(gpuerr.UnknownResource, op, id)
	}

	return r, nil
}

// Len returns the number of live resources.
func (t *Table) Len() int {
	return len(t.resources)
}

// All returns the live resources ordered by id.
func (t *Table) All() []*Resource {
	list := make([]*Resource, 0, len(t.resources))
	for _, r := range t.resources {
		list = append(list, r)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	return list
}

// AttachBacking sets the guest memory of a resource, replacing any previous
// backing.
func (t *Table) AttachBacking(
	id uint32,
	spans []guestmem.Span,
	iov guestmem.IOV,
) error {
	r, err := t.Get("attach backing", id)
	if err != nil {
		return err
	}

	r.Spans = spans
	r.IOV = iov

	return nil
}

// DetachBacking removes the guest memory of a resource. Detaching a resource
// without backing succeeds.
func (t *Table) DetachBacking(id uint32) error {
	r, err := t.Get("detach backing", id)
	if err != nil {
		return err
	}

	r.Spans = nil
	r.IOV = nil

	return nil
}

// Destroy removes a resource. While the resource is being unmapped the
// removal is deferred: nothing changes and deferred is true.
func (t *Table) Destroy(id uint32, mappings MappingQuerier) (bool, error) {
	if _, err := t.Get("destroy resource", id); err != nil {
		return false, err
	}

	if mappings != nil && mappings.IsUnmapping(id) {
		return true, nil
	}

	delete(t.resources, id)

	return false, nil
}

// Reset drops every resource.
func (t *Table) Reset() {
	t.resources = make(map[uint32]*Resource)
}
