// Package blob maps the host memory of blob resources into the guest-visible
// host memory window.
//
// Unmapping is two-phase. Removing a subregion from the window finishes only
// when every other holder of the region lets it go, which may happen later
// and on another goroutine. Until then the mapping is Unmapping and the
// mapper reports itself blocked, so the device stops processing commands.
// The free notification is posted back onto the engine, where the mapping
// becomes Released and the suspended command is resumed. The resumed command
// calls Unmap again, which releases the renderer mapping.
package blob

import (
	"fmt"
	"log"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/vgpu/gpu/gpuerr"
	"github.com/sarchlab/vgpu/gpu/hostmem"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/gpu/resource"
	"github.com/sarchlab/vgpu/sim/timing"
)

// HVFPageSize is the mapping granularity required by the Hypervisor
// framework on Apple silicon.
const HVFPageSize = 16 * 1024

// State is the state of a mapping.
type State int

// Mapping states.
const (
	Mapped State = iota
	Unmapping
	Released
)

func (s State) String() string {
	switch s {
	case Mapped:
		return "mapped"
	case Unmapping:
		return "unmapping"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UnmapResult tells whether an unmap has finished.
type UnmapResult int

// Unmap results.
const (
	UnmapDone UnmapResult = iota
	UnmapSuspended
)

// MapInfo describes a new mapping.
type MapInfo struct {
	Size        uint64
	AlignedSize uint64
	Alignment   uint64
	CacheType   uint32
}

// Mapping is the installation of a blob in the host memory window.
type Mapping struct {
	ResID       uint32
	Offset      uint64
	Size        uint64
	AlignedSize uint64

	data    []byte
	state   State
	sub     *hostmem.Subregion
	resume  func()
	resumed bool
}

// State returns the state of the mapping.
func (m *Mapping) State() State {
	return m.state
}

// Bytes returns the host memory while the mapping is Mapped, or nil.
func (m *Mapping) Bytes() []byte {
	if m.state != Mapped {
		return nil
	}

	return m.data
}

type regionFreedEvent struct {
	mapping *Mapping
}

// ResourceFinder looks up live resources.
type ResourceFinder interface {
	Find(id uint32) (*resource.Resource, bool)
}

// Mapper manages the host memory mappings of blobs.
type Mapper struct {
	renderer  renderer.Renderer
	resources ResourceFinder
	window    *hostmem.Window
	poster    timing.Poster
	handler   timing.Handler
	hvf       bool
	pageSize  uint64

	mappings map[uint32]*Mapping
	blocked  int
}

// PageSize returns the granularity of mappings.
func (m *Mapper) PageSize() uint64 {
	return m.pageSize
}

// Map installs the host memory of a blob at offset in the window.
func (m *Mapper) Map(resID uint32, offset uint64) (MapInfo, error) {
	const op = "map blob"

	res, ok := m.resources.Find(resID)
	if !ok {
		return MapInfo{}, gpuerr.New(gpuerr.UnknownResource, op, resID)
	}

	if res.Kind != resource.Blob {
		return MapInfo{}, gpuerr.Newf(gpuerr.InvalidParameter, op, resID,
			"%s resource is not a blob", res.Kind)
	}

	if _, ok := m.mappings[resID]; ok {
		return MapInfo{}, gpuerr.Newf(gpuerr.InvalidParameter, op, resID,
			"already mapped")
	}

	if m.window == nil {
		return MapInfo{}, gpuerr.Newf(gpuerr.FeatureDisabled, op, resID,
			"hostmem disabled")
	}

	data, cacheType, err := m.renderer.MapBlob(resID)
	if err != nil {
		log.Printf("%s %d: %v", op, resID, err)
		return MapInfo{}, gpuerr.Wrap(gpuerr.RendererError, op, resID, err)
	}

	err = m.checkAlignment(resID, offset, data)
	if err != nil {
		m.undoRendererMap(resID)
		return MapInfo{}, err
	}

	alignedSize := roundUp(uint64(len(data)), m.pageSize)

	sub, err := m.window.Add(offset, alignedSize, data)
	if err != nil {
		m.undoRendererMap(resID)
		return MapInfo{}, gpuerr.Wrap(gpuerr.InvalidParameter, op, resID, err)
	}

	m.mappings[resID] = &Mapping{
		ResID:       resID,
		Offset:      offset,
		Size:        uint64(len(data)),
		AlignedSize: alignedSize,
		data:        data,
		state:       Mapped,
		sub:         sub,
	}
	res.Cache.HostPtr = data

	return MapInfo{
		Size:        uint64(len(data)),
		AlignedSize: alignedSize,
		Alignment:   m.pageSize,
		CacheType:   cacheType,
	}, nil
}

func (m *Mapper) checkAlignment(resID uint32, offset uint64, data []byte) error {
	if !m.hvf {
		return nil
	}

	if offset%m.pageSize != 0 {
		log.Printf("map blob %d: HVF requires %dKB-aligned offset, got 0x%x",
			resID, m.pageSize/1024, offset)

		return gpuerr.Newf(gpuerr.AlignmentViolation, "map blob", resID,
			"offset 0x%x", offset)
	}

	if len(data) > 0 {
		addr := uint64(uintptr(unsafe.Pointer(&data[0])))
		if addr%m.pageSize != 0 {
			log.Printf("map blob %d: HVF requires %dKB-aligned data pointer, "+
				"got 0x%x", resID, m.pageSize/1024, addr)

			return gpuerr.Newf(gpuerr.AlignmentViolation, "map blob", resID,
				"data pointer 0x%x", addr)
		}
	}

	return nil
}

func (m *Mapper) undoRendererMap(resID uint32) {
	err := m.renderer.UnmapBlob(resID)
	if err != nil {
		log.Printf("map blob %d: undo renderer map: %v", resID, err)
	}
}

func roundUp(n, align uint64) uint64 {
	return (n + align - 1) / align * align
}

// Unmap tears the mapping of a blob down. A resource without a mapping is
// unmapped already. When the window cannot free the region at once, Unmap
// returns UnmapSuspended and calls resume once the region is freed; the
// caller then calls Unmap again to finish.
func (m *Mapper) Unmap(resID uint32, resume func()) (UnmapResult, error) {
	mapping, ok := m.mappings[resID]
	if !ok {
		return UnmapDone, nil
	}

	switch mapping.state {
	case Mapped:
		mapping.state = Unmapping
		m.blocked++

		freed := m.window.Remove(mapping.sub, func() {
			m.poster.Post(m.handler, &regionFreedEvent{mapping: mapping})
		})
		if !freed {
			mapping.resume = resume
			return UnmapSuspended, nil
		}

		mapping.state = Released
		m.blocked--

		return UnmapDone, m.finish(mapping)
	case Released:
		return UnmapDone, m.finish(mapping)
	default:
		log.Panicf("unmap of blob %d re-driven while unmapping", resID)
	}

	return UnmapDone, nil
}

func (m *Mapper) finish(mapping *Mapping) error {
	delete(m.mappings, mapping.ResID)

	if res, ok := m.resources.Find(mapping.ResID); ok {
		res.Cache.HostPtr = nil
	}

	err := m.renderer.UnmapBlob(mapping.ResID)
	if err != nil {
		log.Printf("unmap blob %d: %v", mapping.ResID, err)
		return gpuerr.Wrap(gpuerr.RendererError, "unmap blob",
			mapping.ResID, err)
	}

	return nil
}

// Handle processes region free notifications on the engine. An owner that
// guards the mapper with a lock forwards the events it receives here while
// holding it.
func (m *Mapper) Handle(event any) error {
	switch e := event.(type) {
	case *regionFreedEvent:
		m.regionFreed(e.mapping)
	default:
		return fmt.Errorf("unknown event type: %T", event)
	}

	return nil
}

func (m *Mapper) regionFreed(mapping *Mapping) {
	if m.mappings[mapping.ResID] != mapping || mapping.state != Unmapping {
		return
	}

	mapping.state = Released
	m.blocked--

	if mapping.resume != nil && !mapping.resumed {
		mapping.resumed = true
		mapping.resume()
	}
}

// IsUnmapping tells if the mapping of a resource is being torn down.
func (m *Mapper) IsUnmapping(resID uint32) bool {
	mapping, ok := m.mappings[resID]
	return ok && mapping.state == Unmapping
}

// State returns the state of the mapping of a resource.
func (m *Mapper) State(resID uint32) (State, bool) {
	mapping, ok := m.mappings[resID]
	if !ok {
		return 0, false
	}

	return mapping.state, true
}

// Mapping returns the mapping of a resource.
func (m *Mapper) Mapping(resID uint32) (*Mapping, bool) {
	mapping, ok := m.mappings[resID]
	return mapping, ok
}

// All returns the mappings ordered by resource id.
func (m *Mapper) All() []*Mapping {
	list := make([]*Mapping, 0, len(m.mappings))
	for _, mapping := range m.mappings {
		list = append(list, mapping)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ResID < list[j].ResID })

	return list
}

// Blocked returns the number of unmaps waiting for their region to be
// freed.
func (m *Mapper) Blocked() int {
	return m.blocked
}

// Reset removes every region from the window and forgets the mappings.
func (m *Mapper) Reset() {
	for _, mapping := range m.mappings {
		if mapping.state == Mapped {
			m.window.Remove(mapping.sub, func() {})
		}
	}

	m.mappings = make(map[uint32]*Mapping)
	m.blocked = 0
}

// A Builder can build mappers.
type Builder struct {
	renderer  renderer.Renderer
	resources ResourceFinder
	window    *hostmem.Window
	poster    timing.Poster
	handler   timing.Handler
	hvf       bool
}

// MakeBuilder creates a builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithRenderer sets the backend that owns blob memory.
func (b Builder) WithRenderer(r renderer.Renderer) Builder {
	b.renderer = r
	return b
}

// WithResources sets where blobs are looked up.
func (b Builder) WithResources(f ResourceFinder) Builder {
	b.resources = f
	return b
}

// WithWindow sets the host memory window. Without a window, mapping fails
// with FeatureDisabled.
func (b Builder) WithWindow(w *hostmem.Window) Builder {
	b.window = w
	return b
}

// WithPoster sets how region free notifications reach the engine.
func (b Builder) WithPoster(p timing.Poster) Builder {
	b.poster = p
	return b
}

// WithHandler sets the handler region free notifications are posted to. It
// defaults to the mapper.
func (b Builder) WithHandler(h timing.Handler) Builder {
	b.handler = h
	return b
}

// WithHVF enables the 16KiB alignment rules of the Hypervisor framework.
func (b Builder) WithHVF(enabled bool) Builder {
	b.hvf = enabled
	return b
}

// Build creates the mapper.
func (b Builder) Build() *Mapper {
	if b.renderer == nil || b.resources == nil || b.poster == nil {
		panic("blob mapper needs a renderer, resources and a poster")
	}

	pageSize := uint64(unix.Getpagesize())
	if b.hvf {
		pageSize = HVFPageSize
	}

	m := &Mapper{
		renderer:  b.renderer,
		resources: b.resources,
		window:    b.window,
		poster:    b.poster,
		handler:   b.handler,
		hvf:       b.hvf,
		pageSize:  pageSize,
		mappings:  make(map[uint32]*Mapping),
	}

	if m.handler == nil {
		m.handler = m
	}

	return m
}
