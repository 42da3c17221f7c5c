package device

import (
	"github.com/sarchlab/vgpu/gpu/present"
)

// ResourceState describes a live resource.
type ResourceState struct {
	ID        uint32 `json:"id"`
	Kind      string `json:"kind"`
	Width     uint32 `json:"width,omitempty"`
	Height    uint32 `json:"height,omitempty"`
	Format    uint32 `json:"format,omitempty"`
	Size      uint64 `json:"size,omitempty"`
	CtxID     uint32 `json:"ctx_id,omitempty"`
	Backed    bool   `json:"backed"`
	Mapping   string `json:"mapping,omitempty"`
	SurfaceID uint32 `json:"surface_id,omitempty"`
}

// ContextState describes a live context.
type ContextState struct {
	ID        uint32   `json:"id"`
	CapsetID  uint32   `json:"capset_id"`
	Name      string   `json:"name"`
	Noop      bool     `json:"noop"`
	Resources []uint32 `json:"resources"`
}

// MappingState describes the host mapping of a blob.
type MappingState struct {
	ResID       uint32 `json:"res_id"`
	Offset      uint64 `json:"offset"`
	Size        uint64 `json:"size"`
	AlignedSize uint64 `json:"aligned_size"`
	State       string `json:"state"`
}

// FenceState describes a pending fence.
type FenceState struct {
	ID      uint64 `json:"id"`
	CtxID   uint32 `json:"ctx_id"`
	Ring    uint8  `json:"ring"`
	Ringed  bool   `json:"ringed"`
	Command string `json:"command"`
}

// Snapshot is a consistent view of the device state.
type Snapshot struct {
	Name      string          `json:"name"`
	Resources []ResourceState `json:"resources"`
	Contexts  []ContextState  `json:"contexts"`
	Scanouts  []Scanout       `json:"scanouts"`
	Mappings  []MappingState  `json:"mappings"`
	Fences    []FenceState    `json:"fences"`
	Queue     int             `json:"queue"`
	Suspended bool            `json:"suspended"`
	Blocked   int             `json:"blocked"`
	Stats     Stats           `json:"stats"`
	Frames    present.Stats   `json:"frames"`
	LastVenus uint32          `json:"last_venus"`
}

// Snapshot captures the device state. It can be called from any goroutine.
func (d *Device) Snapshot() Snapshot {
	d.lock.Lock()
	defer d.lock.Unlock()

	s := Snapshot{
		Name:      d.name,
		Queue:     len(d.queue),
		Suspended: d.suspended,
		Blocked:   d.mapper.Blocked(),
		Stats:     d.stats,
		Frames:    d.pipeline.Stats(),
		LastVenus: d.contexts.LastVenus(),
	}

	for _, res := range d.resources.All() {
		rs := ResourceState{
			ID:        res.ID,
			Kind:      res.Kind.String(),
			Width:     res.Width,
			Height:    res.Height,
			Format:    res.Format,
			Size:      res.Size,
			CtxID:     res.CtxID,
			Backed:    res.HasBacking(),
			SurfaceID: res.Cache.SurfaceID,
		}

		if state, ok := d.mapper.State(res.ID); ok {
			rs.Mapping = state.String()
		}

		s.Resources = append(s.Resources, rs)
	}

	for _, ctx := range d.contexts.All() {
		s.Contexts = append(s.Contexts, ContextState{
			ID:        ctx.ID,
			CapsetID:  ctx.CapsetID,
			Name:      ctx.Name,
			Noop:      ctx.Noop,
			Resources: ctx.Resources(),
		})
	}

	for _, sc := range d.scanouts {
		s.Scanouts = append(s.Scanouts, *sc)
	}

	for _, m := range d.mapper.All() {
		s.Mappings = append(s.Mappings, MappingState{
			ResID:       m.ResID,
			Offset:      m.Offset,
			Size:        m.Size,
			AlignedSize: m.AlignedSize,
			State:       m.State().String(),
		})
	}

	for _, p := range d.fences.Pending() {
		s.Fences = append(s.Fences, FenceState{
			ID:      p.ID,
			CtxID:   p.CtxID,
			Ring:    p.Ring,
			Ringed:  p.RingIndexed,
			Command: p.Cmd.Type().String(),
		})
	}

	return s
}
