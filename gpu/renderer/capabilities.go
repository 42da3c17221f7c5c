package renderer

import (
	"log"

	"github.com/sarchlab/vgpu/gpu/protocol"
)

// Capabilities lists the optional entry points a backend provides. It is
// probed once when the device is built.
type Capabilities struct {
	ContextFences   ContextFencer
	HostPointers    HostPointerExporter
	Surfaces        SurfaceExporter
	VenusRegistrar  VenusResourceRegistrar
	ResourceInfoSrc ResourceInfoProvider
}

// Probe finds the optional entry points of r. Missing ones are reported
// once on the standard logger.
func Probe(r Renderer) Capabilities {
	var c Capabilities

	c.ContextFences, _ = r.(ContextFencer)
	c.HostPointers, _ = r.(HostPointerExporter)
	c.Surfaces, _ = r.(SurfaceExporter)
	c.VenusRegistrar, _ = r.(VenusResourceRegistrar)
	c.ResourceInfoSrc, _ = r.(ResourceInfoProvider)

	if c.HostPointers == nil {
		log.Printf("renderer: host pointer export not available; " +
			"hostptr present path disabled")
	}

	if c.Surfaces == nil {
		log.Printf("renderer: surface export not available; " +
			"zero-copy path disabled")
	}

	if c.VenusRegistrar == nil {
		log.Printf("renderer: venus resource registration not available")
	}

	return c
}

// CapsetInfo is one entry of the capset list advertised to the guest.
type CapsetInfo struct {
	ID         uint32
	MaxVersion uint32
	MaxSize    uint32
}

// Capsets builds the capset list the device advertises. VIRGL is always
// listed, VIRGL2 when the backend supports it, and VENUS when it is enabled
// and supported.
func Capsets(r Renderer, venus bool) []CapsetInfo {
	list := []CapsetInfo{capsetInfo(r, protocol.CapsetVirgl)}

	virgl2 := capsetInfo(r, protocol.CapsetVirgl2)
	if virgl2.MaxVersion > 0 {
		list = append(list, virgl2)
	}

	if venus {
		v := capsetInfo(r, protocol.CapsetVenus)
		if v.MaxSize > 0 {
			list = append(list, v)
		}
	}

	return list
}

func capsetInfo(r Renderer, id uint32) CapsetInfo {
	version, size := r.CapsetInfo(id)

	return CapsetInfo{ID: id, MaxVersion: version, MaxSize: size}
}

// Advertises tells if capsetID is in the list.
func Advertises(list []CapsetInfo, capsetID uint32) bool {
	for _, c := range list {
		if c.ID == capsetID {
			return true
		}
	}

	return false
}
