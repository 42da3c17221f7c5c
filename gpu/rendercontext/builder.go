package rendercontext

import (
	"github.com/sarchlab/vgpu/gpu/renderer"
)

// A Builder can build context registries.
type Builder struct {
	renderer    renderer.Renderer
	resources   ResourceFinder
	capsets     []renderer.CapsetInfo
	contextInit bool
	venusOnly   bool
}

// MakeBuilder creates a builder with context init enabled.
func MakeBuilder() Builder {
	return Builder{contextInit: true}
}

// WithRenderer sets the backend contexts are created in.
func (b Builder) WithRenderer(r renderer.Renderer) Builder {
	b.renderer = r
	return b
}

// WithResources sets where attached resources are looked up.
func (b Builder) WithResources(f ResourceFinder) Builder {
	b.resources = f
	return b
}

// WithCapsets sets the capsets the device advertises.
func (b Builder) WithCapsets(capsets []renderer.CapsetInfo) Builder {
	b.capsets = capsets
	return b
}

// WithContextInit enables or disables contexts with an explicit capset.
func (b Builder) WithContextInit(enabled bool) Builder {
	b.contextInit = enabled
	return b
}

// WithVenusOnly makes non-Venus contexts no-ops.
func (b Builder) WithVenusOnly(enabled bool) Builder {
	b.venusOnly = enabled
	return b
}

// Build creates the registry.
func (b Builder) Build() *Registry {
	if b.renderer == nil {
		panic("renderer is not set")
	}

	if b.resources == nil {
		panic("resource finder is not set")
	}

	return &Registry{
		renderer:    b.renderer,
		resources:   b.resources,
		capsets:     b.capsets,
		contextInit: b.contextInit,
		venusOnly:   b.venusOnly,
		contexts:    make(map[uint32]*Context),
	}
}
