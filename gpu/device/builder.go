package device

import (
	"github.com/sarchlab/vgpu/gpu/blob"
	"github.com/sarchlab/vgpu/gpu/fence"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/hostmem"
	"github.com/sarchlab/vgpu/gpu/present"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/rendercontext"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/gpu/resource"
	"github.com/sarchlab/vgpu/sim/hooking"
	"github.com/sarchlab/vgpu/sim/idgen"
	"github.com/sarchlab/vgpu/sim/timing"
	"github.com/sarchlab/vgpu/tracing"
)

// A Builder can build devices.
type Builder struct {
	name            string
	engine          timing.Engine
	renderer        renderer.Renderer
	memory          guestmem.Memory
	window          *hostmem.Window
	sink            ResponseSink
	ids             idgen.Generator
	backends        present.Backends
	policy          present.Policy
	display         Display
	maxOutputs      int
	blob            bool
	contextInit     bool
	venus           bool
	venusOnly       bool
	hvf             bool
	stats           bool
	presentInterval timing.VTimeInNs
}

// MakeBuilder creates a builder with blobs and context init enabled and one
// scanout.
func MakeBuilder() Builder {
	return Builder{
		name:        "GPU",
		policy:      present.DefaultPolicy(),
		display:     DefaultDisplay,
		maxOutputs:  1,
		blob:        true,
		contextInit: true,
	}
}

// WithName sets the name of the device.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithEngine sets the engine that runs the device.
func (b Builder) WithEngine(engine timing.Engine) Builder {
	b.engine = engine
	return b
}

// WithRenderer sets the 3D backend.
func (b Builder) WithRenderer(r renderer.Renderer) Builder {
	b.renderer = r
	return b
}

// WithGuestMemory sets how resource backings reach guest memory.
func (b Builder) WithGuestMemory(m guestmem.Memory) Builder {
	b.memory = m
	return b
}

// WithHostMemory sets the host memory window blobs are mapped into. Without
// it, mapping blobs is disabled.
func (b Builder) WithHostMemory(w *hostmem.Window) Builder {
	b.window = w
	return b
}

// WithResponseSink sets who receives the responses.
func (b Builder) WithResponseSink(s ResponseSink) Builder {
	b.sink = s
	return b
}

// WithIDGenerator sets how command task ids are made.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.ids = g
	return b
}

// WithBackends sets the presentation backends.
func (b Builder) WithBackends(backends present.Backends) Builder {
	b.backends = backends
	return b
}

// WithPolicy sets the presentation tier order.
func (b Builder) WithPolicy(policy present.Policy) Builder {
	b.policy = policy
	return b
}

// WithDisplay sets the display mode reported to the guest.
func (b Builder) WithDisplay(display Display) Builder {
	b.display = display
	return b
}

// WithMaxOutputs sets the number of scanouts.
func (b Builder) WithMaxOutputs(n int) Builder {
	b.maxOutputs = n
	return b
}

// WithBlob enables or disables blob resources.
func (b Builder) WithBlob(enabled bool) Builder {
	b.blob = enabled
	return b
}

// WithContextInit enables or disables contexts with an explicit capset.
func (b Builder) WithContextInit(enabled bool) Builder {
	b.contextInit = enabled
	return b
}

// WithVenus advertises the Venus capset when the renderer supports it.
func (b Builder) WithVenus(enabled bool) Builder {
	b.venus = enabled
	return b
}

// WithVenusOnly accepts non-Venus contexts as no-ops, for renderers without
// a legacy path.
func (b Builder) WithVenusOnly(enabled bool) Builder {
	b.venusOnly = enabled
	return b
}

// WithHVF applies the mapping alignment of the Hypervisor framework.
func (b Builder) WithHVF(enabled bool) Builder {
	b.hvf = enabled
	return b
}

// WithStats enables printing statistics every second.
func (b Builder) WithStats(enabled bool) Builder {
	b.stats = enabled
	return b
}

// WithPresentInterval presents the bound scanouts periodically. Zero
// disables the present timer.
func (b Builder) WithPresentInterval(interval timing.VTimeInNs) Builder {
	b.presentInterval = interval
	return b
}

// Build creates the device.
func (b Builder) Build() *Device {
	b.mustBeValid()

	ids := b.ids
	if ids == nil {
		ids = idgen.NewSequential()
	}

	d := &Device{
		HookableBase:    hooking.NewHookableBase(),
		name:            b.name,
		engine:          b.engine,
		renderer:        b.renderer,
		caps:            renderer.Probe(b.renderer),
		memory:          b.memory,
		sink:            b.sink,
		ids:             ids,
		resources:       resource.NewTable(),
		fences:          fence.NewQueue(),
		blobEnabled:     b.blob,
		presentOnSubmit: b.venus,
		display:         b.display,
		fenceTasks:      make(map[*protocol.Command]string),
		statsEnabled:    b.stats,
		presentInterval: b.presentInterval,
	}

	d.contexts = rendercontext.MakeBuilder().
		WithRenderer(b.renderer).
		WithResources(d.resources).
		WithCapsets(renderer.Capsets(b.renderer, b.venus)).
		WithContextInit(b.contextInit).
		WithVenusOnly(b.venusOnly).
		Build()

	d.mapper = blob.MakeBuilder().
		WithRenderer(b.renderer).
		WithResources(d.resources).
		WithWindow(b.window).
		WithPoster(b.engine).
		WithHandler(d).
		WithHVF(b.hvf).
		Build()

	d.pipeline = present.MakeBuilder().
		WithName(b.name + ".Present").
		WithCapabilities(d.caps).
		WithMappings(d.mapper).
		WithContexts(d.contexts).
		WithBackends(b.backends).
		WithPolicy(b.policy).
		WithIDGenerator(ids).
		Build()

	d.scanouts = make([]*Scanout, b.maxOutputs)
	for i := range d.scanouts {
		d.scanouts[i] = &Scanout{ID: uint32(i)}
	}

	d.fencePoll = timing.NewTickScheduler(tickFencePoll, d, b.engine)
	d.statsTicker = timing.NewSecondaryTickScheduler(tickStats, d, b.engine)
	d.presentTicker = timing.NewTickScheduler(tickPresent, d, b.engine)

	d.registerHandlers()
	b.renderer.SetFenceSink(&fenceSink{device: d, poster: b.engine})

	return d
}

func (b Builder) mustBeValid() {
	if b.engine == nil {
		panic("engine is not set")
	}

	if b.renderer == nil {
		panic("renderer is not set")
	}

	if b.memory == nil {
		panic("guest memory is not set")
	}

	if b.maxOutputs < 1 || b.maxOutputs > protocol.MaxScanouts {
		panic("max outputs must be between 1 and 16")
	}
}

var _ tracing.NamedHookable = (*Device)(nil)
