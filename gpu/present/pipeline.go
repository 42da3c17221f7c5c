// Package present gets the pixels of scanout resources on screen, trying
// the cheapest way first.
//
// A frame is offered to the tiers of a Policy in order:
//
//   - hostptr shows memory the owning context exports to the host through
//     the swapchain.
//   - zerocopy hands a platform surface exported by the renderer to the
//     surface provider.
//   - swapchain blits the mapped host memory of the resource.
//   - raster converts the pixels into an image for the display console.
//
// A tier either shows the whole frame or changes nothing. Frames without
// any pixel source are dropped; presentation failures never reach the
// guest.
package present

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/vgpu/gpu/blob"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/gpu/resource"
	"github.com/sarchlab/vgpu/sim/hooking"
	"github.com/sarchlab/vgpu/sim/idgen"
	"github.com/sarchlab/vgpu/tracing"
)

// Hook positions of the pipeline.
var (
	// HookPosTierAttempt fires after each tier attempt, with a TierAttempt
	// as detail.
	HookPosTierAttempt = &hooking.HookPos{Name: "PresentTierAttempt"}

	// HookPosPresented fires when a tier showed the frame, with the Outcome
	// as detail.
	HookPosPresented = &hooking.HookPos{Name: "PresentPresented"}

	// HookPosDropped fires when a frame is dropped, with the reason as
	// detail.
	HookPosDropped = &hooking.HookPos{Name: "PresentDropped"}
)

// Reasons a frame is presented.
const (
	ReasonSetScanout = "set_scanout"
	ReasonFlush      = "flush"
	ReasonTimer      = "timer"
	ReasonSubmit     = "submit"
)

// Request asks for a frame.
type Request struct {
	ScanoutID uint32
	Resource  *resource.Resource
	FB        Framebuffer

	// Damage is the part of the framebuffer that changed. Empty means all.
	Damage image.Rectangle

	Reason string

	// TaskID is the command task the frame belongs to, if any.
	TaskID string
}

// Status tells if a frame reached the screen.
type Status int

// Statuses.
const (
	Presented Status = iota
	Dropped
)

func (s Status) String() string {
	if s == Presented {
		return "presented"
	}

	return "dropped"
}

// Outcome is the result of a Present call.
type Outcome struct {
	Status Status
	Tier   Tier
}

// TierAttempt reports one tier attempt. Err is nil on success.
type TierAttempt struct {
	Tier Tier
	Err  error
}

func (a TierAttempt) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s: %v", a.Tier, a.Err)
	}

	return a.Tier.String() + ": ok"
}

// MappingSource looks up the host memory mappings of blobs.
type MappingSource interface {
	Mapping(resID uint32) (*blob.Mapping, bool)
}

// VenusTracker knows the most recent Venus context.
type VenusTracker interface {
	LastVenus() uint32
}

// Stats counts frames.
type Stats struct {
	Presented map[string]uint64
	Dropped   uint64
}

var errTierUnavailable = errors.New("not available")

type pixelSource struct {
	direct []byte
	iov    guestmem.IOV
}

// Pipeline presents frames.
type Pipeline struct {
	*hooking.HookableBase

	name     string
	caps     renderer.Capabilities
	mappings MappingSource
	contexts VenusTracker
	backends Backends
	policy   Policy
	ids      idgen.Generator

	mmap   func(fd int, size int) ([]byte, error)
	munmap func(b []byte) error

	swapchain Swapchain
	presented map[Tier]uint64
	dropped   uint64
}

// Name returns the name of the pipeline.
func (p *Pipeline) Name() string {
	return p.name
}

// Policy returns the tier order.
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Backends returns the collaborators frames are shown through.
func (p *Pipeline) Backends() Backends {
	return p.backends
}

// Present shows a frame of a resource.
func (p *Pipeline) Present(req Request) Outcome {
	what := req.Reason
	if what == "" {
		what = "present"
	}

	taskID := p.ids.Generate()
	tracing.StartTask(taskID, req.TaskID, p, "present", what, req)
	defer tracing.EndTask(taskID, p)

	src, ok := p.pixels(req.Resource)
	if !ok {
		return p.drop(req, taskID, "no pixel source")
	}

	for _, tier := range p.policy.Tiers {
		err := p.attempt(tier, req, src)

		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosTierAttempt,
			Item:   req,
			Detail: TierAttempt{Tier: tier, Err: err},
		})

		if err != nil {
			tracing.AddTaskStep(taskID, p, "tier:"+tier.String()+":fail")
			continue
		}

		tracing.AddTaskStep(taskID, p, "tier:"+tier.String()+":ok")

		outcome := Outcome{Status: Presented, Tier: tier}
		p.presented[tier]++
		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosPresented,
			Item:   req,
			Detail: outcome,
		})

		return outcome
	}

	return p.drop(req, taskID, "no tier presented")
}

func (p *Pipeline) drop(req Request, taskID, reason string) Outcome {
	tracing.AddTaskStep(taskID, p, "dropped")

	p.dropped++
	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosDropped,
		Item:   req,
		Detail: reason,
	})

	return Outcome{Status: Dropped}
}

func (p *Pipeline) pixels(res *resource.Resource) (pixelSource, bool) {
	if res == nil {
		return pixelSource{}, false
	}

	if p.mappings != nil {
		if m, ok := p.mappings.Mapping(res.ID); ok && m.Bytes() != nil {
			return pixelSource{direct: m.Bytes()}, true
		}
	}

	if res.Cache.HostPtr != nil {
		return pixelSource{direct: res.Cache.HostPtr}, true
	}

	if res.HasBacking() {
		return pixelSource{iov: res.IOV}, true
	}

	return pixelSource{}, false
}

func (p *Pipeline) attempt(tier Tier, req Request, src pixelSource) error {
	switch tier {
	case TierHostPtr:
		return p.presentHostPtr(req)
	case TierZeroCopy:
		return p.presentZeroCopy(req)
	case TierSwapchain:
		return p.presentSwapchain(req, src)
	case TierRaster:
		return p.presentRaster(req, src)
	default:
		return fmt.Errorf("unknown tier %s", tier)
	}
}

func (p *Pipeline) owningContext(res *resource.Resource) uint32 {
	if res.CtxID != 0 || p.contexts == nil {
		return res.CtxID
	}

	return p.contexts.LastVenus()
}

func (p *Pipeline) presentHostPtr(req Request) error {
	if p.caps.HostPointers == nil {
		return errTierUnavailable
	}

	res := req.Resource

	ctxID := p.owningContext(res)
	if ctxID == 0 {
		return errors.New("no context exports host memory")
	}

	need := uint64(req.FB.Stride) * uint64(req.FB.Height)

	fd, size, err := p.caps.HostPointers.HostPointerFD(ctxID, need)
	if err != nil {
		return err
	}

	if size < need {
		return fmt.Errorf("exported %d bytes, frame needs %d", size, need)
	}

	hm, err := p.contextMapping(res, fd, size)
	if err != nil {
		return err
	}

	fb := req.FB
	fb.Offset = 0

	err = fb.Check(uint64(len(hm.Data)))
	if err != nil {
		return err
	}

	sc, err := p.ensureSwapchain(fb.Width, fb.Height)
	if err != nil {
		return err
	}

	return sc.Present(hm.Data, fb)
}

func (p *Pipeline) contextMapping(
	res *resource.Resource,
	fd int,
	size uint64,
) (*resource.HostMapping, error) {
	cached := res.Cache.Context
	if cached != nil && cached.FD == fd && cached.Size == size {
		return cached, nil
	}

	data, err := p.mmap(fd, int(size))
	if err != nil {
		return nil, fmt.Errorf("map exported memory: %w", err)
	}

	p.releaseContextMapping(res)
	res.Cache.Context = &resource.HostMapping{FD: fd, Size: size, Data: data}

	return res.Cache.Context, nil
}

func (p *Pipeline) releaseContextMapping(res *resource.Resource) {
	if res.Cache.Context == nil {
		return
	}

	_ = p.munmap(res.Cache.Context.Data)
	res.Cache.Context = nil
}

func (p *Pipeline) presentZeroCopy(req Request) error {
	if p.caps.Surfaces == nil {
		return errTierUnavailable
	}

	res := req.Resource

	id, err := p.caps.Surfaces.ResourceSurfaceID(p.owningContext(res), res.ID)
	if err != nil {
		return err
	}

	if id == 0 {
		return errors.New("resource has no surface")
	}

	err = p.backends.Surfaces.Present(id, req.FB)
	if err != nil {
		return err
	}

	res.Cache.SurfaceID = id

	return nil
}

func (p *Pipeline) presentSwapchain(req Request, src pixelSource) error {
	if src.direct == nil {
		return errors.New("no host pointer")
	}

	err := req.FB.Check(uint64(len(src.direct)))
	if err != nil {
		return err
	}

	sc, err := p.ensureSwapchain(req.FB.Width, req.FB.Height)
	if err != nil {
		return err
	}

	return sc.Present(src.direct, req.FB)
}

// ensureSwapchain creates the device-wide swapchain on first use and
// resizes it when the frame size changes.
func (p *Pipeline) ensureSwapchain(width, height uint32) (Swapchain, error) {
	if p.swapchain != nil {
		w, h := p.swapchain.Size()
		if w == width && h == height {
			return p.swapchain, nil
		}

		err := p.swapchain.Resize(width, height)
		if err == nil {
			return p.swapchain, nil
		}

		p.swapchain.Destroy()
		p.swapchain = nil
	}

	sc, err := p.backends.Swapchain.Create(width, height)
	if err != nil {
		return nil, err
	}

	p.swapchain = sc

	return sc, nil
}

func (p *Pipeline) presentRaster(req Request, src pixelSource) error {
	fb := req.FB
	if err := fb.Check(fb.End()); err != nil {
		return err
	}

	data := src.direct
	if data == nil {
		end := fb.End()
		if uint64(src.iov.Len()) < end {
			return fmt.Errorf("backing holds %d bytes, frame needs %d",
				src.iov.Len(), end)
		}

		data = make([]byte, end)
		src.iov.ReadAt(data, 0)
	}

	res := req.Resource
	bounds := image.Rect(0, 0, int(fb.Width), int(fb.Height))

	img := res.Cache.Raster
	damage := req.Damage

	if img == nil || img.Bounds() != bounds {
		img = image.NewRGBA(bounds)
		damage = image.Rectangle{}
	}

	err := rasterize(img, data, fb, damage)
	if err != nil {
		return err
	}

	console := p.backends.Console
	if w, h := console.Size(); w != fb.Width || h != fb.Height {
		console.Resize(fb.Width, fb.Height)
	}

	console.Update(img)
	res.Cache.Raster = img

	return nil
}

// ReleaseResource drops what the pipeline cached for a resource.
func (p *Pipeline) ReleaseResource(res *resource.Resource) {
	p.releaseContextMapping(res)
	res.Cache.SurfaceID = 0
	res.Cache.Raster = nil
}

// Swapchain returns the device-wide swapchain, or nil.
func (p *Pipeline) Swapchain() Swapchain {
	return p.swapchain
}

// Stats returns the frame counters.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Presented: make(map[string]uint64, len(p.presented)),
		Dropped:   p.dropped,
	}

	for tier, n := range p.presented {
		s.Presented[tier.String()] = n
	}

	return s
}

// Reset destroys the swapchain.
func (p *Pipeline) Reset() {
	if p.swapchain != nil {
		p.swapchain.Destroy()
		p.swapchain = nil
	}
}

// A Builder can build pipelines.
type Builder struct {
	name     string
	caps     renderer.Capabilities
	mappings MappingSource
	contexts VenusTracker
	backends Backends
	policy   Policy
	ids      idgen.Generator
}

// MakeBuilder creates a builder with the default policy and null backends.
func MakeBuilder() Builder {
	return Builder{
		name:   "Present",
		policy: DefaultPolicy(),
	}
}

// WithName sets the name used for tracing.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithCapabilities sets the optional renderer entry points.
func (b Builder) WithCapabilities(caps renderer.Capabilities) Builder {
	b.caps = caps
	return b
}

// WithMappings sets where blob mappings are looked up.
func (b Builder) WithMappings(m MappingSource) Builder {
	b.mappings = m
	return b
}

// WithContexts sets where the last Venus context is looked up.
func (b Builder) WithContexts(c VenusTracker) Builder {
	b.contexts = c
	return b
}

// WithBackends sets the collaborators frames are shown through.
func (b Builder) WithBackends(backends Backends) Builder {
	b.backends = backends
	return b
}

// WithPolicy sets the tier order.
func (b Builder) WithPolicy(policy Policy) Builder {
	b.policy = policy
	return b
}

// WithIDGenerator sets how present task ids are made.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.ids = g
	return b
}

// Build creates the pipeline.
func (b Builder) Build() *Pipeline {
	if len(b.policy.Tiers) == 0 {
		panic("presentation policy has no tier")
	}

	ids := b.ids
	if ids == nil {
		ids = idgen.NewSequential()
	}

	return &Pipeline{
		HookableBase: hooking.NewHookableBase(),
		name:         b.name,
		caps:         b.caps,
		mappings:     b.mappings,
		contexts:     b.contexts,
		backends:     b.backends.withDefaults(),
		policy:       b.policy,
		ids:          ids,
		mmap:         mmapShared,
		munmap:       unix.Munmap,
		presented:    make(map[Tier]uint64),
	}
}

func mmapShared(fd int, size int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
}
