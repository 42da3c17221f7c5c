package present

import (
	"image"
	"image/color"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vgpu/gpu/blob"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/hostmem"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/gpu/resource"
	"github.com/sarchlab/vgpu/sim/hooking"
	"github.com/sarchlab/vgpu/sim/timing"
	"github.com/sarchlab/vgpu/tracing"
)

type lastVenus uint32

func (v lastVenus) LastVenus() uint32 {
	return uint32(v)
}

// bgrx fills a w×h B8G8R8X8 frame where pixel (x, y) is red x, green y,
// blue 7.
func bgrx(w, h, stride int) []byte {
	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := data[y*stride+x*4:]
			p[0], p[1], p[2], p[3] = 7, byte(y), byte(x), 0
		}
	}

	return data
}

var _ = Describe("Pipeline", func() {
	var (
		r        *renderer.Reference
		recorder *Recorder
		console  *CaptureConsole
		chains   *CaptureSwapchain
		backends Backends
		builder  Builder
		res      *resource.Resource
		fb       Framebuffer
		events   []*hooking.HookPos
	)

	build := func() *Pipeline {
		p := builder.WithBackends(backends).Build()
		p.AcceptHook(hooking.NewHookFunc(func(ctx hooking.HookCtx) {
			events = append(events, ctx.Pos)
		}))

		return p
	}

	BeforeEach(func() {
		r = renderer.MakeReferenceBuilder().
			WithVenus().
			WithHostPointers().
			WithSurfaces().
			Build()
		DeferCleanup(r.Close)

		recorder = &Recorder{}
		console = NewCaptureConsole(recorder)
		chains = NewCaptureSwapchain(recorder)
		backends = Backends{Console: console}
		builder = MakeBuilder()
		events = nil

		res = &resource.Resource{ID: 5, Kind: resource.Blob}
		fb = Framebuffer{
			Width: 4, Height: 2, Stride: 16,
			Format: protocol.FormatB8G8R8X8Unorm,
		}
	})

	It("should drop frames without pixels", func() {
		p := build()

		outcome := p.Present(Request{Resource: res, FB: fb})

		Expect(outcome.Status).To(Equal(Dropped))
		Expect(events).To(Equal([]*hooking.HookPos{HookPosDropped}))
		Expect(p.Stats().Dropped).To(Equal(uint64(1)))
		Expect(recorder.Frames()).To(BeEmpty())
	})

	It("should rasterize guest backing when nothing else is available", func() {
		data := bgrx(4, 2, 16)
		res.Kind = resource.Simple2D
		res.IOV = guestmem.IOV{data[:20], data[20:]}
		p := build()

		outcome := p.Present(Request{Resource: res, FB: fb})

		Expect(outcome).To(Equal(Outcome{Status: Presented, Tier: TierRaster}))
		w, h := console.Size()
		Expect([]uint32{w, h}).To(Equal([]uint32{4, 2}))

		img := console.Image()
		Expect(img.Bounds()).To(Equal(image.Rect(0, 0, 4, 2)))
		Expect(img.RGBAAt(3, 1)).To(Equal(color.RGBA{R: 3, G: 1, B: 7, A: 255}))
		Expect(res.Cache.Raster).To(BeIdenticalTo(img))
		Expect(events).To(HaveLen(5))
		Expect(events[4]).To(BeIdenticalTo(HookPosPresented))
	})

	It("should size the raster to the framebuffer when tiers 1 to 3 fail", func() {
		res.Cache.HostPtr = bgrx(4, 2, 16)
		fb.Width = 3
		p := build()

		outcome := p.Present(Request{Resource: res, FB: fb})

		Expect(outcome.Tier).To(Equal(TierRaster))
		Expect(console.Image().Bounds()).To(Equal(image.Rect(0, 0, 3, 2)))
	})

	It("should only redraw the damaged area of a cached raster", func() {
		data := bgrx(4, 2, 16)
		res.Cache.HostPtr = data
		p := build()
		p.Present(Request{Resource: res, FB: fb})

		data[0], data[4] = 99, 99
		p.Present(Request{
			Resource: res, FB: fb, Damage: image.Rect(1, 0, 2, 1),
		})

		img := console.Image()
		Expect(img.RGBAAt(0, 0).B).To(Equal(uint8(7)))
		Expect(img.RGBAAt(1, 0).B).To(Equal(uint8(99)))
	})

	It("should refuse frames larger than the pixel source", func() {
		res.Cache.HostPtr = bgrx(4, 1, 16)
		p := build()

		outcome := p.Present(Request{Resource: res, FB: fb})

		Expect(outcome.Status).To(Equal(Dropped))
		Expect(console.Image()).To(BeNil())
		Expect(res.Cache.Raster).To(BeNil())
	})

	Context("with a swapchain", func() {
		BeforeEach(func() {
			backends.Swapchain = chains
			res.Cache.HostPtr = bgrx(4, 2, 16)
		})

		It("should blit mapped memory", func() {
			p := build()

			outcome := p.Present(Request{Resource: res, FB: fb})

			Expect(outcome.Tier).To(Equal(TierSwapchain))
			frame, ok := recorder.Last()
			Expect(ok).To(BeTrue())
			Expect(frame.Source).To(Equal("swapchain"))
			Expect(frame.Pixels).To(HaveLen(32))
		})

		It("should keep one swapchain and resize it", func() {
			p := build()
			p.Present(Request{Resource: res, FB: fb})
			p.Present(Request{Resource: res, FB: fb})

			fb.Width, fb.Height = 2, 1
			p.Present(Request{Resource: res, FB: fb})

			Expect(chains.Created()).To(Equal(1))
			w, h := p.Swapchain().Size()
			Expect([]uint32{w, h}).To(Equal([]uint32{2, 1}))

			p.Reset()
			Expect(p.Swapchain()).To(BeNil())
		})

		It("should follow the policy order", func() {
			builder = builder.WithPolicy(Policy{Tiers: []Tier{TierRaster, TierSwapchain}})
			p := build()

			Expect(p.Present(Request{Resource: res, FB: fb}).Tier).To(Equal(TierRaster))
		})
	})

	Context("with renderer exports", func() {
		BeforeEach(func() {
			backends.Swapchain = chains
			backends.Surfaces = CaptureSurfaces{Recorder: recorder}
			builder = builder.WithCapabilities(renderer.Probe(r))

			Expect(r.CreateContext(3, protocol.CapsetVenus, "vk")).To(Succeed())
			Expect(r.CreateBlob(renderer.BlobArgs{
				ID: 5, CtxID: 3, BlobMem: protocol.BlobMemHost3D, Size: 64,
			})).To(Succeed())
			res.Cache.HostPtr = bgrx(4, 2, 16)
		})

		It("should present the surface of the resource", func() {
			p := build()

			outcome := p.Present(Request{Resource: res, FB: fb})

			Expect(outcome.Tier).To(Equal(TierZeroCopy))
			Expect(res.Cache.SurfaceID).To(Equal(uint32(0x1005)))
			frame, _ := recorder.Last()
			Expect(frame.SurfaceID).To(Equal(uint32(0x1005)))

			p.ReleaseResource(res)
			Expect(res.Cache.SurfaceID).To(BeZero())
		})

		It("should present memory exported by the last venus context", func() {
			exported := bgrx(4, 2, 16)
			exported[0] = 42
			Expect(r.WriteHostPointer(3, exported)).To(Succeed())
			p := builder.WithContexts(lastVenus(3)).WithBackends(backends).Build()

			outcome := p.Present(Request{Resource: res, FB: fb})

			Expect(outcome.Tier).To(Equal(TierHostPtr))
			Expect(res.Cache.Context).NotTo(BeNil())
			frame, _ := recorder.Last()
			Expect(frame.Pixels[0]).To(Equal(uint8(42)))

			mapping := res.Cache.Context
			p.Present(Request{Resource: res, FB: fb})
			Expect(res.Cache.Context).To(BeIdenticalTo(mapping))

			Expect(r.WriteHostPointer(3, make([]byte, 256))).To(Succeed())
			p.Present(Request{Resource: res, FB: fb})
			Expect(res.Cache.Context.Size).To(Equal(uint64(256)))

			p.ReleaseResource(res)
			Expect(res.Cache.Context).To(BeNil())
		})

		It("should fall through when the context exported too little", func() {
			Expect(r.WriteHostPointer(3, make([]byte, 8))).To(Succeed())
			p := builder.WithContexts(lastVenus(3)).WithBackends(backends).Build()

			outcome := p.Present(Request{Resource: res, FB: fb})

			Expect(outcome.Tier).To(Equal(TierZeroCopy))
			Expect(res.Cache.Context).To(BeNil())
		})

		It("should report the tiers it went through", func() {
			p := build()
			tracer := tracing.NewStepCountTracer(tracing.KindIs("present"))
			tracing.CollectTrace(p, tracer)

			p.Present(Request{Resource: res, FB: fb, Reason: ReasonFlush})

			Expect(tracer.GetStepNames()).To(Equal([]string{
				"tier:hostptr:fail", "tier:zerocopy:ok",
			}))
		})
	})

	It("should prefer the bytes of a live mapping", func() {
		engine := timing.NewSerialEngine()
		table := resource.NewTable()
		mapped, _ := table.Create(5, resource.Blob, resource.Attrs{
			Size: 1 << 14, BlobMem: protocol.BlobMemHost3D,
		})
		Expect(r.CreateBlob(renderer.BlobArgs{
			ID: 5, BlobMem: protocol.BlobMemHost3D, Size: 1 << 14,
		})).To(Succeed())
		mapper := blob.MakeBuilder().
			WithRenderer(r).
			WithResources(table).
			WithWindow(hostmem.NewWindow(1 << 20)).
			WithPoster(engine).
			Build()
		_, err := mapper.Map(5, 0)
		Expect(err).NotTo(HaveOccurred())

		m, _ := mapper.Mapping(5)
		copy(m.Bytes(), bgrx(4, 2, 16))
		mapped.Cache.HostPtr = nil

		backends.Swapchain = chains
		p := builder.WithMappings(mapper).WithBackends(backends).Build()

		outcome := p.Present(Request{Resource: mapped, FB: fb})

		Expect(outcome.Tier).To(Equal(TierSwapchain))
		frame, _ := recorder.Last()
		Expect(frame.Pixels[:4]).To(Equal([]byte{7, 0, 0, 0}))
	})
})
