package device

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vgpu/gpu/blob"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/hostmem"
	"github.com/sarchlab/vgpu/gpu/present"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/sim/hooking"
	"github.com/sarchlab/vgpu/sim/timing"
)

var _ = Describe("Blob scanout", func() {
	const (
		blobID   = 7
		blobSize = 1 << 20
	)

	var (
		engine   *timing.SerialEngine
		r        *renderer.Reference
		window   *hostmem.Window
		recorder *present.Recorder
		sink     *responses
		d        *Device
		attempts []present.TierAttempt
		reasons  []string
	)

	send := func(t protocol.CmdType, hdr protocol.Header, payload ...any) {
		Expect(d.Submit(protocol.EncodeCommand(t, hdr, payload...))).
			To(Succeed())
	}

	run := func() {
		Expect(engine.Run()).To(Succeed())
	}

	setScanoutBlob := func(width, height, stride uint32) {
		ss := protocol.SetScanoutBlob{
			Rect:       protocol.Rect{Width: width, Height: height},
			ResourceID: blobID,
			Width:      width,
			Height:     height,
			Format:     uint32(protocol.FormatB8G8R8X8Unorm),
		}
		ss.Strides[0] = stride

		send(protocol.CmdSetScanoutBlob, protocol.Header{}, ss)
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		r = renderer.MakeReferenceBuilder().WithVenus().Build()
		DeferCleanup(r.Close)

		window = hostmem.NewWindow(1 << 26)
		recorder = &present.Recorder{}
		sink = &responses{}
		attempts = nil
		reasons = nil

		d = MakeBuilder().
			WithEngine(engine).
			WithRenderer(r).
			WithGuestMemory(guestmem.NewStorage(1 << 20)).
			WithHostMemory(window).
			WithResponseSink(sink).
			WithBackends(present.Backends{
				Swapchain: present.NewCaptureSwapchain(recorder),
				Console:   present.NewCaptureConsole(recorder),
			}).
			WithVenus(true).
			Build()

		d.Pipeline().AcceptHook(hooking.NewHookFunc(func(ctx hooking.HookCtx) {
			switch ctx.Pos {
			case present.HookPosTierAttempt:
				attempts = append(attempts, ctx.Detail.(present.TierAttempt))
			case present.HookPosPresented:
				reasons = append(reasons, ctx.Item.(present.Request).Reason)
			}
		}))

		send(protocol.CmdCtxCreate, protocol.Header{CtxID: 1},
			ctxCreate(protocol.CapsetVenus, "venus"))
		send(protocol.CmdResourceCreateBlob, protocol.Header{CtxID: 1},
			protocol.ResourceCreateBlob{
				ResourceID: blobID,
				BlobMem:    protocol.BlobMemHost3D,
				BlobFlags:  protocol.BlobFlagUseMappable,
				Size:       blobSize,
			})
		send(protocol.CmdResourceMapBlob, protocol.Header{},
			protocol.MapBlob{ResourceID: blobID})

		run()

		Expect(sink.types()).To(Equal([]protocol.RespType{
			protocol.RespOKNoData,
			protocol.RespOKNoData,
			protocol.RespOKMapInfo,
		}))
		Expect(sink.last().Body).To(Equal(protocol.RespMapInfo{
			MapInfo: protocol.MapCacheCached,
		}))
	})

	It("should install the blob in the host memory window", func() {
		sub, ok := window.Lookup(0)
		Expect(ok).To(BeTrue())
		Expect(sub.Size()).To(BeNumerically(">=", blobSize))

		snapshot := d.Snapshot()
		Expect(snapshot.Mappings).To(HaveLen(1))
		Expect(snapshot.Mappings[0].State).To(Equal("mapped"))
		Expect(snapshot.Resources[0].Mapping).To(Equal("mapped"))
		Expect(snapshot.Resources[0].CtxID).To(Equal(uint32(1)))
	})

	It("should present the blob, then unmap and unref it", func() {
		pixels := r.Contents(blobID)
		for i := range pixels {
			pixels[i] = byte(i)
		}

		setScanoutBlob(512, 512, 2048)
		send(protocol.CmdResourceFlush, protocol.Header{},
			protocol.ResourceFlush{
				Rect:       protocol.Rect{Width: 512, Height: 512},
				ResourceID: blobID,
			})

		run()

		Expect(sink.types()[3:]).To(Equal([]protocol.RespType{
			protocol.RespOKNoData,
			protocol.RespOKNoData,
		}))
		Expect(reasons).To(Equal([]string{
			present.ReasonSetScanout,
			present.ReasonFlush,
		}))
		Expect(attempts[len(attempts)-1]).To(Equal(
			present.TierAttempt{Tier: present.TierSwapchain}))

		frame, ok := recorder.Last()
		Expect(ok).To(BeTrue())
		Expect(frame.Source).To(Equal("swapchain"))
		Expect(frame.Width).To(Equal(uint32(512)))
		Expect(frame.Pixels).To(Equal(pixels))

		sub, ok := window.Lookup(0)
		Expect(ok).To(BeTrue())
		sub.Ref()

		send(protocol.CmdResourceUnmapBlob, protocol.Header{},
			protocol.ResourceID{ResourceID: blobID})
		send(protocol.CmdResourceUnref, protocol.Header{},
			protocol.ResourceID{ResourceID: blobID})

		run()

		Expect(sink.rsps).To(HaveLen(5))
		Expect(d.Suspended()).To(BeTrue())
		Expect(d.QueueLength()).To(Equal(2))
		state, _ := d.Mapper().State(blobID)
		Expect(state).To(Equal(blob.Unmapping))
		Expect(r.IsMapped(blobID)).To(BeTrue())

		sub.Unref()
		run()

		Expect(sink.types()[5:]).To(Equal([]protocol.RespType{
			protocol.RespOKNoData,
			protocol.RespOKNoData,
		}))
		Expect(sink.cmds[5].Type()).To(Equal(protocol.CmdResourceUnmapBlob))
		Expect(sink.cmds[6].Type()).To(Equal(protocol.CmdResourceUnref))
		Expect(d.Suspended()).To(BeFalse())
		Expect(d.QueueLength()).To(Equal(0))
		Expect(r.HasResource(blobID)).To(BeFalse())
		Expect(d.Scanouts()[0].Bound()).To(BeFalse())
		Expect(window.Subregions()).To(BeEmpty())
	})

	It("should hold later commands while the unmap waits", func() {
		sub, _ := window.Lookup(0)
		sub.Ref()

		send(protocol.CmdResourceUnref, protocol.Header{},
			protocol.ResourceID{ResourceID: blobID})
		send(protocol.CmdGetDisplayInfo, protocol.Header{})

		run()

		Expect(sink.rsps).To(HaveLen(3))
		Expect(d.Mapper().Blocked()).To(Equal(1))
		Expect(r.HasResource(blobID)).To(BeTrue())

		sub.Unref()
		run()

		Expect(sink.types()[3:]).To(Equal([]protocol.RespType{
			protocol.RespOKNoData,
			protocol.RespOKDisplayInfo,
		}))
		Expect(d.Mapper().Blocked()).To(BeZero())
		Expect(r.HasResource(blobID)).To(BeFalse())
	})

	It("should release the region under the device lock", func() {
		sub, _ := window.Lookup(0)
		sub.Ref()

		send(protocol.CmdResourceUnmapBlob, protocol.Header{},
			protocol.ResourceID{ResourceID: blobID})

		run()

		Expect(d.Suspended()).To(BeTrue())

		done := make(chan struct{})
		watched := make(chan []MappingState)

		go func() {
			var last []MappingState

			for {
				select {
				case <-done:
					watched <- last
					return
				default:
					last = d.Snapshot().Mappings
				}
			}
		}()

		sub.Unref()
		run()
		close(done)

		for _, m := range <-watched {
			Expect(m.ResID).To(Equal(uint32(blobID)))
		}

		Expect(d.Suspended()).To(BeFalse())
		Expect(d.Mapper().Blocked()).To(BeZero())
		_, mapped := d.Mapper().State(blobID)
		Expect(mapped).To(BeFalse())
	})

	It("should unmap at once when nobody else holds the region", func() {
		send(protocol.CmdResourceUnmapBlob, protocol.Header{},
			protocol.ResourceID{ResourceID: blobID})

		run()

		Expect(sink.last().Type()).To(Equal(protocol.RespOKNoData))
		Expect(d.Suspended()).To(BeFalse())
		Expect(r.IsMapped(blobID)).To(BeFalse())
		_, mapped := d.Mapper().State(blobID)
		Expect(mapped).To(BeFalse())
	})

	It("should refuse a framebuffer larger than the blob", func() {
		setScanoutBlob(1024, 1024, 4096)

		run()

		Expect(sink.last().Type()).To(Equal(protocol.RespErrInvalidParameter))
		Expect(d.Scanouts()[0].Bound()).To(BeFalse())
		Expect(reasons).To(BeEmpty())
	})

	It("should refuse tiny framebuffers", func() {
		setScanoutBlob(8, 8, 32)

		run()

		Expect(sink.last().Type()).To(Equal(protocol.RespErrInvalidParameter))
	})

	It("should refuse mapping the blob twice", func() {
		send(protocol.CmdResourceMapBlob, protocol.Header{},
			protocol.MapBlob{ResourceID: blobID, Offset: 1 << 22})

		run()

		Expect(sink.last().Type()).To(Equal(protocol.RespErrInvalidParameter))
	})
})
