package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vgpu/gpu/device"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/sim/timing"
)

var _ = Describe("Monitor", func() {
	var (
		engine *timing.SerialEngine
		d      *device.Device
		m      *Monitor
	)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		m.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		return w
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		r := renderer.MakeReferenceBuilder().Build()
		DeferCleanup(r.Close)

		d = device.MakeBuilder().
			WithEngine(engine).
			WithRenderer(r).
			WithGuestMemory(guestmem.NewStorage(1 << 16)).
			Build()

		m = NewMonitor()
		m.RegisterEngine(engine)
		m.RegisterDevice(d)

		Expect(d.Submit(protocol.EncodeCommand(protocol.CmdResourceCreate2D,
			protocol.Header{},
			protocol.ResourceCreate2D{
				ResourceID: 3,
				Format:     uint32(protocol.FormatB8G8R8X8Unorm),
				Width:      4,
				Height:     4,
			}))).To(Succeed())
		Expect(engine.Run()).To(Succeed())
	})

	It("should refuse registering a device twice", func() {
		Expect(func() { m.RegisterDevice(d) }).To(Panic())
	})

	It("should list devices", func() {
		w := get("/api/devices")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`["GPU"]`))
	})

	It("should serve the snapshot of a device", func() {
		w := get("/api/device/GPU")

		var s device.Snapshot
		Expect(json.Unmarshal(w.Body.Bytes(), &s)).To(Succeed())
		Expect(s.Name).To(Equal("GPU"))
		Expect(s.Resources).To(HaveLen(1))
		Expect(s.Resources[0].ID).To(Equal(uint32(3)))
	})

	It("should serve sections", func() {
		w := get("/api/device/GPU/resources")

		var resources []device.ResourceState
		Expect(json.Unmarshal(w.Body.Bytes(), &resources)).To(Succeed())
		Expect(resources).To(HaveLen(1))
		Expect(resources[0].Kind).To(Equal("2d"))

		w = get("/api/device/GPU/scanouts")
		Expect(w.Code).To(Equal(http.StatusOK))

		w = get("/api/device/GPU/stats")
		Expect(w.Body.String()).To(ContainSubstring(`"device"`))
	})

	It("should answer 404 for unknown devices and sections", func() {
		Expect(get("/api/device/Other").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/device/GPU/nothing").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should serialize device state", func() {
		w := get("/api/component/GPU")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should reject malformed field requests", func() {
		w := get("/api/field/" + url.PathEscape("{"))

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("should pause and continue the engine", func() {
		get("/api/pause")
		Expect(engine.IsPaused()).To(BeTrue())

		get("/api/continue")
		Expect(engine.IsPaused()).To(BeFalse())
	})

	It("should tell the current time", func() {
		deadline := engine.CurrentTime() + 5*timing.Millisecond
		Expect(engine.RunUntil(deadline)).To(Succeed())

		Expect(get("/api/now").Body.String()).
			To(MatchJSON(fmt.Sprintf(`{"now":%d}`, deadline)))
	})

	It("should list and complete progress bars", func() {
		bar := m.CreateProgressBar("replay", 4)
		bar.Submit(3)
		bar.Answer(2)

		w := get("/api/progress")
		Expect(w.Body.String()).To(ContainSubstring(`"answered":2`))
		Expect(w.Body.String()).To(ContainSubstring(`"pending":1`))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(MatchJSON(`[]`))
	})

	It("should serve the page", func() {
		w := get("/")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})

var _ = Describe("ProgressBar", func() {
	It("should not answer more than pending", func() {
		bar := &ProgressBar{Total: 2}
		bar.Submit(1)
		bar.Answer(5)

		Expect(bar.Answered).To(Equal(uint64(1)))
		Expect(bar.Pending).To(BeZero())
		Expect(bar.Done()).To(BeFalse())

		bar.Submit(1)
		bar.Answer(1)
		Expect(bar.Done()).To(BeTrue())
	})
})
