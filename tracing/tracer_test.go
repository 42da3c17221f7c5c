package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/vgpu/sim/timing"
)

type fakeClock struct {
	now timing.VTimeInNs
}

func (c *fakeClock) CurrentTime() timing.VTimeInNs {
	return c.now
}

var _ = Describe("StepCountTracer", func() {
	It("should count steps and tasks", func() {
		t := NewStepCountTracer(KindIs("present"))

		t.StartTask(Task{ID: "1", Kind: "present"})
		t.StartTask(Task{ID: "2", Kind: "present"})
		t.StartTask(Task{ID: "3", Kind: "cmd"})

		step := func(id, what string) {
			t.StepTask(Task{ID: id, Steps: []TaskStep{{What: what}}})
		}
		step("1", "tier:hostptr:fail")
		step("1", "tier:raster:ok")
		step("2", "tier:hostptr:fail")
		step("2", "tier:hostptr:fail")
		step("3", "tier:raster:ok")

		Expect(t.GetStepNames()).To(Equal(
			[]string{"tier:hostptr:fail", "tier:raster:ok"}))
		Expect(t.GetStepCount("tier:hostptr:fail")).To(Equal(uint64(3)))
		Expect(t.GetTaskCount("tier:hostptr:fail")).To(Equal(uint64(2)))
		Expect(t.GetStepCount("tier:raster:ok")).To(Equal(uint64(1)))

		t.EndTask(Task{ID: "1"})
		step("1", "tier:raster:ok")
		Expect(t.GetStepCount("tier:raster:ok")).To(Equal(uint64(1)))
	})
})

var _ = Describe("LatencyTracer", func() {
	It("should group finished tasks by what they do", func() {
		clock := &fakeClock{}
		t := NewLatencyTracer(clock, KindIs("cmd"))

		t.StartTask(Task{ID: "a", Kind: "cmd", What: "RESOURCE_FLUSH"})
		clock.now = 10
		t.StartTask(Task{ID: "b", Kind: "cmd", What: "RESOURCE_FLUSH"})
		t.StartTask(Task{ID: "c", Kind: "cmd", What: "SUBMIT_3D"})
		t.StartTask(Task{ID: "p", Kind: "present", What: "flush"})
		clock.now = 30
		t.EndTask(Task{ID: "a"})
		t.EndTask(Task{ID: "b"})
		t.EndTask(Task{ID: "p"})
		t.EndTask(Task{ID: "unknown"})

		Expect(t.InFlight()).To(Equal(1))
		Expect(t.Latencies()).To(Equal([]Latency{
			{What: "RESOURCE_FLUSH", Count: 2, Total: 50, Max: 30},
		}))
		Expect(t.Latencies()[0].Mean()).To(Equal(timing.VTimeInNs(25)))

		clock.now = 130
		t.EndTask(Task{ID: "c"})

		all := t.Overall()
		Expect(all.Count).To(Equal(uint64(3)))
		Expect(all.Max).To(Equal(timing.VTimeInNs(120)))
		Expect(all.Mean()).To(Equal(timing.VTimeInNs(56)))
	})

	It("should report zero without tasks", func() {
		t := NewLatencyTracer(&fakeClock{}, AllTasks)

		Expect(t.Overall().Mean()).To(BeZero())
		Expect(t.Latencies()).To(BeEmpty())
	})
})

var _ = Describe("DBTracer", func() {
	var (
		mockCtrl *gomock.Controller
		recorder *MockDataRecorder
		clock    *fakeClock
		tracer   *DBTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		recorder = NewMockDataRecorder(mockCtrl)
		clock = &fakeClock{}

		recorder.EXPECT().CreateTable(TaskTable, gomock.Any())
		recorder.EXPECT().CreateTable(StepTable, gomock.Any())
		tracer = NewDBTracer(clock, recorder)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should write finished tasks with their times", func() {
		clock.now = 5
		tracer.StartTask(Task{
			ID: "cmd-1", Kind: "cmd", What: "RESOURCE_FLUSH", Where: "GPU",
		})

		recorder.EXPECT().InsertData(StepTable, stepTableEntry{
			TaskID: "cmd-1", What: "tier:raster:ok", Time: 7,
		})
		clock.now = 7
		tracer.StepTask(Task{ID: "cmd-1", Steps: []TaskStep{{What: "tier:raster:ok"}}})

		recorder.EXPECT().InsertData(TaskTable, TaskEntry{
			ID: "cmd-1", Kind: "cmd", What: "RESOURCE_FLUSH", Location: "GPU",
			StartTime: 5, EndTime: 9,
		})
		clock.now = 9
		tracer.EndTask(Task{ID: "cmd-1"})
	})

	It("should skip tasks outside the time range", func() {
		tracer.SetTimeRange(100, 200)

		clock.now = 10
		tracer.StartTask(Task{ID: "early"})
		clock.now = 20
		tracer.EndTask(Task{ID: "early"})

		clock.now = 300
		tracer.StartTask(Task{ID: "late"})
		tracer.StepTask(Task{ID: "late", Steps: []TaskStep{{What: "x"}}})
		tracer.EndTask(Task{ID: "late"})
	})

	It("should flush on terminate", func() {
		recorder.EXPECT().Flush()

		tracer.Terminate()
	})
})
