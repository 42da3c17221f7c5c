package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/vgpu/sim/hooking"
)

var _ = Describe("Api", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *MockNamedHookable
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = NewMockNamedHookable(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("with hooks", func() {
		BeforeEach(func() {
			domain.EXPECT().NumHooks().Return(1).AnyTimes()
		})

		It("should panic if ID is not given", func() {
			Expect(func() {
				StartTask("", "", domain, "cmd", "what", nil)
			}).Should(Panic())
		})

		It("should panic if kind is empty", func() {
			Expect(func() {
				StartTask("id", "", domain, "", "what", nil)
			}).Should(Panic())
		})

		It("should panic if the domain has no name", func() {
			domain.EXPECT().Name().Return("")

			Expect(func() {
				StartTask("id", "", domain, "cmd", "what", nil)
			}).Should(Panic())
		})

		It("should start tasks where the domain is", func() {
			domain.EXPECT().Name().Return("GPU").AnyTimes()
			domain.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskStart))
				task := ctx.Item.(Task)
				Expect(task.Where).To(Equal("GPU"))
				Expect(task.Kind).To(Equal("cmd"))
			})

			StartTask("id", "", domain, "cmd", "what", nil)
		})

		It("should send steps and ends", func() {
			domain.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskStep))
				Expect(ctx.Item.(Task).Steps[0].What).To(Equal("tier:raster:ok"))
			})
			AddTaskStep("id", domain, "tier:raster:ok")

			domain.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskEnd))
			})
			EndTask("id", domain)
		})
	})

	It("should not invoke hooks when none is registered", func() {
		domain.EXPECT().NumHooks().Return(0).AnyTimes()

		StartTask("", "", domain, "", "", nil)
		AddTaskStep("id", domain, "step")
		EndTask("id", domain)
	})

	It("should route tasks to the tracer", func() {
		tracer := NewMockTracer(mockCtrl)
		domain.EXPECT().Hooks().Return(nil)

		var hook hooking.Hook
		domain.EXPECT().AcceptHook(gomock.Any()).Do(func(h hooking.Hook) {
			hook = h
		})
		CollectTrace(domain, tracer)

		tracer.EXPECT().StartTask(Task{ID: "1"})
		hook.Func(hooking.HookCtx{Pos: HookPosTaskStart, Item: Task{ID: "1"}})

		tracer.EXPECT().EndTask(Task{ID: "1"})
		hook.Func(hooking.HookCtx{Pos: HookPosTaskEnd, Item: Task{ID: "1"}})

		hook.Func(hooking.HookCtx{Pos: HookPosTaskEnd, Item: "not a task"})
	})

	It("should refuse to collect twice with the same tracer", func() {
		tracer := NewMockTracer(mockCtrl)
		existing := &traceHook{t: tracer}
		domain.EXPECT().Hooks().Return([]hooking.Hook{existing})
		domain.EXPECT().Name().Return("GPU")

		Expect(func() { CollectTrace(domain, tracer) }).To(Panic())
	})
})
