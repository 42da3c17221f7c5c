package tracing

import (
	"fmt"

	"github.com/sarchlab/vgpu/sim/hooking"
)

// CollectTrace attaches tracer to domain. Attaching the same tracer twice
// panics, since every task would then be counted twice.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, h := range domain.Hooks() {
		if th, ok := h.(*traceHook); ok && th.tracer == tracer {
			panic(fmt.Sprintf("tracing: %s already traced by %T",
				domain.Name(), tracer))
		}
	}

	domain.AcceptHook(&traceHook{tracer: tracer})
}

// traceHook forwards task hooks to a tracer and ignores everything else the
// domain reports.
type traceHook struct {
	tracer Tracer
}

func (h *traceHook) Func(ctx hooking.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.tracer.StartTask(task)
	case HookPosTaskStep:
		h.tracer.StepTask(task)
	case HookPosTaskEnd:
		h.tracer.EndTask(task)
	}
}
