package device

import (
	"log"

	"github.com/sarchlab/vgpu/gpu/fence"
	"github.com/sarchlab/vgpu/gpu/gpuerr"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/sim/hooking"
	"github.com/sarchlab/vgpu/sim/timing"
	"github.com/sarchlab/vgpu/tracing"
)

// fenceSink moves fence completions reported by the renderer onto the
// engine.
type fenceSink struct {
	device *Device
	poster timing.Poster
}

func (s *fenceSink) FenceSignaled(id uint64) {
	s.poster.Post(s.device, &fenceSignaledEvent{id: id})
}

func (s *fenceSink) ContextFenceSignaled(ctxID uint32, ring uint8, id uint64) {
	s.poster.Post(s.device, &contextFenceSignaledEvent{
		ctxID: ctxID,
		ring:  ring,
		id:    id,
	})
}

// fenceCommand creates the fence of a successful fenced command in the
// renderer. The response waits in the fence queue.
func (d *Device) fenceCommand(qc *queuedCommand) {
	cmd := qc.cmd
	hdr := cmd.Header

	ringFence := hdr.RingIndexed() && d.caps.ContextFences != nil

	var err error
	if ringFence {
		err = d.caps.ContextFences.CreateContextFence(
			hdr.CtxID, hdr.RingIdx, hdr.FenceID)
	} else {
		err = d.renderer.CreateFence(hdr.FenceID, hdr.Type)
	}

	if err != nil {
		err = gpuerr.Wrap(gpuerr.RendererError, "create fence", hdr.CtxID, err)
		log.Printf("%s: fence %d of %s: %v", d.name, hdr.FenceID, cmd.Type(), err)
		d.finish(qc, protocol.NewResponse(cmd, protocol.RespErrUnspec),
			Result{Response: protocol.RespErrUnspec, Err: err})

		return
	}

	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosCommandDone,
		Item:   cmd,
		Detail: Result{Response: protocol.RespOKNoData, Fenced: true},
	})

	tracing.AddTaskStep(qc.taskID, d, "fenced")

	// A renderer without context fences signals ring fences globally.
	p := fence.FromCommand(cmd)
	p.RingIndexed = ringFence
	d.fences.Enqueue(p)
	d.stats.MaxInFlight = max(d.stats.MaxInFlight, uint64(d.fences.Len()))
	d.fenceTasks[cmd] = qc.taskID
}

func (d *Device) respondFences(released []fence.Pending) {
	for _, p := range released {
		d.respond(p.Cmd, protocol.NewResponse(p.Cmd, protocol.RespOKNoData))

		if taskID, ok := d.fenceTasks[p.Cmd]; ok {
			tracing.EndTask(taskID, d)
			delete(d.fenceTasks, p.Cmd)
		}
	}
}

// PendingFences returns the fences waiting for the renderer.
func (d *Device) PendingFences() []fence.Pending {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.fences.Pending()
}
