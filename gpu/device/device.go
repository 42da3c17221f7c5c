// Package device terminates the guest control queue of the virtual GPU.
//
// Guest commands are queued and processed one at a time on the engine. Each
// command is decoded, routed to its handler and answered. A command that
// asks for a fence is answered when the renderer retires the fence. The only
// suspension point is the unmap of a blob whose host memory region is still
// referenced: the command stays at the head of the queue, nothing else runs,
// and the command is driven again once the region is freed.
package device

import (
	"log"
	"sync"

	"github.com/sarchlab/vgpu/gpu/blob"
	"github.com/sarchlab/vgpu/gpu/fence"
	"github.com/sarchlab/vgpu/gpu/guestmem"
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

// FencePollInterval is how often the renderer is polled while commands or
// fences are pending.
const FencePollInterval = 10 * timing.Millisecond

// StatsInterval is how often statistics are printed.
const StatsInterval = timing.Second

// Names of the tick schedulers of the device.
const (
	tickFencePoll = "fence_poll"
	tickStats     = "stats"
	tickPresent   = "present"
)

// Hook positions of the device.
var (
	// HookPosCommandStart fires when a command starts executing, with the
	// command as item.
	HookPosCommandStart = &hooking.HookPos{Name: "CommandStart"}

	// HookPosCommandDone fires when a handler finished, with the command as
	// item and a Result as detail.
	HookPosCommandDone = &hooking.HookPos{Name: "CommandDone"}

	// HookPosCommandSuspended fires when a command waits for an unmap.
	HookPosCommandSuspended = &hooking.HookPos{Name: "CommandSuspended"}

	// HookPosResponse fires for every response sent to the guest, with the
	// response as item and the command as detail.
	HookPosResponse = &hooking.HookPos{Name: "Response"}
)

// ResponseSink receives the responses of the device. It is called on the
// engine goroutine.
type ResponseSink interface {
	Respond(cmd *protocol.Command, rsp *protocol.Response)
}

// Result tells how a command ended.
type Result struct {
	Response protocol.RespType
	Fenced   bool
	Err      error
}

func (r Result) String() string {
	s := r.Response.String()
	if r.Fenced {
		s += ", fenced"
	}

	if r.Err != nil {
		s += ": " + r.Err.Error()
	}

	return s
}

type queuedCommand struct {
	cmd     *protocol.Command
	taskID  string
	started bool
}

type submitEvent struct {
	cmd *protocol.Command
}

type resumeEvent struct{}

type fenceSignaledEvent struct {
	id uint64
}

type contextFenceSignaledEvent struct {
	ctxID uint32
	ring  uint8
	id    uint64
}

type handler func(cmd *protocol.Command) (*protocol.Response, error)

// Device is a virtio-gpu device with a 3D renderer behind it.
type Device struct {
	*hooking.HookableBase

	// lock guards the device state against readers outside the engine,
	// such as the monitor.
	lock sync.Mutex

	name     string
	engine   timing.Engine
	renderer renderer.Renderer
	caps     renderer.Capabilities
	memory   guestmem.Memory
	sink     ResponseSink
	ids      idgen.Generator

	resources *resource.Table
	contexts  *rendercontext.Registry
	mapper    *blob.Mapper
	pipeline  *present.Pipeline
	fences    *fence.Queue

	handlers map[protocol.CmdType]handler

	blobEnabled     bool
	presentOnSubmit bool
	display         Display
	scanouts        []*Scanout

	queue      []*queuedCommand
	current    *queuedCommand
	suspended  bool
	fenceTasks map[*protocol.Command]string

	statsEnabled bool
	stats        Stats

	fencePoll       *timing.TickScheduler
	statsTicker     *timing.TickScheduler
	presentTicker   *timing.TickScheduler
	presentInterval timing.VTimeInNs
	presentActive   bool
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// Pipeline returns the presentation pipeline, for attaching hooks.
func (d *Device) Pipeline() *present.Pipeline {
	return d.pipeline
}

// Mapper returns the blob mapper.
func (d *Device) Mapper() *blob.Mapper {
	return d.mapper
}

// Submit decodes a raw control command and queues it. It can be called from
// any goroutine.
func (d *Device) Submit(raw []byte) error {
	cmd, err := protocol.Decode(raw)
	if err != nil {
		return err
	}

	d.SubmitCommand(cmd)

	return nil
}

// SubmitCommand queues a decoded command. It can be called from any
// goroutine.
func (d *Device) SubmitCommand(cmd *protocol.Command) {
	d.engine.Post(d, &submitEvent{cmd: cmd})
}

// Handle processes the events of the device.
func (d *Device) Handle(event any) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	switch e := event.(type) {
	case *submitEvent:
		d.enqueue(e.cmd)
	case *resumeEvent:
		d.suspended = false
	case *fenceSignaledEvent:
		d.respondFences(d.fences.Signal(e.id))
	case *contextFenceSignaledEvent:
		d.respondFences(d.fences.SignalRing(e.ctxID, e.ring, e.id))
	case *timing.TickEvent:
		d.tick(e)
	default:
		// Region free notifications of the blob mapper.
		err := d.mapper.Handle(event)
		if err != nil {
			return err
		}
	}

	d.processQueue()

	return nil
}

func (d *Device) tick(e *timing.TickEvent) {
	switch e.Name {
	case tickFencePoll:
		d.renderer.Poll()
	case tickStats:
		d.printStats()
	case tickPresent:
		d.presentTick()
	default:
		log.Panicf("unknown tick %q", e.Name)
	}
}

func (d *Device) enqueue(cmd *protocol.Command) {
	d.queue = append(d.queue, &queuedCommand{cmd: cmd})

	d.stats.Requests++

	if d.statsEnabled && !d.statsTicker.Pending() {
		d.statsTicker.TickAfter(StatsInterval)
	}
}

// processQueue runs queued commands until the queue is empty or a command
// is suspended.
func (d *Device) processQueue() {
	for len(d.queue) > 0 {
		if d.suspended || d.mapper.Blocked() > 0 {
			return
		}

		qc := d.queue[0]
		if !d.execute(qc) {
			return
		}

		d.queue[0] = nil
		d.queue = d.queue[1:]
	}

	if d.fences.Len() > 0 {
		d.fencePoll.TickAfter(FencePollInterval)
	}
}

// resume is called by the mapper once the region of a suspended unmap is
// freed.
func (d *Device) resume() {
	d.engine.Schedule(timing.ScheduledEvent{
		Event:   &resumeEvent{},
		Time:    d.engine.CurrentTime(),
		Handler: d,
	})
}

func (d *Device) suspend() {
	d.suspended = true
}

// currentTask returns the task of the command being executed, or "".
func (d *Device) currentTask() string {
	if d.current == nil {
		return ""
	}

	return d.current.taskID
}

// execute runs a command. It returns false if the command is suspended and
// must stay at the head of the queue.
func (d *Device) execute(qc *queuedCommand) bool {
	cmd := qc.cmd

	if !qc.started {
		qc.started = true
		qc.taskID = d.ids.Generate()
		tracing.StartTask(qc.taskID, "", d, "cmd", cmd.Type().String(), cmd)
		d.InvokeHook(hooking.HookCtx{
			Domain: d,
			Pos:    HookPosCommandStart,
			Item:   cmd,
		})
	} else {
		tracing.AddTaskStep(qc.taskID, d, "resumed")
	}

	d.renderer.ForceContext0()

	d.current = qc
	rsp, err := d.dispatch(qc)
	d.current = nil

	if d.suspended {
		tracing.AddTaskStep(qc.taskID, d, "suspended")
		d.InvokeHook(hooking.HookCtx{
			Domain: d,
			Pos:    HookPosCommandSuspended,
			Item:   cmd,
		})

		return false
	}

	d.complete(qc, rsp, err)

	return true
}

func (d *Device) dispatch(qc *queuedCommand) (*protocol.Response, error) {
	h, ok := d.handlers[qc.cmd.Type()]
	if !ok {
		return nil, unsupported(qc.cmd)
	}

	return h(qc.cmd)
}

// complete answers a finished command, or hands it to the fence queue.
func (d *Device) complete(
	qc *queuedCommand,
	rsp *protocol.Response,
	err error,
) {
	cmd := qc.cmd

	switch {
	case err != nil:
		t := ResponseType(cmd.Type(), err)
		log.Printf("%s: ctrl %s, error %s: %v", d.name, cmd.Type(), t, err)
		d.finish(qc, protocol.NewResponse(cmd, t), Result{Response: t, Err: err})
	case rsp != nil:
		d.finish(qc, rsp, Result{Response: rsp.Type()})
	case !cmd.Header.Fenced():
		d.finish(qc, protocol.NewResponse(cmd, protocol.RespOKNoData),
			Result{Response: protocol.RespOKNoData})
	default:
		d.fenceCommand(qc)
	}
}

func (d *Device) finish(qc *queuedCommand, rsp *protocol.Response, r Result) {
	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosCommandDone,
		Item:   qc.cmd,
		Detail: r,
	})

	d.respond(qc.cmd, rsp)
	tracing.EndTask(qc.taskID, d)
}

func (d *Device) respond(cmd *protocol.Command, rsp *protocol.Response) {
	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosResponse,
		Item:   rsp,
		Detail: cmd,
	})

	if d.sink != nil {
		d.sink.Respond(cmd, rsp)
	}
}

// QueueLength returns the number of commands not answered or fenced yet.
func (d *Device) QueueLength() int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return len(d.queue)
}

// Suspended tells if the head command waits for an unmap.
func (d *Device) Suspended() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.suspended
}

// Reset returns the device to its initial state: scanouts are disabled and
// every resource, context, mapping and pending fence is dropped without a
// response.
func (d *Device) Reset() {
	d.lock.Lock()
	defer d.lock.Unlock()

	for _, s := range d.scanouts {
		s.unbind()
	}

	d.presentActive = false

	d.pipeline.Reset()
	d.mapper.Reset()

	for _, res := range d.resources.All() {
		d.pipeline.ReleaseResource(res)
	}

	d.resources.Reset()
	d.contexts.Reset()

	for _, p := range d.fences.Pending() {
		if taskID, ok := d.fenceTasks[p.Cmd]; ok {
			tracing.EndTask(taskID, d)
		}
	}

	d.fences.Reset()
	d.fenceTasks = make(map[*protocol.Command]string)

	for _, qc := range d.queue {
		if qc.started {
			tracing.EndTask(qc.taskID, d)
		}
	}

	d.queue = nil
	d.suspended = false
	d.stats = Stats{}

	d.renderer.Reset()
}
