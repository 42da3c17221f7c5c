package timing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sarchlab/vgpu/sim/hooking"
)

type postedEvent struct {
	handler Handler
	event   any
}

// SerialEngine processes scheduled events sequentially in time order.
type SerialEngine struct {
	*hooking.HookableBase

	timeLock sync.RWMutex
	now      VTimeInNs

	queue          eventQueue
	secondaryQueue eventQueue

	inboxLock sync.Mutex
	inbox     []postedEvent

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{
		HookableBase:   hooking.NewHookableBase(),
		queue:          newScheduledEventQueue(),
		secondaryQueue: newScheduledEventQueue(),
	}
}

// Schedule registers an event to be handled in the future. It must be called
// from the engine's goroutine or before the engine runs; other goroutines use
// Post.
func (e *SerialEngine) Schedule(evt ScheduledEvent) {
	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot schedule event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	eventCopy := evt
	if evt.IsSecondary {
		e.secondaryQueue.Push(&eventCopy)
		return
	}

	e.queue.Push(&eventCopy)
}

// Post hands an event to the engine from any goroutine. The event is handled
// on the goroutine that runs the engine, at the engine's current time, after
// the event that is being handled when Post is called.
func (e *SerialEngine) Post(handler Handler, event any) {
	e.inboxLock.Lock()
	e.inbox = append(e.inbox, postedEvent{handler: handler, event: event})
	e.inboxLock.Unlock()
}

// Posted returns the number of posted events that have not been drained into
// the timeline yet.
func (e *SerialEngine) Posted() int {
	e.inboxLock.Lock()
	defer e.inboxLock.Unlock()

	return len(e.inbox)
}

func (e *SerialEngine) drainInbox() {
	e.inboxLock.Lock()
	posted := e.inbox
	e.inbox = nil
	e.inboxLock.Unlock()

	now := e.readNow()
	for _, p := range posted {
		e.queue.Push(&ScheduledEvent{
			Event:   p.event,
			Time:    now,
			Handler: p.handler,
		})
	}
}

func (e *SerialEngine) readNow() VTimeInNs {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()
	return t
}

func (e *SerialEngine) writeNow(t VTimeInNs) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Run processes all scheduled and posted events until none is left.
func (e *SerialEngine) Run() error {
	return e.run(0, false)
}

// RunUntil processes the events that are due no later than deadline. The
// current time is moved to the deadline when it returns without error.
func (e *SerialEngine) RunUntil(deadline VTimeInNs) error {
	if deadline < e.readNow() {
		return fmt.Errorf("timing: deadline %d is earlier than now %d",
			deadline, e.readNow())
	}

	err := e.run(deadline, true)
	if err != nil {
		return err
	}

	e.writeNow(deadline)

	return nil
}

func (e *SerialEngine) run(deadline VTimeInNs, bounded bool) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		e.drainInbox()

		if e.noMoreEvent() {
			return nil
		}

		if bounded && e.peekTime() > deadline {
			return nil
		}

		if err := e.handleNext(); err != nil {
			return err
		}
	}
}

func (e *SerialEngine) handleNext() error {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	evt := e.nextEvent()
	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot run event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	e.writeNow(evt.Time)

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	if evt.Handler != nil {
		err := evt.Handler.Handle(evt.Event)
		if err != nil {
			return fmt.Errorf("timing: handling %s @ %d: %w",
				reflect.TypeOf(evt.Event), evt.Time, err)
		}
	}

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)

	return nil
}

func (e *SerialEngine) noMoreEvent() bool {
	return e.queue.Len() == 0 && e.secondaryQueue.Len() == 0
}

func (e *SerialEngine) peekTime() VTimeInNs {
	primary := e.queue.Peek()
	secondary := e.secondaryQueue.Peek()

	switch {
	case primary == nil:
		return secondary.Time
	case secondary == nil:
		return primary.Time
	case primary.Time <= secondary.Time:
		return primary.Time
	default:
		return secondary.Time
	}
}

func (e *SerialEngine) nextEvent() *ScheduledEvent {
	if e.queue.Len() == 0 {
		return e.secondaryQueue.Pop()
	}

	if e.secondaryQueue.Len() == 0 {
		return e.queue.Pop()
	}

	primary := e.queue.Peek()
	secondary := e.secondaryQueue.Peek()

	if primary.Time <= secondary.Time {
		e.queue.Pop()
		return primary
	}

	e.secondaryQueue.Pop()
	return secondary
}

// Pause prevents the engine from dispatching more events until Continue is
// called.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue resumes event processing after a Pause.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// IsPaused tells if the engine is paused.
func (e *SerialEngine) IsPaused() bool {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	return e.isPaused
}

// CurrentTime returns the time of the most recently handled event.
func (e *SerialEngine) CurrentTime() VTimeInNs {
	return e.readNow()
}

var _ Engine = (*SerialEngine)(nil)
