// Package timing provides the single-threaded event engine that every piece
// of device state is mutated from.
package timing

import "github.com/sarchlab/vgpu/sim/hooking"

// VTimeInNs is the device timeline in nanoseconds.
type VTimeInNs uint64

// Common durations on the device timeline.
const (
	Nanosecond  VTimeInNs = 1
	Microsecond           = 1000 * Nanosecond
	Millisecond           = 1000 * Microsecond
	Second                = 1000 * Millisecond
)

// Handler processes events of various types. Events are plain data; handlers
// switch on the payload type:
//
//	func (d *Device) Handle(event any) error {
//	    switch e := event.(type) {
//	    case *resumeEvent:
//	        ...
//	    default:
//	        return fmt.Errorf("unknown event type: %T", event)
//	    }
//	    return nil
//	}
type Handler interface {
	Handle(event any) error
}

// TimeTeller exposes the current time of the engine.
type TimeTeller interface {
	CurrentTime() VTimeInNs
}

// EventScheduler schedules events on the timeline.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// Poster delivers events from any goroutine onto the engine's goroutine.
type Poster interface {
	Post(handler Handler, event any)
}

// Engine is the event loop that owns device state.
type Engine interface {
	hooking.Hookable
	EventScheduler
	Poster

	// Run processes events until no event is left.
	Run() error

	// RunUntil processes events scheduled no later than deadline.
	RunUntil(deadline VTimeInNs) error

	// Pause prevents the engine from dispatching more events.
	Pause()

	// Continue resumes event dispatching after Pause.
	Continue()
}

// ScheduledEvent is the engine-facing wrapper for user-defined events.
type ScheduledEvent struct {
	// Event is the payload delivered to the handler, typically a pointer.
	Event any

	// Time is when the event should be processed.
	Time VTimeInNs

	// Handler is the component that will process this event.
	Handler Handler

	// IsSecondary events run after all primary events of the same time.
	IsSecondary bool

	seq uint64
}

// HookPosBeforeEvent and HookPosAfterEvent surround each handled event.
var (
	HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}
	HookPosAfterEvent  = &hooking.HookPos{Name: "AfterEvent"}
)
