package timing

import (
	"fmt"
	"log"
	"reflect"

	"github.com/sarchlab/vgpu/sim/hooking"
)

// EventLogger prints each event an engine handles: the time in
// microseconds, the handler and the event type or tick name.
type EventLogger struct {
	logger *log.Logger
}

// NewEventLogger creates an EventLogger writing into logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Func logs the event before it is handled.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(*ScheduledEvent)
	if !ok {
		return
	}

	what := reflect.TypeOf(evt.Event).String()
	if tick, ok := evt.Event.(*TickEvent); ok {
		what = "tick " + tick.Name
	}

	h.logger.Printf("%12.3fus %s %s",
		float64(evt.Time)/float64(Microsecond), handlerName(evt.Handler), what)
}

func handlerName(handler Handler) string {
	if named, ok := handler.(interface{ Name() string }); ok {
		return named.Name()
	}

	if handler == nil {
		return "-"
	}

	return fmt.Sprintf("%T", handler)
}
