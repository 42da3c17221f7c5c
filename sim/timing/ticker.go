package timing

import "sync"

// TickEvent is delivered to the handler of a TickScheduler.
type TickEvent struct {
	// Name identifies the scheduler that produced the tick.
	Name string
	Time VTimeInNs
}

// TickScheduler schedules named tick events for a handler. A tick request is
// merged into an already pending tick that fires no later than requested.
type TickScheduler struct {
	lock      sync.Mutex
	name      string
	handler   Handler
	engine    EventScheduler
	secondary bool

	pending      bool
	nextTickTime VTimeInNs
}

// NewTickScheduler creates a scheduler for tick events.
func NewTickScheduler(
	name string,
	handler Handler,
	engine EventScheduler,
) *TickScheduler {
	return &TickScheduler{
		name:    name,
		handler: handler,
		engine:  engine,
	}
}

// NewSecondaryTickScheduler creates a scheduler whose ticks run after the
// primary events of the same time.
func NewSecondaryTickScheduler(
	name string,
	handler Handler,
	engine EventScheduler,
) *TickScheduler {
	t := NewTickScheduler(name, handler, engine)
	t.secondary = true

	return t
}

// Name returns the name carried by the ticks.
func (t *TickScheduler) Name() string {
	return t.name
}

// TickNow schedules a tick at the current time.
func (t *TickScheduler) TickNow() {
	t.TickAfter(0)
}

// TickAfter schedules a tick delay after the current time.
func (t *TickScheduler) TickAfter(delay VTimeInNs) {
	t.lock.Lock()
	defer t.lock.Unlock()

	at := t.engine.CurrentTime() + delay
	if t.pending && t.nextTickTime <= at {
		return
	}

	t.pending = true
	t.nextTickTime = at
	t.engine.Schedule(ScheduledEvent{
		Event:       &TickEvent{Name: t.name, Time: at},
		Time:        at,
		Handler:     t,
		IsSecondary: t.secondary,
	})
}

// Pending tells if a tick is scheduled and has not fired yet.
func (t *TickScheduler) Pending() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.pending
}

// Handle forwards the tick to the handler. Ticks superseded by an earlier
// tick are still delivered; handlers treat ticks as idempotent.
func (t *TickScheduler) Handle(event any) error {
	t.lock.Lock()
	tick := event.(*TickEvent)
	if tick.Time >= t.nextTickTime {
		t.pending = false
	}
	t.lock.Unlock()

	return t.handler.Handle(event)
}
