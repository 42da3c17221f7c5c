package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/vgpu/sim/timing"
)

// Latency summarizes the finished tasks of one kind of work.
type Latency struct {
	What  string
	Count uint64
	Total timing.VTimeInNs
	Max   timing.VTimeInNs
}

// Mean is the average time of a task.
func (l Latency) Mean() timing.VTimeInNs {
	if l.Count == 0 {
		return 0
	}

	return l.Total / timing.VTimeInNs(l.Count)
}

// LatencyTracer measures how long tasks take, grouped by what they do. On a
// device, this is the latency of each command type, suspensions included.
type LatencyTracer struct {
	timeTeller timing.TimeTeller
	filter     TaskFilter

	lock     sync.Mutex
	started  map[string]Task
	byWhat   map[string]*Latency
	finished uint64
}

// NewLatencyTracer creates a tracer that measures the tasks passing filter.
func NewLatencyTracer(
	timeTeller timing.TimeTeller,
	filter TaskFilter,
) *LatencyTracer {
	return &LatencyTracer{
		timeTeller: timeTeller,
		filter:     filter,
		started:    make(map[string]Task),
		byWhat:     make(map[string]*Latency),
	}
}

// StartTask remembers when the task started.
func (t *LatencyTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.started[task.ID] = task
	t.lock.Unlock()
}

// StepTask ignores steps.
func (t *LatencyTracer) StepTask(Task) {}

// EndTask adds the time since the task started.
func (t *LatencyTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	started, ok := t.started[task.ID]
	if !ok {
		return
	}

	delete(t.started, task.ID)

	l, ok := t.byWhat[started.What]
	if !ok {
		l = &Latency{What: started.What}
		t.byWhat[started.What] = l
	}

	d := now - started.StartTime
	l.Count++
	l.Total += d
	l.Max = max(l.Max, d)
	t.finished++
}

// Overall folds every finished task into one summary.
func (t *LatencyTracer) Overall() Latency {
	t.lock.Lock()
	defer t.lock.Unlock()

	all := Latency{What: "all"}
	for _, l := range t.byWhat {
		all.Count += l.Count
		all.Total += l.Total
		all.Max = max(all.Max, l.Max)
	}

	return all
}

// Latencies returns the summaries sorted by what the tasks do.
func (t *LatencyTracer) Latencies() []Latency {
	t.lock.Lock()
	defer t.lock.Unlock()

	list := make([]Latency, 0, len(t.byWhat))
	for _, l := range t.byWhat {
		list = append(list, *l)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].What < list[j].What })

	return list
}

// InFlight counts the tasks started but not finished.
func (t *LatencyTracer) InFlight() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.started)
}
