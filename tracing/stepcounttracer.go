package tracing

import (
	"sync"
)

// StepCountTracer counts the steps tasks go through. The presentation
// pipeline reports each tier it tries as a step, so counting the steps of
// "present" tasks tells which tiers frames land on and which ones fail.
type StepCountTracer struct {
	filter TaskFilter

	lock  sync.Mutex
	seen  map[string]map[string]bool
	order []string
	steps map[string]uint64
	tasks map[string]uint64
}

// NewStepCountTracer creates a tracer that counts the steps of the tasks
// passing filter.
func NewStepCountTracer(filter TaskFilter) *StepCountTracer {
	return &StepCountTracer{
		filter: filter,
		seen:   make(map[string]map[string]bool),
		steps:  make(map[string]uint64),
		tasks:  make(map[string]uint64),
	}
}

// GetStepNames returns the step names in the order they first appeared.
func (t *StepCountTracer) GetStepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.order...)
}

// GetStepCount returns how often a step was reached.
func (t *StepCountTracer) GetStepCount(step string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.steps[step]
}

// GetTaskCount returns how many tasks reached a step at least once.
func (t *StepCountTracer) GetTaskCount(step string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.tasks[step]
}

// StartTask starts following the task.
func (t *StepCountTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.seen[task.ID] = make(map[string]bool)
	t.lock.Unlock()
}

// StepTask counts the step if the task is followed.
func (t *StepCountTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	seen, ok := t.seen[task.ID]
	if !ok || len(task.Steps) == 0 {
		return
	}

	what := task.Steps[0].What
	if _, known := t.steps[what]; !known {
		t.order = append(t.order, what)
	}

	t.steps[what]++

	if !seen[what] {
		seen[what] = true
		t.tasks[what]++
	}
}

// EndTask stops following the task.
func (t *StepCountTracer) EndTask(task Task) {
	t.lock.Lock()
	delete(t.seen, task.ID)
	t.lock.Unlock()
}
