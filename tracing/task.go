package tracing

import "github.com/sarchlab/vgpu/sim/timing"

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Time timing.VTimeInNs `json:"time"`
	What string           `json:"what"`
}

// A Task is a piece of work done by a device component, such as a guest
// command or a frame presentation.
type Task struct {
	ID        string           `json:"id"`
	ParentID  string           `json:"parent_id"`
	Kind      string           `json:"kind"`
	What      string           `json:"what"`
	Where     string           `json:"where"`
	StartTime timing.VTimeInNs `json:"start_time"`
	EndTime   timing.VTimeInNs `json:"end_time"`
	Steps     []TaskStep       `json:"steps"`
	Detail    any              `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// AllTasks accepts every task.
func AllTasks(Task) bool {
	return true
}

// KindIs accepts the tasks of one kind.
func KindIs(kind string) TaskFilter {
	return func(t Task) bool {
		return t.Kind == kind
	}
}
