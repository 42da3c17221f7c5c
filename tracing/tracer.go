package tracing

// A Tracer receives the tasks of the domains it is attached to. StepTask and
// EndTask carry only the task ID and the new step; tracers that need the
// rest keep the task from StartTask.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}
