package tracing

import (
	"sync"

	"github.com/sarchlab/vgpu/datarecording"
	"github.com/sarchlab/vgpu/sim/timing"
)

// TaskEntry is a row of TaskTable. Times are in nanoseconds.
type TaskEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime uint64
	EndTime   uint64
}

type stepTableEntry struct {
	TaskID string
	What   string
	Time   uint64
}

// Table names written by DBTracer.
const (
	TaskTable = "trace"
	StepTable = "trace_steps"
)

// DBTracer is a tracer that can store tasks into a database.
// DBTracers can connect with different backends so that the tasks can be stored
// in different types of databases (e.g., SQLite, MySQL, ClickHouse).
type DBTracer struct {
	mu         sync.Mutex
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	startTime, endTime timing.VTimeInNs

	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer.
func NewDBTracer(
	timeTeller timing.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TaskTable, TaskEntry{})
	dataRecorder.CreateTable(StepTable, stepTableEntry{})

	return &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}
}

// SetTimeRange limits recording to tasks that overlap the range. A zero
// bound is open.
func (t *DBTracer) SetTimeRange(startTime, endTime timing.VTimeInNs) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task.StartTime = t.timeTeller.CurrentTime()
	if t.endTime > 0 && task.StartTime > t.endTime {
		return
	}

	t.tracingTasks[task.ID] = task
}

// StepTask records a step of a task that is being traced.
func (t *DBTracer) StepTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tracingTasks[task.ID]; !ok {
		return
	}

	for _, step := range task.Steps {
		t.backend.InsertData(StepTable, stepTableEntry{
			TaskID: task.ID,
			What:   step.What,
			Time:   uint64(t.timeTeller.CurrentTime()),
		})
	}
}

// EndTask writes the task into the database.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	originalTask.EndTime = t.timeTeller.CurrentTime()
	if t.startTime > 0 && originalTask.EndTime < t.startTime {
		return
	}

	t.backend.InsertData(TaskTable, TaskEntry{
		ID:        originalTask.ID,
		ParentID:  originalTask.ParentID,
		Kind:      originalTask.Kind,
		What:      originalTask.What,
		Location:  originalTask.Where,
		StartTime: uint64(originalTask.StartTime),
		EndTime:   uint64(originalTask.EndTime),
	})
}

// Terminate drops the unfinished tasks and flushes the backend.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = make(map[string]Task)
	t.backend.Flush()
}
