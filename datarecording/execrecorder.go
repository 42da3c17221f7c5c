package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTable is the table that describes the run itself.
const ExecTable = "exec_info"

// ExecInfo is one property of a run.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecRecorder records when and how the program ran.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
	now      func() time.Time
}

// NewExecRecorder creates the exec table in recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(ExecTable, ExecInfo{})

	return &ExecRecorder{
		recorder: recorder,
		now:      time.Now,
	}
}

const timeLayout = "2006-01-02 15:04:05.000000000"

// Start notes the start time, the command line, the working directory and
// the host. Properties that cannot be read are left out.
func (e *ExecRecorder) Start() {
	e.Note("Start Time", e.now().Format(timeLayout))
	e.Note("Command", strings.Join(os.Args, " "))

	if wd, err := os.Getwd(); err == nil {
		e.Note("Working Directory", wd)
	}

	if host, err := os.Hostname(); err == nil {
		e.Note("Host", host)
	}
}

// Note adds a property, such as the selected presentation backend.
func (e *ExecRecorder) Note(property, value string) {
	e.entries = append(e.entries, ExecInfo{property, value})
}

// End writes the properties along with the end time.
func (e *ExecRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTable, entry)
	}

	e.recorder.InsertData(ExecTable,
		ExecInfo{"End Time", e.now().Format(timeLayout)})

	e.entries = nil

	e.recorder.Flush()
}
