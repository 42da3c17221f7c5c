package session

import (
	"fmt"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/vgpu/datarecording"
	"github.com/sarchlab/vgpu/monitoring"
	"github.com/sarchlab/vgpu/sim/idgen"
	"github.com/sarchlab/vgpu/sim/timing"
	"github.com/sarchlab/vgpu/tracing"
)

// Builder can be used to build a session.
type Builder struct {
	monitorOn   bool
	monitorPort int
	recorderAt  string
	ids         idgen.Generator
	timeRange   [2]timing.VTimeInNs
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		monitorOn: true,
	}
}

// WithoutMonitoring sets the session to not start the monitor.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithRecorder sets where the data is recorded. It accepts a SQLite file
// name or a mysql://, clickhouse:// or mongodb:// URL. The default is a
// SQLite file named after the session.
func (b Builder) WithRecorder(location string) Builder {
	b.recorderAt = location
	return b
}

// WithIDGenerator sets how the session id is made.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.ids = g
	return b
}

// WithTraceRange only records command tasks overlapping [start, end].
func (b Builder) WithTraceRange(start, end timing.VTimeInNs) Builder {
	b.timeRange = [2]timing.VTimeInNs{start, end}
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.timeRange[1] != 0 && b.timeRange[1] < b.timeRange[0] {
		panic("trace range ends before it starts")
	}
}

// Build builds the session.
func (b Builder) Build() *Session {
	b.parametersMustBeValid()

	ids := b.ids
	if ids == nil {
		ids = idgen.NewGlobal()
	}

	s := &Session{
		id:        ids.Generate(),
		engine:    timing.NewSerialEngine(),
		nameIndex: make(map[string]int),
	}

	location := b.recorderAt
	if location == "" {
		location = "vgpu_" + s.id
	}

	recorder, err := datarecording.Open(location)
	if err != nil {
		panic(fmt.Sprintf("opening recorder: %v", err))
	}

	s.recorder = recorder

	s.exec = datarecording.NewExecRecorder(s.recorder)
	s.exec.Start()
	s.exec.Note("Session", s.id)

	createEventTables(s.recorder)

	s.tracer = tracing.NewDBTracer(s.engine, s.recorder)
	if b.timeRange[1] != 0 {
		s.tracer.SetTimeRange(b.timeRange[0], b.timeRange[1])
	}

	s.latency = tracing.NewLatencyTracer(s.engine, tracing.KindIs("cmd"))
	s.tiers = tracing.NewStepCountTracer(tracing.KindIs("present"))

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}

		s.monitor.RegisterEngine(s.engine)
		s.monitor.StartServer()
	}

	atexit.Register(s.Terminate)

	return s
}
