// Package session wires the engine, the data recorder, the tracer and the
// monitor around the devices of one run.
package session

import (
	"strconv"
	"sync"

	"github.com/sarchlab/vgpu/datarecording"
	"github.com/sarchlab/vgpu/gpu/device"
	"github.com/sarchlab/vgpu/monitoring"
	"github.com/sarchlab/vgpu/sim/timing"
	"github.com/sarchlab/vgpu/tracing"
)

// A Session owns the services a device run needs.
type Session struct {
	id     string
	engine *timing.SerialEngine

	recorder datarecording.DataRecorder
	exec     *datarecording.ExecRecorder
	tracer   *tracing.DBTracer
	latency  *tracing.LatencyTracer
	tiers    *tracing.StepCountTracer
	monitor  *monitoring.Monitor

	devices   []*device.Device
	nameIndex map[string]int

	terminateOnce sync.Once
}

// ID returns the unique id of the session.
func (s *Session) ID() string {
	return s.id
}

// Engine returns the engine devices of the session run on.
func (s *Session) Engine() *timing.SerialEngine {
	return s.engine
}

// Recorder returns the data recorder of the session.
func (s *Session) Recorder() datarecording.DataRecorder {
	return s.recorder
}

// Tracer returns the tracer that stores command tasks.
func (s *Session) Tracer() *tracing.DBTracer {
	return s.tracer
}

// Latency returns the tracer measuring the commands of every device.
func (s *Session) Latency() *tracing.LatencyTracer {
	return s.latency
}

// TierSteps returns the tracer counting the tiers frames went through.
func (s *Session) TierSteps() *tracing.StepCountTracer {
	return s.tiers
}

// Monitor returns the monitor, or nil when monitoring is off.
func (s *Session) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Note records a property of the run, such as the presentation backend.
func (s *Session) Note(property, value string) {
	s.exec.Note(property, value)
}

// RegisterDevice traces the commands and frames of a device, records its
// presentations and responses, and shows it on the monitor.
func (s *Session) RegisterDevice(d *device.Device) {
	name := d.Name()
	if _, found := s.nameIndex[name]; found {
		panic("device " + name + " already registered")
	}

	s.devices = append(s.devices, d)
	s.nameIndex[name] = len(s.devices) - 1

	tracing.CollectTrace(d, s.tracer)
	tracing.CollectTrace(d, s.latency)
	tracing.CollectTrace(d.Pipeline(), s.tracer)
	tracing.CollectTrace(d.Pipeline(), s.tiers)

	events := newEventRecorder(name, s.engine, s.recorder)
	d.AcceptHook(events)
	d.Pipeline().AcceptHook(events)

	if s.monitor != nil {
		s.monitor.RegisterDevice(d)
	}
}

// GetDeviceByName returns a registered device.
func (s *Session) GetDeviceByName(name string) *device.Device {
	i, found := s.nameIndex[name]
	if !found {
		return nil
	}

	return s.devices[i]
}

// Terminate writes the run information, flushes the recorder and closes it.
// Calling it again has no effect.
func (s *Session) Terminate() {
	s.terminateOnce.Do(func() {
		s.noteSummary()
		s.exec.End()
		s.tracer.Terminate()
		s.recorder.Flush()
		s.recorder.Close()
	})
}

func (s *Session) noteSummary() {
	all := s.latency.Overall()
	s.exec.Note("Commands", strconv.FormatUint(all.Count, 10))
	s.exec.Note("Mean Command Latency",
		strconv.FormatUint(uint64(all.Mean()), 10)+" ns")

	for _, step := range s.tiers.GetStepNames() {
		s.exec.Note("Present "+step,
			strconv.FormatUint(s.tiers.GetStepCount(step), 10))
	}
}
