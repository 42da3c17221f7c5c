package scenario

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/hostmem"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/sim/timing"
)

// Submitter accepts decoded commands.
type Submitter interface {
	SubmitCommand(cmd *protocol.Command)
}

// TranscriptEntry is a replayed command and the response it got.
type TranscriptEntry struct {
	Step     int
	Command  *protocol.Command
	Response *protocol.Response
	Expect   protocol.RespType
	HasCheck bool
}

// Answered tells if the device responded.
func (e *TranscriptEntry) Answered() bool {
	return e.Response != nil
}

// Transcript receives the responses of the device and matches them to the
// replayed commands.
type Transcript struct {
	mu      sync.Mutex
	entries []*TranscriptEntry
	byCmd   map[*protocol.Command]*TranscriptEntry

	// OnResponse is called for each response to a replayed command.
	OnResponse func(e *TranscriptEntry)
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		byCmd: make(map[*protocol.Command]*TranscriptEntry),
	}
}

func (t *Transcript) track(e *TranscriptEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, e)
	t.byCmd[e.Command] = e
}

// Respond implements device.ResponseSink.
func (t *Transcript) Respond(cmd *protocol.Command, rsp *protocol.Response) {
	t.mu.Lock()
	e, found := t.byCmd[cmd]
	if found {
		e.Response = rsp
	}
	t.mu.Unlock()

	if found && t.OnResponse != nil {
		t.OnResponse(e)
	}
}

// Entries returns the replayed commands in order.
func (t *Transcript) Entries() []*TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]*TranscriptEntry(nil), t.entries...)
}

// Check reports the commands that got no response or an unexpected one.
func (t *Transcript) Check() error {
	var errs []error

	for _, e := range t.Entries() {
		switch {
		case !e.Answered():
			errs = append(errs, fmt.Errorf("step %d: %s got no response",
				e.Step, e.Command.Type()))
		case e.HasCheck && e.Response.Type() != e.Expect:
			errs = append(errs, fmt.Errorf("step %d: %s got %s, want %s",
				e.Step, e.Command.Type(), e.Response.Type(), e.Expect))
		}
	}

	return errors.Join(errs...)
}

// Clock is the part of the engine the runner drives.
type Clock interface {
	timing.TimeTeller
	RunUntil(deadline timing.VTimeInNs) error
}

// Runner replays a scenario.
type Runner struct {
	Clock      Clock
	Device     Submitter
	Transcript *Transcript

	// Memory and Window are needed by write steps and by hold and release
	// steps.
	Memory *guestmem.Storage
	Window *hostmem.Window

	// OnSubmit is called for each command sent to the device.
	OnSubmit func(step int, cmd *protocol.Command)

	held map[uint64][]*hostmem.Subregion
}

// Run replays the steps and lets the device settle. The error reports the
// first step that could not run; response mismatches are left to
// Transcript.Check.
func (r *Runner) Run(sc *Scenario) error {
	if r.Transcript == nil {
		return errors.New("runner needs a transcript")
	}

	for i, step := range sc.Steps {
		err := r.step(i, step)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		err = r.Clock.RunUntil(r.Clock.CurrentTime())
		if err != nil {
			return err
		}
	}

	settle, err := sc.settle()
	if err != nil {
		return err
	}

	return r.advance(settle)
}

func (r *Runner) step(i int, s Step) error {
	kind, err := s.kind()
	if err != nil {
		return err
	}

	switch kind {
	case "cmd":
		return r.command(i, s)
	case "wait":
		d, err := time.ParseDuration(s.Wait)
		if err != nil {
			return err
		}

		return r.advance(d)
	case "write":
		return r.write(s.Write)
	case "hold":
		return r.hold(*s.Hold)
	default:
		return r.release(*s.Release)
	}
}

func (r *Runner) command(i int, s Step) error {
	raw, err := EncodeStep(s)
	if err != nil {
		return err
	}

	cmd, err := protocol.Decode(raw)
	if err != nil {
		return err
	}

	e := &TranscriptEntry{Step: i, Command: cmd}

	if s.Expect != "" {
		t, ok := protocol.RespTypeByName(strings.ToUpper(s.Expect))
		if !ok {
			return fmt.Errorf("unknown response %q", s.Expect)
		}

		e.Expect = t
		e.HasCheck = true
	}

	r.Transcript.track(e)

	if r.OnSubmit != nil {
		r.OnSubmit(i, cmd)
	}

	r.Device.SubmitCommand(cmd)

	return nil
}

func (r *Runner) advance(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("negative duration %s", d)
	}

	return r.Clock.RunUntil(r.Clock.CurrentTime() + timing.VTimeInNs(d))
}

func (r *Runner) write(w *Write) error {
	if r.Memory == nil {
		return errors.New("no guest memory to write")
	}

	data := make([]byte, w.Length)

	switch w.Pattern {
	case "":
		for i := range data {
			data[i] = w.Fill
		}
	case "ramp":
		for i := range data {
			data[i] = byte(i)
		}
	default:
		return fmt.Errorf("unknown pattern %q", w.Pattern)
	}

	return r.Memory.Write(w.Addr, data)
}

// hold references the region mapped at offset. The region stays held after
// it is unmapped, until a release step with the same offset.
func (r *Runner) hold(offset uint64) error {
	if r.Window == nil {
		return errors.New("no host memory window")
	}

	sub, found := r.Window.Lookup(offset)
	if !found {
		return fmt.Errorf("nothing mapped at 0x%x", offset)
	}

	sub.Ref()

	if r.held == nil {
		r.held = make(map[uint64][]*hostmem.Subregion)
	}

	r.held[offset] = append(r.held[offset], sub)

	return nil
}

func (r *Runner) release(offset uint64) error {
	subs := r.held[offset]
	if len(subs) == 0 {
		return fmt.Errorf("nothing held at 0x%x", offset)
	}

	sub := subs[len(subs)-1]
	r.held[offset] = subs[:len(subs)-1]

	sub.Unref()

	return nil
}

// Held counts the references the scenario still holds.
func (r *Runner) Held() int {
	n := 0
	for _, subs := range r.held {
		n += len(subs)
	}

	return n
}
