// Package scenario replays scripted guest command streams against a device.
//
// A scenario is a YAML document:
//
//	name: blob scanout
//	env:
//	  VGPU_VENUS: "true"
//	steps:
//	  - cmd: CTX_CREATE
//	    ctx: 1
//	    name: venus
//	    args: {context_init: 4}
//	  - cmd: RESOURCE_CREATE_BLOB
//	    ctx: 1
//	    args: {resource_id: 7, blob_mem: 2, blob_flags: 1, size: 1048576}
//	  - cmd: RESOURCE_MAP_BLOB
//	    args: {resource_id: 7}
//	    expect: OK_MAP_INFO
//	  - wait: 20ms
//
// Argument keys are the payload field names in snake case.
package scenario

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSettle is how long the device runs after the last step.
const DefaultSettle = 100 * time.Millisecond

// Scenario is a scripted command stream.
type Scenario struct {
	Name string `yaml:"name"`

	// Env holds configuration variables the scenario needs. The process
	// environment overrides them.
	Env map[string]string `yaml:"env"`

	// Settle is how long the device runs after the last step so that fences
	// retire. Empty means DefaultSettle.
	Settle string `yaml:"settle"`

	Steps []Step `yaml:"steps"`
}

// Step is one action of a scenario. Exactly one of Cmd, Wait, Write, Hold
// and Release is set.
type Step struct {
	Cmd   string  `yaml:"cmd"`
	Ctx   uint32  `yaml:"ctx"`
	Fence *uint64 `yaml:"fence"`
	Ring  *uint8  `yaml:"ring"`

	// Name is the debug name of CTX_CREATE.
	Name string `yaml:"name"`

	Args    yaml.Node `yaml:"args"`
	Entries []Entry   `yaml:"entries"`

	// Data is the command stream of SUBMIT_3D.
	Data string `yaml:"data"`

	// Expect is the response the command must get, such as OK_NODATA.
	Expect string `yaml:"expect"`

	// Wait advances the device clock, as in "16ms".
	Wait string `yaml:"wait"`

	// Write fills guest memory.
	Write *Write `yaml:"write"`

	// Hold and Release take and drop a reference on the host memory region
	// mapped at the given window offset, as a guest mapping would.
	Hold    *uint64 `yaml:"hold"`
	Release *uint64 `yaml:"release"`
}

// Entry is a guest memory span of a backing.
type Entry struct {
	Addr   uint64 `yaml:"addr"`
	Length uint32 `yaml:"length"`
}

// Write fills Length bytes of guest memory at Addr with Fill, or with
// increasing byte values when Pattern is "ramp".
type Write struct {
	Addr    uint64 `yaml:"addr"`
	Length  uint64 `yaml:"length"`
	Fill    uint8  `yaml:"fill"`
	Pattern string `yaml:"pattern"`
}

func (s Step) kind() (string, error) {
	var kinds []string

	if s.Cmd != "" {
		kinds = append(kinds, "cmd")
	}

	if s.Wait != "" {
		kinds = append(kinds, "wait")
	}

	if s.Write != nil {
		kinds = append(kinds, "write")
	}

	if s.Hold != nil {
		kinds = append(kinds, "hold")
	}

	if s.Release != nil {
		kinds = append(kinds, "release")
	}

	if len(kinds) != 1 {
		return "", fmt.Errorf("a step needs exactly one action, got %v", kinds)
	}

	return kinds[0], nil
}

// Parse reads a scenario.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	sc := &Scenario{}

	err := dec.Decode(sc)
	if err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	for i, step := range sc.Steps {
		_, err := step.kind()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	_, err = sc.settle()
	if err != nil {
		return nil, err
	}

	return sc, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if sc.Name == "" {
		sc.Name = path
	}

	return sc, nil
}

// NumCommands counts the command steps.
func (sc *Scenario) NumCommands() int {
	n := 0

	for _, s := range sc.Steps {
		if s.Cmd != "" {
			n++
		}
	}

	return n
}

func (sc *Scenario) settle() (time.Duration, error) {
	if sc.Settle == "" {
		return DefaultSettle, nil
	}

	d, err := time.ParseDuration(sc.Settle)
	if err != nil {
		return 0, fmt.Errorf("settle: %w", err)
	}

	return d, nil
}
