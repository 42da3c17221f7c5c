// Package config collects the device options from defaults, .env files and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sarchlab/vgpu/gpu/device"
	"github.com/sarchlab/vgpu/gpu/present"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/sim/timing"
)

// Environment variables read by FromEnv.
const (
	EnvBlob           = "VGPU_BLOB"
	EnvContextInit    = "VGPU_CONTEXT_INIT"
	EnvVenus          = "VGPU_VENUS"
	EnvVenusOnly      = "VGPU_VENUS_ONLY"
	EnvHostMemSize    = "VGPU_HOSTMEM_SIZE"
	EnvHVF            = "VGPU_HVF"
	EnvMaxOutputs     = "VGPU_MAX_OUTPUTS"
	EnvPresentTiers   = "VGPU_PRESENT_TIERS"
	EnvStats          = "VGPU_STATS"
	EnvRecorder       = "VGPU_RECORDER"
	EnvBackend        = "VGPU_BACKEND"
	EnvDisplay        = "VGPU_DISPLAY"
	EnvPresentFPS     = "VKR_PRESENT_FPS"
	EnvPresentTimerNs = "VKR_PRESENT_TIMER_NS"
	EnvUseIOSurface   = "VKR_USE_IOSURFACE"
)

// DefaultHostMemSize is the size of the host memory window blobs are mapped
// into.
const DefaultHostMemSize = 256 << 20

// Config is the configuration of a device run.
type Config struct {
	Blob        bool
	ContextInit bool
	Venus       bool
	VenusOnly   bool
	HVF         bool
	Stats       bool
	HostMemSize uint64
	MaxOutputs  int
	Display     device.Display
	Policy      present.Policy

	// Backend names the presentation platform. Empty picks the best one
	// available.
	Backend string

	// Recorder is a SQLite file name or a database URL. Empty names the file
	// after the session.
	Recorder string

	// PresentFPS and PresentTimerNs drive the present timer. PresentFPS wins
	// when both are set; zero for both disables the timer.
	PresentFPS     uint64
	PresentTimerNs uint64
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Blob:        true,
		ContextInit: true,
		Venus:       true,
		HostMemSize: DefaultHostMemSize,
		MaxOutputs:  1,
		Display:     device.DefaultDisplay,
		Policy:      present.DefaultPolicy().Without(present.TierZeroCopy),
	}
}

// LookupFunc finds the value of a variable.
type LookupFunc func(key string) (string, bool)

// Load reads the given .env files, which may be missing, and the process
// environment. Variables of the environment win over the files, and earlier
// files win over later ones.
func Load(envFiles ...string) (Config, error) {
	return LoadWith(nil, envFiles...)
}

// LoadWith is Load with vars read between the process environment and the
// files. Replayed scenarios carry their variables this way.
func LoadWith(vars map[string]string, envFiles ...string) (Config, error) {
	fileVars := make(map[string]string)

	for _, f := range envFiles {
		vars, err := godotenv.Read(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", f, err)
		}

		for k, v := range vars {
			if _, set := fileVars[k]; !set {
				fileVars[k] = v
			}
		}
	}

	return FromEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		if v, ok := vars[key]; ok {
			return v, true
		}

		v, ok := fileVars[key]

		return v, ok
	})
}

// FromEnv applies the variables found by lookup over the defaults.
func FromEnv(lookup LookupFunc) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.boolean(EnvBlob, &c.Blob)
	p.boolean(EnvContextInit, &c.ContextInit)
	p.boolean(EnvVenus, &c.Venus)
	p.boolean(EnvVenusOnly, &c.VenusOnly)
	p.boolean(EnvHVF, &c.HVF)
	p.boolean(EnvStats, &c.Stats)
	p.size(EnvHostMemSize, &c.HostMemSize)
	p.integer(EnvMaxOutputs, &c.MaxOutputs)
	p.display(EnvDisplay, &c.Display)
	p.str(EnvBackend, &c.Backend)
	p.str(EnvRecorder, &c.Recorder)
	p.unsigned(EnvPresentFPS, &c.PresentFPS)
	p.unsigned(EnvPresentTimerNs, &c.PresentTimerNs)
	p.policy(EnvPresentTiers, &c.Policy)

	if _, ok := lookup(EnvUseIOSurface); ok {
		c.Policy = withTier(c.Policy, present.TierZeroCopy)
	}

	if p.err != nil {
		return Config{}, p.err
	}

	return c, c.Validate()
}

// withTier puts the zero-copy tier back right after the host pointer tier
// when the policy lacks it.
func withTier(p present.Policy, tier present.Tier) present.Policy {
	for _, t := range p.Tiers {
		if t == tier {
			return p
		}
	}

	tiers := make([]present.Tier, 0, len(p.Tiers)+1)
	inserted := false

	for _, t := range p.Tiers {
		if !inserted && t > tier {
			tiers = append(tiers, tier)
			inserted = true
		}

		tiers = append(tiers, t)
	}

	if !inserted {
		tiers = append(tiers, tier)
	}

	return present.Policy{Tiers: tiers}
}

// Validate checks that the options can build a device.
func (c Config) Validate() error {
	if c.MaxOutputs < 1 || c.MaxOutputs > protocol.MaxScanouts {
		return fmt.Errorf("max outputs %d is not between 1 and %d",
			c.MaxOutputs, protocol.MaxScanouts)
	}

	if c.VenusOnly && !c.Venus {
		return errors.New("venus only mode needs venus")
	}

	if c.Blob && c.HostMemSize == 0 {
		return errors.New("blobs need a host memory window")
	}

	if len(c.Policy.Tiers) == 0 {
		return errors.New("no presentation tier enabled")
	}

	return nil
}

// PresentInterval is the period of the present timer, or 0 when it is off.
func (c Config) PresentInterval() timing.VTimeInNs {
	if c.PresentFPS > 0 {
		return timing.Second / timing.VTimeInNs(c.PresentFPS)
	}

	return timing.VTimeInNs(c.PresentTimerNs)
}

// Apply carries the options into a device builder.
func (c Config) Apply(b device.Builder) device.Builder {
	return b.
		WithBlob(c.Blob).
		WithContextInit(c.ContextInit).
		WithVenus(c.Venus).
		WithVenusOnly(c.VenusOnly).
		WithHVF(c.HVF).
		WithStats(c.Stats).
		WithMaxOutputs(c.MaxOutputs).
		WithDisplay(c.Display).
		WithPolicy(c.Policy).
		WithPresentInterval(c.PresentInterval())
}

type parser struct {
	lookup LookupFunc
	err    error
}

func (p *parser) get(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}

	v, ok := p.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}

	return strings.TrimSpace(v), true
}

func (p *parser) fail(key, value string, err error) {
	p.err = fmt.Errorf("%s=%q: %w", key, value, err)
}

func (p *parser) boolean(key string, dst *bool) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	switch strings.ToLower(v) {
	case "on", "yes":
		*dst = true
		return
	case "off", "no":
		*dst = false
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = b
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = n
}

func (p *parser) unsigned(key string, dst *uint64) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = n
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) size(key string, dst *uint64) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	n, err := ParseSize(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = n
}

func (p *parser) display(key string, dst *device.Display) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	d, err := ParseDisplay(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = d
}

func (p *parser) policy(key string, dst *present.Policy) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	policy, err := present.ParsePolicy(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = policy
}

// ParseSize parses a byte count with an optional K, M or G suffix.
func ParseSize(s string) (uint64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")
	s = strings.TrimSuffix(s, "I")

	shift := 0

	switch {
	case strings.HasSuffix(s, "K"):
		shift = 10
	case strings.HasSuffix(s, "M"):
		shift = 20
	case strings.HasSuffix(s, "G"):
		shift = 30
	}

	if shift > 0 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}

	if n > (^uint64(0))>>shift {
		return 0, fmt.Errorf("size %s overflows", s)
	}

	return n << shift, nil
}

// ParseDisplay parses a mode written as WIDTHxHEIGHT.
func ParseDisplay(s string) (device.Display, error) {
	w, h, found := strings.Cut(strings.ToLower(s), "x")
	if !found {
		return device.Display{}, fmt.Errorf("display %q is not WIDTHxHEIGHT", s)
	}

	width, err := strconv.ParseUint(w, 10, 32)
	if err != nil {
		return device.Display{}, err
	}

	height, err := strconv.ParseUint(h, 10, 32)
	if err != nil {
		return device.Display{}, err
	}

	if width == 0 || height == 0 {
		return device.Display{}, fmt.Errorf("display %q is empty", s)
	}

	return device.Display{Width: uint32(width), Height: uint32(height)}, nil
}
