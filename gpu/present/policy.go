package present

import (
	"fmt"
	"strings"
)

// Tier is one way of getting a frame on screen.
type Tier int

// Tiers, cheapest first.
const (
	TierHostPtr Tier = iota
	TierZeroCopy
	TierSwapchain
	TierRaster
)

var tierNames = map[Tier]string{
	TierHostPtr:   "hostptr",
	TierZeroCopy:  "zerocopy",
	TierSwapchain: "swapchain",
	TierRaster:    "raster",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}

	return fmt.Sprintf("tier(%d)", int(t))
}

// Policy is the order tiers are tried in.
type Policy struct {
	Tiers []Tier
}

// DefaultPolicy tries every tier, cheapest first.
func DefaultPolicy() Policy {
	return Policy{Tiers: []Tier{
		TierHostPtr, TierZeroCopy, TierSwapchain, TierRaster,
	}}
}

// ParsePolicy parses a comma separated list of tier names.
func ParsePolicy(s string) (Policy, error) {
	var p Policy

	seen := make(map[Tier]bool)

	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		tier, ok := tierByName(field)
		if !ok {
			return Policy{}, fmt.Errorf("unknown presentation tier %q", field)
		}

		if seen[tier] {
			return Policy{}, fmt.Errorf("presentation tier %q listed twice",
				field)
		}

		seen[tier] = true
		p.Tiers = append(p.Tiers, tier)
	}

	if len(p.Tiers) == 0 {
		return Policy{}, fmt.Errorf("no presentation tier in %q", s)
	}

	return p, nil
}

func tierByName(name string) (Tier, bool) {
	for tier, n := range tierNames {
		if n == name {
			return tier, true
		}
	}

	return 0, false
}

// Without returns the policy minus one tier.
func (p Policy) Without(tier Tier) Policy {
	var out Policy

	for _, t := range p.Tiers {
		if t != tier {
			out.Tiers = append(out.Tiers, t)
		}
	}

	return out
}

func (p Policy) String() string {
	names := make([]string, len(p.Tiers))
	for i, t := range p.Tiers {
		names[i] = t.String()
	}

	return strings.Join(names, ",")
}
