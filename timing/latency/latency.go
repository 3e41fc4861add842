// Package latency provides the timing model of the dual-core complex.
//
// Execute costs are charged by the opcode tables, fetch costs by the memory
// bus. A Combiner merges the two per step and can be configured via
// TimingConfig.
package latency

import (
	"github.com/sarchlab/dualarm/emu"
)

// Combiner merges execute and fetch costs for one core.
type Combiner struct {
	overlap bool
}

// NewCombiner creates a combiner. With overlap the fetch of the next
// instruction proceeds during execution.
func NewCombiner(overlap bool) *Combiner {
	return &Combiner{overlap: overlap}
}

// CombinerFor returns the combiner configured for core id.
func (c *TimingConfig) CombinerFor(id emu.Identity) *Combiner {
	return NewCombiner(c.Core(id).OverlapFetch)
}

// Core returns the per-core timing of id.
func (c *TimingConfig) Core(id emu.Identity) CoreTiming {
	if id == emu.CoreA {
		return c.CoreA
	}
	return c.CoreB
}

// Combine returns the cycles of a step.
func (c *Combiner) Combine(execute, fetch uint32) uint32 {
	if !c.overlap {
		return execute + fetch
	}
	return max(execute, fetch)
}

// Overlap reports whether fetch and execute overlap.
func (c *Combiner) Overlap() bool {
	return c.overlap
}
