// Package emu provides the dual-core ARM execution engine.
package emu

// Pipeline lookahead: R15 reads as the fetched address plus two instructions.
const (
	armLookahead   = 8
	thumbLookahead = 4
)

// prefetch loads the instruction at nextInstruction and returns its fetch
// cost. R15 is set before the memory access because the memory layer may
// key protection on the program counter.
func (c *Core) prefetch() uint32 {
	addr := c.nextInstruction

	if !c.regs.CPSR.Thumb() {
		addr &^= 3
		c.instructAddr = addr
		c.nextInstruction = addr + 4
		c.regs.R[RegPC] = addr + armLookahead

		word, cycles := c.mem.Fetch32(addr)
		c.instruction = word
		c.lastFetchValid = false
		return cycles
	}

	addr &^= 1
	c.instructAddr = addr
	c.nextInstruction = addr + 2
	c.regs.R[RegPC] = addr + thumbLookahead

	half, cycles := c.thumbFetch(c, addr)
	c.instruction = half
	c.lastFetch = addr
	c.lastFetchValid = true
	return cycles
}

func (c *Core) fetchThumbNarrow(addr uint32) (uint32, uint32) {
	half, cycles := c.mem.Fetch16(addr)
	return uint32(half), cycles
}

// fetchThumbWide models a 32-bit code bus: the aligned word holding both
// halfwords is fetched once, and the sequential upper half is free.
func (c *Core) fetchThumbWide(addr uint32) (uint32, uint32) {
	sequential := c.lastFetchValid && addr == c.lastFetch+2 && addr&2 != 0

	word, cycles := c.mem.Fetch32(addr &^ 3)
	half := word >> ((addr & 2) * 8) & 0xFFFF
	if sequential {
		return half, 0
	}
	return half, cycles
}
