// Package emu provides the dual-core ARM execution engine.
package emu

// CompiledBlock runs translated code for the core and returns the cycles it
// consumed.
type CompiledBlock func(c *Core) uint32

// JIT is an optional compiled-code strategy consulted before interpretation.
// Invalidation on memory writes is the implementation's concern. The
// post-execute observer sees a compiled block once, at its entry address.
type JIT interface {
	// Lookup returns the block compiled for addr, or nil.
	Lookup(id Identity, addr uint32) CompiledBlock

	// Compile requests translation of the block at the core's fetched
	// address and returns the cycles spent compiling.
	Compile(c *Core) uint32
}

// SyncPipeline refills the pipeline from the pending next-instruction
// address. Compiled code calls it after moving the program counter with
// Branch or BranchExchange, and returns the fetch cost as part of its own.
func (c *Core) SyncPipeline() uint32 {
	return c.prefetch()
}

func (c *Core) alignedInstructionAddress() uint32 {
	if c.regs.CPSR.Thumb() {
		return c.instructAddr &^ 1
	}
	return c.instructAddr &^ 3
}

func (c *Core) stepCompiled(addr uint32) (uint32, bool) {
	c.instructAddr = addr

	if block := c.jit.Lookup(c.id, addr); block != nil {
		c.stats.JITHits++
		return block(c), true
	}

	c.stats.JITMisses++
	c.stats.JITCompileCycles += uint64(c.jit.Compile(c))
	return 0, false
}
