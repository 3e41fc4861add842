// Package emu provides the dual-core ARM execution engine.
package emu

import "errors"

// ErrNilMemory is returned when a nil memory interface is installed.
var ErrNilMemory = errors.New("nil memory interface")

// MemoryInterface resolves the loads, stores and code fetches of one core.
//
// Fetch operations return the fetched value and its cost in cycles. Data
// operations return no cost; their timing is charged by the opcode handlers.
// An implementation carries its own context, so redirecting a core's memory
// binding always installs a fully formed context along with the table.
type MemoryInterface interface {
	Fetch32(addr uint32) (word uint32, cycles uint32)
	Fetch16(addr uint32) (half uint16, cycles uint32)

	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32

	Write8(addr uint32, value uint8)
	Write16(addr uint32, value uint16)
	Write32(addr uint32, value uint32)
}

// BaseMemory returns the memory interface installed at construction.
func (c *Core) BaseMemory() MemoryInterface {
	return c.baseMem
}

// Memory returns the memory interface currently serving the core.
func (c *Core) Memory() MemoryInterface {
	return c.mem
}

// RedirectMemory routes all further accesses through m, typically a wrapper
// around BaseMemory.
func (c *Core) RedirectMemory(m MemoryInterface) error {
	if m == nil {
		return ErrNilMemory
	}
	c.mem = m
	return nil
}

// ResetMemoryToBase restores the construction-time memory binding.
func (c *Core) ResetMemoryToBase() {
	c.mem = c.baseMem
}
