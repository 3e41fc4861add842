// Package emu provides the dual-core ARM execution engine.
package emu

// Dispatch table sizes.
const (
	ARMTableSize   = 4096
	ThumbTableSize = 1024
)

// Handler executes one decoded instruction and returns its execute cost in
// cycles. Thumb handlers receive the halfword zero-extended.
type Handler func(c *Core, instruction uint32) uint32

// OpcodeTable holds the dense dispatch tables of one core identity. Nil
// entries are treated as undefined instructions.
//
// The index spaces are stable: tracing and statistics tools key off
// ARMIndex and ThumbIndex.
type OpcodeTable struct {
	ARM   [ARMTableSize]Handler
	Thumb [ThumbTableSize]Handler
}

// ARMIndex maps a 32-bit instruction to its table slot using bits 27-20 and
// 7-4.
func ARMIndex(instruction uint32) uint32 {
	return (instruction>>16)&0xFF0 | (instruction>>4)&0xF
}

// ThumbIndex maps a 16-bit instruction to its table slot using bits 15-6.
func ThumbIndex(instruction uint32) uint32 {
	return (instruction & 0xFFFF) >> 6
}

// TimingCombiner merges execute and fetch costs. Depending on the bus the
// two may overlap rather than add.
type TimingCombiner interface {
	Combine(execute, fetch uint32) uint32
}

type sumCombiner struct{}

func (sumCombiner) Combine(execute, fetch uint32) uint32 { return execute + fetch }
