package insts

import (
	"github.com/sarchlab/dualarm/emu"
)

// NewTable builds the reference dispatch tables charging costs. Slots whose
// index bits do not select a supported format stay nil and trap as
// undefined. With armv5 false the BLX register and coprocessor slots are
// left empty.
func NewTable(armv5 bool, costs Costs) *emu.OpcodeTable {
	d := NewDecoder()
	x := NewExecutor(costs)
	t := &emu.OpcodeTable{}

	armHandler := func(c *emu.Core, word uint32) uint32 {
		inst := d.Decode(word)
		// Condition 0xF only reaches a handler on ARMv5, where the sole
		// supported encoding is BLX immediate.
		if inst.Cond == 0xF && inst.Op != OpBLX {
			return c.TrapUndefined()
		}
		return x.Execute(c, inst)
	}
	thumbHandler := func(c *emu.Core, half uint32) uint32 {
		return x.Execute(c, d.DecodeThumb(uint16(half)))
	}

	for i := uint32(0); i < emu.ARMTableSize; i++ {
		inst := d.Decode(representativeARM(i))
		if !supportedARM(inst, armv5) {
			continue
		}
		t.ARM[i] = armHandler
	}

	for i := uint32(0); i < emu.ThumbTableSize; i++ {
		inst := d.DecodeThumb(uint16(i << 6))
		if inst.Format == FormatUnknown {
			continue
		}
		t.Thumb[i] = thumbHandler
	}

	return t
}

// representativeARM returns an always-executed instruction word whose index
// bits are i and whose other bits satisfy the should-be-one fields.
func representativeARM(i uint32) uint32 {
	w := 0xE<<28 | (i&0xFF0)<<16 | (i&0xF)<<4
	if (w>>20)&0xFF == 0x12 {
		w |= 0xFFF << 8
	}
	if (w>>24)&0xF == 0xE && w&0x10 != 0 {
		w |= 15 << 8
	}
	return w
}

func supportedARM(inst *Instruction, armv5 bool) bool {
	switch inst.Format {
	case FormatUnknown:
		return false
	case FormatCoprocessor:
		return armv5 && inst.Op != OpUnknown
	case FormatBranchExchange:
		return inst.Op == OpBX || (armv5 && inst.Op == OpBLX)
	}
	return inst.Op != OpUnknown
}
