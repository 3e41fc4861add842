// Package insts provides ARM and Thumb instruction definitions, decoding and
// the reference opcode tables dispatched by the emu core.
package insts

// Decoder decodes ARM and Thumb machine code into instructions.
//
// Format classification only looks at bits 27-20 and 7-4 of an ARM word and
// bits 15-6 of a Thumb halfword, the bits that select a dispatch table slot.
// Constraints on the remaining bits are checked when decoding the fields and
// yield OpUnknown.
type Decoder struct{}

// NewDecoder creates a new instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit ARM instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Cond: uint8(word >> 28)}

	switch {
	case d.isSWI(word):
		inst.Format = FormatSWI
		inst.Op = OpSWI
		inst.Imm = word & 0xFFFFFF
	case d.isCoprocessor(word):
		d.decodeCoprocessor(word, inst)
	case d.isBranch(word):
		d.decodeBranch(word, inst)
	case d.isMultiply(word):
		d.decodeMultiply(word, inst)
	case d.isBranchExchange(word):
		d.decodeBranchExchange(word, inst)
	case d.isPSRTransfer(word):
		d.decodePSRTransfer(word, inst)
	case d.isDataProc(word):
		d.decodeDataProc(word, inst)
	case d.isLoadStore(word):
		d.decodeLoadStore(word, inst)
	}

	return inst
}

// isSWI: bits [27:24] == 0b1111
func (d *Decoder) isSWI(word uint32) bool {
	return (word>>24)&0xF == 0xF
}

// isCoprocessor: register transfer, bits [27:24] == 0b1110 and bit 4 set
func (d *Decoder) isCoprocessor(word uint32) bool {
	return (word>>24)&0xF == 0xE && word&0x10 != 0
}

// decodeCoprocessor decodes MCR/MRC.
// Format: cond | 1110 | opc1 | L | CRn | Rd | cp | opc2 | 1 | CRm
func (d *Decoder) decodeCoprocessor(word uint32, inst *Instruction) {
	inst.Format = FormatCoprocessor
	inst.Opc1 = uint8((word >> 21) & 0x7)
	inst.Load = word&(1<<20) != 0
	inst.CRn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)
	inst.CP = uint8((word >> 8) & 0xF)
	inst.Opc2 = uint8((word >> 5) & 0x7)
	inst.CRm = uint8(word & 0xF)

	if inst.CP != 15 {
		return
	}
	if inst.Load {
		inst.Op = OpMRC
	} else {
		inst.Op = OpMCR
	}
}

// isBranch: bits [27:25] == 0b101
func (d *Decoder) isBranch(word uint32) bool {
	return (word>>25)&0x7 == 0x5
}

// decodeBranch decodes B/BL, and BLX immediate under condition 0xF.
// Format: cond | 101 | L | imm24
func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	inst.Format = FormatBranch
	inst.Offset = int32(word<<8) >> 6
	inst.Link = word&(1<<24) != 0

	switch {
	case inst.Cond == 0xF:
		inst.Op = OpBLX
		inst.Link = true
		if word&(1<<24) != 0 {
			inst.Offset += 2
		}
	case inst.Link:
		inst.Op = OpBL
	default:
		inst.Op = OpB
	}
}

// isMultiply: bits [27:22] == 0 and bits [7:4] == 0b1001
func (d *Decoder) isMultiply(word uint32) bool {
	return (word>>22)&0x3F == 0 && (word>>4)&0xF == 0x9
}

// decodeMultiply decodes MUL/MLA.
// Format: cond | 000000 | A | S | Rd | Rn | Rs | 1001 | Rm
func (d *Decoder) decodeMultiply(word uint32, inst *Instruction) {
	inst.Format = FormatMultiply
	inst.SetFlags = word&(1<<20) != 0
	inst.Rd = uint8((word >> 16) & 0xF)
	inst.Rn = uint8((word >> 12) & 0xF)
	inst.Rs = uint8((word >> 8) & 0xF)
	inst.Rm = uint8(word & 0xF)
	if word&(1<<21) != 0 {
		inst.Op = OpMLA
	} else {
		inst.Op = OpMUL
	}
}

// isBranchExchange: bits [27:20] == 0b00010010 and bits [7:4] is 0b0001 or 0b0011
func (d *Decoder) isBranchExchange(word uint32) bool {
	op := (word >> 4) & 0xF
	return (word>>20)&0xFF == 0x12 && (op == 0x1 || op == 0x3)
}

// decodeBranchExchange decodes BX/BLX register.
// Format: cond | 00010010 | 1111 1111 1111 | 00L1 | Rm
func (d *Decoder) decodeBranchExchange(word uint32, inst *Instruction) {
	inst.Format = FormatBranchExchange
	inst.Rm = uint8(word & 0xF)
	if (word>>8)&0xFFF != 0xFFF {
		return
	}
	if word&0x20 != 0 {
		inst.Op = OpBLX
		inst.Link = true
	} else {
		inst.Op = OpBX
	}
}

// isPSRTransfer: TST/TEQ/CMP/CMN encodings with S clear.
// MRS:     bits [27:20] == 0b00010R00, bits [7:4] == 0
// MSR reg: bits [27:20] == 0b00010R10, bits [7:4] == 0
// MSR imm: bits [27:20] == 0b00110R10
func (d *Decoder) isPSRTransfer(word uint32) bool {
	hi := (word >> 20) & 0xFF
	lo := (word >> 4) & 0xF
	switch hi {
	case 0x10, 0x14, 0x12, 0x16:
		return lo == 0
	case 0x32, 0x36:
		return true
	}
	return false
}

// decodePSRTransfer decodes MRS and MSR.
func (d *Decoder) decodePSRTransfer(word uint32, inst *Instruction) {
	inst.Format = FormatPSRTransfer
	inst.SPSR = word&(1<<22) != 0

	if word&(1<<21) == 0 {
		inst.Op = OpMRS
		inst.Rd = uint8((word >> 12) & 0xF)
		return
	}

	inst.Op = OpMSR
	inst.FieldMask = uint8((word >> 16) & 0xF)
	if word&(1<<25) != 0 {
		inst.Immediate = true
		inst.Rotate = uint8((word >> 8) & 0xF * 2)
		inst.Imm = rotateRight(word&0xFF, uint(inst.Rotate))
	} else {
		inst.Rm = uint8(word & 0xF)
	}
}

// isDataProc: bits [27:26] == 0b00, excluding the multiply/extra
// load-store space (bit 25 clear, bits 7 and 4 set) and the undefined
// immediate encodings of TST/TEQ/CMP/CMN with S clear.
func (d *Decoder) isDataProc(word uint32) bool {
	if (word>>26)&0x3 != 0 {
		return false
	}
	hi := (word >> 20) & 0xFF
	if word&(1<<25) == 0 {
		if word&0x90 == 0x90 {
			return false
		}
		// Remaining TST..CMN encodings without S are miscellaneous.
		return !(hi&0x19 == 0x10)
	}
	return !(hi&0x19 == 0x10)
}

// decodeDataProc decodes data processing instructions.
// Format: cond | 00 | I | opcode | S | Rn | Rd | operand2
func (d *Decoder) decodeDataProc(word uint32, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.Op = OpAND + Op((word>>21)&0xF)
	inst.SetFlags = word&(1<<20) != 0
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)

	if word&(1<<25) != 0 {
		inst.Immediate = true
		inst.Rotate = uint8((word >> 8) & 0xF * 2)
		inst.Imm = rotateRight(word&0xFF, uint(inst.Rotate))
		return
	}

	inst.Rm = uint8(word & 0xF)
	inst.ShiftType = ShiftType((word >> 5) & 0x3)
	if word&0x10 != 0 {
		inst.ShiftByReg = true
		inst.Rs = uint8((word >> 8) & 0xF)
	} else {
		inst.ShiftAmount = uint8((word >> 7) & 0x1F)
	}
}

// isLoadStore: bits [27:26] == 0b01, excluding the media space (bit 25 and
// bit 4 set).
func (d *Decoder) isLoadStore(word uint32) bool {
	return (word>>26)&0x3 == 0x1 && word&(1<<25|1<<4) != 1<<25|1<<4
}

// decodeLoadStore decodes LDR/STR/LDRB/STRB.
// Format: cond | 01 | I | P | U | B | W | L | Rn | Rd | offset
func (d *Decoder) decodeLoadStore(word uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Pre = word&(1<<24) != 0
	inst.Up = word&(1<<23) != 0
	inst.Byte = word&(1<<22) != 0
	inst.WriteBack = word&(1<<21) != 0 || !inst.Pre
	inst.Load = word&(1<<20) != 0
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)

	if word&(1<<25) == 0 {
		inst.Immediate = true
		inst.Imm = word & 0xFFF
	} else {
		inst.Rm = uint8(word & 0xF)
		inst.ShiftType = ShiftType((word >> 5) & 0x3)
		inst.ShiftAmount = uint8((word >> 7) & 0x1F)
	}

	if inst.Load {
		inst.Op = OpLDR
	} else {
		inst.Op = OpSTR
	}
}

func rotateRight(v uint32, n uint) uint32 {
	n &= 31
	return v>>n | v<<(32-n)
}
