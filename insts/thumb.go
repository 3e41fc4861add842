package insts

// thumbALUOps maps the 4-bit opcode of Thumb format 4 to a data-processing
// operation. Shifts and NEG are rewritten in DecodeThumb.
var thumbALUOps = [16]Op{
	OpAND, OpEOR, OpMOV, OpMOV, OpMOV, OpADC, OpSBC, OpMOV,
	OpTST, OpRSB, OpCMP, OpCMN, OpORR, OpMUL, OpBIC, OpMVN,
}

// DecodeThumb decodes a 16-bit Thumb instruction.
func (d *Decoder) DecodeThumb(half uint16) *Instruction {
	h := uint32(half)
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Cond: 0xE, Thumb: true}

	switch {
	case h>>13 == 0x0 && (h>>11)&0x3 != 0x3:
		// Format 1: 000 | op | imm5 | Rs | Rd
		inst.Format = FormatDataProc
		inst.Op = OpMOV
		inst.SetFlags = true
		inst.ShiftType = ShiftType((h >> 11) & 0x3)
		inst.ShiftAmount = uint8((h >> 6) & 0x1F)
		inst.Rm = uint8((h >> 3) & 0x7)
		inst.Rd = uint8(h & 0x7)

	case h>>11 == 0x3:
		// Format 2: 00011 | I | op | Rn/imm3 | Rs | Rd
		inst.Format = FormatDataProc
		inst.SetFlags = true
		inst.Rn = uint8((h >> 3) & 0x7)
		inst.Rd = uint8(h & 0x7)
		if h&(1<<10) != 0 {
			inst.Immediate = true
			inst.Imm = (h >> 6) & 0x7
		} else {
			inst.Rm = uint8((h >> 6) & 0x7)
		}
		if h&(1<<9) != 0 {
			inst.Op = OpSUB
		} else {
			inst.Op = OpADD
		}

	case h>>13 == 0x1:
		// Format 3: 001 | op | Rd | imm8
		inst.Format = FormatDataProc
		inst.SetFlags = true
		inst.Immediate = true
		inst.Rd = uint8((h >> 8) & 0x7)
		inst.Rn = inst.Rd
		inst.Imm = h & 0xFF
		inst.Op = [4]Op{OpMOV, OpCMP, OpADD, OpSUB}[(h>>11)&0x3]

	case h>>10 == 0x10:
		// Format 4: 010000 | op | Rs | Rd
		d.decodeThumbALU(h, inst)

	case h>>10 == 0x11:
		// Format 5: 010001 | op | H1 | H2 | Rs | Rd
		d.decodeThumbHiReg(h, inst)

	case h>>11 == 0x9:
		// Format 6: 01001 | Rd | imm8, PC-relative load
		inst.Format = FormatLoadStore
		inst.Op = OpLDR
		inst.Load = true
		inst.Pre = true
		inst.Up = true
		inst.Immediate = true
		inst.Rn = 15
		inst.Rd = uint8((h >> 8) & 0x7)
		inst.Imm = (h & 0xFF) << 2

	case h>>13 == 0x3:
		// Format 9: 011 | B | L | imm5 | Rb | Rd
		inst.Format = FormatLoadStore
		inst.Pre = true
		inst.Up = true
		inst.Immediate = true
		inst.Byte = h&(1<<12) != 0
		inst.Load = h&(1<<11) != 0
		inst.Rn = uint8((h >> 3) & 0x7)
		inst.Rd = uint8(h & 0x7)
		inst.Imm = (h >> 6) & 0x1F
		if !inst.Byte {
			inst.Imm <<= 2
		}
		if inst.Load {
			inst.Op = OpLDR
		} else {
			inst.Op = OpSTR
		}

	case h>>12 == 0xD:
		// Format 16/17: 1101 | cond | soffset8
		cond := uint8((h >> 8) & 0xF)
		switch cond {
		case 0xF:
			inst.Format = FormatSWI
			inst.Op = OpSWI
			inst.Imm = h & 0xFF
		case 0xE:
		default:
			inst.Format = FormatBranch
			inst.Op = OpB
			inst.Cond = cond
			inst.Offset = int32(int8(h)) << 1
		}

	case h>>11 == 0x1C:
		// Format 18: 11100 | offset11
		inst.Format = FormatBranch
		inst.Op = OpB
		inst.Offset = int32(h<<21) >> 20

	case h>>11 == 0x1E:
		// Format 19 high half: 11110 | offset11
		inst.Format = FormatLongBranch
		inst.Op = OpBLPrefix
		inst.Offset = int32(h<<21) >> 9

	case h>>11 == 0x1F, h>>11 == 0x1D:
		// Format 19 low half: 111H1 | offset11
		inst.Format = FormatLongBranch
		inst.Offset = int32((h & 0x7FF) << 1)
		inst.Link = true
		if h>>11 == 0x1F {
			inst.Op = OpBLSuffix
		} else {
			inst.Op = OpBLXSuffix
		}
	}

	return inst
}

func (d *Decoder) decodeThumbALU(h uint32, inst *Instruction) {
	op := (h >> 6) & 0xF
	inst.Format = FormatDataProc
	inst.SetFlags = true
	inst.Rd = uint8(h & 0x7)
	inst.Rn = inst.Rd
	inst.Rm = uint8((h >> 3) & 0x7)
	inst.Op = thumbALUOps[op]

	switch op {
	case 0x2, 0x3, 0x4, 0x7:
		// LSL/LSR/ASR/ROR Rd, Rs: Rd shifted by Rs
		inst.ShiftByReg = true
		inst.Rs = inst.Rm
		inst.Rm = inst.Rd
		inst.ShiftType = [16]ShiftType{0x2: ShiftLSL, 0x3: ShiftLSR, 0x4: ShiftASR, 0x7: ShiftROR}[op]
	case 0x9:
		// NEG Rd, Rs: Rd = 0 - Rs
		inst.Rn = inst.Rm
		inst.Immediate = true
		inst.Imm = 0
	case 0xD:
		inst.Format = FormatMultiply
		inst.Rs = inst.Rd
	}
}

func (d *Decoder) decodeThumbHiReg(h uint32, inst *Instruction) {
	op := (h >> 8) & 0x3
	rd := uint8(h&0x7) | uint8((h>>4)&0x8)
	rm := uint8((h >> 3) & 0xF)

	switch op {
	case 0x0:
		inst.Format = FormatDataProc
		inst.Op = OpADD
		inst.Rd, inst.Rn, inst.Rm = rd, rd, rm
	case 0x1:
		inst.Format = FormatDataProc
		inst.Op = OpCMP
		inst.SetFlags = true
		inst.Rn, inst.Rm = rd, rm
	case 0x2:
		inst.Format = FormatDataProc
		inst.Op = OpMOV
		inst.Rd, inst.Rm = rd, rm
	case 0x3:
		inst.Format = FormatBranchExchange
		inst.Rm = rm
		if h&(1<<7) != 0 {
			inst.Op = OpBLX
			inst.Link = true
		} else {
			inst.Op = OpBX
		}
	}
}
