// Package insts provides ARM and Thumb instruction definitions, decoding and
// the reference opcode tables dispatched by the emu core.
package insts

// Op represents a decoded operation.
type Op uint16

// Data-processing opcodes follow the order of the ARM opcode field, so
// OpAND+opcode yields the operation.
const (
	OpUnknown Op = iota
	OpAND
	OpEOR
	OpSUB
	OpRSB
	OpADD
	OpADC
	OpSBC
	OpRSC
	OpTST
	OpTEQ
	OpCMP
	OpCMN
	OpORR
	OpMOV
	OpBIC
	OpMVN
	OpMUL
	OpMLA
	OpB
	OpBL
	OpBX
	OpBLX
	OpLDR
	OpSTR
	OpMRS
	OpMSR
	OpSWI
	OpMCR
	OpMRC
	OpBLPrefix // Thumb BL/BLX first half
	OpBLSuffix // Thumb BL second half
	OpBLXSuffix
)

var opNames = [...]string{
	OpUnknown: "???", OpAND: "and", OpEOR: "eor", OpSUB: "sub", OpRSB: "rsb",
	OpADD: "add", OpADC: "adc", OpSBC: "sbc", OpRSC: "rsc", OpTST: "tst",
	OpTEQ: "teq", OpCMP: "cmp", OpCMN: "cmn", OpORR: "orr", OpMOV: "mov",
	OpBIC: "bic", OpMVN: "mvn", OpMUL: "mul", OpMLA: "mla", OpB: "b",
	OpBL: "bl", OpBX: "bx", OpBLX: "blx", OpLDR: "ldr", OpSTR: "str",
	OpMRS: "mrs", OpMSR: "msr", OpSWI: "swi", OpMCR: "mcr", OpMRC: "mrc",
	OpBLPrefix: "bl.hi", OpBLSuffix: "bl.lo", OpBLXSuffix: "blx.lo",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "???"
}

// compare reports whether o only sets flags.
func (o Op) compare() bool {
	return o >= OpTST && o <= OpCMN
}

// Format represents an instruction encoding class.
type Format uint8

// Instruction formats.
const (
	FormatUnknown        Format = iota
	FormatDataProc              // Data processing, immediate or shifted register
	FormatMultiply              // MUL/MLA
	FormatPSRTransfer           // MRS/MSR
	FormatBranchExchange        // BX/BLX register
	FormatLoadStore             // Single word/byte transfer
	FormatBranch                // B/BL/BLX immediate and Thumb branches
	FormatSWI                   // Software interrupt
	FormatCoprocessor           // MCR/MRC
	FormatLongBranch            // Thumb BL halves
)

// ShiftType represents a barrel shifter operation.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = iota
	ShiftLSR
	ShiftASR
	ShiftROR
)

func (s ShiftType) String() string {
	return [...]string{"lsl", "lsr", "asr", "ror"}[s&3]
}

// Instruction represents a decoded ARM or Thumb instruction.
type Instruction struct {
	Op     Op
	Format Format
	Cond   uint8
	Thumb  bool

	Rd uint8
	Rn uint8
	Rm uint8
	Rs uint8

	// Imm holds the immediate operand, already rotated for ARM
	// data-processing immediates, and the unsigned offset for transfers.
	Imm       uint32
	Immediate bool

	// Rotate is the rotation applied to an ARM immediate; a non-zero value
	// makes the shifter carry out bit 31.
	Rotate uint8

	ShiftType   ShiftType
	ShiftAmount uint8
	ShiftByReg  bool

	SetFlags bool

	// Transfer addressing.
	Pre       bool
	Up        bool
	Byte      bool
	WriteBack bool
	Load      bool

	// Offset is the signed branch displacement in bytes.
	Offset int32
	// Link is set for BL and BLX.
	Link bool

	// PSR transfers.
	SPSR      bool
	FieldMask uint8

	// Coprocessor register transfer.
	CP   uint8
	Opc1 uint8
	CRn  uint8
	CRm  uint8
	Opc2 uint8
}
