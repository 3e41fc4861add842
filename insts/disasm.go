package insts

import (
	"fmt"
	"strings"
)

var condSuffix = [16]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "", "nv",
}

// Disassemble renders inst in a compact assembler syntax. addr is the
// address the instruction was fetched from and resolves branch targets.
func Disassemble(inst *Instruction, addr uint32) string {
	if inst.Op == OpUnknown {
		return "undefined"
	}

	var b strings.Builder
	b.WriteString(inst.Op.String())
	if !(inst.Cond == 0xF && inst.Op == OpBLX) {
		b.WriteString(condSuffix[inst.Cond&0xF])
	}
	if inst.SetFlags && !inst.Op.compare() {
		b.WriteString("s")
	}
	if inst.Format == FormatLoadStore && inst.Byte {
		b.WriteString("b")
	}

	switch inst.Format {
	case FormatDataProc:
		b.WriteString(" " + dataProcOperands(inst))
	case FormatMultiply:
		fmt.Fprintf(&b, " r%d, r%d, r%d", inst.Rd, inst.Rm, inst.Rs)
		if inst.Op == OpMLA {
			fmt.Fprintf(&b, ", r%d", inst.Rn)
		}
	case FormatPSRTransfer:
		psr := "cpsr"
		if inst.SPSR {
			psr = "spsr"
		}
		if inst.Op == OpMRS {
			fmt.Fprintf(&b, " r%d, %s", inst.Rd, psr)
		} else if inst.Immediate {
			fmt.Fprintf(&b, " %s_%x, #%#x", psr, inst.FieldMask, inst.Imm)
		} else {
			fmt.Fprintf(&b, " %s_%x, r%d", psr, inst.FieldMask, inst.Rm)
		}
	case FormatBranchExchange:
		fmt.Fprintf(&b, " r%d", inst.Rm)
	case FormatLoadStore:
		b.WriteString(" " + transferOperands(inst))
	case FormatBranch:
		fmt.Fprintf(&b, " 0x%08x", branchTarget(inst, addr))
	case FormatLongBranch:
		fmt.Fprintf(&b, " #%d", inst.Offset)
	case FormatSWI:
		fmt.Fprintf(&b, " %#x", inst.Imm)
	case FormatCoprocessor:
		fmt.Fprintf(&b, " p%d, %d, r%d, c%d, c%d, %d",
			inst.CP, inst.Opc1, inst.Rd, inst.CRn, inst.CRm, inst.Opc2)
	}

	return b.String()
}

func branchTarget(inst *Instruction, addr uint32) uint32 {
	lookahead := uint32(8)
	if inst.Thumb {
		lookahead = 4
	}
	return uint32(int32(addr+lookahead) + inst.Offset)
}

func operand2(inst *Instruction) string {
	switch {
	case inst.Immediate:
		return fmt.Sprintf("#%#x", inst.Imm)
	case inst.ShiftByReg:
		return fmt.Sprintf("r%d, %s r%d", inst.Rm, inst.ShiftType, inst.Rs)
	case inst.ShiftAmount == 0 && inst.ShiftType == ShiftLSL:
		return fmt.Sprintf("r%d", inst.Rm)
	}
	return fmt.Sprintf("r%d, %s #%d", inst.Rm, inst.ShiftType, inst.ShiftAmount)
}

func dataProcOperands(inst *Instruction) string {
	switch {
	case inst.Op.compare():
		return fmt.Sprintf("r%d, %s", inst.Rn, operand2(inst))
	case inst.Op == OpMOV || inst.Op == OpMVN:
		return fmt.Sprintf("r%d, %s", inst.Rd, operand2(inst))
	}
	return fmt.Sprintf("r%d, r%d, %s", inst.Rd, inst.Rn, operand2(inst))
}

func transferOperands(inst *Instruction) string {
	sign := ""
	if !inst.Up {
		sign = "-"
	}

	var offset string
	if inst.Immediate {
		offset = fmt.Sprintf("#%s%#x", sign, inst.Imm)
	} else {
		offset = sign + operand2(&Instruction{
			Rm: inst.Rm, ShiftType: inst.ShiftType, ShiftAmount: inst.ShiftAmount,
		})
	}

	if !inst.Pre {
		return fmt.Sprintf("r%d, [r%d], %s", inst.Rd, inst.Rn, offset)
	}
	wb := ""
	if inst.WriteBack {
		wb = "!"
	}
	return fmt.Sprintf("r%d, [r%d, %s]%s", inst.Rd, inst.Rn, offset, wb)
}
