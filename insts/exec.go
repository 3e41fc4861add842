package insts

import (
	"github.com/sarchlab/dualarm/emu"
)

// Costs holds the execute cost of each instruction class in cycles.
type Costs struct {
	ALU      uint32
	PCWrite  uint32 // added when an instruction writes R15
	Branch   uint32
	Load     uint32
	Store    uint32
	Multiply uint32
	SWI      uint32
}

// DefaultCosts returns the reference execute costs.
func DefaultCosts() Costs {
	return Costs{
		ALU:      1,
		PCWrite:  2,
		Branch:   3,
		Load:     3,
		Store:    2,
		Multiply: 2,
		SWI:      3,
	}
}

// Executor performs decoded instructions on a core.
type Executor struct {
	costs Costs
}

// NewExecutor creates an executor charging costs.
func NewExecutor(costs Costs) *Executor {
	return &Executor{costs: costs}
}

// coprocessor 15 identification and control register bits.
const (
	cp15MainID      = 0x41059461
	cp15HighVectors = 1 << 13
)

// Execute performs inst on c and returns its execute cost. Instructions the
// reference set does not implement trap as undefined.
func (x *Executor) Execute(c *emu.Core, inst *Instruction) uint32 {
	switch inst.Format {
	case FormatDataProc:
		return x.executeDataProc(c, inst)
	case FormatMultiply:
		return x.executeMultiply(c, inst)
	case FormatPSRTransfer:
		if inst.Op == OpUnknown {
			break
		}
		return x.executePSRTransfer(c, inst)
	case FormatBranchExchange:
		return x.executeBranchExchange(c, inst)
	case FormatLoadStore:
		return x.executeLoadStore(c, inst)
	case FormatBranch:
		return x.executeBranch(c, inst)
	case FormatLongBranch:
		return x.executeLongBranch(c, inst)
	case FormatSWI:
		if err := c.Raise(emu.ExceptionSWI); err != nil {
			return c.TrapUndefined()
		}
		return x.costs.SWI
	case FormatCoprocessor:
		return x.executeCoprocessor(c, inst)
	}
	return c.TrapUndefined()
}

func (x *Executor) executeDataProc(c *emu.Core, inst *Instruction) uint32 {
	r := c.Regs()
	carry := r.CPSR.C()

	// With a register-specified shift the PC reads one instruction further
	// ahead.
	readReg := func(n uint8) uint32 {
		v := r.R[n]
		if n == emu.RegPC && inst.ShiftByReg && !inst.Thumb {
			v += 4
		}
		return v
	}

	var op2 uint32
	shiftCarry := carry
	switch {
	case inst.Immediate:
		op2 = inst.Imm
		if inst.Rotate != 0 {
			shiftCarry = op2&0x80000000 != 0
		}
	case inst.ShiftByReg:
		op2, shiftCarry = shiftByRegister(readReg(inst.Rm), inst.ShiftType, r.R[inst.Rs], carry)
	default:
		op2, shiftCarry = shift(readReg(inst.Rm), inst.ShiftType, inst.ShiftAmount, carry)
	}
	op1 := readReg(inst.Rn)

	var result uint32
	c2, v2 := carry, r.CPSR.V()
	logical := false

	switch inst.Op {
	case OpAND, OpTST:
		result, logical = op1&op2, true
	case OpEOR, OpTEQ:
		result, logical = op1^op2, true
	case OpORR:
		result, logical = op1|op2, true
	case OpMOV:
		result, logical = op2, true
	case OpBIC:
		result, logical = op1&^op2, true
	case OpMVN:
		result, logical = ^op2, true
	case OpSUB, OpCMP:
		result, c2, v2 = addWithCarry(op1, ^op2, true)
	case OpRSB:
		result, c2, v2 = addWithCarry(op2, ^op1, true)
	case OpADD, OpCMN:
		result, c2, v2 = addWithCarry(op1, op2, false)
	case OpADC:
		result, c2, v2 = addWithCarry(op1, op2, carry)
	case OpSBC:
		result, c2, v2 = addWithCarry(op1, ^op2, carry)
	case OpRSC:
		result, c2, v2 = addWithCarry(op2, ^op1, carry)
	default:
		return c.TrapUndefined()
	}
	if logical {
		c2 = shiftCarry
	}

	cycles := x.costs.ALU
	if inst.ShiftByReg {
		cycles++
	}

	if inst.Op.compare() {
		r.CPSR.SetFlags(result&0x80000000 != 0, result == 0, c2, v2)
		return cycles
	}

	if inst.Rd == emu.RegPC {
		if inst.SetFlags && !inst.Thumb {
			if err := c.ReturnFromException(); err != nil {
				return c.TrapUndefined()
			}
		}
		c.Branch(result)
		return cycles + x.costs.PCWrite
	}

	r.R[inst.Rd] = result
	if inst.SetFlags {
		r.CPSR.SetFlags(result&0x80000000 != 0, result == 0, c2, v2)
	}
	return cycles
}

func (x *Executor) executeMultiply(c *emu.Core, inst *Instruction) uint32 {
	r := c.Regs()
	result := r.R[inst.Rm] * r.R[inst.Rs]
	cycles := x.costs.Multiply
	if inst.Op == OpMLA {
		result += r.R[inst.Rn]
		cycles++
	}
	r.R[inst.Rd] = result
	if inst.SetFlags {
		r.CPSR.Set(emu.StatusN, result&0x80000000 != 0)
		r.CPSR.Set(emu.StatusZ, result == 0)
	}
	return cycles
}

func (x *Executor) executePSRTransfer(c *emu.Core, inst *Instruction) uint32 {
	r := c.Regs()
	privileged := r.Mode() != emu.ModeUSR

	if inst.Op == OpMRS {
		if inst.SPSR {
			r.R[inst.Rd] = uint32(r.SPSR)
		} else {
			r.R[inst.Rd] = uint32(r.CPSR)
		}
		return x.costs.ALU
	}

	value := inst.Imm
	if !inst.Immediate {
		value = r.R[inst.Rm]
	}

	var mask uint32
	for i := 0; i < 4; i++ {
		if inst.FieldMask&(1<<i) != 0 {
			mask |= 0xFF << (8 * i)
		}
	}
	if !privileged {
		mask &= 0xFF000000
	}

	if inst.SPSR {
		if r.Mode().Privileged() {
			r.SPSR = emu.Status(uint32(r.SPSR)&^mask | value&mask)
		}
		return x.costs.ALU
	}

	// MSR never changes the instruction set.
	mask &^= emu.StatusT
	next := emu.Status(uint32(r.CPSR)&^mask | value&mask)
	if err := c.SetStatus(next); err != nil {
		return c.TrapUndefined()
	}
	return x.costs.ALU
}

func (x *Executor) executeBranchExchange(c *emu.Core, inst *Instruction) uint32 {
	if inst.Op == OpUnknown || (inst.Op == OpBLX && !c.ARMv5()) {
		return c.TrapUndefined()
	}
	r := c.Regs()
	target := r.R[inst.Rm]
	if inst.Link {
		r.R[emu.RegLR] = linkAddress(c)
	}
	c.BranchExchange(target)
	return x.costs.Branch
}

// linkAddress is the return address of the executing instruction, with
// bit 0 set in Thumb state.
func linkAddress(c *emu.Core) uint32 {
	if c.Regs().CPSR.Thumb() {
		return c.InstructionAddress() + 2 | 1
	}
	return c.InstructionAddress() + 4
}

func (x *Executor) executeLoadStore(c *emu.Core, inst *Instruction) uint32 {
	r := c.Regs()
	mem := c.Memory()

	base := r.R[inst.Rn]
	if inst.Rn == emu.RegPC {
		base &^= 3
	}

	offset := inst.Imm
	if !inst.Immediate {
		offset, _ = shift(r.R[inst.Rm], inst.ShiftType, inst.ShiftAmount, r.CPSR.C())
	}

	target := base + offset
	if !inst.Up {
		target = base - offset
	}
	addr := base
	if inst.Pre {
		addr = target
	}

	if !inst.Load {
		value := r.R[inst.Rd]
		if inst.Rd == emu.RegPC {
			value += 4
		}
		if inst.Byte {
			mem.Write8(addr, uint8(value))
		} else {
			mem.Write32(addr&^3, value)
		}
		if inst.WriteBack {
			r.R[inst.Rn] = target
		}
		return x.costs.Store
	}

	var value uint32
	if inst.Byte {
		value = uint32(mem.Read8(addr))
	} else {
		value = rotateRight(mem.Read32(addr&^3), uint(addr&3)*8)
	}
	if inst.WriteBack && inst.Rn != emu.RegPC {
		r.R[inst.Rn] = target
	}

	if inst.Rd == emu.RegPC {
		if c.ARMv5() {
			c.BranchExchange(value)
		} else {
			c.Branch(value &^ 3)
		}
		return x.costs.Load + x.costs.PCWrite
	}
	r.R[inst.Rd] = value
	return x.costs.Load
}

func (x *Executor) executeBranch(c *emu.Core, inst *Instruction) uint32 {
	r := c.Regs()

	if inst.Thumb && inst.Cond != 0xE && !emu.CheckCondition(emu.Cond(inst.Cond), r.CPSR) {
		return x.costs.ALU
	}

	target := uint32(int32(r.R[emu.RegPC]) + inst.Offset)

	switch inst.Op {
	case OpBL:
		r.R[emu.RegLR] = linkAddress(c)
	case OpBLX:
		if !c.ARMv5() {
			return c.TrapUndefined()
		}
		r.R[emu.RegLR] = linkAddress(c)
		c.BranchExchange(target | 1)
		return x.costs.Branch
	}

	c.Branch(target)
	return x.costs.Branch
}

func (x *Executor) executeLongBranch(c *emu.Core, inst *Instruction) uint32 {
	r := c.Regs()

	switch inst.Op {
	case OpBLPrefix:
		r.R[emu.RegLR] = uint32(int32(r.R[emu.RegPC]) + inst.Offset)
		return x.costs.ALU
	case OpBLSuffix:
		target := r.R[emu.RegLR] + uint32(inst.Offset)
		r.R[emu.RegLR] = linkAddress(c)
		c.Branch(target)
		return x.costs.Branch
	case OpBLXSuffix:
		if !c.ARMv5() {
			return c.TrapUndefined()
		}
		target := (r.R[emu.RegLR] + uint32(inst.Offset)) &^ 3
		r.R[emu.RegLR] = linkAddress(c)
		c.BranchExchange(target)
		return x.costs.Branch
	}
	return c.TrapUndefined()
}

// executeCoprocessor implements the CP15 registers the core depends on:
// the main ID, the high-vectors bit of the control register and the
// wait-for-interrupt operation.
func (x *Executor) executeCoprocessor(c *emu.Core, inst *Instruction) uint32 {
	if inst.Op == OpUnknown || !c.ARMv5() {
		return c.TrapUndefined()
	}
	r := c.Regs()

	if inst.Op == OpMRC {
		var v uint32
		switch inst.CRn {
		case 0:
			v = cp15MainID
		case 1:
			if c.VectorBase() != 0 {
				v |= cp15HighVectors
			}
		}
		if inst.Rd != emu.RegPC {
			r.R[inst.Rd] = v
		}
		return x.costs.ALU
	}

	value := r.R[inst.Rd]
	switch {
	case inst.CRn == 1 && inst.CRm == 0 && inst.Opc2 == 0:
		if value&cp15HighVectors != 0 {
			c.SetVectorBase(0xFFFF0000)
		} else {
			c.SetVectorBase(0)
		}
	case inst.CRn == 7 && inst.CRm == 0 && inst.Opc2 == 4:
		return c.WaitForInterrupt()
	}
	return x.costs.ALU
}
