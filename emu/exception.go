// Package emu provides the dual-core ARM execution engine.
package emu

import (
	"errors"
	"fmt"
)

// Exception identifies an exception by its offset in the vector table.
type Exception uint32

// Exception vector offsets.
const (
	ExceptionReset         Exception = 0x00
	ExceptionUndefined     Exception = 0x04
	ExceptionSWI           Exception = 0x08
	ExceptionPrefetchAbort Exception = 0x0C
	ExceptionDataAbort     Exception = 0x10
	ExceptionReserved      Exception = 0x14
	ExceptionIRQ           Exception = 0x18
	ExceptionFIQ           Exception = 0x1C
)

var (
	// ErrInvalidException is returned for a kind that is not a vector offset.
	ErrInvalidException = errors.New("invalid exception")

	// ErrReservedException is returned when the reserved vector is raised.
	// The machine is halted.
	ErrReservedException = errors.New("reserved exception")
)

// undefinedCycles is charged for an instruction that traps as undefined.
const undefinedCycles = 4

func (e Exception) String() string {
	switch e {
	case ExceptionReset:
		return "reset"
	case ExceptionUndefined:
		return "undefined"
	case ExceptionSWI:
		return "swi"
	case ExceptionPrefetchAbort:
		return "prefetch-abort"
	case ExceptionDataAbort:
		return "data-abort"
	case ExceptionReserved:
		return "reserved"
	case ExceptionIRQ:
		return "irq"
	case ExceptionFIQ:
		return "fiq"
	}
	return fmt.Sprintf("exception(%#x)", uint32(e))
}

// Mode returns the mode entered for e.
func (e Exception) Mode() (Mode, bool) {
	switch e {
	case ExceptionReset, ExceptionSWI:
		return ModeSVC, true
	case ExceptionUndefined:
		return ModeUND, true
	case ExceptionPrefetchAbort, ExceptionDataAbort:
		return ModeABT, true
	case ExceptionIRQ:
		return ModeIRQ, true
	case ExceptionFIQ:
		return ModeFIQ, true
	}
	return 0, false
}

// Raise enters the exception e. The link register receives the pending
// next-instruction address and the PC the vector. The pipeline is not
// refilled: the following Step fetches from the vector through its own
// prefetch, so it first completes the instruction already fetched.
func (c *Core) Raise(e Exception) error {
	if e == ExceptionReserved {
		c.Halt(ErrReservedException.Error())
		return ErrReservedException
	}
	mode, ok := e.Mode()
	if !ok {
		err := fmt.Errorf("%w: %#x", ErrInvalidException, uint32(e))
		c.logger.Error(err, "raise", "core", c.id)
		return err
	}

	saved := c.regs.CPSR
	if _, err := c.SwitchMode(mode); err != nil {
		return err
	}
	c.regs.R[RegLR] = c.nextInstruction
	c.regs.SPSR = saved
	c.regs.CPSR.Set(StatusT, false)
	c.regs.CPSR.Set(StatusI, true)
	c.changeStatus()

	c.regs.R[RegPC] = c.vectorBase + uint32(e)
	c.nextInstruction = c.regs.R[RegPC]

	c.stats.Exceptions++
	c.logger.V(2).Info("exception", "core", c.id, "kind", e, "lr", c.regs.R[RegLR])
	return nil
}

// RaiseIRQ enters the IRQ exception, leaves any wait-for-interrupt state and
// prefetches the first vector instruction so that the next Step executes it.
// It returns false if the core is halted.
func (c *Core) RaiseIRQ() bool {
	if c.halted {
		return false
	}

	saved := c.regs.CPSR
	if _, err := c.SwitchMode(ModeIRQ); err != nil {
		return false
	}
	c.regs.R[RegLR] = c.instructAddr + 4
	c.regs.SPSR = saved
	c.regs.CPSR.Set(StatusT, false)
	c.regs.CPSR.Set(StatusI, true)
	c.nextInstruction = c.vectorBase + uint32(ExceptionIRQ)
	c.waitIRQ = false
	c.haltIEAndIF = false

	c.prefetch()

	c.stats.IRQs++
	c.logger.V(2).Info("irq", "core", c.id, "lr", c.regs.R[RegLR])
	return true
}

// ReturnFromException restores the CPSR from the active mode's saved status,
// switching banks back to the interrupted mode.
func (c *Core) ReturnFromException() error {
	if !c.regs.Mode().Privileged() {
		return fmt.Errorf("%w: no saved status in %v", ErrInvalidMode, c.regs.Mode())
	}
	return c.SetStatus(c.regs.SPSR)
}

// TrapUndefined resolves an undefined instruction according to the core's
// undefined route and returns the cycles charged for it.
func (c *Core) TrapUndefined() uint32 {
	c.logger.V(1).Info("undefined instruction", "core", c.id,
		"instruction", c.instruction, "pc", c.instructAddr)

	target := c.core(c.cfg.UndefinedTarget)

	var redirect bool
	switch c.cfg.UndefinedRoute {
	case RouteRedirect:
		redirect = true
	case RouteVectorSelect:
		redirect = (c.vectorBase != 0) != (c.id == c.cfg.UndefinedTarget)
	}

	if redirect {
		_ = target.Raise(ExceptionUndefined)
		return undefinedCycles
	}

	c.Halt(fmt.Sprintf("undefined instruction %#08x at %#08x", c.instruction, c.instructAddr))
	return undefinedCycles
}

// WaitForInterrupt halts the core until the next interrupt entry.
func (c *Core) WaitForInterrupt() uint32 {
	c.waitIRQ = true
	c.haltIEAndIF = true
	return 1
}

// WaitingForInterrupt reports whether the core is halted waiting for an
// interrupt.
func (c *Core) WaitingForInterrupt() bool {
	return c.waitIRQ
}

// InterruptOverride reports whether pending interrupts wake the core
// regardless of its I flag.
func (c *Core) InterruptOverride() bool {
	return c.haltIEAndIF
}

// IntrWaitState returns the secondary wait state. It belongs to external
// interrupt-wait emulation; the core only clears it on Reset.
func (c *Core) IntrWaitState() uint32 {
	return c.intrWaitState
}

// SetIntrWaitState sets the secondary wait state.
func (c *Core) SetIntrWaitState(v uint32) {
	c.intrWaitState = v
}

// Halt stops the machine. It is a deliberate stop: the core keeps its state
// and Step returns zero until the next Reset.
func (c *Core) Halt(reason string) {
	if c.halted {
		return
	}
	c.halted = true
	c.haltReason = reason
	c.logger.Info("halt", "core", c.id, "reason", reason)
	c.scheduler.NotifyStateChanged()
}

// Halted reports whether the core has stopped.
func (c *Core) Halted() bool {
	return c.halted
}

// HaltReason describes why the core stopped.
func (c *Core) HaltReason() string {
	return c.haltReason
}
