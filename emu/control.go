// Package emu provides the dual-core ARM execution engine.
package emu

// Register numbers understood by the control interface beyond R0-R14.
const (
	ControlRegPC     = 15 // fetched instruction address; writes redirect the next fetch
	ControlRegStatus = 16 // full CPSR value
)

// ControlRegisterNames names the register numbers of the control interface.
var ControlRegisterNames = [...]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc", "cpsr",
}

// PostExecFunc observes each committed instruction. addr is the address of
// the instruction that just executed.
type PostExecFunc func(addr uint32, thumb bool)

// ControlInterface lets external tooling observe and drive a core without
// knowing its internals.
type ControlInterface interface {
	Stall()
	Unstall()

	// ReadRegister returns R0-R14 for 0-14, the fetched instruction address
	// for 15 and the CPSR for 16. Other numbers return zero.
	ReadRegister(n uint32) uint32

	// WriteRegister is the mirror of ReadRegister. Out of range numbers are
	// ignored.
	WriteRegister(n uint32, value uint32)

	InstallPostExec(fn PostExecFunc)
	RemovePostExec()
}

// defaultControl is the built-in control interface bound to its core.
type defaultControl struct {
	core *Core
}

func (d *defaultControl) Stall() {
	c := d.core
	if !c.stalled {
		c.logger.V(1).Info("stall", "core", c.id)
	}
	c.stalled = true
}

func (d *defaultControl) Unstall() {
	c := d.core
	if c.stalled {
		c.logger.V(1).Info("unstall", "core", c.id)
	}
	c.stalled = false
}

func (d *defaultControl) ReadRegister(n uint32) uint32 {
	c := d.core
	switch {
	case n <= RegLR:
		return c.regs.R[n]
	case n == ControlRegPC:
		return c.instructAddr
	case n == ControlRegStatus:
		return uint32(c.regs.CPSR)
	}
	return 0
}

func (d *defaultControl) WriteRegister(n uint32, value uint32) {
	c := d.core
	switch {
	case n <= RegLR:
		c.regs.R[n] = value
	case n == ControlRegPC:
		c.nextInstruction = value
	case n == ControlRegStatus:
		if err := c.SetStatus(Status(value)); err != nil {
			c.logger.Error(err, "write register rejected", "core", c.id, "register", n, "value", value)
		}
	}
}

func (d *defaultControl) InstallPostExec(fn PostExecFunc) {
	d.core.postExec = fn
}

func (d *defaultControl) RemovePostExec() {
	d.core.postExec = nil
}

// Control returns the control interface bound to the core.
func (c *Core) Control() ControlInterface {
	return c.ctrl
}

// SetControlInterface replaces the control interface. A nil value restores
// the built-in implementation.
func (c *Core) SetControlInterface(ci ControlInterface) {
	if ci == nil {
		ci = &defaultControl{core: c}
	}
	c.ctrl = ci
}

// Stalled reports whether execution of the core is suspended.
func (c *Core) Stalled() bool {
	return c.stalled
}
