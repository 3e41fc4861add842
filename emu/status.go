// Package emu provides the dual-core ARM execution engine.
package emu

import (
	"fmt"
	"strings"
)

// Mode is the 5-bit processor mode field of a program status register.
type Mode uint8

// Processor modes.
const (
	ModeUSR Mode = 0x10 // User
	ModeFIQ Mode = 0x11 // Fast interrupt
	ModeIRQ Mode = 0x12 // Interrupt
	ModeSVC Mode = 0x13 // Supervisor
	ModeABT Mode = 0x17 // Abort
	ModeUND Mode = 0x1B // Undefined instruction
	ModeSYS Mode = 0x1F // System (shares the user bank)
)

// Valid reports whether m is one of the seven architected modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeUSR, ModeFIQ, ModeIRQ, ModeSVC, ModeABT, ModeUND, ModeSYS:
		return true
	}
	return false
}

// Privileged reports whether m has its own saved status register.
func (m Mode) Privileged() bool {
	switch m {
	case ModeFIQ, ModeIRQ, ModeSVC, ModeABT, ModeUND:
		return true
	}
	return false
}

func (m Mode) String() string {
	switch m {
	case ModeUSR:
		return "usr"
	case ModeFIQ:
		return "fiq"
	case ModeIRQ:
		return "irq"
	case ModeSVC:
		return "svc"
	case ModeABT:
		return "abt"
	case ModeUND:
		return "und"
	case ModeSYS:
		return "sys"
	}
	return fmt.Sprintf("mode(%#02x)", uint8(m))
}

// Status bit positions.
const (
	StatusN uint32 = 1 << 31 // Negative
	StatusZ uint32 = 1 << 30 // Zero
	StatusC uint32 = 1 << 29 // Carry
	StatusV uint32 = 1 << 28 // Overflow
	StatusQ uint32 = 1 << 27 // Sticky saturation (ARMv5)
	StatusI uint32 = 1 << 7  // IRQ disable
	StatusF uint32 = 1 << 6  // FIQ disable
	StatusT uint32 = 1 << 5  // Thumb (compact encoding)

	statusModeMask uint32 = 0x1F
)

// Status is a program status register value (CPSR or SPSR).
//
// The core only interprets the mode, T and I fields. The arithmetic flags
// are owned by the opcode handlers.
type Status uint32

// Mode returns the mode field.
func (s Status) Mode() Mode {
	return Mode(uint32(s) & statusModeMask)
}

func (s *Status) setMode(m Mode) {
	*s = Status(uint32(*s)&^statusModeMask | uint32(m)&statusModeMask)
}

// Thumb reports whether the compact 16-bit encoding is active.
func (s Status) Thumb() bool { return uint32(s)&StatusT != 0 }

// IRQDisabled reports whether the I bit is set.
func (s Status) IRQDisabled() bool { return uint32(s)&StatusI != 0 }

// FIQDisabled reports whether the F bit is set.
func (s Status) FIQDisabled() bool { return uint32(s)&StatusF != 0 }

// N returns the negative flag.
func (s Status) N() bool { return uint32(s)&StatusN != 0 }

// Z returns the zero flag.
func (s Status) Z() bool { return uint32(s)&StatusZ != 0 }

// C returns the carry flag.
func (s Status) C() bool { return uint32(s)&StatusC != 0 }

// V returns the overflow flag.
func (s Status) V() bool { return uint32(s)&StatusV != 0 }

// Set sets or clears the given status bits.
func (s *Status) Set(bits uint32, on bool) {
	if on {
		*s |= Status(bits)
	} else {
		*s &^= Status(bits)
	}
}

// SetFlags replaces N, Z, C and V.
func (s *Status) SetFlags(n, z, c, v bool) {
	s.Set(StatusN, n)
	s.Set(StatusZ, z)
	s.Set(StatusC, c)
	s.Set(StatusV, v)
}

// flags returns NZCV packed into the low nibble.
func (s Status) flags() uint32 {
	return uint32(s) >> 28
}

func (s Status) String() string {
	b := strings.Builder{}
	for _, f := range []struct {
		bit uint32
		on  byte
	}{{StatusN, 'N'}, {StatusZ, 'Z'}, {StatusC, 'C'}, {StatusV, 'V'}, {StatusQ, 'Q'}, {StatusI, 'I'}, {StatusF, 'F'}, {StatusT, 'T'}} {
		if uint32(s)&f.bit != 0 {
			b.WriteByte(f.on)
		} else {
			b.WriteByte(f.on + ('a' - 'A'))
		}
	}
	b.WriteByte(' ')
	b.WriteString(s.Mode().String())
	return b.String()
}
