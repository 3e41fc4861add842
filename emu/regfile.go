// Package emu provides the dual-core ARM execution engine.
package emu

import (
	"errors"
	"fmt"
)

// Register roles.
const (
	RegSP = 13
	RegLR = 14
	RegPC = 15
)

// ErrInvalidMode is returned when a mode switch targets an unknown mode.
var ErrInvalidMode = errors.New("invalid processor mode")

// Bank holds the banked R13/R14 pair and saved status of a privileged mode.
type Bank struct {
	SP   uint32
	LR   uint32
	SPSR Status
}

// FIQBank holds the fast-interrupt window R8..R14 and its saved status.
type FIQBank struct {
	R    [7]uint32
	SPSR Status
}

// RegFile represents the ARM register file with its mode-banked shadows.
//
// R holds the live registers of the active mode. R[15] is refreshed by every
// prefetch to the fetched address plus the pipeline lookahead.
type RegFile struct {
	// R holds R0-R15 as seen by the active mode.
	R [16]uint32

	// CPSR is the current program status.
	CPSR Status

	// SPSR is the live saved status of the active privileged mode. It is
	// meaningless in user and system mode.
	SPSR Status

	// User and system mode R13/R14. The SPSR field is unused.
	USR Bank
	SVC Bank
	ABT Bank
	UND Bank
	IRQ Bank
	FIQ FIQBank
}

// Reset clears every register and bank and enters system mode.
func (r *RegFile) Reset() {
	*r = RegFile{}
	r.CPSR = Status(ModeSYS)
	r.SPSR = Status(ModeSYS)
}

// Mode returns the active processor mode.
func (r *RegFile) Mode() Mode {
	return r.CPSR.Mode()
}

func (r *RegFile) bank(m Mode) *Bank {
	switch m {
	case ModeUSR, ModeSYS:
		return &r.USR
	case ModeSVC:
		return &r.SVC
	case ModeABT:
		return &r.ABT
	case ModeUND:
		return &r.UND
	case ModeIRQ:
		return &r.IRQ
	}
	return nil
}

// swapFIQ exchanges R8-R12 with the fast-interrupt window in place.
func (r *RegFile) swapFIQ() {
	for i := 0; i < 5; i++ {
		r.R[8+i], r.FIQ.R[i] = r.FIQ.R[i], r.R[8+i]
	}
}

// SwitchMode saves the live banked registers of the active mode, loads those
// of target and installs target in the CPSR mode field. It returns the
// previous mode. An invalid target leaves the register file untouched.
func (r *RegFile) SwitchMode(target Mode) (Mode, error) {
	if !target.Valid() {
		return r.Mode(), fmt.Errorf("%w: %#02x", ErrInvalidMode, uint8(target))
	}

	old := r.Mode()
	switch old {
	case ModeFIQ:
		r.swapFIQ()
		r.FIQ.R[5] = r.R[RegSP]
		r.FIQ.R[6] = r.R[RegLR]
		r.FIQ.SPSR = r.SPSR
	default:
		if b := r.bank(old); b != nil {
			b.SP = r.R[RegSP]
			b.LR = r.R[RegLR]
			if old.Privileged() {
				b.SPSR = r.SPSR
			}
		}
	}

	switch target {
	case ModeFIQ:
		r.swapFIQ()
		r.R[RegSP] = r.FIQ.R[5]
		r.R[RegLR] = r.FIQ.R[6]
		r.SPSR = r.FIQ.SPSR
	default:
		b := r.bank(target)
		r.R[RegSP] = b.SP
		r.R[RegLR] = b.LR
		if target.Privileged() {
			r.SPSR = b.SPSR
		}
	}

	r.CPSR.setMode(target)
	return old, nil
}

// Banked returns the value of register n as it would be seen from mode m,
// without switching. Registers outside R8-R14 are shared and read live.
// Numbers outside 0-15 read as zero.
func (r *RegFile) Banked(m Mode, n int) uint32 {
	if n < 0 || n > RegPC {
		return 0
	}
	cur := r.Mode()
	if n < 8 || n > RegLR || sameBank(cur, m) {
		return r.R[n]
	}
	if m == ModeFIQ {
		return r.FIQ.R[n-8]
	}
	if n < RegSP {
		// m uses the shared R8-R12, which are swapped out while in FIQ.
		if cur == ModeFIQ {
			return r.FIQ.R[n-8]
		}
		return r.R[n]
	}
	if b := r.bank(m); b != nil {
		if n == RegSP {
			return b.SP
		}
		return b.LR
	}
	return 0
}

func sameBank(a, b Mode) bool {
	if a == b {
		return true
	}
	usr := func(m Mode) bool { return m == ModeUSR || m == ModeSYS }
	return usr(a) && usr(b)
}
