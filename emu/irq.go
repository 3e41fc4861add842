// Package emu provides the dual-core ARM execution engine.
package emu

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrReservedInterruptBit is returned when a caller tries to raise an
// interrupt flag outside the valid mask.
var ErrReservedInterruptBit = errors.New("reserved interrupt flag")

// Scheduler is the system-wide scheduler as seen by the cores. The signal is
// fire-and-forget; implementations must not step a core from inside it.
type Scheduler interface {
	NotifyStateChanged()
}

type nopScheduler struct{}

func (nopScheduler) NotifyStateChanged() {}

// DefaultInterruptMask excludes bit 21, which the scheduler generates itself.
const DefaultInterruptMask uint32 = ^uint32(1 << 21)

// InterruptFlags is the pending-interrupt register shared by both cores, the
// peripherals and the scheduler. It is safe for concurrent use.
type InterruptFlags struct {
	pending   [2]atomic.Uint32
	mask      uint32
	scheduler Scheduler
}

// NewInterruptFlags creates the shared flags. Bits outside mask are rejected
// by Raise.
func NewInterruptFlags(mask uint32, scheduler Scheduler) *InterruptFlags {
	if scheduler == nil {
		scheduler = nopScheduler{}
	}
	return &InterruptFlags{mask: mask, scheduler: scheduler}
}

// SetScheduler replaces the scheduler notified on every Raise.
func (f *InterruptFlags) SetScheduler(s Scheduler) {
	if s == nil {
		s = nopScheduler{}
	}
	f.scheduler = s
}

// Mask returns the set of bits Raise accepts.
func (f *InterruptFlags) Mask() uint32 {
	return f.mask
}

// Raise sets flag bits pending for core id and notifies the scheduler. The
// register is left unchanged if any bit lies outside the mask.
func (f *InterruptFlags) Raise(id Identity, flags uint32) error {
	if flags&^f.mask != 0 {
		return fmt.Errorf("%w: %#08x for core %v", ErrReservedInterruptBit, flags&^f.mask, id)
	}
	p := &f.pending[id&1]
	for {
		old := p.Load()
		if p.CompareAndSwap(old, old|flags) {
			break
		}
	}
	f.scheduler.NotifyStateChanged()
	return nil
}

// Acknowledge clears flag bits for core id.
func (f *InterruptFlags) Acknowledge(id Identity, flags uint32) {
	p := &f.pending[id&1]
	for {
		old := p.Load()
		if p.CompareAndSwap(old, old&^flags) {
			return
		}
	}
}

// Pending returns the pending bits for core id.
func (f *InterruptFlags) Pending(id Identity) uint32 {
	return f.pending[id&1].Load()
}

// Reset clears both cores' pending bits.
func (f *InterruptFlags) Reset() {
	f.pending[0].Store(0)
	f.pending[1].Store(0)
}
