package session

import (
	"fmt"

	"github.com/sarchlab/dualarm/emu"
)

// deliverInterrupts enters IRQ on every core with pending bits whose I flag
// is clear or whose wait state overrides it.
func (s *Session) deliverInterrupts() {
	waiting := s.cores[emu.CoreA].WaitingForInterrupt() || s.cores[emu.CoreB].WaitingForInterrupt()
	if !s.changed.Swap(false) && !waiting {
		return
	}

	for _, c := range s.cores {
		if c.Halted() || s.flags.Pending(c.ID()) == 0 {
			continue
		}
		if c.Regs().CPSR.IRQDisabled() && !c.InterruptOverride() {
			continue
		}
		c.RaiseIRQ()
	}
}

// runnable reports whether core c can execute an instruction now.
func runnable(c *emu.Core) bool {
	return !c.Halted() && !c.Stalled() && !c.WaitingForInterrupt()
}

// pick selects the runnable core that is furthest behind on the timeline.
// Ties go to core A.
func (s *Session) pick() (*emu.Core, bool) {
	var next *emu.Core
	for _, c := range s.cores {
		if !runnable(c) {
			continue
		}
		if next == nil || s.clocks[c.ID()] < s.clocks[next.ID()] {
			next = c
		}
	}
	return next, next != nil
}

func (s *Session) stopped() error {
	for _, c := range s.cores {
		if c.Halted() {
			return fmt.Errorf("%w: core %s: %s", ErrStopped, c.ID(), c.HaltReason())
		}
	}
	return nil
}

// Step executes one instruction on the core that is behind and returns the
// core and the cycles it took. Stalled and waiting cores idle along the
// timeline.
func (s *Session) Step() (emu.Identity, uint32, error) {
	if err := s.stopped(); err != nil {
		return 0, 0, err
	}

	s.deliverInterrupts()

	c, ok := s.pick()
	if !ok {
		return 0, 0, fmt.Errorf("%w: no core can make progress", ErrStopped)
	}
	id := c.ID()

	if s.clocks[id] > s.now {
		s.now = s.clocks[id]
	}

	cycles := c.Step()
	charged := uint64(cycles)
	if charged == 0 {
		charged = 1
	}
	s.clocks[id] += charged * s.scale[id]
	s.steps++

	// Idle cores keep up with the timeline instead of catching up later.
	other := id.Other()
	if !runnable(s.cores[other]) && s.clocks[other] < s.now {
		s.clocks[other] = s.now
	}

	for _, fn := range s.listeners {
		fn(id, cycles)
	}

	if err := s.stopped(); err != nil {
		s.logger.Info("stopped", "error", err.Error(), "now", s.now)
		return id, cycles, err
	}
	return id, cycles, nil
}

// Run steps the cores until the timeline has advanced by cycles core A
// cycles or emulation stops.
func (s *Session) Run(cycles uint64) error {
	target := s.now + cycles
	for s.now < target {
		if _, _, err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunSteps executes n instructions across both cores.
func (s *Session) RunSteps(n uint64) error {
	for i := uint64(0); i < n; i++ {
		if _, _, err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}
