// Package session owns the two cores of the complex and drives them: it
// interleaves their steps on a shared timeline, delivers interrupts and
// detects when emulation stops.
package session

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/sarchlab/dualarm/config"
	"github.com/sarchlab/dualarm/emu"
	"github.com/sarchlab/dualarm/insts"
	"github.com/sarchlab/dualarm/mem"
	"github.com/sarchlab/dualarm/timing/latency"
)

// ErrStopped is returned when a core halts or neither core can make
// progress.
var ErrStopped = errors.New("emulation stopped")

// Session is an emulator session owning exactly two cores. It implements
// emu.Scheduler for both of them.
type Session struct {
	id       xid.ID
	platform *config.Platform
	timing   *latency.TimingConfig
	bus      *mem.Bus
	flags    *emu.InterruptFlags
	cores    [2]*emu.Core

	// clocks holds each core's position on the timeline in core A cycles.
	clocks [2]uint64
	now    uint64
	scale  [2]uint64

	changed atomic.Bool
	steps   uint64

	logger    logr.Logger
	coreOpts  []emu.CoreOption
	tables    [2]*emu.OpcodeTable
	jits      [2]emu.JIT
	listeners []func(id emu.Identity, cycles uint32)
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithLogger sets the logger. Cores log through it with their identity
// attached.
func WithLogger(l logr.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithInstructionStats enables per-index instruction hit counting on both
// cores.
func WithInstructionStats() Option {
	return func(s *Session) {
		s.coreOpts = append(s.coreOpts, emu.WithInstructionStats())
	}
}

// WithOpcodeTable replaces the reference dispatch tables of core id.
func WithOpcodeTable(id emu.Identity, t *emu.OpcodeTable) Option {
	return func(s *Session) {
		s.tables[id&1] = t
	}
}

// WithJIT installs a compiled-code strategy on core id.
func WithJIT(id emu.Identity, j emu.JIT) Option {
	return func(s *Session) {
		s.jits[id&1] = j
	}
}

// WithStepListener registers fn to be called after every step.
func WithStepListener(fn func(id emu.Identity, cycles uint32)) Option {
	return func(s *Session) {
		s.listeners = append(s.listeners, fn)
	}
}

// New builds both cores over bus, pairs them and resets them to address 0.
func New(
	platform *config.Platform,
	timing *latency.TimingConfig,
	bus *mem.Bus,
	opts ...Option,
) (*Session, error) {
	if err := platform.Validate(); err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}
	if err := timing.Validate(); err != nil {
		return nil, fmt.Errorf("timing: %w", err)
	}

	s := &Session{
		id:       xid.New(),
		platform: platform,
		timing:   timing,
		bus:      bus,
		logger:   logr.Discard(),
		scale:    [2]uint64{1, uint64(timing.ClockRatio)},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithValues("session", s.id.String())
	s.flags = emu.NewInterruptFlags(platform.InterruptMask, s)

	for _, id := range []emu.Identity{emu.CoreA, emu.CoreB} {
		core, err := s.buildCore(id)
		if err != nil {
			return nil, err
		}
		s.cores[id] = core
	}
	emu.Pair(s.cores[emu.CoreA], s.cores[emu.CoreB])

	s.logger.V(1).Info("session created",
		"clockRatio", timing.ClockRatio, "interruptMask", platform.InterruptMask)
	return s, nil
}

func (s *Session) buildCore(id emu.Identity) (*emu.Core, error) {
	cfg, err := s.platform.CoreConfig(id)
	if err != nil {
		return nil, err
	}

	table := s.tables[id]
	if table == nil {
		table = insts.NewTable(cfg.ARMv5, s.timing.Costs())
	}

	opts := []emu.CoreOption{
		emu.WithConfig(cfg),
		emu.WithOpcodeTable(table),
		emu.WithTimingCombiner(s.timing.CombinerFor(id)),
		emu.WithScheduler(s),
		emu.WithLogger(s.logger.WithValues("core", id.String())),
	}
	if s.jits[id] != nil {
		opts = append(opts, emu.WithJIT(s.jits[id]))
	}
	opts = append(opts, s.coreOpts...)

	core, err := emu.NewCore(id, s.bus.Port(id), opts...)
	if err != nil {
		return nil, fmt.Errorf("core %s: %w", id, err)
	}
	return core, nil
}

// NotifyStateChanged records that interrupt delivery must be re-evaluated
// before the next step. It is safe to call from any goroutine.
func (s *Session) NotifyStateChanged() {
	s.changed.Store(true)
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id.String()
}

// Core returns core id.
func (s *Session) Core(id emu.Identity) *emu.Core {
	return s.cores[id&1]
}

// Interrupts returns the pending-interrupt register shared by both cores.
func (s *Session) Interrupts() *emu.InterruptFlags {
	return s.flags
}

// Bus returns the memory bus.
func (s *Session) Bus() *mem.Bus {
	return s.bus
}

// Now returns the shared timeline position in core A cycles.
func (s *Session) Now() uint64 {
	return s.now
}

// Steps returns how many instructions have been stepped.
func (s *Session) Steps() uint64 {
	return s.steps
}

// Reset restarts both cores at their entry points, clears the pending
// interrupts and rewinds the timeline.
func (s *Session) Reset(entryA, entryB uint32) {
	s.flags.Reset()
	s.cores[emu.CoreA].Reset(entryA)
	s.cores[emu.CoreB].Reset(entryB)
	s.clocks = [2]uint64{}
	s.now = 0
	s.steps = 0
	s.changed.Store(false)
}

// RaiseInterrupt sets pending interrupt bits for core id.
func (s *Session) RaiseInterrupt(id emu.Identity, bits uint32) error {
	return s.flags.Raise(id, bits)
}

// AcknowledgeInterrupt clears pending interrupt bits for core id.
func (s *Session) AcknowledgeInterrupt(id emu.Identity, bits uint32) {
	s.flags.Acknowledge(id, bits)
}
