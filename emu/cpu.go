// Package emu provides the dual-core ARM execution engine.
package emu

import (
	"github.com/go-logr/logr"
)

// Stats holds execution counters for a core. Instructions counts
// interpreted instructions; a compiled block counts once in JITHits.
type Stats struct {
	Instructions     uint64
	Cycles           uint64
	ConditionFailed  uint64
	Exceptions       uint64
	IRQs             uint64
	JITHits          uint64
	JITMisses        uint64
	JITCompileCycles uint64
}

// Core is one ARM core of the complex. It is not safe for concurrent use;
// only the InterruptFlags it shares with its peer are.
type Core struct {
	id   Identity
	cfg  CoreConfig
	peer *Core

	regs RegFile

	// Pipeline registers.
	instructAddr    uint32
	nextInstruction uint32
	instruction     uint32
	lastFetch       uint32
	lastFetchValid  bool

	// Control flags.
	stalled       bool
	waitIRQ       bool
	haltIEAndIF   bool
	intrWaitState uint32
	halted        bool
	haltReason    string

	vectorBase uint32
	armv5      bool

	ctrl     ControlInterface
	baseMem  MemoryInterface
	mem      MemoryInterface
	postExec PostExecFunc

	ops       *OpcodeTable
	timing    TimingCombiner
	scheduler Scheduler
	jit       JIT
	logger    logr.Logger

	stats      Stats
	armHits    []uint64
	thumbHits  []uint64
	thumbFetch func(c *Core, addr uint32) (uint32, uint32)
}

// CoreOption is a functional option for configuring a Core.
type CoreOption func(*Core)

// WithConfig overrides the identity defaults.
func WithConfig(cfg CoreConfig) CoreOption {
	return func(c *Core) {
		c.cfg = cfg
	}
}

// WithOpcodeTable sets the dispatch tables.
func WithOpcodeTable(t *OpcodeTable) CoreOption {
	return func(c *Core) {
		c.ops = t
	}
}

// WithTimingCombiner sets how execute and fetch costs are merged.
func WithTimingCombiner(t TimingCombiner) CoreOption {
	return func(c *Core) {
		c.timing = t
	}
}

// WithScheduler sets the scheduler notified on status changes.
func WithScheduler(s Scheduler) CoreOption {
	return func(c *Core) {
		c.scheduler = s
	}
}

// WithJIT enables the compiled-code path.
func WithJIT(j JIT) CoreOption {
	return func(c *Core) {
		c.jit = j
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) CoreOption {
	return func(c *Core) {
		c.logger = l
	}
}

// WithInstructionStats enables per-index instruction hit counting.
func WithInstructionStats() CoreOption {
	return func(c *Core) {
		c.armHits = make([]uint64, ARMTableSize)
		c.thumbHits = make([]uint64, ThumbTableSize)
	}
}

// NewCore creates a core bound to mem and resets it to address 0.
func NewCore(id Identity, mem MemoryInterface, opts ...CoreOption) (*Core, error) {
	if mem == nil {
		return nil, ErrNilMemory
	}

	c := &Core{
		id:        id,
		cfg:       DefaultCoreConfig(id),
		baseMem:   mem,
		mem:       mem,
		ops:       &OpcodeTable{},
		timing:    sumCombiner{},
		scheduler: nopScheduler{},
		logger:    logr.Discard(),
	}
	c.ctrl = &defaultControl{core: c}

	for _, opt := range opts {
		opt(c)
	}

	if c.cfg.WideThumbFetch {
		c.thumbFetch = (*Core).fetchThumbWide
	} else {
		c.thumbFetch = (*Core).fetchThumbNarrow
	}

	c.Reset(0)
	return c, nil
}

// Pair links two cores so that each can route exceptions to the other.
func Pair(a, b *Core) {
	a.peer = b
	b.peer = a
}

func (c *Core) core(id Identity) *Core {
	if id == c.id || c.peer == nil {
		return c
	}
	return c.peer
}

// Reset reinitializes the core and starts fetching at entry. Bit 0 of entry
// selects the compact encoding.
func (c *Core) Reset(entry uint32) {
	c.armv5 = c.cfg.ARMv5
	c.vectorBase = c.cfg.VectorBase
	c.waitIRQ = false
	c.haltIEAndIF = false
	c.intrWaitState = 0
	c.halted = false
	c.haltReason = ""
	c.lastFetchValid = false

	c.regs.Reset()

	c.nextInstruction = entry &^ 1
	c.regs.CPSR.Set(StatusT, entry&1 != 0)

	c.prefetch()
}

// ID returns the core identity.
func (c *Core) ID() Identity {
	return c.id
}

// Config returns the identity constants the core was built with.
func (c *Core) Config() CoreConfig {
	return c.cfg
}

// Regs returns the register file. Opcode handlers use it for R0-R15 and
// the condition flags; the banks belong to the mode switch.
func (c *Core) Regs() *RegFile {
	return &c.regs
}

// ARMv5 reports whether ARMv5 interworking applies.
func (c *Core) ARMv5() bool {
	return c.armv5
}

// InstructionAddress returns the address of the fetched instruction.
func (c *Core) InstructionAddress() uint32 {
	return c.instructAddr
}

// NextInstruction returns the address the next prefetch will read.
func (c *Core) NextInstruction() uint32 {
	return c.nextInstruction
}

// Instruction returns the raw fetched instruction.
func (c *Core) Instruction() uint32 {
	return c.instruction
}

// VectorBase returns the live exception vector base.
func (c *Core) VectorBase() uint32 {
	return c.vectorBase
}

// SetVectorBase moves the exception vectors.
func (c *Core) SetVectorBase(addr uint32) {
	c.vectorBase = addr
}

// Stats returns the execution counters.
func (c *Core) Stats() Stats {
	return c.stats
}

// ResetStats clears the execution counters and hit histograms.
func (c *Core) ResetStats() {
	c.stats = Stats{}
	clear(c.armHits)
	clear(c.thumbHits)
}

// InstructionHits returns the per-index hit counts, or nil when counting is
// disabled.
func (c *Core) InstructionHits() (arm, thumb []uint64) {
	return c.armHits, c.thumbHits
}

// changeStatus gives the scheduler a chance to deliver newly unmasked
// interrupts.
func (c *Core) changeStatus() {
	c.scheduler.NotifyStateChanged()
}

// SwitchMode swaps the banked registers for target and returns the previous
// mode. An invalid target is logged and returned as an error without
// touching any bank.
func (c *Core) SwitchMode(target Mode) (Mode, error) {
	old, err := c.regs.SwitchMode(target)
	if err != nil {
		c.logger.Error(err, "switch mode", "core", c.id, "from", old)
		return old, err
	}
	c.changeStatus()
	return old, nil
}

// SetStatus installs a full CPSR value, switching banks when the mode field
// changes.
func (c *Core) SetStatus(s Status) error {
	if s.Mode() != c.regs.Mode() {
		if _, err := c.SwitchMode(s.Mode()); err != nil {
			return err
		}
	}
	c.regs.CPSR = s
	c.changeStatus()
	return nil
}

// Branch makes addr the next instruction to execute in the current
// instruction set.
func (c *Core) Branch(addr uint32) {
	c.regs.R[RegPC] = addr
	c.nextInstruction = addr
}

// BranchExchange branches to addr and selects the instruction set from its
// bit 0.
func (c *Core) BranchExchange(addr uint32) {
	c.regs.CPSR.Set(StatusT, addr&1 != 0)
	c.Branch(addr &^ 1)
}

// Step executes one instruction and returns the cycles it took. A halted
// core makes no progress and returns zero.
func (c *Core) Step() uint32 {
	if c.halted {
		return 0
	}

	if c.jit != nil {
		addr, thumb := c.alignedInstructionAddress(), c.regs.CPSR.Thumb()
		if cycles, ok := c.stepCompiled(addr); ok {
			c.stats.Cycles += uint64(cycles)
			if c.postExec != nil {
				c.postExec(addr, thumb)
			}
			return cycles
		}
	}

	addr := c.instructAddr
	thumb := c.regs.CPSR.Thumb()

	var execute uint32
	if !thumb {
		execute = c.executeARM()
	} else {
		execute = c.executeThumb()
	}

	fetch := c.prefetch()
	cycles := c.timing.Combine(execute, fetch)

	c.stats.Instructions++
	c.stats.Cycles += uint64(cycles)

	if c.postExec != nil {
		c.postExec(addr, thumb)
	}
	return cycles
}

func (c *Core) executeARM() uint32 {
	instruction := c.instruction
	cond := ConditionOf(instruction)

	switch {
	case cond == CondAL:
	case cond == CondNV && c.armv5:
	case !CheckCondition(cond, c.regs.CPSR):
		c.stats.ConditionFailed++
		return 1
	}

	index := ARMIndex(instruction)
	if c.armHits != nil {
		c.armHits[index]++
	}
	h := c.ops.ARM[index]
	if h == nil {
		return c.TrapUndefined()
	}
	return h(c, instruction)
}

func (c *Core) executeThumb() uint32 {
	index := ThumbIndex(c.instruction)
	if c.thumbHits != nil {
		c.thumbHits[index]++
	}
	h := c.ops.Thumb[index]
	if h == nil {
		return c.TrapUndefined()
	}
	return h(c, c.instruction)
}
